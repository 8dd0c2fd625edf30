package checkout

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/ariefcatur/go-checkout-core/internal/apperr"
	"github.com/ariefcatur/go-checkout-core/internal/orders"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func (f *fixture) placeOrder(t *testing.T, userID string, method orders.PaymentMethod, items map[string]int) *orders.Order {
	t.Helper()
	for id, qty := range items {
		f.addToCart(t, userID, id, qty)
	}
	o, _, err := f.svc.CreateOrder(context.Background(), request(userID, method))
	require.NoError(t, err)
	return o
}

func TestCancel_RestocksAndRefunds(t *testing.T) {
	f := newFixture(t)
	a := f.product(t, "a", "10.00", 5)
	b := f.product(t, "b", "1.00", 3)
	o := f.placeOrder(t, "u1", orders.MethodCreditCard, map[string]int{a.ID: 2, b.ID: 3})
	require.Equal(t, 3, f.store.Product(a.ID).Stock)
	require.Equal(t, 0, f.store.Product(b.ID).Stock)

	got, err := f.svc.Cancel(context.Background(), "u1", o.ID)
	require.NoError(t, err)
	assert.Equal(t, orders.StatusCancelled, got.Status)
	assert.Equal(t, 5, f.store.Product(a.ID).Stock)
	assert.Equal(t, 3, f.store.Product(b.ID).Stock)
	require.Len(t, got.Payments, 1)
	assert.Equal(t, orders.PaymentRefunded, got.Payments[0].Status)

	assert.Equal(t, []string{orders.TopicOrderCreated, orders.TopicOrderCancelled}, f.pub.Topics())
	var payload orders.OrderCancelledPayload
	require.NoError(t, json.Unmarshal(f.pub.Events()[1].Envelope.Payload, &payload))
	assert.Len(t, payload.Restock, 2)
	assert.Equal(t, []string{got.Payments[0].ID}, payload.Refunded)
}

func TestCancel_FailsProcessingPayment(t *testing.T) {
	f := newFixture(t)
	p := f.product(t, "a", "10.00", 5)
	o := f.placeOrder(t, "u1", orders.MethodCashOnDeliver, map[string]int{p.ID: 1})
	ctx := context.Background()
	require.NoError(t, f.store.Payments().CreatePayment(ctx, &orders.Payment{
		ID: "pay-1", OrderID: o.ID, Amount: o.TotalAmount, Status: orders.PaymentProcessing, Method: orders.MethodCashOnDeliver,
	}))

	got, err := f.svc.Cancel(ctx, "u1", o.ID)
	require.NoError(t, err)
	require.Len(t, got.Payments, 1)
	assert.Equal(t, orders.PaymentFailed, got.Payments[0].Status)
}

func TestStockRowsTouchedInProductOrder(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	for _, id := range []string{"prod-c", "prod-a", "prod-b"} {
		f.store.AddProduct(orders.Product{ID: id, Price: decimal.RequireFromString("1.00"), Stock: 5})
		f.addToCart(t, "u1", id, 1)
	}

	o, _, err := f.svc.CreateOrder(ctx, request("u1", orders.MethodCashOnDeliver))
	require.NoError(t, err)
	assert.Equal(t, []string{"-prod-a", "-prod-b", "-prod-c"}, f.store.StockCalls())

	_, err = f.svc.Cancel(ctx, "u1", o.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"+prod-a", "+prod-b", "+prod-c"}, f.store.StockCalls()[3:])
}

func TestCancel_Rules(t *testing.T) {
	f := newFixture(t)
	p := f.product(t, "a", "10.00", 5)
	o := f.placeOrder(t, "u1", orders.MethodCashOnDeliver, map[string]int{p.ID: 1})
	ctx := context.Background()

	_, err := f.svc.Cancel(ctx, "u2", o.ID)
	assert.ErrorIs(t, err, apperr.ErrNotFound, "someone else's order reads as missing")
	_, err = f.svc.Cancel(ctx, "u1", "missing")
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	f.store.SetOrderStatus(o.ID, orders.StatusShipped)
	_, err = f.svc.Cancel(ctx, "u1", o.ID)
	assert.ErrorIs(t, err, apperr.ErrInvalidTransition)
	assert.Equal(t, 4, f.store.Product(p.ID).Stock)

	f.store.SetOrderStatus(o.ID, orders.StatusPending)
	_, err = f.svc.Cancel(ctx, "u1", o.ID)
	require.NoError(t, err)
	_, err = f.svc.Cancel(ctx, "u1", o.ID)
	assert.ErrorIs(t, err, apperr.ErrInvalidTransition, "cancelling twice must not restock twice")
	assert.Equal(t, 5, f.store.Product(p.ID).Stock)
}

func TestCancel_FailureKeepsOrderIntact(t *testing.T) {
	f := newFixture(t)
	p := f.product(t, "a", "10.00", 5)
	o := f.placeOrder(t, "u1", orders.MethodCreditCard, map[string]int{p.ID: 2})
	f.store.FailOn("UpdatePaymentStatus", apperr.ErrStoreUnavailable)

	_, err := f.svc.Cancel(context.Background(), "u1", o.ID)
	assert.ErrorIs(t, err, apperr.ErrStoreUnavailable)

	got, err := f.svc.GetOrder(context.Background(), "u1", o.ID)
	require.NoError(t, err)
	assert.Equal(t, orders.StatusPending, got.Status)
	assert.Equal(t, 3, f.store.Product(p.ID).Stock)
	assert.Equal(t, orders.PaymentCompleted, got.Payments[0].Status)
}

func TestUpdateStatus_FollowsTable(t *testing.T) {
	f := newFixture(t)
	p := f.product(t, "a", "10.00", 5)
	o := f.placeOrder(t, "u1", orders.MethodCreditCard, map[string]int{p.ID: 1})
	ctx := context.Background()

	_, err := f.svc.UpdateStatus(ctx, o.ID, "teleported")
	assert.ErrorIs(t, err, apperr.ErrValidation)
	_, err = f.svc.UpdateStatus(ctx, o.ID, orders.StatusDelivered)
	assert.ErrorIs(t, err, apperr.ErrInvalidTransition)
	_, err = f.svc.UpdateStatus(ctx, "missing", orders.StatusProcessing)
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	for _, to := range []orders.Status{orders.StatusProcessing, orders.StatusShipped, orders.StatusDelivered, orders.StatusCompleted} {
		got, err := f.svc.UpdateStatus(ctx, o.ID, to)
		require.NoError(t, err, "to %s", to)
		assert.Equal(t, to, got.Status)
	}
	_, err = f.svc.UpdateStatus(ctx, o.ID, orders.StatusCancelled)
	assert.ErrorIs(t, err, apperr.ErrInvalidTransition)
	assert.Equal(t, 4, f.store.Product(p.ID).Stock)
}

func TestUpdateStatus_AdminCancelCompensates(t *testing.T) {
	f := newFixture(t)
	p := f.product(t, "a", "10.00", 5)
	o := f.placeOrder(t, "u1", orders.MethodDebitCard, map[string]int{p.ID: 2})
	ctx := context.Background()

	_, err := f.svc.UpdateStatus(ctx, o.ID, orders.StatusProcessing)
	require.NoError(t, err)
	got, err := f.svc.UpdateStatus(ctx, o.ID, orders.StatusCancelled)
	require.NoError(t, err)

	assert.Equal(t, orders.StatusCancelled, got.Status)
	assert.Equal(t, 5, f.store.Product(p.ID).Stock)
	assert.Equal(t, orders.PaymentRefunded, got.Payments[0].Status)
	assert.Equal(t, []string{
		orders.TopicOrderCreated,
		orders.TopicOrderStatusChanged,
		orders.TopicOrderStatusChanged,
		orders.TopicOrderCancelled,
	}, f.pub.Topics())
}
