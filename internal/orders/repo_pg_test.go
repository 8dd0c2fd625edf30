package orders_test

import (
	"context"
	"encoding/json"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/ariefcatur/go-checkout-core/internal/apperr"
	"github.com/ariefcatur/go-checkout-core/internal/orders"
	"github.com/ariefcatur/go-checkout-core/internal/postgres"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// These run against a disposable database named by CHECKOUT_TEST_POSTGRES_DSN.
const dsnEnv = "CHECKOUT_TEST_POSTGRES_DSN"

func pgStore(t *testing.T) (*orders.PGStore, *pgxpool.Pool) {
	t.Helper()
	dsn := os.Getenv(dsnEnv)
	if dsn == "" {
		t.Skipf("%s not set", dsnEnv)
	}
	ctx := context.Background()
	pool, err := postgres.Connect(ctx, dsn, 30)
	require.NoError(t, err)
	t.Cleanup(pool.Close)
	require.NoError(t, postgres.Migrate(ctx, pool))
	return orders.NewPGStore(pool, 5*time.Second), pool
}

func insertProduct(t *testing.T, pool *pgxpool.Pool, price string, stock int) string {
	t.Helper()
	id := uuid.NewString()
	_, err := pool.Exec(context.Background(),
		`INSERT INTO products (id, sku, name, price, stock) VALUES ($1, $2, $3, $4, $5)`,
		id, "SKU-"+id, "product "+id[:8], price, stock)
	require.NoError(t, err)
	return id
}

func newOrder(userID string, items ...orders.OrderItem) *orders.Order {
	o := &orders.Order{
		ID:              uuid.NewString(),
		UserID:          userID,
		OrderNumber:     "ORD-" + uuid.NewString(),
		Status:          orders.StatusPending,
		PaymentMethod:   orders.MethodCreditCard,
		ShippingAddress: json.RawMessage(`{"city":"Springfield"}`),
		BillingAddress:  json.RawMessage(`{"city":"Springfield"}`),
		Items:           items,
	}
	for i := range o.Items {
		o.Items[i].ID = uuid.NewString()
		o.TotalAmount = o.TotalAmount.Add(o.Items[i].Subtotal())
	}
	return o
}

func TestPG_ConcurrentDecrementsNeverOversell(t *testing.T) {
	store, pool := pgStore(t)
	ctx := context.Background()
	id := insertProduct(t, pool, "9.99", 5)

	const buyers = 20
	var wg sync.WaitGroup
	errs := make([]error, buyers)
	for i := 0; i < buyers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = store.InTx(ctx, func(ctx context.Context, tx orders.Repos) error {
				return tx.Products().DecrementStock(ctx, id, 1)
			})
		}(i)
	}
	wg.Wait()

	sold := 0
	for _, err := range errs {
		if err == nil {
			sold++
			continue
		}
		assert.ErrorIs(t, err, apperr.ErrInsufficientStock)
	}
	assert.Equal(t, 5, sold)

	p, err := store.Products().GetProduct(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, 0, p.Stock)
	assert.True(t, p.Price.Equal(decimal.RequireFromString("9.99")))
}

func TestPG_FailedMultiItemCheckoutRollsBack(t *testing.T) {
	store, pool := pgStore(t)
	ctx := context.Background()
	a := insertProduct(t, pool, "10.00", 5)
	b := insertProduct(t, pool, "2.50", 1)
	user := "pg-" + uuid.NewString()

	o := newOrder(user,
		orders.OrderItem{ProductID: a, Quantity: 2, PriceAtTime: decimal.RequireFromString("10.00")},
		orders.OrderItem{ProductID: b, Quantity: 2, PriceAtTime: decimal.RequireFromString("2.50")},
	)
	err := store.InTx(ctx, func(ctx context.Context, tx orders.Repos) error {
		if err := tx.Orders().CreateOrder(ctx, o); err != nil {
			return err
		}
		for _, it := range o.Items {
			if err := tx.Products().DecrementStock(ctx, it.ProductID, it.Quantity); err != nil {
				return err
			}
		}
		return nil
	})
	assert.ErrorIs(t, err, apperr.ErrInsufficientStock)

	pa, err := store.Products().GetProduct(ctx, a)
	require.NoError(t, err)
	assert.Equal(t, 5, pa.Stock, "earlier decrement rolled back")
	_, err = store.Orders().GetOrder(ctx, o.ID)
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	// the same order with enough stock commits with its snapshots intact
	o = newOrder(user, orders.OrderItem{ProductID: a, Quantity: 2, PriceAtTime: decimal.RequireFromString("10.00")})
	require.NoError(t, store.InTx(ctx, func(ctx context.Context, tx orders.Repos) error {
		if err := tx.Orders().CreateOrder(ctx, o); err != nil {
			return err
		}
		return tx.Products().DecrementStock(ctx, a, 2)
	}))
	got, err := store.Orders().GetOrder(ctx, o.ID)
	require.NoError(t, err)
	require.Len(t, got.Items, 1)
	assert.True(t, got.TotalAmount.Equal(decimal.RequireFromString("20")))
	assert.True(t, got.Items[0].PriceAtTime.Equal(decimal.RequireFromString("10")))
}

func TestPG_CartLockedByConcurrentCheckout(t *testing.T) {
	store, pool := pgStore(t)
	ctx := context.Background()
	user := "pg-" + uuid.NewString()
	c, err := store.Carts().EnsureCart(ctx, user)
	require.NoError(t, err)
	require.NoError(t, store.Carts().AddCartItem(ctx, c.ID, insertProduct(t, pool, "1.00", 3), 1))

	locked := make(chan struct{})
	release := make(chan struct{})
	done := make(chan error, 1)
	go func() {
		done <- store.InTx(ctx, func(ctx context.Context, tx orders.Repos) error {
			if _, err := tx.Carts().LockCartByUser(ctx, user); err != nil {
				close(locked)
				return err
			}
			close(locked)
			<-release
			return nil
		})
	}()
	<-locked

	err = store.InTx(ctx, func(ctx context.Context, tx orders.Repos) error {
		_, err := tx.Carts().LockCartByUser(ctx, user)
		return err
	})
	assert.ErrorIs(t, err, apperr.ErrConflict)
	close(release)
	require.NoError(t, <-done)

	got, err := store.Carts().GetCartByUser(ctx, user)
	require.NoError(t, err)
	assert.Len(t, got.Items, 1)
}

func TestPG_CompareAndSwap(t *testing.T) {
	store, _ := pgStore(t)
	ctx := context.Background()
	o := newOrder("pg-" + uuid.NewString())
	require.NoError(t, store.Orders().CreateOrder(ctx, o))

	require.NoError(t, store.Orders().UpdateOrderStatus(ctx, o.ID, orders.StatusPending, orders.StatusProcessing))
	err := store.Orders().UpdateOrderStatus(ctx, o.ID, orders.StatusPending, orders.StatusCancelled)
	assert.ErrorIs(t, err, apperr.ErrConflict)
	err = store.Orders().UpdateOrderStatus(ctx, uuid.NewString(), orders.StatusPending, orders.StatusCancelled)
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	pay := &orders.Payment{ID: uuid.NewString(), OrderID: o.ID, Amount: decimal.RequireFromString("12.34"),
		Status: orders.PaymentCompleted, Method: orders.MethodCreditCard}
	require.NoError(t, store.Payments().CreatePayment(ctx, pay))
	require.NoError(t, store.Payments().UpdatePaymentStatus(ctx, pay.ID, orders.PaymentCompleted, orders.PaymentCompleted, "txn-first"))
	err = store.Payments().UpdatePaymentStatus(ctx, pay.ID, orders.PaymentCompleted, orders.PaymentCompleted, "txn-second")
	assert.ErrorIs(t, err, apperr.ErrConflict)

	got, err := store.Payments().GetPayment(ctx, pay.ID)
	require.NoError(t, err)
	assert.Equal(t, "txn-first", got.TransactionID)
	assert.True(t, got.Amount.Equal(decimal.RequireFromString("12.34")))
}

func TestPG_RefundedTotal(t *testing.T) {
	store, _ := pgStore(t)
	ctx := context.Background()
	o := newOrder("pg-" + uuid.NewString())
	require.NoError(t, store.Orders().CreateOrder(ctx, o))

	add := func(status orders.ReturnStatus, refund string) string {
		r := &orders.Return{ID: uuid.NewString(), OrderID: o.ID, UserID: o.UserID, Reason: "damaged", Status: status}
		if refund != "" {
			r.RefundAmount = decimal.NewNullDecimal(decimal.RequireFromString(refund))
		}
		require.NoError(t, store.Returns().CreateReturn(ctx, r))
		return r.ID
	}
	add(orders.ReturnSettled, "30.00")
	approved := add(orders.ReturnApproved, "15.50")
	add(orders.ReturnRequested, "")
	add(orders.ReturnRejected, "")

	sum, err := store.Returns().RefundedTotal(ctx, o.ID, "")
	require.NoError(t, err)
	assert.True(t, sum.Equal(decimal.RequireFromString("45.50")), sum.String())

	sum, err = store.Returns().RefundedTotal(ctx, o.ID, approved)
	require.NoError(t, err)
	assert.True(t, sum.Equal(decimal.RequireFromString("30")), sum.String())
}

func TestPG_MalformedIDIsValidation(t *testing.T) {
	store, _ := pgStore(t)
	_, err := store.Products().GetProduct(context.Background(), "not-a-uuid")
	assert.ErrorIs(t, err, apperr.ErrValidation)
	assert.NotContains(t, err.Error(), "invalid input syntax")
}
