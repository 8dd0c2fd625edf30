package checkout

import (
	"cmp"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"

	"github.com/ariefcatur/go-checkout-core/internal/apperr"
	"github.com/ariefcatur/go-checkout-core/internal/orders"
	"github.com/ariefcatur/go-checkout-core/internal/redisx"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

type Request struct {
	UserID          string
	ShippingAddress json.RawMessage
	BillingAddress  json.RawMessage
	PaymentMethod   orders.PaymentMethod
	// IdempotencyKey is optional. A repeated key returns the order the first
	// attempt created.
	IdempotencyKey string
}

const maxIdempotencyKeyLen = 128

func (r Request) validate() error {
	switch {
	case r.UserID == "":
		return fmt.Errorf("%w: user is required", apperr.ErrValidation)
	case !r.PaymentMethod.Valid():
		return fmt.Errorf("%w: payment_method must be one of cc, dc, cod", apperr.ErrValidation)
	case !isObject(r.ShippingAddress):
		return fmt.Errorf("%w: shipping_address must be an object", apperr.ErrValidation)
	case !isObject(r.BillingAddress):
		return fmt.Errorf("%w: billing_address must be an object", apperr.ErrValidation)
	case len(r.IdempotencyKey) > maxIdempotencyKeyLen:
		return fmt.Errorf("%w: idempotency key too long", apperr.ErrValidation)
	}
	return nil
}

func isObject(raw json.RawMessage) bool {
	var m map[string]json.RawMessage
	return len(raw) > 0 && json.Unmarshal(raw, &m) == nil && m != nil
}

// CreateOrder converts the user's cart into a pending order. Order, items,
// stock decrements, the card payment and the cart clear commit together or
// not at all. replayed is true when the idempotency key matched an earlier
// order, which is returned unchanged.
func (s *Service) CreateOrder(ctx context.Context, req Request) (order *orders.Order, replayed bool, err error) {
	if err := req.validate(); err != nil {
		return nil, false, err
	}
	log := s.log.WithFields(logrus.Fields{"user_id": req.UserID, "method": req.PaymentMethod})

	if req.IdempotencyKey != "" {
		if o := s.cachedReplay(ctx, req); o != nil {
			return o, true, nil
		}
	}

	tctx, cancel := context.WithTimeout(ctx, s.opts.Timeout)
	defer cancel()

	err = s.store.InTx(tctx, func(ctx context.Context, tx orders.Repos) error {
		if req.IdempotencyKey != "" {
			prev, err := tx.Orders().FindOrderByIdempotencyKey(ctx, req.UserID, req.IdempotencyKey)
			if err == nil {
				order, replayed = prev, true
				return nil
			}
			if !errors.Is(err, apperr.ErrNotFound) {
				return err
			}
		}
		o, err := s.checkout(ctx, tx, req)
		order = o
		return err
	})
	if err != nil && req.IdempotencyKey != "" && errors.Is(err, apperr.ErrConflict) {
		// lost the race to a concurrent attempt with the same key
		if prev, ferr := s.store.Orders().FindOrderByIdempotencyKey(ctx, req.UserID, req.IdempotencyKey); ferr == nil {
			order, replayed, err = prev, true, nil
		}
	}
	if err != nil {
		if apperr.IsDomain(err) {
			log.WithError(err).Info("checkout rejected")
		}
		return nil, false, err
	}

	if replayed {
		full, err := s.loadOrder(ctx, order.ID)
		if err != nil {
			return nil, false, err
		}
		log.WithField("order_id", full.ID).Info("checkout replayed")
		return full, true, nil
	}

	if req.IdempotencyKey != "" && s.cache != nil {
		key := fmt.Sprintf(redisx.KeyIdemCheckout, req.UserID, req.IdempotencyKey)
		if err := s.cache.Set(ctx, key, order.ID, s.opts.IdempotencyTTL); err != nil {
			log.WithError(err).Warn("idempotency cache set")
		}
	}
	s.publish(ctx, orders.TopicOrderCreated, orders.EventOrderCreated, order.ID, orders.OrderCreatedPayload{
		OrderID:     order.ID,
		OrderNumber: order.OrderNumber,
		UserID:      order.UserID,
		Items:       orders.ItemsOf(order.Items),
		TotalAmount: order.TotalAmount,
		Method:      order.PaymentMethod,
	})
	log.WithFields(logrus.Fields{"order_id": order.ID, "total": order.TotalAmount.StringFixed(2)}).Info("order created")
	return order, false, nil
}

func (s *Service) checkout(ctx context.Context, tx orders.Repos, req Request) (*orders.Order, error) {
	cart, err := tx.Carts().LockCartByUser(ctx, req.UserID)
	if errors.Is(err, apperr.ErrNotFound) {
		return nil, apperr.ErrEmptyCart
	}
	if err != nil {
		return nil, err
	}
	if len(cart.Items) == 0 {
		return nil, apperr.ErrEmptyCart
	}

	// Pre-check for a readable error. DecrementStock below is the real guard.
	for _, it := range cart.Items {
		if it.Product == nil || it.Product.Stock < it.Quantity {
			return nil, fmt.Errorf("%w: %s", apperr.ErrInsufficientStock, productName(it))
		}
	}

	now := s.now()
	o := &orders.Order{
		ID:              uuid.NewString(),
		UserID:          req.UserID,
		OrderNumber:     s.orderNumber(now),
		IdempotencyKey:  req.IdempotencyKey,
		TotalAmount:     decimal.Zero,
		Status:          orders.StatusPending,
		PaymentMethod:   req.PaymentMethod,
		ShippingAddress: req.ShippingAddress,
		BillingAddress:  req.BillingAddress,
		Items:           make([]orders.OrderItem, 0, len(cart.Items)),
	}
	for _, it := range cart.Items {
		item := orders.OrderItem{
			ID:          uuid.NewString(),
			OrderID:     o.ID,
			ProductID:   it.ProductID,
			Quantity:    it.Quantity,
			PriceAtTime: it.Product.Price,
		}
		o.Items = append(o.Items, item)
		o.TotalAmount = o.TotalAmount.Add(item.Subtotal())
	}

	if err := tx.Orders().CreateOrder(ctx, o); err != nil {
		return nil, err
	}
	for _, it := range lockOrder(o.Items) {
		if err := tx.Products().DecrementStock(ctx, it.ProductID, it.Quantity); err != nil {
			return nil, err
		}
	}
	if req.PaymentMethod.SettlesAtCheckout() {
		p := &orders.Payment{
			ID:      uuid.NewString(),
			OrderID: o.ID,
			Amount:  o.TotalAmount,
			Status:  orders.PaymentCompleted,
			Method:  req.PaymentMethod,
		}
		if err := tx.Payments().CreatePayment(ctx, p); err != nil {
			return nil, err
		}
		o.Payments = []orders.Payment{*p}
	}
	if err := tx.Carts().ClearCart(ctx, cart.ID); err != nil {
		return nil, err
	}
	return o, nil
}

// lockOrder sorts items by product id. Every transaction touching stock
// walks products in this order so concurrent ones never lock rows crosswise.
func lockOrder(items []orders.OrderItem) []orders.OrderItem {
	out := slices.Clone(items)
	slices.SortFunc(out, func(a, b orders.OrderItem) int { return cmp.Compare(a.ProductID, b.ProductID) })
	return out
}

// cachedReplay is the Redis fast path. Any miss or error falls through to
// the store, which stays authoritative.
func (s *Service) cachedReplay(ctx context.Context, req Request) *orders.Order {
	if s.cache == nil {
		return nil
	}
	key := fmt.Sprintf(redisx.KeyIdemCheckout, req.UserID, req.IdempotencyKey)
	orderID, err := s.cache.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, redisx.ErrMiss) {
			s.log.WithError(err).Warn("idempotency cache get")
		}
		return nil
	}
	o, err := s.loadOrder(ctx, orderID)
	if err != nil || o.UserID != req.UserID {
		return nil
	}
	return o
}

func productName(it orders.CartItem) string {
	if it.Product != nil && it.Product.Name != "" {
		return it.Product.Name
	}
	return it.ProductID
}
