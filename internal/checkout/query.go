package checkout

import (
	"context"
	"fmt"

	"github.com/ariefcatur/go-checkout-core/internal/apperr"
	"github.com/ariefcatur/go-checkout-core/internal/orders"
)

func (s *Service) loadOrder(ctx context.Context, orderID string) (*orders.Order, error) {
	o, err := s.store.Orders().GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	o.Payments, err = s.store.Payments().ListPaymentsByOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	return o, nil
}

// GetOrder returns the caller's order. Someone else's order is reported as
// not found so its existence does not leak.
func (s *Service) GetOrder(ctx context.Context, userID, orderID string) (*orders.Order, error) {
	o, err := s.loadOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if o.UserID != userID {
		return nil, fmt.Errorf("order: %w", apperr.ErrNotFound)
	}
	return o, nil
}

// AdminGetOrder reads any order.
func (s *Service) AdminGetOrder(ctx context.Context, orderID string) (*orders.Order, error) {
	return s.loadOrder(ctx, orderID)
}

func (s *Service) ListOrders(ctx context.Context, userID string, page orders.Page) ([]orders.Order, int, error) {
	return s.store.Orders().ListOrders(ctx, orders.OrderFilter{UserID: userID, Page: page})
}

// ListAllOrders lists every user's orders, optionally by status.
func (s *Service) ListAllOrders(ctx context.Context, status orders.Status, page orders.Page) ([]orders.Order, int, error) {
	if status != "" && !status.Valid() {
		return nil, 0, fmt.Errorf("%w: unknown status %q", apperr.ErrValidation, status)
	}
	return s.store.Orders().ListOrders(ctx, orders.OrderFilter{Status: status, Page: page})
}

// GetOrderPayment returns the most recent payment of the caller's order.
func (s *Service) GetOrderPayment(ctx context.Context, userID, orderID string) (*orders.Payment, error) {
	o, err := s.GetOrder(ctx, userID, orderID)
	if err != nil {
		return nil, err
	}
	if len(o.Payments) == 0 {
		return nil, fmt.Errorf("payment: %w", apperr.ErrNotFound)
	}
	p := o.Payments[len(o.Payments)-1]
	return &p, nil
}
