package checkout

import (
	"context"
	"fmt"

	"github.com/ariefcatur/go-checkout-core/internal/apperr"
	"github.com/ariefcatur/go-checkout-core/internal/orders"
	"github.com/sirupsen/logrus"
)

// Cancel lets the owner cancel a pending order. Stock is returned and the
// order's payments are reversed in the same transaction.
func (s *Service) Cancel(ctx context.Context, userID, orderID string) (*orders.Order, error) {
	var comp compensation
	err := s.store.InTx(ctx, func(ctx context.Context, tx orders.Repos) error {
		o, err := tx.Orders().LockOrder(ctx, orderID)
		if err != nil {
			return err
		}
		if o.UserID != userID {
			return fmt.Errorf("order: %w", apperr.ErrNotFound)
		}
		if o.Status != orders.StatusPending {
			return fmt.Errorf("%w: only pending orders can be cancelled, order is %s", apperr.ErrInvalidTransition, o.Status)
		}
		comp, err = cancelInTx(ctx, tx, o)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.publishCancelled(ctx, userID, orderID, comp)
	s.log.WithFields(logrus.Fields{"order_id": orderID, "user_id": userID}).Info("order cancelled")
	return s.loadOrder(ctx, orderID)
}

// UpdateStatus is the administrative move along the order transition table.
// Moving to cancelled compensates exactly like Cancel.
func (s *Service) UpdateStatus(ctx context.Context, orderID string, to orders.Status) (*orders.Order, error) {
	if !to.Valid() {
		return nil, fmt.Errorf("%w: unknown status %q", apperr.ErrValidation, to)
	}
	var (
		from orders.Status
		uid  string
		comp compensation
	)
	err := s.store.InTx(ctx, func(ctx context.Context, tx orders.Repos) error {
		o, err := tx.Orders().LockOrder(ctx, orderID)
		if err != nil {
			return err
		}
		from, uid = o.Status, o.UserID
		if !orders.CanTransition(from, to) {
			return fmt.Errorf("%w: %s -> %s", apperr.ErrInvalidTransition, from, to)
		}
		if to == orders.StatusCancelled {
			comp, err = cancelInTx(ctx, tx, o)
			return err
		}
		return tx.Orders().UpdateOrderStatus(ctx, orderID, from, to)
	})
	if err != nil {
		return nil, err
	}

	s.publish(ctx, orders.TopicOrderStatusChanged, orders.EventOrderStatusChanged, orderID,
		orders.OrderStatusChangedPayload{OrderID: orderID, From: from, To: to})
	if to == orders.StatusCancelled {
		s.publishCancelled(ctx, uid, orderID, comp)
	}
	s.log.WithFields(logrus.Fields{"order_id": orderID, "from": from, "to": to}).Info("order status changed")
	return s.loadOrder(ctx, orderID)
}

type compensation struct {
	restock  []orders.ItemQty
	refunded []string
}

// cancelInTx moves o to cancelled, restocks every item, refunds completed
// payments and fails processing ones. o must be locked by the caller.
func cancelInTx(ctx context.Context, tx orders.Repos, o *orders.Order) (compensation, error) {
	var c compensation
	if err := tx.Orders().UpdateOrderStatus(ctx, o.ID, o.Status, orders.StatusCancelled); err != nil {
		return c, err
	}
	full, err := tx.Orders().GetOrder(ctx, o.ID)
	if err != nil {
		return c, err
	}
	for _, it := range lockOrder(full.Items) {
		if err := tx.Products().IncrementStock(ctx, it.ProductID, it.Quantity); err != nil {
			return c, err
		}
	}
	c.restock = orders.ItemsOf(full.Items)

	payments, err := tx.Payments().ListPaymentsByOrder(ctx, o.ID)
	if err != nil {
		return c, err
	}
	for _, p := range payments {
		switch p.Status {
		case orders.PaymentCompleted:
			if err := tx.Payments().UpdatePaymentStatus(ctx, p.ID, p.Status, orders.PaymentRefunded, ""); err != nil {
				return c, err
			}
			c.refunded = append(c.refunded, p.ID)
		case orders.PaymentProcessing:
			if err := tx.Payments().UpdatePaymentStatus(ctx, p.ID, p.Status, orders.PaymentFailed, ""); err != nil {
				return c, err
			}
		}
	}
	return c, nil
}

func (s *Service) publishCancelled(ctx context.Context, userID, orderID string, c compensation) {
	s.publish(ctx, orders.TopicOrderCancelled, orders.EventOrderCancelled, orderID, orders.OrderCancelledPayload{
		OrderID:  orderID,
		UserID:   userID,
		Restock:  c.restock,
		Refunded: c.refunded,
	})
}
