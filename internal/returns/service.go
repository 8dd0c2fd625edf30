// Package returns runs the return/refund workflow:
// requested -> approved | rejected, approved -> settled.
package returns

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/ariefcatur/go-checkout-core/internal/apperr"
	"github.com/ariefcatur/go-checkout-core/internal/orders"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

const minReasonLen = 3

type Service struct {
	store    orders.Store
	pub      orders.Publisher
	log      logrus.FieldLogger
	producer string
}

func NewService(store orders.Store, pub orders.Publisher, log logrus.FieldLogger, producer string) *Service {
	if pub == nil {
		pub = orders.NopPublisher{}
	}
	return &Service{store: store, pub: pub, log: log, producer: producer}
}

// Create opens a return against the caller's delivered or completed order.
// An order the caller does not own is reported as not found.
func (s *Service) Create(ctx context.Context, userID, orderID, reason string) (*orders.Return, error) {
	reason = strings.TrimSpace(reason)
	if len(reason) < minReasonLen {
		return nil, fmt.Errorf("%w: reason must be at least %d characters", apperr.ErrValidation, minReasonLen)
	}
	var r *orders.Return
	err := s.store.InTx(ctx, func(ctx context.Context, tx orders.Repos) error {
		o, err := tx.Orders().LockOrder(ctx, orderID)
		if err != nil {
			return err
		}
		if o.UserID != userID {
			return fmt.Errorf("order: %w", apperr.ErrNotFound)
		}
		if !o.Status.Returnable() {
			return fmt.Errorf("%w: order is %s", apperr.ErrInvalidTransition, o.Status)
		}
		r = &orders.Return{
			ID:      uuid.NewString(),
			OrderID: orderID,
			UserID:  userID,
			Reason:  reason,
			Status:  orders.ReturnRequested,
		}
		return tx.Returns().CreateReturn(ctx, r)
	})
	if err != nil {
		return nil, err
	}
	s.publish(ctx, orders.TopicReturnRequested, orders.EventReturnRequested, r)
	return r, nil
}

// Process is an admin's move along the return table. A refund may be
// recorded at approval or settlement; settling needs one, and the refunds
// across all of an order's returns must stay within the order total.
func (s *Service) Process(ctx context.Context, returnID string, to orders.ReturnStatus, refund *decimal.Decimal) (*orders.Return, error) {
	if !to.Valid() {
		return nil, fmt.Errorf("%w: unknown return status %q", apperr.ErrValidation, to)
	}
	if refund != nil && refund.IsNegative() {
		return nil, fmt.Errorf("%w: refund_amount must not be negative", apperr.ErrValidation)
	}
	if refund != nil && to == orders.ReturnRejected {
		return nil, fmt.Errorf("%w: a rejected return carries no refund", apperr.ErrValidation)
	}

	var from orders.ReturnStatus
	err := s.store.InTx(ctx, func(ctx context.Context, tx orders.Repos) error {
		r, err := tx.Returns().GetReturn(ctx, returnID)
		if err != nil {
			return err
		}
		from = r.Status
		if !orders.CanTransitionReturn(from, to) {
			return fmt.Errorf("%w: %s -> %s", apperr.ErrInvalidTransition, from, to)
		}
		if to == orders.ReturnSettled && refund == nil && !r.RefundAmount.Valid {
			return fmt.Errorf("%w: refund_amount is required to settle", apperr.ErrValidation)
		}

		var amount decimal.NullDecimal
		if refund != nil {
			o, err := tx.Orders().LockOrder(ctx, r.OrderID)
			if err != nil {
				return err
			}
			// The order row lock serializes refunds across its returns.
			refunded, err := tx.Returns().RefundedTotal(ctx, r.OrderID, r.ID)
			if err != nil {
				return err
			}
			if refunded.Add(*refund).GreaterThan(o.TotalAmount) {
				return fmt.Errorf("%w: refund_amount exceeds remaining order total %s",
					apperr.ErrValidation, o.TotalAmount.Sub(refunded).StringFixed(2))
			}
			amount = decimal.NewNullDecimal(*refund)
		}
		return tx.Returns().UpdateReturn(ctx, returnID, from, to, amount)
	})
	if err != nil {
		return nil, err
	}

	r, err := s.store.Returns().GetReturn(ctx, returnID)
	if err != nil {
		return nil, err
	}
	s.publish(ctx, orders.TopicReturnProcessed, orders.EventReturnProcessed, r)
	s.log.WithFields(logrus.Fields{"return_id": returnID, "from": from, "to": to}).Info("return processed")
	return r, nil
}

// Get returns one of the caller's returns.
func (s *Service) Get(ctx context.Context, userID, returnID string) (*orders.Return, error) {
	r, err := s.store.Returns().GetReturn(ctx, returnID)
	if err != nil {
		return nil, err
	}
	if r.UserID != userID {
		return nil, fmt.Errorf("return: %w", apperr.ErrNotFound)
	}
	return r, nil
}

func (s *Service) List(ctx context.Context, userID string, page orders.Page) ([]orders.Return, int, error) {
	return s.store.Returns().ListReturns(ctx, orders.ReturnFilter{UserID: userID, Page: page})
}

// ListAll lists every user's returns, optionally by status.
func (s *Service) ListAll(ctx context.Context, status orders.ReturnStatus, page orders.Page) ([]orders.Return, int, error) {
	if status != "" && !status.Valid() {
		return nil, 0, fmt.Errorf("%w: unknown return status %q", apperr.ErrValidation, status)
	}
	return s.store.Returns().ListReturns(ctx, orders.ReturnFilter{Status: status, Page: page})
}

func (s *Service) publish(ctx context.Context, topic, eventType string, r *orders.Return) {
	env, err := orders.NewEnvelope(eventType, s.producer, r.OrderID, orders.ReturnPayload{
		ReturnID:     r.ID,
		OrderID:      r.OrderID,
		UserID:       r.UserID,
		Status:       r.Status,
		RefundAmount: r.RefundAmount,
	})
	if err == nil {
		pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
		defer cancel()
		err = s.pub.PublishEvent(pctx, topic, env)
	}
	if err != nil {
		s.log.WithError(err).WithField("return_id", r.ID).Error("publish event")
	}
}
