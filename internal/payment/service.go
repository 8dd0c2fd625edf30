// Package payment advances payment records along their state machine:
// processing -> completed | failed, completed -> refunded.
package payment

import (
	"context"
	"fmt"
	"time"

	"github.com/ariefcatur/go-checkout-core/internal/apperr"
	"github.com/ariefcatur/go-checkout-core/internal/orders"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

const minTransactionIDLen = 5

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

// Initiate opens a processing payment for the caller's order, for the order
// total. An order that already has a live (processing or completed) payment
// gets that payment back with created=false. method defaults to the order's.
func (s *Service) Initiate(ctx context.Context, userID, orderID string, method orders.PaymentMethod) (p *orders.Payment, created bool, err error) {
	if method != "" && !method.Valid() {
		return nil, false, fmt.Errorf("%w: payment_method must be one of cc, dc, cod", apperr.ErrValidation)
	}
	err = s.store.InTx(ctx, func(ctx context.Context, tx orders.Repos) error {
		o, err := tx.Orders().LockOrder(ctx, orderID)
		if err != nil {
			return err
		}
		if o.UserID != userID {
			return fmt.Errorf("order: %w", apperr.ErrNotFound)
		}
		if o.Status == orders.StatusCancelled {
			return fmt.Errorf("%w: order is cancelled", apperr.ErrInvalidTransition)
		}
		existing, err := tx.Payments().ListPaymentsByOrder(ctx, orderID)
		if err != nil {
			return err
		}
		for i := range existing {
			if st := existing[i].Status; st == orders.PaymentProcessing || st == orders.PaymentCompleted {
				p = &existing[i]
				return nil
			}
		}
		if method == "" {
			method = o.PaymentMethod
		}
		p = &orders.Payment{
			ID:      uuid.NewString(),
			OrderID: orderID,
			Amount:  o.TotalAmount,
			Status:  orders.PaymentProcessing,
			Method:  method,
		}
		created = true
		return tx.Payments().CreatePayment(ctx, p)
	})
	if err != nil {
		return nil, false, err
	}
	if created {
		s.log.WithFields(logrus.Fields{"payment_id": p.ID, "order_id": orderID}).Info("payment initiated")
	}
	return p, created, nil
}

// Verify records a gateway confirmation. A processing payment completes; a
// completed one only gains its transaction id. Verifying with a different id
// than the one already recorded is a conflict. No row is ever added.
func (s *Service) Verify(ctx context.Context, paymentID, transactionID string) (*orders.Payment, error) {
	if len(transactionID) < minTransactionIDLen {
		return nil, fmt.Errorf("%w: transaction_id must be at least %d characters", apperr.ErrValidation, minTransactionIDLen)
	}
	var completedNow bool
	err := s.store.InTx(ctx, func(ctx context.Context, tx orders.Repos) error {
		p, err := tx.Payments().GetPayment(ctx, paymentID)
		if err != nil {
			return err
		}
		switch {
		case p.Status == orders.PaymentCompleted && p.TransactionID == transactionID:
			return nil
		case p.Status == orders.PaymentCompleted && p.TransactionID != "":
			return fmt.Errorf("%w: payment already verified with another transaction", apperr.ErrConflict)
		case !orders.CanTransitionPayment(p.Status, orders.PaymentCompleted):
			return fmt.Errorf("%w: payment is %s", apperr.ErrInvalidTransition, p.Status)
		}
		completedNow = p.Status == orders.PaymentProcessing
		return tx.Payments().UpdatePaymentStatus(ctx, paymentID, p.Status, orders.PaymentCompleted, transactionID)
	})
	if err != nil {
		return nil, err
	}
	p, err := s.store.Payments().GetPayment(ctx, paymentID)
	if err != nil {
		return nil, err
	}
	if completedNow {
		s.publish(ctx, orders.TopicPaymentCompleted, orders.EventPaymentCompleted, p, "")
	}
	return p, nil
}

// Fail records a gateway decline on a processing payment.
func (s *Service) Fail(ctx context.Context, paymentID, reason string) (*orders.Payment, error) {
	err := s.store.InTx(ctx, func(ctx context.Context, tx orders.Repos) error {
		p, err := tx.Payments().GetPayment(ctx, paymentID)
		if err != nil {
			return err
		}
		if !orders.CanTransitionPayment(p.Status, orders.PaymentFailed) {
			return fmt.Errorf("%w: payment is %s", apperr.ErrInvalidTransition, p.Status)
		}
		return tx.Payments().UpdatePaymentStatus(ctx, paymentID, p.Status, orders.PaymentFailed, "")
	})
	if err != nil {
		return nil, err
	}
	p, err := s.store.Payments().GetPayment(ctx, paymentID)
	if err != nil {
		return nil, err
	}
	s.publish(ctx, orders.TopicPaymentFailed, orders.EventPaymentFailed, p, reason)
	s.log.WithFields(logrus.Fields{"payment_id": paymentID, "reason": reason}).Warn("payment failed")
	return p, nil
}

func (s *Service) publish(ctx context.Context, topic, eventType string, p *orders.Payment, reason string) {
	env, err := orders.NewEnvelope(eventType, s.producer, p.OrderID, orders.PaymentPayload{
		PaymentID:     p.ID,
		OrderID:       p.OrderID,
		Amount:        p.Amount,
		Status:        p.Status,
		TransactionID: p.TransactionID,
		Reason:        reason,
	})
	if err == nil {
		pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
		defer cancel()
		err = s.pub.PublishEvent(pctx, topic, env)
	}
	if err != nil {
		s.log.WithError(err).WithField("payment_id", p.ID).Error("publish event")
	}
}
