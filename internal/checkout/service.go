// Package checkout owns the Order Ledger: the atomic cart-to-order
// conversion, cancellation with compensation, administrative status moves
// and order reads.
package checkout

import (
	"context"
	"time"

	"github.com/ariefcatur/go-checkout-core/internal/orders"
	"github.com/ariefcatur/go-checkout-core/internal/redisx"
	"github.com/sirupsen/logrus"
)

type Options struct {
	ServiceName    string
	IdempotencyTTL time.Duration
	// Timeout bounds one checkout transaction, lock waits included.
	Timeout time.Duration
}

type Service struct {
	store orders.Store
	cache redisx.KV
	pub   orders.Publisher
	log   logrus.FieldLogger
	opts  Options

	now         func() time.Time
	orderNumber func(time.Time) string
}

func NewService(store orders.Store, cache redisx.KV, pub orders.Publisher, log logrus.FieldLogger, opts Options) *Service {
	if opts.IdempotencyTTL <= 0 {
		opts.IdempotencyTTL = redisx.TTLIdempotency
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	if pub == nil {
		pub = orders.NopPublisher{}
	}
	return &Service{
		store:       store,
		cache:       cache,
		pub:         pub,
		log:         log,
		opts:        opts,
		now:         time.Now,
		orderNumber: NewOrderNumber,
	}
}

// publish runs after commit; the outcome of the operation no longer depends
// on it, so failures are only logged.
func (s *Service) publish(ctx context.Context, topic, eventType, orderID string, payload any) {
	publish(ctx, s.pub, s.log, s.opts.ServiceName, topic, eventType, orderID, payload)
}

func publish(ctx context.Context, pub orders.Publisher, log logrus.FieldLogger, producer, topic, eventType, orderID string, payload any) {
	env, err := orders.NewEnvelope(eventType, producer, orderID, payload)
	if err == nil {
		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
		defer cancel()
		err = pub.PublishEvent(ctx, topic, env)
	}
	if err != nil {
		log.WithError(err).WithFields(logrus.Fields{
			"event_type": eventType,
			"order_id":   orderID,
		}).Error("publish event")
	}
}
