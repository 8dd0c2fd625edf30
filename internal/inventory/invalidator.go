package inventory

import (
	"context"
	"fmt"

	kafkax "github.com/ariefcatur/go-checkout-core/internal/kafka"
	"github.com/ariefcatur/go-checkout-core/internal/orders"
	"github.com/ariefcatur/go-checkout-core/internal/redisx"
	kafkago "github.com/segmentio/kafka-go"
	"github.com/sirupsen/logrus"
)

// Topics the invalidator subscribes to.
var InvalidationTopics = []string{orders.TopicOrderCreated, orders.TopicOrderCancelled}

// Invalidator evicts catalog entries for every product whose stock an order
// event changed. It is installed as a kafka consumer handler.
type Invalidator struct {
	Cache       redisx.KV
	ServiceName string
	Log         logrus.FieldLogger
}

func (s *Invalidator) Handle(ctx context.Context, m kafkago.Message) error {
	env, err := kafkax.UnmarshalEnvelope(m.Value)
	if err != nil {
		// poison message: log and let the offset advance
		s.Log.WithError(err).WithField("offset", m.Offset).Warn("skipping undecodable event")
		return nil
	}

	var items []orders.ItemQty
	switch env.EventType {
	case orders.EventOrderCreated:
		p, err := kafkax.UnwrapPayload[orders.OrderCreatedPayload](env.Payload)
		if err != nil {
			return err
		}
		items = p.Items
	case orders.EventOrderCancelled:
		p, err := kafkax.UnwrapPayload[orders.OrderCancelledPayload](env.Payload)
		if err != nil {
			return err
		}
		items = p.Restock
	default:
		return nil
	}

	dkey := fmt.Sprintf(redisx.KeyDedup, s.ServiceName, env.EventID)
	if _, err := s.Cache.Get(ctx, dkey); err == nil {
		return nil
	}

	ids := make([]string, 0, len(items))
	for _, it := range items {
		ids = append(ids, it.ProductID)
	}
	if err := evict(ctx, s.Cache, ids); err != nil {
		return err
	}
	if _, err := s.Cache.SetNX(ctx, dkey, "1", redisx.TTLDedup); err != nil {
		s.Log.WithError(err).Warn("dedup mark")
	}
	s.Log.WithFields(logrus.Fields{
		"event_type": env.EventType,
		"order_id":   env.CorrelationID,
		"products":   len(ids),
	}).Debug("catalog entries evicted")
	return nil
}
