package kafka

import (
	"context"
	"encoding/json"

	"github.com/ariefcatur/go-checkout-core/internal/orders"
)

// EventPublisher publishes order envelopes keyed by order id.
type EventPublisher struct {
	P *Producer
}

var _ orders.Publisher = (*EventPublisher)(nil)

func (e *EventPublisher) PublishEvent(ctx context.Context, topic string, env orders.Envelope) error {
	b, err := json.Marshal(env)
	if err != nil {
		return err
	}
	return e.P.Publish(ctx, topic, orders.PartitionKey(env.CorrelationID), b, envelopeHeaders(env)...)
}
