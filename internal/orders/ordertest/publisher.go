package ordertest

import (
	"context"
	"sync"

	"github.com/ariefcatur/go-checkout-core/internal/orders"
)

type Published struct {
	Topic    string
	Envelope orders.Envelope
}

// Publisher records every envelope. Err, when set, is returned instead.
type Publisher struct {
	mu     sync.Mutex
	events []Published
	Err    error
}

func (p *Publisher) PublishEvent(_ context.Context, topic string, env orders.Envelope) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.Err != nil {
		return p.Err
	}
	p.events = append(p.events, Published{Topic: topic, Envelope: env})
	return nil
}

func (p *Publisher) Events() []Published {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]Published(nil), p.events...)
}

// Topics lists the topics published to, in order.
func (p *Publisher) Topics() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.Topic)
	}
	return out
}
