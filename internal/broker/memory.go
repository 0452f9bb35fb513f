package broker

import (
	"context"
	"sync"
)

// InMemoryPublisher records published envelopes without touching a
// real broker, for fan-out handler tests.
type InMemoryPublisher struct {
	mu        sync.Mutex
	Published []Envelope
	FailNext  bool
}

func NewInMemoryPublisher() *InMemoryPublisher {
	return &InMemoryPublisher{}
}

func (p *InMemoryPublisher) Publish(ctx context.Context, env Envelope) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.FailNext {
		p.FailNext = false
		return errPublishFailed
	}
	p.Published = append(p.Published, env)
	return nil
}

func (p *InMemoryPublisher) Close() {}

var errPublishFailed = &transportErr{"broker: simulated publish failure"}
