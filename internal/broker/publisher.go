package broker

import (
	"context"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"

	"github.com/meshim/imcore/internal/imerr"
	"github.com/meshim/imcore/internal/metrics"
)

// Publisher is the long-lived AMQP publisher the fan-out API process
// holds (§5 "one long-lived publisher in the API process"). A single
// Publisher is shared by every request handler; reconnection must not
// block in-flight publishes indefinitely (§5).
type Publisher interface {
	// Publish sends env to the dispatch routing key with QoS-1-like
	// delivery semantics (persistent, mandatory=false - a missing
	// queue is not a publish error, per §4.4's node-agnostic fanout).
	Publish(ctx context.Context, env Envelope) error
	Close()
}

type amqpPublisher struct {
	url string
	log zerolog.Logger

	mu   sync.Mutex
	conn *amqp.Connection
	ch   *amqp.Channel
}

// NewPublisher dials the broker and declares the exchange it will
// publish to (§4.4 step 1, shared with the consumer side).
func NewPublisher(url string, log zerolog.Logger) (Publisher, error) {
	p := &amqpPublisher{url: url, log: log}
	if err := p.connect(); err != nil {
		return nil, imerr.TransportTransient(err, "broker: initial publisher connect failed")
	}
	return p, nil
}

func (p *amqpPublisher) connect() error {
	conn, err := amqp.Dial(p.url)
	if err != nil {
		return err
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return err
	}
	if err := ch.ExchangeDeclare(exchangeName, amqp.ExchangeDirect, true, false, false, false, nil); err != nil {
		ch.Close()
		conn.Close()
		return err
	}

	p.mu.Lock()
	p.conn, p.ch = conn, ch
	p.mu.Unlock()
	return nil
}

func (p *amqpPublisher) Publish(ctx context.Context, env Envelope) error {
	body, err := env.Encode()
	if err != nil {
		return imerr.Database(err, "broker: encode envelope failed")
	}

	p.mu.Lock()
	ch := p.ch
	p.mu.Unlock()

	if ch == nil {
		if err := p.connect(); err != nil {
			return imerr.TransportTransient(err, "broker: publisher reconnect failed")
		}
		p.mu.Lock()
		ch = p.ch
		p.mu.Unlock()
	}

	err = ch.PublishWithContext(ctx, exchangeName, dispatchKey, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Body:         body,
	})
	if err != nil {
		// Transparent single-shot reconnect-and-retry; a second failure
		// is returned as a transient error, which callers log rather
		// than surface per §4.5/§4.6's "publish failures are logged,
		// not surfaced" rule.
		if reErr := p.connect(); reErr == nil {
			p.mu.Lock()
			ch = p.ch
			p.mu.Unlock()
			err = ch.PublishWithContext(ctx, exchangeName, dispatchKey, false, false, amqp.Publishing{
				ContentType:  "application/json",
				DeliveryMode: amqp.Persistent,
				Body:         body,
			})
		}
	}
	if err != nil {
		metrics.PublishFailures.Inc()
		return imerr.TransportTransient(err, "broker: publish failed")
	}
	return nil
}

func (p *amqpPublisher) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.ch != nil {
		_ = p.ch.Close()
	}
	if p.conn != nil {
		_ = p.conn.Close()
	}
}
