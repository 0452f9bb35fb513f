package broker

import (
	"context"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"

	"github.com/meshim/imcore/internal/gateway/codec"
	"github.com/meshim/imcore/internal/imtypes"
	"github.com/meshim/imcore/internal/metrics"
	"github.com/meshim/imcore/internal/sessionmap"
)

const (
	exchangeName = "IM-SERVER"
	errorQueue   = "im.error"
	// dispatchKey is the routing key every node's queue additionally
	// binds to, alongside its own broker_id. The publisher does not
	// know which node holds a given recipient's session, so every
	// node receives every envelope and filters locally via SessionMap
	// - exactly the "missing sinks are a normal condition, drop
	// silently" behavior §4.4's dispatch table already requires.
	dispatchKey = "im.dispatch"
)

// dispatchableCodes are the codes §4.4's table routes to SessionMap
// lookups; everything else is debug-logged with no action.
func isDispatchable(code codec.Code) bool {
	switch code {
	case codec.CodeSingle, codec.CodeGroup, codec.CodeVideo, codec.CodeGroupOp, codec.CodeMsgOp, codec.CodeForceLogout:
		return true
	default:
		return false
	}
}

// Consumer runs the per-node broker consumer loop (§4.4).
type Consumer struct {
	url      string
	brokerId string
	codec    codec.Codec
	sessions *sessionmap.Map
	log      zerolog.Logger

	mu   sync.Mutex
	conn *amqp.Connection
	ch   *amqp.Channel
}

// NewConsumer constructs a Consumer. brokerId names this node's
// exclusive queue (§4.4 step 2); a second instance started with the
// same brokerId fails fast as a Conflict/ResourceLocked error (§7),
// not a retry condition.
func NewConsumer(url, brokerId string, c codec.Codec, sessions *sessionmap.Map, log zerolog.Logger) *Consumer {
	return &Consumer{url: url, brokerId: brokerId, codec: c, sessions: sessions, log: log}
}

// Run declares the topology and consumes until ctx is cancelled,
// reconnecting with exponential backoff on transport failure (§4.4
// "Reconnection").
func (c *Consumer) Run(ctx context.Context) error {
	b := newReconnectBackoff()

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		err := c.runOnce(ctx)
		if err == nil {
			// ctx was cancelled cleanly.
			return nil
		}

		if isFatalTopologyError(err) {
			// §4.4 step 2 / §7 Conflict: node-id collision is a fatal
			// configuration error, not a retry condition.
			c.log.Error().Err(err).Str("broker_id", c.brokerId).Msg("broker: fatal topology error, not retrying")
			return err
		}

		delay := cappedNext(b)
		metrics.BrokerReconnects.Inc()
		c.log.Warn().Err(err).Dur("retry_in", delay).Msg("broker: consumer loop exited, reconnecting")

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// fatalTopologyErr marks a declaration failure as non-retryable.
type fatalTopologyErr struct{ cause error }

func (e *fatalTopologyErr) Error() string { return e.cause.Error() }
func (e *fatalTopologyErr) Unwrap() error { return e.cause }

func isFatalTopologyError(err error) bool {
	_, ok := err.(*fatalTopologyErr)
	return ok
}

func (c *Consumer) runOnce(ctx context.Context) error {
	conn, err := amqp.Dial(c.url)
	if err != nil {
		return err
	}
	defer conn.Close()

	ch, err := conn.Channel()
	if err != nil {
		return err
	}
	defer ch.Close()

	if err := c.declareTopology(ch); err != nil {
		return err
	}

	c.mu.Lock()
	c.conn, c.ch = conn, ch
	c.mu.Unlock()

	deliveries, err := ch.Consume(c.brokerId, "", false /* autoAck */, true /* exclusive */, false, false, nil)
	if err != nil {
		return err
	}

	connClosed := conn.NotifyClose(make(chan *amqp.Error, 1))

	for {
		select {
		case <-ctx.Done():
			return nil
		case amqpErr, ok := <-connClosed:
			if !ok {
				return nil
			}
			return amqpErr
		case d, ok := <-deliveries:
			if !ok {
				return errDeliveriesClosed
			}
			c.handleDelivery(ctx, ch, d)
		}
	}
}

var errDeliveriesClosed = &transportErr{"broker: delivery channel closed"}

type transportErr struct{ msg string }

func (e *transportErr) Error() string { return e.msg }

func (c *Consumer) declareTopology(ch *amqp.Channel) error {
	if err := ch.ExchangeDeclare(exchangeName, amqp.ExchangeDirect, true, false, false, false, nil); err != nil {
		return err
	}

	q, err := ch.QueueDeclare(c.brokerId, false /* durable */, true /* autoDelete */, true /* exclusive */, false, nil)
	if err != nil {
		// Exclusive declaration failing because another instance
		// already owns this node id is a fatal configuration error
		// (§4.4 step 2, §7 Conflict/ResourceLocked, §8 scenario S5).
		return &fatalTopologyErr{cause: err}
	}

	if err := ch.QueueBind(q.Name, q.Name, exchangeName, false, nil); err != nil {
		return &fatalTopologyErr{cause: err}
	}
	if err := ch.QueueBind(q.Name, dispatchKey, exchangeName, false, nil); err != nil {
		return &fatalTopologyErr{cause: err}
	}

	if _, err := ch.QueueDeclare(errorQueue, true /* durable */, false, false, false, nil); err != nil {
		return err
	}
	if err := ch.QueueBind(errorQueue, errorQueue, exchangeName, false, nil); err != nil {
		return err
	}

	return nil
}

// handleDelivery implements §4.4's per-delivery dispatch and
// acknowledgement policy.
func (c *Consumer) handleDelivery(ctx context.Context, ch *amqp.Channel, d amqp.Delivery) {
	env, err := DecodeEnvelope(d.Body)
	if err != nil {
		c.routeToErrorQueue(ch, d.Body)
		_ = d.Nack(false, false)
		return
	}

	frame := env.toFrame()

	if !isDispatchable(codec.Code(env.Code)) {
		c.log.Debug().Int32("code", env.Code).Msg("broker: unrecognized code, no action")
		_ = d.Ack(false)
		return
	}

	encoded, err := c.codec.Encode(frame)
	if err != nil {
		c.routeToErrorQueue(ch, d.Body)
		_ = d.Nack(false, false)
		return
	}

	for _, idStr := range env.Ids {
		extId, err := imtypes.ParseExtId(idStr)
		if err != nil {
			continue
		}
		sinks := c.sessions.SendToUser(extId)
		for _, sink := range sinks {
			if sink == nil {
				continue
			}
			if err := sink.Enqueue(encoded); err != nil {
				// Missing/closed sinks are a normal condition - drop
				// silently (§4.4 dispatch table).
				metrics.DeliveryDropped.WithLabelValues("sink_unavailable").Inc()
			}
		}
	}

	_ = d.Ack(false)
}

func (c *Consumer) routeToErrorQueue(ch *amqp.Channel, body []byte) {
	err := ch.Publish(exchangeName, errorQueue, false, false, amqp.Publishing{
		ContentType: "application/json",
		Body:        body,
	})
	if err != nil {
		c.log.Error().Err(err).Msg("broker: failed to route delivery to error queue")
	}
}

// Close releases the current connection/channel, if any.
func (c *Consumer) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.ch != nil {
		_ = c.ch.Close()
	}
	if c.conn != nil {
		_ = c.conn.Close()
	}
}
