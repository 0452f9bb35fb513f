package broker

import (
	"context"
	"testing"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/meshim/imcore/internal/gateway/codec"
	"github.com/meshim/imcore/internal/imtypes"
	"github.com/meshim/imcore/internal/sessionmap"
)

// fakeAcknowledger satisfies amqp.Acknowledger without a live connection.
type fakeAcknowledger struct {
	acked  bool
	nacked bool
}

func (f *fakeAcknowledger) Ack(tag uint64, multiple bool) error {
	f.acked = true
	return nil
}

func (f *fakeAcknowledger) Nack(tag uint64, multiple bool, requeue bool) error {
	f.nacked = true
	return nil
}

func (f *fakeAcknowledger) Reject(tag uint64, requeue bool) error {
	f.nacked = true
	return nil
}

type fakeSink struct {
	frames [][]byte
	closed bool
}

func (s *fakeSink) Enqueue(frame []byte) error {
	s.frames = append(s.frames, frame)
	return nil
}

func (s *fakeSink) Close() { s.closed = true }

func deliveryFor(t *testing.T, env Envelope) (amqp.Delivery, *fakeAcknowledger) {
	t.Helper()
	body, err := env.Encode()
	require.NoError(t, err)
	ack := &fakeAcknowledger{}
	return amqp.Delivery{Acknowledger: ack, Body: body}, ack
}

// TestHandleDelivery_RoundTripsPublisherEncodedIdToSessionMap exercises the
// producer/consumer id-encoding contract end to end: the same ExtId.String()
// form the fan-out API's publisher emits into Envelope.Ids must be decodable
// by the consumer well enough to find the registered session's sink.
func TestHandleDelivery_RoundTripsPublisherEncodedIdToSessionMap(t *testing.T) {
	sessions := sessionmap.New(true, zerolog.Nop())
	sink := &fakeSink{}
	extId := imtypes.ExtId(42)
	sessions.Add(extId, imtypes.DeviceWeb, sink, nil)

	c := &Consumer{codec: codec.JSONCodec{}, sessions: sessions, log: zerolog.Nop()}

	env := Envelope{
		Code: int32(codec.CodeSingle),
		Data: imtypes.ChatMessage{MessageId: "m1", FromUserId: "1", ToUserId: extId.String(), Message: "hi"},
		Ids:  []string{extId.String()},
	}
	d, ack := deliveryFor(t, env)

	c.handleDelivery(context.Background(), nil, d)

	require.True(t, ack.acked)
	require.False(t, ack.nacked)
	require.Len(t, sink.frames, 1)
}

func TestHandleDelivery_UnknownIdIsSkippedNotPanicked(t *testing.T) {
	sessions := sessionmap.New(true, zerolog.Nop())
	c := &Consumer{codec: codec.JSONCodec{}, sessions: sessions, log: zerolog.Nop()}

	env := Envelope{
		Code: int32(codec.CodeSingle),
		Data: imtypes.ChatMessage{MessageId: "m1"},
		Ids:  []string{"not-a-valid-extid"},
	}
	d, ack := deliveryFor(t, env)

	c.handleDelivery(context.Background(), nil, d)

	require.True(t, ack.acked)
}

func TestHandleDelivery_NonDispatchableCodeIsAckedWithNoAction(t *testing.T) {
	sessions := sessionmap.New(true, zerolog.Nop())
	sink := &fakeSink{}
	extId := imtypes.ExtId(7)
	sessions.Add(extId, imtypes.DeviceWeb, sink, nil)

	c := &Consumer{codec: codec.JSONCodec{}, sessions: sessions, log: zerolog.Nop()}

	env := Envelope{Code: int32(codec.CodeHeartBeat), Ids: []string{extId.String()}}
	d, ack := deliveryFor(t, env)

	c.handleDelivery(context.Background(), nil, d)

	require.True(t, ack.acked)
	require.Empty(t, sink.frames)
}
