package gateway

import (
	"errors"
	"sync"
	"time"
)

// wsSink is the outbound side of one session's websocket connection.
// It is the only implementation of imtypes.Sink in this core. Enqueue
// mirrors the teacher's Session.queueOut: a short timeout rather than
// an unbounded block, so one slow consumer cannot stall a producer
// (broker consumer, eviction path) indefinitely (§5 "Outbound sinks").
type wsSink struct {
	send      chan []byte
	closeOnce sync.Once
	closed    chan struct{}
}

func newWsSink(bufferSize int) *wsSink {
	return &wsSink{
		send:   make(chan []byte, bufferSize),
		closed: make(chan struct{}),
	}
}

// enqueueTimeout bounds how long Enqueue blocks against a full
// buffer before reporting the sink as unable to accept the frame.
const enqueueTimeout = 50 * time.Millisecond

var errSinkClosed = errors.New("gateway: sink closed")

func (s *wsSink) Enqueue(frame []byte) error {
	select {
	case <-s.closed:
		return errSinkClosed
	default:
	}

	select {
	case s.send <- frame:
		return nil
	case <-s.closed:
		return errSinkClosed
	case <-time.After(enqueueTimeout):
		return errors.New("gateway: sink enqueue timeout")
	}
}

func (s *wsSink) Close() {
	s.closeOnce.Do(func() {
		close(s.closed)
	})
}
