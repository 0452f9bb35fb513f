// Package gateway implements the per-connection session loop (§4.3):
// Handshaking -> Registered -> Closing, one reader task and one
// writer task per connection, cooperating the way the teacher's own
// Session does (server/session.go: buffered send channel, dispatch
// switch, cleanUp on exit) but driving the spec's REGISTER/HEART_BEAT
// state machine instead of tinode's topic subscription protocol.
package gateway

import (
	"context"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/meshim/imcore/internal/authtoken"
	"github.com/meshim/imcore/internal/gateway/codec"
	"github.com/meshim/imcore/internal/imerr"
	"github.com/meshim/imcore/internal/imtypes"
	"github.com/meshim/imcore/internal/offlinequeue"
	"github.com/meshim/imcore/internal/sessionmap"
	"github.com/meshim/imcore/internal/sessionregistry"
)

// State is the session's position in the §4.3 state machine.
type State int

const (
	StateHandshaking State = iota
	StateRegistered
	StateClosing
)

// TokenVerifier authenticates the bearer token carried in a REGISTER frame.
type TokenVerifier interface {
	Verify(token []byte) (authtoken.Claims, error)
}

// Deps bundles the session loop's collaborators.
type Deps struct {
	Sessions         *sessionmap.Map
	Registry         sessionregistry.Registry
	Offline          offlinequeue.Queue
	Verifier         TokenVerifier
	Codec            codec.Codec
	Log              zerolog.Logger
	HandshakeTimeout time.Duration
	HeartBeatTimeout time.Duration
	SendBuffer       int
}

// Session is one gateway connection.
type Session struct {
	deps Deps
	conn *websocket.Conn
	sink *wsSink

	mu    sync.Mutex
	state State

	extId      imtypes.ExtId
	deviceType imtypes.DeviceType
	group      imtypes.DeviceGroup
	handle     *imtypes.SessionHandle

	handshakeTimer *time.Timer
	watchdog       *time.Timer

	remoteAddr string
}

// NewSession wraps an accepted websocket connection.
func NewSession(conn *websocket.Conn, deps Deps) *Session {
	return &Session{
		deps:       deps,
		conn:       conn,
		sink:       newWsSink(deps.SendBuffer),
		state:      StateHandshaking,
		remoteAddr: conn.RemoteAddr().String(),
	}
}

// Run drives the session until the connection terminates. It starts
// the writer task, runs the reader loop inline, and on exit tears
// down both directions and removes the handle from the session map
// (§4.3 "Either task's exit terminates the other").
func (s *Session) Run(ctx context.Context) {
	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		s.writeLoop()
		// Closing the transport unblocks the reader's ReadMessage, so a
		// writer exit (sink closed by eviction, or a write error) also
		// ends the reader.
		_ = s.conn.Close()
	}()

	s.armHandshakeTimer()
	s.readLoop(ctx)

	s.sink.Close()
	<-writerDone

	s.cleanup()
}

func (s *Session) armHandshakeTimer() {
	s.handshakeTimer = time.AfterFunc(s.deps.HandshakeTimeout, func() {
		s.mu.Lock()
		handshaking := s.state == StateHandshaking
		s.mu.Unlock()
		if handshaking {
			s.deps.Log.Warn().Str("remote", s.remoteAddr).Msg("gateway: handshake timeout")
			s.sink.Close()
			_ = s.conn.Close()
		}
	})
}

func (s *Session) armWatchdog() {
	if s.watchdog != nil {
		s.watchdog.Stop()
	}
	s.watchdog = time.AfterFunc(s.deps.HeartBeatTimeout, func() {
		s.deps.Log.Warn().Str("ext_id", s.extId.String()).Msg("gateway: heartbeat watchdog fired")
		s.sink.Close()
		_ = s.conn.Close()
	})
}

// writeLoop is the single writer task: it is the sole consumer of the
// sink's channel and the sole caller of conn.WriteMessage. Writer
// failure implies transport death - per §4.3 it must not attempt a
// close frame after a write error.
func (s *Session) writeLoop() {
	msgType := s.deps.Codec.WebsocketMessageType()
	for {
		select {
		case frame, ok := <-s.sink.send:
			if !ok {
				return
			}
			if err := s.conn.WriteMessage(msgType, frame); err != nil {
				return
			}
		case <-s.sink.closed:
			// Drain whatever is already queued, then stop.
			for {
				select {
				case frame := <-s.sink.send:
					_ = s.conn.WriteMessage(msgType, frame)
				default:
					return
				}
			}
		}
	}
}

// readLoop is the single reader task.
func (s *Session) readLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		_, raw, err := s.conn.ReadMessage()
		if err != nil {
			return
		}

		frame, err := s.deps.Codec.Decode(raw)
		if err != nil {
			s.deps.Log.Debug().Err(err).Msg("gateway: malformed frame")
			continue
		}

		s.dispatch(ctx, frame)

		s.mu.Lock()
		closing := s.state == StateClosing
		s.mu.Unlock()
		if closing {
			return
		}
	}
}

func (s *Session) encodeEviction(reason string) []byte {
	f := codec.Frame{Code: codec.CodeForceLogout, Message: reason, Timestamp: time.Now().UnixMilli()}
	b, _ := s.deps.Codec.Encode(f)
	return b
}

func (s *Session) send(f codec.Frame) {
	b, err := s.deps.Codec.Encode(f)
	if err != nil {
		s.deps.Log.Error().Err(err).Msg("gateway: encode failed")
		return
	}
	_ = s.sink.Enqueue(b)
}

func (s *Session) dispatch(ctx context.Context, f codec.Frame) {
	s.mu.Lock()
	state := s.state
	s.mu.Unlock()

	switch state {
	case StateHandshaking:
		if f.Code != codec.CodeRegister {
			// §4.3: only REGISTER is permitted while handshaking.
			return
		}
		s.handleRegister(ctx, f)

	case StateRegistered:
		switch f.Code {
		case codec.CodeRegister:
			s.handleRegister(ctx, f)
		case codec.CodeHeartBeat:
			s.armWatchdog()
			s.send(codec.Frame{Code: codec.CodeHeartBeatSuccess, Timestamp: time.Now().UnixMilli()})
			if err := s.deps.Registry.Refresh(ctx, s.extId); err != nil {
				s.deps.Log.Warn().Err(err).Msg("gateway: registry refresh failed")
			}
		default:
			s.deps.Log.Debug().Int32("code", int32(f.Code)).Msg("gateway: dropped unsupported code")
		}

	case StateClosing:
		// terminal, ignore further input.
	}
}

func (s *Session) handleRegister(ctx context.Context, f codec.Frame) {
	claims, err := s.deps.Verifier.Verify([]byte(f.Token))
	if err != nil {
		s.send(codec.Frame{Code: codec.CodeError, Message: imerr.KindOf(err).String(), Timestamp: time.Now().UnixMilli()})
		s.mu.Lock()
		s.state = StateClosing
		s.mu.Unlock()
		s.sink.Close()
		_ = s.conn.Close()
		return
	}

	s.mu.Lock()
	already := s.state == StateRegistered && s.extId == claims.ExtId
	s.mu.Unlock()

	if already {
		// Idempotent REGISTER repeat (§4.3, §8 Invariant 8): refresh
		// the registry TTL, do not call Add again.
		if err := s.deps.Registry.Refresh(ctx, s.extId); err != nil {
			s.deps.Log.Warn().Err(err).Msg("gateway: registry refresh on repeat REGISTER failed")
		}
		s.send(codec.Frame{Code: codec.CodeRegisterSuccess, Timestamp: time.Now().UnixMilli()})
		return
	}

	deviceType := imtypes.DeviceType(f.DeviceType)
	handle := s.deps.Sessions.Add(claims.ExtId, deviceType, s.sink, s.encodeEviction)

	s.mu.Lock()
	s.extId = claims.ExtId
	s.deviceType = deviceType
	s.group = handle.Group
	s.handle = handle
	s.state = StateRegistered
	s.mu.Unlock()

	if s.handshakeTimer != nil {
		s.handshakeTimer.Stop()
	}

	subId, err := s.deps.Registry.EnsureSubscription(ctx, claims.ExtId)
	if err != nil {
		s.deps.Log.Error().Err(err).Msg("gateway: session registry persist failed")
	}

	s.send(codec.Frame{Code: codec.CodeRegisterSuccess, Timestamp: time.Now().UnixMilli(), RequestId: subId})

	s.armWatchdog()

	s.drainOffline(ctx)
}

// drainOffline implements §4.7: atomically read-then-delete the
// offline list, dropping expired call invites, delivering the rest in
// append order.
func (s *Session) drainOffline(ctx context.Context) {
	entries, err := s.deps.Offline.Drain(ctx, s.extId)
	if err != nil {
		s.deps.Log.Error().Err(err).Msg("gateway: offline drain failed")
		return
	}
	now := time.Now()
	for _, e := range entries {
		if e.IsCallInvite {
			timeoutSec := e.TimeoutSec
			if timeoutSec == 0 {
				timeoutSec = imtypes.DefaultCallInviteTimeoutSec
			}
			if e.TimestampMs == 0 {
				continue
			}
			expireAt := time.UnixMilli(e.TimestampMs + int64(timeoutSec)*1000)
			if now.After(expireAt) {
				continue
			}
		}
		_ = s.sink.Enqueue(e.Payload)
	}
}

func (s *Session) cleanup() {
	if s.watchdog != nil {
		s.watchdog.Stop()
	}
	if s.handshakeTimer != nil {
		s.handshakeTimer.Stop()
	}

	s.mu.Lock()
	state := s.state
	handle := s.handle
	s.state = StateClosing
	s.mu.Unlock()

	if state == StateRegistered && handle != nil {
		s.deps.Sessions.RemoveByChannelId(s.extId, s.group, handle.ChannelId)
	}
}
