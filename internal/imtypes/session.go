package imtypes

import "github.com/google/uuid"

// Sink is the outbound side of a session: a producer enqueues an
// already-encoded frame; the session's writer task is the sole
// consumer. Enqueue must fail cleanly once the sink is closed rather
// than block or panic - see §5 "Outbound sinks".
type Sink interface {
	Enqueue(frame []byte) error
	Close()
}

// SessionHandle is the per-connection record tracked by the session
// map (§3). ChannelId disambiguates a stale session from a fresh one
// when the same user reconnects into the same device group.
type SessionHandle struct {
	ChannelId  uuid.UUID
	ExtId      ExtId
	DeviceType DeviceType
	Group      DeviceGroup
	Outbound   Sink
}

// NewChannelId allocates a fresh channel id for a new session.
func NewChannelId() uuid.UUID {
	return uuid.New()
}
