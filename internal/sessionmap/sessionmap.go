// Package sessionmap implements the in-memory, per-gateway-node
// session/device map (§3 "SessionMap", §4.2). It is hit on every
// message arrival and every connect, so it is sharded rather than
// guarded by one global mutex - the same sharding idiom the teacher
// uses for its topic table (server/hub.go's Hub.topics *sync.Map).
package sessionmap

import (
	"hash/fnv"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/meshim/imcore/internal/imtypes"
	"github.com/meshim/imcore/internal/metrics"
)

const shardCount = 64

type shard struct {
	mu sync.Mutex
	// users maps ExtId -> (DeviceGroup -> *SessionHandle)
	users map[imtypes.ExtId]map[imtypes.DeviceGroup]*imtypes.SessionHandle
}

// Map is the concurrent ExtId -> DeviceGroup -> SessionHandle container.
type Map struct {
	shards             [shardCount]*shard
	multiDeviceEnabled bool
	log                zerolog.Logger
}

// New constructs an empty Map. multiDeviceEnabled mirrors the
// node-wide flag from §3: when false, at most one SessionHandle may
// exist per ExtId across all device groups.
func New(multiDeviceEnabled bool, log zerolog.Logger) *Map {
	m := &Map{multiDeviceEnabled: multiDeviceEnabled, log: log}
	for i := range m.shards {
		m.shards[i] = &shard{users: make(map[imtypes.ExtId]map[imtypes.DeviceGroup]*imtypes.SessionHandle)}
	}
	return m
}

func (m *Map) shardFor(id imtypes.ExtId) *shard {
	h := fnv.New32a()
	var buf [8]byte
	b, _ := id.MarshalBinary()
	copy(buf[:], b)
	h.Write(buf[:])
	return m.shards[h.Sum32()%shardCount]
}

// EvictionEncoder is passed to Add by the gateway package so sessionmap
// stays codec-agnostic; it has no wire-format knowledge of its own.
type EvictionEncoder func(reason string) []byte

// Add allocates a new SessionHandle for (extId, deviceType), evicting
// any colliding handle per §4.2's ordered eviction rules. The eviction
// frame is enqueued on the evicted sink BEFORE it is closed, so the
// evicted client observes the reason (§4.2 "Ordering").
func (m *Map) Add(extId imtypes.ExtId, deviceType imtypes.DeviceType, outbound imtypes.Sink, encodeEviction EvictionEncoder) *imtypes.SessionHandle {
	group := imtypes.GroupOf(deviceType)
	sh := m.shardFor(extId)

	sh.mu.Lock()
	defer sh.mu.Unlock()

	groups, ok := sh.users[extId]
	if !ok {
		groups = make(map[imtypes.DeviceGroup]*imtypes.SessionHandle)
		sh.users[extId] = groups
	}

	// Step 2: same-group eviction.
	if old, exists := groups[group]; exists {
		m.evict(old, "same-device-type login", encodeEviction)
		metrics.SessionEvictions.WithLabelValues("same_group").Inc()
	}

	// Step 3: cross-group eviction when multi-device is disabled.
	if !m.multiDeviceEnabled {
		for g, old := range groups {
			if g == group {
				continue
			}
			m.evict(old, "signed in elsewhere", encodeEviction)
			metrics.SessionEvictions.WithLabelValues("cross_group").Inc()
			delete(groups, g)
		}
	}

	handle := &imtypes.SessionHandle{
		ChannelId:  imtypes.NewChannelId(),
		ExtId:      extId,
		DeviceType: deviceType,
		Group:      group,
		Outbound:   outbound,
	}
	groups[group] = handle
	metrics.LiveSessions.Inc()

	m.log.Info().
		Str("ext_id", extId.String()).
		Str("group", string(group)).
		Str("channel_id", handle.ChannelId.String()).
		Msg("sessionmap: added handle")

	return handle
}

func (m *Map) evict(old *imtypes.SessionHandle, reason string, encodeEviction EvictionEncoder) {
	if old == nil || old.Outbound == nil {
		return
	}
	if encodeEviction != nil {
		_ = old.Outbound.Enqueue(encodeEviction(reason))
	}
	old.Outbound.Close()
	metrics.LiveSessions.Dec()
}

// RemoveByChannelId removes the handle at (extId, group) iff its
// channel id matches; a mismatch means a newer session already took
// the slot and must not be disturbed (§3 Invariant 3, §8 Invariant 3).
func (m *Map) RemoveByChannelId(extId imtypes.ExtId, group imtypes.DeviceGroup, channelId uuid.UUID) bool {
	sh := m.shardFor(extId)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	groups, ok := sh.users[extId]
	if !ok {
		return false
	}
	handle, ok := groups[group]
	if !ok || handle.ChannelId != channelId {
		return false
	}
	delete(groups, group)
	if len(groups) == 0 {
		delete(sh.users, extId)
	}
	metrics.LiveSessions.Dec()
	return true
}

// SendToUser returns the outbound sink of every live session for
// extId, across all device groups - the device fan-in point for
// single-chat push (§4.2).
func (m *Map) SendToUser(extId imtypes.ExtId) []imtypes.Sink {
	sh := m.shardFor(extId)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	groups, ok := sh.users[extId]
	if !ok {
		return nil
	}
	sinks := make([]imtypes.Sink, 0, len(groups))
	for _, handle := range groups {
		sinks = append(sinks, handle.Outbound)
	}
	return sinks
}

// Count returns a cheap, non-linearizable approximation of the number
// of live sessions (§4.2).
func (m *Map) Count() int {
	total := 0
	for _, sh := range m.shards {
		sh.mu.Lock()
		for _, groups := range sh.users {
			total += len(groups)
		}
		sh.mu.Unlock()
	}
	return total
}
