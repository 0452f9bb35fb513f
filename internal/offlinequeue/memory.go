package offlinequeue

import (
	"context"
	"sync"

	"github.com/meshim/imcore/internal/imtypes"
)

// InMemory is a Queue backed by a plain slice-per-user map, used in
// tests that want to exercise §4.5-§4.7's algorithms without Redis.
type InMemory struct {
	mu   sync.Mutex
	data map[imtypes.ExtId][]Entry
}

func NewInMemory() *InMemory {
	return &InMemory{data: make(map[imtypes.ExtId][]Entry)}
}

func (m *InMemory) Enqueue(ctx context.Context, extId imtypes.ExtId, payload []byte, isCallInvite bool, timeoutSec int, timestampMs int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[extId] = append(m.data[extId], Entry{
		Payload:      payload,
		IsCallInvite: isCallInvite,
		TimeoutSec:   timeoutSec,
		TimestampMs:  timestampMs,
	})
	return nil
}

func (m *InMemory) Drain(ctx context.Context, extId imtypes.ExtId) ([]Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	entries := m.data[extId]
	delete(m.data, extId)
	return entries, nil
}

func (m *InMemory) Len(ctx context.Context, extId imtypes.ExtId) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return int64(len(m.data[extId])), nil
}
