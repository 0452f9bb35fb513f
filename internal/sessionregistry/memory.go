package sessionregistry

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/meshim/imcore/internal/imerr"
	"github.com/meshim/imcore/internal/imtypes"
)

// InMemory is a Registry backed by a plain map, used by the fan-out
// handler tests that need a Registry without a real database.
type InMemory struct {
	mu      sync.Mutex
	byUser  map[imtypes.ExtId]imtypes.SubscriptionRecord
	bySid   map[string]imtypes.ExtId
}

func NewInMemory() *InMemory {
	return &InMemory{
		byUser: make(map[imtypes.ExtId]imtypes.SubscriptionRecord),
		bySid:  make(map[string]imtypes.ExtId),
	}
}

func (m *InMemory) EnsureSubscription(ctx context.Context, extId imtypes.ExtId) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now().UTC()
	if rec, ok := m.byUser[extId]; ok && rec.IsRoutable(now) {
		return rec.SubscriptionId, nil
	}
	rec := imtypes.SubscriptionRecord{SubscriptionId: uuid.New().String(), UserId: extId, CreatedAt: now}
	m.byUser[extId] = rec
	m.bySid[rec.SubscriptionId] = extId
	return rec.SubscriptionId, nil
}

func (m *InMemory) Refresh(ctx context.Context, extId imtypes.ExtId) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.byUser[extId]
	if !ok {
		return imerr.NotFound("sessionregistry: no record for %s", extId.String())
	}
	rec.CreatedAt = time.Now().UTC()
	m.byUser[extId] = rec
	return nil
}

func (m *InMemory) IsRoutable(ctx context.Context, extId imtypes.ExtId) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.byUser[extId]
	if !ok {
		return false, nil
	}
	return rec.IsRoutable(time.Now().UTC()), nil
}

func (m *InMemory) Lookup(ctx context.Context, subscriptionId string) (imtypes.ExtId, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	extId, ok := m.bySid[subscriptionId]
	if !ok {
		return 0, imerr.NotFound("sessionregistry: no record for subscription %s", subscriptionId)
	}
	rec := m.byUser[extId]
	if !rec.IsRoutable(time.Now().UTC()) {
		return 0, imerr.NotFound("sessionregistry: subscription %s is stale", subscriptionId)
	}
	return extId, nil
}
