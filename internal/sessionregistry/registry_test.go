package sessionregistry

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meshim/imcore/internal/imerr"
	"github.com/meshim/imcore/internal/imtypes"
)

// fakeSQLStore is an in-memory SQLStore for exercising sqlRegistry
// without a real database.
type fakeSQLStore struct {
	mu      sync.Mutex
	byUser  map[imtypes.ExtId]imtypes.SubscriptionRecord
	bySid   map[string]imtypes.SubscriptionRecord
	inserts int
}

func newFakeSQLStore() *fakeSQLStore {
	return &fakeSQLStore{
		byUser: make(map[imtypes.ExtId]imtypes.SubscriptionRecord),
		bySid:  make(map[string]imtypes.SubscriptionRecord),
	}
}

func (f *fakeSQLStore) ByUser(ctx context.Context, userId imtypes.ExtId) (imtypes.SubscriptionRecord, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	rec, ok := f.byUser[userId]
	return rec, ok, nil
}

func (f *fakeSQLStore) BySubscriptionId(ctx context.Context, subscriptionId string) (imtypes.SubscriptionRecord, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	rec, ok := f.bySid[subscriptionId]
	return rec, ok, nil
}

func (f *fakeSQLStore) Insert(ctx context.Context, rec imtypes.SubscriptionRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.inserts++
	f.byUser[rec.UserId] = rec
	f.bySid[rec.SubscriptionId] = rec
	return nil
}

func (f *fakeSQLStore) TouchCreatedAt(ctx context.Context, subscriptionId string, now time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	rec, ok := f.bySid[subscriptionId]
	if !ok {
		return imerr.NotFound("fake: no subscription %s", subscriptionId)
	}
	rec.CreatedAt = now
	f.bySid[subscriptionId] = rec
	f.byUser[rec.UserId] = rec
	return nil
}

func TestEnsureSubscription_ReusesExistingWithinWindow(t *testing.T) {
	store := newFakeSQLStore()
	reg := New(store, zerolog.Nop())
	ctx := context.Background()

	sid1, err := reg.EnsureSubscription(ctx, imtypes.ExtId(1))
	require.NoError(t, err)

	sid2, err := reg.EnsureSubscription(ctx, imtypes.ExtId(1))
	require.NoError(t, err)

	assert.Equal(t, sid1, sid2)
	assert.Equal(t, 1, store.inserts)
}

func TestEnsureSubscription_AllocatesNewWhenStale(t *testing.T) {
	store := newFakeSQLStore()
	stale := imtypes.SubscriptionRecord{
		SubscriptionId: "stale-sid",
		UserId:         imtypes.ExtId(2),
		CreatedAt:      time.Now().UTC().Add(-48 * time.Hour),
	}
	store.byUser[stale.UserId] = stale
	store.bySid[stale.SubscriptionId] = stale

	reg := New(store, zerolog.Nop())
	sid, err := reg.EnsureSubscription(context.Background(), imtypes.ExtId(2))
	require.NoError(t, err)
	assert.NotEqual(t, "stale-sid", sid)
}

func TestIsRoutable_FalseWhenNoRecord(t *testing.T) {
	reg := New(newFakeSQLStore(), zerolog.Nop())
	routable, err := reg.IsRoutable(context.Background(), imtypes.ExtId(99))
	require.NoError(t, err)
	assert.False(t, routable)
}

func TestIsRoutable_TrueWithinWindow(t *testing.T) {
	store := newFakeSQLStore()
	reg := New(store, zerolog.Nop())
	ctx := context.Background()

	_, err := reg.EnsureSubscription(ctx, imtypes.ExtId(3))
	require.NoError(t, err)

	routable, err := reg.IsRoutable(ctx, imtypes.ExtId(3))
	require.NoError(t, err)
	assert.True(t, routable)
}

func TestLookup_ResolvesSubscriptionToUser(t *testing.T) {
	store := newFakeSQLStore()
	reg := New(store, zerolog.Nop())
	ctx := context.Background()

	sid, err := reg.EnsureSubscription(ctx, imtypes.ExtId(4))
	require.NoError(t, err)

	extId, err := reg.Lookup(ctx, sid)
	require.NoError(t, err)
	assert.Equal(t, imtypes.ExtId(4), extId)
}

func TestLookup_StaleRecordReturnsNotFound(t *testing.T) {
	store := newFakeSQLStore()
	stale := imtypes.SubscriptionRecord{
		SubscriptionId: "stale-sid-2",
		UserId:         imtypes.ExtId(5),
		CreatedAt:      time.Now().UTC().Add(-48 * time.Hour),
	}
	store.byUser[stale.UserId] = stale
	store.bySid[stale.SubscriptionId] = stale

	reg := New(store, zerolog.Nop())
	_, err := reg.Lookup(context.Background(), "stale-sid-2")
	require.Error(t, err)
	assert.True(t, imerr.Is(err, imerr.KindNotFound))
}

func TestRefresh_TouchesCreatedAt(t *testing.T) {
	store := newFakeSQLStore()
	reg := New(store, zerolog.Nop())
	ctx := context.Background()

	sid, err := reg.EnsureSubscription(ctx, imtypes.ExtId(6))
	require.NoError(t, err)

	before := store.bySid[sid].CreatedAt
	time.Sleep(time.Millisecond)
	require.NoError(t, reg.Refresh(ctx, imtypes.ExtId(6)))

	after := store.bySid[sid].CreatedAt
	assert.True(t, after.After(before))
}
