// Package sessionregistry implements the shared session registry
// (§3 "SubscriptionRecord", §4.8): subscription_id <-> external_id,
// persisted with a freshness window, mirrored in-memory per node as
// a cache of the persistent store.
package sessionregistry

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/meshim/imcore/internal/imerr"
	"github.com/meshim/imcore/internal/imtypes"
)

// Registry is the interface the gateway session loop depends on, kept
// narrow so tests can fake it without a real database.
type Registry interface {
	// EnsureSubscription allocates a subscription id for extId iff
	// none exists within the 24h window, otherwise reuses the
	// existing one (§4.8).
	EnsureSubscription(ctx context.Context, extId imtypes.ExtId) (string, error)
	// Refresh resolves SPEC_FULL's Open-Question decision: update the
	// record's CreatedAt on every successful heartbeat, not only on
	// REGISTER, so a long-lived connected session never silently
	// stops routing at the 24h mark (§9).
	Refresh(ctx context.Context, extId imtypes.ExtId) error
	// Lookup resolves a subscription id back to its owning ExtId,
	// applying the 24h freshness predicate (§4.8, the
	// "GET /subscriptions/{sid}/user" REST surface in §6).
	Lookup(ctx context.Context, subscriptionId string) (imtypes.ExtId, error)
	// IsRoutable reports whether extId currently has a subscription
	// record within the 24h freshness window, without allocating one
	// if absent (§4.5 step 3/4, §4.6 step 5's "resolve subscriptions
	// as in §4.5").
	IsRoutable(ctx context.Context, extId imtypes.ExtId) (bool, error)
}

// SQLStore is the slice of internal/store.SubscriptionStore this
// package depends on. The subscriptions table is this core's
// authoritative record per §6, so the registry's canonical store is
// relational, not the shared key-value store identity/offlinequeue
// use - those two back genuinely ephemeral or cache-shaped data, while
// a subscription record is exactly the kind of durable row §6 lists
// alongside im_single_message and im_chat.
type SQLStore interface {
	ByUser(ctx context.Context, userId imtypes.ExtId) (imtypes.SubscriptionRecord, bool, error)
	BySubscriptionId(ctx context.Context, subscriptionId string) (imtypes.SubscriptionRecord, bool, error)
	Insert(ctx context.Context, rec imtypes.SubscriptionRecord) error
	TouchCreatedAt(ctx context.Context, subscriptionId string, now time.Time) error
}

// sqlRegistry is the production Registry. It keeps an in-memory
// mirror per node purely as a read cache in front of SQLStore - not a
// second source of truth - so a REGISTER or routability check on a
// warm node avoids a database read. Refresh always writes through to
// SQLStore.
type sqlRegistry struct {
	store SQLStore
	log   zerolog.Logger

	mu     sync.Mutex
	mirror map[imtypes.ExtId]imtypes.SubscriptionRecord
	bySid  map[string]imtypes.ExtId
}

// New constructs a Registry backed by the relational subscriptions table.
func New(store SQLStore, log zerolog.Logger) Registry {
	return &sqlRegistry{
		store:  store,
		log:    log,
		mirror: make(map[imtypes.ExtId]imtypes.SubscriptionRecord),
		bySid:  make(map[string]imtypes.ExtId),
	}
}

func (r *sqlRegistry) cacheGet(extId imtypes.ExtId) (imtypes.SubscriptionRecord, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.mirror[extId]
	return rec, ok
}

func (r *sqlRegistry) cachePut(rec imtypes.SubscriptionRecord) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.mirror[rec.UserId] = rec
	r.bySid[rec.SubscriptionId] = rec.UserId
}

func (r *sqlRegistry) EnsureSubscription(ctx context.Context, extId imtypes.ExtId) (string, error) {
	now := time.Now().UTC()

	if rec, ok := r.cacheGet(extId); ok && rec.IsRoutable(now) {
		return rec.SubscriptionId, nil
	}

	rec, found, err := r.store.ByUser(ctx, extId)
	if err != nil {
		return "", imerr.TransportTransient(err, "sessionregistry: lookup failed")
	}
	if found && rec.IsRoutable(now) {
		r.cachePut(rec)
		return rec.SubscriptionId, nil
	}

	rec = imtypes.SubscriptionRecord{
		SubscriptionId: uuid.New().String(),
		UserId:         extId,
		CreatedAt:      now,
	}
	if err := r.store.Insert(ctx, rec); err != nil {
		return "", imerr.TransportTransient(err, "sessionregistry: persist failed")
	}
	r.cachePut(rec)
	return rec.SubscriptionId, nil
}

func (r *sqlRegistry) Refresh(ctx context.Context, extId imtypes.ExtId) error {
	rec, ok := r.cacheGet(extId)
	if !ok {
		stored, found, err := r.store.ByUser(ctx, extId)
		if err != nil {
			return imerr.TransportTransient(err, "sessionregistry: lookup on refresh failed")
		}
		if found {
			rec = stored
		}
	}
	if rec.SubscriptionId == "" {
		sid, err := r.EnsureSubscription(ctx, extId)
		if err != nil {
			return err
		}
		rec = imtypes.SubscriptionRecord{SubscriptionId: sid, UserId: extId}
	}

	now := time.Now().UTC()
	if err := r.store.TouchCreatedAt(ctx, rec.SubscriptionId, now); err != nil {
		return imerr.TransportTransient(err, "sessionregistry: refresh failed")
	}
	rec.CreatedAt = now
	r.cachePut(rec)
	return nil
}

func (r *sqlRegistry) IsRoutable(ctx context.Context, extId imtypes.ExtId) (bool, error) {
	now := time.Now().UTC()
	if rec, ok := r.cacheGet(extId); ok {
		return rec.IsRoutable(now), nil
	}
	rec, found, err := r.store.ByUser(ctx, extId)
	if err != nil {
		return false, imerr.TransportTransient(err, "sessionregistry: routability lookup failed")
	}
	if !found {
		return false, nil
	}
	r.cachePut(rec)
	return rec.IsRoutable(now), nil
}

func (r *sqlRegistry) Lookup(ctx context.Context, subscriptionId string) (imtypes.ExtId, error) {
	r.mu.Lock()
	if extId, ok := r.bySid[subscriptionId]; ok {
		if rec, ok := r.mirror[extId]; ok && rec.IsRoutable(time.Now().UTC()) {
			r.mu.Unlock()
			return extId, nil
		}
	}
	r.mu.Unlock()

	rec, found, err := r.store.BySubscriptionId(ctx, subscriptionId)
	if err != nil {
		return 0, imerr.Database(err, "sessionregistry: lookup by subscription failed")
	}
	if !found {
		return 0, imerr.NotFound("sessionregistry: no record for subscription %s", subscriptionId)
	}
	if !rec.IsRoutable(time.Now().UTC()) {
		return 0, imerr.NotFound("sessionregistry: subscription %s is stale", subscriptionId)
	}
	r.cachePut(rec)
	return rec.UserId, nil
}
