// Package identity implements the Identity Resolver (§4.1): given any
// of {external id, username, phone, legacy db id}, returns the
// canonical ExtId, with a 1h positive-only cache in the shared
// key-value store.
package identity

import (
	"context"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/meshim/imcore/internal/imerr"
	"github.com/meshim/imcore/internal/imtypes"
)

// Store is the external directory the resolver falls back to on a
// cache miss - the user/account CRUD this core treats as an external
// collaborator (§1 Non-goals). Kept narrow so tests can fake it.
type Store interface {
	LookupByExtId(ctx context.Context, id imtypes.ExtId) (imtypes.ExtId, bool, error)
	LookupByUsername(ctx context.Context, username string) (imtypes.ExtId, bool, error)
	LookupByPhone(ctx context.Context, phone string) (imtypes.ExtId, bool, error)
	LookupByLegacyId(ctx context.Context, legacyId int64) (imtypes.ExtId, bool, error)
}

// Resolver resolves arbitrary input forms to a canonical ExtId.
type Resolver struct {
	store Store
	rdb   *redis.Client
	ttl   time.Duration
}

// New constructs a Resolver. ttl is the positive-hit cache window
// (default 1h per §4.1, §5).
func New(store Store, rdb *redis.Client, ttl time.Duration) *Resolver {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &Resolver{store: store, rdb: rdb, ttl: ttl}
}

const keyPrefix = "imcore:idres:"

// Resolve implements §4.1's lookup order: (a) numeric -> external id,
// (b) username, (c) phone, (d) legacy database integer id. Negative
// results are never cached (§4.1).
func (r *Resolver) Resolve(ctx context.Context, input string) (imtypes.ExtId, error) {
	if input == "" {
		return 0, imerr.InvalidInput("identity: empty input")
	}

	cacheKey := keyPrefix + input
	if r.rdb != nil {
		if cached, err := r.rdb.Get(ctx, cacheKey).Result(); err == nil && cached != "" {
			if id, parseErr := imtypes.ParseExtId(cached); parseErr == nil {
				return id, nil
			}
		}
	}

	id, found, err := r.resolveUncached(ctx, input)
	if err != nil {
		return 0, err
	}
	if !found {
		return 0, imerr.NotFound("identity: no match for %q", input)
	}

	if r.rdb != nil {
		_ = r.rdb.Set(ctx, cacheKey, id.String(), r.ttl).Err()
	}
	return id, nil
}

func (r *Resolver) resolveUncached(ctx context.Context, input string) (imtypes.ExtId, bool, error) {
	if n, err := strconv.ParseUint(input, 10, 64); err == nil {
		if id, found, err := r.store.LookupByExtId(ctx, imtypes.ExtId(n)); err != nil {
			return 0, false, imerr.Database(err, "identity: lookup by ext id failed")
		} else if found {
			return id, true, nil
		}
	}

	if id, found, err := r.store.LookupByUsername(ctx, input); err != nil {
		return 0, false, imerr.Database(err, "identity: lookup by username failed")
	} else if found {
		return id, true, nil
	}

	if id, found, err := r.store.LookupByPhone(ctx, input); err != nil {
		return 0, false, imerr.Database(err, "identity: lookup by phone failed")
	} else if found {
		return id, true, nil
	}

	if legacyId, err := strconv.ParseInt(input, 10, 64); err == nil {
		if id, found, err := r.store.LookupByLegacyId(ctx, legacyId); err != nil {
			return 0, false, imerr.Database(err, "identity: lookup by legacy id failed")
		} else if found {
			return id, true, nil
		}
	}

	return 0, false, nil
}

// Invalidate drops the cached mapping for input, used when a
// user-profile mutation occurs (§4.1 "cache invalidation fires on
// user-profile mutation").
func (r *Resolver) Invalidate(ctx context.Context, input string) error {
	if r.rdb == nil {
		return nil
	}
	return r.rdb.Del(ctx, keyPrefix+input).Err()
}

// ResolveOpenId implements §4.1's bypass: when the token already
// carries is_open_id=true, the numeric claim is the ExtId directly,
// no database round trip.
func ResolveOpenId(claimedId imtypes.ExtId) imtypes.ExtId {
	return claimedId
}
