// Package offlinequeue implements the per-recipient durable offline
// list (§3 "OfflineEntry", §4.7): RPUSH on append, atomic
// read-then-delete on drain, 7-day TTL, oldest-first ordering.
package offlinequeue

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/meshim/imcore/internal/imerr"
	"github.com/meshim/imcore/internal/imtypes"
	"github.com/meshim/imcore/internal/metrics"
)

// Entry is one drained offline delivery.
type Entry struct {
	Payload      []byte
	IsCallInvite bool
	TimeoutSec   int
	TimestampMs  int64
}

// record is the JSON shape actually stored in Redis, since the
// ephemerality check in §4.7 needs the timestamp/timeout alongside
// the opaque payload bytes.
type record struct {
	Payload      []byte `json:"payload"`
	IsCallInvite bool   `json:"is_call_invite,omitempty"`
	TimeoutSec   int    `json:"timeout_sec,omitempty"`
	TimestampMs  int64  `json:"timestamp_ms"`
}

// Queue is the interface the fan-out handlers and the gateway session
// loop depend on.
type Queue interface {
	// Enqueue appends payload to extId's offline list (§4.5 step 7,
	// §4.6 step 5). Call invites pass isCallInvite=true so a drain
	// can still apply the ephemerality check even though, per
	// invariant 5, a call invite with no routable subscription is
	// never enqueued in the first place.
	Enqueue(ctx context.Context, extId imtypes.ExtId, payload []byte, isCallInvite bool, timeoutSec int, timestampMs int64) error
	// Drain atomically reads the full list (oldest-first) and
	// deletes the key (§4.7, §8 Invariant 6).
	Drain(ctx context.Context, extId imtypes.ExtId) ([]Entry, error)
	// Len reports the current list length. The ephemerality check in
	// §4.5/§4.6 does not use it; it asks the session registry instead.
	Len(ctx context.Context, extId imtypes.ExtId) (int64, error)
}

const keyPrefix = "imcore:offline:"

type redisQueue struct {
	rdb *redis.Client
	ttl time.Duration
}

// New constructs a Queue against a Redis-compatible client with the
// configured TTL (default 7 days per §3).
func New(rdb *redis.Client, ttl time.Duration) Queue {
	if ttl <= 0 {
		ttl = 7 * 24 * time.Hour
	}
	return &redisQueue{rdb: rdb, ttl: ttl}
}

func key(extId imtypes.ExtId) string {
	return keyPrefix + extId.String()
}

func (q *redisQueue) Enqueue(ctx context.Context, extId imtypes.ExtId, payload []byte, isCallInvite bool, timeoutSec int, timestampMs int64) error {
	rec := record{Payload: payload, IsCallInvite: isCallInvite, TimeoutSec: timeoutSec, TimestampMs: timestampMs}
	b, err := json.Marshal(rec)
	if err != nil {
		return imerr.Database(err, "offlinequeue: encode failed")
	}

	k := key(extId)
	pipe := q.rdb.TxPipeline()
	pipe.RPush(ctx, k, b)
	pipe.Expire(ctx, k, q.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return imerr.TransportTransient(err, "offlinequeue: enqueue failed")
	}
	metrics.OfflineEnqueued.Inc()
	return nil
}

func (q *redisQueue) Drain(ctx context.Context, extId imtypes.ExtId) ([]Entry, error) {
	k := key(extId)

	pipe := q.rdb.TxPipeline()
	rangeCmd := pipe.LRange(ctx, k, 0, -1)
	pipe.Del(ctx, k)
	if _, err := pipe.Exec(ctx); err != nil && err != redis.Nil {
		return nil, imerr.TransportTransient(err, "offlinequeue: drain failed")
	}

	raw, err := rangeCmd.Result()
	if err != nil && err != redis.Nil {
		return nil, imerr.TransportTransient(err, "offlinequeue: drain read failed")
	}

	entries := make([]Entry, 0, len(raw))
	for _, s := range raw {
		var rec record
		if err := json.Unmarshal([]byte(s), &rec); err != nil {
			continue
		}
		entries = append(entries, Entry{
			Payload:      rec.Payload,
			IsCallInvite: rec.IsCallInvite,
			TimeoutSec:   rec.TimeoutSec,
			TimestampMs:  rec.TimestampMs,
		})
	}
	metrics.OfflineDrained.Add(float64(len(entries)))
	return entries, nil
}

func (q *redisQueue) Len(ctx context.Context, extId imtypes.ExtId) (int64, error) {
	n, err := q.rdb.LLen(ctx, key(extId)).Result()
	if err != nil {
		return 0, imerr.TransportTransient(err, "offlinequeue: len failed")
	}
	return n, nil
}
