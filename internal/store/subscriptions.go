package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/meshim/imcore/internal/imerr"
	"github.com/meshim/imcore/internal/imtypes"
)

// SubscriptionStore owns the subscriptions table (§6 "subscriptions:
// subscription_id PK, user_id, created_at"), the canonical store
// backing internal/sessionregistry. A Redis-backed mirror would put
// the authoritative mapping in a store this core's own schema doesn't
// list, so the relational store is the source of truth here; the
// session registry keeps a plain in-memory cache on top of it.
type SubscriptionStore struct {
	db *sqlx.DB
}

func NewSubscriptionStore(db *sqlx.DB) *SubscriptionStore {
	return &SubscriptionStore{db: db}
}

// ByUser returns the most recent subscription record for a user, if any.
func (s *SubscriptionStore) ByUser(ctx context.Context, userId imtypes.ExtId) (imtypes.SubscriptionRecord, bool, error) {
	var rec imtypes.SubscriptionRecord
	err := s.db.GetContext(ctx, &rec, `
		SELECT subscription_id, user_id, created_at FROM subscriptions
		WHERE user_id = ? ORDER BY created_at DESC LIMIT 1`, uint64(userId))
	if errors.Is(err, sql.ErrNoRows) {
		return imtypes.SubscriptionRecord{}, false, nil
	}
	if err != nil {
		return imtypes.SubscriptionRecord{}, false, imerr.Database(err, "store: lookup subscription by user failed")
	}
	return rec, true, nil
}

// BySubscriptionId resolves a subscription id back to its record.
func (s *SubscriptionStore) BySubscriptionId(ctx context.Context, subscriptionId string) (imtypes.SubscriptionRecord, bool, error) {
	var rec imtypes.SubscriptionRecord
	err := s.db.GetContext(ctx, &rec, `
		SELECT subscription_id, user_id, created_at FROM subscriptions WHERE subscription_id = ?`, subscriptionId)
	if errors.Is(err, sql.ErrNoRows) {
		return imtypes.SubscriptionRecord{}, false, nil
	}
	if err != nil {
		return imtypes.SubscriptionRecord{}, false, imerr.Database(err, "store: lookup subscription by id failed")
	}
	return rec, true, nil
}

// Insert creates a new subscription record.
func (s *SubscriptionStore) Insert(ctx context.Context, rec imtypes.SubscriptionRecord) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO subscriptions (subscription_id, user_id, created_at) VALUES (?, ?, ?)`,
		rec.SubscriptionId, uint64(rec.UserId), rec.CreatedAt)
	if err != nil {
		return imerr.Database(err, "store: insert subscription failed")
	}
	return nil
}

// TouchCreatedAt bumps created_at to now, implementing the
// refresh-on-every-heartbeat decision (§9 Open Question 2).
func (s *SubscriptionStore) TouchCreatedAt(ctx context.Context, subscriptionId string, now time.Time) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE subscriptions SET created_at = ? WHERE subscription_id = ?`, now, subscriptionId)
	if err != nil {
		return imerr.Database(err, "store: refresh subscription failed")
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return imerr.NotFound("store: no subscription %s", subscriptionId)
	}
	return nil
}
