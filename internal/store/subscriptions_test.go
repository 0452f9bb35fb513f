package store

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"

	"github.com/meshim/imcore/internal/imtypes"
)

func newMockSubscriptionStore(t *testing.T) (*SubscriptionStore, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewSubscriptionStore(sqlx.NewDb(db, "mysql")), mock
}

func TestSubscriptionStore_ByUser_NotFound(t *testing.T) {
	store, mock := newMockSubscriptionStore(t)

	mock.ExpectQuery(regexp.QuoteMeta("FROM subscriptions")).
		WithArgs(uint64(5)).
		WillReturnError(sql.ErrNoRows)

	_, found, err := store.ByUser(context.Background(), imtypes.ExtId(5))
	require.NoError(t, err)
	require.False(t, found)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSubscriptionStore_InsertAndTouchCreatedAt(t *testing.T) {
	store, mock := newMockSubscriptionStore(t)
	now := time.Now().UTC()

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO subscriptions")).
		WithArgs("sid-1", uint64(5), now).
		WillReturnResult(sqlmock.NewResult(1, 1))
	require.NoError(t, store.Insert(context.Background(), imtypes.SubscriptionRecord{
		SubscriptionId: "sid-1", UserId: imtypes.ExtId(5), CreatedAt: now,
	}))

	mock.ExpectExec(regexp.QuoteMeta("UPDATE subscriptions SET created_at = ?")).
		WithArgs(now, "sid-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, store.TouchCreatedAt(context.Background(), "sid-1", now))

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSubscriptionStore_TouchCreatedAt_NotFound(t *testing.T) {
	store, mock := newMockSubscriptionStore(t)
	now := time.Now().UTC()

	mock.ExpectExec(regexp.QuoteMeta("UPDATE subscriptions SET created_at = ?")).
		WithArgs(now, "missing").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := store.TouchCreatedAt(context.Background(), "missing", now)
	require.Error(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}
