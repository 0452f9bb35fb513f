package store

import (
	"context"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"

	"github.com/meshim/imcore/internal/imtypes"
)

func newMockMessageStore(t *testing.T) (*MessageStore, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewMessageStore(sqlx.NewDb(db, "mysql")), mock
}

func TestInsertSingle_OnDuplicateKeyIgnoresRepeat(t *testing.T) {
	store, mock := newMockMessageStore(t)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO im_single_message")).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := store.InsertSingle(context.Background(), imtypes.SingleMessage{
		MessageId: "m1", FromId: 1, ToId: 2, Body: "hi", ContentType: imtypes.ContentText,
		Sequence: 100, DelFlag: imtypes.DelFlagLive,
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSingleHistory_ExcludesCallInvitesAndTombstones(t *testing.T) {
	store, mock := newMockMessageStore(t)

	rows := sqlmock.NewRows([]string{
		"message_id", "from_id", "to_id", "body", "time", "content_type",
		"read_status", "sequence", "del_flag", "reply_to", "file_url", "file_name", "file_type",
	}).AddRow("m1", 1, 2, "hi", 100, imtypes.ContentText, 0, 100, imtypes.DelFlagLive, "", "", "", "")

	mock.ExpectQuery(regexp.QuoteMeta("FROM im_single_message")).
		WithArgs(uint64(2), int64(0), imtypes.ContentCallInvite, imtypes.DelFlagLive, 50).
		WillReturnRows(rows)

	got, err := store.SingleHistory(context.Background(), imtypes.ExtId(2), 0, 50)
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.Equal(t, "m1", got[0].MessageId)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestMarkSingleRead_NotFoundWhenNoRowsAffected(t *testing.T) {
	store, mock := newMockMessageStore(t)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE im_single_message SET read_status = 1")).
		WithArgs("missing", uint64(9)).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := store.MarkSingleRead(context.Background(), "missing", imtypes.ExtId(9))
	require.Error(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}
