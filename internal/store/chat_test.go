package store

import (
	"context"
	"database/sql"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"

	"github.com/meshim/imcore/internal/imtypes"
)

func newMockChatStore(t *testing.T) (*ChatStore, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewChatStore(sqlx.NewDb(db, "mysql")), mock
}

func TestUpsertChatRecord_InsertsWhenAbsent(t *testing.T) {
	store, mock := newMockChatStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("FROM im_chat WHERE chat_id = ? AND owner_id = ? FOR UPDATE")).
		WithArgs("single_1_2", uint64(1)).
		WillReturnError(sql.ErrNoRows)
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO im_chat")).
		WithArgs("single_1_2", imtypes.ChatTypeSingle, uint64(1), uint64(2), int64(100), imtypes.DelFlagLive).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	err := store.UpsertChatRecord(context.Background(), "single_1_2", imtypes.ExtId(1), imtypes.ExtId(2), imtypes.ChatTypeSingle, 100)
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpsertChatRecord_RepairsChatTypeWhenRowExists(t *testing.T) {
	store, mock := newMockChatStore(t)

	rows := sqlmock.NewRows([]string{"chat_id", "chat_type", "owner_id", "to_id", "sequence", "read_sequence", "is_top", "is_mute", "remark", "del_flag"}).
		AddRow("single_1_2", imtypes.ChatTypeGroup, 1, 2, 50, 0, 0, 0, "", imtypes.DelFlagLive)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("FROM im_chat WHERE chat_id = ? AND owner_id = ? FOR UPDATE")).
		WithArgs("single_1_2", uint64(1)).
		WillReturnRows(rows)
	mock.ExpectExec(regexp.QuoteMeta("UPDATE im_chat SET chat_type = ?, to_id = ?, sequence = ?")).
		WithArgs(imtypes.ChatTypeSingle, uint64(2), int64(150), "single_1_2", uint64(1)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := store.UpsertChatRecord(context.Background(), "single_1_2", imtypes.ExtId(1), imtypes.ExtId(2), imtypes.ChatTypeSingle, 150)
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}
