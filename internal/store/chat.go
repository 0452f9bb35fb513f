package store

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"

	"github.com/meshim/imcore/internal/imerr"
	"github.com/meshim/imcore/internal/imtypes"
)

// ChatStore owns the im_chat table, including the chat_type repair
// logic §9's design note and §8 Invariant 7 / scenario S6 require.
type ChatStore struct {
	db *sqlx.DB
}

func NewChatStore(db *sqlx.DB) *ChatStore {
	return &ChatStore{db: db}
}

// UpsertChatRecord bumps a (chatId, owner) row to the expected
// chatType, peer and sequence (§4.5 step 8, §4.6 step 5). The
// identity this method enforces is logically (chat_id, owner,
// chat_type); because legacy rows predate chat_type being part of the
// key, this looks the row up by (chat_id, owner) alone first and
// repairs chat_type in place when it disagrees, rather than inserting
// a second row under the new composite key (§9 "Chat-record
// corruption repair").
func (s *ChatStore) UpsertChatRecord(ctx context.Context, chatId string, owner, peer imtypes.ExtId, expectedChatType int, sequence int64) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return imerr.Database(err, "store: begin chat upsert tx failed")
	}
	defer tx.Rollback()

	var existing imtypes.ChatRecord
	err = tx.GetContext(ctx, &existing, `
		SELECT chat_id, chat_type, owner_id, to_id, sequence, read_sequence, is_top, is_mute, remark, del_flag
		FROM im_chat WHERE chat_id = ? AND owner_id = ? FOR UPDATE`, chatId, uint64(owner))

	switch {
	case errors.Is(err, sql.ErrNoRows):
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO im_chat (chat_id, chat_type, owner_id, to_id, sequence, read_sequence, is_top, is_mute, remark, del_flag)
			VALUES (?, ?, ?, ?, ?, 0, 0, 0, '', ?)`,
			chatId, expectedChatType, uint64(owner), uint64(peer), sequence, imtypes.DelFlagLive); err != nil {
			return imerr.Database(err, "store: insert chat record failed")
		}

	case err != nil:
		return imerr.Database(err, "store: select chat record failed")

	default:
		// Row exists. Repair chat_type if it disagrees with what this
		// send expects (§9, §8 Invariant 7, §8 scenario S6), and
		// always bump sequence/peer to the latest send.
		if _, err := tx.ExecContext(ctx, `
			UPDATE im_chat SET chat_type = ?, to_id = ?, sequence = ?
			WHERE chat_id = ? AND owner_id = ?`,
			expectedChatType, uint64(peer), sequence, chatId, uint64(owner)); err != nil {
			return imerr.Database(err, "store: update chat record failed")
		}
	}

	if err := tx.Commit(); err != nil {
		return imerr.Database(err, "store: commit chat upsert failed")
	}
	return nil
}

// Get fetches a single chat record by (chatId, owner), regardless of
// chat_type, matching the repair lookup above.
func (s *ChatStore) Get(ctx context.Context, chatId string, owner imtypes.ExtId) (imtypes.ChatRecord, error) {
	var rec imtypes.ChatRecord
	err := s.db.GetContext(ctx, &rec, `
		SELECT chat_id, chat_type, owner_id, to_id, sequence, read_sequence, is_top, is_mute, remark, del_flag
		FROM im_chat WHERE chat_id = ? AND owner_id = ?`, chatId, uint64(owner))
	if errors.Is(err, sql.ErrNoRows) {
		return imtypes.ChatRecord{}, imerr.NotFound("store: no chat record %s/%s", chatId, owner.String())
	}
	if err != nil {
		return imtypes.ChatRecord{}, imerr.Database(err, "store: get chat record failed")
	}
	return rec, nil
}
