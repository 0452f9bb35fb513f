package store

import (
	"context"

	"github.com/jmoiron/sqlx"

	"github.com/meshim/imcore/internal/imerr"
	"github.com/meshim/imcore/internal/imtypes"
)

// MessageStore is the authoritative log of single- and group-chat
// messages (§2 component 6, §6 im_single_message/im_group_message).
type MessageStore struct {
	db *sqlx.DB
}

func NewMessageStore(db *sqlx.DB) *MessageStore {
	return &MessageStore{db: db}
}

// InsertSingle persists a SingleMessage. Dedup by message_id is
// enforced at the storage layer (§4.6 "Idempotency"): a repeat insert
// of the same message_id is ignored rather than erroring.
func (s *MessageStore) InsertSingle(ctx context.Context, m imtypes.SingleMessage) error {
	const q = `
		INSERT INTO im_single_message
			(message_id, from_id, to_id, body, time, content_type, read_status, sequence, del_flag, reply_to, file_url, file_name, file_type)
		VALUES
			(:message_id, :from_id, :to_id, :body, :time, :content_type, :read_status, :sequence, :del_flag, :reply_to, :file_url, :file_name, :file_type)
		ON DUPLICATE KEY UPDATE message_id = message_id`
	if _, err := s.db.NamedExecContext(ctx, q, m); err != nil {
		return imerr.Database(err, "store: insert single message failed")
	}
	return nil
}

// InsertGroup persists a GroupMessage, same dedup policy as InsertSingle.
func (s *MessageStore) InsertGroup(ctx context.Context, m imtypes.GroupMessage) error {
	const q = `
		INSERT INTO im_group_message
			(message_id, group_id, from_id, body, time, content_type, sequence, del_flag, reply_to)
		VALUES
			(:message_id, :group_id, :from_id, :body, :time, :content_type, :sequence, :del_flag, :reply_to)
		ON DUPLICATE KEY UPDATE message_id = message_id`
	if _, err := s.db.NamedExecContext(ctx, q, m); err != nil {
		return imerr.Database(err, "store: insert group message failed")
	}
	return nil
}

// SingleHistory returns a page of single-chat messages excluding
// call invites (content_type=4), per §6's history endpoints.
func (s *MessageStore) SingleHistory(ctx context.Context, toId imtypes.ExtId, sinceSequence int64, limit int) ([]imtypes.SingleMessage, error) {
	const q = `
		SELECT message_id, from_id, to_id, body, time, content_type, read_status, sequence, del_flag, reply_to, file_url, file_name, file_type
		FROM im_single_message
		WHERE to_id = ? AND sequence > ? AND content_type != ? AND del_flag = ?
		ORDER BY sequence ASC LIMIT ?`
	var rows []imtypes.SingleMessage
	if err := s.db.SelectContext(ctx, &rows, q, uint64(toId), sinceSequence, imtypes.ContentCallInvite, imtypes.DelFlagLive, limit); err != nil {
		return nil, imerr.Database(err, "store: single history query failed")
	}
	return rows, nil
}

// GroupHistory is the group-chat analogue of SingleHistory.
func (s *MessageStore) GroupHistory(ctx context.Context, groupId string, sinceSequence int64, limit int) ([]imtypes.GroupMessage, error) {
	const q = `
		SELECT message_id, group_id, from_id, body, time, content_type, sequence, del_flag, reply_to
		FROM im_group_message
		WHERE group_id = ? AND sequence > ? AND content_type != ? AND del_flag = ?
		ORDER BY sequence ASC LIMIT ?`
	var rows []imtypes.GroupMessage
	if err := s.db.SelectContext(ctx, &rows, q, groupId, sinceSequence, imtypes.ContentCallInvite, imtypes.DelFlagLive, limit); err != nil {
		return nil, imerr.Database(err, "store: group history query failed")
	}
	return rows, nil
}

// MarkSingleRead sets read_status=1 on a single message owned by reader.
func (s *MessageStore) MarkSingleRead(ctx context.Context, messageId string, reader imtypes.ExtId) error {
	const q = `UPDATE im_single_message SET read_status = 1 WHERE message_id = ? AND to_id = ?`
	res, err := s.db.ExecContext(ctx, q, messageId, uint64(reader))
	if err != nil {
		return imerr.Database(err, "store: mark read failed")
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return imerr.NotFound("store: message %s not found for reader %s", messageId, reader.String())
	}
	return nil
}
