package fanout

import (
	"encoding/json"
	"net/http"

	"github.com/google/uuid"

	"github.com/meshim/imcore/internal/gateway/codec"
	"github.com/meshim/imcore/internal/imerr"
	"github.com/meshim/imcore/internal/imtypes"
)

// handleSendSingle implements §4.5's nine-step algorithm.
func (s *Server) handleSendSingle(w http.ResponseWriter, r *http.Request) {
	var req sendSingleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, imerr.InvalidInput("fanout: malformed request body"))
		return
	}
	if err := s.validate.Struct(req); err != nil {
		writeError(w, imerr.InvalidInput("fanout: %v", err))
		return
	}

	ctx := r.Context()

	// Step 1: resolve from/to.
	fromExt, err := resolveParticipant(ctx, s.deps.Identity, req.From)
	if err != nil {
		writeError(w, imerr.InvalidInput("fanout: unknown sender %q", req.From))
		return
	}
	toExt, err := resolveParticipant(ctx, s.deps.Identity, req.To)
	if err != nil {
		writeError(w, imerr.InvalidInput("fanout: unknown recipient %q", req.To))
		return
	}

	now := nowMillis()
	messageId := uuid.New().String()

	msg := imtypes.SingleMessage{
		MessageId:   messageId,
		FromId:      fromExt,
		ToId:        toExt,
		Body:        req.Body,
		Time:        now,
		ContentType: req.ContentType,
		ReadStatus:  0,
		Sequence:    now,
		DelFlag:     imtypes.DelFlagLive,
		ReplyTo:     req.ReplyTo,
	}
	if req.Extra != nil {
		msg.FileUrl = req.Extra.FileUrl
		msg.FileName = req.Extra.FileName
		msg.FileType = req.Extra.FileType
	}

	// Step 2: persist. Authoritative - a failure here stops the
	// request entirely (§7 "persist-then-publish-then-queue").
	if err := s.deps.Messages.InsertSingle(ctx, msg); err != nil {
		writeError(w, err)
		return
	}

	chatMsg := imtypes.ChatMessage{
		MessageId:   messageId,
		FromUserId:  fromExt.String(),
		ToUserId:    toExt.String(),
		Message:     req.Body,
		TimestampMs: now,
		ChatType:    imtypes.ChatTypeSingle,
	}
	if req.Extra != nil {
		chatMsg.FileUrl = req.Extra.FileUrl
		chatMsg.FileName = req.Extra.FileName
		chatMsg.FileType = req.Extra.FileType
	}

	timeoutSec := 0
	if req.Extra != nil {
		timeoutSec = req.Extra.TimeoutSec
	}

	frame := codec.Frame{
		Code:      codec.CodeSingle,
		Data:      chatMsg,
		Timestamp: now,
		RequestId: messageId,
	}

	// Steps 3, 4, 6, 7: routability, ephemerality check, publish, offline-queue.
	storedOnly, _ := s.plan().publishToUser(ctx, toExt, frame, req.ContentType, timeoutSec)

	// Step 8: best-effort chat-record upsert for both sides under the
	// symmetric chat_id. Failure here never fails the request (§4.5 step 8).
	chatId := imtypes.SingleChatId(fromExt, toExt)
	if err := s.deps.Chats.UpsertChatRecord(ctx, chatId, fromExt, toExt, imtypes.ChatTypeSingle, now); err != nil {
		s.deps.Log.Warn().Err(err).Msg("fanout: chat record upsert (sender side) failed")
	}
	if err := s.deps.Chats.UpsertChatRecord(ctx, chatId, toExt, fromExt, imtypes.ChatTypeSingle, now); err != nil {
		s.deps.Log.Warn().Err(err).Msg("fanout: chat record upsert (recipient side) failed")
	}

	// Step 9.
	writeJSON(w, http.StatusOK, sendSingleResponse{Status: "ok", MessageId: messageId, StoredOnly: storedOnly})
}
