package fanout

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"

	"github.com/google/uuid"

	"github.com/meshim/imcore/internal/gateway/codec"
	"github.com/meshim/imcore/internal/imerr"
	"github.com/meshim/imcore/internal/imtypes"
)

// handleSendGroup implements §4.6's five-step algorithm.
func (s *Server) handleSendGroup(w http.ResponseWriter, r *http.Request) {
	var req sendGroupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, imerr.InvalidInput("fanout: malformed request body"))
		return
	}
	if err := s.validate.Struct(req); err != nil {
		writeError(w, imerr.InvalidInput("fanout: %v", err))
		return
	}

	ctx := r.Context()
	groupId := imtypes.NormalizeGroupId(req.GroupId)

	// Step 1: resolve sender, fetch group.
	fromExt, err := resolveParticipant(ctx, s.deps.Identity, req.From)
	if err != nil {
		writeError(w, imerr.InvalidInput("fanout: unknown sender %q", req.From))
		return
	}
	group, err := s.deps.Groups.GetGroup(ctx, groupId)
	if err != nil {
		writeError(w, err)
		return
	}
	if group.Dissolved {
		writeError(w, imerr.InvalidInput("fanout: group %s is dissolved", groupId))
		return
	}

	// Step 2: fetch and de-duplicate members.
	rawMembers, err := s.deps.Groups.Members(ctx, groupId)
	if err != nil {
		writeError(w, err)
		return
	}
	seen := make(map[imtypes.ExtId]bool, len(rawMembers))
	members := make([]imtypes.ExtId, 0, len(rawMembers))
	for _, m := range rawMembers {
		if seen[m] {
			s.deps.Log.Info().Str("group_id", groupId).Str("member", m.String()).Msg("fanout: duplicate member row skipped")
			continue
		}
		seen[m] = true
		members = append(members, m)
	}

	chatId := imtypes.GroupChatId(groupId)

	// Step 3: the chat record on the sender's own row is authoritative
	// for chat_type when one already exists; member count is only a
	// hint used to seed a first-time value (§4.6 step 3).
	chatType := imtypes.ChatTypeGroup
	if len(members) <= 2 {
		chatType = imtypes.ChatTypeSingle
	}
	if existing, gerr := s.deps.Chats.Get(ctx, chatId, fromExt); gerr == nil {
		chatType = existing.ChatType
	}

	now := nowMillis()
	messageId := uuid.New().String()

	var singleTo imtypes.ExtId
	if chatType == imtypes.ChatTypeSingle {
		for _, m := range members {
			if m != fromExt {
				singleTo = m
				break
			}
		}
	}

	// Step 4: persist to the table the effective chat_type selects.
	if chatType == imtypes.ChatTypeSingle {
		msg := imtypes.SingleMessage{
			MessageId:   messageId,
			FromId:      fromExt,
			ToId:        singleTo,
			Body:        req.Body,
			Time:        now,
			ContentType: req.ContentType,
			Sequence:    now,
			DelFlag:     imtypes.DelFlagLive,
			ReplyTo:     req.ReplyTo,
		}
		if req.Extra != nil {
			msg.FileUrl, msg.FileName, msg.FileType = req.Extra.FileUrl, req.Extra.FileName, req.Extra.FileType
		}
		if err := s.deps.Messages.InsertSingle(ctx, msg); err != nil {
			writeError(w, err)
			return
		}
	} else {
		msg := imtypes.GroupMessage{
			MessageId:   messageId,
			GroupId:     groupId,
			FromId:      fromExt,
			Body:        req.Body,
			Time:        now,
			ContentType: req.ContentType,
			Sequence:    now,
			DelFlag:     imtypes.DelFlagLive,
			ReplyTo:     req.ReplyTo,
		}
		if err := s.deps.Messages.InsertGroup(ctx, msg); err != nil {
			writeError(w, err)
			return
		}
	}

	timeoutSec := 0
	if req.Extra != nil {
		timeoutSec = req.Extra.TimeoutSec
	}

	// Step 5: per-member fan-out, off the bounded worker pool (§5).
	var wg sync.WaitGroup
	for _, member := range members {
		if member == fromExt {
			continue
		}
		member := member
		wg.Add(1)
		s.deps.Pool.Submit(func() {
			defer wg.Done()
			s.fanOutToGroupMember(ctx, groupId, chatId, chatType, fromExt, member, req, messageId, now, timeoutSec)
		})
	}
	wg.Wait()

	writeJSON(w, http.StatusOK, sendGroupResponse{Status: "ok", MessageId: messageId})
}

func (s *Server) fanOutToGroupMember(ctx context.Context, groupId, chatId string, chatType int, fromExt, member imtypes.ExtId, req sendGroupRequest, messageId string, now int64, timeoutSec int) {
	// Lazily upsert this member's own chat record, symmetric chat_id
	// for single, group_<id> for group (§4.6 step 5).
	if err := s.deps.Chats.UpsertChatRecord(ctx, chatId, member, fromExt, chatType, now); err != nil {
		s.deps.Log.Warn().Err(err).Str("member", member.String()).Msg("fanout: group member chat upsert failed")
	}

	toUserId := groupId
	if chatType == imtypes.ChatTypeSingle {
		toUserId = member.String()
	}

	chatMsg := imtypes.ChatMessage{
		MessageId:   messageId,
		FromUserId:  fromExt.String(),
		ToUserId:    toUserId,
		Message:     req.Body,
		TimestampMs: now,
		ChatType:    chatType,
	}
	if req.Extra != nil {
		chatMsg.FileUrl, chatMsg.FileName, chatMsg.FileType = req.Extra.FileUrl, req.Extra.FileName, req.Extra.FileType
	}

	code := codec.CodeGroup
	if chatType == imtypes.ChatTypeSingle {
		code = codec.CodeSingle
	}
	frame := codec.Frame{Code: code, Data: chatMsg, Timestamp: now, RequestId: messageId}

	if _, err := s.plan().publishToUser(ctx, member, frame, req.ContentType, timeoutSec); err != nil {
		s.deps.Log.Warn().Err(err).Str("member", member.String()).Msg("fanout: group fan-out publish failed")
	}
}
