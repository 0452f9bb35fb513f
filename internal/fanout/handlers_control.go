package fanout

import (
	"encoding/json"
	"net/http"

	"github.com/meshim/imcore/internal/gateway/codec"
	"github.com/meshim/imcore/internal/imerr"
	"github.com/meshim/imcore/internal/imtypes"
)

// friendRequestPayload and friendResponsePayload are the MSG_OP
// control-envelope bodies SPEC_FULL adds (§3 supplemented feature),
// grounded on original_source/im-server's AddFriendRequest/
// HandleFriendshipRequest shapes but carrying no new persistence: they
// ride the same publishToUser primitive as §4.5/4.6.
type friendRequestPayload struct {
	Kind    string `json:"kind"`
	From    string `json:"from"`
	To      string `json:"to"`
	Message string `json:"message,omitempty"`
}

type friendResponsePayload struct {
	Kind     string `json:"kind"`
	From     string `json:"from"`
	To       string `json:"to"`
	Approved bool   `json:"approved"`
}

// handleFriendRequest serves POST /im/control/friend-request.
func (s *Server) handleFriendRequest(w http.ResponseWriter, r *http.Request) {
	s.handleControl(w, r, func(fromExt, toExt imtypes.ExtId, req controlRequest) interface{} {
		return friendRequestPayload{Kind: "friend_request", From: fromExt.String(), To: toExt.String(), Message: req.Message}
	})
}

// handleFriendResponse serves POST /im/control/friend-response.
func (s *Server) handleFriendResponse(w http.ResponseWriter, r *http.Request) {
	s.handleControl(w, r, func(fromExt, toExt imtypes.ExtId, req controlRequest) interface{} {
		return friendResponsePayload{Kind: "friend_response", From: fromExt.String(), To: toExt.String(), Approved: req.Approved}
	})
}

func (s *Server) handleControl(w http.ResponseWriter, r *http.Request, buildPayload func(fromExt, toExt imtypes.ExtId, req controlRequest) interface{}) {
	var req controlRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, imerr.InvalidInput("fanout: malformed request body"))
		return
	}
	if err := s.validate.Struct(req); err != nil {
		writeError(w, imerr.InvalidInput("fanout: %v", err))
		return
	}

	ctx := r.Context()
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

	frame := codec.Frame{
		Code:      codec.CodeMsgOp,
		Data:      buildPayload(fromExt, toExt, req),
		Timestamp: nowMillis(),
	}

	// Control messages never persist and are never ephemeral, so the
	// content type passed to publishToUser never trips the call-invite
	// ephemerality check.
	if _, err := s.plan().publishToUser(ctx, toExt, frame, imtypes.ContentText, 0); err != nil {
		s.deps.Log.Warn().Err(err).Msg("fanout: control message publish failed")
	}

	writeJSON(w, http.StatusOK, controlResponse{Status: "ok"})
}
