package fanout

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/meshim/imcore/internal/imerr"
)

func parsePaging(r *http.Request) (sinceSequence int64, limit int) {
	q := r.URL.Query()
	if v := q.Get("since_sequence"); v != "" {
		sinceSequence, _ = strconv.ParseInt(v, 10, 64)
	}
	limit = 50
	if v := q.Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 200 {
			limit = n
		}
	}
	return
}

// handleSingleHistory serves GET /im/messages/single?to_id&since_sequence&limit.
func (s *Server) handleSingleHistory(w http.ResponseWriter, r *http.Request) {
	toInput := r.URL.Query().Get("to_id")
	if toInput == "" {
		writeError(w, imerr.InvalidInput("fanout: missing to_id"))
		return
	}
	ctx := r.Context()
	toExt, err := resolveParticipant(ctx, s.deps.Identity, toInput)
	if err != nil {
		writeError(w, imerr.InvalidInput("fanout: unknown to_id %q", toInput))
		return
	}
	since, limit := parsePaging(r)
	rows, err := s.deps.Messages.SingleHistory(ctx, toExt, since, limit)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rows)
}

// handleGroupHistory serves GET /im/messages/group/{group_id}?since_sequence&limit.
func (s *Server) handleGroupHistory(w http.ResponseWriter, r *http.Request) {
	groupId := chi.URLParam(r, "group_id")
	if groupId == "" {
		writeError(w, imerr.InvalidInput("fanout: missing group_id"))
		return
	}
	since, limit := parsePaging(r)
	rows, err := s.deps.Messages.GroupHistory(r.Context(), groupId, since, limit)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rows)
}

// handleMarkSingleRead serves POST /im/messages/single/{id}/read.
func (s *Server) handleMarkSingleRead(w http.ResponseWriter, r *http.Request) {
	messageId := chi.URLParam(r, "id")
	claims, ok := claimsFrom(r)
	if !ok {
		writeError(w, imerr.Unauthorized("fanout: missing claims"))
		return
	}
	if err := s.deps.Messages.MarkSingleRead(r.Context(), messageId, claims.ExtId); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
