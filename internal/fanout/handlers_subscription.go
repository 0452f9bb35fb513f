package fanout

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/meshim/imcore/internal/imerr"
)

// handleSubscriptionUser serves GET /subscriptions/{sid}/user - no
// auth, used internally by the gateway itself (§6).
func (s *Server) handleSubscriptionUser(w http.ResponseWriter, r *http.Request) {
	sid := chi.URLParam(r, "sid")
	if sid == "" {
		writeError(w, imerr.InvalidInput("fanout: missing subscription id"))
		return
	}
	extId, err := s.deps.Registry.Lookup(r.Context(), sid)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, subscriptionUserResponse{UserId: extId.String()})
}
