// Package fanout implements the Fan-out API (§4.5, §4.6, §6 REST
// surface): persist, publish, offline-queue and chat-record upsert for
// single-chat, group-chat and control messages, routed with
// github.com/go-chi/chi/v5 the way erauner12-toolbridge-api and
// marmos91-dittofs both do.
package fanout

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/meshim/imcore/internal/authtoken"
	"github.com/meshim/imcore/internal/broker"
	"github.com/meshim/imcore/internal/gateway/codec"
	"github.com/meshim/imcore/internal/identity"
	"github.com/meshim/imcore/internal/metrics"
	"github.com/meshim/imcore/internal/offlinequeue"
	"github.com/meshim/imcore/internal/sessionregistry"
	"github.com/meshim/imcore/internal/store"
	"github.com/meshim/imcore/internal/workerpool"
)

// Deps bundles every collaborator the fan-out handlers need.
type Deps struct {
	Messages  *store.MessageStore
	Chats     *store.ChatStore
	Identity  *identity.Resolver
	Registry  sessionregistry.Registry
	Publisher broker.Publisher
	Offline   offlinequeue.Queue
	Groups    GroupDirectory
	Pool      *workerpool.Pool
	Verifier  *authtoken.Verifier
	Codec     codec.Codec
	Log       zerolog.Logger
}

// Server holds the fan-out handlers' shared dependencies.
type Server struct {
	deps     Deps
	validate *validator.Validate
}

func NewServer(deps Deps) *Server {
	return &Server{deps: deps, validate: validator.New()}
}

func (s *Server) plan() *deliveryPlan {
	return &deliveryPlan{
		registry:  s.deps.Registry,
		publisher: s.deps.Publisher,
		offline:   s.deps.Offline,
		codec:     s.deps.Codec,
		log:       s.deps.Log,
	}
}

// Router builds the chi mux covering §6's REST surface plus SPEC_FULL's
// control-message and ambient additions.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/api/healthz", s.handleHealthz)
	r.Handle("/api/metrics", promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{}))
	r.Get("/api/subscriptions/{sid}/user", s.handleSubscriptionUser)

	r.Group(func(r chi.Router) {
		r.Use(requireAuth(s.deps.Verifier))

		r.Post("/api/im/messages/single", s.handleSendSingle)
		r.Post("/api/im/messages/group", s.handleSendGroup)
		r.Get("/api/im/messages/single", s.handleSingleHistory)
		r.Get("/api/im/messages/group/{group_id}", s.handleGroupHistory)
		r.Post("/api/im/messages/single/{id}/read", s.handleMarkSingleRead)

		r.Post("/api/im/control/friend-request", s.handleFriendRequest)
		r.Post("/api/im/control/friend-response", s.handleFriendResponse)
	})

	return r
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
