package gateway

import (
	"context"
	"net/http"

	"github.com/gorilla/websocket"
)

// upgrader is shared across connections; origin checking is left to
// the HTTP routing layer this core treats as an external boundary
// concern (§1 Non-goals: "TLS termination and HTTP routing boilerplate").
var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Server accepts websocket connections and runs a Session for each.
type Server struct {
	deps Deps
}

// NewServer constructs a gateway HTTP handler. deps.Codec selects the
// wire variant for every connection this server accepts - per
// deployment, never per connection (§9 Open Question 1 resolution).
func NewServer(deps Deps) *Server {
	return &Server{deps: deps}
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.deps.Log.Error().Err(err).Msg("gateway: upgrade failed")
		return
	}

	sess := NewSession(conn, s.deps)
	go sess.Run(context.Background())
}
