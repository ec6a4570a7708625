// internal/handlers/server.go
package handlers

import (
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/jason-s-yu/tycoon/internal/lobby"
	"github.com/jason-s-yu/tycoon/internal/middleware"
	"github.com/jason-s-yu/tycoon/internal/registry"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

const (
	// Subprotocol is the websocket subprotocol clients must request.
	Subprotocol = "tycoon"

	DefaultPingInterval = 30 * time.Second
	defaultActionRate   = 10
	defaultActionBurst  = 10

	writeTimeout = 5 * time.Second
	leaveTimeout = 10 * time.Second
)

// Config wires the transport to the session core.
type Config struct {
	Registry *registry.Registry
	Rooms    *lobby.Directory
	Logger   *logrus.Logger

	ActionRate   rate.Limit // inbound messages per second per connection
	ActionBurst  int
	PingInterval time.Duration
}

// Server owns the HTTP and websocket endpoints.
type Server struct {
	reg    *registry.Registry
	rooms  *lobby.Directory
	logger *logrus.Logger

	actionRate   rate.Limit
	actionBurst  int
	pingInterval time.Duration
}

func NewServer(cfg Config) *Server {
	if cfg.ActionRate <= 0 {
		cfg.ActionRate = defaultActionRate
	}
	if cfg.ActionBurst <= 0 {
		cfg.ActionBurst = defaultActionBurst
	}
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = DefaultPingInterval
	}
	if cfg.Logger == nil {
		cfg.Logger = logrus.StandardLogger()
	}
	return &Server{
		reg:          cfg.Registry,
		rooms:        cfg.Rooms,
		logger:       cfg.Logger,
		actionRate:   cfg.ActionRate,
		actionBurst:  cfg.ActionBurst,
		pingInterval: cfg.PingInterval,
	}
}

// Routes builds the mux with request logging on every endpoint.
func (s *Server) Routes() http.Handler {
	logged := middleware.LogMiddleware(s.logger)

	mux := http.NewServeMux()
	mux.Handle("/session", logged(http.HandlerFunc(s.CreateSessionHandler)))
	mux.Handle("/rooms/create", logged(http.HandlerFunc(s.CreateRoomHandler)))
	mux.Handle("/rooms/list", logged(http.HandlerFunc(s.ListRoomsHandler)))
	mux.Handle("/healthz", http.HandlerFunc(s.HealthHandler))
	mux.Handle("/ws", logged(http.HandlerFunc(s.WSHandler)))
	return mux
}

// EvictFunc returns the hook rooms call after dropping a member whose connection
// stopped accepting broadcasts: the client is detached from the room and its socket closed.
func EvictFunc(reg *registry.Registry) func(clientID uuid.UUID) {
	return func(clientID uuid.UUID) {
		reg.SetRoom(clientID, uuid.Nil)
		reg.Kick(clientID, UnresponsiveError, "connection too slow")
	}
}
