package gateway

import (
	"context"
	"net/http"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/scoreboard/go/internal/match"
	"github.com/mcdev12/scoreboard/go/internal/sysstatus"
	"github.com/rs/zerolog/log"
)

// Service is the scoreboard gateway: it owns the connection registry and is
// the single serialization point for admin mutations.
type Service struct {
	store             *match.Store
	connectionManager *ConnectionManager
	broadcaster       *Broadcaster
	messages          *MessageHandler
	wsHandler         *WebSocketHandler
	stateHandler      *StateHandler
	clock             clockwork.Clock

	// serializes apply + broadcast so broadcasts leave in mutation order
	updateMu sync.Mutex
}

// Config holds configuration for the scoreboard gateway service
type Config struct {
	ConnectionConfig ConnectionConfig
}

// DefaultConfig returns default configuration for the scoreboard gateway
func DefaultConfig() Config {
	return Config{
		ConnectionConfig: DefaultConnectionConfig(),
	}
}

// NewService creates a new scoreboard gateway service. sink may be nil.
func NewService(config Config, store *match.Store, status sysstatus.Provider, sink EventSink, clock clockwork.Clock) *Service {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}

	s := &Service{
		store: store,
		clock: clock,
	}
	s.connectionManager = NewConnectionManager(config.ConnectionConfig, store, clock)
	s.broadcaster = NewBroadcaster(s.connectionManager, sink, clock)
	s.messages = NewMessageHandler(store, s, clock)
	s.wsHandler = NewWebSocketHandler(s.connectionManager, s.messages)
	s.stateHandler = NewStateHandler(store, s, s.connectionManager, status, clock)
	return s
}

// Start runs the connection heartbeat until ctx is cancelled
func (s *Service) Start(ctx context.Context) error {
	log.Info().Msg("starting scoreboard gateway service")

	s.connectionManager.Run(ctx)

	log.Info().Msg("scoreboard gateway service stopped")
	return nil
}

// Update applies a JSON patch and broadcasts scoreboard_update to every
// connection on success. The returned snapshot is the one that was broadcast.
func (s *Service) Update(raw []byte) (match.Applied, match.Snapshot, error) {
	s.updateMu.Lock()
	defer s.updateMu.Unlock()

	applied, err := s.store.ApplyJSON(raw)
	if err != nil {
		return nil, match.Snapshot{}, err
	}

	snapshot := s.store.Snapshot()
	delivered := s.broadcaster.Broadcast(EventTypeScoreboardUpdate, snapshot, nil)

	log.Info().
		Interface("updated", applied).
		Int("connections", delivered).
		Msg("scoreboard updated")

	return applied, snapshot, nil
}

// Router builds the HTTP surface with JSON 404/405 responses and panic recovery.
func (s *Service) Router() chi.Router {
	r := chi.NewRouter()
	r.Use(RecoverMiddleware(s.clock))
	r.NotFound(jsonStatusHandler(s.clock, http.StatusNotFound, "not found"))
	r.MethodNotAllowed(jsonStatusHandler(s.clock, http.StatusMethodNotAllowed, "method not allowed"))
	s.RegisterRoutes(r)
	return r
}

// RegisterRoutes registers the WebSocket and REST routes
func (s *Service) RegisterRoutes(r chi.Router) {
	s.wsHandler.RegisterRoutes(r)
	s.stateHandler.RegisterStateRoutes(r)
	log.Info().Msg("scoreboard gateway routes registered")
}

// Stats returns connection counts by role.
func (s *Service) Stats() ConnectionStats {
	return s.connectionManager.Stats()
}
