package gateway

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"
)

// WebSocketHandler handles WebSocket upgrade requests
type WebSocketHandler struct {
	connectionManager *ConnectionManager
	messages          *MessageHandler
}

// NewWebSocketHandler creates a new WebSocket handler
func NewWebSocketHandler(cm *ConnectionManager, messages *MessageHandler) *WebSocketHandler {
	return &WebSocketHandler{
		connectionManager: cm,
		messages:          messages,
	}
}

// HandleConnection upgrades the request. The role is taken from the request
// target, so /ws/admin and /ws?client=admin both open admin connections.
func (h *WebSocketHandler) HandleConnection(w http.ResponseWriter, r *http.Request) {
	// the upgrader has already answered the client when this fails
	if _, err := h.connectionManager.UpgradeConnection(w, r, h.messages.HandleMessage); err != nil {
		log.Warn().
			Err(err).
			Str("remote_addr", r.RemoteAddr).
			Str("path", r.URL.Path).
			Msg("failed to establish WebSocket connection")
	}
}

// RegisterRoutes registers WebSocket routes
func (h *WebSocketHandler) RegisterRoutes(r chi.Router) {
	r.Get("/ws", h.HandleConnection)
	r.Get("/ws/*", h.HandleConnection)
}
