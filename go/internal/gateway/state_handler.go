package gateway

import (
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/scoreboard/go/internal/match"
	"github.com/mcdev12/scoreboard/go/internal/sysstatus"
	"github.com/rs/zerolog/log"
)

const maxUpdateBodySize = 64 * 1024

// ScoresResponse is the body of GET /api/scores.
type ScoresResponse struct {
	match.Snapshot
	SystemStatus sysstatus.Status `json:"systemStatus"`
}

// UpdateResponse is the body of a successful POST /api/update.
type UpdateResponse struct {
	Success   bool           `json:"success"`
	Updated   match.Applied  `json:"updated"`
	Data      match.Snapshot `json:"data"`
	Timestamp int64          `json:"timestamp"`
}

// WebSocketStatusResponse is the body of GET /api/websocket.
type WebSocketStatusResponse struct {
	Status           string          `json:"status"`
	ConnectedClients int             `json:"connectedClients"`
	ClientTypes      ConnectionStats `json:"clientTypes"`
	Timestamp        int64           `json:"timestamp"`
}

// StateHandler handles the REST surface of the scoreboard
type StateHandler struct {
	snapshots   SnapshotSource
	updater     Updater
	connections *ConnectionManager
	status      sysstatus.Provider
	clock       clockwork.Clock
}

// NewStateHandler creates a new state handler. A nil status provider
// reports the process as offline.
func NewStateHandler(snapshots SnapshotSource, updater Updater, cm *ConnectionManager, status sysstatus.Provider, clock clockwork.Clock) *StateHandler {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &StateHandler{
		snapshots:   snapshots,
		updater:     updater,
		connections: cm,
		status:      status,
		clock:       clock,
	}
}

// HandleGetScores handles GET /api/scores
func (h *StateHandler) HandleGetScores(w http.ResponseWriter, r *http.Request) {
	status := sysstatus.Offline()
	if h.status != nil {
		status = h.status.Status()
	}

	w.Header().Set("Cache-Control", "no-cache, no-store, must-revalidate")
	w.Header().Set("Pragma", "no-cache")
	w.Header().Set("Expires", "0")
	writeJSON(w, http.StatusOK, ScoresResponse{
		Snapshot:     h.snapshots.Snapshot(),
		SystemStatus: status,
	})
}

// HandleUpdate handles POST /api/update
func (h *StateHandler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxUpdateBodySize))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, h.clock, http.StatusRequestEntityTooLarge, "request body too large", nil)
			return
		}
		writeError(w, h.clock, http.StatusBadRequest, "failed to read request body", nil)
		return
	}

	applied, snapshot, err := h.updater.Update(body)
	if err != nil {
		if violations, ok := match.AsValidationErrors(err); ok {
			log.Debug().Int("violations", len(violations)).Msg("rejecting invalid update")
			writeError(w, h.clock, http.StatusBadRequest, "validation failed", violations)
			return
		}
		if errors.Is(err, match.ErrEmptyPatch) {
			writeError(w, h.clock, http.StatusBadRequest, "invalid JSON body", nil)
			return
		}
		log.Error().Err(err).Msg("failed to apply update")
		writeError(w, h.clock, http.StatusInternalServerError, "internal server error", nil)
		return
	}

	if applied == nil {
		applied = match.Applied{}
	}
	writeJSON(w, http.StatusOK, UpdateResponse{
		Success:   true,
		Updated:   applied,
		Data:      snapshot,
		Timestamp: h.clock.Now().UnixMilli(),
	})
}

// HandleWebSocketStatus handles GET /api/websocket
func (h *StateHandler) HandleWebSocketStatus(w http.ResponseWriter, r *http.Request) {
	stats := h.connections.Stats()
	writeJSON(w, http.StatusOK, WebSocketStatusResponse{
		Status:           "WebSocket server running",
		ConnectedClients: stats.Total,
		ClientTypes:      stats,
		Timestamp:        h.clock.Now().UnixMilli(),
	})
}

// RegisterStateRoutes registers the REST routes
func (h *StateHandler) RegisterStateRoutes(r chi.Router) {
	r.Route("/api", func(r chi.Router) {
		r.Get("/scores", h.HandleGetScores)
		r.Post("/update", h.HandleUpdate)
		r.Get("/websocket", h.HandleWebSocketStatus)
		r.Get("/rss", h.HandleRSS)
	})
}
