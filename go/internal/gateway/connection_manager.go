package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/scoreboard/go/internal/match"
	"github.com/rs/zerolog/log"
)

// SnapshotSource supplies the current scoreboard view.
type SnapshotSource interface {
	Snapshot() match.Snapshot
}

// ConnectionManager owns the set of live scoreboard connections
type ConnectionManager struct {
	connections map[*Connection]struct{}
	mu          sync.RWMutex

	// Upgrader for WebSocket connections
	upgrader websocket.Upgrader

	config    ConnectionConfig
	snapshots SnapshotSource
	clock     clockwork.Clock
}

// ConnectionConfig holds configuration for WebSocket connections
type ConnectionConfig struct {
	WriteTimeout      time.Duration
	HeartbeatInterval time.Duration
	MaxMessageSize    int64
	ReadBufferSize    int
	WriteBufferSize   int
	SendBufferSize    int
	MessageRate       float64
	MessageBurst      int
	CheckOrigin       func(r *http.Request) bool
}

// ConnectionStats summarizes the registry.
type ConnectionStats struct {
	Total    int `json:"total"`
	Admins   int `json:"admin"`
	Displays int `json:"display"`
}

// DefaultConnectionConfig returns default WebSocket configuration
func DefaultConnectionConfig() ConnectionConfig {
	return ConnectionConfig{
		WriteTimeout:      10 * time.Second,
		HeartbeatInterval: 30 * time.Second,
		MaxMessageSize:    16 * 1024,
		ReadBufferSize:    1024,
		WriteBufferSize:   1024,
		SendBufferSize:    64,
		MessageRate:       20,
		MessageBurst:      40,
		CheckOrigin: func(r *http.Request) bool {
			// Displays are served from arbitrary hosts on the venue network
			return true
		},
	}
}

// NewConnectionManager creates a new WebSocket connection manager
func NewConnectionManager(config ConnectionConfig, snapshots SnapshotSource, clock clockwork.Clock) *ConnectionManager {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &ConnectionManager{
		connections: make(map[*Connection]struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  config.ReadBufferSize,
			WriteBufferSize: config.WriteBufferSize,
			CheckOrigin:     config.CheckOrigin,
		},
		config:    config,
		snapshots: snapshots,
		clock:     clock,
	}
}

// Run drives the heartbeat until ctx is cancelled, then closes every connection.
func (cm *ConnectionManager) Run(ctx context.Context) {
	ticker := cm.clock.NewTicker(cm.config.HeartbeatInterval)
	defer ticker.Stop()

	log.Info().
		Dur("heartbeat_interval", cm.config.HeartbeatInterval).
		Msg("connection manager started")

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("connection manager shutting down")
			cm.CloseAll(websocket.CloseGoingAway, "server shutting down")
			return
		case <-ticker.Chan():
			cm.heartbeat()
		}
	}
}

// heartbeat closes connections that did not answer the previous ping and
// pings the rest.
func (cm *ConnectionManager) heartbeat() {
	for _, c := range cm.snapshot() {
		if !c.alive.Swap(false) {
			log.Info().
				Str("connection_id", c.ID).
				Str("role", string(c.Role)).
				Msg("connection missed heartbeat, terminating")
			cm.Unregister(c)
			continue
		}
		c.schedulePing()
	}
}

// UpgradeConnection upgrades an HTTP connection to WebSocket, registers it
// and starts its pumps.
func (cm *ConnectionManager) UpgradeConnection(w http.ResponseWriter, r *http.Request, handle func(*Connection, []byte)) (*Connection, error) {
	conn, err := cm.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to upgrade connection: %w", err)
	}

	connection := NewConnection(uuid.NewString(), conn, RoleFromRequest(r), r.RemoteAddr, cm.config)
	connection.ConnectedAt = cm.clock.Now()

	if err := cm.Register(connection); err != nil {
		return nil, err
	}
	connection.Start(handle)

	log.Info().
		Str("connection_id", connection.ID).
		Str("role", string(connection.Role)).
		Str("remote_addr", connection.RemoteAddr).
		Msg("WebSocket connection established")

	return connection, nil
}

// Register queues the initial_state message and then adds the connection.
// Both happen under the registry lock, so a broadcast either reaches the
// connection after its initial_state or is already reflected in it.
func (cm *ConnectionManager) Register(c *Connection) error {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	message, err := json.Marshal(Envelope{
		Type:      EventTypeInitialState,
		Data:      cm.snapshots.Snapshot(),
		Timestamp: cm.clock.Now().UnixMilli(),
	})
	if err != nil {
		_ = c.Close()
		return fmt.Errorf("failed to marshal initial state: %w", err)
	}
	if err := c.Enqueue(message); err != nil {
		_ = c.Close()
		return fmt.Errorf("failed to send initial state: %w", err)
	}

	c.manager = cm
	cm.connections[c] = struct{}{}

	log.Debug().
		Str("connection_id", c.ID).
		Str("role", string(c.Role)).
		Int("total_connections", len(cm.connections)).
		Msg("connection registered")
	return nil
}

// Unregister removes a connection and closes it. Unknown or already removed
// connections are only closed.
func (cm *ConnectionManager) Unregister(c *Connection) {
	cm.mu.Lock()
	_, exists := cm.connections[c]
	delete(cm.connections, c)
	cm.mu.Unlock()

	_ = c.Close()

	if exists {
		log.Info().
			Str("connection_id", c.ID).
			Str("role", string(c.Role)).
			Msg("connection unregistered")
	}
}

// ForEachLive calls fn for every registered open connection. Connections found
// closed are unregistered. fn runs without the registry lock held.
func (cm *ConnectionManager) ForEachLive(fn func(*Connection)) {
	for _, c := range cm.snapshot() {
		if c.Closed() {
			cm.Unregister(c)
			continue
		}
		fn(c)
	}
}

// CloseAll sends a close frame to every connection and unregisters it.
func (cm *ConnectionManager) CloseAll(code int, reason string) {
	var wg sync.WaitGroup
	for _, c := range cm.snapshot() {
		wg.Add(1)
		go func(c *Connection) {
			defer wg.Done()
			c.closeWithReason(code, reason)
			cm.Unregister(c)
		}(c)
	}
	wg.Wait()
}

// Count returns the number of registered connections.
func (cm *ConnectionManager) Count() int {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	return len(cm.connections)
}

// Contains reports whether c is registered.
func (cm *ConnectionManager) Contains(c *Connection) bool {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	_, ok := cm.connections[c]
	return ok
}

// Stats returns connection counts by role.
func (cm *ConnectionManager) Stats() ConnectionStats {
	cm.mu.RLock()
	defer cm.mu.RUnlock()

	stats := ConnectionStats{Total: len(cm.connections)}
	for c := range cm.connections {
		if c.Role == RoleAdmin {
			stats.Admins++
		} else {
			stats.Displays++
		}
	}
	return stats
}

func (cm *ConnectionManager) snapshot() []*Connection {
	cm.mu.RLock()
	defer cm.mu.RUnlock()

	connections := make([]*Connection, 0, len(cm.connections))
	for c := range cm.connections {
		connections = append(connections, c)
	}
	return connections
}
