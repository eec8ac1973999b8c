package gateway

import (
	"encoding/json"
	"errors"

	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/scoreboard/go/internal/match"
	"github.com/rs/zerolog/log"
)

// Updater applies an admin patch and broadcasts the result.
type Updater interface {
	Update(raw []byte) (match.Applied, match.Snapshot, error)
}

// MessageHandler dispatches inbound client messages
type MessageHandler struct {
	snapshots SnapshotSource
	updater   Updater
	clock     clockwork.Clock
}

// NewMessageHandler creates a new message handler
func NewMessageHandler(snapshots SnapshotSource, updater Updater, clock clockwork.Clock) *MessageHandler {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &MessageHandler{
		snapshots: snapshots,
		updater:   updater,
		clock:     clock,
	}
}

// HandleMessage processes one frame received from c. Replies go to c only.
func (h *MessageHandler) HandleMessage(c *Connection, raw []byte) {
	if !c.allow() {
		log.Warn().Str("connection_id", c.ID).Msg("inbound message rate exceeded")
		h.replyError(c, "rate limit exceeded", nil)
		return
	}

	msg, err := ParseInboundMessage(raw)
	if errors.Is(err, ErrUnknownMessageType) {
		log.Debug().
			Err(err).
			Str("connection_id", c.ID).
			Str("type", string(msg.Type)).
			Msg("unknown message type")
		h.replyError(c, "Unknown message type", nil)
		return
	}
	if err != nil {
		log.Debug().Err(err).Str("connection_id", c.ID).Msg("rejecting malformed message")
		h.replyError(c, "Invalid message format", nil)
		return
	}

	switch msg.Type {
	case MessageTypePing:
		h.reply(c, Envelope{Type: EventTypePong})

	case MessageTypeGetState:
		h.reply(c, Envelope{Type: EventTypeStateUpdate, Data: h.snapshots.Snapshot()})

	case MessageTypeAdminUpdate:
		h.handleAdminUpdate(c, msg)
	}
}

func (h *MessageHandler) handleAdminUpdate(c *Connection, msg InboundMessage) {
	if c.Role != RoleAdmin {
		log.Warn().
			Str("connection_id", c.ID).
			Str("role", string(c.Role)).
			Msg("ignoring admin_update from non-admin connection")
		return
	}

	patch := msg.Patch()
	if len(patch) == 0 {
		h.replyError(c, "admin_update requires a payload", nil)
		return
	}

	if _, _, err := h.updater.Update(patch); err != nil {
		if violations, ok := match.AsValidationErrors(err); ok {
			h.replyError(c, "validation failed", violations)
			return
		}
		if errors.Is(err, match.ErrEmptyPatch) {
			h.replyError(c, "admin_update payload must be an object", nil)
			return
		}
		log.Error().Err(err).Str("connection_id", c.ID).Msg("failed to apply admin update")
		h.replyError(c, "update failed", nil)
	}
}

func (h *MessageHandler) replyError(c *Connection, message string, violations match.ValidationErrors) {
	h.reply(c, Envelope{
		Type:       EventTypeError,
		Message:    message,
		Violations: violations,
	})
}

func (h *MessageHandler) reply(c *Connection, envelope Envelope) {
	envelope.Timestamp = h.clock.Now().UnixMilli()
	data, err := json.Marshal(envelope)
	if err != nil {
		log.Error().Err(err).Str("type", string(envelope.Type)).Msg("failed to marshal reply")
		return
	}
	if err := c.Enqueue(data); err != nil {
		log.Warn().Err(err).Str("connection_id", c.ID).Msg("failed to queue reply")
		c.unregister()
	}
}
