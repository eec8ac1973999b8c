package gateway

import (
	"encoding/json"
	"errors"

	"github.com/mcdev12/scoreboard/go/internal/match"
)

// EventType is the discriminator of a WebSocket envelope.
type EventType string

// Outbound event types.
const (
	EventTypeInitialState     EventType = "initial_state"
	EventTypeStateUpdate      EventType = "state_update"
	EventTypeScoreboardUpdate EventType = "scoreboard_update"
	EventTypePong             EventType = "pong"
	EventTypeError            EventType = "error"
)

// Inbound message kinds.
const (
	MessageTypePing        EventType = "ping"
	MessageTypeGetState    EventType = "get_state"
	MessageTypeAdminUpdate EventType = "admin_update"
)

var (
	// ErrMalformedMessage is returned for inbound payloads that are not a
	// JSON object with a type discriminator.
	ErrMalformedMessage = errors.New("invalid message format")
	// ErrUnknownMessageType is returned for a well-formed message of an unknown kind.
	ErrUnknownMessageType = errors.New("unknown message type")
)

// Envelope is the structure of every message sent to a client.
type Envelope struct {
	Type       EventType              `json:"type"`
	Data       any                    `json:"data,omitempty"`
	Message    string                 `json:"message,omitempty"`
	Violations match.ValidationErrors `json:"violations,omitempty"`
	Timestamp  int64                  `json:"timestamp"`
}

// InboundMessage is a message received from a client. Admin patches travel
// in Payload; Data is accepted as an alias.
type InboundMessage struct {
	Type    EventType       `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// Patch returns the patch body carried by an admin_update message.
func (m InboundMessage) Patch() json.RawMessage {
	if len(m.Payload) > 0 {
		return m.Payload
	}
	return m.Data
}

// ParseInboundMessage decodes a raw client frame. A well-formed frame of an
// unrecognised kind is returned together with ErrUnknownMessageType.
func ParseInboundMessage(raw []byte) (InboundMessage, error) {
	var msg InboundMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		return msg, ErrMalformedMessage
	}
	switch msg.Type {
	case "":
		return msg, ErrMalformedMessage
	case MessageTypePing, MessageTypeGetState, MessageTypeAdminUpdate:
		return msg, nil
	default:
		return msg, ErrUnknownMessageType
	}
}
