package gateway

import (
	"encoding/json"

	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/scoreboard/go/internal/publisher"
	"github.com/rs/zerolog/log"
)

// EventSink receives every broadcast after WebSocket fan-out. Enqueue must not block.
type EventSink interface {
	Enqueue(event publisher.Event) bool
}

// Broadcaster fans scoreboard events out to registered connections
type Broadcaster struct {
	connections *ConnectionManager
	sink        EventSink
	clock       clockwork.Clock
}

// NewBroadcaster creates a broadcaster. sink may be nil.
func NewBroadcaster(cm *ConnectionManager, sink EventSink, clock clockwork.Clock) *Broadcaster {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Broadcaster{
		connections: cm,
		sink:        sink,
		clock:       clock,
	}
}

// Broadcast serializes the event once and queues it on every live connection
// except exclude. It returns the number of connections the message was queued on.
func (b *Broadcaster) Broadcast(eventType EventType, payload any, exclude *Connection) int {
	now := b.clock.Now()
	message, err := json.Marshal(Envelope{
		Type:      eventType,
		Data:      payload,
		Timestamp: now.UnixMilli(),
	})
	if err != nil {
		log.Error().Err(err).Str("event_type", string(eventType)).Msg("failed to marshal event for broadcast")
		return 0
	}

	delivered := 0
	b.connections.ForEachLive(func(c *Connection) {
		if c == exclude {
			return
		}
		if err := c.Enqueue(message); err != nil {
			log.Warn().
				Err(err).
				Str("connection_id", c.ID).
				Str("role", string(c.Role)).
				Msg("dropping connection during broadcast")
			b.connections.Unregister(c)
			return
		}
		delivered++
	})

	if b.sink != nil {
		b.sink.Enqueue(publisher.NewEvent(string(eventType), message, now))
	}

	log.Debug().
		Str("event_type", string(eventType)).
		Int("connections", delivered).
		Msg("event broadcasted")

	return delivered
}
