// Package publisher forwards scoreboard broadcasts to external event sinks
// (NATS JetStream, MQTT) so consumers outside the WebSocket fan-out, such as
// LED panel controllers, see every state change.
package publisher

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// Event is one serialized scoreboard broadcast.
type Event struct {
	ID        uuid.UUID
	Type      string
	Data      []byte // the exact envelope sent to WebSocket clients
	CreatedAt time.Time
}

// NewEvent wraps an already-serialized envelope.
func NewEvent(eventType string, data []byte, createdAt time.Time) Event {
	return Event{
		ID:        uuid.New(),
		Type:      eventType,
		Data:      data,
		CreatedAt: createdAt,
	}
}

// EventPublisher delivers events to one external sink.
type EventPublisher interface {
	Publish(ctx context.Context, event Event) error
	Close() error
}

// DispatcherConfig holds dispatcher settings.
type DispatcherConfig struct {
	QueueSize      int
	PublishTimeout time.Duration
}

// DefaultDispatcherConfig returns default dispatcher settings.
func DefaultDispatcherConfig() DispatcherConfig {
	return DispatcherConfig{
		QueueSize:      256,
		PublishTimeout: 5 * time.Second,
	}
}

// Dispatcher queues events and publishes them to every configured sink from
// a single goroutine, so callers never block on a slow broker.
type Dispatcher struct {
	publishers map[string]EventPublisher
	queue      chan Event
	config     DispatcherConfig

	published   atomic.Uint64
	failed      atomic.Uint64
	dropped     atomic.Uint64
	lastPublish atomic.Int64 // unix ms
	running     atomic.Bool
}

// DispatcherStats are cumulative dispatcher counters.
type DispatcherStats struct {
	Published   uint64
	Failed      uint64
	Dropped     uint64
	QueueDepth  int
	LastPublish time.Time
	Running     bool
}

// NewDispatcher creates a dispatcher for the named publishers.
func NewDispatcher(config DispatcherConfig, publishers map[string]EventPublisher) *Dispatcher {
	if config.QueueSize < 1 {
		config.QueueSize = DefaultDispatcherConfig().QueueSize
	}
	if config.PublishTimeout <= 0 {
		config.PublishTimeout = DefaultDispatcherConfig().PublishTimeout
	}
	return &Dispatcher{
		publishers: publishers,
		queue:      make(chan Event, config.QueueSize),
		config:     config,
	}
}

// Enqueue queues an event without blocking. It reports false when the queue
// is full and the event was dropped.
func (d *Dispatcher) Enqueue(event Event) bool {
	select {
	case d.queue <- event:
		return true
	default:
		d.dropped.Add(1)
		log.Warn().
			Str("event_type", event.Type).
			Str("event_id", event.ID.String()).
			Msg("sink queue full, dropping event")
		return false
	}
}

// Run publishes queued events until ctx is cancelled, then closes every
// publisher.
func (d *Dispatcher) Run(ctx context.Context) {
	log.Info().Int("sinks", len(d.publishers)).Msg("event dispatcher started")
	d.running.Store(true)
	defer func() {
		d.running.Store(false)
		d.closeAll()
	}()

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("event dispatcher shutting down")
			return
		case event := <-d.queue:
			d.publish(ctx, event)
		}
	}
}

func (d *Dispatcher) publish(ctx context.Context, event Event) {
	for name, p := range d.publishers {
		pubCtx, cancel := context.WithTimeout(ctx, d.config.PublishTimeout)
		err := p.Publish(pubCtx, event)
		cancel()
		if err != nil {
			d.failed.Add(1)
			log.Error().
				Err(err).
				Str("sink", name).
				Str("event_type", event.Type).
				Str("event_id", event.ID.String()).
				Msg("failed to publish event")
			continue
		}
		d.published.Add(1)
		d.lastPublish.Store(time.Now().UnixMilli())
	}
}

// Stats returns the dispatcher counters. Published and Failed count
// per-sink deliveries.
func (d *Dispatcher) Stats() DispatcherStats {
	stats := DispatcherStats{
		Published:  d.published.Load(),
		Failed:     d.failed.Load(),
		Dropped:    d.dropped.Load(),
		QueueDepth: len(d.queue),
		Running:    d.running.Load(),
	}
	if ms := d.lastPublish.Load(); ms > 0 {
		stats.LastPublish = time.UnixMilli(ms)
	}
	return stats
}

func (d *Dispatcher) closeAll() {
	for name, p := range d.publishers {
		if err := p.Close(); err != nil {
			log.Error().Err(err).Str("sink", name).Msg("failed to close sink")
		}
	}
}
