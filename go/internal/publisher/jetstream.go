package publisher

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog/log"
)

// JetStreamConfig configures the NATS JetStream sink. Scoreboard updates
// are small and superseded quickly, so the stream lives in memory.
type JetStreamConfig struct {
	URL             string
	StreamName      string
	SubjectPrefix   string
	MaxReconnects   int
	ReconnectWait   time.Duration
	MaxAge          time.Duration
	MaxMsgs         int64
	Replicas        int
	DuplicateWindow time.Duration
}

func DefaultJetStreamConfig() JetStreamConfig {
	return JetStreamConfig{
		URL:             nats.DefaultURL,
		StreamName:      "SCOREBOARD_EVENTS",
		SubjectPrefix:   "scoreboard.events",
		MaxReconnects:   -1,
		ReconnectWait:   2 * time.Second,
		MaxAge:          24 * time.Hour,
		MaxMsgs:         10000,
		Replicas:        1,
		DuplicateWindow: 2 * time.Minute,
	}
}

const streamSetupTimeout = 10 * time.Second

// JetStreamPublisher publishes scoreboard events to a JetStream stream, one
// subject per event type.
type JetStreamPublisher struct {
	nc     *nats.Conn
	js     jetstream.JetStream
	config JetStreamConfig
}

func NewJetStreamPublisher(cfg JetStreamConfig) (*JetStreamPublisher, error) {
	nc, err := nats.Connect(cfg.URL,
		nats.Name("scoreboard-gateway"),
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			log.Warn().Err(err).Str("url", cfg.URL).Msg("NATS connection dropped")
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info().Str("url", nc.ConnectedUrl()).Msg("NATS connection restored")
		}),
		nats.ErrorHandler(func(_ *nats.Conn, _ *nats.Subscription, err error) {
			log.Error().Err(err).Msg("NATS async error")
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("create JetStream context: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), streamSetupTimeout)
	defer cancel()
	if err := ensureStream(ctx, js, streamConfig(cfg)); err != nil {
		nc.Close()
		return nil, err
	}

	return &JetStreamPublisher{nc: nc, js: js, config: cfg}, nil
}

// streamConfig derives the stream definition from cfg. The stream captures
// every subject under the prefix.
func streamConfig(cfg JetStreamConfig) jetstream.StreamConfig {
	return jetstream.StreamConfig{
		Name:        cfg.StreamName,
		Description: "Live scoreboard state updates",
		Subjects:    []string{cfg.SubjectPrefix + ".>"},
		Retention:   jetstream.LimitsPolicy,
		MaxAge:      cfg.MaxAge,
		MaxMsgs:     cfg.MaxMsgs,
		Storage:     jetstream.MemoryStorage,
		Replicas:    cfg.Replicas,
		Duplicates:  cfg.DuplicateWindow,
	}
}

// streamAdmin is the part of jetstream.JetStream used to reconcile the stream.
type streamAdmin interface {
	Stream(ctx context.Context, name string) (jetstream.Stream, error)
	CreateStream(ctx context.Context, cfg jetstream.StreamConfig) (jetstream.Stream, error)
	UpdateStream(ctx context.Context, cfg jetstream.StreamConfig) (jetstream.Stream, error)
}

// ensureStream creates the stream when it does not exist and updates it when
// the settings the gateway owns have drifted.
func ensureStream(ctx context.Context, js streamAdmin, want jetstream.StreamConfig) error {
	stream, err := js.Stream(ctx, want.Name)
	switch {
	case errors.Is(err, jetstream.ErrStreamNotFound):
		if _, err := js.CreateStream(ctx, want); err != nil {
			return fmt.Errorf("create stream %s: %w", want.Name, err)
		}
		log.Info().Str("stream", want.Name).Msg("created JetStream stream")
		return nil
	case err != nil:
		return fmt.Errorf("look up stream %s: %w", want.Name, err)
	}

	info, err := stream.Info(ctx)
	if err != nil {
		return fmt.Errorf("stream %s info: %w", want.Name, err)
	}
	if !streamDrifted(info.Config, want) {
		return nil
	}
	if _, err := js.UpdateStream(ctx, want); err != nil {
		return fmt.Errorf("update stream %s: %w", want.Name, err)
	}
	log.Info().Str("stream", want.Name).Msg("updated JetStream stream")
	return nil
}

// streamDrifted reports whether any setting derived from JetStreamConfig
// differs between the live stream and the wanted one.
func streamDrifted(have, want jetstream.StreamConfig) bool {
	return have.Name != want.Name ||
		!slices.Equal(have.Subjects, want.Subjects) ||
		have.MaxAge != want.MaxAge ||
		have.MaxMsgs != want.MaxMsgs ||
		have.Replicas != want.Replicas ||
		have.Duplicates != want.Duplicates
}

// Subject returns the subject an event type is published on.
func (p *JetStreamPublisher) Subject(eventType string) string {
	return subjectFor(p.config.SubjectPrefix, eventType)
}

// Publish stores the event in the stream. The event ID doubles as the
// JetStream message ID, so a retried publish inside the duplicate window is
// stored once.
func (p *JetStreamPublisher) Publish(ctx context.Context, event Event) error {
	id := event.ID.String()
	msg := nats.NewMsg(p.Subject(event.Type))
	msg.Data = event.Data
	msg.Header.Set("Event-Type", event.Type)
	msg.Header.Set("Event-ID", id)

	ack, err := p.js.PublishMsg(ctx, msg,
		jetstream.WithMsgID(id),
		jetstream.WithExpectStream(p.config.StreamName),
	)
	if err != nil {
		return fmt.Errorf("publish %s to JetStream: %w", event.Type, err)
	}

	log.Debug().
		Str("subject", msg.Subject).
		Str("event_id", id).
		Uint64("sequence", ack.Sequence).
		Bool("duplicate", ack.Duplicate).
		Msg("event stored in JetStream")
	return nil
}

// IsConnected reports whether the NATS connection is up.
func (p *JetStreamPublisher) IsConnected() bool {
	return p.nc != nil && p.nc.IsConnected()
}

func (p *JetStreamPublisher) Close() error {
	if p.nc == nil {
		return nil
	}
	if err := p.nc.Drain(); err != nil {
		p.nc.Close()
		return fmt.Errorf("drain NATS connection: %w", err)
	}
	return nil
}

func subjectFor(prefix, eventType string) string {
	return prefix + "." + eventType
}
