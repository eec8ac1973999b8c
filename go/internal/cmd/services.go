package main

import (
	"context"
	"fmt"
	"sync"

	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/scoreboard/go/internal/config"
	"github.com/mcdev12/scoreboard/go/internal/gateway"
	"github.com/mcdev12/scoreboard/go/internal/match"
	"github.com/mcdev12/scoreboard/go/internal/publisher"
	"github.com/mcdev12/scoreboard/go/internal/sysstatus"
	"github.com/rs/zerolog/log"
)

type Services struct {
	Store      *match.Store
	Status     *sysstatus.Tracker
	Dispatcher *publisher.Dispatcher
	Gateway    *gateway.Service
}

func setupServices(cfg config.Config) (*Services, error) {
	// Wire up dependency chain
	// Store → sinks → gateway
	clock := clockwork.NewRealClock()

	store := match.NewStore(clock)
	status := sysstatus.NewTracker(clock, cfg.IncludeMemoryStats)

	sinks, err := setupSinks(cfg.Sinks)
	if err != nil {
		return nil, err
	}

	var dispatcher *publisher.Dispatcher
	var sink gateway.EventSink
	if len(sinks) > 0 {
		dispatcherCfg := publisher.DefaultDispatcherConfig()
		dispatcherCfg.QueueSize = cfg.Sinks.QueueSize
		dispatcher = publisher.NewDispatcher(dispatcherCfg, sinks)
		sink = dispatcher
	}

	gw := gateway.NewService(gatewayConfig(cfg), store, status, sink, clock)

	return &Services{
		Store:      store,
		Status:     status,
		Dispatcher: dispatcher,
		Gateway:    gw,
	}, nil
}

func setupSinks(cfg config.SinksConfig) (map[string]publisher.EventPublisher, error) {
	sinks := make(map[string]publisher.EventPublisher)

	if cfg.NATS.Enabled {
		jsCfg := publisher.DefaultJetStreamConfig()
		jsCfg.URL = cfg.NATS.URL
		jsCfg.StreamName = cfg.NATS.StreamName
		jsCfg.SubjectPrefix = cfg.NATS.SubjectPrefix

		js, err := publisher.NewJetStreamPublisher(jsCfg)
		if err != nil {
			return nil, fmt.Errorf("failed to create JetStream publisher: %w", err)
		}
		sinks["nats"] = js
		log.Info().Str("url", jsCfg.URL).Str("stream", jsCfg.StreamName).Msg("JetStream sink enabled")
	}

	if cfg.MQTT.Enabled {
		mq, err := publisher.NewMQTTPublisher(publisher.MQTTConfig{
			Broker:   cfg.MQTT.Broker,
			ClientID: cfg.MQTT.ClientID,
			Topic:    cfg.MQTT.Topic,
		})
		if err != nil {
			for _, s := range sinks {
				_ = s.Close()
			}
			return nil, fmt.Errorf("failed to create MQTT publisher: %w", err)
		}
		sinks["mqtt"] = mq
		log.Info().Str("broker", cfg.MQTT.Broker).Str("topic", cfg.MQTT.Topic).Msg("MQTT sink enabled")
	}

	return sinks, nil
}

// Start launches the background loops. The returned channel is closed once
// all of them have stopped after ctx is cancelled.
func (s *Services) Start(ctx context.Context) <-chan struct{} {
	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := s.Gateway.Start(ctx); err != nil {
			log.Error().Err(err).Msg("scoreboard gateway failed")
		}
	}()

	if s.Dispatcher != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.Dispatcher.Run(ctx)
		}()
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	return done
}
