package publisher

import (
	"context"
	"errors"
	"fmt"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog/log"
)

// MQTTConfig configures the MQTT sink.
type MQTTConfig struct {
	Broker   string
	ClientID string
	Topic    string
}

// MQTTPublisher publishes the latest scoreboard envelope as a retained
// message, so a display controller connecting late still gets current state.
type MQTTPublisher struct {
	client paho.Client
	topic  string
}

const mqttConnectTimeout = 10 * time.Second

// NewMQTTPublisher creates a publisher connected to the given broker.
func NewMQTTPublisher(cfg MQTTConfig) (*MQTTPublisher, error) {
	opts := paho.NewClientOptions().
		AddBroker(cfg.Broker).
		SetClientID(cfg.ClientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5 * time.Second).
		SetConnectionLostHandler(func(_ paho.Client, err error) {
			log.Error().Err(err).Str("broker", cfg.Broker).Msg("MQTT connection lost")
		}).
		SetOnConnectHandler(func(_ paho.Client) {
			log.Info().Str("broker", cfg.Broker).Msg("MQTT connected")
		})

	client := paho.NewClient(opts)
	if err := connectMQTT(client, mqttConnectTimeout); err != nil {
		return nil, err
	}

	return &MQTTPublisher{
		client: client,
		topic:  cfg.Topic,
	}, nil
}

// connectMQTT waits for the first connection attempt. With connect retry
// enabled the client keeps dialing in the background, so a failed attempt
// disconnects it before returning.
func connectMQTT(client paho.Client, timeout time.Duration) error {
	token := client.Connect()
	if !token.WaitTimeout(timeout) {
		client.Disconnect(0)
		return errors.New("connection timeout")
	}
	if err := token.Error(); err != nil {
		client.Disconnect(0)
		return fmt.Errorf("connect to broker: %w", err)
	}
	return nil
}

// Publish sends the event envelope with QoS 1, retained.
func (p *MQTTPublisher) Publish(ctx context.Context, event Event) error {
	token := p.client.Publish(p.topic, 1, true, event.Data)

	select {
	case <-token.Done():
	case <-ctx.Done():
		return fmt.Errorf("publish: %w", ctx.Err())
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish: %w", err)
	}
	return nil
}

// IsConnected reports whether the broker connection is up.
func (p *MQTTPublisher) IsConnected() bool {
	return p.client.IsConnected()
}

// Close disconnects from the broker.
func (p *MQTTPublisher) Close() error {
	if p.client == nil {
		return errors.New("mqtt client not initialised")
	}
	p.client.Disconnect(1000) // 1 second quiesce
	return nil
}
