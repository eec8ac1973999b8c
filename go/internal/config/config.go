// Package config loads scoreboard gateway settings from defaults, an optional
// YAML file and environment variables, in that order of precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// ConfigFileEnv names the environment variable pointing at a YAML config file.
const ConfigFileEnv = "SCOREBOARD_CONFIG"

// Config holds all runtime settings for the scoreboard server.
type Config struct {
	Port               string        `yaml:"port"`
	LogLevel           string        `yaml:"log_level"`
	LogFormat          string        `yaml:"log_format"`
	IncludeMemoryStats bool          `yaml:"include_memory_stats"`
	ShutdownTimeout    time.Duration `yaml:"shutdown_timeout"`
	Gateway            GatewayConfig `yaml:"gateway"`
	Sinks              SinksConfig   `yaml:"sinks"`
}

// GatewayConfig tunes WebSocket connections and the heartbeat cycle.
type GatewayConfig struct {
	HeartbeatInterval time.Duration `yaml:"heartbeat_interval"`
	WriteTimeout      time.Duration `yaml:"write_timeout"`
	SendBufferSize    int           `yaml:"send_buffer_size"`
	MaxMessageSize    int64         `yaml:"max_message_size"`
	MessageRate       float64       `yaml:"message_rate"`
	MessageBurst      int           `yaml:"message_burst"`
}

// SinksConfig configures the optional outbound event sinks.
type SinksConfig struct {
	QueueSize int        `yaml:"queue_size"`
	NATS      NATSConfig `yaml:"nats"`
	MQTT      MQTTConfig `yaml:"mqtt"`
}

// NATSConfig configures the JetStream sink.
type NATSConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	StreamName    string `yaml:"stream_name"`
	SubjectPrefix string `yaml:"subject_prefix"`
}

// MQTTConfig configures the MQTT sink.
type MQTTConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Broker   string `yaml:"broker"`
	ClientID string `yaml:"client_id"`
	Topic    string `yaml:"topic"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Port:            "3000",
		LogLevel:        "info",
		LogFormat:       "console",
		ShutdownTimeout: 10 * time.Second,
		Gateway: GatewayConfig{
			HeartbeatInterval: 30 * time.Second,
			WriteTimeout:      10 * time.Second,
			SendBufferSize:    64,
			MaxMessageSize:    16 * 1024,
			MessageRate:       20,
			MessageBurst:      40,
		},
		Sinks: SinksConfig{
			QueueSize: 256,
			NATS: NATSConfig{
				URL:           "nats://127.0.0.1:4222",
				StreamName:    "SCOREBOARD_EVENTS",
				SubjectPrefix: "scoreboard.events",
			},
			MQTT: MQTTConfig{
				Broker:   "tcp://127.0.0.1:1883",
				ClientID: "scoreboard-gateway",
				Topic:    "scoreboard/state",
			},
		},
	}
}

// LoadDotEnv loads environment variables from a .env file if present.
// Existing environment variables are not overwritten.
func LoadDotEnv(path string) error {
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	return godotenv.Load(path)
}

// Load builds the configuration: defaults, then the YAML file named by
// SCOREBOARD_CONFIG (if set), then environment variables.
func Load() (Config, error) {
	cfg := Default()

	if path := os.Getenv(ConfigFileEnv); path != "" {
		if err := cfg.loadFile(path); err != nil {
			return cfg, err
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config: %w", err)
	}
	return nil
}

func (c *Config) applyEnv() {
	c.Port = getEnv("PORT", c.Port)
	c.LogLevel = getEnv("LOG_LEVEL", c.LogLevel)
	c.LogFormat = getEnv("LOG_FORMAT", c.LogFormat)
	c.IncludeMemoryStats = getEnvAsBool("INCLUDE_MEMORY_STATS", c.IncludeMemoryStats)
	c.ShutdownTimeout = getEnvAsDuration("SHUTDOWN_TIMEOUT", c.ShutdownTimeout)

	g := &c.Gateway
	g.HeartbeatInterval = getEnvAsDuration("HEARTBEAT_INTERVAL", g.HeartbeatInterval)
	g.WriteTimeout = getEnvAsDuration("WRITE_TIMEOUT", g.WriteTimeout)
	g.SendBufferSize = getEnvAsInt("SEND_BUFFER_SIZE", g.SendBufferSize)
	g.MaxMessageSize = int64(getEnvAsInt("MAX_MESSAGE_SIZE", int(g.MaxMessageSize)))
	g.MessageRate = getEnvAsFloat("MESSAGE_RATE", g.MessageRate)
	g.MessageBurst = getEnvAsInt("MESSAGE_BURST", g.MessageBurst)

	s := &c.Sinks
	s.QueueSize = getEnvAsInt("SINK_QUEUE_SIZE", s.QueueSize)
	s.NATS.Enabled = getEnvAsBool("NATS_ENABLED", s.NATS.Enabled)
	s.NATS.URL = getEnv("NATS_URL", s.NATS.URL)
	s.NATS.StreamName = getEnv("NATS_STREAM", s.NATS.StreamName)
	s.NATS.SubjectPrefix = getEnv("NATS_SUBJECT_PREFIX", s.NATS.SubjectPrefix)
	s.MQTT.Enabled = getEnvAsBool("MQTT_ENABLED", s.MQTT.Enabled)
	s.MQTT.Broker = getEnv("MQTT_BROKER", s.MQTT.Broker)
	s.MQTT.ClientID = getEnv("MQTT_CLIENT_ID", s.MQTT.ClientID)
	s.MQTT.Topic = getEnv("MQTT_TOPIC", s.MQTT.Topic)
}

// Validate rejects settings the gateway cannot run with.
func (c Config) Validate() error {
	var errs []error
	if c.Port == "" {
		errs = append(errs, errors.New("port must be set"))
	}
	if c.Gateway.HeartbeatInterval <= 0 {
		errs = append(errs, errors.New("heartbeat interval must be positive"))
	}
	if c.Gateway.WriteTimeout <= 0 {
		errs = append(errs, errors.New("write timeout must be positive"))
	}
	if c.Gateway.SendBufferSize < 1 {
		errs = append(errs, errors.New("send buffer size must be at least 1"))
	}
	if c.Gateway.MaxMessageSize < 512 {
		errs = append(errs, errors.New("max message size must be at least 512 bytes"))
	}
	if c.Gateway.MessageRate <= 0 || c.Gateway.MessageBurst < 1 {
		errs = append(errs, errors.New("message rate and burst must be positive"))
	}
	if c.Sinks.QueueSize < 1 {
		errs = append(errs, errors.New("sink queue size must be at least 1"))
	}
	if c.Sinks.NATS.Enabled && c.Sinks.NATS.URL == "" {
		errs = append(errs, errors.New("nats url must be set when nats is enabled"))
	}
	if c.Sinks.MQTT.Enabled && c.Sinks.MQTT.Broker == "" {
		errs = append(errs, errors.New("mqtt broker must be set when mqtt is enabled"))
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
