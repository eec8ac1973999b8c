package main

import (
	"os"
	"strings"

	"github.com/mcdev12/scoreboard/go/internal/config"
	"github.com/mcdev12/scoreboard/go/internal/gateway"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func setupLogging(cfg config.Config) {
	if !strings.EqualFold(cfg.LogFormat, "json") {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}

	level, err := zerolog.ParseLevel(strings.ToLower(cfg.LogLevel))
	if err != nil || level == zerolog.NoLevel {
		log.Warn().Str("log_level", cfg.LogLevel).Msg("unknown log level, using info")
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
}

func gatewayConfig(cfg config.Config) gateway.Config {
	gc := gateway.DefaultConfig()
	conn := &gc.ConnectionConfig
	conn.HeartbeatInterval = cfg.Gateway.HeartbeatInterval
	conn.WriteTimeout = cfg.Gateway.WriteTimeout
	conn.SendBufferSize = cfg.Gateway.SendBufferSize
	conn.MaxMessageSize = cfg.Gateway.MaxMessageSize
	conn.MessageRate = cfg.Gateway.MessageRate
	conn.MessageBurst = cfg.Gateway.MessageBurst
	return gc
}
