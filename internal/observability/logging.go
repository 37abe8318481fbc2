// Package observability builds the zap loggers used across the room server.
package observability

import (
	"fmt"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/cory-johannsen/roomserver/internal/config"
)

// severityAliases maps the severity names used by room protocol tooling onto
// zap levels.
var severityAliases = map[string]zapcore.Level{
	"fine":    zapcore.DebugLevel,
	"finest":  zapcore.DebugLevel,
	"warning": zapcore.WarnLevel,
	"severe":  zapcore.ErrorLevel,
}

// ParseLevel parses a zap level name or one of the aliases fine, warning
// and severe. Matching is case-insensitive.
func ParseLevel(name string) (zapcore.Level, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	if lvl, ok := severityAliases[name]; ok {
		return lvl, nil
	}
	return zapcore.ParseLevel(name)
}

// NewLogger creates a structured logger from the given logging configuration.
//
// Precondition: cfg.Level must be a level accepted by ParseLevel.
// Precondition: cfg.Format must be "json" or "console".
// Postcondition: Returns a configured zap.Logger or a non-nil error.
func NewLogger(cfg config.LoggingConfig) (*zap.Logger, error) {
	level, err := ParseLevel(cfg.Level)
	if err != nil {
		return nil, fmt.Errorf("parsing log level %q: %w", cfg.Level, err)
	}

	var zapCfg zap.Config
	switch cfg.Format {
	case "json":
		zapCfg = zap.NewProductionConfig()
	case "console":
		zapCfg = zap.NewDevelopmentConfig()
	default:
		return nil, fmt.Errorf("unknown log format %q", cfg.Format)
	}

	zapCfg.Level = zap.NewAtomicLevelAt(level)
	zapCfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	logger, err := zapCfg.Build(zap.AddStacktrace(zapcore.ErrorLevel))
	if err != nil {
		return nil, fmt.Errorf("building logger: %w", err)
	}
	return logger, nil
}

// ConnLogger returns a child logger tagged with a connection's identity.
func ConnLogger(logger *zap.Logger, transport, connID, remoteAddr string) *zap.Logger {
	return logger.With(
		zap.String("transport", transport),
		zap.String("conn_id", connID),
		zap.String("remote_addr", remoteAddr),
	)
}
