// Wikivault - Wiki Backup and Restore Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/wikivault

package logging

import (
	"io"
	"os"
	"strings"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

// ServiceName is attached to every line as "service"
const ServiceName = "wikivault"

// Config selects level, encoding and destination of the process logger.
type Config struct {
	// trace, debug, info, warn, error or disabled. Empty means info.
	Level string `koanf:"level" validate:"omitempty,oneof=trace debug info warn warning error disabled"`

	// json (default) or console
	Format string `koanf:"format" validate:"omitempty,oneof=json console"`

	Caller    bool `koanf:"caller"`
	Timestamp bool `koanf:"timestamp"`

	// Output defaults to os.Stderr
	Output io.Writer `koanf:"-"`
}

// DefaultConfig is what the package uses before Init is called.
func DefaultConfig() Config {
	return Config{Level: "info", Format: "json", Timestamp: true, Output: os.Stderr}
}

var current atomic.Pointer[zerolog.Logger]

//nolint:gochecknoinits // the facade must be usable before main calls Init
func init() {
	zerolog.TimeFieldFormat = time.RFC3339
	zerolog.TimestampFieldName = "time"
	zerolog.MessageFieldName = "message"
	Init(DefaultConfig())
}

// Init replaces the process logger and sets the zerolog global level.
// Safe to call again, e.g. after the config file has been read.
func Init(cfg Config) {
	zerolog.SetGlobalLevel(parseLevel(cfg.Level))
	l := build(cfg)
	current.Store(&l)
}

func build(cfg Config) zerolog.Logger {
	out := cfg.Output
	if out == nil {
		out = os.Stderr
	}
	if strings.EqualFold(cfg.Format, "console") {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: "15:04:05"}
	}

	zctx := zerolog.New(out).With().Str("service", ServiceName)
	if cfg.Timestamp {
		zctx = zctx.Timestamp()
	}
	if cfg.Caller {
		zctx = zctx.Caller()
	}
	return zctx.Logger()
}

// parseLevel maps a config string to a zerolog level; unknown input is info.
func parseLevel(level string) zerolog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "trace":
		return zerolog.TraceLevel
	case "debug":
		return zerolog.DebugLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	case "disabled":
		return zerolog.Disabled
	default:
		return zerolog.InfoLevel
	}
}

// Logger returns a copy of the process logger.
func Logger() zerolog.Logger {
	return *current.Load()
}

// SetLogger swaps the process logger without touching the global level.
// Tests use it to capture output.
//
//nolint:gocritic // zerolog.Logger is passed by value throughout zerolog
func SetLogger(l zerolog.Logger) {
	current.Store(&l)
}

// With starts a child logger context.
//
//	log := logging.With().Str("component", "retention").Logger()
func With() zerolog.Context {
	return current.Load().With()
}

func Trace() *zerolog.Event { return current.Load().Trace() }
func Debug() *zerolog.Event { return current.Load().Debug() }
func Info() *zerolog.Event  { return current.Load().Info() }
func Warn() *zerolog.Event  { return current.Load().Warn() }
func Error() *zerolog.Event { return current.Load().Error() }

// Fatal logs and then calls os.Exit(1).
func Fatal() *zerolog.Event { return current.Load().Fatal() }

// Err logs at error level with err attached, or at info level when err is nil.
//
//	logging.Err(store.Save()).Msg("Runtime backup config saved")
func Err(err error) *zerolog.Event { return current.Load().Err(err) }

// NewTestLogger returns an unfiltered JSON logger writing to w.
func NewTestLogger(w io.Writer) zerolog.Logger {
	return zerolog.New(w).Level(zerolog.TraceLevel)
}
