// Package logger configures the process-wide zerolog logger used across
// the ingestion gateway and exposes component-scoped sub-loggers.
package logger

import (
	"os"
	"strings"

	"github.com/rs/zerolog"
)

// Log is the global logger. Initialize must be called once at startup
// before any component logger is derived from it.
var Log zerolog.Logger

// Initialize configures the global logger. level is parsed by zerolog
// ("debug", "info", "warn", "error"); pretty selects a human-readable
// console writer instead of JSON.
func Initialize(level string, pretty bool) {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix

	parsed, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil {
		parsed = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(parsed)

	var w = os.Stdout
	if pretty {
		Log = zerolog.New(zerolog.ConsoleWriter{Out: w, TimeFormat: "15:04:05"}).
			With().Timestamp().Logger()
		return
	}
	Log = zerolog.New(w).With().Timestamp().Logger()
}

func component(name string) zerolog.Logger {
	return Log.With().Str("component", name).Logger()
}

// Ingest returns the sub-logger for the HTTP ingest handler.
func Ingest() zerolog.Logger { return component("ingest") }

// Auth returns the sub-logger for the auth gateway.
func Auth() zerolog.Logger { return component("auth") }

// RateLimit returns the sub-logger for the rate limiter.
func RateLimit() zerolog.Logger { return component("ratelimit") }

// Producer returns the sub-logger for the log producer.
func Producer() zerolog.Logger { return component("producer") }

// Consumer returns the sub-logger for the log consumer + router.
func Consumer() zerolog.Logger { return component("consumer") }

// Retention returns the sub-logger for the retention enforcer.
func Retention() zerolog.Logger { return component("retention") }

// Store returns the sub-logger for the column-store sink.
func Store() zerolog.Logger { return component("store") }
