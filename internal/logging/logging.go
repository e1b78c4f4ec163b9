// Package logging builds the zerolog loggers used across the gateway.
package logging

import (
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

const (
	EnvLogLevel   = "TCC_LOG_LEVEL"
	EnvLogFormat  = "TCC_LOG_FORMAT"
	EnvLogNoColor = "TCC_LOG_NOCOLOR"
)

// Options selects level and output format. Format is "console" or "json".
type Options struct {
	Level   string
	Format  string
	NoColor bool
	Output  io.Writer
}

// New returns a root logger. Environment variables override opts.
func New(opts Options) zerolog.Logger {
	applyEnvOverrides(&opts)

	level, ok := parseLevel(opts.Level)
	if !ok {
		level = zerolog.InfoLevel
	}

	out := opts.Output
	if out == nil {
		out = os.Stderr
	}
	if !strings.EqualFold(strings.TrimSpace(opts.Format), "json") {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339, NoColor: opts.NoColor}
	}

	return zerolog.New(out).Level(level).With().Timestamp().Logger()
}

// Component returns a child logger tagged with the component name
func Component(parent zerolog.Logger, name string) zerolog.Logger {
	return parent.With().Str("component", name).Logger()
}

func applyEnvOverrides(opts *Options) {
	if v := strings.TrimSpace(os.Getenv(EnvLogLevel)); v != "" {
		opts.Level = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvLogFormat)); v != "" {
		opts.Format = v
	}
	if v, ok := parseBool(os.Getenv(EnvLogNoColor)); ok {
		opts.NoColor = v
	}
}

// ParseLevel reports whether raw names a known level
func ParseLevel(raw string) (zerolog.Level, bool) { return parseLevel(raw) }

func parseLevel(raw string) (zerolog.Level, bool) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "":
		return zerolog.InfoLevel, false
	case "trace":
		return zerolog.TraceLevel, true
	case "debug":
		return zerolog.DebugLevel, true
	case "info":
		return zerolog.InfoLevel, true
	case "warn", "warning":
		return zerolog.WarnLevel, true
	case "error":
		return zerolog.ErrorLevel, true
	case "disabled", "disable", "off", "none":
		return zerolog.Disabled, true
	default:
		return zerolog.InfoLevel, false
	}
}

func parseBool(raw string) (bool, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return false, false
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, false
	}
	return v, true
}
