package logging

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		raw  string
		want zerolog.Level
		ok   bool
	}{
		{"", zerolog.InfoLevel, false},
		{"trace", zerolog.TraceLevel, true},
		{" DEBUG ", zerolog.DebugLevel, true},
		{"warning", zerolog.WarnLevel, true},
		{"error", zerolog.ErrorLevel, true},
		{"off", zerolog.Disabled, true},
		{"loud", zerolog.InfoLevel, false},
	}
	for _, tt := range tests {
		got, ok := parseLevel(tt.raw)
		if got != tt.want || ok != tt.ok {
			t.Errorf("parseLevel(%q) = %v, %v; want %v, %v", tt.raw, got, ok, tt.want, tt.ok)
		}
	}
}

func TestNewJSON(t *testing.T) {
	t.Setenv(EnvLogLevel, "")
	t.Setenv(EnvLogFormat, "")

	var buf bytes.Buffer
	log := Component(New(Options{Level: "warn", Format: "json", Output: &buf}), "manager")
	log.Info().Msg("hidden")
	log.Warn().Str("interface", "vcan0").Msg("shown")

	var entry map[string]any
	if err := json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &entry); err != nil {
		t.Fatalf("output %q is not one JSON line: %v", buf.String(), err)
	}
	if entry["message"] != "shown" || entry["component"] != "manager" || entry["level"] != "warn" {
		t.Errorf("entry = %v", entry)
	}
}

func TestEnvOverridesLevel(t *testing.T) {
	t.Setenv(EnvLogLevel, "error")
	t.Setenv(EnvLogFormat, "json")

	var buf bytes.Buffer
	log := New(Options{Level: "debug", Format: "console", Output: &buf})
	log.Warn().Msg("dropped")
	if buf.Len() != 0 {
		t.Errorf("warn logged at error level: %q", buf.String())
	}
	if log.GetLevel() != zerolog.ErrorLevel {
		t.Errorf("level = %v, want error", log.GetLevel())
	}
}
