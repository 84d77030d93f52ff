package logx

import (
	"bytes"
	"strings"
	"testing"
)

func TestNewLoggerLevel(t *testing.T) {
	var buf bytes.Buffer
	log := NewLogger(&buf, "warn")
	log.Info().Msg("hidden")
	log.Warn().Str("identity", "u1").Msg("shown")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Errorf("info message written at warn level: %q", out)
	}
	if !strings.Contains(out, "shown") || !strings.Contains(out, "identity=") {
		t.Errorf("warn message missing or without fields: %q", out)
	}
	if !strings.Contains(out, "logx_test.go:") {
		t.Errorf("caller not recorded: %q", out)
	}
}

func TestNewLoggerUnknownLevel(t *testing.T) {
	var buf bytes.Buffer
	log := NewLogger(&buf, "loud")
	log.Debug().Msg("quiet-message")
	log.Info().Msg("info-message")
	if strings.Contains(buf.String(), "quiet-message") {
		t.Errorf("debug message written at default level: %q", buf.String())
	}
	if !strings.Contains(buf.String(), "info-message") {
		t.Errorf("info message missing: %q", buf.String())
	}
}
