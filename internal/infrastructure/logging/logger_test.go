package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"

	"github.com/nerrad567/gray-logic-things/internal/infrastructure/config"
)

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"DEBUG":   slog.LevelDebug,
		"info":    slog.LevelInfo,
		"warn":    slog.LevelWarn,
		"Warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"verbose": slog.LevelInfo,
		"":        slog.LevelInfo,
	}
	for in, want := range tests {
		if got := parseLevel(in); got != want {
			t.Errorf("parseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestNewWithWriter_Formats(t *testing.T) {
	tests := []struct {
		format string
		check  func(t *testing.T, out []byte)
	}{
		{"json", func(t *testing.T, out []byte) {
			var entry map[string]any
			if err := json.Unmarshal(out, &entry); err != nil {
				t.Fatalf("output is not JSON: %v (%s)", err, out)
			}
			if entry["msg"] != "thing added" || entry["thing"] != "lamp" || entry["version"] != "1.2.3" {
				t.Errorf("entry = %v", entry)
			}
		}},
		{"TEXT", func(t *testing.T, out []byte) {
			s := string(out)
			if !strings.Contains(s, `msg="thing added"`) || !strings.Contains(s, "thing=lamp") {
				t.Errorf("text output = %q", s)
			}
		}},
	}
	for _, tt := range tests {
		t.Run(tt.format, func(t *testing.T) {
			var buf bytes.Buffer
			NewWithWriter(config.LoggingConfig{Level: "info", Format: tt.format}, "1.2.3", &buf).
				Info("thing added", "thing", "lamp")
			tt.check(t, buf.Bytes())
		})
	}
}

func TestLogger_Component(t *testing.T) {
	var buf bytes.Buffer
	parent := NewWithWriter(config.LoggingConfig{Level: "info", Format: "json"}, "1.0.0", &buf)

	child := parent.Component("registry").With("thing", "lamp")
	if child == parent {
		t.Fatal("Component() returned the parent logger")
	}
	child.Info("thing added")

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("failed to parse JSON output: %v", err)
	}
	for key, want := range map[string]string{"component": "registry", "thing": "lamp", "service": serviceName} {
		if entry[key] != want {
			t.Errorf("%s = %v, want %q", key, entry[key], want)
		}
	}
}

func TestLogger_LevelFiltering(t *testing.T) {
	var buf bytes.Buffer

	logger := NewWithWriter(config.LoggingConfig{Level: "warn", Format: "text"}, "dev", &buf)
	logger.Info("hidden")
	logger.Warn("shown")

	output := buf.String()
	if strings.Contains(output, "hidden") {
		t.Error("info entry should be filtered at warn level")
	}
	if !strings.Contains(output, "shown") {
		t.Error("warn entry should be written at warn level")
	}
}

func TestDefaultAndDiscard(t *testing.T) {
	if Default() == nil {
		t.Fatal("Default() = nil")
	}
	d := Discard()
	if d.Enabled(nil, slog.LevelError) { //nolint:staticcheck // nil context is accepted by Enabled
		t.Error("Discard() logger reports error level enabled")
	}
	d.Error("dropped")
}
