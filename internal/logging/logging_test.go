package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"DEBUG", slog.LevelDebug},
		{"debug", slog.LevelDebug},
		{"warning", slog.LevelWarn},
		{"ERROR", slog.LevelError},
		{"", slog.LevelInfo},
		{"chatty", slog.LevelInfo},
	}
	for _, tt := range tests {
		if got := ParseLevel(tt.in); got != tt.want {
			t.Fatalf("ParseLevel(%q): expected %v, got %v", tt.in, tt.want, got)
		}
	}
}

func TestNewJSONRespectsLevel(t *testing.T) {
	var buf bytes.Buffer
	l := New(Config{Level: "WARN", Format: "json"}, &buf)

	// 1. Below the level nothing is written.
	l.Info("quiet")
	if buf.Len() != 0 {
		t.Fatalf("expected no output for INFO, got %q", buf.String())
	}

	// 2. At the level one JSON record is written.
	l.Warn("loud", "session", "abc")
	var rec map[string]any
	if err := json.Unmarshal(buf.Bytes(), &rec); err != nil {
		t.Fatalf("expected a JSON record, got %q: %v", buf.String(), err)
	}
	if rec["msg"] != "loud" || rec["session"] != "abc" {
		t.Fatalf("unexpected record %v", rec)
	}
}

func TestNewTextFormat(t *testing.T) {
	var buf bytes.Buffer
	New(Config{Level: "INFO"}, &buf).Info("hello", "n", 1)
	if !strings.Contains(buf.String(), "msg=hello") || !strings.Contains(buf.String(), "n=1") {
		t.Fatalf("expected text record, got %q", buf.String())
	}
}
