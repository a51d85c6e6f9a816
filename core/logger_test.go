package core

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"
)

// TestSlogLogger_LevelFilter verifies the handler level gates output and
// fields become attributes
func TestSlogLogger_LevelFilter(t *testing.T) {
	var buf bytes.Buffer
	logger := NewSlogLogger(slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelInfo})))

	logger.Debug("hidden")
	logger.Info("Starting 10ms timer.", F("group", 0))
	logger.Error("Failed to create semaphore: ppm.")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Fatalf("debug line written at info level: %q", out)
	}
	if !strings.Contains(out, `msg="Starting 10ms timer."`) || !strings.Contains(out, "group=0") {
		t.Fatalf("info line missing: %q", out)
	}
	if !strings.Contains(out, "level=ERROR") {
		t.Fatalf("error line missing: %q", out)
	}
}

// TestWithTag verifies the component tag is the first field
func TestWithTag(t *testing.T) {
	rec := &recordingLogger{}
	logger := WithTag(rec, "startup")

	logger.Warn("degraded", F("feature", "audio"))

	if got := rec.count("WARN degraded tag=startup feature=audio"); got != 1 {
		t.Fatalf("tagged lines = %d, want 1 (lines: %v)", got, rec.lines)
	}

	// nil falls back to a no-op logger
	WithTag(nil, "x").Info("dropped")
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    slog.Level
		wantErr bool
	}{
		{"debug", slog.LevelDebug, false},
		{"INFO", slog.LevelInfo, false},
		{"", slog.LevelInfo, false},
		{"warning", slog.LevelWarn, false},
		{" error ", slog.LevelError, false},
		{"verbose", slog.LevelInfo, true},
	}
	for _, tt := range tests {
		got, err := ParseLevel(tt.in)
		if (err != nil) != tt.wantErr {
			t.Fatalf("ParseLevel(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
		}
		if got != tt.want {
			t.Fatalf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}
