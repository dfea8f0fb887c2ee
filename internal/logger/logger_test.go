package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"
	"time"
)

func TestSetup_JSON(t *testing.T) {
	var buf bytes.Buffer
	l := Setup("fxanalyst", Config{Level: "warn", Format: "json"}, &buf)

	l.Info("hidden")
	l.Warn("shown", "symbol", "EURUSD")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 1 {
		t.Fatalf("expected one line above warn level, got %d: %s", len(lines), buf.String())
	}
	var entry map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &entry); err != nil {
		t.Fatalf("not JSON: %v", err)
	}
	if entry["service"] != "fxanalyst" || entry["symbol"] != "EURUSD" || entry["msg"] != "shown" {
		t.Errorf("entry = %v", entry)
	}
}

func TestSetup_Text(t *testing.T) {
	var buf bytes.Buffer
	Setup("fxanalyst", Config{Level: "debug", Format: "text"}, &buf).Debug("cycle")
	if !strings.Contains(buf.String(), "msg=cycle") || !strings.Contains(buf.String(), "service=fxanalyst") {
		t.Errorf("unexpected text output %q", buf.String())
	}
}

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug": slog.LevelDebug, "INFO": slog.LevelInfo, "warn": slog.LevelWarn,
		"warning": slog.LevelWarn, "error": slog.LevelError, "bogus": slog.LevelInfo,
	}
	for in, want := range tests {
		if got := ParseLevel(in); got != want {
			t.Errorf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestTraceID_RoundTrip(t *testing.T) {
	ctx := context.Background()

	// No trace ID set
	if tid := TraceID(ctx); tid != "" {
		t.Errorf("expected empty trace id, got %q", tid)
	}

	ctx = WithTraceID(ctx, "EURUSD-1717409700000000000")
	if tid := TraceID(ctx); tid != "EURUSD-1717409700000000000" {
		t.Errorf("unexpected trace id %q", tid)
	}
}

func TestGenerateTraceID(t *testing.T) {
	ts := time.Date(2024, 1, 15, 10, 30, 0, 123456789, time.UTC)
	tid := GenerateTraceID("EURUSD", ts)

	if !strings.HasPrefix(tid, "EURUSD-") {
		t.Errorf("expected trace id to start with 'EURUSD-', got %s", tid)
	}
	// Verify it contains the nano timestamp
	if !strings.Contains(tid, "123456789") {
		t.Errorf("expected trace id to contain nanoseconds, got %s", tid)
	}
}

func TestLogWithTrace(t *testing.T) {
	ctx := context.Background()

	// No trace ID
	if attrs := LogWithTrace(ctx); attrs != nil {
		t.Errorf("expected nil attrs when no trace id, got %v", attrs)
	}

	ctx = WithTraceID(ctx, "abc-123")
	if attrs := LogWithTrace(ctx); len(attrs) != 1 {
		t.Fatalf("expected one attr with trace id set, got %v", attrs)
	}
}
