package logging

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5/middleware"
)

// captureDefault swaps the default logger for one writing JSON into a
// buffer, restoring the original when the test ends.
func captureDefault(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	old := slog.Default()
	slog.SetDefault(slog.New(slog.NewJSONHandler(&buf, nil)))
	t.Cleanup(func() { slog.SetDefault(old) })
	return &buf
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input string
		want  slog.Level
	}{
		{input: "debug", want: slog.LevelDebug},
		{input: "INFO", want: slog.LevelInfo},
		{input: "warn", want: slog.LevelWarn},
		{input: "warning", want: slog.LevelWarn},
		{input: "error", want: slog.LevelError},
		{input: "bogus", want: slog.LevelInfo},
	}
	for _, tt := range tests {
		if got := parseLevel(tt.input); got != tt.want {
			t.Errorf("parseLevel(%q) = %v, want %v", tt.input, got, tt.want)
		}
	}
}

func TestFromContext_AddsRequestID(t *testing.T) {
	buf := captureDefault(t)
	ctx := context.WithValue(context.Background(), middleware.RequestIDKey, "req-42")

	FromContext(ctx).Info("request")

	if !strings.Contains(buf.String(), `"request_id":"req-42"`) {
		t.Errorf("log line missing request id: %s", buf.String())
	}
}

func TestFromContext_NoRequestID(t *testing.T) {
	buf := captureDefault(t)

	FromContext(context.Background()).Info("request")

	if strings.Contains(buf.String(), "request_id") {
		t.Errorf("log line should have no request id: %s", buf.String())
	}
}

func TestWithFields(t *testing.T) {
	buf := captureDefault(t)
	ctx := context.WithValue(context.Background(), middleware.RequestIDKey, "req-7")

	WithFields(ctx, "table", "Rykker").Info("analyze failed")

	line := buf.String()
	if !strings.Contains(line, `"request_id":"req-7"`) {
		t.Errorf("log line missing request id: %s", line)
	}
	if !strings.Contains(line, `"table":"Rykker"`) {
		t.Errorf("log line missing added field: %s", line)
	}
}
