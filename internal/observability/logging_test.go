package observability

import (
	"bytes"
	"context"
	"strings"
	"testing"
)

func TestLoggerRedactsSecrets(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(LogConfig{Level: "debug", Format: "json", Output: &buf})

	logger.Info(context.Background(), "api_key=abcdefghijklmnopqrstuvwx configured")

	out := buf.String()
	if strings.Contains(out, "abcdefghijklmnopqrstuvwx") {
		t.Fatalf("secret leaked into log output: %s", out)
	}
	if !strings.Contains(out, "[REDACTED]") {
		t.Fatalf("expected redaction marker, got: %s", out)
	}
}

func TestLoggerLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(LogConfig{Level: "warn", Format: "text", Output: &buf})

	logger.Debug(context.Background(), "should not appear")
	logger.Info(context.Background(), "should not appear either")
	logger.Warn(context.Background(), "warn shows up")

	out := buf.String()
	if strings.Contains(out, "should not appear") {
		t.Fatalf("level filter failed: %s", out)
	}
	if !strings.Contains(out, "warn shows up") {
		t.Fatalf("warn record missing: %s", out)
	}
}

func TestLoggerContextCorrelation(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(LogConfig{Level: "info", Format: "json", Output: &buf})

	ctx := context.WithValue(context.Background(), TraceIDKey, "trace-42")
	ctx = context.WithValue(ctx, SessionIDKey, "sess-7")
	logger.Info(ctx, "turn started")

	out := buf.String()
	if !strings.Contains(out, "trace-42") || !strings.Contains(out, "sess-7") {
		t.Fatalf("context IDs missing from record: %s", out)
	}
}

func TestLoggerRedactsAttrValues(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(LogConfig{Level: "info", Format: "json", Output: &buf})

	logger.Info(context.Background(), "provider ready",
		"header", "bearer 0123456789abcdef0123456789abcdef")

	if strings.Contains(buf.String(), "0123456789abcdef0123456789abcdef") {
		t.Fatalf("attr value not redacted: %s", buf.String())
	}
}
