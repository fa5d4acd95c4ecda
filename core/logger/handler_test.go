package logger

import (
	"bytes"
	"encoding/json"
	"io"
	"strings"
	"testing"

	"log/slog"
)

func TestStructuredHandlerKVOrder(t *testing.T) {
	buf := &bytes.Buffer{}
	aw := newAsyncWriter([]io.Writer{buf}, 1024)
	handler := newStructuredHandler(handlerConfig{
		level:  slog.LevelInfo,
		writer: aw,
		format: formatKV,
	})
	ctx := WithRID(Background(), "rid-123")
	ctx = WithRecordID(ctx, "u1")

	log := slog.New(handler).With("component", "service.import")
	LogEvent(ctx, log, slog.LevelInfo, "import.accepted",
		slog.String("status", "ok"),
		slog.Int("contacts", 3),
	)
	if err := aw.Flush(); err != nil {
		t.Fatalf("flush: %v", err)
	}
	if err := aw.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	line := strings.TrimSpace(buf.String())
	if line == "" {
		t.Fatal("expected log line")
	}
	tokens := strings.Split(line, " ")
	expected := []string{"ts=", "level=INFO", "component=service.import", "event=import.accepted", "status=ok", "record_id=u1", "rid=rid-123"}
	if len(tokens) < len(expected) {
		t.Fatalf("unexpected token count: %d (%s)", len(tokens), line)
	}
	for i, prefix := range expected {
		if !strings.HasPrefix(tokens[i], prefix) {
			t.Fatalf("token %d = %s, expected prefix %s", i, tokens[i], prefix)
		}
	}
}

func TestStructuredHandlerJSON(t *testing.T) {
	buf := &bytes.Buffer{}
	aw := newAsyncWriter([]io.Writer{buf}, 1024)
	handler := newStructuredHandler(handlerConfig{
		level:  slog.LevelInfo,
		writer: aw,
		format: formatJSON,
	})
	ctx := WithRID(Background(), "rid-json")

	log := slog.New(handler).With("component", "service.moderation")
	LogEvent(ctx, log, slog.LevelError, "decision.failed",
		slog.String("status", "fail"),
		slog.String("err", "boom"),
		slog.String("err_code", "FORBIDDEN"),
	)
	if err := aw.Flush(); err != nil {
		t.Fatalf("flush: %v", err)
	}
	if err := aw.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	line := strings.TrimSpace(buf.String())
	if !strings.HasPrefix(line, "{") {
		t.Fatalf("expected JSON, got %s", line)
	}
	var parsed map[string]any
	if err := json.Unmarshal([]byte(line), &parsed); err != nil {
		t.Fatalf("unmarshal: %v (%s)", err, line)
	}
	for k, want := range map[string]string{
		"level":     "ERROR",
		"component": "service.moderation",
		"event":     "decision.failed",
		"err_code":  "FORBIDDEN",
		"rid":       "rid-json",
	} {
		if got, _ := parsed[k].(string); got != want {
			t.Fatalf("field %s = %q, want %q", k, got, want)
		}
	}
}

func TestStructuredHandlerLevelFilter(t *testing.T) {
	buf := &bytes.Buffer{}
	aw := newAsyncWriter([]io.Writer{buf}, 1024)
	handler := newStructuredHandler(handlerConfig{
		level:  slog.LevelWarn,
		writer: aw,
		format: formatKV,
	})

	log := slog.New(handler)
	log.Info("dropped")
	log.Warn("kept")

	if err := aw.Flush(); err != nil {
		t.Fatalf("flush: %v", err)
	}
	if err := aw.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	out := buf.String()
	if strings.Contains(out, "dropped") {
		t.Fatalf("info line should be filtered: %s", out)
	}
	if !strings.Contains(out, "kept") {
		t.Fatalf("warn line missing: %s", out)
	}
}
