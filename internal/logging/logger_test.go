package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"testing"
)

func TestParseLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		" WARN ":  slog.LevelWarn,
		"warning": slog.LevelWarn,
		"Error":   slog.LevelError,
		"":        slog.LevelInfo,
		"verbose": slog.LevelInfo,
	}
	for in, want := range cases {
		if got := ParseLevel(in); got != want {
			t.Errorf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestLoggerEmitsServiceField(t *testing.T) {
	var buf bytes.Buffer
	l := newLogger(&buf, "matching-api", "info")
	l.Debug("hidden")
	l.Info("visible", "match_id", "M1")

	var rec map[string]any
	if err := json.Unmarshal(buf.Bytes(), &rec); err != nil {
		t.Fatalf("expected exactly one JSON record, got %q: %v", buf.String(), err)
	}
	if rec["service"] != "matching-api" || rec["match_id"] != "M1" || rec["msg"] != "visible" {
		t.Fatalf("unexpected record %v", rec)
	}
}

func TestFromContext(t *testing.T) {
	fallback := slog.New(slog.NewTextHandler(io.Discard, nil))
	if got := FromContext(context.Background(), fallback); got != fallback {
		t.Fatal("expected fallback without a request logger")
	}
	reqLogger := fallback.With("request_id", "r1")
	ctx := WithLogger(context.Background(), reqLogger)
	if got := FromContext(ctx, fallback); got != reqLogger {
		t.Fatal("expected the request logger")
	}
	if FromContext(context.Background(), nil) != slog.Default() {
		t.Fatal("expected slog.Default with no fallback")
	}
}
