package logger

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"
)

func TestJSONOutput(t *testing.T) {
	var buf bytes.Buffer
	log := JSON(&buf, slog.LevelInfo)
	log.Info("loaded", "vocab", 32000)

	out := buf.String()
	if !strings.Contains(out, `"msg":"loaded"`) {
		t.Fatalf("expected msg in output, got: %s", out)
	}
	if !strings.Contains(out, `"vocab":32000`) {
		t.Fatalf("expected vocab attr in output, got: %s", out)
	}
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	log := Text(&buf, slog.LevelWarn)
	log.Info("hidden")
	log.Debug("hidden too")
	if buf.Len() != 0 {
		t.Fatalf("expected no output below warn, got: %s", buf.String())
	}
	log.Warn("shown")
	if !strings.Contains(buf.String(), "shown") {
		t.Fatalf("expected warn message, got: %s", buf.String())
	}
}

func TestWithAddsAttrs(t *testing.T) {
	var buf bytes.Buffer
	log := Text(&buf, slog.LevelInfo).With("request_id", "abc")
	log.Info("step")
	if !strings.Contains(buf.String(), "request_id=abc") {
		t.Fatalf("expected request_id attr, got: %s", buf.String())
	}
}

func TestContextRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	log := Text(&buf, slog.LevelInfo)
	ctx := WithContext(context.Background(), log)
	FromContext(ctx).Info("from ctx")
	if !strings.Contains(buf.String(), "from ctx") {
		t.Fatalf("expected message via context logger, got: %s", buf.String())
	}
	if FromContext(context.Background()) == nil {
		t.Fatal("FromContext returned nil for empty context")
	}
}

func TestParseLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"INFO":    slog.LevelInfo,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"bogus":   slog.LevelInfo,
	}
	for in, want := range cases {
		if got := ParseLevel(in); got != want {
			t.Errorf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestFromFormat(t *testing.T) {
	var buf bytes.Buffer
	FromFormat(&buf, "JSON", slog.LevelInfo).Info("x")
	if !strings.HasPrefix(strings.TrimSpace(buf.String()), "{") {
		t.Fatalf("expected JSON line, got: %s", buf.String())
	}

	buf.Reset()
	FromFormat(&buf, "pretty", slog.LevelInfo).Info("x")
	if !strings.Contains(buf.String(), "msg=x") {
		t.Fatalf("expected text fallback, got: %s", buf.String())
	}
}

func TestDiscard(t *testing.T) {
	log := Discard()
	if _, ok := log.(*SlogLogger); !ok {
		t.Fatalf("expected *SlogLogger, got %T", log)
	}
	log.With("request_id", "abc").Error("dropped")
}
