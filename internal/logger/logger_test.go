package logger

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"

	"github.com/goccy/go-json"
)

func TestJSONFormat(t *testing.T) {
	var buf bytes.Buffer
	log := New(&buf, "json", slog.LevelInfo)
	log.Info("model preflight", "arch", "llama", "tensors", 291)

	var rec map[string]any
	if err := json.Unmarshal(buf.Bytes(), &rec); err != nil {
		t.Fatalf("output is not JSON: %v (%q)", err, buf.String())
	}
	if rec["msg"] != "model preflight" {
		t.Fatalf("msg = %v", rec["msg"])
	}
	if rec["arch"] != "llama" {
		t.Fatalf("arch = %v", rec["arch"])
	}
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	log := New(&buf, "text", slog.LevelInfo)
	log.Debug("cache decision", "common", 3)
	if buf.Len() != 0 {
		t.Fatalf("debug record leaked at info level: %q", buf.String())
	}
	log.Warn("mlock failed")
	if !strings.Contains(buf.String(), "mlock failed") {
		t.Fatalf("warn record missing: %q", buf.String())
	}
}

func TestPrettyFormat(t *testing.T) {
	var buf bytes.Buffer
	log := New(&buf, "pretty", slog.LevelDebug)
	log.Info("state restored", "tokens", 42)

	out := buf.String()
	if !strings.Contains(out, "INFO") {
		t.Fatalf("missing level label: %q", out)
	}
	if !strings.Contains(out, "state restored") {
		t.Fatalf("missing message: %q", out)
	}
	if !strings.Contains(out, "tokens") || !strings.Contains(out, "42") {
		t.Fatalf("missing attrs: %q", out)
	}
	if strings.Count(out, "\n") != 1 {
		t.Fatalf("pretty output must stay single-line: %q", out)
	}
}

func TestWithAttrs(t *testing.T) {
	var buf bytes.Buffer
	log := New(&buf, "pretty", slog.LevelInfo).With("turn", 7)
	log.Info("prefill done")
	if !strings.Contains(buf.String(), "turn") {
		t.Fatalf("bound attr missing: %q", buf.String())
	}
}

func TestContextPlumbing(t *testing.T) {
	var buf bytes.Buffer
	log := New(&buf, "text", slog.LevelInfo)
	ctx := WithContext(context.Background(), log)
	FromContext(ctx).Info("via context")
	if !strings.Contains(buf.String(), "via context") {
		t.Fatalf("context logger not used: %q", buf.String())
	}
}

func TestFromContextFallback(t *testing.T) {
	if FromContext(context.Background()) == nil {
		t.Fatalf("expected a fallback logger")
	}
}

func TestParseLevel(t *testing.T) {
	cases := []struct {
		in   string
		want slog.Level
	}{
		{in: "debug", want: slog.LevelDebug},
		{in: "info", want: slog.LevelInfo},
		{in: "warn", want: slog.LevelWarn},
		{in: "warning", want: slog.LevelWarn},
		{in: "error", want: slog.LevelError},
		{in: "bogus", want: slog.LevelInfo},
	}
	for _, tc := range cases {
		t.Run(tc.in, func(t *testing.T) {
			if got := ParseLevel(tc.in); got != tc.want {
				t.Fatalf("ParseLevel(%q) = %v, want %v", tc.in, got, tc.want)
			}
		})
	}
}
