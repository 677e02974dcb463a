package logx

import (
	"strings"
	"testing"
)

func TestFormatOpsLine(t *testing.T) {
	line := []byte(`{"level":"warn","time":"2026-01-02T03:04:05Z","message":"delivery failed","id":7,"comp":"reminder"}`)
	got := formatOpsLine(line)

	if !strings.HasPrefix(got, "[WARN] delivery failed") {
		t.Fatalf("unexpected header: %q", got)
	}
	if strings.Contains(got, "time=") {
		t.Fatalf("time field should be dropped: %q", got)
	}
	// keys are sorted so the output is stable
	if strings.Index(got, "- comp=reminder") > strings.Index(got, "- id=7") {
		t.Fatalf("fields not sorted: %q", got)
	}
}

func TestFormatOpsLineNotJSON(t *testing.T) {
	if got := formatOpsLine([]byte("  plain text \n")); got != "plain text" {
		t.Fatalf("got %q", got)
	}
}

func TestTruncate(t *testing.T) {
	if got := truncate("abcdefghijklmnop", 12); got != "abcdefghi..." {
		t.Fatalf("got %q", got)
	}
	if got := truncate("short", 12); got != "short" {
		t.Fatalf("got %q", got)
	}
}

func TestZeroLoggerIsNoop(t *testing.T) {
	var l Logger
	if !l.IsZero() {
		t.Fatal("zero logger should report IsZero")
	}
	// must not panic
	l.Info("hello", String("k", "v"))
	if l.With(Int("n", 1)).IsZero() {
		t.Fatal("logger with fields should not be zero")
	}
}

func TestParseLevel(t *testing.T) {
	if parseLevel("warning", LevelInfo) != LevelWarn {
		t.Fatal("warning should map to warn")
	}
	if parseLevel("bogus", LevelError) != LevelError {
		t.Fatal("unknown level should use default")
	}
}
