package reminder

import (
	"strings"
	"testing"
	"time"
)

func TestFormatSeconds(t *testing.T) {
	tests := []struct {
		in   int64
		want string
	}{
		{-5, "0 сек"},
		{0, "0 сек"},
		{59, "59 сек"},
		{60, "1 мин"},
		{299, "4 мин"},
		{3599, "59 мин"},
		{3600, "1 ч"},
		{3659, "1 ч"},
		{3660, "1 ч 1 мин"},
		{7325, "2 ч 2 мин"},
	}
	for _, tt := range tests {
		if got := FormatSeconds(tt.in); got != tt.want {
			t.Fatalf("FormatSeconds(%d) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestFormatSecondsUnits(t *testing.T) {
	for s := int64(0); s < 4*3600; s++ {
		got := FormatSeconds(s)
		switch {
		case s < 60:
			if !strings.HasSuffix(got, " сек") {
				t.Fatalf("%d: %q", s, got)
			}
		case s < 3600:
			if !strings.HasSuffix(got, " мин") || strings.Contains(got, "ч") {
				t.Fatalf("%d: %q", s, got)
			}
		default:
			hasMin := strings.Contains(got, "мин")
			if !strings.Contains(got, " ч") || hasMin != ((s%3600)/60 >= 1) {
				t.Fatalf("%d: %q", s, got)
			}
		}
	}
}

func TestFormatDuration(t *testing.T) {
	if got := FormatDuration(90*time.Second + 900*time.Millisecond); got != "1 мин" {
		t.Fatalf("got %q", got)
	}
}
