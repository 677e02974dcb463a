package reminder

import (
	"errors"
	"fmt"
	"testing"
)

func TestParseDuration(t *testing.T) {
	tests := []struct {
		in   string
		want uint64
	}{
		{"5 минут", 300},
		{"2 часа", 7200},
		{"30 секунд", 30},
		{"1 час", 3600},
		{"1 минуту", 60},
		{"10с", 10},
		{"  7   МИН  ", 420},
		{"3 Ч", 10800},
		{"21 секунду", 21},
		{"5 часов", 18000},
	}
	for _, tt := range tests {
		got, err := ParseDuration(tt.in)
		if err != nil {
			t.Fatalf("ParseDuration(%q) error: %v", tt.in, err)
		}
		if got != tt.want {
			t.Fatalf("ParseDuration(%q) = %d, want %d", tt.in, got, tt.want)
		}
	}
}

func TestParseDurationRejects(t *testing.T) {
	for _, in := range []string{
		"",
		"5",
		"минут",
		"0 минут",
		"-5 минут",
		"5 лет",
		"5 minutes",
		"1 2 мин",
		"5 минут потом",
		"1.5 часа",
		"99999999999999999999999 с",
		"9223372037 с", // > max time.Duration in seconds
		"2562048 ч",
	} {
		if got, err := ParseDuration(in); !errors.Is(err, ErrNotUnderstood) {
			t.Fatalf("ParseDuration(%q) = %d, %v; want ErrNotUnderstood", in, got, err)
		}
	}
}

func TestParseDurationEveryUnit(t *testing.T) {
	for unit, secs := range unitSeconds {
		for _, n := range []uint64{1, 2, 5, 59, 60, 1000} {
			in := fmt.Sprintf("%d %s", n, unit)
			got, err := ParseDuration(in)
			if err != nil || got != n*secs {
				t.Fatalf("ParseDuration(%q) = %d, %v; want %d", in, got, err, n*secs)
			}
		}
	}
}

func TestParseDurationLargestValue(t *testing.T) {
	if got, err := ParseDuration("9223372036 с"); err != nil || got != 9223372036 {
		t.Fatalf("got %d, %v", got, err)
	}
}
