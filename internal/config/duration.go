package config

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var errNegativeDuration = errors.New("must be >= 0")

// DurationError names the config key holding a bad duration string.
type DurationError struct {
	Key string
	Raw string
	Err error
}

func (e *DurationError) Error() string {
	return fmt.Sprintf("%s: invalid duration %q: %v", e.Key, e.Raw, e.Err)
}

func (e *DurationError) Unwrap() error { return e.Err }

// ParseDurationField parses a Go duration string ("15s", "1h30m") found at
// key. Empty means zero.
func ParseDurationField(key, raw string) (time.Duration, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	switch {
	case err != nil:
		return 0, &DurationError{Key: key, Raw: raw, Err: err}
	case d < 0:
		return 0, &DurationError{Key: key, Raw: raw, Err: errNegativeDuration}
	}
	return d, nil
}

// ParseDurationOrDefault is ParseDurationField with zero replaced by def.
func ParseDurationOrDefault(key, raw string, def time.Duration) (time.Duration, error) {
	d, err := ParseDurationField(key, raw)
	if err != nil || d > 0 {
		return d, err
	}
	return def, nil
}
