package reminder

import (
	"fmt"
	"time"
)

// FormatSeconds renders a duration the way the bot prints it: "45 сек",
// "12 мин", "2 ч 5 мин" or "3 ч". Values are floored; negatives print as 0.
func FormatSeconds(s int64) string {
	if s < 0 {
		s = 0
	}
	switch {
	case s < 60:
		return fmt.Sprintf("%d сек", s)
	case s < 3600:
		return fmt.Sprintf("%d мин", s/60)
	}
	h, m := s/3600, (s%3600)/60
	if m > 0 {
		return fmt.Sprintf("%d ч %d мин", h, m)
	}
	return fmt.Sprintf("%d ч", h)
}

func FormatDuration(d time.Duration) string {
	return FormatSeconds(int64(d / time.Second))
}
