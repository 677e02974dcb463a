package reminder

import (
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"
)

var durationRe = regexp.MustCompile(`^\s*(\d+)\s*(\p{L}+)\s*$`)

// unitSeconds is the closed unit vocabulary; keys are lower case.
var unitSeconds = map[string]uint64{
	"с": 1, "сек": 1, "секунда": 1, "секунды": 1, "секунд": 1, "секунду": 1,
	"м": 60, "мин": 60, "минута": 60, "минуты": 60, "минут": 60, "минуту": 60,
	"ч": 3600, "час": 3600, "часа": 3600, "часов": 3600,
}

// maxSeconds keeps the result representable as a time.Duration.
const maxSeconds = uint64(math.MaxInt64 / int64(time.Second))

// ParseDuration turns "<n> <unit>" (e.g. "5 минут", "2 часа", "30 сек")
// into a positive number of seconds. Anything else, zero, or a value too large
// for a time.Duration yields ErrNotUnderstood.
func ParseDuration(input string) (uint64, error) {
	m := durationRe.FindStringSubmatch(input)
	if m == nil {
		return 0, ErrNotUnderstood
	}
	unit, ok := unitSeconds[strings.ToLower(m[2])]
	if !ok {
		return 0, ErrNotUnderstood
	}
	n, err := strconv.ParseUint(m[1], 10, 64)
	if err != nil || n == 0 || n > maxSeconds/unit {
		return 0, ErrNotUnderstood
	}
	return n * unit, nil
}
