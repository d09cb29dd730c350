package parse

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

var levelRe = regexp.MustCompile(`^(-?\d+)\s*%?$`)

// ParseLevel extracts an integer percentage from strings such as "30", "30%" or " 30 % ".
// The value is not clamped; callers decide how to treat out-of-range input.
func ParseLevel(raw string) (int, error) {
	s := strings.TrimSpace(raw)
	m := levelRe.FindStringSubmatch(s)
	if m == nil {
		return 0, fmt.Errorf("unable to parse water level: %q", raw)
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		return 0, fmt.Errorf("unable to parse water level %q: %w", raw, err)
	}
	return n, nil
}

// FormatLevel renders a level the way requests carry it, e.g. "30%".
func FormatLevel(level int) string {
	return strconv.Itoa(level) + "%"
}

// Clamp bounds a level to [0,100].
func Clamp(level int) int {
	switch {
	case level < 0:
		return 0
	case level > 100:
		return 100
	}
	return level
}
