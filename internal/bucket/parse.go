package bucket

import (
	"fmt"
	"strconv"
	"strings"
)

// ParseLimit parses a number of days, or one of "none", "inf", "∞" for an
// unbounded limit.
func ParseLimit(s string) (Limit, error) {
	s = strings.TrimSpace(s)
	switch strings.ToLower(s) {
	case "none", "inf", "infinity", "∞", "null":
		return Unbounded(), nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return Limit{}, fmt.Errorf("parse bucket limit %q: %w", s, err)
	}
	if n < 0 {
		return Limit{}, fmt.Errorf("parse bucket limit %q: must not be negative", s)
	}
	return Days(n), nil
}

// ParseBoundaries parses a comma-separated list of limits such as
// "30,60,90,none". An empty string yields nil.
func ParseBoundaries(s string) ([]Limit, error) {
	if strings.TrimSpace(s) == "" {
		return nil, nil
	}
	parts := strings.Split(s, ",")
	limits := make([]Limit, 0, len(parts))
	for _, p := range parts {
		l, err := ParseLimit(p)
		if err != nil {
			return nil, err
		}
		limits = append(limits, l)
	}
	return limits, nil
}
