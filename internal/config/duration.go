package config

import (
	"strings"
	"time"
)

// ParseDurationField parses a Go duration string found at path. Blank means
// 0. Negative values are rejected. Errors are *FieldError.
func ParseDurationField(path, raw string) (time.Duration, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	switch {
	case err != nil:
		return 0, fieldErr(path, "invalid duration %q", raw)
	case d < 0:
		return 0, fieldErr(path, "must not be negative, got %s", d)
	}
	return d, nil
}

// ParseDurationOrDefault is ParseDurationField with def standing in for blank
// and zero values.
func ParseDurationOrDefault(path, raw string, def time.Duration) (time.Duration, error) {
	d, err := ParseDurationField(path, raw)
	if err != nil || d > 0 {
		return d, err
	}
	return def, nil
}
