package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// DurationAt parses a config duration. Empty is 0. A bare integer is seconds,
// so "30" reads the same as "30s". path names the key in errors.
func DurationAt(path, raw string) (time.Duration, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return 0, nil
	}
	var d time.Duration
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		d = time.Duration(n) * time.Second
	} else if d, err = time.ParseDuration(s); err != nil {
		return 0, fmt.Errorf("%s: %q is not a duration (want e.g. 45s or 1h30m)", path, raw)
	}
	if d < 0 {
		return 0, fmt.Errorf("%s: negative duration %q", path, raw)
	}
	return d, nil
}

// DurationOr is DurationAt with def for an unset or zero value.
func DurationOr(path, raw string, def time.Duration) (time.Duration, error) {
	d, err := DurationAt(path, raw)
	if err != nil || d != 0 {
		return d, err
	}
	return def, nil
}
