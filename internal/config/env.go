// Package config reads runtime settings from the environment.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Get returns the value of the environment variable key. When key is
// unset but key_FILE is, the file at that path is read and its trimmed
// contents returned, so secrets can be mounted instead of passed
// inline. Otherwise def is returned.
func Get(key, def string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	if path := os.Getenv(key + "_FILE"); path != "" {
		if data, err := os.ReadFile(path); err == nil {
			return strings.TrimSpace(string(data))
		}
	}
	return def
}

// GetInt returns the integer value of the environment variable key,
// or def when it is unset or unparseable.
func GetInt(key string, def int) int {
	val := Get(key, "")
	if val == "" {
		return def
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return def
	}
	return n
}

// GetBool returns the boolean value of the environment variable key.
// It accepts 1/t/true/y/yes and 0/f/false/n/no in any case; anything
// else yields def.
func GetBool(key string, def bool) bool {
	switch strings.ToLower(Get(key, "")) {
	case "1", "t", "true", "y", "yes":
		return true
	case "0", "f", "false", "n", "no":
		return false
	}
	return def
}

// ParseDuration behaves like time.ParseDuration but also accepts a
// whole number of days, as in "30d".
func ParseDuration(s string) (time.Duration, error) {
	lower := strings.ToLower(strings.TrimSpace(s))
	if days, ok := strings.CutSuffix(lower, "d"); ok {
		if n, err := strconv.Atoi(days); err == nil {
			return time.Duration(n) * 24 * time.Hour, nil
		}
	}
	return time.ParseDuration(lower)
}

// GetDuration returns the duration value of the environment variable
// key via ParseDuration, or def when unset or unparseable.
func GetDuration(key string, def time.Duration) time.Duration {
	val := Get(key, "")
	if val == "" {
		return def
	}
	d, err := ParseDuration(val)
	if err != nil {
		return def
	}
	return d
}
