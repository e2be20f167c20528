// Package version carries build metadata stamped in via ldflags.
package version

import "fmt"

var (
	Version   = "0.1.0"
	BuildTime = "development"
	GitCommit = "unknown"
)

// String returns the short human form, like "v0.1.0".
func String() string {
	return fmt.Sprintf("v%s", Version)
}

// Get returns the fields reported by the version command and endpoint.
func Get() map[string]string {
	return map[string]string{
		"version":   Version,
		"buildTime": BuildTime,
		"gitCommit": GitCommit,
	}
}
