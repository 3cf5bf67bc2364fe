package version

import (
	"fmt"
	"runtime"
)

var (
	// Version is the firmware release. It can be overridden via ldflags.
	Version = "0.1.0"
	// Commit is the short git SHA embedded at build time (or "none").
	Commit = "none"
	// BuildTime is the UTC build timestamp embedded at build time.
	BuildTime = "unknown"
)

// Short returns only the semantic version string.
func Short() string {
	return Version
}

// Full returns a human-readable version string with commit, build time and target.
func Full() string {
	return fmt.Sprintf("version: %s, commit: %s, built at: %s, target: %s/%s",
		Version, Commit, BuildTime, runtime.GOOS, runtime.GOARCH)
}

// UserAgent identifies a binary on the ground link and the MQTT mirror.
func UserAgent(binary string) string {
	return binary + "/" + Version
}

// Fields returns build metadata as key-value pairs for status replies and logs.
func Fields() map[string]any {
	return map[string]any{
		"version":    Version,
		"commit":     Commit,
		"build_time": BuildTime,
	}
}
