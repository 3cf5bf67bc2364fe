// Package version exposes build metadata for parachuted and parachutectl.
//
// Version, Commit and BuildTime are injected at build time via ldflags.
package version
