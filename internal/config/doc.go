// Package config defines the daemon and CLI settings and provides helpers to
// load, validate and save them in YAML format.
//
// Validate fills every unset field with its default, so a minimal file
// containing only the device name is a working bench configuration.
package config
