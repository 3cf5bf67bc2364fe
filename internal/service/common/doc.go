// Package common holds helpers shared by the parachutectl commands.
//
// It provides the ground-link client wrapper with timeouts and bearer tokens,
// and detects the operator identity used as the token subject.
//
//nolint:revive,nolintlint // Package name "common" is intentional for shared helpers.
package common
