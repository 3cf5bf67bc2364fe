// Package ctl implements the parachutectl commands.
//
// Every command loads the shared configuration, dials the ground link and
// prints a one-line human summary per result. When the configuration carries
// a token secret and no explicit token is given, a short-lived token with
// every scope is minted locally for the call.
package ctl
