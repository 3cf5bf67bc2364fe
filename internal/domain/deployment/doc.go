// Package deployment contains core domain types for the parachute deployment
// business logic.
//
// It defines Command (what a remote client asked for), Phase (which of the
// two actuator states is active) and State (the actuator status at a point in
// time) with a Clone helper to avoid leaking internal references.
package deployment
