// Package mqtt mirrors telemetry and deployment transitions to an MQTT broker.
//
// The mirror is publish-only: it never subscribes, so a broker can never
// issue a deployment command. Publishes are asynchronous and telemetry is
// throttled, so a slow or absent broker never delays the write path.
package mqtt
