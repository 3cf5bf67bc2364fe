// Package daemon is the parachuted composition root.
//
// Run loads the configuration, opens the hardware, wires the deployment
// controller and the telemetry publisher to every enabled surface (BLE
// peripheral, ground link, metrics, MQTT mirror, flight journal) and blocks
// until the context is canceled or a component fails.
//
// The actuator always boots Disarmed. The journal is write-only here.
package daemon
