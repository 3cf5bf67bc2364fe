// Package deployment implements the deployment command state machine.
//
// The Controller turns inbound writes into actuator transitions, publishes
// the status and fault slots served over BLE and notifies observers such
// as metrics, the flight journal and the MQTT mirror.
package deployment
