// Package wire converts domain values to and from protobuf well-known types.
//
// The ground link, the flight journal and the MQTT mirror all carry states
// and samples as google.protobuf.Struct, so every surface shares one schema.
package wire
