// Package groundlink implements the parachute.v1.GroundLink gRPC API.
//
// Messages are protobuf well-known types, so the service descriptor and the
// client stub are declared here instead of being generated. The schema and
// the Struct field names are documented in api/parachute/v1/groundlink.proto.
// Optional HS256 bearer tokens gate every call by scope.
package groundlink
