package peripheral

import (
	"github.com/go-ble/ble"
)

// Signal identifies the value served by a characteristic.
type Signal uint8

const (
	// SignalAltitude is the barometric altitude.
	SignalAltitude Signal = iota
	// SignalAccelerationX is the x-axis acceleration.
	SignalAccelerationX
	// SignalAccelerationY is the y-axis acceleration.
	SignalAccelerationY
	// SignalAccelerationZ is the z-axis acceleration.
	SignalAccelerationZ
	// SignalElapsed is the time since boot.
	SignalElapsed
	// SignalCommand is the deployment command and status.
	SignalCommand
	// SignalFaults is the fault bitmask.
	SignalFaults
)

// String returns a lowercase name suitable for logs and metric labels.
func (s Signal) String() string {
	switch s {
	case SignalAltitude:
		return "altitude"
	case SignalAccelerationX:
		return "acceleration_x"
	case SignalAccelerationY:
		return "acceleration_y"
	case SignalAccelerationZ:
		return "acceleration_z"
	case SignalElapsed:
		return "elapsed"
	case SignalCommand:
		return "command"
	case SignalFaults:
		return "faults"
	default:
		return "unknown"
	}
}

// Access is the set of operations a characteristic allows.
type Access uint8

const (
	// AccessRead allows reads.
	AccessRead Access = 1 << iota
	// AccessWrite allows writes.
	AccessWrite
)

// Binding maps a signal to its GATT location.
type Binding struct {
	// Signal is the served value.
	Signal Signal
	// Service is the UUID of the owning service.
	Service ble.UUID
	// Characteristic is the UUID of the characteristic.
	Characteristic ble.UUID
	// Access is the set of allowed operations.
	Access Access
}

var (
	// AltitudeServiceUUID identifies the altitude service.
	AltitudeServiceUUID = ble.MustParse("ad92e76e-b69f-47ed-b9b7-3b32a8af3fbf")
	// AccelerationServiceUUID identifies the acceleration service.
	AccelerationServiceUUID = ble.MustParse("b4c9bead-52dd-402e-abaa-2a81ec3e8a75")
	// ElapsedServiceUUID identifies the elapsed time service.
	ElapsedServiceUUID = ble.MustParse("a8979325-265d-4092-a3cc-172c5f08634a")
	// DeploymentServiceUUID identifies the deployment service.
	DeploymentServiceUUID = ble.MustParse("75c34e42-10e0-4a2a-b754-139c24266586")

	// AltitudeUUID identifies the altitude characteristic.
	AltitudeUUID = ble.MustParse("b9312052-4925-46cb-a6a7-de8228b959bc")
	// AccelerationXUUID identifies the x-axis acceleration characteristic.
	AccelerationXUUID = ble.MustParse("3fbdda9e-66c3-4d19-9d9c-e51a7652e7d2")
	// AccelerationYUUID identifies the y-axis acceleration characteristic.
	AccelerationYUUID = ble.MustParse("12a295f0-a5df-4201-9382-1ba9980fa54b")
	// AccelerationZUUID identifies the z-axis acceleration characteristic.
	AccelerationZUUID = ble.MustParse("28d95fab-1bc0-45fe-a018-730251f63279")
	// ElapsedUUID identifies the elapsed time characteristic.
	ElapsedUUID = ble.MustParse("b7aa57e8-605d-4ded-9c69-3024f13fe502")
	// CommandUUID identifies the deployment command and status characteristic.
	CommandUUID = ble.MustParse("80ad1283-0eb0-4826-a788-c24b41f5df7b")
	// FaultsUUID identifies the fault characteristic.
	FaultsUUID = ble.MustParse("80ad1284-0eb0-4826-a788-c24b41f5df7b")
)

// Bindings returns the binding table in declaration order.
// Telemetry characteristics accept writes only to stay compatible with
// existing ground tools; such writes are discarded.
func Bindings() []Binding {
	return []Binding{
		{SignalAltitude, AltitudeServiceUUID, AltitudeUUID, AccessRead | AccessWrite},
		{SignalAccelerationX, AccelerationServiceUUID, AccelerationXUUID, AccessRead | AccessWrite},
		{SignalAccelerationY, AccelerationServiceUUID, AccelerationYUUID, AccessRead | AccessWrite},
		{SignalAccelerationZ, AccelerationServiceUUID, AccelerationZUUID, AccessRead | AccessWrite},
		{SignalElapsed, ElapsedServiceUUID, ElapsedUUID, AccessRead | AccessWrite},
		{SignalCommand, DeploymentServiceUUID, CommandUUID, AccessRead | AccessWrite},
		{SignalFaults, DeploymentServiceUUID, FaultsUUID, AccessRead},
	}
}

// ServiceUUIDs returns the distinct service UUIDs of bindings in first-seen order.
func ServiceUUIDs(bindings []Binding) []ble.UUID {
	uuids := make([]ble.UUID, 0, len(bindings))

	for _, b := range bindings {
		seen := false

		for _, u := range uuids {
			if u.Equal(b.Service) {
				seen = true

				break
			}
		}

		if !seen {
			uuids = append(uuids, b.Service)
		}
	}

	return uuids
}
