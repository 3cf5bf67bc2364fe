package deployment

// Command is the action derived from an inbound deployment write.
type Command uint8

const (
	// Ignore leaves the actuator untouched.
	Ignore Command = iota
	// Arm drives the deployment output high and starts the alert pulse.
	Arm
	// Disarm drives the deployment output low.
	Disarm
)

const (
	// ArmByte is the first payload byte that requests deployment.
	ArmByte byte = 'y'
	// DisarmByte is the first payload byte that requests disarming.
	DisarmByte byte = 'n'
)

// ParseCommand maps the first byte of a write payload to a Command.
// Empty payloads and unknown bytes map to Ignore.
func ParseCommand(payload []byte) Command {
	if len(payload) == 0 {
		return Ignore
	}

	switch payload[0] {
	case ArmByte:
		return Arm
	case DisarmByte:
		return Disarm
	default:
		return Ignore
	}
}

// String returns a lowercase name suitable for logs and metric labels.
func (c Command) String() string {
	switch c {
	case Arm:
		return "arm"
	case Disarm:
		return "disarm"
	default:
		return "ignore"
	}
}
