package wire

import (
	"errors"
	"fmt"
	"time"

	"google.golang.org/protobuf/types/known/structpb"

	"github.com/oshokin/safety-parachute/internal/domain/deployment"
	"github.com/oshokin/safety-parachute/internal/domain/fault"
	"github.com/oshokin/safety-parachute/internal/domain/telemetry"
)

// Field names shared by every surface.
const (
	FieldTimestamp    = "timestamp"
	FieldOrigin       = "origin"
	FieldLastCommand  = "last_command"
	FieldPhase        = "phase"
	FieldStatus       = "status"
	FieldOutput       = "output"
	FieldPulseActive  = "pulse_active"
	FieldFaults       = "faults"
	FieldFaultNames   = "fault_names"
	FieldAltitude     = "altitude"
	FieldAcceleration = "acceleration"
	FieldElapsedMs    = "elapsed_ms"
)

var (
	// ErrNilMessage is returned when a nil struct is decoded.
	ErrNilMessage = errors.New("message is nil")
	// errUnknownPhase is returned for an unrecognised phase name.
	errUnknownPhase = errors.New("unknown phase")
)

// StateToStruct encodes a deployment state.
func StateToStruct(s *deployment.State) (*structpb.Struct, error) {
	if s == nil {
		return nil, ErrNilMessage
	}

	st, err := structpb.NewStruct(map[string]any{
		FieldTimestamp:   formatTime(s.Timestamp),
		FieldOrigin:      s.Origin,
		FieldLastCommand: s.LastCommand.String(),
		FieldPhase:       s.Phase.String(),
		FieldStatus:      string(s.Phase.StatusByte()),
		FieldOutput:      s.Output.String(),
		FieldPulseActive: s.PulseActive,
		FieldFaults:      float64(s.Faults),
		FieldFaultNames:  s.Faults.String(),
	})
	if err != nil {
		return nil, fmt.Errorf("encode state: %w", err)
	}

	return st, nil
}

// StateFromStruct decodes a deployment state encoded by StateToStruct.
func StateFromStruct(st *structpb.Struct) (*deployment.State, error) {
	if st == nil {
		return nil, ErrNilMessage
	}

	fields := st.GetFields()

	phase, err := parsePhase(fields[FieldPhase].GetStringValue())
	if err != nil {
		return nil, err
	}

	output := deployment.Low
	if fields[FieldOutput].GetStringValue() == deployment.High.String() {
		output = deployment.High
	}

	return &deployment.State{
		Timestamp:   parseTime(fields[FieldTimestamp].GetStringValue()),
		Origin:      fields[FieldOrigin].GetStringValue(),
		LastCommand: parseCommandName(fields[FieldLastCommand].GetStringValue()),
		Phase:       phase,
		Output:      output,
		PulseActive: fields[FieldPulseActive].GetBoolValue(),
		Faults:      fault.Set(fields[FieldFaults].GetNumberValue()),
	}, nil
}

// SampleToStruct encodes a telemetry sample. Failed signals are omitted.
func SampleToStruct(s *telemetry.Sample) (*structpb.Struct, error) {
	if s == nil {
		return nil, ErrNilMessage
	}

	values := map[string]any{
		FieldTimestamp:  formatTime(s.Timestamp),
		FieldElapsedMs:  float64(s.Elapsed.Milliseconds()),
		FieldFaults:     float64(s.Faults),
		FieldFaultNames: s.Faults.String(),
	}

	if !s.Faults.Has(fault.AltitudeSensor) {
		values[FieldAltitude] = s.Altitude
	}

	if !s.Faults.Has(fault.AccelerationSensor) {
		values[FieldAcceleration] = map[string]any{
			"x": s.Acceleration.X,
			"y": s.Acceleration.Y,
			"z": s.Acceleration.Z,
		}
	}

	st, err := structpb.NewStruct(values)
	if err != nil {
		return nil, fmt.Errorf("encode sample: %w", err)
	}

	return st, nil
}

// SampleFromStruct decodes a telemetry sample encoded by SampleToStruct.
func SampleFromStruct(st *structpb.Struct) (*telemetry.Sample, error) {
	if st == nil {
		return nil, ErrNilMessage
	}

	fields := st.GetFields()
	acceleration := fields[FieldAcceleration].GetStructValue().GetFields()

	return &telemetry.Sample{
		Timestamp: parseTime(fields[FieldTimestamp].GetStringValue()),
		Altitude:  fields[FieldAltitude].GetNumberValue(),
		Acceleration: telemetry.Vector{
			X: acceleration["x"].GetNumberValue(),
			Y: acceleration["y"].GetNumberValue(),
			Z: acceleration["z"].GetNumberValue(),
		},
		Elapsed: time.Duration(fields[FieldElapsedMs].GetNumberValue()) * time.Millisecond,
		Faults:  fault.Set(fields[FieldFaults].GetNumberValue()),
	}, nil
}

// formatTime renders t in RFC 3339 with nanoseconds, or "" for the zero time.
func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}

	return t.UTC().Format(time.RFC3339Nano)
}

// parseTime is the inverse of formatTime. Malformed values decode as the zero time.
func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}

	return t
}

// parsePhase maps a phase name back to a Phase.
func parsePhase(name string) (deployment.Phase, error) {
	for _, p := range []deployment.Phase{deployment.Disarmed, deployment.ArmedDeployed} {
		if p.String() == name {
			return p, nil
		}
	}

	return deployment.Disarmed, fmt.Errorf("%w: %q", errUnknownPhase, name)
}

// parseCommandName maps a command name back to a Command.
func parseCommandName(name string) deployment.Command {
	for _, c := range []deployment.Command{deployment.Arm, deployment.Disarm} {
		if c.String() == name {
			return c
		}
	}

	return deployment.Ignore
}
