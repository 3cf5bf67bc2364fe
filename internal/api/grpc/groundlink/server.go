package groundlink

import (
	"context"
	"errors"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/oshokin/safety-parachute/internal/api/wire"
	"github.com/oshokin/safety-parachute/internal/domain/deployment"
	"github.com/oshokin/safety-parachute/internal/domain/fault"
	"github.com/oshokin/safety-parachute/internal/domain/telemetry"
	"github.com/oshokin/safety-parachute/internal/hardware"
	"github.com/oshokin/safety-parachute/internal/logger"
)

// OriginGroundLink is the origin recorded for commands written over the ground link.
const OriginGroundLink = "ground-link"

// DeploymentService abstracts the deployment controller.
type DeploymentService interface {
	HandleWrite(ctx context.Context, origin string, payload []byte) (*deployment.State, error)
	State(ctx context.Context) *deployment.State
}

// TelemetryService abstracts the telemetry publisher.
type TelemetryService interface {
	Latest() *telemetry.Sample
}

// Server implements GroundLinkServer.
type Server struct {
	// deployment applies commands and reports the actuator state.
	deployment DeploymentService
	// telemetry reports the latest sample.
	telemetry TelemetryService
}

// NewServer wires the controllers into a gRPC handler.
func NewServer(deployment DeploymentService, telemetry TelemetryService) *Server {
	return &Server{
		deployment: deployment,
		telemetry:  telemetry,
	}
}

// WriteCommand applies a deployment write with the same semantics as a BLE write.
func (s *Server) WriteCommand(ctx context.Context, req *wrapperspb.BytesValue) (*structpb.Struct, error) {
	if req == nil {
		return nil, status.Error(codes.InvalidArgument, "request is required")
	}

	state, err := s.deployment.HandleWrite(ctx, OriginGroundLink, req.GetValue())
	if err != nil {
		if errors.Is(err, hardware.ErrActuation) || errors.Is(err, hardware.ErrAlert) {
			return nil, status.Error(codes.FailedPrecondition, err.Error())
		}

		return nil, status.Error(codes.Internal, "unable to apply command")
	}

	return encodeState(ctx, state)
}

// GetDeploymentState returns the actuator state.
func (s *Server) GetDeploymentState(ctx context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	return encodeState(ctx, s.deployment.State(ctx))
}

// GetTelemetry returns the latest sample. It answers Unavailable before the
// first refresh and while every sensor is faulted; partial samples omit the
// failed signals.
func (s *Server) GetTelemetry(ctx context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	sample := s.telemetry.Latest()
	if sample == nil {
		return nil, status.Error(codes.Unavailable, "no telemetry sample yet")
	}

	if sample.Faults.Has(fault.Sensors) {
		return nil, status.Errorf(codes.Unavailable, "sensors faulted: %s", sample.Faults)
	}

	st, err := wire.SampleToStruct(sample)
	if err != nil {
		logger.ErrorKV(ctx, "Failed to encode telemetry", "error", err)

		return nil, status.Error(codes.Internal, "unable to encode telemetry")
	}

	return st, nil
}

// encodeState converts a state into the response message.
func encodeState(ctx context.Context, state *deployment.State) (*structpb.Struct, error) {
	st, err := wire.StateToStruct(state)
	if err != nil {
		logger.ErrorKV(ctx, "Failed to encode deployment state", "error", err)

		return nil, status.Error(codes.Internal, "unable to encode state")
	}

	return st, nil
}
