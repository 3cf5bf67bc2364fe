package groundlink

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// ServiceName is the fully-qualified gRPC service name.
const ServiceName = "parachute.v1.GroundLink"

// Full method names.
const (
	MethodWriteCommand       = "/" + ServiceName + "/WriteCommand"
	MethodGetDeploymentState = "/" + ServiceName + "/GetDeploymentState"
	MethodGetTelemetry       = "/" + ServiceName + "/GetTelemetry"
)

// GroundLinkServer is the server API of the ground link.
type GroundLinkServer interface { //nolint:revive // Mirrors generated naming.
	// WriteCommand applies a deployment write and returns the resulting state.
	WriteCommand(ctx context.Context, req *wrapperspb.BytesValue) (*structpb.Struct, error)
	// GetDeploymentState returns the actuator state.
	GetDeploymentState(ctx context.Context, req *emptypb.Empty) (*structpb.Struct, error)
	// GetTelemetry returns the latest telemetry sample.
	GetTelemetry(ctx context.Context, req *emptypb.Empty) (*structpb.Struct, error)
}

// ServiceDesc describes the ground link for grpc.Server.RegisterService.
//
//nolint:gochecknoglobals // Service descriptors are package-level by convention.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*GroundLinkServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "WriteCommand", Handler: writeCommandHandler},
		{MethodName: "GetDeploymentState", Handler: getDeploymentStateHandler},
		{MethodName: "GetTelemetry", Handler: getTelemetryHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "parachute/v1/ground_link.proto",
}

// RegisterGroundLinkServer registers srv on s.
func RegisterGroundLinkServer(s grpc.ServiceRegistrar, srv GroundLinkServer) {
	s.RegisterService(&ServiceDesc, srv)
}

func writeCommandHandler(
	srv any,
	ctx context.Context, //nolint:revive // Signature fixed by grpc.MethodHandler.
	dec func(any) error,
	interceptor grpc.UnaryServerInterceptor,
) (any, error) {
	in := new(wrapperspb.BytesValue)
	if err := dec(in); err != nil {
		return nil, err
	}

	if interceptor == nil {
		return srv.(GroundLinkServer).WriteCommand(ctx, in) //nolint:forcetypeassert // Guaranteed by HandlerType.
	}

	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: MethodWriteCommand}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(GroundLinkServer).WriteCommand(ctx, req.(*wrapperspb.BytesValue)) //nolint:forcetypeassert // See above.
	}

	return interceptor(ctx, in, info, handler)
}

func getDeploymentStateHandler(
	srv any,
	ctx context.Context, //nolint:revive // Signature fixed by grpc.MethodHandler.
	dec func(any) error,
	interceptor grpc.UnaryServerInterceptor,
) (any, error) {
	in := new(emptypb.Empty)
	if err := dec(in); err != nil {
		return nil, err
	}

	if interceptor == nil {
		return srv.(GroundLinkServer).GetDeploymentState(ctx, in) //nolint:forcetypeassert // Guaranteed by HandlerType.
	}

	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: MethodGetDeploymentState}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(GroundLinkServer).GetDeploymentState(ctx, req.(*emptypb.Empty)) //nolint:forcetypeassert // See above.
	}

	return interceptor(ctx, in, info, handler)
}

func getTelemetryHandler(
	srv any,
	ctx context.Context, //nolint:revive // Signature fixed by grpc.MethodHandler.
	dec func(any) error,
	interceptor grpc.UnaryServerInterceptor,
) (any, error) {
	in := new(emptypb.Empty)
	if err := dec(in); err != nil {
		return nil, err
	}

	if interceptor == nil {
		return srv.(GroundLinkServer).GetTelemetry(ctx, in) //nolint:forcetypeassert // Guaranteed by HandlerType.
	}

	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: MethodGetTelemetry}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(GroundLinkServer).GetTelemetry(ctx, req.(*emptypb.Empty)) //nolint:forcetypeassert // See above.
	}

	return interceptor(ctx, in, info, handler)
}

// GroundLinkClient is the client API of the ground link.
type GroundLinkClient interface { //nolint:revive // Mirrors generated naming.
	WriteCommand(ctx context.Context, in *wrapperspb.BytesValue, opts ...grpc.CallOption) (*structpb.Struct, error)
	GetDeploymentState(ctx context.Context, in *emptypb.Empty, opts ...grpc.CallOption) (*structpb.Struct, error)
	GetTelemetry(ctx context.Context, in *emptypb.Empty, opts ...grpc.CallOption) (*structpb.Struct, error)
}

// groundLinkClient invokes the ground link over a connection.
type groundLinkClient struct {
	cc grpc.ClientConnInterface
}

// NewGroundLinkClient returns a client stub over cc.
func NewGroundLinkClient(cc grpc.ClientConnInterface) GroundLinkClient {
	return &groundLinkClient{cc: cc}
}

func (c *groundLinkClient) WriteCommand(
	ctx context.Context,
	in *wrapperspb.BytesValue,
	opts ...grpc.CallOption,
) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, MethodWriteCommand, in, out, opts...); err != nil {
		return nil, err
	}

	return out, nil
}

func (c *groundLinkClient) GetDeploymentState(
	ctx context.Context,
	in *emptypb.Empty,
	opts ...grpc.CallOption,
) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, MethodGetDeploymentState, in, out, opts...); err != nil {
		return nil, err
	}

	return out, nil
}

func (c *groundLinkClient) GetTelemetry(
	ctx context.Context,
	in *emptypb.Empty,
	opts ...grpc.CallOption,
) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, MethodGetTelemetry, in, out, opts...); err != nil {
		return nil, err
	}

	return out, nil
}
