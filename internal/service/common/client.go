//nolint:revive,nolintlint // Package name "common" is intentional for shared helpers.
package common

import (
	"context"
	"errors"
	"fmt"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/oshokin/safety-parachute/internal/api/grpc/groundlink"
	"github.com/oshokin/safety-parachute/internal/api/wire"
	"github.com/oshokin/safety-parachute/internal/config"
	"github.com/oshokin/safety-parachute/internal/domain/deployment"
	"github.com/oshokin/safety-parachute/internal/domain/telemetry"
	"github.com/oshokin/safety-parachute/internal/version"
)

// Client wraps the ground link client with domain conversions.
type Client struct {
	// conn is the underlying gRPC connection to parachuted.
	conn *grpc.ClientConn
	// api is the ground link stub.
	api groundlink.GroundLinkClient

	// callTimeout is the default timeout for individual RPC calls.
	callTimeout time.Duration
	// token is the bearer token attached to every call, if set.
	token string
	// dialOptions are extra options passed to grpc.NewClient.
	dialOptions []grpc.DialOption
}

// Option configures client behaviour.
type Option func(*Client)

// WithCallTimeout sets a default timeout for service calls.
func WithCallTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		if timeout > 0 {
			c.callTimeout = timeout
		}
	}
}

// WithToken attaches a bearer token to every call.
func WithToken(token string) Option {
	return func(c *Client) {
		c.token = token
	}
}

// WithDialOptions appends raw gRPC dial options, e.g. a custom dialer in tests.
func WithDialOptions(opts ...grpc.DialOption) Option {
	return func(c *Client) {
		c.dialOptions = append(c.dialOptions, opts...)
	}
}

// errAddressRequired is returned when a required address value is missing.
var errAddressRequired = errors.New("address must be provided")

// Dial establishes a gRPC connection to the ground link.
// Note: this uses insecure transport credentials; the ground link is meant
// for a point-to-point telemetry radio or a trusted bench network.
func Dial(_ context.Context, address string, opts ...Option) (*Client, error) {
	if address == "" {
		return nil, errAddressRequired
	}

	client := &Client{
		callTimeout: config.DefaultTimeout,
	}

	for _, opt := range opts {
		opt(client)
	}

	dialOptions := append([]grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithUserAgent(version.UserAgent("parachutectl")),
	}, client.dialOptions...)

	if client.token != "" {
		dialOptions = append(dialOptions, grpc.WithPerRPCCredentials(groundlink.BearerCredentials{Token: client.token}))
	}

	conn, err := grpc.NewClient(address, dialOptions...)
	if err != nil {
		return nil, fmt.Errorf("dial ground link: %w", err)
	}

	client.conn = conn
	client.api = groundlink.NewGroundLinkClient(conn)

	return client, nil
}

// Close releases the underlying gRPC connection.
func (c *Client) Close() error {
	if c == nil || c.conn == nil {
		return nil
	}

	return c.conn.Close()
}

// WriteCommand sends a raw deployment payload.
func (c *Client) WriteCommand(ctx context.Context, payload []byte) (*deployment.State, error) {
	callCtx, cancel := c.callContext(ctx)
	defer cancel()

	resp, err := c.api.WriteCommand(callCtx, wrapperspb.Bytes(payload))
	if err != nil {
		return nil, fmt.Errorf("write command: %w", err)
	}

	return wire.StateFromStruct(resp)
}

// GetDeploymentState retrieves the actuator state.
func (c *Client) GetDeploymentState(ctx context.Context) (*deployment.State, error) {
	callCtx, cancel := c.callContext(ctx)
	defer cancel()

	resp, err := c.api.GetDeploymentState(callCtx, new(emptypb.Empty))
	if err != nil {
		return nil, fmt.Errorf("get deployment state: %w", err)
	}

	return wire.StateFromStruct(resp)
}

// GetTelemetry retrieves the latest telemetry sample.
func (c *Client) GetTelemetry(ctx context.Context) (*telemetry.Sample, error) {
	callCtx, cancel := c.callContext(ctx)
	defer cancel()

	resp, err := c.api.GetTelemetry(callCtx, new(emptypb.Empty))
	if err != nil {
		return nil, fmt.Errorf("get telemetry: %w", err)
	}

	return wire.SampleFromStruct(resp)
}

// callContext returns a context with the client's call timeout if configured,
// otherwise a cancellable child context without a deadline.
func (c *Client) callContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.callTimeout <= 0 {
		return context.WithCancel(ctx)
	}

	return context.WithTimeout(ctx, c.callTimeout)
}
