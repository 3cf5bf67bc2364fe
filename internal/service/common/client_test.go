//nolint:revive,nolintlint // Package name "common" is intentional for shared helpers.
package common

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/test/bufconn"

	"github.com/oshokin/safety-parachute/internal/api/grpc/groundlink"
	domain "github.com/oshokin/safety-parachute/internal/domain/deployment"
	"github.com/oshokin/safety-parachute/internal/domain/telemetry"
	"github.com/oshokin/safety-parachute/internal/hardware/sim"
	"github.com/oshokin/safety-parachute/internal/service/deployment"
)

// staticTelemetry serves one sample.
type staticTelemetry struct {
	sample *telemetry.Sample
}

func (s staticTelemetry) Latest() *telemetry.Sample { return s.sample.Clone() }

// TestDial_ValidatesAddress verifies that Dial rejects empty addresses.
func TestDial_ValidatesAddress(t *testing.T) {
	t.Parallel()

	c, err := Dial(context.Background(), "")
	require.Error(t, err)
	require.Nil(t, c)
}

// TestClient_callContext checks timeout vs cancel-only behavior of callContext.
func TestClient_callContext(t *testing.T) {
	t.Parallel()

	c := &Client{
		callTimeout: 0,
	}

	ctx, cancel := c.callContext(context.Background())
	cancel()

	require.NotNil(t, ctx)

	c.callTimeout = 10 * time.Millisecond

	ctx, cancel = c.callContext(context.Background())
	defer cancel()

	deadline, ok := ctx.Deadline()
	require.True(t, ok)
	require.WithinDuration(t, time.Now().Add(10*time.Millisecond), deadline, 30*time.Millisecond)
}

// TestClient_Roundtrip drives a real ground-link server through the client.
func TestClient_Roundtrip(t *testing.T) {
	t.Parallel()

	const secret = "0123456789abcdef0123456789abcdef"

	auth := groundlink.NewAuthenticator(secret)
	lis := bufconn.Listen(1024 * 1024)
	srv := grpc.NewServer(grpc.UnaryInterceptor(auth.UnaryInterceptor()))
	groundlink.RegisterGroundLinkServer(srv, groundlink.NewServer(
		deployment.NewController(sim.NewDriver(), nil),
		staticTelemetry{sample: &telemetry.Sample{Altitude: 12.5, Elapsed: time.Second}},
	))

	go func() {
		_ = srv.Serve(lis)
	}()

	t.Cleanup(srv.Stop)

	token, err := auth.Mint("tester@bench", []string{groundlink.ScopeControl, groundlink.ScopeTelemetry}, time.Minute)
	require.NoError(t, err)

	c, err := Dial(context.Background(), "passthrough:///bufnet",
		WithCallTimeout(time.Second),
		WithToken(token),
		WithDialOptions(grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		})),
	)
	require.NoError(t, err)

	defer func() { require.NoError(t, c.Close()) }()

	state, err := c.WriteCommand(context.Background(), []byte("y"))
	require.NoError(t, err)
	require.Equal(t, domain.ArmedDeployed, state.Phase)

	state, err = c.GetDeploymentState(context.Background())
	require.NoError(t, err)
	require.Equal(t, groundlink.OriginGroundLink, state.Origin)

	sample, err := c.GetTelemetry(context.Background())
	require.NoError(t, err)
	require.InDelta(t, 12.5, sample.Altitude, 1e-9)
	require.Equal(t, time.Second, sample.Elapsed)
}
