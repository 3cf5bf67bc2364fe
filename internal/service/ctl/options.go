package ctl

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/oshokin/safety-parachute/internal/api/grpc/groundlink"
	"github.com/oshokin/safety-parachute/internal/config"
	"github.com/oshokin/safety-parachute/internal/logger"
	"github.com/oshokin/safety-parachute/internal/service/common"
)

// Options holds the settings shared by every parachutectl command.
type Options struct {
	// ConfigPath specifies the path to the settings YAML file.
	ConfigPath string
	// ServerAddress overrides ground_link.server_address when set.
	ServerAddress string
	// Token is an explicit bearer token; it wins over local minting.
	Token string
	// Timeout overrides the per-call timeout when positive.
	Timeout time.Duration
	// Out receives the command output; os.Stdout when nil.
	Out io.Writer
}

// sessionTokenTTL bounds tokens minted for a single CLI invocation.
const sessionTokenTTL = 5 * time.Minute

// session is a loaded configuration plus an open client.
type session struct {
	// cfg is the loaded configuration.
	cfg *config.Config
	// client is the ground link client.
	client *common.Client
	// out receives command output.
	out io.Writer
	// address is the dialed ground link address.
	address string
}

// open loads settings and dials the ground link.
func open(ctx context.Context, opts *Options) (*session, error) {
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return nil, fmt.Errorf("load configuration: %w", err)
	}

	// Command line argument overrides config.
	address := cfg.GroundLink.ServerAddress
	if opts.ServerAddress != "" {
		address = opts.ServerAddress
	}

	timeout := cfg.GroundLink.Timeout
	if opts.Timeout > 0 {
		timeout = opts.Timeout
	}

	token, err := resolveToken(opts.Token, cfg)
	if err != nil {
		return nil, err
	}

	client, err := common.Dial(ctx, address, common.WithCallTimeout(timeout), common.WithToken(token))
	if err != nil {
		return nil, fmt.Errorf("dial ground link: %w", err)
	}

	out := opts.Out
	if out == nil {
		out = os.Stdout
	}

	logger.DebugKV(ctx, "Ground link session opened", "server_address", address, "authenticated", token != "")

	return &session{
		cfg:     cfg,
		client:  client,
		out:     out,
		address: address,
	}, nil
}

// close releases the client.
func (s *session) close() {
	_ = s.client.Close()
}

// printf writes one line of command output.
func (s *session) printf(format string, args ...any) {
	_, _ = fmt.Fprintf(s.out, format+"\n", args...)
}

// resolveToken picks the explicit token or mints a session token.
func resolveToken(explicit string, cfg *config.Config) (string, error) {
	if explicit != "" || cfg.GroundLink.TokenSecret == "" {
		return explicit, nil
	}

	subject, err := common.DetectActor()
	if err != nil {
		return "", fmt.Errorf("detect actor: %w", err)
	}

	token, err := groundlink.NewAuthenticator(cfg.GroundLink.TokenSecret).
		Mint(subject, []string{groundlink.ScopeControl, groundlink.ScopeTelemetry}, sessionTokenTTL)
	if err != nil {
		return "", fmt.Errorf("mint session token: %w", err)
	}

	return token, nil
}
