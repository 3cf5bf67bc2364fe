package ctl

import (
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/oshokin/safety-parachute/internal/api/grpc/groundlink"
	"github.com/oshokin/safety-parachute/internal/config"
	"github.com/oshokin/safety-parachute/internal/service/common"
)

// TokenOptions controls token minting.
type TokenOptions struct {
	// ConfigPath specifies the path to the settings YAML file holding the secret.
	ConfigPath string
	// Subject overrides the detected user@host subject.
	Subject string
	// Scopes are the granted scopes; both when empty.
	Scopes []string
	// TTL overrides ground_link.token_ttl when positive.
	TTL time.Duration
	// Out receives the token; os.Stdout when nil.
	Out io.Writer
}

// errNoSecret is returned when minting without a configured secret.
var errNoSecret = errors.New("ground_link.token_secret is not configured")

// MintToken prints a signed ground link token.
func MintToken(opts *TokenOptions) error {
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}

	if cfg.GroundLink.TokenSecret == "" {
		return errNoSecret
	}

	subject := opts.Subject
	if subject == "" {
		if subject, err = common.DetectActor(); err != nil {
			return fmt.Errorf("detect actor: %w", err)
		}
	}

	scopes := opts.Scopes
	if len(scopes) == 0 {
		scopes = []string{groundlink.ScopeControl, groundlink.ScopeTelemetry}
	}

	ttl := cfg.GroundLink.TokenTTL
	if opts.TTL > 0 {
		ttl = opts.TTL
	}

	token, err := groundlink.NewAuthenticator(cfg.GroundLink.TokenSecret).Mint(subject, scopes, ttl)
	if err != nil {
		return err
	}

	out := opts.Out
	if out == nil {
		out = os.Stdout
	}

	_, err = fmt.Fprintln(out, token)

	return err
}
