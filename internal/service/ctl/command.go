package ctl

import (
	"context"
	"errors"
	"fmt"
	"time"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/oshokin/safety-parachute/internal/domain/deployment"
	"github.com/oshokin/safety-parachute/internal/logger"
)

const (
	// DefaultRetryInterval is the delay between attempts while the ground link is unreachable.
	DefaultRetryInterval = time.Second

	// DefaultWatchInterval is the polling period of Watch.
	DefaultWatchInterval = time.Second
)

// SendOptions controls a deployment write.
type SendOptions struct {
	Options

	// Payload is written verbatim to the deployment characteristic.
	Payload []byte
	// Attempts bounds delivery attempts while the link is unreachable; zero retries until canceled.
	Attempts int
	// RetryInterval is the delay between attempts.
	RetryInterval time.Duration
}

var (
	// errEmptyPayload is returned when Send is called without a payload.
	errEmptyPayload = errors.New("payload must not be empty")
	// errOutcomeUnknown is returned when a write timed out after it may have reached the daemon.
	errOutcomeUnknown = errors.New("command outcome unknown, check parachutectl status before resending")
)

// Arm sends the arm command.
func Arm(ctx context.Context, opts *SendOptions) error {
	opts.Payload = []byte{deployment.ArmByte}
	return Send(ctx, opts)
}

// Disarm sends the disarm command.
func Disarm(ctx context.Context, opts *SendOptions) error {
	opts.Payload = []byte{deployment.DisarmByte}
	return Send(ctx, opts)
}

// Send writes a raw payload, retrying only while the ground link is
// unreachable. A write that times out may already have been applied, so it
// is reported as errOutcomeUnknown and never resent. Commands the daemon
// processed, including hardware faults, are never repeated.
func Send(ctx context.Context, opts *SendOptions) error {
	ctx = logger.WithName(ctx, "parachutectl")

	if len(opts.Payload) == 0 {
		return errEmptyPayload
	}

	if opts.RetryInterval <= 0 {
		opts.RetryInterval = DefaultRetryInterval
	}

	s, err := open(ctx, &opts.Options)
	if err != nil {
		return err
	}
	defer s.close()

	command := deployment.ParseCommand(opts.Payload)
	logger.InfoKV(ctx, "Sending deployment command",
		"server_address", s.address, "command", command.String(), "payload", fmt.Sprintf("%q", opts.Payload))

	// attempt tries once, returns (completed, error).
	attempt := func() (bool, error) {
		state, err := s.client.WriteCommand(ctx, opts.Payload)
		if err != nil {
			switch {
			case retryable(err):
				logger.ErrorKV(ctx, "WriteCommand failed", "error", err)
				return false, nil
			case status.Code(err) == codes.DeadlineExceeded:
				logger.ErrorKV(ctx, "WriteCommand timed out", "error", err)
				return false, fmt.Errorf("%w: %w", errOutcomeUnknown, err)
			}

			return false, err
		}

		s.printf("%s", FormatState(state))

		return true, nil
	}

	for attempts := 1; ; attempts++ {
		done, err := attempt()
		if err != nil {
			return err
		}

		if done {
			return nil
		}

		if opts.Attempts > 0 && attempts >= opts.Attempts {
			return fmt.Errorf("ground link unreachable after %d attempts", attempts)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(opts.RetryInterval):
		}
	}
}

// Status prints the deployment state.
func Status(ctx context.Context, opts *Options) error {
	s, err := open(logger.WithName(ctx, "parachutectl"), opts)
	if err != nil {
		return err
	}
	defer s.close()

	state, err := s.client.GetDeploymentState(ctx)
	if err != nil {
		return err
	}

	s.printf("%s", FormatState(state))

	return nil
}

// Telemetry prints the latest telemetry sample.
func Telemetry(ctx context.Context, opts *Options) error {
	s, err := open(logger.WithName(ctx, "parachutectl"), opts)
	if err != nil {
		return err
	}
	defer s.close()

	sample, err := s.client.GetTelemetry(ctx)
	if err != nil {
		return err
	}

	s.printf("%s", FormatSample(sample))

	return nil
}

// WatchOptions controls the polling loop.
type WatchOptions struct {
	Options

	// Interval is the polling period.
	Interval time.Duration
}

// Watch polls state and telemetry until the context is canceled.
// It prints the state only when it changes and every telemetry sample.
func Watch(ctx context.Context, opts *WatchOptions) error {
	ctx = logger.WithName(ctx, "parachutectl")

	if opts.Interval <= 0 {
		opts.Interval = DefaultWatchInterval
	}

	s, err := open(ctx, &opts.Options)
	if err != nil {
		return err
	}
	defer s.close()

	logger.InfoKV(ctx, "Watching parachute", "server_address", s.address, "interval", opts.Interval.String())

	var lastState string

	poll := func() {
		state, err := s.client.GetDeploymentState(ctx)
		if err != nil {
			if ctx.Err() == nil {
				logger.ErrorKV(ctx, "GetDeploymentState failed", "error", err)
			}

			return
		}

		if line := FormatState(state); line != lastState {
			lastState = line
			s.printf("state: %s", line)
		}

		sample, err := s.client.GetTelemetry(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}

			// Unavailable just means no sample yet or every sensor is faulted.
			if status.Code(err) != codes.Unavailable {
				logger.ErrorKV(ctx, "GetTelemetry failed", "error", err)
			}

			s.printf("telemetry: unavailable")

			return
		}

		s.printf("telemetry: %s", FormatSample(sample))
	}

	poll()

	ticker := time.NewTicker(opts.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info(ctx, "Context canceled, exiting")
			return nil
		case <-ticker.C:
			poll()
		}
	}
}

// retryable reports whether err means the command never reached the daemon.
func retryable(err error) bool {
	return status.Code(err) == codes.Unavailable
}
