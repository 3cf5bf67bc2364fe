package daemon

import (
	"context"
	"errors"
	"fmt"
	"net"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"

	"github.com/oshokin/safety-parachute/internal/api/grpc/groundlink"
	"github.com/oshokin/safety-parachute/internal/config"
	"github.com/oshokin/safety-parachute/internal/hardware"
	"github.com/oshokin/safety-parachute/internal/logger"
	"github.com/oshokin/safety-parachute/internal/metrics"
	"github.com/oshokin/safety-parachute/internal/mirror/mqtt"
	"github.com/oshokin/safety-parachute/internal/repository/journal"
	"github.com/oshokin/safety-parachute/internal/service/deployment"
	"github.com/oshokin/safety-parachute/internal/service/instance"
	"github.com/oshokin/safety-parachute/internal/service/peripheral"
	"github.com/oshokin/safety-parachute/internal/service/telemetry"
	"github.com/oshokin/safety-parachute/internal/slot"
	"github.com/oshokin/safety-parachute/internal/version"
)

// Options controls the parachuted process.
type Options struct {
	// ConfigPath specifies the path to the settings YAML file.
	ConfigPath string
	// LogLevel overrides log.level when set.
	LogLevel string
	// InstanceName is the executable name checked by the single-instance guard.
	// Defaults to the running executable.
	InstanceName string

	// Driver replaces the configured actuator driver.
	Driver hardware.ActuatorDriver
	// Source replaces the configured telemetry source.
	Source hardware.TelemetrySource
	// Device replaces the configured BLE stack and enables the peripheral.
	Device peripheral.Device
}

// errInvalidLogLevel is returned for an unknown --log-level value.
var errInvalidLogLevel = errors.New("unknown log level")

// Run starts every configured component and blocks until ctx is canceled
// or one of them fails.
//
//nolint:cyclop,funlen // Composition root: one flat sequence of wiring steps.
func Run(ctx context.Context, opts *Options) error {
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}

	if opts.LogLevel != "" {
		cfg.Log.Level = opts.LogLevel
	}

	level, ok := logger.ParseLogLevel(cfg.Log.Level)
	if !ok {
		return fmt.Errorf("%w: %q", errInvalidLogLevel, cfg.Log.Level)
	}

	log, closeLog := logger.NewWithFile(zap.NewAtomicLevelAt(level), logger.FileOptions{
		Path:       cfg.Log.File,
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAgeDays: cfg.Log.MaxAgeDays,
	})

	defer func() {
		_ = closeLog()
	}()

	ctx = logger.WithName(logger.ToContext(ctx, log), "parachuted")

	// Two processes driving one GPIO line is unsafe.
	if err = instance.New(opts.InstanceName).Check(); err != nil {
		return err
	}

	logger.InfoKV(ctx, "Starting parachuted", "version", version.Short(), "build", version.Full(), "device_name", cfg.DeviceName)

	driver, closeDriver := opts.Driver, func() error { return nil }
	if driver == nil {
		if driver, closeDriver, err = openDriver(ctx, &cfg.Hardware); err != nil {
			return err
		}
	}

	defer func() {
		if err := closeDriver(); err != nil {
			logger.ErrorKV(ctx, "Failed to release hardware", "error", err)
		}
	}()

	source := opts.Source
	if source == nil {
		source = openSource(&cfg.Telemetry)
	}

	wake, err := wakeReporter(&cfg.Hardware).WakeReason(ctx)
	if err != nil {
		logger.WarnKV(ctx, "Unable to read wake reason", "error", err)
	}

	logger.InfoKV(ctx, "Wake reason", "reason", wake.String())

	flightJournal := journal.New(cfg.Journal.Path, cfg.Journal.Buffer)
	if err = flightJournal.Append(ctx, &journal.Record{Kind: journal.KindBoot, Detail: wake.String()}); err != nil {
		logger.ErrorKV(ctx, "Failed to journal boot", "path", cfg.Journal.Path, "error", err)
	}

	collectors := metrics.New()
	commandObservers := []deployment.Observer{collectors, flightJournal}
	sampleObservers := []telemetry.Observer{collectors, flightJournal}

	if cfg.MQTT.BrokerURL != "" {
		mirror, disconnect, err := mqtt.Connect(ctx, &mqtt.Options{
			BrokerURL:   cfg.MQTT.BrokerURL,
			ClientID:    cfg.MQTT.ClientID,
			TopicPrefix: cfg.MQTT.TopicPrefix,
			QoS:         cfg.MQTT.QoS,
			Interval:    cfg.MQTT.PublishInterval,
		})
		if err != nil {
			return fmt.Errorf("connect mqtt mirror: %w", err)
		}

		defer disconnect()

		commandObservers = append(commandObservers, mirror)
		sampleObservers = append(sampleObservers, mirror)
	}

	slots := new(slot.Table)

	controller := deployment.NewController(driver, &deployment.Options{
		ToneHz:        cfg.Hardware.AlertToneHz,
		AlertDuration: cfg.Hardware.AlertDuration,
		Status:        &slots.Status,
		Faults:        &slots.Faults,
		Observers:     commandObservers,
	})

	publisher := telemetry.NewPublisher(source, slots, &telemetry.Options{
		Interval:  cfg.Telemetry.RefreshInterval,
		Observers: sampleObservers,
	})

	// The first sample is published before any central can connect.
	if _, err = publisher.Refresh(ctx); err != nil {
		logger.WarnKV(ctx, "Initial telemetry refresh failed", "error", err)
	}

	logger.InfoKV(ctx, "Telemetry publisher ready", "interval", publisher.Interval().String())

	var handle *peripheral.Handle

	device := opts.Device
	if device == nil && cfg.Peripheral.Backend == config.BackendHCI {
		if device, err = newHCIDevice(); err != nil {
			return err
		}
	}

	if device != nil {
		manager := peripheral.NewManager(device, slots, controller, &peripheral.Options{
			ReadvertiseInterval: cfg.Peripheral.ReadvertiseInterval,
			Observer:            collectors,
		})

		if handle, err = manager.Start(ctx, cfg.DeviceName); err != nil {
			if stopErr := device.Stop(); stopErr != nil {
				logger.ErrorKV(ctx, "Failed to stop BLE device", "error", stopErr)
			}

			return fmt.Errorf("start peripheral: %w", err)
		}
	} else {
		logger.Warn(ctx, "BLE peripheral disabled")
	}

	group, groupCtx := errgroup.WithContext(ctx)

	group.Go(func() error {
		return flightJournal.Run(groupCtx)
	})

	group.Go(func() error {
		return publisher.Run(groupCtx)
	})

	if handle != nil {
		group.Go(func() error {
			<-groupCtx.Done()

			return handle.Stop()
		})
	}

	if cfg.Metrics.ListenAddress != "" {
		group.Go(func() error {
			return collectors.Serve(groupCtx, cfg.Metrics.ListenAddress)
		})
	}

	if cfg.GroundLink.ListenAddress != "" {
		group.Go(func() error {
			return serveGroundLink(groupCtx, &cfg.GroundLink, controller, publisher)
		})
	}

	err = group.Wait()

	if dropped := flightJournal.Dropped(); dropped > 0 {
		logger.WarnKV(ctx, "Journal records dropped", "count", dropped)
	}

	logger.Info(ctx, "parachuted stopped")

	return err
}

// serveGroundLink runs the gRPC ground link until ctx is canceled.
func serveGroundLink(
	ctx context.Context,
	cfg *config.GroundLink,
	controller groundlink.DeploymentService,
	publisher groundlink.TelemetryService,
) error {
	ctx = logger.WithName(ctx, "ground-link")

	var serverOptions []grpc.ServerOption

	if cfg.TokenSecret != "" {
		auth := groundlink.NewAuthenticator(cfg.TokenSecret)
		serverOptions = append(serverOptions, grpc.UnaryInterceptor(auth.UnaryInterceptor()))
	} else {
		logger.Warn(ctx, "Ground link accepts unauthenticated calls")
	}

	lc := net.ListenConfig{}

	lis, err := lc.Listen(ctx, "tcp", cfg.ListenAddress)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", cfg.ListenAddress, err)
	}

	grpcServer := grpc.NewServer(serverOptions...)
	groundlink.RegisterGroundLinkServer(grpcServer, groundlink.NewServer(controller, publisher))

	logger.InfoKV(ctx, "Ground link listening", "listen_address", lis.Addr().String(), "authenticated", cfg.TokenSecret != "")

	// Done channel is closed after GracefulStop finishes.
	done := make(chan struct{})

	go func() {
		<-ctx.Done()
		grpcServer.GracefulStop()
		close(done)
	}()

	if err := grpcServer.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
		return fmt.Errorf("serve ground link: %w", err)
	}

	<-done
	logger.Info(ctx, "Ground link stopped")

	return nil
}
