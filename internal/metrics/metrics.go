// Package metrics exports daemon counters and gauges in the Prometheus format.
package metrics

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	domain "github.com/oshokin/safety-parachute/internal/domain/deployment"
	"github.com/oshokin/safety-parachute/internal/domain/fault"
	"github.com/oshokin/safety-parachute/internal/domain/telemetry"
	"github.com/oshokin/safety-parachute/internal/hardware"
	"github.com/oshokin/safety-parachute/internal/logger"
	"github.com/oshokin/safety-parachute/internal/service/deployment"
)

const (
	namespace         = "parachute"
	readHeaderTimeout = 5 * time.Second
	shutdownTimeout   = 5 * time.Second
)

// Metrics holds the collectors. It observes the deployment controller,
// the telemetry publisher and the peripheral.
type Metrics struct {
	// registry owns every collector below.
	registry *prometheus.Registry

	commands          *prometheus.CounterVec
	hardwareFaults    *prometheus.CounterVec
	phase             prometheus.Gauge
	pulses            prometheus.Counter
	refreshes         prometheus.Counter
	sensorFaults      *prometheus.CounterVec
	altitude          prometheus.Gauge
	centrals          prometheus.Gauge
	advertiseRestarts *prometheus.CounterVec
}

// New registers every collector on a private registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		commands: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "commands_total",
			Help:      "Deployment commands processed, by kind.",
		}, []string{"command"}),
		hardwareFaults: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "hardware_faults_total",
			Help:      "Failed actuator operations, by subsystem.",
		}, []string{"subsystem"}),
		phase: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "deployment_phase",
			Help:      "1 when the deployment output is armed, 0 when disarmed.",
		}),
		pulses: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "alert_pulses_total",
			Help:      "Alert pulses started.",
		}),
		refreshes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "telemetry_refreshes_total",
			Help:      "Telemetry refresh cycles.",
		}),
		sensorFaults: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sensor_faults_total",
			Help:      "Failed sensor reads, by signal.",
		}, []string{"signal"}),
		altitude: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "altitude_meters",
			Help:      "Last successfully sampled altitude.",
		}),
		centrals: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "connected_centrals",
			Help:      "BLE centrals currently tracked.",
		}),
		advertiseRestarts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "advertising_restarts_total",
			Help:      "Advertising restarts, by reason.",
		}, []string{"reason"}),
	}

	m.registry.MustRegister(
		m.commands,
		m.hardwareFaults,
		m.phase,
		m.pulses,
		m.refreshes,
		m.sensorFaults,
		m.altitude,
		m.centrals,
		m.advertiseRestarts,
	)

	return m
}

// Registry returns the registry holding every collector.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// CommandProcessed implements deployment.Observer.
func (m *Metrics) CommandProcessed(_ context.Context, event *deployment.Event) {
	m.commands.WithLabelValues(event.Command.String()).Inc()

	switch {
	case errors.Is(event.Err, hardware.ErrActuation):
		m.hardwareFaults.WithLabelValues("actuation").Inc()
	case errors.Is(event.Err, hardware.ErrAlert):
		m.hardwareFaults.WithLabelValues("alert").Inc()
	}

	if event.State == nil {
		return
	}

	if event.State.Phase == domain.ArmedDeployed {
		m.phase.Set(1)
	} else {
		m.phase.Set(0)
	}

	if event.Command == domain.Arm && event.Err == nil {
		m.pulses.Inc()
	}
}

// SampleRefreshed implements telemetry.Observer.
func (m *Metrics) SampleRefreshed(_ context.Context, sample *telemetry.Sample, _ error) {
	m.refreshes.Inc()

	if sample.Faults.Has(fault.AltitudeSensor) {
		m.sensorFaults.WithLabelValues("altitude").Inc()
	} else {
		m.altitude.Set(sample.Altitude)
	}

	if sample.Faults.Has(fault.AccelerationSensor) {
		m.sensorFaults.WithLabelValues("acceleration").Inc()
	}
}

// CentralConnected implements peripheral.Observer.
func (m *Metrics) CentralConnected(string) {
	m.centrals.Inc()
}

// CentralDisconnected implements peripheral.Observer.
func (m *Metrics) CentralDisconnected(string) {
	m.centrals.Dec()
}

// AdvertisingRestarted implements peripheral.Observer.
func (m *Metrics) AdvertisingRestarted(reason string) {
	m.advertiseRestarts.WithLabelValues(reason).Inc()
}

// Handler returns the /metrics HTTP handler.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Serve exposes /metrics on address until ctx is cancelled.
func (m *Metrics) Serve(ctx context.Context, address string) error {
	ctx = logger.WithName(ctx, "metrics")

	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())

	lc := net.ListenConfig{}

	lis, err := lc.Listen(ctx, "tcp", address)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", address, err)
	}

	srv := &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	done := make(chan struct{})

	go func() {
		defer close(done)

		<-ctx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()

		_ = srv.Shutdown(shutdownCtx) //nolint:contextcheck // The parent context is already cancelled.
	}()

	logger.InfoKV(ctx, "Metrics endpoint listening", "listen_address", lis.Addr().String())

	if err := srv.Serve(lis); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("serve metrics: %w", err)
	}

	<-done

	return nil
}
