package mqtt

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"strings"
	"sync/atomic"
	"time"

	"github.com/denisbrodbeck/machineid"
	paho "github.com/eclipse/paho.mqtt.golang"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/oshokin/safety-parachute/internal/api/wire"
	domain "github.com/oshokin/safety-parachute/internal/domain/deployment"
	"github.com/oshokin/safety-parachute/internal/domain/telemetry"
	"github.com/oshokin/safety-parachute/internal/logger"
	"github.com/oshokin/safety-parachute/internal/service/deployment"
	"github.com/oshokin/safety-parachute/internal/version"
)

const (
	// appID salts the machine id so the broker never sees the raw value.
	appID = "safety-parachute"
	// deviceIDLength is the length of the published device id.
	deviceIDLength = 12
	// disconnectQuiesce is how long Close waits for in-flight publishes, in milliseconds.
	disconnectQuiesce = 250

	// TopicTelemetry is the last topic level of telemetry samples.
	TopicTelemetry = "telemetry"
	// TopicDeployment is the last topic level of deployment states.
	TopicDeployment = "deployment"
	// TopicStatus is the last topic level of the retained online marker.
	TopicStatus = "status"
)

// Client is the subset of paho.Client used by the Mirror.
type Client interface {
	Publish(topic string, qos byte, retained bool, payload any) paho.Token
}

// Options configures a Mirror.
type Options struct {
	// BrokerURL is the broker address, e.g. tcp://ground:1883.
	BrokerURL string
	// ClientID overrides the client id. Defaults to "parachute-<device id>".
	ClientID string
	// TopicPrefix is the first topic level.
	TopicPrefix string
	// DeviceID is the second topic level. Defaults to DeviceID().
	DeviceID string
	// QoS is the publish quality of service.
	QoS byte
	// Interval throttles telemetry publishes.
	Interval time.Duration
}

// Mirror publishes samples and deployment states.
type Mirror struct {
	// ctx carries the logger.
	ctx context.Context //nolint:containedctx // Observers are invoked without a long-lived context.
	// client publishes messages.
	client Client
	// prefix is "<topic prefix>/<device id>".
	prefix string
	// qos is the publish quality of service.
	qos byte
	// interval throttles telemetry publishes.
	interval time.Duration
	// lastSample is the unix-nano time of the last telemetry publish.
	lastSample atomic.Int64
}

// DeviceID returns a stable id for this machine, derived from the machine id
// and falling back to the hostname.
func DeviceID() string {
	id, err := machineid.ProtectedID(appID)
	if err == nil && len(id) >= deviceIDLength {
		return id[:deviceIDLength]
	}

	host, err := os.Hostname()
	if err != nil || host == "" {
		return "unknown"
	}

	return host
}

// New returns a Mirror publishing through client.
func New(ctx context.Context, client Client, opts *Options) *Mirror {
	deviceID := opts.DeviceID
	if deviceID == "" {
		deviceID = DeviceID()
	}

	return &Mirror{
		ctx:      logger.WithName(ctx, "mqtt"),
		client:   client,
		prefix:   topicPrefix(opts.TopicPrefix, deviceID),
		qos:      opts.QoS,
		interval: opts.Interval,
	}
}

// Connect creates a paho client, starts connecting in the background and
// returns a Mirror using it. Close disconnects the client.
func Connect(ctx context.Context, opts *Options) (*Mirror, func(), error) {
	u, err := url.Parse(opts.BrokerURL)
	if err != nil {
		return nil, nil, fmt.Errorf("parse broker url: %w", err)
	}

	if opts.DeviceID == "" {
		opts.DeviceID = DeviceID()
	}

	clientID := opts.ClientID
	if clientID == "" {
		clientID = "parachute-" + opts.DeviceID
	}

	ctx = logger.WithName(ctx, "mqtt")

	var m *Mirror

	// The broker publishes the will when the link drops without a disconnect.
	offline, err := protojson.Marshal(statusStruct(false))
	if err != nil {
		return nil, nil, fmt.Errorf("encode will: %w", err)
	}

	pahoOpts := paho.NewClientOptions().
		AddBroker(opts.BrokerURL).
		SetClientID(clientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetCleanSession(true).
		SetBinaryWill(topicPrefix(opts.TopicPrefix, opts.DeviceID)+"/"+TopicStatus, offline, opts.QoS, true).
		SetOnConnectHandler(func(paho.Client) {
			logger.InfoKV(ctx, "Connected to broker", "broker", u.Host)
			m.publish(TopicStatus, statusStruct(true), true)
		}).
		SetConnectionLostHandler(func(_ paho.Client, err error) {
			logger.WarnKV(ctx, "Connection to broker lost", "broker", u.Host, "error", err)
		})

	if u.User != nil {
		pahoOpts.SetUsername(u.User.Username())

		if pwd, ok := u.User.Password(); ok {
			pahoOpts.SetPassword(pwd)
		}
	}

	client := paho.NewClient(pahoOpts)
	m = New(ctx, client, opts)

	// With ConnectRetry the token completes only once connected; do not wait.
	client.Connect()

	logger.InfoKV(ctx, "Telemetry mirror enabled", "broker", u.Host, "prefix", m.prefix, "client_id", clientID, "version", version.Short())

	return m, func() {
		m.publish(TopicStatus, statusStruct(false), true)
		client.Disconnect(disconnectQuiesce)
	}, nil
}

// topicPrefix joins the configured prefix and the device id.
func topicPrefix(prefix, deviceID string) string {
	return strings.TrimSuffix(prefix, "/") + "/" + deviceID
}

// statusStruct is the retained online marker carrying the build metadata.
func statusStruct(online bool) *structpb.Struct {
	fields := map[string]*structpb.Value{
		"online": structpb.NewBoolValue(online),
	}

	for k, v := range version.Fields() {
		if s, ok := v.(string); ok {
			fields[k] = structpb.NewStringValue(s)
		}
	}

	return &structpb.Struct{Fields: fields}
}

// Topic returns the full topic for the last level name.
func (m *Mirror) Topic(name string) string {
	return m.prefix + "/" + name
}

// CommandProcessed implements deployment.Observer. Deployment states are retained.
func (m *Mirror) CommandProcessed(_ context.Context, event *deployment.Event) {
	if event.Command == domain.Ignore || event.State == nil {
		return
	}

	st, err := wire.StateToStruct(event.State)
	if err != nil {
		logger.ErrorKV(m.ctx, "Failed to encode deployment state", "error", err)

		return
	}

	m.publish(TopicDeployment, st, true)
}

// SampleRefreshed implements telemetry.Observer. Publishes are throttled to the interval.
func (m *Mirror) SampleRefreshed(_ context.Context, sample *telemetry.Sample, _ error) {
	now := time.Now().UnixNano()
	last := m.lastSample.Load()

	if last != 0 && now-last < m.interval.Nanoseconds() {
		return
	}

	if !m.lastSample.CompareAndSwap(last, now) {
		return
	}

	st, err := wire.SampleToStruct(sample)
	if err != nil {
		logger.ErrorKV(m.ctx, "Failed to encode telemetry sample", "error", err)

		return
	}

	m.publish(TopicTelemetry, st, false)
}

// publish sends msg as JSON without waiting for the broker.
func (m *Mirror) publish(name string, msg proto.Message, retained bool) {
	payload, err := protojson.Marshal(msg)
	if err != nil {
		logger.ErrorKV(m.ctx, "Failed to marshal mirror payload", "topic", name, "error", err)

		return
	}

	topic := m.Topic(name)
	token := m.client.Publish(topic, m.qos, retained, payload)

	go func() {
		<-token.Done()

		if err := token.Error(); err != nil {
			logger.DebugKV(m.ctx, "Mirror publish failed", "topic", topic, "error", err)
		}
	}()
}
