package mqtt

import (
	"context"
	"sync"
	"testing"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/oshokin/safety-parachute/internal/api/wire"
	domain "github.com/oshokin/safety-parachute/internal/domain/deployment"
	"github.com/oshokin/safety-parachute/internal/domain/telemetry"
	"github.com/oshokin/safety-parachute/internal/service/deployment"
)

// message is one captured publish.
type message struct {
	topic    string
	qos      byte
	retained bool
	payload  []byte
}

// fakeClient captures publishes.
type fakeClient struct {
	messages []message
	mu       sync.Mutex
}

func (c *fakeClient) Publish(topic string, qos byte, retained bool, payload any) paho.Token {
	c.mu.Lock()
	defer c.mu.Unlock()

	b, _ := payload.([]byte)
	c.messages = append(c.messages, message{topic: topic, qos: qos, retained: retained, payload: b})

	return &paho.DummyToken{}
}

func (c *fakeClient) captured() []message {
	c.mu.Lock()
	defer c.mu.Unlock()

	return append([]message(nil), c.messages...)
}

// newTestMirror returns a mirror with a fixed device id.
func newTestMirror(client Client, interval time.Duration) *Mirror {
	return New(context.Background(), client, &Options{
		TopicPrefix: "parachute/",
		DeviceID:    "dev1",
		QoS:         1,
		Interval:    interval,
	})
}

// TestMirror_Deployment checks the retained deployment topic.
func TestMirror_Deployment(t *testing.T) {
	t.Parallel()

	client := new(fakeClient)
	m := newTestMirror(client, time.Second)

	m.CommandProcessed(context.Background(), &deployment.Event{Command: domain.Ignore})
	m.CommandProcessed(context.Background(), &deployment.Event{
		Command: domain.Arm,
		State:   &domain.State{Phase: domain.ArmedDeployed, Output: domain.High, LastCommand: domain.Arm},
	})

	messages := client.captured()
	require.Len(t, messages, 1)
	require.Equal(t, "parachute/dev1/deployment", messages[0].topic)
	require.Equal(t, byte(1), messages[0].qos)
	require.True(t, messages[0].retained)

	var st structpb.Struct
	require.NoError(t, protojson.Unmarshal(messages[0].payload, &st))

	state, err := wire.StateFromStruct(&st)
	require.NoError(t, err)
	require.Equal(t, domain.ArmedDeployed, state.Phase)
}

// TestMirror_TelemetryThrottle checks that samples are rate limited.
func TestMirror_TelemetryThrottle(t *testing.T) {
	t.Parallel()

	client := new(fakeClient)
	m := newTestMirror(client, time.Hour)

	for range 5 {
		m.SampleRefreshed(context.Background(), &telemetry.Sample{Altitude: 42}, nil)
	}

	messages := client.captured()
	require.Len(t, messages, 1)
	require.Equal(t, "parachute/dev1/telemetry", messages[0].topic)
	require.False(t, messages[0].retained)

	unthrottled := newTestMirror(client, 0)
	unthrottled.SampleRefreshed(context.Background(), &telemetry.Sample{}, nil)
	unthrottled.SampleRefreshed(context.Background(), &telemetry.Sample{}, nil)
	require.Len(t, client.captured(), 3)
}

// TestDeviceID checks that an id is always available.
func TestDeviceID(t *testing.T) {
	t.Parallel()

	require.NotEmpty(t, DeviceID())
}

// TestStatusStruct carries the online flag and the build metadata.
func TestStatusStruct(t *testing.T) {
	t.Parallel()

	st := statusStruct(true)
	require.True(t, st.GetFields()["online"].GetBoolValue())
	require.NotEmpty(t, st.GetFields()["version"].GetStringValue())
	require.Equal(t, "parachute/dev1", topicPrefix("parachute/", "dev1"))

	m := newTestMirror(new(fakeClient), time.Second)
	require.Equal(t, "parachute/dev1/status", m.Topic(TopicStatus))
}
