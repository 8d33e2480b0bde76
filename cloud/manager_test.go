package cloud

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"greenos/controller/anomaly"
	"greenos/controller/config"
	"greenos/controller/logging"
	"greenos/controller/sensors"
)

// fakePublisher scripts connectivity and records deliveries per topic.
type fakePublisher struct {
	connected  bool
	connectErr error
	publishErr error
	failAfter  int // deliveries to accept before publishErr kicks in; 0 = always apply

	published map[string][][]byte
	handlers  map[string]func([]byte)
}

func newFakePublisher() *fakePublisher {
	return &fakePublisher{
		published: make(map[string][][]byte),
		handlers:  make(map[string]func([]byte)),
	}
}

func (p *fakePublisher) Connect(timeout time.Duration) error {
	if p.connectErr != nil {
		return p.connectErr
	}
	p.connected = true
	return nil
}

func (p *fakePublisher) IsConnected() bool { return p.connected }

func (p *fakePublisher) Publish(topic string, payload []byte) error {
	if p.publishErr != nil {
		if p.failAfter <= 0 {
			return p.publishErr
		}
		p.failAfter--
	}
	p.published[topic] = append(p.published[topic], payload)
	return nil
}

func (p *fakePublisher) Subscribe(topic string, handler func([]byte)) error {
	p.handlers[topic] = handler
	return nil
}

func (p *fakePublisher) Close() { p.connected = false }

func testMQTTConfig() config.MQTT {
	cfg := config.Default().MQTT
	cfg.BufferCapacity = 3
	return cfg
}

func snapAt(sec int) sensors.SensorSnapshot {
	return sensors.SensorSnapshot{
		Timestamp: time.Date(2026, 3, 10, 12, 0, sec, 0, time.UTC),
		AirTemp:   21.0,
	}
}

func TestPublishDeliversOnHealthySession(t *testing.T) {
	pub := newFakePublisher()
	pub.connected = true
	m := NewManager(testMQTTConfig(), "tunnel-7", pub, logging.Discard())

	assert.True(t, m.Publish(snapAt(0)))
	assert.Len(t, pub.published["greenos/tunnel-7/sensors"], 1)
	assert.Zero(t, m.Buffered())
}

func TestPublishFailureBuffersReading(t *testing.T) {
	pub := newFakePublisher()
	pub.publishErr = errors.New("broker gone")
	m := NewManager(testMQTTConfig(), "tunnel-7", pub, logging.Discard())

	assert.False(t, m.Publish(snapAt(0)))
	assert.Equal(t, 1, m.Buffered())
}

func TestBufferEvictionUnderSustainedOutage(t *testing.T) {
	pub := newFakePublisher()
	pub.publishErr = errors.New("broker gone")
	m := NewManager(testMQTTConfig(), "tunnel-7", pub, logging.Discard())

	for i := 0; i < 5; i++ {
		m.Publish(snapAt(i))
	}
	assert.Equal(t, 3, m.Buffered(), "bounded at configured capacity")

	// Reconnect and drain: only the newest three survive, oldest first.
	pub.publishErr = nil
	assert.Equal(t, 3, m.Flush())
	backfill := pub.published["greenos/tunnel-7/sensors/backfill"]
	require.Len(t, backfill, 3)
	assert.Contains(t, string(backfill[0]), snapAt(2).Timestamp.Format(time.RFC3339))
}

func TestFlushStopsOnFailureLeavingRemainder(t *testing.T) {
	pub := newFakePublisher()
	pub.publishErr = errors.New("broker gone")
	m := NewManager(testMQTTConfig(), "tunnel-7", pub, logging.Discard())
	for i := 0; i < 3; i++ {
		m.Publish(snapAt(i))
	}

	// Two deliveries succeed, then the link drops again.
	pub.failAfter = 2
	assert.Equal(t, 2, m.Flush())
	assert.Equal(t, 1, m.Buffered(), "undelivered record kept for the next attempt")

	pub.publishErr = nil
	assert.Equal(t, 1, m.Flush())
	assert.Zero(t, m.Buffered())
}

func TestConnectFailureIsNotFatal(t *testing.T) {
	pub := newFakePublisher()
	pub.connectErr = errors.New("no route to broker")
	m := NewManager(testMQTTConfig(), "tunnel-7", pub, logging.Discard())

	assert.Error(t, m.Connect())
	assert.False(t, m.IsConnected())
	// The device keeps operating: readings buffer instead of delivering.
	m.Publish(snapAt(0))
	assert.Equal(t, 1, m.Buffered())
}

func TestSendAlertFireAndForget(t *testing.T) {
	pub := newFakePublisher()
	pub.connected = true
	m := NewManager(testMQTTConfig(), "tunnel-7", pub, logging.Discard())

	ok := m.SendAlert(anomaly.Event{
		Kind:     anomaly.TempTooLow,
		Severity: anomaly.Critical,
		Detail:   "air temperature 5.0°C below survivable minimum 10.0°C",
	})
	require.True(t, ok)
	require.Len(t, pub.published["greenos/tunnel-7/alerts"], 1)
	payload := string(pub.published["greenos/tunnel-7/alerts"][0])
	assert.Contains(t, payload, `"severity":"critical"`)
	assert.Contains(t, payload, `"acknowledged":false`)

	// A failed alert is dropped, never buffered.
	pub.publishErr = errors.New("broker gone")
	assert.False(t, m.SendAlert(anomaly.Event{Kind: anomaly.LoudNoise}))
	assert.Zero(t, m.Buffered())
}

func TestConfigUpdatesDropNewestWhenFull(t *testing.T) {
	pub := newFakePublisher()
	pub.connected = true
	m := NewManager(testMQTTConfig(), "tunnel-7", pub, logging.Discard())
	m.SubscribeConfig()

	handler := pub.handlers["greenos/tunnel-7/config"]
	require.NotNil(t, handler)

	for i := 0; i < 10; i++ {
		handler([]byte{byte('0' + i)}) // must not block even undrained
	}

	var got []byte
	select {
	case got = <-m.ConfigUpdates():
	default:
		t.Fatal("expected at least one pending update")
	}
	assert.Equal(t, []byte("0"), got, "oldest pending update survives")
}

func TestPublishFailureBuffersOnlyWireProjection(t *testing.T) {
	pub := newFakePublisher()
	pub.publishErr = errors.New("broker gone")
	m := NewManager(testMQTTConfig(), "tunnel-7", pub, logging.Discard())
	snap := snapAt(0)
	snap.AirHumidity = 55
	snap.Moisture = 35
	m.Publish(snap)

	pub.publishErr = nil
	m.Flush()
	payload := string(pub.published["greenos/tunnel-7/sensors/backfill"][0])
	assert.Contains(t, payload, `"temperature":21`)
	assert.Contains(t, payload, `"moisture":35`)
}
