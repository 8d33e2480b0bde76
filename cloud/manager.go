// Package cloud owns the broker session and the offline buffer. Publishing
// never throws: a failed delivery queues the reading and the device moves
// on. Authentication failures are connectivity failures; the system is
// fully functional offline.
package cloud

import (
	"encoding/json"
	"log/slog"

	"greenos/controller/anomaly"
	"greenos/controller/config"
	"greenos/controller/sensors"
)

// Manager ties the publisher to the offline buffer and the topic layout.
type Manager struct {
	cfg      config.MQTT
	deviceID string
	pub      Publisher
	buf      *Buffer
	log      *slog.Logger

	configUpdates chan []byte
}

// NewManager builds a manager around pub.
func NewManager(cfg config.MQTT, deviceID string, pub Publisher, log *slog.Logger) *Manager {
	return &Manager{
		cfg:           cfg,
		deviceID:      deviceID,
		pub:           pub,
		buf:           NewBuffer(cfg.BufferCapacity),
		log:           log,
		configUpdates: make(chan []byte, 4),
	}
}

func (m *Manager) topic(leaf string) string {
	return m.cfg.TopicPrefix + "/" + m.deviceID + "/" + leaf
}

// Connect attempts session establishment and, on success, subscribes to
// the backend's config topic. Failure is expected and recoverable: the
// caller proceeds offline.
func (m *Manager) Connect() error {
	if err := m.pub.Connect(m.cfg.ConnectTimeout()); err != nil {
		m.log.Warn("cloud unreachable, continuing offline", "error", err)
		return err
	}
	m.log.Info("connected to cloud broker", "broker", m.cfg.BrokerURL)
	return nil
}

// SubscribeConfig registers the best-effort config pull. Updates land on a
// small buffered channel; the control loop drains it, so shared state is
// only ever touched from the loop. When the channel is full the oldest
// pending update is simply superseded by dropping the new one: config
// pushes are idempotent snapshots, losing one is harmless.
func (m *Manager) SubscribeConfig() {
	err := m.pub.Subscribe(m.topic("config"), func(payload []byte) {
		select {
		case m.configUpdates <- payload:
		default:
		}
	})
	if err != nil {
		m.log.Warn("config subscription unavailable", "error", err)
	}
}

// ConfigUpdates is drained by the control loop.
func (m *Manager) ConfigUpdates() <-chan []byte { return m.configUpdates }

// IsConnected reports session state.
func (m *Manager) IsConnected() bool { return m.pub.IsConnected() }

// Publish attempts delivery of snap and reports success. On failure the
// snapshot's buffered projection is queued instead; nothing is lost and
// nothing retries synchronously.
func (m *Manager) Publish(snap sensors.SensorSnapshot) bool {
	payload, err := json.Marshal(snap)
	if err != nil {
		m.log.Error("snapshot marshal failed", "error", err)
		return false
	}
	if err := m.pub.Publish(m.topic("sensors"), payload); err != nil {
		m.buf.Append(NewRecord(snap))
		m.log.Info("publish failed, reading buffered",
			"error", err, "buffered", m.buf.Len(), "capacity", m.buf.Cap())
		return false
	}
	return true
}

// Flush drains the buffer in insertion order, dropping each record only
// after confirmed delivery. An interrupted drain leaves the remainder
// intact for the next attempt. Call only when the session is up.
func (m *Manager) Flush() int {
	delivered := 0
	for {
		rec, ok := m.buf.Oldest()
		if !ok {
			break
		}
		payload, err := json.Marshal(rec)
		if err != nil {
			// Unmarshalable record can never deliver; drop it or the
			// buffer wedges forever.
			m.log.Error("buffered record marshal failed, discarding", "error", err)
			m.buf.DropOldest()
			continue
		}
		if err := m.pub.Publish(m.topic("sensors/backfill"), payload); err != nil {
			m.log.Info("flush interrupted", "delivered", delivered, "remaining", m.buf.Len())
			break
		}
		m.buf.DropOldest()
		delivered++
	}
	if delivered > 0 {
		m.log.Info("offline buffer flushed", "delivered", delivered)
	}
	return delivered
}

// SendAlert delivers an anomaly event. Alerts are fire-and-forget: they
// are not buffered, since the backend reconstructs history from the
// backfilled readings.
func (m *Manager) SendAlert(ev anomaly.Event) bool {
	payload, err := json.Marshal(NewAlert(ev))
	if err != nil {
		m.log.Error("alert marshal failed", "error", err)
		return false
	}
	if err := m.pub.Publish(m.topic("alerts"), payload); err != nil {
		m.log.Warn("alert delivery failed", "kind", ev.Kind, "error", err)
		return false
	}
	return true
}

// PublishStatus reports actuator/system status, best effort.
func (m *Manager) PublishStatus(status any) {
	payload, err := json.Marshal(status)
	if err != nil {
		m.log.Error("status marshal failed", "error", err)
		return
	}
	if err := m.pub.Publish(m.topic("status"), payload); err != nil {
		m.log.Debug("status publish failed", "error", err)
	}
}

// Buffered is the current queue depth.
func (m *Manager) Buffered() int { return m.buf.Len() }

// Close tears down the session.
func (m *Manager) Close() { m.pub.Close() }
