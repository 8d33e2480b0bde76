package cloud

import (
	"errors"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"greenos/controller/config"
)

// ErrNotConnected means no broker session is established. Callers treat it
// as the normal offline case, not a fault.
var ErrNotConnected = errors.New("not connected to broker")

// Publisher is the transport the manager speaks through. The MQTT client
// implements it for production; tests substitute a fake.
type Publisher interface {
	Connect(timeout time.Duration) error
	IsConnected() bool
	Publish(topic string, payload []byte) error
	Subscribe(topic string, handler func(payload []byte)) error
	Close()
}

// MQTTClient is the paho-backed Publisher. Connection failures, including
// bad credentials, are reported, never fatal: the device keeps operating
// offline and retries on the next sync cycle.
type MQTTClient struct {
	cfg    config.MQTT
	client mqtt.Client
}

// NewMQTTClient prepares a client without connecting.
func NewMQTTClient(cfg config.MQTT) *MQTTClient {
	opts := mqtt.NewClientOptions().AddBroker(cfg.BrokerURL)
	opts.SetClientID(cfg.ClientID)
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}
	opts.SetAutoReconnect(true)
	opts.SetConnectTimeout(cfg.ConnectTimeout())
	return &MQTTClient{cfg: cfg, client: mqtt.NewClient(opts)}
}

// Connect attempts one session establishment within timeout. An auth
// rejection surfaces as an ordinary error here: connectivity and
// authentication failures are handled identically upstream.
func (c *MQTTClient) Connect(timeout time.Duration) error {
	token := c.client.Connect()
	if !token.WaitTimeout(timeout) {
		return fmt.Errorf("broker %s: connect timed out after %s", c.cfg.BrokerURL, timeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("broker %s: %w", c.cfg.BrokerURL, err)
	}
	return nil
}

// IsConnected reports session state.
func (c *MQTTClient) IsConnected() bool { return c.client.IsConnected() }

// Publish delivers one payload, waiting for the broker ack within the
// connect timeout so a dead link cannot stall the loop.
func (c *MQTTClient) Publish(topic string, payload []byte) error {
	if !c.client.IsConnected() {
		return ErrNotConnected
	}
	token := c.client.Publish(topic, c.cfg.QoS, false, payload)
	if !token.WaitTimeout(c.cfg.ConnectTimeout()) {
		return fmt.Errorf("publish %s: timed out", topic)
	}
	return token.Error()
}

// Subscribe registers handler for a topic. The handler runs on the paho
// network goroutine; it must hand data back to the control loop rather
// than mutate shared state.
func (c *MQTTClient) Subscribe(topic string, handler func(payload []byte)) error {
	if !c.client.IsConnected() {
		return ErrNotConnected
	}
	token := c.client.Subscribe(topic, c.cfg.QoS, func(_ mqtt.Client, msg mqtt.Message) {
		handler(msg.Payload())
	})
	if !token.WaitTimeout(c.cfg.ConnectTimeout()) {
		return fmt.Errorf("subscribe %s: timed out", topic)
	}
	return token.Error()
}

// Close disconnects, allowing inflight messages a short drain.
func (c *MQTTClient) Close() {
	if c.client.IsConnected() {
		c.client.Disconnect(250)
	}
}
