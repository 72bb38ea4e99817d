// Package mqttstream binds the stream abstractions to an MQTT broker.
// Acquisition devices announce themselves with a retained descriptor on
// <prefix>/streams/<name> and publish sample batches on
// <prefix>/data/<name>; this package implements discovery and sources on
// top of those topics.
package mqttstream

import (
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/cortex-data/focus.report/internal/monitoring"
)

// DefaultTopicPrefix is the root of the stream topic tree.
const DefaultTopicPrefix = "focus"

// Options configures the broker connection.
type Options struct {
	// BrokerURL is the full broker address, e.g. "tcp://localhost:1883".
	BrokerURL string

	// ClientID identifies this client to the broker. A suffix is added
	// to keep concurrent processes distinct.
	ClientID string

	// Username and Password are optional broker credentials.
	Username string
	Password string

	// TopicPrefix overrides DefaultTopicPrefix.
	TopicPrefix string

	// ConnectTimeout bounds the initial connect. Defaults to 10s.
	ConnectTimeout time.Duration
}

// Client wraps a connected MQTT session shared by resolvers, sources and
// publishers.
type Client struct {
	client mqtt.Client
	prefix string
}

// Connect establishes the broker session. The underlying client
// auto-reconnects and replays subscriptions after connection loss.
func Connect(o Options) (*Client, error) {
	if o.BrokerURL == "" {
		return nil, fmt.Errorf("mqttstream: broker URL required")
	}
	if o.TopicPrefix == "" {
		o.TopicPrefix = DefaultTopicPrefix
	}
	if o.ConnectTimeout <= 0 {
		o.ConnectTimeout = 10 * time.Second
	}
	if o.ClientID == "" {
		o.ClientID = "focus-report"
	}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(o.BrokerURL)
	opts.SetClientID(fmt.Sprintf("%s-%d", o.ClientID, time.Now().Unix()))
	if o.Username != "" {
		opts.SetUsername(o.Username)
		opts.SetPassword(o.Password)
	}
	opts.SetKeepAlive(60 * time.Second)
	opts.SetPingTimeout(10 * time.Second)
	opts.SetConnectTimeout(o.ConnectTimeout)
	opts.SetAutoReconnect(true)
	opts.SetMaxReconnectInterval(30 * time.Second)
	opts.SetResumeSubs(true)
	opts.OnConnect = func(mqtt.Client) {
		monitoring.Logf("[MQTT] Connected to %s", o.BrokerURL)
	}
	opts.OnConnectionLost = func(_ mqtt.Client, err error) {
		monitoring.Logf("[MQTT] Connection lost: %v (will auto-reconnect)", err)
	}

	client := mqtt.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(o.ConnectTimeout) {
		return nil, fmt.Errorf("mqttstream: connect timeout to %s", o.BrokerURL)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("mqttstream: connect to %s: %w", o.BrokerURL, err)
	}
	return &Client{client: client, prefix: o.TopicPrefix}, nil
}

// Close disconnects from the broker, allowing in-flight messages to drain.
func (c *Client) Close() {
	if c.client != nil && c.client.IsConnected() {
		c.client.Disconnect(1000)
	}
}

// IsConnected reports whether the broker session is up.
func (c *Client) IsConnected() bool {
	return c.client != nil && c.client.IsConnected()
}

func (c *Client) descriptorTopic(name string) string {
	return c.prefix + "/streams/" + name
}

func (c *Client) dataTopic(name string) string {
	return c.prefix + "/data/" + name
}
