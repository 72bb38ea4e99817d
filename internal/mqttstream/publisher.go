package mqttstream

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/cortex-data/focus.report/internal/monitoring"
	"github.com/cortex-data/focus.report/internal/stream"
)

// Publisher announces streams and pushes sample batches, the device side
// of the topic contract. Used by the synthetic signal generator and by
// bridge processes that relay hardware into the broker.
type Publisher struct {
	client *Client
}

// NewPublisher wraps a connected client for publishing.
func NewPublisher(c *Client) *Publisher {
	return &Publisher{client: c}
}

// Announce publishes the stream descriptor as a retained message so late
// subscribers discover the stream immediately.
func (p *Publisher) Announce(d stream.Descriptor) error {
	payload, err := json.Marshal(payloadFromDescriptor(d))
	if err != nil {
		return fmt.Errorf("mqttstream: marshal descriptor for %q: %w", d.Name, err)
	}
	topic := p.client.descriptorTopic(d.Name)
	token := p.client.client.Publish(topic, 1, true, payload)
	if !token.WaitTimeout(5 * time.Second) {
		return fmt.Errorf("mqttstream: publish timeout for %s", topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("mqttstream: publish %s: %w", topic, err)
	}
	monitoring.Logf("[MQTT] Announced stream %q on %s", d.Name, topic)
	return nil
}

// Withdraw clears the retained descriptor so resolvers drop the stream.
func (p *Publisher) Withdraw(name string) error {
	topic := p.client.descriptorTopic(name)
	token := p.client.client.Publish(topic, 1, true, []byte{})
	if !token.WaitTimeout(5 * time.Second) {
		return fmt.Errorf("mqttstream: publish timeout for %s", topic)
	}
	return token.Error()
}

// PublishBatch sends one sample batch. Batches are fire-and-forget; a
// dropped batch costs less than stalling the device loop.
func (p *Publisher) PublishBatch(name string, timestamps []float64, samples [][]float64) error {
	payload, err := json.Marshal(batchPayload{Timestamps: timestamps, Samples: samples})
	if err != nil {
		return fmt.Errorf("mqttstream: marshal batch for %q: %w", name, err)
	}
	token := p.client.client.Publish(p.client.dataTopic(name), 0, false, payload)
	if err := token.Error(); err != nil {
		return fmt.Errorf("mqttstream: publish batch for %q: %w", name, err)
	}
	return nil
}
