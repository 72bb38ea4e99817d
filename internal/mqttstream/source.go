package mqttstream

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/cortex-data/focus.report/internal/monitoring"
	"github.com/cortex-data/focus.report/internal/stream"
)

// DefaultQueueSamples bounds the per-source sample queue. At typical EEG
// rates this holds well over ten seconds of signal.
const DefaultQueueSamples = 8192

// Source receives sample batches for one stream and buffers them for
// pull-based consumption. When the consumer falls behind, the oldest
// samples are dropped so pulls always see the newest signal.
type Source struct {
	client *Client
	info   stream.Descriptor
	topic  string

	mu         sync.Mutex
	samples    [][]float64
	timestamps []float64
	maxQueue   int
	dropped    int
	closed     bool
	notify     chan struct{}
}

// OpenSource subscribes to the stream's data topic and starts buffering.
func OpenSource(c *Client, d stream.Descriptor) (*Source, error) {
	s := &Source{
		client:   c,
		info:     d,
		topic:    c.dataTopic(d.Name),
		maxQueue: DefaultQueueSamples,
		notify:   make(chan struct{}, 1),
	}

	token := c.client.Subscribe(s.topic, 0, s.onBatch)
	if !token.WaitTimeout(5 * time.Second) {
		return nil, fmt.Errorf("mqttstream: subscribe timeout for %s", s.topic)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("mqttstream: subscribe %s: %w", s.topic, err)
	}
	monitoring.Logf("[MQTT] Receiving %s samples on %s", d.Type, s.topic)
	return s, nil
}

func (s *Source) onBatch(_ mqtt.Client, msg mqtt.Message) {
	var p batchPayload
	if err := json.Unmarshal(msg.Payload(), &p); err != nil {
		monitoring.Debugf("[MQTT] Bad batch on %s: %v", msg.Topic(), err)
		return
	}
	if len(p.Samples) != len(p.Timestamps) {
		monitoring.Debugf("[MQTT] Batch on %s has %d samples but %d timestamps, dropping",
			msg.Topic(), len(p.Samples), len(p.Timestamps))
		return
	}
	s.enqueue(p.Samples, p.Timestamps)
}

func (s *Source) enqueue(samples [][]float64, timestamps []float64) {
	if len(samples) == 0 {
		return
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.samples = append(s.samples, samples...)
	s.timestamps = append(s.timestamps, timestamps...)
	if over := len(s.samples) - s.maxQueue; over > 0 {
		s.samples = append(s.samples[:0:0], s.samples[over:]...)
		s.timestamps = append(s.timestamps[:0:0], s.timestamps[over:]...)
		s.dropped += over
		if s.dropped >= s.maxQueue {
			monitoring.Logf("[MQTT] %s consumer behind, dropped %d samples", s.info.Name, s.dropped)
			s.dropped = 0
		}
	}
	s.mu.Unlock()

	select {
	case s.notify <- struct{}{}:
	default:
	}
}

// PullChunk takes up to maxSamples of the oldest buffered samples. With a
// zero timeout it returns immediately, possibly with an empty chunk; with a
// positive timeout it waits up to that long for data to arrive.
func (s *Source) PullChunk(timeout time.Duration, maxSamples int) (stream.Chunk, error) {
	deadline := time.Now().Add(timeout)
	for {
		chunk, closed := s.take(maxSamples)
		if closed {
			return stream.Chunk{}, stream.ErrClosed
		}
		if !chunk.Empty() || timeout <= 0 {
			return chunk, nil
		}
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return chunk, nil
		}
		select {
		case <-s.notify:
		case <-time.After(remaining):
		}
	}
}

func (s *Source) take(maxSamples int) (stream.Chunk, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return stream.Chunk{}, true
	}
	n := len(s.samples)
	if maxSamples > 0 && n > maxSamples {
		n = maxSamples
	}
	if n == 0 {
		return stream.Chunk{}, false
	}

	chunk := stream.Chunk{
		Samples:    s.samples[:n:n],
		Timestamps: s.timestamps[:n:n],
	}
	s.samples = append(s.samples[:0:0], s.samples[n:]...)
	s.timestamps = append(s.timestamps[:0:0], s.timestamps[n:]...)
	return chunk, false
}

// Info returns the descriptor this source was opened with.
func (s *Source) Info() stream.Descriptor { return s.info }

// Close unsubscribes and discards buffered samples. Subsequent pulls
// return ErrClosed.
func (s *Source) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.samples = nil
	s.timestamps = nil
	s.mu.Unlock()

	select {
	case s.notify <- struct{}{}:
	default:
	}
	if s.client != nil {
		s.client.client.Unsubscribe(s.topic)
	}
	return nil
}
