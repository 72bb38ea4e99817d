package mqttstream

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/cortex-data/focus.report/internal/monitoring"
	"github.com/cortex-data/focus.report/internal/stream"
)

// Resolver discovers streams from retained descriptor announcements. It
// keeps a live view of every announced stream and answers Resolve queries
// against it, waiting up to the caller's timeout for enough matches to
// appear.
type Resolver struct {
	client *Client

	mu      sync.Mutex
	known   map[string]stream.Descriptor
	updated chan struct{}
	closed  bool
}

// NewResolver subscribes to the descriptor topic tree and starts tracking
// announcements.
func NewResolver(c *Client) (*Resolver, error) {
	r := &Resolver{
		client:  c,
		known:   make(map[string]stream.Descriptor),
		updated: make(chan struct{}),
	}

	topic := c.prefix + "/streams/+"
	token := c.client.Subscribe(topic, 1, r.onAnnouncement)
	if !token.WaitTimeout(5 * time.Second) {
		return nil, fmt.Errorf("mqttstream: subscribe timeout for %s", topic)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("mqttstream: subscribe %s: %w", topic, err)
	}
	monitoring.Logf("[MQTT] Watching stream announcements on %s", topic)
	return r, nil
}

func (r *Resolver) onAnnouncement(_ mqtt.Client, msg mqtt.Message) {
	parts := strings.Split(msg.Topic(), "/")
	name := parts[len(parts)-1]
	if name == "" {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}

	// An empty retained payload clears the announcement.
	if len(msg.Payload()) == 0 {
		if _, ok := r.known[name]; ok {
			delete(r.known, name)
			monitoring.Logf("[MQTT] Stream %q withdrawn", name)
			r.notifyLocked()
		}
		return
	}

	var p descriptorPayload
	if err := json.Unmarshal(msg.Payload(), &p); err != nil {
		monitoring.Debugf("[MQTT] Bad descriptor on %s: %v", msg.Topic(), err)
		return
	}
	if p.Name == "" {
		p.Name = name
	}
	d := p.descriptor()
	r.known[name] = d
	monitoring.Debugf("[MQTT] Stream %q announced: type=%s channels=%d rate=%.0f",
		d.Name, d.Type, d.ChannelCount, d.NominalRate)
	r.notifyLocked()
}

func (r *Resolver) notifyLocked() {
	close(r.updated)
	r.updated = make(chan struct{})
}

func (r *Resolver) matching(typeTag string) []stream.Descriptor {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []stream.Descriptor
	for _, d := range r.known {
		if d.Type == typeTag {
			out = append(out, d)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Known returns every currently announced stream, sorted by name.
func (r *Resolver) Known() []stream.Descriptor {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]stream.Descriptor, 0, len(r.known))
	for _, d := range r.known {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Resolve returns the streams of the given type currently announced,
// waiting up to timeout for at least minCount of them. Fewer matches than
// minCount at the deadline is not an error; callers decide whether a
// partial result is usable.
func (r *Resolver) Resolve(typeTag string, minCount int, timeout time.Duration) ([]stream.Descriptor, error) {
	if minCount < 1 {
		minCount = 1
	}
	deadline := time.Now().Add(timeout)
	for {
		r.mu.Lock()
		if r.closed {
			r.mu.Unlock()
			return nil, stream.ErrClosed
		}
		updated := r.updated
		r.mu.Unlock()

		matches := r.matching(typeTag)
		if len(matches) >= minCount {
			return matches, nil
		}

		remaining := time.Until(deadline)
		if remaining <= 0 {
			return matches, nil
		}
		select {
		case <-updated:
		case <-time.After(remaining):
		}
	}
}

// Close stops tracking announcements.
func (r *Resolver) Close() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	r.notifyLocked()
	r.mu.Unlock()

	r.client.client.Unsubscribe(r.client.prefix + "/streams/+")
}
