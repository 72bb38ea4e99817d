package mqttstream

import "github.com/cortex-data/focus.report/internal/stream"

// descriptorPayload is the retained announcement on <prefix>/streams/<name>.
type descriptorPayload struct {
	Name         string   `json:"name"`
	Type         string   `json:"type"`
	ChannelCount int      `json:"channel_count"`
	NominalRate  float64  `json:"nominal_rate"`
	ChannelNames []string `json:"channel_names,omitempty"`
}

func (p descriptorPayload) descriptor() stream.Descriptor {
	return stream.Descriptor{
		Name:         p.Name,
		Type:         p.Type,
		ChannelCount: p.ChannelCount,
		NominalRate:  p.NominalRate,
		ChannelNames: p.ChannelNames,
	}
}

func payloadFromDescriptor(d stream.Descriptor) descriptorPayload {
	return descriptorPayload{
		Name:         d.Name,
		Type:         d.Type,
		ChannelCount: d.ChannelCount,
		NominalRate:  d.NominalRate,
		ChannelNames: d.ChannelNames,
	}
}

// batchPayload is one sample batch on <prefix>/data/<name>. Samples are
// sample-major: one vector per timestamp.
type batchPayload struct {
	Timestamps []float64   `json:"timestamps"`
	Samples    [][]float64 `json:"samples"`
}
