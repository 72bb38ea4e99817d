package analysis

// MetricFrame is one analysis cycle's computed output. Frames are ephemeral:
// the worker hands each one to the sink and retains nothing.
type MetricFrame struct {
	// ID identifies the frame (uuid).
	ID string `json:"id"`

	// BandNames names the columns of BandPowers, in band order.
	BandNames []string `json:"band_names"`

	// BandPowers holds one row per source channel in source order. Rows
	// for channels flagged bad this tick are present but zeroed. After
	// calibration the values are (raw - baseline) * scale_factor.
	BandPowers [][]float64 `json:"band_powers"`

	// GoodChannels lists the channel indices that survived bad-channel
	// detection this tick.
	GoodChannels []int `json:"good_channels"`

	// Aggregate is the single calibrated, motion-compensated, smoothed
	// output scalar.
	Aggregate float64 `json:"aggregate"`

	// Movement is the motion scalar in [0, 1] derived from the auxiliary
	// stream; 0 when no motion data was available this tick.
	Movement float64 `json:"movement"`

	// Compensation is the multiplicative attenuation applied to the
	// aggregate for this tick's movement; 1 means no attenuation.
	Compensation float64 `json:"compensation"`

	// StartTimestamp and EndTimestamp bound the source time range the
	// frame summarizes, in source clock seconds.
	StartTimestamp float64 `json:"start_ts"`
	EndTimestamp   float64 `json:"end_ts"`

	// Calibrated reports whether the baseline was frozen when this frame
	// was produced.
	Calibrated bool `json:"calibrated"`
}

// Sink receives worker output. Implementations must not block: the worker
// calls them from its loop goroutine between ticks.
type Sink interface {
	// OnMetrics receives one frame per successful analysis cycle.
	OnMetrics(frame MetricFrame)

	// OnStatus receives human-readable state changes, including a
	// "waiting for data" notice on every degraded tick.
	OnStatus(status string)
}

// SinkFuncs adapts plain functions to the Sink interface. Nil funcs are
// skipped.
type SinkFuncs struct {
	Metrics func(MetricFrame)
	Status  func(string)
}

// OnMetrics calls the Metrics func if set.
func (s SinkFuncs) OnMetrics(frame MetricFrame) {
	if s.Metrics != nil {
		s.Metrics(frame)
	}
}

// OnStatus calls the Status func if set.
func (s SinkFuncs) OnStatus(status string) {
	if s.Status != nil {
		s.Status(status)
	}
}

// MultiSink fans worker output to several sinks in order.
type MultiSink []Sink

// OnMetrics forwards the frame to every sink.
func (m MultiSink) OnMetrics(frame MetricFrame) {
	for _, s := range m {
		s.OnMetrics(frame)
	}
}

// OnStatus forwards the status to every sink.
func (m MultiSink) OnStatus(status string) {
	for _, s := range m {
		s.OnStatus(status)
	}
}
