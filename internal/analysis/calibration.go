package analysis

// CalibrationState accumulates raw per-channel band powers during the
// calibration window and freezes into a per-channel baseline afterwards. It
// is owned exclusively by the worker loop; no locking is needed.
type CalibrationState struct {
	channels int
	bands    int
	sums     [][]float64
	counts   []int
	ticks    int
	baseline [][]float64
	seeded   []bool
	frozen   bool
}

// NewCalibrationState creates state for the given channel and band counts.
func NewCalibrationState(channels, bands int) *CalibrationState {
	sums := make([][]float64, channels)
	for i := range sums {
		sums[i] = make([]float64, bands)
	}
	return &CalibrationState{
		channels: channels,
		bands:    bands,
		sums:     sums,
		counts:   make([]int, channels),
	}
}

// Accumulate folds one tick's raw band powers into the running baseline.
// Only the listed good channels contribute: a channel flagged bad has an
// all-zero row this tick, and folding that in would dilute its mean and
// make an unchanged signal look like a power change once it recovers.
// Calls after Freeze are ignored.
func (c *CalibrationState) Accumulate(raw [][]float64, good []int) {
	if c.frozen {
		return
	}
	for _, ch := range good {
		if ch < 0 || ch >= c.channels || ch >= len(raw) {
			continue
		}
		for b := 0; b < c.bands && b < len(raw[ch]); b++ {
			c.sums[ch][b] += raw[ch][b]
		}
		c.counts[ch]++
	}
	c.ticks++
}

// Ticks returns how many ticks have been accumulated.
func (c *CalibrationState) Ticks() int { return c.ticks }

// Frozen reports whether the baseline is fixed.
func (c *CalibrationState) Frozen() bool { return c.frozen }

// Freeze fixes each channel's baseline at its mean over the ticks it was
// actually observed. A channel never observed during the window stays
// unseeded; Normalize seeds it from its first good tick afterwards.
func (c *CalibrationState) Freeze() {
	if c.frozen {
		return
	}
	c.baseline = make([][]float64, c.channels)
	c.seeded = make([]bool, c.channels)
	for ch := range c.baseline {
		c.baseline[ch] = make([]float64, c.bands)
		if c.counts[ch] > 0 {
			for b := range c.baseline[ch] {
				c.baseline[ch][b] = c.sums[ch][b] / float64(c.counts[ch])
			}
			c.seeded[ch] = true
		}
	}
	c.frozen = true
}

// Normalize returns (raw - baseline) * scale per channel and band. A good
// channel with no baseline yet takes this tick's raw powers as its baseline
// and reports zero for the tick, so a recovered electrode rejoins at zero
// instead of a spurious jump. Must only be called after Freeze.
func (c *CalibrationState) Normalize(raw [][]float64, good []int, scale float64) [][]float64 {
	goodSet := make(map[int]bool, len(good))
	for _, ch := range good {
		goodSet[ch] = true
	}
	out := make([][]float64, c.channels)
	for ch := range out {
		out[ch] = make([]float64, c.bands)
		if ch >= len(raw) {
			continue
		}
		if !c.seeded[ch] {
			if goodSet[ch] {
				copy(c.baseline[ch], raw[ch])
				c.seeded[ch] = true
			}
			continue
		}
		for b := 0; b < c.bands && b < len(raw[ch]); b++ {
			out[ch][b] = (raw[ch][b] - c.baseline[ch][b]) * scale
		}
	}
	return out
}

// ewma smooths a scalar across ticks with an exponential moving average to
// suppress tick-to-tick jitter.
type ewma struct {
	alpha  float64
	value  float64
	primed bool
}

// newEWMA creates a smoother with the given weight for new observations.
func newEWMA(alpha float64) *ewma {
	return &ewma{alpha: alpha}
}

// Update folds in an observation and returns the smoothed value. The first
// observation seeds the average.
func (e *ewma) Update(v float64) float64 {
	if !e.primed {
		e.value = v
		e.primed = true
		return v
	}
	e.value = e.alpha*v + (1-e.alpha)*e.value
	return e.value
}
