package analysis

import (
	"fmt"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/cortex-data/focus.report/internal/monitoring"
	"github.com/cortex-data/focus.report/internal/stream"
	"github.com/cortex-data/focus.report/internal/timeutil"
)

// State is the worker lifecycle state.
type State int32

// Worker states. Degraded is a sub-state of Running entered when a tick
// observes insufficient data; the loop keeps running at the fixed period.
const (
	StateIdle State = iota
	StateResolving
	StateRunning
	StateDegraded
	StateStopped
)

// String returns the lowercase state name.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateResolving:
		return "resolving"
	case StateRunning:
		return "running"
	case StateDegraded:
		return "degraded"
	case StateStopped:
		return "stopped"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// SourceOpener turns a resolved descriptor into a live source.
type SourceOpener func(stream.Descriptor) (stream.Source, error)

// Worker loop defaults.
const (
	DefaultTickPeriod        = 50 * time.Millisecond
	DefaultResolveAttempts   = 3
	DefaultResolveTimeout    = 2 * time.Second
	DefaultMinChunkFraction  = 0.25
	DefaultOverRequestFactor = 2.0
	DefaultSmoothingAlpha    = 0.3
)

// WorkerConfig wires a Worker. Cache, Open and Sink are required; zero
// values elsewhere take the package defaults.
type WorkerConfig struct {
	// Cache performs stream discovery.
	Cache *stream.Cache

	// Open constructs a live source from a resolved descriptor.
	Open SourceOpener

	// Sink receives frames and status updates.
	Sink Sink

	// Clock drives the tick cadence; defaults to the real clock.
	Clock timeutil.Clock

	// Pipeline holds the preprocessing parameters.
	Pipeline PipelineConfig

	// Bands are the extracted frequency ranges.
	Bands []Band

	// TickPeriod is the fixed loop period.
	TickPeriod time.Duration

	// ResolveAttempts / ResolveTimeout bound discovery per source type.
	ResolveAttempts int
	ResolveTimeout  time.Duration

	// MinChunkFraction is the insufficient-data floor as a fraction of
	// the required sample count. OverRequestFactor scales the pull
	// request to absorb jitter in the source's own buffering. Both are
	// empirically chosen; see config tuning.
	MinChunkFraction  float64
	OverRequestFactor float64

	// MotionNorm is the motion reading treated as full-scale movement;
	// MotionImpact weighs movement in the aggregate attenuation.
	MotionNorm   float64
	MotionImpact float64

	// SmoothingAlpha is the EMA weight for the aggregate scalar.
	SmoothingAlpha float64

	// EEGType / MotionType are the discovery type tags.
	EEGType    string
	MotionType string
}

func (cfg WorkerConfig) withDefaults() WorkerConfig {
	if cfg.Clock == nil {
		cfg.Clock = timeutil.RealClock{}
	}
	if cfg.Pipeline == (PipelineConfig{}) {
		cfg.Pipeline = DefaultPipelineConfig()
	}
	if cfg.Bands == nil {
		cfg.Bands = DefaultBands()
	}
	if cfg.TickPeriod <= 0 {
		cfg.TickPeriod = DefaultTickPeriod
	}
	if cfg.ResolveAttempts <= 0 {
		cfg.ResolveAttempts = DefaultResolveAttempts
	}
	if cfg.ResolveTimeout <= 0 {
		cfg.ResolveTimeout = DefaultResolveTimeout
	}
	if cfg.MinChunkFraction <= 0 {
		cfg.MinChunkFraction = DefaultMinChunkFraction
	}
	if cfg.OverRequestFactor <= 0 {
		cfg.OverRequestFactor = DefaultOverRequestFactor
	}
	if cfg.MotionNorm <= 0 {
		cfg.MotionNorm = DefaultMotionNorm
	}
	if cfg.MotionImpact <= 0 {
		cfg.MotionImpact = DefaultMotionImpact
	}
	if cfg.SmoothingAlpha <= 0 || cfg.SmoothingAlpha > 1 {
		cfg.SmoothingAlpha = DefaultSmoothingAlpha
	}
	if cfg.EEGType == "" {
		cfg.EEGType = stream.TypeEEG
	}
	if cfg.MotionType == "" {
		cfg.MotionType = stream.TypeMotion
	}
	return cfg
}

// Worker owns one EEG source and one motion source and drives the
// fixed-period analysis loop. A Worker runs once: after Stop or a failed
// start it stays Stopped and a fresh Worker must be created, so stale
// calibration state can never leak into a new run.
type Worker struct {
	id       string
	cfg      WorkerConfig
	settings Settings

	state    atomic.Int32
	stopCh   chan struct{}
	doneCh   chan struct{}
	stopOnce sync.Once

	mu  sync.Mutex
	err error

	eeg    stream.Source
	motion stream.Source

	calibration *CalibrationState
	smoother    *ewma
	calibTicks  int
}

// NewWorker creates an idle worker.
func NewWorker(cfg WorkerConfig) *Worker {
	return &Worker{
		id:     uuid.NewString(),
		cfg:    cfg.withDefaults(),
		stopCh: make(chan struct{}),
		doneCh: make(chan struct{}),
	}
}

// ID returns the worker instance id.
func (w *Worker) ID() string { return w.id }

// State returns the current lifecycle state.
func (w *Worker) State() State { return State(w.state.Load()) }

// Err returns the fatal error that stopped the worker, if any. Valid once
// Done is closed.
func (w *Worker) Err() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.err
}

// Done is closed when the worker reaches Stopped.
func (w *Worker) Done() <-chan struct{} { return w.doneCh }

// Start validates settings and launches the worker: Idle → Resolving, then
// Running once both sources resolve. It returns immediately; resolution
// failures surface through Err after Done closes.
func (w *Worker) Start(settings Settings) error {
	settings = settings.Normalize()
	if err := settings.Validate(); err != nil {
		return err
	}
	if !w.state.CompareAndSwap(int32(StateIdle), int32(StateResolving)) {
		return fmt.Errorf("analysis: worker is %s, Start requires idle", w.State())
	}

	w.settings = settings
	w.calibTicks = int(math.Ceil(settings.CalibrationWindowSeconds / w.cfg.TickPeriod.Seconds()))
	w.smoother = newEWMA(w.cfg.SmoothingAlpha)

	go w.run()
	return nil
}

// Stop requests shutdown and waits for the loop to exit. Pulls are
// non-blocking so this is immediate; a pending discovery is abandoned and
// its result discarded. Safe to call multiple times and before Start.
func (w *Worker) Stop() {
	if w.state.CompareAndSwap(int32(StateIdle), int32(StateStopped)) {
		// Never started; nothing to wait for.
		close(w.doneCh)
		return
	}
	w.stopOnce.Do(func() { close(w.stopCh) })
	<-w.doneCh
}

func (w *Worker) setErr(err error) {
	w.mu.Lock()
	w.err = err
	w.mu.Unlock()
}

func (w *Worker) run() {
	defer close(w.doneCh)
	defer w.state.Store(int32(StateStopped))
	defer w.releaseSources()

	w.cfg.Sink.OnStatus("resolving streams")

	eeg, err := w.resolveSource(w.cfg.EEGType)
	if err != nil {
		w.fail(err)
		return
	}
	if eeg == nil {
		return // stopped while resolving
	}
	w.eeg = eeg

	motion, err := w.resolveSource(w.cfg.MotionType)
	if err != nil {
		// The worker never runs with a partially resolved source set.
		w.fail(err)
		return
	}
	if motion == nil {
		return
	}
	w.motion = motion

	info := w.eeg.Info()
	w.calibration = NewCalibrationState(info.ChannelCount, len(w.cfg.Bands))

	w.state.Store(int32(StateRunning))
	w.cfg.Sink.OnStatus(fmt.Sprintf("running: eeg=%s (%d ch @ %.0f Hz), motion=%s",
		info.Name, info.ChannelCount, info.NominalRate, w.motion.Info().Name))
	monitoring.Logf("analysis worker %s: running", w.id)

	ticker := w.cfg.Clock.NewTicker(w.cfg.TickPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-w.stopCh:
			w.cfg.Sink.OnStatus("stopped")
			monitoring.Logf("analysis worker %s: stopped", w.id)
			return
		case <-ticker.C():
			w.tick()
		}
	}
}

// resolveSource locates exactly one stream of the given type through the
// cache, with bounded attempts. Returns (nil, nil) when the worker was
// stopped mid-resolve.
func (w *Worker) resolveSource(typeTag string) (stream.Source, error) {
	for attempt := 1; attempt <= w.cfg.ResolveAttempts; attempt++ {
		select {
		case <-w.stopCh:
			return nil, nil
		default:
		}

		descriptors, err := w.cfg.Cache.Resolve(typeTag, 1, w.cfg.ResolveTimeout)
		if err == nil && len(descriptors) > 0 {
			src, openErr := w.cfg.Open(descriptors[0])
			if openErr == nil {
				monitoring.Logf("analysis worker %s: resolved %s stream %q", w.id, typeTag, descriptors[0].Name)
				return src, nil
			}
			err = openErr
		}
		monitoring.Logf("analysis worker %s: %s resolve attempt %d/%d failed: %v",
			w.id, typeTag, attempt, w.cfg.ResolveAttempts, err)

		if attempt == w.cfg.ResolveAttempts {
			break
		}
		select {
		case <-w.stopCh:
			return nil, nil
		case <-w.cfg.Clock.After(w.cfg.ResolveTimeout):
		}
	}
	return nil, fmt.Errorf("analysis: no %s stream after %d attempts: %w",
		typeTag, w.cfg.ResolveAttempts, stream.ErrSourceNotFound)
}

func (w *Worker) fail(err error) {
	w.setErr(err)
	w.cfg.Sink.OnStatus(fmt.Sprintf("stopped: %v", err))
	monitoring.Logf("analysis worker %s: %v", w.id, err)
}

func (w *Worker) releaseSources() {
	if w.eeg != nil {
		w.eeg.Close()
		w.eeg = nil
	}
	if w.motion != nil {
		w.motion.Close()
		w.motion = nil
	}
}

func (w *Worker) tick() {
	info := w.eeg.Info()
	required := int(w.settings.AnalysisWindowSeconds * info.NominalRate)
	if required < 1 {
		required = 1
	}

	// Over-request to absorb jitter in the source's own buffering.
	chunk, err := w.eeg.PullChunk(0, int(w.cfg.OverRequestFactor*float64(required)))
	if err != nil {
		w.degrade(fmt.Sprintf("eeg pull failed: %v", err))
		return
	}

	floor := int(float64(required) * w.cfg.MinChunkFraction)
	if floor < 1 {
		floor = 1
	}
	if chunk.Len() < floor {
		w.degrade(fmt.Sprintf("waiting for data (%d/%d samples)", chunk.Len(), required))
		return
	}
	if w.State() == StateDegraded {
		w.state.Store(int32(StateRunning))
		w.cfg.Sink.OnStatus("data flow restored")
	}

	movement := w.pullMovement()

	channels := transpose(chunk.Samples, info.ChannelCount)
	bad := detectBadChannels(channels, info.NominalRate, w.cfg.Pipeline)
	if w.settings.ReferenceMode == ReferenceCommonAverage {
		commonAverageReference(channels, bad)
	}

	psdSize := nearestPowerOfTwo(int(info.NominalRate))
	raw := make([][]float64, len(channels))
	good := make([]int, 0, len(channels))
	for ch := range channels {
		raw[ch] = make([]float64, len(w.cfg.Bands))
		if bad[ch] {
			continue
		}
		preprocessChannel(channels[ch], info.NominalRate, w.cfg.Pipeline)
		freqs, psd := welchPSD(channels[ch], info.NominalRate, psdSize)
		if psd == nil {
			continue
		}
		raw[ch] = channelBandPowers(freqs, psd, w.cfg.Bands)
		good = append(good, ch)
	}

	if !w.calibration.Frozen() {
		w.calibration.Accumulate(raw, good)
		if w.calibration.Ticks() < w.calibTicks {
			w.cfg.Sink.OnStatus(fmt.Sprintf("calibrating (%d/%d)", w.calibration.Ticks(), w.calibTicks))
			return
		}
		w.calibration.Freeze()
		w.cfg.Sink.OnStatus("calibration complete, baseline frozen")
	}

	normalized := w.calibration.Normalize(raw, good, w.settings.ScaleFactor)
	for ch := range normalized {
		if bad[ch] {
			for b := range normalized[ch] {
				normalized[ch][b] = 0
			}
		}
	}

	comp := compensationFactor(movement, w.cfg.MotionImpact)
	var aggregate float64
	if len(good) > 0 {
		var sum float64
		for _, ch := range good {
			for _, v := range normalized[ch] {
				sum += v
			}
		}
		aggregate = sum / float64(len(good)*len(w.cfg.Bands))
	}
	aggregate = w.smoother.Update(comp * aggregate)

	frame := MetricFrame{
		ID:           uuid.NewString(),
		BandNames:    bandNames(w.cfg.Bands),
		BandPowers:   normalized,
		GoodChannels: good,
		Aggregate:    aggregate,
		Movement:     movement,
		Compensation: comp,
		Calibrated:   true,
	}
	if chunk.Len() > 0 {
		frame.StartTimestamp = chunk.Timestamps[0]
		frame.EndTimestamp = chunk.Timestamps[chunk.Len()-1]
	}
	w.cfg.Sink.OnMetrics(frame)
	monitoring.Debugf("analysis worker %s: frame aggregate=%.4f movement=%.3f good=%d/%d",
		w.id, aggregate, movement, len(good), len(channels))
}

// pullMovement pulls the motion chunk best-effort. Absence of motion data
// degrades to a neutral factor rather than stalling the EEG path.
func (w *Worker) pullMovement() float64 {
	if w.motion == nil {
		return 0
	}
	mInfo := w.motion.Info()
	mRequired := int(w.settings.AnalysisWindowSeconds * mInfo.NominalRate)
	if mRequired < 1 {
		mRequired = 1
	}
	chunk, err := w.motion.PullChunk(0, int(w.cfg.OverRequestFactor*float64(mRequired)))
	if err != nil || chunk.Empty() {
		return 0
	}
	return movementScalar(chunk.Samples, w.cfg.MotionNorm)
}

func (w *Worker) degrade(status string) {
	w.state.Store(int32(StateDegraded))
	w.cfg.Sink.OnStatus(status)
	monitoring.Debugf("analysis worker %s: degraded: %s", w.id, status)
}

// transpose converts sample-major chunk data into channel-major rows,
// clamping each vector to the declared channel count.
func transpose(samples [][]float64, channelCount int) [][]float64 {
	out := make([][]float64, channelCount)
	for ch := range out {
		out[ch] = make([]float64, len(samples))
	}
	for s, vec := range samples {
		for ch := 0; ch < channelCount && ch < len(vec); ch++ {
			out[ch][s] = vec[ch]
		}
	}
	return out
}
