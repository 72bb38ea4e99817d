package analysis

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"

	"github.com/cortex-data/focus.report/internal/stream"
)

type fakeSource struct {
	mu    sync.Mutex
	info  stream.Descriptor
	chunk stream.Chunk
	err   error
}

func (s *fakeSource) PullChunk(timeout time.Duration, maxSamples int) (stream.Chunk, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return stream.Chunk{}, s.err
	}
	return s.chunk, nil
}

func (s *fakeSource) Info() stream.Descriptor { return s.info }
func (s *fakeSource) Close() error            { return nil }

func (s *fakeSource) setChunk(c stream.Chunk) {
	s.mu.Lock()
	s.chunk = c
	s.mu.Unlock()
}

type collectSink struct {
	mu       sync.Mutex
	frames   []MetricFrame
	statuses []string
	frameCh  chan MetricFrame
}

func newCollectSink() *collectSink {
	return &collectSink{frameCh: make(chan MetricFrame, 64)}
}

func (s *collectSink) OnMetrics(frame MetricFrame) {
	s.mu.Lock()
	s.frames = append(s.frames, frame)
	s.mu.Unlock()
	select {
	case s.frameCh <- frame:
	default:
	}
}

func (s *collectSink) OnStatus(status string) {
	s.mu.Lock()
	s.statuses = append(s.statuses, status)
	s.mu.Unlock()
}

func (s *collectSink) frameCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.frames)
}

func (s *collectSink) hasStatusContaining(substr string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, st := range s.statuses {
		if strings.Contains(st, substr) {
			return true
		}
	}
	return false
}

func (s *collectSink) waitFrame(t *testing.T, timeout time.Duration) MetricFrame {
	t.Helper()
	select {
	case f := <-s.frameCh:
		return f
	case <-time.After(timeout):
		t.Fatal("timed out waiting for a metric frame")
		return MetricFrame{}
	}
}

// sineChunk builds a sample-major chunk with the same sinusoid on every
// channel, timestamped at the nominal rate.
func sineChunk(freq, fs, amplitude float64, n, channels int) stream.Chunk {
	tone := sine(freq, fs, amplitude, n)
	c := stream.Chunk{
		Samples:    make([][]float64, n),
		Timestamps: make([]float64, n),
	}
	for i := 0; i < n; i++ {
		vec := make([]float64, channels)
		for ch := range vec {
			vec[ch] = tone[i]
		}
		c.Samples[i] = vec
		c.Timestamps[i] = float64(i) / fs
	}
	return c
}

func motionChunk(value float64, n int) stream.Chunk {
	c := stream.Chunk{
		Samples:    make([][]float64, n),
		Timestamps: make([]float64, n),
	}
	for i := 0; i < n; i++ {
		c.Samples[i] = []float64{value, value, value}
		c.Timestamps[i] = float64(i) / 52
	}
	return c
}

func testSources() (eeg, motion *fakeSource) {
	eeg = &fakeSource{
		info: stream.Descriptor{
			Name:         "headband-eeg",
			Type:         stream.TypeEEG,
			ChannelCount: 2,
			NominalRate:  128,
			ChannelNames: []string{"TP9", "TP10"},
		},
		chunk: sineChunk(30, 128, 50, 256, 2),
	}
	motion = &fakeSource{
		info: stream.Descriptor{
			Name:         "headband-gyro",
			Type:         stream.TypeMotion,
			ChannelCount: 3,
			NominalRate:  52,
		},
		chunk: motionChunk(25, 64),
	}
	return eeg, motion
}

func testWorker(t *testing.T, eeg, motion *fakeSource, sink Sink) *Worker {
	t.Helper()
	cache := stream.NewCache(stream.ResolverFunc(
		func(typeTag string, minCount int, timeout time.Duration) ([]stream.Descriptor, error) {
			switch typeTag {
			case stream.TypeEEG:
				return []stream.Descriptor{eeg.info}, nil
			case stream.TypeMotion:
				return []stream.Descriptor{motion.info}, nil
			}
			return nil, nil
		}))
	t.Cleanup(cache.Close)

	w := NewWorker(WorkerConfig{
		Cache: cache,
		Open: func(d stream.Descriptor) (stream.Source, error) {
			switch d.Type {
			case stream.TypeEEG:
				return eeg, nil
			case stream.TypeMotion:
				return motion, nil
			}
			return nil, fmt.Errorf("unexpected descriptor %q", d.Name)
		},
		Sink:       sink,
		TickPeriod: time.Millisecond,
	})
	t.Cleanup(w.Stop)
	return w
}

func TestWorkerEmitsCalibratedFrames(t *testing.T) {
	eeg, motion := testSources()
	sink := newCollectSink()
	w := testWorker(t, eeg, motion, sink)

	// Two calibration ticks at 1ms, then frames.
	err := w.Start(Settings{
		CalibrationWindowSeconds: 0.002,
		AnalysisWindowSeconds:    1,
		ScaleFactor:              1.5,
		ReferenceMode:            ReferenceNone,
	})
	require.NoError(t, err)

	frame := sink.waitFrame(t, 2*time.Second)
	require.Equal(t, StateRunning, w.State())

	require.True(t, frame.Calibrated)
	require.NotEmpty(t, frame.ID)
	require.Equal(t, []string{"delta", "theta", "alpha", "beta", "gamma"}, frame.BandNames)
	require.Equal(t, []int{0, 1}, frame.GoodChannels)

	// The source replays the same chunk every tick, so the frozen baseline
	// equals the raw powers and normalized output is exactly zero.
	require.Len(t, frame.BandPowers, 2)
	for ch, row := range frame.BandPowers {
		for b, v := range row {
			require.Zerof(t, v, "channel %d band %d", ch, b)
		}
	}
	require.Zero(t, frame.Aggregate)

	// Gyro reads 25 against a norm of 50.
	require.InDelta(t, 0.5, frame.Movement, 1e-9)
	require.InDelta(t, 0.9, frame.Compensation, 1e-9)

	require.Equal(t, 0.0, frame.StartTimestamp)
	require.InDelta(t, 255.0/128, frame.EndTimestamp, 1e-9)

	require.True(t, sink.hasStatusContaining("calibrating (1/2)"))
	require.True(t, sink.hasStatusContaining("calibration complete"))

	w.Stop()
	require.Equal(t, StateStopped, w.State())
	require.NoError(t, w.Err())
}

func TestWorkerDegradedEmitsNoFrames(t *testing.T) {
	eeg, motion := testSources()
	eeg.setChunk(stream.Chunk{})
	sink := newCollectSink()
	w := testWorker(t, eeg, motion, sink)

	require.NoError(t, w.Start(DefaultSettings()))

	deadline := time.Now().Add(2 * time.Second)
	for !sink.hasStatusContaining("waiting for data") {
		if time.Now().After(deadline) {
			t.Fatal("worker never reported insufficient data")
		}
		time.Sleep(time.Millisecond)
	}
	time.Sleep(20 * time.Millisecond)

	require.Equal(t, StateDegraded, w.State())
	require.Zero(t, sink.frameCount())
	require.True(t, sink.hasStatusContaining("waiting for data (0/"))
}

func TestWorkerRecoversFromDegraded(t *testing.T) {
	eeg, motion := testSources()
	good := eeg.chunk
	eeg.setChunk(stream.Chunk{})
	sink := newCollectSink()
	w := testWorker(t, eeg, motion, sink)

	require.NoError(t, w.Start(Settings{
		CalibrationWindowSeconds: 0.001,
		AnalysisWindowSeconds:    1,
		ScaleFactor:              1.5,
		ReferenceMode:            ReferenceNone,
	}))

	deadline := time.Now().Add(2 * time.Second)
	for !sink.hasStatusContaining("waiting for data") {
		if time.Now().After(deadline) {
			t.Fatal("worker never degraded")
		}
		time.Sleep(time.Millisecond)
	}

	eeg.setChunk(good)
	sink.waitFrame(t, 2*time.Second)

	require.Equal(t, StateRunning, w.State())
	require.True(t, sink.hasStatusContaining("data flow restored"))
}

func TestWorkerSeedsChannelBadDuringCalibration(t *testing.T) {
	eeg, motion := testSources()

	// Channel 1 is flat for the whole calibration window, so it is
	// flagged bad while channel 0 calibrates normally.
	recovered := eeg.chunk
	flat := sineChunk(30, 128, 50, 256, 2)
	for i := range flat.Samples {
		flat.Samples[i][1] = 0
	}
	eeg.setChunk(flat)

	sink := newCollectSink()
	w := testWorker(t, eeg, motion, sink)

	require.NoError(t, w.Start(Settings{
		CalibrationWindowSeconds: 0.002,
		AnalysisWindowSeconds:    1,
		ScaleFactor:              1.5,
		ReferenceMode:            ReferenceNone,
	}))

	frame := sink.waitFrame(t, 2*time.Second)
	require.Equal(t, []int{0}, frame.GoodChannels)

	// Restore the identical sinusoid on both channels.
	eeg.setChunk(recovered)

	deadline := time.Now().Add(2 * time.Second)
	for !cmp.Equal([]int{0, 1}, frame.GoodChannels) {
		if time.Now().After(deadline) {
			t.Fatal("channel 1 never recovered")
		}
		frame = sink.waitFrame(t, 2*time.Second)
	}

	// Both channels now carry the same signal, so the recovered channel
	// must normalize identically to the calibrated one instead of
	// reporting a jump off a zero or diluted baseline.
	require.Len(t, frame.BandPowers, 2)
	if diff := cmp.Diff(frame.BandPowers[0], frame.BandPowers[1]); diff != "" {
		t.Errorf("recovered channel diverges from calibrated channel (-ch0 +ch1):\n%s", diff)
	}
	for b, v := range frame.BandPowers[1] {
		require.Zerof(t, v, "recovered channel band %d", b)
	}
}

func TestWorkerStopsWhenResolveExhausted(t *testing.T) {
	cache := stream.NewCache(stream.ResolverFunc(
		func(string, int, time.Duration) ([]stream.Descriptor, error) {
			return nil, nil
		}))
	defer cache.Close()

	sink := newCollectSink()
	w := NewWorker(WorkerConfig{
		Cache: cache,
		Open: func(stream.Descriptor) (stream.Source, error) {
			t.Error("Open called with nothing resolved")
			return nil, errors.New("unexpected open")
		},
		Sink:            sink,
		TickPeriod:      time.Millisecond,
		ResolveAttempts: 2,
		ResolveTimeout:  2 * time.Millisecond,
	})

	require.NoError(t, w.Start(DefaultSettings()))

	select {
	case <-w.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not stop after exhausting resolve attempts")
	}

	require.Equal(t, StateStopped, w.State())
	require.True(t, errors.Is(w.Err(), stream.ErrSourceNotFound))
	require.True(t, sink.hasStatusContaining("stopped:"))
	require.Zero(t, sink.frameCount())
}

func TestWorkerRejectsReuse(t *testing.T) {
	eeg, motion := testSources()
	sink := newCollectSink()
	w := testWorker(t, eeg, motion, sink)

	require.NoError(t, w.Start(DefaultSettings()))
	err := w.Start(DefaultSettings())
	require.Error(t, err)

	w.Stop()
	require.Error(t, w.Start(DefaultSettings()))
	require.Equal(t, StateStopped, w.State())
}

func TestWorkerStartValidatesSettings(t *testing.T) {
	eeg, motion := testSources()
	w := testWorker(t, eeg, motion, newCollectSink())

	s := DefaultSettings()
	s.ReferenceMode = "laplacian"
	require.Error(t, w.Start(s))
	require.Equal(t, StateIdle, w.State())
}

func TestWorkerStopBeforeStart(t *testing.T) {
	eeg, motion := testSources()
	w := testWorker(t, eeg, motion, newCollectSink())

	w.Stop()
	require.Equal(t, StateStopped, w.State())
	select {
	case <-w.Done():
	default:
		t.Fatal("Done not closed after Stop")
	}
}

func TestTranspose(t *testing.T) {
	samples := [][]float64{{1, 2}, {3, 4}, {5, 6, 99}}
	got := transpose(samples, 2)
	want := [][]float64{{1, 3, 5}, {2, 4, 6}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("transpose mismatch (-want +got):\n%s", diff)
	}
}
