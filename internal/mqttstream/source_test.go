package mqttstream

import (
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/cortex-data/focus.report/internal/stream"
)

func newTestSource(maxQueue int) *Source {
	return &Source{
		info: stream.Descriptor{
			Name:         "test-eeg",
			Type:         stream.TypeEEG,
			ChannelCount: 2,
			NominalRate:  256,
		},
		maxQueue: maxQueue,
		notify:   make(chan struct{}, 1),
	}
}

func batch(start, n int) ([][]float64, []float64) {
	samples := make([][]float64, n)
	timestamps := make([]float64, n)
	for i := 0; i < n; i++ {
		v := float64(start + i)
		samples[i] = []float64{v, -v}
		timestamps[i] = v
	}
	return samples, timestamps
}

func TestPullChunkReturnsOldestFirst(t *testing.T) {
	s := newTestSource(100)
	samples, timestamps := batch(0, 5)
	s.enqueue(samples, timestamps)

	chunk, err := s.PullChunk(0, 3)
	if err != nil {
		t.Fatalf("PullChunk: %v", err)
	}
	if diff := cmp.Diff([]float64{0, 1, 2}, chunk.Timestamps); diff != "" {
		t.Errorf("first pull timestamps (-want +got):\n%s", diff)
	}

	chunk, err = s.PullChunk(0, 10)
	if err != nil {
		t.Fatalf("PullChunk: %v", err)
	}
	if diff := cmp.Diff([]float64{3, 4}, chunk.Timestamps); diff != "" {
		t.Errorf("second pull timestamps (-want +got):\n%s", diff)
	}
}

func TestPullChunkEmptyQueueNonBlocking(t *testing.T) {
	s := newTestSource(100)
	chunk, err := s.PullChunk(0, 10)
	if err != nil {
		t.Fatalf("PullChunk: %v", err)
	}
	if !chunk.Empty() {
		t.Errorf("expected empty chunk, got %d samples", chunk.Len())
	}
}

func TestEnqueueDropsOldestWhenFull(t *testing.T) {
	s := newTestSource(4)
	samples, timestamps := batch(0, 6)
	s.enqueue(samples, timestamps)

	chunk, err := s.PullChunk(0, 10)
	if err != nil {
		t.Fatalf("PullChunk: %v", err)
	}
	if diff := cmp.Diff([]float64{2, 3, 4, 5}, chunk.Timestamps); diff != "" {
		t.Errorf("queue after overflow (-want +got):\n%s", diff)
	}
}

func TestPullChunkWaitsForData(t *testing.T) {
	s := newTestSource(100)
	go func() {
		time.Sleep(10 * time.Millisecond)
		samples, timestamps := batch(0, 2)
		s.enqueue(samples, timestamps)
	}()

	chunk, err := s.PullChunk(2*time.Second, 10)
	if err != nil {
		t.Fatalf("PullChunk: %v", err)
	}
	if chunk.Len() != 2 {
		t.Errorf("PullChunk returned %d samples, want 2", chunk.Len())
	}
}

func TestPullChunkAfterClose(t *testing.T) {
	s := newTestSource(100)
	samples, timestamps := batch(0, 2)
	s.enqueue(samples, timestamps)

	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if _, err := s.PullChunk(0, 10); !errors.Is(err, stream.ErrClosed) {
		t.Errorf("PullChunk after Close = %v, want ErrClosed", err)
	}

	// Late batches from the broker are discarded.
	s.enqueue(samples, timestamps)
	if _, err := s.PullChunk(0, 10); !errors.Is(err, stream.ErrClosed) {
		t.Errorf("PullChunk after Close = %v, want ErrClosed", err)
	}
}
