package analysis

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestCalibrationFreezeAndNormalize(t *testing.T) {
	c := NewCalibrationState(2, 1)
	c.Accumulate([][]float64{{2}, {4}}, []int{0, 1})
	c.Accumulate([][]float64{{4}, {8}}, []int{0, 1})

	if c.Frozen() {
		t.Fatal("frozen before Freeze")
	}
	if c.Ticks() != 2 {
		t.Fatalf("Ticks = %d, want 2", c.Ticks())
	}

	c.Freeze()
	if !c.Frozen() {
		t.Fatal("not frozen after Freeze")
	}

	// Baseline is the per-channel mean: {3} and {6}.
	got := c.Normalize([][]float64{{5}, {7}}, []int{0, 1}, 2)
	want := [][]float64{{4}, {2}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("normalized powers mismatch (-want +got):\n%s", diff)
	}
}

func TestCalibrationAccumulateIgnoredAfterFreeze(t *testing.T) {
	c := NewCalibrationState(1, 1)
	c.Accumulate([][]float64{{10}}, []int{0})
	c.Freeze()
	c.Accumulate([][]float64{{1000}}, []int{0})

	got := c.Normalize([][]float64{{10}}, []int{0}, 1)
	if got[0][0] != 0 {
		t.Errorf("baseline moved after freeze: Normalize = %v, want 0", got[0][0])
	}
}

func TestCalibrationSkipsChannelsBadDuringWindow(t *testing.T) {
	// Channel 1 is flagged bad for the whole window: its zero rows must
	// not enter the baseline.
	c := NewCalibrationState(2, 1)
	c.Accumulate([][]float64{{2}, {0}}, []int{0})
	c.Accumulate([][]float64{{4}, {0}}, []int{0})
	c.Freeze()

	// When channel 1 recovers, its first good tick seeds the baseline and
	// reports zero rather than (raw - 0) * scale.
	got := c.Normalize([][]float64{{5}, {7}}, []int{0, 1}, 2)
	want := [][]float64{{4}, {0}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("seed tick mismatch (-want +got):\n%s", diff)
	}

	// From then on it normalizes against the seeded baseline.
	got = c.Normalize([][]float64{{5}, {9}}, []int{0, 1}, 2)
	want = [][]float64{{4}, {4}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("post-seed mismatch (-want +got):\n%s", diff)
	}
}

func TestCalibrationPartialWindowUsesObservedMean(t *testing.T) {
	// Channel 1 is only observed on the second tick; its baseline is the
	// mean over that one tick, not a half-diluted mean over both.
	c := NewCalibrationState(2, 1)
	c.Accumulate([][]float64{{2}, {0}}, []int{0})
	c.Accumulate([][]float64{{4}, {6}}, []int{0, 1})
	c.Freeze()

	got := c.Normalize([][]float64{{5}, {7}}, []int{0, 1}, 2)
	want := [][]float64{{4}, {2}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("normalized powers mismatch (-want +got):\n%s", diff)
	}
}

func TestCalibrationFreezeWithoutTicks(t *testing.T) {
	c := NewCalibrationState(1, 2)
	c.Freeze()

	// Nothing observed: the first good tick seeds the baseline.
	got := c.Normalize([][]float64{{3, 4}}, []int{0}, 2)
	want := [][]float64{{0, 0}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("seed tick mismatch (-want +got):\n%s", diff)
	}

	got = c.Normalize([][]float64{{5, 5}}, []int{0}, 2)
	want = [][]float64{{4, 2}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("post-seed mismatch (-want +got):\n%s", diff)
	}
}

func TestEWMASmoothing(t *testing.T) {
	e := newEWMA(0.5)
	if got := e.Update(1); got != 1 {
		t.Errorf("first update = %v, want 1 (seeds the average)", got)
	}
	if got := e.Update(3); got != 2 {
		t.Errorf("second update = %v, want 2", got)
	}
	if got := e.Update(2); got != 2 {
		t.Errorf("third update = %v, want 2", got)
	}
}
