// Package ringbuf provides fixed-capacity circular buffers for
// high-frequency sample streams. Buffers never allocate after construction;
// once full, the oldest samples are overwritten in place.
package ringbuf

import "sync/atomic"

// Ring is a fixed-capacity circular buffer of float64 values. A single
// producer may extend it while a reader concurrently takes views: slot data
// is written before the cursor is published, so a reader sees either the old
// or the new value in a slot, never a torn one.
type Ring struct {
	buf     []float64
	scratch []float64
	// cursor counts total values ever written; it only increases.
	// The write position is cursor % cap and the live count is
	// min(cursor, cap).
	cursor atomic.Uint64
}

// NewRing creates a ring with the given capacity.
func NewRing(capacity int) *Ring {
	if capacity < 1 {
		panic("ringbuf: capacity must be positive")
	}
	return &Ring{
		buf:     make([]float64, capacity),
		scratch: make([]float64, capacity),
	}
}

// Cap returns the fixed capacity.
func (r *Ring) Cap() int { return len(r.buf) }

// Len returns the number of live values, at most Cap.
func (r *Ring) Len() int {
	c := r.cursor.Load()
	if c > uint64(len(r.buf)) {
		return len(r.buf)
	}
	return int(c)
}

// Full reports whether the ring has wrapped at least once.
func (r *Ring) Full() bool { return r.Len() == len(r.buf) }

// Reset discards all values without releasing memory.
func (r *Ring) Reset() { r.cursor.Store(0) }

// Extend appends values in order. A batch larger than the capacity keeps
// only the newest Cap values. Runs in O(len(values)) with no allocation.
func (r *Ring) Extend(values []float64) {
	capacity := len(r.buf)
	cur := r.cursor.Load()

	if len(values) >= capacity {
		// Only the tail survives; realign the cursor so the oldest
		// surviving value sits at slot 0.
		copy(r.buf, values[len(values)-capacity:])
		r.cursor.Store(cur - cur%uint64(capacity) + uint64(capacity)*2)
		return
	}

	w := int(cur % uint64(capacity))
	n := copy(r.buf[w:], values)
	if n < len(values) {
		copy(r.buf, values[n:])
	}
	r.cursor.Store(cur + uint64(len(values)))
}

// Latest returns the most recent min(n, Len) values in chronological order.
// The view is zero-copy when the region is contiguous; a wrapped region is
// unwrapped into an internal scratch buffer. Either way the returned slice
// is only valid until the next Extend or Latest call. Out-of-range n is
// clamped, never an error.
func (r *Ring) Latest(n int) []float64 {
	capacity := len(r.buf)
	cur := r.cursor.Load()

	size := capacity
	if cur < uint64(capacity) {
		size = int(cur)
	}
	if n > size {
		n = size
	}
	if n <= 0 {
		return r.buf[:0]
	}

	w := int(cur % uint64(capacity))
	start := w - n
	if start >= 0 {
		return r.buf[start : start+n]
	}

	// Region wraps: oldest part at the end of buf, newest at the front.
	start += capacity
	head := copy(r.scratch, r.buf[start:])
	copy(r.scratch[head:], r.buf[:w])
	return r.scratch[:n]
}

// SampleRing is a fixed-capacity circular buffer of multi-channel samples
// stored in one flat slab. Each slot holds one sample vector of Channels
// values; the vector is copied in full before the cursor advances.
type SampleRing struct {
	channels int
	slab     []float64
	scratch  []float64
	cursor   atomic.Uint64
}

// NewSampleRing creates a ring holding capacity samples of the given
// channel count.
func NewSampleRing(capacity, channels int) *SampleRing {
	if capacity < 1 || channels < 1 {
		panic("ringbuf: capacity and channels must be positive")
	}
	return &SampleRing{
		channels: channels,
		slab:     make([]float64, capacity*channels),
		scratch:  make([]float64, capacity*channels),
	}
}

// Channels returns the per-sample vector length.
func (r *SampleRing) Channels() int { return r.channels }

// Cap returns the fixed sample capacity.
func (r *SampleRing) Cap() int { return len(r.slab) / r.channels }

// Len returns the number of live samples.
func (r *SampleRing) Len() int {
	c := r.cursor.Load()
	if c > uint64(r.Cap()) {
		return r.Cap()
	}
	return int(c)
}

// Append writes one sample vector at the cursor and advances it. Vectors
// shorter than Channels are zero-padded; longer ones are truncated.
func (r *SampleRing) Append(values []float64) {
	capacity := r.Cap()
	cur := r.cursor.Load()
	w := int(cur%uint64(capacity)) * r.channels

	slot := r.slab[w : w+r.channels]
	n := copy(slot, values)
	for i := n; i < r.channels; i++ {
		slot[i] = 0
	}
	r.cursor.Store(cur + 1)
}

// Latest returns views of the most recent min(n, Len) sample vectors in
// chronological order. Vector data is zero-copy when contiguous; wrapped
// regions are unwrapped into an internal scratch slab. Views are valid
// until the next Append or Latest call.
func (r *SampleRing) Latest(n int) [][]float64 {
	capacity := r.Cap()
	cur := r.cursor.Load()

	size := capacity
	if cur < uint64(capacity) {
		size = int(cur)
	}
	if n > size {
		n = size
	}
	if n <= 0 {
		return nil
	}

	w := int(cur % uint64(capacity))
	start := w - n
	var flat []float64
	if start >= 0 {
		flat = r.slab[start*r.channels : (start+n)*r.channels]
	} else {
		start += capacity
		head := copy(r.scratch, r.slab[start*r.channels:])
		copy(r.scratch[head:], r.slab[:w*r.channels])
		flat = r.scratch[:n*r.channels]
	}

	out := make([][]float64, n)
	for i := range out {
		out[i] = flat[i*r.channels : (i+1)*r.channels]
	}
	return out
}

// DisplayCapacity returns the buffer capacity for a display window of the
// given length: twice the window worth of samples plus a fixed margin, so
// retrieval for display never blocks on growth and memory stays bounded
// regardless of session length.
func DisplayCapacity(windowSeconds, sampleRate float64, margin int) int {
	n := 2*int(windowSeconds*sampleRate) + margin
	if n < 1 {
		n = 1
	}
	return n
}
