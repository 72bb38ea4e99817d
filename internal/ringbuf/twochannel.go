package ringbuf

import "errors"

// ErrLengthMismatch is returned when paired timestamp and value batches
// differ in length.
var ErrLengthMismatch = errors.New("ringbuf: timestamp and value batches differ in length")

// TwoChannelRing keeps a timestamp ring and a value ring in lock-step so
// every value has a paired timestamp. Both rings share the same capacity and
// advance together.
type TwoChannelRing struct {
	times  *Ring
	values *Ring
}

// NewTwoChannelRing creates a paired ring with the given capacity.
func NewTwoChannelRing(capacity int) *TwoChannelRing {
	return &TwoChannelRing{
		times:  NewRing(capacity),
		values: NewRing(capacity),
	}
}

// Cap returns the shared fixed capacity.
func (r *TwoChannelRing) Cap() int { return r.times.Cap() }

// Len returns the number of live pairs.
func (r *TwoChannelRing) Len() int { return r.times.Len() }

// Reset discards all pairs without releasing memory.
func (r *TwoChannelRing) Reset() {
	r.times.Reset()
	r.values.Reset()
}

// Extend appends paired timestamps and values. The batches must have equal
// length or the rings would fall out of lock-step.
func (r *TwoChannelRing) Extend(timestamps, values []float64) error {
	if len(timestamps) != len(values) {
		return ErrLengthMismatch
	}
	r.times.Extend(timestamps)
	r.values.Extend(values)
	return nil
}

// Latest returns the most recent min(n, Len) timestamp/value pairs in
// chronological order. The views follow the same validity rule as
// Ring.Latest.
func (r *TwoChannelRing) Latest(n int) (timestamps, values []float64) {
	return r.times.Latest(n), r.values.Latest(n)
}

// Data returns up to max pairs with the first skip pairs dropped, for
// display consumers that hide the warm-up portion of the window. A skip
// beyond the live count yields empty views.
func (r *TwoChannelRing) Data(max, skip int) (timestamps, values []float64) {
	ts, vs := r.Latest(max)
	if skip >= len(ts) {
		return ts[:0], vs[:0]
	}
	return ts[skip:], vs[skip:]
}
