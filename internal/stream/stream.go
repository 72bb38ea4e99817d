// Package stream defines the data model and contracts for live biosignal
// sources: timestamped sample chunks, discovery descriptors, and the cached
// discovery layer that keeps stream resolution off the caller's goroutine.
package stream

import (
	"errors"
	"time"
)

// Well-known stream type tags. The analysis worker resolves one stream of
// each.
const (
	TypeEEG    = "EEG"
	TypeMotion = "GYRO"
)

// Sample is one timestamped vector of per-channel readings. The vector
// length equals the channel count declared by its source for the lifetime of
// that source.
type Sample struct {
	Timestamp float64   `json:"ts"`
	Values    []float64 `json:"values"`
}

// Chunk is the ordered batch of samples returned by a single pull. It may be
// empty; an empty chunk is not an error.
type Chunk struct {
	Samples    [][]float64
	Timestamps []float64
}

// Len returns the number of samples in the chunk.
func (c Chunk) Len() int { return len(c.Timestamps) }

// Empty reports whether the chunk carries no samples.
func (c Chunk) Empty() bool { return len(c.Timestamps) == 0 }

// Descriptor identifies one discoverable stream. It is an immutable value
// produced by discovery and consumed by source construction.
type Descriptor struct {
	Name         string   `json:"name"`
	Type         string   `json:"type"`
	ChannelCount int      `json:"channel_count"`
	NominalRate  float64  `json:"nominal_rate"`
	ChannelNames []string `json:"channel_names,omitempty"`
}

// Source is a live inlet yielding timestamped sample chunks.
type Source interface {
	// PullChunk returns up to maxSamples buffered samples. A zero timeout
	// means non-blocking: it returns whatever is immediately available,
	// possibly an empty chunk. Samples are never reordered within a chunk
	// and timestamps are monotonically non-decreasing across chunks.
	PullChunk(timeout time.Duration, maxSamples int) (Chunk, error)

	// Info returns the static stream metadata.
	Info() Descriptor

	// Close releases the inlet.
	Close() error
}

// Resolver is the discovery primitive: it finds streams of a declared type,
// waiting at most timeout for minCount of them to appear.
type Resolver interface {
	Resolve(typeTag string, minCount int, timeout time.Duration) ([]Descriptor, error)
}

// ResolverFunc adapts a function to the Resolver interface.
type ResolverFunc func(typeTag string, minCount int, timeout time.Duration) ([]Descriptor, error)

// Resolve calls f.
func (f ResolverFunc) Resolve(typeTag string, minCount int, timeout time.Duration) ([]Descriptor, error) {
	return f(typeTag, minCount, timeout)
}

// ErrSourceNotFound indicates discovery exhausted its retries without
// finding a required stream. Fatal to the start attempt that triggered it.
var ErrSourceNotFound = errors.New("stream: source not found")

// ErrDiscoveryTimeout indicates a single bounded discovery wait elapsed.
// Recoverable at the cache layer; it escalates to ErrSourceNotFound only
// once retries are exhausted.
var ErrDiscoveryTimeout = errors.New("stream: discovery timed out")

// ErrClosed is returned by operations on a closed source or cache.
var ErrClosed = errors.New("stream: closed")
