// Package analysis implements the periodic biosignal analysis worker: it
// pulls chunks from a resolved EEG stream and a motion stream, runs the
// preprocessing pipeline, and emits calibrated, motion-compensated band
// power metrics.
package analysis

import "fmt"

// ReferenceMode selects how channels are re-referenced before band
// extraction.
type ReferenceMode string

const (
	// ReferenceNone leaves channels as delivered by the source.
	ReferenceNone ReferenceMode = "none"

	// ReferenceCommonAverage subtracts the mean across all non-flagged
	// channels from each channel.
	ReferenceCommonAverage ReferenceMode = "common_average"
)

// Settings carries the caller-facing analysis configuration. Zero values are
// replaced by defaults in Normalize.
type Settings struct {
	// CalibrationWindowSeconds is how long raw band powers accumulate
	// into the baseline before normalized output starts. Zero selects
	// the default; the shortest usable window is one tick.
	CalibrationWindowSeconds float64 `json:"calibration_window_seconds"`

	// AnalysisWindowSeconds is the length of signal each tick analyzes.
	AnalysisWindowSeconds float64 `json:"analysis_window_seconds"`

	// ScaleFactor multiplies baseline-subtracted band powers.
	ScaleFactor float64 `json:"scale_factor"`

	// ReferenceMode selects channel re-referencing.
	ReferenceMode ReferenceMode `json:"reference_mode"`
}

// Setting defaults, matching the shipped configuration of the capture
// application this pipeline feeds.
const (
	DefaultCalibrationWindowSeconds = 60.0
	DefaultAnalysisWindowSeconds    = 1.5
	DefaultScaleFactor              = 1.5
)

// DefaultSettings returns the default analysis settings.
func DefaultSettings() Settings {
	return Settings{
		CalibrationWindowSeconds: DefaultCalibrationWindowSeconds,
		AnalysisWindowSeconds:    DefaultAnalysisWindowSeconds,
		ScaleFactor:              DefaultScaleFactor,
		ReferenceMode:            ReferenceCommonAverage,
	}
}

// Normalize fills zero-valued fields with defaults.
func (s Settings) Normalize() Settings {
	if s.CalibrationWindowSeconds == 0 {
		s.CalibrationWindowSeconds = DefaultCalibrationWindowSeconds
	}
	if s.AnalysisWindowSeconds == 0 {
		s.AnalysisWindowSeconds = DefaultAnalysisWindowSeconds
	}
	if s.ScaleFactor == 0 {
		s.ScaleFactor = DefaultScaleFactor
	}
	if s.ReferenceMode == "" {
		s.ReferenceMode = ReferenceCommonAverage
	}
	return s
}

// Validate checks the settings for values the worker cannot run with.
func (s Settings) Validate() error {
	if s.CalibrationWindowSeconds < 0 {
		return fmt.Errorf("analysis: calibration_window_seconds must be non-negative, got %v", s.CalibrationWindowSeconds)
	}
	if s.AnalysisWindowSeconds <= 0 {
		return fmt.Errorf("analysis: analysis_window_seconds must be positive, got %v", s.AnalysisWindowSeconds)
	}
	if s.ScaleFactor <= 0 {
		return fmt.Errorf("analysis: scale_factor must be positive, got %v", s.ScaleFactor)
	}
	switch s.ReferenceMode {
	case ReferenceNone, ReferenceCommonAverage:
	default:
		return fmt.Errorf("analysis: reference_mode must be %q or %q, got %q",
			ReferenceNone, ReferenceCommonAverage, s.ReferenceMode)
	}
	return nil
}
