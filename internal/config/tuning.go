package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// DefaultConfigPath is the path to the canonical tuning defaults file.
// This is the single source of truth for all default tuning values.
const DefaultConfigPath = "config/tuning.defaults.json"

// TuningConfig represents the root configuration for tuning parameters.
// The schema matches the /api/config endpoint so the same JSON can be
// used for both startup configuration and runtime inspection.
type TuningConfig struct {
	// Worker loop params
	TickPeriod        *string  `json:"tick_period,omitempty"` // duration string like "50ms"
	MinChunkFraction  *float64 `json:"min_chunk_fraction,omitempty"`
	OverRequestFactor *float64 `json:"over_request_factor,omitempty"`
	SmoothingAlpha    *float64 `json:"smoothing_alpha,omitempty"`

	// Discovery params
	DiscoveryTTL     *string `json:"discovery_ttl,omitempty"`      // duration string like "2s"
	DiscoveryMaxWait *string `json:"discovery_max_wait,omitempty"` // duration string like "500ms"
	ResolveAttempts  *int    `json:"resolve_attempts,omitempty"`
	ResolveTimeout   *string `json:"resolve_timeout,omitempty"` // duration string like "2s"

	// Preprocessing params
	BandpassLow    *float64 `json:"bandpass_low,omitempty"`
	BandpassHigh   *float64 `json:"bandpass_high,omitempty"`
	NotchFreq      *float64 `json:"notch_freq,omitempty"`
	NotchBandwidth *float64 `json:"notch_bandwidth,omitempty"`

	// Bad-channel bounds
	LineNoiseMax *float64 `json:"line_noise_max,omitempty"`
	AmplitudeMin *float64 `json:"amplitude_min,omitempty"`
	AmplitudeMax *float64 `json:"amplitude_max,omitempty"`

	// Motion compensation params
	MotionNorm   *float64 `json:"motion_norm,omitempty"`
	MotionImpact *float64 `json:"motion_impact,omitempty"`

	// Buffer params
	DisplayMargin *int `json:"display_margin,omitempty"`
}

// Helper functions to create pointers
func ptrFloat64(v float64) *float64 { return &v }
func ptrString(v string) *string    { return &v }
func ptrInt(v int) *int             { return &v }

// EmptyTuningConfig returns a TuningConfig with all fields set to nil.
// Use LoadTuningConfig to load actual values from the defaults file.
func EmptyTuningConfig() *TuningConfig {
	return &TuningConfig{}
}

// LoadTuningConfig loads a TuningConfig from a JSON file.
// The file is validated to ensure it has a .json extension and is under
// the max file size. Fields omitted from the JSON file retain their
// default values, so partial configs are safe.
func LoadTuningConfig(path string) (*TuningConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	// Check file size for safety (max 1MB)
	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024 // 1MB
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	// Parse JSON into empty config. The Get* methods provide fallback
	// defaults for any fields not specified in the JSON.
	cfg := EmptyTuningConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// MustLoadDefaultConfig loads the canonical tuning defaults from DefaultConfigPath.
// It searches for the file in the current directory and common parent directories.
// Panics if the file cannot be loaded, intended for test setup.
func MustLoadDefaultConfig() *TuningConfig {
	// Try paths from current dir up to repo root
	candidates := []string{
		DefaultConfigPath,
		"../../" + DefaultConfigPath,    // from internal/config/
		"../../../" + DefaultConfigPath, // deeper packages
	}
	for _, path := range candidates {
		if cfg, err := LoadTuningConfig(path); err == nil {
			return cfg
		}
	}
	panic("cannot find " + DefaultConfigPath + " - run tests from repository root")
}

func validDuration(name string, v *string) error {
	if v == nil || *v == "" {
		return nil
	}
	if _, err := time.ParseDuration(*v); err != nil {
		return fmt.Errorf("invalid %s '%s': %w", name, *v, err)
	}
	return nil
}

// Validate checks that the configuration values are valid.
func (c *TuningConfig) Validate() error {
	if err := validDuration("tick_period", c.TickPeriod); err != nil {
		return err
	}
	if err := validDuration("discovery_ttl", c.DiscoveryTTL); err != nil {
		return err
	}
	if err := validDuration("discovery_max_wait", c.DiscoveryMaxWait); err != nil {
		return err
	}
	if err := validDuration("resolve_timeout", c.ResolveTimeout); err != nil {
		return err
	}

	if c.MinChunkFraction != nil {
		if *c.MinChunkFraction <= 0 || *c.MinChunkFraction > 1 {
			return fmt.Errorf("min_chunk_fraction must be in (0, 1], got %f", *c.MinChunkFraction)
		}
	}
	if c.OverRequestFactor != nil {
		if *c.OverRequestFactor < 1 {
			return fmt.Errorf("over_request_factor must be at least 1, got %f", *c.OverRequestFactor)
		}
	}
	if c.SmoothingAlpha != nil {
		if *c.SmoothingAlpha <= 0 || *c.SmoothingAlpha > 1 {
			return fmt.Errorf("smoothing_alpha must be in (0, 1], got %f", *c.SmoothingAlpha)
		}
	}
	if c.ResolveAttempts != nil {
		if *c.ResolveAttempts < 1 {
			return fmt.Errorf("resolve_attempts must be at least 1, got %d", *c.ResolveAttempts)
		}
	}
	if c.BandpassLow != nil && c.BandpassHigh != nil {
		if *c.BandpassLow >= *c.BandpassHigh {
			return fmt.Errorf("bandpass_low %f must be below bandpass_high %f", *c.BandpassLow, *c.BandpassHigh)
		}
	}
	if c.AmplitudeMin != nil && c.AmplitudeMax != nil {
		if *c.AmplitudeMin >= *c.AmplitudeMax {
			return fmt.Errorf("amplitude_min %f must be below amplitude_max %f", *c.AmplitudeMin, *c.AmplitudeMax)
		}
	}
	if c.DisplayMargin != nil {
		if *c.DisplayMargin < 0 {
			return fmt.Errorf("display_margin must be non-negative, got %d", *c.DisplayMargin)
		}
	}

	return nil
}

// GetTickPeriod parses and returns the TickPeriod as a time.Duration.
func (c *TuningConfig) GetTickPeriod() time.Duration {
	if c.TickPeriod == nil || *c.TickPeriod == "" {
		return 50 * time.Millisecond // default
	}
	d, err := time.ParseDuration(*c.TickPeriod)
	if err != nil {
		return 50 * time.Millisecond // default on parse error
	}
	return d
}

// GetDiscoveryTTL parses and returns the DiscoveryTTL as a time.Duration.
func (c *TuningConfig) GetDiscoveryTTL() time.Duration {
	if c.DiscoveryTTL == nil || *c.DiscoveryTTL == "" {
		return 2 * time.Second // default
	}
	d, err := time.ParseDuration(*c.DiscoveryTTL)
	if err != nil {
		return 2 * time.Second // default on parse error
	}
	return d
}

// GetDiscoveryMaxWait parses and returns the DiscoveryMaxWait as a time.Duration.
func (c *TuningConfig) GetDiscoveryMaxWait() time.Duration {
	if c.DiscoveryMaxWait == nil || *c.DiscoveryMaxWait == "" {
		return 500 * time.Millisecond // default
	}
	d, err := time.ParseDuration(*c.DiscoveryMaxWait)
	if err != nil {
		return 500 * time.Millisecond // default on parse error
	}
	return d
}

// GetResolveTimeout parses and returns the ResolveTimeout as a time.Duration.
func (c *TuningConfig) GetResolveTimeout() time.Duration {
	if c.ResolveTimeout == nil || *c.ResolveTimeout == "" {
		return 2 * time.Second // default
	}
	d, err := time.ParseDuration(*c.ResolveTimeout)
	if err != nil {
		return 2 * time.Second // default on parse error
	}
	return d
}

// GetMinChunkFraction returns the min_chunk_fraction value or the default.
func (c *TuningConfig) GetMinChunkFraction() float64 {
	if c.MinChunkFraction == nil {
		return 0.25 // default
	}
	return *c.MinChunkFraction
}

// GetOverRequestFactor returns the over_request_factor value or the default.
func (c *TuningConfig) GetOverRequestFactor() float64 {
	if c.OverRequestFactor == nil {
		return 2.0
	}
	return *c.OverRequestFactor
}

// GetSmoothingAlpha returns the smoothing_alpha value or the default.
func (c *TuningConfig) GetSmoothingAlpha() float64 {
	if c.SmoothingAlpha == nil {
		return 0.3
	}
	return *c.SmoothingAlpha
}

// GetResolveAttempts returns the resolve_attempts value or the default.
func (c *TuningConfig) GetResolveAttempts() int {
	if c.ResolveAttempts == nil {
		return 3
	}
	return *c.ResolveAttempts
}

// GetBandpassLow returns the bandpass_low value or the default.
func (c *TuningConfig) GetBandpassLow() float64 {
	if c.BandpassLow == nil {
		return 1.0
	}
	return *c.BandpassLow
}

// GetBandpassHigh returns the bandpass_high value or the default.
func (c *TuningConfig) GetBandpassHigh() float64 {
	if c.BandpassHigh == nil {
		return 59.0
	}
	return *c.BandpassHigh
}

// GetNotchFreq returns the notch_freq value or the default.
func (c *TuningConfig) GetNotchFreq() float64 {
	if c.NotchFreq == nil {
		return 50.0
	}
	return *c.NotchFreq
}

// GetNotchBandwidth returns the notch_bandwidth value or the default.
func (c *TuningConfig) GetNotchBandwidth() float64 {
	if c.NotchBandwidth == nil {
		return 4.0
	}
	return *c.NotchBandwidth
}

// GetLineNoiseMax returns the line_noise_max value or the default.
func (c *TuningConfig) GetLineNoiseMax() float64 {
	if c.LineNoiseMax == nil {
		return 500.0
	}
	return *c.LineNoiseMax
}

// GetAmplitudeMin returns the amplitude_min value or the default.
func (c *TuningConfig) GetAmplitudeMin() float64 {
	if c.AmplitudeMin == nil {
		return 5.0
	}
	return *c.AmplitudeMin
}

// GetAmplitudeMax returns the amplitude_max value or the default.
func (c *TuningConfig) GetAmplitudeMax() float64 {
	if c.AmplitudeMax == nil {
		return 350.0
	}
	return *c.AmplitudeMax
}

// GetMotionNorm returns the motion_norm value or the default.
func (c *TuningConfig) GetMotionNorm() float64 {
	if c.MotionNorm == nil {
		return 50.0
	}
	return *c.MotionNorm
}

// GetMotionImpact returns the motion_impact value or the default.
func (c *TuningConfig) GetMotionImpact() float64 {
	if c.MotionImpact == nil {
		return 0.2
	}
	return *c.MotionImpact
}

// GetDisplayMargin returns the display_margin value or the default.
func (c *TuningConfig) GetDisplayMargin() int {
	if c.DisplayMargin == nil {
		return 100
	}
	return *c.DisplayMargin
}
