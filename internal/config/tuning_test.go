package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestEmptyConfigGetterDefaults(t *testing.T) {
	cfg := EmptyTuningConfig()

	if cfg.GetTickPeriod() != 50*time.Millisecond {
		t.Errorf("GetTickPeriod() = %v, want 50ms", cfg.GetTickPeriod())
	}
	if cfg.GetMinChunkFraction() != 0.25 {
		t.Errorf("GetMinChunkFraction() = %f, want 0.25", cfg.GetMinChunkFraction())
	}
	if cfg.GetOverRequestFactor() != 2.0 {
		t.Errorf("GetOverRequestFactor() = %f, want 2.0", cfg.GetOverRequestFactor())
	}
	if cfg.GetDiscoveryTTL() != 2*time.Second {
		t.Errorf("GetDiscoveryTTL() = %v, want 2s", cfg.GetDiscoveryTTL())
	}
	if cfg.GetDiscoveryMaxWait() != 500*time.Millisecond {
		t.Errorf("GetDiscoveryMaxWait() = %v, want 500ms", cfg.GetDiscoveryMaxWait())
	}
	if cfg.GetResolveAttempts() != 3 {
		t.Errorf("GetResolveAttempts() = %d, want 3", cfg.GetResolveAttempts())
	}
	if cfg.GetResolveTimeout() != 2*time.Second {
		t.Errorf("GetResolveTimeout() = %v, want 2s", cfg.GetResolveTimeout())
	}
	if cfg.GetBandpassLow() != 1.0 || cfg.GetBandpassHigh() != 59.0 {
		t.Errorf("bandpass defaults = [%f, %f], want [1, 59]", cfg.GetBandpassLow(), cfg.GetBandpassHigh())
	}
	if cfg.GetNotchFreq() != 50.0 {
		t.Errorf("GetNotchFreq() = %f, want 50", cfg.GetNotchFreq())
	}
	if cfg.GetMotionNorm() != 50.0 {
		t.Errorf("GetMotionNorm() = %f, want 50", cfg.GetMotionNorm())
	}
	if cfg.GetMotionImpact() != 0.2 {
		t.Errorf("GetMotionImpact() = %f, want 0.2", cfg.GetMotionImpact())
	}
	if cfg.GetDisplayMargin() != 100 {
		t.Errorf("GetDisplayMargin() = %d, want 100", cfg.GetDisplayMargin())
	}
}

func TestLoadTuningConfig(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "test_config.json")

	testJSON := `{
  "tick_period": "25ms",
  "min_chunk_fraction": 0.5,
  "discovery_ttl": "5s",
  "resolve_attempts": 5,
  "motion_norm": 100.0
}`
	if err := os.WriteFile(configPath, []byte(testJSON), 0644); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	cfg, err := LoadTuningConfig(configPath)
	if err != nil {
		t.Fatalf("LoadTuningConfig failed: %v", err)
	}

	if cfg.GetTickPeriod() != 25*time.Millisecond {
		t.Errorf("GetTickPeriod() = %v, want 25ms", cfg.GetTickPeriod())
	}
	if cfg.GetMinChunkFraction() != 0.5 {
		t.Errorf("GetMinChunkFraction() = %f, want 0.5", cfg.GetMinChunkFraction())
	}
	if cfg.GetDiscoveryTTL() != 5*time.Second {
		t.Errorf("GetDiscoveryTTL() = %v, want 5s", cfg.GetDiscoveryTTL())
	}
	if cfg.GetResolveAttempts() != 5 {
		t.Errorf("GetResolveAttempts() = %d, want 5", cfg.GetResolveAttempts())
	}
	if cfg.GetMotionNorm() != 100.0 {
		t.Errorf("GetMotionNorm() = %f, want 100", cfg.GetMotionNorm())
	}

	// Omitted fields fall back to defaults.
	if cfg.GetOverRequestFactor() != 2.0 {
		t.Errorf("GetOverRequestFactor() = %f, want default 2.0", cfg.GetOverRequestFactor())
	}
	if cfg.GetMotionImpact() != 0.2 {
		t.Errorf("GetMotionImpact() = %f, want default 0.2", cfg.GetMotionImpact())
	}
}

func TestLoadTuningConfigRejectsNonJSON(t *testing.T) {
	if _, err := LoadTuningConfig("config.yaml"); err == nil {
		t.Error("expected error for non-JSON extension")
	}
}

func TestLoadTuningConfigMissingFile(t *testing.T) {
	if _, err := LoadTuningConfig(filepath.Join(t.TempDir(), "missing.json")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	cases := []struct {
		name string
		cfg  TuningConfig
	}{
		{"bad tick_period", TuningConfig{TickPeriod: ptrString("fast")}},
		{"fraction above 1", TuningConfig{MinChunkFraction: ptrFloat64(1.5)}},
		{"fraction zero", TuningConfig{MinChunkFraction: ptrFloat64(0)}},
		{"factor below 1", TuningConfig{OverRequestFactor: ptrFloat64(0.5)}},
		{"alpha above 1", TuningConfig{SmoothingAlpha: ptrFloat64(2)}},
		{"zero attempts", TuningConfig{ResolveAttempts: ptrInt(0)}},
		{"inverted bandpass", TuningConfig{BandpassLow: ptrFloat64(60), BandpassHigh: ptrFloat64(10)}},
		{"inverted amplitude bounds", TuningConfig{AmplitudeMin: ptrFloat64(400), AmplitudeMax: ptrFloat64(350)}},
		{"negative margin", TuningConfig{DisplayMargin: ptrInt(-1)}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if err := tc.cfg.Validate(); err == nil {
				t.Error("Validate returned nil, want error")
			}
		})
	}
}

func TestDefaultsFileLoads(t *testing.T) {
	cfg := MustLoadDefaultConfig()
	if cfg.GetTickPeriod() != 50*time.Millisecond {
		t.Errorf("defaults file tick_period = %v, want 50ms", cfg.GetTickPeriod())
	}
	if cfg.GetAmplitudeMax() != 350.0 {
		t.Errorf("defaults file amplitude_max = %f, want 350", cfg.GetAmplitudeMax())
	}
}
