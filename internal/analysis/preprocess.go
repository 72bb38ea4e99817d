package analysis

// PipelineConfig holds the fixed preprocessing parameters. Values are
// per-deployment tuning, not per-start settings.
type PipelineConfig struct {
	// BandpassLow/BandpassHigh bound the pass band in Hz.
	BandpassLow  float64
	BandpassHigh float64

	// NotchFreq/NotchBandwidth remove mains interference.
	NotchFreq      float64
	NotchBandwidth float64

	// Bad-channel bounds: a channel is flagged when its mains-band
	// density exceeds LineNoiseMax, or its filtered peak-to-peak
	// amplitude leaves [AmplitudeMin, AmplitudeMax]. A flat trace below
	// AmplitudeMin indicates a dead electrode.
	LineNoiseLow  float64
	LineNoiseHigh float64
	LineNoiseMax  float64
	AmplitudeMin  float64
	AmplitudeMax  float64

	// MinSamples is the fewest samples a channel needs before detection
	// applies; shorter traces pass through unflagged.
	MinSamples int
}

// DefaultPipelineConfig returns the tuned preprocessing defaults for
// consumer EEG headbands in 50Hz-mains regions.
func DefaultPipelineConfig() PipelineConfig {
	return PipelineConfig{
		BandpassLow:    1,
		BandpassHigh:   59,
		NotchFreq:      50,
		NotchBandwidth: 4,
		LineNoiseLow:   45,
		LineNoiseHigh:  55,
		LineNoiseMax:   500,
		AmplitudeMin:   5,
		AmplitudeMax:   350,
		MinSamples:     100,
	}
}

// detectBadChannels flags channels whose mains-band power or filtered
// amplitude range falls outside the configured bounds. Flags are
// re-evaluated every tick; there is no persistent exclusion state.
func detectBadChannels(channels [][]float64, fs float64, cfg PipelineConfig) map[int]bool {
	bad := make(map[int]bool)
	scratch := make([]float64, 0)

	for idx, data := range channels {
		if len(data) < cfg.MinSamples {
			continue
		}

		nperseg := 256
		if len(data) < nperseg {
			nperseg = len(data)
		}
		freqs, psd := welchPSD(data, fs, nperseg)
		if psd == nil {
			continue
		}
		linePower := meanPSDIn(freqs, psd, cfg.LineNoiseLow, cfg.LineNoiseHigh)

		scratch = append(scratch[:0], data...)
		filtfilt([]biquad{newHighPass(15, fs), newLowPass(45, fs)}, scratch)
		amplitude := peakToPeak(scratch)

		if linePower > cfg.LineNoiseMax || amplitude > cfg.AmplitudeMax || amplitude < cfg.AmplitudeMin {
			bad[idx] = true
		}
	}
	return bad
}

// commonAverageReference subtracts, per sample, the mean across all
// non-flagged channels from every channel, in place. Malformed input (no
// good channels) leaves the data untouched rather than aborting the tick.
func commonAverageReference(channels [][]float64, bad map[int]bool) {
	if len(channels) == 0 {
		return
	}
	good := make([]int, 0, len(channels))
	for idx := range channels {
		if !bad[idx] {
			good = append(good, idx)
		}
	}
	if len(good) == 0 {
		return
	}

	samples := len(channels[0])
	for s := 0; s < samples; s++ {
		var mean float64
		for _, idx := range good {
			mean += channels[idx][s]
		}
		mean /= float64(len(good))
		for idx := range channels {
			if s < len(channels[idx]) {
				channels[idx][s] -= mean
			}
		}
	}
}

// preprocessChannel runs the fixed per-channel pipeline in place: detrend,
// band-pass, notch.
func preprocessChannel(data []float64, fs float64, cfg PipelineConfig) {
	detrend(data)
	filtfilt(bandPass(cfg.BandpassLow, cfg.BandpassHigh, fs), data)
	filtfilt([]biquad{newNotch(cfg.NotchFreq, cfg.NotchBandwidth, fs)}, data)
}
