package analysis

// Band is a named frequency range in Hz.
type Band struct {
	Name string  `json:"name"`
	Low  float64 `json:"low"`
	High float64 `json:"high"`
}

// DefaultBands are the standard EEG bands. Exact boundaries are a
// configuration concern; these match the capture application's defaults.
func DefaultBands() []Band {
	return []Band{
		{Name: "delta", Low: 1, High: 4},
		{Name: "theta", Low: 4, High: 8},
		{Name: "alpha", Low: 8, High: 13},
		{Name: "beta", Low: 13, High: 30},
		{Name: "gamma", Low: 30, High: 60},
	}
}

// bandNames returns the names in band order.
func bandNames(bands []Band) []string {
	names := make([]string, len(bands))
	for i, b := range bands {
		names[i] = b.Name
	}
	return names
}

// channelBandPowers computes the per-band power of one preprocessed channel
// from its Welch PSD.
func channelBandPowers(freqs, psd []float64, bands []Band) []float64 {
	powers := make([]float64, len(bands))
	for i, b := range bands {
		powers[i] = bandPower(freqs, psd, b.Low, b.High)
	}
	return powers
}
