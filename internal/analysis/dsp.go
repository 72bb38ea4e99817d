package analysis

import (
	"math"

	"gonum.org/v1/gonum/dsp/fourier"
	"gonum.org/v1/gonum/stat"
)

// biquad is a single second-order IIR section in direct form II transposed.
type biquad struct {
	b0, b1, b2 float64
	a1, a2     float64
}

// apply filters data in place, forward direction.
func (f biquad) apply(data []float64) {
	var z1, z2 float64
	for i, x := range data {
		y := f.b0*x + z1
		z1 = f.b1*x - f.a1*y + z2
		z2 = f.b2*x - f.a2*y
		data[i] = y
	}
}

// newLowPass designs a second-order Butterworth low-pass section. A cutoff
// at or above Nyquist yields a pass-through.
func newLowPass(cutoff, fs float64) biquad {
	if cutoff >= fs/2 {
		return biquad{b0: 1}
	}
	w := math.Tan(math.Pi * cutoff / fs)
	norm := 1 / (1 + math.Sqrt2*w + w*w)
	b0 := w * w * norm
	return biquad{
		b0: b0,
		b1: 2 * b0,
		b2: b0,
		a1: 2 * (w*w - 1) * norm,
		a2: (1 - math.Sqrt2*w + w*w) * norm,
	}
}

// newHighPass designs a second-order Butterworth high-pass section.
func newHighPass(cutoff, fs float64) biquad {
	if cutoff <= 0 {
		return biquad{b0: 1}
	}
	w := math.Tan(math.Pi * cutoff / fs)
	norm := 1 / (1 + math.Sqrt2*w + w*w)
	return biquad{
		b0: norm,
		b1: -2 * norm,
		b2: norm,
		a1: 2 * (w*w - 1) * norm,
		a2: (1 - math.Sqrt2*w + w*w) * norm,
	}
}

// newNotch designs a notch section centered at freq with the given
// bandwidth, both in Hz.
func newNotch(freq, bandwidth, fs float64) biquad {
	if freq <= 0 || freq >= fs/2 {
		return biquad{b0: 1}
	}
	w0 := 2 * math.Pi * freq / fs
	q := freq / bandwidth
	alpha := math.Sin(w0) / (2 * q)
	cosw0 := math.Cos(w0)
	a0 := 1 + alpha
	return biquad{
		b0: 1 / a0,
		b1: -2 * cosw0 / a0,
		b2: 1 / a0,
		a1: -2 * cosw0 / a0,
		a2: (1 - alpha) / a0,
	}
}

// bandPass builds a band-pass as a high-pass/low-pass cascade.
func bandPass(low, high, fs float64) []biquad {
	return []biquad{newHighPass(low, fs), newLowPass(high, fs)}
}

// filtfilt applies the sections forward then backward for zero phase
// distortion, in place.
func filtfilt(sections []biquad, data []float64) {
	for _, s := range sections {
		s.apply(data)
	}
	reverse(data)
	for _, s := range sections {
		s.apply(data)
	}
	reverse(data)
}

func reverse(data []float64) {
	for i, j := 0, len(data)-1; i < j; i, j = i+1, j-1 {
		data[i], data[j] = data[j], data[i]
	}
}

// detrend removes the mean from data in place.
func detrend(data []float64) {
	m := stat.Mean(data, nil)
	for i := range data {
		data[i] -= m
	}
}

// peakToPeak returns max(data) - min(data).
func peakToPeak(data []float64) float64 {
	if len(data) == 0 {
		return 0
	}
	lo, hi := data[0], data[0]
	for _, v := range data[1:] {
		if v < lo {
			lo = v
		}
		if v > hi {
			hi = v
		}
	}
	return hi - lo
}

// nearestPowerOfTwo returns the largest power of two not exceeding n, with a
// floor of 2.
func nearestPowerOfTwo(n int) int {
	p := 2
	for p*2 <= n {
		p *= 2
	}
	return p
}

// welchPSD estimates the power spectral density of data sampled at fs using
// Welch's method: Hann-windowed segments of length nperseg with 50% overlap,
// periodograms averaged across segments. nperseg is clamped to len(data).
// Returns the frequency bins and the density estimate (nperseg/2+1 values).
func welchPSD(data []float64, fs float64, nperseg int) (freqs, psd []float64) {
	if nperseg > len(data) {
		nperseg = nearestPowerOfTwo(len(data))
	}
	if nperseg < 2 {
		return nil, nil
	}

	window := make([]float64, nperseg)
	var windowPower float64
	for i := range window {
		// Hann window.
		window[i] = 0.5 * (1 - math.Cos(2*math.Pi*float64(i)/float64(nperseg-1)))
		windowPower += window[i] * window[i]
	}

	fft := fourier.NewFFT(nperseg)
	nbins := nperseg/2 + 1
	psd = make([]float64, nbins)
	segment := make([]float64, nperseg)
	coeffs := make([]complex128, nbins)

	step := nperseg / 2
	segments := 0
	for start := 0; start+nperseg <= len(data); start += step {
		copy(segment, data[start:start+nperseg])
		detrend(segment)
		for i := range segment {
			segment[i] *= window[i]
		}
		fft.Coefficients(coeffs, segment)

		scale := 1 / (fs * windowPower)
		for k, c := range coeffs {
			p := (real(c)*real(c) + imag(c)*imag(c)) * scale
			// One-sided spectrum: interior bins carry both halves.
			if k > 0 && k < nbins-1 {
				p *= 2
			}
			psd[k] += p
		}
		segments++
	}
	if segments == 0 {
		return nil, nil
	}
	for k := range psd {
		psd[k] /= float64(segments)
	}

	freqs = make([]float64, nbins)
	for k := range freqs {
		freqs[k] = fft.Freq(k) * fs
	}
	return freqs, psd
}

// bandPower sums the density bins falling inside [low, high]. Summing bins
// rather than integrating matches the convention of the capture stack this
// pipeline is calibrated against.
func bandPower(freqs, psd []float64, low, high float64) float64 {
	var sum float64
	for i, f := range freqs {
		if f >= low && f <= high {
			sum += psd[i]
		}
	}
	return sum
}

// meanPSDIn returns the mean density in [low, high], or 0 when no bins fall
// inside the range.
func meanPSDIn(freqs, psd []float64, low, high float64) float64 {
	var sum float64
	n := 0
	for i, f := range freqs {
		if f >= low && f <= high {
			sum += psd[i]
			n++
		}
	}
	if n == 0 {
		return 0
	}
	return sum / float64(n)
}
