// Package dsp provides the spectral and pitch primitives shared by the
// guitar analyzers.
package dsp

import (
	"math"

	"gonum.org/v1/gonum/dsp/fourier"
)

const epsilon = 1e-6

// Spectrum is a one-sided magnitude spectrum of a single frame: FFTSize/2
// non-negative bins covering DC up to (but excluding) Nyquist. Bin k maps to
// frequency k * SampleRate / FFTSize.
type Spectrum struct {
	Mags       []float64
	SampleRate float64
	FFTSize    int
}

// BinFrequency converts a bin index to its center frequency in Hz.
func (s *Spectrum) BinFrequency(bin int) float64 {
	return float64(bin) * s.SampleRate / float64(s.FFTSize)
}

// BinForFrequency returns the bin nearest to freq, clamped to the valid range.
func (s *Spectrum) BinForFrequency(freq float64) int {
	bin := int(math.Round(freq * float64(s.FFTSize) / s.SampleRate))
	if bin < 0 {
		return 0
	}
	if bin >= len(s.Mags) {
		return len(s.Mags) - 1
	}
	return bin
}

// MagnitudeAt returns the magnitude of a bin, or 0 outside the valid range.
func (s *Spectrum) MagnitudeAt(bin int) float64 {
	if bin < 0 || bin >= len(s.Mags) {
		return 0
	}
	return s.Mags[bin]
}

// MagnitudeAtFrequency returns the magnitude of the bin nearest to freq.
func (s *Spectrum) MagnitudeAtFrequency(freq float64) float64 {
	return s.MagnitudeAt(s.BinForFrequency(freq))
}

// BandEnergy sums magnitudes over all bins whose center frequency lies in
// [lo, hi].
func (s *Spectrum) BandEnergy(lo, hi float64) float64 {
	if hi < lo {
		lo, hi = hi, lo
	}
	var sum float64
	for bin, mag := range s.Mags {
		f := s.BinFrequency(bin)
		if f < lo {
			continue
		}
		if f > hi {
			break
		}
		sum += mag
	}
	return sum
}

// Centroid returns the magnitude-weighted mean frequency in Hz, or 0 for a
// spectrum with no energy.
func (s *Spectrum) Centroid() float64 {
	var num, den float64
	for bin, mag := range s.Mags {
		num += s.BinFrequency(bin) * mag
		den += mag
	}
	if den < epsilon {
		return 0
	}
	return num / den
}

// SpectrumAnalyzer computes Hann-windowed magnitude spectra at a fixed FFT
// size. Frames shorter than the FFT size are zero-padded; longer frames are
// truncated. Scratch buffers are reused across calls, so an analyzer must not
// be shared between goroutines.
type SpectrumAnalyzer struct {
	fft        *fourier.FFT
	window     []float64
	frame      []float64
	sampleRate float64
	size       int
}

// NewSpectrumAnalyzer creates an analyzer for the given FFT size and sample
// rate.
func NewSpectrumAnalyzer(fftSize int, sampleRate float64) *SpectrumAnalyzer {
	return &SpectrumAnalyzer{
		fft:        fourier.NewFFT(fftSize),
		window:     hannWindow(fftSize),
		frame:      make([]float64, fftSize),
		sampleRate: sampleRate,
		size:       fftSize,
	}
}

// Compute returns the magnitude spectrum of samples. The returned Spectrum
// owns its bins and stays valid after further Compute calls.
func (a *SpectrumAnalyzer) Compute(samples []float32) *Spectrum {
	for i := range a.frame {
		a.frame[i] = 0
	}
	n := min(len(samples), a.size)
	for i := 0; i < n; i++ {
		a.frame[i] = float64(samples[i]) * a.window[i]
	}

	coeffs := a.fft.Coefficients(nil, a.frame)

	// One-sided normalization: 2/N except for the DC bin.
	mags := make([]float64, a.size/2)
	scale := 2.0 / float64(a.size)
	for j := range mags {
		re := real(coeffs[j])
		im := imag(coeffs[j])
		s := scale
		if j == 0 {
			s = 1.0 / float64(a.size)
		}
		mags[j] = math.Sqrt(re*re+im*im) * s
	}

	return &Spectrum{Mags: mags, SampleRate: a.sampleRate, FFTSize: a.size}
}

// hannWindow generates a Hann window of given size.
func hannWindow(size int) []float64 {
	w := make([]float64, size)
	for i := range w {
		w[i] = 0.5 * (1 - math.Cos(2*math.Pi*float64(i)/float64(size-1)))
	}
	return w
}
