package dsp

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sine(freq, sampleRate float64, n int) []float32 {
	out := make([]float32, n)
	for i := range out {
		out[i] = float32(math.Sin(2 * math.Pi * freq * float64(i) / sampleRate))
	}
	return out
}

func TestComputeShape(t *testing.T) {
	a := NewSpectrumAnalyzer(2048, 48000)
	s := a.Compute(sine(440, 48000, 2048))

	assert.Len(t, s.Mags, 1024)
	for bin, mag := range s.Mags {
		assert.GreaterOrEqual(t, mag, 0.0, "bin %d", bin)
	}
}

func TestSinePeakBin(t *testing.T) {
	a := NewSpectrumAnalyzer(2048, 48000)
	s := a.Compute(sine(1000, 48000, 2048))

	peak := 0
	for bin := range s.Mags {
		if s.Mags[bin] > s.Mags[peak] {
			peak = bin
		}
	}

	// One bin is 48000/2048 = 23.4 Hz wide.
	assert.InDelta(t, 1000, s.BinFrequency(peak), 24)
}

func TestShortFrameZeroPadded(t *testing.T) {
	a := NewSpectrumAnalyzer(2048, 48000)
	s := a.Compute(sine(1000, 48000, 512))

	peak := 0
	for bin := range s.Mags {
		if s.Mags[bin] > s.Mags[peak] {
			peak = bin
		}
	}
	assert.InDelta(t, 1000, s.BinFrequency(peak), 100)
}

func TestBandEnergy(t *testing.T) {
	a := NewSpectrumAnalyzer(2048, 48000)
	s := a.Compute(sine(5000, 48000, 2048))

	inBand := s.BandEnergy(4000, 8000)
	total := s.BandEnergy(0, 24000)
	require.Greater(t, total, 0.0)

	// Nearly all energy of a 5 kHz tone sits inside the 4–8 kHz band.
	assert.Greater(t, inBand/total, 0.9)
	assert.Equal(t, s.BandEnergy(100, 50), s.BandEnergy(50, 100), "bounds are order-insensitive")
}

func TestCentroid(t *testing.T) {
	a := NewSpectrumAnalyzer(2048, 48000)

	s := a.Compute(sine(2000, 48000, 2048))
	assert.InDelta(t, 2000, s.Centroid(), 150)

	silent := a.Compute(make([]float32, 2048))
	assert.Zero(t, silent.Centroid())
}

func TestBinLookups(t *testing.T) {
	s := &Spectrum{Mags: make([]float64, 1024), SampleRate: 48000, FFTSize: 2048}
	s.Mags[100] = 3.5

	assert.InDelta(t, 2343.75, s.BinFrequency(100), 1e-9)
	assert.Equal(t, 100, s.BinForFrequency(2343.75))
	assert.Equal(t, 3.5, s.MagnitudeAtFrequency(2343.75))

	assert.Zero(t, s.MagnitudeAt(-1))
	assert.Zero(t, s.MagnitudeAt(1024))
	assert.Equal(t, 0, s.BinForFrequency(-500))
	assert.Equal(t, 1023, s.BinForFrequency(1e9))
}
