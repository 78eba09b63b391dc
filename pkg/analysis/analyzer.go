// Package analysis provides the real-time guitar diagnostic engine and its
// analyzers: fret buzz, intonation, and string health.
package analysis

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/nzoschke/guitarlab/pkg/dsp"
)

// analysisFFTSize is the FFT size used by all analyzers, independent of the
// engine frame size. Deployments should keep Config.FrameSize equal to it.
const analysisFFTSize = 2048

const epsilon = 1e-6

// Config is the immutable parameter bundle handed to every analyzer at
// registration time.
type Config struct {
	SampleRate float64 // Hz
	FrameSize  int     // samples per analysis frame
}

// Validate reports whether the config can drive an analyzer.
func (c Config) Validate() error {
	if c.SampleRate <= 0 {
		return fmt.Errorf("sample rate must be positive, got %v", c.SampleRate)
	}
	if c.FrameSize <= 0 {
		return fmt.Errorf("frame size must be positive, got %d", c.FrameSize)
	}
	return nil
}

// Result is the base portion common to every analyzer result.
type Result struct {
	Timestamp time.Time `json:"timestamp"`
	Valid     bool      `json:"valid"`
	Error     string    `json:"error,omitempty"`
}

// Analyzer is the contract the engine drives. Configure is called once at
// registration; ProcessFrame is called by the engine worker for every frame
// in order; Reset returns the analyzer to its initial state and may be called
// while the engine runs. Each concrete analyzer additionally exposes a typed
// LatestResult accessor returning an immutable snapshot.
type Analyzer interface {
	Configure(cfg Config) error
	ProcessFrame(frame []float32)
	Reset()
}

// frameRMS returns the root-mean-square of a frame.
func frameRMS(frame []float32) float64 {
	if len(frame) == 0 {
		return 0
	}
	var sum float64
	for _, s := range frame {
		sum += float64(s) * float64(s)
	}
	return math.Sqrt(sum / float64(len(frame)))
}

// zeroCrossingRate counts sign changes between consecutive samples and
// converts to crossings per second.
func zeroCrossingRate(frame []float32, sampleRate float64) float64 {
	if len(frame) < 2 || sampleRate <= 0 {
		return 0
	}
	crossings := 0
	for i := 1; i < len(frame); i++ {
		if (frame[i-1] >= 0) != (frame[i] >= 0) {
			crossings++
		}
	}
	duration := float64(len(frame)) / sampleRate
	return float64(crossings) / duration
}

// clampUnit clamps v to [0, 1].
func clampUnit(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// harmonicDeviation measures inharmonicity: for harmonics 1..count of f0 it
// locates the strongest bin within ±searchBins of the expected bin and
// averages the relative deviation of that bin's frequency from the ideal
// integer multiple. The result is clamped to [0, 1].
func harmonicDeviation(s *dsp.Spectrum, f0 float64, count, searchBins int) float64 {
	if f0 <= 0 {
		return 0
	}
	var total float64
	measured := 0
	for n := 1; n <= count; n++ {
		expected := float64(n) * f0
		center := int(math.Round(expected * float64(s.FFTSize) / s.SampleRate))
		if center >= len(s.Mags) {
			break
		}

		best := -1
		for bin := center - searchBins; bin <= center+searchBins; bin++ {
			if bin < 0 || bin >= len(s.Mags) {
				continue
			}
			if best < 0 || s.Mags[bin] > s.Mags[best] {
				best = bin
			}
		}
		if best < 0 {
			continue
		}

		actual := s.BinFrequency(best)
		total += math.Abs(actual-expected) / expected
		measured++
	}
	if measured == 0 {
		return 0
	}
	return clampUnit(total / float64(measured))
}

// medianFloat64 returns the median of values without modifying them.
func medianFloat64(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)

	mid := len(sorted) / 2
	if len(sorted)%2 == 0 {
		return (sorted[mid-1] + sorted[mid]) / 2
	}
	return sorted[mid]
}
