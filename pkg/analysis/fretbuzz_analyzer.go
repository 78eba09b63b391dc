// This file provides fret-buzz likelihood scoring from transient and
// spectral anomalies.
package analysis

import (
	"math"
	"sync"
	"time"

	"github.com/nzoschke/guitarlab/pkg/dsp"
)

const (
	// Onset thresholds. The same 1.5 applies to the RMS ratio and to the
	// absolute spectral flux; both are tunable.
	onsetRMSRatio  = 1.5
	onsetFluxFloor = 1.5

	// attackRef maps attack time to a score: an attack of 0 s scores 1,
	// attackRef seconds or slower scores 0.
	attackRef = 0.1
	// zcrRef is the zero-crossing rate (per second) that saturates the score.
	zcrRef = 1000.0
	// silenceAmplitude is the peak amplitude below which a frame counts as
	// silent for attack measurement.
	silenceAmplitude = 0.01

	// High-frequency energy band against the playable band.
	hfBandLow    = 4000.0
	hfBandHigh   = 8000.0
	fullBandLow  = 80.0
	fullBandHigh = 12000.0

	buzzHarmonics      = 10
	buzzHarmonicSearch = 2
	buzzMinConfidence  = 0.5

	// Composite weights; they sum to 1 so the score stays in [0, 1].
	buzzTransientWeight = 0.3
	buzzHighFreqWeight  = 0.4
	buzzInharmonicity   = 0.3
)

// FretBuzzResult reports the likelihood that a frame exhibits fret buzz,
// along with its sub-scores.
type FretBuzzResult struct {
	Result
	BuzzScore           float64 `json:"buzz_score"`
	OnsetDetected       bool    `json:"onset_detected"`
	TransientScore      float64 `json:"transient_score"`
	HighFreqEnergyScore float64 `json:"high_freq_energy_score"`
	InharmonicityScore  float64 `json:"inharmonicity_score"`
}

// FretBuzzAnalyzer scores each frame for fret buzz by combining transient
// sharpness, high-frequency energy concentration, and harmonic deviation.
type FretBuzzAnalyzer struct {
	mu         sync.Mutex
	cfg        Config
	configured bool

	spectrum *dsp.SpectrumAnalyzer
	pitch    *dsp.PitchDetector

	prevMags []float64
	havePrev bool
	prevRMS  float64

	latest FretBuzzResult
	now    func() time.Time
}

// NewFretBuzzAnalyzer creates an unconfigured fret-buzz analyzer.
func NewFretBuzzAnalyzer() *FretBuzzAnalyzer {
	return &FretBuzzAnalyzer{now: time.Now}
}

// Configure prepares the analyzer for frames at cfg.SampleRate.
func (a *FretBuzzAnalyzer) Configure(cfg Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	a.mu.Lock()
	defer a.mu.Unlock()

	a.cfg = cfg
	a.spectrum = dsp.NewSpectrumAnalyzer(analysisFFTSize, cfg.SampleRate)
	a.pitch = dsp.NewPitchDetector(cfg.SampleRate)
	a.prevMags = make([]float64, analysisFFTSize/2)
	a.havePrev = false
	a.prevRMS = 0
	a.configured = true
	return nil
}

// ProcessFrame scores one frame and publishes a new result. A frame arriving
// before Configure is ignored.
func (a *FretBuzzAnalyzer) ProcessFrame(frame []float32) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.configured {
		return
	}

	spec := a.spectrum.Compute(frame)
	rms := frameRMS(frame)

	// Spectral flux: positive bin-by-bin growth against the previous frame.
	var flux float64
	if a.havePrev {
		for bin, mag := range spec.Mags {
			if d := mag - a.prevMags[bin]; d > 0 {
				flux += d
			}
		}
	}

	// The RMS ratio is undefined on the first frame, so no onset there.
	// rms > ratio*prevRMS is the ratio test rearranged to tolerate a silent
	// previous frame.
	onset := a.havePrev && (rms > onsetRMSRatio*a.prevRMS || flux > onsetFluxFloor)

	transient := a.transientScore(frame)
	highFreq := highFreqEnergyScore(spec)
	inharm := a.inharmonicityScore(frame, spec)

	buzz := clampUnit(buzzTransientWeight*transient + buzzHighFreqWeight*highFreq + buzzInharmonicity*inharm)

	copy(a.prevMags, spec.Mags)
	a.havePrev = true
	a.prevRMS = rms

	a.latest = FretBuzzResult{
		Result:              Result{Timestamp: a.now(), Valid: true},
		BuzzScore:           buzz,
		OnsetDetected:       onset,
		TransientScore:      transient,
		HighFreqEnergyScore: highFreq,
		InharmonicityScore:  inharm,
	}
}

// LatestResult returns a snapshot of the most recently published result.
func (a *FretBuzzAnalyzer) LatestResult() FretBuzzResult {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.latest
}

// Reset clears the inter-frame state and publishes a zeroed, valid result.
func (a *FretBuzzAnalyzer) Reset() {
	a.mu.Lock()
	defer a.mu.Unlock()

	for i := range a.prevMags {
		a.prevMags[i] = 0
	}
	a.havePrev = false
	a.prevRMS = 0
	a.latest = FretBuzzResult{Result: Result{Timestamp: a.now(), Valid: true}}
}

// transientScore combines attack time and zero-crossing rate into [0, 1].
func (a *FretBuzzAnalyzer) transientScore(frame []float32) float64 {
	var peak float64
	for _, s := range frame {
		if v := math.Abs(float64(s)); v > peak {
			peak = v
		}
	}

	// Attack time: how long the frame takes to first reach 90% of its peak.
	attack := 1.0
	if peak >= silenceAmplitude {
		target := 0.9 * peak
		for i, s := range frame {
			if math.Abs(float64(s)) >= target {
				attack = float64(i) / a.cfg.SampleRate
				break
			}
		}
	}
	attackScore := clampUnit(1 - attack/attackRef)

	zcr := zeroCrossingRate(frame, a.cfg.SampleRate)
	zcrScore := clampUnit(zcr / zcrRef)

	return (attackScore + zcrScore) / 2
}

// highFreqEnergyScore is the share of magnitude in the 4–8 kHz band relative
// to the full playable band.
func highFreqEnergyScore(spec *dsp.Spectrum) float64 {
	total := spec.BandEnergy(fullBandLow, fullBandHigh)
	if total < epsilon {
		return 0
	}
	return clampUnit(spec.BandEnergy(hfBandLow, hfBandHigh) / total)
}

// inharmonicityScore is the mean harmonic deviation when a confident pitch is
// present, else 0.
func (a *FretBuzzAnalyzer) inharmonicityScore(frame []float32, spec *dsp.Spectrum) float64 {
	est, ok := a.pitch.Detect(frame)
	if !ok || est.Confidence < buzzMinConfidence {
		return 0
	}
	return harmonicDeviation(spec, est.Frequency, buzzHarmonics, buzzHarmonicSearch)
}
