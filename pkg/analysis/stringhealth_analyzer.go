// This file provides string-health scoring from harmonic decay, spectral
// brightness, and inharmonicity.
package analysis

import (
	"math"
	"sync"
	"time"

	"gonum.org/v1/gonum/stat"

	"github.com/nzoschke/guitarlab/pkg/dsp"
)

const (
	healthHarmonics      = 10
	healthHarmonicSearch = 3
	healthMinConfidence  = 0.5
	// healthHistoryCap bounds the per-frame harmonic history; the oldest
	// entry is dropped on overflow.
	healthHistoryCap = 50
	// healthMinHistory entries are required before a decay rate is fitted.
	healthMinHistory = 10

	// nepersToDB converts a log-magnitude slope to dB/s: 20/ln 10.
	nepersToDB = 8.686

	// Expected useful decay range in dB/s; slower (less negative) decay is
	// healthier.
	decayFloor   = -50.0
	decayCeiling = -5.0

	// centroidRef maps spectral centroid to a score: 0 Hz scores 1,
	// centroidRef Hz or above scores 0. Lower centroids score higher.
	centroidRef = 5000.0

	healthDecayWeight    = 0.3
	healthSpectralWeight = 0.3
	healthInharmWeight   = 0.4
)

// StringHealthResult rates the harmonic integrity of a sustained note.
type StringHealthResult struct {
	Result
	HealthScore          float64 `json:"health_score"`
	DecayRate            float64 `json:"decay_rate"`
	SpectralCentroid     float64 `json:"spectral_centroid"`
	Inharmonicity        float64 `json:"inharmonicity"`
	FundamentalFrequency float64 `json:"fundamental_frequency"`
}

// StringHealthAnalyzer tracks harmonic magnitudes across frames and fuses
// decay rate, brightness, and inharmonicity into a [0, 1] health score.
type StringHealthAnalyzer struct {
	mu         sync.Mutex
	cfg        Config
	configured bool

	spectrum *dsp.SpectrumAnalyzer
	pitch    *dsp.PitchDetector

	harmonicHist [][]float64
	timeHist     []time.Time
	fundamental  float64

	latest StringHealthResult
	now    func() time.Time
}

// NewStringHealthAnalyzer creates an unconfigured string-health analyzer.
func NewStringHealthAnalyzer() *StringHealthAnalyzer {
	return &StringHealthAnalyzer{now: time.Now}
}

// Configure prepares the analyzer for frames at cfg.SampleRate.
func (a *StringHealthAnalyzer) Configure(cfg Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	a.mu.Lock()
	defer a.mu.Unlock()

	a.cfg = cfg
	a.spectrum = dsp.NewSpectrumAnalyzer(analysisFFTSize, cfg.SampleRate)
	a.pitch = dsp.NewPitchDetector(cfg.SampleRate)
	a.harmonicHist = make([][]float64, 0, healthHistoryCap)
	a.timeHist = make([]time.Time, 0, healthHistoryCap)
	a.fundamental = 0
	a.configured = true
	return nil
}

// ProcessFrame updates the harmonic history and publishes a new result.
func (a *StringHealthAnalyzer) ProcessFrame(frame []float32) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.configured {
		return
	}

	spec := a.spectrum.Compute(frame)
	nowT := a.now()

	if est, ok := a.pitch.Detect(frame); ok && est.Confidence > healthMinConfidence {
		a.fundamental = est.Frequency
		a.pushHarmonics(spec, nowT)
	}

	// Until a fundamental has been heard there is nothing to rate; keep every
	// numeric field at zero instead of letting the sub-score mapping reward
	// silence.
	if a.fundamental <= 0 {
		a.latest = StringHealthResult{Result: Result{Timestamp: nowT, Valid: true}}
		return
	}

	decay := a.decayRate()
	centroid := spec.Centroid()
	inharm := harmonicDeviation(spec, a.fundamental, healthHarmonics, healthHarmonicSearch)

	decayScore := clampUnit((decay - decayFloor) / (decayCeiling - decayFloor))
	spectralScore := clampUnit(1 - centroid/centroidRef)
	inharmScore := 1 - inharm

	health := clampUnit(healthDecayWeight*decayScore + healthSpectralWeight*spectralScore + healthInharmWeight*inharmScore)

	a.latest = StringHealthResult{
		Result:               Result{Timestamp: nowT, Valid: true},
		HealthScore:          health,
		DecayRate:            decay,
		SpectralCentroid:     centroid,
		Inharmonicity:        inharm,
		FundamentalFrequency: a.fundamental,
	}
}

// LatestResult returns a snapshot of the most recently published result.
func (a *StringHealthAnalyzer) LatestResult() StringHealthResult {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.latest
}

// Reset clears the histories and publishes a zeroed, valid result.
func (a *StringHealthAnalyzer) Reset() {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.harmonicHist = a.harmonicHist[:0]
	a.timeHist = a.timeHist[:0]
	a.fundamental = 0
	a.latest = StringHealthResult{Result: Result{Timestamp: a.now(), Valid: true}}
}

// pushHarmonics records the magnitudes at the first ten harmonics of the
// current fundamental.
func (a *StringHealthAnalyzer) pushHarmonics(spec *dsp.Spectrum, now time.Time) {
	mags := make([]float64, healthHarmonics)
	for n := 1; n <= healthHarmonics; n++ {
		mags[n-1] = spec.MagnitudeAtFrequency(float64(n) * a.fundamental)
	}

	if len(a.harmonicHist) == healthHistoryCap {
		copy(a.harmonicHist, a.harmonicHist[1:])
		a.harmonicHist[len(a.harmonicHist)-1] = mags
		copy(a.timeHist, a.timeHist[1:])
		a.timeHist[len(a.timeHist)-1] = now
		return
	}
	a.harmonicHist = append(a.harmonicHist, mags)
	a.timeHist = append(a.timeHist, now)
}

// decayRate fits log mean harmonic magnitude against elapsed time by
// ordinary least squares and converts the slope to dB/s. It returns 0 until
// the history holds enough usable points.
func (a *StringHealthAnalyzer) decayRate() float64 {
	if len(a.harmonicHist) < healthMinHistory {
		return 0
	}

	start := a.timeHist[0]
	xs := make([]float64, 0, len(a.harmonicHist))
	ys := make([]float64, 0, len(a.harmonicHist))
	for i, mags := range a.harmonicHist {
		var mean float64
		for _, m := range mags {
			mean += m
		}
		mean /= float64(len(mags))
		if mean <= epsilon {
			continue
		}
		xs = append(xs, a.timeHist[i].Sub(start).Seconds())
		ys = append(ys, math.Log(mean))
	}

	if len(xs) < 2 || stat.Variance(xs, nil) < epsilon {
		return 0
	}
	_, slope := stat.LinearRegression(xs, ys, nil, false)
	return slope * nepersToDB
}
