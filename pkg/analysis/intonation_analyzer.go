// This file provides the two-note intonation calibration state machine.
package analysis

import (
	"math"
	"sync"
	"time"

	"gonum.org/v1/gonum/stat"

	"github.com/nzoschke/guitarlab/pkg/dsp"
)

// IntonationState tracks progress through the two-note calibration: play the
// open string, then the same string at the 12th fret.
type IntonationState int

const (
	// StateIdle waits for any stable pitch.
	StateIdle IntonationState = iota
	// StateOpenString holds the open-string pitch until it has dwelled.
	StateOpenString
	// StateWaitFor12thFret waits for a stable pitch near the octave.
	StateWaitFor12thFret
	// StateFrettedString holds the fretted pitch until it has dwelled.
	StateFrettedString
	// StateComplete is terminal until Reset.
	StateComplete
)

var intonationStateNames = map[IntonationState]string{
	StateIdle:            "idle",
	StateOpenString:      "open_string",
	StateWaitFor12thFret: "wait_for_12th_fret",
	StateFrettedString:   "fretted_string",
	StateComplete:        "complete",
}

func (s IntonationState) String() string {
	if name, ok := intonationStateNames[s]; ok {
		return name
	}
	return "unknown"
}

// MarshalText renders the state name, so JSON consumers see "open_string"
// rather than 1.
func (s IntonationState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

const (
	// pitchAccumCap bounds the rolling accumulator to the 100 most recent
	// admitted pitches.
	pitchAccumCap = 100
	// intonationMinConfidence admits a detected pitch into the accumulator.
	intonationMinConfidence = 0.7
	// stableStdDevHz and stableMinSamples define pitch stability.
	stableStdDevHz   = 2.0
	stableMinSamples = 10
	// stateDwell is how long a state must stay stable before advancing where
	// a dwell is required.
	stateDwell = 500 * time.Millisecond
	// octaveTolerance accepts the fretted note within ±10% of 2·f_open.
	octaveTolerance = 0.10
	// inTuneCents is the deviation considered in tune.
	inTuneCents = 5.0
)

// IntonationResult reports the calibration state and the measured deviation
// between the fretted note and the octave of the open string.
type IntonationResult struct {
	Result
	State                    IntonationState `json:"state"`
	OpenStringFrequency      float64         `json:"open_string_frequency"`
	FrettedStringFrequency   float64         `json:"fretted_string_frequency"`
	ExpectedFrettedFrequency float64         `json:"expected_fretted_frequency"`
	CentDeviation            float64         `json:"cent_deviation"`
	InTune                   bool            `json:"in_tune"`
}

// IntonationAnalyzer guides the player through the calibration and measures
// the cent deviation of the 12th fret against the doubled open-string pitch.
type IntonationAnalyzer struct {
	mu         sync.Mutex
	cfg        Config
	configured bool

	pitch *dsp.PitchDetector

	state       IntonationState
	stateStart  time.Time
	accum       []float64
	openFreq    float64
	frettedFreq float64
	cents       float64
	inTune      bool

	latest IntonationResult
	now    func() time.Time
}

// NewIntonationAnalyzer creates an unconfigured intonation analyzer.
func NewIntonationAnalyzer() *IntonationAnalyzer {
	return &IntonationAnalyzer{now: time.Now}
}

// Configure prepares the analyzer and stamps the Idle state.
func (a *IntonationAnalyzer) Configure(cfg Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	a.mu.Lock()
	defer a.mu.Unlock()

	a.cfg = cfg
	a.pitch = dsp.NewPitchDetector(cfg.SampleRate)
	a.accum = make([]float64, 0, pitchAccumCap)
	a.resetLocked()
	a.configured = true
	return nil
}

// ProcessFrame accumulates the frame's pitch, advances the state machine,
// and publishes the current result.
func (a *IntonationAnalyzer) ProcessFrame(frame []float32) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.configured {
		return
	}

	if est, ok := a.pitch.Detect(frame); ok && est.Confidence >= intonationMinConfidence {
		a.accumulate(est.Frequency)
	}

	stable, pitch := a.stablePitch()
	nowT := a.now()

	switch a.state {
	case StateIdle:
		if stable {
			a.openFreq = pitch
			a.advance(StateOpenString, nowT)
		}
	case StateOpenString:
		if stable && nowT.Sub(a.stateStart) >= stateDwell {
			a.advance(StateWaitFor12thFret, nowT)
		}
	case StateWaitFor12thFret:
		if stable && a.openFreq > 0 {
			target := 2 * a.openFreq
			if math.Abs(pitch-target)/target < octaveTolerance {
				a.frettedFreq = pitch
				a.advance(StateFrettedString, nowT)
			}
		}
	case StateFrettedString:
		if stable && nowT.Sub(a.stateStart) >= stateDwell {
			a.cents, a.inTune = centDeviation(a.openFreq, a.frettedFreq)
			a.advance(StateComplete, nowT)
		}
	case StateComplete:
		// Terminal until Reset.
	}

	a.publishLocked(nowT)
}

// LatestResult returns a snapshot of the most recently published result.
func (a *IntonationAnalyzer) LatestResult() IntonationResult {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.latest
}

// Reset returns the state machine to Idle and publishes a cleared result.
func (a *IntonationAnalyzer) Reset() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.resetLocked()
	a.publishLocked(a.stateStart)
}

func (a *IntonationAnalyzer) resetLocked() {
	a.state = StateIdle
	a.stateStart = a.now()
	a.accum = a.accum[:0]
	a.openFreq = 0
	a.frettedFreq = 0
	a.cents = 0
	a.inTune = false
}

// accumulate pushes freq, shifting the oldest sample out at capacity.
func (a *IntonationAnalyzer) accumulate(freq float64) {
	if len(a.accum) == pitchAccumCap {
		copy(a.accum, a.accum[1:])
		a.accum[len(a.accum)-1] = freq
		return
	}
	a.accum = append(a.accum, freq)
}

// stablePitch reports whether the accumulated pitches are stable (at least
// stableMinSamples with a standard deviation under stableStdDevHz) and, if
// so, their median.
func (a *IntonationAnalyzer) stablePitch() (bool, float64) {
	if len(a.accum) < stableMinSamples {
		return false, 0
	}
	if stat.StdDev(a.accum, nil) >= stableStdDevHz {
		return false, 0
	}
	return true, medianFloat64(a.accum)
}

func (a *IntonationAnalyzer) advance(next IntonationState, now time.Time) {
	a.state = next
	a.stateStart = now
	a.accum = a.accum[:0]
}

func (a *IntonationAnalyzer) publishLocked(now time.Time) {
	a.latest = IntonationResult{
		Result:                   Result{Timestamp: now, Valid: true},
		State:                    a.state,
		OpenStringFrequency:      a.openFreq,
		FrettedStringFrequency:   a.frettedFreq,
		ExpectedFrettedFrequency: 2 * a.openFreq,
		CentDeviation:            a.cents,
		InTune:                   a.inTune,
	}
}

// centDeviation converts the fretted measurement into cents against the
// doubled open-string pitch. Non-positive frequencies yield 0 and out of
// tune.
func centDeviation(openFreq, frettedFreq float64) (float64, bool) {
	if openFreq <= 0 || frettedFreq <= 0 {
		return 0, false
	}
	cents := 1200 * math.Log2(frettedFreq/(2*openFreq))
	return cents, math.Abs(cents) <= inTuneCents
}
