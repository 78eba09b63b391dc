package analysis

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestFretBuzz(t *testing.T) *FretBuzzAnalyzer {
	t.Helper()
	a := NewFretBuzzAnalyzer()
	require.NoError(t, a.Configure(testConfig()))
	return a
}

func assertBuzzScoresInRange(t *testing.T, r FretBuzzResult) {
	t.Helper()
	assert.GreaterOrEqual(t, r.BuzzScore, 0.0)
	assert.LessOrEqual(t, r.BuzzScore, 1.0)
	assert.GreaterOrEqual(t, r.TransientScore, 0.0)
	assert.LessOrEqual(t, r.TransientScore, 1.0)
	assert.GreaterOrEqual(t, r.HighFreqEnergyScore, 0.0)
	assert.LessOrEqual(t, r.HighFreqEnergyScore, 1.0)
	assert.GreaterOrEqual(t, r.InharmonicityScore, 0.0)
	assert.LessOrEqual(t, r.InharmonicityScore, 1.0)
}

func TestFretBuzzCleanSignal(t *testing.T) {
	a := newTestFretBuzz(t)

	for _, frame := range harmonicFrames(82.41, 5, 5, 0) {
		a.ProcessFrame(frame)
	}

	r := a.LatestResult()
	require.True(t, r.Valid)
	assertBuzzScoresInRange(t, r)

	// A clean low-E harmonic stack has essentially no 4–8 kHz content.
	assert.LessOrEqual(t, r.HighFreqEnergyScore, 0.5)
}

func TestFretBuzzNoisyTransientOnset(t *testing.T) {
	a := newTestFretBuzz(t)

	a.ProcessFrame(silentFrame())
	first := a.LatestResult()
	require.True(t, first.Valid)
	assert.False(t, first.OnsetDetected, "silence carries no onset")

	// Clean harmonic frame with uniform noise: amplitude 0.3 over the first
	// 10% of samples, 0.2 over [10%, 50%).
	rng := rand.New(rand.NewSource(42))
	noisy := harmonicFrames(82.41, 5, 1, 0)[0]
	for i := range noisy {
		switch {
		case i < len(noisy)/10:
			noisy[i] += float32(0.3 * (2*rng.Float64() - 1))
		case i < len(noisy)/2:
			noisy[i] += float32(0.2 * (2*rng.Float64() - 1))
		}
	}
	a.ProcessFrame(noisy)

	r := a.LatestResult()
	require.True(t, r.Valid)
	assert.True(t, r.OnsetDetected)
	assertBuzzScoresInRange(t, r)
}

func TestFretBuzzNoOnsetOnFirstFrame(t *testing.T) {
	a := newTestFretBuzz(t)

	a.ProcessFrame(harmonicFrames(110, 5, 1, 0)[0])
	assert.False(t, a.LatestResult().OnsetDetected)
}

func TestFretBuzzSilence(t *testing.T) {
	a := newTestFretBuzz(t)

	a.ProcessFrame(silentFrame())
	a.ProcessFrame(silentFrame())

	r := a.LatestResult()
	require.True(t, r.Valid)
	assert.Zero(t, r.BuzzScore)
	assert.Zero(t, r.TransientScore)
	assert.Zero(t, r.HighFreqEnergyScore)
	assert.Zero(t, r.InharmonicityScore)
	assert.False(t, r.OnsetDetected)
}

func TestFretBuzzHighFrequencySine(t *testing.T) {
	a := newTestFretBuzz(t)

	for _, frame := range sineFrames(5000, 3) {
		a.ProcessFrame(frame)
	}

	r := a.LatestResult()
	require.True(t, r.Valid)
	assert.GreaterOrEqual(t, r.HighFreqEnergyScore, 0.9)
}

func TestFretBuzzUnconfigured(t *testing.T) {
	a := NewFretBuzzAnalyzer()

	a.ProcessFrame(silentFrame())
	assert.False(t, a.LatestResult().Valid, "nothing published before Configure")
}

func TestFretBuzzConfigureRejectsInvalid(t *testing.T) {
	a := NewFretBuzzAnalyzer()

	assert.Error(t, a.Configure(Config{SampleRate: 0, FrameSize: 2048}))
	assert.Error(t, a.Configure(Config{SampleRate: 48000, FrameSize: 0}))
}

func TestFretBuzzReset(t *testing.T) {
	a := newTestFretBuzz(t)

	for _, frame := range sineFrames(5000, 3) {
		a.ProcessFrame(frame)
	}
	require.NotZero(t, a.LatestResult().BuzzScore)

	a.Reset()
	r := a.LatestResult()
	assert.True(t, r.Valid)
	assert.Zero(t, r.BuzzScore)
	assert.Zero(t, r.TransientScore)
	assert.Zero(t, r.HighFreqEnergyScore)
	assert.Zero(t, r.InharmonicityScore)
	assert.False(t, r.OnsetDetected)

	// Reset twice is the same as once.
	a.Reset()
	second := a.LatestResult()
	second.Timestamp = r.Timestamp
	assert.Equal(t, r, second)
}
