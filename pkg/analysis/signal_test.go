package analysis

import (
	"math"
	"time"
)

// Test signal generators shared by the analyzer tests. All assume the
// deployment defaults: 48 kHz, 2048-sample frames.

const (
	testSampleRate = 48000.0
	testFrameSize  = 2048
)

func testConfig() Config {
	return Config{SampleRate: testSampleRate, FrameSize: testFrameSize}
}

// sineFrames renders n contiguous frames of a pure sine with phase carried
// across frame boundaries.
func sineFrames(freq float64, n int) [][]float32 {
	frames := make([][]float32, n)
	for f := range frames {
		frame := make([]float32, testFrameSize)
		for i := range frame {
			t := float64(f*testFrameSize+i) / testSampleRate
			frame[i] = float32(math.Sin(2 * math.Pi * freq * t))
		}
		frames[f] = frame
	}
	return frames
}

// harmonicFrames renders n frames of sum over k=1..partials of (1/k)·sin(2π·k·f0·t),
// normalized to peak amplitude, optionally scaled by exp(-decay·t).
func harmonicFrames(f0 float64, partials, n int, decay float64) [][]float32 {
	frames := make([][]float32, n)
	var peak float64
	raw := make([][]float64, n)
	for f := range frames {
		vals := make([]float64, testFrameSize)
		for i := range vals {
			t := float64(f*testFrameSize+i) / testSampleRate
			var v float64
			for k := 1; k <= partials; k++ {
				v += math.Sin(2*math.Pi*float64(k)*f0*t) / float64(k)
			}
			if decay != 0 {
				v *= math.Exp(-decay * t)
			}
			vals[i] = v
			if a := math.Abs(v); a > peak {
				peak = a
			}
		}
		raw[f] = vals
	}
	for f := range frames {
		frame := make([]float32, testFrameSize)
		for i, v := range raw[f] {
			frame[i] = float32(v / peak)
		}
		frames[f] = frame
	}
	return frames
}

func silentFrame() []float32 {
	return make([]float32, testFrameSize)
}

// fakeClock advances a fixed step per call, so dwell and decay timing can be
// driven deterministically at test speed.
type fakeClock struct {
	t    time.Time
	step time.Duration
}

func newFakeClock(step time.Duration) *fakeClock {
	return &fakeClock{t: time.Unix(1700000000, 0), step: step}
}

func (c *fakeClock) now() time.Time {
	c.t = c.t.Add(c.step)
	return c.t
}

// frameDuration is the wall time one frame spans at the test rate.
var frameDuration = computeFrameDuration()

func computeFrameDuration() time.Duration {
	frameSize := float64(testFrameSize)
	return time.Duration(frameSize / testSampleRate * float64(time.Second))
}
