package server

import (
	"encoding/json"
	"math"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nzoschke/guitarlab/pkg/analysis"
	"github.com/nzoschke/guitarlab/pkg/ring"
)

type fakePeaks struct{}

func (fakePeaks) Peak() float64   { return 0.25 }
func (fakePeaks) Dropped() uint64 { return 3 }

func newTestServer(t *testing.T) (*Server, *analysis.Engine) {
	t.Helper()

	r := ring.New(1 << 14)
	engine := analysis.NewEngine(r, analysis.Config{SampleRate: 48000, FrameSize: 2048})
	engine.Register(analysis.NewFretBuzzAnalyzer())
	engine.Register(analysis.NewIntonationAnalyzer())
	engine.Register(analysis.NewStringHealthAnalyzer())

	return New(engine, fakePeaks{}), engine
}

// feedFrames drives the analyzers directly, standing in for the engine
// worker.
func feedFrames(engine *analysis.Engine, n int) {
	frame := make([]float32, 2048)
	for i := range frame {
		frame[i] = float32(math.Sin(2 * math.Pi * 110 * float64(i) / 48000))
	}
	buzz, _ := analysis.Get[*analysis.FretBuzzAnalyzer](engine)
	intonation, _ := analysis.Get[*analysis.IntonationAnalyzer](engine)
	health, _ := analysis.Get[*analysis.StringHealthAnalyzer](engine)
	for i := 0; i < n; i++ {
		buzz.ProcessFrame(frame)
		intonation.ProcessFrame(frame)
		health.ProcessFrame(frame)
	}
}

func TestResults(t *testing.T) {
	s, engine := newTestServer(t)
	feedFrames(engine, 12)

	req := httptest.NewRequest(http.MethodGet, "/api/results", nil)
	rec := httptest.NewRecorder()
	s.Echo().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var out Results
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))

	require.NotNil(t, out.FretBuzz)
	require.NotNil(t, out.Intonation)
	require.NotNil(t, out.StringHealth)
	assert.True(t, out.FretBuzz.Valid)
	assert.GreaterOrEqual(t, out.FretBuzz.BuzzScore, 0.0)
	assert.LessOrEqual(t, out.FretBuzz.BuzzScore, 1.0)
	assert.Equal(t, 0.25, out.InputPeak)
	assert.Equal(t, uint64(3), out.DroppedBlocks)
}

func TestResultsStateMarshalsAsText(t *testing.T) {
	s, engine := newTestServer(t)
	feedFrames(engine, 1)

	req := httptest.NewRequest(http.MethodGet, "/api/results", nil)
	rec := httptest.NewRecorder()
	s.Echo().ServeHTTP(rec, req)

	var raw map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &raw))

	var intonation map[string]any
	require.NoError(t, json.Unmarshal(raw["intonation"], &intonation))
	assert.Equal(t, "idle", intonation["state"])
}

func TestReset(t *testing.T) {
	s, engine := newTestServer(t)
	feedFrames(engine, 12)

	req := httptest.NewRequest(http.MethodPost, "/api/reset", nil)
	rec := httptest.NewRecorder()
	s.Echo().ServeHTTP(rec, req)
	require.Equal(t, http.StatusNoContent, rec.Code)

	health, _ := analysis.Get[*analysis.StringHealthAnalyzer](engine)
	assert.Zero(t, health.LatestResult().FundamentalFrequency)
}

func TestHealth(t *testing.T) {
	s, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
	rec := httptest.NewRecorder()
	s.Echo().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"running": false}`, rec.Body.String())
}
