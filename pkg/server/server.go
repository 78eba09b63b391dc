// Package server provides the Echo API that publishes the latest analyzer
// results for a renderer polling at its own rate.
package server

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/nzoschke/guitarlab/pkg/analysis"
)

// PeakSource reports the capture side's informational readings. It is nil
// when results come from a file instead of a live device.
type PeakSource interface {
	Peak() float64
	Dropped() uint64
}

// Results is the JSON document served to renderers: one coherent snapshot
// per analyzer plus the capture readings.
type Results struct {
	FretBuzz     *analysis.FretBuzzResult     `json:"fret_buzz,omitempty"`
	Intonation   *analysis.IntonationResult   `json:"intonation,omitempty"`
	StringHealth *analysis.StringHealthResult `json:"string_health,omitempty"`

	InputPeak     float64 `json:"input_peak"`
	DroppedBlocks uint64  `json:"dropped_blocks"`
}

// Server exposes engine results over HTTP.
type Server struct {
	engine *analysis.Engine
	peaks  PeakSource
	echo   *echo.Echo
}

// New builds the HTTP server around a configured engine.
func New(engine *analysis.Engine, peaks PeakSource) *Server {
	s := &Server{engine: engine, peaks: peaks}

	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Recover())
	e.Use(middleware.CORS())

	e.GET("/api/health", s.health)
	e.GET("/api/results", s.results)
	e.POST("/api/reset", s.reset)

	s.echo = e
	return s
}

// Start serves on addr until Shutdown or a listener error.
func (s *Server) Start(addr string) error {
	return s.echo.Start(addr)
}

// Echo returns the underlying router, used by tests to serve requests
// directly.
func (s *Server) Echo() *echo.Echo {
	return s.echo
}

func (s *Server) health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]any{"running": s.engine.IsRunning()})
}

// results snapshots every registered analyzer. Each snapshot is taken
// atomically per analyzer; absent analyzers are omitted.
func (s *Server) results(c echo.Context) error {
	var out Results

	if a, ok := analysis.Get[*analysis.FretBuzzAnalyzer](s.engine); ok {
		r := a.LatestResult()
		out.FretBuzz = &r
	}
	if a, ok := analysis.Get[*analysis.IntonationAnalyzer](s.engine); ok {
		r := a.LatestResult()
		out.Intonation = &r
	}
	if a, ok := analysis.Get[*analysis.StringHealthAnalyzer](s.engine); ok {
		r := a.LatestResult()
		out.StringHealth = &r
	}

	if s.peaks != nil {
		out.InputPeak = s.peaks.Peak()
		out.DroppedBlocks = s.peaks.Dropped()
	}

	return c.JSON(http.StatusOK, out)
}

// reset restarts every analyzer, including the intonation calibration, so a
// renderer can offer a "measure again" control.
func (s *Server) reset(c echo.Context) error {
	s.engine.Reset()
	return c.NoContent(http.StatusNoContent)
}
