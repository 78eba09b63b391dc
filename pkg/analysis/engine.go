package analysis

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"

	"github.com/nzoschke/guitarlab/pkg/ring"
)

// pollInterval is how long the worker sleeps when the ring holds less than a
// full frame. At 2048 samples / 48 kHz a frame spans ~43 ms, so a 1 ms poll
// never falls behind.
const pollInterval = time.Millisecond

// Engine drives the worker context: it pulls fixed-size frames from the
// sample ring and dispatches each frame to every registered analyzer in
// registration order. Analyzers are never invoked concurrently with each
// other.
type Engine struct {
	ring      *ring.Ring
	cfg       Config
	analyzers []Analyzer
	frame     []float32

	running atomic.Bool
	wg      sync.WaitGroup
}

// NewEngine creates an engine reading frames of cfg.FrameSize from r. The
// engine is not running until Start.
func NewEngine(r *ring.Ring, cfg Config) *Engine {
	size := cfg.FrameSize
	if size <= 0 {
		size = analysisFFTSize
	}
	return &Engine{
		ring:  r,
		cfg:   cfg,
		frame: make([]float32, size),
	}
}

// Register configures a and appends it to the dispatch list. A nil analyzer
// is ignored, as is one whose Configure rejects the engine config.
// Registration is refused once the engine has started.
func (e *Engine) Register(a Analyzer) {
	if a == nil {
		return
	}
	if e.running.Load() {
		log.Warn("analyzer registration refused while engine is running", "analyzer", fmt.Sprintf("%T", a))
		return
	}
	if err := a.Configure(e.cfg); err != nil {
		log.Error("analyzer rejected config", "analyzer", fmt.Sprintf("%T", a), "err", err)
		return
	}
	e.analyzers = append(e.analyzers, a)
}

// Start spawns the single worker goroutine. It returns false without effect
// if the engine is already running.
func (e *Engine) Start() bool {
	if !e.running.CompareAndSwap(false, true) {
		return false
	}
	e.wg.Add(1)
	go e.run()
	return true
}

// Stop signals the worker and waits for it to exit. Idempotent.
func (e *Engine) Stop() {
	if e.running.CompareAndSwap(true, false) {
		e.wg.Wait()
	}
}

// IsRunning reports whether the worker is active.
func (e *Engine) IsRunning() bool {
	return e.running.Load()
}

// Reset calls Reset on every registered analyzer. Safe while running;
// each analyzer resets atomically with respect to its own frame processing.
func (e *Engine) Reset() {
	for _, a := range e.analyzers {
		a.Reset()
	}
}

// Get returns the first registered analyzer of type T, for consumers that
// want a typed handle to read results from.
func Get[T Analyzer](e *Engine) (T, bool) {
	for _, a := range e.analyzers {
		if typed, ok := a.(T); ok {
			return typed, true
		}
	}
	var zero T
	return zero, false
}

func (e *Engine) run() {
	defer e.wg.Done()
	for e.running.Load() {
		if e.ring.Len() < len(e.frame) {
			time.Sleep(pollInterval)
			continue
		}
		e.ring.Read(e.frame)
		for _, a := range e.analyzers {
			e.process(a)
		}
	}
}

// process contains an analyzer fault to the current frame: a panic is logged
// and the analyzer stays registered.
func (e *Engine) process(a Analyzer) {
	defer func() {
		if r := recover(); r != nil {
			log.Error("analyzer panicked, skipping frame", "analyzer", fmt.Sprintf("%T", a), "panic", r)
		}
	}()
	a.ProcessFrame(e.frame)
}
