// CLI for live guitar diagnostics: fret buzz, intonation, and string health.
package main

import (
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/nzoschke/guitarlab/pkg/analysis"
	"github.com/nzoschke/guitarlab/pkg/capture"
	"github.com/nzoschke/guitarlab/pkg/ring"
	"github.com/nzoschke/guitarlab/pkg/server"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "app",
	Short: "Live guitar diagnostics",
}

var listenCmd = &cobra.Command{
	Use:   "listen",
	Short: "Capture the default input device and log diagnostics",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := LoadConfig(configPath)
		if err != nil {
			return err
		}
		return runLive(cfg, false)
	},
}

var analyzeCmd = &cobra.Command{
	Use:   "analyze <file.mp3>",
	Short: "Run the diagnostic pipeline over an audio file and print JSON",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := LoadConfig(configPath)
		if err != nil {
			return err
		}
		return runAnalyze(cfg, args[0])
	},
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Capture live audio and publish results over HTTP",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := LoadConfig(configPath)
		if err != nil {
			return err
		}
		return runLive(cfg, true)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "YAML config file")
	rootCmd.AddCommand(listenCmd)
	rootCmd.AddCommand(analyzeCmd)
	rootCmd.AddCommand(serveCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// buildEngine assembles the ring, engine, and the three analyzers.
func buildEngine(cfg Config) (*ring.Ring, *analysis.Engine) {
	r := ring.New(cfg.RingCapacity)
	engine := analysis.NewEngine(r, analysis.Config{SampleRate: cfg.SampleRate, FrameSize: cfg.FrameSize})
	engine.Register(analysis.NewFretBuzzAnalyzer())
	engine.Register(analysis.NewIntonationAnalyzer())
	engine.Register(analysis.NewStringHealthAnalyzer())
	return r, engine
}

// runLive captures the default input device until interrupted, logging a
// status line each second and, when serve is set, publishing results over
// HTTP as well.
func runLive(cfg Config, serve bool) error {
	r, engine := buildEngine(cfg)

	mic, err := capture.Open(r, cfg.SampleRate, cfg.BlockSize)
	if err != nil {
		return err
	}
	defer mic.Close()

	if !engine.Start() {
		return fmt.Errorf("engine already running")
	}
	defer engine.Stop()

	if err := mic.Start(); err != nil {
		return err
	}
	defer mic.Stop()

	serveErr := make(chan error, 1)
	if serve {
		srv := server.New(engine, mic)
		go func() { serveErr <- srv.Start(cfg.Addr) }()
		log.Info("serving results", "addr", cfg.Addr)
	}

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)

	log.Info("listening", "sample_rate", cfg.SampleRate, "frame_size", cfg.FrameSize)
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-sig:
			log.Info("interrupted, shutting down", "dropped_blocks", mic.Dropped())
			return nil
		case err := <-serveErr:
			return err
		case <-ticker.C:
			logStatus(engine, mic)
		}
	}
}

// logStatus reports the latest verdicts from each analyzer.
func logStatus(engine *analysis.Engine, mic *capture.Capture) {
	if buzz, ok := analysis.Get[*analysis.FretBuzzAnalyzer](engine); ok {
		r := buzz.LatestResult()
		if r.Valid {
			log.Info("fret buzz", "score", fmt.Sprintf("%.2f", r.BuzzScore), "onset", r.OnsetDetected)
		}
	}
	if intonation, ok := analysis.Get[*analysis.IntonationAnalyzer](engine); ok {
		r := intonation.LatestResult()
		if r.Valid {
			log.Info("intonation", "state", r.State, "cents", fmt.Sprintf("%.1f", r.CentDeviation))
		}
	}
	if health, ok := analysis.Get[*analysis.StringHealthAnalyzer](engine); ok {
		r := health.LatestResult()
		if r.Valid {
			log.Info("string health", "score", fmt.Sprintf("%.2f", r.HealthScore), "decay", fmt.Sprintf("%.1f", r.DecayRate))
		}
	}
	log.Info("input", "peak", fmt.Sprintf("%.3f", mic.Peak()), "dropped", mic.Dropped())
}

// runAnalyze pushes a file through the same ring-and-engine pipeline at
// faster than real time and prints the final results.
func runAnalyze(cfg Config, path string) error {
	samples, sampleRate, err := analysis.LoadAudioMono(path)
	if err != nil {
		return err
	}
	log.Info("loaded", "file", path, "samples", len(samples), "sample_rate", sampleRate)

	r := ring.New(cfg.RingCapacity)
	engine := analysis.NewEngine(r, analysis.Config{SampleRate: float64(sampleRate), FrameSize: cfg.FrameSize})
	buzz := analysis.NewFretBuzzAnalyzer()
	intonation := analysis.NewIntonationAnalyzer()
	health := analysis.NewStringHealthAnalyzer()
	engine.Register(buzz)
	engine.Register(intonation)
	engine.Register(health)

	if !engine.Start() {
		return fmt.Errorf("engine already running")
	}

	for offset := 0; offset < len(samples); {
		end := min(offset+cfg.BlockSize, len(samples))
		if r.Write(samples[offset:end]) {
			offset = end
			continue
		}
		time.Sleep(time.Millisecond)
	}

	// Let the worker drain what remains, then stop.
	for r.Len() >= cfg.FrameSize {
		time.Sleep(time.Millisecond)
	}
	engine.Stop()

	out := server.Results{}
	fb := buzz.LatestResult()
	in := intonation.LatestResult()
	sh := health.LatestResult()
	out.FretBuzz = &fb
	out.Intonation = &in
	out.StringHealth = &sh

	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal results: %w", err)
	}
	fmt.Println(string(data))
	return nil
}
