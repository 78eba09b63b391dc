package main

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config holds the CLI settings. Every field has a working default, so the
// YAML file is optional.
type Config struct {
	SampleRate   float64 `yaml:"sample_rate"`   // capture rate in Hz
	FrameSize    int     `yaml:"frame_size"`    // samples per analysis frame
	RingCapacity int     `yaml:"ring_capacity"` // sample ring size
	BlockSize    int     `yaml:"block_size"`    // capture callback block size
	Addr         string  `yaml:"addr"`          // serve address
}

// DefaultConfig returns the deployment defaults: 48 kHz, 2048-sample frames,
// a ring holding about 1.4 s of audio.
func DefaultConfig() Config {
	return Config{
		SampleRate:   48000,
		FrameSize:    2048,
		RingCapacity: 1 << 16,
		BlockSize:    512,
		Addr:         ":8080",
	}
}

// LoadConfig reads a YAML config file over the defaults. An empty path
// returns the defaults unchanged.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config: %w", err)
	}

	if cfg.SampleRate <= 0 || cfg.FrameSize <= 0 || cfg.RingCapacity <= 0 || cfg.BlockSize <= 0 {
		return cfg, fmt.Errorf("config values must be positive: %+v", cfg)
	}
	return cfg, nil
}
