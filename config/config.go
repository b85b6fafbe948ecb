// Package config holds the configuration for a zkbatch run, loaded from a
// YAML file and overridden by command-line flags.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"runtime"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration for a batch run.
type Config struct {
	Prover  ProverConfig  `yaml:"prover"`
	Store   StoreConfig   `yaml:"store"`
	Log     LogConfig     `yaml:"log"`
	Metrics MetricsConfig `yaml:"metrics"`
}

// ProverConfig selects backends and aggregation.
type ProverConfig struct {
	// Seed derives the attestation key. Everyone sharing the seed shares
	// the verification key.
	Seed        string `yaml:"seed"`
	LeafBackend string `yaml:"leaf_backend"` // attest, groth16
	Workers     int    `yaml:"workers"`
	Strategy    string `yaml:"strategy"` // sequential, tree
}

// StoreConfig selects where the admission state lives.
type StoreConfig struct {
	Kind    string `yaml:"kind"` // memory, leveldb, pebble
	DataDir string `yaml:"datadir"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// MetricsConfig controls the Prometheus endpoint.
type MetricsConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Addr      string `yaml:"addr"`
	Namespace string `yaml:"namespace"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Prover: ProverConfig{
			Seed:        "zkbatch-dev-seed",
			LeafBackend: "attest",
			Workers:     runtime.NumCPU(),
			Strategy:    "sequential",
		},
		Store: StoreConfig{
			Kind:    "memory",
			DataDir: "zkbatch-data",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Metrics: MetricsConfig{
			Enabled:   false,
			Addr:      "127.0.0.1:9090",
			Namespace: "zkbatch",
		},
	}
}

// Validate checks configuration values for correctness.
func (c *Config) Validate() error {
	if c.Prover.Seed == "" {
		return errors.New("config: prover seed must not be empty")
	}
	switch c.Prover.LeafBackend {
	case "attest", "groth16":
	default:
		return fmt.Errorf("config: unknown leaf_backend %q", c.Prover.LeafBackend)
	}
	if c.Prover.Workers <= 0 {
		return fmt.Errorf("config: invalid workers: %d", c.Prover.Workers)
	}
	switch c.Prover.Strategy {
	case "sequential", "tree":
	default:
		return fmt.Errorf("config: unknown strategy %q", c.Prover.Strategy)
	}

	switch c.Store.Kind {
	case "memory":
	case "leveldb", "pebble":
		if c.Store.DataDir == "" {
			return fmt.Errorf("config: datadir must be set for %s store", c.Store.Kind)
		}
	default:
		return fmt.Errorf("config: unknown store kind %q", c.Store.Kind)
	}

	switch c.Log.Level {
	case "debug", "info", "warn", "error", "trace":
	default:
		return fmt.Errorf("config: unknown log level %q", c.Log.Level)
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		return fmt.Errorf("config: unknown log format %q", c.Log.Format)
	}

	if c.Metrics.Enabled && c.Metrics.Addr == "" {
		return errors.New("config: metrics addr must not be empty when metrics are enabled")
	}
	return nil
}

// Parse decodes YAML over the defaults. Unknown keys are rejected.
func Parse(data []byte) (*Config, error) {
	cfg := DefaultConfig()
	if len(data) == 0 {
		return cfg, nil
	}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("config: parse: %w", err)
	}
	return cfg, nil
}

// Load reads and parses the file at path. An empty path returns defaults.
func Load(path string) (*Config, error) {
	if path == "" {
		return DefaultConfig(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	return Parse(data)
}
