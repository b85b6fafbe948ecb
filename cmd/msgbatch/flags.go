package main

import (
	"errors"
	"io"

	"github.com/spf13/pflag"

	"github.com/zkbatch/zkbatch/config"
)

// options holds flags that are not part of config.Config.
type options struct {
	configPath   string
	messagesPath string
	random       int
	verbosity    int
	metricsAddr  string
	showVersion  bool
}

// cliFlags binds every command-line flag. Config overrides are applied only
// for flags the user set, so file values survive unset flags.
type cliFlags struct {
	fs   *pflag.FlagSet
	opts options

	strategy    string
	leafBackend string
	storeKind   string
	dataDir     string
	workers     int
	seed        string
	logFormat   string
}

func newFlags(stderr io.Writer) *cliFlags {
	f := &cliFlags{fs: pflag.NewFlagSet("msgbatch", pflag.ContinueOnError)}
	f.fs.SetOutput(stderr)
	defaults := config.DefaultConfig()

	f.fs.StringVar(&f.opts.configPath, "config", "", "YAML configuration file")
	f.fs.StringVar(&f.opts.messagesPath, "messages", "", "YAML file listing the messages to batch")
	f.fs.IntVar(&f.opts.random, "random", 0, "batch N random valid messages instead of a file")
	f.fs.IntVar(&f.opts.verbosity, "verbosity", 3, "log level 0-5 (overrides log.level)")
	f.fs.StringVar(&f.opts.metricsAddr, "metrics.addr", "", "serve Prometheus metrics on this address")
	f.fs.BoolVar(&f.opts.showVersion, "version", false, "print version and exit")

	f.fs.StringVar(&f.strategy, "strategy", defaults.Prover.Strategy, "aggregation strategy (sequential, tree)")
	f.fs.StringVar(&f.leafBackend, "leaf-backend", defaults.Prover.LeafBackend, "leaf proof backend (attest, groth16)")
	f.fs.StringVar(&f.storeKind, "store", defaults.Store.Kind, "admission state store (memory, leveldb, pebble)")
	f.fs.StringVar(&f.dataDir, "datadir", defaults.Store.DataDir, "data directory for persistent stores")
	f.fs.IntVar(&f.workers, "workers", defaults.Prover.Workers, "parallel leaf provers")
	f.fs.StringVar(&f.seed, "seed", defaults.Prover.Seed, "prover key seed")
	f.fs.StringVar(&f.logFormat, "log.format", defaults.Log.Format, "log format (text, json)")
	return f
}

func (f *cliFlags) parse(args []string) error {
	if err := f.fs.Parse(args); err != nil {
		return err
	}
	if f.opts.random < 0 {
		return errors.New("--random must not be negative")
	}
	if f.opts.random > 0 && f.opts.messagesPath != "" {
		return errors.New("--random and --messages are mutually exclusive")
	}
	return nil
}

// apply overlays explicitly set flags onto cfg.
func (f *cliFlags) apply(cfg *config.Config) {
	set := func(name string) bool { return f.fs.Changed(name) }
	if set("strategy") {
		cfg.Prover.Strategy = f.strategy
	}
	if set("leaf-backend") {
		cfg.Prover.LeafBackend = f.leafBackend
	}
	if set("store") {
		cfg.Store.Kind = f.storeKind
	}
	if set("datadir") {
		cfg.Store.DataDir = f.dataDir
	}
	if set("workers") {
		cfg.Prover.Workers = f.workers
	}
	if set("seed") {
		cfg.Prover.Seed = f.seed
	}
	if set("log.format") {
		cfg.Log.Format = f.logFormat
	}
	if set("metrics.addr") {
		cfg.Metrics.Enabled = true
		cfg.Metrics.Addr = f.opts.metricsAddr
	}
}
