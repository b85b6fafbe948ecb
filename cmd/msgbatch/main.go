// Command msgbatch validates a batch of agent status messages, folds their
// proofs into one batch proof and submits it to the admission state.
//
// Usage:
//
//	msgbatch [flags]
//
// Flags:
//
//	--config        YAML configuration file
//	--messages      YAML file listing the messages (default: reference batch)
//	--random        Batch N random valid messages
//	--strategy      Aggregation strategy: sequential, tree
//	--leaf-backend  Leaf proof backend: attest, groth16
//	--store         State store: memory, leveldb, pebble
//	--datadir       Data directory for persistent stores
//	--verbosity     Log level 0-5 (default: 3)
//	--metrics.addr  Serve Prometheus metrics on this address
//	--version       Print version and exit
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand/v2"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"github.com/zkbatch/zkbatch/admission"
	"github.com/zkbatch/zkbatch/aggregator"
	"github.com/zkbatch/zkbatch/backend"
	"github.com/zkbatch/zkbatch/config"
	"github.com/zkbatch/zkbatch/log"
	"github.com/zkbatch/zkbatch/metrics"
	"github.com/zkbatch/zkbatch/zkprogram"
)

// Build-time version info, overridable with ldflags:
//
//	go build -ldflags "-X main.version=v0.2.0 -X main.commit=abc1234"
var (
	version = "v0.1.0-dev"
	commit  = "unknown"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

// run is the actual entry point, returning an exit code. It takes the CLI
// arguments without the program name so it can be tested in isolation.
func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	f := newFlags(stderr)
	if err := f.parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return 0
		}
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 2
	}
	if f.opts.showVersion {
		fmt.Fprintf(stdout, "msgbatch %s (commit %s)\n", version, commit)
		return 0
	}

	cfg, err := config.Load(f.opts.configPath)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 2
	}
	f.apply(cfg)
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(stderr, "Invalid configuration: %v\n", err)
		return 2
	}

	level := log.LevelFromString(cfg.Log.Level)
	if f.fs.Changed("verbosity") {
		level = log.VerbosityToLevel(f.opts.verbosity)
	}
	logger := log.NewWithFormat(stderr, level, cfg.Log.Format)
	log.SetDefault(logger)

	if cfg.Metrics.Enabled {
		srv := serveMetrics(cfg.Metrics, logger)
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				logger.Warn("metrics server shutdown", "err", err)
			}
		}()
	}

	if err := runBatch(ctx, cfg, f.opts, stdout, logger); err != nil {
		logger.Error("batch failed", "err", err)
		return 1
	}
	return 0
}

func serveMetrics(cfg config.MetricsConfig, logger *log.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler(metrics.DefaultRegistry, cfg.Namespace))
	srv := &http.Server{Addr: cfg.Addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server", "err", err)
		}
	}()
	logger.Info("metrics server started", "addr", cfg.Addr)
	return srv
}

// runBatch compiles the program, proves and aggregates the batch, and
// submits the result to the admission state.
func runBatch(ctx context.Context, cfg *config.Config, opts options, stdout io.Writer, logger *log.Logger) error {
	leafKind, err := backend.ParseKind(cfg.Prover.LeafBackend)
	if err != nil {
		return err
	}
	strategy, err := aggregator.ParseStrategy(cfg.Prover.Strategy)
	if err != nil {
		return err
	}

	prog, err := zkprogram.Open([]byte(cfg.Prover.Seed), leafKind, logger)
	if err != nil {
		return err
	}
	analysis, err := compile(ctx, prog, logger)
	if err != nil {
		return err
	}
	logger.Info("program summary", "summary", analysis.String())
	vk, err := prog.Key()
	if err != nil {
		return err
	}

	rng := rand.New(rand.NewPCG(uint64(time.Now().UnixNano()), 0))
	msgs, source, err := selectMessages(opts, rng)
	if err != nil {
		return err
	}
	logger.Info("messages loaded", "source", source, "count", len(msgs))

	agg := aggregator.New(aggregator.Config{Strategy: strategy, Workers: cfg.Prover.Workers}, prog, logger)
	res, err := agg.Run(ctx, msgs)
	if err != nil {
		return err
	}
	for _, d := range res.Dropped {
		fmt.Fprintf(stdout, "dropped invalid message number=%d\n", d.Message.Number)
	}

	ok, err := prog.Verify(ctx, res.Proof, vk)
	if err != nil {
		return err
	}
	if !ok {
		return zkprogram.ErrProofVerification
	}
	fmt.Fprintf(stdout, "batch proof verified: highest message number %d (%d leaves, %d merges)\n",
		res.Proof.SequenceNumber(), res.Leaves, res.Merges)

	return admit(ctx, cfg.Store, prog, vk, res.Proof, stdout, logger)
}

func compile(ctx context.Context, prog *zkprogram.Program, logger *log.Logger) (zkprogram.Analysis, error) {
	start := time.Now()
	if _, err := prog.Compile(ctx); err != nil {
		return zkprogram.Analysis{}, err
	}
	logger.Info("compiled", "elapsed", time.Since(start))
	return prog.Analyze()
}

// admit submits proof to the admission state, initialising it first if the
// store is empty.
func admit(ctx context.Context, cfg config.StoreConfig, prog *zkprogram.Program, vk *zkprogram.VerificationKey,
	proof *zkprogram.SequenceProof, stdout io.Writer, logger *log.Logger) error {
	store, err := admission.OpenStore(cfg.Kind, cfg.DataDir)
	if err != nil {
		return err
	}
	defer store.Close()

	validator := admission.NewValidator(store, admission.ProgramVerifier{Program: prog, Key: vk}, logger)
	host := admission.NewHost(validator, logger)

	initialized, err := validator.Initialized(ctx)
	if err != nil {
		return err
	}
	if !initialized {
		if _, err := host.InitState(ctx); err != nil {
			return err
		}
	}
	r, err := host.Submit(ctx, proof)
	if err != nil {
		return err
	}
	fmt.Fprintf(stdout, "admission: before=%d after=%d admitted=%v\n", r.Before, r.After, r.Admitted)
	return nil
}
