// Package aggregator drives a batch: it proves one leaf per message in
// parallel, drops messages that fail the validity predicate, and folds the
// surviving leaves into a single batch proof using a configurable strategy.
package aggregator

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/zkbatch/zkbatch/log"
	"github.com/zkbatch/zkbatch/message"
	"github.com/zkbatch/zkbatch/metrics"
	"github.com/zkbatch/zkbatch/zkprogram"
)

// Aggregator errors.
var (
	ErrNoLeaves        = errors.New("aggregator: no valid messages to aggregate")
	ErrUnknownStrategy = errors.New("aggregator: unknown strategy")
)

// Strategy defines how leaf proofs are combined.
type Strategy uint8

const (
	// Sequential folds leaves left to right into one running aggregate.
	Sequential Strategy = iota

	// Tree pairs adjacent proofs level by level, merging each level in
	// parallel.
	Tree
)

// String returns the strategy name.
func (s Strategy) String() string {
	switch s {
	case Sequential:
		return "sequential"
	case Tree:
		return "tree"
	default:
		return "unknown"
	}
}

// ParseStrategy maps a strategy name to its Strategy.
func ParseStrategy(s string) (Strategy, error) {
	switch strings.ToLower(s) {
	case "sequential", "":
		return Sequential, nil
	case "tree":
		return Tree, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownStrategy, s)
}

// Config configures an Aggregator.
type Config struct {
	Strategy Strategy
	Workers  int // concurrent leaf provers and tree merges
}

// DefaultConfig returns a sequential aggregator with one worker per CPU.
func DefaultConfig() Config {
	return Config{Strategy: Sequential, Workers: runtime.NumCPU()}
}

// Prover is the subset of zkprogram.Program the aggregator drives.
type Prover interface {
	ValidateOneMessage(ctx context.Context, number uint64, details message.MessageDetails) (*zkprogram.SequenceProof, error)
	MergeMessage(ctx context.Context, claimedMax uint64, batch zkprogram.Aggregate, candidate zkprogram.Candidate) (*zkprogram.SequenceProof, error)
}

// Dropped records a message excluded from the batch.
type Dropped struct {
	Message message.Message
	Err     error
}

// Result is the outcome of Run.
type Result struct {
	Proof   *zkprogram.SequenceProof
	Dropped []Dropped
	Leaves  int
	Merges  int
}

// Aggregator proves and folds message batches. It holds no per-batch state
// and may run several batches concurrently.
type Aggregator struct {
	cfg    Config
	prover Prover
	log    *log.Logger
}

// New creates an Aggregator.
func New(cfg Config, prover Prover, logger *log.Logger) *Aggregator {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Aggregator{cfg: cfg, prover: prover, log: logger.Module("aggregator")}
}

// Strategy returns the configured strategy.
func (a *Aggregator) Strategy() Strategy { return a.cfg.Strategy }

// ProveLeaves proves every message in parallel. Leaves come back in message
// order. Messages that fail the validity predicate are logged and returned
// as Dropped; any other error aborts the whole call.
func (a *Aggregator) ProveLeaves(ctx context.Context, msgs []message.Message) ([]*zkprogram.SequenceProof, []Dropped, error) {
	proofs := make([]*zkprogram.SequenceProof, len(msgs))
	rejected := make([]error, len(msgs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(a.cfg.Workers)
	for i, m := range msgs {
		g.Go(func() error {
			timer := metrics.NewTimer(metrics.LeafProveTime)
			sp, err := a.prover.ValidateOneMessage(gctx, m.Number, m.Details)
			timer.Stop()
			switch {
			case errors.Is(err, message.ErrInvalidMessage):
				rejected[i] = err
			case err != nil:
				return fmt.Errorf("aggregator: message %d: %w", m.Number, err)
			default:
				proofs[i] = sp
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}

	leaves := make([]*zkprogram.SequenceProof, 0, len(msgs))
	var dropped []Dropped
	for i, m := range msgs {
		if rejected[i] != nil {
			a.logDropped(m, rejected[i])
			dropped = append(dropped, Dropped{Message: m, Err: rejected[i]})
			metrics.LeavesDropped.Inc()
			continue
		}
		leaves = append(leaves, proofs[i])
		metrics.LeavesProved.Inc()
	}
	return leaves, dropped, nil
}

func (a *Aggregator) logDropped(m message.Message, err error) {
	var ie *message.InvalidMessageError
	if errors.As(err, &ie) {
		a.log.Warn("message dropped", "number", m.Number, "vector", ie.Vector.String())
		return
	}
	a.log.Warn("message dropped", "number", m.Number, "err", err)
}

// merge folds candidate into acc, claiming the larger of the two numbers.
func (a *Aggregator) merge(ctx context.Context, acc, candidate *zkprogram.SequenceProof) (*zkprogram.SequenceProof, error) {
	claim := max(acc.SequenceNumber(), candidate.SequenceNumber())
	return a.prover.MergeMessage(ctx, claim, zkprogram.AsAggregate(acc), zkprogram.AsCandidate(candidate))
}

// Fold merges leaves left to right. The first leaf is the initial
// aggregate. Leaves are consumed.
func (a *Aggregator) Fold(ctx context.Context, leaves []*zkprogram.SequenceProof) (*zkprogram.SequenceProof, error) {
	if len(leaves) == 0 {
		return nil, ErrNoLeaves
	}
	acc := leaves[0]
	for _, leaf := range leaves[1:] {
		next, err := a.merge(ctx, acc, leaf)
		if err != nil {
			return nil, err
		}
		a.log.Debug("merged", "candidate", leaf.SequenceNumber(), "batch", next.SequenceNumber())
		acc = next
	}
	return acc, nil
}

// Reduce merges leaves as a balanced binary tree. Each level's pairs merge
// concurrently; an unpaired last proof moves up unchanged. Leaves are
// consumed.
func (a *Aggregator) Reduce(ctx context.Context, leaves []*zkprogram.SequenceProof) (*zkprogram.SequenceProof, error) {
	if len(leaves) == 0 {
		return nil, ErrNoLeaves
	}
	level := leaves
	for depth := 0; len(level) > 1; depth++ {
		next := make([]*zkprogram.SequenceProof, (len(level)+1)/2)
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(a.cfg.Workers)
		for i := 0; i+1 < len(level); i += 2 {
			g.Go(func() error {
				sp, err := a.merge(gctx, level[i], level[i+1])
				if err != nil {
					return err
				}
				next[i/2] = sp
				return nil
			})
		}
		if len(level)%2 == 1 {
			next[len(next)-1] = level[len(level)-1]
		}
		if err := g.Wait(); err != nil {
			return nil, err
		}
		a.log.Debug("tree level merged", "depth", depth, "proofs", len(next))
		level = next
	}
	return level[0], nil
}

// Aggregate combines leaves using the configured strategy.
func (a *Aggregator) Aggregate(ctx context.Context, leaves []*zkprogram.SequenceProof) (*zkprogram.SequenceProof, error) {
	switch a.cfg.Strategy {
	case Sequential:
		return a.Fold(ctx, leaves)
	case Tree:
		return a.Reduce(ctx, leaves)
	default:
		return nil, fmt.Errorf("%w: %v", ErrUnknownStrategy, a.cfg.Strategy)
	}
}

// Run proves and aggregates one batch of messages.
func (a *Aggregator) Run(ctx context.Context, msgs []message.Message) (*Result, error) {
	leaves, dropped, err := a.ProveLeaves(ctx, msgs)
	if err != nil {
		return nil, err
	}
	if len(leaves) == 0 {
		return nil, ErrNoLeaves
	}
	proof, err := a.Aggregate(ctx, leaves)
	if err != nil {
		return nil, err
	}
	res := &Result{
		Proof:   proof,
		Dropped: dropped,
		Leaves:  len(leaves),
		Merges:  len(leaves) - 1,
	}
	a.log.Info("batch aggregated",
		"strategy", a.cfg.Strategy.String(),
		"messages", len(msgs),
		"leaves", res.Leaves,
		"dropped", len(dropped),
		"highest", proof.SequenceNumber())
	return res, nil
}
