// Package zkprogram implements the message-batch-validator program: a leaf
// method that proves one message valid, and a recursive merge method that
// folds a candidate proof into a batch proof whose output is the highest
// sequence number seen.
//
// Leaf proofs come from a configurable backend (BLS attestation or Groth16).
// Merge proofs always come from the attestation backend, since the merge
// step must verify other proofs and only the attestation backend can run
// that check. Verification dispatches on the proof's method to the backend
// and key that produced it.
package zkprogram

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/zkbatch/zkbatch/backend"
	"github.com/zkbatch/zkbatch/circuit"
	"github.com/zkbatch/zkbatch/log"
	"github.com/zkbatch/zkbatch/message"
	"github.com/zkbatch/zkbatch/metrics"
)

// Program and method names. They are part of every proof statement.
const (
	ProgramName        = "message-batch-validator"
	MethodValidate     = "validateOneMessage"
	MethodMergeMessage = "mergeMessage"
)

// Program errors.
var (
	ErrProofVerification = errors.New("zkprogram: proof verification failed")
	ErrSequenceMismatch  = errors.New("zkprogram: claimed sequence number mismatch")
	ErrProofConsumed     = errors.New("zkprogram: proof already consumed")
	ErrNotCompiled       = errors.New("zkprogram: program not compiled")
	ErrUnknownMethod     = errors.New("zkprogram: unknown method")
	ErrNilProof          = errors.New("zkprogram: nil proof")
	ErrNilBackend        = errors.New("zkprogram: nil backend")
)

// VerificationKey holds one verifying key per backend in use.
type VerificationKey struct {
	Leaf  *backend.VerifyingKey
	Merge *backend.VerifyingKey
}

// Program is the compiled message-batch-validator. It is safe for
// concurrent use after Compile.
type Program struct {
	leaf  backend.Backend
	merge backend.Backend
	log   *log.Logger

	mu sync.RWMutex
	vk *VerificationKey
}

// New creates a program over explicit leaf and merge backends.
func New(leaf, merge backend.Backend, logger *log.Logger) (*Program, error) {
	if leaf == nil || merge == nil {
		return nil, ErrNilBackend
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Program{leaf: leaf, merge: merge, log: logger.Module("zkprogram")}, nil
}

// Open creates a program whose attestation key derives from seed. Leaf
// proofs use leafKind; merges always use the attestation backend.
func Open(seed []byte, leafKind backend.Kind, logger *log.Logger) (*Program, error) {
	attest, err := backend.NewAttestBackend(seed)
	if err != nil {
		return nil, err
	}
	var leaf backend.Backend
	switch leafKind {
	case backend.KindAttest:
		leaf = attest
	case backend.KindGroth16:
		leaf = circuit.NewGroth16Backend()
	default:
		return nil, fmt.Errorf("%w: %v", backend.ErrUnknownKind, leafKind)
	}
	return New(leaf, attest, logger)
}

// Compile compiles both methods and returns the program's verification key.
// Repeated calls return the same key.
func (p *Program) Compile(ctx context.Context) (*VerificationKey, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.vk != nil {
		return p.vk, nil
	}
	leafVK, err := p.leaf.Compile(ctx, ProgramName)
	if err != nil {
		return nil, fmt.Errorf("zkprogram: compile %s: %w", MethodValidate, err)
	}
	mergeVK, err := p.merge.Compile(ctx, ProgramName)
	if err != nil {
		return nil, fmt.Errorf("zkprogram: compile %s: %w", MethodMergeMessage, err)
	}
	p.vk = &VerificationKey{Leaf: leafVK, Merge: mergeVK}
	p.log.Info("program compiled", "leaf", p.leaf.Kind(), "merge", p.merge.Kind())
	return p.vk, nil
}

// Key returns the compiled verification key.
func (p *Program) Key() (*VerificationKey, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.vk == nil {
		return nil, ErrNotCompiled
	}
	return p.vk, nil
}

// leafCircuit asserts that one message's details are valid.
type leafCircuit struct {
	details message.MessageDetails
}

func (leafCircuit) Method() string                    { return MethodValidate }
func (c leafCircuit) Details() message.MessageDetails { return c.details }
func (c leafCircuit) Check(uint64) error              { return message.Validate(c.details) }

// ValidateOneMessage proves that details are valid and returns a proof whose
// output is number. Invalid details produce an error wrapping
// message.ErrInvalidMessage and no proof.
func (p *Program) ValidateOneMessage(ctx context.Context, number uint64, details message.MessageDetails) (*SequenceProof, error) {
	if _, err := p.Key(); err != nil {
		return nil, err
	}
	proof, err := p.leaf.Prove(ctx, ProgramName, leafCircuit{details: details}, number)
	if err != nil {
		return nil, fmt.Errorf("zkprogram: message %d: %w", number, err)
	}
	return newSequenceProof(proof), nil
}

// mergeCircuit runs the merge checks. The public input is the claimed
// maximum.
type mergeCircuit struct {
	ctx       context.Context
	p         *Program
	vk        *VerificationKey
	batch     *backend.Proof
	candidate *backend.Proof
	newer     bool
}

func (mergeCircuit) Method() string { return MethodMergeMessage }

func (c *mergeCircuit) Check(claimed uint64) error {
	batchNum := c.batch.Statement.PublicInput
	candNum := c.candidate.Statement.PublicInput
	c.newer = candNum > batchNum

	if err := c.p.verify(c.ctx, c.batch, c.vk); err != nil {
		return fmt.Errorf("batch #%d: %w", batchNum, err)
	}
	// A stale or duplicate candidate is never inspected.
	if c.newer {
		if err := c.p.verify(c.ctx, c.candidate, c.vk); err != nil {
			return fmt.Errorf("candidate #%d: %w", candNum, err)
		}
	}

	updated := batchNum
	if c.newer {
		updated = candNum
	}
	if updated != claimed {
		return fmt.Errorf("%w: claimed %d, computed %d", ErrSequenceMismatch, claimed, updated)
	}
	return nil
}

// MergeMessage folds candidate into batch. The batch proof is always
// verified; the candidate is verified only when its number exceeds the
// batch's. The result's output is max(batch, candidate), which must equal
// claimedMax. Both operands are consumed, whether or not the merge
// succeeds.
func (p *Program) MergeMessage(ctx context.Context, claimedMax uint64, batch Aggregate, candidate Candidate) (*SequenceProof, error) {
	batchProof, err := batch.sp.take()
	if err != nil {
		return nil, fmt.Errorf("zkprogram: batch: %w", err)
	}
	candProof, err := candidate.sp.take()
	if err != nil {
		return nil, fmt.Errorf("zkprogram: candidate: %w", err)
	}
	vk, err := p.Key()
	if err != nil {
		return nil, err
	}

	timer := metrics.NewTimer(metrics.MergeTime)
	c := &mergeCircuit{ctx: ctx, p: p, vk: vk, batch: batchProof, candidate: candProof}
	proof, err := p.merge.Prove(ctx, ProgramName, c, claimedMax)
	timer.Stop()
	if err != nil {
		metrics.MergeFailures.Inc()
		return nil, fmt.Errorf("zkprogram: merge #%d <- #%d: %w",
			batchProof.Statement.PublicInput, candProof.Statement.PublicInput, err)
	}

	metrics.Merges.Inc()
	if !c.newer {
		metrics.DuplicatesSkipped.Inc()
		p.log.Debug("duplicate candidate skipped",
			"batch", batchProof.Statement.PublicInput, "candidate", candProof.Statement.PublicInput)
	}
	return newSequenceProof(proof), nil
}

// Verify checks a proof against vk.
func (p *Program) Verify(ctx context.Context, proof *SequenceProof, vk *VerificationKey) (bool, error) {
	if proof == nil {
		return false, ErrNilProof
	}
	if err := p.verify(ctx, proof.proof, vk); err != nil {
		if errors.Is(err, ErrProofVerification) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// verify dispatches on the proof's method and returns nil only for a
// proof that verifies. Every failure wraps ErrProofVerification except
// context cancellation.
func (p *Program) verify(ctx context.Context, proof *backend.Proof, vk *VerificationKey) error {
	if vk == nil {
		return fmt.Errorf("%w: %w", ErrProofVerification, backend.ErrNilKey)
	}
	var (
		b   backend.Backend
		key *backend.VerifyingKey
	)
	switch proof.Statement.Method {
	case MethodValidate:
		b, key = p.leaf, vk.Leaf
	case MethodMergeMessage:
		b, key = p.merge, vk.Merge
	default:
		return fmt.Errorf("%w: %w %q", ErrProofVerification, ErrUnknownMethod, proof.Statement.Method)
	}
	ok, err := b.Verify(ctx, proof, key)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("%w: %w", ErrProofVerification, err)
	}
	if !ok {
		return ErrProofVerification
	}
	return nil
}

// MethodSummary describes one compiled method.
type MethodSummary struct {
	Name        string
	Backend     backend.Kind
	Constraints int // 0 for natively checked methods
}

// Analysis summarises the compiled program.
type Analysis struct {
	Program string
	Methods []MethodSummary
}

func (a Analysis) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s:", a.Program)
	for _, m := range a.Methods {
		fmt.Fprintf(&sb, " %s(%s", m.Name, m.Backend)
		if m.Constraints > 0 {
			fmt.Fprintf(&sb, ", %d constraints", m.Constraints)
		}
		sb.WriteString(")")
	}
	return sb.String()
}

type constraintCounter interface {
	Constraints(program string) (int, error)
}

// Analyze reports the backend and, for circuit backends, the constraint
// count of each method.
func (p *Program) Analyze() (Analysis, error) {
	if _, err := p.Key(); err != nil {
		return Analysis{}, err
	}
	a := Analysis{Program: ProgramName}
	for _, m := range []struct {
		name string
		b    backend.Backend
	}{{MethodValidate, p.leaf}, {MethodMergeMessage, p.merge}} {
		s := MethodSummary{Name: m.name, Backend: m.b.Kind()}
		if cc, ok := m.b.(constraintCounter); ok {
			n, err := cc.Constraints(ProgramName)
			if err != nil {
				return Analysis{}, err
			}
			s.Constraints = n
		}
		a.Methods = append(a.Methods, s)
	}
	return a, nil
}
