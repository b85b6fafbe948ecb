// Package admission implements the stateful batch gate. A Validator holds
// the highest admitted message number and replaces it only with the output
// of a newer, verified batch proof. A Host serialises transactions against
// one Validator.
package admission

import (
	"context"
	"errors"
	"fmt"

	"github.com/zkbatch/zkbatch/log"
	"github.com/zkbatch/zkbatch/metrics"
	"github.com/zkbatch/zkbatch/zkprogram"
)

// Validator errors.
var (
	ErrNotInitialized    = errors.New("admission: state not initialized")
	ErrProofVerification = errors.New("admission: proof verification failed")
	ErrNilProof          = errors.New("admission: nil proof")
)

// Verifier checks batch proofs.
type Verifier interface {
	Verify(ctx context.Context, proof *zkprogram.SequenceProof) (bool, error)
}

// ProgramVerifier verifies proofs with a compiled program and its key.
type ProgramVerifier struct {
	Program *zkprogram.Program
	Key     *zkprogram.VerificationKey
}

// Verify implements Verifier.
func (v ProgramVerifier) Verify(ctx context.Context, proof *zkprogram.SequenceProof) (bool, error) {
	return v.Program.Verify(ctx, proof, v.Key)
}

// Validator is the message batch validator state machine. It holds no
// locks; callers serialise access, as Host does.
type Validator struct {
	store    Store
	verifier Verifier
	log      *log.Logger
}

// NewValidator creates a Validator over store and verifier.
func NewValidator(store Store, verifier Verifier, logger *log.Logger) *Validator {
	if logger == nil {
		logger = log.Default()
	}
	return &Validator{store: store, verifier: verifier, log: logger.Module("admission")}
}

// InitState sets the highest message number to 0.
func (v *Validator) InitState(ctx context.Context) error {
	if err := v.store.Store(ctx, 0); err != nil {
		return err
	}
	metrics.HighestMessageNumber.Set(0)
	v.log.Info("state initialized")
	return nil
}

// Initialized reports whether InitState has run against the store.
func (v *Validator) Initialized(ctx context.Context) (bool, error) {
	_, ok, err := v.store.Load(ctx)
	return ok, err
}

// HighestMessageNumber returns the stored state.
func (v *Validator) HighestMessageNumber(ctx context.Context) (uint64, error) {
	n, ok, err := v.store.Load(ctx)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, ErrNotInitialized
	}
	return n, nil
}

// Update admits proof if its output exceeds the stored state. Only such a
// proof is verified; an older or equal one leaves the state as it is and
// is never inspected. A verification failure returns ErrProofVerification
// and writes nothing. Update returns the state after the call.
func (v *Validator) Update(ctx context.Context, proof *zkprogram.SequenceProof) (uint64, error) {
	if proof == nil {
		return 0, ErrNilProof
	}
	current, err := v.HighestMessageNumber(ctx)
	if err != nil {
		return 0, err
	}
	candidate := proof.SequenceNumber()
	isNotDuplicate := candidate > current

	if isNotDuplicate {
		ok, err := v.verifier.Verify(ctx, proof)
		if err != nil {
			err = fmt.Errorf("%w: %w", ErrProofVerification, err)
		} else if !ok {
			err = ErrProofVerification
		}
		if err != nil {
			metrics.AdmissionRejected.Inc()
			v.log.Warn("batch rejected", "candidate", candidate, "current", current, "err", err)
			return current, err
		}
	}

	next := current
	if isNotDuplicate {
		next = candidate
	}
	if err := v.store.Store(ctx, next); err != nil {
		return current, err
	}
	metrics.AdmissionUpdates.Inc()
	metrics.HighestMessageNumber.Set(int64(next))
	v.log.Info("batch processed", "candidate", candidate, "before", current, "after", next)
	return next, nil
}
