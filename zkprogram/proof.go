package zkprogram

import (
	"fmt"
	"sync/atomic"

	"github.com/zkbatch/zkbatch/backend"
)

// SequenceProof is a proof whose public output is a message sequence
// number. A leaf proof attests that one message was valid; a merged proof
// attests that every contributing message was valid or a verified
// duplicate and that the output is the highest number among them.
//
// A SequenceProof has a single owner. Passing it to MergeMessage consumes
// it; a consumed proof cannot be merged again.
type SequenceProof struct {
	proof    *backend.Proof
	consumed atomic.Bool
}

func newSequenceProof(p *backend.Proof) *SequenceProof {
	return &SequenceProof{proof: p}
}

// SequenceNumber returns the proof's public output.
func (p *SequenceProof) SequenceNumber() uint64 { return p.proof.Statement.PublicInput }

// Method returns the program method that produced the proof.
func (p *SequenceProof) Method() string { return p.proof.Statement.Method }

// Kind returns the backend that produced the proof.
func (p *SequenceProof) Kind() backend.Kind { return p.proof.Kind }

// Consumed reports whether the proof has been merged.
func (p *SequenceProof) Consumed() bool { return p.consumed.Load() }

func (p *SequenceProof) String() string {
	return fmt.Sprintf("SequenceProof{%s/%s #%d}", p.proof.Kind, p.Method(), p.SequenceNumber())
}

// take marks the proof consumed and returns its backend proof.
func (p *SequenceProof) take() (*backend.Proof, error) {
	if p == nil {
		return nil, ErrNilProof
	}
	if !p.consumed.CompareAndSwap(false, true) {
		return nil, fmt.Errorf("%w: %v", ErrProofConsumed, p)
	}
	return p.proof, nil
}

// Aggregate is the running batch operand of MergeMessage.
type Aggregate struct{ sp *SequenceProof }

// Candidate is the new-message operand of MergeMessage.
type Candidate struct{ sp *SequenceProof }

// AsAggregate hands p to MergeMessage as the batch operand.
func AsAggregate(p *SequenceProof) Aggregate { return Aggregate{sp: p} }

// AsCandidate hands p to MergeMessage as the candidate operand.
func AsCandidate(p *SequenceProof) Candidate { return Candidate{sp: p} }

// SequenceNumber returns the operand's public output, or 0 for a zero
// operand.
func (a Aggregate) SequenceNumber() uint64 {
	if a.sp == nil {
		return 0
	}
	return a.sp.SequenceNumber()
}

// SequenceNumber returns the operand's public output, or 0 for a zero
// operand.
func (c Candidate) SequenceNumber() uint64 {
	if c.sp == nil {
		return 0
	}
	return c.sp.SequenceNumber()
}
