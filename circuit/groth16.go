package circuit

import (
	"bytes"
	"context"
	"fmt"
	"sync"

	"github.com/consensys/gnark-crypto/ecc"
	"github.com/consensys/gnark/backend/groth16"
	"github.com/consensys/gnark/constraint"
	"github.com/consensys/gnark/frontend"
	"github.com/consensys/gnark/frontend/cs/r1cs"

	"github.com/zkbatch/zkbatch/backend"
	"github.com/zkbatch/zkbatch/message"
)

// Witnessed is a backend.Circuit that carries message details as its
// private input. Groth16Backend can only prove circuits of this shape.
type Witnessed interface {
	backend.Circuit
	Details() message.MessageDetails
}

type groth16Program struct {
	ccs     constraint.ConstraintSystem
	pk      groth16.ProvingKey
	vk      groth16.VerifyingKey
	vkBytes []byte
}

// Groth16Backend implements backend.Backend for MessageCircuit. Its proofs
// are not recursively verifiable, so it serves leaf proofs only.
type Groth16Backend struct {
	mu       sync.RWMutex
	programs map[string]*groth16Program
}

// NewGroth16Backend creates an empty backend. Programs must be compiled
// before proving.
func NewGroth16Backend() *Groth16Backend {
	return &Groth16Backend{programs: make(map[string]*groth16Program)}
}

// Kind returns backend.KindGroth16.
func (b *Groth16Backend) Kind() backend.Kind { return backend.KindGroth16 }

// Compile builds the R1CS for MessageCircuit and runs the Groth16 setup.
// A program is set up once; later calls return the same key.
func (b *Groth16Backend) Compile(ctx context.Context, program string) (*backend.VerifyingKey, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	if p, ok := b.programs[program]; ok {
		return b.verifyingKey(program, p), nil
	}

	ccs, err := frontend.Compile(ecc.BN254.ScalarField(), r1cs.NewBuilder, &MessageCircuit{})
	if err != nil {
		return nil, fmt.Errorf("circuit: compile %q: %w", program, err)
	}
	pk, vk, err := groth16.Setup(ccs)
	if err != nil {
		return nil, fmt.Errorf("circuit: setup %q: %w", program, err)
	}
	var buf bytes.Buffer
	if _, err := vk.WriteTo(&buf); err != nil {
		return nil, fmt.Errorf("circuit: encode verifying key: %w", err)
	}
	p := &groth16Program{ccs: ccs, pk: pk, vk: vk, vkBytes: buf.Bytes()}
	b.programs[program] = p
	return b.verifyingKey(program, p), nil
}

func (b *Groth16Backend) verifyingKey(program string, p *groth16Program) *backend.VerifyingKey {
	return &backend.VerifyingKey{
		Kind:    backend.KindGroth16,
		Program: program,
		Data:    append([]byte(nil), p.vkBytes...),
	}
}

// Constraints returns the constraint count of a compiled program.
func (b *Groth16Backend) Constraints(program string) (int, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	p, ok := b.programs[program]
	if !ok {
		return 0, fmt.Errorf("%w: %q", backend.ErrNotCompiled, program)
	}
	return p.ccs.GetNbConstraints(), nil
}

// Prove evaluates c natively, then produces a Groth16 proof that the
// details in c satisfy MessageCircuit with MessageNumber = publicInput.
func (b *Groth16Backend) Prove(ctx context.Context, program string, c backend.Circuit, publicInput uint64) (*backend.Proof, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	b.mu.RLock()
	p, ok := b.programs[program]
	b.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q", backend.ErrNotCompiled, program)
	}
	w, ok := c.(Witnessed)
	if !ok {
		return nil, fmt.Errorf("%w: %s has no message witness", backend.ErrUnsupported, c.Method())
	}
	if err := c.Check(publicInput); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", backend.ErrConstraint, c.Method(), err)
	}

	full, err := frontend.NewWitness(Assign(publicInput, w.Details()), ecc.BN254.ScalarField())
	if err != nil {
		return nil, fmt.Errorf("circuit: build witness: %w", err)
	}
	proof, err := groth16.Prove(p.ccs, p.pk, full)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", backend.ErrConstraint, c.Method(), err)
	}
	var buf bytes.Buffer
	if _, err := proof.WriteTo(&buf); err != nil {
		return nil, fmt.Errorf("circuit: encode proof: %w", err)
	}
	return &backend.Proof{
		Kind:      backend.KindGroth16,
		Statement: backend.Statement{Program: program, Method: c.Method(), PublicInput: publicInput},
		Data:      buf.Bytes(),
	}, nil
}

// Verify checks a Groth16 proof against vk and the statement's public input.
func (b *Groth16Backend) Verify(ctx context.Context, proof *backend.Proof, vk *backend.VerifyingKey) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	if err := backend.CheckKey(backend.KindGroth16, proof, vk); err != nil {
		return false, err
	}
	gvk, err := b.parseKey(vk)
	if err != nil {
		return false, err
	}
	gproof := groth16.NewProof(ecc.BN254)
	if _, err := gproof.ReadFrom(bytes.NewReader(proof.Data)); err != nil {
		return false, fmt.Errorf("%w: %v", backend.ErrMalformedProof, err)
	}
	public, err := frontend.NewWitness(publicAssignment(proof.Statement.PublicInput),
		ecc.BN254.ScalarField(), frontend.PublicOnly())
	if err != nil {
		return false, fmt.Errorf("circuit: build public witness: %w", err)
	}
	return groth16.Verify(gproof, gvk, public) == nil, nil
}

// parseKey returns the in-memory key when vk matches a compiled program and
// decodes vk.Data otherwise.
func (b *Groth16Backend) parseKey(vk *backend.VerifyingKey) (groth16.VerifyingKey, error) {
	b.mu.RLock()
	p, ok := b.programs[vk.Program]
	b.mu.RUnlock()
	if ok && bytes.Equal(p.vkBytes, vk.Data) {
		return p.vk, nil
	}
	gvk := groth16.NewVerifyingKey(ecc.BN254)
	if _, err := gvk.ReadFrom(bytes.NewReader(vk.Data)); err != nil {
		return nil, fmt.Errorf("%w: verifying key: %v", backend.ErrMalformedProof, err)
	}
	return gvk, nil
}
