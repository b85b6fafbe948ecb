// Package backend defines the proof-system contract used by the batch
// validator: a Backend compiles a named program, proves a circuit against a
// public input, and verifies the resulting proof against a verifying key.
//
// A Proof is opaque bytes plus the Statement it commits to. The Statement's
// Digest binds program, method and public input together so a proof can
// never be replayed under a different output.
package backend

import (
	"context"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rlp"
)

// Kind identifies a proof system.
type Kind uint8

const (
	KindAttest  Kind = iota + 1 // BLS12-381 attested execution
	KindGroth16                 // Groth16 over BN254
)

// String returns the backend name used in config and logs.
func (k Kind) String() string {
	switch k {
	case KindAttest:
		return "attest"
	case KindGroth16:
		return "groth16"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// ParseKind maps a backend name to its Kind.
func ParseKind(s string) (Kind, error) {
	switch s {
	case "attest":
		return KindAttest, nil
	case "groth16":
		return KindGroth16, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownKind, s)
}

// Backend errors.
var (
	ErrNotCompiled     = errors.New("backend: program not compiled")
	ErrConstraint      = errors.New("backend: constraint not satisfied")
	ErrKindMismatch    = errors.New("backend: proof kind mismatch")
	ErrProgramMismatch = errors.New("backend: proof program mismatch")
	ErrMalformedProof  = errors.New("backend: malformed proof")
	ErrNilProof        = errors.New("backend: nil proof")
	ErrNilKey          = errors.New("backend: nil verifying key")
	ErrUnknownKind     = errors.New("backend: unknown kind")
	ErrUnsupported     = errors.New("backend: circuit not supported")
)

// Statement is what a proof attests to: method of program accepted the
// given public input.
type Statement struct {
	Program     string
	Method      string
	PublicInput uint64
}

// Digest returns keccak256(rlp(statement)).
func (s Statement) Digest() common.Hash {
	enc, err := rlp.EncodeToBytes(&s)
	if err != nil {
		// Strings and uint64 always encode.
		panic(fmt.Sprintf("backend: encode statement: %v", err))
	}
	return crypto.Keccak256Hash(enc)
}

// Proof is an opaque proof over a Statement.
type Proof struct {
	Kind      Kind
	Statement Statement
	Data      []byte
}

// VerifyingKey is the public output of Compile.
type VerifyingKey struct {
	Kind    Kind
	Program string
	Data    []byte
}

// Circuit is one method of a program. Check evaluates its constraints
// natively and returns nil when they are satisfied for publicInput.
type Circuit interface {
	Method() string
	Check(publicInput uint64) error
}

// Backend is a proof system. Implementations are safe for concurrent use
// once Compile has returned.
type Backend interface {
	Kind() Kind
	Compile(ctx context.Context, program string) (*VerifyingKey, error)
	Prove(ctx context.Context, program string, c Circuit, publicInput uint64) (*Proof, error)
	Verify(ctx context.Context, proof *Proof, vk *VerifyingKey) (bool, error)
}

// CheckKey performs the checks every Verify shares: non-nil arguments,
// matching kinds and matching program.
func CheckKey(kind Kind, proof *Proof, vk *VerifyingKey) error {
	if proof == nil {
		return ErrNilProof
	}
	if vk == nil {
		return ErrNilKey
	}
	if proof.Kind != kind || vk.Kind != kind {
		return fmt.Errorf("%w: proof %v, key %v, backend %v", ErrKindMismatch, proof.Kind, vk.Kind, kind)
	}
	if proof.Statement.Program != vk.Program {
		return fmt.Errorf("%w: proof %q, key %q", ErrProgramMismatch, proof.Statement.Program, vk.Program)
	}
	return nil
}
