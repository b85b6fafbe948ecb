package circuit

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/consensys/gnark-crypto/ecc"
	"github.com/consensys/gnark/test"

	"github.com/zkbatch/zkbatch/backend"
	"github.com/zkbatch/zkbatch/message"
)

func TestMessageCircuit_Solved(t *testing.T) {
	tests := []struct {
		name    string
		details message.MessageDetails
		solved  bool
	}{
		{"valid", message.MessageDetails{1000, 5001, 10000, 16001}, true},
		{"admin", message.MessageDetails{0, 100, 6000, 13000}, true},
		{"admin all out of range", message.MessageDetails{0, 16000, 25000, 1}, true},
		{"id out of range", message.MessageDetails{3001, 1300, 12700, 17001}, false},
		{"x out of range", message.MessageDetails{1000, 15001, 15500, 31501}, false},
		{"y below range", message.MessageDetails{1000, 0, 4999, 5999}, false},
		{"y above range", message.MessageDetails{1000, 2000, 30000, 33000}, false},
		{"y equals x", message.MessageDetails{1000, 6000, 6000, 13000}, false},
		{"bad checksum", message.MessageDetails{800, 2200, 13000, 17000}, false},
		{"upper bounds", message.MessageDetails{3000, 15000, 20000, 38000}, true},
		{"lower bounds", message.MessageDetails{1, 0, 5000, 5001}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := test.IsSolved(&MessageCircuit{}, Assign(7, tt.details), ecc.BN254.ScalarField())
			if tt.solved && err != nil {
				t.Fatalf("IsSolved: %v", err)
			}
			if !tt.solved && err == nil {
				t.Fatal("invalid details satisfied the circuit")
			}
			// The circuit and the native predicate agree.
			if native := message.Validate(tt.details) == nil; native != tt.solved {
				t.Fatalf("native validity %v, circuit %v", native, tt.solved)
			}
		})
	}
}

func TestMessageCircuit_NumberRange(t *testing.T) {
	details := message.MessageDetails{1000, 5001, 10000, 16001}
	max64 := Assign(^uint64(0), details)
	if err := test.IsSolved(&MessageCircuit{}, max64, ecc.BN254.ScalarField()); err != nil {
		t.Fatalf("IsSolved(max uint64): %v", err)
	}
	wide := Assign(0, details)
	wide.MessageNumber = new(big.Int).Lsh(big.NewInt(1), 64)
	if err := test.IsSolved(&MessageCircuit{}, wide, ecc.BN254.ScalarField()); err == nil {
		t.Fatal("message number above uint64 satisfied the circuit")
	}
}

// leaf is a Witnessed circuit for tests.
type leaf struct{ d message.MessageDetails }

func (leaf) Method() string                    { return "leaf" }
func (l leaf) Check(uint64) error              { return message.Validate(l.d) }
func (l leaf) Details() message.MessageDetails { return l.d }

type opaque struct{}

func (opaque) Method() string     { return "opaque" }
func (opaque) Check(uint64) error { return nil }

func TestGroth16Backend(t *testing.T) {
	if testing.Short() {
		t.Skip("groth16 setup in short mode")
	}
	ctx := context.Background()
	b := NewGroth16Backend()
	vk, err := b.Compile(ctx, "prog")
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	if n, err := b.Constraints("prog"); err != nil || n == 0 {
		t.Fatalf("Constraints = %d, %v", n, err)
	}

	proof, err := b.Prove(ctx, "prog", leaf{message.MessageDetails{1000, 5001, 10000, 16001}}, 42)
	if err != nil {
		t.Fatalf("Prove: %v", err)
	}
	ok, err := b.Verify(ctx, proof, vk)
	if err != nil || !ok {
		t.Fatalf("Verify = %v, %v", ok, err)
	}

	// Public input is bound by the proof.
	for _, n := range []uint64{0, 41, 43, 999999, ^uint64(0)} {
		relabelled := *proof
		relabelled.Statement.PublicInput = n
		if ok, _ := b.Verify(ctx, &relabelled, vk); ok {
			t.Fatalf("proof for #42 verified as #%d", n)
		}
	}

	// A fresh backend decodes the serialized key.
	if ok, err := NewGroth16Backend().Verify(ctx, proof, vk); err != nil || !ok {
		t.Fatalf("Verify with decoded key = %v, %v", ok, err)
	}

	garbage := *proof
	garbage.Data = []byte{0xde, 0xad}
	if ok, err := b.Verify(ctx, &garbage, vk); ok || !errors.Is(err, backend.ErrMalformedProof) {
		t.Fatalf("Verify(garbage) = %v, %v", ok, err)
	}
}

func TestGroth16Backend_Rejects(t *testing.T) {
	if testing.Short() {
		t.Skip("groth16 setup in short mode")
	}
	ctx := context.Background()
	b := NewGroth16Backend()
	if _, err := b.Prove(ctx, "prog", leaf{}, 1); !errors.Is(err, backend.ErrNotCompiled) {
		t.Fatalf("err = %v, want ErrNotCompiled", err)
	}
	if _, err := b.Compile(ctx, "prog"); err != nil {
		t.Fatalf("Compile: %v", err)
	}
	_, err := b.Prove(ctx, "prog", leaf{message.MessageDetails{800, 2200, 13000, 17000}}, 1)
	if !errors.Is(err, backend.ErrConstraint) || !errors.Is(err, message.ErrInvalidMessage) {
		t.Fatalf("err = %v, want ErrConstraint wrapping ErrInvalidMessage", err)
	}
	if _, err := b.Prove(ctx, "prog", opaque{}, 1); !errors.Is(err, backend.ErrUnsupported) {
		t.Fatalf("err = %v, want ErrUnsupported", err)
	}
}
