package backend

import (
	"context"
	"errors"
	"testing"
)

var errOdd = errors.New("odd input")

// evenCircuit accepts even public inputs.
type evenCircuit struct{}

func (evenCircuit) Method() string { return "even" }

func (evenCircuit) Check(in uint64) error {
	if in%2 != 0 {
		return errOdd
	}
	return nil
}

func newTestBackend(t *testing.T) *AttestBackend {
	t.Helper()
	b, err := NewAttestBackend([]byte("test seed"))
	if err != nil {
		t.Fatalf("NewAttestBackend: %v", err)
	}
	return b
}

func TestStatementDigest(t *testing.T) {
	a := Statement{Program: "p", Method: "m", PublicInput: 1}
	if a.Digest() != a.Digest() {
		t.Fatal("digest not deterministic")
	}
	for _, other := range []Statement{
		{Program: "q", Method: "m", PublicInput: 1},
		{Program: "p", Method: "n", PublicInput: 1},
		{Program: "p", Method: "m", PublicInput: 2},
	} {
		if a.Digest() == other.Digest() {
			t.Errorf("digest collision between %+v and %+v", a, other)
		}
	}
}

func TestParseKind(t *testing.T) {
	for _, k := range []Kind{KindAttest, KindGroth16} {
		got, err := ParseKind(k.String())
		if err != nil || got != k {
			t.Errorf("ParseKind(%q) = %v, %v", k.String(), got, err)
		}
	}
	if _, err := ParseKind("plonk"); !errors.Is(err, ErrUnknownKind) {
		t.Fatalf("err = %v, want ErrUnknownKind", err)
	}
}

func TestNewAttestBackend_EmptySeed(t *testing.T) {
	if _, err := NewAttestBackend(nil); !errors.Is(err, ErrEmptySeed) {
		t.Fatalf("err = %v, want ErrEmptySeed", err)
	}
}

func TestAttest_CompileDeterministic(t *testing.T) {
	ctx := context.Background()
	a, b := newTestBackend(t), newTestBackend(t)
	vka, err := a.Compile(ctx, "prog")
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	vkb, _ := b.Compile(ctx, "prog")
	if string(vka.Data) != string(vkb.Data) {
		t.Fatal("same seed and program gave different keys")
	}
	vkc, _ := a.Compile(ctx, "other")
	if string(vka.Data) == string(vkc.Data) {
		t.Fatal("different programs share a key")
	}
	if len(vka.Data) != attestPubkeySize {
		t.Fatalf("pubkey size = %d, want %d", len(vka.Data), attestPubkeySize)
	}
}

func TestAttest_ProveVerify(t *testing.T) {
	ctx := context.Background()
	b := newTestBackend(t)
	vk, err := b.Compile(ctx, "prog")
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	proof, err := b.Prove(ctx, "prog", evenCircuit{}, 4)
	if err != nil {
		t.Fatalf("Prove: %v", err)
	}
	if proof.Statement.PublicInput != 4 || proof.Statement.Method != "even" {
		t.Fatalf("statement = %+v", proof.Statement)
	}
	ok, err := b.Verify(ctx, proof, vk)
	if err != nil || !ok {
		t.Fatalf("Verify = %v, %v; want true", ok, err)
	}
}

func TestAttest_ProveConstraintFailure(t *testing.T) {
	ctx := context.Background()
	b := newTestBackend(t)
	b.Compile(ctx, "prog")
	_, err := b.Prove(ctx, "prog", evenCircuit{}, 3)
	if !errors.Is(err, ErrConstraint) || !errors.Is(err, errOdd) {
		t.Fatalf("err = %v, want ErrConstraint wrapping errOdd", err)
	}
}

func TestAttest_ProveNotCompiled(t *testing.T) {
	b := newTestBackend(t)
	_, err := b.Prove(context.Background(), "prog", evenCircuit{}, 2)
	if !errors.Is(err, ErrNotCompiled) {
		t.Fatalf("err = %v, want ErrNotCompiled", err)
	}
}

func TestAttest_VerifyRejectsTampering(t *testing.T) {
	ctx := context.Background()
	b := newTestBackend(t)
	vk, _ := b.Compile(ctx, "prog")
	proof, err := b.Prove(ctx, "prog", evenCircuit{}, 4)
	if err != nil {
		t.Fatalf("Prove: %v", err)
	}

	forged := *proof
	forged.Statement.PublicInput = 100
	if ok, _ := b.Verify(ctx, &forged, vk); ok {
		t.Fatal("proof verified under a different public input")
	}

	garbage := *proof
	garbage.Data = []byte{1, 2, 3}
	ok, err := b.Verify(ctx, &garbage, vk)
	if ok || !errors.Is(err, ErrMalformedProof) {
		t.Fatalf("Verify(garbage) = %v, %v; want false, ErrMalformedProof", ok, err)
	}

	other, _ := NewAttestBackend([]byte("another seed"))
	otherVK, _ := other.Compile(ctx, "prog")
	if ok, _ := b.Verify(ctx, proof, otherVK); ok {
		t.Fatal("proof verified under a foreign key")
	}
}

func TestAttest_VerifyKeyChecks(t *testing.T) {
	ctx := context.Background()
	b := newTestBackend(t)
	vk, _ := b.Compile(ctx, "prog")
	proof, _ := b.Prove(ctx, "prog", evenCircuit{}, 2)

	if _, err := b.Verify(ctx, nil, vk); !errors.Is(err, ErrNilProof) {
		t.Errorf("nil proof: err = %v", err)
	}
	if _, err := b.Verify(ctx, proof, nil); !errors.Is(err, ErrNilKey) {
		t.Errorf("nil key: err = %v", err)
	}
	wrongKind := *proof
	wrongKind.Kind = KindGroth16
	if _, err := b.Verify(ctx, &wrongKind, vk); !errors.Is(err, ErrKindMismatch) {
		t.Errorf("kind: err = %v", err)
	}
	otherVK, _ := b.Compile(ctx, "other")
	if _, err := b.Verify(ctx, proof, otherVK); !errors.Is(err, ErrProgramMismatch) {
		t.Errorf("program: err = %v", err)
	}
}

func TestAttest_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	b := newTestBackend(t)
	if _, err := b.Compile(ctx, "prog"); !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
}
