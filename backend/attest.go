// Attested-execution backend using BLS12-381 signatures from
// supranational/blst with the MinPk scheme:
//   - public keys in G1 (48-byte compressed P1Affine)
//   - signatures in G2 (96-byte compressed P2Affine)
//
// Prove runs the circuit natively and, if it is satisfied, signs the
// statement digest with a per-program key. Verify checks the signature
// against the key published by Compile. Soundness rests on the prover
// key: anyone holding the seed can attest.
package backend

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"sync"

	blst "github.com/supranational/blst/bindings/go"
	"golang.org/x/crypto/hkdf"
)

// attestDST is the domain separation tag for statement signatures.
var attestDST = []byte("ZKBATCH_ATTEST_BLS12381G2_XMD:SHA-256_SSWU_RO_")

// hkdfInfo tags key derivation output.
var hkdfInfo = []byte("zkbatch attest key")

// Key and signature sizes for the MinPk scheme.
const (
	attestPubkeySize = 48
	attestSigSize    = 96
	attestIKMSize    = 32
)

// Attest backend errors.
var (
	ErrEmptySeed     = errors.New("backend: empty prover seed")
	ErrKeyGenFailed  = errors.New("backend: key generation failed")
	ErrSignFailed    = errors.New("backend: signing failed")
	ErrInvalidPubkey = errors.New("backend: invalid public key")
)

type attestKey struct {
	sk *blst.SecretKey
	pk *blst.P1Affine
}

// AttestBackend implements Backend with BLS signatures over statements.
type AttestBackend struct {
	seed []byte

	mu   sync.RWMutex
	keys map[string]*attestKey
}

// NewAttestBackend creates a backend whose keys derive from seed.
func NewAttestBackend(seed []byte) (*AttestBackend, error) {
	if len(seed) == 0 {
		return nil, ErrEmptySeed
	}
	return &AttestBackend{
		seed: append([]byte(nil), seed...),
		keys: make(map[string]*attestKey),
	}, nil
}

// Kind returns KindAttest.
func (b *AttestBackend) Kind() Kind { return KindAttest }

// Compile derives the signing key for program and returns its public key.
// Compiling the same program twice yields the same key.
func (b *AttestBackend) Compile(ctx context.Context, program string) (*VerifyingKey, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	key, ok := b.keys[program]
	if !ok {
		var err error
		key, err = deriveKey(b.seed, program)
		if err != nil {
			return nil, err
		}
		b.keys[program] = key
	}
	return &VerifyingKey{
		Kind:    KindAttest,
		Program: program,
		Data:    key.pk.Compress(),
	}, nil
}

// deriveKey expands seed with HKDF-SHA256, salted by the program name, into
// blst key material.
func deriveKey(seed []byte, program string) (*attestKey, error) {
	ikm := make([]byte, attestIKMSize)
	r := hkdf.New(sha256.New, seed, []byte(program), hkdfInfo)
	if _, err := io.ReadFull(r, ikm); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrKeyGenFailed, err)
	}
	sk := blst.KeyGen(ikm)
	if sk == nil {
		return nil, ErrKeyGenFailed
	}
	return &attestKey{sk: sk, pk: new(blst.P1Affine).From(sk)}, nil
}

// Prove checks c against publicInput and signs the resulting statement.
func (b *AttestBackend) Prove(ctx context.Context, program string, c Circuit, publicInput uint64) (*Proof, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	b.mu.RLock()
	key, ok := b.keys[program]
	b.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrNotCompiled, program)
	}

	if err := c.Check(publicInput); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrConstraint, c.Method(), err)
	}

	st := Statement{Program: program, Method: c.Method(), PublicInput: publicInput}
	digest := st.Digest()
	sig := new(blst.P2Affine).Sign(key.sk, digest[:], attestDST)
	if sig == nil {
		return nil, ErrSignFailed
	}
	return &Proof{Kind: KindAttest, Statement: st, Data: sig.Compress()}, nil
}

// Verify checks the proof's signature over its statement.
func (b *AttestBackend) Verify(ctx context.Context, proof *Proof, vk *VerifyingKey) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	if err := CheckKey(KindAttest, proof, vk); err != nil {
		return false, err
	}
	if len(vk.Data) != attestPubkeySize {
		return false, ErrInvalidPubkey
	}
	pk := new(blst.P1Affine).Uncompress(vk.Data)
	if pk == nil {
		return false, ErrInvalidPubkey
	}
	if len(proof.Data) != attestSigSize {
		return false, fmt.Errorf("%w: signature length %d", ErrMalformedProof, len(proof.Data))
	}
	sig := new(blst.P2Affine).Uncompress(proof.Data)
	if sig == nil {
		return false, fmt.Errorf("%w: signature does not decode", ErrMalformedProof)
	}
	digest := proof.Statement.Digest()
	return sig.Verify(true, pk, true, digest[:], attestDST), nil
}
