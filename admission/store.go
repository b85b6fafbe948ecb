// Storage backends for the admission state. The state is a single scalar,
// the highest admitted message number, RLP-encoded under one key.
package admission

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/cockroachdb/pebble"
	"github.com/ethereum/go-ethereum/rlp"
	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/opt"
)

// Store errors.
var (
	ErrStoreClosed    = errors.New("admission: store closed")
	ErrUnknownStore   = errors.New("admission: unknown store kind")
	ErrMissingDataDir = errors.New("admission: data directory required")
	ErrCorruptState   = errors.New("admission: corrupt stored state")
)

// stateKey is the only key a Store writes.
var stateKey = []byte("zkbatch/highest-message-number")

// Store persists the batch state scalar.
type Store interface {
	// Load returns the stored value; ok is false when nothing is stored.
	Load(ctx context.Context) (value uint64, ok bool, err error)
	Store(ctx context.Context, value uint64) error
	Close() error
}

// Store kinds accepted by OpenStore.
const (
	StoreMemory  = "memory"
	StoreLevelDB = "leveldb"
	StorePebble  = "pebble"
)

// OpenStore opens a store of the given kind. dir is ignored for memory
// stores.
func OpenStore(kind, dir string) (Store, error) {
	switch kind {
	case StoreMemory, "":
		return NewMemoryStore(), nil
	case StoreLevelDB:
		return OpenLevelDBStore(dir)
	case StorePebble:
		return OpenPebbleStore(dir)
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownStore, kind)
}

func encodeState(v uint64) ([]byte, error) {
	return rlp.EncodeToBytes(v)
}

func decodeState(b []byte) (uint64, error) {
	var v uint64
	if err := rlp.DecodeBytes(b, &v); err != nil {
		return 0, fmt.Errorf("%w: %v", ErrCorruptState, err)
	}
	return v, nil
}

// MemoryStore keeps the encoded state in memory.
type MemoryStore struct {
	mu     sync.RWMutex
	data   []byte
	closed bool
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore { return &MemoryStore{} }

func (s *MemoryStore) Load(ctx context.Context) (uint64, bool, error) {
	if err := ctx.Err(); err != nil {
		return 0, false, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return 0, false, ErrStoreClosed
	}
	if s.data == nil {
		return 0, false, nil
	}
	v, err := decodeState(s.data)
	return v, err == nil, err
}

func (s *MemoryStore) Store(ctx context.Context, v uint64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	enc, err := encodeState(v)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrStoreClosed
	}
	s.data = enc
	return nil
}

func (s *MemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// LevelDBStore persists the state in a goleveldb database.
type LevelDBStore struct {
	db *leveldb.DB
}

// OpenLevelDBStore opens or creates a LevelDB database in dir.
func OpenLevelDBStore(dir string) (*LevelDBStore, error) {
	if dir == "" {
		return nil, ErrMissingDataDir
	}
	db, err := leveldb.OpenFile(dir, &opt.Options{
		BlockCacheCapacity: 1 * opt.MiB,
	})
	if err != nil {
		return nil, fmt.Errorf("admission: open leveldb %s: %w", dir, err)
	}
	return &LevelDBStore{db: db}, nil
}

func (s *LevelDBStore) Load(ctx context.Context) (uint64, bool, error) {
	if err := ctx.Err(); err != nil {
		return 0, false, err
	}
	b, err := s.db.Get(stateKey, nil)
	if errors.Is(err, leveldb.ErrNotFound) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("admission: leveldb get: %w", err)
	}
	v, err := decodeState(b)
	return v, err == nil, err
}

func (s *LevelDBStore) Store(ctx context.Context, v uint64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	enc, err := encodeState(v)
	if err != nil {
		return err
	}
	if err := s.db.Put(stateKey, enc, &opt.WriteOptions{Sync: true}); err != nil {
		return fmt.Errorf("admission: leveldb put: %w", err)
	}
	return nil
}

func (s *LevelDBStore) Close() error { return s.db.Close() }

// PebbleStore persists the state in a Pebble database.
type PebbleStore struct {
	db *pebble.DB
}

// OpenPebbleStore opens or creates a Pebble database in dir.
func OpenPebbleStore(dir string) (*PebbleStore, error) {
	if dir == "" {
		return nil, ErrMissingDataDir
	}
	db, err := pebble.Open(dir, &pebble.Options{})
	if err != nil {
		return nil, fmt.Errorf("admission: open pebble %s: %w", dir, err)
	}
	return &PebbleStore{db: db}, nil
}

func (s *PebbleStore) Load(ctx context.Context) (uint64, bool, error) {
	if err := ctx.Err(); err != nil {
		return 0, false, err
	}
	b, closer, err := s.db.Get(stateKey)
	if errors.Is(err, pebble.ErrNotFound) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("admission: pebble get: %w", err)
	}
	defer closer.Close()
	v, err := decodeState(b)
	return v, err == nil, err
}

func (s *PebbleStore) Store(ctx context.Context, v uint64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	enc, err := encodeState(v)
	if err != nil {
		return err
	}
	if err := s.db.Set(stateKey, enc, pebble.Sync); err != nil {
		return fmt.Errorf("admission: pebble set: %w", err)
	}
	return nil
}

func (s *PebbleStore) Close() error { return s.db.Close() }
