package admission

import (
	"context"
	"errors"
	"sync"

	"github.com/zkbatch/zkbatch/log"
	"github.com/zkbatch/zkbatch/zkprogram"
)

// Transaction kinds recorded in receipts.
const (
	OpInit   = "init"
	OpUpdate = "update"
)

// Receipt records one applied or failed transaction.
type Receipt struct {
	Seq      uint64
	Op       string
	Before   uint64
	After    uint64
	Admitted bool // the state changed
	Err      error
}

// Host runs transactions against a Validator one at a time and keeps a
// receipt for each.
type Host struct {
	mu       sync.Mutex
	v        *Validator
	seq      uint64
	receipts []Receipt
	log      *log.Logger
}

// NewHost creates a Host for v.
func NewHost(v *Validator, logger *log.Logger) *Host {
	if logger == nil {
		logger = log.Default()
	}
	return &Host{v: v, log: logger.Module("host")}
}

// InitState runs the init transaction.
func (h *Host) InitState(ctx context.Context) (Receipt, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	r := h.next(OpInit)
	r.Before, r.Err = h.v.HighestMessageNumber(ctx)
	if errors.Is(r.Err, ErrNotInitialized) {
		r.Err = nil
	}
	if r.Err == nil {
		r.Err = h.v.InitState(ctx)
	}
	if r.Err == nil {
		r.After = 0
		r.Admitted = r.Before != 0
	} else {
		r.After = r.Before
	}
	return h.record(r)
}

// Submit runs an update transaction with proof.
func (h *Host) Submit(ctx context.Context, proof *zkprogram.SequenceProof) (Receipt, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	r := h.next(OpUpdate)
	r.Before, r.Err = h.v.HighestMessageNumber(ctx)
	if r.Err == nil {
		r.After, r.Err = h.v.Update(ctx, proof)
	}
	if r.Err != nil {
		r.After = r.Before
	}
	r.Admitted = r.Err == nil && r.After != r.Before
	return h.record(r)
}

// State returns the current highest message number.
func (h *Host) State(ctx context.Context) (uint64, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.v.HighestMessageNumber(ctx)
}

// Receipts returns a copy of all receipts in submission order.
func (h *Host) Receipts() []Receipt {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]Receipt(nil), h.receipts...)
}

func (h *Host) next(op string) Receipt {
	h.seq++
	return Receipt{Seq: h.seq, Op: op}
}

func (h *Host) record(r Receipt) (Receipt, error) {
	h.receipts = append(h.receipts, r)
	h.log.Debug("transaction", "seq", r.Seq, "op", r.Op, "before", r.Before, "after", r.After, "err", r.Err)
	return r, r.Err
}
