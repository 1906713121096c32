package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/g960059/puppeteer/internal/db"
	"github.com/g960059/puppeteer/internal/model"
)

// Store is the slice of db.Store / db.Tx the ledger needs.
type Store interface {
	InsertTransfer(ctx context.Context, t model.Transfer) error
	ResolveTransfer(ctx context.Context, sequence uint64, status model.TransferStatus, resolvedAt time.Time, reason string) error
	GetTransfer(ctx context.Context, sequence uint64) (model.Transfer, error)
	ListTransfers(ctx context.Context, status model.TransferStatus) ([]model.Transfer, error)
}

// Ledger is the append-only record of dispatched instructions.
type Ledger struct {
	store Store
}

func New(store Store) *Ledger {
	return &Ledger{store: store}
}

// Record appends a pending entry under the sequence the dispatch layer
// assigned.
func (l *Ledger) Record(ctx context.Context, t model.Transfer) (uint64, error) {
	if t.Sequence == 0 {
		return 0, fmt.Errorf("record transfer: %w: sequence is required", model.ErrInvalidRequest)
	}
	if err := t.Instruction().Validate(); err != nil {
		return 0, err
	}
	t.Status = model.TransferPending
	t.ResolvedAt = nil
	t.Reason = ""
	if err := l.store.InsertTransfer(ctx, t); err != nil {
		if errors.Is(err, db.ErrDuplicate) {
			return 0, fmt.Errorf("record transfer %d: %w", t.Sequence, model.ErrDuplicateSequence)
		}
		return 0, err
	}
	return t.Sequence, nil
}

// Resolve moves exactly one pending entry to a terminal status.
// model.ErrUnknownSequence means there is no pending entry for sequence:
// either it never existed or it was already resolved.
func (l *Ledger) Resolve(ctx context.Context, sequence uint64, status model.TransferStatus, at time.Time, reason string) (model.Transfer, error) {
	if !status.Terminal() {
		return model.Transfer{}, fmt.Errorf("resolve transfer %d: %w: %q is not terminal", sequence, model.ErrInvalidRequest, status)
	}
	if err := l.store.ResolveTransfer(ctx, sequence, status, at, reason); err != nil {
		if errors.Is(err, db.ErrNotFound) {
			return model.Transfer{}, fmt.Errorf("resolve transfer %d: %w", sequence, model.ErrUnknownSequence)
		}
		return model.Transfer{}, err
	}
	return l.store.GetTransfer(ctx, sequence)
}

// List returns entries in submission order, optionally filtered by status.
func (l *Ledger) List(ctx context.Context, status model.TransferStatus) ([]model.Transfer, error) {
	if status != "" && !status.Valid() {
		return nil, fmt.Errorf("list transfers: %w: unknown status %q", model.ErrInvalidRequest, status)
	}
	return l.store.ListTransfers(ctx, status)
}

func (l *Ledger) Get(ctx context.Context, sequence uint64) (model.Transfer, error) {
	t, err := l.store.GetTransfer(ctx, sequence)
	if errors.Is(err, db.ErrNotFound) {
		return model.Transfer{}, fmt.Errorf("transfer %d: %w", sequence, model.ErrNotFound)
	}
	return t, err
}

// Pending lists the entries that still await a channel event.
func (l *Ledger) Pending(ctx context.Context) ([]model.Transfer, error) {
	return l.store.ListTransfers(ctx, model.TransferPending)
}
