package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/g960059/puppeteer/internal/db"
	"github.com/g960059/puppeteer/internal/ledger"
	"github.com/g960059/puppeteer/internal/model"
)

// Resync imposes an authoritative snapshot. Entries still pending are
// discarded as timed out and the status returns to Idle.
func (e *Engine) Resync(ctx context.Context, sender string, snapshot model.Snapshot) (model.State, error) {
	if err := validateSnapshot(snapshot); err != nil {
		return model.State{}, err
	}
	var (
		st        model.State
		discarded int
	)
	err := e.mutate(ctx, "Resync", func(ctx context.Context, tx *db.Tx, now time.Time) error {
		cfg, err := loadConfig(ctx, tx)
		if err != nil {
			return err
		}
		if err := authorize(cfg, sender); err != nil {
			return err
		}
		row, err := loadStateRow(ctx, tx)
		if err != nil {
			return err
		}
		l := ledger.New(tx)
		pending, err := l.Pending(ctx)
		if err != nil {
			return err
		}
		for _, t := range pending {
			if _, err := l.Resolve(ctx, t.Sequence, model.TransferTimedOut, now, ReasonDiscardedByResync); err != nil {
				return err
			}
		}
		discarded = len(pending)
		if err := replaceSnapshot(ctx, tx, &row, snapshot, 0, now); err != nil {
			return err
		}
		prev := row.Status
		row.Status = model.StatusIdle
		if err := audit(ctx, tx, model.EventResync, nil, fmt.Sprintf("height=%d discarded=%d", snapshot.Height, discarded), now); err != nil {
			return err
		}
		st, err = e.saveState(ctx, tx, row, prev, now)
		return err
	})
	if err != nil {
		return model.State{}, err
	}
	e.metrics.ObserveResync(ResyncSourceOwner)
	e.publish(st)
	e.log.Info().
		Int64("height", snapshot.Height).
		Int("validators", len(snapshot.Delegations)).
		Int("discarded", discarded).
		Msg("state resynchronized")
	return st, nil
}

// ApplyRemoteSnapshot stores the result of a remote delegation query. A
// snapshot older than the stored one is ignored. NeedsResync clears only when
// nothing is pending, since pending entries could still change the remote
// delegations the snapshot describes.
func (e *Engine) ApplyRemoteSnapshot(ctx context.Context, snapshot model.Snapshot) (model.State, bool, error) {
	if err := validateSnapshot(snapshot); err != nil {
		return model.State{}, false, err
	}
	var (
		st      model.State
		applied bool
		cleared bool
	)
	err := e.mutate(ctx, "ApplyRemoteSnapshot", func(ctx context.Context, tx *db.Tx, now time.Time) error {
		cfg, err := loadConfig(ctx, tx)
		if err != nil {
			return err
		}
		row, err := loadStateRow(ctx, tx)
		if err != nil {
			return err
		}
		if !snapshotIsFresh(row, snapshot, 0) {
			st, err = tx.LoadState(ctx)
			return err
		}
		if err := replaceSnapshot(ctx, tx, &row, snapshot, 0, now); err != nil {
			return err
		}
		applied = true
		if err := audit(ctx, tx, model.EventSnapshot, nil, fmt.Sprintf("height=%d source=query", snapshot.Height), now); err != nil {
			return err
		}

		prev := row.Status
		current := row.Status
		if current == model.StatusNeedsResync {
			count, err := tx.CountTransfers(ctx, model.TransferPending)
			if err != nil {
				return err
			}
			if count == 0 {
				current = model.StatusIdle
				cleared = true
			}
		}
		if row.Status, err = e.derive(ctx, tx, cfg, current, now); err != nil {
			return err
		}
		st, err = e.saveState(ctx, tx, row, prev, now)
		return err
	})
	if err != nil {
		return model.State{}, false, err
	}
	if !applied {
		e.log.Debug().Int64("height", snapshot.Height).Msg("ignoring stale remote snapshot")
		return st, false, nil
	}
	if cleared {
		e.metrics.ObserveResync(ResyncSourceQuery)
	}
	e.publish(st)
	e.log.Info().Int64("height", snapshot.Height).Bool("resync_cleared", cleared).Msg("remote snapshot applied")
	return st, true, nil
}

// Reconcile re-derives the status at now so overdue and stale pending entries
// are reflected without waiting for the next channel event. An uninitialized
// instance is left alone.
func (e *Engine) Reconcile(ctx context.Context, now time.Time) (model.State, error) {
	var st model.State
	err := e.mutate(ctx, "Reconcile", func(ctx context.Context, tx *db.Tx, _ time.Time) error {
		cfg, err := tx.GetConfig(ctx)
		if err != nil {
			return err
		}
		row, err := tx.GetState(ctx)
		if err != nil {
			return err
		}
		next, err := e.derive(ctx, tx, cfg, row.Status, now)
		if err != nil {
			return err
		}
		if next == row.Status {
			st, err = tx.LoadState(ctx)
			return err
		}
		prev := row.Status
		row.Status = next
		st, err = e.saveState(ctx, tx, row, prev, now)
		return err
	})
	if errors.Is(err, db.ErrNotFound) {
		return model.State{}, nil
	}
	if err != nil {
		return model.State{}, err
	}
	e.publish(st)
	return st, nil
}
