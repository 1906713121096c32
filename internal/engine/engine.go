package engine

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/g960059/puppeteer/internal/db"
	"github.com/g960059/puppeteer/internal/dispatch"
	"github.com/g960059/puppeteer/internal/ledger"
	"github.com/g960059/puppeteer/internal/metrics"
	"github.com/g960059/puppeteer/internal/model"
)

const tracerName = "github.com/g960059/puppeteer/internal/engine"

const (
	ReasonChannelClosed     = "channel_closed"
	ReasonDiscardedByResync = "discarded_by_resync"
	ReasonTimeout           = "timeout"
	ReasonAckError          = "ack_error"

	ResyncSourceOwner = "owner"
	ResyncSourceQuery = "query"
)

type Options struct {
	Channel dispatch.Channel
	Logger  zerolog.Logger
	Metrics *metrics.Metrics
	// StalePendingFactor escalates to NeedsResync once an entry has been
	// pending for this many update periods. Zero disables escalation.
	StalePendingFactor int
	Now                func() time.Time
}

// Engine is the only writer of the reconciliation state. Every operation runs
// in one database transaction and operations never interleave.
type Engine struct {
	store       *db.Store
	channel     dispatch.Channel
	log         zerolog.Logger
	metrics     *metrics.Metrics
	tracer      trace.Tracer
	now         func() time.Time
	staleFactor int

	mu sync.Mutex
}

func New(store *db.Store, opts Options) *Engine {
	if opts.Channel == nil {
		opts.Channel = dispatch.NewOutbox()
	}
	if opts.Now == nil {
		opts.Now = func() time.Time { return time.Now().UTC() }
	}
	if opts.StalePendingFactor < 0 {
		opts.StalePendingFactor = 0
	}
	return &Engine{
		store:       store,
		channel:     opts.Channel,
		log:         opts.Logger.With().Str("component", "engine").Logger(),
		metrics:     opts.Metrics,
		tracer:      otel.Tracer(tracerName),
		now:         opts.Now,
		staleFactor: opts.StalePendingFactor,
	}
}

// mutate runs fn in a single transaction under the engine lock and records a
// span for the operation.
func (e *Engine) mutate(ctx context.Context, op string, fn func(ctx context.Context, tx *db.Tx, now time.Time) error) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	ctx, span := e.tracer.Start(ctx, "engine."+op)
	defer span.End()

	err := e.store.WithTx(ctx, func(tx *db.Tx) error {
		return fn(ctx, tx, e.now())
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, model.ErrorCode(err))
	}
	return err
}

// State returns the current reconciliation state.
func (e *Engine) State(ctx context.Context) (model.State, error) {
	var st model.State
	err := e.store.WithTx(ctx, func(tx *db.Tx) error {
		var err error
		st, err = tx.LoadState(ctx)
		return err
	})
	if errors.Is(err, db.ErrNotFound) {
		return model.State{}, fmt.Errorf("state: %w", model.ErrNotFound)
	}
	return st, err
}

func (e *Engine) publish(st model.State) {
	e.metrics.SetState(st.Status, len(st.Pending))
}

func loadConfig(ctx context.Context, tx *db.Tx) (model.Config, error) {
	cfg, err := tx.GetConfig(ctx)
	if errors.Is(err, db.ErrNotFound) {
		return model.Config{}, fmt.Errorf("config: %w", model.ErrNotFound)
	}
	return cfg, err
}

func loadStateRow(ctx context.Context, tx *db.Tx) (db.StateRow, error) {
	row, err := tx.GetState(ctx)
	if errors.Is(err, db.ErrNotFound) {
		return db.StateRow{}, fmt.Errorf("state: %w", model.ErrNotFound)
	}
	return row, err
}

func authorize(cfg model.Config, sender string) error {
	if sender == "" || sender != cfg.Owner {
		return fmt.Errorf("sender %q: %w", sender, model.ErrUnauthorized)
	}
	return nil
}

// staleAfter is how long an entry may stay pending before escalation. The
// product saturates instead of overflowing.
func (e *Engine) staleAfter(cfg model.Config) time.Duration {
	period := cfg.UpdatePeriodDuration()
	if e.staleFactor == 0 || period == 0 {
		return 0
	}
	if period > time.Duration(math.MaxInt64)/time.Duration(e.staleFactor) {
		return time.Duration(math.MaxInt64)
	}
	return time.Duration(e.staleFactor) * period
}

// derive re-computes the status of row from the ledger.
func (e *Engine) derive(ctx context.Context, tx *db.Tx, cfg model.Config, current model.Status, now time.Time) (model.Status, error) {
	pending, err := ledger.New(tx).Pending(ctx)
	if err != nil {
		return "", err
	}
	h := assessPending(pending, now, e.staleAfter(cfg))
	return nextStatus(current, h.count, h.overdue, h.escalate), nil
}

// saveState persists row and audits a status change against prev.
func (e *Engine) saveState(ctx context.Context, tx *db.Tx, row db.StateRow, prev model.Status, now time.Time) (model.State, error) {
	row.UpdatedAt = now
	if err := tx.UpdateState(ctx, row); err != nil {
		return model.State{}, err
	}
	if prev != row.Status {
		if err := audit(ctx, tx, model.EventStatusChanged, nil, fmt.Sprintf("%s -> %s", prev, row.Status), now); err != nil {
			return model.State{}, err
		}
		e.log.Info().Str("from", string(prev)).Str("to", string(row.Status)).Msg("status changed")
	}
	return tx.LoadState(ctx)
}

func audit(ctx context.Context, tx *db.Tx, kind string, seq *uint64, detail string, now time.Time) error {
	return tx.InsertChannelEvent(ctx, model.ChannelEvent{
		Kind:      kind,
		Sequence:  seq,
		Detail:    detail,
		CreatedAt: now,
	})
}

func validateSnapshot(snapshot model.Snapshot) error {
	if snapshot.Height < 0 {
		return fmt.Errorf("%w: snapshot height must not be negative", model.ErrInvalidRequest)
	}
	seen := make(map[string]struct{}, len(snapshot.Delegations))
	for _, d := range snapshot.Delegations {
		if strings.TrimSpace(d.Validator) == "" {
			return fmt.Errorf("%w: snapshot validator is required", model.ErrInvalidRequest)
		}
		if d.Amount.Sign() < 0 || !d.Amount.IsInteger() {
			return fmt.Errorf("%w: snapshot amount for %s must be a non-negative integer", model.ErrInvalidRequest, d.Validator)
		}
		if _, dup := seen[d.Validator]; dup {
			return fmt.Errorf("%w: snapshot validator %s listed twice", model.ErrInvalidRequest, d.Validator)
		}
		seen[d.Validator] = struct{}{}
	}
	return nil
}

// replaceSnapshot swaps the confirmed snapshot on row. source is the
// acknowledged sequence that carried it, zero for resync and query snapshots.
func replaceSnapshot(ctx context.Context, tx *db.Tx, row *db.StateRow, snapshot model.Snapshot, source uint64, now time.Time) error {
	if err := tx.ReplaceSnapshot(ctx, snapshot.Delegations); err != nil {
		return err
	}
	row.SnapshotHeight = snapshot.Height
	row.SnapshotSequence = source
	at := now
	row.SnapshotAt = &at
	return nil
}

// snapshotIsFresh reports whether snapshot, carried by source, may replace the
// one stored on row. At equal heights the higher source sequence wins, so the
// outcome does not depend on the order acknowledgements arrive in.
func snapshotIsFresh(row db.StateRow, snapshot model.Snapshot, source uint64) bool {
	switch {
	case row.SnapshotAt == nil:
		return true
	case snapshot.Height != row.SnapshotHeight:
		return snapshot.Height > row.SnapshotHeight
	default:
		return source >= row.SnapshotSequence
	}
}

func seqPtr(seq uint64) *uint64 {
	return &seq
}
