package reconcile

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/g960059/puppeteer/internal/config"
	"github.com/g960059/puppeteer/internal/model"
)

// StateReconciler re-derives the status from the ledger at a given time.
type StateReconciler interface {
	Reconcile(ctx context.Context, now time.Time) (model.State, error)
}

type EventPurger interface {
	PurgeChannelEvents(ctx context.Context, cutoff time.Time) (int64, error)
}

type Reconciler struct {
	engine StateReconciler
	purger EventPurger
	cfg    config.Config
	log    zerolog.Logger

	lastStatus model.Status
}

func NewReconciler(engine StateReconciler, purger EventPurger, cfg config.Config, log zerolog.Logger) *Reconciler {
	return &Reconciler{
		engine: engine,
		purger: purger,
		cfg:    cfg,
		log:    log.With().Str("component", "reconciler").Logger(),
	}
}

// Tick surfaces overdue and stale pending entries in the status. Ticks are
// driven by a single loop and are not safe for concurrent use.
func (r *Reconciler) Tick(ctx context.Context, now time.Time) error {
	st, err := r.engine.Reconcile(ctx, now)
	if err != nil {
		return fmt.Errorf("reconcile state: %w", err)
	}
	if st.Status == "" {
		return nil
	}
	if st.Status != r.lastStatus && (st.Status == model.StatusTimedOut || st.Status == model.StatusNeedsResync) {
		r.log.Warn().
			Str("status", string(st.Status)).
			Uints64("pending", st.Pending).
			Msg("pending instructions need attention")
	}
	r.lastStatus = st.Status
	return nil
}

// Purge drops audit rows older than the configured retention. A zero
// retention keeps every row.
func (r *Reconciler) Purge(ctx context.Context, now time.Time) (int64, error) {
	if r.cfg.EventRetention <= 0 {
		return 0, nil
	}
	n, err := r.purger.PurgeChannelEvents(ctx, now.Add(-r.cfg.EventRetention))
	if err != nil {
		return 0, fmt.Errorf("purge channel events: %w", err)
	}
	if n > 0 {
		r.log.Info().Int64("purged", n).Msg("channel events purged")
	}
	return n, nil
}
