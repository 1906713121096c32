package reconcile

import (
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/g960059/puppeteer/internal/config"
	"github.com/g960059/puppeteer/internal/engine"
	"github.com/g960059/puppeteer/internal/model"
	"github.com/g960059/puppeteer/internal/testutil"
)

func TestTickSurfacesOverduePendingEntries(t *testing.T) {
	store, ctx := testutil.NewStore(t)
	testutil.SeedInstance(t, store, ctx)
	t0 := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	cfg := config.DefaultConfig()
	e := engine.New(store, engine.Options{
		Logger:             zerolog.Nop(),
		StalePendingFactor: cfg.StalePendingFactor,
		Now:                func() time.Time { return t0 },
	})
	r := NewReconciler(e, store, cfg, zerolog.Nop())

	if _, err := e.Submit(ctx, testutil.Owner, model.Instruction{Kind: model.KindDelegate, Target: "V1", Amount: testutil.Amount(10)}); err != nil {
		t.Fatalf("submit: %v", err)
	}

	steps := []struct {
		after time.Duration
		want  model.Status
	}{
		{after: 10 * time.Second, want: model.StatusAwaitingAck},
		{after: 2 * time.Minute, want: model.StatusTimedOut},
		{after: 4 * time.Minute, want: model.StatusNeedsResync},
	}
	for _, step := range steps {
		if err := r.Tick(ctx, t0.Add(step.after)); err != nil {
			t.Fatalf("tick at +%s: %v", step.after, err)
		}
		st, err := e.State(ctx)
		if err != nil {
			t.Fatalf("state: %v", err)
		}
		if st.Status != step.want {
			t.Fatalf("at +%s expected %s, got %s", step.after, step.want, st.Status)
		}
		if len(st.Pending) != 1 {
			t.Fatalf("pending entries must stay pending, got %v", st.Pending)
		}
	}
}

func TestTickIgnoresUninitializedInstance(t *testing.T) {
	store, ctx := testutil.NewStore(t)
	e := engine.New(store, engine.Options{Logger: zerolog.Nop()})
	r := NewReconciler(e, store, config.DefaultConfig(), zerolog.Nop())
	if err := r.Tick(ctx, time.Now().UTC()); err != nil {
		t.Fatalf("tick on empty store: %v", err)
	}
}

func TestPurgeHonorsRetention(t *testing.T) {
	store, ctx := testutil.NewStore(t)
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	for _, at := range []time.Time{now.Add(-48 * time.Hour), now.Add(-time.Hour)} {
		if err := store.InsertChannelEvent(ctx, model.ChannelEvent{Kind: model.EventSnapshot, CreatedAt: at}); err != nil {
			t.Fatalf("insert event: %v", err)
		}
	}

	cfg := config.DefaultConfig()
	cfg.EventRetention = 24 * time.Hour
	e := engine.New(store, engine.Options{Logger: zerolog.Nop()})
	r := NewReconciler(e, store, cfg, zerolog.Nop())

	n, err := r.Purge(ctx, now)
	if err != nil {
		t.Fatalf("purge: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 purged event, got %d", n)
	}

	cfg.EventRetention = 0
	r = NewReconciler(e, store, cfg, zerolog.Nop())
	if n, err := r.Purge(ctx, now.Add(365*24*time.Hour)); err != nil || n != 0 {
		t.Fatalf("zero retention must keep rows, got n=%d err=%v", n, err)
	}
}
