package engine

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/g960059/puppeteer/internal/model"
)

func TestNextStatus(t *testing.T) {
	cases := []struct {
		name     string
		current  model.Status
		pending  int
		overdue  bool
		escalate bool
		want     model.Status
	}{
		{"idle stays idle", model.StatusIdle, 0, false, false, model.StatusIdle},
		{"first pending", model.StatusIdle, 1, false, false, model.StatusAwaitingAck},
		{"drained", model.StatusAwaitingAck, 0, false, false, model.StatusIdle},
		{"overdue", model.StatusAwaitingAck, 2, true, false, model.StatusTimedOut},
		{"timed out recovers", model.StatusTimedOut, 1, false, false, model.StatusAwaitingAck},
		{"timed out drains", model.StatusTimedOut, 0, false, false, model.StatusIdle},
		{"stale escalates", model.StatusTimedOut, 1, true, true, model.StatusNeedsResync},
		{"needs resync is sticky", model.StatusNeedsResync, 0, false, false, model.StatusNeedsResync},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.want, nextStatus(tc.current, tc.pending, tc.overdue, tc.escalate))
		})
	}
}

func TestAssessPending(t *testing.T) {
	t0 := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	pending := []model.Transfer{{SubmittedAt: t0, TimeoutAt: t0.Add(time.Minute)}}

	h := assessPending(pending, t0.Add(30*time.Second), 3*time.Minute)
	require.Equal(t, pendingHealth{count: 1}, h)

	h = assessPending(pending, t0.Add(2*time.Minute), 3*time.Minute)
	require.True(t, h.overdue)
	require.False(t, h.escalate)

	h = assessPending(pending, t0.Add(4*time.Minute), 3*time.Minute)
	require.True(t, h.escalate)

	h = assessPending(pending, t0.Add(time.Hour), 0)
	require.False(t, h.escalate)
}
