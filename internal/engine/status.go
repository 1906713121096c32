package engine

import (
	"time"

	"github.com/g960059/puppeteer/internal/model"
)

// nextStatus derives the coarse status from the pending set. NeedsResync is
// only cleared by an explicit resync or a fresh remote snapshot, never here.
func nextStatus(current model.Status, pending int, overdue, escalate bool) model.Status {
	switch {
	case current == model.StatusNeedsResync:
		return model.StatusNeedsResync
	case escalate:
		return model.StatusNeedsResync
	case pending == 0:
		return model.StatusIdle
	case overdue:
		return model.StatusTimedOut
	default:
		return model.StatusAwaitingAck
	}
}

type pendingHealth struct {
	count    int
	overdue  bool
	escalate bool
}

// assessPending reports whether any pending entry is past its packet timeout,
// and whether any has been pending longer than staleAfter. A zero staleAfter
// disables escalation.
func assessPending(pending []model.Transfer, now time.Time, staleAfter time.Duration) pendingHealth {
	h := pendingHealth{count: len(pending)}
	for _, t := range pending {
		if now.After(t.TimeoutAt) {
			h.overdue = true
		}
		if staleAfter > 0 && now.Sub(t.SubmittedAt) > staleAfter {
			h.escalate = true
		}
	}
	return h
}
