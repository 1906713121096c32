package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/g960059/puppeteer/internal/db"
	"github.com/g960059/puppeteer/internal/dispatch"
	"github.com/g960059/puppeteer/internal/ledger"
	"github.com/g960059/puppeteer/internal/model"
	"github.com/g960059/puppeteer/internal/security"
)

// Submit dispatches an owner instruction over the interchain account channel
// and records it as pending under the sequence the channel assigned.
func (e *Engine) Submit(ctx context.Context, sender string, in model.Instruction) (model.Transfer, error) {
	var (
		transfer model.Transfer
		st       model.State
	)
	err := e.mutate(ctx, "Submit", func(ctx context.Context, tx *db.Tx, now time.Time) error {
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
		if !row.Status.AcceptsSubmissions() {
			return fmt.Errorf("submit: %w", model.ErrNeedsResync)
		}
		if row.ICA.Status != model.ICARegistered {
			return fmt.Errorf("submit: %w (status %s)", model.ErrICANotRegistered, row.ICA.Status)
		}
		kind, err := model.ParseInstructionKind(string(in.Kind))
		if err != nil {
			return err
		}
		in.Kind = kind
		if err := in.Validate(); err != nil {
			return err
		}
		if in.Denom == "" {
			in.Denom = cfg.RemoteDenom
		}

		timeout := cfg.UpdatePeriodDuration()
		pkt, err := e.channel.Dispatch(ctx, tx, dispatch.Request{
			PortID:      cfg.PortID,
			ChannelID:   row.ICA.ChannelID,
			Delegator:   row.ICA.Address,
			Denom:       cfg.RemoteDenom,
			Instruction: in,
			Fees:        cfg.Fees,
			Timeout:     timeout,
			Memo:        "puppeteer:" + string(in.Kind),
			Now:         now,
		})
		if err != nil {
			return err
		}
		transfer = model.Transfer{
			Sequence:    pkt.Sequence,
			ChannelID:   row.ICA.ChannelID,
			Kind:        in.Kind,
			Target:      in.Target,
			Amount:      in.Amount,
			Denom:       in.Denom,
			Status:      model.TransferPending,
			SubmittedAt: now,
			TimeoutAt:   now.Add(timeout),
		}
		if _, err := ledger.New(tx).Record(ctx, transfer); err != nil {
			return err
		}
		if err := audit(ctx, tx, model.EventSubmit, seqPtr(transfer.Sequence),
			fmt.Sprintf("%s %s %s%s", in.Kind, in.Target, in.Amount, in.Denom), now); err != nil {
			return err
		}

		prev := row.Status
		if row.Status, err = e.derive(ctx, tx, cfg, row.Status, now); err != nil {
			return err
		}
		st, err = e.saveState(ctx, tx, row, prev, now)
		return err
	})
	if err != nil {
		e.log.Debug().Err(err).Str("sender", sender).Str("kind", string(in.Kind)).Msg("submit rejected")
		return model.Transfer{}, err
	}
	e.metrics.ObserveSubmitted(in.Kind)
	e.publish(st)
	e.log.Info().
		Uint64("sequence", transfer.Sequence).
		Str("kind", string(transfer.Kind)).
		Str("target", transfer.Target).
		Str("amount", transfer.Amount.String()).
		Int("pending", len(st.Pending)).
		Msg("instruction dispatched")
	return transfer, nil
}

// OnAck resolves the ledger entry an acknowledgement or timeout refers to.
// Events for sequences that are not pending are retransmissions: they are
// audited and reported as ignored without an error.
func (e *Engine) OnAck(ctx context.Context, ack model.Ack) (model.AckResult, error) {
	if ack.Sequence == 0 {
		return model.AckResult{}, fmt.Errorf("%w: sequence is required", model.ErrInvalidRequest)
	}
	if !ack.Outcome.Valid() {
		return model.AckResult{}, fmt.Errorf("%w: unknown outcome %q", model.ErrInvalidRequest, ack.Outcome)
	}
	if ack.Snapshot != nil {
		if ack.Outcome != model.AckSuccess {
			return model.AckResult{}, fmt.Errorf("%w: only successful acknowledgements carry a snapshot", model.ErrInvalidRequest)
		}
		if err := validateSnapshot(*ack.Snapshot); err != nil {
			return model.AckResult{}, err
		}
	}

	result := model.AckResult{Sequence: ack.Sequence}
	var (
		st              model.State
		snapshotApplied bool
	)
	err := e.mutate(ctx, "OnAck", func(ctx context.Context, tx *db.Tx, now time.Time) error {
		trace.SpanFromContext(ctx).SetAttributes(
			attribute.Int64("puppeteer.sequence", int64(ack.Sequence)),
			attribute.String("puppeteer.outcome", string(ack.Outcome)),
		)
		cfg, err := loadConfig(ctx, tx)
		if err != nil {
			return err
		}
		row, err := loadStateRow(ctx, tx)
		if err != nil {
			return err
		}

		status, reason, event := model.TransferAcknowledged, "", model.EventAck
		switch ack.Outcome {
		case model.AckError:
			status, reason, event = model.TransferTimedOut, ReasonAckError, model.EventAckError
			if msg := security.SanitizeRemoteMessage(ack.Error); msg != "" {
				reason = ReasonAckError + ": " + msg
			}
		case model.AckTimeout:
			status, reason, event = model.TransferTimedOut, ReasonTimeout, model.EventTimeout
		}

		resolved, err := ledger.New(tx).Resolve(ctx, ack.Sequence, status, now, reason)
		if errors.Is(err, model.ErrUnknownSequence) {
			result.Ignored = true
			result.Status = row.Status
			return audit(ctx, tx, model.EventAckIgnored, seqPtr(ack.Sequence), string(ack.Outcome), now)
		}
		if err != nil {
			return err
		}
		result.Transfer = resolved.Status
		if err := audit(ctx, tx, event, seqPtr(ack.Sequence), reason, now); err != nil {
			return err
		}

		if ack.Snapshot != nil && snapshotIsFresh(row, *ack.Snapshot, ack.Sequence) {
			if err := replaceSnapshot(ctx, tx, &row, *ack.Snapshot, ack.Sequence, now); err != nil {
				return err
			}
			snapshotApplied = true
			if err := audit(ctx, tx, model.EventSnapshot, seqPtr(ack.Sequence), fmt.Sprintf("height=%d", ack.Snapshot.Height), now); err != nil {
				return err
			}
		}

		prev := row.Status
		if ack.Outcome.Retriable() || ack.Outcome == model.AckSuccess {
			if row.Status, err = e.derive(ctx, tx, cfg, row.Status, now); err != nil {
				return err
			}
		} else {
			row.Status = model.StatusNeedsResync
		}
		st, err = e.saveState(ctx, tx, row, prev, now)
		result.Status = st.Status
		return err
	})
	if err != nil {
		return model.AckResult{}, err
	}

	if result.Ignored {
		e.metrics.ObserveIgnoredAck()
		e.log.Warn().
			Uint64("sequence", ack.Sequence).
			Str("outcome", string(ack.Outcome)).
			Msg("ignoring acknowledgement for unknown or resolved sequence")
		return result, nil
	}
	e.metrics.ObserveAck(ack.Outcome)
	e.publish(st)
	ev := e.log.Info()
	if ack.Outcome == model.AckError {
		ev = e.log.Warn().Str("error", ack.Error)
	}
	ev.Uint64("sequence", ack.Sequence).
		Str("outcome", string(ack.Outcome)).
		Bool("snapshot_applied", snapshotApplied).
		Str("status", string(st.Status)).
		Int("pending", len(st.Pending)).
		Msg("acknowledgement applied")
	return result, nil
}
