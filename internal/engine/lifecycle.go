package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/g960059/puppeteer/internal/db"
	"github.com/g960059/puppeteer/internal/ledger"
	"github.com/g960059/puppeteer/internal/model"
)

func validateConfig(cfg model.Config) error {
	var missing []string
	if strings.TrimSpace(cfg.ConnectionID) == "" {
		missing = append(missing, "connection_id")
	}
	if strings.TrimSpace(cfg.PortID) == "" {
		missing = append(missing, "port_id")
	}
	if strings.TrimSpace(cfg.RemoteDenom) == "" {
		missing = append(missing, "remote_denom")
	}
	if strings.TrimSpace(cfg.Owner) == "" {
		missing = append(missing, "owner")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: missing %s", model.ErrInvalidRequest, strings.Join(missing, ", "))
	}
	if cfg.UpdatePeriod == 0 {
		return fmt.Errorf("%w: update_period must be positive", model.ErrInvalidRequest)
	}
	if cfg.UpdatePeriod > model.MaxUpdatePeriod {
		return fmt.Errorf("%w: update_period must not exceed %d seconds", model.ErrInvalidRequest, model.MaxUpdatePeriod)
	}
	fees := []struct {
		name  string
		value decimal.Decimal
	}{
		{"recv_fee", cfg.Fees.RecvFee},
		{"ack_fee", cfg.Fees.AckFee},
		{"timeout_fee", cfg.Fees.TimeoutFee},
		{"register_fee", cfg.Fees.RegisterFee},
	}
	for _, fee := range fees {
		if fee.value.Sign() < 0 {
			return fmt.Errorf("%w: %s must not be negative", model.ErrInvalidRequest, fee.name)
		}
	}
	return nil
}

// Instantiate creates the singleton config and an idle state.
func (e *Engine) Instantiate(ctx context.Context, cfg model.Config) (model.Config, error) {
	if err := validateConfig(cfg); err != nil {
		return model.Config{}, err
	}
	var st model.State
	err := e.mutate(ctx, "Instantiate", func(ctx context.Context, tx *db.Tx, now time.Time) error {
		cfg.UpdatedAt = now
		if err := tx.InsertConfig(ctx, cfg); err != nil {
			if errors.Is(err, db.ErrDuplicate) {
				return fmt.Errorf("instantiate: %w", model.ErrAlreadyInitialized)
			}
			return err
		}
		if err := tx.InsertState(ctx, db.StateRow{
			Status:    model.StatusIdle,
			ICA:       model.ICA{Status: model.ICANone},
			UpdatedAt: now,
		}); err != nil {
			if errors.Is(err, db.ErrDuplicate) {
				return fmt.Errorf("instantiate: %w", model.ErrAlreadyInitialized)
			}
			return err
		}
		if err := audit(ctx, tx, model.EventInstantiate, nil, "owner="+cfg.Owner, now); err != nil {
			return err
		}
		var err error
		st, err = tx.LoadState(ctx)
		return err
	})
	if err != nil {
		return model.Config{}, err
	}
	e.publish(st)
	e.log.Info().
		Str("owner", cfg.Owner).
		Str("connection_id", cfg.ConnectionID).
		Str("port_id", cfg.PortID).
		Msg("instance initialized")
	return cfg, nil
}

// UpdateConfig applies an owner-issued patch.
func (e *Engine) UpdateConfig(ctx context.Context, sender string, patch model.ConfigPatch) (model.Config, error) {
	var updated model.Config
	err := e.mutate(ctx, "UpdateConfig", func(ctx context.Context, tx *db.Tx, now time.Time) error {
		cfg, err := loadConfig(ctx, tx)
		if err != nil {
			return err
		}
		if err := authorize(cfg, sender); err != nil {
			return err
		}
		updated = patch.Apply(cfg)
		if err := validateConfig(updated); err != nil {
			return err
		}
		updated.UpdatedAt = now
		if err := tx.ReplaceConfig(ctx, updated); err != nil {
			return err
		}
		return audit(ctx, tx, model.EventConfigUpdate, nil, "sender="+sender, now)
	})
	if err != nil {
		return model.Config{}, err
	}
	e.log.Info().Str("sender", sender).Msg("config updated")
	return updated, nil
}

// RegisterICA asks the channel to open an interchain account.
func (e *Engine) RegisterICA(ctx context.Context, sender string) (model.ICA, error) {
	var ica model.ICA
	err := e.mutate(ctx, "RegisterICA", func(ctx context.Context, tx *db.Tx, now time.Time) error {
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
		if row.ICA.Status == model.ICARegistered {
			return fmt.Errorf("%w: interchain account is already registered", model.ErrInvalidRequest)
		}
		row.ICA = model.ICA{Status: model.ICAInProgress}
		if _, err := e.saveState(ctx, tx, row, row.Status, now); err != nil {
			return err
		}
		ica = row.ICA
		return audit(ctx, tx, model.EventICARegister, nil, "connection="+cfg.ConnectionID, now)
	})
	if err != nil {
		return model.ICA{}, err
	}
	e.log.Info().Str("sender", sender).Msg("interchain account registration requested")
	return ica, nil
}

// OnChannelOpen records the interchain account address once the channel
// handshake completes.
func (e *Engine) OnChannelOpen(ctx context.Context, channelID, address string) (model.ICA, error) {
	if strings.TrimSpace(channelID) == "" || strings.TrimSpace(address) == "" {
		return model.ICA{}, fmt.Errorf("%w: channel_id and address are required", model.ErrInvalidRequest)
	}
	var ica model.ICA
	err := e.mutate(ctx, "OnChannelOpen", func(ctx context.Context, tx *db.Tx, now time.Time) error {
		row, err := loadStateRow(ctx, tx)
		if err != nil {
			return err
		}
		if row.ICA.Status != model.ICAInProgress {
			return fmt.Errorf("%w: no registration in progress (ica status %s)", model.ErrInvalidRequest, row.ICA.Status)
		}
		row.ICA = model.ICA{Status: model.ICARegistered, Address: address, ChannelID: channelID}
		if _, err := e.saveState(ctx, tx, row, row.Status, now); err != nil {
			return err
		}
		ica = row.ICA
		return audit(ctx, tx, model.EventChannelOpen, nil, fmt.Sprintf("channel=%s address=%s", channelID, address), now)
	})
	if err != nil {
		return model.ICA{}, err
	}
	e.log.Info().Str("channel_id", channelID).Str("address", address).Msg("interchain account channel opened")
	return ica, nil
}

// OnChannelClose marks the account closed. Entries still pending on the
// channel can no longer be acknowledged, so they resolve as timed out and the
// state requires a resync.
func (e *Engine) OnChannelClose(ctx context.Context, channelID string) (model.State, error) {
	var (
		st        model.State
		discarded int
	)
	err := e.mutate(ctx, "OnChannelClose", func(ctx context.Context, tx *db.Tx, now time.Time) error {
		row, err := loadStateRow(ctx, tx)
		if err != nil {
			return err
		}
		if row.ICA.ChannelID == "" || row.ICA.ChannelID != channelID {
			return fmt.Errorf("%w: channel %q is not the interchain account channel", model.ErrInvalidRequest, channelID)
		}
		l := ledger.New(tx)
		pending, err := l.Pending(ctx)
		if err != nil {
			return err
		}
		for _, t := range pending {
			if _, err := l.Resolve(ctx, t.Sequence, model.TransferTimedOut, now, ReasonChannelClosed); err != nil {
				return err
			}
		}
		discarded = len(pending)
		prev := row.Status
		row.ICA.Status = model.ICAClosed
		if discarded > 0 {
			row.Status = model.StatusNeedsResync
		}
		if err := audit(ctx, tx, model.EventChannelClose, nil, fmt.Sprintf("channel=%s discarded=%d", channelID, discarded), now); err != nil {
			return err
		}
		st, err = e.saveState(ctx, tx, row, prev, now)
		return err
	})
	if err != nil {
		return model.State{}, err
	}
	e.publish(st)
	e.log.Warn().Str("channel_id", channelID).Int("discarded", discarded).Msg("interchain account channel closed")
	return st, nil
}
