package query

import (
	"context"
	"errors"
	"fmt"

	"github.com/g960059/puppeteer/internal/db"
	"github.com/g960059/puppeteer/internal/ledger"
	"github.com/g960059/puppeteer/internal/model"
	"github.com/g960059/puppeteer/internal/projector"
)

// Gateway is the read-only view served to collaborators. Each call reads
// inside one transaction so it never observes a half-applied operation.
type Gateway struct {
	store *db.Store
}

func NewGateway(store *db.Store) *Gateway {
	return &Gateway{store: store}
}

func (g *Gateway) Config(ctx context.Context) (model.Config, error) {
	var cfg model.Config
	err := g.read(ctx, func(tx *db.Tx) error {
		var err error
		cfg, err = tx.GetConfig(ctx)
		return err
	})
	return cfg, err
}

func (g *Gateway) State(ctx context.Context) (model.State, error) {
	var st model.State
	err := g.read(ctx, func(tx *db.Tx) error {
		var err error
		st, err = tx.LoadState(ctx)
		return err
	})
	return st, err
}

// InterchainTransactions lists the ledger in submission order. An empty
// status returns every entry.
func (g *Gateway) InterchainTransactions(ctx context.Context, status model.TransferStatus) ([]model.Transfer, error) {
	var out []model.Transfer
	err := g.read(ctx, func(tx *db.Tx) error {
		var err error
		out, err = ledger.New(tx).List(ctx, status)
		return err
	})
	return out, err
}

// Delegations is the confirmed snapshot adjusted by the pending ledger
// entries.
func (g *Gateway) Delegations(ctx context.Context) (model.DelegationsResponse, error) {
	var resp model.DelegationsResponse
	err := g.read(ctx, func(tx *db.Tx) error {
		st, err := tx.LoadState(ctx)
		if err != nil {
			return err
		}
		pending, err := ledger.New(tx).Pending(ctx)
		if err != nil {
			return err
		}
		resp = projector.Estimate(st.Snapshot, pending)
		return nil
	})
	return resp, err
}

// Transaction returns one ledger entry.
func (g *Gateway) Transaction(ctx context.Context, sequence uint64) (model.Transfer, error) {
	var t model.Transfer
	err := g.read(ctx, func(tx *db.Tx) error {
		var err error
		t, err = ledger.New(tx).Get(ctx, sequence)
		return err
	})
	return t, err
}

// Outbox pages through queued packets with a sequence above after.
func (g *Gateway) Outbox(ctx context.Context, after uint64, limit int) ([]model.OutboxPacket, error) {
	var out []model.OutboxPacket
	err := g.read(ctx, func(tx *db.Tx) error {
		var err error
		out, err = tx.ListOutbox(ctx, after, limit)
		return err
	})
	return out, err
}

// Events lists audit rows, newest first.
func (g *Gateway) Events(ctx context.Context, sequence *uint64, limit int) ([]model.ChannelEvent, error) {
	var out []model.ChannelEvent
	err := g.read(ctx, func(tx *db.Tx) error {
		var err error
		out, err = tx.ListChannelEvents(ctx, sequence, limit)
		return err
	})
	return out, err
}

func (g *Gateway) read(ctx context.Context, fn func(tx *db.Tx) error) error {
	err := g.store.WithTx(ctx, func(tx *db.Tx) error {
		if _, err := tx.GetConfig(ctx); err != nil {
			return err
		}
		return fn(tx)
	})
	if errors.Is(err, db.ErrNotFound) {
		return fmt.Errorf("query: %w", model.ErrNotFound)
	}
	return err
}
