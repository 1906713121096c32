package testutil

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/g960059/puppeteer/internal/db"
	"github.com/g960059/puppeteer/internal/model"
)

const (
	Owner        = "neutron1owner"
	ConnectionID = "connection-0"
	PortID       = "icacontroller-puppeteer"
	ChannelID    = "channel-7"
	ICAAddress   = "cosmos1ica"
	RemoteDenom  = "uatom"
)

func NewStore(t *testing.T) (*db.Store, context.Context) {
	t.Helper()
	ctx := context.Background()
	store, err := db.Open(ctx, filepath.Join(t.TempDir(), "puppeteer-test.db"))
	if err != nil {
		t.Fatalf("open test store: %v", err)
	}
	t.Cleanup(func() {
		_ = store.Close()
	})
	if err := db.ApplyMigrations(ctx, store.DB()); err != nil {
		t.Fatalf("apply migrations: %v", err)
	}
	return store, ctx
}

// Config is the instance config used across package tests.
func Config() model.Config {
	return model.Config{
		ConnectionID: ConnectionID,
		PortID:       PortID,
		UpdatePeriod: 60,
		RemoteDenom:  RemoteDenom,
		Owner:        Owner,
		Fees: model.IBCFees{
			RecvFee:     decimal.Zero,
			AckFee:      decimal.NewFromInt(1000),
			TimeoutFee:  decimal.NewFromInt(1000),
			RegisterFee: decimal.NewFromInt(100000),
		},
	}
}

// SeedInstance writes the config and an idle state with a registered
// interchain account directly to the store.
func SeedInstance(t *testing.T, store *db.Store, ctx context.Context) model.Config {
	t.Helper()
	now := time.Now().UTC()
	cfg := Config()
	cfg.UpdatedAt = now
	if err := store.InsertConfig(ctx, cfg); err != nil {
		t.Fatalf("seed config: %v", err)
	}
	st := db.StateRow{
		Status: model.StatusIdle,
		ICA: model.ICA{
			Status:    model.ICARegistered,
			Address:   ICAAddress,
			ChannelID: ChannelID,
		},
		UpdatedAt: now,
	}
	if err := store.InsertState(ctx, st); err != nil {
		t.Fatalf("seed state: %v", err)
	}
	return cfg
}

func Amount(v int64) decimal.Decimal {
	return decimal.NewFromInt(v)
}
