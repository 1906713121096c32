package dispatch

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/g960059/puppeteer/internal/db"
	"github.com/g960059/puppeteer/internal/model"
	"github.com/g960059/puppeteer/internal/testutil"
)

func request(now time.Time) Request {
	return Request{
		PortID:      testutil.PortID,
		ChannelID:   testutil.ChannelID,
		Delegator:   testutil.ICAAddress,
		Denom:       testutil.RemoteDenom,
		Instruction: model.Instruction{Kind: model.KindDelegate, Target: "valoper1", Amount: testutil.Amount(100)},
		Timeout:     time.Minute,
		Now:         now,
	}
}

func TestOutboxAssignsIncreasingSequences(t *testing.T) {
	store, ctx := testutil.NewStore(t)
	outbox := NewOutbox()
	now := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)

	var seqs []uint64
	for i := 0; i < 3; i++ {
		err := store.WithTx(ctx, func(tx *db.Tx) error {
			pkt, err := outbox.Dispatch(ctx, tx, request(now))
			if err != nil {
				return err
			}
			seqs = append(seqs, pkt.Sequence)
			require.Equal(t, now.Add(time.Minute), pkt.TimeoutAt)
			return nil
		})
		require.NoError(t, err)
	}
	require.Equal(t, []uint64{1, 2, 3}, seqs)

	queued, err := store.ListOutbox(ctx, 0, 10)
	require.NoError(t, err)
	require.Len(t, queued, 3)
	types, err := MessageTypes(queued[0].Data)
	require.NoError(t, err)
	require.Equal(t, []string{TypeURLMsgDelegate}, types)
	require.Equal(t, PacketTypeURL, queued[0].TypeURL)
}

func TestOutboxRollbackReleasesNothing(t *testing.T) {
	store, ctx := testutil.NewStore(t)
	outbox := NewOutbox()
	now := time.Now().UTC()

	err := store.WithTx(ctx, func(tx *db.Tx) error {
		if _, err := outbox.Dispatch(ctx, tx, request(now)); err != nil {
			return err
		}
		return context.Canceled
	})
	require.ErrorIs(t, err, context.Canceled)

	queued, err := store.ListOutbox(ctx, 0, 10)
	require.NoError(t, err)
	require.Empty(t, queued)

	seq, err := store.NextSequence(ctx, testutil.PortID)
	require.NoError(t, err)
	require.Equal(t, uint64(1), seq)
}

func TestOutboxValidatesRequest(t *testing.T) {
	store, ctx := testutil.NewStore(t)
	outbox := NewOutbox()

	req := request(time.Now().UTC())
	req.ChannelID = ""
	_, err := outbox.Dispatch(ctx, store, req)
	require.Error(t, err)

	req = request(time.Now().UTC())
	req.Timeout = 0
	_, err = outbox.Dispatch(ctx, store, req)
	require.Error(t, err)

	req = request(time.Now().UTC())
	req.Instruction.Target = ""
	_, err = outbox.Dispatch(ctx, store, req)
	require.ErrorIs(t, err, model.ErrInvalidInstruction)
}
