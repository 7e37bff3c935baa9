package in_memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/olyamironova/matching-engine/internal/domain"
	"github.com/olyamironova/matching-engine/internal/port"
)

func TestCacheCopiesSnapshots(t *testing.T) {
	ctx := context.Background()
	c := NewCache()

	got, err := c.GetDepth(ctx, "BTC-USD")
	require.NoError(t, err)
	assert.Nil(t, got)

	snap := &domain.BookSnapshot{Bids: []domain.DepthLevel{{Price: 10, Quantity: 1, Orders: 1}}}
	require.NoError(t, c.SetDepth(ctx, "BTC-USD", snap))
	snap.Bids[0].Quantity = 99

	got, err = c.GetDepth(ctx, "BTC-USD")
	require.NoError(t, err)
	assert.Equal(t, uint64(1), got.Bids[0].Quantity)

	require.NoError(t, c.Invalidate(ctx, "BTC-USD"))
	got, _ = c.GetDepth(ctx, "BTC-USD")
	assert.Nil(t, got)
}

func TestJournalRecentTrades(t *testing.T) {
	ctx := context.Background()
	j := NewJournal(2)

	trade := func(seq uint64, qty domain.Quantity) {
		u := domain.MarketUpdate{Type: domain.UpdateTrade, OrderID: 1, SymbolID: 0, Side: domain.SideBuy, Price: 100, Qty: qty, Priority: 1}
		require.NoError(t, j.SaveMarketUpdate(ctx, seq, u))
	}
	require.NoError(t, j.SaveMarketUpdate(ctx, 1, domain.MarketUpdate{Type: domain.UpdateAdd, SymbolID: 0}))
	trade(2, 5)
	trade(3, 6)
	trade(4, 7)

	got, err := j.RecentTrades(ctx, 0, 10)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, uint64(4), got[0].Seq)
	assert.Equal(t, domain.Quantity(6), got[1].Quantity)

	got, _ = j.RecentTrades(ctx, 0, 1)
	assert.Len(t, got, 1)
	got, _ = j.RecentTrades(ctx, 1, 10)
	assert.Empty(t, got)

	require.NoError(t, j.SaveResponse(ctx, 9, domain.CancelRejectedResponse(5, 0, 1)))
	resp, md, err := j.LastSequences(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(9), resp)
	assert.Equal(t, uint64(4), md)
	assert.Len(t, j.Responses(5), 1)
}

func TestJournalSaveBatch(t *testing.T) {
	ctx := context.Background()
	j := NewJournal(10)

	require.NoError(t, j.SaveBatch(ctx, port.JournalBatch{
		Responses: []port.SequencedResponse{
			{Seq: 1, Response: domain.CancelRejectedResponse(3, 0, 1)},
			{Seq: 2, Response: domain.CancelRejectedResponse(3, 0, 2)},
		},
		Updates: []port.SequencedUpdate{
			{Seq: 7, Update: domain.MarketUpdate{Type: domain.UpdateTrade, OrderID: 4, SymbolID: 0, Side: domain.SideSell, Price: 100, Qty: 2, Priority: 1}},
		},
	}))

	assert.Len(t, j.Responses(3), 2)
	got, err := j.RecentTrades(ctx, 0, 10)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, uint64(7), got[0].Seq)

	resp, md, err := j.LastSequences(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), resp)
	assert.Equal(t, uint64(7), md)
}
