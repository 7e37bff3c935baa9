package gateway

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/olyamironova/matching-engine/internal/adapter/in_memory"
	"github.com/olyamironova/matching-engine/internal/adapter/outbox"
	"github.com/olyamironova/matching-engine/internal/core"
	"github.com/olyamironova/matching-engine/internal/domain"
	"github.com/olyamironova/matching-engine/internal/engine"
	"github.com/olyamironova/matching-engine/internal/market"
	"github.com/olyamironova/matching-engine/internal/marketdata"
)

type harness struct {
	gw      *Gateway
	journal *in_memory.Journal
	cache   *in_memory.Cache
	outbox  *outbox.Outbox
	hub     *marketdata.Hub
	stop    func()
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	log := zaptest.NewLogger(t)
	markets, err := market.New([]string{"BTC-USD", "ETH-USD"}, decimal.RequireFromString("0.01"))
	require.NoError(t, err)

	requests := make(chan domain.ParticipantRequest, 16)
	responses := make(chan domain.ParticipantResponse, 64)
	updates := make(chan domain.MarketUpdate, 64)

	eng, err := engine.New(engine.Config{
		Symbols:   markets.IDs(),
		Limits:    core.Limits{MaxParticipants: 16, MaxOrderIDs: 1024, MaxOrders: 256, MaxPriceLevels: 256},
		InboxSize: 16,
	}, log, requests, responses, updates)
	require.NoError(t, err)

	ob, err := outbox.Open(t.TempDir())
	require.NoError(t, err)

	h := &harness{
		journal: in_memory.NewJournal(100),
		cache:   in_memory.NewCache(),
		outbox:  ob,
		hub:     marketdata.NewHub(),
	}
	h.gw = New(Config{RequestTimeout: time.Second, DepthLevels: 5, DepthRefresh: 5 * time.Millisecond}, log, Deps{
		Books:   eng,
		Markets: markets,
		Journal: h.journal,
		Cache:   h.cache,
		Outbox:  ob,
		Hub:     h.hub,
	}, requests, responses, updates)

	ctx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	wg.Add(2)
	go func() { defer wg.Done(); _ = eng.Run(ctx) }()
	go func() { defer wg.Done(); _ = h.gw.Run(ctx) }()

	var once sync.Once
	h.stop = func() {
		once.Do(func() {
			cancel()
			wg.Wait()
			_ = ob.Close()
		})
	}
	t.Cleanup(h.stop)
	return h
}

func (h *harness) pending(t *testing.T, kind string) int {
	n := 0
	require.NoError(t, h.outbox.ScanPending(kind, 0, func(outbox.Record) error {
		n++
		return nil
	}))
	return n
}

func TestSubmitReturnsAcknowledgements(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	r, err := h.gw.Submit(ctx, domain.NewOrderRequest(1, 0, 10, domain.SideBuy, 100, 5))
	require.NoError(t, err)
	assert.Equal(t, domain.ResponseAccepted, r.Type)
	assert.Equal(t, domain.OrderID(0), r.InternalOrderID)
	assert.Equal(t, domain.Quantity(5), r.RemainingQty)

	r, err = h.gw.Submit(ctx, domain.NewOrderRequest(1, 0, 10, domain.SideBuy, 100, 5))
	require.NoError(t, err)
	assert.Equal(t, domain.ResponseRejected, r.Type)

	r, err = h.gw.Cancel(ctx, 1, 0, 10)
	require.NoError(t, err)
	assert.Equal(t, domain.ResponseCancelled, r.Type)

	r, err = h.gw.Cancel(ctx, 1, 0, 10)
	require.NoError(t, err)
	assert.Equal(t, domain.ResponseCancelRejected, r.Type)

	r, err = h.gw.Submit(ctx, domain.NewOrderRequest(1, 5, 11, domain.SideBuy, 100, 5))
	require.NoError(t, err)
	assert.Equal(t, domain.ResponseRejected, r.Type)

	_, err = h.gw.Submit(ctx, domain.ParticipantRequest{Type: domain.RequestInvalid})
	assert.ErrorIs(t, err, domain.ErrInvalidRequest)
}

func TestDuplicateSubmitsGetTheirOwnAck(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	for i := 0; i < 200; i++ {
		poid := domain.OrderID(i)
		prices := [2]domain.Price{100, 200}
		var got [2]domain.ParticipantResponse
		var errs [2]error

		var wg sync.WaitGroup
		for j := range prices {
			wg.Add(1)
			go func() {
				defer wg.Done()
				got[j], errs[j] = h.gw.Submit(ctx, domain.NewOrderRequest(1, 0, poid, domain.SideBuy, prices[j], 1))
			}()
		}
		wg.Wait()

		accepted := 0
		for j := range prices {
			require.NoError(t, errs[j])
			assert.Equal(t, prices[j], got[j].Price, "round %d caller %d", i, j)
			if got[j].Type == domain.ResponseAccepted {
				accepted++
			}
		}
		require.Equal(t, 1, accepted, "round %d", i)
	}
}

func TestEventsReachEverySink(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	sub := h.hub.Subscribe(16)
	sub.WatchAll()
	defer sub.Close()

	_, err := h.gw.Submit(ctx, domain.NewOrderRequest(1, 0, 1, domain.SideBuy, 100, 10))
	require.NoError(t, err)
	r, err := h.gw.Submit(ctx, domain.NewOrderRequest(2, 0, 1, domain.SideSell, 100, 4))
	require.NoError(t, err)
	assert.Equal(t, domain.ResponseAccepted, r.Type)

	var got []marketdata.Event
	for len(got) < 2 {
		select {
		case ev := <-sub.C():
			got = append(got, ev)
		case <-time.After(time.Second):
			t.Fatalf("timed out after %d events", len(got))
		}
	}
	assert.Equal(t, domain.UpdateAdd, got[0].Update.Type)
	assert.Equal(t, domain.UpdateTrade, got[1].Update.Type)
	assert.Equal(t, got[0].Seq+1, got[1].Seq)

	assert.Eventually(t, func() bool {
		trades, _ := h.gw.RecentTrades(ctx, 0, 10)
		return len(trades) == 1 && trades[0].Quantity == 4
	}, time.Second, 5*time.Millisecond)
	assert.Eventually(t, func() bool {
		return h.pending(t, outbox.KindMarketUpdate) == 2 && h.pending(t, outbox.KindExecution) == 4
	}, time.Second, 5*time.Millisecond)

	var types []domain.ResponseType
	for _, r := range h.journal.Responses(1) {
		types = append(types, r.Type)
	}
	assert.Equal(t, []domain.ResponseType{domain.ResponseAccepted, domain.ResponseFilled}, types)
}

func TestDepthReflectsAcknowledgedOrders(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	_, err := h.gw.Submit(ctx, domain.NewOrderRequest(1, 0, 1, domain.SideBuy, 100, 3))
	require.NoError(t, err)
	snap, err := h.gw.Depth(ctx, 0, 0)
	require.NoError(t, err)
	require.Len(t, snap.Bids, 1)
	assert.Equal(t, uint64(3), snap.Bids[0].Quantity)

	_, err = h.gw.Submit(ctx, domain.NewOrderRequest(1, 0, 2, domain.SideBuy, 99, 2))
	require.NoError(t, err)
	snap, err = h.gw.Depth(ctx, 0, 0)
	require.NoError(t, err)
	require.Len(t, snap.Bids, 2)

	snap, err = h.gw.Depth(ctx, 0, 1)
	require.NoError(t, err)
	require.Len(t, snap.Bids, 1)
	assert.Equal(t, domain.Price(100), snap.Bids[0].Price)

	_, err = h.gw.Depth(ctx, 7, 0)
	assert.ErrorIs(t, err, domain.ErrUnknownSymbol)
}

func TestDepthRefresherFillsCache(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	_, err := h.gw.Submit(ctx, domain.NewOrderRequest(3, 1, 1, domain.SideSell, 250, 1))
	require.NoError(t, err)

	assert.Eventually(t, func() bool {
		snap, _ := h.cache.GetDepth(ctx, "ETH-USD")
		return snap != nil && len(snap.Asks) == 1 && snap.Asks[0].Price == 250
	}, time.Second, 5*time.Millisecond)

	snap, err := h.gw.Depth(ctx, 1, 0)
	require.NoError(t, err)
	require.Len(t, snap.Asks, 1)
}

func TestOrderLookup(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	_, err := h.gw.Submit(ctx, domain.NewOrderRequest(4, 0, 9, domain.SideSell, 120, 6))
	require.NoError(t, err)

	o, ok, err := h.gw.Order(ctx, 0, 4, 9)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, domain.Quantity(6), o.Qty)

	_, ok, err = h.gw.Order(ctx, 0, 4, 10)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSubmitAfterStop(t *testing.T) {
	h := newHarness(t)
	h.stop()

	_, err := h.gw.Submit(context.Background(), domain.NewOrderRequest(1, 0, 1, domain.SideBuy, 100, 1))
	assert.ErrorIs(t, err, domain.ErrEngineStopped)
}

func TestRestoreSequences(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	require.NoError(t, h.journal.SaveResponse(ctx, 5, domain.CancelRejectedResponse(1, 0, 1)))
	require.NoError(t, h.journal.SaveMarketUpdate(ctx, 9, domain.MarketUpdate{Type: domain.UpdateAdd}))
	require.NoError(t, h.outbox.Put(outbox.KindMarketUpdate, 12, nil, []byte("{}")))

	require.NoError(t, h.gw.RestoreSequences(ctx))
	assert.Equal(t, uint64(5), h.gw.respSeq.Current())
	assert.Equal(t, uint64(12), h.gw.mdSeq.Current())
}

func TestRestoreSequencesAfterOutboxDrained(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	for seq := uint64(1); seq <= 3; seq++ {
		require.NoError(t, h.outbox.Put(outbox.KindExecution, seq, []byte("1"), []byte("{}")))
	}
	require.NoError(t, h.outbox.ScanPending(outbox.KindExecution, 0, h.outbox.Ack))
	require.Zero(t, h.pending(t, outbox.KindExecution))

	require.NoError(t, h.gw.RestoreSequences(ctx))
	assert.Equal(t, uint64(3), h.gw.respSeq.Current())
}
