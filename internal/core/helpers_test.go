package core

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/olyamironova/matching-engine/internal/domain"
)

type recorder struct {
	responses []domain.ParticipantResponse
	updates   []domain.MarketUpdate
}

func (r *recorder) OnParticipantResponse(resp domain.ParticipantResponse) {
	r.responses = append(r.responses, resp)
}

func (r *recorder) OnMarketUpdate(u domain.MarketUpdate) {
	r.updates = append(r.updates, u)
}

func (r *recorder) reset() {
	r.responses = nil
	r.updates = nil
}

func smallLimits() Limits {
	return Limits{
		MaxParticipants: 16,
		MaxOrderIDs:     128,
		MaxOrders:       64,
		MaxPriceLevels:  256,
	}
}

func newTestBook(t *testing.T, limits Limits) (*OrderBook, *recorder) {
	t.Helper()
	rec := &recorder{}
	b, err := NewOrderBook(0, limits, rec)
	require.NoError(t, err)
	return b, rec
}

// validate walks both sides and checks every structural invariant of the
// book.
func (b *OrderBook) validate() error {
	reachable := 0
	levelsSeen := 0
	for _, side := range []domain.Side{domain.SideBuy, domain.SideSell} {
		prev := noLevel
		for s := b.levels.best(side); s != noLevel; s = b.levels.at(s).next {
			lvl := b.levels.at(s)
			levelsSeen++
			if !lvl.used || lvl.side != side {
				return fmt.Errorf("%s chain: slot %d not a %s level", side, s, side)
			}
			if lvl.prev != prev {
				return fmt.Errorf("%s chain: slot %d prev %d, want %d", side, s, lvl.prev, prev)
			}
			if prev != noLevel && !moreAggressive(side, b.levels.at(prev).price, lvl.price) {
				return fmt.Errorf("%s chain: %d not better than %d", side, b.levels.at(prev).price, lvl.price)
			}
			if lvl.head == noOrder {
				return fmt.Errorf("%s level %d is empty", side, lvl.price)
			}

			count := 0
			var qty uint64
			var lastPrio domain.Priority
			h := lvl.head
			for {
				o := b.orders.at(h)
				if o.Price != lvl.price || o.Side != side {
					return fmt.Errorf("order %d sits in level %s %d", o.InternalOrderID, side, lvl.price)
				}
				if o.Qty == 0 {
					return fmt.Errorf("order %d rests with zero quantity", o.InternalOrderID)
				}
				if count > 0 && o.Priority <= lastPrio {
					return fmt.Errorf("level %d: priority %d after %d", lvl.price, o.Priority, lastPrio)
				}
				if b.orders.at(o.next).prev != h {
					return fmt.Errorf("order %d: broken next link", o.InternalOrderID)
				}
				lastPrio = o.Priority
				count++
				qty += uint64(o.Qty)
				h = o.next
				if h == lvl.head {
					break
				}
			}
			if count != lvl.orders || qty != lvl.qty {
				return fmt.Errorf("level %d: counted %d/%d, recorded %d/%d", lvl.price, count, qty, lvl.orders, lvl.qty)
			}
			reachable += count
			prev = s
		}
	}

	used := 0
	for i := range b.levels.levels {
		if b.levels.levels[i].used {
			used++
		}
	}
	if used != levelsSeen {
		return fmt.Errorf("%d levels in use, %d reachable", used, levelsSeen)
	}
	if reachable != b.orders.live() {
		return fmt.Errorf("%d orders reachable, %d allocated", reachable, b.orders.live())
	}

	bid, hasBid := b.BestBid()
	ask, hasAsk := b.BestAsk()
	if hasBid && hasAsk && bid >= ask {
		return fmt.Errorf("crossed book: bid %d ask %d", bid, ask)
	}
	return nil
}
