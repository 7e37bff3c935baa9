package core

import (
	"testing"

	"pgregory.net/rapid"

	"github.com/olyamironova/matching-engine/internal/domain"
)

func TestBookInvariantsHold(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		rec := &recorder{}
		b, err := NewOrderBook(0, Limits{
			MaxParticipants: 4,
			MaxOrderIDs:     16,
			MaxOrders:       32,
			MaxPriceLevels:  64,
		}, rec)
		if err != nil {
			t.Fatalf("new book: %v", err)
		}

		steps := rapid.IntRange(1, 200).Draw(t, "steps")
		for i := 0; i < steps; i++ {
			pid := domain.ParticipantID(rapid.IntRange(0, 3).Draw(t, "pid"))
			poid := domain.OrderID(rapid.IntRange(0, 15).Draw(t, "poid"))
			rec.reset()

			if rapid.IntRange(0, 3).Draw(t, "op") == 0 {
				before := b.Len()
				_, live := b.Order(pid, poid)
				err := b.Cancel(pid, poid)
				if live != (err == nil) {
					t.Fatalf("cancel of live=%v order returned %v", live, err)
				}
				if live && b.Len() != before-1 {
					t.Fatalf("cancel left %d orders, want %d", b.Len(), before-1)
				}
			} else {
				side := rapid.SampledFrom([]domain.Side{domain.SideBuy, domain.SideSell}).Draw(t, "side")
				price := domain.Price(rapid.IntRange(95, 105).Draw(t, "price"))
				qty := domain.Quantity(rapid.IntRange(1, 20).Draw(t, "qty"))
				wantPrio := domain.Priority(1)
				if _, ok := b.levels.find(side, price); ok {
					wantPrio = b.nextPriority(price)
				}
				if err := b.Add(pid, poid, side, price, qty); err == nil {
					checkConservation(t, rec, pid, poid, qty)
					for _, u := range rec.updates {
						if u.Type == domain.UpdateAdd && u.Priority != wantPrio {
							t.Fatalf("rested at %d with priority %d, want %d", u.Price, u.Priority, wantPrio)
						}
					}
				} else if len(rec.updates) != 0 {
					t.Fatalf("rejected add emitted %d updates", len(rec.updates))
				}
			}

			if err := b.validate(); err != nil {
				t.Fatalf("step %d: %v", i, err)
			}
		}
	})
}

// checkConservation verifies the events of one accepted Add. Fills come in
// (incoming, resting) pairs with equal quantities, each pair matches one Trade
// update, and traded plus rested quantity equals the requested quantity.
func checkConservation(t *rapid.T, rec *recorder, pid domain.ParticipantID, poid domain.OrderID, qty domain.Quantity) {
	fills := rec.responses[1:]
	if len(fills)%2 != 0 {
		t.Fatalf("odd number of fill responses: %d", len(fills))
	}
	var trades []domain.MarketUpdate
	var rested domain.Quantity
	for _, u := range rec.updates {
		switch u.Type {
		case domain.UpdateTrade:
			trades = append(trades, u)
		case domain.UpdateAdd:
			rested = u.Qty
		}
	}
	if len(trades) != len(fills)/2 {
		t.Fatalf("%d trades for %d fill pairs", len(trades), len(fills)/2)
	}

	var traded uint64
	for i, tr := range trades {
		in, out := fills[2*i], fills[2*i+1]
		if in.ParticipantID != pid || in.ParticipantOrderID != poid {
			t.Fatalf("fill %d: incoming fill addressed to %d/%d", i, in.ParticipantID, in.ParticipantOrderID)
		}
		if in.ExecutedQty != tr.Qty || out.ExecutedQty != tr.Qty {
			t.Fatalf("fill %d: incoming %d resting %d trade %d", i, in.ExecutedQty, out.ExecutedQty, tr.Qty)
		}
		if out.InternalOrderID != tr.OrderID {
			t.Fatalf("fill %d: resting order %d traded as %d", i, out.InternalOrderID, tr.OrderID)
		}
		traded += uint64(tr.Qty)
	}
	if traded+uint64(rested) != uint64(qty) {
		t.Fatalf("traded %d + rested %d != requested %d", traded, rested, qty)
	}
}
