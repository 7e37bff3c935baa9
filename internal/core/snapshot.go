package core

import (
	"time"

	"github.com/olyamironova/matching-engine/internal/domain"
)

// Depth aggregates up to n levels per side, best first. n <= 0 means all.
func (b *OrderBook) Depth(n int) domain.BookSnapshot {
	return domain.BookSnapshot{
		Symbol:    b.symbol,
		Bids:      b.depthSide(domain.SideBuy, n),
		Asks:      b.depthSide(domain.SideSell, n),
		Timestamp: time.Now().UTC(),
	}
}

func (b *OrderBook) depthSide(side domain.Side, n int) []domain.DepthLevel {
	out := []domain.DepthLevel{}
	for s := b.levels.best(side); s != noLevel; s = b.levels.at(s).next {
		if n > 0 && len(out) == n {
			break
		}
		lvl := b.levels.at(s)
		out = append(out, domain.DepthLevel{
			Price:    lvl.price,
			Quantity: lvl.qty,
			Orders:   lvl.orders,
		})
	}
	return out
}
