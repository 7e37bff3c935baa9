package core

import (
	"github.com/olyamironova/matching-engine/internal/domain"
)

// match trades the incoming order against the opposite side in price-time
// priority and returns the quantity left unfilled. Every fill executes at the
// resting level's price.
func (b *OrderBook) match(pid domain.ParticipantID, poid domain.OrderID, ioid domain.OrderID, side domain.Side, limit domain.Price, qty domain.Quantity) domain.Quantity {
	opposite := side.Opposite()
	for qty > 0 {
		slot := b.levels.best(opposite)
		if slot == noLevel {
			break
		}
		lvl := b.levels.at(slot)
		if !crosses(side, limit, lvl.price) {
			break
		}

		h := lvl.head
		resting := b.orders.at(h)
		fill := min(qty, resting.Qty)
		qty -= fill
		resting.Qty -= fill
		lvl.qty -= uint64(fill)

		b.listener.OnParticipantResponse(domain.ParticipantResponse{
			Type:               domain.ResponseFilled,
			ParticipantID:      pid,
			SymbolID:           b.symbol,
			ParticipantOrderID: poid,
			InternalOrderID:    ioid,
			Side:               side,
			Price:              lvl.price,
			ExecutedQty:        fill,
			RemainingQty:       qty,
		})
		b.listener.OnParticipantResponse(domain.ParticipantResponse{
			Type:               domain.ResponseFilled,
			ParticipantID:      resting.ParticipantID,
			SymbolID:           b.symbol,
			ParticipantOrderID: resting.ParticipantOrderID,
			InternalOrderID:    resting.InternalOrderID,
			Side:               resting.Side,
			Price:              lvl.price,
			ExecutedQty:        fill,
			RemainingQty:       resting.Qty,
		})
		b.listener.OnMarketUpdate(domain.MarketUpdate{
			Type:     domain.UpdateTrade,
			OrderID:  resting.InternalOrderID,
			SymbolID: b.symbol,
			Side:     resting.Side,
			Price:    lvl.price,
			Qty:      fill,
			Priority: resting.Priority,
		})

		if resting.Qty == 0 {
			b.unlink(h)
		}
	}
	return qty
}
