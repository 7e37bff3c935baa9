package core

import (
	"fmt"

	"github.com/olyamironova/matching-engine/internal/domain"
)

// orderHandle indexes the arena's order slice. It stays valid until the
// order is released.
type orderHandle int32

const noOrder orderHandle = -1

// Order is a resting order. prev and next link it into the circular FIFO of
// its price level; the head's prev is the tail.
type Order struct {
	SymbolID           domain.SymbolID
	ParticipantID      domain.ParticipantID
	ParticipantOrderID domain.OrderID
	InternalOrderID    domain.OrderID
	Side               domain.Side
	Price              domain.Price
	Qty                domain.Quantity
	Priority           domain.Priority

	prev orderHandle
	next orderHandle
}

func (o Order) String() string {
	return fmt.Sprintf("Order [symb: %d, order: %d, ioid: %d, side: %s, price: %d, qty: %d, priority: %d, prev: %d, next:%d]",
		o.SymbolID, o.ParticipantOrderID, o.InternalOrderID, o.Side, o.Price, o.Qty, o.Priority, o.prev, o.next)
}
