package core

import (
	"fmt"

	"github.com/olyamironova/matching-engine/internal/domain"
)

// Listener receives the events an OrderBook emits, in emission order.
type Listener interface {
	OnParticipantResponse(domain.ParticipantResponse)
	OnMarketUpdate(domain.MarketUpdate)
}

// OrderBook holds the resting orders of one symbol. It is not safe for
// concurrent use: one goroutine owns it for its whole life.
type OrderBook struct {
	symbol   domain.SymbolID
	orders   *arena
	levels   *levelTable
	listener Listener

	nextOrderID domain.OrderID
}

func NewOrderBook(symbol domain.SymbolID, limits Limits, listener Listener) (*OrderBook, error) {
	if err := limits.Validate(); err != nil {
		return nil, err
	}
	if listener == nil {
		return nil, fmt.Errorf("core: nil listener for symbol %d", symbol)
	}
	return &OrderBook{
		symbol:      symbol,
		orders:      newArena(limits),
		levels:      newLevelTable(limits.MaxPriceLevels),
		listener:    listener,
		nextOrderID: 1,
	}, nil
}

func (b *OrderBook) Symbol() domain.SymbolID { return b.symbol }

func (b *OrderBook) generateInternalOrderID() domain.OrderID {
	id := b.nextOrderID
	b.nextOrderID++
	return id
}

// nextPriority returns the priority a new order at price would get: one past
// the tail of its level, or 1 when the level does not exist yet.
func (b *OrderBook) nextPriority(price domain.Price) domain.Priority {
	lvl := b.levels.at(b.levels.slotOf(price))
	if !lvl.used || lvl.price != price {
		return 1
	}
	tail := b.orders.at(b.orders.at(lvl.head).prev)
	return tail.Priority + 1
}

// Add accepts a new order, matches it against the opposite side and rests
// whatever is left. A rejection is reported both as a Rejected response and
// as the returned error; in that case the book is unchanged.
func (b *OrderBook) Add(pid domain.ParticipantID, poid domain.OrderID, side domain.Side, price domain.Price, qty domain.Quantity) error {
	if err := b.admit(pid, poid, side, price, qty); err != nil {
		b.listener.OnParticipantResponse(domain.ParticipantResponse{
			Type:               domain.ResponseRejected,
			ParticipantID:      pid,
			SymbolID:           b.symbol,
			ParticipantOrderID: poid,
			InternalOrderID:    domain.InvalidOrderID,
			Side:               side,
			Price:              price,
			ExecutedQty:        0,
			RemainingQty:       0,
		})
		return err
	}

	ioid := b.generateInternalOrderID()
	b.listener.OnParticipantResponse(domain.ParticipantResponse{
		Type:               domain.ResponseAccepted,
		ParticipantID:      pid,
		SymbolID:           b.symbol,
		ParticipantOrderID: poid,
		InternalOrderID:    ioid,
		Side:               side,
		Price:              price,
		ExecutedQty:        0,
		RemainingQty:       qty,
	})

	remaining := b.match(pid, poid, ioid, side, price, qty)
	if remaining == 0 {
		return nil
	}
	b.rest(pid, poid, ioid, side, price, remaining)
	return nil
}

// admit runs every check Add needs before it may touch the book.
func (b *OrderBook) admit(pid domain.ParticipantID, poid domain.OrderID, side domain.Side, price domain.Price, qty domain.Quantity) error {
	if side != domain.SideBuy && side != domain.SideSell {
		panic(fmt.Sprintf("core: add with %s side", side))
	}
	if qty == 0 || qty == domain.InvalidQuantity || price == domain.InvalidPrice {
		return domain.ErrInvalidRequest
	}
	if !b.orders.inRange(pid, poid) {
		return domain.ErrCapacityExceeded
	}
	if _, ok := b.orders.lookup(pid, poid); ok {
		return domain.ErrDuplicateOrder
	}
	if !b.orders.canAllocate() || !b.slotAvailable(side, price) {
		return domain.ErrCapacityExceeded
	}
	return nil
}

// slotAvailable reports whether a residual at price could get a level slot.
// An opposite-side occupant that the order crosses is always emptied by
// matching before anything rests, so its slot counts as free.
func (b *OrderBook) slotAvailable(side domain.Side, price domain.Price) bool {
	lvl := b.levels.at(b.levels.slotOf(price))
	if !lvl.used || lvl.price == price {
		return true
	}
	return lvl.side != side && crosses(side, price, lvl.price)
}

func (b *OrderBook) rest(pid domain.ParticipantID, poid domain.OrderID, ioid domain.OrderID, side domain.Side, price domain.Price, qty domain.Quantity) {
	priority := b.nextPriority(price)
	slot, ok := b.levels.find(side, price)
	if !ok {
		slot = b.levels.insert(side, price)
	}
	h, err := b.orders.allocate(Order{
		SymbolID:           b.symbol,
		ParticipantID:      pid,
		ParticipantOrderID: poid,
		InternalOrderID:    ioid,
		Side:               side,
		Price:              price,
		Qty:                qty,
		Priority:           priority,
	})
	if err != nil {
		// admit reserved the slot; failing here means the arena is corrupt
		panic(fmt.Sprintf("core: allocate after admit: %v", err))
	}
	b.linkTail(slot, h)

	b.listener.OnMarketUpdate(domain.MarketUpdate{
		Type:     domain.UpdateAdd,
		OrderID:  ioid,
		SymbolID: b.symbol,
		Side:     side,
		Price:    price,
		Qty:      qty,
		Priority: priority,
	})
}

// Cancel removes a resting order. An unknown identity is answered with
// CancelRejected and ErrUnknownOrder.
func (b *OrderBook) Cancel(pid domain.ParticipantID, poid domain.OrderID) error {
	h, ok := b.orders.lookup(pid, poid)
	if !ok {
		b.listener.OnParticipantResponse(domain.CancelRejectedResponse(pid, b.symbol, poid))
		return domain.ErrUnknownOrder
	}
	o := *b.orders.at(h)

	b.listener.OnParticipantResponse(domain.ParticipantResponse{
		Type:               domain.ResponseCancelled,
		ParticipantID:      pid,
		SymbolID:           b.symbol,
		ParticipantOrderID: poid,
		InternalOrderID:    o.InternalOrderID,
		Side:               o.Side,
		Price:              o.Price,
		ExecutedQty:        0,
		RemainingQty:       o.Qty,
	})
	b.listener.OnMarketUpdate(domain.MarketUpdate{
		Type:     domain.UpdateCancel,
		OrderID:  o.InternalOrderID,
		SymbolID: b.symbol,
		Side:     o.Side,
		Price:    o.Price,
		Qty:      o.Qty,
		Priority: o.Priority,
	})
	b.unlink(h)
	return nil
}

func (b *OrderBook) linkTail(slot levelSlot, h orderHandle) {
	lvl := b.levels.at(slot)
	o := b.orders.at(h)
	if lvl.head == noOrder {
		lvl.head = h
		o.prev, o.next = h, h
	} else {
		head := b.orders.at(lvl.head)
		tail := head.prev
		o.prev = tail
		o.next = lvl.head
		b.orders.at(tail).next = h
		head.prev = h
	}
	lvl.orders++
	lvl.qty += uint64(o.Qty)
}

// unlink takes the order out of its level, drops the level when it empties
// and returns the slot to the arena.
func (b *OrderBook) unlink(h orderHandle) {
	o := b.orders.at(h)
	slot := b.levels.slotOf(o.Price)
	lvl := b.levels.at(slot)

	if o.next == h {
		b.levels.remove(slot)
	} else {
		b.orders.at(o.prev).next = o.next
		b.orders.at(o.next).prev = o.prev
		if lvl.head == h {
			lvl.head = o.next
		}
		lvl.orders--
		lvl.qty -= uint64(o.Qty)
	}
	b.orders.release(h)
}

// BestBid returns the highest resting bid.
func (b *OrderBook) BestBid() (domain.Price, bool) { return b.bestPrice(domain.SideBuy) }

// BestAsk returns the lowest resting ask.
func (b *OrderBook) BestAsk() (domain.Price, bool) { return b.bestPrice(domain.SideSell) }

func (b *OrderBook) bestPrice(side domain.Side) (domain.Price, bool) {
	s := b.levels.best(side)
	if s == noLevel {
		return domain.InvalidPrice, false
	}
	return b.levels.at(s).price, true
}

// Order returns a copy of the resting order a participant knows as poid.
func (b *OrderBook) Order(pid domain.ParticipantID, poid domain.OrderID) (Order, bool) {
	h, ok := b.orders.lookup(pid, poid)
	if !ok {
		return Order{}, false
	}
	return *b.orders.at(h), true
}

// Len is the number of resting orders.
func (b *OrderBook) Len() int { return b.orders.live() }
