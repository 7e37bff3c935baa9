package core

import (
	"github.com/olyamironova/matching-engine/internal/domain"
)

// arena owns every resting order of a book. Slots are recycled through a
// free stack, and the participant table maps the identity a participant uses
// onto a slot.
type arena struct {
	orders []Order
	free   []orderHandle

	// byIdentity never holds more than len(orders) entries and is sized for
	// that up front.
	byIdentity      map[identity]orderHandle
	maxParticipants int
	maxOrderIDs     int
}

type identity struct {
	pid  domain.ParticipantID
	poid domain.OrderID
}

func newArena(l Limits) *arena {
	a := &arena{
		orders:          make([]Order, l.MaxOrders),
		free:            make([]orderHandle, l.MaxOrders),
		byIdentity:      make(map[identity]orderHandle, l.MaxOrders),
		maxParticipants: l.MaxParticipants,
		maxOrderIDs:     l.MaxOrderIDs,
	}
	// lowest handle on top
	for i := range a.free {
		a.free[i] = orderHandle(l.MaxOrders - 1 - i)
	}
	for i := range a.orders {
		a.orders[i].prev, a.orders[i].next = noOrder, noOrder
	}
	return a
}

func (a *arena) inRange(pid domain.ParticipantID, poid domain.OrderID) bool {
	return int(pid) < a.maxParticipants && poid < domain.OrderID(a.maxOrderIDs)
}

func (a *arena) lookup(pid domain.ParticipantID, poid domain.OrderID) (orderHandle, bool) {
	if !a.inRange(pid, poid) {
		return noOrder, false
	}
	h, ok := a.byIdentity[identity{pid, poid}]
	if !ok {
		return noOrder, false
	}
	return h, true
}

func (a *arena) canAllocate() bool { return len(a.free) > 0 }

func (a *arena) live() int { return len(a.orders) - len(a.free) }

// allocate stores o and indexes it under its participant identity. The
// caller has already rejected duplicates.
func (a *arena) allocate(o Order) (orderHandle, error) {
	if !a.inRange(o.ParticipantID, o.ParticipantOrderID) || len(a.free) == 0 {
		return noOrder, domain.ErrCapacityExceeded
	}
	h := a.free[len(a.free)-1]
	a.free = a.free[:len(a.free)-1]

	o.prev, o.next = noOrder, noOrder
	a.orders[h] = o

	a.byIdentity[identity{o.ParticipantID, o.ParticipantOrderID}] = h
	return h, nil
}

func (a *arena) release(h orderHandle) {
	o := &a.orders[h]
	delete(a.byIdentity, identity{o.ParticipantID, o.ParticipantOrderID})
	*o = Order{prev: noOrder, next: noOrder}
	a.free = append(a.free, h)
}

func (a *arena) at(h orderHandle) *Order { return &a.orders[h] }
