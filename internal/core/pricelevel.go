package core

import (
	"fmt"

	"github.com/olyamironova/matching-engine/internal/domain"
)

// levelSlot indexes the level table.
type levelSlot int32

const noLevel levelSlot = -1

// priceLevel is one price on one side. prev points at the next more
// aggressive level, next at the next less aggressive one.
type priceLevel struct {
	used   bool
	side   domain.Side
	price  domain.Price
	head   orderHandle
	prev   levelSlot
	next   levelSlot
	orders int
	qty    uint64
}

var emptyLevel = priceLevel{head: noOrder, prev: noLevel, next: noLevel}

// levelTable is a direct-indexed array of price levels. A price lives in
// slot price % len(levels); a slot holds at most one price at a time.
type levelTable struct {
	levels  []priceLevel
	bestBid levelSlot
	bestAsk levelSlot
}

func newLevelTable(n int) *levelTable {
	t := &levelTable{
		levels:  make([]priceLevel, n),
		bestBid: noLevel,
		bestAsk: noLevel,
	}
	for i := range t.levels {
		t.levels[i] = emptyLevel
	}
	return t
}

func (t *levelTable) slotOf(price domain.Price) levelSlot {
	return levelSlot(price % domain.Price(len(t.levels)))
}

func (t *levelTable) at(s levelSlot) *priceLevel { return &t.levels[s] }

// find returns the slot holding price on side, if that level exists.
func (t *levelTable) find(side domain.Side, price domain.Price) (levelSlot, bool) {
	s := t.slotOf(price)
	lvl := &t.levels[s]
	if !lvl.used || lvl.side != side || lvl.price != price {
		return noLevel, false
	}
	return s, true
}

func (t *levelTable) best(side domain.Side) levelSlot {
	switch side {
	case domain.SideBuy:
		return t.bestBid
	case domain.SideSell:
		return t.bestAsk
	}
	panic(fmt.Sprintf("core: best level for %s side", side))
}

func (t *levelTable) setBest(side domain.Side, s levelSlot) {
	switch side {
	case domain.SideBuy:
		t.bestBid = s
	case domain.SideSell:
		t.bestAsk = s
	default:
		panic(fmt.Sprintf("core: set best level for %s side", side))
	}
}

// insert creates an empty level for price and splices it into the side's
// chain. The slot must be free.
func (t *levelTable) insert(side domain.Side, price domain.Price) levelSlot {
	s := t.slotOf(price)
	lvl := &t.levels[s]
	if lvl.used {
		panic(fmt.Sprintf("core: level slot %d already holds %s %d", s, lvl.side, lvl.price))
	}
	*lvl = emptyLevel
	lvl.used = true
	lvl.side = side
	lvl.price = price

	cur := t.best(side)
	if cur == noLevel {
		t.setBest(side, s)
		return s
	}
	if moreAggressive(side, price, t.levels[cur].price) {
		lvl.next = cur
		t.levels[cur].prev = s
		t.setBest(side, s)
		return s
	}
	for {
		nxt := t.levels[cur].next
		if nxt == noLevel || moreAggressive(side, price, t.levels[nxt].price) {
			lvl.prev = cur
			lvl.next = nxt
			t.levels[cur].next = s
			if nxt != noLevel {
				t.levels[nxt].prev = s
			}
			return s
		}
		cur = nxt
	}
}

// remove splices the level out of its chain and frees the slot.
func (t *levelTable) remove(s levelSlot) {
	lvl := &t.levels[s]
	if lvl.prev != noLevel {
		t.levels[lvl.prev].next = lvl.next
	} else {
		t.setBest(lvl.side, lvl.next)
	}
	if lvl.next != noLevel {
		t.levels[lvl.next].prev = lvl.prev
	}
	*lvl = emptyLevel
}

// moreAggressive reports whether a is a better price than b for side.
func moreAggressive(side domain.Side, a, b domain.Price) bool {
	switch side {
	case domain.SideBuy:
		return a > b
	case domain.SideSell:
		return a < b
	}
	panic(fmt.Sprintf("core: price ordering for %s side", side))
}

// crosses reports whether an incoming order on side with the given limit
// trades against a resting level at price.
func crosses(side domain.Side, limit, price domain.Price) bool {
	switch side {
	case domain.SideBuy:
		return price <= limit
	case domain.SideSell:
		return price >= limit
	}
	panic(fmt.Sprintf("core: crossing check for %s side", side))
}
