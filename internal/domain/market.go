package domain

import "fmt"

type MarketUpdateType uint8

const (
	UpdateInvalid MarketUpdateType = iota
	UpdateAdd
	// UpdateModify is reserved for quantity amendments and is never emitted.
	UpdateModify
	UpdateCancel
	UpdateTrade
)

func (t MarketUpdateType) String() string {
	switch t {
	case UpdateAdd:
		return "ADD"
	case UpdateModify:
		return "MODIFY"
	case UpdateCancel:
		return "CANCEL"
	case UpdateTrade:
		return "TRADE"
	default:
		return "INVALID"
	}
}

// MarketUpdate is the public view of a book change. OrderID is always the
// internal order id; participant identities never leave the engine here.
type MarketUpdate struct {
	Type     MarketUpdateType
	OrderID  OrderID
	SymbolID SymbolID
	Side     Side
	Price    Price
	Qty      Quantity
	Priority Priority
}

func (u MarketUpdate) String() string {
	return fmt.Sprintf("MarketUpdate [type: %s, order:%d, symb:%d, side:%s, price:%d, qty:%d, prio:%d]",
		u.Type, u.OrderID, u.SymbolID, u.Side, u.Price, u.Qty, u.Priority)
}
