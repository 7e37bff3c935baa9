package domain

import "time"

// Trade is the journal view of a Trade market update.
type Trade struct {
	Seq             uint64
	Symbol          SymbolID
	RestingOrderID  OrderID
	RestingSide     Side
	Price           Price
	Quantity        Quantity
	RestingPriority Priority
	Timestamp       time.Time
}

func TradeFromUpdate(seq uint64, u MarketUpdate, ts time.Time) Trade {
	return Trade{
		Seq:             seq,
		Symbol:          u.SymbolID,
		RestingOrderID:  u.OrderID,
		RestingSide:     u.Side,
		Price:           u.Price,
		Quantity:        u.Qty,
		RestingPriority: u.Priority,
		Timestamp:       ts,
	}
}
