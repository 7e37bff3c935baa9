package domain

import "fmt"

type RequestType uint8

const (
	RequestInvalid RequestType = iota
	RequestNew
	RequestCancel
)

func (t RequestType) String() string {
	switch t {
	case RequestNew:
		return "NEW"
	case RequestCancel:
		return "CANCEL"
	default:
		return "INVALID"
	}
}

// ParticipantRequest is what the order gateway hands to the matching engine.
// Quantity is only meaningful for RequestNew.
type ParticipantRequest struct {
	Type          RequestType
	ParticipantID ParticipantID
	SymbolID      SymbolID
	OrderID       OrderID
	Side          Side
	Price         Price
	Quantity      Quantity
}

func NewOrderRequest(pid ParticipantID, symbol SymbolID, poid OrderID, side Side, price Price, qty Quantity) ParticipantRequest {
	return ParticipantRequest{
		Type:          RequestNew,
		ParticipantID: pid,
		SymbolID:      symbol,
		OrderID:       poid,
		Side:          side,
		Price:         price,
		Quantity:      qty,
	}
}

func CancelOrderRequest(pid ParticipantID, symbol SymbolID, poid OrderID) ParticipantRequest {
	return ParticipantRequest{
		Type:          RequestCancel,
		ParticipantID: pid,
		SymbolID:      symbol,
		OrderID:       poid,
		Side:          SideInvalid,
		Price:         InvalidPrice,
		Quantity:      InvalidQuantity,
	}
}

func (r ParticipantRequest) String() string {
	return fmt.Sprintf("ParticipantRequest[type: %s, ptid:%d, symb:%d, order:%d, side:%s, price:%d, qty:%d]",
		r.Type, r.ParticipantID, r.SymbolID, r.OrderID, r.Side, r.Price, r.Quantity)
}
