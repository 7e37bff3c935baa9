package domain

import "fmt"

type ResponseType uint8

const (
	ResponseInvalid ResponseType = iota
	ResponseAccepted
	ResponseCancelled
	ResponseFilled
	ResponseCancelRejected
	ResponseRejected
)

func (t ResponseType) String() string {
	switch t {
	case ResponseAccepted:
		return "NEW"
	case ResponseCancelled:
		return "CANCELLED"
	case ResponseFilled:
		return "FILLED"
	case ResponseCancelRejected:
		return "CANCEL-REJECTED"
	case ResponseRejected:
		return "REJECTED"
	default:
		return "INVALID"
	}
}

// ParticipantResponse acknowledges a request or reports a fill to the owner
// of an order. Fields that do not apply carry their sentinel value.
type ParticipantResponse struct {
	Type               ResponseType
	ParticipantID      ParticipantID
	SymbolID           SymbolID
	ParticipantOrderID OrderID
	InternalOrderID    OrderID
	Side               Side
	Price              Price
	ExecutedQty        Quantity
	RemainingQty       Quantity
}

// RejectedResponse answers a New request that never reached the book.
func RejectedResponse(r ParticipantRequest) ParticipantResponse {
	return ParticipantResponse{
		Type:               ResponseRejected,
		ParticipantID:      r.ParticipantID,
		SymbolID:           r.SymbolID,
		ParticipantOrderID: r.OrderID,
		InternalOrderID:    InvalidOrderID,
		Side:               r.Side,
		Price:              r.Price,
		ExecutedQty:        0,
		RemainingQty:       0,
	}
}

func CancelRejectedResponse(pid ParticipantID, symbol SymbolID, poid OrderID) ParticipantResponse {
	return ParticipantResponse{
		Type:               ResponseCancelRejected,
		ParticipantID:      pid,
		SymbolID:           symbol,
		ParticipantOrderID: poid,
		InternalOrderID:    InvalidOrderID,
		Side:               SideInvalid,
		Price:              InvalidPrice,
		ExecutedQty:        InvalidQuantity,
		RemainingQty:       InvalidQuantity,
	}
}

func (r ParticipantResponse) String() string {
	return fmt.Sprintf("ParticipantResponse [type: %s, ptid: %d, symb: %d, poid: %d, ioid: %d, side: %s, exec_qty: %d, leaves_qty: %d, price: %d]",
		r.Type, r.ParticipantID, r.SymbolID, r.ParticipantOrderID, r.InternalOrderID, r.Side, r.ExecutedQty, r.RemainingQty, r.Price)
}
