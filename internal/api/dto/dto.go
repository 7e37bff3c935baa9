package dto

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/olyamironova/matching-engine/internal/core"
	"github.com/olyamironova/matching-engine/internal/domain"
	"github.com/olyamironova/matching-engine/internal/market"
)

type SubmitOrderRequest struct {
	Symbol   string          `json:"symbol" binding:"required"`
	OrderID  *uint64         `json:"order_id" binding:"required"`
	Side     string          `json:"side" binding:"required"`
	Price    decimal.Decimal `json:"price"`
	Quantity uint32          `json:"quantity" binding:"required"`
}

// ToRequest validates the order against the configured markets and builds
// the engine request for participant pid.
func (r SubmitOrderRequest) ToRequest(m *market.Markets, pid domain.ParticipantID) (domain.ParticipantRequest, error) {
	symbol, ok := m.Lookup(r.Symbol)
	if !ok {
		return domain.ParticipantRequest{}, fmt.Errorf("%w: %s", domain.ErrUnknownSymbol, r.Symbol)
	}
	if r.OrderID == nil || *r.OrderID >= uint64(domain.InvalidOrderID) {
		return domain.ParticipantRequest{}, fmt.Errorf("%w: order_id missing or out of range", domain.ErrInvalidRequest)
	}
	side, err := domain.ParseSide(r.Side)
	if err != nil {
		return domain.ParticipantRequest{}, fmt.Errorf("%w: %v", domain.ErrInvalidRequest, err)
	}
	price, err := m.ToTicks(r.Price)
	if err != nil {
		return domain.ParticipantRequest{}, fmt.Errorf("%w: %v", domain.ErrInvalidRequest, err)
	}
	if r.Quantity == 0 || domain.Quantity(r.Quantity) == domain.InvalidQuantity {
		return domain.ParticipantRequest{}, fmt.Errorf("%w: quantity out of range", domain.ErrInvalidRequest)
	}
	return domain.NewOrderRequest(pid, symbol, domain.OrderID(*r.OrderID), side, price, domain.Quantity(r.Quantity)), nil
}

// Ack is the synchronous answer to a submit or cancel. Fields the engine left
// unset are omitted.
type Ack struct {
	Status          string           `json:"status"`
	Symbol          string           `json:"symbol"`
	OrderID         uint64           `json:"order_id"`
	InternalOrderID *uint64          `json:"internal_order_id,omitempty"`
	Side            string           `json:"side,omitempty"`
	Price           *decimal.Decimal `json:"price,omitempty"`
	Executed        uint32           `json:"executed"`
	Remaining       uint32           `json:"remaining"`
}

func NewAck(m *market.Markets, r domain.ParticipantResponse) Ack {
	a := Ack{
		Status:    r.Type.String(),
		Symbol:    m.Name(r.SymbolID),
		OrderID:   uint64(r.ParticipantOrderID),
		Price:     price(m, r.Price),
		Executed:  uint32(r.ExecutedQty),
		Remaining: uint32(r.RemainingQty),
	}
	if r.InternalOrderID != domain.InvalidOrderID {
		id := uint64(r.InternalOrderID)
		a.InternalOrderID = &id
	}
	if r.Side != domain.SideInvalid {
		a.Side = r.Side.String()
	}
	return a
}

// Order is a resting order as its owner sees it.
type Order struct {
	Symbol          string          `json:"symbol"`
	OrderID         uint64          `json:"order_id"`
	InternalOrderID uint64          `json:"internal_order_id"`
	Side            string          `json:"side"`
	Price           decimal.Decimal `json:"price"`
	Remaining       uint32          `json:"remaining"`
	Priority        uint64          `json:"priority"`
}

func NewOrder(m *market.Markets, o core.Order) Order {
	return Order{
		Symbol:          m.Name(o.SymbolID),
		OrderID:         uint64(o.ParticipantOrderID),
		InternalOrderID: uint64(o.InternalOrderID),
		Side:            o.Side.String(),
		Price:           m.FromTicks(o.Price),
		Remaining:       uint32(o.Qty),
		Priority:        uint64(o.Priority),
	}
}

type Level struct {
	Price    decimal.Decimal `json:"price"`
	Quantity uint64          `json:"quantity"`
	Orders   int             `json:"orders"`
}

type Book struct {
	Symbol    string    `json:"symbol"`
	Bids      []Level   `json:"bids"`
	Asks      []Level   `json:"asks"`
	Timestamp time.Time `json:"timestamp"`
}

func NewBook(m *market.Markets, snap *domain.BookSnapshot) Book {
	return Book{
		Symbol:    m.Name(snap.Symbol),
		Bids:      levels(m, snap.Bids),
		Asks:      levels(m, snap.Asks),
		Timestamp: snap.Timestamp,
	}
}

func levels(m *market.Markets, in []domain.DepthLevel) []Level {
	out := make([]Level, 0, len(in))
	for _, l := range in {
		out = append(out, Level{Price: m.FromTicks(l.Price), Quantity: l.Quantity, Orders: l.Orders})
	}
	return out
}

type Trade struct {
	Seq            uint64          `json:"seq"`
	Symbol         string          `json:"symbol"`
	RestingOrderID uint64          `json:"resting_order_id"`
	RestingSide    string          `json:"resting_side"`
	Price          decimal.Decimal `json:"price"`
	Quantity       uint32          `json:"quantity"`
	Timestamp      time.Time       `json:"timestamp"`
}

func NewTrades(m *market.Markets, in []domain.Trade) []Trade {
	out := make([]Trade, 0, len(in))
	for _, t := range in {
		out = append(out, Trade{
			Seq:            t.Seq,
			Symbol:         m.Name(t.Symbol),
			RestingOrderID: uint64(t.RestingOrderID),
			RestingSide:    t.RestingSide.String(),
			Price:          m.FromTicks(t.Price),
			Quantity:       uint32(t.Quantity),
			Timestamp:      t.Timestamp,
		})
	}
	return out
}

// MarketUpdate is the public wire form of a book change, shared by the
// WebSocket feed, the gRPC stream and the market-data topic.
type MarketUpdate struct {
	Seq       uint64           `json:"seq"`
	Type      string           `json:"type"`
	Symbol    string           `json:"symbol"`
	OrderID   uint64           `json:"order_id"`
	Side      string           `json:"side"`
	Price     *decimal.Decimal `json:"price,omitempty"`
	Quantity  uint32           `json:"quantity"`
	Priority  uint64           `json:"priority"`
	Timestamp time.Time        `json:"timestamp"`
}

func NewMarketUpdate(m *market.Markets, seq uint64, u domain.MarketUpdate, ts time.Time) MarketUpdate {
	return MarketUpdate{
		Seq:       seq,
		Type:      u.Type.String(),
		Symbol:    m.Name(u.SymbolID),
		OrderID:   uint64(u.OrderID),
		Side:      u.Side.String(),
		Price:     price(m, u.Price),
		Quantity:  uint32(u.Qty),
		Priority:  uint64(u.Priority),
		Timestamp: ts,
	}
}

// ExecutionReport is a participant response as published for downstream
// consumers.
type ExecutionReport struct {
	Seq           uint64 `json:"seq"`
	ParticipantID uint32 `json:"participant_id"`
	Ack
	Timestamp time.Time `json:"timestamp"`
}

func NewExecutionReport(m *market.Markets, seq uint64, r domain.ParticipantResponse, ts time.Time) ExecutionReport {
	return ExecutionReport{
		Seq:           seq,
		ParticipantID: uint32(r.ParticipantID),
		Ack:           NewAck(m, r),
		Timestamp:     ts,
	}
}

func price(m *market.Markets, p domain.Price) *decimal.Decimal {
	if p == domain.InvalidPrice {
		return nil
	}
	d := m.FromTicks(p)
	return &d
}
