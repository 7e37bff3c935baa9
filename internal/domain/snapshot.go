package domain

import "time"

// DepthLevel aggregates the resting orders at one price.
type DepthLevel struct {
	Price    Price  `json:"price"`
	Quantity uint64 `json:"quantity"`
	Orders   int    `json:"orders"`
}

// BookSnapshot lists aggregated levels per side, best first.
type BookSnapshot struct {
	Symbol    SymbolID     `json:"symbol"`
	Bids      []DepthLevel `json:"bids"`
	Asks      []DepthLevel `json:"asks"`
	Timestamp time.Time    `json:"timestamp"`
}

func (s *BookSnapshot) BestBid() (Price, bool) {
	if len(s.Bids) == 0 {
		return InvalidPrice, false
	}
	return s.Bids[0].Price, true
}

func (s *BookSnapshot) BestAsk() (Price, bool) {
	if len(s.Asks) == 0 {
		return InvalidPrice, false
	}
	return s.Asks[0].Price, true
}

func (s *BookSnapshot) DeepCopy() *BookSnapshot {
	cp := *s
	cp.Bids = append([]DepthLevel(nil), s.Bids...)
	cp.Asks = append([]DepthLevel(nil), s.Asks...)
	return &cp
}
