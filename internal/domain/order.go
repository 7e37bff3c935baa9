package domain

import (
	"fmt"
	"math"
)

type OrderID uint64
type SymbolID uint32
type ParticipantID uint32
type Price uint64
type Quantity uint32
type Priority uint64

// Every identifier type reserves its maximum value as the "unset" sentinel.
const (
	InvalidOrderID       OrderID       = math.MaxUint64
	InvalidSymbolID      SymbolID      = math.MaxUint32
	InvalidParticipantID ParticipantID = math.MaxUint32
	InvalidPrice         Price         = math.MaxUint64
	InvalidQuantity      Quantity      = math.MaxUint32
	InvalidPriority      Priority      = math.MaxUint64
)

const (
	MaxSymbols            = 8
	MaxParticipants       = 256
	MaxOrderIDs           = 1024 * 1024
	MaxPriceLevels        = 256
	MaxParticipantUpdates = 256 * 1024
	MaxMarketUpdates      = 256 * 1024
)

type Side uint8

const (
	SideInvalid Side = iota
	SideBuy
	SideSell
)

func (s Side) String() string {
	switch s {
	case SideBuy:
		return "BUY"
	case SideSell:
		return "SELL"
	default:
		return "INVALID"
	}
}

// Opposite panics on SideInvalid.
func (s Side) Opposite() Side {
	switch s {
	case SideBuy:
		return SideSell
	case SideSell:
		return SideBuy
	}
	panic(fmt.Sprintf("domain: opposite of %s side", s))
}

func ParseSide(s string) (Side, error) {
	switch s {
	case "BUY", "buy", "Buy":
		return SideBuy, nil
	case "SELL", "sell", "Sell":
		return SideSell, nil
	}
	return SideInvalid, fmt.Errorf("invalid side: %q", s)
}
