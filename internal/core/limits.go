package core

import (
	"fmt"

	"github.com/olyamironova/matching-engine/internal/domain"
)

// Limits fixes the memory an OrderBook may use. Nothing grows after
// construction.
type Limits struct {
	MaxParticipants int
	MaxOrderIDs     int
	MaxOrders       int
	MaxPriceLevels  int
}

func DefaultLimits() Limits {
	return Limits{
		MaxParticipants: domain.MaxParticipants,
		MaxOrderIDs:     domain.MaxOrderIDs,
		MaxOrders:       64 * 1024,
		MaxPriceLevels:  domain.MaxPriceLevels,
	}
}

func (l Limits) Validate() error {
	switch {
	case l.MaxParticipants <= 0:
		return fmt.Errorf("core: max participants must be > 0, got %d", l.MaxParticipants)
	case l.MaxOrderIDs <= 0:
		return fmt.Errorf("core: max order ids must be > 0, got %d", l.MaxOrderIDs)
	case l.MaxOrders <= 0 || l.MaxOrders > 1<<30:
		return fmt.Errorf("core: max orders out of range: %d", l.MaxOrders)
	case l.MaxPriceLevels <= 0 || l.MaxPriceLevels > 1<<30:
		return fmt.Errorf("core: max price levels out of range: %d", l.MaxPriceLevels)
	}
	return nil
}
