package engine

import (
	"fmt"

	"github.com/olyamironova/matching-engine/internal/core"
	"github.com/olyamironova/matching-engine/internal/domain"
)

type Config struct {
	Symbols   []domain.SymbolID
	Limits    core.Limits
	InboxSize int
}

func DefaultConfig() Config {
	return Config{
		Symbols:   []domain.SymbolID{0},
		Limits:    core.DefaultLimits(),
		InboxSize: 4096,
	}
}

func (c Config) Validate() error {
	if len(c.Symbols) == 0 {
		return fmt.Errorf("engine: no symbols configured")
	}
	seen := make(map[domain.SymbolID]bool, len(c.Symbols))
	for _, s := range c.Symbols {
		if s >= domain.MaxSymbols {
			return fmt.Errorf("engine: symbol %d out of range (max %d)", s, domain.MaxSymbols)
		}
		if seen[s] {
			return fmt.Errorf("engine: symbol %d configured twice", s)
		}
		seen[s] = true
	}
	if c.InboxSize < 0 {
		return fmt.Errorf("engine: negative inbox size %d", c.InboxSize)
	}
	return c.Limits.Validate()
}

// command is the unit of work a book worker consumes. Exactly one of request
// or query is set; queries run on the worker goroutine so the book is never
// shared.
type command struct {
	request domain.ParticipantRequest
	query   func(*core.OrderBook)
}
