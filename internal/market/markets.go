package market

import (
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/olyamironova/matching-engine/internal/domain"
)

var ErrOffTick = errors.New("price is not a multiple of the tick size")

// Markets maps external symbol names to book ids and decimal prices to
// integer ticks. Symbol ids follow the order the names were given in.
type Markets struct {
	names  []string
	byName map[string]domain.SymbolID
	tick   decimal.Decimal
}

func New(names []string, tick decimal.Decimal) (*Markets, error) {
	if len(names) == 0 || len(names) > domain.MaxSymbols {
		return nil, fmt.Errorf("market: need 1..%d symbols, got %d", domain.MaxSymbols, len(names))
	}
	if !tick.IsPositive() {
		return nil, fmt.Errorf("market: tick size must be positive, got %s", tick)
	}
	m := &Markets{
		names:  make([]string, len(names)),
		byName: make(map[string]domain.SymbolID, len(names)),
		tick:   tick,
	}
	for i, n := range names {
		n = strings.ToUpper(strings.TrimSpace(n))
		if n == "" {
			return nil, fmt.Errorf("market: empty symbol name at %d", i)
		}
		if _, dup := m.byName[n]; dup {
			return nil, fmt.Errorf("market: symbol %s listed twice", n)
		}
		m.names[i] = n
		m.byName[n] = domain.SymbolID(i)
	}
	return m, nil
}

// IDs returns every configured symbol id.
func (m *Markets) IDs() []domain.SymbolID {
	ids := make([]domain.SymbolID, len(m.names))
	for i := range m.names {
		ids[i] = domain.SymbolID(i)
	}
	return ids
}

func (m *Markets) Lookup(name string) (domain.SymbolID, bool) {
	id, ok := m.byName[strings.ToUpper(strings.TrimSpace(name))]
	return id, ok
}

func (m *Markets) Name(id domain.SymbolID) string {
	if int(id) < len(m.names) {
		return m.names[id]
	}
	return fmt.Sprintf("SYMBOL-%d", id)
}

func (m *Markets) TickSize() decimal.Decimal { return m.tick }

// ToTicks converts a positive decimal price into ticks. Prices that fall
// between ticks are rejected rather than rounded.
func (m *Markets) ToTicks(p decimal.Decimal) (domain.Price, error) {
	if !p.IsPositive() {
		return domain.InvalidPrice, fmt.Errorf("price must be positive, got %s", p)
	}
	q := p.Div(m.tick)
	if !q.Equal(q.Truncate(0)) {
		return domain.InvalidPrice, fmt.Errorf("%w: %s", ErrOffTick, p)
	}
	if !q.BigInt().IsUint64() || q.BigInt().Uint64() >= uint64(domain.InvalidPrice) {
		return domain.InvalidPrice, fmt.Errorf("price %s out of range", p)
	}
	return domain.Price(q.BigInt().Uint64()), nil
}

func (m *Markets) FromTicks(p domain.Price) decimal.Decimal {
	return decimal.NewFromBigInt(new(big.Int).SetUint64(uint64(p)), 0).Mul(m.tick)
}
