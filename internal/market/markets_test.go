package market

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/olyamironova/matching-engine/internal/domain"
)

func TestMarketsLookup(t *testing.T) {
	m, err := New([]string{"btc-usd", "ETH-USD"}, decimal.RequireFromString("0.01"))
	require.NoError(t, err)

	id, ok := m.Lookup(" eth-usd")
	require.True(t, ok)
	assert.Equal(t, domain.SymbolID(1), id)
	assert.Equal(t, "BTC-USD", m.Name(0))
	assert.Equal(t, []domain.SymbolID{0, 1}, m.IDs())

	_, ok = m.Lookup("DOGE-USD")
	assert.False(t, ok)
}

func TestMarketsNewErrors(t *testing.T) {
	tick := decimal.RequireFromString("1")
	_, err := New(nil, tick)
	assert.Error(t, err)
	_, err = New([]string{"A", "a"}, tick)
	assert.Error(t, err)
	_, err = New([]string{"A"}, decimal.Zero)
	assert.Error(t, err)
	_, err = New([]string{"A", "B", "C", "D", "E", "F", "G", "H", "I"}, tick)
	assert.Error(t, err)
}

func TestTickConversion(t *testing.T) {
	m, err := New([]string{"BTC-USD"}, decimal.RequireFromString("0.05"))
	require.NoError(t, err)

	tests := []struct {
		in    string
		ticks domain.Price
		err   bool
	}{
		{"1", 20, false},
		{"101.35", 2027, false},
		{"0.05", 1, false},
		{"0.07", 0, true},
		{"0", 0, true},
		{"-1", 0, true},
		{"1e30", 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := m.ToTicks(decimal.RequireFromString(tt.in))
			if tt.err {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.ticks, got)
			assert.True(t, m.FromTicks(got).Equal(decimal.RequireFromString(tt.in)))
		})
	}

	_, err = m.ToTicks(decimal.RequireFromString("0.07"))
	assert.True(t, errors.Is(err, ErrOffTick))
}
