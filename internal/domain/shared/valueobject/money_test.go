package valueobject

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewMoney(t *testing.T) {
	t.Run("creates money with valid currency", func(t *testing.T) {
		m, err := NewMoney(decimal.NewFromInt(100), USD)
		require.NoError(t, err)
		assert.Equal(t, USD, m.Currency())
		assert.True(t, m.Amount().Equal(decimal.NewFromInt(100)))
	})

	t.Run("rejects empty currency", func(t *testing.T) {
		_, err := NewMoney(decimal.NewFromInt(100), "")
		assert.Error(t, err)
	})
}

func TestCurrency_IsLocal(t *testing.T) {
	assert.True(t, ARS.IsLocal())
	assert.False(t, USD.IsLocal())
	assert.False(t, EUR.IsLocal())
}

func TestMoney_ToPesos(t *testing.T) {
	tests := []struct {
		name     string
		money    Money
		rate     decimal.Decimal
		expected decimal.Decimal
	}{
		{
			name:     "converts foreign amount at rate",
			money:    Money{amount: decimal.NewFromInt(100), currency: USD},
			rate:     decimal.NewFromFloat(950.5),
			expected: decimal.NewFromFloat(95050),
		},
		{
			name:     "local amount passes through ignoring rate",
			money:    NewMoneyPesos(decimal.NewFromInt(1500)),
			rate:     decimal.NewFromInt(2),
			expected: decimal.NewFromInt(1500),
		},
		{
			name:     "foreign amount with zero rate converts to zero",
			money:    Money{amount: decimal.NewFromInt(100), currency: USD},
			rate:     decimal.Zero,
			expected: decimal.Zero,
		},
		{
			name:     "foreign amount with negative rate converts to zero",
			money:    Money{amount: decimal.NewFromInt(100), currency: USD},
			rate:     decimal.NewFromInt(-3),
			expected: decimal.Zero,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.money.ToPesos(tt.rate)
			assert.Equal(t, ARS, got.Currency())
			assert.True(t, got.Amount().Equal(tt.expected),
				"expected %s got %s", tt.expected, got.Amount())
		})
	}
}

func TestMoney_AddSub(t *testing.T) {
	t.Run("adds matching currencies", func(t *testing.T) {
		a := NewMoneyPesos(decimal.NewFromInt(10))
		b := NewMoneyPesos(decimal.NewFromInt(5))
		sum, err := a.Add(b)
		require.NoError(t, err)
		assert.True(t, sum.Amount().Equal(decimal.NewFromInt(15)))
	})

	t.Run("rejects currency mismatch", func(t *testing.T) {
		a := NewMoneyPesos(decimal.NewFromInt(10))
		b, _ := NewMoney(decimal.NewFromInt(5), USD)
		_, err := a.Add(b)
		assert.Error(t, err)
		_, err = a.Sub(b)
		assert.Error(t, err)
	})
}

func TestMoney_Round(t *testing.T) {
	m := NewMoneyPesos(decimal.NewFromFloat(397.7272727))
	assert.Equal(t, "397.73", m.Round(2).Amount().StringFixed(2))

	// half-up at the boundary
	m = NewMoneyPesos(decimal.NewFromFloat(10.005))
	assert.Equal(t, "10.01", m.Round(2).Amount().StringFixed(2))
}
