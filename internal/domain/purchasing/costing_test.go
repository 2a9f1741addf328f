package purchasing

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func line(quantity int64, unitPrice float64) CostLine {
	return CostLine{Quantity: quantity, UnitPricePesos: decimal.NewFromFloat(unitPrice)}
}

func TestSubtotal(t *testing.T) {
	assert.True(t, Subtotal(nil).IsZero())

	lines := []CostLine{line(5, 1000), line(3, 2000)}
	assert.Equal(t, "11000", Subtotal(lines).String())
}

func TestDistribute_TwoItemScenario(t *testing.T) {
	// Two items, quantities 5 and 3, unit prices 1000 and 2000.
	// Overhead = 500 + 200 + 100 + 50 + 25 = 875.
	lines := []CostLine{line(5, 1000), line(3, 2000)}
	overhead := decimal.NewFromInt(875)

	shares := Distribute(lines, overhead)
	require.Len(t, shares, 2)

	// Item 1: share 5000/11000, distributed 397.73, final 1000 + 397.73/5
	assert.Equal(t, "397.73", shares[0].DistributedCost.Round(2).StringFixed(2))
	assert.Equal(t, "1079.55", shares[0].FinalUnitCost.Round(2).StringFixed(2))

	// Item 2: share 6000/11000, distributed 477.27, final 2000 + 477.27/3
	assert.Equal(t, "477.27", shares[1].DistributedCost.Round(2).StringFixed(2))
	assert.Equal(t, "2159.09", shares[1].FinalUnitCost.Round(2).StringFixed(2))

	// Distributed costs sum back to the overhead total
	sum := shares[0].DistributedCost.Add(shares[1].DistributedCost)
	assert.True(t, sum.Sub(overhead).Abs().LessThan(decimal.NewFromFloat(0.01)),
		"expected sum %s ~= %s", sum, overhead)
}

func TestDistribute_SingleItemGetsFullOverhead(t *testing.T) {
	lines := []CostLine{line(4, 250)}
	shares := Distribute(lines, decimal.NewFromInt(150))
	require.Len(t, shares, 1)

	assert.Equal(t, "150", shares[0].DistributedCost.String())
	// final = 250 + 150/4 = 287.5
	assert.Equal(t, "287.50", shares[0].FinalUnitCost.StringFixed(2))
	assert.Equal(t, "1150.00", shares[0].TotalCost.StringFixed(2))
}

func TestDistribute_ZeroSubtotal(t *testing.T) {
	t.Run("all zero prices", func(t *testing.T) {
		lines := []CostLine{line(5, 0), line(3, 0)}
		shares := Distribute(lines, decimal.NewFromInt(875))
		require.Len(t, shares, 2)

		for _, s := range shares {
			assert.True(t, s.DistributedCost.IsZero())
			assert.True(t, s.FinalUnitCost.IsZero())
			assert.True(t, s.TotalCost.IsZero())
		}
	})

	t.Run("empty item list", func(t *testing.T) {
		shares := Distribute(nil, decimal.NewFromInt(875))
		assert.Empty(t, shares)
	})
}

func TestDistribute_SumMatchesOverheadForManyItems(t *testing.T) {
	tests := []struct {
		name     string
		lines    []CostLine
		overhead float64
	}{
		{"uneven thirds", []CostLine{line(1, 1), line(1, 1), line(1, 1)}, 100},
		{"mixed quantities", []CostLine{line(7, 13.37), line(11, 420.69), line(2, 0.01), line(100, 5)}, 1234.56},
		{"zero overhead", []CostLine{line(5, 1000), line(3, 2000)}, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			overhead := decimal.NewFromFloat(tt.overhead)
			shares := Distribute(tt.lines, overhead)

			sum := decimal.Zero
			for _, s := range shares {
				sum = sum.Add(s.DistributedCost)
			}
			tolerance := decimal.NewFromFloat(0.01).Mul(decimal.NewFromInt(int64(len(tt.lines))))
			assert.True(t, sum.Sub(overhead).Abs().LessThanOrEqual(tolerance),
				"sum %s deviates from overhead %s", sum, overhead)
		})
	}
}

func TestDistribute_IdempotentRecompute(t *testing.T) {
	lines := []CostLine{line(5, 1000), line(3, 2000)}
	overhead := decimal.NewFromInt(875)

	first := Distribute(lines, overhead)
	second := Distribute(lines, overhead)

	require.Equal(t, len(first), len(second))
	for i := range first {
		assert.True(t, first[i].DistributedCost.Equal(second[i].DistributedCost))
		assert.True(t, first[i].FinalUnitCost.Equal(second[i].FinalUnitCost))
		assert.True(t, first[i].TotalCost.Equal(second[i].TotalCost))
	}
}
