package purchasing

import (
	"github.com/shopspring/decimal"
)

// CostLine is the distribution engine's view of a purchase line item
type CostLine struct {
	Quantity       int64
	UnitPricePesos decimal.Decimal
}

// CostShare is the computed cost breakdown for a single line item
type CostShare struct {
	DistributedCost decimal.Decimal // Item's proportional share of the overhead total
	FinalUnitCost   decimal.Decimal // Unit price plus per-unit distributed cost (landed cost)
	TotalCost       decimal.Decimal // FinalUnitCost * Quantity
}

// LineAmount returns quantity * unit price for a line
func (l CostLine) LineAmount() decimal.Decimal {
	return decimal.NewFromInt(l.Quantity).Mul(l.UnitPricePesos)
}

// Subtotal returns the sum of quantity * unit price over all lines
func Subtotal(lines []CostLine) decimal.Decimal {
	subtotal := decimal.Zero
	for _, line := range lines {
		subtotal = subtotal.Add(line.LineAmount())
	}
	return subtotal
}

// Distribute apportions totalOverhead across lines proportionally to each
// line's share of the subtotal and computes the resulting landed costs.
//
// A zero subtotal (or empty line set) yields zero distributed cost for every
// line, with the final unit cost equal to the plain unit price. All math runs
// at full decimal precision; rounding to 2 places happens only where the
// results are persisted or rendered. Remainders from that rounding are not
// redistributed across lines.
func Distribute(lines []CostLine, totalOverhead decimal.Decimal) []CostShare {
	shares := make([]CostShare, len(lines))
	subtotal := Subtotal(lines)

	if subtotal.IsZero() {
		for i, line := range lines {
			shares[i] = CostShare{
				DistributedCost: decimal.Zero,
				FinalUnitCost:   line.UnitPricePesos,
				TotalCost:       line.LineAmount(),
			}
		}
		return shares
	}

	for i, line := range lines {
		quantity := decimal.NewFromInt(line.Quantity)
		distributed := line.LineAmount().Div(subtotal).Mul(totalOverhead)
		finalUnit := line.UnitPricePesos.Add(distributed.Div(quantity))
		shares[i] = CostShare{
			DistributedCost: distributed,
			FinalUnitCost:   finalUnit,
			TotalCost:       finalUnit.Mul(quantity),
		}
	}
	return shares
}
