package report

import (
	"github.com/shopspring/decimal"

	"github.com/alejandrodnm/polypnl/internal/domain"
)

// Unrealized marks open positions to market: Σ (mark − avg) × quantity.
// Positions without a mark are counted as unpriced and left out.
func Unrealized(positions []domain.Position, marks map[string]decimal.Decimal) domain.Unrealized {
	var u domain.Unrealized
	for _, p := range positions {
		if !p.Open() {
			continue
		}
		mark, ok := marks[p.Asset]
		if !ok {
			u.Unpriced++
			continue
		}
		u.Priced++
		u.OpenValue = u.OpenValue.Add(mark.Mul(p.Quantity))
		u.PnL = u.PnL.Add(mark.Sub(p.AvgCost).Mul(p.Quantity))
	}
	return u
}

// OpenAssets lists the assets of the open positions, in input order.
func OpenAssets(positions []domain.Position) []string {
	var out []string
	for _, p := range positions {
		if p.Open() {
			out = append(out, p.Asset)
		}
	}
	return out
}
