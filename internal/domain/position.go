package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Position is the weighted-average-cost ledger entry of one outcome token.
// AvgCost only means something while Quantity > 0; it is 0 otherwise.
type Position struct {
	Asset        string
	MarketID     string
	Outcome      string
	Quantity     decimal.Decimal
	AvgCost      decimal.Decimal
	RealizedPnL  decimal.Decimal
	TotalBought  decimal.Decimal // units acquired (buys, splits, conversion inflows)
	TotalSold    decimal.Decimal // units disposed of (sells, merges, redeems, conversion outflows)
	TotalCost    decimal.Decimal // USDC spent acquiring
	TotalRevenue decimal.Decimal // USDC received disposing (cost basis for conversion outflows)
}

// Open reports whether the position currently holds units.
func (p Position) Open() bool {
	return p.Quantity.IsPositive()
}

// CostBasis is the cost of the units still held.
func (p Position) CostBasis() decimal.Decimal {
	return p.AvgCost.Mul(p.Quantity)
}

// RealizedPnLEvent is a realized profit or loss recognised by the ledger.
// Asset is empty for rewards.
type RealizedPnLEvent struct {
	Timestamp time.Time
	Kind      EventKind
	Asset     string
	MarketID  string
	Amount    decimal.Decimal
}
