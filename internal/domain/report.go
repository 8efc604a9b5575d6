package domain

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

// SkipReason explains why the ledger dropped an event without effect.
type SkipReason string

const (
	SkipMissingAsset       SkipReason = "missing_asset"        // BUY/SELL without asset id
	SkipNoPosition         SkipReason = "no_position"          // consuming event on an empty position
	SkipZeroSize           SkipReason = "zero_size"            // activity with size 0
	SkipUnresolvedRedeem   SkipReason = "unresolved_redeem"    // no resolution stage succeeded
	SkipUnknownOutcomes    SkipReason = "unknown_outcomes"     // SPLIT/MERGE without ≥2 known outcomes
	SkipNoGroup            SkipReason = "no_group"             // CONVERSION outside a neg-risk group
	SkipNoConversionSource SkipReason = "no_conversion_source" // no source position qualifies
	SkipUnresolvedSibling  SkipReason = "unresolved_sibling"   // a sibling target outcome is unknown
)

// SkipCounts is the diagnostic skip counter of one replay.
type SkipCounts map[SkipReason]int

// Total returns the number of skipped events.
func (s SkipCounts) Total() int {
	n := 0
	for _, c := range s {
		n += c
	}
	return n
}

// Reasons returns the reasons with at least one skip, sorted by name.
func (s SkipCounts) Reasons() []SkipReason {
	out := make([]SkipReason, 0, len(s))
	for r, c := range s {
		if c > 0 {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Window is a reporting period. Events count when Start < ts ≤ End.
// A zero Start means "since the beginning", a zero End "until now".
type Window struct {
	Label string // ALL | 1D | 1W | 1M | custom
	Start time.Time
	End   time.Time
}

// Contains reports whether t falls in (Start, End].
func (w Window) Contains(t time.Time) bool {
	if !w.Start.IsZero() && !t.After(w.Start) {
		return false
	}
	return w.End.IsZero() || !t.After(w.End)
}

// MarketPnL is the realized PnL of one market.
type MarketPnL struct {
	MarketID string
	Question string
	PnL      decimal.Decimal
	Events   int
}

// GroupPnL is the realized PnL of a neg-risk group (or a standalone market).
type GroupPnL struct {
	GroupID string
	Parent  string // parent market id
	Markets int
	PnL     decimal.Decimal
}

// DailyPnL is one calendar day of realized PnL with the running total.
type DailyPnL struct {
	Date       time.Time
	PnL        decimal.Decimal
	Cumulative decimal.Decimal
}

// WindowTotals holds a window's realized PnL computed both ways.
// For a correct ledger EventSum == CumulativeDiff.
type WindowTotals struct {
	Window         Window
	EventSum       decimal.Decimal
	CumulativeDiff decimal.Decimal
}

// Diverged reports whether the two window methods disagree.
func (w WindowTotals) Diverged() bool {
	return !w.EventSum.Equal(w.CumulativeDiff)
}

// CashFlow is the naive inflow-minus-outflow view of the same history,
// reported next to the cost-basis figure for comparison.
type CashFlow struct {
	Buys        decimal.Decimal
	Sells       decimal.Decimal
	Redeems     decimal.Decimal
	Merges      decimal.Decimal
	Splits      decimal.Decimal
	Rewards     decimal.Decimal
	Conversions decimal.Decimal // informational, not part of PnL
	Volume      decimal.Decimal
	TradeCount  int
}

// Inflows: sells + redeems + merges + rewards.
func (c CashFlow) Inflows() decimal.Decimal {
	return c.Sells.Add(c.Redeems).Add(c.Merges).Add(c.Rewards)
}

// Outflows: buys + splits.
func (c CashFlow) Outflows() decimal.Decimal {
	return c.Buys.Add(c.Splits)
}

// PnL is Inflows - Outflows.
func (c CashFlow) PnL() decimal.Decimal {
	return c.Inflows().Sub(c.Outflows())
}

// Unrealized is the best-effort mark-to-market of open positions.
type Unrealized struct {
	PnL       decimal.Decimal
	OpenValue decimal.Decimal // Σ mark × quantity
	Priced    int
	Unpriced  int
}

// Report is everything one analysis run produces for a wallet.
type Report struct {
	RunID          string
	Wallet         string
	GeneratedAt    time.Time
	EventsReplayed int
	TotalRealized  decimal.Decimal
	Period         WindowTotals
	ByMarket       []MarketPnL
	ByGroup        []GroupPnL
	Daily          []DailyPnL
	Positions      []Position
	Skips          SkipCounts
	CashFlow       CashFlow
	Unrealized     Unrealized
}
