package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// RunSummary is the persisted record of one analysis.
type RunSummary struct {
	RunID          string
	Wallet         string
	GeneratedAt    time.Time
	Period         string
	PeriodStart    time.Time // zero when unbounded
	PeriodEnd      time.Time
	TotalRealized  decimal.Decimal
	PeriodRealized decimal.Decimal
	Diverged       bool // window methods disagreed
	CashFlowPnL    decimal.Decimal
	Unrealized     decimal.Decimal
	Trades         int
	Events         int
	Skipped        int
}

// Summary condenses a report into its run record.
func (r Report) Summary() RunSummary {
	return RunSummary{
		RunID:          r.RunID,
		Wallet:         r.Wallet,
		GeneratedAt:    r.GeneratedAt,
		Period:         r.Period.Window.Label,
		PeriodStart:    r.Period.Window.Start,
		PeriodEnd:      r.Period.Window.End,
		TotalRealized:  r.TotalRealized,
		PeriodRealized: r.Period.EventSum,
		Diverged:       r.Period.Diverged(),
		CashFlowPnL:    r.CashFlow.PnL(),
		Unrealized:     r.Unrealized.PnL,
		Trades:         r.CashFlow.TradeCount,
		Events:         r.EventsReplayed,
		Skipped:        r.Skips.Total(),
	}
}
