package report

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/alejandrodnm/polypnl/internal/domain"
)

// WindowSum adds the amounts dated in (w.Start, w.End].
func WindowSum(events []domain.RealizedPnLEvent, w domain.Window) decimal.Decimal {
	total := decimal.Zero
	for _, e := range events {
		if w.Contains(e.Timestamp) {
			total = total.Add(e.Amount)
		}
	}
	return total
}

// CumulativeAt is the realized PnL snapshot at t: every amount dated ≤ t.
func CumulativeAt(events []domain.RealizedPnLEvent, t time.Time) decimal.Decimal {
	total := decimal.Zero
	for _, e := range events {
		if !e.Timestamp.After(t) {
			total = total.Add(e.Amount)
		}
	}
	return total
}

// CumulativeDiff computes the window total as the difference of two snapshots.
// An unbounded window starts from zero and ends at the last event.
func CumulativeDiff(events []domain.RealizedPnLEvent, w domain.Window) decimal.Decimal {
	var end decimal.Decimal
	if w.End.IsZero() {
		end = sumAll(events)
	} else {
		end = CumulativeAt(events, w.End)
	}
	if w.Start.IsZero() {
		return end
	}
	return end.Sub(CumulativeAt(events, w.Start))
}

// Totals computes the window total both ways.
func Totals(events []domain.RealizedPnLEvent, w domain.Window) domain.WindowTotals {
	return domain.WindowTotals{
		Window:         w,
		EventSum:       WindowSum(events, w),
		CumulativeDiff: CumulativeDiff(events, w),
	}
}

func sumAll(events []domain.RealizedPnLEvent) decimal.Decimal {
	sum := decimal.Zero
	for _, e := range events {
		sum = sum.Add(e.Amount)
	}
	return sum
}
