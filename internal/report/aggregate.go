// Package report turns a replay result into the breakdowns shown to the user:
// per market, per neg-risk group, per day, per window, plus the cash-flow and
// mark-to-market views of the same history.
//
// Everything here is a pure function of its inputs.
package report

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/alejandrodnm/polypnl/internal/domain"
	"github.com/alejandrodnm/polypnl/internal/ledger"
)

// ByMarket sums realized PnL per market, largest absolute PnL first.
// Rewards without a market are reported under the empty id.
// questions maps condition id to question text and may be nil.
func ByMarket(events []domain.RealizedPnLEvent, questions map[string]string) []domain.MarketPnL {
	idx := make(map[string]int)
	var out []domain.MarketPnL
	for _, e := range events {
		i, ok := idx[e.MarketID]
		if !ok {
			i = len(out)
			idx[e.MarketID] = i
			out = append(out, domain.MarketPnL{
				MarketID: e.MarketID,
				Question: questions[e.MarketID],
			})
		}
		out[i].PnL = out[i].PnL.Add(e.Amount)
		out[i].Events++
	}
	sort.Slice(out, func(i, j int) bool {
		ai, aj := out[i].PnL.Abs(), out[j].PnL.Abs()
		if !ai.Equal(aj) {
			return ai.GreaterThan(aj)
		}
		return out[i].MarketID < out[j].MarketID
	})
	return out
}

// ByGroup rolls market totals up to their neg-risk group. Markets outside any
// group form a group of their own.
func ByGroup(markets []domain.MarketPnL, topo *ledger.Topology) []domain.GroupPnL {
	idx := make(map[string]int)
	var out []domain.GroupPnL
	for _, m := range markets {
		g := topo.GroupOf(m.MarketID)
		i, ok := idx[g.ID]
		if !ok {
			i = len(out)
			idx[g.ID] = i
			out = append(out, domain.GroupPnL{GroupID: g.ID, Parent: g.Parent})
		}
		out[i].PnL = out[i].PnL.Add(m.PnL)
		out[i].Markets++
	}
	sort.Slice(out, func(i, j int) bool {
		ai, aj := out[i].PnL.Abs(), out[j].PnL.Abs()
		if !ai.Equal(aj) {
			return ai.GreaterThan(aj)
		}
		return out[i].GroupID < out[j].GroupID
	})
	return out
}

// ByDay sums realized PnL per calendar day in loc, oldest first, with the
// running total. A nil loc means UTC.
func ByDay(events []domain.RealizedPnLEvent, loc *time.Location) []domain.DailyPnL {
	if loc == nil {
		loc = time.UTC
	}
	sums := make(map[time.Time]decimal.Decimal)
	for _, e := range events {
		day := startOfDay(e.Timestamp, loc)
		sums[day] = sums[day].Add(e.Amount)
	}

	days := make([]time.Time, 0, len(sums))
	for day := range sums {
		days = append(days, day)
	}
	sort.Slice(days, func(i, j int) bool { return days[i].Before(days[j]) })

	out := make([]domain.DailyPnL, 0, len(days))
	running := decimal.Zero
	for _, day := range days {
		running = running.Add(sums[day])
		out = append(out, domain.DailyPnL{Date: day, PnL: sums[day], Cumulative: running})
	}
	return out
}

func startOfDay(t time.Time, loc *time.Location) time.Time {
	y, m, d := t.In(loc).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, loc)
}
