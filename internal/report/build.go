package report

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/alejandrodnm/polypnl/internal/domain"
	"github.com/alejandrodnm/polypnl/internal/ledger"
)

// Options shapes a report.
type Options struct {
	Window     domain.Window  // breakdowns and cash flow only cover this window
	TopMarkets int            // ≤ 0 keeps every market
	Location   *time.Location // day boundaries; nil means UTC
}

// Input is everything one wallet analysis produced.
type Input struct {
	RunID       string
	Wallet      string
	GeneratedAt time.Time
	Trades      []domain.Trade
	Activities  []domain.Activity
	Markets     []domain.Market
	Topology    *ledger.Topology
	Result      ledger.Result
	Marks       map[string]decimal.Decimal // asset → mid price; may be nil
}

// Build assembles the report of one wallet. The total realized PnL covers
// the whole history; per-market, per-group, daily and cash-flow figures
// cover the window only.
func Build(in Input, opts Options) domain.Report {
	questions := make(map[string]string, len(in.Markets))
	for _, m := range in.Markets {
		questions[m.ConditionID] = m.Question
	}

	topo := in.Topology
	if topo == nil {
		topo = ledger.BuildTopology(in.Trades, in.Activities, in.Markets)
	}

	inWindow := filter(in.Result.Events, opts.Window)
	byMarket := ByMarket(inWindow, questions)
	byGroup := ByGroup(byMarket, topo)
	if opts.TopMarkets > 0 && len(byMarket) > opts.TopMarkets {
		byMarket = byMarket[:opts.TopMarkets]
	}

	replayed := 0
	for _, n := range in.Result.Processed {
		replayed += n
	}

	return domain.Report{
		RunID:          in.RunID,
		Wallet:         in.Wallet,
		GeneratedAt:    in.GeneratedAt,
		EventsReplayed: replayed,
		TotalRealized:  in.Result.Total(),
		Period:         Totals(in.Result.Events, opts.Window),
		ByMarket:       byMarket,
		ByGroup:        byGroup,
		Daily:          ByDay(inWindow, opts.Location),
		Positions:      in.Result.Positions,
		Skips:          in.Result.Skips,
		CashFlow:       CashFlowIn(in.Trades, in.Activities, opts.Window),
		Unrealized:     Unrealized(in.Result.Positions, in.Marks),
	}
}

func filter(events []domain.RealizedPnLEvent, w domain.Window) []domain.RealizedPnLEvent {
	out := make([]domain.RealizedPnLEvent, 0, len(events))
	for _, e := range events {
		if w.Contains(e.Timestamp) {
			out = append(out, e)
		}
	}
	return out
}
