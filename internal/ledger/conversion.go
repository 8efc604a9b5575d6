package ledger

// conversion.go: neg-risk CONVERSION.
//
// A conversion trades size units of one outcome for the opposite outcome of
// every other market in the group. Cost basis moves with the units and no PnL
// is realized until the targets are sold or redeemed.

import (
	"sort"

	"github.com/shopspring/decimal"

	"github.com/alejandrodnm/polypnl/internal/domain"
)

func (l *ledger) convert(ev domain.Event) {
	if !ev.Size.GreaterThan(l.opts.Dust) {
		l.skip(ev, domain.SkipZeroSize)
		return
	}
	src, ok := l.conversionSource(ev)
	if !ok {
		l.skip(ev, domain.SkipNoConversionSource)
		return
	}

	siblings := l.topo.Siblings(src.MarketID)
	if len(siblings) == 0 {
		l.skip(ev, domain.SkipNoGroup)
		return
	}
	targets := make([]OutcomeAsset, 0, len(siblings))
	for _, mid := range siblings {
		oa, ok := l.topo.Counterpart(mid, src.Outcome)
		if !ok {
			l.skip(ev, domain.SkipUnresolvedSibling)
			return
		}
		targets = append(targets, oa)
	}

	unit := src.AvgCost
	moved := unit.Mul(ev.Size)
	src.TotalSold = src.TotalSold.Add(ev.Size)
	src.TotalRevenue = src.TotalRevenue.Add(moved)
	l.reduce(src, ev.Size)

	share := unit.Div(decimal.NewFromInt(int64(len(targets))))
	for i, oa := range targets {
		pos := l.open(oa.Asset, siblings[i], oa.Outcome)
		l.acquire(pos, ev.Size, share, share.Mul(ev.Size))
	}

	l.log.Debug("conversion applied",
		"id", ev.ID,
		"source", src.Asset,
		"targets", len(targets),
		"moved", moved.String(),
	)
}

// conversionSource locates the position being converted. Candidates come from
// the explicit asset, else the outcome label, else every open position of the
// market. A candidate must hold at least size units at a unit cost close to
// full collateral. Exact quantity wins over the largest holding.
func (l *ledger) conversionSource(ev domain.Event) (*domain.Position, bool) {
	var candidates []*domain.Position
	switch {
	case ev.Asset != "":
		if p, ok := l.positions[ev.Asset]; ok {
			candidates = append(candidates, p)
		}
	case ev.MarketID != "" && ev.Outcome != "":
		if asset, ok := l.topo.Asset(ev.MarketID, ev.Outcome); ok {
			if p, ok := l.positions[asset]; ok {
				candidates = append(candidates, p)
			}
		}
	case ev.MarketID != "":
		candidates = l.positions.openIn(ev.MarketID, l.opts.Dust)
	}

	minQty := ev.Size.Sub(l.opts.Dust)
	qualified := candidates[:0:0]
	for _, p := range candidates {
		if p.Quantity.GreaterThanOrEqual(minQty) && p.AvgCost.GreaterThanOrEqual(l.opts.ConversionMinUnitCost) {
			qualified = append(qualified, p)
		}
	}
	if len(qualified) == 0 {
		return nil, false
	}

	for _, p := range qualified {
		if p.Quantity.Sub(ev.Size).Abs().LessThanOrEqual(l.opts.Dust) {
			return p, true
		}
	}
	sort.SliceStable(qualified, func(i, j int) bool {
		if !qualified[i].Quantity.Equal(qualified[j].Quantity) {
			return qualified[i].Quantity.GreaterThan(qualified[j].Quantity)
		}
		return qualified[i].Asset < qualified[j].Asset
	})
	return qualified[0], true
}
