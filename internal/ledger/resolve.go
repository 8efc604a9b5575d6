package ledger

// resolve.go: attributes REDEEMs that arrive without a token id.
//
// Each stage is an independent function; the first one that returns a result
// wins. A stage only reads the topology and the current positions.

import (
	"sort"

	"github.com/shopspring/decimal"

	"github.com/alejandrodnm/polypnl/internal/domain"
)

// book is the position map of one replay, keyed by asset.
type book map[string]*domain.Position

// openIn returns the positions of market holding more than dust, sorted by asset.
func (b book) openIn(market string, dust decimal.Decimal) []*domain.Position {
	var out []*domain.Position
	for _, p := range b {
		if p.MarketID == market && p.Quantity.GreaterThan(dust) {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Asset < out[j].Asset })
	return out
}

// allocation is the share of a settlement charged to one asset.
type allocation struct {
	asset string
	size  decimal.Decimal
}

// redeemStage is one step of the resolution chain.
type redeemStage struct {
	name    string
	resolve func(topo *Topology, positions book, ev domain.Event, dust decimal.Decimal) ([]allocation, bool)
}

var redeemChain = []redeemStage{
	{"explicit_asset", resolveExplicitAsset},
	{"outcome_label", resolveOutcomeLabel},
	{"winning_outcome", resolveWinningOutcome},
	{"single_open_position", resolveSingleOpen},
	{"exact_quantity", resolveExactQuantity},
	{"largest_first", resolveLargestFirst},
}

// resolveRedeem runs the chain and returns the allocations of the first stage
// that succeeds together with its name.
func resolveRedeem(topo *Topology, positions book, ev domain.Event, dust decimal.Decimal) ([]allocation, string) {
	for _, stage := range redeemChain {
		if allocs, ok := stage.resolve(topo, positions, ev, dust); ok {
			return allocs, stage.name
		}
	}
	return nil, ""
}

func single(asset string, size decimal.Decimal) []allocation {
	return []allocation{{asset: asset, size: size}}
}

func resolveExplicitAsset(_ *Topology, _ book, ev domain.Event, _ decimal.Decimal) ([]allocation, bool) {
	if ev.Asset == "" {
		return nil, false
	}
	return single(ev.Asset, ev.Size), true
}

func resolveOutcomeLabel(topo *Topology, _ book, ev domain.Event, _ decimal.Decimal) ([]allocation, bool) {
	if ev.MarketID == "" || ev.Outcome == "" {
		return nil, false
	}
	asset, ok := topo.Asset(ev.MarketID, ev.Outcome)
	if !ok {
		return nil, false
	}
	return single(asset, ev.Size), true
}

// resolveWinningOutcome prices positive redemptions against the winner and
// zero-value ones against the other outcome of a settled market.
func resolveWinningOutcome(topo *Topology, _ book, ev domain.Event, _ decimal.Decimal) ([]allocation, bool) {
	if ev.MarketID == "" {
		return nil, false
	}
	winner, ok := topo.Winner(ev.MarketID)
	if !ok {
		return nil, false
	}
	if ev.Value.IsPositive() {
		asset, ok := topo.Asset(ev.MarketID, winner)
		if !ok {
			return nil, false
		}
		return single(asset, ev.Size), true
	}
	loser, ok := topo.Counterpart(ev.MarketID, winner)
	if !ok {
		return nil, false
	}
	return single(loser.Asset, ev.Size), true
}

// resolveSingleOpen picks the only position of the market still holding units.
func resolveSingleOpen(_ *Topology, positions book, ev domain.Event, dust decimal.Decimal) ([]allocation, bool) {
	if ev.MarketID == "" {
		return nil, false
	}
	open := positions.openIn(ev.MarketID, dust)
	if len(open) != 1 {
		return nil, false
	}
	return single(open[0].Asset, ev.Size), true
}

// resolveExactQuantity picks the only open position whose quantity equals the
// redeemed size.
func resolveExactQuantity(_ *Topology, positions book, ev domain.Event, dust decimal.Decimal) ([]allocation, bool) {
	if ev.MarketID == "" {
		return nil, false
	}
	var match *domain.Position
	for _, p := range positions.openIn(ev.MarketID, dust) {
		if p.Quantity.Sub(ev.Size).Abs().LessThanOrEqual(dust) {
			if match != nil {
				return nil, false
			}
			match = p
		}
	}
	if match == nil {
		return nil, false
	}
	return single(match.Asset, ev.Size), true
}

// resolveLargestFirst spreads the redeemed size over the market's open
// positions, largest quantity first, until it is exhausted.
func resolveLargestFirst(_ *Topology, positions book, ev domain.Event, dust decimal.Decimal) ([]allocation, bool) {
	if ev.MarketID == "" {
		return nil, false
	}
	open := positions.openIn(ev.MarketID, dust)
	if len(open) == 0 {
		return nil, false
	}
	sort.SliceStable(open, func(i, j int) bool {
		return open[i].Quantity.GreaterThan(open[j].Quantity)
	})

	remaining := ev.Size
	var allocs []allocation
	for _, p := range open {
		if !remaining.GreaterThan(dust) {
			break
		}
		take := decimal.Min(remaining, p.Quantity)
		allocs = append(allocs, allocation{asset: p.Asset, size: take})
		remaining = remaining.Sub(take)
	}
	return allocs, len(allocs) > 0
}
