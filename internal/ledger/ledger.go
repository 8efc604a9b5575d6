// Package ledger replays a wallet's trades and settlement activities through a
// per-position weighted-average-cost-basis ledger and emits realized PnL.
//
// The replay is a single forward fold over a pre-ordered event list. It never
// returns an error: events it cannot attribute with certainty are skipped and
// counted, so a bad record undercounts PnL instead of corrupting cost basis.
package ledger

import (
	"log/slog"
	"sort"

	"github.com/shopspring/decimal"

	"github.com/alejandrodnm/polypnl/internal/domain"
)

var (
	defaultDust                  = decimal.New(1, -9)
	defaultConversionMinUnitCost = decimal.NewFromFloat(0.90)
)

// Options tunes the replay. Zero values fall back to defaults.
type Options struct {
	// Dust is the quantity treated as zero.
	Dust decimal.Decimal
	// ConversionMinUnitCost is the lowest average cost a position may carry to
	// be accepted as the source of a CONVERSION (near full collateral).
	ConversionMinUnitCost decimal.Decimal
	// Logger receives a debug line per skipped event. Nil silences it.
	Logger *slog.Logger
}

// DefaultOptions returns the options used when none are configured.
func DefaultOptions() Options {
	return Options{
		Dust:                  defaultDust,
		ConversionMinUnitCost: defaultConversionMinUnitCost,
	}
}

func (o Options) withDefaults() Options {
	if !o.Dust.IsPositive() {
		o.Dust = defaultDust
	}
	if !o.ConversionMinUnitCost.IsPositive() {
		o.ConversionMinUnitCost = defaultConversionMinUnitCost
	}
	if o.Logger == nil {
		o.Logger = slog.New(slog.DiscardHandler)
	}
	return o
}

// Result is the outcome of one replay.
type Result struct {
	Positions []domain.Position // every position ever opened, sorted by asset
	Events    []domain.RealizedPnLEvent
	Skips     domain.SkipCounts
	Processed map[domain.EventKind]int
}

// Total returns the realized PnL of the whole replay.
func (r Result) Total() decimal.Decimal {
	total := decimal.Zero
	for _, e := range r.Events {
		total = total.Add(e.Amount)
	}
	return total
}

// Position looks up the final state of an asset.
func (r Result) Position(asset string) (domain.Position, bool) {
	i := sort.Search(len(r.Positions), func(i int) bool { return r.Positions[i].Asset >= asset })
	if i < len(r.Positions) && r.Positions[i].Asset == asset {
		return r.Positions[i], true
	}
	return domain.Position{}, false
}

// Run merges, builds the topology and replays in one call.
func Run(trades []domain.Trade, activities []domain.Activity, markets []domain.Market, opts Options) Result {
	events := Merge(trades, activities)
	topo := BuildTopology(trades, activities, markets)
	return Replay(events, topo, opts)
}

// Replay folds the ordered events through a fresh ledger.
// Identical inputs always yield identical results.
func Replay(events []domain.Event, topo *Topology, opts Options) Result {
	l := newLedger(topo, opts)
	for _, ev := range events {
		l.apply(ev)
	}
	return l.result()
}

// ledger is the state of one replay. It owns its positions exclusively.
type ledger struct {
	topo      *Topology
	opts      Options
	log       *slog.Logger
	positions book
	events    []domain.RealizedPnLEvent
	skips     domain.SkipCounts
	processed map[domain.EventKind]int
}

func newLedger(topo *Topology, opts Options) *ledger {
	if topo == nil {
		topo = BuildTopology(nil, nil, nil)
	}
	opts = opts.withDefaults()
	return &ledger{
		topo:      topo,
		opts:      opts,
		log:       opts.Logger,
		positions: make(book),
		skips:     make(domain.SkipCounts),
		processed: make(map[domain.EventKind]int),
	}
}

func (l *ledger) apply(ev domain.Event) {
	l.processed[ev.Kind]++
	switch ev.Kind {
	case domain.EventBuy:
		l.buy(ev)
	case domain.EventSell:
		l.sell(ev)
	case domain.EventRedeem:
		l.redeem(ev)
	case domain.EventSplit:
		l.split(ev)
	case domain.EventMerge:
		l.merge(ev)
	case domain.EventReward:
		l.reward(ev)
	case domain.EventConversion:
		l.convert(ev)
	}
}

func (l *ledger) result() Result {
	positions := make([]domain.Position, 0, len(l.positions))
	for _, p := range l.positions {
		positions = append(positions, *p)
	}
	sort.Slice(positions, func(i, j int) bool { return positions[i].Asset < positions[j].Asset })
	return Result{
		Positions: positions,
		Events:    l.events,
		Skips:     l.skips,
		Processed: l.processed,
	}
}

// --- handlers ---

func (l *ledger) buy(ev domain.Event) {
	if ev.Asset == "" {
		l.skip(ev, domain.SkipMissingAsset)
		return
	}
	if !ev.Size.GreaterThan(l.opts.Dust) {
		l.skip(ev, domain.SkipZeroSize)
		return
	}
	cost := ev.Value
	if !cost.IsPositive() {
		cost = ev.Price.Mul(ev.Size)
	}
	pos := l.open(ev.Asset, ev.MarketID, ev.Outcome)
	l.acquire(pos, ev.Size, ev.Price, cost)
}

func (l *ledger) sell(ev domain.Event) {
	if ev.Asset == "" {
		l.skip(ev, domain.SkipMissingAsset)
		return
	}
	// a sell still records the asset in the snapshot, with nothing held
	pos := l.open(ev.Asset, ev.MarketID, ev.Outcome)
	if !l.held(pos) {
		l.skip(ev, domain.SkipNoPosition)
		return
	}
	realized := l.dispose(pos, ev.Size, ev.Price)
	l.emit(ev, pos, realized)
}

func (l *ledger) redeem(ev domain.Event) {
	if !ev.Size.GreaterThan(l.opts.Dust) {
		l.skip(ev, domain.SkipZeroSize)
		return
	}
	allocs, stage := resolveRedeem(l.topo, l.positions, ev, l.opts.Dust)
	if len(allocs) == 0 {
		l.skip(ev, domain.SkipUnresolvedRedeem)
		return
	}

	unit := ev.Value.Div(ev.Size)
	emitted := 0
	for _, a := range allocs {
		pos, ok := l.positions[a.asset]
		if !ok || !l.held(pos) {
			continue
		}
		realized := l.dispose(pos, a.size, unit)
		l.emit(ev, pos, realized)
		emitted++
	}
	if emitted == 0 {
		l.skip(ev, domain.SkipNoPosition)
		return
	}
	l.log.Debug("redeem resolved",
		"id", ev.ID,
		"market", ev.MarketID,
		"stage", stage,
		"targets", emitted,
	)
}

func (l *ledger) split(ev domain.Event) {
	if !ev.Size.GreaterThan(l.opts.Dust) {
		l.skip(ev, domain.SkipZeroSize)
		return
	}
	outcomes := l.topo.Outcomes(ev.MarketID)
	if len(outcomes) < 2 {
		l.skip(ev, domain.SkipUnknownOutcomes)
		return
	}
	unit := ev.Value.Div(ev.Size.Mul(decimal.NewFromInt(int64(len(outcomes)))))
	for _, oa := range outcomes {
		pos := l.open(oa.Asset, ev.MarketID, oa.Outcome)
		l.acquire(pos, ev.Size, unit, unit.Mul(ev.Size))
	}
}

func (l *ledger) merge(ev domain.Event) {
	if !ev.Size.GreaterThan(l.opts.Dust) {
		l.skip(ev, domain.SkipZeroSize)
		return
	}
	outcomes := l.topo.Outcomes(ev.MarketID)
	if len(outcomes) < 2 {
		l.skip(ev, domain.SkipUnknownOutcomes)
		return
	}
	unit := ev.Value.Div(ev.Size.Mul(decimal.NewFromInt(int64(len(outcomes)))))
	emitted := 0
	for _, oa := range outcomes {
		pos, ok := l.positions[oa.Asset]
		if !ok || !l.held(pos) {
			continue
		}
		realized := l.dispose(pos, ev.Size, unit)
		l.emit(ev, pos, realized)
		emitted++
	}
	if emitted == 0 {
		l.skip(ev, domain.SkipNoPosition)
	}
}

func (l *ledger) reward(ev domain.Event) {
	l.events = append(l.events, domain.RealizedPnLEvent{
		Timestamp: ev.Timestamp,
		Kind:      ev.Kind,
		MarketID:  ev.MarketID,
		Amount:    ev.Value,
	})
}

// --- position arithmetic ---

// open returns the position of asset, creating it empty on first acquisition.
func (l *ledger) open(asset, market, outcome string) *domain.Position {
	pos, ok := l.positions[asset]
	if !ok {
		pos = &domain.Position{Asset: asset, MarketID: market, Outcome: outcome}
		l.positions[asset] = pos
		return pos
	}
	if pos.MarketID == "" {
		pos.MarketID = market
	}
	if pos.Outcome == "" {
		pos.Outcome = outcome
	}
	return pos
}

// acquire re-averages the unit cost over all held units.
func (l *ledger) acquire(pos *domain.Position, size, unitCost, cost decimal.Decimal) {
	newQty := pos.Quantity.Add(size)
	if newQty.GreaterThan(l.opts.Dust) {
		pos.AvgCost = pos.AvgCost.Mul(pos.Quantity).Add(unitCost.Mul(size)).Div(newQty)
		pos.Quantity = newQty
	} else {
		pos.AvgCost = decimal.Zero
		pos.Quantity = decimal.Zero
	}
	pos.TotalBought = pos.TotalBought.Add(size)
	pos.TotalCost = pos.TotalCost.Add(cost)
}

// dispose closes up to size units at unitPrice and returns the realized PnL.
// Units beyond the held quantity are ignored; the average cost is untouched
// unless the position empties.
func (l *ledger) dispose(pos *domain.Position, size, unitPrice decimal.Decimal) decimal.Decimal {
	closed := decimal.Min(size, pos.Quantity)
	realized := closed.Mul(unitPrice.Sub(pos.AvgCost))

	pos.RealizedPnL = pos.RealizedPnL.Add(realized)
	pos.TotalSold = pos.TotalSold.Add(closed)
	pos.TotalRevenue = pos.TotalRevenue.Add(closed.Mul(unitPrice))
	l.reduce(pos, size)
	return realized
}

// reduce lowers the quantity, clamping at zero and resetting the average cost
// exactly when the position empties.
func (l *ledger) reduce(pos *domain.Position, size decimal.Decimal) {
	remaining := pos.Quantity.Sub(size)
	if remaining.GreaterThan(l.opts.Dust) {
		pos.Quantity = remaining
		return
	}
	pos.Quantity = decimal.Zero
	pos.AvgCost = decimal.Zero
}

func (l *ledger) held(pos *domain.Position) bool {
	return pos.Quantity.GreaterThan(l.opts.Dust)
}

func (l *ledger) emit(ev domain.Event, pos *domain.Position, amount decimal.Decimal) {
	market := ev.MarketID
	if market == "" {
		market = pos.MarketID
	}
	l.events = append(l.events, domain.RealizedPnLEvent{
		Timestamp: ev.Timestamp,
		Kind:      ev.Kind,
		Asset:     pos.Asset,
		MarketID:  market,
		Amount:    amount,
	})
}

func (l *ledger) skip(ev domain.Event, reason domain.SkipReason) {
	l.skips[reason]++
	l.log.Debug("event skipped",
		"id", ev.ID,
		"kind", ev.Kind.String(),
		"market", ev.MarketID,
		"asset", ev.Asset,
		"reason", string(reason),
	)
}
