package ledger

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alejandrodnm/polypnl/internal/domain"
)

var t0 = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func at(sec int) time.Time { return t0.Add(time.Duration(sec) * time.Second) }

func assertDec(t *testing.T, want string, got decimal.Decimal, msgAndArgs ...any) {
	t.Helper()
	assert.True(t, d(want).Equal(got), append([]any{"want %s, got %s", want, got.String()}, msgAndArgs...)...)
}

func buy(id string, sec int, asset, market, outcome, price, size string) domain.Trade {
	return domain.Trade{
		ID: id, Timestamp: at(sec), Side: domain.SideBuy,
		Asset: asset, MarketID: market, Outcome: outcome,
		Price: d(price), Size: d(size), Value: d(price).Mul(d(size)),
	}
}

func sell(id string, sec int, asset, market, outcome, price, size string) domain.Trade {
	tr := buy(id, sec, asset, market, outcome, price, size)
	tr.Side = domain.SideSell
	return tr
}

func activity(id string, sec int, kind domain.ActivityKind, market, size, value string) domain.Activity {
	return domain.Activity{
		ID: id, Timestamp: at(sec), Kind: kind,
		MarketID: market, Size: d(size), Value: d(value),
	}
}

func binaryMarket(id string, winner string) domain.Market {
	return domain.Market{
		ConditionID: id,
		Tokens: []domain.Token{
			{TokenID: id + "-yes", Outcome: "Yes", Winner: winner == "Yes"},
			{TokenID: id + "-no", Outcome: "No", Winner: winner == "No"},
		},
	}
}

// --- worked example ---

func TestRun_WorkedExample(t *testing.T) {
	trades := []domain.Trade{
		buy("t1", 0, "yes", "m1", "Yes", "0.40", "100"),
		sell("t2", 10, "yes", "m1", "Yes", "0.60", "50"),
		buy("t3", 20, "yes", "m1", "Yes", "0.80", "50"),
	}
	activities := []domain.Activity{
		activity("r1", 30, domain.ActivityRedeem, "m1", "100", "100"),
	}

	res := Run(trades, activities, nil, Options{})

	require.Len(t, res.Events, 2)
	assertDec(t, "10", res.Events[0].Amount)
	assertDec(t, "40", res.Events[1].Amount)
	assertDec(t, "50", res.Total())
	assert.Equal(t, domain.EventRedeem, res.Events[1].Kind)

	pos, ok := res.Position("yes")
	require.True(t, ok)
	assertDec(t, "0", pos.Quantity)
	assertDec(t, "0", pos.AvgCost)
	assertDec(t, "50", pos.RealizedPnL)
	assertDec(t, "150", pos.TotalBought)
	assertDec(t, "80", pos.TotalCost)
	assert.Equal(t, 0, res.Skips.Total())
}

func TestRun_AverageCostStaysOnSell(t *testing.T) {
	l := newLedger(BuildTopology(nil, nil, nil), Options{})
	l.apply(domain.EventFromTrade(0, buy("t1", 0, "a", "m", "Yes", "0.40", "100")))
	l.apply(domain.EventFromTrade(1, sell("t2", 1, "a", "m", "Yes", "0.60", "50")))

	pos := l.positions["a"]
	assertDec(t, "50", pos.Quantity)
	assertDec(t, "0.4", pos.AvgCost)

	l.apply(domain.EventFromTrade(2, buy("t3", 2, "a", "m", "Yes", "0.80", "50")))
	assertDec(t, "100", pos.Quantity)
	assertDec(t, "0.6", pos.AvgCost)
}

// --- properties ---

func TestReplay_Conservation(t *testing.T) {
	trades := []domain.Trade{
		buy("t1", 0, "a", "m", "Yes", "0.40", "100"),
		sell("t2", 1, "a", "m", "Yes", "0.50", "30"),
		sell("t3", 2, "a", "m", "Yes", "0.70", "70"),
	}
	res := Run(trades, nil, nil, Options{})

	pos, ok := res.Position("a")
	require.True(t, ok)
	proceeds := pos.TotalRevenue
	cost := pos.TotalCost
	assertDec(t, "64", proceeds)
	assertDec(t, "40", cost)
	assertDec(t, proceeds.Sub(cost).String(), res.Total())
	assertDec(t, "24", pos.RealizedPnL)
}

func TestReplay_NonNegativityAndZeroReset(t *testing.T) {
	events := []domain.Trade{
		buy("t1", 0, "a", "m", "Yes", "0.30", "10"),
		sell("t2", 1, "a", "m", "Yes", "0.50", "4"),
		sell("t3", 2, "a", "m", "Yes", "0.50", "25"), // oversell
		buy("t4", 3, "a", "m", "Yes", "0.70", "5"),
		sell("t5", 4, "a", "m", "Yes", "0.90", "5"),
		sell("t6", 5, "a", "m", "Yes", "0.90", "5"), // nothing left
	}

	l := newLedger(BuildTopology(events, nil, nil), Options{})
	for i, tr := range events {
		l.apply(domain.EventFromTrade(i, tr))
		pos := l.positions["a"]
		require.NotNil(t, pos)
		assert.False(t, pos.Quantity.IsNegative(), "step %d: quantity %s", i, pos.Quantity)
		if pos.Quantity.IsZero() {
			assert.True(t, pos.AvgCost.IsZero(), "step %d: avg %s with zero quantity", i, pos.AvgCost)
		} else {
			assert.True(t, pos.AvgCost.IsPositive(), "step %d: avg %s with open quantity", i, pos.AvgCost)
		}
	}

	// oversell realizes only on the 6 units held
	assertDec(t, "1.2", l.events[1].Amount)
	assert.Equal(t, 1, l.skips[domain.SkipNoPosition])
}

func TestReplay_SplitMergeRoundTrip(t *testing.T) {
	markets := []domain.Market{binaryMarket("m", "")}
	activities := []domain.Activity{
		activity("s1", 0, domain.ActivitySplit, "m", "10", "10"),
		activity("g1", 0, domain.ActivityMerge, "m", "10", "10"),
	}

	res := Run(nil, activities, markets, Options{})

	require.Len(t, res.Events, 2)
	for _, e := range res.Events {
		assertDec(t, "0", e.Amount)
		assert.Equal(t, domain.EventMerge, e.Kind)
	}
	assertDec(t, "0", res.Total())
	for _, asset := range []string{"m-yes", "m-no"} {
		pos, ok := res.Position(asset)
		require.True(t, ok, asset)
		assertDec(t, "0", pos.Quantity)
		assertDec(t, "10", pos.TotalBought)
		assertDec(t, "5", pos.TotalCost)
	}
}

func TestReplay_SplitPricesHalfPerOutcome(t *testing.T) {
	markets := []domain.Market{binaryMarket("m", "")}
	activities := []domain.Activity{
		activity("s1", 0, domain.ActivitySplit, "m", "20", "20"),
	}
	trades := []domain.Trade{
		sell("t1", 10, "m-yes", "m", "Yes", "0.80", "20"),
	}

	res := Run(trades, activities, markets, Options{})

	require.Len(t, res.Events, 1)
	assertDec(t, "6", res.Events[0].Amount)
	no, ok := res.Position("m-no")
	require.True(t, ok)
	assertDec(t, "20", no.Quantity)
	assertDec(t, "0.5", no.AvgCost)
}

func TestReplay_WinnerLoserPairing_Inferred(t *testing.T) {
	trades := []domain.Trade{
		buy("t1", 0, "yes", "m", "Yes", "0.60", "100"),
		buy("t2", 1, "no", "m", "No", "0.30", "50"),
	}
	// loser listed first: ordering must put the winner ahead
	activities := []domain.Activity{
		activity("r-lose", 100, domain.ActivityRedeem, "m", "50", "0"),
		activity("r-win", 100, domain.ActivityRedeem, "m", "100", "100"),
	}

	res := Run(trades, activities, nil, Options{})

	require.Len(t, res.Events, 2)
	assert.Equal(t, "yes", res.Events[0].Asset)
	assertDec(t, "40", res.Events[0].Amount)
	assert.Equal(t, "no", res.Events[1].Asset)
	assertDec(t, "-15", res.Events[1].Amount)
	assertDec(t, "25", res.Total())
	assert.Equal(t, 0, res.Skips.Total())
}

func TestReplay_WinnerLoserPairing_Resolved(t *testing.T) {
	trades := []domain.Trade{
		buy("t1", 0, "m-yes", "m", "Yes", "0.60", "100"),
		buy("t2", 1, "m-no", "m", "No", "0.30", "100"),
	}
	activities := []domain.Activity{
		activity("r-lose", 100, domain.ActivityRedeem, "m", "100", "0"),
		activity("r-win", 100, domain.ActivityRedeem, "m", "100", "100"),
	}
	markets := []domain.Market{binaryMarket("m", "Yes")}

	res := Run(trades, activities, markets, Options{})

	require.Len(t, res.Events, 2)
	assert.Equal(t, "m-yes", res.Events[0].Asset)
	assertDec(t, "40", res.Events[0].Amount)
	assert.Equal(t, "m-no", res.Events[1].Asset)
	assertDec(t, "-30", res.Events[1].Amount)
}

func TestReplay_SkipOverGuess(t *testing.T) {
	trades := []domain.Trade{
		buy("t1", 0, "other", "m-other", "Yes", "0.50", "10"),
	}
	activities := []domain.Activity{
		activity("r1", 10, domain.ActivityRedeem, "m-unknown", "10", "10"),
		activity("s1", 11, domain.ActivitySplit, "m-unknown", "10", "10"),
		activity("g1", 12, domain.ActivityMerge, "m-unknown", "10", "10"),
	}

	res := Run(trades, activities, nil, Options{})

	assert.Empty(t, res.Events)
	require.Len(t, res.Positions, 1)
	pos := res.Positions[0]
	assert.Equal(t, "other", pos.Asset)
	assertDec(t, "10", pos.Quantity)
	assertDec(t, "0.5", pos.AvgCost)
	assert.Equal(t, 1, res.Skips[domain.SkipUnresolvedRedeem])
	assert.Equal(t, 2, res.Skips[domain.SkipUnknownOutcomes])
}

func TestReplay_ConsumingEventsNeverFabricateQuantity(t *testing.T) {
	trades := []domain.Trade{
		sell("t1", 0, "ghost", "m", "Yes", "0.50", "10"),
		{ID: "t2", Timestamp: at(1), Side: domain.SideBuy, MarketID: "m", Price: d("0.5"), Size: d("1")},
	}
	activities := []domain.Activity{
		{ID: "r1", Timestamp: at(2), Kind: domain.ActivityRedeem, MarketID: "m", Asset: "ghost", Size: d("10"), Value: d("10")},
		activity("r2", 3, domain.ActivityRedeem, "m", "0", "0"),
	}

	res := Run(trades, activities, nil, Options{})

	assert.Empty(t, res.Events)
	// the sell leaves an empty snapshot entry; the redeem adds nothing
	require.Len(t, res.Positions, 1)
	ghost := res.Positions[0]
	assert.Equal(t, "ghost", ghost.Asset)
	assert.Equal(t, "m", ghost.MarketID)
	assert.True(t, ghost.Quantity.IsZero())
	assert.True(t, ghost.AvgCost.IsZero())
	assert.True(t, ghost.RealizedPnL.IsZero())
	assert.False(t, ghost.Open())
	assert.Equal(t, 2, res.Skips[domain.SkipNoPosition])
	assert.Equal(t, 1, res.Skips[domain.SkipMissingAsset])
	assert.Equal(t, 1, res.Skips[domain.SkipZeroSize])
	assert.Equal(t, 4, res.Skips.Total())
}

func TestReplay_Reward(t *testing.T) {
	activities := []domain.Activity{
		activity("rw1", 0, domain.ActivityReward, "", "0", "2.5"),
	}
	res := Run(nil, activities, nil, Options{})

	require.Len(t, res.Events, 1)
	assert.Equal(t, domain.EventReward, res.Events[0].Kind)
	assert.Empty(t, res.Events[0].Asset)
	assertDec(t, "2.5", res.Total())
	assert.Empty(t, res.Positions)
}

func TestReplay_LargestFirstAllocation(t *testing.T) {
	markets := []domain.Market{{ConditionID: "m"}}
	trades := []domain.Trade{
		buy("t1", 0, "a", "m", "A", "0.20", "30"),
		buy("t2", 0, "b", "m", "B", "0.10", "50"),
		buy("t3", 0, "c", "m", "C", "0.30", "20"),
	}
	activities := []domain.Activity{
		activity("r1", 10, domain.ActivityRedeem, "m", "60", "0"),
	}

	res := Run(trades, activities, markets, Options{})

	require.Len(t, res.Events, 2)
	assert.Equal(t, "b", res.Events[0].Asset)
	assertDec(t, "-5", res.Events[0].Amount)
	assert.Equal(t, "a", res.Events[1].Asset)
	assertDec(t, "-2", res.Events[1].Amount)

	a, _ := res.Position("a")
	assertDec(t, "20", a.Quantity)
	c, _ := res.Position("c")
	assertDec(t, "20", c.Quantity)
}

func TestReplay_Deterministic(t *testing.T) {
	trades := []domain.Trade{
		buy("t1", 0, "yes", "m", "Yes", "0.60", "100"),
		buy("t2", 0, "no", "m", "No", "0.30", "50"),
		sell("t3", 5, "yes", "m", "Yes", "0.70", "10"),
	}
	activities := []domain.Activity{
		activity("r1", 100, domain.ActivityRedeem, "m", "50", "0"),
		activity("r2", 100, domain.ActivityRedeem, "m", "90", "90"),
		activity("rw", 100, domain.ActivityReward, "m", "0", "1"),
	}

	first := Run(trades, activities, nil, Options{})
	for i := 0; i < 10; i++ {
		again := Run(trades, activities, nil, Options{})
		assert.Equal(t, first.Events, again.Events)
		assert.Equal(t, first.Positions, again.Positions)
		assert.Equal(t, first.Skips, again.Skips)
	}
}

func TestReplay_NilTopology(t *testing.T) {
	events := Merge([]domain.Trade{buy("t1", 0, "a", "m", "Yes", "0.5", "2")}, nil)
	res := Replay(events, nil, Options{})
	require.Len(t, res.Positions, 1)
	assert.Equal(t, 1, res.Processed[domain.EventBuy])
}
