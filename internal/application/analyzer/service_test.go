package analyzer

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alejandrodnm/polypnl/internal/domain"
	"github.com/alejandrodnm/polypnl/internal/metrics"
	"github.com/alejandrodnm/polypnl/internal/report"
)

// --- fakes ---

type fakeHistory struct {
	trades     map[string][]domain.Trade
	activities map[string][]domain.Activity
	err        error
}

func (f *fakeHistory) FetchTrades(_ context.Context, wallet string) ([]domain.Trade, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.trades[wallet], nil
}

func (f *fakeHistory) FetchActivities(_ context.Context, wallet string) ([]domain.Activity, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.activities[wallet], nil
}

type fakeMarkets struct {
	mu        sync.Mutex
	markets   map[string]domain.Market
	requested [][]string
	err       error
}

func (f *fakeMarkets) FetchMarkets(_ context.Context, ids []string) ([]domain.Market, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requested = append(f.requested, ids)
	if f.err != nil {
		return nil, f.err
	}
	var out []domain.Market
	for _, id := range ids {
		if m, ok := f.markets[id]; ok {
			out = append(out, m)
		}
	}
	return out, nil
}

type fakeMarks map[string]decimal.Decimal

func (f fakeMarks) FetchMarks(_ context.Context, assets []string) (map[string]decimal.Decimal, error) {
	out := make(map[string]decimal.Decimal)
	for _, a := range assets {
		if m, ok := f[a]; ok {
			out[a] = m
		}
	}
	return out, nil
}

type fakeStorage struct {
	mu         sync.Mutex
	trades     map[string][]domain.Trade
	activities map[string][]domain.Activity
	markets    map[string]domain.Market
	runs       []domain.RunSummary
}

func newFakeStorage() *fakeStorage {
	return &fakeStorage{
		trades:     make(map[string][]domain.Trade),
		activities: make(map[string][]domain.Activity),
		markets:    make(map[string]domain.Market),
	}
}

func (f *fakeStorage) SaveHistory(_ context.Context, wallet string, trades []domain.Trade, activities []domain.Activity) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.trades[wallet] = trades
	f.activities[wallet] = activities
	return nil
}

func (f *fakeStorage) LoadHistory(_ context.Context, wallet string) ([]domain.Trade, []domain.Activity, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.trades[wallet], f.activities[wallet], nil
}

func (f *fakeStorage) SaveMarkets(_ context.Context, markets []domain.Market) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, m := range markets {
		f.markets[m.ConditionID] = m
	}
	return nil
}

func (f *fakeStorage) LoadMarkets(_ context.Context, ids []string) ([]domain.Market, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.Market
	for _, id := range ids {
		if m, ok := f.markets[id]; ok {
			out = append(out, m)
		}
	}
	return out, nil
}

func (f *fakeStorage) SaveRun(_ context.Context, run domain.RunSummary) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.runs = append(f.runs, run)
	return nil
}

func (f *fakeStorage) GetRuns(_ context.Context, wallet string, _ int) ([]domain.RunSummary, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.RunSummary
	for _, r := range f.runs {
		if r.Wallet == wallet {
			out = append(out, r)
		}
	}
	return out, nil
}

func (f *fakeStorage) Close() error { return nil }

type recordingNotifier struct {
	mu      sync.Mutex
	reports []domain.Report
}

func (n *recordingNotifier) Notify(_ context.Context, r domain.Report) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.reports = append(n.reports, r)
	return nil
}

// --- fixtures ---

var epoch = time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func trade(id string, sec int, side domain.Side, price, size string) domain.Trade {
	return domain.Trade{
		ID: id, Timestamp: epoch.Add(time.Duration(sec) * time.Second), Side: side,
		Asset: "m1-yes", MarketID: "m1", Outcome: "Yes",
		Price: d(price), Size: d(size), Value: d(price).Mul(d(size)),
	}
}

// Compra 100 @0.40, vende 50 @0.60, compra 50 @0.80 y redime 100 → PnL 50.
func workedExample() ([]domain.Trade, []domain.Activity) {
	trades := []domain.Trade{
		trade("t1", 0, domain.SideBuy, "0.40", "100"),
		trade("t2", 10, domain.SideSell, "0.60", "50"),
		trade("t3", 20, domain.SideBuy, "0.80", "50"),
	}
	activities := []domain.Activity{{
		ID: "r1", Timestamp: epoch.Add(30 * time.Second), Kind: domain.ActivityRedeem,
		MarketID: "m1", Size: d("100"), Value: d("100"),
	}}
	return trades, activities
}

func resolvedMarket() domain.Market {
	return domain.Market{
		ConditionID:    "m1",
		Question:       "Will it happen?",
		Resolved:       true,
		WinningOutcome: "Yes",
		Tokens: []domain.Token{
			{TokenID: "m1-yes", Outcome: "Yes", Winner: true},
			{TokenID: "m1-no", Outcome: "No"},
		},
	}
}

type fixture struct {
	history  *fakeHistory
	markets  *fakeMarkets
	storage  *fakeStorage
	notifier *recordingNotifier
	metrics  *metrics.Metrics
}

func newFixture() *fixture {
	trades, activities := workedExample()
	return &fixture{
		history: &fakeHistory{
			trades:     map[string][]domain.Trade{"0xw": trades},
			activities: map[string][]domain.Activity{"0xw": activities},
		},
		markets:  &fakeMarkets{markets: map[string]domain.Market{"m1": resolvedMarket()}},
		storage:  newFakeStorage(),
		notifier: &recordingNotifier{},
		metrics:  metrics.NewMetrics(prometheus.NewRegistry()),
	}
}

func (f *fixture) service(cfg Config, marks fakeMarks) *Service {
	s := New(cfg, f.history, f.markets, nil, f.storage, f.notifier, f.metrics)
	if marks != nil {
		s.marks = marks
	}
	s.now = func() time.Time { return epoch.Add(time.Hour) }
	s.newRunID = func() string { return "run-1" }
	return s
}

// --- tests ---

func TestService_Analyze_WorkedExample(t *testing.T) {
	f := newFixture()
	s := f.service(Config{}, nil)

	rep, err := s.Analyze(context.Background(), "0xw")

	require.NoError(t, err)
	assert.True(t, d("50").Equal(rep.TotalRealized), "got %s", rep.TotalRealized)
	assert.Equal(t, "run-1", rep.RunID)
	assert.Equal(t, 4, rep.EventsReplayed)
	assert.Equal(t, 0, rep.Skips.Total())
	require.Len(t, rep.ByMarket, 1)
	assert.Equal(t, "Will it happen?", rep.ByMarket[0].Question)

	// historial, mercados y run persistidos
	assert.Len(t, f.storage.trades["0xw"], 3)
	assert.Contains(t, f.storage.markets, "m1")
	require.Len(t, f.storage.runs, 1)
	assert.Equal(t, "run-1", f.storage.runs[0].RunID)
	assert.True(t, d("50").Equal(f.storage.runs[0].TotalRealized))

	require.Len(t, f.notifier.reports, 1)
	assert.Equal(t, [][]string{{"m1"}}, f.markets.requested)

	assert.InDelta(t, 50.0, testutil.ToFloat64(f.metrics.Realized.WithLabelValues("0xw")), 1e-9)
	assert.Equal(t, 2.0, testutil.ToFloat64(f.metrics.EventsTotal.WithLabelValues("BUY")))
}

func TestService_Analyze_Offline(t *testing.T) {
	f := newFixture()
	trades, activities := workedExample()
	require.NoError(t, f.storage.SaveHistory(context.Background(), "0xw", trades, activities))
	f.history.err = errors.New("network disabled")

	rep, err := f.service(Config{Offline: true}, nil).Analyze(context.Background(), "0xw")

	require.NoError(t, err)
	assert.True(t, d("50").Equal(rep.TotalRealized))
	assert.Empty(t, f.markets.requested)
}

func TestService_Analyze_OfflineWithoutStorage(t *testing.T) {
	f := newFixture()
	s := New(Config{Offline: true}, f.history, f.markets, nil, nil, f.notifier, nil)

	_, err := s.Analyze(context.Background(), "0xw")

	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNoStorage))
	assert.Empty(t, f.notifier.reports)
}

func TestService_Analyze_HistoryError(t *testing.T) {
	f := newFixture()
	f.history.err = errors.New("boom")

	_, err := f.service(Config{}, nil).Analyze(context.Background(), "0xw")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "fetch trades")
	assert.Empty(t, f.notifier.reports)
	assert.Empty(t, f.storage.runs)
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.AnalyzeErrors.WithLabelValues("history")))
}

func TestService_Analyze_DropsInvalidRecords(t *testing.T) {
	f := newFixture()
	bad := trade("bad", 5, domain.SideBuy, "0.50", "10")
	bad.Size = d("-10")
	f.history.trades["0xw"] = append(f.history.trades["0xw"], bad)

	rep, err := f.service(Config{}, nil).Analyze(context.Background(), "0xw")

	require.NoError(t, err)
	assert.True(t, d("50").Equal(rep.TotalRealized))
	assert.Equal(t, 4, rep.EventsReplayed)
}

func TestService_Analyze_ResolvedMarketsFromCache(t *testing.T) {
	f := newFixture()
	require.NoError(t, f.storage.SaveMarkets(context.Background(), []domain.Market{resolvedMarket()}))

	_, err := f.service(Config{}, nil).Analyze(context.Background(), "0xw")

	require.NoError(t, err)
	assert.Empty(t, f.markets.requested)
}

func TestService_Analyze_UnresolvedCacheIsRefreshed(t *testing.T) {
	f := newFixture()
	stale := resolvedMarket()
	stale.Resolved = false
	stale.WinningOutcome = ""
	stale.Tokens[0].Winner = false
	require.NoError(t, f.storage.SaveMarkets(context.Background(), []domain.Market{stale}))

	_, err := f.service(Config{}, nil).Analyze(context.Background(), "0xw")

	require.NoError(t, err)
	assert.Equal(t, [][]string{{"m1"}}, f.markets.requested)
	assert.True(t, f.storage.markets["m1"].Resolved)
}

func TestService_Analyze_MarketErrorDegrades(t *testing.T) {
	f := newFixture()
	f.markets.err = errors.New("clob down")

	rep, err := f.service(Config{}, nil).Analyze(context.Background(), "0xw")

	// Sin metadata el REDEEM se resuelve por la única posición abierta
	require.NoError(t, err)
	assert.True(t, d("50").Equal(rep.TotalRealized))
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.AnalyzeErrors.WithLabelValues("markets")))
}

func TestService_Analyze_UnrealizedFromMarks(t *testing.T) {
	f := newFixture()
	f.history.trades["0xw"] = []domain.Trade{trade("t1", 0, domain.SideBuy, "0.40", "100")}
	f.history.activities["0xw"] = nil

	rep, err := f.service(Config{}, fakeMarks{"m1-yes": d("0.5")}).Analyze(context.Background(), "0xw")

	require.NoError(t, err)
	assert.True(t, rep.TotalRealized.IsZero())
	assert.True(t, d("10").Equal(rep.Unrealized.PnL), "got %s", rep.Unrealized.PnL)
	assert.Equal(t, 1, rep.Unrealized.Priced)
}

func TestService_Analyze_WindowedReport(t *testing.T) {
	f := newFixture()
	// Ventana (t=15s, fin]: solo el REDEEM (+40) cae dentro
	w := domain.Window{Label: report.PeriodCustom, Start: epoch.Add(15 * time.Second), End: epoch.Add(time.Hour)}

	rep, err := f.service(Config{Report: report.Options{Window: w}}, nil).Analyze(context.Background(), "0xw")

	require.NoError(t, err)
	assert.True(t, d("50").Equal(rep.TotalRealized))
	assert.True(t, d("40").Equal(rep.Period.EventSum), "got %s", rep.Period.EventSum)
	assert.False(t, rep.Period.Diverged())
}

func TestService_AnalyzeWallets(t *testing.T) {
	f := newFixture()
	f.history.trades["0xempty"] = nil

	s := f.service(Config{Workers: 2}, nil)
	results := s.AnalyzeWallets(context.Background(), []string{"0xw", "0xempty", "0xw"})

	require.Len(t, results, 3)
	assert.Equal(t, "0xw", results[0].Wallet)
	assert.Equal(t, "0xempty", results[1].Wallet)
	for _, r := range results {
		require.NoError(t, r.Err)
	}
	assert.True(t, d("50").Equal(results[0].Report.TotalRealized))
	assert.True(t, results[1].Report.TotalRealized.IsZero())
	assert.True(t, d("50").Equal(results[2].Report.TotalRealized))
	assert.Len(t, f.notifier.reports, 3)
}

func TestService_AnalyzeWallets_Cancelled(t *testing.T) {
	f := newFixture()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	results := f.service(Config{Workers: 1}, nil).AnalyzeWallets(ctx, []string{"0xw", "0xw"})

	require.Len(t, results, 2)
	for _, r := range results {
		assert.ErrorIs(t, r.Err, context.Canceled)
	}
	assert.Empty(t, f.notifier.reports)
}

func TestService_Run_SingleCycle(t *testing.T) {
	f := newFixture()

	err := f.service(Config{}, nil).Run(context.Background(), []string{"0xw"}, 0)

	require.NoError(t, err)
	assert.Len(t, f.notifier.reports, 1)
}

func TestService_Run_ReportsFailures(t *testing.T) {
	f := newFixture()
	f.history.err = errors.New("boom")

	err := f.service(Config{}, nil).Run(context.Background(), []string{"0xw", "0xother"}, 0)

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrWalletsFailed)
	assert.Contains(t, err.Error(), "2/2")
}

func TestService_Run_LoopStopsOnCancel(t *testing.T) {
	f := newFixture()
	ctx, cancel := context.WithTimeout(context.Background(), 120*time.Millisecond)
	defer cancel()

	err := f.service(Config{}, nil).Run(ctx, []string{"0xw"}, 20*time.Millisecond)

	require.NoError(t, err)
	f.notifier.mu.Lock()
	defer f.notifier.mu.Unlock()
	assert.GreaterOrEqual(t, len(f.notifier.reports), 2)
}

func TestService_Analyze_WindowFunc(t *testing.T) {
	f := newFixture()
	var got time.Time
	cfg := Config{Window: func(now time.Time) domain.Window {
		got = now
		return domain.Window{Label: "1D", Start: now.Add(-24 * time.Hour), End: now}
	}}

	rep, err := f.service(cfg, nil).Analyze(context.Background(), "0xw")

	require.NoError(t, err)
	assert.Equal(t, epoch.Add(time.Hour), got)
	assert.Equal(t, "1D", rep.Period.Window.Label)
	assert.True(t, d("50").Equal(rep.Period.EventSum))
}
