package notify_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alejandrodnm/polypnl/internal/adapters/notify"
	"github.com/alejandrodnm/polypnl/internal/domain"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func makeReport() domain.Report {
	now := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	return domain.Report{
		RunID:          "0b7c1d2e-aaaa-bbbb-cccc-000000000000",
		Wallet:         "0x1234567890abcdef1234",
		GeneratedAt:    now,
		EventsReplayed: 4,
		TotalRealized:  dec("50"),
		Period: domain.WindowTotals{
			Window:         domain.Window{Label: "1W", Start: now.AddDate(0, 0, -7), End: now},
			EventSum:       dec("-12.5"),
			CumulativeDiff: dec("-12.5"),
		},
		ByMarket: []domain.MarketPnL{
			{MarketID: "0xm1", Question: "Will Trump win?", PnL: dec("60"), Events: 2},
			{MarketID: "0xm2", Question: strings.Repeat("A", 80), PnL: dec("-10"), Events: 1},
		},
		ByGroup: []domain.GroupPnL{
			{GroupID: "0xgroup", Parent: "0xm1", Markets: 2, PnL: dec("50")},
		},
		Daily: []domain.DailyPnL{
			{Date: time.Date(2025, 3, 8, 0, 0, 0, 0, time.UTC), PnL: dec("60"), Cumulative: dec("60")},
			{Date: time.Date(2025, 3, 9, 0, 0, 0, 0, time.UTC), PnL: dec("-10"), Cumulative: dec("50")},
		},
		Positions: []domain.Position{
			{Asset: "tok-yes", Outcome: "Yes", Quantity: dec("50"), AvgCost: dec("0.4"), RealizedPnL: dec("15")},
			{Asset: "tok-no", Outcome: "No"},
		},
		Skips:      domain.SkipCounts{domain.SkipNoPosition: 2, domain.SkipUnresolvedRedeem: 1},
		CashFlow:   domain.CashFlow{Buys: dec("40"), Sells: dec("35"), Redeems: dec("50"), TradeCount: 2},
		Unrealized: domain.Unrealized{PnL: dec("5"), OpenValue: dec("25"), Priced: 1},
	}
}

func TestConsole_Notify_Compact(t *testing.T) {
	var buf bytes.Buffer
	n := notify.NewConsoleWriter(&buf, false)

	require.NoError(t, n.Notify(context.Background(), makeReport()))

	out := buf.String()
	assert.Equal(t, 1, strings.Count(out, "\n"))
	assert.Contains(t, out, "[12:00:00]")
	assert.Contains(t, out, "realized $50.00")
	assert.Contains(t, out, "1W -$12.50")
	assert.Contains(t, out, "cashflow $45.00")
	assert.Contains(t, out, "open 1")
	assert.Contains(t, out, "skipped 3")
	assert.NotContains(t, out, "mismatch")
}

func TestConsole_Notify_Table(t *testing.T) {
	var buf bytes.Buffer
	n := notify.NewConsoleWriter(&buf, true)

	require.NoError(t, n.Notify(context.Background(), makeReport()))

	out := buf.String()
	assert.Contains(t, out, "run 0b7c1d2e")
	assert.Contains(t, out, "Will Trump win?")
	assert.Contains(t, out, "0xgroup")
	assert.Contains(t, out, "2025-03-09")
	assert.Contains(t, out, "1 open / 2 total")
	assert.Contains(t, out, "no_position=2")
	assert.Contains(t, out, "unresolved_redeem=1")
	assert.Contains(t, out, "-$10.00")
}

// chunkWriter guarda cada Write por separado y tarda un poco en cada uno.
type chunkWriter struct {
	mu     sync.Mutex
	chunks []string
}

func (w *chunkWriter) Write(p []byte) (int, error) {
	time.Sleep(time.Millisecond)
	w.mu.Lock()
	defer w.mu.Unlock()
	w.chunks = append(w.chunks, string(p))
	return len(p), nil
}

func TestConsole_Notify_ConcurrentReportsDoNotInterleave(t *testing.T) {
	w := &chunkWriter{}
	n := notify.NewConsoleWriter(w, true)

	const reports = 6
	wallets := make([]string, reports)
	var wg sync.WaitGroup
	for i := range wallets {
		wallets[i] = fmt.Sprintf("0x%040d", i)
		wg.Add(1)
		go func(wallet string) {
			defer wg.Done()
			r := makeReport()
			r.Wallet = wallet
			assert.NoError(t, n.Notify(context.Background(), r))
		}(wallets[i])
	}
	wg.Wait()

	require.Len(t, w.chunks, reports, "each report must reach the writer in one piece")
	for _, chunk := range w.chunks {
		found := 0
		for _, wallet := range wallets {
			if strings.Contains(chunk, wallet) {
				found++
			}
		}
		assert.Equal(t, 1, found)
		assert.Contains(t, chunk, "POSITIONS")
	}
}

func TestConsole_PrintRuns_SingleWrite(t *testing.T) {
	w := &chunkWriter{}
	n := notify.NewConsoleWriter(w, false)

	n.PrintRuns("0xabc", []domain.RunSummary{
		{RunID: "r1", Wallet: "0xabc", Period: "ALL", GeneratedAt: time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)},
		{RunID: "r2", Wallet: "0xabc", Period: "1W", GeneratedAt: time.Date(2025, 3, 2, 0, 0, 0, 0, time.UTC)},
	})

	require.Len(t, w.chunks, 1)
	assert.Contains(t, w.chunks[0], "RUN HISTORY")
}

func TestConsole_Notify_Divergence(t *testing.T) {
	var buf bytes.Buffer
	r := makeReport()
	r.Period.CumulativeDiff = dec("-10")

	require.NoError(t, notify.NewConsoleWriter(&buf, false).Notify(context.Background(), r))
	assert.Contains(t, buf.String(), "window mismatch")

	buf.Reset()
	require.NoError(t, notify.NewConsoleWriter(&buf, true).Notify(context.Background(), r))
	assert.Contains(t, buf.String(), "cumulative diff")
}

func TestConsole_Notify_EmptyHistory(t *testing.T) {
	var buf bytes.Buffer
	n := notify.NewConsoleWriter(&buf, true)

	err := n.Notify(context.Background(), domain.Report{Wallet: "0xabc", GeneratedAt: time.Now()})
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "no history found")
}

func TestJSON_Notify(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, notify.NewJSONWriter(&buf).Notify(context.Background(), makeReport()))

	var got map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &got))

	assert.Equal(t, "50", got["total_realized"])
	assert.Equal(t, "45", got["cashflow_pnl"])

	period := got["period"].(map[string]any)
	assert.Equal(t, "1W", period["label"])
	assert.Equal(t, "-12.5", period["event_sum"])
	assert.Equal(t, false, period["diverged"])

	positions := got["positions"].([]any)
	require.Len(t, positions, 2)
	assert.Equal(t, "tok-no", positions[0].(map[string]any)["asset"])

	skips := got["skips"].(map[string]any)
	assert.EqualValues(t, 2, skips["no_position"])

	daily := got["daily"].([]any)
	assert.Equal(t, "2025-03-08", daily[0].(map[string]any)["date"])
}

func TestConsole_PrintRuns(t *testing.T) {
	var buf bytes.Buffer
	c := notify.NewConsoleWriter(&buf, false)

	c.PrintRuns("0xwallet", []domain.RunSummary{{
		RunID:          "abcdef12-3456",
		GeneratedAt:    time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC),
		Period:         "1W",
		TotalRealized:  dec("50"),
		PeriodRealized: dec("-2.5"),
		Diverged:       true,
		Events:         7,
	}})

	out := buf.String()
	assert.Contains(t, out, "1 runs")
	assert.Contains(t, out, "abcdef12")
	assert.Contains(t, out, "2025-03-10 12:00")
	assert.Contains(t, out, "1W (!)")
	assert.Contains(t, out, "-$2.50")

	buf.Reset()
	c.PrintRuns("0xwallet", nil)
	assert.Contains(t, buf.String(), "No stored runs")
}
