package notify

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"

	"github.com/olekukonko/tablewriter"
	"github.com/shopspring/decimal"

	"github.com/alejandrodnm/polypnl/internal/domain"
)

// Console implementa ports.Notifier. Es seguro para uso concurrente: cada
// reporte se arma en un buffer y se escribe de una vez.
type Console struct {
	mu    sync.Mutex
	out   io.Writer
	table bool
}

// NewConsole crea un notificador que escribe a stdout.
func NewConsole(table bool) *Console {
	return &Console{out: os.Stdout, table: table}
}

// NewConsoleWriter crea un notificador para tests.
func NewConsoleWriter(w io.Writer, table bool) *Console {
	return &Console{out: w, table: table}
}

// Notify imprime el reporte en el modo configurado.
func (c *Console) Notify(_ context.Context, report domain.Report) error {
	var buf bytes.Buffer
	switch {
	case report.EventsReplayed == 0:
		fmt.Fprintf(&buf, "[%s] %s: no history found\n",
			report.GeneratedAt.Format("15:04:05"), walletLabel(report.Wallet))
	case c.table:
		printFull(&buf, report)
	default:
		printCompact(&buf, report)
	}
	return c.flush(&buf)
}

// flush escribe el buffer completo en out bajo el lock.
func (c *Console) flush(buf *bytes.Buffer) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, err := c.out.Write(buf.Bytes()); err != nil {
		return fmt.Errorf("notify.Console: write: %w", err)
	}
	return nil
}

// printCompact imprime lo esencial en una línea.
func printCompact(w io.Writer, r domain.Report) {
	var sb strings.Builder
	fmt.Fprintf(&sb, "[%s] %s realized %s",
		r.GeneratedAt.Format("15:04:05"), walletLabel(r.Wallet), usd(r.TotalRealized))

	if label := r.Period.Window.Label; label != "" && label != "ALL" {
		fmt.Fprintf(&sb, " | %s %s", label, usd(r.Period.EventSum))
	}
	fmt.Fprintf(&sb, " | cashflow %s | unrealized %s | open %d | skipped %d",
		usd(r.CashFlow.PnL()), usd(r.Unrealized.PnL), countOpen(r.Positions), r.Skips.Total())
	if r.Period.Diverged() {
		sb.WriteString(" | !! window mismatch")
	}

	fmt.Fprintln(w, sb.String())
}

// printFull imprime el reporte completo con tablas.
func printFull(w io.Writer, r domain.Report) {
	fmt.Fprintf(w, "\n=== REALIZED PnL — %s (run %s) ===\n", r.Wallet, shortRun(r.RunID))
	fmt.Fprintf(w, "  generated %s | %d events replayed\n\n",
		r.GeneratedAt.Format("2006-01-02 15:04:05 MST"), r.EventsReplayed)

	printSummary(w, r)
	printMarkets(w, r.ByMarket)
	printGroups(w, r.ByGroup)
	printDaily(w, r.Daily)
	printPositions(w, r.Positions)
	printSkips(w, r.Skips)
	fmt.Fprintln(w)
}

func printSummary(w io.Writer, r domain.Report) {
	fmt.Fprintf(w, "  Total realized:        %s\n", usd(r.TotalRealized))

	p := r.Period
	fmt.Fprintf(w, "  Period %-6s          %s  (%s)\n", p.Window.Label+":", usd(p.EventSum), windowLabel(p.Window))
	if p.Diverged() {
		fmt.Fprintf(w, "  !! cumulative diff:     %s  (event sum and snapshot disagree)\n", usd(p.CumulativeDiff))
	}

	cf := r.CashFlow
	fmt.Fprintf(w, "  Cash-flow PnL:         %s  (in %s / out %s, %d trades, vol %s)\n",
		usd(cf.PnL()), usd(cf.Inflows()), usd(cf.Outflows()), cf.TradeCount, usd(cf.Volume))

	u := r.Unrealized
	fmt.Fprintf(w, "  Unrealized (mid):      %s  (open value %s, %d priced, %d unpriced)\n\n",
		usd(u.PnL), usd(u.OpenValue), u.Priced, u.Unpriced)
}

func printMarkets(w io.Writer, markets []domain.MarketPnL) {
	if len(markets) == 0 {
		return
	}
	fmt.Fprintln(w, "  --- BY MARKET ---")
	table := tablewriter.NewWriter(w)
	table.Header("#", "Market", "Events", "PnL")
	for i, m := range markets {
		table.Append(
			fmt.Sprintf("%d", i+1),
			domain.TruncateQuestion(m.Question, m.MarketID, 50),
			fmt.Sprintf("%d", m.Events),
			usd(m.PnL),
		)
	}
	table.Render()
}

// printGroups solo muestra grupos neg-risk con más de un mercado.
func printGroups(w io.Writer, groups []domain.GroupPnL) {
	var multi []domain.GroupPnL
	for _, g := range groups {
		if g.Markets > 1 {
			multi = append(multi, g)
		}
	}
	if len(multi) == 0 {
		return
	}
	fmt.Fprintln(w, "\n  --- BY NEG-RISK GROUP ---")
	table := tablewriter.NewWriter(w)
	table.Header("Group", "Parent", "Markets", "PnL")
	for _, g := range multi {
		table.Append(
			shortID(g.GroupID),
			shortID(g.Parent),
			fmt.Sprintf("%d", g.Markets),
			usd(g.PnL),
		)
	}
	table.Render()
}

func printDaily(w io.Writer, days []domain.DailyPnL) {
	if len(days) == 0 {
		return
	}
	fmt.Fprintln(w, "\n  --- BY DAY ---")
	table := tablewriter.NewWriter(w)
	table.Header("Date", "PnL", "Cumulative")
	for _, d := range days {
		table.Append(d.Date.Format("2006-01-02"), usd(d.PnL), usd(d.Cumulative))
	}
	table.Render()
}

func printPositions(w io.Writer, positions []domain.Position) {
	var open []domain.Position
	for _, p := range positions {
		if p.Open() {
			open = append(open, p)
		}
	}
	fmt.Fprintf(w, "\n  --- POSITIONS (%d open / %d total) ---\n", len(open), len(positions))
	if len(open) == 0 {
		return
	}
	table := tablewriter.NewWriter(w)
	table.Header("Asset", "Outcome", "Qty", "Avg cost", "Cost basis", "Realized")
	for _, p := range open {
		table.Append(
			shortID(p.Asset),
			p.Outcome,
			p.Quantity.StringFixed(2),
			p.AvgCost.StringFixed(4),
			usd(p.CostBasis()),
			usd(p.RealizedPnL),
		)
	}
	table.Render()
}

func printSkips(w io.Writer, skips domain.SkipCounts) {
	reasons := skips.Reasons()
	if len(reasons) == 0 {
		return
	}
	parts := make([]string, 0, len(reasons))
	for _, r := range reasons {
		parts = append(parts, fmt.Sprintf("%s=%d", r, skips[r]))
	}
	fmt.Fprintf(w, "\n  Skipped %d events: %s\n", skips.Total(), strings.Join(parts, " "))
}

// PrintRuns imprime el historial de análisis guardados de una wallet.
func (c *Console) PrintRuns(wallet string, runs []domain.RunSummary) {
	var buf bytes.Buffer
	printRuns(&buf, wallet, runs)
	if err := c.flush(&buf); err != nil {
		slog.Warn("console write failed", "err", err)
	}
}

func printRuns(w io.Writer, wallet string, runs []domain.RunSummary) {
	if len(runs) == 0 {
		fmt.Fprintf(w, "\n  No stored runs for %s. Run an analysis first.\n", walletLabel(wallet))
		return
	}

	fmt.Fprintf(w, "\n=== RUN HISTORY — %s (%d runs) ===\n", wallet, len(runs))
	table := tablewriter.NewWriter(w)
	table.Header("Run", "Generated", "Period", "Realized", "Period PnL", "Cash-flow", "Unrealized", "Events", "Skipped")
	for _, r := range runs {
		period := r.Period
		if r.Diverged {
			period += " (!)"
		}
		table.Append(
			shortRun(r.RunID),
			r.GeneratedAt.Format("2006-01-02 15:04"),
			period,
			usd(r.TotalRealized),
			usd(r.PeriodRealized),
			usd(r.CashFlowPnL),
			usd(r.Unrealized),
			fmt.Sprintf("%d", r.Events),
			fmt.Sprintf("%d", r.Skipped),
		)
	}
	table.Render()
	fmt.Fprintln(w)
}

// --- helpers ---

// usd formatea un importe con 2 decimales: $12.50, -$3.00.
func usd(d decimal.Decimal) string {
	if d.IsNegative() {
		return "-$" + d.Neg().StringFixed(2)
	}
	return "$" + d.StringFixed(2)
}

func countOpen(positions []domain.Position) int {
	n := 0
	for _, p := range positions {
		if p.Open() {
			n++
		}
	}
	return n
}

func windowLabel(w domain.Window) string {
	const layout = "2006-01-02 15:04"
	switch {
	case w.Start.IsZero() && w.End.IsZero():
		return "all history"
	case w.Start.IsZero():
		return "until " + w.End.Format(layout)
	case w.End.IsZero():
		return w.Start.Format(layout) + " → now"
	}
	return w.Start.Format(layout) + " → " + w.End.Format(layout)
}

func walletLabel(wallet string) string {
	if len(wallet) > 12 {
		return wallet[:6] + "…" + wallet[len(wallet)-4:]
	}
	return wallet
}

func shortID(id string) string {
	if len(id) > 14 {
		return id[:12] + "..."
	}
	return id
}

func shortRun(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
