package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/alejandrodnm/polypnl/internal/domain"
)

// JSON implementa ports.Notifier escribiendo un objeto JSON por reporte.
type JSON struct {
	mu  sync.Mutex
	enc *json.Encoder
}

// NewJSON escribe a stdout.
func NewJSON() *JSON {
	return NewJSONWriter(os.Stdout)
}

// NewJSONWriter escribe al writer dado (tests).
func NewJSONWriter(w io.Writer) *JSON {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return &JSON{enc: enc}
}

type jsonReport struct {
	RunID          string          `json:"run_id"`
	Wallet         string          `json:"wallet"`
	GeneratedAt    time.Time       `json:"generated_at"`
	EventsReplayed int             `json:"events_replayed"`
	TotalRealized  decimal.Decimal `json:"total_realized"`
	Period         jsonPeriod      `json:"period"`
	CashFlowPnL    decimal.Decimal `json:"cashflow_pnl"`
	Unrealized     decimal.Decimal `json:"unrealized"`
	ByMarket       []jsonMarket    `json:"by_market"`
	ByGroup        []jsonGroup     `json:"by_group"`
	Daily          []jsonDay       `json:"daily"`
	Positions      []jsonPosition  `json:"positions"`
	Skips          map[string]int  `json:"skips"`
}

type jsonPeriod struct {
	Label          string          `json:"label"`
	Start          *time.Time      `json:"start,omitempty"`
	End            *time.Time      `json:"end,omitempty"`
	EventSum       decimal.Decimal `json:"event_sum"`
	CumulativeDiff decimal.Decimal `json:"cumulative_diff"`
	Diverged       bool            `json:"diverged"`
}

type jsonMarket struct {
	MarketID string          `json:"market_id"`
	Question string          `json:"question,omitempty"`
	PnL      decimal.Decimal `json:"pnl"`
	Events   int             `json:"events"`
}

type jsonGroup struct {
	GroupID string          `json:"group_id"`
	Parent  string          `json:"parent"`
	Markets int             `json:"markets"`
	PnL     decimal.Decimal `json:"pnl"`
}

type jsonDay struct {
	Date       string          `json:"date"`
	PnL        decimal.Decimal `json:"pnl"`
	Cumulative decimal.Decimal `json:"cumulative"`
}

type jsonPosition struct {
	Asset       string          `json:"asset"`
	MarketID    string          `json:"market_id,omitempty"`
	Outcome     string          `json:"outcome,omitempty"`
	Quantity    decimal.Decimal `json:"quantity"`
	AvgCost     decimal.Decimal `json:"avg_cost"`
	RealizedPnL decimal.Decimal `json:"realized_pnl"`
}

// Notify serializa el reporte completo.
func (j *JSON) Notify(_ context.Context, r domain.Report) error {
	out := jsonReport{
		RunID:          r.RunID,
		Wallet:         r.Wallet,
		GeneratedAt:    r.GeneratedAt,
		EventsReplayed: r.EventsReplayed,
		TotalRealized:  r.TotalRealized,
		Period: jsonPeriod{
			Label:          r.Period.Window.Label,
			Start:          timePtr(r.Period.Window.Start),
			End:            timePtr(r.Period.Window.End),
			EventSum:       r.Period.EventSum,
			CumulativeDiff: r.Period.CumulativeDiff,
			Diverged:       r.Period.Diverged(),
		},
		CashFlowPnL: r.CashFlow.PnL(),
		Unrealized:  r.Unrealized.PnL,
		ByMarket:    make([]jsonMarket, 0, len(r.ByMarket)),
		ByGroup:     make([]jsonGroup, 0, len(r.ByGroup)),
		Daily:       make([]jsonDay, 0, len(r.Daily)),
		Positions:   make([]jsonPosition, 0, len(r.Positions)),
		Skips:       make(map[string]int, len(r.Skips)),
	}
	for _, m := range r.ByMarket {
		out.ByMarket = append(out.ByMarket, jsonMarket(m))
	}
	for _, g := range r.ByGroup {
		out.ByGroup = append(out.ByGroup, jsonGroup(g))
	}
	for _, d := range r.Daily {
		out.Daily = append(out.Daily, jsonDay{Date: d.Date.Format(time.DateOnly), PnL: d.PnL, Cumulative: d.Cumulative})
	}
	for _, p := range r.Positions {
		out.Positions = append(out.Positions, jsonPosition{
			Asset:       p.Asset,
			MarketID:    p.MarketID,
			Outcome:     p.Outcome,
			Quantity:    p.Quantity,
			AvgCost:     p.AvgCost,
			RealizedPnL: p.RealizedPnL,
		})
	}
	sort.Slice(out.Positions, func(i, k int) bool { return out.Positions[i].Asset < out.Positions[k].Asset })
	for reason, n := range r.Skips {
		out.Skips[string(reason)] = n
	}

	j.mu.Lock()
	defer j.mu.Unlock()
	if err := j.enc.Encode(out); err != nil {
		return fmt.Errorf("notify.JSON: encode %s: %w", r.Wallet, err)
	}
	return nil
}

func timePtr(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
