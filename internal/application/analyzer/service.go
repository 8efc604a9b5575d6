package analyzer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/alejandrodnm/polypnl/internal/domain"
	"github.com/alejandrodnm/polypnl/internal/ledger"
	"github.com/alejandrodnm/polypnl/internal/metrics"
	"github.com/alejandrodnm/polypnl/internal/ports"
	"github.com/alejandrodnm/polypnl/internal/report"
)

// ErrNoStorage is returned by offline analyses without a configured store.
var ErrNoStorage = errors.New("offline analysis requires storage")

// Config contiene la configuración del análisis.
type Config struct {
	Ledger  ledger.Options
	Report  report.Options
	Workers int  // wallets analizadas en paralelo (0 = NumCPU)
	Offline bool // replay desde la cache SQLite, sin llamadas a la API

	// Window, si no es nil, recalcula Report.Window en cada análisis para
	// que los periodos móviles avancen entre ciclos.
	Window func(now time.Time) domain.Window
}

// Service orquesta el análisis de una wallet:
// historial → validación → mercados → replay → reporte → persistencia → notificación.
type Service struct {
	cfg      Config
	history  ports.HistoryProvider
	markets  ports.MarketProvider
	marks    ports.MarkProvider // opcional: sin él no hay unrealized
	storage  ports.Storage      // opcional salvo en modo offline
	notifier ports.Notifier
	metrics  *metrics.Metrics
	now      func() time.Time
	newRunID func() string
}

// New crea un Service con todas las dependencias inyectadas.
// marks, storage y m pueden ser nil.
func New(
	cfg Config,
	history ports.HistoryProvider,
	markets ports.MarketProvider,
	marks ports.MarkProvider,
	storage ports.Storage,
	notifier ports.Notifier,
	m *metrics.Metrics,
) *Service {
	return &Service{
		cfg:      cfg,
		history:  history,
		markets:  markets,
		marks:    marks,
		storage:  storage,
		notifier: notifier,
		metrics:  m,
		now:      func() time.Time { return time.Now().UTC() },
		newRunID: uuid.NewString,
	}
}

// Analyze ejecuta un análisis completo de la wallet y devuelve el reporte.
// Solo los fallos de historial son fatales: mercados, marks, storage y
// notificación degradan con un warning.
func (s *Service) Analyze(ctx context.Context, wallet string) (domain.Report, error) {
	start := time.Now()

	trades, activities, err := s.loadHistory(ctx, wallet)
	if err != nil {
		s.metrics.IncError("history")
		return domain.Report{}, err
	}
	trades, activities = validHistory(wallet, trades, activities)

	markets := s.loadMarkets(ctx, wallet, marketIDs(trades, activities))

	topo := ledger.BuildTopology(trades, activities, markets)
	events := ledger.Merge(trades, activities)

	opts := s.cfg.Ledger
	opts.Logger = slog.Default().With("wallet", wallet)
	replayStart := time.Now()
	result := ledger.Replay(events, topo, opts)
	s.metrics.ObserveReplay(wallet, time.Since(replayStart), result.Processed, result.Skips)

	generatedAt := s.now()
	ropts := s.cfg.Report
	if s.cfg.Window != nil {
		ropts.Window = s.cfg.Window(generatedAt)
	}

	rep := report.Build(report.Input{
		RunID:       s.newRunID(),
		Wallet:      wallet,
		GeneratedAt: generatedAt,
		Trades:      trades,
		Activities:  activities,
		Markets:     markets,
		Topology:    topo,
		Result:      result,
		Marks:       s.loadMarks(ctx, wallet, result.Positions),
	}, ropts)

	if s.storage != nil {
		if err := s.storage.SaveRun(ctx, rep.Summary()); err != nil {
			s.metrics.IncError("storage")
			slog.Warn("storage error", "wallet", wallet, "err", err)
		}
	}

	if s.notifier != nil {
		if err := s.notifier.Notify(ctx, rep); err != nil {
			slog.Warn("notifier error", "wallet", wallet, "err", err)
		}
	}

	s.metrics.SetRealized(wallet, rep)
	if rep.Period.Diverged() {
		slog.Warn("window methods disagree",
			"wallet", wallet,
			"event_sum", rep.Period.EventSum.String(),
			"cumulative_diff", rep.Period.CumulativeDiff.String(),
		)
	}
	slog.Info("analysis complete",
		"wallet", wallet,
		"run_id", rep.RunID,
		"events", len(events),
		"realized", rep.TotalRealized.StringFixed(2),
		"period", rep.Period.Window.Label,
		"period_realized", rep.Period.EventSum.StringFixed(2),
		"skipped", rep.Skips.Total(),
		"duration", time.Since(start).Round(time.Millisecond),
	)
	return rep, nil
}

// loadHistory obtiene el historial de la API (y lo cachea) o, en modo
// offline, de la cache.
func (s *Service) loadHistory(ctx context.Context, wallet string) ([]domain.Trade, []domain.Activity, error) {
	if s.cfg.Offline {
		if s.storage == nil {
			return nil, nil, fmt.Errorf("analyzer.loadHistory: %w", ErrNoStorage)
		}
		trades, activities, err := s.storage.LoadHistory(ctx, wallet)
		if err != nil {
			return nil, nil, fmt.Errorf("analyzer.loadHistory: cache: %w", err)
		}
		return trades, activities, nil
	}

	trades, err := s.history.FetchTrades(ctx, wallet)
	if err != nil {
		return nil, nil, fmt.Errorf("analyzer.loadHistory: fetch trades: %w", err)
	}
	activities, err := s.history.FetchActivities(ctx, wallet)
	if err != nil {
		return nil, nil, fmt.Errorf("analyzer.loadHistory: fetch activities: %w", err)
	}

	if s.storage != nil {
		if err := s.storage.SaveHistory(ctx, wallet, trades, activities); err != nil {
			s.metrics.IncError("storage")
			slog.Warn("storage error", "wallet", wallet, "err", err)
		}
	}
	return trades, activities, nil
}

// loadMarkets combina la cache con la API. Un mercado cacheado como resuelto
// es definitivo; el resto se vuelve a pedir.
func (s *Service) loadMarkets(ctx context.Context, wallet string, ids []string) []domain.Market {
	if len(ids) == 0 {
		return nil
	}

	byID := make(map[string]domain.Market, len(ids))
	if s.storage != nil {
		cached, err := s.storage.LoadMarkets(ctx, ids)
		if err != nil {
			slog.Warn("market cache unavailable", "wallet", wallet, "err", err)
		}
		for _, m := range cached {
			byID[m.ConditionID] = m
		}
	}

	if !s.cfg.Offline && s.markets != nil {
		var pending []string
		for _, id := range ids {
			if m, ok := byID[id]; !ok || !m.Resolved {
				pending = append(pending, id)
			}
		}
		if len(pending) > 0 {
			fetched, err := s.markets.FetchMarkets(ctx, pending)
			if err != nil {
				s.metrics.IncError("markets")
				slog.Warn("market fetch failed, replaying with cached topology",
					"wallet", wallet, "pending", len(pending), "err", err)
			}
			for _, m := range fetched {
				byID[m.ConditionID] = m
			}
			if s.storage != nil && len(fetched) > 0 {
				if err := s.storage.SaveMarkets(ctx, fetched); err != nil {
					slog.Warn("storage error", "wallet", wallet, "err", err)
				}
			}
		}
	}

	markets := make([]domain.Market, 0, len(byID))
	for _, m := range byID {
		markets = append(markets, m)
	}
	sort.Slice(markets, func(i, j int) bool { return markets[i].ConditionID < markets[j].ConditionID })

	slog.Debug("markets loaded", "wallet", wallet, "requested", len(ids), "known", len(markets))
	return markets
}

// loadMarks pide el midpoint de las posiciones abiertas. Offline o sin
// MarkProvider devuelve nil y el unrealized queda sin precio.
func (s *Service) loadMarks(ctx context.Context, wallet string, positions []domain.Position) map[string]decimal.Decimal {
	if s.cfg.Offline || s.marks == nil {
		return nil
	}
	assets := report.OpenAssets(positions)
	if len(assets) == 0 {
		return nil
	}
	marks, err := s.marks.FetchMarks(ctx, assets)
	if err != nil {
		s.metrics.IncError("marks")
		slog.Warn("mark fetch failed, unrealized PnL unpriced", "wallet", wallet, "err", err)
		return nil
	}
	return marks
}

// validHistory descarta los registros malformados con un warning.
func validHistory(wallet string, trades []domain.Trade, activities []domain.Activity) ([]domain.Trade, []domain.Activity) {
	validTrades := make([]domain.Trade, 0, len(trades))
	for _, t := range trades {
		if err := t.Validate(); err != nil {
			slog.Warn("dropping trade", "wallet", wallet, "err", err)
			continue
		}
		validTrades = append(validTrades, t)
	}

	validActs := make([]domain.Activity, 0, len(activities))
	for _, a := range activities {
		if err := a.Validate(); err != nil {
			slog.Warn("dropping activity", "wallet", wallet, "err", err)
			continue
		}
		validActs = append(validActs, a)
	}
	return validTrades, validActs
}

// marketIDs devuelve los condition ids distintos del historial, ordenados.
func marketIDs(trades []domain.Trade, activities []domain.Activity) []string {
	seen := make(map[string]struct{})
	for _, t := range trades {
		if t.MarketID != "" {
			seen[t.MarketID] = struct{}{}
		}
	}
	for _, a := range activities {
		if a.MarketID != "" {
			seen[a.MarketID] = struct{}{}
		}
	}
	ids := make([]string, 0, len(seen))
	for id := range seen {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
