package storage

// sqlite.go: cache de historial y registro de análisis.
//
// Estrategia:
//   - `trades` / `activities`: historial crudo por wallet (UPSERT idempotente).
//     La Data API no da ids únicos por fill, así que la clave es
//     (wallet, tx hash, timestamp, asset, side/kind, size).
//   - `markets`: metadata de resolución y neg-risk. Un mercado resuelto no
//     vuelve a cambiar: la cache en memoria evita reescribirlo.
//   - `runs`: una fila por análisis con los totales.
//   - Importes en TEXT (decimal exacto), timestamps en INTEGER (unix nanos).
//   - Prune automático al arrancar: runs > 90d.

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	_ "modernc.org/sqlite"

	"github.com/alejandrodnm/polypnl/internal/domain"
)

const schema = `
CREATE TABLE IF NOT EXISTS trades (
    wallet    TEXT    NOT NULL,
    key       TEXT    NOT NULL,
    id        TEXT    NOT NULL,
    ts        INTEGER NOT NULL,
    side      TEXT    NOT NULL,
    asset     TEXT    NOT NULL DEFAULT '',
    market_id TEXT    NOT NULL DEFAULT '',
    outcome   TEXT    NOT NULL DEFAULT '',
    price     TEXT    NOT NULL,
    size      TEXT    NOT NULL,
    value     TEXT    NOT NULL,
    PRIMARY KEY (wallet, key)
);

CREATE TABLE IF NOT EXISTS activities (
    wallet    TEXT    NOT NULL,
    key       TEXT    NOT NULL,
    id        TEXT    NOT NULL,
    ts        INTEGER NOT NULL,
    kind      TEXT    NOT NULL,
    market_id TEXT    NOT NULL DEFAULT '',
    asset     TEXT    NOT NULL DEFAULT '',
    outcome   TEXT    NOT NULL DEFAULT '',
    size      TEXT    NOT NULL,
    value     TEXT    NOT NULL,
    PRIMARY KEY (wallet, key)
);

CREATE TABLE IF NOT EXISTS markets (
    condition_id    TEXT PRIMARY KEY,
    question        TEXT    NOT NULL DEFAULT '',
    resolved        INTEGER NOT NULL DEFAULT 0,
    winning_outcome TEXT    NOT NULL DEFAULT '',
    neg_risk        INTEGER NOT NULL DEFAULT 0,
    group_id        TEXT    NOT NULL DEFAULT '',
    neg_risk_parent INTEGER NOT NULL DEFAULT 0,
    tokens          TEXT    NOT NULL DEFAULT '[]',
    updated_at      INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS runs (
    run_id          TEXT PRIMARY KEY,
    wallet          TEXT    NOT NULL,
    generated_at    INTEGER NOT NULL,
    period          TEXT    NOT NULL,
    period_start    INTEGER NOT NULL DEFAULT 0,
    period_end      INTEGER NOT NULL DEFAULT 0,
    total_realized  TEXT    NOT NULL,
    period_realized TEXT    NOT NULL,
    diverged        INTEGER NOT NULL DEFAULT 0,
    cashflow_pnl    TEXT    NOT NULL,
    unrealized      TEXT    NOT NULL,
    trades          INTEGER NOT NULL DEFAULT 0,
    events          INTEGER NOT NULL DEFAULT 0,
    skipped         INTEGER NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_trades_ts     ON trades(wallet, ts);
CREATE INDEX IF NOT EXISTS idx_activities_ts ON activities(wallet, ts);
CREATE INDEX IF NOT EXISTS idx_runs_wallet   ON runs(wallet, generated_at DESC);
`

const (
	retentionRuns = 90 * 24 * time.Hour
	maxInParams   = 500 // placeholders por query IN (...)
)

// ErrCorruptRow is returned when a stored amount cannot be parsed back.
var ErrCorruptRow = errors.New("corrupt row")

// SQLiteStorage implementa ports.Storage usando SQLite (pure Go, sin CGo).
type SQLiteStorage struct {
	db       *sql.DB
	resolved map[string]bool // conditionID → ya guardado como resuelto
	mu       sync.Mutex
}

// NewSQLiteStorage abre (o crea) la base de datos en la ruta dada.
// Aplica el schema, limpia datos antiguos y precarga la cache.
func NewSQLiteStorage(path string) (*SQLiteStorage, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("storage.NewSQLiteStorage: open %q: %w", path, err)
	}
	db.SetMaxOpenConns(1) // SQLite es single-writer
	db.SetMaxIdleConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("storage.NewSQLiteStorage: apply schema: %w", err)
	}

	s := &SQLiteStorage{
		db:       db,
		resolved: make(map[string]bool),
	}
	s.pruneOld(context.Background())
	s.warmCache(context.Background())
	return s, nil
}

// SaveHistory hace upsert del historial de la wallet en una transacción.
func (s *SQLiteStorage) SaveHistory(ctx context.Context, wallet string, trades []domain.Trade, activities []domain.Activity) error {
	if len(trades) == 0 && len(activities) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("storage.SaveHistory: begin tx: %w", err)
	}
	defer tx.Rollback()

	tradeStmt, err := tx.PrepareContext(ctx, `
		INSERT INTO trades
			(wallet, key, id, ts, side, asset, market_id, outcome, price, size, value)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(wallet, key) DO UPDATE SET
			market_id = excluded.market_id,
			outcome   = excluded.outcome,
			price     = excluded.price,
			value     = excluded.value
	`)
	if err != nil {
		return fmt.Errorf("storage.SaveHistory: prepare trades: %w", err)
	}
	defer tradeStmt.Close()

	for _, t := range trades {
		if _, err := tradeStmt.ExecContext(ctx,
			wallet, tradeKey(t), t.ID, t.Timestamp.UnixNano(), string(t.Side),
			t.Asset, t.MarketID, t.Outcome,
			t.Price.String(), t.Size.String(), t.Value.String(),
		); err != nil {
			return fmt.Errorf("storage.SaveHistory: upsert trade %s: %w", t.ID, err)
		}
	}

	actStmt, err := tx.PrepareContext(ctx, `
		INSERT INTO activities
			(wallet, key, id, ts, kind, market_id, asset, outcome, size, value)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(wallet, key) DO UPDATE SET
			outcome = excluded.outcome,
			value   = excluded.value
	`)
	if err != nil {
		return fmt.Errorf("storage.SaveHistory: prepare activities: %w", err)
	}
	defer actStmt.Close()

	for _, a := range activities {
		if _, err := actStmt.ExecContext(ctx,
			wallet, activityKey(a), a.ID, a.Timestamp.UnixNano(), string(a.Kind),
			a.MarketID, a.Asset, a.Outcome,
			a.Size.String(), a.Value.String(),
		); err != nil {
			return fmt.Errorf("storage.SaveHistory: upsert activity %s: %w", a.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("storage.SaveHistory: commit: %w", err)
	}
	return nil
}

// LoadHistory devuelve el historial cacheado de la wallet en orden cronológico.
func (s *SQLiteStorage) LoadHistory(ctx context.Context, wallet string) ([]domain.Trade, []domain.Activity, error) {
	trades, err := s.loadTrades(ctx, wallet)
	if err != nil {
		return nil, nil, err
	}
	activities, err := s.loadActivities(ctx, wallet)
	if err != nil {
		return nil, nil, err
	}
	return trades, activities, nil
}

func (s *SQLiteStorage) loadTrades(ctx context.Context, wallet string) ([]domain.Trade, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, ts, side, asset, market_id, outcome, price, size, value
		FROM trades WHERE wallet = ?
		ORDER BY ts, rowid
	`, wallet)
	if err != nil {
		return nil, fmt.Errorf("storage.LoadHistory: query trades: %w", err)
	}
	defer rows.Close()

	var trades []domain.Trade
	for rows.Next() {
		var t domain.Trade
		var ts int64
		var side, price, size, value string
		if err := rows.Scan(&t.ID, &ts, &side, &t.Asset, &t.MarketID, &t.Outcome, &price, &size, &value); err != nil {
			return nil, fmt.Errorf("storage.LoadHistory: scan trade: %w", err)
		}
		t.Timestamp = time.Unix(0, ts).UTC()
		t.Side = domain.Side(side)
		if t.Price, t.Size, t.Value, err = parseAmounts(price, size, value); err != nil {
			return nil, fmt.Errorf("storage.LoadHistory: trade %s: %w", t.ID, err)
		}
		trades = append(trades, t)
	}
	return trades, rows.Err()
}

func (s *SQLiteStorage) loadActivities(ctx context.Context, wallet string) ([]domain.Activity, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, ts, kind, market_id, asset, outcome, size, value
		FROM activities WHERE wallet = ?
		ORDER BY ts, rowid
	`, wallet)
	if err != nil {
		return nil, fmt.Errorf("storage.LoadHistory: query activities: %w", err)
	}
	defer rows.Close()

	var activities []domain.Activity
	for rows.Next() {
		var a domain.Activity
		var ts int64
		var kind, size, value string
		if err := rows.Scan(&a.ID, &ts, &kind, &a.MarketID, &a.Asset, &a.Outcome, &size, &value); err != nil {
			return nil, fmt.Errorf("storage.LoadHistory: scan activity: %w", err)
		}
		a.Timestamp = time.Unix(0, ts).UTC()
		a.Kind = domain.ActivityKind(kind)
		if a.Size, a.Value, _, err = parseAmounts(size, value, "0"); err != nil {
			return nil, fmt.Errorf("storage.LoadHistory: activity %s: %w", a.ID, err)
		}
		activities = append(activities, a)
	}
	return activities, rows.Err()
}

// SaveMarkets hace upsert de la metadata de mercados. Los mercados que ya
// están guardados como resueltos se saltan.
func (s *SQLiteStorage) SaveMarkets(ctx context.Context, markets []domain.Market) error {
	toWrite := s.filterResolved(markets)
	if len(toWrite) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("storage.SaveMarkets: begin tx: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO markets
			(condition_id, question, resolved, winning_outcome, neg_risk,
			 group_id, neg_risk_parent, tokens, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(condition_id) DO UPDATE SET
			question        = excluded.question,
			resolved        = excluded.resolved,
			winning_outcome = excluded.winning_outcome,
			neg_risk        = excluded.neg_risk,
			group_id        = excluded.group_id,
			neg_risk_parent = excluded.neg_risk_parent,
			tokens          = excluded.tokens,
			updated_at      = excluded.updated_at
	`)
	if err != nil {
		return fmt.Errorf("storage.SaveMarkets: prepare: %w", err)
	}
	defer stmt.Close()

	now := time.Now().UTC().UnixNano()
	for _, m := range toWrite {
		tokens, err := json.Marshal(m.Tokens)
		if err != nil {
			return fmt.Errorf("storage.SaveMarkets: marshal tokens %s: %w", m.ConditionID, err)
		}
		if _, err := stmt.ExecContext(ctx,
			m.ConditionID, m.Question, boolInt(m.Resolved), m.WinningOutcome,
			boolInt(m.NegRisk), m.GroupID, boolInt(m.NegRiskParent), string(tokens), now,
		); err != nil {
			return fmt.Errorf("storage.SaveMarkets: upsert %s: %w", m.ConditionID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("storage.SaveMarkets: commit: %w", err)
	}

	s.mu.Lock()
	for _, m := range toWrite {
		if m.Resolved {
			s.resolved[m.ConditionID] = true
		}
	}
	s.mu.Unlock()
	return nil
}

// LoadMarkets devuelve los mercados cacheados de los ids dados, ordenados por id.
func (s *SQLiteStorage) LoadMarkets(ctx context.Context, conditionIDs []string) ([]domain.Market, error) {
	var markets []domain.Market
	for i := 0; i < len(conditionIDs); i += maxInParams {
		batch := conditionIDs[i:min(i+maxInParams, len(conditionIDs))]
		got, err := s.loadMarketsBatch(ctx, batch)
		if err != nil {
			return nil, err
		}
		markets = append(markets, got...)
	}
	return markets, nil
}

func (s *SQLiteStorage) loadMarketsBatch(ctx context.Context, ids []string) ([]domain.Market, error) {
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT condition_id, question, resolved, winning_outcome, neg_risk,
		       group_id, neg_risk_parent, tokens
		FROM markets
		WHERE condition_id IN (`+placeholders+`)
		ORDER BY condition_id
	`, args...)
	if err != nil {
		return nil, fmt.Errorf("storage.LoadMarkets: query: %w", err)
	}
	defer rows.Close()

	var markets []domain.Market
	for rows.Next() {
		var m domain.Market
		var resolved, negRisk, parent int
		var tokens string
		if err := rows.Scan(&m.ConditionID, &m.Question, &resolved, &m.WinningOutcome,
			&negRisk, &m.GroupID, &parent, &tokens); err != nil {
			return nil, fmt.Errorf("storage.LoadMarkets: scan row: %w", err)
		}
		m.Resolved = resolved == 1
		m.NegRisk = negRisk == 1
		m.NegRiskParent = parent == 1
		if err := json.Unmarshal([]byte(tokens), &m.Tokens); err != nil {
			return nil, fmt.Errorf("storage.LoadMarkets: %s tokens: %w", m.ConditionID, err)
		}
		markets = append(markets, m)
	}
	return markets, rows.Err()
}

// IsResolved reports whether a market is stored as resolved.
func (s *SQLiteStorage) IsResolved(conditionID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.resolved[conditionID]
}

// SaveRun registra el resumen de un análisis.
func (s *SQLiteStorage) SaveRun(ctx context.Context, run domain.RunSummary) error {
	if _, err := s.db.ExecContext(ctx, `
		INSERT INTO runs
			(run_id, wallet, generated_at, period, period_start, period_end,
			 total_realized, period_realized, diverged, cashflow_pnl, unrealized,
			 trades, events, skipped)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		run.RunID, run.Wallet, run.GeneratedAt.UnixNano(), run.Period,
		unixNanoOrZero(run.PeriodStart), unixNanoOrZero(run.PeriodEnd),
		run.TotalRealized.String(), run.PeriodRealized.String(), boolInt(run.Diverged),
		run.CashFlowPnL.String(), run.Unrealized.String(),
		run.Trades, run.Events, run.Skipped,
	); err != nil {
		return fmt.Errorf("storage.SaveRun: insert %s: %w", run.RunID, err)
	}
	return nil
}

// GetRuns devuelve los últimos análisis de la wallet, más recientes primero.
func (s *SQLiteStorage) GetRuns(ctx context.Context, wallet string, limit int) ([]domain.RunSummary, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT run_id, wallet, generated_at, period, period_start, period_end,
		       total_realized, period_realized, diverged, cashflow_pnl, unrealized,
		       trades, events, skipped
		FROM runs WHERE wallet = ?
		ORDER BY generated_at DESC
		LIMIT ?
	`, wallet, limit)
	if err != nil {
		return nil, fmt.Errorf("storage.GetRuns: query: %w", err)
	}
	defer rows.Close()

	var runs []domain.RunSummary
	for rows.Next() {
		var r domain.RunSummary
		var generated, start, end int64
		var diverged int
		var total, period, cashflow, unrealized string
		if err := rows.Scan(&r.RunID, &r.Wallet, &generated, &r.Period, &start, &end,
			&total, &period, &diverged, &cashflow, &unrealized,
			&r.Trades, &r.Events, &r.Skipped); err != nil {
			return nil, fmt.Errorf("storage.GetRuns: scan row: %w", err)
		}
		r.GeneratedAt = time.Unix(0, generated).UTC()
		r.PeriodStart = timeOrZero(start)
		r.PeriodEnd = timeOrZero(end)
		r.Diverged = diverged == 1
		if r.TotalRealized, r.PeriodRealized, r.CashFlowPnL, err = parseAmounts(total, period, cashflow); err != nil {
			return nil, fmt.Errorf("storage.GetRuns: %s: %w", r.RunID, err)
		}
		if r.Unrealized, err = decimal.NewFromString(unrealized); err != nil {
			return nil, fmt.Errorf("storage.GetRuns: %s: %w: %v", r.RunID, ErrCorruptRow, err)
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// Close cierra la conexión a la base de datos.
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}

// --- helpers internos ---

// filterResolved descarta los mercados ya guardados como resueltos.
func (s *SQLiteStorage) filterResolved(markets []domain.Market) []domain.Market {
	s.mu.Lock()
	defer s.mu.Unlock()

	var toWrite []domain.Market
	for _, m := range markets {
		if m.ConditionID == "" || s.resolved[m.ConditionID] {
			continue
		}
		toWrite = append(toWrite, m)
	}
	return toWrite
}

// pruneOld elimina runs antiguos para mantener la DB ligera.
func (s *SQLiteStorage) pruneOld(ctx context.Context) {
	cutoff := time.Now().UTC().Add(-retentionRuns).UnixNano()
	s.db.ExecContext(ctx, `DELETE FROM runs WHERE generated_at < ?`, cutoff)
}

// warmCache precarga los mercados resueltos al arrancar.
func (s *SQLiteStorage) warmCache(ctx context.Context) {
	rows, err := s.db.QueryContext(ctx, `SELECT condition_id FROM markets WHERE resolved = 1`)
	if err != nil {
		return
	}
	defer rows.Close()

	s.mu.Lock()
	defer s.mu.Unlock()
	for rows.Next() {
		var cid string
		if rows.Scan(&cid) == nil {
			s.resolved[cid] = true
		}
	}
}

func tradeKey(t domain.Trade) string {
	return fmt.Sprintf("%s|%d|%s|%s|%s", t.ID, t.Timestamp.UnixNano(), t.Asset, t.Side, t.Size.String())
}

func activityKey(a domain.Activity) string {
	return fmt.Sprintf("%s|%d|%s|%s|%s|%s", a.ID, a.Timestamp.UnixNano(), a.MarketID, a.Asset, a.Kind, a.Size.String())
}

func parseAmounts(a, b, c string) (decimal.Decimal, decimal.Decimal, decimal.Decimal, error) {
	var out [3]decimal.Decimal
	for i, s := range []string{a, b, c} {
		d, err := decimal.NewFromString(s)
		if err != nil {
			return decimal.Zero, decimal.Zero, decimal.Zero, fmt.Errorf("%w: amount %q", ErrCorruptRow, s)
		}
		out[i] = d
	}
	return out[0], out[1], out[2], nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func unixNanoOrZero(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixNano()
}

func timeOrZero(ns int64) time.Time {
	if ns == 0 {
		return time.Time{}
	}
	return time.Unix(0, ns).UTC()
}
