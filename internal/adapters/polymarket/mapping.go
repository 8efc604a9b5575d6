package polymarket

import (
	"encoding/json"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/alejandrodnm/polypnl/internal/domain"
)

// mapTrades convierte los items TRADE de /activity a domain.Trade.
func mapTrades(raw []rawActivity) []domain.Trade {
	trades := make([]domain.Trade, 0, len(raw))
	for _, r := range raw {
		trades = append(trades, mapTrade(r))
	}
	return trades
}

// mapTrade convierte un rawActivity de tipo TRADE. El notional es usdcSize;
// si falta se reconstruye como price × size.
func mapTrade(r rawActivity) domain.Trade {
	price := parseDecimal(r.Price)
	size := parseDecimal(r.Size)
	value := parseDecimal(r.UsdcSize)
	if value.IsZero() {
		value = price.Mul(size)
	}
	return domain.Trade{
		ID:        r.TransactionHash,
		Timestamp: parseTimestamp(r.Timestamp),
		Side:      domain.Side(strings.ToUpper(r.Side)),
		Asset:     r.Asset,
		MarketID:  r.ConditionID,
		Outcome:   r.Outcome,
		Price:     price,
		Size:      size,
		Value:     value,
	}
}

// mapActivities convierte items no-TRADE de /activity a domain.Activity.
func mapActivities(raw []rawActivity) []domain.Activity {
	activities := make([]domain.Activity, 0, len(raw))
	for _, r := range raw {
		activities = append(activities, domain.Activity{
			ID:        r.TransactionHash,
			Timestamp: parseTimestamp(r.Timestamp),
			Kind:      domain.ActivityKind(strings.ToUpper(r.Type)),
			MarketID:  r.ConditionID,
			Asset:     r.Asset,
			Outcome:   r.Outcome,
			Size:      parseDecimal(r.Size),
			Value:     parseDecimal(r.UsdcSize),
		})
	}
	return activities
}

// mapMarket convierte la respuesta de GET /markets/{id} a domain.Market.
func mapMarket(r clobMarket) domain.Market {
	m := domain.Market{
		ConditionID: r.ConditionID,
		Question:    r.Question,
		NegRisk:     r.NegRisk,
		GroupID:     r.NegRiskMarketID,
		Tokens:      make([]domain.Token, 0, len(r.Tokens)),
	}
	if !m.NegRisk {
		m.GroupID = ""
	}
	for _, t := range r.Tokens {
		m.Tokens = append(m.Tokens, domain.Token{
			TokenID: t.TokenID,
			Outcome: t.Outcome,
			Winner:  t.Winner,
		})
		if t.Winner {
			m.WinningOutcome = t.Outcome
		}
	}
	m.Resolved = r.Closed && m.WinningOutcome != ""
	return m
}

// markGroupParents ordena por condition id y marca como parent al primer
// miembro de cada grupo neg-risk.
func markGroupParents(markets []domain.Market) []domain.Market {
	sort.Slice(markets, func(i, j int) bool { return markets[i].ConditionID < markets[j].ConditionID })
	seen := make(map[string]bool)
	for i := range markets {
		markets[i].NegRiskParent = false
		g := markets[i].GroupID
		if g == "" || seen[g] {
			continue
		}
		seen[g] = true
		markets[i].NegRiskParent = true
	}
	return markets
}

// enrichFromGamma aplica la metadata de Gamma sobre un mercado existente.
func enrichFromGamma(m *domain.Market, gm gammaMarket) {
	if m.Question == "" {
		m.Question = gm.Question
	}
	if gm.NegRisk {
		m.NegRisk = true
	}
	if m.NegRisk && m.GroupID == "" {
		m.GroupID = gm.NegRiskMarketID
	}
}

// mapOrderBooks convierte la respuesta batch de /books a un map tokenID→OrderBook.
func mapOrderBooks(raw []orderBookResponse) map[string]domain.OrderBook {
	result := make(map[string]domain.OrderBook, len(raw))
	for _, r := range raw {
		ob := domain.OrderBook{
			TokenID: r.AssetID,
			Bids:    mapBookEntries(r.Bids, false),
			Asks:    mapBookEntries(r.Asks, true),
		}
		result[r.AssetID] = ob
	}
	return result
}

// mapBookEntries convierte entries raw a domain.BookEntry y los ordena.
// ascending=true → menor a mayor (asks), ascending=false → mayor a menor (bids).
func mapBookEntries(raw []bookEntryRaw, ascending bool) []domain.BookEntry {
	entries := make([]domain.BookEntry, 0, len(raw))
	for _, r := range raw {
		price, err := decimal.NewFromString(r.Price)
		if err != nil {
			continue
		}
		size, err := decimal.NewFromString(r.Size)
		if err != nil {
			continue
		}
		if !price.IsPositive() || !size.IsPositive() {
			continue
		}
		entries = append(entries, domain.BookEntry{Price: price, Size: size})
	}

	sort.Slice(entries, func(i, j int) bool {
		if ascending {
			return entries[i].Price.LessThan(entries[j].Price)
		}
		return entries[i].Price.GreaterThan(entries[j].Price)
	})

	return entries
}

// parseDecimal convierte un json.Number a decimal. Vacío o inválido → 0.
func parseDecimal(n json.Number) decimal.Decimal {
	if n == "" {
		return decimal.Zero
	}
	d, err := decimal.NewFromString(n.String())
	if err != nil {
		return decimal.Zero
	}
	return d
}

// parseTimestamp acepta unix en segundos o milisegundos, con o sin decimales,
// o un string ISO. Devuelve el tiempo cero si no puede interpretarlo.
func parseTimestamp(n json.Number) time.Time {
	s := n.String()
	if sec, err := strconv.ParseInt(s, 10, 64); err == nil {
		if sec > 1e12 {
			return time.Unix(sec/1000, (sec%1000)*int64(time.Millisecond)).UTC()
		}
		return time.Unix(sec, 0).UTC()
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		sec := int64(f)
		nsec := int64((f - float64(sec)) * 1e9)
		return time.Unix(sec, nsec).UTC()
	}
	for _, layout := range []string{
		time.RFC3339Nano, time.RFC3339,
		"2006-01-02T15:04:05.000Z", "2006-01-02T15:04:05Z",
	} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC()
		}
	}
	return time.Time{}
}
