package polymarket

// activity.go: historial de una wallet vía Data API GET /activity.
//
// La API devuelve como máximo activityPageSize items por request y limita el
// offset, así que paginamos con un cursor de timestamp: cada página pide
// end=<timestamp más antiguo visto>. El cursor es inclusivo, por eso cada item
// se deduplica por (tx hash, timestamp, condition id, asset, side, size).
// Si una página entera cae en el mismo segundo, avanzamos con offset.

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/alejandrodnm/polypnl/internal/domain"
)

const (
	activityPath      = "/activity"
	activityPageSize  = 500
	activityMaxPages  = 400
	activityTypeTrade = "TRADE"
)

// FetchTrades devuelve todos los fills de la wallet (type=TRADE).
func (c *Client) FetchTrades(ctx context.Context, wallet string) ([]domain.Trade, error) {
	raw, err := c.fetchActivityType(ctx, wallet, activityTypeTrade)
	if err != nil {
		return nil, fmt.Errorf("data-api.FetchTrades: %w", err)
	}
	trades := mapTrades(raw)
	slog.Info("trades fetched", "wallet", shortID(wallet), "total", len(trades))
	return trades, nil
}

// FetchActivities devuelve REDEEM, SPLIT, MERGE, REWARD y CONVERSION de la wallet.
// Se hace una consulta paginada por tipo.
func (c *Client) FetchActivities(ctx context.Context, wallet string) ([]domain.Activity, error) {
	var all []domain.Activity
	for _, kind := range domain.ActivityKinds {
		raw, err := c.fetchActivityType(ctx, wallet, string(kind))
		if err != nil {
			return nil, fmt.Errorf("data-api.FetchActivities %s: %w", kind, err)
		}
		all = append(all, mapActivities(raw)...)
	}
	slog.Info("activities fetched", "wallet", shortID(wallet), "total", len(all))
	return all, nil
}

// fetchActivityType pagina GET /activity para un único type.
func (c *Client) fetchActivityType(ctx context.Context, wallet, activityType string) ([]rawActivity, error) {
	var all []rawActivity
	seen := make(map[string]struct{})
	var end int64
	offset := 0

	for page := 0; page < activityMaxPages; page++ {
		url := fmt.Sprintf("%s%s?user=%s&type=%s&limit=%d&offset=%d&sortBy=TIMESTAMP&sortDirection=DESC",
			c.dataBase, activityPath, wallet, activityType, activityPageSize, offset)
		if end > 0 {
			url += fmt.Sprintf("&end=%d", end)
		}

		var resp []rawActivity
		if err := c.get(ctx, c.dataLimiter, url, &resp); err != nil {
			return nil, err
		}

		var oldest int64
		added := 0
		for _, ra := range resp {
			ts := parseTimestamp(ra.Timestamp).Unix()
			if oldest == 0 || ts < oldest {
				oldest = ts
			}
			key := activityKey(ra)
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}
			all = append(all, ra)
			added++
		}

		slog.Debug("fetched activity page",
			"type", activityType,
			"page", page,
			"count", len(resp),
			"new", added,
			"total", len(all),
		)

		if len(resp) < activityPageSize {
			break
		}
		if oldest == end {
			offset += activityPageSize
		} else {
			end = oldest
			offset = 0
		}
	}

	return all, nil
}

func activityKey(ra rawActivity) string {
	return ra.TransactionHash + "|" + ra.Timestamp.String() + "|" + ra.ConditionID +
		"|" + ra.Asset + "|" + ra.Side + "|" + ra.Size.String()
}

func shortID(id string) string {
	return id[:min(10, len(id))] + "..."
}
