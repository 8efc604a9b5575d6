package polymarket

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/alejandrodnm/polypnl/internal/domain"
)

const (
	gammaMarketsPath  = "/markets"
	gammaConditionMax = 20
)

// EnrichWithGamma completa question y grupo neg-risk desde Gamma para los
// mercados que el CLOB devolvió sin ellos. Los mercados sin datos en Gamma se
// devuelven sin enriquecer.
func (c *Client) EnrichWithGamma(ctx context.Context, markets []domain.Market) ([]domain.Market, error) {
	var conditionIDs []string
	for _, m := range markets {
		if m.Question == "" || (m.NegRisk && m.GroupID == "") {
			conditionIDs = append(conditionIDs, m.ConditionID)
		}
	}
	if len(conditionIDs) == 0 {
		return markets, nil
	}

	metadata, err := c.fetchGammaMetadata(ctx, conditionIDs)
	if err != nil {
		return nil, fmt.Errorf("gamma.EnrichWithGamma: %w", err)
	}

	enriched := 0
	for i, m := range markets {
		if gm, ok := metadata[m.ConditionID]; ok {
			enrichFromGamma(&markets[i], gm)
			enriched++
		}
	}

	slog.Debug("gamma enrichment complete",
		"markets", len(conditionIDs),
		"enriched", enriched,
	)
	return markGroupParents(markets), nil
}

// fetchGammaMetadata obtiene la metadata de Gamma para los condition_ids dados.
func (c *Client) fetchGammaMetadata(ctx context.Context, conditionIDs []string) (map[string]gammaMarket, error) {
	result := make(map[string]gammaMarket, len(conditionIDs))

	for i := 0; i < len(conditionIDs); i += gammaConditionMax {
		end := min(i+gammaConditionMax, len(conditionIDs))
		batch := conditionIDs[i:end]

		url := fmt.Sprintf("%s%s?condition_ids=%s&limit=%d",
			c.gammaBase,
			gammaMarketsPath,
			strings.Join(batch, ","),
			gammaConditionMax,
		)

		var resp gammaMarketsResponse
		if err := c.get(ctx, c.gammaLimiter, url, &resp); err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			slog.Debug("gamma batch failed, skipping",
				"batch", fmt.Sprintf("%d-%d", i, end),
				"err", err,
			)
			continue
		}

		for _, gm := range resp {
			result[gm.ConditionID] = gm
		}
	}

	return result, nil
}
