package ports

import (
	"context"

	"github.com/alejandrodnm/polypnl/internal/domain"
)

// MarketProvider obtiene la metadata de resolución y neg-risk de los mercados.
type MarketProvider interface {
	// FetchMarkets devuelve un Market por condition id conocido. Los ids que
	// el CLOB no reconoce se omiten sin error.
	FetchMarkets(ctx context.Context, conditionIDs []string) ([]domain.Market, error)
}
