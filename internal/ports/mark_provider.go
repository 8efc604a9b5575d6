package ports

import (
	"context"

	"github.com/shopspring/decimal"
)

// MarkProvider obtiene precios actuales (midpoint) de tokens.
type MarkProvider interface {
	// FetchMarks devuelve asset → midpoint. Los tokens sin orderbook no aparecen
	// en el resultado.
	FetchMarks(ctx context.Context, assets []string) (map[string]decimal.Decimal, error)
}
