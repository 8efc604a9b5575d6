package ports

import (
	"context"

	"github.com/alejandrodnm/polypnl/internal/domain"
)

// Storage cachea el historial de cada wallet y persiste los resultados de cada análisis.
type Storage interface {
	// SaveHistory hace upsert de trades y activities de la wallet.
	SaveHistory(ctx context.Context, wallet string, trades []domain.Trade, activities []domain.Activity) error

	// LoadHistory devuelve el historial cacheado de la wallet.
	LoadHistory(ctx context.Context, wallet string) ([]domain.Trade, []domain.Activity, error)

	// SaveMarkets hace upsert de la metadata de mercados.
	SaveMarkets(ctx context.Context, markets []domain.Market) error

	// LoadMarkets devuelve los mercados cacheados de los ids dados.
	LoadMarkets(ctx context.Context, conditionIDs []string) ([]domain.Market, error)

	// SaveRun registra el resumen de un análisis.
	SaveRun(ctx context.Context, run domain.RunSummary) error

	// GetRuns devuelve los últimos análisis de la wallet, más recientes primero.
	GetRuns(ctx context.Context, wallet string, limit int) ([]domain.RunSummary, error)

	// Close cierra la conexión a la base de datos limpiamente.
	Close() error
}
