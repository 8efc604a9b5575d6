package ports

import (
	"context"

	"github.com/alejandrodnm/polypnl/internal/domain"
)

// HistoryProvider obtiene el historial completo de una wallet.
type HistoryProvider interface {
	// FetchTrades devuelve todos los fills (BUY/SELL) de la wallet.
	FetchTrades(ctx context.Context, wallet string) ([]domain.Trade, error)

	// FetchActivities devuelve las acciones de liquidación: REDEEM, SPLIT,
	// MERGE, REWARD y CONVERSION. Asset y outcome pueden venir vacíos.
	FetchActivities(ctx context.Context, wallet string) ([]domain.Activity, error)
}
