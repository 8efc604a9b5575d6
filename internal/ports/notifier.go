package ports

import (
	"context"

	"github.com/alejandrodnm/polypnl/internal/domain"
)

// Notifier presenta el reporte de PnL al usuario.
type Notifier interface {
	// Notify muestra el reporte de una wallet.
	// En la implementación de consola, imprime tablas formateadas.
	Notify(ctx context.Context, report domain.Report) error
}
