package analyzer

// concurrent.go: worker pool para analizar varias wallets en paralelo.
//
// Cada replay es independiente (posiciones propias, topología inmutable), así
// que las wallets se reparten entre workers sin estado compartido. El rate
// limiter del cliente HTTP sigue siendo global.

import (
	"context"
	"log/slog"
	"runtime"
	"sync"

	"github.com/alejandrodnm/polypnl/internal/domain"
)

// WalletResult es el resultado del análisis de una wallet.
type WalletResult struct {
	Wallet string
	Report domain.Report
	Err    error
}

// AnalyzeWallets analiza todas las wallets usando un worker pool y devuelve
// los resultados en el mismo orden que la entrada. Las wallets pendientes al
// cancelar el contexto devuelven ctx.Err().
//
// Si cfg.Workers <= 0 usa runtime.NumCPU().
func (s *Service) AnalyzeWallets(ctx context.Context, wallets []string) []WalletResult {
	workers := s.cfg.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	workers = min(workers, max(len(wallets), 1))

	type work struct {
		idx    int
		wallet string
	}
	type indexed struct {
		idx int
		res WalletResult
	}

	workCh := make(chan work, len(wallets))
	resultCh := make(chan indexed, len(wallets))

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for w := range workCh {
				res := WalletResult{Wallet: w.wallet}
				if err := ctx.Err(); err != nil {
					res.Err = err
				} else {
					res.Report, res.Err = s.Analyze(ctx, w.wallet)
				}
				if res.Err != nil {
					slog.Error("wallet analysis failed", "wallet", w.wallet, "err", res.Err)
				}
				resultCh <- indexed{idx: w.idx, res: res}
			}
		}()
	}

	for i, wallet := range wallets {
		workCh <- work{idx: i, wallet: wallet}
	}
	close(workCh)

	// Cerrar resultCh cuando todos los workers terminen.
	go func() {
		wg.Wait()
		close(resultCh)
	}()

	results := make([]WalletResult, len(wallets))
	failed := 0
	for r := range resultCh {
		results[r.idx] = r.res
		if r.res.Err != nil {
			failed++
		}
	}

	slog.Debug("concurrent analysis complete",
		"wallets", len(wallets),
		"failed", failed,
		"workers", workers,
	)
	return results
}
