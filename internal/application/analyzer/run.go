package analyzer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// ErrWalletsFailed is returned by Run when at least one wallet failed in the
// last cycle.
var ErrWalletsFailed = errors.New("wallet analysis failed")

// Run analiza las wallets y, si interval > 0, repite el ciclo hasta que el
// contexto se cancele. Con interval == 0 ejecuta un único ciclo.
func (s *Service) Run(ctx context.Context, wallets []string, interval time.Duration) error {
	slog.Info("analyzer starting",
		"wallets", len(wallets),
		"interval", interval,
		"offline", s.cfg.Offline,
		"workers", s.cfg.Workers,
	)

	err := s.runCycle(ctx, wallets)
	if interval <= 0 {
		return err
	}
	if err != nil {
		slog.Error("analysis cycle failed", "err", err)
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("analyzer stopped")
			return nil
		case <-ticker.C:
			if err := s.runCycle(ctx, wallets); err != nil {
				slog.Error("analysis cycle failed", "err", err)
			}
		}
	}
}

// runCycle analiza todas las wallets una vez.
func (s *Service) runCycle(ctx context.Context, wallets []string) error {
	start := time.Now()
	results := s.AnalyzeWallets(ctx, wallets)

	failed := 0
	for _, r := range results {
		if r.Err != nil {
			failed++
		}
	}

	slog.Info("analysis cycle complete",
		"wallets", len(wallets),
		"failed", failed,
		"duration", time.Since(start).Round(time.Millisecond),
	)
	if failed > 0 {
		return fmt.Errorf("analyzer.runCycle: %d/%d: %w", failed, len(wallets), ErrWalletsFailed)
	}
	return nil
}
