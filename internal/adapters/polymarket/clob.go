package polymarket

// clob.go: Polymarket CLOB API adapter.
//
// FetchMarkets y FetchOrderBooks usan goroutines concurrentes para disparar
// múltiples requests en paralelo. El rate limiter (token bucket) en doWithRetry
// controla el ritmo automáticamente: las goroutines se "autolimitan" sin
// necesidad de semáforo explícito.

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/alejandrodnm/polypnl/internal/domain"
)

const (
	marketsPath = "/markets/"
	booksPath   = "/books"
	batchSize   = 20 // máx token_ids por request a /books
)

// FetchMarkets obtiene resolución y metadata neg-risk de cada condition id.
// Los ids desconocidos (404) se omiten. Dentro de cada grupo neg-risk, el
// mercado con menor condition id queda marcado como parent.
func (c *Client) FetchMarkets(ctx context.Context, conditionIDs []string) ([]domain.Market, error) {
	ids := uniqueNonEmpty(conditionIDs)
	if len(ids) == 0 {
		return nil, nil
	}

	type marketResult struct {
		market domain.Market
		found  bool
		err    error
		id     string
	}

	resultCh := make(chan marketResult, len(ids))
	var wg sync.WaitGroup

	for _, id := range ids {
		wg.Add(1)
		go func() {
			defer wg.Done()
			var resp clobMarket
			err := c.get(ctx, c.clobLimiter, c.clobBase+marketsPath+id, &resp)
			if errors.Is(err, ErrNotFound) {
				resultCh <- marketResult{id: id}
				return
			}
			resultCh <- marketResult{market: mapMarket(resp), found: err == nil, err: err, id: id}
		}()
	}

	go func() {
		wg.Wait()
		close(resultCh)
	}()

	markets := make([]domain.Market, 0, len(ids))
	var firstErr error
	missing := 0

	for r := range resultCh {
		if r.err != nil {
			if firstErr == nil {
				firstErr = fmt.Errorf("clob.FetchMarkets %s: %w", r.id, r.err)
			}
			continue
		}
		if !r.found {
			missing++
			continue
		}
		markets = append(markets, r.market)
	}

	if firstErr != nil {
		return nil, firstErr
	}

	markets = markGroupParents(markets)

	// Completar question y grupo desde Gamma cuando el CLOB no los trae
	enriched, err := c.EnrichWithGamma(ctx, markets)
	if err != nil {
		// El enriquecimiento es opcional: logueamos pero no fallamos
		slog.Warn("gamma enrichment failed, continuing without it", "err", err)
	} else {
		markets = enriched
	}

	slog.Info("markets fetched", "requested", len(ids), "found", len(markets), "missing", missing)
	return markets, nil
}

// FetchOrderBooks obtiene los orderbooks para los token_ids dados usando el endpoint batch.
// Lanza un goroutine por batch (máx batchSize tokens cada uno) y los ejecuta
// concurrentemente.
func (c *Client) FetchOrderBooks(ctx context.Context, tokenIDs []string) (map[string]domain.OrderBook, error) {
	if len(tokenIDs) == 0 {
		return map[string]domain.OrderBook{}, nil
	}

	batches := splitBatches(tokenIDs, batchSize)

	type batchResult struct {
		books map[string]domain.OrderBook
		err   error
		idx   int
	}

	resultCh := make(chan batchResult, len(batches))
	var wg sync.WaitGroup

	for i, batch := range batches {
		wg.Add(1)
		go func() {
			defer wg.Done()
			books, err := c.fetchBooksBatch(ctx, batch)
			resultCh <- batchResult{books: books, err: err, idx: i}
		}()
	}

	// Cerrar el canal cuando todos los goroutines terminen
	go func() {
		wg.Wait()
		close(resultCh)
	}()

	result := make(map[string]domain.OrderBook, len(tokenIDs))
	var firstErr error

	for r := range resultCh {
		if r.err != nil {
			if firstErr == nil {
				firstErr = fmt.Errorf("clob.FetchOrderBooks batch %d: %w", r.idx, r.err)
			}
			continue
		}
		for k, v := range r.books {
			result[k] = v
		}
	}

	if firstErr != nil {
		return nil, firstErr
	}

	slog.Debug("order books fetched", "tokens", len(tokenIDs), "books", len(result))
	return result, nil
}

// FetchMarks devuelve el midpoint de cada token con orderbook no vacío.
func (c *Client) FetchMarks(ctx context.Context, assets []string) (map[string]decimal.Decimal, error) {
	books, err := c.FetchOrderBooks(ctx, uniqueNonEmpty(assets))
	if err != nil {
		return nil, fmt.Errorf("clob.FetchMarks: %w", err)
	}
	marks := make(map[string]decimal.Decimal, len(books))
	for id, ob := range books {
		mid := ob.Midpoint()
		if mid.IsPositive() {
			marks[id] = mid
		}
	}
	return marks, nil
}

// splitBatches divide tokenIDs en slices de tamaño máximo size.
func splitBatches(tokenIDs []string, size int) [][]string {
	if size <= 0 {
		size = batchSize
	}
	batches := make([][]string, 0, (len(tokenIDs)+size-1)/size)
	for i := 0; i < len(tokenIDs); i += size {
		end := min(i+size, len(tokenIDs))
		batches = append(batches, tokenIDs[i:end])
	}
	return batches
}

// fetchBooksBatch hace un POST /books para un batch de token_ids.
func (c *Client) fetchBooksBatch(ctx context.Context, tokenIDs []string) (map[string]domain.OrderBook, error) {
	body := make([]orderBookRequest, len(tokenIDs))
	for i, id := range tokenIDs {
		body[i] = orderBookRequest{TokenID: id}
	}

	var resp []orderBookResponse
	url := c.clobBase + booksPath
	if err := c.post(ctx, c.booksLimiter, url, body, &resp); err != nil {
		return nil, fmt.Errorf("POST /books: %w", err)
	}

	return mapOrderBooks(resp), nil
}

func uniqueNonEmpty(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
