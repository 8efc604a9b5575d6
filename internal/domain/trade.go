package domain

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// ErrInvalidRecord is returned by Validate for records that cannot enter a replay.
var ErrInvalidRecord = errors.New("invalid record")

// Side is the direction of a trade.
type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// Trade is a fill taken from the wallet's history. Immutable once loaded.
type Trade struct {
	ID        string // transaction hash
	Timestamp time.Time
	Side      Side
	Asset     string // outcome token id
	MarketID  string // condition id
	Outcome   string // "Yes" | "No" | candidate name
	Price     decimal.Decimal
	Size      decimal.Decimal
	Value     decimal.Decimal // notional in USDC (price × size)
}

// Validate rejects trades that would poison a replay.
// Empty asset or outcome are allowed; the ledger decides what to do with them.
func (t Trade) Validate() error {
	if t.Timestamp.IsZero() {
		return fmt.Errorf("%w: trade %s: missing timestamp", ErrInvalidRecord, t.ID)
	}
	if t.Side != SideBuy && t.Side != SideSell {
		return fmt.Errorf("%w: trade %s: unknown side %q", ErrInvalidRecord, t.ID, t.Side)
	}
	if t.Size.IsNegative() {
		return fmt.Errorf("%w: trade %s: negative size %s", ErrInvalidRecord, t.ID, t.Size)
	}
	if t.Price.IsNegative() {
		return fmt.Errorf("%w: trade %s: negative price %s", ErrInvalidRecord, t.ID, t.Price)
	}
	return nil
}
