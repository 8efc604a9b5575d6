package domain

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// ActivityKind is the type of a non-trade settlement action.
type ActivityKind string

const (
	ActivityRedeem     ActivityKind = "REDEEM"
	ActivitySplit      ActivityKind = "SPLIT"
	ActivityMerge      ActivityKind = "MERGE"
	ActivityReward     ActivityKind = "REWARD"
	ActivityConversion ActivityKind = "CONVERSION"
)

// ActivityKinds lists every kind the Data API is queried for, besides TRADE.
var ActivityKinds = []ActivityKind{
	ActivityRedeem,
	ActivitySplit,
	ActivityMerge,
	ActivityReward,
	ActivityConversion,
}

// Valid reports whether k is a known activity kind.
func (k ActivityKind) Valid() bool {
	switch k {
	case ActivityRedeem, ActivitySplit, ActivityMerge, ActivityReward, ActivityConversion:
		return true
	}
	return false
}

// Activity is a settlement action from the wallet's history.
// Asset and Outcome are often empty (the Data API omits them for most
// REDEEMs); they must be inferred, never assumed.
type Activity struct {
	ID        string // transaction hash
	Timestamp time.Time
	Kind      ActivityKind
	MarketID  string
	Asset     string // may be empty
	Outcome   string // may be empty
	Size      decimal.Decimal
	Value     decimal.Decimal // USDC settled (usdcSize)
}

// Validate rejects activities that would poison a replay.
func (a Activity) Validate() error {
	if a.Timestamp.IsZero() {
		return fmt.Errorf("%w: activity %s: missing timestamp", ErrInvalidRecord, a.ID)
	}
	if !a.Kind.Valid() {
		return fmt.Errorf("%w: activity %s: unknown kind %q", ErrInvalidRecord, a.ID, a.Kind)
	}
	if a.Size.IsNegative() {
		return fmt.Errorf("%w: activity %s: negative size %s", ErrInvalidRecord, a.ID, a.Size)
	}
	if a.Value.IsNegative() {
		return fmt.Errorf("%w: activity %s: negative value %s", ErrInvalidRecord, a.ID, a.Value)
	}
	return nil
}
