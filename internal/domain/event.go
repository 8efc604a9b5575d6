package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// EventKind is the closed set of things that can happen to a position.
// The declaration order is the tie-break priority at equal timestamps:
// events that create exposure come before events that consume it.
type EventKind int

const (
	EventBuy EventKind = iota
	EventSplit
	EventSell
	EventMerge
	EventRedeem
	EventReward
	EventConversion
)

var eventKindNames = [...]string{
	EventBuy:        "BUY",
	EventSplit:      "SPLIT",
	EventSell:       "SELL",
	EventMerge:      "MERGE",
	EventRedeem:     "REDEEM",
	EventReward:     "REWARD",
	EventConversion: "CONVERSION",
}

// String returns the upper-case name the Data API uses.
func (k EventKind) String() string {
	if k < 0 || int(k) >= len(eventKindNames) {
		return "UNKNOWN"
	}
	return eventKindNames[k]
}

// Priority is the sort rank of the kind at equal timestamps.
func (k EventKind) Priority() int { return int(k) }

// EventKindOfSide maps a trade side to its event kind.
func EventKindOfSide(s Side) EventKind {
	if s == SideSell {
		return EventSell
	}
	return EventBuy
}

// EventKindOfActivity maps an activity kind to its event kind.
// The second result is false for kinds the ledger does not know.
func EventKindOfActivity(k ActivityKind) (EventKind, bool) {
	switch k {
	case ActivityRedeem:
		return EventRedeem, true
	case ActivitySplit:
		return EventSplit, true
	case ActivityMerge:
		return EventMerge, true
	case ActivityReward:
		return EventReward, true
	case ActivityConversion:
		return EventConversion, true
	}
	return 0, false
}

// Event is a trade or an activity in the unified replay stream.
type Event struct {
	Seq       int // input ordinal: trades first, then activities
	ID        string
	Kind      EventKind
	Timestamp time.Time
	Asset     string
	MarketID  string
	Outcome   string
	Price     decimal.Decimal // per-unit price (trades only)
	Size      decimal.Decimal
	Value     decimal.Decimal // notional for trades, settlement value for activities
}

// EventFromTrade builds the replay event of a trade.
func EventFromTrade(seq int, t Trade) Event {
	return Event{
		Seq:       seq,
		ID:        t.ID,
		Kind:      EventKindOfSide(t.Side),
		Timestamp: t.Timestamp,
		Asset:     t.Asset,
		MarketID:  t.MarketID,
		Outcome:   t.Outcome,
		Price:     t.Price,
		Size:      t.Size,
		Value:     t.Value,
	}
}

// EventFromActivity builds the replay event of an activity.
// Activities carry no unit price; handlers derive it from Value/Size.
func EventFromActivity(seq int, a Activity) (Event, bool) {
	kind, ok := EventKindOfActivity(a.Kind)
	if !ok {
		return Event{}, false
	}
	return Event{
		Seq:       seq,
		ID:        a.ID,
		Kind:      kind,
		Timestamp: a.Timestamp,
		Asset:     a.Asset,
		MarketID:  a.MarketID,
		Outcome:   a.Outcome,
		Size:      a.Size,
		Value:     a.Value,
	}, true
}
