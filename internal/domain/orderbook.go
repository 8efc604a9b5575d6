package domain

import "github.com/shopspring/decimal"

// OrderBook is the CLOB book of one outcome token. Only used to mark open positions.
type OrderBook struct {
	TokenID string
	Bids    []BookEntry // highest price first
	Asks    []BookEntry // lowest price first
}

// BookEntry is a price level.
type BookEntry struct {
	Price decimal.Decimal
	Size  decimal.Decimal
}

// BestBid returns the highest bid, or zero for an empty side.
func (ob OrderBook) BestBid() decimal.Decimal {
	if len(ob.Bids) == 0 {
		return decimal.Zero
	}
	return ob.Bids[0].Price
}

// BestAsk returns the lowest ask, or zero for an empty side.
func (ob OrderBook) BestAsk() decimal.Decimal {
	if len(ob.Asks) == 0 {
		return decimal.Zero
	}
	return ob.Asks[0].Price
}

// Midpoint returns (bid+ask)/2. With one side empty it returns the other side,
// and zero when both are empty.
func (ob OrderBook) Midpoint() decimal.Decimal {
	bid, ask := ob.BestBid(), ob.BestAsk()
	switch {
	case bid.IsZero() && ask.IsZero():
		return decimal.Zero
	case bid.IsZero():
		return ask
	case ask.IsZero():
		return bid
	}
	return bid.Add(ask).Div(decimal.NewFromInt(2))
}
