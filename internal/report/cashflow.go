package report

import (
	"github.com/alejandrodnm/polypnl/internal/domain"
)

// CashFlow tallies USDC in and out of the wallet without cost basis.
// Conversions move no collateral and are only reported.
func CashFlow(trades []domain.Trade, activities []domain.Activity) domain.CashFlow {
	var cf domain.CashFlow
	for _, t := range trades {
		value := t.Value
		if value.IsZero() {
			value = t.Price.Mul(t.Size)
		}
		switch t.Side {
		case domain.SideBuy:
			cf.Buys = cf.Buys.Add(value)
		case domain.SideSell:
			cf.Sells = cf.Sells.Add(value)
		default:
			continue
		}
		cf.Volume = cf.Volume.Add(value)
		cf.TradeCount++
	}
	for _, a := range activities {
		switch a.Kind {
		case domain.ActivityRedeem:
			cf.Redeems = cf.Redeems.Add(a.Value)
		case domain.ActivityMerge:
			cf.Merges = cf.Merges.Add(a.Value)
		case domain.ActivitySplit:
			cf.Splits = cf.Splits.Add(a.Value)
		case domain.ActivityReward:
			cf.Rewards = cf.Rewards.Add(a.Value)
		case domain.ActivityConversion:
			cf.Conversions = cf.Conversions.Add(a.Value)
		}
	}
	return cf
}

// CashFlowIn is CashFlow restricted to the records inside w, so it lines up
// with the period's realized PnL.
func CashFlowIn(trades []domain.Trade, activities []domain.Activity, w domain.Window) domain.CashFlow {
	inTrades := make([]domain.Trade, 0, len(trades))
	for _, t := range trades {
		if w.Contains(t.Timestamp) {
			inTrades = append(inTrades, t)
		}
	}
	inActs := make([]domain.Activity, 0, len(activities))
	for _, a := range activities {
		if w.Contains(a.Timestamp) {
			inActs = append(inActs, a)
		}
	}
	return CashFlow(inTrades, inActs)
}
