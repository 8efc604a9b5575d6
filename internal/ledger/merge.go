package ledger

// merge.go: unifies trades and activities into one replay stream.
//
// Order: (timestamp, kind priority, REDEEM value desc, id, input ordinal).
// Creating events (BUY, SPLIT) sort before consuming ones at the same second,
// and winning REDEEMs before losing ones so position-count inference sees
// what is left once the winner has closed.

import (
	"sort"

	"github.com/alejandrodnm/polypnl/internal/domain"
)

// Merge returns the N+M replay events in deterministic chronological order.
// Activities of an unknown kind are dropped.
func Merge(trades []domain.Trade, activities []domain.Activity) []domain.Event {
	events := make([]domain.Event, 0, len(trades)+len(activities))
	for i, t := range trades {
		events = append(events, domain.EventFromTrade(i, t))
	}
	for j, a := range activities {
		ev, ok := domain.EventFromActivity(len(trades)+j, a)
		if !ok {
			continue
		}
		events = append(events, ev)
	}

	sort.SliceStable(events, func(i, j int) bool {
		return eventLess(events[i], events[j])
	})
	return events
}

func eventLess(a, b domain.Event) bool {
	if !a.Timestamp.Equal(b.Timestamp) {
		return a.Timestamp.Before(b.Timestamp)
	}
	if a.Kind != b.Kind {
		return a.Kind.Priority() < b.Kind.Priority()
	}
	if a.Kind == domain.EventRedeem && !a.Value.Equal(b.Value) {
		return a.Value.GreaterThan(b.Value)
	}
	if a.ID != b.ID {
		return a.ID < b.ID
	}
	return a.Seq < b.Seq
}
