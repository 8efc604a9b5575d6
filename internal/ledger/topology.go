package ledger

import (
	"slices"
	"sort"

	"github.com/alejandrodnm/polypnl/internal/domain"
)

// OutcomeAsset pairs an outcome label with its token id.
type OutcomeAsset struct {
	Outcome string
	Asset   string
}

// Group is a neg-risk group: mutually exclusive markets sharing collateral.
type Group struct {
	ID      string
	Parent  string   // parent market id
	Members []string // sorted market ids, parent included
}

// Topology holds the lookup tables built once before a replay.
// It is read-only afterwards and safe to share between replays.
type Topology struct {
	assets  map[string]map[string]string // market → outcome → asset
	groups  map[string]*Group            // market → group
	winners map[string]string            // market → winning outcome
}

// BuildTopology derives the outcome table from every trade and activity that
// carries both asset and outcome (first writer wins, trades before activities,
// market tokens last), and the group and resolution tables from market metadata.
func BuildTopology(trades []domain.Trade, activities []domain.Activity, markets []domain.Market) *Topology {
	t := &Topology{
		assets:  make(map[string]map[string]string),
		groups:  make(map[string]*Group),
		winners: make(map[string]string),
	}

	for _, tr := range trades {
		t.record(tr.MarketID, tr.Outcome, tr.Asset)
	}
	for _, a := range activities {
		t.record(a.MarketID, a.Outcome, a.Asset)
	}

	byGroup := make(map[string]*Group)
	for _, m := range markets {
		if m.ConditionID == "" {
			continue
		}
		for _, tok := range m.Tokens {
			t.record(m.ConditionID, tok.Outcome, tok.TokenID)
		}
		if w, ok := m.Winner(); ok {
			t.winners[m.ConditionID] = w
		}
		if m.GroupID == "" {
			continue
		}
		g, ok := byGroup[m.GroupID]
		if !ok {
			g = &Group{ID: m.GroupID}
			byGroup[m.GroupID] = g
		}
		if !slices.Contains(g.Members, m.ConditionID) {
			g.Members = append(g.Members, m.ConditionID)
		}
		if m.NegRiskParent && g.Parent == "" {
			g.Parent = m.ConditionID
		}
	}
	for _, g := range byGroup {
		sort.Strings(g.Members)
		if g.Parent == "" {
			g.Parent = g.Members[0]
		}
		for _, mid := range g.Members {
			t.groups[mid] = g
		}
	}

	return t
}

func (t *Topology) record(market, outcome, asset string) {
	if market == "" || outcome == "" || asset == "" {
		return
	}
	outcomes, ok := t.assets[market]
	if !ok {
		outcomes = make(map[string]string)
		t.assets[market] = outcomes
	}
	if _, seen := outcomes[outcome]; !seen {
		outcomes[outcome] = asset
	}
}

// Asset returns the token id of (market, outcome).
func (t *Topology) Asset(market, outcome string) (string, bool) {
	a, ok := t.assets[market][outcome]
	return a, ok
}

// Outcomes returns the known outcomes of a market sorted by label.
func (t *Topology) Outcomes(market string) []OutcomeAsset {
	m := t.assets[market]
	out := make([]OutcomeAsset, 0, len(m))
	for o, a := range m {
		out = append(out, OutcomeAsset{Outcome: o, Asset: a})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Outcome < out[j].Outcome })
	return out
}

// Winner returns the winning outcome of a settled market.
func (t *Topology) Winner(market string) (string, bool) {
	w, ok := t.winners[market]
	return w, ok
}

// GroupOf returns the neg-risk group of a market. A market without a group
// is its own singleton group and its own parent.
func (t *Topology) GroupOf(market string) Group {
	if g, ok := t.groups[market]; ok {
		return *g
	}
	return Group{ID: market, Parent: market, Members: []string{market}}
}

// Siblings returns the other members of the market's group.
func (t *Topology) Siblings(market string) []string {
	g, ok := t.groups[market]
	if !ok {
		return nil
	}
	out := make([]string, 0, len(g.Members)-1)
	for _, m := range g.Members {
		if m != market {
			out = append(out, m)
		}
	}
	return out
}

// Counterpart returns the single known outcome of market whose label differs
// from label. In a binary sibling market that is the opposite side.
func (t *Topology) Counterpart(market, label string) (OutcomeAsset, bool) {
	var found OutcomeAsset
	n := 0
	for _, oa := range t.Outcomes(market) {
		if oa.Outcome == label {
			continue
		}
		found = oa
		n++
	}
	if n != 1 {
		return OutcomeAsset{}, false
	}
	return found, true
}
