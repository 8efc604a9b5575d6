package domain

// Market is the settlement and neg-risk metadata of one condition.
// It is the input for the resolution table and the neg-risk group table.
type Market struct {
	ConditionID    string
	Question       string
	Resolved       bool
	WinningOutcome string // empty while unresolved
	NegRisk        bool
	GroupID        string // neg_risk_market_id; empty for standalone markets
	NegRiskParent  bool   // one member per group is flagged parent
	Tokens         []Token
}

// Token is one outcome of a market.
type Token struct {
	TokenID string
	Outcome string
	Winner  bool
}

// Winner returns the winning outcome label of a resolved market.
func (m Market) Winner() (string, bool) {
	if m.WinningOutcome != "" {
		return m.WinningOutcome, true
	}
	for _, t := range m.Tokens {
		if t.Winner {
			return t.Outcome, true
		}
	}
	return "", false
}

// TruncateQuestion shortens a market question for display.
// Falls back to the first characters of the condition id when the question is empty.
func TruncateQuestion(question, conditionID string, maxLen int) string {
	q := question
	if q == "" {
		if len(conditionID) > 20 {
			q = conditionID[:20] + "..."
		} else {
			q = conditionID
		}
	}
	if len(q) > maxLen {
		q = q[:maxLen-3] + "..."
	}
	return q
}
