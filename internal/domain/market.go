package domain

// TradeSide selects which outcome token of a binary market the agent trades.
type TradeSide string

const (
	TradeSideYes TradeSide = "yes"
	TradeSideNo  TradeSide = "no"
)

// Market holds the exchange-side facts about a binary market, as resolved
// from the metadata API during onboarding.
type Market struct {
	ConditionID     string
	Question        string
	Slug            string
	YesTokenID      string
	NoTokenID       string
	TickSize        float64
	MinOrderSize    float64
	NegRisk         bool
	Active          bool
	AcceptingOrders bool
}

// TokenFor returns the token ID for the given trade side.
func (m Market) TokenFor(side TradeSide) string {
	if side == TradeSideNo {
		return m.NoTokenID
	}
	return m.YesTokenID
}
