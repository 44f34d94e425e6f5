package domain

import "time"

// Position is the agent's inventory in one outcome token. AvgCost is a cost
// basis, not a market-price tracker: it moves only on buy fills and is
// meaningless (zero) while Size is zero.
type Position struct {
	Size    float64
	AvgCost float64
}

// CostBasis returns the capital committed to the position (size * avg cost).
func (p Position) CostBasis() float64 {
	return p.Size * p.AvgCost
}

// FillSource records how a fill was observed.
type FillSource string

const (
	FillSourcePoll      FillSource = "poll"      // position delta between ticks
	FillSourceWS        FillSource = "ws"        // user-channel trade event
	FillSourceReconcile FillSource = "reconcile" // authoritative position adoption
)

// Fill is a confirmed execution against one of the agent's orders.
type Fill struct {
	ID        string
	MarketID  string
	TokenID   string
	Side      OrderSide
	Price     float64
	Size      float64
	Source    FillSource
	CreatedAt time.Time
}

// PositionSnapshot is a point-in-time record of ledger state, persisted after
// each mutation so the ledger can be warmed on restart.
type PositionSnapshot struct {
	MarketID string
	TokenID  string
	Size     float64
	AvgCost  float64
	TakenAt  time.Time
}
