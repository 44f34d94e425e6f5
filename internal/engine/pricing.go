package engine

import (
	"github.com/quoterlabs/polyquoter/internal/domain"
)

// Pricing policy defaults. MinSpread is the minimum markup between cost basis
// and resale price; MaxChunkValue bounds a single buy order's notional;
// MinOrderValue is the exchange's minimum order notional.
const (
	DefaultMinSpread     = 0.007
	DefaultMaxChunkValue = 10.0
	DefaultMinOrderValue = 5.0

	// maxSellPrice caps quotes just under certainty; the exchange rejects
	// orders at 1.0.
	maxSellPrice = 0.999
)

// PricingEngine derives target quotes from book depth, current position, and
// spread policy. The zero value is unusable; construct with NewPricingEngine.
type PricingEngine struct {
	MinSpread float64
}

// NewPricingEngine returns a PricingEngine, defaulting a non-positive spread.
func NewPricingEngine(minSpread float64) PricingEngine {
	if minSpread <= 0 {
		minSpread = DefaultMinSpread
	}
	return PricingEngine{MinSpread: minSpread}
}

// PricingInputs carries everything ComputeTargets needs for one market tick.
type PricingInputs struct {
	View             BookView
	Position         domain.Position
	MaxPositionValue float64
	// CashBalance is the available collateral. Callers that do not track
	// balance pass +Inf so the position cap alone binds.
	CashBalance float64
}

// Targets is the desired quote set for one tick. An absent side means no
// action for that side: capital exhausted, empty book, or an unprofitable
// spread are expected steady states, not errors.
type Targets struct {
	// BuyPrice is the level to rest buy liquidity at; zero stands the buy
	// side down.
	BuyPrice float64
	// BuyValue is the full remaining capacity to deploy on the buy side;
	// the reconciler splits it into chunk-sized placements.
	BuyValue float64
	// Sell unwinds the entire position at the markup price.
	Sell *domain.DesiredOrder
}

// ComputeTargets derives the target quotes for one market.
//
// Buy side: quote at the best (other-liquidity) bid, never crossing the
// spread, for min(remaining capacity, one chunk). Remaining capacity is the
// position cap minus committed cost basis, additionally bounded by cash.
// When ask liquidity exists the quote must clear the minimum spread against
// the best ask or the engine stands down rather than buy into a book it
// cannot profitably exit.
//
// Sell side: quote the full position at the higher of the breakeven-plus-
// margin floor and the depth-implied ask level; never below the floor, never
// at or above 1.0.
func (e PricingEngine) ComputeTargets(in PricingInputs) Targets {
	var t Targets
	tick := in.View.TickSize

	// --- Buy side ---
	remaining := in.MaxPositionValue - in.Position.CostBasis()
	if in.CashBalance < remaining {
		remaining = in.CashBalance
	}
	if remaining > 0 && len(in.View.Bids) > 0 {
		buyPrice := FloorToTick(in.View.BestBid(), tick)
		spreadOK := len(in.View.Asks) == 0 || in.View.BestAsk()-buyPrice >= e.MinSpread
		if buyPrice > 0 && spreadOK {
			t.BuyPrice = buyPrice
			t.BuyValue = remaining
		}
	}

	// --- Sell side ---
	if in.Position.Size > 0 {
		floor := CeilToTick(in.Position.AvgCost*(1+e.MinSpread), tick)
		sellPrice := floor
		if len(in.View.Asks) > 0 {
			depth := DepthPriceForNotional(in.View.Asks, in.Position.Size*in.View.BestAsk())
			if depth > sellPrice {
				sellPrice = depth
			}
		}
		if sellPrice > maxSellPrice {
			sellPrice = maxSellPrice
		}
		t.Sell = &domain.DesiredOrder{
			Side:  domain.OrderSideSell,
			Price: sellPrice,
			Size:  in.Position.Size,
		}
	}

	return t
}
