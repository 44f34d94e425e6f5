// Package engine contains the pricing and order-reconciliation core: it turns
// an orderbook snapshot plus the agent's current position into a desired order
// set, and diffs that set against live exchange orders. Everything in this
// package is pure computation; all exchange I/O lives in the trader layer.
package engine

import (
	"math"
	"sort"

	"github.com/quoterlabs/polyquoter/internal/domain"
)

// BookView is the normalized view of one token's orderbook with the agent's
// own resting orders subtracted out, so the engine prices against other
// participants' liquidity only. Bids are descending, asks ascending.
type BookView struct {
	Bids     []domain.PriceLevel
	Asks     []domain.PriceLevel
	TickSize float64
}

// Empty reports whether the view has no liquidity on either side.
func (v BookView) Empty() bool {
	return len(v.Bids) == 0 && len(v.Asks) == 0
}

// BestBid returns the highest remaining bid price, 0 when none.
func (v BookView) BestBid() float64 {
	if len(v.Bids) == 0 {
		return 0
	}
	return v.Bids[0].Price
}

// BestAsk returns the lowest remaining ask price, 1 when none.
func (v BookView) BestAsk() float64 {
	if len(v.Asks) == 0 {
		return 1
	}
	return v.Asks[0].Price
}

// BuildView normalizes a raw snapshot into a BookView. Own order sizes are
// grouped by tick-normalized price per side and subtracted from the matching
// levels; levels left with no size are dropped. The same price appearing on
// several raw levels is merged.
func BuildView(snap domain.BookSnapshot, own []domain.Order) BookView {
	tick := snap.TickSize
	if tick <= 0 {
		tick = 0.01
	}

	ownBuy := make(map[int64]float64)
	ownSell := make(map[int64]float64)
	for _, o := range own {
		key := tickKey(o.Price, tick)
		switch o.Side {
		case domain.OrderSideBuy:
			ownBuy[key] += o.Remaining()
		case domain.OrderSideSell:
			ownSell[key] += o.Remaining()
		}
	}

	view := BookView{
		Bids:     aggregateOthers(snap.Bids, ownBuy, tick, true),
		Asks:     aggregateOthers(snap.Asks, ownSell, tick, false),
		TickSize: tick,
	}
	return view
}

// aggregateOthers merges raw levels onto the tick grid, subtracts the agent's
// own size once per price, and returns the surviving levels sorted best-first.
func aggregateOthers(levels []domain.PriceLevel, own map[int64]float64, tick float64, descending bool) []domain.PriceLevel {
	agg := make(map[int64]float64, len(levels))
	for _, lvl := range levels {
		agg[tickKey(lvl.Price, tick)] += lvl.Size
	}

	out := make([]domain.PriceLevel, 0, len(agg))
	for key, size := range agg {
		other := size - own[key]
		if other <= 0 {
			continue
		}
		out = append(out, domain.PriceLevel{Price: float64(key) * tick, Size: other})
	}

	sort.Slice(out, func(i, j int) bool {
		if descending {
			return out[i].Price > out[j].Price
		}
		return out[i].Price < out[j].Price
	})
	return out
}

// DepthPriceForNotional walks levels best-first accumulating price*size until
// the cumulative notional reaches target, and returns the price of the level
// that satisfied it. When the whole book is thinner than target it returns the
// worst available price; when levels is empty it returns 0. A non-positive
// target yields the best price.
func DepthPriceForNotional(levels []domain.PriceLevel, target float64) float64 {
	if len(levels) == 0 {
		return 0
	}
	if target <= 0 {
		return levels[0].Price
	}
	cumulative := 0.0
	last := levels[0].Price
	for _, lvl := range levels {
		last = lvl.Price
		cumulative += lvl.Price * lvl.Size
		if cumulative >= target {
			return lvl.Price
		}
	}
	return last
}

// tickKey maps a price onto the tick grid using round-to-nearest, which
// forgives float noise in exchange-reported prices.
func tickKey(price, tick float64) int64 {
	return int64(math.Round(price / tick))
}

// NormalizeToTick rounds price to the nearest tick.
func NormalizeToTick(price, tick float64) float64 {
	return float64(tickKey(price, tick)) * tick
}

// FloorToTick rounds price down to the tick grid. A hair of tolerance keeps
// prices that are already on the grid from slipping a tick on float noise.
func FloorToTick(price, tick float64) float64 {
	return math.Floor(price/tick+1e-9) * tick
}

// CeilToTick rounds price up to the tick grid.
func CeilToTick(price, tick float64) float64 {
	return math.Ceil(price/tick-1e-9) * tick
}
