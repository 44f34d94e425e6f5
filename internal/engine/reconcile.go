package engine

import (
	"math"
	"sort"

	"github.com/quoterlabs/polyquoter/internal/domain"
)

// valueTolerance absorbs float noise when comparing resting notional against
// the target notional, so an order placed last tick is not churned this tick.
const valueTolerance = 0.01

// Actions is the output of a reconcile pass: the live orders to cancel and
// the new orders to place. Cancels must be executed and acknowledged (or
// timed out) before any placement for the same market, so the market never
// simultaneously holds a stale order and its replacement.
type Actions struct {
	Cancels []domain.Order
	Places  []domain.DesiredOrder
	// Skips are desired orders whose notional falls below the exchange
	// minimum. They are reported rather than placed so callers can log the
	// unfilled gap instead of dropping it silently.
	Skips []domain.DesiredOrder
}

// Empty reports whether the pass found nothing to execute.
func (a Actions) Empty() bool {
	return len(a.Cancels) == 0 && len(a.Places) == 0
}

// Reconciler diffs desired quotes against live exchange orders. It is a pure
// function of its inputs: running it twice against unchanged state yields an
// empty action set the second time.
type Reconciler struct {
	MaxChunkValue float64
	MinOrderValue float64
}

// NewReconciler returns a Reconciler, defaulting non-positive parameters.
func NewReconciler(maxChunkValue, minOrderValue float64) Reconciler {
	if maxChunkValue <= 0 {
		maxChunkValue = DefaultMaxChunkValue
	}
	if minOrderValue <= 0 {
		minOrderValue = DefaultMinOrderValue
	}
	return Reconciler{MaxChunkValue: maxChunkValue, MinOrderValue: minOrderValue}
}

// Reconcile compares targets against the live order set and returns the
// cancels and placements that close the gap. tick is the market's price
// increment; live orders within one tick of the desired price are counted as
// correctly priced rather than churned.
func (r Reconciler) Reconcile(t Targets, live []domain.Order, tick float64) Actions {
	if tick <= 0 {
		tick = 0.01
	}

	var buys, sells []domain.Order
	for _, o := range live {
		switch o.Side {
		case domain.OrderSideBuy:
			buys = append(buys, o)
		case domain.OrderSideSell:
			sells = append(sells, o)
		}
	}

	var sellPrice, sellValue float64
	if t.Sell != nil {
		sellPrice = t.Sell.Price
		sellValue = t.Sell.Notional()
	}

	var actions Actions
	r.reconcileSide(&actions, domain.OrderSideBuy, t.BuyPrice, t.BuyValue, buys, tick)
	r.reconcileSide(&actions, domain.OrderSideSell, sellPrice, sellValue, sells, tick)
	return actions
}

func (r Reconciler) reconcileSide(actions *Actions, side domain.OrderSide, targetPrice, targetValue float64, live []domain.Order, tick float64) {
	// No desired order for this side: everything live is stale.
	if targetPrice <= 0 || targetValue <= 0 {
		actions.Cancels = append(actions.Cancels, live...)
		return
	}

	tolerance := tick + 1e-9

	var correct []domain.Order
	for _, o := range live {
		if math.Abs(o.Price-targetPrice) > tolerance {
			actions.Cancels = append(actions.Cancels, o)
			continue
		}
		correct = append(correct, o)
	}

	// Newest-first so surplus trimming removes the most recently placed
	// orders and leaves the oldest queue position intact.
	sort.Slice(correct, func(i, j int) bool {
		return correct[i].CreatedAt.After(correct[j].CreatedAt)
	})

	currentValue := 0.0
	for _, o := range correct {
		currentValue += o.Remaining() * targetPrice
	}

	for _, o := range correct {
		if currentValue <= targetValue+valueTolerance {
			break
		}
		actions.Cancels = append(actions.Cancels, o)
		currentValue -= o.Remaining() * targetPrice
	}

	shortage := targetValue - currentValue
	if shortage < r.MinOrderValue {
		if shortage > valueTolerance {
			actions.Skips = append(actions.Skips, domain.DesiredOrder{
				Side:  side,
				Price: targetPrice,
				Size:  shortage / targetPrice,
			})
		}
		return
	}

	if side == domain.OrderSideBuy {
		actions.Places = append(actions.Places, r.splitBuy(targetPrice, shortage)...)
	} else {
		actions.Places = append(actions.Places, domain.DesiredOrder{
			Side:  domain.OrderSideSell,
			Price: targetPrice,
			Size:  shortage / targetPrice,
		})
	}
}

// splitBuy divides a buy notional into the minimum number of equal chunks
// each at or below MaxChunkValue. Equal chunks (rather than full chunks plus
// a remainder) keep every placement above the exchange minimum whenever the
// total is.
func (r Reconciler) splitBuy(price, total float64) []domain.DesiredOrder {
	n := int(math.Ceil(total / r.MaxChunkValue))
	if n < 1 {
		n = 1
	}
	per := total / float64(n)
	orders := make([]domain.DesiredOrder, 0, n)
	for i := 0; i < n; i++ {
		orders = append(orders, domain.DesiredOrder{
			Side:  domain.OrderSideBuy,
			Price: price,
			Size:  per / price,
		})
	}
	return orders
}
