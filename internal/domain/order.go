package domain

import "time"

// OrderSide indicates whether this is a buy or sell. The string values match
// the wire representation used by the CLOB API.
type OrderSide string

const (
	OrderSideBuy  OrderSide = "BUY"
	OrderSideSell OrderSide = "SELL"
)

// Order represents a live order resting on the exchange. The exchange owns
// the order; this is a read/cancel-capable view of it, never mutated locally.
type Order struct {
	ID          string
	MarketID    string
	TokenID     string
	Side        OrderSide
	Price       float64
	Size        float64 // original size in shares
	SizeMatched float64 // filled so far
	CreatedAt   time.Time
}

// Remaining returns the unfilled share count of the order.
func (o Order) Remaining() float64 {
	r := o.Size - o.SizeMatched
	if r < 0 {
		return 0
	}
	return r
}

// DesiredOrder is an order the engine wants resting on the book. It is
// ephemeral: recomputed every tick and compared against live orders.
type DesiredOrder struct {
	Side  OrderSide
	Price float64
	Size  float64
}

// Notional returns the order value in collateral terms (price * size).
func (d DesiredOrder) Notional() float64 {
	return d.Price * d.Size
}

// OrderResult wraps the API response after order submission.
type OrderResult struct {
	Success     bool
	OrderID     string
	Status      string
	Message     string
	ShouldRetry bool
}
