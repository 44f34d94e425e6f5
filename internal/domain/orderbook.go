package domain

import "time"

// PriceLevel is a single price+size entry in an orderbook.
type PriceLevel struct {
	Price float64
	Size  float64
}

// BookSnapshot is a raw orderbook snapshot for one token, as delivered by the
// exchange. Bids are ordered descending by price, asks ascending. A snapshot
// is rebuilt from scratch every tick and never mutated in place.
type BookSnapshot struct {
	TokenID   string
	Bids      []PriceLevel
	Asks      []PriceLevel
	TickSize  float64
	Timestamp time.Time
}

// BestBid returns the highest bid price, or 0 when the bid side is empty.
func (s BookSnapshot) BestBid() float64 {
	if len(s.Bids) == 0 {
		return 0
	}
	return s.Bids[0].Price
}

// BestAsk returns the lowest ask price, or 1 when the ask side is empty
// (prices live in (0,1) for binary outcome tokens).
func (s BookSnapshot) BestAsk() float64 {
	if len(s.Asks) == 0 {
		return 1
	}
	return s.Asks[0].Price
}
