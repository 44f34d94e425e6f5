package engine

import (
	"sync"

	"github.com/quoterlabs/polyquoter/internal/domain"
)

// PositionLedger tracks per-token position size and average cost. Buys blend
// into the weighted average entry price; sells reduce size without moving it.
// Safe for concurrent use by the per-market workers and the fill feed.
type PositionLedger struct {
	mu        sync.Mutex
	positions map[string]domain.Position
}

func NewPositionLedger() *PositionLedger {
	return &PositionLedger{positions: make(map[string]domain.Position)}
}

// Get returns the current position for tokenID, zero-valued if none.
func (l *PositionLedger) Get(tokenID string) domain.Position {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.positions[tokenID]
}

// ApplyFill folds a fill into the position and returns the updated position.
// A sell that reaches zero size resets the average cost so the next entry
// starts a fresh basis.
func (l *PositionLedger) ApplyFill(tokenID string, side domain.OrderSide, price, size float64) domain.Position {
	l.mu.Lock()
	defer l.mu.Unlock()

	p := l.positions[tokenID]
	switch side {
	case domain.OrderSideBuy:
		newSize := p.Size + size
		if newSize > 0 {
			p.AvgCost = (p.AvgCost*p.Size + price*size) / newSize
		}
		p.Size = newSize
	case domain.OrderSideSell:
		p.Size -= size
		if p.Size <= 1e-9 {
			p.Size = 0
			p.AvgCost = 0
		}
	}
	l.positions[tokenID] = p
	return p
}

// Adopt overwrites the tracked position with an externally observed one.
// Used when the exchange's reported position has drifted from the ledger,
// for example after fills that happened while the agent was offline.
func (l *PositionLedger) Adopt(tokenID string, p domain.Position) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if p.Size <= 0 {
		p.Size = 0
		p.AvgCost = 0
	}
	l.positions[tokenID] = p
}

// All returns a copy of every tracked position keyed by token ID.
func (l *PositionLedger) All() map[string]domain.Position {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make(map[string]domain.Position, len(l.positions))
	for k, v := range l.positions {
		out[k] = v
	}
	return out
}
