package engine

import (
	"testing"

	"github.com/quoterlabs/polyquoter/internal/domain"
)

func TestLedgerBuyBlendsAverageCost(t *testing.T) {
	l := NewPositionLedger()

	l.ApplyFill("tok", domain.OrderSideBuy, 0.40, 100)
	p := l.ApplyFill("tok", domain.OrderSideBuy, 0.50, 100)

	if !almostEqual(p.Size, 200) {
		t.Fatalf("size = %v, want 200", p.Size)
	}
	if !almostEqual(p.AvgCost, 0.45) {
		t.Fatalf("avg cost = %v, want 0.45", p.AvgCost)
	}
}

func TestLedgerSellKeepsAverageCost(t *testing.T) {
	l := NewPositionLedger()
	l.ApplyFill("tok", domain.OrderSideBuy, 0.40, 100)

	p := l.ApplyFill("tok", domain.OrderSideSell, 0.60, 40)
	if !almostEqual(p.Size, 60) || !almostEqual(p.AvgCost, 0.40) {
		t.Fatalf("position = %+v, want size 60 at avg 0.40", p)
	}
}

func TestLedgerSellToZeroResetsBasis(t *testing.T) {
	l := NewPositionLedger()
	l.ApplyFill("tok", domain.OrderSideBuy, 0.40, 100)

	p := l.ApplyFill("tok", domain.OrderSideSell, 0.60, 100)
	if p.Size != 0 || p.AvgCost != 0 {
		t.Fatalf("position = %+v, want flat with zero basis", p)
	}

	// Fresh entry starts a new basis.
	p = l.ApplyFill("tok", domain.OrderSideBuy, 0.30, 10)
	if !almostEqual(p.AvgCost, 0.30) {
		t.Fatalf("avg cost = %v, want 0.30", p.AvgCost)
	}
}

func TestLedgerAdopt(t *testing.T) {
	l := NewPositionLedger()
	l.ApplyFill("tok", domain.OrderSideBuy, 0.40, 100)

	l.Adopt("tok", domain.Position{Size: 150, AvgCost: 0.42})
	if p := l.Get("tok"); !almostEqual(p.Size, 150) || !almostEqual(p.AvgCost, 0.42) {
		t.Fatalf("position = %+v after adopt", p)
	}

	// Negative external size clamps to flat.
	l.Adopt("tok", domain.Position{Size: -3, AvgCost: 0.42})
	if p := l.Get("tok"); p.Size != 0 || p.AvgCost != 0 {
		t.Fatalf("position = %+v, want flat", p)
	}
}

func TestLedgerTracksTokensIndependently(t *testing.T) {
	l := NewPositionLedger()
	l.ApplyFill("yes", domain.OrderSideBuy, 0.40, 100)
	l.ApplyFill("no", domain.OrderSideBuy, 0.55, 50)

	all := l.All()
	if len(all) != 2 {
		t.Fatalf("All() = %v, want 2 tokens", all)
	}
	if !almostEqual(all["no"].AvgCost, 0.55) {
		t.Fatalf("no position = %+v", all["no"])
	}
}
