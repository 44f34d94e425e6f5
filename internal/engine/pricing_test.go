package engine

import (
	"math"
	"testing"

	"github.com/quoterlabs/polyquoter/internal/domain"
)

func defaultEngine() PricingEngine {
	return NewPricingEngine(0)
}

func view(bids, asks []domain.PriceLevel) BookView {
	return BookView{Bids: bids, Asks: asks, TickSize: 0.01}
}

func TestComputeTargetsBuyAtBestBid(t *testing.T) {
	e := defaultEngine()
	in := PricingInputs{
		View: view(
			[]domain.PriceLevel{{Price: 0.40, Size: 50}, {Price: 0.39, Size: 100}},
			nil,
		),
		MaxPositionValue: 30,
		CashBalance:      math.Inf(1),
	}

	got := e.ComputeTargets(in)
	if !almostEqual(got.BuyPrice, 0.40) {
		t.Fatalf("buy price = %v, want 0.40", got.BuyPrice)
	}
	if !almostEqual(got.BuyValue, 30) {
		t.Fatalf("BuyValue = %v, want 30", got.BuyValue)
	}
	if got.Sell != nil {
		t.Fatalf("unexpected sell target %+v with flat position", got.Sell)
	}
}

func TestComputeTargetsSpreadGuard(t *testing.T) {
	e := defaultEngine()
	bids := []domain.PriceLevel{{Price: 0.50, Size: 100}}

	// Ask too close: 0.505 - 0.50 < 0.007.
	in := PricingInputs{
		View:             view(bids, []domain.PriceLevel{{Price: 0.505, Size: 100}}),
		MaxPositionValue: 100,
		CashBalance:      math.Inf(1),
	}
	in.View.TickSize = 0.001
	if got := e.ComputeTargets(in); got.BuyPrice != 0 {
		t.Fatalf("expected no buy inside min spread, got price %v", got.BuyPrice)
	}

	// Wide enough spread passes.
	in.View.Asks = []domain.PriceLevel{{Price: 0.52, Size: 100}}
	if got := e.ComputeTargets(in); got.BuyPrice == 0 {
		t.Fatal("expected a buy with spread above minimum")
	}
}

func TestComputeTargetsCapacityBounds(t *testing.T) {
	e := defaultEngine()
	bids := []domain.PriceLevel{{Price: 0.40, Size: 50}}

	tests := []struct {
		name      string
		position  domain.Position
		maxValue  float64
		cash      float64
		wantBuy   bool
		wantValue float64
	}{
		{"cap reached", domain.Position{Size: 75, AvgCost: 0.40}, 30, math.Inf(1), false, 0},
		{"cap exceeded after drift", domain.Position{Size: 100, AvgCost: 0.40}, 30, math.Inf(1), false, 0},
		{"cash poorer than cap", domain.Position{}, 30, 7, true, 7},
		{"no cash", domain.Position{}, 30, 0, false, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := e.ComputeTargets(PricingInputs{
				View:             view(bids, nil),
				Position:         tt.position,
				MaxPositionValue: tt.maxValue,
				CashBalance:      tt.cash,
			})
			if (got.BuyPrice > 0) != tt.wantBuy {
				t.Fatalf("buy price = %v, want present=%v", got.BuyPrice, tt.wantBuy)
			}
			if tt.wantBuy && !almostEqual(got.BuyValue, tt.wantValue) {
				t.Fatalf("BuyValue = %v, want %v", got.BuyValue, tt.wantValue)
			}
		})
	}
}

func TestComputeTargetsEmptyBook(t *testing.T) {
	e := defaultEngine()
	got := e.ComputeTargets(PricingInputs{
		View:             view(nil, nil),
		MaxPositionValue: 30,
		CashBalance:      math.Inf(1),
	})
	if got.BuyPrice != 0 || got.Sell != nil {
		t.Fatalf("expected no targets on empty book, got %+v", got)
	}
}

func TestComputeTargetsSellPricing(t *testing.T) {
	e := defaultEngine()
	pos := domain.Position{Size: 100, AvgCost: 0.40}

	// Floor binds: cost basis markup above the thin ask book.
	got := e.ComputeTargets(PricingInputs{
		View:             view(nil, []domain.PriceLevel{{Price: 0.35, Size: 1000}}),
		Position:         pos,
		MaxPositionValue: 50,
		CashBalance:      math.Inf(1),
	})
	if got.Sell == nil {
		t.Fatal("expected a sell target")
	}
	// ceil(0.40 * 1.007) on a 0.01 grid.
	if !almostEqual(got.Sell.Price, 0.41) {
		t.Fatalf("sell price = %v, want 0.41", got.Sell.Price)
	}
	if !almostEqual(got.Sell.Size, 100) {
		t.Fatalf("sell size = %v, want full position 100", got.Sell.Size)
	}

	// Depth binds: book trades well above the floor.
	got = e.ComputeTargets(PricingInputs{
		View:             view(nil, []domain.PriceLevel{{Price: 0.60, Size: 1000}}),
		Position:         pos,
		MaxPositionValue: 50,
		CashBalance:      math.Inf(1),
	})
	if !almostEqual(got.Sell.Price, 0.60) {
		t.Fatalf("sell price = %v, want depth price 0.60", got.Sell.Price)
	}

	// Near-certain outcome is capped below 1.0.
	got = e.ComputeTargets(PricingInputs{
		View:             view(nil, nil),
		Position:         domain.Position{Size: 100, AvgCost: 0.995},
		MaxPositionValue: 200,
		CashBalance:      math.Inf(1),
	})
	if !almostEqual(got.Sell.Price, 0.999) {
		t.Fatalf("sell price = %v, want cap 0.999", got.Sell.Price)
	}
}
