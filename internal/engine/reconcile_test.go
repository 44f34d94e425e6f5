package engine

import (
	"testing"
	"time"

	"github.com/quoterlabs/polyquoter/internal/domain"
)

func buyTargets(price, value float64) Targets {
	return Targets{BuyPrice: price, BuyValue: value}
}

func liveOrder(id string, side domain.OrderSide, price, size float64, age time.Duration) domain.Order {
	return domain.Order{
		ID:        id,
		Side:      side,
		Price:     price,
		Size:      size,
		CreatedAt: time.Now().Add(-age),
	}
}

func TestReconcilePlacesChunkedBuys(t *testing.T) {
	r := NewReconciler(0, 0)
	got := r.Reconcile(buyTargets(0.40, 30), nil, 0.01)

	if len(got.Cancels) != 0 {
		t.Fatalf("unexpected cancels %+v", got.Cancels)
	}
	if len(got.Places) != 3 {
		t.Fatalf("places = %d, want 3 equal chunks for 30 USDC", len(got.Places))
	}
	for i, p := range got.Places {
		if p.Side != domain.OrderSideBuy || !almostEqual(p.Price, 0.40) {
			t.Fatalf("place[%d] = %+v", i, p)
		}
		if !almostEqual(p.Notional(), 10) {
			t.Fatalf("place[%d] notional = %v, want 10", i, p.Notional())
		}
	}
}

func TestReconcileUnevenTotalSplitsEqually(t *testing.T) {
	r := NewReconciler(0, 0)
	got := r.Reconcile(buyTargets(0.50, 25), nil, 0.01)

	// 25 USDC needs 3 chunks; equal split keeps each above the 5 minimum.
	if len(got.Places) != 3 {
		t.Fatalf("places = %d, want 3", len(got.Places))
	}
	for i, p := range got.Places {
		if !almostEqual(p.Notional(), 25.0/3) {
			t.Fatalf("place[%d] notional = %v, want %v", i, p.Notional(), 25.0/3)
		}
	}
}

func TestReconcileIdempotent(t *testing.T) {
	r := NewReconciler(0, 0)
	targets := buyTargets(0.40, 30)

	first := r.Reconcile(targets, nil, 0.01)
	live := make([]domain.Order, len(first.Places))
	for i, p := range first.Places {
		live[i] = domain.Order{ID: "o", Side: p.Side, Price: p.Price, Size: p.Size, CreatedAt: time.Now()}
	}

	second := r.Reconcile(targets, live, 0.01)
	if !second.Empty() {
		t.Fatalf("second pass not empty: %+v", second)
	}
}

func TestReconcileCancelsWrongPrice(t *testing.T) {
	r := NewReconciler(0, 0)
	live := []domain.Order{
		liveOrder("stale", domain.OrderSideBuy, 0.35, 25, time.Minute),
		liveOrder("near", domain.OrderSideBuy, 0.39, 25, time.Minute),
	}
	got := r.Reconcile(buyTargets(0.40, 10), live, 0.01)

	if len(got.Cancels) != 1 || got.Cancels[0].ID != "stale" {
		t.Fatalf("cancels = %+v, want only the stale order", got.Cancels)
	}
	// The within-tolerance order already covers the target value.
	if len(got.Places) != 0 {
		t.Fatalf("unexpected places %+v", got.Places)
	}
}

func TestReconcileTrimsExcessNewestFirst(t *testing.T) {
	r := NewReconciler(0, 0)
	live := []domain.Order{
		liveOrder("old", domain.OrderSideBuy, 0.40, 25, time.Hour),
		liveOrder("new", domain.OrderSideBuy, 0.40, 25, time.Minute),
	}
	// Target 10 USDC; 20 resting. Trimming the newest leaves 10.
	got := r.Reconcile(buyTargets(0.40, 10), live, 0.01)

	if len(got.Cancels) != 1 || got.Cancels[0].ID != "new" {
		t.Fatalf("cancels = %+v, want the newest order", got.Cancels)
	}
	if len(got.Places) != 0 {
		t.Fatalf("unexpected places %+v", got.Places)
	}
}

func TestReconcileReportsBelowMinimumShortage(t *testing.T) {
	r := NewReconciler(0, 0)
	live := []domain.Order{liveOrder("a", domain.OrderSideBuy, 0.40, 20, time.Minute)}
	// 8 USDC resting, target 10: shortage 2 is below the 5 minimum.
	got := r.Reconcile(buyTargets(0.40, 10), live, 0.01)
	if !got.Empty() {
		t.Fatalf("expected nothing to execute for sub-minimum shortage, got %+v", got)
	}
	if len(got.Skips) != 1 {
		t.Fatalf("skips = %+v, want the unplaceable shortage reported", got.Skips)
	}
	skip := got.Skips[0]
	if skip.Side != domain.OrderSideBuy || !almostEqual(skip.Price, 0.40) {
		t.Fatalf("skip = %+v", skip)
	}
	if !almostEqual(skip.Notional(), 2) {
		t.Fatalf("skip notional = %v, want 2", skip.Notional())
	}

	// A fully satisfied side reports nothing.
	got = r.Reconcile(buyTargets(0.40, 8), live, 0.01)
	if len(got.Skips) != 0 {
		t.Fatalf("skips = %+v, want none when resting value matches", got.Skips)
	}
}

func TestReconcileCancelsAllWithoutTargets(t *testing.T) {
	r := NewReconciler(0, 0)
	live := []domain.Order{
		liveOrder("b", domain.OrderSideBuy, 0.40, 25, time.Minute),
		liveOrder("s", domain.OrderSideSell, 0.60, 25, time.Minute),
	}
	got := r.Reconcile(Targets{}, live, 0.01)
	if len(got.Cancels) != 2 || len(got.Places) != 0 {
		t.Fatalf("got %+v, want both orders cancelled", got)
	}
}

func TestReconcileSellSingleOrder(t *testing.T) {
	r := NewReconciler(0, 0)
	targets := Targets{
		Sell: &domain.DesiredOrder{Side: domain.OrderSideSell, Price: 0.60, Size: 100},
	}
	got := r.Reconcile(targets, nil, 0.01)
	if len(got.Places) != 1 {
		t.Fatalf("places = %+v, want one sell", got.Places)
	}
	p := got.Places[0]
	if p.Side != domain.OrderSideSell || !almostEqual(p.Size, 100) || !almostEqual(p.Price, 0.60) {
		t.Fatalf("sell place = %+v", p)
	}
}

func TestReconcileRepricesSell(t *testing.T) {
	r := NewReconciler(0, 0)
	targets := Targets{
		Sell: &domain.DesiredOrder{Side: domain.OrderSideSell, Price: 0.60, Size: 100},
	}
	live := []domain.Order{liveOrder("s", domain.OrderSideSell, 0.55, 100, time.Minute)}
	got := r.Reconcile(targets, live, 0.01)

	if len(got.Cancels) != 1 || got.Cancels[0].ID != "s" {
		t.Fatalf("cancels = %+v", got.Cancels)
	}
	if len(got.Places) != 1 || !almostEqual(got.Places[0].Price, 0.60) {
		t.Fatalf("places = %+v", got.Places)
	}
}

func TestReconcilePartialFillTopUp(t *testing.T) {
	r := NewReconciler(0, 0)
	live := []domain.Order{{
		ID: "p", Side: domain.OrderSideBuy, Price: 0.40,
		Size: 50, SizeMatched: 30, CreatedAt: time.Now(),
	}}
	// 20 shares remain = 8 USDC resting against a 30 USDC target.
	got := r.Reconcile(buyTargets(0.40, 30), live, 0.01)

	if len(got.Cancels) != 0 {
		t.Fatalf("unexpected cancels %+v", got.Cancels)
	}
	// Shortage 22 splits into 3 chunks.
	if len(got.Places) != 3 {
		t.Fatalf("places = %d, want 3", len(got.Places))
	}
	total := 0.0
	for _, p := range got.Places {
		total += p.Notional()
	}
	if !almostEqual(total, 22) {
		t.Fatalf("placed notional = %v, want 22", total)
	}
}
