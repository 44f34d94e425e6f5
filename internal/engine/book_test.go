package engine

import (
	"math"
	"testing"
	"time"

	"github.com/quoterlabs/polyquoter/internal/domain"
)

func almostEqual(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func TestTickHelpers(t *testing.T) {
	tests := []struct {
		name  string
		fn    func(float64, float64) float64
		price float64
		tick  float64
		want  float64
	}{
		{"normalize rounds down", NormalizeToTick, 0.4149, 0.01, 0.41},
		{"normalize rounds up", NormalizeToTick, 0.4151, 0.01, 0.42},
		{"floor keeps exact", FloorToTick, 0.42, 0.01, 0.42},
		{"floor truncates", FloorToTick, 0.429, 0.01, 0.42},
		{"ceil keeps exact", CeilToTick, 0.42, 0.01, 0.42},
		{"ceil bumps", CeilToTick, 0.421, 0.01, 0.43},
		{"fine tick", NormalizeToTick, 0.0314, 0.001, 0.031},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.fn(tt.price, tt.tick)
			if !almostEqual(got, tt.want) {
				t.Fatalf("got %v, want %v", got, tt.want)
			}
		})
	}
}

func TestBuildViewExcludesOwnOrders(t *testing.T) {
	snap := domain.BookSnapshot{
		TokenID:  "tok",
		TickSize: 0.01,
		Bids: []domain.PriceLevel{
			{Price: 0.40, Size: 50},
			{Price: 0.39, Size: 100},
		},
		Asks: []domain.PriceLevel{
			{Price: 0.45, Size: 80},
		},
	}
	own := []domain.Order{
		{ID: "a", Side: domain.OrderSideBuy, Price: 0.40, Size: 30, SizeMatched: 10},
		{ID: "b", Side: domain.OrderSideSell, Price: 0.45, Size: 80},
	}

	v := BuildView(snap, own)

	// 50 at 0.40 minus 20 remaining of our own order.
	if len(v.Bids) != 2 || !almostEqual(v.Bids[0].Size, 30) {
		t.Fatalf("bids = %+v, want top level size 30", v.Bids)
	}
	// Our sell covers the entire ask level, so it disappears.
	if len(v.Asks) != 0 {
		t.Fatalf("asks = %+v, want empty", v.Asks)
	}
	if !almostEqual(v.BestBid(), 0.40) {
		t.Fatalf("BestBid = %v, want 0.40", v.BestBid())
	}
	if !almostEqual(v.BestAsk(), 1.0) {
		t.Fatalf("BestAsk on empty side = %v, want 1.0", v.BestAsk())
	}
}

func TestBuildViewMergesOffTickLevels(t *testing.T) {
	snap := domain.BookSnapshot{
		TickSize: 0.01,
		Bids: []domain.PriceLevel{
			{Price: 0.4001, Size: 10},
			{Price: 0.3999, Size: 15},
		},
	}
	v := BuildView(snap, nil)
	if len(v.Bids) != 1 {
		t.Fatalf("bids = %+v, want single merged level", v.Bids)
	}
	if !almostEqual(v.Bids[0].Price, 0.40) || !almostEqual(v.Bids[0].Size, 25) {
		t.Fatalf("merged level = %+v, want 0.40/25", v.Bids[0])
	}
}

func TestDepthPriceForNotional(t *testing.T) {
	asks := []domain.PriceLevel{
		{Price: 0.50, Size: 10}, // 5.00 notional
		{Price: 0.55, Size: 20}, // 11.00
		{Price: 0.60, Size: 100},
	}
	tests := []struct {
		name   string
		levels []domain.PriceLevel
		target float64
		want   float64
	}{
		{"zero target returns best", asks, 0, 0.50},
		{"within first level", asks, 4, 0.50},
		{"walks to second level", asks, 10, 0.55},
		{"walks to third level", asks, 20, 0.60},
		{"exceeds book returns worst", asks, 1e6, 0.60},
		{"empty book", nil, 10, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := DepthPriceForNotional(tt.levels, tt.target)
			if !almostEqual(got, tt.want) {
				t.Fatalf("got %v, want %v", got, tt.want)
			}
		})
	}
}

func TestOrderRemaining(t *testing.T) {
	o := domain.Order{Size: 30, SizeMatched: 30.0000001, CreatedAt: time.Now()}
	if r := o.Remaining(); r != 0 {
		t.Fatalf("Remaining = %v, want 0 for fully matched order", r)
	}
}
