package scheduler

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/quoterlabs/polyquoter/internal/domain"
	"github.com/quoterlabs/polyquoter/internal/trader"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func specs(n int) []trader.MarketSpec {
	out := make([]trader.MarketSpec, n)
	for i := range out {
		out[i] = trader.MarketSpec{
			Market: domain.Market{ConditionID: string(rune('a' + i))},
			Side:   domain.TradeSideYes,
		}
	}
	return out
}

type countingRunner struct {
	mu       sync.Mutex
	ticks    map[string]int
	inflight int32
	peak     int32
	block    chan struct{} // when set, ticks wait here
	panics   bool
}

func (r *countingRunner) RunTick(_ context.Context, spec trader.MarketSpec) error {
	cur := atomic.AddInt32(&r.inflight, 1)
	for {
		peak := atomic.LoadInt32(&r.peak)
		if cur <= peak || atomic.CompareAndSwapInt32(&r.peak, peak, cur) {
			break
		}
	}
	defer atomic.AddInt32(&r.inflight, -1)

	r.mu.Lock()
	if r.ticks == nil {
		r.ticks = make(map[string]int)
	}
	r.ticks[spec.Market.ConditionID]++
	r.mu.Unlock()

	if r.block != nil {
		<-r.block
	}
	if r.panics {
		panic("tick exploded")
	}
	return nil
}

func (r *countingRunner) count(id string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.ticks[id]
}

func TestSchedulerTicksAllMarkets(t *testing.T) {
	runner := &countingRunner{}
	s := New(10*time.Millisecond, 4, runner, specs(3), discardLogger())

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	s.Run(ctx)

	for _, id := range []string{"a", "b", "c"} {
		if runner.count(id) == 0 {
			t.Fatalf("market %s never ticked", id)
		}
	}
}

func TestSchedulerBoundsConcurrency(t *testing.T) {
	runner := &countingRunner{block: make(chan struct{})}
	s := New(5*time.Millisecond, 2, runner, specs(6), discardLogger())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		s.Run(ctx)
	}()

	time.Sleep(50 * time.Millisecond)
	close(runner.block)
	cancel()
	<-done

	if peak := atomic.LoadInt32(&runner.peak); peak > 2 {
		t.Fatalf("peak concurrency = %d, want <= 2", peak)
	}
}

func TestSchedulerSkipsInFlightMarket(t *testing.T) {
	runner := &countingRunner{block: make(chan struct{})}
	s := New(5*time.Millisecond, 4, runner, specs(1), discardLogger())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		s.Run(ctx)
	}()

	// Many intervals pass while the single tick is stuck.
	time.Sleep(60 * time.Millisecond)
	close(runner.block)
	cancel()
	<-done

	if got := runner.count("a"); got != 1 {
		t.Fatalf("market ticked %d times while blocked, want 1", got)
	}
}

func TestSchedulerSurvivesPanickingTick(t *testing.T) {
	runner := &countingRunner{panics: true}
	s := New(10*time.Millisecond, 2, runner, specs(1), discardLogger())

	ctx, cancel := context.WithTimeout(context.Background(), 80*time.Millisecond)
	defer cancel()
	s.Run(ctx)

	if got := runner.count("a"); got < 2 {
		t.Fatalf("market ticked %d times, want repeated ticks despite panics", got)
	}
}
