// Package scheduler drives the trader on a fixed cadence. Every interval it
// dispatches one tick per enabled market, bounded by a concurrency limit,
// skipping markets whose previous tick is still in flight.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/quoterlabs/polyquoter/internal/trader"
)

// Runner executes one quoting cycle for one market.
type Runner interface {
	RunTick(ctx context.Context, spec trader.MarketSpec) error
}

// Scheduler ticks all markets on a shared timer.
type Scheduler struct {
	interval time.Duration
	runner   Runner
	specs    []trader.MarketSpec
	logger   *slog.Logger

	sem *semaphore.Weighted

	mu      sync.Mutex
	running map[string]bool
}

// New creates a Scheduler. maxConcurrent bounds how many markets tick at
// once; values below 1 are treated as 1.
func New(interval time.Duration, maxConcurrent int, runner Runner, specs []trader.MarketSpec, logger *slog.Logger) *Scheduler {
	if maxConcurrent < 1 {
		maxConcurrent = 1
	}
	return &Scheduler{
		interval: interval,
		runner:   runner,
		specs:    specs,
		logger:   logger.With(slog.String("component", "scheduler")),
		sem:      semaphore.NewWeighted(int64(maxConcurrent)),
		running:  make(map[string]bool),
	}
}

// Run ticks immediately, then on every interval, until ctx is cancelled.
// It returns after all in-flight ticks finish.
func (s *Scheduler) Run(ctx context.Context) error {
	s.logger.Info("scheduler started",
		slog.Int("markets", len(s.specs)),
		slog.Duration("interval", s.interval))

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	var wg sync.WaitGroup
	s.dispatch(ctx, &wg)

	for {
		select {
		case <-ctx.Done():
			wg.Wait()
			s.logger.Info("scheduler stopped")
			return ctx.Err()
		case <-ticker.C:
			s.dispatch(ctx, &wg)
		}
	}
}

// dispatch starts one tick per market that is not already ticking.
func (s *Scheduler) dispatch(ctx context.Context, wg *sync.WaitGroup) {
	for _, spec := range s.specs {
		id := spec.Market.ConditionID

		s.mu.Lock()
		if s.running[id] {
			s.mu.Unlock()
			s.logger.Debug("tick still in flight, skipping", slog.String("market", id))
			continue
		}
		s.running[id] = true
		s.mu.Unlock()

		wg.Add(1)
		go func(spec trader.MarketSpec) {
			defer wg.Done()
			defer func() {
				s.mu.Lock()
				s.running[spec.Market.ConditionID] = false
				s.mu.Unlock()
			}()

			if err := s.sem.Acquire(ctx, 1); err != nil {
				return
			}
			defer s.sem.Release(1)

			s.runOne(ctx, spec)
		}(spec)
	}
}

// runOne executes a single tick, containing panics so one broken market
// cannot take the process down.
func (s *Scheduler) runOne(ctx context.Context, spec trader.MarketSpec) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("tick panicked",
				slog.String("market", spec.Market.ConditionID),
				slog.String("panic", fmt.Sprint(r)))
		}
	}()

	if err := s.runner.RunTick(ctx, spec); err != nil {
		if ctx.Err() != nil {
			return
		}
		s.logger.Error("tick failed",
			slog.String("market", spec.Market.ConditionID),
			slog.String("error", err.Error()))
	}
}
