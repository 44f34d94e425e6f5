// Package trader runs the per-market quoting pipeline: fetch state, price,
// reconcile, execute. One Trader serves all configured markets; the
// scheduler drives it tick by tick.
package trader

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"

	"github.com/quoterlabs/polyquoter/internal/domain"
	"github.com/quoterlabs/polyquoter/internal/engine"
	"github.com/quoterlabs/polyquoter/internal/notify"
)

// CLOB call budget shared by all markets. The exchange allows far more, but
// staying well under it leaves headroom for manual tooling against the same
// API key.
const (
	rateBucket        = "clob"
	rateLimit         = 100
	rateWindowSeconds = 10
)

// ExchangeClient is the order/book surface the trader needs from the CLOB
// client.
type ExchangeClient interface {
	GetOrderBook(ctx context.Context, tokenID string, tick float64) (domain.BookSnapshot, error)
	GetOpenOrders(ctx context.Context, conditionID string) ([]domain.Order, error)
	PostOrder(ctx context.Context, tokenID string, d domain.DesiredOrder, negRisk bool) (domain.OrderResult, error)
	CancelOrder(ctx context.Context, orderID string) error
	GetBalance(ctx context.Context) (float64, error)
}

// PositionSource reports the exchange's authoritative view of a position.
type PositionSource interface {
	GetPosition(ctx context.Context, user, conditionID, tokenID string) (domain.Position, error)
}

// MarketSpec is one market the trader quotes.
type MarketSpec struct {
	Market domain.Market
	// Side selects which outcome token to trade.
	Side domain.TradeSide
	// MaxPositionValue caps committed cost basis in collateral terms.
	MaxPositionValue float64
}

// TokenID returns the traded outcome token.
func (s MarketSpec) TokenID() string {
	return s.Market.TokenFor(s.Side)
}

// Options carries the trader's collaborators. Exchange, Positions, Ledger,
// and Logger are required; the rest degrade gracefully when nil.
type Options struct {
	Exchange  ExchangeClient
	Positions PositionSource
	Ledger    *engine.PositionLedger
	Pricer    engine.PricingEngine
	Rec       engine.Reconciler

	// WalletAddress is the funder address positions are queried under.
	WalletAddress string

	// TrackBalance enables the per-tick collateral check. Off, the
	// position cap alone bounds buying.
	TrackBalance bool

	// ReconcileEvery adopts the exchange's position every N ticks,
	// overriding any local drift. Zero disables adoption.
	ReconcileEvery int

	// AlertThreshold fires a notification after N consecutive failed ticks
	// for one market. Zero disables the alert.
	AlertThreshold int

	Limiter   domain.RateLimiter   // nil: unlimited
	Sizes     domain.SizeCache     // nil: in-memory only
	Fills     domain.FillStore     // nil: fills not persisted
	Snapshots domain.PositionStore // nil: snapshots not persisted
	Notifier  *notify.Notifier     // nil: no notifications
	Logger    *slog.Logger
}

// degradedRetryEvery is how many ticks a degraded market sits out between
// re-attempts.
const degradedRetryEvery = 10

// marketState is per-market bookkeeping across ticks.
type marketState struct {
	ticks    int
	failures int
	alerted  bool
	// degraded marks a market the exchange rejected (closed, or invalid
	// order terms). Degraded markets re-attempt on a slow cadence and
	// clear on the first clean tick.
	degraded bool
	// lastSize is the in-memory fallback fill-detection baseline when no
	// size cache is configured. nil until first observed.
	lastSize *float64
}

// Trader executes one quoting cycle per market per tick. Safe for
// concurrent RunTick calls on distinct markets; the scheduler guarantees no
// two ticks overlap for the same market.
type Trader struct {
	opts Options

	mu     sync.Mutex
	states map[string]*marketState
}

// New creates a Trader.
func New(opts Options) *Trader {
	opts.Logger = opts.Logger.With(slog.String("component", "trader"))
	return &Trader{
		opts:   opts,
		states: make(map[string]*marketState),
	}
}

// RunTick runs one full quoting cycle for the market: detect fills, rebuild
// the book view, compute targets, and reconcile live orders against them.
func (t *Trader) RunTick(ctx context.Context, spec MarketSpec) error {
	state := t.state(spec.Market.ConditionID)
	err := t.runTick(ctx, spec, state)
	t.trackFailures(ctx, spec, state, err)
	return err
}

func (t *Trader) runTick(ctx context.Context, spec MarketSpec, state *marketState) error {
	logger := t.opts.Logger.With(
		slog.String("market", spec.Market.ConditionID),
		slog.String("side", string(spec.Side)))

	if ok, err := t.allowTick(ctx); err != nil {
		logger.Warn("rate limiter unavailable, proceeding", slog.String("error", err.Error()))
	} else if !ok {
		logger.Debug("tick skipped by rate limit")
		return nil
	}

	t.mu.Lock()
	state.ticks++
	ticks := state.ticks
	degraded := state.degraded
	t.mu.Unlock()

	if degraded && ticks%degradedRetryEvery != 0 {
		logger.Debug("market degraded, sitting out")
		return nil
	}

	tokenID := spec.TokenID()
	tick := spec.Market.TickSize

	adopt := t.opts.ReconcileEvery > 0 && ticks%t.opts.ReconcileEvery == 0
	if err := t.syncPosition(ctx, spec, state, adopt); err != nil {
		return err
	}

	own, err := t.opts.Exchange.GetOpenOrders(ctx, spec.Market.ConditionID)
	if err != nil {
		return fmt.Errorf("trader: open orders: %w", err)
	}
	own = filterToken(own, tokenID)

	snap, err := t.opts.Exchange.GetOrderBook(ctx, tokenID, tick)
	if err != nil {
		if errors.Is(err, domain.ErrMarketUnavailable) {
			t.mu.Lock()
			state.degraded = true
			t.mu.Unlock()
			logger.Warn("market unavailable, backing off", slog.String("error", err.Error()))
			return nil
		}
		return fmt.Errorf("trader: order book: %w", err)
	}
	view := engine.BuildView(snap, own)

	cash := math.Inf(1)
	if t.opts.TrackBalance {
		cash, err = t.opts.Exchange.GetBalance(ctx)
		if err != nil {
			return fmt.Errorf("trader: balance: %w", err)
		}
	}

	targets := t.opts.Pricer.ComputeTargets(engine.PricingInputs{
		View:             view,
		Position:         t.opts.Ledger.Get(tokenID),
		MaxPositionValue: spec.MaxPositionValue,
		CashBalance:      cash,
	})

	actions := t.opts.Rec.Reconcile(targets, own, tick)
	for _, s := range actions.Skips {
		logger.Warn("desired order below exchange minimum, not placed",
			slog.String("order_side", string(s.Side)),
			slog.Float64("price", s.Price),
			slog.Float64("value", s.Price*s.Size))
	}
	if !actions.Empty() {
		if err := t.execute(ctx, spec, state, actions, logger); err != nil {
			return err
		}
	}

	// A full clean cycle clears the degraded flag.
	t.mu.Lock()
	state.degraded = false
	t.mu.Unlock()
	return nil
}

// execute applies reconciler output, cancels strictly before placements so
// capital frees up before it is recommitted.
func (t *Trader) execute(ctx context.Context, spec MarketSpec, state *marketState, actions engine.Actions, logger *slog.Logger) error {
	tokenID := spec.TokenID()

	var errs []error
	for _, o := range actions.Cancels {
		err := t.opts.Exchange.CancelOrder(ctx, o.ID)
		if err != nil && !errors.Is(err, domain.ErrNotFound) {
			errs = append(errs, fmt.Errorf("cancel %s: %w", o.ID, err))
			continue
		}
		logger.Info("order cancelled",
			slog.String("order_id", o.ID),
			slog.String("order_side", string(o.Side)),
			slog.Float64("price", o.Price))
	}
	if len(errs) > 0 {
		// Placing on top of orders that failed to cancel can exceed the
		// position cap. Stop here and let the next tick retry.
		return fmt.Errorf("trader: %w", errors.Join(errs...))
	}

	for _, d := range actions.Places {
		result, err := t.opts.Exchange.PostOrder(ctx, tokenID, d, spec.Market.NegRisk)
		if err != nil {
			if errors.Is(err, domain.ErrInvalidOrder) || errors.Is(err, domain.ErrMarketUnavailable) {
				t.mu.Lock()
				state.degraded = true
				t.mu.Unlock()
				logger.Warn("market degraded after exchange rejection", slog.String("error", err.Error()))
			}
			errs = append(errs, fmt.Errorf("place %s %.4f x %.2f: %w", d.Side, d.Price, d.Size, err))
			continue
		}
		logger.Info("order placed",
			slog.String("order_id", result.OrderID),
			slog.String("order_side", string(d.Side)),
			slog.Float64("price", d.Price),
			slog.Float64("size", d.Size))
	}
	if len(errs) > 0 {
		return fmt.Errorf("trader: %w", errors.Join(errs...))
	}
	return nil
}

// allowTick consults the shared rate limit bucket.
func (t *Trader) allowTick(ctx context.Context) (bool, error) {
	if t.opts.Limiter == nil {
		return true, nil
	}
	return t.opts.Limiter.Allow(ctx, rateBucket, rateLimit, rateWindowSeconds)
}

// trackFailures counts consecutive tick failures per market and alerts once
// when the threshold is crossed. Any success resets the streak.
func (t *Trader) trackFailures(ctx context.Context, spec MarketSpec, state *marketState, err error) {
	t.mu.Lock()
	if err == nil {
		state.failures = 0
		state.alerted = false
		t.mu.Unlock()
		return
	}
	state.failures++
	failures := state.failures
	shouldAlert := t.opts.AlertThreshold > 0 && failures >= t.opts.AlertThreshold && !state.alerted
	if shouldAlert {
		state.alerted = true
	}
	t.mu.Unlock()

	if shouldAlert && t.opts.Notifier != nil {
		title := fmt.Sprintf("market %s failing", spec.Market.ConditionID)
		body := fmt.Sprintf("%d consecutive tick failures, last error: %v", failures, err)
		if nerr := t.opts.Notifier.Notify(ctx, notify.EventAlert, title, body); nerr != nil {
			t.opts.Logger.Error("alert notification failed", slog.String("error", nerr.Error()))
		}
	}
}

func (t *Trader) state(conditionID string) *marketState {
	t.mu.Lock()
	defer t.mu.Unlock()
	s, ok := t.states[conditionID]
	if !ok {
		s = &marketState{}
		t.states[conditionID] = s
	}
	return s
}

func filterToken(orders []domain.Order, tokenID string) []domain.Order {
	out := orders[:0]
	for _, o := range orders {
		if o.TokenID == tokenID {
			out = append(out, o)
		}
	}
	return out
}
