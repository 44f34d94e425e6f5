// Package app owns the application lifecycle: it wires dependencies from
// configuration, resolves the configured markets, and runs the quoting
// loop, fill feed, and archiver until shutdown.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/quoterlabs/polyquoter/internal/config"
	"github.com/quoterlabs/polyquoter/internal/domain"
	"github.com/quoterlabs/polyquoter/internal/engine"
	"github.com/quoterlabs/polyquoter/internal/feed"
	"github.com/quoterlabs/polyquoter/internal/notify"
	"github.com/quoterlabs/polyquoter/internal/scheduler"
	"github.com/quoterlabs/polyquoter/internal/trader"
)

// archiveInterval is how often the fill archiver runs.
const archiveInterval = 24 * time.Hour

// App is the root application object. It owns the configuration, logger,
// and the cleanup functions called in reverse order on shutdown.
type App struct {
	cfg     *config.Config
	logger  *slog.Logger
	closers []func()
}

// New creates an App from the given configuration and logger.
func New(cfg *config.Config, logger *slog.Logger) *App {
	return &App{
		cfg:    cfg,
		logger: logger.With(slog.String("component", "app")),
	}
}

// Run wires all dependencies, resolves markets, and blocks quoting until
// the context is cancelled. On the way out it cancels every resting order.
func (a *App) Run(ctx context.Context) error {
	a.logger.InfoContext(ctx, "starting",
		slog.String("log_level", a.cfg.LogLevel))

	deps, cleanup, err := Wire(ctx, a.cfg, a.logger)
	if err != nil {
		return fmt.Errorf("app: wire dependencies: %w", err)
	}
	a.closers = append(a.closers, cleanup)

	specs, err := a.resolveMarkets(ctx, deps)
	if err != nil {
		return fmt.Errorf("app: resolve markets: %w", err)
	}
	if len(specs) == 0 {
		return fmt.Errorf("app: no enabled markets in %s", a.cfg.MarketsPath)
	}

	tr := trader.New(trader.Options{
		Exchange:       deps.Clob,
		Positions:      deps.Data,
		Ledger:         engine.NewPositionLedger(),
		Pricer:         engine.NewPricingEngine(a.cfg.Trading.MinSpread),
		Rec:            engine.NewReconciler(a.cfg.Trading.MaxChunkValue, a.cfg.Trading.MinOrderValue),
		WalletAddress:  a.funderAddress(deps),
		TrackBalance:   a.cfg.Trading.TrackBalance,
		ReconcileEvery: a.cfg.Scheduler.ReconcileEvery,
		AlertThreshold: a.cfg.Scheduler.AlertThreshold,
		Limiter:        deps.Limiter,
		Sizes:          deps.Sizes,
		Fills:          deps.Fills,
		Snapshots:      deps.Snapshots,
		Notifier:       deps.Notifier,
		Logger:         a.logger,
	})

	for _, spec := range specs {
		if err := tr.WarmLedger(ctx, spec); err != nil {
			a.logger.WarnContext(ctx, "ledger warm failed, starting cold",
				slog.String("market", spec.Market.ConditionID),
				slog.String("error", err.Error()))
		}
	}

	if err := deps.Notifier.Notify(ctx, notify.EventStartup,
		"quoter started",
		fmt.Sprintf("quoting %d markets every %s", len(specs), a.cfg.Scheduler.Interval)); err != nil {
		a.logger.WarnContext(ctx, "startup notification failed", slog.String("error", err.Error()))
	}

	g, gctx := errgroup.WithContext(ctx)

	sched := scheduler.New(a.cfg.Scheduler.Interval.Duration, a.cfg.Scheduler.MaxConcurrent, tr, specs, a.logger)
	g.Go(func() error {
		return sched.Run(gctx)
	})

	if a.cfg.Polymarket.WsHost != "" {
		if creds := deps.Clob.Credentials(); creds != nil {
			conditionIDs := make([]string, len(specs))
			for i, spec := range specs {
				conditionIDs[i] = spec.Market.ConditionID
			}
			userFeed := feed.NewUserFeed(userFeedURL(a.cfg.Polymarket.WsHost), *creds, conditionIDs, tr.HandleFill, a.logger)
			g.Go(func() error {
				defer userFeed.Close()
				return userFeed.Run(gctx)
			})
		}
	}

	if deps.Archiver != nil {
		g.Go(func() error {
			deps.Archiver.Run(gctx, archiveInterval)
			return nil
		})
	}

	err = g.Wait()

	// Shutdown: leave nothing resting on the book.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if cerr := deps.Clob.CancelAll(shutdownCtx); cerr != nil {
		a.logger.Error("cancel all on shutdown failed", slog.String("error", cerr.Error()))
	}
	if nerr := deps.Notifier.Notify(shutdownCtx, notify.EventShutdown, "quoter stopped", "all resting orders cancelled"); nerr != nil {
		a.logger.Error("shutdown notification failed", slog.String("error", nerr.Error()))
	}

	if err != nil && err != context.Canceled {
		return fmt.Errorf("app: %w", err)
	}
	return nil
}

// Close tears down all resources in reverse registration order. Safe to
// call more than once.
func (a *App) Close() {
	a.logger.Info("shutting down")
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

// funderAddress returns the address positions are held under: the proxy
// funder when configured, the signing wallet otherwise.
func (a *App) funderAddress(deps *Dependencies) string {
	if a.cfg.Wallet.FunderAddress != "" {
		return a.cfg.Wallet.FunderAddress
	}
	return deps.Signer.Address().Hex()
}

// userFeedURL resolves the configured WebSocket host to the user-channel
// endpoint. The channel path is appended so the config can hold either the
// bare host or the full endpoint.
func userFeedURL(host string) string {
	host = strings.TrimRight(host, "/")
	if strings.HasSuffix(host, "/ws/user") {
		return host
	}
	return host + "/ws/user"
}

// resolveMarkets loads the markets file and resolves each enabled entry to
// exchange metadata, by condition ID against the CLOB API or by slug
// against the Gamma API.
func (a *App) resolveMarkets(ctx context.Context, deps *Dependencies) ([]trader.MarketSpec, error) {
	entries, err := config.LoadMarkets(a.cfg.MarketsPath)
	if err != nil {
		return nil, err
	}

	var specs []trader.MarketSpec
	for _, entry := range entries {
		if entry.Disabled {
			continue
		}

		var market domain.Market
		if entry.ConditionID != "" {
			market, err = deps.Clob.GetMarket(ctx, entry.ConditionID)
		} else {
			market, err = deps.Gamma.GetMarketBySlug(ctx, entry.Slug)
		}
		if err != nil {
			return nil, fmt.Errorf("market %s%s: %w", entry.Slug, entry.ConditionID, err)
		}
		if !market.Active || !market.AcceptingOrders {
			a.logger.WarnContext(ctx, "market not accepting orders, skipping",
				slog.String("market", market.ConditionID),
				slog.String("question", market.Question))
			continue
		}
		side := domain.TradeSide(entry.Side)
		if side == "" {
			side = domain.TradeSideYes
		}

		spec := trader.MarketSpec{
			Market:           market,
			Side:             side,
			MaxPositionValue: entry.MaxPosition,
		}
		if entry.TickSize > 0 {
			spec.Market.TickSize = entry.TickSize
		} else if tick, err := deps.Clob.GetTickSize(ctx, spec.TokenID()); err != nil {
			a.logger.WarnContext(ctx, "tick size lookup failed, using market metadata",
				slog.String("market", market.ConditionID),
				slog.String("error", err.Error()))
		} else {
			spec.Market.TickSize = tick
		}

		a.logger.InfoContext(ctx, "quoting market",
			slog.String("market", market.ConditionID),
			slog.String("question", market.Question),
			slog.String("side", string(side)),
			slog.Float64("tick_size", spec.Market.TickSize),
			slog.Float64("max_position", entry.MaxPosition))

		specs = append(specs, spec)
	}
	return specs, nil
}
