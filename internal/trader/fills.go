package trader

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/quoterlabs/polyquoter/internal/domain"
	"github.com/quoterlabs/polyquoter/internal/notify"
)

// sizeEpsilon is the share-count change below which a position delta is
// treated as reporting noise, not a fill.
const sizeEpsilon = 0.01

// syncPosition polls the exchange's position and folds any size change since
// the stored baseline into the ledger as a fill. When adopt is set the
// exchange position replaces the ledger entry outright, discarding local
// drift.
//
// Poll detection is the fallback path; the user-channel feed usually reports
// the fill first via HandleFill, which advances the baseline so the same
// fill is not counted twice.
func (t *Trader) syncPosition(ctx context.Context, spec MarketSpec, state *marketState, adopt bool) error {
	tokenID := spec.TokenID()
	marketID := spec.Market.ConditionID

	pos, err := t.opts.Positions.GetPosition(ctx, t.opts.WalletAddress, marketID, tokenID)
	if err != nil {
		return fmt.Errorf("trader: exchange position: %w", err)
	}

	last, ok, err := t.baseline(ctx, state, marketID)
	if err != nil {
		t.opts.Logger.Warn("size cache read failed, using exchange size",
			slog.String("market", marketID),
			slog.String("error", err.Error()))
		ok = false
	}

	switch {
	case !ok:
		// First observation. Warm the ledger from the exchange when it has
		// nothing yet; otherwise keep the restored snapshot.
		if t.opts.Ledger.Get(tokenID).Size == 0 && pos.Size > 0 {
			t.opts.Ledger.Adopt(tokenID, pos)
			t.saveSnapshot(ctx, marketID, tokenID)
		}
	case adopt:
		local := t.opts.Ledger.Get(tokenID)
		if math.Abs(pos.Size-local.Size) > sizeEpsilon {
			t.opts.Logger.Warn("position drift corrected",
				slog.String("market", marketID),
				slog.Float64("local_size", local.Size),
				slog.Float64("exchange_size", pos.Size))
		}
		t.opts.Ledger.Adopt(tokenID, pos)
		t.saveSnapshot(ctx, marketID, tokenID)
	default:
		if delta := pos.Size - last; math.Abs(delta) > sizeEpsilon {
			t.recordPolledFill(ctx, spec, pos, delta)
		}
	}

	return t.setBaseline(ctx, state, marketID, pos.Size)
}

// recordPolledFill folds a polled size delta into the ledger. A growing
// position is a buy at the exchange-reported average entry price. A
// shrinking one is a sell; the position API does not expose the execution
// price, so the quote floor over cost basis stands in for it. The estimate
// only affects the persisted record, not the cost basis: sells never move
// AvgCost.
func (t *Trader) recordPolledFill(ctx context.Context, spec MarketSpec, pos domain.Position, delta float64) {
	tokenID := spec.TokenID()
	marketID := spec.Market.ConditionID

	side := domain.OrderSideBuy
	size := delta
	price := pos.AvgCost
	if delta < 0 {
		side = domain.OrderSideSell
		size = -delta
		price = t.opts.Ledger.Get(tokenID).AvgCost * (1 + t.opts.Pricer.MinSpread)
	}

	t.opts.Ledger.ApplyFill(tokenID, side, price, size)
	t.persistFill(ctx, domain.Fill{
		ID:        uuid.NewString(),
		MarketID:  marketID,
		TokenID:   tokenID,
		Side:      side,
		Price:     price,
		Size:      size,
		Source:    domain.FillSourcePoll,
		CreatedAt: time.Now().UTC(),
	})
}

// HandleFill ingests a fill reported by the user-channel feed. The fill
// store deduplicates on ID, so replays after a reconnect are harmless; the
// baseline advances so the next poll does not count the same fill again.
func (t *Trader) HandleFill(ctx context.Context, fill domain.Fill) {
	t.opts.Ledger.ApplyFill(fill.TokenID, fill.Side, fill.Price, fill.Size)

	state := t.state(fill.MarketID)
	if last, ok, err := t.baseline(ctx, state, fill.MarketID); err == nil && ok {
		next := last + fill.Size
		if fill.Side == domain.OrderSideSell {
			next = last - fill.Size
		}
		if next < 0 {
			next = 0
		}
		if err := t.setBaseline(ctx, state, fill.MarketID, next); err != nil {
			t.opts.Logger.Warn("size cache write failed",
				slog.String("market", fill.MarketID),
				slog.String("error", err.Error()))
		}
	}

	t.persistFill(ctx, fill)
}

// persistFill stores the fill, snapshots the ledger, and emits the fill
// notification. Persistence failures are logged, never fatal: the ledger
// already holds the truth for this process.
func (t *Trader) persistFill(ctx context.Context, fill domain.Fill) {
	logger := t.opts.Logger.With(
		slog.String("market", fill.MarketID),
		slog.String("fill_id", fill.ID))

	logger.Info("fill",
		slog.String("fill_side", string(fill.Side)),
		slog.Float64("price", fill.Price),
		slog.Float64("size", fill.Size),
		slog.String("source", string(fill.Source)))

	if t.opts.Fills != nil {
		if err := t.opts.Fills.Create(ctx, fill); err != nil {
			logger.Error("fill store write failed", slog.String("error", err.Error()))
		}
	}
	t.saveSnapshot(ctx, fill.MarketID, fill.TokenID)

	if t.opts.Notifier != nil {
		title := fmt.Sprintf("%s fill", fill.Side)
		body := fmt.Sprintf("market %s: %s %.2f @ %.4f (%s)%s",
			fill.MarketID, fill.Side, fill.Size, fill.Price, fill.Source,
			t.portfolioSummary(ctx))
		if err := t.opts.Notifier.Notify(ctx, notify.EventFill, title, body); err != nil {
			logger.Error("fill notification failed", slog.String("error", err.Error()))
		}
	}
}

// portfolioSummary renders current holdings for notification bodies.
func (t *Trader) portfolioSummary(ctx context.Context) string {
	var b strings.Builder
	for tokenID, pos := range t.opts.Ledger.All() {
		if pos.Size == 0 {
			continue
		}
		fmt.Fprintf(&b, "\n%s: %.2f @ %.4f (%.2f USDC)",
			shortToken(tokenID), pos.Size, pos.AvgCost, pos.CostBasis())
	}
	if t.opts.TrackBalance {
		if cash, err := t.opts.Exchange.GetBalance(ctx); err == nil {
			fmt.Fprintf(&b, "\ncash: %.2f USDC", cash)
		}
	}
	return b.String()
}

// shortToken abbreviates the long decimal token IDs for human-facing text.
func shortToken(tokenID string) string {
	if len(tokenID) <= 12 {
		return tokenID
	}
	return tokenID[:12] + ".."
}

// WarmLedger restores the ledger from the latest persisted snapshot, if any.
func (t *Trader) WarmLedger(ctx context.Context, spec MarketSpec) error {
	if t.opts.Snapshots == nil {
		return nil
	}
	tokenID := spec.TokenID()
	snap, err := t.opts.Snapshots.Latest(ctx, tokenID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil
		}
		return fmt.Errorf("trader: warm ledger: %w", err)
	}
	t.opts.Ledger.Adopt(tokenID, domain.Position{Size: snap.Size, AvgCost: snap.AvgCost})
	return nil
}

func (t *Trader) saveSnapshot(ctx context.Context, marketID, tokenID string) {
	if t.opts.Snapshots == nil {
		return
	}
	pos := t.opts.Ledger.Get(tokenID)
	snap := domain.PositionSnapshot{
		MarketID: marketID,
		TokenID:  tokenID,
		Size:     pos.Size,
		AvgCost:  pos.AvgCost,
		TakenAt:  time.Now().UTC(),
	}
	if err := t.opts.Snapshots.Save(ctx, snap); err != nil {
		t.opts.Logger.Error("position snapshot write failed",
			slog.String("market", marketID),
			slog.String("error", err.Error()))
	}
}

// baseline reads the fill-detection baseline, preferring the shared cache
// and falling back to process memory.
func (t *Trader) baseline(ctx context.Context, state *marketState, marketID string) (float64, bool, error) {
	if t.opts.Sizes != nil {
		return t.opts.Sizes.LastSize(ctx, marketID)
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if state.lastSize == nil {
		return 0, false, nil
	}
	return *state.lastSize, true, nil
}

func (t *Trader) setBaseline(ctx context.Context, state *marketState, marketID string, size float64) error {
	if t.opts.Sizes != nil {
		return t.opts.Sizes.SetLastSize(ctx, marketID, size)
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	state.lastSize = &size
	return nil
}
