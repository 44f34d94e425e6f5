// Command addmarket resolves a Polymarket market and appends it to the
// markets file the quoter reads on startup. The argument is a market slug,
// a full polymarket.com URL, or a 0x-prefixed condition ID.
//
// Usage:
//
//	addmarket -side yes -max-position 30 will-it-rain-tomorrow
//	addmarket https://polymarket.com/event/will-it-rain-tomorrow
//	addmarket -disabled 0xabc123...
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/quoterlabs/polyquoter/internal/config"
	"github.com/quoterlabs/polyquoter/internal/domain"
	"github.com/quoterlabs/polyquoter/internal/platform/polymarket"
)

func main() {
	configPath := flag.String("config", "config.toml", "path to configuration file")
	side := flag.String("side", "no", "outcome side to quote: yes or no")
	maxPosition := flag.Float64("max-position", 25, "position cap in USDC")
	tickSize := flag.Float64("tick-size", 0, "override the market tick size")
	disabled := flag.Bool("disabled", false, "add the entry disabled")
	flag.Parse()

	if flag.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "usage: addmarket [flags] <slug|url|condition-id>")
		flag.PrintDefaults()
		os.Exit(2)
	}

	if err := run(*configPath, flag.Arg(0), *side, *maxPosition, *tickSize, *disabled); err != nil {
		fmt.Fprintf(os.Stderr, "addmarket: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath, arg, side string, maxPosition, tickSize float64, disabled bool) error {
	if side != "yes" && side != "no" {
		return fmt.Errorf("-side must be yes or no, got %q", side)
	}
	if maxPosition <= 0 {
		return fmt.Errorf("-max-position must be positive")
	}

	// Only the endpoints and markets path matter here; wallet and trading
	// settings are not validated so the tool works before full setup.
	cfg, err := config.Load(configPath)
	if err != nil {
		defaults := config.Defaults()
		cfg = &defaults
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	gamma := polymarket.NewGammaClient(cfg.Polymarket.GammaHost)
	target := slugFromArg(arg)
	var market domain.Market
	if strings.HasPrefix(target, "0x") {
		market, err = gamma.GetMarketByCondition(ctx, target)
	} else {
		market, err = gamma.GetMarketBySlug(ctx, target)
	}
	if err != nil {
		return fmt.Errorf("resolve %q: %w", target, err)
	}

	fmt.Printf("question:     %s\n", market.Question)
	fmt.Printf("condition:    %s\n", market.ConditionID)
	fmt.Printf("token (%s):   %s\n", side, market.TokenFor(domain.TradeSide(side)))
	fmt.Printf("tick size:    %g\n", market.TickSize)

	entry := config.MarketEntry{
		Slug:        market.Slug,
		ConditionID: market.ConditionID,
		TokenID:     market.TokenFor(domain.TradeSide(side)),
		Side:        side,
		Question:    market.Question,
		MaxPosition: maxPosition,
		TickSize:    tickSize,
		Disabled:    disabled,
	}

	entries, err := config.LoadMarkets(cfg.MarketsPath)
	if err != nil {
		return err
	}
	replaced := false
	for i, e := range entries {
		if e.ConditionID == market.ConditionID && e.Side == side {
			entries[i] = entry
			replaced = true
			break
		}
	}
	if !replaced {
		entries = append(entries, entry)
	}

	if err := config.SaveMarkets(cfg.MarketsPath, entries); err != nil {
		return err
	}

	verb := "added"
	if replaced {
		verb = "updated"
	}
	fmt.Printf("%s %s (%s) in %s\n", verb, market.ConditionID, side, cfg.MarketsPath)
	if !market.Active || !market.AcceptingOrders {
		fmt.Println("warning: market is not currently accepting orders")
	}
	return nil
}

// slugFromArg extracts the slug from a full polymarket.com URL, or returns
// the argument unchanged.
func slugFromArg(arg string) string {
	s := strings.TrimSuffix(arg, "/")
	if i := strings.Index(s, "polymarket.com/"); i >= 0 {
		s = s[i+len("polymarket.com/"):]
		// URLs look like event/<slug> or market/<slug>.
		if j := strings.IndexByte(s, '/'); j >= 0 {
			s = s[j+1:]
		}
		if j := strings.IndexByte(s, '?'); j >= 0 {
			s = s[:j]
		}
	}
	return s
}
