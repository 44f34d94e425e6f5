package config

import (
	"bytes"
	"fmt"
	"os"
	"strings"

	"github.com/BurntSushi/toml"
)

// MarketEntry is one quoted market in the markets file. The addmarket tool
// resolves the slug against the Gamma API and fills in the identifier fields;
// the agent only reads them.
type MarketEntry struct {
	Slug        string  `toml:"slug"`
	ConditionID string  `toml:"condition_id"`
	TokenID     string  `toml:"token_id"`
	Side        string  `toml:"side"` // "yes" or "no"
	Question    string  `toml:"question,omitempty"`
	MaxPosition float64 `toml:"max_position"`
	TickSize    float64 `toml:"tick_size,omitempty"`
	Disabled    bool    `toml:"disabled,omitempty"`
}

type marketsFile struct {
	Markets []MarketEntry `toml:"markets"`
}

// LoadMarkets reads the markets file at path. A missing file is not an
// error; it returns an empty list so a fresh deployment can start before any
// market has been added.
func LoadMarkets(path string) ([]MarketEntry, error) {
	var f marketsFile
	if _, err := toml.DecodeFile(path, &f); err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("config: load markets %s: %w", path, err)
	}
	if err := validateMarkets(f.Markets); err != nil {
		return nil, err
	}
	return f.Markets, nil
}

// SaveMarkets writes the full market list back to path, replacing the file.
func SaveMarkets(path string, markets []MarketEntry) error {
	if err := validateMarkets(markets); err != nil {
		return err
	}
	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(marketsFile{Markets: markets}); err != nil {
		return fmt.Errorf("config: encode markets: %w", err)
	}
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("config: write markets %s: %w", path, err)
	}
	return nil
}

func validateMarkets(markets []MarketEntry) error {
	var errs []string
	seen := make(map[string]bool, len(markets))
	for i, m := range markets {
		if m.Slug == "" && m.ConditionID == "" {
			errs = append(errs, fmt.Sprintf("markets[%d]: slug or condition_id required", i))
		}
		if m.Side != "yes" && m.Side != "no" {
			errs = append(errs, fmt.Sprintf("markets[%d] (%s): side must be \"yes\" or \"no\", got %q", i, m.Slug, m.Side))
		}
		if m.MaxPosition <= 0 {
			errs = append(errs, fmt.Sprintf("markets[%d] (%s): max_position must be > 0", i, m.Slug))
		}
		key := m.ConditionID + "/" + m.Side
		if m.ConditionID != "" && seen[key] {
			errs = append(errs, fmt.Sprintf("markets[%d] (%s): duplicate condition_id/side", i, m.Slug))
		}
		seen[key] = true
	}
	if len(errs) > 0 {
		return fmt.Errorf("markets validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
