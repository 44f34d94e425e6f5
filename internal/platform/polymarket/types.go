// Package polymarket contains the REST clients for the Polymarket CLOB,
// Gamma, and Data APIs.
package polymarket

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/quoterlabs/polyquoter/internal/domain"
)

// flexBool unmarshals from JSON bool or string ("true"/"false") so API
// responses work whether a flag is sent as bool or string.
type flexBool bool

func (f *flexBool) UnmarshalJSON(data []byte) error {
	var b bool
	if err := json.Unmarshal(data, &b); err == nil {
		*f = flexBool(b)
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	*f = flexBool(strings.EqualFold(s, "true") || s == "1")
	return nil
}

// --------------------------------------------------------------------------
// CLOB API DTOs
// --------------------------------------------------------------------------

// APIBookLevel is a single bid or ask level. The CLOB sends prices and sizes
// as decimal strings.
type APIBookLevel struct {
	Price string `json:"price"`
	Size  string `json:"size"`
}

// APIBook is the response of GET /book.
type APIBook struct {
	Market    string         `json:"market"`
	AssetID   string         `json:"asset_id"`
	Bids      []APIBookLevel `json:"bids"`
	Asks      []APIBookLevel `json:"asks"`
	Timestamp string         `json:"timestamp"`
	Hash      string         `json:"hash"`
}

// ToSnapshot converts an APIBook to a domain.BookSnapshot. tick is attached
// by the caller; the book endpoint does not report it.
func (b *APIBook) ToSnapshot(tick float64) domain.BookSnapshot {
	snap := domain.BookSnapshot{
		TokenID:  b.AssetID,
		TickSize: tick,
		Bids:     make([]domain.PriceLevel, 0, len(b.Bids)),
		Asks:     make([]domain.PriceLevel, 0, len(b.Asks)),
	}
	for _, lvl := range b.Bids {
		p, _ := strconv.ParseFloat(lvl.Price, 64)
		s, _ := strconv.ParseFloat(lvl.Size, 64)
		snap.Bids = append(snap.Bids, domain.PriceLevel{Price: p, Size: s})
	}
	for _, lvl := range b.Asks {
		p, _ := strconv.ParseFloat(lvl.Price, 64)
		s, _ := strconv.ParseFloat(lvl.Size, 64)
		snap.Asks = append(snap.Asks, domain.PriceLevel{Price: p, Size: s})
	}

	if ms, err := strconv.ParseInt(b.Timestamp, 10, 64); err == nil {
		snap.Timestamp = time.UnixMilli(ms)
	} else {
		snap.Timestamp = time.Now()
	}
	return snap
}

// APIOrder represents an open order as returned by the CLOB API.
type APIOrder struct {
	ID           string `json:"id"`
	Status       string `json:"status"`
	Market       string `json:"market"`
	AssetID      string `json:"asset_id"`
	Side         string `json:"side"` // "BUY" or "SELL"
	Price        string `json:"price"`
	OriginalSize string `json:"original_size"`
	SizeMatched  string `json:"size_matched"`
	CreatedAt    int64  `json:"created_at"` // Unix seconds
}

// ToDomainOrder converts an APIOrder to a domain.Order.
func (a *APIOrder) ToDomainOrder() domain.Order {
	o := domain.Order{
		ID:       a.ID,
		MarketID: a.Market,
		TokenID:  a.AssetID,
	}
	switch a.Side {
	case "BUY":
		o.Side = domain.OrderSideBuy
	case "SELL":
		o.Side = domain.OrderSideSell
	}
	o.Price, _ = strconv.ParseFloat(a.Price, 64)
	o.Size, _ = strconv.ParseFloat(a.OriginalSize, 64)
	o.SizeMatched, _ = strconv.ParseFloat(a.SizeMatched, 64)
	if a.CreatedAt > 0 {
		o.CreatedAt = time.Unix(a.CreatedAt, 0)
	}
	return o
}

// APIOrderResult is the response from placing an order via the CLOB API.
type APIOrderResult struct {
	Success     bool   `json:"success"`
	ErrorMsg    string `json:"errorMsg,omitempty"`
	OrderID     string `json:"orderID,omitempty"`
	Status      string `json:"status,omitempty"`
	TransactID  string `json:"transactID,omitempty"`
	ShouldRetry bool   `json:"shouldRetry,omitempty"`
}

// ToDomainOrderResult converts an APIOrderResult to a domain.OrderResult.
func (r *APIOrderResult) ToDomainOrderResult() domain.OrderResult {
	return domain.OrderResult{
		Success:     r.Success,
		OrderID:     r.OrderID,
		Status:      r.Status,
		Message:     r.ErrorMsg,
		ShouldRetry: r.ShouldRetry,
	}
}

// APIClobMarket is the response of GET /markets/{condition_id} on the CLOB
// API. Used to resolve tick size, minimum order size, and token IDs.
type APIClobMarket struct {
	ConditionID     string         `json:"condition_id"`
	Question        string         `json:"question"`
	MarketSlug      string         `json:"market_slug"`
	Active          flexBool       `json:"active"`
	Closed          bool           `json:"closed"`
	AcceptingOrders bool           `json:"accepting_orders"`
	MinimumOrder    float64        `json:"minimum_order_size"`
	MinimumTick     float64        `json:"minimum_tick_size"`
	NegRisk         bool           `json:"neg_risk"`
	Tokens          []APIClobToken `json:"tokens"`
}

// APIClobToken is a token entry inside the CLOB market response.
type APIClobToken struct {
	TokenID string `json:"token_id"`
	Outcome string `json:"outcome"`
	Winner  bool   `json:"winner"`
}

// ToDomainMarket converts an APIClobMarket to a domain.Market.
func (m *APIClobMarket) ToDomainMarket() domain.Market {
	dm := domain.Market{
		ConditionID:     m.ConditionID,
		Question:        m.Question,
		Slug:            m.MarketSlug,
		TickSize:        m.MinimumTick,
		MinOrderSize:    m.MinimumOrder,
		NegRisk:         m.NegRisk,
		Active:          bool(m.Active) && !m.Closed,
		AcceptingOrders: m.AcceptingOrders,
	}
	for _, tok := range m.Tokens {
		switch strings.ToLower(tok.Outcome) {
		case "yes":
			dm.YesTokenID = tok.TokenID
		case "no":
			dm.NoTokenID = tok.TokenID
		}
	}
	return dm
}

// --------------------------------------------------------------------------
// Gamma API DTOs
// --------------------------------------------------------------------------

// APIGammaMarket represents a market as returned by the Gamma API. Gamma
// uses camelCase keys and JSON-encodes nested arrays as strings.
type APIGammaMarket struct {
	ID              string   `json:"id"`
	Question        string   `json:"question"`
	ConditionID     string   `json:"conditionId"`
	Slug            string   `json:"slug"`
	Active          flexBool `json:"active"`
	Closed          bool     `json:"closed"`
	AcceptingOrders bool     `json:"acceptingOrders"`
	NegRisk         bool     `json:"negRisk"`
	Outcomes        string   `json:"outcomes"`     // e.g. "[\"Yes\",\"No\"]"
	ClobTokenIDs    string   `json:"clobTokenIds"` // e.g. "[\"123\",\"456\"]"
	MinTickSize     float64  `json:"orderPriceMinTickSize"`
	MinOrderSize    float64  `json:"orderMinSize"`
}

// ToDomainMarket converts an APIGammaMarket to a domain.Market. Token IDs
// are matched to outcomes positionally; Gamma serialises both lists in the
// same order.
func (m *APIGammaMarket) ToDomainMarket() domain.Market {
	dm := domain.Market{
		ConditionID:     m.ConditionID,
		Question:        m.Question,
		Slug:            m.Slug,
		TickSize:        m.MinTickSize,
		MinOrderSize:    m.MinOrderSize,
		NegRisk:         m.NegRisk,
		Active:          bool(m.Active) && !m.Closed,
		AcceptingOrders: m.AcceptingOrders,
	}

	var outcomes, tokenIDs []string
	_ = json.Unmarshal([]byte(m.Outcomes), &outcomes)
	_ = json.Unmarshal([]byte(m.ClobTokenIDs), &tokenIDs)
	for i, out := range outcomes {
		if i >= len(tokenIDs) {
			break
		}
		switch strings.ToLower(out) {
		case "yes":
			dm.YesTokenID = tokenIDs[i]
		case "no":
			dm.NoTokenID = tokenIDs[i]
		}
	}
	return dm
}

// --------------------------------------------------------------------------
// Data API DTOs
// --------------------------------------------------------------------------

// APIPosition represents a user position as returned by the Data API.
type APIPosition struct {
	Asset       string  `json:"asset"` // token ID
	ConditionID string  `json:"conditionId"`
	Size        float64 `json:"size"`
	AvgPrice    float64 `json:"avgPrice"`
	CurPrice    float64 `json:"curPrice"`
	Redeemable  bool    `json:"redeemable"`
}
