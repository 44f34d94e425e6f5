package polymarket

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/quoterlabs/polyquoter/internal/domain"
)

// DataClient is the REST client for the Polymarket Data API, which exposes
// settled on-chain state such as user positions.
type DataClient struct {
	baseURL    string
	httpClient *http.Client
}

// NewDataClient creates a new Data API client.
//
// baseURL is the Data API root, e.g. "https://data-api.polymarket.com".
func NewDataClient(baseURL string) *DataClient {
	return &DataClient{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// GetPosition returns the user's on-chain position in a single token,
// zero-valued when the user holds none. user is the funder address.
func (d *DataClient) GetPosition(ctx context.Context, user, conditionID, tokenID string) (domain.Position, error) {
	positions, err := d.GetPositions(ctx, user, conditionID)
	if err != nil {
		return domain.Position{}, err
	}
	for _, p := range positions {
		if p.Asset == tokenID {
			return domain.Position{Size: p.Size, AvgCost: p.AvgPrice}, nil
		}
	}
	return domain.Position{}, nil
}

// GetPositions returns the user's positions, optionally filtered to one
// market (condition ID).
func (d *DataClient) GetPositions(ctx context.Context, user, conditionID string) ([]APIPosition, error) {
	params := url.Values{"user": {user}}
	if conditionID != "" {
		params.Set("market", conditionID)
	}
	path := "/positions?" + params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, d.baseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("polymarket/data: create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("polymarket/data: http request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("polymarket/data: read response: %w", err)
	}

	if err := checkHTTPStatus(resp.StatusCode, body); err != nil {
		return nil, fmt.Errorf("polymarket/data: get positions: %w", err)
	}

	var positions []APIPosition
	if err := json.Unmarshal(body, &positions); err != nil {
		return nil, fmt.Errorf("polymarket/data: decode positions: %w", err)
	}
	return positions, nil
}
