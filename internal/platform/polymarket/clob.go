package polymarket

import (
	"bytes"
	"context"
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"math/big"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/quoterlabs/polyquoter/internal/crypto"
	"github.com/quoterlabs/polyquoter/internal/domain"
)

// zeroAddress is the public taker for open limit orders.
const zeroAddress = "0x0000000000000000000000000000000000000000"

// usdcDecimals scales human amounts to the 6-decimal fixed point the
// exchange settles in. Both USDC and outcome tokens use 6 decimals.
const usdcDecimals = 1e6

// ClobClient is the REST client for the Polymarket CLOB (Central Limit
// Order Book) API. It handles book queries, order placement, cancellation,
// and balance lookups.
type ClobClient struct {
	baseURL    string
	httpClient *http.Client
	signer     *crypto.Signer
	hmacAuth   *crypto.HMACAuth

	// funder is the address holding collateral: the Safe address for
	// signature type 2, the signer address for EOA.
	funder        string
	signatureType int
}

// NewClobClient creates a new CLOB REST client.
//
// baseURL is the CLOB API root, e.g. "https://clob.polymarket.com".
// funder may be empty, in which case the signer address is used.
// hmac may be nil; call DeriveAPIKey (or SetCredentials) before any
// authenticated request.
func NewClobClient(baseURL string, signer *crypto.Signer, hmac *crypto.HMACAuth, funder string, signatureType int) *ClobClient {
	if funder == "" && signer != nil {
		funder = signer.Address().Hex()
	}
	return &ClobClient{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		signer:        signer,
		hmacAuth:      hmac,
		funder:        funder,
		signatureType: signatureType,
	}
}

// SetCredentials installs pre-provisioned HMAC credentials, bypassing the
// derive-api-key flow.
func (c *ClobClient) SetCredentials(auth *crypto.HMACAuth) {
	c.hmacAuth = auth
}

// GetOrderBook fetches the current book for a token. The returned snapshot
// carries the market's tick size, resolved with a separate call. The CLOB
// serves no book for closed or resolved markets, so a 404 here surfaces as
// domain.ErrMarketUnavailable rather than ErrNotFound.
func (c *ClobClient) GetOrderBook(ctx context.Context, tokenID string, tick float64) (domain.BookSnapshot, error) {
	path := "/book?" + url.Values{"token_id": {tokenID}}.Encode()

	body, err := c.doPublicGet(ctx, path)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return domain.BookSnapshot{}, fmt.Errorf("polymarket/clob: no book for %s: %w", tokenID, domain.ErrMarketUnavailable)
		}
		return domain.BookSnapshot{}, fmt.Errorf("polymarket/clob: get book %s: %w", tokenID, err)
	}

	var book APIBook
	if err := json.Unmarshal(body, &book); err != nil {
		return domain.BookSnapshot{}, fmt.Errorf("polymarket/clob: decode book: %w", err)
	}
	return book.ToSnapshot(tick), nil
}

// GetTickSize returns the minimum price increment for a token.
func (c *ClobClient) GetTickSize(ctx context.Context, tokenID string) (float64, error) {
	path := "/tick-size?" + url.Values{"token_id": {tokenID}}.Encode()

	body, err := c.doPublicGet(ctx, path)
	if err != nil {
		return 0, fmt.Errorf("polymarket/clob: get tick size %s: %w", tokenID, err)
	}

	var resp struct {
		MinimumTickSize float64 `json:"minimum_tick_size"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return 0, fmt.Errorf("polymarket/clob: decode tick size: %w", err)
	}
	if resp.MinimumTickSize <= 0 {
		return 0, fmt.Errorf("polymarket/clob: token %s reports tick size %v", tokenID, resp.MinimumTickSize)
	}
	return resp.MinimumTickSize, nil
}

// GetMarket returns the CLOB's view of a market by condition ID.
func (c *ClobClient) GetMarket(ctx context.Context, conditionID string) (domain.Market, error) {
	path := "/markets/" + url.PathEscape(conditionID)

	body, err := c.doPublicGet(ctx, path)
	if err != nil {
		return domain.Market{}, fmt.Errorf("polymarket/clob: get market %s: %w", conditionID, err)
	}

	var m APIClobMarket
	if err := json.Unmarshal(body, &m); err != nil {
		return domain.Market{}, fmt.Errorf("polymarket/clob: decode market: %w", err)
	}
	return m.ToDomainMarket(), nil
}

// GetOpenOrders returns the wallet's open orders, optionally filtered to a
// single market (condition ID).
func (c *ClobClient) GetOpenOrders(ctx context.Context, conditionID string) ([]domain.Order, error) {
	path := "/data/orders"
	if conditionID != "" {
		path += "?" + url.Values{"market": {conditionID}}.Encode()
	}

	respBody, err := c.doAuthenticatedRequest(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, fmt.Errorf("polymarket/clob: get open orders: %w", err)
	}

	var apiOrders []APIOrder
	if err := json.Unmarshal(respBody, &apiOrders); err != nil {
		return nil, fmt.Errorf("polymarket/clob: decode orders: %w", err)
	}

	orders := make([]domain.Order, 0, len(apiOrders))
	for i := range apiOrders {
		orders = append(orders, apiOrders[i].ToDomainOrder())
	}
	return orders, nil
}

// PostOrder signs and submits a limit order for tokenID. negRisk must match
// the market's settlement contract or the exchange rejects the signature.
func (c *ClobClient) PostOrder(ctx context.Context, tokenID string, d domain.DesiredOrder, negRisk bool) (domain.OrderResult, error) {
	payload, err := c.buildOrderPayload(tokenID, d)
	if err != nil {
		return domain.OrderResult{}, err
	}

	sig, err := c.signer.SignOrder(payload, negRisk)
	if err != nil {
		return domain.OrderResult{}, fmt.Errorf("polymarket/clob: %w: %s", domain.ErrSigningFailed, err)
	}

	body := map[string]any{
		"order": map[string]any{
			"salt":          payload.Salt,
			"maker":         payload.Maker,
			"signer":        payload.Signer,
			"taker":         payload.Taker,
			"tokenId":       payload.TokenID,
			"makerAmount":   payload.MakerAmount,
			"takerAmount":   payload.TakerAmount,
			"expiration":    payload.Expiration,
			"nonce":         payload.Nonce,
			"feeRateBps":    payload.FeeRateBps,
			"side":          string(d.Side),
			"signatureType": payload.SignatureType,
			"signature":     sig,
		},
		"owner":     c.hmacKey(),
		"orderType": "GTC",
	}

	respBody, err := c.doAuthenticatedRequest(ctx, http.MethodPost, "/order", body)
	if err != nil {
		return domain.OrderResult{}, fmt.Errorf("polymarket/clob: post order: %w", err)
	}

	var apiResult APIOrderResult
	if err := json.Unmarshal(respBody, &apiResult); err != nil {
		return domain.OrderResult{}, fmt.Errorf("polymarket/clob: decode order result: %w", err)
	}

	result := apiResult.ToDomainOrderResult()
	if !result.Success {
		if closedMarketMessage(result.Message) {
			return result, fmt.Errorf("polymarket/clob: %w: %s", domain.ErrMarketUnavailable, result.Message)
		}
		return result, fmt.Errorf("polymarket/clob: %w: %s", domain.ErrInvalidOrder, result.Message)
	}
	return result, nil
}

// closedMarketMessage reports whether an order rejection means the market
// itself is gone rather than the order being malformed. The CLOB signals
// this only through the error text.
func closedMarketMessage(msg string) bool {
	m := strings.ToLower(msg)
	return strings.Contains(m, "not accepting orders") ||
		strings.Contains(m, "market is closed") ||
		strings.Contains(m, "market closed") ||
		strings.Contains(m, "market resolved") ||
		strings.Contains(m, "market is resolved")
}

// CancelOrder cancels a single order by its ID. Cancelling an order the
// exchange no longer knows returns domain.ErrNotFound; callers treat that as
// already-cancelled.
func (c *ClobClient) CancelOrder(ctx context.Context, orderID string) error {
	body := map[string]any{"orderID": orderID}

	respBody, err := c.doAuthenticatedRequest(ctx, http.MethodDelete, "/order", body)
	if err != nil {
		return fmt.Errorf("polymarket/clob: cancel order %s: %w", orderID, err)
	}

	var result struct {
		Canceled    []string          `json:"canceled"`
		NotCanceled map[string]string `json:"not_canceled"`
	}
	if err := json.Unmarshal(respBody, &result); err != nil {
		return fmt.Errorf("polymarket/clob: decode cancel response: %w", err)
	}
	if reason, ok := result.NotCanceled[orderID]; ok {
		return fmt.Errorf("polymarket/clob: cancel %s: %w: %s", orderID, domain.ErrNotFound, reason)
	}
	return nil
}

// CancelAll cancels every open order for the authenticated wallet.
func (c *ClobClient) CancelAll(ctx context.Context) error {
	if _, err := c.doAuthenticatedRequest(ctx, http.MethodDelete, "/cancel-all", nil); err != nil {
		return fmt.Errorf("polymarket/clob: cancel all: %w", err)
	}
	return nil
}

// GetBalance returns the available USDC collateral.
func (c *ClobClient) GetBalance(ctx context.Context) (float64, error) {
	path := "/balance-allowance?" + url.Values{
		"asset_type":     {"COLLATERAL"},
		"signature_type": {strconv.Itoa(c.signatureType)},
	}.Encode()

	respBody, err := c.doAuthenticatedRequest(ctx, http.MethodGet, path, nil)
	if err != nil {
		return 0, fmt.Errorf("polymarket/clob: get balance: %w", err)
	}

	var resp struct {
		Balance string `json:"balance"`
	}
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return 0, fmt.Errorf("polymarket/clob: decode balance: %w", err)
	}

	raw, err := strconv.ParseFloat(resp.Balance, 64)
	if err != nil {
		return 0, fmt.Errorf("polymarket/clob: parse balance %q: %w", resp.Balance, err)
	}
	return raw / usdcDecimals, nil
}

// DeriveAPIKey performs the CLOB auth flow to obtain an HMAC API key. It
// signs a ClobAuth EIP-712 message and sends it with L1 headers to the
// derive-api-key endpoint. L1 requires POLY_ADDRESS, POLY_SIGNATURE,
// POLY_TIMESTAMP, POLY_NONCE. On success it populates the client's hmacAuth
// field.
func (c *ClobClient) DeriveAPIKey(ctx context.Context) error {
	address := c.signer.Address().Hex()
	timestamp := time.Now().Unix()
	nonce := int64(0)

	sig, err := c.signer.SignAuthMessage(address, timestamp, nonce)
	if err != nil {
		return fmt.Errorf("polymarket/clob: sign auth message: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/auth/derive-api-key", nil)
	if err != nil {
		return fmt.Errorf("polymarket/clob: create auth request: %w", err)
	}
	req.Header.Set("POLY_ADDRESS", address)
	req.Header.Set("POLY_SIGNATURE", sig)
	req.Header.Set("POLY_TIMESTAMP", fmt.Sprintf("%d", timestamp))
	req.Header.Set("POLY_NONCE", fmt.Sprintf("%d", nonce))

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("polymarket/clob: auth request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("polymarket/clob: read auth response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("polymarket/clob: auth failed (HTTP %d): %s", resp.StatusCode, string(respBody))
	}

	var authResp struct {
		APIKey     string `json:"apiKey"`
		Secret     string `json:"secret"`
		Passphrase string `json:"passphrase"`
	}
	if err := json.Unmarshal(respBody, &authResp); err != nil {
		return fmt.Errorf("polymarket/clob: decode auth response: %w", err)
	}

	c.hmacAuth = &crypto.HMACAuth{
		Key:        authResp.APIKey,
		Secret:     authResp.Secret,
		Passphrase: authResp.Passphrase,
	}
	return nil
}

// Credentials returns the active HMAC credentials, nil until derived.
func (c *ClobClient) Credentials() *crypto.HMACAuth {
	return c.hmacAuth
}

// --------------------------------------------------------------------------
// Internal helpers
// --------------------------------------------------------------------------

// buildOrderPayload converts a desired order into the signed amount
// representation. Buys spend collateral for tokens; sells the reverse. All
// amounts are scaled to 6-decimal fixed point.
func (c *ClobClient) buildOrderPayload(tokenID string, d domain.DesiredOrder) (crypto.OrderPayload, error) {
	if d.Price <= 0 || d.Size <= 0 {
		return crypto.OrderPayload{}, fmt.Errorf("polymarket/clob: %w: price=%v size=%v", domain.ErrInvalidOrder, d.Price, d.Size)
	}

	salt, err := rand.Int(rand.Reader, big.NewInt(math.MaxInt64))
	if err != nil {
		return crypto.OrderPayload{}, fmt.Errorf("polymarket/clob: generate salt: %w", err)
	}

	tokenAmt := strconv.FormatInt(int64(math.Round(d.Size*usdcDecimals)), 10)
	usdcAmt := strconv.FormatInt(int64(math.Round(d.Size*d.Price*usdcDecimals)), 10)

	payload := crypto.OrderPayload{
		Salt:          salt.String(),
		Maker:         c.funder,
		Signer:        c.signer.Address().Hex(),
		Taker:         zeroAddress,
		TokenID:       tokenID,
		Expiration:    "0",
		Nonce:         "0",
		FeeRateBps:    "0",
		SignatureType: c.signatureType,
	}
	if d.Side == domain.OrderSideBuy {
		payload.Side = 0
		payload.MakerAmount = usdcAmt
		payload.TakerAmount = tokenAmt
	} else {
		payload.Side = 1
		payload.MakerAmount = tokenAmt
		payload.TakerAmount = usdcAmt
	}
	return payload, nil
}

func (c *ClobClient) hmacKey() string {
	if c.hmacAuth == nil {
		return ""
	}
	return c.hmacAuth.Key
}

// doPublicGet sends an unauthenticated GET request against the CLOB API.
func (c *ClobClient) doPublicGet(ctx context.Context, path string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if err := checkHTTPStatus(resp.StatusCode, body); err != nil {
		return nil, err
	}
	return body, nil
}

// doAuthenticatedRequest builds, signs (HMAC), sends, and reads an HTTP
// request against the CLOB API. It returns the raw response body.
func (c *ClobClient) doAuthenticatedRequest(ctx context.Context, method, path string, body any) ([]byte, error) {
	var bodyReader io.Reader
	var bodyStr string

	if body != nil {
		jsonBody, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshal request body: %w", err)
		}
		bodyStr = string(jsonBody)
		bodyReader = bytes.NewReader(jsonBody)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	if c.hmacAuth == nil {
		return nil, fmt.Errorf("%w: no API credentials (call DeriveAPIKey)", domain.ErrUnauthorized)
	}
	address := c.signer.Address().Hex()
	for k, v := range c.hmacAuth.L2Headers(address, method, path, bodyStr) {
		req.Header.Set(k, v)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if err := checkHTTPStatus(resp.StatusCode, respBody); err != nil {
		return nil, err
	}
	return respBody, nil
}

// checkHTTPStatus maps non-2xx status codes to appropriate domain errors.
func checkHTTPStatus(statusCode int, body []byte) error {
	if statusCode >= 200 && statusCode < 300 {
		return nil
	}

	bodyStr := string(body)
	switch statusCode {
	case http.StatusNotFound:
		return fmt.Errorf("%w: %s", domain.ErrNotFound, bodyStr)
	case http.StatusUnauthorized, http.StatusForbidden:
		return fmt.Errorf("%w: %s", domain.ErrUnauthorized, bodyStr)
	case http.StatusTooManyRequests:
		return fmt.Errorf("%w: %s", domain.ErrRateLimited, bodyStr)
	default:
		return fmt.Errorf("HTTP %d: %s", statusCode, bodyStr)
	}
}
