// Package polymarket is a read-only REST client for the Polymarket CLOB and
// Gamma APIs. The engine never places orders; it only needs prices, books,
// and market metadata.
package polymarket

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"ghostarb/internal/domain"
)

// Client queries the Polymarket public market-data endpoints.
type Client struct {
	clobURL    string
	gammaURL   string
	httpClient *http.Client
}

// NewClient creates a Client for the given API roots, e.g.
// "https://clob.polymarket.com" and "https://gamma-api.polymarket.com".
func NewClient(clobURL, gammaURL string) *Client {
	return &Client{
		clobURL:  clobURL,
		gammaURL: gammaURL,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// GetPrice returns the current best buy price for a token.
func (c *Client) GetPrice(ctx context.Context, tokenID string) (float64, error) {
	params := url.Values{}
	params.Set("token_id", tokenID)
	params.Set("side", "buy")

	body, err := c.doGet(ctx, c.clobURL+"/price?"+params.Encode())
	if err != nil {
		return 0, fmt.Errorf("polymarket: get price: %w", err)
	}

	var resp APIPrice
	if err := json.Unmarshal(body, &resp); err != nil {
		return 0, fmt.Errorf("polymarket: decode price: %w", err)
	}
	return resp.Value()
}

// GetMidpoint returns the bid/ask midpoint for a token.
func (c *Client) GetMidpoint(ctx context.Context, tokenID string) (float64, error) {
	params := url.Values{}
	params.Set("token_id", tokenID)

	body, err := c.doGet(ctx, c.clobURL+"/midpoint?"+params.Encode())
	if err != nil {
		return 0, fmt.Errorf("polymarket: get midpoint: %w", err)
	}

	var resp APIMidpoint
	if err := json.Unmarshal(body, &resp); err != nil {
		return 0, fmt.Errorf("polymarket: decode midpoint: %w", err)
	}
	return resp.Value()
}

// GetBook returns the current resting-order snapshot for a token.
func (c *Client) GetBook(ctx context.Context, tokenID string) (domain.OrderbookSnapshot, error) {
	params := url.Values{}
	params.Set("token_id", tokenID)

	body, err := c.doGet(ctx, c.clobURL+"/book?"+params.Encode())
	if err != nil {
		return domain.OrderbookSnapshot{}, fmt.Errorf("polymarket: get book: %w", err)
	}

	var resp APIBook
	if err := json.Unmarshal(body, &resp); err != nil {
		return domain.OrderbookSnapshot{}, fmt.Errorf("polymarket: decode book: %w", err)
	}
	return resp.ToDomain(tokenID), nil
}

// GetMarket returns metadata for the market holding the given token.
func (c *Client) GetMarket(ctx context.Context, tokenID string) (domain.MarketInfo, error) {
	params := url.Values{}
	params.Set("clob_token_ids", tokenID)

	body, err := c.doGet(ctx, c.gammaURL+"/markets?"+params.Encode())
	if err != nil {
		return domain.MarketInfo{}, fmt.Errorf("polymarket: get market: %w", err)
	}

	var markets []APIMarket
	if err := json.Unmarshal(body, &markets); err != nil {
		return domain.MarketInfo{}, fmt.Errorf("polymarket: decode markets: %w", err)
	}
	if len(markets) == 0 {
		return domain.MarketInfo{}, fmt.Errorf("polymarket: token %s: %w", tokenID, domain.ErrNotFound)
	}
	return markets[0].ToDomain(tokenID), nil
}

func (c *Client) doGet(ctx context.Context, fullURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if err := checkHTTPStatus(resp.StatusCode, body); err != nil {
		return nil, err
	}
	return body, nil
}

func checkHTTPStatus(statusCode int, body []byte) error {
	if statusCode >= 200 && statusCode < 300 {
		return nil
	}
	if statusCode == http.StatusNotFound {
		return fmt.Errorf("%w: %s", domain.ErrNotFound, string(body))
	}
	return fmt.Errorf("HTTP %d: %s", statusCode, string(body))
}
