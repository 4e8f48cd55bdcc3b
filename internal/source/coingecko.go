package source

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"
)

// CoinGeckoClient fetches USD spot prices from the CoinGecko simple-price API.
type CoinGeckoClient struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

// CoinGeckoOption configures a CoinGeckoClient.
type CoinGeckoOption func(*CoinGeckoClient)

// NewCoinGeckoClient creates a new CoinGecko client.
func NewCoinGeckoClient(baseURL string, opts ...CoinGeckoOption) *CoinGeckoClient {
	c := &CoinGeckoClient{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		logger: slog.Default(),
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// WithCoinGeckoTimeout sets the HTTP client timeout.
func WithCoinGeckoTimeout(d time.Duration) CoinGeckoOption {
	return func(c *CoinGeckoClient) {
		c.httpClient.Timeout = d
	}
}

// WithCoinGeckoLogger sets the logger.
func WithCoinGeckoLogger(logger *slog.Logger) CoinGeckoOption {
	return func(c *CoinGeckoClient) {
		c.logger = logger
	}
}

// WithCoinGeckoHTTPClient sets a custom HTTP client.
func WithCoinGeckoHTTPClient(hc *http.Client) CoinGeckoOption {
	return func(c *CoinGeckoClient) {
		c.httpClient = hc
	}
}

// FetchPrice returns the current USD price for a CoinGecko coin id.
func (c *CoinGeckoClient) FetchPrice(ctx context.Context, assetID string) (float64, error) {
	query := url.Values{}
	query.Set("ids", assetID)
	query.Set("vs_currencies", "usd")

	fullURL := c.baseURL + "/simple/price?" + query.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
	if err != nil {
		return 0, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode >= 400 {
		return 0, &APIError{
			StatusCode: resp.StatusCode,
			Message:    http.StatusText(resp.StatusCode),
			Body:       body,
		}
	}

	// Response shape: {"bitcoin": {"usd": 65000.0}}
	var parsed map[string]map[string]float64
	if err := json.Unmarshal(body, &parsed); err != nil {
		return 0, fmt.Errorf("unmarshal response: %w", err)
	}

	usd, ok := parsed[assetID]["usd"]
	if !ok {
		return 0, fmt.Errorf("no usd price for %q in response", assetID)
	}

	c.logger.Debug("coingecko price fetched", "asset", assetID, "price", usd)
	return usd, nil
}
