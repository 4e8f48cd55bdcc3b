package source

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// DeFiLlamaClient fetches protocol TVL from the DeFiLlama API.
type DeFiLlamaClient struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewDeFiLlamaClient creates a new DeFiLlama client.
func NewDeFiLlamaClient(baseURL string, logger *slog.Logger) *DeFiLlamaClient {
	if logger == nil {
		logger = slog.Default()
	}
	return &DeFiLlamaClient{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		logger: logger,
	}
}

// FetchTVL returns the TVL payload for a protocol, normalized to an
// object. Scalar responses become {"tvl": <value>}, arrays become
// {"items": [...]}, non-numeric text becomes {"tvl_raw": "..."}.
func (c *DeFiLlamaClient) FetchTVL(ctx context.Context, protocol string) (map[string]any, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/tvl/"+protocol, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode >= 400 {
		return nil, &APIError{
			StatusCode: resp.StatusCode,
			Message:    http.StatusText(resp.StatusCode),
			Body:       body,
		}
	}

	return normalizeTVL(body), nil
}

// normalizeTVL shapes an arbitrary TVL response into an object.
func normalizeTVL(body []byte) map[string]any {
	var parsed any
	if err := json.Unmarshal(body, &parsed); err != nil {
		// Not JSON: try scalar text.
		text := strings.TrimSpace(string(body))
		if v, err := strconv.ParseFloat(text, 64); err == nil {
			return map[string]any{"tvl": v}
		}
		return map[string]any{"tvl_raw": text}
	}

	switch v := parsed.(type) {
	case float64:
		return map[string]any{"tvl": v}
	case string:
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return map[string]any{"tvl": f}
		}
		return map[string]any{"tvl_raw": v}
	case []any:
		return map[string]any{"items": v}
	case map[string]any:
		if s, ok := v["tvl"].(string); ok {
			if f, err := strconv.ParseFloat(s, 64); err == nil {
				v["tvl"] = f
			}
		}
		return v
	default:
		return map[string]any{"tvl_raw": strings.TrimSpace(string(body))}
	}
}
