package source

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

// Errors
var (
	// ErrFetchFailed marks an exhausted fetch: all attempts against the
	// upstream failed. Callers treat it as "no observation", not fatal.
	ErrFetchFailed = errors.New("fetch failed after retries")

	// ErrNoSource means no client is bound for the asset's source kind.
	ErrNoSource = errors.New("no source client for asset")
)

// Client fetches a single asset's current price from one upstream.
// Implementations do a single request/response with no retry of their own.
type Client interface {
	FetchPrice(ctx context.Context, assetID string) (float64, error)
}

// ClientFunc is a function adapter for Client.
type ClientFunc func(ctx context.Context, assetID string) (float64, error)

func (f ClientFunc) FetchPrice(ctx context.Context, assetID string) (float64, error) {
	return f(ctx, assetID)
}

// APIError represents an HTTP error from an upstream API.
type APIError struct {
	StatusCode int
	Message    string
	Body       []byte
}

func (e *APIError) Error() string {
	return fmt.Sprintf("upstream api error %d: %s", e.StatusCode, e.Message)
}

// IsRetryable returns true if the error should trigger a retry.
func (e *APIError) IsRetryable() bool {
	return e.StatusCode >= 500 || e.StatusCode == http.StatusTooManyRequests
}
