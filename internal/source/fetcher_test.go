package source

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pricefeed/internal/model"
)

// countingClient fails a fixed number of times, then succeeds.
type countingClient struct {
	calls    atomic.Int32
	failures int32
	price    float64
}

func (c *countingClient) FetchPrice(ctx context.Context, assetID string) (float64, error) {
	n := c.calls.Add(1)
	if n <= c.failures {
		return 0, errors.New("upstream down")
	}
	return c.price, nil
}

func testFetcher(clients map[model.SourceKind]Client) *Fetcher {
	return NewFetcher(FetcherConfig{
		Attempts:    3,
		BackoffBase: time.Millisecond,
	}, clients, nil)
}

var btc = model.Asset{ID: "bitcoin", Source: model.SourceCoinGecko, Primary: true}

func TestFetcher_FirstSuccessReturnsImmediately(t *testing.T) {
	client := &countingClient{price: 65000.0}
	f := testFetcher(map[model.SourceKind]Client{model.SourceCoinGecko: client})

	obs, err := f.Fetch(context.Background(), btc)
	require.NoError(t, err)

	assert.Equal(t, "bitcoin", obs.AssetID)
	assert.Equal(t, 65000.0, obs.Price)
	assert.False(t, obs.ObservedAt.IsZero())
	assert.Equal(t, int32(1), client.calls.Load())
}

func TestFetcher_RetriesThenSucceeds(t *testing.T) {
	client := &countingClient{failures: 2, price: 42.0}
	f := testFetcher(map[model.SourceKind]Client{model.SourceCoinGecko: client})

	obs, err := f.Fetch(context.Background(), btc)
	require.NoError(t, err)

	assert.Equal(t, 42.0, obs.Price)
	assert.Equal(t, int32(3), client.calls.Load())
}

func TestFetcher_NeverExceedsAttemptBound(t *testing.T) {
	client := &countingClient{failures: 100}
	f := testFetcher(map[model.SourceKind]Client{model.SourceCoinGecko: client})

	_, err := f.Fetch(context.Background(), btc)
	require.ErrorIs(t, err, ErrFetchFailed)

	assert.Equal(t, int32(3), client.calls.Load())
}

func TestFetcher_NoSourceBound(t *testing.T) {
	f := testFetcher(map[model.SourceKind]Client{})

	_, err := f.Fetch(context.Background(), btc)
	assert.ErrorIs(t, err, ErrNoSource)
}

func TestFetcher_CancelledContextStopsRetries(t *testing.T) {
	client := &countingClient{failures: 100}
	f := NewFetcher(FetcherConfig{
		Attempts:    3,
		BackoffBase: time.Hour, // Would hang without cancellation
	}, map[model.SourceKind]Client{model.SourceCoinGecko: client}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := f.Fetch(ctx, btc)
	assert.ErrorIs(t, err, context.Canceled)
	assert.LessOrEqual(t, client.calls.Load(), int32(1))
}
