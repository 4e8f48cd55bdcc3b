package source

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCoinGecko_FetchPrice(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/simple/price", r.URL.Path)
		assert.Equal(t, "bitcoin", r.URL.Query().Get("ids"))
		assert.Equal(t, "usd", r.URL.Query().Get("vs_currencies"))

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]map[string]float64{
			"bitcoin": {"usd": 65000.0},
		})
	}))
	defer server.Close()

	client := NewCoinGeckoClient(server.URL)

	price, err := client.FetchPrice(context.Background(), "bitcoin")
	require.NoError(t, err)
	assert.Equal(t, 65000.0, price)
}

func TestCoinGecko_MissingAssetInResponse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]map[string]float64{})
	}))
	defer server.Close()

	client := NewCoinGeckoClient(server.URL)

	_, err := client.FetchPrice(context.Background(), "bitcoin")
	assert.ErrorContains(t, err, "no usd price")
}

func TestCoinGecko_HTTPError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "rate limited", http.StatusTooManyRequests)
	}))
	defer server.Close()

	client := NewCoinGeckoClient(server.URL)

	_, err := client.FetchPrice(context.Background(), "bitcoin")
	require.Error(t, err)

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusTooManyRequests, apiErr.StatusCode)
	assert.True(t, apiErr.IsRetryable())
}
