package source

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeTVL(t *testing.T) {
	tests := []struct {
		name string
		body string
		want map[string]any
	}{
		{
			name: "json number",
			body: `1234.5`,
			want: map[string]any{"tvl": 1234.5},
		},
		{
			name: "numeric string",
			body: `"42.5"`,
			want: map[string]any{"tvl": 42.5},
		},
		{
			name: "bare scalar text",
			body: `987.0`,
			want: map[string]any{"tvl": 987.0},
		},
		{
			name: "non-numeric text",
			body: `not a number`,
			want: map[string]any{"tvl_raw": "not a number"},
		},
		{
			name: "array wrapped",
			body: `[1, 2]`,
			want: map[string]any{"items": []any{1.0, 2.0}},
		},
		{
			name: "object with string tvl coerced",
			body: `{"tvl": "100.5", "name": "mento"}`,
			want: map[string]any{"tvl": 100.5, "name": "mento"},
		},
		{
			name: "object passthrough",
			body: `{"tvl": 55.0}`,
			want: map[string]any{"tvl": 55.0},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, normalizeTVL([]byte(tt.body)))
		})
	}
}

func TestDeFiLlama_FetchTVL(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/tvl/mento", r.URL.Path)
		w.Write([]byte(`314159.2`))
	}))
	defer server.Close()

	client := NewDeFiLlamaClient(server.URL, nil)

	payload, err := client.FetchTVL(context.Background(), "mento")
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"tvl": 314159.2}, payload)
}

func TestDeFiLlama_NotFound(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "no such protocol", http.StatusNotFound)
	}))
	defer server.Close()

	client := NewDeFiLlamaClient(server.URL, nil)

	_, err := client.FetchTVL(context.Background(), "nope")
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusNotFound, apiErr.StatusCode)
}
