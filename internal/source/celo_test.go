package source

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testRegistry = "0x000000000000000000000000000000000000ce10"
	testToken    = "0x765DE816845861e75A25fCA122bb6898B8B1282a"
	testOracle   = "0xefb84935239dacdecf7c5ba76d8de40b077b7b33"
)

// word returns a 0x-prefixed 32-byte hex word holding the given hex payload
// left-padded with zeros.
func word(payload string) string {
	payload = strings.TrimPrefix(payload, "0x")
	return strings.Repeat("0", 64-len(payload)) + payload
}

func TestCeloOracle_FetchPrice(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req rpcRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "eth_call", req.Method)

		call := req.Params[0].(map[string]any)
		to := strings.ToLower(call["to"].(string))

		var result string
		switch to {
		case testRegistry:
			result = "0x" + word(testOracle)
		case testOracle:
			// numerator/denominator -> price 1.001
			num := new(big.Int).Mul(big.NewInt(1001), exp10(21))
			den := new(big.Int).Mul(big.NewInt(1000), exp10(21))
			result = "0x" + word(num.Text(16)) + word(den.Text(16))
		default:
			t.Fatalf("unexpected eth_call target %s", to)
		}

		json.NewEncoder(w).Encode(rpcResponse{
			JSONRPC: "2.0",
			ID:      req.ID,
			Result:  mustMarshal(t, result),
		})
	}))
	defer server.Close()

	client := NewCeloOracleClient(server.URL, testRegistry, testToken, nil)

	price, err := client.FetchPrice(context.Background(), "cusd")
	require.NoError(t, err)
	assert.InDelta(t, 1.001, price, 1e-9)
}

func TestCeloOracle_ZeroRegistryAddress(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req rpcRequest
		json.NewDecoder(r.Body).Decode(&req)
		json.NewEncoder(w).Encode(rpcResponse{
			JSONRPC: "2.0",
			ID:      req.ID,
			Result:  mustMarshal(t, "0x"+word("0")),
		})
	}))
	defer server.Close()

	client := NewCeloOracleClient(server.URL, testRegistry, testToken, nil)

	_, err := client.FetchPrice(context.Background(), "cusd")
	assert.ErrorContains(t, err, "zero address")
}

func TestCeloOracle_ZeroDenominator(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req rpcRequest
		json.NewDecoder(r.Body).Decode(&req)

		call := req.Params[0].(map[string]any)
		to := strings.ToLower(call["to"].(string))

		result := "0x" + word(testOracle)
		if to == testOracle {
			result = "0x" + word("1") + word("0")
		}

		json.NewEncoder(w).Encode(rpcResponse{
			JSONRPC: "2.0",
			ID:      req.ID,
			Result:  mustMarshal(t, result),
		})
	}))
	defer server.Close()

	client := NewCeloOracleClient(server.URL, testRegistry, testToken, nil)

	_, err := client.FetchPrice(context.Background(), "cusd")
	assert.ErrorContains(t, err, "zero denominator")
}

func TestCeloOracle_RPCError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req rpcRequest
		json.NewDecoder(r.Body).Decode(&req)
		json.NewEncoder(w).Encode(rpcResponse{
			JSONRPC: "2.0",
			ID:      req.ID,
			Error:   &rpcError{Code: -32000, Message: "execution reverted"},
		})
	}))
	defer server.Close()

	client := NewCeloOracleClient(server.URL, testRegistry, testToken, nil)

	_, err := client.FetchPrice(context.Background(), "cusd")
	assert.ErrorContains(t, err, "execution reverted")
}

func TestEncodeStringCall(t *testing.T) {
	data := encodeStringCall("getAddressForString(string)", "SortedOracles")

	// selector + offset word + length word + one padded data word
	require.Len(t, data, 4+32+32+32)

	// Offset points just past the static section.
	assert.Equal(t, byte(0x20), data[4+31])
	// Length of "SortedOracles".
	assert.Equal(t, byte(13), data[4+32+31])
	// String bytes right-padded.
	assert.Equal(t, "SortedOracles", string(data[4+64:4+64+13]))
	assert.Equal(t, make([]byte, 32-13), data[4+64+13:])
}

func TestEncodeAddressCall(t *testing.T) {
	data := encodeAddressCall("medianRate(address)", testToken)

	require.Len(t, data, 4+32)
	// Address occupies the low 20 bytes of the word.
	assert.Equal(t, make([]byte, 12), data[4:16])
	assert.Equal(t, strings.ToLower(strings.TrimPrefix(testToken, "0x")), hex.EncodeToString(data[16:]))
}

func TestDecodeAddress(t *testing.T) {
	addr, err := decodeAddress("0x" + word(testOracle))
	require.NoError(t, err)
	assert.Equal(t, testOracle, addr)

	_, err = decodeAddress("0x1234")
	assert.ErrorContains(t, err, "short address result")
}

func exp10(n int64) *big.Int {
	return new(big.Int).Exp(big.NewInt(10), big.NewInt(n), nil)
}

func mustMarshal(t *testing.T, v any) json.RawMessage {
	t.Helper()
	data, err := json.Marshal(v)
	require.NoError(t, err)
	return data
}
