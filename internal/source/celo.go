package source

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math/big"
	"net/http"
	"strings"
	"time"

	"golang.org/x/crypto/sha3"
)

// CeloOracleClient reads the cUSD/USD median rate from the SortedOracles
// contract on the Celo chain. The SortedOracles address is resolved from
// the well-known Registry contract rather than hardcoded.
type CeloOracleClient struct {
	rpcURL       string
	registryAddr string
	tokenAddr    string
	httpClient   *http.Client
	logger       *slog.Logger
}

// NewCeloOracleClient creates a new Celo oracle client.
func NewCeloOracleClient(rpcURL, registryAddr, tokenAddr string, logger *slog.Logger) *CeloOracleClient {
	if logger == nil {
		logger = slog.Default()
	}
	return &CeloOracleClient{
		rpcURL:       rpcURL,
		registryAddr: registryAddr,
		tokenAddr:    tokenAddr,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		logger: logger,
	}
}

// rpcRequest is a JSON-RPC request.
type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	Method  string `json:"method"`
	Params  []any  `json:"params"`
	ID      int    `json:"id"`
}

// rpcResponse is a JSON-RPC response.
type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      int             `json:"id"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *rpcError       `json:"error,omitempty"`
}

// rpcError is a JSON-RPC error.
type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *rpcError) Error() string {
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

// FetchPrice returns the median cUSD/USD rate. The assetID argument is
// ignored: this client is bound to a single token at construction.
func (c *CeloOracleClient) FetchPrice(ctx context.Context, assetID string) (float64, error) {
	oracleAddr, err := c.resolveSortedOracles(ctx)
	if err != nil {
		return 0, fmt.Errorf("resolve SortedOracles: %w", err)
	}

	num, den, err := c.medianRate(ctx, oracleAddr)
	if err != nil {
		return 0, fmt.Errorf("medianRate: %w", err)
	}
	if den.Sign() == 0 {
		return 0, fmt.Errorf("oracle returned zero denominator for %s", c.tokenAddr)
	}

	rate := new(big.Float).Quo(new(big.Float).SetInt(num), new(big.Float).SetInt(den))
	price, _ := rate.Float64()

	c.logger.Debug("oracle median rate", "asset", assetID, "price", price)
	return price, nil
}

// resolveSortedOracles calls Registry.getAddressForString("SortedOracles").
func (c *CeloOracleClient) resolveSortedOracles(ctx context.Context) (string, error) {
	data := encodeStringCall("getAddressForString(string)", "SortedOracles")

	result, err := c.ethCall(ctx, c.registryAddr, data)
	if err != nil {
		return "", err
	}

	addr, err := decodeAddress(result)
	if err != nil {
		return "", err
	}
	if addr == "0x0000000000000000000000000000000000000000" {
		return "", fmt.Errorf("registry returned zero address for SortedOracles")
	}
	return addr, nil
}

// medianRate calls SortedOracles.medianRate(token) and returns the
// numerator and denominator words.
func (c *CeloOracleClient) medianRate(ctx context.Context, oracleAddr string) (*big.Int, *big.Int, error) {
	data := encodeAddressCall("medianRate(address)", c.tokenAddr)

	result, err := c.ethCall(ctx, oracleAddr, data)
	if err != nil {
		return nil, nil, err
	}

	raw, err := decodeHex(result)
	if err != nil {
		return nil, nil, err
	}
	if len(raw) < 64 {
		return nil, nil, fmt.Errorf("short medianRate result: %d bytes", len(raw))
	}

	num := new(big.Int).SetBytes(raw[:32])
	den := new(big.Int).SetBytes(raw[32:64])
	return num, den, nil
}

// ethCall performs an eth_call against the bound RPC endpoint.
func (c *CeloOracleClient) ethCall(ctx context.Context, to string, data []byte) (string, error) {
	req := rpcRequest{
		JSONRPC: "2.0",
		Method:  "eth_call",
		Params: []any{
			map[string]string{
				"to":   to,
				"data": "0x" + hex.EncodeToString(data),
			},
			"latest",
		},
		ID: 1,
	}

	body, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.rpcURL, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}

	var rpcResp rpcResponse
	if err := json.Unmarshal(respBody, &rpcResp); err != nil {
		return "", fmt.Errorf("unmarshal response: %w", err)
	}
	if rpcResp.Error != nil {
		return "", rpcResp.Error
	}

	var result string
	if err := json.Unmarshal(rpcResp.Result, &result); err != nil {
		return "", fmt.Errorf("unmarshal result: %w", err)
	}
	return result, nil
}

// -----------------------------------------------------------------------------
// Minimal ABI encoding
// -----------------------------------------------------------------------------

// selector returns the 4-byte function selector for a signature.
func selector(signature string) []byte {
	h := sha3.NewLegacyKeccak256()
	h.Write([]byte(signature))
	return h.Sum(nil)[:4]
}

// encodeStringCall ABI-encodes a call taking a single string argument.
func encodeStringCall(signature, arg string) []byte {
	data := selector(signature)
	data = append(data, padUint(32)...)           // offset to string data
	data = append(data, padUint(len(arg))...)     // string length
	data = append(data, padBytesRight(arg)...)    // string bytes
	return data
}

// encodeAddressCall ABI-encodes a call taking a single address argument.
func encodeAddressCall(signature, addr string) []byte {
	data := selector(signature)
	raw, _ := hex.DecodeString(strings.TrimPrefix(strings.ToLower(addr), "0x"))
	word := make([]byte, 32)
	copy(word[32-len(raw):], raw)
	return append(data, word...)
}

// padUint encodes an integer as a 32-byte big-endian word.
func padUint(n int) []byte {
	word := make([]byte, 32)
	big.NewInt(int64(n)).FillBytes(word)
	return word
}

// padBytesRight encodes string bytes right-padded to a 32-byte boundary.
func padBytesRight(s string) []byte {
	padded := ((len(s) + 31) / 32) * 32
	out := make([]byte, padded)
	copy(out, s)
	return out
}

// decodeHex strips the 0x prefix and decodes a hex result.
func decodeHex(result string) ([]byte, error) {
	return hex.DecodeString(strings.TrimPrefix(result, "0x"))
}

// decodeAddress extracts an address from a 32-byte return word.
func decodeAddress(result string) (string, error) {
	raw, err := decodeHex(result)
	if err != nil {
		return "", fmt.Errorf("decode address result: %w", err)
	}
	if len(raw) < 32 {
		return "", fmt.Errorf("short address result: %d bytes", len(raw))
	}
	return "0x" + hex.EncodeToString(raw[12:32]), nil
}
