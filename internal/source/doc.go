// Package source implements upstream price clients and the retrying fetcher.
//
// Sources:
//   - CoinGecko simple-price API (market-priced assets)
//   - Celo SortedOracles contract via JSON-RPC (oracle-priced assets)
//   - DeFiLlama TVL API (protocol TVL lookups)
//
// The Fetcher is source-agnostic: it routes an asset to the client bound
// to its source kind and retries with exponential backoff.
package source
