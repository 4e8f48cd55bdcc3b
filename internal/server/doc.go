// Package server exposes the core pipeline over HTTP and WebSocket.
//
// Endpoints:
//   - GET  /health                       component health
//   - GET  /prices/{symbol}/latest       latest price (cache or history fallback)
//   - GET  /prices/{symbol}              paginated history
//   - POST /prices/{symbol}/fetch        on-demand fetch and persist
//   - GET  /mode, POST /mode             runtime mode surface
//   - GET  /tvl/{protocol}               DeFiLlama TVL proxy
//   - GET  /ws/prices                    live update subscription
package server
