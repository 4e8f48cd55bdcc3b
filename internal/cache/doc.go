// Package cache implements the Redis-backed latest-price cache.
//
// All assets live in a single hash keyed by asset id. After every batch
// write the whole hash's TTL is reset; if no write lands before the TTL
// elapses, Redis drops the hash and reads report not-found rather than
// serving stale data.
package cache
