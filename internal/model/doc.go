// Package model defines shared data types used across the price pipeline.
//
// Conventions:
//   - Prices: float64 USD
//   - Timestamps: time.Time, always UTC
//   - IDs: canonical asset id strings ("bitcoin"), uuid.UUID for history rows
package model
