package model

import (
	"time"

	"github.com/google/uuid"
)

// SourceKind identifies which upstream prices an asset.
type SourceKind string

const (
	// SourceCoinGecko prices an asset via the CoinGecko simple-price API.
	SourceCoinGecko SourceKind = "coingecko"

	// SourceCeloOracle prices an asset via the SortedOracles contract on Celo.
	SourceCeloOracle SourceKind = "celo_oracle"
)

// Asset is one tracked instrument. The set of assets is fixed at startup.
type Asset struct {
	ID      string     // Canonical id (e.g., "bitcoin")
	Source  SourceKind // Which upstream prices it
	Primary bool       // Primary assets drive the scheduler's backoff decision
}

// PriceObservation is a single fetched price. Immutable once created.
type PriceObservation struct {
	AssetID    string    `json:"asset_id"`
	Price      float64   `json:"price"`
	ObservedAt time.Time `json:"observed_at"`
}

// HistoryRecord is a durable row: an observation plus its generated id.
type HistoryRecord struct {
	ID         uuid.UUID `json:"id"`
	AssetID    string    `json:"asset_id"`
	Price      float64   `json:"price"`
	ObservedAt time.Time `json:"observed_at"`
}

// CacheEntry is the cached latest value for one asset. Price and
// ObservedAt are nil for an asset that is known but never yet fetched.
type CacheEntry struct {
	AssetID    string     `json:"asset_id"`
	Price      *float64   `json:"price"`
	ObservedAt *time.Time `json:"observed_at"`
}

// RuntimeMode is a read-only snapshot of the process-wide mode state.
type RuntimeMode struct {
	Live           bool          `json:"live"`
	PollInterval   time.Duration `json:"poll_interval"`
	CacheRetention time.Duration `json:"cache_retention"`
}

// Heartbeat is the keepalive payload pushed to subscribers.
type Heartbeat struct {
	Type      string    `json:"type"` // Always "heartbeat"
	Timestamp time.Time `json:"timestamp"`
}

// NewHeartbeat returns a heartbeat stamped with the current UTC time.
func NewHeartbeat() Heartbeat {
	return Heartbeat{Type: "heartbeat", Timestamp: time.Now().UTC()}
}
