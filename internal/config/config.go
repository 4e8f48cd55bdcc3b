package config

import (
	"time"

	"pricefeed/internal/model"
)

// ServerConfig is the root configuration for a pricefeed instance.
type ServerConfig struct {
	Server  HTTPConfig    `yaml:"server"`
	Assets  []AssetConfig `yaml:"assets"`
	Sources SourcesConfig `yaml:"sources"`
	Redis    RedisConfig   `yaml:"redis"`
	Database DBConfig      `yaml:"database"`
	Poller   PollerConfig  `yaml:"poller"`
	Hub      HubConfig     `yaml:"hub"`
}

// HTTPConfig holds the listen settings for the HTTP/WebSocket surface.
type HTTPConfig struct {
	Port int `yaml:"port"`
}

// AssetConfig declares one tracked asset.
type AssetConfig struct {
	ID      string `yaml:"id"`
	Source  string `yaml:"source"`  // "coingecko" or "celo_oracle"
	Primary bool   `yaml:"primary"` // Drives backoff decisions
}

// SourcesConfig holds upstream endpoint settings.
type SourcesConfig struct {
	CoinGeckoURL  string        `yaml:"coingecko_url"`
	DeFiLlamaURL  string        `yaml:"defillama_url"`
	CeloRPCURL    string        `yaml:"celo_rpc_url"`
	CeloRegistry  string        `yaml:"celo_registry"`  // Registry contract address
	CUSDAddress   string        `yaml:"cusd_address"`   // cUSD token address
	Timeout       time.Duration `yaml:"timeout"`
	FetchAttempts int           `yaml:"fetch_attempts"`
}

// RedisConfig holds the latest-price cache backend connection.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// DBConfig holds the Postgres connection for the history store.
type DBConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Name     string `yaml:"name"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	SSLMode  string `yaml:"ssl_mode"`
	MaxConns int    `yaml:"max_conns"`
	MinConns int    `yaml:"min_conns"`
}

// PollerConfig holds scheduler settings.
type PollerConfig struct {
	Live           bool          `yaml:"live"`            // Start in live mode
	Interval       time.Duration `yaml:"interval"`        // Base poll interval
	CacheRetention time.Duration `yaml:"cache_retention"` // Whole-keyspace TTL
}

// HubConfig holds subscriber fan-out settings.
type HubConfig struct {
	HeartbeatInterval time.Duration `yaml:"heartbeat_interval"`
	WriteTimeout      time.Duration `yaml:"write_timeout"`
}

// AssetList converts the configured asset list to model values.
func (c *ServerConfig) AssetList() []model.Asset {
	out := make([]model.Asset, 0, len(c.Assets))
	for _, a := range c.Assets {
		out = append(out, model.Asset{
			ID:      a.ID,
			Source:  model.SourceKind(a.Source),
			Primary: a.Primary,
		})
	}
	return out
}
