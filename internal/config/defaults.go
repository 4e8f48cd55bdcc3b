package config

import "time"

// Default values for optional configuration fields.
const (
	DefaultPort              = 8000
	DefaultCoinGeckoURL      = "https://api.coingecko.com/api/v3"
	DefaultDeFiLlamaURL      = "https://api.llama.fi"
	DefaultCeloRPCURL        = "https://forno.celo.org"
	DefaultCeloRegistry      = "0x000000000000000000000000000000000000ce10"
	DefaultCUSDAddress       = "0x765DE816845861e75A25fCA122bb6898B8B1282a"
	DefaultSourceTimeout     = 10 * time.Second
	DefaultFetchAttempts     = 3
	DefaultRedisAddr         = "localhost:6379"
	DefaultDBPort            = 5432
	DefaultDBSSLMode         = "prefer"
	DefaultMaxConns          = 10
	DefaultMinConns          = 2
	DefaultPollInterval      = 30 * time.Second
	DefaultCacheRetention    = 5 * time.Minute
	DefaultHeartbeatInterval = 30 * time.Second
	DefaultWriteTimeout      = 5 * time.Second
)

func (c *ServerConfig) applyDefaults() {
	if c.Server.Port == 0 {
		c.Server.Port = DefaultPort
	}

	// Source defaults
	if c.Sources.CoinGeckoURL == "" {
		c.Sources.CoinGeckoURL = DefaultCoinGeckoURL
	}
	if c.Sources.DeFiLlamaURL == "" {
		c.Sources.DeFiLlamaURL = DefaultDeFiLlamaURL
	}
	if c.Sources.CeloRPCURL == "" {
		c.Sources.CeloRPCURL = DefaultCeloRPCURL
	}
	if c.Sources.CeloRegistry == "" {
		c.Sources.CeloRegistry = DefaultCeloRegistry
	}
	if c.Sources.CUSDAddress == "" {
		c.Sources.CUSDAddress = DefaultCUSDAddress
	}
	if c.Sources.Timeout == 0 {
		c.Sources.Timeout = DefaultSourceTimeout
	}
	if c.Sources.FetchAttempts == 0 {
		c.Sources.FetchAttempts = DefaultFetchAttempts
	}

	// Cache defaults
	if c.Redis.Addr == "" {
		c.Redis.Addr = DefaultRedisAddr
	}

	// Database defaults
	if c.Database.Port == 0 {
		c.Database.Port = DefaultDBPort
	}
	if c.Database.SSLMode == "" {
		c.Database.SSLMode = DefaultDBSSLMode
	}
	if c.Database.MaxConns == 0 {
		c.Database.MaxConns = DefaultMaxConns
	}
	if c.Database.MinConns == 0 {
		c.Database.MinConns = DefaultMinConns
	}

	// Poller defaults
	if c.Poller.Interval == 0 {
		c.Poller.Interval = DefaultPollInterval
	}
	if c.Poller.CacheRetention == 0 {
		c.Poller.CacheRetention = DefaultCacheRetention
	}

	// Hub defaults
	if c.Hub.HeartbeatInterval == 0 {
		c.Hub.HeartbeatInterval = DefaultHeartbeatInterval
	}
	if c.Hub.WriteTimeout == 0 {
		c.Hub.WriteTimeout = DefaultWriteTimeout
	}

	// Default asset universe matches the dashboard: two CoinGecko-priced
	// primaries plus the oracle-priced cUSD.
	if len(c.Assets) == 0 {
		c.Assets = []AssetConfig{
			{ID: "bitcoin", Source: "coingecko", Primary: true},
			{ID: "ethereum", Source: "coingecko", Primary: true},
			{ID: "cusd", Source: "celo_oracle"},
		}
	}
}
