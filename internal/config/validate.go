package config

import (
	"errors"
	"fmt"
)

// Validate checks that all required fields are set and values are valid.
func (c *ServerConfig) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535, got %d", c.Server.Port)
	}

	if len(c.Assets) == 0 {
		return errors.New("assets must declare at least one asset")
	}
	seen := make(map[string]struct{}, len(c.Assets))
	for i, a := range c.Assets {
		if a.ID == "" {
			return fmt.Errorf("assets[%d].id is required", i)
		}
		if _, dup := seen[a.ID]; dup {
			return fmt.Errorf("assets[%d].id %q is duplicated", i, a.ID)
		}
		seen[a.ID] = struct{}{}
		switch a.Source {
		case "coingecko", "celo_oracle":
		default:
			return fmt.Errorf("assets[%d].source must be coingecko or celo_oracle, got %q", i, a.Source)
		}
	}

	if c.Sources.FetchAttempts < 1 {
		return errors.New("sources.fetch_attempts must be >= 1")
	}

	if err := c.Database.validate("database"); err != nil {
		return err
	}

	if c.Poller.Interval <= 0 {
		return errors.New("poller.interval must be positive")
	}
	if c.Poller.CacheRetention <= 0 {
		return errors.New("poller.cache_retention must be positive")
	}

	if c.Hub.HeartbeatInterval <= 0 {
		return errors.New("hub.heartbeat_interval must be positive")
	}

	return nil
}

func (db *DBConfig) validate(prefix string) error {
	if db.Host == "" {
		return fmt.Errorf("%s.host is required", prefix)
	}
	if db.Name == "" {
		return fmt.Errorf("%s.name is required", prefix)
	}
	if db.User == "" {
		return fmt.Errorf("%s.user is required", prefix)
	}
	if db.MaxConns < 1 {
		return fmt.Errorf("%s.max_conns must be >= 1", prefix)
	}
	if db.MinConns < 0 {
		return fmt.Errorf("%s.min_conns must be >= 0", prefix)
	}
	if db.MinConns > db.MaxConns {
		return fmt.Errorf("%s.min_conns (%d) cannot exceed max_conns (%d)", prefix, db.MinConns, db.MaxConns)
	}
	return nil
}
