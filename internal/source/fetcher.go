package source

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"pricefeed/internal/model"
)

// FetcherConfig holds retry settings.
type FetcherConfig struct {
	Attempts    int           // Total attempts per fetch (default: 3)
	BackoffBase time.Duration // First retry sleep, doubles per attempt (default: 1s)
}

// DefaultFetcherConfig returns sensible defaults.
func DefaultFetcherConfig() FetcherConfig {
	return FetcherConfig{
		Attempts:    3,
		BackoffBase: time.Second,
	}
}

// Fetcher wraps source clients with bounded retry and exponential
// backoff. It is source-agnostic: each asset routes to the client bound
// to its source kind.
type Fetcher struct {
	cfg     FetcherConfig
	clients map[model.SourceKind]Client
	logger  *slog.Logger
}

// NewFetcher creates a Fetcher over the given source bindings.
func NewFetcher(cfg FetcherConfig, clients map[model.SourceKind]Client, logger *slog.Logger) *Fetcher {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Attempts == 0 {
		cfg.Attempts = 3
	}
	if cfg.BackoffBase == 0 {
		cfg.BackoffBase = time.Second
	}
	return &Fetcher{
		cfg:     cfg,
		clients: clients,
		logger:  logger,
	}
}

// Fetch returns an observation for the asset, or ErrFetchFailed once all
// attempts are exhausted. The first successful attempt returns
// immediately; sleeps between attempts are 1x, 2x, 4x... the backoff
// base and respect context cancellation.
func (f *Fetcher) Fetch(ctx context.Context, asset model.Asset) (model.PriceObservation, error) {
	client, ok := f.clients[asset.Source]
	if !ok {
		return model.PriceObservation{}, fmt.Errorf("%w: %s", ErrNoSource, asset.ID)
	}

	var lastErr error
	for attempt := 1; attempt <= f.cfg.Attempts; attempt++ {
		if attempt > 1 {
			wait := f.cfg.BackoffBase << (attempt - 2)
			f.logger.Debug("retrying fetch",
				"asset", asset.ID,
				"attempt", attempt,
				"backoff", wait,
			)
			select {
			case <-ctx.Done():
				return model.PriceObservation{}, ctx.Err()
			case <-time.After(wait):
			}
		}

		price, err := client.FetchPrice(ctx, asset.ID)
		if err == nil {
			return model.PriceObservation{
				AssetID:    asset.ID,
				Price:      price,
				ObservedAt: time.Now().UTC(),
			}, nil
		}
		lastErr = err

		if ctx.Err() != nil {
			return model.PriceObservation{}, ctx.Err()
		}
	}

	f.logger.Warn("fetch failed after retries",
		"asset", asset.ID,
		"attempts", f.cfg.Attempts,
		"error", lastErr,
	)
	return model.PriceObservation{}, fmt.Errorf("%w: %s: %v", ErrFetchFailed, asset.ID, lastErr)
}
