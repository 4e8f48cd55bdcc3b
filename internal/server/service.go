package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"pricefeed/internal/model"
)

// Errors surfaced to handlers.
var (
	// ErrUnknownAsset is a caller error: the symbol is not configured.
	ErrUnknownAsset = errors.New("unsupported symbol")

	// ErrNotFound means no usable price exists for the asset.
	ErrNotFound = errors.New("price not found")
)

// LatestCache reads the cached latest price.
type LatestCache interface {
	Read(ctx context.Context, assetID string) (model.PriceObservation, error)
	Write(ctx context.Context, obs model.PriceObservation, ttl time.Duration) error
}

// HistoryStore is the durable log surface the service needs.
type HistoryStore interface {
	Latest(ctx context.Context, assetID string) (model.HistoryRecord, error)
	Query(ctx context.Context, assetID string, limit, offset int) ([]model.HistoryRecord, int, error)
	Append(ctx context.Context, obs model.PriceObservation) (model.HistoryRecord, error)
}

// Broadcaster fans updates out to subscribers.
type Broadcaster interface {
	Broadcast(obs model.PriceObservation)
}

// ModeControl is the runtime mode surface.
type ModeControl interface {
	Live() bool
	Mode() model.RuntimeMode
	SetMode(ctx context.Context, live bool) (model.RuntimeMode, error)
}

// PriceFetcher performs a retried fetch for one asset.
type PriceFetcher interface {
	Fetch(ctx context.Context, asset model.Asset) (model.PriceObservation, error)
}

// Service implements the operations the transport exposes.
type Service struct {
	assets  map[string]model.Asset
	aliases map[string]string

	fetcher   PriceFetcher
	cache     LatestCache
	history   HistoryStore
	broadcast Broadcaster
	mode      ModeControl
	logger    *slog.Logger

	// Per-asset locks serialize on-demand write-through with itself;
	// scheduled batch writes are last-write-wins either way.
	locksMu sync.Mutex
	locks   map[string]*sync.Mutex
}

// NewService creates a Service over the core components.
func NewService(
	assets []model.Asset,
	fetcher PriceFetcher,
	cache LatestCache,
	history HistoryStore,
	broadcast Broadcaster,
	mode ModeControl,
	logger *slog.Logger,
) *Service {
	if logger == nil {
		logger = slog.Default()
	}

	byID := make(map[string]model.Asset, len(assets))
	for _, a := range assets {
		byID[a.ID] = a
	}

	aliases := map[string]string{}
	if _, ok := byID["bitcoin"]; ok {
		aliases["btc"] = "bitcoin"
	}
	if _, ok := byID["ethereum"]; ok {
		aliases["eth"] = "ethereum"
	}

	return &Service{
		assets:    byID,
		aliases:   aliases,
		fetcher:   fetcher,
		cache:     cache,
		history:   history,
		broadcast: broadcast,
		mode:      mode,
		logger:    logger,
		locks:     make(map[string]*sync.Mutex),
	}
}

// NormalizeSymbol maps user input ("BTC", "bitcoin") to a canonical
// asset id, or ErrUnknownAsset. Unknown symbols are never defaulted.
func (s *Service) NormalizeSymbol(symbol string) (string, error) {
	key := strings.ToLower(strings.TrimSpace(symbol))
	if key == "" {
		return "", fmt.Errorf("%w: empty symbol", ErrUnknownAsset)
	}
	if canonical, ok := s.aliases[key]; ok {
		key = canonical
	}
	if _, ok := s.assets[key]; !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownAsset, symbol)
	}
	return key, nil
}

// GetLatest returns the most recent price for an asset. Live mode reads
// the cache; static mode falls back to the newest history row. An
// expired or unseeded cache reports not-found, never stale data.
func (s *Service) GetLatest(ctx context.Context, assetID string) (model.PriceObservation, error) {
	if _, ok := s.assets[assetID]; !ok {
		return model.PriceObservation{}, fmt.Errorf("%w: %q", ErrUnknownAsset, assetID)
	}

	if s.mode.Live() {
		obs, err := s.cache.Read(ctx, assetID)
		if err != nil {
			// Any cache miss maps to not-found for callers.
			return model.PriceObservation{}, ErrNotFound
		}
		return obs, nil
	}

	rec, err := s.history.Latest(ctx, assetID)
	if err != nil {
		return model.PriceObservation{}, ErrNotFound
	}
	return model.PriceObservation{
		AssetID:    rec.AssetID,
		Price:      rec.Price,
		ObservedAt: rec.ObservedAt,
	}, nil
}

// GetHistory returns a page of records plus the total count.
func (s *Service) GetHistory(ctx context.Context, assetID string, limit, offset int) ([]model.HistoryRecord, int, error) {
	if _, ok := s.assets[assetID]; !ok {
		return nil, 0, fmt.Errorf("%w: %q", ErrUnknownAsset, assetID)
	}
	return s.history.Query(ctx, assetID, limit, offset)
}

// TriggerFetch bypasses the schedule: a single fetch and a single
// write-through, same policy as a cycle. The history append must
// succeed; cache and broadcast are best-effort in live mode.
func (s *Service) TriggerFetch(ctx context.Context, assetID string) (model.PriceObservation, error) {
	asset, ok := s.assets[assetID]
	if !ok {
		return model.PriceObservation{}, fmt.Errorf("%w: %q", ErrUnknownAsset, assetID)
	}

	lock := s.assetLock(assetID)
	lock.Lock()
	defer lock.Unlock()

	obs, err := s.fetcher.Fetch(ctx, asset)
	if err != nil {
		return model.PriceObservation{}, err
	}

	if _, err := s.history.Append(ctx, obs); err != nil {
		return model.PriceObservation{}, fmt.Errorf("persist on-demand fetch: %w", err)
	}

	if s.mode.Live() {
		retention := s.mode.Mode().CacheRetention
		if err := s.cache.Write(ctx, obs, retention); err != nil {
			s.logger.Warn("on-demand cache write failed", "asset", assetID, "error", err)
		} else {
			s.broadcast.Broadcast(obs)
		}
	}

	s.logger.Info("on-demand fetch persisted", "asset", assetID, "price", obs.Price)
	return obs, nil
}

// Mode returns the runtime mode snapshot.
func (s *Service) Mode() model.RuntimeMode {
	return s.mode.Mode()
}

// SetMode requests a mode transition.
func (s *Service) SetMode(ctx context.Context, live bool) (model.RuntimeMode, error) {
	return s.mode.SetMode(ctx, live)
}

func (s *Service) assetLock(assetID string) *sync.Mutex {
	s.locksMu.Lock()
	defer s.locksMu.Unlock()
	lock, ok := s.locks[assetID]
	if !ok {
		lock = &sync.Mutex{}
		s.locks[assetID] = lock
	}
	return lock
}
