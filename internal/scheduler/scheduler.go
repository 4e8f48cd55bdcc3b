package scheduler

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"pricefeed/internal/model"
)

// Backoff multiplier bounds.
const (
	MinMultiplier = 1.0
	MaxMultiplier = 4.0
)

// Fetcher produces one observation per asset, absorbing its own retries.
type Fetcher interface {
	Fetch(ctx context.Context, asset model.Asset) (model.PriceObservation, error)
}

// CacheWriter is the write-through cache sink.
type CacheWriter interface {
	WriteBatch(ctx context.Context, observations []model.PriceObservation, ttl time.Duration) error
}

// HistoryAppender is the durable log sink.
type HistoryAppender interface {
	AppendBatch(ctx context.Context, observations []model.PriceObservation) error
}

// Broadcaster fans observations out to subscribers.
type Broadcaster interface {
	Broadcast(obs model.PriceObservation)
}

// Config holds scheduler settings.
type Config struct {
	Assets         []model.Asset
	BaseInterval   time.Duration // Base cycle interval
	CacheRetention time.Duration // Whole-keyspace TTL reset after each batch write
}

// Scheduler runs the fetch-write-broadcast cycle loop.
type Scheduler struct {
	cfg       Config
	fetcher   Fetcher
	cache     CacheWriter
	history   HistoryAppender
	broadcast Broadcaster
	logger    *slog.Logger

	// multiplier is scheduler-owned; ResetBackoff is the only outside
	// mutation, used by the mode controller when (re)entering live mode.
	mu         sync.Mutex
	multiplier float64

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a Scheduler.
func New(cfg Config, fetcher Fetcher, cache CacheWriter, history HistoryAppender, broadcast Broadcaster, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		cfg:        cfg,
		fetcher:    fetcher,
		cache:      cache,
		history:    history,
		broadcast:  broadcast,
		logger:     logger,
		multiplier: MinMultiplier,
	}
}

// Start launches the cycle loop. Start/stop are not idempotent; the
// mode controller serializes calls.
func (s *Scheduler) Start(ctx context.Context) error {
	s.ctx, s.cancel = context.WithCancel(ctx)

	s.wg.Add(1)
	go s.run()

	s.logger.Info("poller started",
		"assets", len(s.cfg.Assets),
		"interval", s.cfg.BaseInterval,
	)
	return nil
}

// Stop cancels the loop, interrupting an in-progress sleep immediately,
// and awaits loop exit. An in-flight fetch may complete; its results
// are discarded before any write.
func (s *Scheduler) Stop(ctx context.Context) error {
	if s.cancel != nil {
		s.cancel()
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Info("poller stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Multiplier returns the current backoff multiplier.
func (s *Scheduler) Multiplier() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.multiplier
}

// ResetBackoff restores the multiplier to its floor.
func (s *Scheduler) ResetBackoff() {
	s.mu.Lock()
	s.multiplier = MinMultiplier
	s.mu.Unlock()
}

// run is the cycle loop. A cycle's writes fully complete or are
// abandoned before the next cycle begins; failures inside a cycle are
// logged and never terminate the loop.
func (s *Scheduler) run() {
	defer s.wg.Done()

	for {
		wait := s.runCycle()

		if s.ctx.Err() != nil {
			return
		}

		select {
		case <-s.ctx.Done():
			return
		case <-time.After(wait):
		}
	}
}

// runCycle executes one cycle and returns how long to sleep before the
// next one.
func (s *Scheduler) runCycle() time.Duration {
	start := time.Now()

	results := s.fetchAll()

	// Discard results rather than commit a partial batch when stopping.
	if s.ctx.Err() != nil {
		return 0
	}

	if len(results) > 0 {
		s.commit(results)
	} else {
		s.logger.Warn("no prices fetched this cycle")
	}

	elapsed := time.Since(start)
	multiplier := s.adjustBackoff(results)

	wait := time.Duration(float64(s.cfg.BaseInterval)*multiplier) - elapsed
	if wait < 0 {
		wait = 0
	}

	s.logger.Debug("cycle complete",
		"fetched", len(results),
		"duration", elapsed,
		"multiplier", multiplier,
		"sleep", wait,
	)
	return wait
}

// fetchAll fetches every asset concurrently and collects the successes.
func (s *Scheduler) fetchAll() []model.PriceObservation {
	var mu sync.Mutex
	results := make([]model.PriceObservation, 0, len(s.cfg.Assets))

	g, ctx := errgroup.WithContext(s.ctx)
	for _, asset := range s.cfg.Assets {
		g.Go(func() error {
			obs, err := s.fetcher.Fetch(ctx, asset)
			if err != nil {
				// A failed fetch is a per-asset skip, never fatal.
				s.logger.Warn("asset fetch skipped", "asset", asset.ID, "error", err)
				return nil
			}
			mu.Lock()
			results = append(results, obs)
			mu.Unlock()
			s.logger.Info("price fetched", "asset", obs.AssetID, "price", obs.Price)
			return nil
		})
	}
	g.Wait()

	return results
}

// commit applies a cycle's results: cache write, then history append,
// then broadcast. A failed sink is logged and skipped without blocking
// the remaining steps.
func (s *Scheduler) commit(results []model.PriceObservation) {
	if err := s.cache.WriteBatch(s.ctx, results, s.cfg.CacheRetention); err != nil {
		s.logger.Error("cache write failed", "count", len(results), "error", err)
	}

	if err := s.history.AppendBatch(s.ctx, results); err != nil {
		s.logger.Error("history append failed, rows lost for this cycle",
			"count", len(results),
			"error", err,
		)
	}

	for _, obs := range results {
		s.broadcast.Broadcast(obs)
	}
}

// adjustBackoff doubles the multiplier when zero primary assets
// succeeded and halves it otherwise, clamped to [1.0, 4.0]. Halving
// rather than resetting recovers quickly without thrashing upstreams.
func (s *Scheduler) adjustBackoff(results []model.PriceObservation) float64 {
	fetched := make(map[string]struct{}, len(results))
	for _, obs := range results {
		fetched[obs.AssetID] = struct{}{}
	}

	primaryHits := 0
	for _, asset := range s.cfg.Assets {
		if !asset.Primary {
			continue
		}
		if _, ok := fetched[asset.ID]; ok {
			primaryHits++
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if primaryHits == 0 {
		s.multiplier = min(MaxMultiplier, s.multiplier*2)
	} else {
		s.multiplier = max(MinMultiplier, s.multiplier/2)
	}
	return s.multiplier
}
