package mode

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"pricefeed/internal/model"
)

// Poller is the scheduler lifecycle the controller drives.
type Poller interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	ResetBackoff()
}

// CacheLifecycle is the cache backend lifecycle the controller drives.
type CacheLifecycle interface {
	Init(ctx context.Context, assets []model.Asset) error
	Release(ctx context.Context) error
}

// Config holds controller settings.
type Config struct {
	Live           bool          // Initial mode
	Assets         []model.Asset // Fixed asset universe
	PollInterval   time.Duration
	CacheRetention time.Duration
	StopTimeout    time.Duration // Bound on awaiting poller shutdown
}

// Controller owns the runtime mode and serializes transitions.
type Controller struct {
	cfg    Config
	poller Poller
	cache  CacheLifecycle
	logger *slog.Logger

	// baseCtx outlives individual poller runs so a re-entered live mode
	// gets a fresh start context.
	baseCtx context.Context

	mu   sync.Mutex
	live bool
}

// New creates a Controller.
func New(cfg Config, poller Poller, cache CacheLifecycle, logger *slog.Logger) *Controller {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.StopTimeout == 0 {
		cfg.StopTimeout = 30 * time.Second
	}
	return &Controller{
		cfg:    cfg,
		poller: poller,
		cache:  cache,
		logger: logger,
	}
}

// Start applies the configured initial mode.
func (c *Controller) Start(ctx context.Context) error {
	c.baseCtx = ctx

	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.cfg.Live {
		c.logger.Info("starting in static mode")
		return nil
	}
	if err := c.enterLive(ctx); err != nil {
		return err
	}
	c.logger.Info("starting in live mode",
		"interval", c.cfg.PollInterval,
		"retention", c.cfg.CacheRetention,
	)
	return nil
}

// Stop leaves live mode if active.
func (c *Controller) Stop(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.live {
		return nil
	}
	return c.exitLive(ctx)
}

// Live reports whether live mode is active.
func (c *Controller) Live() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.live
}

// Mode returns a read-only snapshot of the runtime mode.
func (c *Controller) Mode() model.RuntimeMode {
	c.mu.Lock()
	defer c.mu.Unlock()
	return model.RuntimeMode{
		Live:           c.live,
		PollInterval:   c.cfg.PollInterval,
		CacheRetention: c.cfg.CacheRetention,
	}
}

// SetMode transitions between live and static. A no-op when the
// requested state equals the current one. Concurrent calls serialize on
// the controller lock; a transition fully completes (poller stopped or
// started, cache released or seeded) before the next begins.
func (c *Controller) SetMode(ctx context.Context, live bool) (model.RuntimeMode, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if live == c.live {
		return model.RuntimeMode{
			Live:           c.live,
			PollInterval:   c.cfg.PollInterval,
			CacheRetention: c.cfg.CacheRetention,
		}, nil
	}

	c.logger.Info("mode transition requested", "from", c.live, "to", live)

	var err error
	if live {
		err = c.enterLive(ctx)
	} else {
		err = c.exitLive(ctx)
	}
	if err != nil {
		return model.RuntimeMode{}, err
	}

	return model.RuntimeMode{
		Live:           c.live,
		PollInterval:   c.cfg.PollInterval,
		CacheRetention: c.cfg.CacheRetention,
	}, nil
}

// enterLive seeds the cache, resets backoff, and starts the poller.
// Caller holds the lock.
func (c *Controller) enterLive(ctx context.Context) error {
	if err := c.cache.Init(ctx, c.cfg.Assets); err != nil {
		return fmt.Errorf("init cache: %w", err)
	}

	c.poller.ResetBackoff()

	startCtx := c.baseCtx
	if startCtx == nil {
		startCtx = context.Background()
	}
	if err := c.poller.Start(startCtx); err != nil {
		return fmt.Errorf("start poller: %w", err)
	}

	c.live = true
	c.logger.Info("live mode enabled")
	return nil
}

// exitLive stops the poller, awaiting full stop, then releases the
// cache. Caller holds the lock.
func (c *Controller) exitLive(ctx context.Context) error {
	stopCtx, cancel := context.WithTimeout(ctx, c.cfg.StopTimeout)
	defer cancel()

	if err := c.poller.Stop(stopCtx); err != nil {
		return fmt.Errorf("stop poller: %w", err)
	}

	if err := c.cache.Release(ctx); err != nil {
		c.logger.Warn("cache release failed", "error", err)
	}

	c.live = false
	c.logger.Info("static mode enabled")
	return nil
}
