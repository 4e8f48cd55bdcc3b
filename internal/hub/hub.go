package hub

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"pricefeed/internal/model"
)

// Config holds hub settings.
type Config struct {
	HeartbeatInterval time.Duration // Keepalive cadence per connection (default: 30s)
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		HeartbeatInterval: 30 * time.Second,
	}
}

// subscriber tracks one registered connection and its heartbeat stopper.
type subscriber struct {
	conn Conn
	stop chan struct{}
}

// Hub tracks connected subscribers and pushes updates to all of them.
type Hub struct {
	cfg    Config
	logger *slog.Logger

	mu   sync.RWMutex
	subs map[Conn]*subscriber

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a Hub.
func New(cfg Config, logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.HeartbeatInterval == 0 {
		cfg.HeartbeatInterval = 30 * time.Second
	}
	return &Hub{
		cfg:    cfg,
		logger: logger,
		subs:   make(map[Conn]*subscriber),
	}
}

// Start makes the hub accept registrations.
func (h *Hub) Start(ctx context.Context) error {
	h.ctx, h.cancel = context.WithCancel(ctx)
	h.logger.Info("subscriber hub started", "heartbeat_interval", h.cfg.HeartbeatInterval)
	return nil
}

// Stop closes every connection and awaits heartbeat goroutines.
func (h *Hub) Stop(ctx context.Context) error {
	if h.cancel != nil {
		h.cancel()
	}

	h.mu.Lock()
	for conn, sub := range h.subs {
		close(sub.stop)
		conn.Close()
		delete(h.subs, conn)
	}
	h.mu.Unlock()

	done := make(chan struct{})
	go func() {
		h.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		h.logger.Info("subscriber hub stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Register adds a connection and starts its heartbeat loop.
func (h *Hub) Register(conn Conn) {
	sub := &subscriber{
		conn: conn,
		stop: make(chan struct{}),
	}

	h.mu.Lock()
	h.subs[conn] = sub
	total := len(h.subs)
	h.mu.Unlock()

	h.wg.Add(1)
	go h.heartbeatLoop(sub)

	h.logger.Info("subscriber connected", "total", total)
}

// Unregister removes a connection and stops its heartbeat.
func (h *Hub) Unregister(conn Conn) {
	h.mu.Lock()
	sub, ok := h.subs[conn]
	if ok {
		close(sub.stop)
		delete(h.subs, conn)
	}
	total := len(h.subs)
	h.mu.Unlock()

	if ok {
		conn.Close()
		h.logger.Info("subscriber disconnected", "total", total)
	}
}

// Count returns the number of registered connections.
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

// Broadcast pushes an observation to every registered connection. A
// failed send prunes that connection but never aborts delivery to the
// rest. No delivery guarantee, no queueing.
func (h *Hub) Broadcast(obs model.PriceObservation) {
	payload, err := json.Marshal(obs)
	if err != nil {
		h.logger.Error("marshal broadcast payload", "error", err)
		return
	}

	h.mu.RLock()
	conns := make([]Conn, 0, len(h.subs))
	for conn := range h.subs {
		conns = append(conns, conn)
	}
	h.mu.RUnlock()

	if len(conns) == 0 {
		return
	}

	var failed []Conn
	for _, conn := range conns {
		if err := conn.WriteMessage(payload); err != nil {
			h.logger.Warn("broadcast send failed, pruning subscriber", "error", err)
			failed = append(failed, conn)
		}
	}
	for _, conn := range failed {
		h.Unregister(conn)
	}

	h.logger.Debug("broadcasted update",
		"asset", obs.AssetID,
		"price", obs.Price,
		"subscribers", len(conns)-len(failed),
	)
}

// heartbeatLoop sends keepalives on a fixed cadence until the
// subscriber is removed or the hub stops.
func (h *Hub) heartbeatLoop(sub *subscriber) {
	defer h.wg.Done()

	ticker := time.NewTicker(h.cfg.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-h.ctx.Done():
			return
		case <-sub.stop:
			return
		case <-ticker.C:
			payload, err := json.Marshal(model.NewHeartbeat())
			if err != nil {
				continue
			}
			if err := sub.conn.WriteMessage(payload); err != nil {
				h.logger.Debug("heartbeat failed, pruning subscriber", "error", err)
				h.Unregister(sub.conn)
				return
			}
		}
	}
}
