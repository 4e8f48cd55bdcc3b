package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"pricefeed/internal/cache"
	"pricefeed/internal/config"
	"pricefeed/internal/history"
	"pricefeed/internal/hub"
	"pricefeed/internal/mode"
	"pricefeed/internal/model"
	"pricefeed/internal/scheduler"
	"pricefeed/internal/server"
	"pricefeed/internal/source"
	"pricefeed/internal/version"
)

func main() {
	configPath := flag.String("config", "configs/server.local.yaml", "path to config file")
	flag.Parse()

	// Set up structured logging
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}))
	slog.SetDefault(logger)

	logger.Info("starting pricefeed",
		"version", version.Version,
		"commit", version.Commit,
		"config", *configPath,
	)

	// Load configuration
	cfg, err := config.LoadAndValidate(*configPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	assets := cfg.AssetList()
	logger.Info("configuration loaded",
		"assets", len(assets),
		"live", cfg.Poller.Live,
		"interval", cfg.Poller.Interval,
		"retention", cfg.Poller.CacheRetention,
	)

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	// Connect history store
	logger.Info("connecting to database",
		"host", cfg.Database.Host,
		"port", cfg.Database.Port,
		"database", cfg.Database.Name,
	)
	store, err := history.Connect(ctx, cfg.Database, logger.With("component", "history"))
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer store.Close()

	if err := store.InitSchema(ctx); err != nil {
		logger.Error("failed to init schema", "error", err)
		os.Exit(1)
	}
	logger.Info("database ready")

	// Connect cache backend
	latest, err := cache.New(cfg.Redis, logger.With("component", "cache"))
	if err != nil {
		logger.Error("failed to connect to redis", "error", err)
		os.Exit(1)
	}
	defer latest.Close()
	logger.Info("cache backend connected", "addr", cfg.Redis.Addr)

	// Source clients
	coingecko := source.NewCoinGeckoClient(
		cfg.Sources.CoinGeckoURL,
		source.WithCoinGeckoTimeout(cfg.Sources.Timeout),
		source.WithCoinGeckoLogger(logger.With("source", "coingecko")),
	)
	oracle := source.NewCeloOracleClient(
		cfg.Sources.CeloRPCURL,
		cfg.Sources.CeloRegistry,
		cfg.Sources.CUSDAddress,
		logger.With("source", "celo_oracle"),
	)
	llama := source.NewDeFiLlamaClient(cfg.Sources.DeFiLlamaURL, logger.With("source", "defillama"))

	fetcher := source.NewFetcher(
		source.FetcherConfig{Attempts: cfg.Sources.FetchAttempts, BackoffBase: time.Second},
		map[model.SourceKind]source.Client{
			model.SourceCoinGecko:  coingecko,
			model.SourceCeloOracle: oracle,
		},
		logger.With("component", "fetcher"),
	)

	// Subscriber hub
	subscribers := hub.New(
		hub.Config{HeartbeatInterval: cfg.Hub.HeartbeatInterval},
		logger.With("component", "hub"),
	)
	if err := subscribers.Start(ctx); err != nil {
		logger.Error("failed to start hub", "error", err)
		os.Exit(1)
	}

	// Scheduler and mode controller
	poller := scheduler.New(
		scheduler.Config{
			Assets:         assets,
			BaseInterval:   cfg.Poller.Interval,
			CacheRetention: cfg.Poller.CacheRetention,
		},
		fetcher, latest, store, subscribers,
		logger.With("component", "poller"),
	)

	controller := mode.New(
		mode.Config{
			Live:           cfg.Poller.Live,
			Assets:         assets,
			PollInterval:   cfg.Poller.Interval,
			CacheRetention: cfg.Poller.CacheRetention,
		},
		poller, latest,
		logger.With("component", "mode"),
	)
	if err := controller.Start(ctx); err != nil {
		logger.Error("failed to apply initial mode", "error", err)
		os.Exit(1)
	}

	// HTTP surface
	svc := server.NewService(assets, fetcher, latest, store, subscribers, controller, logger)
	mux := http.NewServeMux()
	server.NewHandler(svc, llama, store, logger).Register(mux)
	server.NewWSHandler(subscribers, cfg.Hub.WriteTimeout, logger).Register(mux)

	httpServer := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: mux,
	}

	go func() {
		logger.Info("http server listening", "port", cfg.Server.Port)
		if err := httpServer.ListenAndServe(); err != http.ErrServerClosed {
			logger.Error("http server error", "error", err)
			cancel()
		}
	}()

	// Wait for shutdown
	<-ctx.Done()

	logger.Info("shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	httpServer.Shutdown(shutdownCtx)
	if err := controller.Stop(shutdownCtx); err != nil {
		logger.Warn("mode controller stop", "error", err)
	}
	subscribers.Stop(shutdownCtx)

	logger.Info("pricefeed stopped")
}
