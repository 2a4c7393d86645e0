// Package main provides the API server entry point for the VerusPulse core.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/caribu66/veruspulse-sub016/internal/api"
	"github.com/caribu66/veruspulse-sub016/internal/config"
	"github.com/caribu66/veruspulse-sub016/internal/events"
	"github.com/caribu66/veruspulse-sub016/internal/identity"
	"github.com/caribu66/veruspulse-sub016/internal/logging"
	"github.com/caribu66/veruspulse-sub016/internal/rpc"
	"github.com/caribu66/veruspulse-sub016/internal/rpccache"
	"github.com/caribu66/veruspulse-sub016/internal/scan"
	"github.com/caribu66/veruspulse-sub016/internal/storage"
	"github.com/caribu66/veruspulse-sub016/internal/trends"
	"github.com/caribu66/veruspulse-sub016/internal/watcher"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		logging.GetGlobalLogger().WithError(err).Fatal("Failed to load configuration")
	}

	logging.InitGlobalLogger(
		logging.ParseLogLevel(cfg.Logging.Level),
		logging.ParseLogFormat(cfg.Logging.Format),
	)
	logger := logging.GetGlobalLogger()

	logger.Info("Connecting to databases...")
	postgres, err := storage.NewPostgresDB(&cfg.Database.Postgres)
	if err != nil {
		logger.WithError(err).Fatal("Failed to connect to Postgres")
	}
	defer postgres.Close()

	redis, err := storage.NewRedisCache(&cfg.Database.Redis)
	if err != nil {
		// The identity fast path is optional; everything still works
		// against postgres alone.
		logger.WithError(err).Warn("Redis unavailable, identity fast path disabled")
		redis = nil
	} else {
		defer func() { _ = redis.Close() }()
	}

	client, err := rpc.NewClient(&cfg.Node)
	if err != nil {
		logger.WithError(err).Fatal("Failed to create RPC client")
	}
	cache := rpccache.New(client, &cfg.Cache)
	cache.Start()
	defer cache.Stop()

	identityRepo := storage.NewIdentityRepository(postgres)
	rewardRepo := storage.NewRewardRepository(postgres)
	scanStateRepo := storage.NewScanStateRepository(postgres)
	trendRepo := storage.NewTrendRepository(postgres)

	identitySvc := newIdentityService(client, identityRepo, rewardRepo, redis, &cfg.Cache)

	walker := scan.NewWalker(client, rewardRepo, scanStateRepo, &cfg.Scan)
	coordinator := scan.NewCoordinator(walker, client, scanStateRepo, &cfg.Scan)

	aggregator := trends.NewAggregator(rewardRepo, trendRepo, &cfg.Trends)

	broadcaster := events.NewBroadcaster()
	go broadcaster.Run()
	defer broadcaster.Stop()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	chainWatcher := watcher.New(client, broadcaster, cfg.Events.PollInterval)
	go chainWatcher.Run(ctx)

	pingers := map[string]api.Pinger{"postgres": postgres}

	server := api.NewServer(
		&cfg.Server,
		&cfg.Events,
		identitySvc,
		coordinator,
		aggregator,
		cache,
		broadcaster,
		pingers,
		client.Pool().Status,
	)

	go func() {
		if err := server.Start(); err != nil {
			logger.WithError(err).Fatal("API server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Error("Server shutdown failed")
	}
}

// newIdentityService keeps the nil-redis case from turning into a typed
// non-nil interface value
func newIdentityService(client *rpc.Client, records *storage.IdentityRepository, rewards *storage.RewardRepository, redis *storage.RedisCache, cacheCfg *config.CacheConfig) *identity.Service {
	if redis == nil {
		return identity.NewService(client, records, rewards, nil, cacheCfg)
	}
	return identity.NewService(client, records, rewards, redis, cacheCfg)
}
