// Package main provides the background scan worker entry point. Exactly one
// worker per lock path runs at a time.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/caribu66/veruspulse-sub016/internal/config"
	"github.com/caribu66/veruspulse-sub016/internal/logging"
	"github.com/caribu66/veruspulse-sub016/internal/rpc"
	"github.com/caribu66/veruspulse-sub016/internal/scan"
	"github.com/caribu66/veruspulse-sub016/internal/storage"
	"github.com/caribu66/veruspulse-sub016/internal/trends"
	"github.com/caribu66/veruspulse-sub016/internal/verrors"
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
	logger := logging.GetGlobalLogger().WithField("component", "worker")

	lock, err := scan.AcquireLock(cfg.Scan.LockPath)
	if err != nil {
		logger.WithError(err).Fatal("Failed to acquire worker lock")
	}
	defer func() {
		if err := lock.Release(); err != nil {
			logger.WithError(err).Error("Failed to release worker lock")
		}
	}()
	logger.WithField("pid", lock.Info().PID).Info("Worker lock acquired")

	postgres, err := storage.NewPostgresDB(&cfg.Database.Postgres)
	if err != nil {
		logger.WithError(err).Fatal("Failed to connect to Postgres")
	}
	defer postgres.Close()

	identityRepo := storage.NewIdentityRepository(postgres)
	rewardRepo := storage.NewRewardRepository(postgres)
	scanStateRepo := storage.NewScanStateRepository(postgres)
	trendRepo := storage.NewTrendRepository(postgres)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// A previous crash may have left in_progress flags behind. Claims with a
	// fresh heartbeat belong to a live scan in another process.
	if cleared, err := scanStateRepo.ClearStale(ctx, time.Hour); err != nil {
		logger.WithError(err).Warn("Failed to clear stale scan states")
	} else if cleared > 0 {
		logger.WithField("cleared", cleared).Info("Cleared stale scan states")
	}

	client, err := rpc.NewClient(&cfg.Node)
	if err != nil {
		logger.WithError(err).Fatal("Failed to create RPC client")
	}
	walker := scan.NewWalker(client, rewardRepo, scanStateRepo, &cfg.Scan)
	coordinator := scan.NewCoordinator(walker, client, scanStateRepo, &cfg.Scan)

	aggregator := trends.NewAggregator(rewardRepo, trendRepo, &cfg.Trends)
	go aggregator.Run(ctx, cfg.Trends.Interval)

	go runScanLoop(ctx, coordinator, identityRepo, logger)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Worker shutting down...")
	cancel()
}

// runScanLoop periodically walks every known identity that has no complete
// scan yet, one at a time
func runScanLoop(ctx context.Context, coordinator *scan.Coordinator, identities *storage.IdentityRepository, logger *logging.Logger) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		addresses, err := identities.ListAddresses(ctx)
		if err != nil {
			logger.WithError(err).Error("Failed to list identities")
			continue
		}

		for _, addr := range addresses {
			if ctx.Err() != nil {
				return
			}

			// Completed identities resume from their last height, so a
			// caught-up scan is a handful of cheap chunks.
			progress, err := coordinator.RequestFullScan(ctx, addr)
			if err != nil {
				if verrors.IsScanConflict(err) {
					continue
				}
				logger.WithError(err).WithField("identity", addr).Error("Scan failed")
				continue
			}
			logger.WithFields(map[string]interface{}{
				"identity": addr,
				"blocks":   progress.BlocksScanned.Load(),
				"rewards":  progress.RewardsFound.Load(),
			}).Info("Identity scan finished")
		}
	}
}
