// Package trends computes reward-velocity rankings over a rolling window.
package trends

import (
	"context"
	"time"

	"github.com/caribu66/veruspulse-sub016/internal/config"
	"github.com/caribu66/veruspulse-sub016/internal/logging"
	"github.com/caribu66/veruspulse-sub016/internal/models"
	"github.com/caribu66/veruspulse-sub016/internal/storage"
)

// activitySource supplies per-identity reward activity inside a window
type activitySource interface {
	GetWindowActivity(ctx context.Context, since time.Time) ([]storage.WindowActivity, error)
}

// snapshotStore persists and serves trend snapshot sets
type snapshotStore interface {
	ReplaceAll(ctx context.Context, snapshots []models.TrendSnapshot) error
	Top(ctx context.Context, limit int) ([]models.TrendSnapshot, error)
	OldestComputedAt(ctx context.Context) (time.Time, error)
}

// Aggregator recomputes trend snapshots from daily reward stats. Each run
// replaces the whole snapshot set atomically.
type Aggregator struct {
	activity  activitySource
	snapshots snapshotStore
	window    time.Duration
	staleness time.Duration
	logger    *logging.Logger

	now func() time.Time
}

// NewAggregator creates a trend aggregator
func NewAggregator(activity activitySource, snapshots snapshotStore, cfg *config.TrendsConfig) *Aggregator {
	return &Aggregator{
		activity:  activity,
		snapshots: snapshots,
		window:    cfg.Window,
		staleness: cfg.Staleness,
		logger:    logging.GetGlobalLogger().WithField("component", "trends"),
		now:       time.Now,
	}
}

// CalculateAllTrends scores every identity with reward activity inside the
// rolling window and swaps the snapshot set in one transaction. Identities
// with no window activity simply drop out of the new set.
func (a *Aggregator) CalculateAllTrends(ctx context.Context) error {
	now := a.now().UTC()
	since := now.Add(-a.window)
	windowDays := int(a.window.Hours() / 24)
	if windowDays < 1 {
		windowDays = 1
	}

	activity, err := a.activity.GetWindowActivity(ctx, since)
	if err != nil {
		return err
	}

	snapshots := make([]models.TrendSnapshot, 0, len(activity))
	for _, act := range activity {
		snapshots = append(snapshots, models.TrendSnapshot{
			IdentityAddress: act.IdentityAddress,
			Score:           act.WindowTotal / float64(windowDays),
			WindowTotal:     act.WindowTotal,
			WindowDays:      windowDays,
			LastRewardAt:    act.LastRewardAt,
			ComputedAt:      now,
		})
	}

	if err := a.snapshots.ReplaceAll(ctx, snapshots); err != nil {
		return err
	}

	a.logger.WithField("identities", len(snapshots)).Info("trend snapshots recomputed")
	return nil
}

// UpdateStaleTrends recomputes only when the current snapshot set is older
// than the staleness threshold. An empty set always recomputes.
func (a *Aggregator) UpdateStaleTrends(ctx context.Context) error {
	oldest, err := a.snapshots.OldestComputedAt(ctx)
	if err != nil {
		return err
	}
	if !oldest.IsZero() && a.now().UTC().Sub(oldest) < a.staleness {
		return nil
	}
	return a.CalculateAllTrends(ctx)
}

// GetTrendingVerusIDs returns the top-scored identities, ties broken by
// most recent reward.
func (a *Aggregator) GetTrendingVerusIDs(ctx context.Context, limit int) ([]models.TrendSnapshot, error) {
	if limit <= 0 {
		limit = 10
	}
	return a.snapshots.Top(ctx, limit)
}

// Run recomputes stale trends on a ticker until ctx is cancelled
func (a *Aggregator) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := a.UpdateStaleTrends(ctx); err != nil {
				a.logger.WithError(err).Error("trend update failed")
			}
		}
	}
}
