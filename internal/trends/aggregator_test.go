package trends

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/caribu66/veruspulse-sub016/internal/config"
	"github.com/caribu66/veruspulse-sub016/internal/models"
	"github.com/caribu66/veruspulse-sub016/internal/storage"
)

type fakeActivity struct {
	activity []storage.WindowActivity
	calls    int
	since    time.Time
}

func (f *fakeActivity) GetWindowActivity(ctx context.Context, since time.Time) ([]storage.WindowActivity, error) {
	f.calls++
	f.since = since
	return f.activity, nil
}

type fakeSnapshots struct {
	set      []models.TrendSnapshot
	replaces int
}

func (f *fakeSnapshots) ReplaceAll(ctx context.Context, snapshots []models.TrendSnapshot) error {
	f.replaces++
	f.set = snapshots
	return nil
}

func (f *fakeSnapshots) Top(ctx context.Context, limit int) ([]models.TrendSnapshot, error) {
	if limit > len(f.set) {
		limit = len(f.set)
	}
	return f.set[:limit], nil
}

func (f *fakeSnapshots) OldestComputedAt(ctx context.Context) (time.Time, error) {
	if len(f.set) == 0 {
		return time.Time{}, nil
	}
	oldest := f.set[0].ComputedAt
	for _, s := range f.set[1:] {
		if s.ComputedAt.Before(oldest) {
			oldest = s.ComputedAt
		}
	}
	return oldest, nil
}

func trendsConfig() *config.TrendsConfig {
	return &config.TrendsConfig{
		Window:    7 * 24 * time.Hour,
		Staleness: 15 * time.Minute,
	}
}

func TestCalculateAllTrends_VelocityScore(t *testing.T) {
	now := time.Date(2025, 10, 10, 12, 0, 0, 0, time.UTC)
	activity := &fakeActivity{
		activity: []storage.WindowActivity{
			{IdentityAddress: "iAAA", WindowTotal: 21, LastRewardAt: now.Add(-time.Hour)},
			{IdentityAddress: "iBBB", WindowTotal: 7, LastRewardAt: now.Add(-2 * time.Hour)},
		},
	}
	snapshots := &fakeSnapshots{}
	agg := NewAggregator(activity, snapshots, trendsConfig())
	agg.now = func() time.Time { return now }

	if err := agg.CalculateAllTrends(context.Background()); err != nil {
		t.Fatalf("CalculateAllTrends() error = %v", err)
	}

	if want := now.Add(-7 * 24 * time.Hour); !activity.since.Equal(want) {
		t.Errorf("window since = %s, want %s", activity.since, want)
	}
	if len(snapshots.set) != 2 {
		t.Fatalf("len(set) = %d, want 2", len(snapshots.set))
	}
	if math.Abs(snapshots.set[0].Score-3.0) > 1e-9 {
		t.Errorf("iAAA score = %v, want 3.0 (21 over 7 days)", snapshots.set[0].Score)
	}
	if snapshots.set[0].WindowDays != 7 {
		t.Errorf("WindowDays = %d, want 7", snapshots.set[0].WindowDays)
	}
}

func TestUpdateStaleTrends(t *testing.T) {
	now := time.Date(2025, 10, 10, 12, 0, 0, 0, time.UTC)
	activity := &fakeActivity{}
	snapshots := &fakeSnapshots{}
	agg := NewAggregator(activity, snapshots, trendsConfig())
	agg.now = func() time.Time { return now }

	// Empty set recomputes.
	if err := agg.UpdateStaleTrends(context.Background()); err != nil {
		t.Fatalf("UpdateStaleTrends() error = %v", err)
	}
	if snapshots.replaces != 1 {
		t.Fatalf("replaces = %d, want 1", snapshots.replaces)
	}

	// Fresh set is left alone.
	snapshots.set = []models.TrendSnapshot{{IdentityAddress: "iAAA", ComputedAt: now.Add(-5 * time.Minute)}}
	if err := agg.UpdateStaleTrends(context.Background()); err != nil {
		t.Fatalf("UpdateStaleTrends() error = %v", err)
	}
	if snapshots.replaces != 1 {
		t.Errorf("replaces = %d after fresh set, want still 1", snapshots.replaces)
	}

	// Stale set recomputes.
	snapshots.set = []models.TrendSnapshot{{IdentityAddress: "iAAA", ComputedAt: now.Add(-20 * time.Minute)}}
	if err := agg.UpdateStaleTrends(context.Background()); err != nil {
		t.Fatalf("UpdateStaleTrends() error = %v", err)
	}
	if snapshots.replaces != 2 {
		t.Errorf("replaces = %d after stale set, want 2", snapshots.replaces)
	}
}

func TestGetTrendingVerusIDs_DefaultLimit(t *testing.T) {
	snapshots := &fakeSnapshots{set: []models.TrendSnapshot{{IdentityAddress: "iAAA"}}}
	agg := NewAggregator(&fakeActivity{}, snapshots, trendsConfig())

	got, err := agg.GetTrendingVerusIDs(context.Background(), 0)
	if err != nil {
		t.Fatalf("GetTrendingVerusIDs() error = %v", err)
	}
	if len(got) != 1 {
		t.Errorf("len(got) = %d, want 1", len(got))
	}
}
