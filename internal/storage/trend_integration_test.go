package storage

import (
	"testing"
	"time"

	"github.com/caribu66/veruspulse-sub016/internal/models"
)

func TestTrendRepository_ReplaceAllAndTop(t *testing.T) {
	db := testPostgres(t)
	repo := NewTrendRepository(db)
	ctx := testContext(t)

	now := time.Now().UTC().Truncate(time.Second)
	set := []models.TrendSnapshot{
		{IdentityAddress: "iAAA", Score: 1.0, WindowTotal: 7, WindowDays: 7, LastRewardAt: now.Add(-time.Hour), ComputedAt: now},
		{IdentityAddress: "iBBB", Score: 3.0, WindowTotal: 21, WindowDays: 7, LastRewardAt: now.Add(-2 * time.Hour), ComputedAt: now},
		{IdentityAddress: "iCCC", Score: 3.0, WindowTotal: 21, WindowDays: 7, LastRewardAt: now, ComputedAt: now},
	}
	if err := repo.ReplaceAll(ctx, set); err != nil {
		t.Fatalf("ReplaceAll() error = %v", err)
	}

	top, err := repo.Top(ctx, 2)
	if err != nil {
		t.Fatalf("Top() error = %v", err)
	}
	if len(top) != 2 {
		t.Fatalf("len(top) = %d, want 2", len(top))
	}
	// Equal scores break toward the more recent reward.
	if top[0].IdentityAddress != "iCCC" || top[1].IdentityAddress != "iBBB" {
		t.Errorf("Top() order = [%s %s], want [iCCC iBBB]", top[0].IdentityAddress, top[1].IdentityAddress)
	}

	// A subsequent replace fully supersedes the previous set.
	if err := repo.ReplaceAll(ctx, []models.TrendSnapshot{
		{IdentityAddress: "iDDD", Score: 9.0, WindowTotal: 63, WindowDays: 7, LastRewardAt: now, ComputedAt: now},
	}); err != nil {
		t.Fatalf("ReplaceAll() error = %v", err)
	}
	top, err = repo.Top(ctx, 10)
	if err != nil {
		t.Fatalf("Top() error = %v", err)
	}
	if len(top) != 1 || top[0].IdentityAddress != "iDDD" {
		t.Errorf("Top() after replace = %+v, want single iDDD row", top)
	}
}
