package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/caribu66/veruspulse-sub016/internal/models"
	"github.com/caribu66/veruspulse-sub016/internal/verrors"
)

// RewardRepository handles reward event and daily stat persistence
type RewardRepository struct {
	db *PostgresDB
}

// NewRewardRepository creates a new reward repository
func NewRewardRepository(db *PostgresDB) *RewardRepository {
	return &RewardRepository{db: db}
}

// RecordReward records a reward event and, when the event is new, folds it
// into the matching daily stat row. Replaying the same (identity, txid) pair
// is a no-op: the event insert hits the conflict clause and the daily stat
// is left untouched, so totals never double count. Both writes happen in one
// transaction.
func (r *RewardRepository) RecordReward(ctx context.Context, event *models.RewardEvent) error {
	tx, err := r.db.Pool().Begin(ctx)
	if err != nil {
		return verrors.NewPersistenceError("record reward", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	tag, err := tx.Exec(ctx, `
		INSERT INTO reward_events (identity_address, txid, day, amount, block_height)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (identity_address, txid) DO NOTHING
	`, event.IdentityAddress, event.TxID, event.Day, event.Amount, event.BlockHeight)
	if err != nil {
		return verrors.NewPersistenceError("insert reward event", err)
	}

	// Duplicate event, stats already include it.
	if tag.RowsAffected() == 0 {
		return tx.Commit(ctx)
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO daily_reward_stats (identity_address, day, total_amount, event_count, updated_at)
		VALUES ($1, $2, $3, 1, NOW())
		ON CONFLICT (identity_address, day) DO UPDATE SET
			total_amount = daily_reward_stats.total_amount + EXCLUDED.total_amount,
			event_count = daily_reward_stats.event_count + 1,
			updated_at = NOW()
	`, event.IdentityAddress, event.Day, event.Amount)
	if err != nil {
		return verrors.NewPersistenceError("update daily stats", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return verrors.NewPersistenceError("record reward", err)
	}

	return nil
}

// GetDailyStats returns all daily stat rows for an identity in ascending
// day order. An identity with no rewards yields an empty slice.
func (r *RewardRepository) GetDailyStats(ctx context.Context, identityAddress string) ([]models.DailyRewardStat, error) {
	rows, err := r.db.Pool().Query(ctx, `
		SELECT identity_address, day, total_amount, event_count
		FROM daily_reward_stats
		WHERE identity_address = $1
		ORDER BY day ASC
	`, identityAddress)
	if err != nil {
		return nil, fmt.Errorf("failed to query daily stats: %w", err)
	}
	defer rows.Close()

	var stats []models.DailyRewardStat
	for rows.Next() {
		var s models.DailyRewardStat
		if err := rows.Scan(&s.IdentityAddress, &s.Day, &s.TotalAmount, &s.EventCount); err != nil {
			return nil, fmt.Errorf("failed to scan daily stat: %w", err)
		}
		stats = append(stats, s)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate daily stats: %w", err)
	}

	return stats, nil
}

// GetStats returns the read model for an identity. Identities with no
// indexed rewards get a zero-valued result, not an error.
func (r *RewardRepository) GetStats(ctx context.Context, identityAddress string) (*models.IdentityStats, error) {
	stats := &models.IdentityStats{IdentityAddress: identityAddress}

	daily, err := r.GetDailyStats(ctx, identityAddress)
	if err != nil {
		return nil, err
	}

	for _, d := range daily {
		stats.TotalRewards += d.TotalAmount
		stats.RewardCount += d.EventCount
	}
	stats.DailyStats = daily

	return stats, nil
}

// WindowActivity is an identity's reward activity inside a trailing window,
// the input to trend scoring.
type WindowActivity struct {
	IdentityAddress string
	WindowTotal     float64
	LastRewardAt    time.Time
}

// GetWindowActivity sums reward amounts per identity for days on or after
// since, along with each identity's latest rewarded day.
func (r *RewardRepository) GetWindowActivity(ctx context.Context, since time.Time) ([]WindowActivity, error) {
	rows, err := r.db.Pool().Query(ctx, `
		SELECT identity_address, SUM(total_amount), MAX(day)
		FROM daily_reward_stats
		WHERE day >= $1
		GROUP BY identity_address
	`, since)
	if err != nil {
		return nil, fmt.Errorf("failed to query window activity: %w", err)
	}
	defer rows.Close()

	var activity []WindowActivity
	for rows.Next() {
		var a WindowActivity
		if err := rows.Scan(&a.IdentityAddress, &a.WindowTotal, &a.LastRewardAt); err != nil {
			return nil, fmt.Errorf("failed to scan window activity: %w", err)
		}
		activity = append(activity, a)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate window activity: %w", err)
	}

	return activity, nil
}

// HasEvent reports whether a reward event with the given key already exists
func (r *RewardRepository) HasEvent(ctx context.Context, identityAddress, txid string) (bool, error) {
	var exists bool
	err := r.db.Pool().QueryRow(ctx, `
		SELECT EXISTS (SELECT 1 FROM reward_events WHERE identity_address = $1 AND txid = $2)
	`, identityAddress, txid).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check reward event: %w", err)
	}
	return exists, nil
}
