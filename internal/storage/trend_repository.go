package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/caribu66/veruspulse-sub016/internal/models"
	"github.com/caribu66/veruspulse-sub016/internal/verrors"
)

// TrendRepository handles trend snapshot persistence
type TrendRepository struct {
	db *PostgresDB
}

// NewTrendRepository creates a new trend repository
func NewTrendRepository(db *PostgresDB) *TrendRepository {
	return &TrendRepository{db: db}
}

// ReplaceAll swaps the whole snapshot set in a single transaction. Readers
// see either the old set or the new set, never a mix.
func (r *TrendRepository) ReplaceAll(ctx context.Context, snapshots []models.TrendSnapshot) error {
	tx, err := r.db.Pool().Begin(ctx)
	if err != nil {
		return verrors.NewPersistenceError("replace trend snapshots", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, `DELETE FROM trend_snapshots`); err != nil {
		return verrors.NewPersistenceError("clear trend snapshots", err)
	}

	for _, s := range snapshots {
		_, err := tx.Exec(ctx, `
			INSERT INTO trend_snapshots (identity_address, score, window_total, window_days, last_reward_at, computed_at)
			VALUES ($1, $2, $3, $4, $5, $6)
		`, s.IdentityAddress, s.Score, s.WindowTotal, s.WindowDays, s.LastRewardAt, s.ComputedAt)
		if err != nil {
			return verrors.NewPersistenceError("insert trend snapshot", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return verrors.NewPersistenceError("replace trend snapshots", err)
	}

	return nil
}

// Top returns the highest-scored snapshots. Ties on score break toward the
// more recently rewarded identity.
func (r *TrendRepository) Top(ctx context.Context, limit int) ([]models.TrendSnapshot, error) {
	rows, err := r.db.Pool().Query(ctx, `
		SELECT identity_address, score, window_total, window_days, last_reward_at, computed_at
		FROM trend_snapshots
		ORDER BY score DESC, last_reward_at DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query trend snapshots: %w", err)
	}
	defer rows.Close()

	var snapshots []models.TrendSnapshot
	for rows.Next() {
		var s models.TrendSnapshot
		if err := rows.Scan(&s.IdentityAddress, &s.Score, &s.WindowTotal, &s.WindowDays, &s.LastRewardAt, &s.ComputedAt); err != nil {
			return nil, fmt.Errorf("failed to scan trend snapshot: %w", err)
		}
		snapshots = append(snapshots, s)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate trend snapshots: %w", err)
	}

	return snapshots, nil
}

// OldestComputedAt returns the computed_at of the oldest snapshot, used to
// decide whether the set has gone stale. Returns zero time when empty.
func (r *TrendRepository) OldestComputedAt(ctx context.Context) (time.Time, error) {
	var oldest *time.Time
	err := r.db.Pool().QueryRow(ctx, `SELECT MIN(computed_at) FROM trend_snapshots`).Scan(&oldest)
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to query oldest trend snapshot: %w", err)
	}
	if oldest == nil {
		return time.Time{}, nil
	}
	return *oldest, nil
}
