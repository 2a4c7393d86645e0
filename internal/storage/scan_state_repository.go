package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/caribu66/veruspulse-sub016/internal/models"
	"github.com/jackc/pgx/v5"
)

// ScanStateRepository handles per-identity scan progress persistence
type ScanStateRepository struct {
	db *PostgresDB
}

// NewScanStateRepository creates a new scan state repository
func NewScanStateRepository(db *PostgresDB) *ScanStateRepository {
	return &ScanStateRepository{db: db}
}

// Get retrieves the scan state for an identity. Identities never scanned
// get a fresh zero-height state, not an error.
func (r *ScanStateRepository) Get(ctx context.Context, identityAddress string) (*models.ScanState, error) {
	query := `
		SELECT identity_address, last_height, complete, in_progress, last_error, last_scan_at
		FROM scan_state
		WHERE identity_address = $1
	`

	var state models.ScanState

	err := r.db.Pool().QueryRow(ctx, query, identityAddress).Scan(
		&state.IdentityAddress,
		&state.LastHeight,
		&state.Complete,
		&state.InProgress,
		&state.LastError,
		&state.LastScanAt,
	)

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return &models.ScanState{IdentityAddress: identityAddress}, nil
		}
		return nil, fmt.Errorf("failed to get scan state: %w", err)
	}

	return &state, nil
}

// TryMarkScanning claims the persisted scan slot for an identity. The claim
// is a conditional upsert, so two processes scanning the same store cannot
// both hold it; false means a scan is already in progress elsewhere.
func (r *ScanStateRepository) TryMarkScanning(ctx context.Context, identityAddress string) (bool, error) {
	query := `
		INSERT INTO scan_state (identity_address, in_progress, last_error, last_scan_at)
		VALUES ($1, TRUE, NULL, $2)
		ON CONFLICT (identity_address) DO UPDATE SET
			in_progress = TRUE,
			last_error = NULL,
			last_scan_at = EXCLUDED.last_scan_at
		WHERE scan_state.in_progress = FALSE
	`
	tag, err := r.db.Pool().Exec(ctx, query, identityAddress, time.Now().UTC())
	if err != nil {
		return false, fmt.Errorf("failed to claim scan slot: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// MarkIdle releases the scan claim without touching the resume height or the
// complete flag, for scans that must not advance either.
func (r *ScanStateRepository) MarkIdle(ctx context.Context, identityAddress string) error {
	query := `
		UPDATE scan_state
		SET in_progress = FALSE,
			last_scan_at = $2
		WHERE identity_address = $1
	`
	if _, err := r.db.Pool().Exec(ctx, query, identityAddress, time.Now().UTC()); err != nil {
		return fmt.Errorf("failed to mark scan idle: %w", err)
	}
	return nil
}

// UpdateProgress advances the resume height. The height only ever moves
// forward so a concurrent stale writer cannot roll progress back. The write
// doubles as a claim heartbeat: last_scan_at moves with every chunk, so a
// long walk never looks abandoned to ClearStale.
func (r *ScanStateRepository) UpdateProgress(ctx context.Context, identityAddress string, height int64) error {
	query := `
		UPDATE scan_state
		SET last_height = GREATEST(last_height, $2),
			last_scan_at = $3
		WHERE identity_address = $1
	`
	if _, err := r.db.Pool().Exec(ctx, query, identityAddress, height, time.Now().UTC()); err != nil {
		return fmt.Errorf("failed to update scan progress: %w", err)
	}
	return nil
}

// MarkComplete records a successful scan up to height
func (r *ScanStateRepository) MarkComplete(ctx context.Context, identityAddress string, height int64) error {
	query := `
		UPDATE scan_state
		SET last_height = GREATEST(last_height, $2),
			complete = TRUE,
			in_progress = FALSE,
			last_error = NULL,
			last_scan_at = $3
		WHERE identity_address = $1
	`
	if _, err := r.db.Pool().Exec(ctx, query, identityAddress, height, time.Now().UTC()); err != nil {
		return fmt.Errorf("failed to mark scan complete: %w", err)
	}
	return nil
}

// MarkFailed records a scan failure, keeping the resume height so the next
// attempt continues where this one stopped
func (r *ScanStateRepository) MarkFailed(ctx context.Context, identityAddress string, scanErr error) error {
	msg := scanErr.Error()
	query := `
		UPDATE scan_state
		SET in_progress = FALSE,
			last_error = $2,
			last_scan_at = $3
		WHERE identity_address = $1
	`
	if _, err := r.db.Pool().Exec(ctx, query, identityAddress, msg, time.Now().UTC()); err != nil {
		return fmt.Errorf("failed to mark scan failed: %w", err)
	}
	return nil
}

// ClearStale resets in_progress flags left behind by a crashed process.
// Claims with a recent heartbeat belong to a live scan, possibly in another
// process, and are left alone.
func (r *ScanStateRepository) ClearStale(ctx context.Context, age time.Duration) (int64, error) {
	query := `
		UPDATE scan_state
		SET in_progress = FALSE
		WHERE in_progress = TRUE
		  AND (last_scan_at IS NULL OR last_scan_at < $1)
	`
	tag, err := r.db.Pool().Exec(ctx, query, time.Now().UTC().Add(-age))
	if err != nil {
		return 0, fmt.Errorf("failed to clear stale scan states: %w", err)
	}
	return tag.RowsAffected(), nil
}
