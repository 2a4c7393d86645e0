package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/caribu66/veruspulse-sub016/internal/models"
	"github.com/caribu66/veruspulse-sub016/internal/verrors"
	"github.com/jackc/pgx/v5"
)

// IdentityRepository handles identity record persistence
type IdentityRepository struct {
	db *PostgresDB
}

// NewIdentityRepository creates a new identity repository
func NewIdentityRepository(db *PostgresDB) *IdentityRepository {
	return &IdentityRepository{db: db}
}

// Upsert inserts or replaces an identity record. A re-resolution of the
// same identity address overwrites the previous row.
func (r *IdentityRepository) Upsert(ctx context.Context, record *models.IdentityRecord) error {
	query := `
		INSERT INTO identities (
			identity_address, name, friendly_name, primary_addresses,
			defining_txid, block_height, minimum_signatures, parent,
			revocation_authority, recovery_authority, timelock, flags,
			status, resolved_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		ON CONFLICT (identity_address) DO UPDATE SET
			name = EXCLUDED.name,
			friendly_name = EXCLUDED.friendly_name,
			primary_addresses = EXCLUDED.primary_addresses,
			defining_txid = EXCLUDED.defining_txid,
			block_height = EXCLUDED.block_height,
			minimum_signatures = EXCLUDED.minimum_signatures,
			parent = EXCLUDED.parent,
			revocation_authority = EXCLUDED.revocation_authority,
			recovery_authority = EXCLUDED.recovery_authority,
			timelock = EXCLUDED.timelock,
			flags = EXCLUDED.flags,
			status = EXCLUDED.status,
			resolved_at = EXCLUDED.resolved_at
	`

	_, err := r.db.Pool().Exec(ctx, query,
		record.IdentityAddress,
		record.Name,
		record.FriendlyName,
		record.PrimaryAddresses,
		record.DefiningTxID,
		record.BlockHeight,
		record.MinimumSignatures,
		record.Parent,
		record.RevocationAuth,
		record.RecoveryAuth,
		record.Timelock,
		record.Flags,
		record.Status,
		record.ResolvedAt,
	)

	if err != nil {
		return fmt.Errorf("failed to upsert identity: %w", err)
	}

	return nil
}

// Get retrieves an identity record by identity address. Returns a typed
// not-found error when no row exists.
func (r *IdentityRepository) Get(ctx context.Context, identityAddress string) (*models.IdentityRecord, error) {
	query := `
		SELECT identity_address, name, friendly_name, primary_addresses,
			   defining_txid, block_height, minimum_signatures, parent,
			   revocation_authority, recovery_authority, timelock, flags,
			   status, resolved_at
		FROM identities
		WHERE identity_address = $1
	`

	var record models.IdentityRecord

	err := r.db.Pool().QueryRow(ctx, query, identityAddress).Scan(
		&record.IdentityAddress,
		&record.Name,
		&record.FriendlyName,
		&record.PrimaryAddresses,
		&record.DefiningTxID,
		&record.BlockHeight,
		&record.MinimumSignatures,
		&record.Parent,
		&record.RevocationAuth,
		&record.RecoveryAuth,
		&record.Timelock,
		&record.Flags,
		&record.Status,
		&record.ResolvedAt,
	)

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, verrors.NewNotFoundError("identity", identityAddress)
		}
		return nil, fmt.Errorf("failed to get identity: %w", err)
	}

	return &record, nil
}

// GetByName retrieves an identity record by its normalized name
func (r *IdentityRepository) GetByName(ctx context.Context, name string) (*models.IdentityRecord, error) {
	query := `
		SELECT identity_address, name, friendly_name, primary_addresses,
			   defining_txid, block_height, minimum_signatures, parent,
			   revocation_authority, recovery_authority, timelock, flags,
			   status, resolved_at
		FROM identities
		WHERE name = $1
	`

	var record models.IdentityRecord

	err := r.db.Pool().QueryRow(ctx, query, name).Scan(
		&record.IdentityAddress,
		&record.Name,
		&record.FriendlyName,
		&record.PrimaryAddresses,
		&record.DefiningTxID,
		&record.BlockHeight,
		&record.MinimumSignatures,
		&record.Parent,
		&record.RevocationAuth,
		&record.RecoveryAuth,
		&record.Timelock,
		&record.Flags,
		&record.Status,
		&record.ResolvedAt,
	)

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, verrors.NewNotFoundError("identity", name)
		}
		return nil, fmt.Errorf("failed to get identity by name: %w", err)
	}

	return &record, nil
}

// ListAddresses returns all known identity addresses
func (r *IdentityRepository) ListAddresses(ctx context.Context) ([]string, error) {
	rows, err := r.db.Pool().Query(ctx, `SELECT identity_address FROM identities ORDER BY identity_address`)
	if err != nil {
		return nil, fmt.Errorf("failed to list identity addresses: %w", err)
	}
	defer rows.Close()

	var addresses []string
	for rows.Next() {
		var addr string
		if err := rows.Scan(&addr); err != nil {
			return nil, fmt.Errorf("failed to scan identity address: %w", err)
		}
		addresses = append(addresses, addr)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate identity addresses: %w", err)
	}

	return addresses, nil
}

// Count returns the number of known identities
func (r *IdentityRepository) Count(ctx context.Context) (int64, error) {
	var count int64
	err := r.db.Pool().QueryRow(ctx, `SELECT COUNT(*) FROM identities`).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count identities: %w", err)
	}
	return count, nil
}
