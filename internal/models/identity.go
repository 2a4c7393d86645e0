// Package models defines the persisted data model of the VerusPulse core.
package models

import "time"

// IdentityRecord represents a resolved VerusID. A record is immutable for a
// given defining transaction; a re-definition on-chain supersedes the cached
// copy on the next resolution. Records are never deleted.
type IdentityRecord struct {
	IdentityAddress   string    `json:"identityAddress" db:"identity_address"`
	Name              string    `json:"name" db:"name"`
	FriendlyName      string    `json:"friendlyName" db:"friendly_name"`
	PrimaryAddresses  []string  `json:"primaryAddresses" db:"primary_addresses"`
	DefiningTxID      string    `json:"definingTxId" db:"defining_txid"`
	BlockHeight       int64     `json:"blockHeight" db:"block_height"`
	MinimumSignatures int       `json:"minimumSignatures" db:"minimum_signatures"`
	Parent            string    `json:"parent" db:"parent"`
	RevocationAuth    string    `json:"revocationAuthority" db:"revocation_authority"`
	RecoveryAuth      string    `json:"recoveryAuthority" db:"recovery_authority"`
	Timelock          int64     `json:"timelock" db:"timelock"`
	Flags             int64     `json:"flags" db:"flags"`
	Status            string    `json:"status" db:"status"`
	ResolvedAt        time.Time `json:"resolvedAt" db:"resolved_at"`
}

// IdentityStatusActive and friends are the daemon-reported identity states.
const (
	IdentityStatusActive  = "active"
	IdentityStatusRevoked = "revoked"
)

// IsStale reports whether the record is older than ttl and should be
// re-resolved against the node.
func (r *IdentityRecord) IsStale(ttl time.Duration) bool {
	return time.Since(r.ResolvedAt) > ttl
}
