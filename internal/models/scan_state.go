package models

import "time"

// ScanPhase is the lifecycle phase of an identity's history scan.
type ScanPhase string

const (
	ScanIdle     ScanPhase = "idle"
	ScanRunning  ScanPhase = "scanning"
	ScanComplete ScanPhase = "complete"
	ScanFailed   ScanPhase = "failed"
)

// ScanState tracks per-identity scan progress. At most one scan may be
// in progress for an identity address at any instant; LastHeight only ever
// moves forward so an interrupted scan resumes instead of restarting.
type ScanState struct {
	IdentityAddress string     `json:"identityAddress" db:"identity_address"`
	LastHeight      int64      `json:"lastHeight" db:"last_height"`
	Complete        bool       `json:"complete" db:"complete"`
	InProgress      bool       `json:"inProgress" db:"in_progress"`
	LastError       *string    `json:"lastError,omitempty" db:"last_error"`
	LastScanAt      *time.Time `json:"lastScanAt,omitempty" db:"last_scan_at"`
}

// Phase derives the lifecycle phase from the persisted flags.
func (s *ScanState) Phase() ScanPhase {
	switch {
	case s.InProgress:
		return ScanRunning
	case s.LastError != nil:
		return ScanFailed
	case s.Complete:
		return ScanComplete
	default:
		return ScanIdle
	}
}
