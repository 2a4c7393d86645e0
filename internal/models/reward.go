package models

import "time"

// DailyRewardStat is the per-day reward accumulation for an identity.
// Keyed uniquely by (identity address, calendar day). Mutated only by the
// scan coordinator through idempotent reward-event upserts.
type DailyRewardStat struct {
	IdentityAddress string    `json:"identityAddress" db:"identity_address"`
	Day             time.Time `json:"day" db:"day"`
	TotalAmount     float64   `json:"totalAmount" db:"total_amount"`
	EventCount      int64     `json:"eventCount" db:"event_count"`
}

// RewardEvent is a single reward-bearing transaction credited to an
// identity. The (identity address, txid) key is what makes replays of the
// same contribution detectable.
type RewardEvent struct {
	IdentityAddress string    `json:"identityAddress" db:"identity_address"`
	TxID            string    `json:"txid" db:"txid"`
	Day             time.Time `json:"day" db:"day"`
	Amount          float64   `json:"amount" db:"amount"`
	BlockHeight     int64     `json:"blockHeight" db:"block_height"`
}

// WeeklyAggregate is a derived projection of DailyRewardStat grouped by ISO
// week start (the Monday on or before the day). Recomputable at any time.
type WeeklyAggregate struct {
	WeekStart   time.Time `json:"weekStart"`
	TotalAmount float64   `json:"totalAmount"`
	EventCount  int64     `json:"eventCount"`
}

// MonthlyAggregate is a derived projection of DailyRewardStat grouped by
// calendar month.
type MonthlyAggregate struct {
	Year        int     `json:"year"`
	Month       int     `json:"month"`
	TotalAmount float64 `json:"totalAmount"`
	EventCount  int64   `json:"eventCount"`
}

// IdentityStats is the read model served to callers. A zero-valued struct
// (not an error) is the answer for identities with no indexed rewards yet.
type IdentityStats struct {
	IdentityAddress string            `json:"identityAddress"`
	TotalRewards    float64           `json:"totalRewards"`
	RewardCount     int64             `json:"rewardCount"`
	DailyStats      []DailyRewardStat `json:"dailyStats"`
}
