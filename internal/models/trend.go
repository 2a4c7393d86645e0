package models

import "time"

// TrendSnapshot is one row of the ranked reward-velocity listing. The full
// snapshot set is replaced atomically on each aggregation run; readers never
// observe a partially written set.
type TrendSnapshot struct {
	IdentityAddress string    `json:"identityAddress" db:"identity_address"`
	Score           float64   `json:"score" db:"score"`
	WindowTotal     float64   `json:"windowTotal" db:"window_total"`
	WindowDays      int       `json:"windowDays" db:"window_days"`
	LastRewardAt    time.Time `json:"lastRewardAt" db:"last_reward_at"`
	ComputedAt      time.Time `json:"computedAt" db:"computed_at"`
}
