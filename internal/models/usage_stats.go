package models

import "time"

// UsageStats rate limiting용 에이전트별 매치 사용량.
// All instants are stored in UTC; daily_reset_at is always the next UTC
// midnight relative to the reset that produced it.
type UsageStats struct {
	AgentID      string     `json:"agentId" db:"agent_id"`
	LastMatchAt  *time.Time `json:"lastMatchAt" db:"last_match_at"`
	MatchesToday int        `json:"matchesToday" db:"matches_today"`
	DailyResetAt time.Time  `json:"dailyResetAt" db:"daily_reset_at"`
	TotalMatches int        `json:"totalMatches" db:"total_matches"`
	CreatedAt    time.Time  `json:"createdAt" db:"created_at"`
	UpdatedAt    time.Time  `json:"updatedAt" db:"updated_at"`
}

// RateLimitConfig per-agent match rate limit parameters
type RateLimitConfig struct {
	DailyMatchLimit int           // Maximum matches per UTC day per agent
	MatchCooldown   time.Duration // Minimum time between consecutive matches
}

// DefaultRateLimitConfig returns the documented defaults (Kaggle-style).
func DefaultRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		DailyMatchLimit: 100,
		MatchCooldown:   5 * time.Minute,
	}
}

// Eligibility reasons returned by the rate limit guard.
const (
	ReasonCooldown   = "COOLDOWN"
	ReasonDailyLimit = "DAILY_LIMIT"
)

// Verdict 단일 에이전트에 대한 매치 가능 여부 판정
type Verdict struct {
	Eligible       bool          `json:"eligible"`
	Reason         string        `json:"reason,omitempty"`
	RetryAfter     time.Duration `json:"-"`
	RetryAt        *time.Time    `json:"retryAt,omitempty"`
	RemainingToday int           `json:"remainingToday"`
}
