package service

import (
	"time"

	"github.com/rl-arena/matchmaker/internal/models"
)

// RateLimitGuard 에이전트별 매치 rate limit 판정.
// Evaluate/Commit 모두 순수 함수이며, Commit 결과의 영속화는 호출자(스케줄러)가
// 매치 생성/정산 쓰기와 원자적으로 수행한다.
//
// NOTE: all comparisons happen in UTC. Mixing local and UTC instants is the
// single most consequential correctness hazard here; every stored timestamp
// must already be UTC and `now` is normalized before use.
type RateLimitGuard struct {
	config models.RateLimitConfig
}

// NewRateLimitGuard rate limit guard 생성
func NewRateLimitGuard(config models.RateLimitConfig) *RateLimitGuard {
	return &RateLimitGuard{config: config}
}

// Config returns the active limits (used by the stats read API).
func (g *RateLimitGuard) Config() models.RateLimitConfig {
	return g.config
}

// Evaluate 판정. stats가 nil이면 이전 매치가 없는 에이전트이므로 항상 eligible.
// daily_reset_at이 지났으면 한도 검사 전에 리셋을 먼저 적용한다(리셋 뷰).
func (g *RateLimitGuard) Evaluate(stats *models.UsageStats, now time.Time) models.Verdict {
	now = now.UTC()

	if stats == nil {
		return models.Verdict{
			Eligible:       true,
			RemainingToday: g.config.DailyMatchLimit,
		}
	}

	matchesToday := stats.MatchesToday
	if !now.Before(stats.DailyResetAt) {
		// Reset applies before any limit check, not merely scheduled.
		matchesToday = 0
	}

	if matchesToday >= g.config.DailyMatchLimit {
		retryAt := stats.DailyResetAt
		return models.Verdict{
			Eligible:       false,
			Reason:         models.ReasonDailyLimit,
			RetryAfter:     retryAt.Sub(now),
			RetryAt:        &retryAt,
			RemainingToday: 0,
		}
	}

	if stats.LastMatchAt != nil {
		sinceLast := now.Sub(stats.LastMatchAt.UTC())
		if sinceLast < g.config.MatchCooldown {
			retryAt := stats.LastMatchAt.UTC().Add(g.config.MatchCooldown)
			return models.Verdict{
				Eligible:       false,
				Reason:         models.ReasonCooldown,
				RetryAfter:     g.config.MatchCooldown - sinceLast,
				RetryAt:        &retryAt,
				RemainingToday: g.config.DailyMatchLimit - matchesToday,
			}
		}
	}

	return models.Verdict{
		Eligible:       true,
		RemainingToday: g.config.DailyMatchLimit - matchesToday,
	}
}

// Commit 매치가 디스패치된 에이전트의 사용량 반영. Evaluate와 동일한
// reset-before-increment 규칙을 적용한 새 stats를 반환한다.
// stats가 nil이면 첫 매치 기록을 만든다.
func (g *RateLimitGuard) Commit(stats *models.UsageStats, now time.Time) *models.UsageStats {
	now = now.UTC()

	updated := models.UsageStats{}
	if stats != nil {
		updated = *stats
	}

	if stats == nil || !now.Before(updated.DailyResetAt) {
		updated.MatchesToday = 0
		updated.DailyResetAt = nextMidnightUTC(now)
	}

	last := now
	updated.LastMatchAt = &last
	updated.MatchesToday++
	updated.TotalMatches++
	updated.UpdatedAt = now

	return &updated
}

// nextMidnightUTC now 이후의 다음 UTC 자정. 항상 now보다 엄격히 미래다.
func nextMidnightUTC(now time.Time) time.Time {
	now = now.UTC()
	year, month, day := now.Date()
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC).AddDate(0, 0, 1)
}
