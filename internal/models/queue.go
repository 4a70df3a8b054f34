package models

import "time"

// QueueEntry 매칭 대기열 엔트리. 빌드 성공 시 생성되고, 페어링에 소비되거나
// 에이전트 삭제/제출 비활성화로 철회될 때 제거된다. 에이전트당 하나만 존재.
type QueueEntry struct {
	ID            string     `json:"id" db:"id"`
	AgentID       string     `json:"agentId" db:"agent_id"`
	SubmissionID  string     `json:"submissionId" db:"submission_id"`
	EnvironmentID string     `json:"environmentId" db:"environment_id"`
	EnqueuedAt    time.Time  `json:"enqueuedAt" db:"enqueued_at"`
	HoldUntil     *time.Time `json:"holdUntil,omitempty" db:"hold_until"`
}

// QueuedAgent is one row of the queue joined with the agent's current rating
// and usage stats: the unit the scheduler collects, filters and pairs.
type QueuedAgent struct {
	QueueEntry
	Rating        float64     `json:"rating" db:"rating"`
	MatchesPlayed int         `json:"matchesPlayed" db:"matches_played"`
	Stats         *UsageStats `json:"stats,omitempty"`
}

// Pair 같은 환경에서 레이팅 근접 규칙으로 묶인 두 에이전트
type Pair struct {
	A         QueuedAgent
	B         QueuedAgent
	RatingGap float64
}
