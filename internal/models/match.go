package models

import "time"

type MatchStatus string

const (
	MatchStatusQueued    MatchStatus = "queued"
	MatchStatusRunning   MatchStatus = "running"
	MatchStatusCompleted MatchStatus = "completed"
	MatchStatusFailed    MatchStatus = "failed"
)

// Terminal 매치가 종료 상태인지 확인
func (s MatchStatus) Terminal() bool {
	return s == MatchStatusCompleted || s == MatchStatusFailed
}

type Match struct {
	ID            string      `json:"id" db:"id"`
	EnvironmentID string      `json:"environmentId" db:"environment_id"`
	AgentAID      string      `json:"agentAId" db:"agent_a_id"`
	AgentBID      string      `json:"agentBId" db:"agent_b_id"`
	SubmissionAID string      `json:"submissionAId" db:"submission_a_id"`
	SubmissionBID string      `json:"submissionBId" db:"submission_b_id"`
	Status        MatchStatus `json:"status" db:"status"`
	WinnerID      *string     `json:"winnerId,omitempty" db:"winner_id"`
	ScoreA        *float64    `json:"scoreA,omitempty" db:"score_a"`
	ScoreB        *float64    `json:"scoreB,omitempty" db:"score_b"`
	RatingDeltaA  *float64    `json:"ratingDeltaA,omitempty" db:"rating_delta_a"`
	RatingDeltaB  *float64    `json:"ratingDeltaB,omitempty" db:"rating_delta_b"`
	ErrorMessage  *string     `json:"errorMessage,omitempty" db:"error_message"`
	CreatedAt     time.Time   `json:"createdAt" db:"created_at"`
	CompletedAt   *time.Time  `json:"completedAt,omitempty" db:"completed_at"`
}

// MatchSettlement 완료된 매치 한 건을 원자적으로 커밋하기 위한 값 묶음.
// 매치 행, 양쪽 에이전트의 레이팅/전적, usage stats, 큐 제거가 한 트랜잭션으로 반영된다.
type MatchSettlement struct {
	MatchID     string
	WinnerID    *string // nil = 무승부
	ScoreA      float64
	ScoreB      float64
	CompletedAt time.Time

	AgentAID   string
	AgentBID   string
	NewRatingA float64
	NewRatingB float64
	DeltaA     float64
	DeltaB     float64

	StatsA *UsageStats
	StatsB *UsageStats

	// RemoveQueueAgentIDs 소비된 큐 엔트리의 agent_id 목록
	RemoveQueueAgentIDs []string
}
