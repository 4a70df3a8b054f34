package models

import "time"

type SubmissionStatus string

const (
	SubmissionStatusPending  SubmissionStatus = "pending"
	SubmissionStatusBuilding SubmissionStatus = "building"
	SubmissionStatusActive   SubmissionStatus = "active"
	SubmissionStatusFailed   SubmissionStatus = "failed"
)

// Submission 에이전트의 실행 가능한 빌드. 빌드 파이프라인은 바깥 플랫폼
// 소관이고, 엔진은 active 제출만 큐에 받는다.
type Submission struct {
	ID        string           `json:"id" db:"id"`
	AgentID   string           `json:"agentId" db:"agent_id"`
	Status    SubmissionStatus `json:"status" db:"status"`
	ImageURL  *string          `json:"imageUrl,omitempty" db:"image_url"`
	CreatedAt time.Time        `json:"createdAt" db:"created_at"`
	UpdatedAt time.Time        `json:"updatedAt" db:"updated_at"`
}
