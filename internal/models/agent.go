package models

import "time"

// DefaultRating 신규 에이전트 초기 레이팅
const DefaultRating = 1200.0

type Agent struct {
	ID                 string    `json:"id" db:"id"`
	OwnerID            string    `json:"ownerId" db:"owner_id"`
	Name               string    `json:"name" db:"name"`
	EnvironmentID      string    `json:"environmentId" db:"environment_id"`
	Rating             float64   `json:"rating" db:"rating"`
	MatchesPlayed      int       `json:"matchesPlayed" db:"matches_played"`
	Wins               int       `json:"wins" db:"wins"`
	Losses             int       `json:"losses" db:"losses"`
	Draws              int       `json:"draws" db:"draws"`
	ActiveSubmissionID *string   `json:"activeSubmissionId,omitempty" db:"active_submission_id"`
	CreatedAt          time.Time `json:"createdAt" db:"created_at"`
	UpdatedAt          time.Time `json:"updatedAt" db:"updated_at"`
}
