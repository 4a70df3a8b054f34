package notify

// Event types emitted on the match lifecycle channel.
const (
	EventMatchCreated   = "match_created"
	EventMatchCompleted = "match_completed"
)

// MatchCreatedEvent DISPATCHING 단계에서 발행
type MatchCreatedEvent struct {
	MatchID       string `json:"matchId"`
	EnvironmentID string `json:"environmentId"`
	AgentAID      string `json:"agentAId"`
	AgentBID      string `json:"agentBId"`
}

// MatchCompletedEvent SETTLING 단계에서 발행
type MatchCompletedEvent struct {
	MatchID       string  `json:"matchId"`
	EnvironmentID string  `json:"environmentId"`
	WinnerID      *string `json:"winnerId"` // nil = 무승부
	RatingDeltaA  float64 `json:"ratingDeltaA"`
	RatingDeltaB  float64 `json:"ratingDeltaB"`
}
