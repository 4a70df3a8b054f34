package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/rl-arena/matchmaker/internal/models"
)

// SubmissionReader 제출 조회 계약
type SubmissionReader interface {
	FindByID(ctx context.Context, id string) (*models.Submission, error)
}

// QueueWriter 큐 등록/철회 계약 (읽기 전용 API와 스케줄러 수집은
// QueueRepository를 쓴다)
type QueueWriter interface {
	Enqueue(ctx context.Context, agentID, submissionID, environmentID string) error
	Remove(ctx context.Context, agentID string) (bool, error)
}

// MatchReader 매치 조회 계약
type MatchReader interface {
	FindByID(ctx context.Context, matchID string) (*models.Match, error)
	ListByAgent(ctx context.Context, agentID string, limit int) ([]models.Match, error)
}

// LeaderboardReader 환경별 순위 조회 계약
type LeaderboardReader interface {
	Leaderboard(ctx context.Context, environmentID string, limit int) ([]models.Agent, error)
}

// MatchmakingService HTTP 표면용 파사드. 큐 등록/철회 검증과 적격/이력/순위
// 조회를 담당한다. 페어링과 정산은 스케줄러 소관이다.
type MatchmakingService struct {
	agentReader AgentReader
	submissions SubmissionReader
	queue       QueueWriter
	matches     MatchReader
	leaderboard LeaderboardReader
	statsRepo   StatsRepository
	guard       *RateLimitGuard
	logger      *zap.Logger

	now func() time.Time
}

func NewMatchmakingService(
	agentReader AgentReader,
	submissions SubmissionReader,
	queue QueueWriter,
	matches MatchReader,
	leaderboard LeaderboardReader,
	statsRepo StatsRepository,
	guard *RateLimitGuard,
	logger *zap.Logger,
) *MatchmakingService {
	return &MatchmakingService{
		agentReader: agentReader,
		submissions: submissions,
		queue:       queue,
		matches:     matches,
		leaderboard: leaderboard,
		statsRepo:   statsRepo,
		guard:       guard,
		logger:      logger,
		now:         time.Now,
	}
}

// EligibilityResponse 적격 조회 응답
type EligibilityResponse struct {
	AgentID string            `json:"agentId"`
	Rating  float64           `json:"rating"`
	Verdict models.Verdict    `json:"verdict"`
	Stats   *EligibilityStats `json:"stats,omitempty"`
}

// EligibilityStats 응답용 사용량 요약
type EligibilityStats struct {
	LastMatchAt  *time.Time `json:"lastMatchAt"`
	MatchesToday int        `json:"matchesToday"`
	DailyResetAt time.Time  `json:"dailyResetAt"`
	TotalMatches int        `json:"totalMatches"`
}

// EligibilityFor 에이전트의 현재 매치 적격 여부. 스케줄러와 동일한 판정
// 로직(guard)을 같은 UTC 기준으로 적용한다.
func (s *MatchmakingService) EligibilityFor(ctx context.Context, agentID string) (*EligibilityResponse, error) {
	agent, err := s.agentReader.FindByID(ctx, agentID)
	if err != nil {
		return nil, err
	}
	if agent == nil {
		return nil, ErrAgentNotFound
	}

	stats, err := s.statsRepo.Get(ctx, agentID)
	if err != nil {
		return nil, err
	}

	verdict := s.guard.Evaluate(stats, s.now().UTC())

	resp := &EligibilityResponse{
		AgentID: agent.ID,
		Rating:  agent.Rating,
		Verdict: verdict,
	}
	if stats != nil {
		resp.Stats = &EligibilityStats{
			LastMatchAt:  stats.LastMatchAt,
			MatchesToday: stats.MatchesToday,
			DailyResetAt: stats.DailyResetAt,
			TotalMatches: stats.TotalMatches,
		}
	}

	return resp, nil
}

// Enqueue 에이전트를 매칭 큐에 등록한다. submissionID가 비어 있으면
// 에이전트의 active 제출을 쓴다. active 상태의 제출만 큐에 들어갈 수 있다.
func (s *MatchmakingService) Enqueue(ctx context.Context, agentID, submissionID string) error {
	if agentID == "" {
		return ErrInvalidInput
	}

	agent, err := s.agentReader.FindByID(ctx, agentID)
	if err != nil {
		return err
	}
	if agent == nil {
		return ErrAgentNotFound
	}

	if submissionID == "" {
		if agent.ActiveSubmissionID == nil {
			return ErrAgentNotReady
		}
		submissionID = *agent.ActiveSubmissionID
	}

	submission, err := s.submissions.FindByID(ctx, submissionID)
	if err != nil {
		return err
	}
	if submission == nil || submission.AgentID != agentID {
		return ErrAgentNotReady
	}
	if submission.Status != models.SubmissionStatusActive {
		return ErrSubmissionNotBuilt
	}

	if err := s.queue.Enqueue(ctx, agentID, submissionID, agent.EnvironmentID); err != nil {
		return err
	}

	s.logger.Info("Agent enqueued for matchmaking",
		zap.String("agentId", agentID),
		zap.String("submissionId", submissionID),
		zap.String("environmentId", agent.EnvironmentID))

	return nil
}

// Withdraw 큐에서 에이전트 철회. 큐에 없으면 ErrNotFound.
func (s *MatchmakingService) Withdraw(ctx context.Context, agentID string) error {
	removed, err := s.queue.Remove(ctx, agentID)
	if err != nil {
		return err
	}
	if !removed {
		return ErrNotFound
	}

	s.logger.Info("Agent withdrawn from matchmaking queue",
		zap.String("agentId", agentID))
	return nil
}

// GetMatch 매치 단건 조회
func (s *MatchmakingService) GetMatch(ctx context.Context, matchID string) (*models.Match, error) {
	match, err := s.matches.FindByID(ctx, matchID)
	if err != nil {
		return nil, err
	}
	if match == nil {
		return nil, ErrMatchNotFound
	}
	return match, nil
}

// ListAgentMatches 에이전트의 매치 이력 (최신순)
func (s *MatchmakingService) ListAgentMatches(ctx context.Context, agentID string, limit int) ([]models.Match, error) {
	agent, err := s.agentReader.FindByID(ctx, agentID)
	if err != nil {
		return nil, err
	}
	if agent == nil {
		return nil, ErrAgentNotFound
	}
	return s.matches.ListByAgent(ctx, agentID, limit)
}

// GetLeaderboard 환경별 레이팅 순위
func (s *MatchmakingService) GetLeaderboard(ctx context.Context, environmentID string, limit int) ([]models.Agent, error) {
	if environmentID == "" {
		return nil, ErrInvalidInput
	}
	return s.leaderboard.Leaderboard(ctx, environmentID, limit)
}
