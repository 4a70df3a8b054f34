package service

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/rl-arena/matchmaker/internal/models"
	"github.com/rl-arena/matchmaker/pkg/executor"
)

// OutcomeKind 디스패치 결과 분류
type OutcomeKind string

const (
	// OutcomeCompleted 매치가 정상 종료되어 승패/무승부가 결정됨
	OutcomeCompleted OutcomeKind = "completed"
	// OutcomeFailed 에이전트 귀책 실패. 디스패처는 자동 재시도하지 않는다.
	OutcomeFailed OutcomeKind = "failed"
	// OutcomeInfraError 종료 상태를 관측하기 전의 전송 실패/타임아웃.
	// 에이전트 귀책이 아니므로 스케줄러가 재큐잉할 수 있다.
	OutcomeInfraError OutcomeKind = "infra_error"
	// OutcomeDomainError 실행은 종료됐지만 결과를 해석할 수 없음
	// (예: winner id가 어느 쪽도 아님). 레이팅 처리상 infra와 동일하되
	// 운영 triage를 위해 따로 로깅된다.
	OutcomeDomainError OutcomeKind = "domain_error"
)

// MatchOutcome 스케줄러 SETTLING 단계의 입력
type MatchOutcome struct {
	Kind     OutcomeKind
	WinnerID *string // nil이면 무승부 (Kind == OutcomeCompleted 일 때)
	ScoreA   float64
	ScoreB   float64
	Error    string
}

// ExecutorClient 원격 매치 실행 계약
type ExecutorClient interface {
	RunMatch(ctx context.Context, req executor.RunMatchRequest) (*executor.RunMatchResponse, error)
}

// DispatchService 한 쌍을 원격 실행 서비스에 보내고 바운디드 타임아웃으로
// 결과를 기다린 뒤 결과를 분류한다.
type DispatchService struct {
	client  ExecutorClient
	timeout time.Duration
	logger  *zap.Logger
}

// NewDispatchService dispatch service 생성. timeout은 실행 시간 + 여유분.
func NewDispatchService(client ExecutorClient, timeout time.Duration, logger *zap.Logger) *DispatchService {
	return &DispatchService{
		client:  client,
		timeout: timeout,
		logger:  logger,
	}
}

// Dispatch 매치 실행 요청. 원격 호출이 타임아웃을 넘기면 기다림을 멈추고
// INFRA_ERROR로 보고한다. 원격 협력자에게 취소 신호가 전달된다고 가정하지
// 않는다.
func (s *DispatchService) Dispatch(ctx context.Context, match *models.Match, pair models.Pair) MatchOutcome {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	resp, err := s.client.RunMatch(ctx, executor.RunMatchRequest{
		MatchID:       match.ID,
		EnvironmentID: match.EnvironmentID,
		AgentA: executor.AgentRef{
			AgentID:      pair.A.AgentID,
			SubmissionID: pair.A.SubmissionID,
		},
		AgentB: executor.AgentRef{
			AgentID:      pair.B.AgentID,
			SubmissionID: pair.B.SubmissionID,
		},
		TimeoutSec: int(s.timeout.Seconds()),
	})

	if err != nil {
		kind := OutcomeInfraError
		reason := "executor call failed"
		if errors.Is(err, context.DeadlineExceeded) {
			reason = "executor call timed out"
		}
		s.logger.Error("Match dispatch failed",
			zap.String("matchId", match.ID),
			zap.String("reason", reason),
			zap.Error(err))
		return MatchOutcome{Kind: kind, Error: err.Error()}
	}

	return s.classify(match, pair, resp)
}

// classify executor 응답을 스케줄러가 처리할 수 있는 결과로 변환
func (s *DispatchService) classify(match *models.Match, pair models.Pair, resp *executor.RunMatchResponse) MatchOutcome {
	switch resp.Status {
	case executor.StatusCompleted:
		var winnerID *string
		switch resp.WinnerID {
		case "":
			// 무승부
		case pair.A.AgentID, pair.B.AgentID:
			w := resp.WinnerID
			winnerID = &w
		default:
			// 승자가 매치 참가자 어느 쪽도 아니다
			s.logger.Error("Executor reported unknown winner",
				zap.String("matchId", match.ID),
				zap.String("winnerId", resp.WinnerID),
				zap.String("agentA", pair.A.AgentID),
				zap.String("agentB", pair.B.AgentID))
			return MatchOutcome{
				Kind:  OutcomeDomainError,
				Error: "winner id does not match either agent",
			}
		}

		return MatchOutcome{
			Kind:     OutcomeCompleted,
			WinnerID: winnerID,
			ScoreA:   resp.ScoreA,
			ScoreB:   resp.ScoreB,
		}

	case executor.StatusFailed:
		return MatchOutcome{Kind: OutcomeFailed, Error: resp.ErrorMessage}

	case executor.StatusTimeout:
		return MatchOutcome{Kind: OutcomeInfraError, Error: "execution timed out"}

	default:
		s.logger.Error("Executor reported unknown status",
			zap.String("matchId", match.ID),
			zap.String("status", resp.Status))
		return MatchOutcome{
			Kind:  OutcomeDomainError,
			Error: "unknown executor status: " + resp.Status,
		}
	}
}
