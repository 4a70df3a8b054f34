package service

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/rl-arena/matchmaker/internal/models"
	"github.com/rl-arena/matchmaker/internal/notify"
)

// QueueRepository 스케줄러가 쓰는 매칭 큐 저장소 계약
type QueueRepository interface {
	// ListQueuedAgents 큐를 현재 레이팅/usage stats와 조인해서 반환.
	// environmentID가 빈 문자열이면 전체 환경.
	ListQueuedAgents(ctx context.Context, environmentID string) ([]models.QueuedAgent, error)
	// Enqueue 큐 등록 upsert. 에이전트당 live 엔트리는 하나만 유지된다.
	Enqueue(ctx context.Context, agentID, submissionID, environmentID string) error
	// Hold 엔트리를 until까지 수집 대상에서 제외 (infra 실패 backoff)
	Hold(ctx context.Context, agentID string, until time.Time) error
}

// MatchRepository 매치 레코드 저장소 계약
type MatchRepository interface {
	Create(ctx context.Context, match *models.Match) (*models.Match, error)
	MarkRunning(ctx context.Context, matchID string) error
	MarkFailed(ctx context.Context, matchID, reason string) error
	// ListUnsettled 재기동 복구용: status가 queued/running인 매치
	ListUnsettled(ctx context.Context) ([]*models.Match, error)
}

// SettlementRepository 완료 매치의 원자적 커밋 계약.
// 매치 행, 양쪽 레이팅/전적, usage stats, 큐 제거가 전부 반영되거나 전부
// 반영되지 않아야 한다.
type SettlementRepository interface {
	CommitCompleted(ctx context.Context, settlement models.MatchSettlement) error
}

// StatsRepository usage stats 조회 계약
type StatsRepository interface {
	Get(ctx context.Context, agentID string) (*models.UsageStats, error)
}

// AgentReader 에이전트 조회 계약 (정산 시 최신 레이팅, 복구 시 페어 복원)
type AgentReader interface {
	FindByID(ctx context.Context, id string) (*models.Agent, error)
}

// Dispatcher 매치 실행 계약
type Dispatcher interface {
	Dispatch(ctx context.Context, match *models.Match, pair models.Pair) MatchOutcome
}

// Notifier 상태 전이 알림. best-effort이며 호출이 블록되거나 실패를
// 전파해서는 안 된다.
type Notifier interface {
	MatchCreated(event notify.MatchCreatedEvent)
	MatchCompleted(event notify.MatchCompletedEvent)
}

// TickLocker 틱 리더십. 획득 실패는 다른 인스턴스가 이번 틱을 수행 중이라는
// 뜻이고 에러가 아니다. nil locker는 단일 인스턴스 배포를 의미한다.
type TickLocker interface {
	AcquireTick(ctx context.Context) (release func(), acquired bool, err error)
}

// SchedulerConfig 스케줄러 동작 파라미터
type SchedulerConfig struct {
	Interval            time.Duration
	DispatchConcurrency int
	// AutoRequeue 완료된 매치의 에이전트를 자동으로 다시 큐에 넣는다.
	// 쿨다운이 다음 적격 시점을 결정한다.
	AutoRequeue bool
	// InfraRetryBackoff infra 실패 에이전트를 다시 수집하기까지의 대기.
	// 0이면 다음 틱부터 바로 적격.
	InfraRetryBackoff time.Duration
}

// MatchmakingScheduler 주기적 매칭 제어 루프.
// 한 틱은 COLLECTING → PAIRING → DISPATCHING → SETTLING 순서로 진행한다.
// 틱 드라이버는 단일 고루틴이고, 디스패치만 바운디드 동시성으로 퍼진다.
// 정산은 디스패치 완료 순서대로 (틱 순서와 무관하게) 이루어진다.
type MatchmakingScheduler struct {
	queueRepo      QueueRepository
	matchRepo      MatchRepository
	settlementRepo SettlementRepository
	statsRepo      StatsRepository
	agentReader    AgentReader
	guard          *RateLimitGuard
	pairing        *PairingService
	elo            *ELOService
	dispatcher     Dispatcher
	notifier       Notifier
	locker         TickLocker
	logger         *zap.Logger
	config         SchedulerConfig

	// clock 테스트에서 주입 가능한 시계. 한 틱의 모든 판정은 단일 now
	// 스냅샷을 쓴다.
	clock func() time.Time

	sem *semaphore.Weighted

	mu       sync.Mutex
	inFlight map[string]struct{}

	stopChan chan struct{}
	wg       sync.WaitGroup
	running  bool
	runMu    sync.Mutex
}

// NewMatchmakingScheduler 스케줄러 생성
func NewMatchmakingScheduler(
	queueRepo QueueRepository,
	matchRepo MatchRepository,
	settlementRepo SettlementRepository,
	statsRepo StatsRepository,
	agentReader AgentReader,
	guard *RateLimitGuard,
	pairing *PairingService,
	elo *ELOService,
	dispatcher Dispatcher,
	notifier Notifier,
	locker TickLocker,
	logger *zap.Logger,
	config SchedulerConfig,
) *MatchmakingScheduler {
	if config.DispatchConcurrency <= 0 {
		config.DispatchConcurrency = 4
	}

	return &MatchmakingScheduler{
		queueRepo:      queueRepo,
		matchRepo:      matchRepo,
		settlementRepo: settlementRepo,
		statsRepo:      statsRepo,
		agentReader:    agentReader,
		guard:          guard,
		pairing:        pairing,
		elo:            elo,
		dispatcher:     dispatcher,
		notifier:       notifier,
		locker:         locker,
		logger:         logger,
		config:         config,
		clock:          time.Now,
		sem:            semaphore.NewWeighted(int64(config.DispatchConcurrency)),
		inFlight:       make(map[string]struct{}),
		stopChan:       make(chan struct{}),
	}
}

// SetClock 테스트용 시계 주입
func (s *MatchmakingScheduler) SetClock(clock func() time.Time) {
	s.clock = clock
}

// Start 매칭 루프 시작
func (s *MatchmakingScheduler) Start() {
	s.runMu.Lock()
	if s.running {
		s.runMu.Unlock()
		return
	}
	s.running = true
	s.runMu.Unlock()

	s.logger.Info("Starting matchmaking scheduler",
		zap.Duration("interval", s.config.Interval),
		zap.Int("dispatchConcurrency", s.config.DispatchConcurrency))

	s.wg.Add(1)
	go s.loop()
}

// Stop 매칭 루프 중지. 진행 중인 디스패치가 정산될 때까지 기다린다.
func (s *MatchmakingScheduler) Stop() {
	s.runMu.Lock()
	if !s.running {
		s.runMu.Unlock()
		return
	}
	s.running = false
	s.runMu.Unlock()

	s.logger.Info("Stopping matchmaking scheduler")
	close(s.stopChan)
	s.wg.Wait()
	s.logger.Info("Matchmaking scheduler stopped")
}

func (s *MatchmakingScheduler) loop() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.config.Interval)
	defer ticker.Stop()

	// 시작 시 한번 실행
	s.RunTick(context.Background())

	for {
		select {
		case <-ticker.C:
			s.RunTick(context.Background())
		case <-s.stopChan:
			return
		}
	}
}

// RunTick 한 틱 실행. 틱 안의 어떤 실패도 루프를 죽이지 않는다. 로깅 후
// 다음 틱을 기다린다. 테스트에서 동기적으로 직접 호출할 수 있다.
func (s *MatchmakingScheduler) RunTick(ctx context.Context) {
	if s.locker != nil {
		release, acquired, err := s.locker.AcquireTick(ctx)
		if err != nil {
			s.logger.Error("Failed to acquire tick lock", zap.Error(err))
			return
		}
		if !acquired {
			s.logger.Debug("Tick lock held by another instance, skipping")
			return
		}
		defer release()
	}

	now := s.clock().UTC()

	// COLLECTING: 큐 ⋈ stats 스냅샷을 단일 now로 필터
	pool, err := s.queueRepo.ListQueuedAgents(ctx, "")
	if err != nil {
		s.logger.Error("Failed to list queued agents", zap.Error(err))
		return
	}

	eligible := s.collectEligible(pool, now)
	if len(eligible) < 2 {
		if len(eligible) == 1 {
			s.logger.Debug("Not enough eligible agents for pairing",
				zap.Int("eligible", len(eligible)))
		}
		return
	}

	// PAIRING
	pairs := s.pairing.SelectPairs(eligible)
	if len(pairs) == 0 {
		return
	}

	// DISPATCHING: 동시성 캡이 허용하는 만큼만. 넘치는 쌍의 에이전트는
	// 큐에 남아 다음 틱으로 넘어간다.
	dispatched := 0
	for _, pair := range pairs {
		if !s.sem.TryAcquire(1) {
			s.logger.Info("Dispatch capacity reached, rolling over remaining pairs",
				zap.Int("dispatched", dispatched),
				zap.Int("rolledOver", len(pairs)-dispatched))
			break
		}

		s.markInFlight(pair.A.AgentID, pair.B.AgentID)
		s.wg.Add(1)
		go func(p models.Pair) {
			defer s.wg.Done()
			defer s.sem.Release(1)
			defer s.clearInFlight(p.A.AgentID, p.B.AgentID)
			s.runPair(context.Background(), p)
		}(pair)
		dispatched++
	}

	if dispatched > 0 {
		s.logger.Info("Matchmaking tick dispatched pairs",
			zap.Int("pool", len(pool)),
			zap.Int("eligible", len(eligible)),
			zap.Int("dispatched", dispatched))
	}
}

// collectEligible rate limit 필터 + 이미 매치 진행 중인 에이전트 제외
func (s *MatchmakingScheduler) collectEligible(pool []models.QueuedAgent, now time.Time) []models.QueuedAgent {
	eligible := make([]models.QueuedAgent, 0, len(pool))

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, qa := range pool {
		if _, busy := s.inFlight[qa.AgentID]; busy {
			continue
		}
		if qa.HoldUntil != nil && now.Before(qa.HoldUntil.UTC()) {
			continue
		}

		verdict := s.guard.Evaluate(qa.Stats, now)
		if !verdict.Eligible {
			s.logger.Debug("Agent not eligible this tick",
				zap.String("agentId", qa.AgentID),
				zap.String("reason", verdict.Reason),
				zap.Duration("retryAfter", verdict.RetryAfter))
			continue
		}

		eligible = append(eligible, qa)
	}

	return eligible
}

func (s *MatchmakingScheduler) markInFlight(agentIDs ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range agentIDs {
		s.inFlight[id] = struct{}{}
	}
}

func (s *MatchmakingScheduler) clearInFlight(agentIDs ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range agentIDs {
		delete(s.inFlight, id)
	}
}

// runPair 한 쌍 처리: 매치 레코드를 먼저 durable하게 만들고 나서 디스패치.
// 중간에 죽어도 queued 매치가 남아 재기동 복구가 이어받는다.
func (s *MatchmakingScheduler) runPair(ctx context.Context, pair models.Pair) {
	if pair.A.AgentID == pair.B.AgentID {
		// 저장 전에 거부하고 이번 틱에서 건너뛴다
		s.logger.Error("Rejecting malformed pairing",
			zap.String("agentId", pair.A.AgentID),
			zap.Error(ErrSameAgent))
		return
	}
	if pair.A.EnvironmentID != pair.B.EnvironmentID {
		s.logger.Error("Rejecting malformed pairing",
			zap.String("agentA", pair.A.AgentID),
			zap.String("agentB", pair.B.AgentID),
			zap.Error(ErrDifferentEnvironment))
		return
	}

	match, err := s.matchRepo.Create(ctx, &models.Match{
		EnvironmentID: pair.A.EnvironmentID,
		AgentAID:      pair.A.AgentID,
		AgentBID:      pair.B.AgentID,
		SubmissionAID: pair.A.SubmissionID,
		SubmissionBID: pair.B.SubmissionID,
		Status:        models.MatchStatusQueued,
	})
	if err != nil {
		// 에이전트는 큐에 남아 있으므로 다음 틱에 다시 시도된다
		s.logger.Error("Failed to create match record",
			zap.String("agentA", pair.A.AgentID),
			zap.String("agentB", pair.B.AgentID),
			zap.Error(err))
		return
	}

	s.notifier.MatchCreated(notify.MatchCreatedEvent{
		MatchID:       match.ID,
		EnvironmentID: match.EnvironmentID,
		AgentAID:      match.AgentAID,
		AgentBID:      match.AgentBID,
	})

	s.dispatchAndSettle(ctx, match, pair)
}

// dispatchAndSettle 디스패치와 정산. 복구 경로에서도 재사용된다.
func (s *MatchmakingScheduler) dispatchAndSettle(ctx context.Context, match *models.Match, pair models.Pair) {
	if err := s.matchRepo.MarkRunning(ctx, match.ID); err != nil {
		s.logger.Error("Failed to mark match running",
			zap.String("matchId", match.ID), zap.Error(err))
	}

	outcome := s.dispatcher.Dispatch(ctx, match, pair)
	s.settle(ctx, match, pair, outcome)
}

// settle SETTLING 단계. 각 쌍의 결과는 독립적으로 처리된다: 한 쌍의
// 영속화 실패가 다른 쌍의 커밋을 막지 않는다.
func (s *MatchmakingScheduler) settle(ctx context.Context, match *models.Match, pair models.Pair, outcome MatchOutcome) {
	now := s.clock().UTC()

	switch outcome.Kind {
	case OutcomeCompleted:
		s.settleCompleted(ctx, match, pair, outcome, now)

	case OutcomeFailed:
		// 에이전트 귀책 실패: failed 매치만 기록하고 레이팅/사용량은
		// 건드리지 않는다. 큐 엔트리는 소비되지 않았으므로 남는다.
		s.markFailed(ctx, match, outcome.Error)

	case OutcomeDomainError:
		// 레이팅 처리상 infra와 동일하되 운영 triage용으로 따로 로깅
		s.logger.Error("Match produced uninterpretable result",
			zap.String("matchId", match.ID),
			zap.String("detail", outcome.Error))
		s.markFailed(ctx, match, outcome.Error)
		s.holdAgents(ctx, pair, now)

	case OutcomeInfraError:
		// 에이전트 귀책이 아니다: failed 매치 기록, 사용량 소비 없음,
		// backoff 후 재수집
		s.markFailed(ctx, match, outcome.Error)
		s.holdAgents(ctx, pair, now)
	}
}

func (s *MatchmakingScheduler) settleCompleted(ctx context.Context, match *models.Match, pair models.Pair, outcome MatchOutcome, now time.Time) {
	var score float64
	switch {
	case outcome.WinnerID == nil:
		score = 0.5
	case *outcome.WinnerID == pair.A.AgentID:
		score = 1.0
	default:
		score = 0.0
	}

	// 정산 시점의 최신 상태로 계산한다. 에이전트당 동시 매치는 하나라는
	// 불변식 덕에 이 읽기와 아래 트랜잭션 사이에 경쟁 쓰기는 없다.
	agentA, err := s.agentReader.FindByID(ctx, pair.A.AgentID)
	if err != nil || agentA == nil {
		s.settlementInfraFailure(ctx, match, "failed to load agent A", err)
		return
	}
	agentB, err := s.agentReader.FindByID(ctx, pair.B.AgentID)
	if err != nil || agentB == nil {
		s.settlementInfraFailure(ctx, match, "failed to load agent B", err)
		return
	}

	statsA, err := s.statsRepo.Get(ctx, pair.A.AgentID)
	if err != nil {
		s.settlementInfraFailure(ctx, match, "failed to load usage stats for agent A", err)
		return
	}
	statsB, err := s.statsRepo.Get(ctx, pair.B.AgentID)
	if err != nil {
		s.settlementInfraFailure(ctx, match, "failed to load usage stats for agent B", err)
		return
	}

	newRatingA, newRatingB := s.elo.UpdateRatings(
		agentA.Rating, agentA.MatchesPlayed,
		agentB.Rating, agentB.MatchesPlayed,
		score,
	)

	committedA := s.guard.Commit(statsA, now)
	committedB := s.guard.Commit(statsB, now)
	committedA.AgentID = pair.A.AgentID
	committedB.AgentID = pair.B.AgentID

	settlement := models.MatchSettlement{
		MatchID:             match.ID,
		WinnerID:            outcome.WinnerID,
		ScoreA:              outcome.ScoreA,
		ScoreB:              outcome.ScoreB,
		CompletedAt:         now,
		AgentAID:            pair.A.AgentID,
		AgentBID:            pair.B.AgentID,
		NewRatingA:          newRatingA,
		NewRatingB:          newRatingB,
		DeltaA:              newRatingA - agentA.Rating,
		DeltaB:              newRatingB - agentB.Rating,
		StatsA:              committedA,
		StatsB:              committedB,
		RemoveQueueAgentIDs: []string{pair.A.AgentID, pair.B.AgentID},
	}

	if err := s.settlementRepo.CommitCompleted(ctx, settlement); err != nil {
		s.settlementInfraFailure(ctx, match, "failed to commit settlement", err)
		return
	}

	s.logger.Info("Match settled",
		zap.String("matchId", match.ID),
		zap.Stringp("winnerId", outcome.WinnerID),
		zap.Float64("deltaA", settlement.DeltaA),
		zap.Float64("deltaB", settlement.DeltaB))

	s.notifier.MatchCompleted(notify.MatchCompletedEvent{
		MatchID:       match.ID,
		EnvironmentID: match.EnvironmentID,
		WinnerID:      outcome.WinnerID,
		RatingDeltaA:  settlement.DeltaA,
		RatingDeltaB:  settlement.DeltaB,
	})

	if s.config.AutoRequeue {
		s.requeue(ctx, pair.A)
		s.requeue(ctx, pair.B)
	}
}

// settlementInfraFailure 정산 중 저장소 실패: 레이팅/사용량 무변경,
// 매치는 failed, 에이전트는 큐에 남는다.
func (s *MatchmakingScheduler) settlementInfraFailure(ctx context.Context, match *models.Match, reason string, err error) {
	s.logger.Error("Settlement failed, no rating or usage mutation applied",
		zap.String("matchId", match.ID),
		zap.String("reason", reason),
		zap.Error(err))
	s.markFailed(ctx, match, reason)
}

func (s *MatchmakingScheduler) markFailed(ctx context.Context, match *models.Match, reason string) {
	if err := s.matchRepo.MarkFailed(ctx, match.ID, reason); err != nil {
		s.logger.Error("Failed to mark match failed",
			zap.String("matchId", match.ID), zap.Error(err))
	}
}

func (s *MatchmakingScheduler) holdAgents(ctx context.Context, pair models.Pair, now time.Time) {
	if s.config.InfraRetryBackoff <= 0 {
		return
	}
	until := now.Add(s.config.InfraRetryBackoff)
	for _, agentID := range []string{pair.A.AgentID, pair.B.AgentID} {
		if err := s.queueRepo.Hold(ctx, agentID, until); err != nil {
			s.logger.Error("Failed to apply retry backoff",
				zap.String("agentId", agentID), zap.Error(err))
		}
	}
}

func (s *MatchmakingScheduler) requeue(ctx context.Context, qa models.QueuedAgent) {
	if err := s.queueRepo.Enqueue(ctx, qa.AgentID, qa.SubmissionID, qa.EnvironmentID); err != nil {
		s.logger.Error("Failed to re-enqueue agent after match",
			zap.String("agentId", qa.AgentID), zap.Error(err))
	}
}

// Recover 재기동 복구. queued 매치는 레코드를 다시 만들지 않고 그대로
// 디스패치를 재개하고, running 매치는 결과를 알 수 없으므로 failed 처리한다
// (에이전트는 큐에 남아 있어 다음 틱에 다시 매칭된다).
func (s *MatchmakingScheduler) Recover(ctx context.Context) error {
	matches, err := s.matchRepo.ListUnsettled(ctx)
	if err != nil {
		return err
	}

	for _, match := range matches {
		switch match.Status {
		case models.MatchStatusQueued:
			pair, err := s.rebuildPair(ctx, match)
			if err != nil {
				s.logger.Error("Cannot recover queued match",
					zap.String("matchId", match.ID), zap.Error(err))
				s.markFailed(ctx, match, "unrecoverable after restart: "+err.Error())
				continue
			}

			s.logger.Info("Resuming dispatch of persisted queued match",
				zap.String("matchId", match.ID))

			if err := s.sem.Acquire(ctx, 1); err != nil {
				return err
			}
			s.markInFlight(pair.A.AgentID, pair.B.AgentID)
			s.wg.Add(1)
			go func(m *models.Match, p models.Pair) {
				defer s.wg.Done()
				defer s.sem.Release(1)
				defer s.clearInFlight(p.A.AgentID, p.B.AgentID)
				s.dispatchAndSettle(context.Background(), m, p)
			}(match, pair)

		case models.MatchStatusRunning:
			s.logger.Warn("Match was running during restart, marking failed",
				zap.String("matchId", match.ID))
			s.markFailed(ctx, match, "scheduler restarted while match was running")
		}
	}

	return nil
}

// rebuildPair queued 매치 레코드에서 디스패치에 필요한 페어 복원
func (s *MatchmakingScheduler) rebuildPair(ctx context.Context, match *models.Match) (models.Pair, error) {
	agentA, err := s.agentReader.FindByID(ctx, match.AgentAID)
	if err != nil {
		return models.Pair{}, err
	}
	if agentA == nil {
		return models.Pair{}, ErrAgentNotFound
	}
	agentB, err := s.agentReader.FindByID(ctx, match.AgentBID)
	if err != nil {
		return models.Pair{}, err
	}
	if agentB == nil {
		return models.Pair{}, ErrAgentNotFound
	}

	return models.Pair{
		A: models.QueuedAgent{
			QueueEntry: models.QueueEntry{
				AgentID:       match.AgentAID,
				SubmissionID:  match.SubmissionAID,
				EnvironmentID: match.EnvironmentID,
			},
			Rating:        agentA.Rating,
			MatchesPlayed: agentA.MatchesPlayed,
		},
		B: models.QueuedAgent{
			QueueEntry: models.QueueEntry{
				AgentID:       match.AgentBID,
				SubmissionID:  match.SubmissionBID,
				EnvironmentID: match.EnvironmentID,
			},
			Rating:        agentB.Rating,
			MatchesPlayed: agentB.MatchesPlayed,
		},
	}, nil
}

// WaitIdle 테스트용: 진행 중인 디스패치/정산이 끝날 때까지 대기.
// Start를 호출하지 않은 동기 테스트에서만 사용한다.
func (s *MatchmakingScheduler) WaitIdle() {
	s.wg.Wait()
}
