package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/rl-arena/matchmaker/internal/models"
	"github.com/rl-arena/matchmaker/internal/notify"
)

// ---------------------------------------------------------------------------
// In-memory fakes
// ---------------------------------------------------------------------------

type fakeStore struct {
	mu sync.Mutex

	queue   map[string]models.QueuedAgent // agent_id -> entry
	agents  map[string]*models.Agent
	stats   map[string]*models.UsageStats
	matches map[string]*models.Match

	nextMatchID int

	settlements []models.MatchSettlement
	settleErr   error

	createdEvents   []notify.MatchCreatedEvent
	completedEvents []notify.MatchCompletedEvent
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		queue:   make(map[string]models.QueuedAgent),
		agents:  make(map[string]*models.Agent),
		stats:   make(map[string]*models.UsageStats),
		matches: make(map[string]*models.Match),
	}
}

func (f *fakeStore) addAgent(id, env string, rating float64, matches int) {
	f.agents[id] = &models.Agent{
		ID:            id,
		Name:          id,
		EnvironmentID: env,
		Rating:        rating,
		MatchesPlayed: matches,
	}
	f.queue[id] = models.QueuedAgent{
		QueueEntry: models.QueueEntry{
			ID:            "q-" + id,
			AgentID:       id,
			SubmissionID:  "sub-" + id,
			EnvironmentID: env,
		},
		Rating:        rating,
		MatchesPlayed: matches,
	}
}

// QueueRepository

func (f *fakeStore) ListQueuedAgents(_ context.Context, environmentID string) ([]models.QueuedAgent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.QueuedAgent
	for _, qa := range f.queue {
		if environmentID != "" && qa.EnvironmentID != environmentID {
			continue
		}
		qa.Stats = f.stats[qa.AgentID]
		out = append(out, qa)
	}
	return out, nil
}

func (f *fakeStore) Enqueue(_ context.Context, agentID, submissionID, environmentID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	agent := f.agents[agentID]
	if agent == nil {
		return ErrAgentNotFound
	}
	f.queue[agentID] = models.QueuedAgent{
		QueueEntry: models.QueueEntry{
			ID:            "q-" + agentID,
			AgentID:       agentID,
			SubmissionID:  submissionID,
			EnvironmentID: environmentID,
		},
		Rating:        agent.Rating,
		MatchesPlayed: agent.MatchesPlayed,
	}
	return nil
}

func (f *fakeStore) Hold(_ context.Context, agentID string, until time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	qa, ok := f.queue[agentID]
	if !ok {
		return ErrNotFound
	}
	qa.HoldUntil = &until
	f.queue[agentID] = qa
	return nil
}

// MatchRepository

func (f *fakeStore) Create(_ context.Context, match *models.Match) (*models.Match, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextMatchID++
	m := *match
	m.ID = fmt.Sprintf("match-%d", f.nextMatchID)
	m.CreatedAt = time.Now().UTC()
	f.matches[m.ID] = &m
	out := m
	return &out, nil
}

func (f *fakeStore) MarkRunning(_ context.Context, matchID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	m, ok := f.matches[matchID]
	if !ok {
		return ErrMatchNotFound
	}
	m.Status = models.MatchStatusRunning
	return nil
}

func (f *fakeStore) MarkFailed(_ context.Context, matchID, reason string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	m, ok := f.matches[matchID]
	if !ok {
		return ErrMatchNotFound
	}
	m.Status = models.MatchStatusFailed
	m.ErrorMessage = &reason
	return nil
}

func (f *fakeStore) ListUnsettled(_ context.Context) ([]*models.Match, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*models.Match
	for _, m := range f.matches {
		if !m.Status.Terminal() {
			out = append(out, m)
		}
	}
	return out, nil
}

// SettlementRepository: 하나의 트랜잭션처럼 전체를 반영하거나 전혀 반영하지
// 않는다.

func (f *fakeStore) CommitCompleted(_ context.Context, st models.MatchSettlement) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.settleErr != nil {
		return f.settleErr
	}

	m, ok := f.matches[st.MatchID]
	if !ok {
		return ErrMatchNotFound
	}
	m.Status = models.MatchStatusCompleted
	m.WinnerID = st.WinnerID
	m.RatingDeltaA = &st.DeltaA
	m.RatingDeltaB = &st.DeltaB
	completedAt := st.CompletedAt
	m.CompletedAt = &completedAt

	f.agents[st.AgentAID].Rating = st.NewRatingA
	f.agents[st.AgentAID].MatchesPlayed++
	f.agents[st.AgentBID].Rating = st.NewRatingB
	f.agents[st.AgentBID].MatchesPlayed++

	f.stats[st.AgentAID] = st.StatsA
	f.stats[st.AgentBID] = st.StatsB

	for _, agentID := range st.RemoveQueueAgentIDs {
		delete(f.queue, agentID)
	}

	f.settlements = append(f.settlements, st)
	return nil
}

// StatsRepository / AgentReader

func (f *fakeStore) Get(_ context.Context, agentID string) (*models.UsageStats, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.stats[agentID], nil
}

func (f *fakeStore) FindByID(_ context.Context, id string) (*models.Agent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.agents[id], nil
}

// Notifier

func (f *fakeStore) MatchCreated(event notify.MatchCreatedEvent) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.createdEvents = append(f.createdEvents, event)
}

func (f *fakeStore) MatchCompleted(event notify.MatchCompletedEvent) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.completedEvents = append(f.completedEvents, event)
}

// scriptedDispatcher 에이전트 조합별로 고정된 결과를 돌려준다
type scriptedDispatcher struct {
	mu       sync.Mutex
	outcomes map[string]MatchOutcome // "agentA/agentB"
	fallback MatchOutcome
	calls    int
}

func (d *scriptedDispatcher) Dispatch(_ context.Context, _ *models.Match, pair models.Pair) MatchOutcome {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls++
	if out, ok := d.outcomes[pair.A.AgentID+"/"+pair.B.AgentID]; ok {
		return out
	}
	return d.fallback
}

func winner(id string) *string { return &id }

// ---------------------------------------------------------------------------
// Tests
// ---------------------------------------------------------------------------

func newTestScheduler(store *fakeStore, dispatcher Dispatcher, cfg SchedulerConfig) *MatchmakingScheduler {
	if cfg.DispatchConcurrency == 0 {
		cfg.DispatchConcurrency = 4
	}
	s := NewMatchmakingScheduler(
		store, store, store, store, store,
		NewRateLimitGuard(models.DefaultRateLimitConfig()),
		NewPairingService(DefaultPairingConfig(), zap.NewNop()),
		NewELOService(),
		dispatcher,
		store,
		nil,
		zap.NewNop(),
		cfg,
	)
	s.SetClock(func() time.Time {
		return time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	})
	return s
}

func TestScheduler_CompletedMatchEndToEnd(t *testing.T) {
	store := newFakeStore()
	store.addAgent("agent-a", "pong", 1200, 0)
	store.addAgent("agent-b", "pong", 1200, 0)

	dispatcher := &scriptedDispatcher{
		fallback: MatchOutcome{
			Kind:     OutcomeCompleted,
			WinnerID: winner("agent-a"),
			ScoreA:   21,
			ScoreB:   15,
		},
	}

	scheduler := newTestScheduler(store, dispatcher, SchedulerConfig{})
	scheduler.RunTick(context.Background())
	scheduler.WaitIdle()

	// 두 1200짜리 신규 에이전트 (K=40): 승자 1220, 패자 1180
	assert.Equal(t, 1220.0, store.agents["agent-a"].Rating)
	assert.Equal(t, 1180.0, store.agents["agent-b"].Rating)
	assert.Equal(t, 1, store.agents["agent-a"].MatchesPlayed)

	require.Len(t, store.settlements, 1)
	assert.Equal(t, 20.0, store.settlements[0].DeltaA)
	assert.Equal(t, -20.0, store.settlements[0].DeltaB)

	// 사용량 커밋
	statsA := store.stats["agent-a"]
	require.NotNil(t, statsA)
	assert.Equal(t, 1, statsA.MatchesToday)
	assert.Equal(t, 1, statsA.TotalMatches)

	// 매치 레코드 종결
	require.Len(t, store.matches, 1)
	for _, m := range store.matches {
		assert.Equal(t, models.MatchStatusCompleted, m.Status)
		require.NotNil(t, m.WinnerID)
		assert.Equal(t, "agent-a", *m.WinnerID)
	}

	// 알림 두 건: created + completed
	assert.Len(t, store.createdEvents, 1)
	assert.Len(t, store.completedEvents, 1)

	// AutoRequeue 기본 false(테스트 설정): 큐 소비 확인
	assert.Empty(t, store.queue)
}

func TestScheduler_AutoRequeueAfterCompletion(t *testing.T) {
	store := newFakeStore()
	store.addAgent("agent-a", "pong", 1200, 0)
	store.addAgent("agent-b", "pong", 1200, 0)

	dispatcher := &scriptedDispatcher{
		fallback: MatchOutcome{Kind: OutcomeCompleted, WinnerID: winner("agent-a")},
	}

	scheduler := newTestScheduler(store, dispatcher, SchedulerConfig{AutoRequeue: true})
	scheduler.RunTick(context.Background())
	scheduler.WaitIdle()

	// 정산 후 두 에이전트 모두 큐에 복귀 (쿨다운이 다음 적격 시점을 정한다)
	assert.Len(t, store.queue, 2)

	// 복귀 직후 틱에서는 쿨다운 때문에 페어링되지 않는다
	dispatcher.mu.Lock()
	callsBefore := dispatcher.calls
	dispatcher.mu.Unlock()

	scheduler.RunTick(context.Background())
	scheduler.WaitIdle()

	dispatcher.mu.Lock()
	assert.Equal(t, callsBefore, dispatcher.calls)
	dispatcher.mu.Unlock()
}

func TestScheduler_InfraErrorLeavesStateUntouched(t *testing.T) {
	store := newFakeStore()
	store.addAgent("agent-a", "pong", 1200, 5)
	store.addAgent("agent-b", "pong", 1210, 5)

	dispatcher := &scriptedDispatcher{
		fallback: MatchOutcome{Kind: OutcomeInfraError, Error: "executor call timed out"},
	}

	scheduler := newTestScheduler(store, dispatcher, SchedulerConfig{})
	scheduler.RunTick(context.Background())
	scheduler.WaitIdle()

	// 매치는 queued -> failed
	require.Len(t, store.matches, 1)
	for _, m := range store.matches {
		assert.Equal(t, models.MatchStatusFailed, m.Status)
	}

	// 레이팅/사용량 무변경
	assert.Equal(t, 1200.0, store.agents["agent-a"].Rating)
	assert.Equal(t, 5, store.agents["agent-a"].MatchesPlayed)
	assert.Nil(t, store.stats["agent-a"])

	// 큐 엔트리는 다음 틱을 위해 남아 있다
	assert.Len(t, store.queue, 2)
	assert.Empty(t, store.completedEvents)
}

func TestScheduler_InfraErrorAppliesRetryBackoff(t *testing.T) {
	store := newFakeStore()
	store.addAgent("agent-a", "pong", 1200, 0)
	store.addAgent("agent-b", "pong", 1210, 0)

	dispatcher := &scriptedDispatcher{
		fallback: MatchOutcome{Kind: OutcomeInfraError, Error: "connection refused"},
	}

	scheduler := newTestScheduler(store, dispatcher, SchedulerConfig{
		InfraRetryBackoff: 10 * time.Minute,
	})
	scheduler.RunTick(context.Background())
	scheduler.WaitIdle()

	// hold_until이 설정되어 backoff 동안 수집에서 제외된다
	for _, qa := range store.queue {
		require.NotNil(t, qa.HoldUntil)
		assert.Equal(t,
			time.Date(2025, 6, 1, 12, 10, 0, 0, time.UTC),
			qa.HoldUntil.UTC())
	}

	// backoff 중에는 다시 디스패치되지 않는다
	scheduler.RunTick(context.Background())
	scheduler.WaitIdle()
	dispatcher.mu.Lock()
	assert.Equal(t, 1, dispatcher.calls)
	dispatcher.mu.Unlock()
}

func TestScheduler_FailedOutcomeDoesNotConsumeBudget(t *testing.T) {
	store := newFakeStore()
	store.addAgent("agent-a", "pong", 1200, 0)
	store.addAgent("agent-b", "pong", 1210, 0)

	dispatcher := &scriptedDispatcher{
		fallback: MatchOutcome{Kind: OutcomeFailed, Error: "agent crashed"},
	}

	scheduler := newTestScheduler(store, dispatcher, SchedulerConfig{})
	scheduler.RunTick(context.Background())
	scheduler.WaitIdle()

	assert.Nil(t, store.stats["agent-a"])
	assert.Nil(t, store.stats["agent-b"])
	for _, m := range store.matches {
		assert.Equal(t, models.MatchStatusFailed, m.Status)
		require.NotNil(t, m.ErrorMessage)
		assert.Equal(t, "agent crashed", *m.ErrorMessage)
	}
}

func TestScheduler_SettlementFailureIsIndependentPerPair(t *testing.T) {
	store := newFakeStore()
	store.addAgent("agent-a", "pong", 1200, 0)
	store.addAgent("agent-b", "pong", 1210, 0)
	store.addAgent("agent-c", "chess", 1200, 0)
	store.addAgent("agent-d", "chess", 1210, 0)

	// 한 쌍은 완료, 한 쌍은 infra 실패. 서로 영향을 주지 않아야 한다.
	dispatcher := &scriptedDispatcher{
		outcomes: map[string]MatchOutcome{
			"agent-a/agent-b": {Kind: OutcomeCompleted, WinnerID: winner("agent-a")},
			"agent-c/agent-d": {Kind: OutcomeInfraError, Error: "timeout"},
		},
	}

	scheduler := newTestScheduler(store, dispatcher, SchedulerConfig{})
	scheduler.RunTick(context.Background())
	scheduler.WaitIdle()

	// pong 쌍은 정산 완료
	assert.Len(t, store.settlements, 1)
	assert.Equal(t, "agent-a", store.settlements[0].AgentAID)

	// chess 쌍은 무변경 + 큐 잔류
	assert.Equal(t, 1200.0, store.agents["agent-c"].Rating)
	_, stillQueued := store.queue["agent-c"]
	assert.True(t, stillQueued)
}

func TestScheduler_DailyLimitBlocksCollection(t *testing.T) {
	store := newFakeStore()
	store.addAgent("agent-a", "pong", 1200, 0)
	store.addAgent("agent-b", "pong", 1210, 0)

	// agent-a는 오늘 한도 소진
	store.stats["agent-a"] = &models.UsageStats{
		AgentID:      "agent-a",
		MatchesToday: 100,
		DailyResetAt: time.Date(2025, 6, 2, 0, 0, 0, 0, time.UTC),
	}

	dispatcher := &scriptedDispatcher{
		fallback: MatchOutcome{Kind: OutcomeCompleted, WinnerID: winner("agent-a")},
	}

	scheduler := newTestScheduler(store, dispatcher, SchedulerConfig{})
	scheduler.RunTick(context.Background())
	scheduler.WaitIdle()

	assert.Empty(t, store.matches)
	dispatcher.mu.Lock()
	assert.Equal(t, 0, dispatcher.calls)
	dispatcher.mu.Unlock()
}

func TestScheduler_ConcurrencyCapRollsOverExcessPairs(t *testing.T) {
	store := newFakeStore()
	for i := 0; i < 8; i++ {
		store.addAgent(fmt.Sprintf("agent-%d", i), "pong", 1200+float64(i), 0)
	}

	block := make(chan struct{})
	dispatcher := &blockingDispatcher{block: block}

	scheduler := newTestScheduler(store, dispatcher, SchedulerConfig{DispatchConcurrency: 2})
	scheduler.RunTick(context.Background())

	// 캡이 2이므로 4쌍 중 2쌍만 디스패치되고 나머지는 큐에 남는다
	assert.Eventually(t, func() bool {
		dispatcher.mu.Lock()
		defer dispatcher.mu.Unlock()
		return dispatcher.started == 2
	}, time.Second, 10*time.Millisecond)

	store.mu.Lock()
	matchCount := len(store.matches)
	store.mu.Unlock()
	assert.Equal(t, 2, matchCount)

	close(block)
	scheduler.WaitIdle()
}

type blockingDispatcher struct {
	mu      sync.Mutex
	started int
	block   chan struct{}
}

func (d *blockingDispatcher) Dispatch(_ context.Context, _ *models.Match, _ models.Pair) MatchOutcome {
	d.mu.Lock()
	d.started++
	d.mu.Unlock()
	<-d.block
	return MatchOutcome{Kind: OutcomeInfraError, Error: "aborted by test"}
}

func TestScheduler_RecoverResumesQueuedAndFailsRunning(t *testing.T) {
	store := newFakeStore()
	store.addAgent("agent-a", "pong", 1200, 0)
	store.addAgent("agent-b", "pong", 1210, 0)
	store.addAgent("agent-c", "pong", 1500, 0)
	store.addAgent("agent-d", "pong", 1510, 0)

	// 크래시 전에 남은 매치들: 하나는 queued(디스패치 전), 하나는 running
	queued, err := store.Create(context.Background(), &models.Match{
		EnvironmentID: "pong",
		AgentAID:      "agent-a",
		AgentBID:      "agent-b",
		SubmissionAID: "sub-agent-a",
		SubmissionBID: "sub-agent-b",
		Status:        models.MatchStatusQueued,
	})
	require.NoError(t, err)

	running, err := store.Create(context.Background(), &models.Match{
		EnvironmentID: "pong",
		AgentAID:      "agent-c",
		AgentBID:      "agent-d",
		SubmissionAID: "sub-agent-c",
		SubmissionBID: "sub-agent-d",
		Status:        models.MatchStatusQueued,
	})
	require.NoError(t, err)
	require.NoError(t, store.MarkRunning(context.Background(), running.ID))

	dispatcher := &scriptedDispatcher{
		fallback: MatchOutcome{Kind: OutcomeCompleted, WinnerID: winner("agent-a")},
	}

	scheduler := newTestScheduler(store, dispatcher, SchedulerConfig{})
	require.NoError(t, scheduler.Recover(context.Background()))
	scheduler.WaitIdle()

	// queued 매치는 새 레코드 없이 그대로 재개되어 정산됐다
	store.mu.Lock()
	defer store.mu.Unlock()
	assert.Len(t, store.matches, 2)
	assert.Equal(t, models.MatchStatusCompleted, store.matches[queued.ID].Status)

	// running 매치는 결과를 알 수 없으므로 failed
	assert.Equal(t, models.MatchStatusFailed, store.matches[running.ID].Status)
}

func TestScheduler_TickSurvivesRepositoryError(t *testing.T) {
	store := newFakeStore()
	scheduler := NewMatchmakingScheduler(
		&erroringQueueStore{fakeStore: store}, store, store, store, store,
		NewRateLimitGuard(models.DefaultRateLimitConfig()),
		NewPairingService(DefaultPairingConfig(), zap.NewNop()),
		NewELOService(),
		&scriptedDispatcher{},
		store,
		nil,
		zap.NewNop(),
		SchedulerConfig{DispatchConcurrency: 2},
	)

	// 저장소 에러가 나도 패닉 없이 리턴해야 한다
	assert.NotPanics(t, func() {
		scheduler.RunTick(context.Background())
	})
}

type erroringQueueStore struct {
	*fakeStore
}

func (e *erroringQueueStore) ListQueuedAgents(_ context.Context, _ string) ([]models.QueuedAgent, error) {
	return nil, errors.New("connection reset")
}
