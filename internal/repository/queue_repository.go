package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/rl-arena/matchmaker/internal/models"
	"github.com/rl-arena/matchmaker/pkg/database"
)

type QueueRepository struct {
	db *database.DB
}

func NewQueueRepository(db *database.DB) *QueueRepository {
	return &QueueRepository{db: db}
}

// ListQueuedAgents 큐 전체를 현재 레이팅과 usage stats에 조인해서 반환.
// 적격 판정은 저장소가 아니라 스케줄러가 단일 now 스냅샷으로 수행하므로
// 여기서는 필터링하지 않는다. environmentID가 빈 문자열이면 전체 환경.
func (r *QueueRepository) ListQueuedAgents(ctx context.Context, environmentID string) ([]models.QueuedAgent, error) {
	query := `
		SELECT mq.id, mq.agent_id, mq.submission_id, mq.environment_id,
		       mq.enqueued_at, mq.hold_until,
		       a.rating, a.matches_played,
		       s.agent_id, s.last_match_at, s.matches_today, s.daily_reset_at, s.total_matches
		FROM matchmaking_queue mq
		JOIN agents a ON a.id = mq.agent_id
		LEFT JOIN agent_usage_stats s ON s.agent_id = mq.agent_id
		WHERE ($1 = '' OR mq.environment_id = $1)
		ORDER BY mq.enqueued_at ASC
	`

	rows, err := r.db.QueryContext(ctx, query, environmentID)
	if err != nil {
		return nil, fmt.Errorf("failed to query matchmaking queue: %w", err)
	}
	defer rows.Close()

	var pool []models.QueuedAgent
	for rows.Next() {
		var qa models.QueuedAgent
		var statsAgentID *string
		var lastMatchAt *time.Time
		var matchesToday, totalMatches *int
		var dailyResetAt *time.Time

		if err := rows.Scan(
			&qa.ID,
			&qa.AgentID,
			&qa.SubmissionID,
			&qa.EnvironmentID,
			&qa.EnqueuedAt,
			&qa.HoldUntil,
			&qa.Rating,
			&qa.MatchesPlayed,
			&statsAgentID,
			&lastMatchAt,
			&matchesToday,
			&dailyResetAt,
			&totalMatches,
		); err != nil {
			return nil, fmt.Errorf("failed to scan queue entry: %w", err)
		}

		// stats 행이 없으면 nil로 둔다 (첫 매치 전 에이전트)
		if statsAgentID != nil {
			qa.Stats = &models.UsageStats{
				AgentID:      *statsAgentID,
				LastMatchAt:  lastMatchAt,
				MatchesToday: *matchesToday,
				DailyResetAt: *dailyResetAt,
				TotalMatches: *totalMatches,
			}
		}

		pool = append(pool, qa)
	}

	return pool, rows.Err()
}

// Enqueue 큐 등록 (upsert). 에이전트당 live 엔트리는 하나만 유지되며, 이미
// 큐에 있으면 제출만 갱신하고 대기 순서는 그대로 둔다.
func (r *QueueRepository) Enqueue(ctx context.Context, agentID, submissionID, environmentID string) error {
	query := `
		INSERT INTO matchmaking_queue (agent_id, submission_id, environment_id)
		VALUES ($1, $2, $3)
		ON CONFLICT (agent_id)
		DO UPDATE SET
			submission_id = EXCLUDED.submission_id,
			environment_id = EXCLUDED.environment_id,
			hold_until = NULL
	`
	if _, err := r.db.ExecContext(ctx, query, agentID, submissionID, environmentID); err != nil {
		return fmt.Errorf("failed to enqueue agent: %w", err)
	}
	return nil
}

// Hold until까지 수집 대상에서 제외 (infra 실패 재시도 backoff)
func (r *QueueRepository) Hold(ctx context.Context, agentID string, until time.Time) error {
	query := `UPDATE matchmaking_queue SET hold_until = $2 WHERE agent_id = $1`
	if _, err := r.db.ExecContext(ctx, query, agentID, until.UTC()); err != nil {
		return fmt.Errorf("failed to hold queue entry: %w", err)
	}
	return nil
}

// Remove 큐에서 제거. 엔트리가 있었는지 여부를 반환한다 (철회 API용).
func (r *QueueRepository) Remove(ctx context.Context, agentID string) (bool, error) {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM matchmaking_queue WHERE agent_id = $1`, agentID)
	if err != nil {
		return false, fmt.Errorf("failed to remove queue entry: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}
