package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/rl-arena/matchmaker/internal/models"
	"github.com/rl-arena/matchmaker/pkg/database"
)

type MatchRepository struct {
	db *database.DB
}

func NewMatchRepository(db *database.DB) *MatchRepository {
	return &MatchRepository{db: db}
}

const matchColumns = `
	id, environment_id, agent_a_id, agent_b_id, submission_a_id, submission_b_id,
	status, winner_id, score_a, score_b, rating_delta_a, rating_delta_b,
	error_message, created_at, completed_at
`

func scanMatch(row interface{ Scan(...any) error }) (*models.Match, error) {
	match := &models.Match{}
	err := row.Scan(
		&match.ID,
		&match.EnvironmentID,
		&match.AgentAID,
		&match.AgentBID,
		&match.SubmissionAID,
		&match.SubmissionBID,
		&match.Status,
		&match.WinnerID,
		&match.ScoreA,
		&match.ScoreB,
		&match.RatingDeltaA,
		&match.RatingDeltaB,
		&match.ErrorMessage,
		&match.CreatedAt,
		&match.CompletedAt,
	)
	return match, err
}

// Create 새 매치 생성. 디스패치 전에 durable하게 만들어 재기동 복구의
// 기준점이 된다.
func (r *MatchRepository) Create(ctx context.Context, match *models.Match) (*models.Match, error) {
	query := `
		INSERT INTO matches (environment_id, agent_a_id, agent_b_id,
		                     submission_a_id, submission_b_id, status)
		VALUES ($1, $2, $3, $4, $5, 'queued')
		RETURNING ` + matchColumns

	created, err := scanMatch(r.db.QueryRowContext(ctx, query,
		match.EnvironmentID,
		match.AgentAID,
		match.AgentBID,
		match.SubmissionAID,
		match.SubmissionBID,
	))
	if err != nil {
		return nil, fmt.Errorf("failed to create match: %w", err)
	}

	return created, nil
}

// MarkRunning queued -> running
func (r *MatchRepository) MarkRunning(ctx context.Context, matchID string) error {
	query := `
		UPDATE matches
		SET status = 'running'
		WHERE id = $1 AND status = 'queued'
	`
	if _, err := r.db.ExecContext(ctx, query, matchID); err != nil {
		return fmt.Errorf("failed to mark match running: %w", err)
	}
	return nil
}

// MarkFailed 비정산 종결. 레이팅/사용량에는 손대지 않는다.
func (r *MatchRepository) MarkFailed(ctx context.Context, matchID, reason string) error {
	query := `
		UPDATE matches
		SET status = 'failed', error_message = $2, completed_at = NOW()
		WHERE id = $1 AND status IN ('queued', 'running')
	`
	if _, err := r.db.ExecContext(ctx, query, matchID, reason); err != nil {
		return fmt.Errorf("failed to mark match failed: %w", err)
	}
	return nil
}

// FindByID 매치 단건 조회. 없으면 (nil, nil).
func (r *MatchRepository) FindByID(ctx context.Context, matchID string) (*models.Match, error) {
	query := `SELECT ` + matchColumns + ` FROM matches WHERE id = $1`

	match, err := scanMatch(r.db.QueryRowContext(ctx, query, matchID))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find match: %w", err)
	}

	return match, nil
}

// ListByAgent 에이전트가 어느 쪽으로든 참가한 매치 이력 (최신순)
func (r *MatchRepository) ListByAgent(ctx context.Context, agentID string, limit int) ([]models.Match, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}

	query := `
		SELECT ` + matchColumns + `
		FROM matches
		WHERE agent_a_id = $1 OR agent_b_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`

	rows, err := r.db.QueryContext(ctx, query, agentID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query matches: %w", err)
	}
	defer rows.Close()

	var matches []models.Match
	for rows.Next() {
		match, err := scanMatch(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan match: %w", err)
		}
		matches = append(matches, *match)
	}

	return matches, rows.Err()
}

// ListUnsettled 재기동 복구 대상: queued/running 매치 전부
func (r *MatchRepository) ListUnsettled(ctx context.Context) ([]*models.Match, error) {
	query := `
		SELECT ` + matchColumns + `
		FROM matches
		WHERE status IN ('queued', 'running')
		ORDER BY created_at ASC
	`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query unsettled matches: %w", err)
	}
	defer rows.Close()

	var matches []*models.Match
	for rows.Next() {
		match, err := scanMatch(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan match: %w", err)
		}
		matches = append(matches, match)
	}

	return matches, rows.Err()
}
