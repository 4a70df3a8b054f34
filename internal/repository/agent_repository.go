package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/rl-arena/matchmaker/internal/models"
	"github.com/rl-arena/matchmaker/pkg/database"
)

type AgentRepository struct {
	db *database.DB
}

func NewAgentRepository(db *database.DB) *AgentRepository {
	return &AgentRepository{db: db}
}

// FindByID ID로 에이전트 조회. 없으면 (nil, nil).
func (r *AgentRepository) FindByID(ctx context.Context, id string) (*models.Agent, error) {
	query := `
		SELECT id, owner_id, name, environment_id, rating, matches_played,
		       wins, losses, draws, active_submission_id, created_at, updated_at
		FROM agents
		WHERE id = $1
	`

	agent := &models.Agent{}
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&agent.ID,
		&agent.OwnerID,
		&agent.Name,
		&agent.EnvironmentID,
		&agent.Rating,
		&agent.MatchesPlayed,
		&agent.Wins,
		&agent.Losses,
		&agent.Draws,
		&agent.ActiveSubmissionID,
		&agent.CreatedAt,
		&agent.UpdatedAt,
	)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find agent: %w", err)
	}

	return agent, nil
}

// Leaderboard 환경별 레이팅 내림차순 순위. 동률은 matches_played가 많은 쪽,
// 그 다음 id 순으로 안정적으로 정렬한다.
func (r *AgentRepository) Leaderboard(ctx context.Context, environmentID string, limit int) ([]models.Agent, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}

	query := `
		SELECT id, owner_id, name, environment_id, rating, matches_played,
		       wins, losses, draws, active_submission_id, created_at, updated_at
		FROM agents
		WHERE environment_id = $1
		ORDER BY rating DESC, matches_played DESC, id ASC
		LIMIT $2
	`

	rows, err := r.db.QueryContext(ctx, query, environmentID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query leaderboard: %w", err)
	}
	defer rows.Close()

	var agents []models.Agent
	for rows.Next() {
		var agent models.Agent
		if err := rows.Scan(
			&agent.ID,
			&agent.OwnerID,
			&agent.Name,
			&agent.EnvironmentID,
			&agent.Rating,
			&agent.MatchesPlayed,
			&agent.Wins,
			&agent.Losses,
			&agent.Draws,
			&agent.ActiveSubmissionID,
			&agent.CreatedAt,
			&agent.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan agent: %w", err)
		}
		agents = append(agents, agent)
	}

	return agents, rows.Err()
}
