package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/rl-arena/matchmaker/internal/models"
	"github.com/rl-arena/matchmaker/pkg/database"
)

type UsageStatsRepository struct {
	db *database.DB
}

func NewUsageStatsRepository(db *database.DB) *UsageStatsRepository {
	return &UsageStatsRepository{db: db}
}

// Get 에이전트별 usage stats 조회. 아직 매치를 치르지 않은 에이전트는
// 행이 없으므로 (nil, nil)을 반환한다.
func (r *UsageStatsRepository) Get(ctx context.Context, agentID string) (*models.UsageStats, error) {
	query := `
		SELECT agent_id, last_match_at, matches_today, daily_reset_at,
		       total_matches, created_at, updated_at
		FROM agent_usage_stats
		WHERE agent_id = $1
	`

	stats := &models.UsageStats{}
	err := r.db.QueryRowContext(ctx, query, agentID).Scan(
		&stats.AgentID,
		&stats.LastMatchAt,
		&stats.MatchesToday,
		&stats.DailyResetAt,
		&stats.TotalMatches,
		&stats.CreatedAt,
		&stats.UpdatedAt,
	)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get usage stats: %w", err)
	}

	return stats, nil
}
