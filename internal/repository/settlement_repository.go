package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"

	"github.com/rl-arena/matchmaker/internal/models"
	"github.com/rl-arena/matchmaker/pkg/database"
)

// SettlementRepository 완료된 매치 한 건의 상태 전이를 단일 트랜잭션으로
// 커밋한다. 매치 행, 양쪽 에이전트의 레이팅/전적, usage stats, 큐 제거가
// 전부 반영되거나 전부 반영되지 않는다.
type SettlementRepository struct {
	db *database.DB
}

func NewSettlementRepository(db *database.DB) *SettlementRepository {
	return &SettlementRepository{db: db}
}

func (r *SettlementRepository) CommitCompleted(ctx context.Context, st models.MatchSettlement) error {
	return r.db.WithTx(ctx, func(tx *sql.Tx) error {
		if err := settleMatchRow(ctx, tx, st); err != nil {
			return err
		}
		if err := settleAgent(ctx, tx, st.AgentAID, st.NewRatingA, st.WinnerID); err != nil {
			return err
		}
		if err := settleAgent(ctx, tx, st.AgentBID, st.NewRatingB, st.WinnerID); err != nil {
			return err
		}
		if err := upsertStats(ctx, tx, st.StatsA); err != nil {
			return err
		}
		if err := upsertStats(ctx, tx, st.StatsB); err != nil {
			return err
		}

		if len(st.RemoveQueueAgentIDs) > 0 {
			_, err := tx.ExecContext(ctx,
				`DELETE FROM matchmaking_queue WHERE agent_id = ANY($1)`,
				pq.Array(st.RemoveQueueAgentIDs))
			if err != nil {
				return fmt.Errorf("failed to remove queue entries: %w", err)
			}
		}

		return nil
	})
}

func settleMatchRow(ctx context.Context, tx *sql.Tx, st models.MatchSettlement) error {
	query := `
		UPDATE matches
		SET status = 'completed',
		    winner_id = $2,
		    score_a = $3,
		    score_b = $4,
		    rating_delta_a = $5,
		    rating_delta_b = $6,
		    completed_at = $7
		WHERE id = $1 AND status IN ('queued', 'running')
	`

	result, err := tx.ExecContext(ctx, query,
		st.MatchID,
		st.WinnerID,
		st.ScoreA,
		st.ScoreB,
		st.DeltaA,
		st.DeltaB,
		st.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to settle match row: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("match %s is not settleable", st.MatchID)
	}

	return nil
}

// settleAgent 레이팅과 승/패/무 카운터 갱신. winnerID nil은 무승부.
func settleAgent(ctx context.Context, tx *sql.Tx, agentID string, newRating float64, winnerID *string) error {
	var winInc, lossInc, drawInc int
	switch {
	case winnerID == nil:
		drawInc = 1
	case *winnerID == agentID:
		winInc = 1
	default:
		lossInc = 1
	}

	query := `
		UPDATE agents
		SET rating = $2,
		    matches_played = matches_played + 1,
		    wins = wins + $3,
		    losses = losses + $4,
		    draws = draws + $5,
		    updated_at = NOW()
		WHERE id = $1
	`
	if _, err := tx.ExecContext(ctx, query, agentID, newRating, winInc, lossInc, drawInc); err != nil {
		return fmt.Errorf("failed to settle agent %s: %w", agentID, err)
	}
	return nil
}

func upsertStats(ctx context.Context, tx *sql.Tx, stats *models.UsageStats) error {
	if stats == nil {
		return nil
	}

	query := `
		INSERT INTO agent_usage_stats
			(agent_id, last_match_at, matches_today, daily_reset_at, total_matches)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (agent_id)
		DO UPDATE SET
			last_match_at = EXCLUDED.last_match_at,
			matches_today = EXCLUDED.matches_today,
			daily_reset_at = EXCLUDED.daily_reset_at,
			total_matches = EXCLUDED.total_matches,
			updated_at = NOW()
	`
	_, err := tx.ExecContext(ctx, query,
		stats.AgentID,
		stats.LastMatchAt,
		stats.MatchesToday,
		stats.DailyResetAt,
		stats.TotalMatches,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert usage stats for %s: %w", stats.AgentID, err)
	}
	return nil
}
