package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/rl-arena/matchmaker/internal/models"
	"github.com/rl-arena/matchmaker/pkg/database"
)

type SubmissionRepository struct {
	db *database.DB
}

func NewSubmissionRepository(db *database.DB) *SubmissionRepository {
	return &SubmissionRepository{db: db}
}

// FindByID 제출 단건 조회. 없으면 (nil, nil).
func (r *SubmissionRepository) FindByID(ctx context.Context, id string) (*models.Submission, error) {
	query := `
		SELECT id, agent_id, status, image_url, created_at, updated_at
		FROM submissions
		WHERE id = $1
	`

	submission := &models.Submission{}
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&submission.ID,
		&submission.AgentID,
		&submission.Status,
		&submission.ImageURL,
		&submission.CreatedAt,
		&submission.UpdatedAt,
	)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find submission: %w", err)
	}

	return submission, nil
}
