package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/edu-crm-api/internal/models"
)

// StageRepository manages persistence for funnel stage catalog entries.
type StageRepository struct {
	db *sqlx.DB
}

// NewStageRepository constructs a StageRepository.
func NewStageRepository(db *sqlx.DB) *StageRepository {
	return &StageRepository{db: db}
}

// ListByInstitution returns the tenant's stages in funnel order.
func (r *StageRepository) ListByInstitution(ctx context.Context, institutionID string) ([]models.Stage, error) {
	const query = `SELECT id, institution_id, name, color, order_index, created_at, updated_at
        FROM lead_stages WHERE institution_id = $1 ORDER BY order_index ASC`
	var stages []models.Stage
	if err := r.db.SelectContext(ctx, &stages, query, institutionID); err != nil {
		return nil, fmt.Errorf("list stages: %w", err)
	}
	return stages, nil
}

// FindByID fetches a single stage.
func (r *StageRepository) FindByID(ctx context.Context, id string) (*models.Stage, error) {
	const query = `SELECT id, institution_id, name, color, order_index, created_at, updated_at
        FROM lead_stages WHERE id = $1`
	var stage models.Stage
	if err := r.db.GetContext(ctx, &stage, query, id); err != nil {
		return nil, err
	}
	return &stage, nil
}

// CountByInstitution returns how many stages the tenant currently has.
func (r *StageRepository) CountByInstitution(ctx context.Context, institutionID string) (int, error) {
	var count int
	if err := r.db.GetContext(ctx, &count, "SELECT COUNT(*) FROM lead_stages WHERE institution_id = $1", institutionID); err != nil {
		return 0, fmt.Errorf("count stages: %w", err)
	}
	return count, nil
}

// CountLeadsInStage returns how many leads currently sit in the stage.
func (r *StageRepository) CountLeadsInStage(ctx context.Context, stageID string) (int, error) {
	var count int
	if err := r.db.GetContext(ctx, &count, "SELECT COUNT(*) FROM leads WHERE current_stage_id = $1", stageID); err != nil {
		return 0, fmt.Errorf("count leads in stage: %w", err)
	}
	return count, nil
}

// NextOrderIndex returns the ordinal a newly added stage should receive.
func (r *StageRepository) NextOrderIndex(ctx context.Context, institutionID string) (int, error) {
	var next int
	const query = `SELECT COALESCE(MAX(order_index), 0) + 1 FROM lead_stages WHERE institution_id = $1`
	if err := r.db.GetContext(ctx, &next, query, institutionID); err != nil {
		return 0, fmt.Errorf("next stage order: %w", err)
	}
	return next, nil
}

// Create inserts a new stage.
func (r *StageRepository) Create(ctx context.Context, stage *models.Stage) error {
	if stage.ID == "" {
		stage.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if stage.CreatedAt.IsZero() {
		stage.CreatedAt = now
	}
	stage.UpdatedAt = now
	const query = `INSERT INTO lead_stages (id, institution_id, name, color, order_index, created_at, updated_at)
        VALUES (:id, :institution_id, :name, :color, :order_index, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, stage); err != nil {
		return fmt.Errorf("create stage: %w", err)
	}
	return nil
}

// Update modifies a stage's name and color.
func (r *StageRepository) Update(ctx context.Context, stage *models.Stage) error {
	stage.UpdatedAt = time.Now().UTC()
	const query = `UPDATE lead_stages SET name = :name, color = :color, updated_at = :updated_at WHERE id = :id`
	if _, err := r.db.NamedExecContext(ctx, query, stage); err != nil {
		return fmt.Errorf("update stage: %w", err)
	}
	return nil
}

// Reorder rewrites order_index for the given stages in a single transaction so
// a partially applied drag never leaves the funnel shuffled.
func (r *StageRepository) Reorder(ctx context.Context, institutionID string, orderedIDs []string) (err error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin reorder transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	now := time.Now().UTC()
	const query = `UPDATE lead_stages SET order_index = $1, updated_at = $2 WHERE id = $3 AND institution_id = $4`
	for position, id := range orderedIDs {
		if _, err = tx.ExecContext(ctx, query, position+1, now, id, institutionID); err != nil {
			return fmt.Errorf("reorder stage %s: %w", id, err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit stage reorder: %w", err)
	}
	return nil
}

// Delete removes a stage. Invariant checks happen in the service layer before
// this is called.
func (r *StageRepository) Delete(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx, "DELETE FROM lead_stages WHERE id = $1", id); err != nil {
		return fmt.Errorf("delete stage: %w", err)
	}
	return nil
}
