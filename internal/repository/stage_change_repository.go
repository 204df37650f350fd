package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/edu-crm-api/internal/models"
)

// StageChangeRepository reads the append-only stage transition audit trail.
// Writes happen inside LeadRepository.ApplyTransition so they commit together
// with the lead update.
type StageChangeRepository struct {
	db *sqlx.DB
}

// NewStageChangeRepository constructs a StageChangeRepository.
func NewStageChangeRepository(db *sqlx.DB) *StageChangeRepository {
	return &StageChangeRepository{db: db}
}

// ListByLead returns the lead's stage history newest-first.
func (r *StageChangeRepository) ListByLead(ctx context.Context, leadID string) ([]models.StageChangeDetail, error) {
	const query = `SELECT sc.id, sc.lead_id, sc.from_stage_id, sc.to_stage_id, sc.changed_by, sc.changed_by_name, sc.created_at,
        fs.name AS from_stage_name, ts.name AS to_stage_name
        FROM stage_changes sc
        LEFT JOIN lead_stages fs ON fs.id = sc.from_stage_id
        LEFT JOIN lead_stages ts ON ts.id = sc.to_stage_id
        WHERE sc.lead_id = $1 ORDER BY sc.created_at DESC`
	var changes []models.StageChangeDetail
	if err := r.db.SelectContext(ctx, &changes, query, leadID); err != nil {
		return nil, fmt.Errorf("list stage changes: %w", err)
	}
	return changes, nil
}

// CountByLead returns the number of recorded transitions for a lead.
func (r *StageChangeRepository) CountByLead(ctx context.Context, leadID string) (int, error) {
	var count int
	if err := r.db.GetContext(ctx, &count, "SELECT COUNT(*) FROM stage_changes WHERE lead_id = $1", leadID); err != nil {
		return 0, fmt.Errorf("count stage changes: %w", err)
	}
	return count, nil
}
