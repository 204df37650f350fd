package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/edu-crm-api/internal/models"
)

// InteractionRepository persists the append-only lead timeline. There is no
// update or delete statement here on purpose.
type InteractionRepository struct {
	db *sqlx.DB
}

// NewInteractionRepository constructs an InteractionRepository.
func NewInteractionRepository(db *sqlx.DB) *InteractionRepository {
	return &InteractionRepository{db: db}
}

// Create appends an interaction to the lead's timeline.
func (r *InteractionRepository) Create(ctx context.Context, interaction *models.Interaction) error {
	if interaction.ID == "" {
		interaction.ID = uuid.NewString()
	}
	if interaction.CreatedAt.IsZero() {
		interaction.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO interactions (id, lead_id, type, content, user_id, created_at)
        VALUES (:id, :lead_id, :type, :content, :user_id, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, interaction); err != nil {
		return fmt.Errorf("create interaction: %w", err)
	}
	return nil
}

// ListByLead returns the lead's timeline newest-first.
func (r *InteractionRepository) ListByLead(ctx context.Context, leadID string) ([]models.InteractionDetail, error) {
	const query = `SELECT i.id, i.lead_id, i.type, i.content, i.user_id, i.created_at, p.full_name AS user_name
        FROM interactions i
        LEFT JOIN profiles p ON p.id = i.user_id
        WHERE i.lead_id = $1 ORDER BY i.created_at DESC`
	var interactions []models.InteractionDetail
	if err := r.db.SelectContext(ctx, &interactions, query, leadID); err != nil {
		return nil, fmt.Errorf("list interactions: %w", err)
	}
	return interactions, nil
}

// CountByLead returns the number of timeline entries for a lead.
func (r *InteractionRepository) CountByLead(ctx context.Context, leadID string) (int, error) {
	var count int
	if err := r.db.GetContext(ctx, &count, "SELECT COUNT(*) FROM interactions WHERE lead_id = $1", leadID); err != nil {
		return 0, fmt.Errorf("count interactions: %w", err)
	}
	return count, nil
}
