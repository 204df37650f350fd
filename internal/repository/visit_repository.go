package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/edu-crm-api/internal/models"
)

// VisitRepository manages persistence for scheduled visits.
type VisitRepository struct {
	db *sqlx.DB
}

// NewVisitRepository constructs a VisitRepository.
func NewVisitRepository(db *sqlx.DB) *VisitRepository {
	return &VisitRepository{db: db}
}

// FindByID fetches a visit scoped to one tenant.
func (r *VisitRepository) FindByID(ctx context.Context, institutionID, id string) (*models.VisitDetail, error) {
	const query = `SELECT v.id, v.institution_id, v.lead_id, v.title, v.description, v.scheduled_at,
        v.duration_minutes, v.status, v.notes, v.created_at, v.updated_at, l.student_name
        FROM visits v
        LEFT JOIN leads l ON l.id = v.lead_id
        WHERE v.id = $1 AND v.institution_id = $2`
	var detail models.VisitDetail
	if err := r.db.GetContext(ctx, &detail, query, id, institutionID); err != nil {
		return nil, err
	}
	return &detail, nil
}

// List returns visits matching the filter, soonest first. Used for both the
// per-lead listing and the cross-lead calendar view.
func (r *VisitRepository) List(ctx context.Context, filter models.VisitFilter) ([]models.VisitDetail, error) {
	conditions := []string{"v.institution_id = $1"}
	args := []interface{}{filter.InstitutionID}

	if filter.LeadID != "" {
		conditions = append(conditions, fmt.Sprintf("v.lead_id = $%d", len(args)+1))
		args = append(args, filter.LeadID)
	}
	if filter.Status != "" {
		conditions = append(conditions, fmt.Sprintf("v.status = $%d", len(args)+1))
		args = append(args, filter.Status)
	}
	if filter.From != nil {
		conditions = append(conditions, fmt.Sprintf("v.scheduled_at >= $%d", len(args)+1))
		args = append(args, *filter.From)
	}
	if filter.To != nil {
		conditions = append(conditions, fmt.Sprintf("v.scheduled_at <= $%d", len(args)+1))
		args = append(args, *filter.To)
	}

	query := fmt.Sprintf(`SELECT v.id, v.institution_id, v.lead_id, v.title, v.description, v.scheduled_at,
        v.duration_minutes, v.status, v.notes, v.created_at, v.updated_at, l.student_name
        FROM visits v
        LEFT JOIN leads l ON l.id = v.lead_id
        WHERE %s ORDER BY v.scheduled_at ASC`, strings.Join(conditions, " AND "))

	var visits []models.VisitDetail
	if err := r.db.SelectContext(ctx, &visits, query, args...); err != nil {
		return nil, fmt.Errorf("list visits: %w", err)
	}
	return visits, nil
}

// Create inserts a new visit record.
func (r *VisitRepository) Create(ctx context.Context, visit *models.Visit) error {
	if visit.ID == "" {
		visit.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if visit.CreatedAt.IsZero() {
		visit.CreatedAt = now
	}
	visit.UpdatedAt = now
	const query = `INSERT INTO visits (id, institution_id, lead_id, title, description, scheduled_at, duration_minutes, status, notes, created_at, updated_at)
        VALUES (:id, :institution_id, :lead_id, :title, :description, :scheduled_at, :duration_minutes, :status, :notes, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, visit); err != nil {
		return fmt.Errorf("create visit: %w", err)
	}
	return nil
}

// Update rewrites the visit's editable fields. Last write wins.
func (r *VisitRepository) Update(ctx context.Context, visit *models.Visit) error {
	visit.UpdatedAt = time.Now().UTC()
	const query = `UPDATE visits SET title = :title, description = :description, scheduled_at = :scheduled_at,
        duration_minutes = :duration_minutes, status = :status, notes = :notes, updated_at = :updated_at WHERE id = :id`
	if _, err := r.db.NamedExecContext(ctx, query, visit); err != nil {
		return fmt.Errorf("update visit: %w", err)
	}
	return nil
}
