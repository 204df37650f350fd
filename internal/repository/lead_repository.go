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

// LeadRepository manages persistence for lead records, including the atomic
// stage transition write.
type LeadRepository struct {
	db *sqlx.DB
}

// NewLeadRepository constructs a LeadRepository.
func NewLeadRepository(db *sqlx.DB) *LeadRepository {
	return &LeadRepository{db: db}
}

// List returns leads matching the provided filters.
func (r *LeadRepository) List(ctx context.Context, filter models.LeadFilter) ([]models.LeadDetail, int, error) {
	base := `FROM leads l
        LEFT JOIN lead_stages s ON s.id = l.current_stage_id
        LEFT JOIN profiles p ON p.id = l.assigned_to`
	conditions := []string{"l.institution_id = $1"}
	args := []interface{}{filter.InstitutionID}

	if filter.StageID != "" {
		conditions = append(conditions, fmt.Sprintf("l.current_stage_id = $%d", len(args)+1))
		args = append(args, filter.StageID)
	}
	if filter.AssignedTo != "" {
		conditions = append(conditions, fmt.Sprintf("l.assigned_to = $%d", len(args)+1))
		args = append(args, filter.AssignedTo)
	}
	if filter.Search != "" {
		conditions = append(conditions, fmt.Sprintf("(LOWER(l.student_name) LIKE $%d OR LOWER(COALESCE(l.parent_name, '')) LIKE $%d OR LOWER(COALESCE(l.email, '')) LIKE $%d)", len(args)+1, len(args)+1, len(args)+1))
		args = append(args, "%"+strings.ToLower(filter.Search)+"%")
	}

	base = fmt.Sprintf("%s WHERE %s", base, strings.Join(conditions, " AND "))

	allowedSorts := map[string]string{
		"student_name": "l.student_name",
		"created_at":   "l.created_at",
		"updated_at":   "l.updated_at",
	}
	column, ok := allowedSorts[filter.SortBy]
	if !ok {
		column = "l.created_at"
	}
	order := strings.ToUpper(filter.SortOrder)
	if order != "ASC" && order != "DESC" {
		order = "DESC"
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 100 {
		size = 20
	}
	offset := (page - 1) * size

	query := fmt.Sprintf(`SELECT l.id, l.institution_id, l.student_name, l.parent_name, l.email, l.phone,
        l.grade_level, l.course_interest, l.current_stage_id, l.assigned_to, l.notes, l.created_at, l.updated_at,
        s.name AS stage_name, s.color AS stage_color, p.full_name AS assignee_name
        %s ORDER BY %s %s LIMIT %d OFFSET %d`, base, column, order, size, offset)

	var leads []models.LeadDetail
	if err := r.db.SelectContext(ctx, &leads, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list leads: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s", base)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count leads: %w", err)
	}
	return leads, total, nil
}

// FindByID fetches a lead detail by ID scoped to one tenant.
func (r *LeadRepository) FindByID(ctx context.Context, institutionID, id string) (*models.LeadDetail, error) {
	const query = `SELECT l.id, l.institution_id, l.student_name, l.parent_name, l.email, l.phone,
        l.grade_level, l.course_interest, l.current_stage_id, l.assigned_to, l.notes, l.created_at, l.updated_at,
        s.name AS stage_name, s.color AS stage_color, p.full_name AS assignee_name
        FROM leads l
        LEFT JOIN lead_stages s ON s.id = l.current_stage_id
        LEFT JOIN profiles p ON p.id = l.assigned_to
        WHERE l.id = $1 AND l.institution_id = $2`
	var detail models.LeadDetail
	if err := r.db.GetContext(ctx, &detail, query, id, institutionID); err != nil {
		return nil, err
	}
	return &detail, nil
}

// Create inserts a new lead record.
func (r *LeadRepository) Create(ctx context.Context, lead *models.Lead) error {
	if lead.ID == "" {
		lead.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if lead.CreatedAt.IsZero() {
		lead.CreatedAt = now
	}
	lead.UpdatedAt = now
	const query = `INSERT INTO leads (id, institution_id, student_name, parent_name, email, phone, grade_level, course_interest, current_stage_id, assigned_to, notes, created_at, updated_at)
        VALUES (:id, :institution_id, :student_name, :parent_name, :email, :phone, :grade_level, :course_interest, :current_stage_id, :assigned_to, :notes, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, lead); err != nil {
		return fmt.Errorf("create lead: %w", err)
	}
	return nil
}

// Update modifies an existing lead. The stage column is deliberately absent;
// stage moves only happen through ApplyTransition so the audit trail cannot
// drift from current_stage_id.
func (r *LeadRepository) Update(ctx context.Context, lead *models.Lead) error {
	lead.UpdatedAt = time.Now().UTC()
	const query = `UPDATE leads SET student_name = :student_name, parent_name = :parent_name, email = :email,
        phone = :phone, grade_level = :grade_level, course_interest = :course_interest, notes = :notes,
        updated_at = :updated_at WHERE id = :id`
	if _, err := r.db.NamedExecContext(ctx, query, lead); err != nil {
		return fmt.Errorf("update lead: %w", err)
	}
	return nil
}

// Assign sets or clears the lead's owning user.
func (r *LeadRepository) Assign(ctx context.Context, id string, userID *string) error {
	const query = `UPDATE leads SET assigned_to = $2, updated_at = $3 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, userID, time.Now().UTC()); err != nil {
		return fmt.Errorf("assign lead: %w", err)
	}
	return nil
}

// Delete removes a lead and its owned history.
func (r *LeadRepository) Delete(ctx context.Context, id string) (err error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin lead delete transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	for _, query := range []string{
		"DELETE FROM interactions WHERE lead_id = $1",
		"DELETE FROM stage_changes WHERE lead_id = $1",
		"DELETE FROM visits WHERE lead_id = $1",
		"DELETE FROM leads WHERE id = $1",
	} {
		if _, err = tx.ExecContext(ctx, query, id); err != nil {
			return fmt.Errorf("delete lead: %w", err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit lead delete: %w", err)
	}
	return nil
}

// TransitionParams holds values required to move a lead between stages.
type TransitionParams struct {
	LeadID        string
	FromStageID   *string
	ToStageID     string
	ChangedBy     string
	ChangedByName string
	Description   string
}

// ApplyTransition performs the three-part stage move as one transaction: lead
// update, then stage change insert, then interaction insert, in that order.
// Either all three rows land or none do.
func (r *LeadRepository) ApplyTransition(ctx context.Context, params TransitionParams) (change *models.StageChange, err error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin transition transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	now := time.Now().UTC()

	const updateQuery = `UPDATE leads SET current_stage_id = $1, updated_at = $2 WHERE id = $3`
	if _, err = tx.ExecContext(ctx, updateQuery, params.ToStageID, now, params.LeadID); err != nil {
		return nil, fmt.Errorf("update lead stage: %w", err)
	}

	change = &models.StageChange{
		ID:            uuid.NewString(),
		LeadID:        params.LeadID,
		FromStageID:   params.FromStageID,
		ToStageID:     params.ToStageID,
		ChangedBy:     params.ChangedBy,
		ChangedByName: params.ChangedByName,
		CreatedAt:     now,
	}
	const changeQuery = `INSERT INTO stage_changes (id, lead_id, from_stage_id, to_stage_id, changed_by, changed_by_name, created_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7)`
	if _, err = tx.ExecContext(ctx, changeQuery, change.ID, change.LeadID, change.FromStageID, change.ToStageID, change.ChangedBy, change.ChangedByName, change.CreatedAt); err != nil {
		return nil, fmt.Errorf("insert stage change: %w", err)
	}

	const interactionQuery = `INSERT INTO interactions (id, lead_id, type, content, user_id, created_at)
        VALUES ($1, $2, $3, $4, $5, $6)`
	if _, err = tx.ExecContext(ctx, interactionQuery, uuid.NewString(), params.LeadID, models.InteractionNote, params.Description, params.ChangedBy, now); err != nil {
		return nil, fmt.Errorf("insert transition interaction: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit stage transition: %w", err)
	}
	return change, nil
}
