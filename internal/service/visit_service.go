package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/edu-crm-api/internal/models"
	appErrors "github.com/noah-isme/edu-crm-api/pkg/errors"
)

type visitRepository interface {
	FindByID(ctx context.Context, institutionID, id string) (*models.VisitDetail, error)
	List(ctx context.Context, filter models.VisitFilter) ([]models.VisitDetail, error)
	Create(ctx context.Context, visit *models.Visit) error
	Update(ctx context.Context, visit *models.Visit) error
}

type visitLeadRepository interface {
	FindByID(ctx context.Context, institutionID, id string) (*models.LeadDetail, error)
}

// ScheduleVisitRequest is the payload for booking a visit.
type ScheduleVisitRequest struct {
	LeadID          string    `json:"lead_id" validate:"required,uuid"`
	Title           string    `json:"title" validate:"max=200"`
	Description     *string   `json:"description" validate:"omitempty,max=2000"`
	ScheduledAt     time.Time `json:"scheduled_at"`
	DurationMinutes int       `json:"duration_minutes"`
	Notes           *string   `json:"notes" validate:"omitempty,max=2000"`
}

// UpdateVisitRequest carries partial edits; only non-nil fields are applied.
type UpdateVisitRequest struct {
	Title           *string             `json:"title" validate:"omitempty,max=200"`
	Description     *string             `json:"description" validate:"omitempty,max=2000"`
	ScheduledAt     *time.Time          `json:"scheduled_at"`
	DurationMinutes *int                `json:"duration_minutes"`
	Status          *models.VisitStatus `json:"status"`
	Notes           *string             `json:"notes" validate:"omitempty,max=2000"`
}

// VisitService schedules and maintains lead visits.
type VisitService struct {
	visits    visitRepository
	leads     visitLeadRepository
	webhooks  *WebhookService
	validator *validator.Validate
	logger    *zap.Logger
}

// NewVisitService constructs a VisitService.
func NewVisitService(visits visitRepository, leads visitLeadRepository, webhooks *WebhookService, validate *validator.Validate, logger *zap.Logger) *VisitService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &VisitService{
		visits:    visits,
		leads:     leads,
		webhooks:  webhooks,
		validator: validate,
		logger:    logger,
	}
}

// Schedule books a visit for a lead. Visits always start as scheduled; an
// empty title defaults to "Visit - {student name}".
func (s *VisitService) Schedule(ctx context.Context, institutionID string, req ScheduleVisitRequest) (*models.VisitDetail, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid visit payload")
	}
	if req.ScheduledAt.IsZero() {
		return nil, appErrors.Clone(appErrors.ErrValidation, "scheduled_at is required")
	}
	if req.DurationMinutes <= 0 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "duration_minutes must be positive")
	}

	lead, err := s.leads.FindByID(ctx, institutionID, req.LeadID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "lead not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load lead")
	}

	title := req.Title
	if title == "" {
		title = fmt.Sprintf("Visit - %s", lead.StudentName)
	}

	now := time.Now().UTC()
	visit := &models.Visit{
		ID:              uuid.NewString(),
		InstitutionID:   institutionID,
		LeadID:          lead.ID,
		Title:           title,
		Description:     req.Description,
		ScheduledAt:     req.ScheduledAt.UTC(),
		DurationMinutes: req.DurationMinutes,
		Status:          models.VisitScheduled,
		Notes:           req.Notes,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := s.visits.Create(ctx, visit); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrUnavailable.Code, appErrors.ErrUnavailable.Status, "failed to schedule visit")
	}

	if s.webhooks != nil {
		s.webhooks.Dispatch(institutionID, models.EventVisitScheduled, map[string]interface{}{
			"visit_id":     visit.ID,
			"lead_id":      visit.LeadID,
			"scheduled_at": visit.ScheduledAt,
		})
	}

	studentName := lead.StudentName
	return &models.VisitDetail{Visit: *visit, StudentName: &studentName}, nil
}

// Get returns a single visit scoped to the institution.
func (s *VisitService) Get(ctx context.Context, institutionID, id string) (*models.VisitDetail, error) {
	visit, err := s.visits.FindByID(ctx, institutionID, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "visit not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load visit")
	}
	return visit, nil
}

// Update applies the provided fields with last write wins semantics. Status
// edits may move between any two statuses.
func (s *VisitService) Update(ctx context.Context, institutionID, id string, req UpdateVisitRequest) (*models.VisitDetail, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid visit payload")
	}
	if req.Status != nil && !models.ValidVisitStatus(*req.Status) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "invalid visit status")
	}
	if req.ScheduledAt != nil && req.ScheduledAt.IsZero() {
		return nil, appErrors.Clone(appErrors.ErrValidation, "scheduled_at must not be zero")
	}
	if req.DurationMinutes != nil && *req.DurationMinutes <= 0 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "duration_minutes must be positive")
	}

	existing, err := s.Get(ctx, institutionID, id)
	if err != nil {
		return nil, err
	}

	visit := existing.Visit
	if req.Title != nil && *req.Title != "" {
		visit.Title = *req.Title
	}
	if req.Description != nil {
		visit.Description = req.Description
	}
	if req.ScheduledAt != nil {
		visit.ScheduledAt = req.ScheduledAt.UTC()
	}
	if req.DurationMinutes != nil {
		visit.DurationMinutes = *req.DurationMinutes
	}
	if req.Status != nil {
		visit.Status = *req.Status
	}
	if req.Notes != nil {
		visit.Notes = req.Notes
	}
	visit.UpdatedAt = time.Now().UTC()

	if err := s.visits.Update(ctx, &visit); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrUnavailable.Code, appErrors.ErrUnavailable.Status, "failed to update visit")
	}

	if s.webhooks != nil {
		s.webhooks.Dispatch(institutionID, models.EventVisitUpdated, map[string]interface{}{
			"visit_id": visit.ID,
			"lead_id":  visit.LeadID,
			"status":   visit.Status,
		})
	}

	return &models.VisitDetail{Visit: visit, StudentName: existing.StudentName}, nil
}

// Calendar lists visits for the institution, optionally bounded by lead,
// status and a time range, ordered by scheduled time.
func (s *VisitService) Calendar(ctx context.Context, filter models.VisitFilter) ([]models.VisitDetail, error) {
	if filter.Status != "" && !models.ValidVisitStatus(filter.Status) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "invalid visit status")
	}
	visits, err := s.visits.List(ctx, filter)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list visits")
	}
	return visits, nil
}

// ListForLead returns the visits attached to one lead.
func (s *VisitService) ListForLead(ctx context.Context, institutionID, leadID string) ([]models.VisitDetail, error) {
	if _, err := s.leads.FindByID(ctx, institutionID, leadID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "lead not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load lead")
	}
	return s.Calendar(ctx, models.VisitFilter{InstitutionID: institutionID, LeadID: leadID})
}
