package service

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/edu-crm-api/internal/models"
	appErrors "github.com/noah-isme/edu-crm-api/pkg/errors"
)

type leadRepository interface {
	List(ctx context.Context, filter models.LeadFilter) ([]models.LeadDetail, int, error)
	FindByID(ctx context.Context, institutionID, id string) (*models.LeadDetail, error)
	Create(ctx context.Context, lead *models.Lead) error
	Update(ctx context.Context, lead *models.Lead) error
	Assign(ctx context.Context, id string, userID *string) error
	Delete(ctx context.Context, id string) error
}

type leadStageRepository interface {
	ListByInstitution(ctx context.Context, institutionID string) ([]models.Stage, error)
}

type leadUserRepository interface {
	FindByID(ctx context.Context, id string) (*models.User, error)
}

// CreateLeadRequest is the payload for registering a new lead.
type CreateLeadRequest struct {
	StudentName    string  `json:"student_name" validate:"required,min=2,max=150"`
	ParentName     *string `json:"parent_name" validate:"omitempty,max=150"`
	Email          *string `json:"email" validate:"omitempty,email"`
	Phone          *string `json:"phone" validate:"omitempty,max=30"`
	GradeLevel     *string `json:"grade_level" validate:"omitempty,max=50"`
	CourseInterest *string `json:"course_interest" validate:"omitempty,max=150"`
	AssignedTo     *string `json:"assigned_to" validate:"omitempty,uuid"`
	Notes          string  `json:"notes" validate:"max=2000"`
}

// UpdateLeadRequest carries partial updates for a lead's contact fields.
// Stage membership is deliberately absent; moves go through TransitionService.
type UpdateLeadRequest struct {
	StudentName    *string `json:"student_name" validate:"omitempty,min=2,max=150"`
	ParentName     *string `json:"parent_name" validate:"omitempty,max=150"`
	Email          *string `json:"email" validate:"omitempty,email"`
	Phone          *string `json:"phone" validate:"omitempty,max=30"`
	GradeLevel     *string `json:"grade_level" validate:"omitempty,max=50"`
	CourseInterest *string `json:"course_interest" validate:"omitempty,max=150"`
	Notes          *string `json:"notes" validate:"omitempty,max=2000"`
}

// AssignLeadRequest sets or clears the lead's owner.
type AssignLeadRequest struct {
	UserID *string `json:"user_id" validate:"omitempty,uuid"`
}

// LeadService manages lead records. New leads land on the institution's first
// stage so the funnel never holds unclassified leads.
type LeadService struct {
	leads     leadRepository
	stages    leadStageRepository
	users     leadUserRepository
	webhooks  *WebhookService
	cache     *CacheService
	validator *validator.Validate
	logger    *zap.Logger
}

// NewLeadService constructs a LeadService.
func NewLeadService(leads leadRepository, stages leadStageRepository, users leadUserRepository, webhooks *WebhookService, cache *CacheService, validate *validator.Validate, logger *zap.Logger) *LeadService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LeadService{
		leads:     leads,
		stages:    stages,
		users:     users,
		webhooks:  webhooks,
		cache:     cache,
		validator: validate,
		logger:    logger,
	}
}

// List returns leads for the institution matching the filter, plus the total
// count for pagination.
func (s *LeadService) List(ctx context.Context, filter models.LeadFilter) ([]models.LeadDetail, int, error) {
	if filter.Page < 1 {
		filter.Page = 1
	}
	if filter.PageSize < 1 || filter.PageSize > 100 {
		filter.PageSize = 20
	}
	leads, total, err := s.leads.List(ctx, filter)
	if err != nil {
		return nil, 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list leads")
	}
	return leads, total, nil
}

// Get returns a single lead scoped to the institution.
func (s *LeadService) Get(ctx context.Context, institutionID, id string) (*models.LeadDetail, error) {
	lead, err := s.leads.FindByID(ctx, institutionID, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "lead not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load lead")
	}
	return lead, nil
}

// Create registers a lead and places it on the institution's first stage.
func (s *LeadService) Create(ctx context.Context, institutionID string, req CreateLeadRequest) (*models.LeadDetail, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid lead payload")
	}

	if req.AssignedTo != nil {
		if err := s.checkAssignee(ctx, institutionID, *req.AssignedTo); err != nil {
			return nil, err
		}
	}

	stages, err := s.stages.ListByInstitution(ctx, institutionID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load stages")
	}
	if len(stages) == 0 {
		return nil, appErrors.Clone(appErrors.ErrInvariant, "institution has no funnel stages configured")
	}
	firstStageID := stages[0].ID

	now := time.Now().UTC()
	lead := &models.Lead{
		ID:             uuid.NewString(),
		InstitutionID:  institutionID,
		StudentName:    req.StudentName,
		ParentName:     req.ParentName,
		Email:          req.Email,
		Phone:          req.Phone,
		GradeLevel:     req.GradeLevel,
		CourseInterest: req.CourseInterest,
		CurrentStageID: &firstStageID,
		AssignedTo:     req.AssignedTo,
		Notes:          req.Notes,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := s.leads.Create(ctx, lead); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrUnavailable.Code, appErrors.ErrUnavailable.Status, "failed to create lead")
	}

	if s.cache != nil {
		if err := s.cache.Invalidate(ctx, funnelCachePattern(institutionID)); err != nil {
			s.logger.Warn("failed to invalidate funnel cache", zap.Error(err))
		}
	}
	if s.webhooks != nil {
		s.webhooks.Dispatch(institutionID, models.EventLeadCreated, map[string]interface{}{
			"lead_id":      lead.ID,
			"student_name": lead.StudentName,
			"stage_id":     firstStageID,
		})
	}

	created, err := s.leads.FindByID(ctx, institutionID, lead.ID)
	if err != nil {
		s.logger.Warn("failed to reload lead after create", zap.Error(err))
		return &models.LeadDetail{Lead: *lead}, nil
	}
	return created, nil
}

// Update applies the provided contact fields with last write wins semantics.
func (s *LeadService) Update(ctx context.Context, institutionID, id string, req UpdateLeadRequest) (*models.LeadDetail, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid lead payload")
	}

	existing, err := s.leads.FindByID(ctx, institutionID, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "lead not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load lead")
	}

	lead := existing.Lead
	if req.StudentName != nil {
		lead.StudentName = *req.StudentName
	}
	if req.ParentName != nil {
		lead.ParentName = req.ParentName
	}
	if req.Email != nil {
		lead.Email = req.Email
	}
	if req.Phone != nil {
		lead.Phone = req.Phone
	}
	if req.GradeLevel != nil {
		lead.GradeLevel = req.GradeLevel
	}
	if req.CourseInterest != nil {
		lead.CourseInterest = req.CourseInterest
	}
	if req.Notes != nil {
		lead.Notes = *req.Notes
	}
	lead.UpdatedAt = time.Now().UTC()

	if err := s.leads.Update(ctx, &lead); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrUnavailable.Code, appErrors.ErrUnavailable.Status, "failed to update lead")
	}
	return s.Get(ctx, institutionID, id)
}

// Assign sets or clears the lead's owner.
func (s *LeadService) Assign(ctx context.Context, institutionID, id string, req AssignLeadRequest) (*models.LeadDetail, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid assignment payload")
	}
	if _, err := s.Get(ctx, institutionID, id); err != nil {
		return nil, err
	}
	if req.UserID != nil {
		if err := s.checkAssignee(ctx, institutionID, *req.UserID); err != nil {
			return nil, err
		}
	}
	if err := s.leads.Assign(ctx, id, req.UserID); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrUnavailable.Code, appErrors.ErrUnavailable.Status, "failed to assign lead")
	}
	if s.cache != nil {
		if err := s.cache.Invalidate(ctx, funnelCachePattern(institutionID)); err != nil {
			s.logger.Warn("failed to invalidate funnel cache", zap.Error(err))
		}
	}
	return s.Get(ctx, institutionID, id)
}

// Delete removes the lead together with its interactions, stage changes and
// visits.
func (s *LeadService) Delete(ctx context.Context, institutionID, id string) error {
	if _, err := s.Get(ctx, institutionID, id); err != nil {
		return err
	}
	if err := s.leads.Delete(ctx, id); err != nil {
		return appErrors.Wrap(err, appErrors.ErrUnavailable.Code, appErrors.ErrUnavailable.Status, "failed to delete lead")
	}
	if s.cache != nil {
		if err := s.cache.Invalidate(ctx, funnelCachePattern(institutionID)); err != nil {
			s.logger.Warn("failed to invalidate funnel cache", zap.Error(err))
		}
	}
	return nil
}

func (s *LeadService) checkAssignee(ctx context.Context, institutionID, userID string) error {
	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrValidation, "assignee not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load assignee")
	}
	if user.InstitutionID != institutionID || !user.Active {
		return appErrors.Clone(appErrors.ErrValidation, "assignee must be an active user of the institution")
	}
	return nil
}
