package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/edu-crm-api/internal/models"
	"github.com/noah-isme/edu-crm-api/internal/repository"
	appErrors "github.com/noah-isme/edu-crm-api/pkg/errors"
)

type transitionLeadRepository interface {
	FindByID(ctx context.Context, institutionID, id string) (*models.LeadDetail, error)
	ApplyTransition(ctx context.Context, params repository.TransitionParams) (*models.StageChange, error)
}

type transitionStageRepository interface {
	FindByID(ctx context.Context, id string) (*models.Stage, error)
}

type transitionHistoryRepository interface {
	ListByLead(ctx context.Context, leadID string) ([]models.StageChangeDetail, error)
}

// TransitionRequest carries the target stage for a lead move.
type TransitionRequest struct {
	ToStageID string `json:"to_stage_id" validate:"required"`
}

// TransitionResult pairs the updated lead with its audit record. StageChange is
// nil when the move was a no-op.
type TransitionResult struct {
	Lead        *models.LeadDetail  `json:"lead"`
	StageChange *models.StageChange `json:"stage_change,omitempty"`
}

// TransitionService is the single authority for moving leads between stages.
// Every applied move writes the lead update, one stage change and one paired
// interaction in the same database transaction; nothing else in the system is
// allowed to touch current_stage_id.
type TransitionService struct {
	leads     transitionLeadRepository
	stages    transitionStageRepository
	history   transitionHistoryRepository
	webhooks  *WebhookService
	cache     *CacheService
	metrics   *MetricsService
	validator *validator.Validate
	logger    *zap.Logger
}

// NewTransitionService constructs the transition engine.
func NewTransitionService(leads transitionLeadRepository, stages transitionStageRepository, history transitionHistoryRepository, webhooks *WebhookService, cache *CacheService, metrics *MetricsService, validate *validator.Validate, logger *zap.Logger) *TransitionService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TransitionService{
		leads:     leads,
		stages:    stages,
		history:   history,
		webhooks:  webhooks,
		cache:     cache,
		metrics:   metrics,
		validator: validate,
		logger:    logger,
	}
}

// Move transitions a lead to the target stage. Moving a lead onto the stage it
// already occupies returns the unchanged lead and writes no history.
func (s *TransitionService) Move(ctx context.Context, institutionID, leadID string, req TransitionRequest, actor *models.JWTClaims) (*TransitionResult, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid transition payload")
	}

	lead, err := s.leads.FindByID(ctx, institutionID, leadID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "lead not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrUnavailable.Code, appErrors.ErrUnavailable.Status, "failed to load lead")
	}

	if lead.CurrentStageID != nil && *lead.CurrentStageID == req.ToStageID {
		return &TransitionResult{Lead: lead}, nil
	}

	toStage, err := s.stages.FindByID(ctx, req.ToStageID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "target stage not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrUnavailable.Code, appErrors.ErrUnavailable.Status, "failed to load target stage")
	}
	if toStage.InstitutionID != institutionID {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "target stage not found")
	}

	var fromName string
	if lead.CurrentStageID != nil {
		fromStage, err := s.stages.FindByID(ctx, *lead.CurrentStageID)
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Wrap(err, appErrors.ErrUnavailable.Code, appErrors.ErrUnavailable.Status, "failed to load current stage")
		}
		if fromStage != nil {
			fromName = fromStage.Name
		}
	}

	change, err := s.leads.ApplyTransition(ctx, repository.TransitionParams{
		LeadID:        lead.ID,
		FromStageID:   lead.CurrentStageID,
		ToStageID:     toStage.ID,
		ChangedBy:     actor.UserID,
		ChangedByName: actor.FullName,
		Description:   transitionDescription(fromName, toStage.Name),
	})
	if err != nil {
		// The transaction rolled back, so the lead and its audit trail are
		// still consistent with each other.
		return nil, appErrors.Wrap(err, appErrors.ErrUnavailable.Code, appErrors.ErrUnavailable.Status, "stage transition was not applied")
	}

	if s.metrics != nil {
		s.metrics.RecordTransition()
	}
	if s.cache != nil {
		if err := s.cache.Invalidate(ctx, funnelCachePattern(institutionID)); err != nil {
			s.logger.Warn("failed to invalidate funnel cache", zap.Error(err))
		}
	}
	if s.webhooks != nil {
		s.webhooks.Dispatch(institutionID, models.EventLeadStageChanged, map[string]interface{}{
			"lead_id":       lead.ID,
			"from_stage_id": lead.CurrentStageID,
			"to_stage_id":   toStage.ID,
			"changed_by":    actor.UserID,
		})
	}

	updated, err := s.leads.FindByID(ctx, institutionID, leadID)
	if err != nil {
		// The move committed; fall back to patching the copy we already hold.
		s.logger.Warn("failed to reload lead after transition", zap.Error(err))
		stageID := toStage.ID
		lead.CurrentStageID = &stageID
		lead.StageName = &toStage.Name
		lead.StageColor = &toStage.Color
		updated = lead
	}

	return &TransitionResult{Lead: updated, StageChange: change}, nil
}

// History returns the lead's stage change audit trail newest-first.
func (s *TransitionService) History(ctx context.Context, institutionID, leadID string) ([]models.StageChangeDetail, error) {
	if _, err := s.leads.FindByID(ctx, institutionID, leadID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "lead not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load lead")
	}
	changes, err := s.history.ListByLead(ctx, leadID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list stage changes")
	}
	return changes, nil
}

func transitionDescription(fromName, toName string) string {
	if fromName == "" {
		return fmt.Sprintf("Stage set to %s", toName)
	}
	return fmt.Sprintf("Stage changed from %s to %s", fromName, toName)
}
