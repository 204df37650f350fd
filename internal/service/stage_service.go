package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/edu-crm-api/internal/models"
	appErrors "github.com/noah-isme/edu-crm-api/pkg/errors"
)

type stageRepository interface {
	ListByInstitution(ctx context.Context, institutionID string) ([]models.Stage, error)
	FindByID(ctx context.Context, id string) (*models.Stage, error)
	CountByInstitution(ctx context.Context, institutionID string) (int, error)
	CountLeadsInStage(ctx context.Context, stageID string) (int, error)
	NextOrderIndex(ctx context.Context, institutionID string) (int, error)
	Create(ctx context.Context, stage *models.Stage) error
	Update(ctx context.Context, stage *models.Stage) error
	Reorder(ctx context.Context, institutionID string, orderedIDs []string) error
	Delete(ctx context.Context, id string) error
}

// CreateStageRequest holds payload for adding a funnel stage.
type CreateStageRequest struct {
	Name  string `json:"name" validate:"required"`
	Color string `json:"color" validate:"required"`
}

// UpdateStageRequest holds payload for renaming or recoloring a stage. Either
// field may be omitted to leave it unchanged.
type UpdateStageRequest struct {
	Name  *string `json:"name,omitempty"`
	Color *string `json:"color,omitempty"`
}

// ReorderStagesRequest carries the full left-to-right stage order.
type ReorderStagesRequest struct {
	StageIDs []string `json:"stage_ids" validate:"required,min=2,dive,required"`
}

// StageService is the stage catalog: the per-tenant ordered list of funnel
// stages.
type StageService struct {
	repo      stageRepository
	cache     *CacheService
	validator *validator.Validate
	logger    *zap.Logger
}

// NewStageService constructs the stage service.
func NewStageService(repo stageRepository, cache *CacheService, validate *validator.Validate, logger *zap.Logger) *StageService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StageService{repo: repo, cache: cache, validator: validate, logger: logger}
}

// List returns the tenant's stages in funnel order.
func (s *StageService) List(ctx context.Context, institutionID string) ([]models.Stage, error) {
	stages, err := s.repo.ListByInstitution(ctx, institutionID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list stages")
	}
	return stages, nil
}

// Create appends a new stage to the end of the tenant's funnel.
func (s *StageService) Create(ctx context.Context, institutionID string, req CreateStageRequest) (*models.Stage, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid stage payload")
	}
	next, err := s.repo.NextOrderIndex(ctx, institutionID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to compute stage order")
	}
	stage := &models.Stage{
		InstitutionID: institutionID,
		Name:          req.Name,
		Color:         req.Color,
		OrderIndex:    next,
	}
	if err := s.repo.Create(ctx, stage); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create stage")
	}
	s.invalidateFunnelCache(ctx, institutionID)
	return stage, nil
}

// Update renames and/or recolors a stage.
func (s *StageService) Update(ctx context.Context, institutionID, stageID string, req UpdateStageRequest) (*models.Stage, error) {
	stage, err := s.findTenantStage(ctx, institutionID, stageID)
	if err != nil {
		return nil, err
	}
	if req.Name != nil {
		if *req.Name == "" {
			return nil, appErrors.Clone(appErrors.ErrValidation, "stage name must not be empty")
		}
		stage.Name = *req.Name
	}
	if req.Color != nil {
		if *req.Color == "" {
			return nil, appErrors.Clone(appErrors.ErrValidation, "stage color must not be empty")
		}
		stage.Color = *req.Color
	}
	if err := s.repo.Update(ctx, stage); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update stage")
	}
	s.invalidateFunnelCache(ctx, institutionID)
	return stage, nil
}

// Reorder rewrites the funnel's left-to-right order. Every stage of the tenant
// must appear exactly once.
func (s *StageService) Reorder(ctx context.Context, institutionID string, req ReorderStagesRequest) ([]models.Stage, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid reorder payload")
	}
	existing, err := s.repo.ListByInstitution(ctx, institutionID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load stages")
	}
	if len(req.StageIDs) != len(existing) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "reorder must include every stage exactly once")
	}
	known := make(map[string]struct{}, len(existing))
	for _, stage := range existing {
		known[stage.ID] = struct{}{}
	}
	for _, id := range req.StageIDs {
		if _, ok := known[id]; !ok {
			return nil, appErrors.Clone(appErrors.ErrNotFound, fmt.Sprintf("stage %s not found", id))
		}
		delete(known, id)
	}
	if err := s.repo.Reorder(ctx, institutionID, req.StageIDs); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to reorder stages")
	}
	s.invalidateFunnelCache(ctx, institutionID)
	return s.List(ctx, institutionID)
}

// Delete removes a stage. The funnel must keep at least two stages, and the
// stage must be empty of leads.
func (s *StageService) Delete(ctx context.Context, institutionID, stageID string) error {
	if _, err := s.findTenantStage(ctx, institutionID, stageID); err != nil {
		return err
	}

	count, err := s.repo.CountByInstitution(ctx, institutionID)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count stages")
	}
	if count <= models.MinStagesPerInstitution {
		return appErrors.Clone(appErrors.ErrInvariant, fmt.Sprintf("funnel must keep at least %d stages", models.MinStagesPerInstitution))
	}

	occupied, err := s.repo.CountLeadsInStage(ctx, stageID)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count leads in stage")
	}
	if occupied > 0 {
		return appErrors.Clone(appErrors.ErrInvariant, "stage still contains leads; move them first")
	}

	if err := s.repo.Delete(ctx, stageID); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete stage")
	}
	s.invalidateFunnelCache(ctx, institutionID)
	return nil
}

// findTenantStage loads a stage and hides other tenants' stages behind a
// not-found error.
func (s *StageService) findTenantStage(ctx context.Context, institutionID, stageID string) (*models.Stage, error) {
	stage, err := s.repo.FindByID(ctx, stageID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "stage not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load stage")
	}
	if stage.InstitutionID != institutionID {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "stage not found")
	}
	return stage, nil
}

func (s *StageService) invalidateFunnelCache(ctx context.Context, institutionID string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Invalidate(ctx, funnelCachePattern(institutionID)); err != nil {
		s.logger.Warn("failed to invalidate funnel cache", zap.Error(err))
	}
}
