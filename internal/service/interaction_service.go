package service

import (
	"context"
	"database/sql"
	"errors"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/edu-crm-api/internal/models"
	appErrors "github.com/noah-isme/edu-crm-api/pkg/errors"
)

type interactionRepository interface {
	Create(ctx context.Context, interaction *models.Interaction) error
	ListByLead(ctx context.Context, leadID string) ([]models.InteractionDetail, error)
}

type interactionLeadRepository interface {
	FindByID(ctx context.Context, institutionID, id string) (*models.LeadDetail, error)
}

// AppendInteractionRequest holds payload for one timeline entry.
type AppendInteractionRequest struct {
	Type    models.InteractionType `json:"type" validate:"required"`
	Content string                 `json:"content" validate:"required"`
}

// InteractionService owns the append-only lead timeline. The write-once,
// read-many shape is the whole point: there is no update or delete.
type InteractionService struct {
	repo      interactionRepository
	leads     interactionLeadRepository
	validator *validator.Validate
	logger    *zap.Logger
}

// NewInteractionService constructs the interaction service.
func NewInteractionService(repo interactionRepository, leads interactionLeadRepository, validate *validator.Validate, logger *zap.Logger) *InteractionService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &InteractionService{repo: repo, leads: leads, validator: validate, logger: logger}
}

// Append records a new timeline entry for the lead.
func (s *InteractionService) Append(ctx context.Context, institutionID, leadID string, req AppendInteractionRequest, actor *models.JWTClaims) (*models.Interaction, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid interaction payload")
	}
	if !models.ValidInteractionType(req.Type) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "unknown interaction type")
	}
	if _, err := s.leads.FindByID(ctx, institutionID, leadID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "lead not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load lead")
	}

	interaction := &models.Interaction{
		LeadID:  leadID,
		Type:    req.Type,
		Content: req.Content,
		UserID:  actor.UserID,
	}
	if err := s.repo.Create(ctx, interaction); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to record interaction")
	}
	return interaction, nil
}

// ListForLead returns the lead's timeline newest-first.
func (s *InteractionService) ListForLead(ctx context.Context, institutionID, leadID string) ([]models.InteractionDetail, error) {
	if _, err := s.leads.FindByID(ctx, institutionID, leadID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "lead not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load lead")
	}
	interactions, err := s.repo.ListByLead(ctx, leadID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list interactions")
	}
	return interactions, nil
}
