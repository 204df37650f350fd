package service

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/edu-crm-api/internal/models"
	appErrors "github.com/noah-isme/edu-crm-api/pkg/errors"
	"github.com/noah-isme/edu-crm-api/pkg/jobs"
)

type webhookRepository interface {
	ListByInstitution(ctx context.Context, institutionID string) ([]models.Webhook, error)
	ListActiveByInstitution(ctx context.Context, institutionID string) ([]models.Webhook, error)
	FindByID(ctx context.Context, institutionID, id string) (*models.Webhook, error)
	Create(ctx context.Context, hook *models.Webhook) error
	Update(ctx context.Context, hook *models.Webhook) error
	Delete(ctx context.Context, id string) error
}

// CreateWebhookRequest registers an outbound notification endpoint.
type CreateWebhookRequest struct {
	URL    string   `json:"url" validate:"required,url"`
	Events []string `json:"events" validate:"required,min=1,dive,oneof=lead.created lead.stage_changed visit.scheduled visit.updated"`
	Active *bool    `json:"active"`
}

// UpdateWebhookRequest carries partial edits to a webhook registration.
type UpdateWebhookRequest struct {
	URL    *string  `json:"url" validate:"omitempty,url"`
	Events []string `json:"events" validate:"omitempty,min=1,dive,oneof=lead.created lead.stage_changed visit.scheduled visit.updated"`
	Active *bool    `json:"active"`
}

type webhookJobPayload struct {
	InstitutionID string                 `json:"institution_id"`
	Event         string                 `json:"event"`
	Data          map[string]interface{} `json:"data"`
	OccurredAt    time.Time              `json:"occurred_at"`
}

// WebhookService manages per-tenant webhook registrations and delivers events
// to them. Delivery is fire and forget via a background queue; a failing
// endpoint never fails the write that triggered it.
type WebhookService struct {
	repo      webhookRepository
	queue     *jobs.Queue
	client    *http.Client
	metrics   *MetricsService
	validator *validator.Validate
	logger    *zap.Logger
	enabled   bool
}

// NewWebhookService constructs the webhook registry and its delivery queue.
// Call Start before dispatching and Stop on shutdown.
func NewWebhookService(repo webhookRepository, metrics *MetricsService, validate *validator.Validate, logger *zap.Logger, enabled bool, requestTimeout time.Duration, workers, retries int) *WebhookService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if requestTimeout <= 0 {
		requestTimeout = 10 * time.Second
	}
	s := &WebhookService{
		repo:      repo,
		client:    &http.Client{Timeout: requestTimeout},
		metrics:   metrics,
		validator: validate,
		logger:    logger,
		enabled:   enabled,
	}
	s.queue = jobs.NewQueue("webhook-delivery", s.deliver, jobs.QueueConfig{
		Workers:    workers,
		MaxRetries: retries,
		Logger:     logger,
	})
	return s
}

// Start launches the delivery workers.
func (s *WebhookService) Start(ctx context.Context) {
	if s.enabled {
		s.queue.Start(ctx)
	}
}

// Stop drains the delivery workers.
func (s *WebhookService) Stop() {
	if s.enabled {
		s.queue.Stop()
	}
}

// List returns all webhooks registered by the institution.
func (s *WebhookService) List(ctx context.Context, institutionID string) ([]models.Webhook, error) {
	hooks, err := s.repo.ListByInstitution(ctx, institutionID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list webhooks")
	}
	return hooks, nil
}

// Create registers a new webhook.
func (s *WebhookService) Create(ctx context.Context, institutionID string, req CreateWebhookRequest) (*models.Webhook, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid webhook payload")
	}
	active := true
	if req.Active != nil {
		active = *req.Active
	}
	now := time.Now().UTC()
	hook := &models.Webhook{
		ID:            uuid.NewString(),
		InstitutionID: institutionID,
		URL:           req.URL,
		Events:        joinEvents(req.Events),
		Active:        active,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := s.repo.Create(ctx, hook); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrUnavailable.Code, appErrors.ErrUnavailable.Status, "failed to create webhook")
	}
	return hook, nil
}

// Update applies partial edits to an existing webhook.
func (s *WebhookService) Update(ctx context.Context, institutionID, id string, req UpdateWebhookRequest) (*models.Webhook, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid webhook payload")
	}
	hook, err := s.repo.FindByID(ctx, institutionID, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "webhook not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load webhook")
	}
	if req.URL != nil {
		hook.URL = *req.URL
	}
	if len(req.Events) > 0 {
		hook.Events = joinEvents(req.Events)
	}
	if req.Active != nil {
		hook.Active = *req.Active
	}
	hook.UpdatedAt = time.Now().UTC()
	if err := s.repo.Update(ctx, hook); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrUnavailable.Code, appErrors.ErrUnavailable.Status, "failed to update webhook")
	}
	return hook, nil
}

// Delete removes a webhook registration.
func (s *WebhookService) Delete(ctx context.Context, institutionID, id string) error {
	if _, err := s.repo.FindByID(ctx, institutionID, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "webhook not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load webhook")
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return appErrors.Wrap(err, appErrors.ErrUnavailable.Code, appErrors.ErrUnavailable.Status, "failed to delete webhook")
	}
	return nil
}

// Dispatch enqueues an event for delivery to every subscribed endpoint of the
// institution. It never blocks the caller on the network and never returns an
// error; delivery problems are logged and counted.
func (s *WebhookService) Dispatch(institutionID, event string, data map[string]interface{}) {
	if s == nil || !s.enabled {
		return
	}
	job := jobs.Job{
		ID:   uuid.NewString(),
		Type: event,
		Payload: webhookJobPayload{
			InstitutionID: institutionID,
			Event:         event,
			Data:          data,
			OccurredAt:    time.Now().UTC(),
		},
	}
	if err := s.queue.Enqueue(job); err != nil {
		s.logger.Warn("failed to enqueue webhook event",
			zap.String("event", event),
			zap.String("institution_id", institutionID),
			zap.Error(err))
	}
}

func (s *WebhookService) deliver(ctx context.Context, job jobs.Job) error {
	payload, ok := job.Payload.(webhookJobPayload)
	if !ok {
		return fmt.Errorf("unexpected webhook payload type %T", job.Payload)
	}

	hooks, err := s.repo.ListActiveByInstitution(ctx, payload.InstitutionID)
	if err != nil {
		return fmt.Errorf("load webhooks: %w", err)
	}

	body, err := json.Marshal(map[string]interface{}{
		"event":       payload.Event,
		"occurred_at": payload.OccurredAt,
		"data":        payload.Data,
	})
	if err != nil {
		return fmt.Errorf("marshal webhook body: %w", err)
	}

	for _, hook := range hooks {
		if !hook.SubscribedTo(payload.Event) {
			continue
		}
		if err := s.post(ctx, hook.URL, body); err != nil {
			if s.metrics != nil {
				s.metrics.RecordWebhookDelivery(false)
			}
			s.logger.Warn("webhook delivery failed",
				zap.String("webhook_id", hook.ID),
				zap.String("event", payload.Event),
				zap.Error(err))
			continue
		}
		if s.metrics != nil {
			s.metrics.RecordWebhookDelivery(true)
		}
	}
	return nil
}

func (s *WebhookService) post(ctx context.Context, url string, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("endpoint returned status %d", resp.StatusCode)
	}
	return nil
}

func joinEvents(events []string) string {
	return strings.Join(events, ",")
}
