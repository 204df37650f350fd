package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/edu-crm-api/internal/models"
)

// WebhookRepository manages per-tenant webhook registrations.
type WebhookRepository struct {
	db *sqlx.DB
}

// NewWebhookRepository constructs a WebhookRepository.
func NewWebhookRepository(db *sqlx.DB) *WebhookRepository {
	return &WebhookRepository{db: db}
}

// ListByInstitution returns every webhook registered by the tenant.
func (r *WebhookRepository) ListByInstitution(ctx context.Context, institutionID string) ([]models.Webhook, error) {
	const query = `SELECT id, institution_id, url, events, active, created_at, updated_at
        FROM webhooks WHERE institution_id = $1 ORDER BY created_at ASC`
	var hooks []models.Webhook
	if err := r.db.SelectContext(ctx, &hooks, query, institutionID); err != nil {
		return nil, fmt.Errorf("list webhooks: %w", err)
	}
	return hooks, nil
}

// ListActiveByInstitution returns the tenant's active webhooks for dispatch.
func (r *WebhookRepository) ListActiveByInstitution(ctx context.Context, institutionID string) ([]models.Webhook, error) {
	const query = `SELECT id, institution_id, url, events, active, created_at, updated_at
        FROM webhooks WHERE institution_id = $1 AND active = TRUE`
	var hooks []models.Webhook
	if err := r.db.SelectContext(ctx, &hooks, query, institutionID); err != nil {
		return nil, fmt.Errorf("list active webhooks: %w", err)
	}
	return hooks, nil
}

// FindByID fetches a webhook scoped to one tenant.
func (r *WebhookRepository) FindByID(ctx context.Context, institutionID, id string) (*models.Webhook, error) {
	const query = `SELECT id, institution_id, url, events, active, created_at, updated_at
        FROM webhooks WHERE id = $1 AND institution_id = $2`
	var hook models.Webhook
	if err := r.db.GetContext(ctx, &hook, query, id, institutionID); err != nil {
		return nil, err
	}
	return &hook, nil
}

// Create inserts a new webhook registration.
func (r *WebhookRepository) Create(ctx context.Context, hook *models.Webhook) error {
	if hook.ID == "" {
		hook.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if hook.CreatedAt.IsZero() {
		hook.CreatedAt = now
	}
	hook.UpdatedAt = now
	const query = `INSERT INTO webhooks (id, institution_id, url, events, active, created_at, updated_at)
        VALUES (:id, :institution_id, :url, :events, :active, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, hook); err != nil {
		return fmt.Errorf("create webhook: %w", err)
	}
	return nil
}

// Update rewrites a webhook registration.
func (r *WebhookRepository) Update(ctx context.Context, hook *models.Webhook) error {
	hook.UpdatedAt = time.Now().UTC()
	const query = `UPDATE webhooks SET url = :url, events = :events, active = :active, updated_at = :updated_at WHERE id = :id`
	if _, err := r.db.NamedExecContext(ctx, query, hook); err != nil {
		return fmt.Errorf("update webhook: %w", err)
	}
	return nil
}

// Delete removes a webhook registration.
func (r *WebhookRepository) Delete(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx, "DELETE FROM webhooks WHERE id = $1", id); err != nil {
		return fmt.Errorf("delete webhook: %w", err)
	}
	return nil
}
