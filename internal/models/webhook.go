package models

import (
	"strings"
	"time"
)

// WebhookEvent names the notifications the CRM can emit.
const (
	EventLeadCreated      = "lead.created"
	EventLeadStageChanged = "lead.stage_changed"
	EventVisitScheduled   = "visit.scheduled"
	EventVisitUpdated     = "visit.updated"
)

// Webhook is a per-tenant outbound notification endpoint. Events holds a comma
// separated list of subscribed event names; delivery is best effort.
type Webhook struct {
	ID            string    `db:"id" json:"id"`
	InstitutionID string    `db:"institution_id" json:"institution_id"`
	URL           string    `db:"url" json:"url"`
	Events        string    `db:"events" json:"events"`
	Active        bool      `db:"active" json:"active"`
	CreatedAt     time.Time `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time `db:"updated_at" json:"updated_at"`
}

// SubscribedTo reports whether the webhook listens for the given event.
func (w Webhook) SubscribedTo(event string) bool {
	for _, candidate := range strings.Split(w.Events, ",") {
		if strings.TrimSpace(candidate) == event {
			return true
		}
	}
	return false
}
