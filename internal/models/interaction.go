package models

import "time"

// InteractionType enumerates the closed set of timeline event kinds.
type InteractionType string

const (
	InteractionCall     InteractionType = "call"
	InteractionEmail    InteractionType = "email"
	InteractionWhatsapp InteractionType = "whatsapp"
	InteractionVisit    InteractionType = "visit"
	InteractionNote     InteractionType = "note"
)

// ValidInteractionType reports whether t belongs to the closed enumeration.
func ValidInteractionType(t InteractionType) bool {
	switch t {
	case InteractionCall, InteractionEmail, InteractionWhatsapp, InteractionVisit, InteractionNote:
		return true
	}
	return false
}

// Interaction is an append-only timeline entry attached to a lead. Records are
// never edited or deleted once written.
type Interaction struct {
	ID        string          `db:"id" json:"id"`
	LeadID    string          `db:"lead_id" json:"lead_id"`
	Type      InteractionType `db:"type" json:"type"`
	Content   string          `db:"content" json:"content"`
	UserID    string          `db:"user_id" json:"user_id"`
	CreatedAt time.Time       `db:"created_at" json:"created_at"`
}

// InteractionDetail carries the acting user's display name for timeline views.
type InteractionDetail struct {
	Interaction
	UserName *string `db:"user_name" json:"user_name,omitempty"`
}
