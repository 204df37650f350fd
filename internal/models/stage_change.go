package models

import "time"

// StageChange is the append-only audit record of a lead moving between stages.
// FromStageID is nil for the lead's first classification. Every stage change is
// written together with exactly one interaction describing the same move.
type StageChange struct {
	ID            string    `db:"id" json:"id"`
	LeadID        string    `db:"lead_id" json:"lead_id"`
	FromStageID   *string   `db:"from_stage_id" json:"from_stage_id,omitempty"`
	ToStageID     string    `db:"to_stage_id" json:"to_stage_id"`
	ChangedBy     string    `db:"changed_by" json:"changed_by"`
	ChangedByName string    `db:"changed_by_name" json:"changed_by_name"`
	CreatedAt     time.Time `db:"created_at" json:"created_at"`
}

// StageChangeDetail resolves stage display names for history views.
type StageChangeDetail struct {
	StageChange
	FromStageName *string `db:"from_stage_name" json:"from_stage_name,omitempty"`
	ToStageName   *string `db:"to_stage_name" json:"to_stage_name,omitempty"`
}
