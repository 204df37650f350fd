package models

import "time"

// VisitStatus enumerates the closed set of visit outcomes. New visits always
// start as scheduled; any status may move to any other by user edit.
type VisitStatus string

const (
	VisitScheduled VisitStatus = "scheduled"
	VisitCompleted VisitStatus = "completed"
	VisitCancelled VisitStatus = "cancelled"
	VisitNoShow    VisitStatus = "no_show"
)

// ValidVisitStatus reports whether s belongs to the closed enumeration.
func ValidVisitStatus(s VisitStatus) bool {
	switch s {
	case VisitScheduled, VisitCompleted, VisitCancelled, VisitNoShow:
		return true
	}
	return false
}

// Visit is a scheduled appointment linked to a lead. Visits persist
// indefinitely; there is no delete operation.
type Visit struct {
	ID              string      `db:"id" json:"id"`
	InstitutionID   string      `db:"institution_id" json:"institution_id"`
	LeadID          string      `db:"lead_id" json:"lead_id"`
	Title           string      `db:"title" json:"title"`
	Description     *string     `db:"description" json:"description,omitempty"`
	ScheduledAt     time.Time   `db:"scheduled_at" json:"scheduled_at"`
	DurationMinutes int         `db:"duration_minutes" json:"duration_minutes"`
	Status          VisitStatus `db:"status" json:"status"`
	Notes           *string     `db:"notes" json:"notes,omitempty"`
	CreatedAt       time.Time   `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time   `db:"updated_at" json:"updated_at"`
}

// VisitDetail carries the lead's student name for calendar views.
type VisitDetail struct {
	Visit
	StudentName *string `db:"student_name" json:"student_name,omitempty"`
}

// VisitFilter bounds a calendar listing to one tenant and an optional range.
type VisitFilter struct {
	InstitutionID string
	LeadID        string
	Status        VisitStatus
	From          *time.Time
	To            *time.Time
}
