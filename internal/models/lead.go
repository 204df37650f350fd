package models

import "time"

// Lead is a prospective student/family record progressing through the funnel.
// CurrentStageID is nil only before first classification; once set it always
// references a stage belonging to the same institution.
type Lead struct {
	ID             string    `db:"id" json:"id"`
	InstitutionID  string    `db:"institution_id" json:"institution_id"`
	StudentName    string    `db:"student_name" json:"student_name"`
	ParentName     *string   `db:"parent_name" json:"parent_name,omitempty"`
	Email          *string   `db:"email" json:"email,omitempty"`
	Phone          *string   `db:"phone" json:"phone,omitempty"`
	GradeLevel     *string   `db:"grade_level" json:"grade_level,omitempty"`
	CourseInterest *string   `db:"course_interest" json:"course_interest,omitempty"`
	CurrentStageID *string   `db:"current_stage_id" json:"current_stage_id,omitempty"`
	AssignedTo     *string   `db:"assigned_to" json:"assigned_to,omitempty"`
	Notes          string    `db:"notes" json:"notes"`
	CreatedAt      time.Time `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time `db:"updated_at" json:"updated_at"`
}

// LeadDetail enriches a lead with display names resolved from related tables.
type LeadDetail struct {
	Lead
	StageName    *string `db:"stage_name" json:"stage_name,omitempty"`
	StageColor   *string `db:"stage_color" json:"stage_color,omitempty"`
	AssigneeName *string `db:"assignee_name" json:"assignee_name,omitempty"`
}

// LeadFilter encapsulates allowed search parameters for listing leads.
type LeadFilter struct {
	InstitutionID string
	Search        string
	StageID       string
	AssignedTo    string
	Page          int
	PageSize      int
	SortBy        string
	SortOrder     string
}
