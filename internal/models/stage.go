package models

import "time"

// MinStagesPerInstitution is the lower bound on funnel size. Deleting a stage
// that would leave fewer stages than this is refused.
const MinStagesPerInstitution = 2

// Stage is one position in an institution's ordered sales funnel. Order index
// values need not be contiguous; they only define left-to-right display order.
type Stage struct {
	ID            string    `db:"id" json:"id"`
	InstitutionID string    `db:"institution_id" json:"institution_id"`
	Name          string    `db:"name" json:"name"`
	Color         string    `db:"color" json:"color"`
	OrderIndex    int       `db:"order_index" json:"order_index"`
	CreatedAt     time.Time `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time `db:"updated_at" json:"updated_at"`
}
