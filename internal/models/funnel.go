package models

import "time"

// StageCount pairs a funnel stage with the number of leads currently in it.
type StageCount struct {
	StageID    string `db:"stage_id" json:"stage_id"`
	StageName  string `db:"stage_name" json:"stage_name"`
	StageColor string `db:"stage_color" json:"stage_color"`
	OrderIndex int    `db:"order_index" json:"order_index"`
	LeadCount  int    `db:"lead_count" json:"lead_count"`
}

// LeaderboardEntry ranks one user by funnel performance. ConversionCount is the
// number of the user's leads sitting in the terminal stage.
type LeaderboardEntry struct {
	UserID          string  `db:"user_id" json:"user_id"`
	UserName        string  `db:"user_name" json:"user_name"`
	LeadCount       int     `db:"lead_count" json:"lead_count"`
	ConversionCount int     `db:"conversion_count" json:"conversion_count"`
	ConversionRate  float64 `json:"conversion_rate"`
}

// VisitOutcomeStats counts visits per status inside a date range.
type VisitOutcomeStats struct {
	Scheduled int `db:"scheduled" json:"scheduled"`
	Completed int `db:"completed" json:"completed"`
	Cancelled int `db:"cancelled" json:"cancelled"`
	NoShow    int `db:"no_show" json:"no_show"`
}

// VisitStatsFilter bounds the visit outcome aggregation.
type VisitStatsFilter struct {
	InstitutionID string
	From          *time.Time
	To            *time.Time
}
