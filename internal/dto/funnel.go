package dto

import "github.com/noah-isme/edu-crm-api/internal/models"

// FunnelOverviewResponse captures the aggregated funnel dashboard payload.
type FunnelOverviewResponse struct {
	TotalLeads     int                       `json:"totalLeads"`
	ConversionRate float64                   `json:"conversionRate"`
	Stages         []models.StageCount       `json:"stages"`
	Leaderboard    []models.LeaderboardEntry `json:"leaderboard"`
	Visits         models.VisitOutcomeStats  `json:"visits"`
}

// ConversionResponse carries the tenant-wide conversion ratio.
type ConversionResponse struct {
	TotalLeads     int     `json:"totalLeads"`
	ConvertedLeads int     `json:"convertedLeads"`
	ConversionRate float64 `json:"conversionRate"`
}
