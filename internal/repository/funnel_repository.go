package repository

import (
	"context"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/edu-crm-api/internal/models"
)

// FunnelRepository exposes read-only aggregations over leads, stage history and
// visits. Everything is computed on demand; there is no persisted rollup.
type FunnelRepository struct {
	db *sqlx.DB
}

// NewFunnelRepository instantiates the repository.
func NewFunnelRepository(db *sqlx.DB) *FunnelRepository {
	return &FunnelRepository{db: db}
}

// StageCounts returns the number of leads sitting in each of the tenant's
// stages, in funnel order. Stages with no leads appear with a zero count.
func (r *FunnelRepository) StageCounts(ctx context.Context, institutionID string) ([]models.StageCount, error) {
	const query = `SELECT s.id AS stage_id, s.name AS stage_name, s.color AS stage_color, s.order_index,
        COUNT(l.id) AS lead_count
        FROM lead_stages s
        LEFT JOIN leads l ON l.current_stage_id = s.id
        WHERE s.institution_id = $1
        GROUP BY s.id, s.name, s.color, s.order_index
        ORDER BY s.order_index ASC`
	var counts []models.StageCount
	if err := r.db.SelectContext(ctx, &counts, query, institutionID); err != nil {
		return nil, fmt.Errorf("query stage counts: %w", err)
	}
	return counts, nil
}

// TotalLeads counts every lead in the tenant.
func (r *FunnelRepository) TotalLeads(ctx context.Context, institutionID string) (int, error) {
	var total int
	if err := r.db.GetContext(ctx, &total, "SELECT COUNT(*) FROM leads WHERE institution_id = $1", institutionID); err != nil {
		return 0, fmt.Errorf("count total leads: %w", err)
	}
	return total, nil
}

// ConvertedLeads counts leads sitting in the terminal stage, which by
// convention is the stage with the highest order index.
func (r *FunnelRepository) ConvertedLeads(ctx context.Context, institutionID string) (int, error) {
	const query = `SELECT COUNT(*)
        FROM leads l
        JOIN lead_stages s ON s.id = l.current_stage_id
        WHERE l.institution_id = $1
        AND s.order_index = (SELECT MAX(order_index) FROM lead_stages WHERE institution_id = $1)`
	var converted int
	if err := r.db.GetContext(ctx, &converted, query, institutionID); err != nil {
		return 0, fmt.Errorf("count converted leads: %w", err)
	}
	return converted, nil
}

// LeaderboardRows aggregates per-user lead and conversion counts. Ordering is
// applied by the service so ties break deterministically.
func (r *FunnelRepository) LeaderboardRows(ctx context.Context, institutionID string) ([]models.LeaderboardEntry, error) {
	const query = `SELECT p.id AS user_id, p.full_name AS user_name,
        COUNT(l.id) AS lead_count,
        COALESCE(SUM(CASE WHEN s.order_index = term.max_index THEN 1 ELSE 0 END), 0) AS conversion_count
        FROM profiles p
        JOIN leads l ON l.assigned_to = p.id AND l.institution_id = $1
        LEFT JOIN lead_stages s ON s.id = l.current_stage_id
        CROSS JOIN (SELECT MAX(order_index) AS max_index FROM lead_stages WHERE institution_id = $1) term
        WHERE p.institution_id = $1
        GROUP BY p.id, p.full_name`
	var rows []models.LeaderboardEntry
	if err := r.db.SelectContext(ctx, &rows, query, institutionID); err != nil {
		return nil, fmt.Errorf("query leaderboard: %w", err)
	}
	return rows, nil
}

// VisitOutcomes counts visits per status inside the optional date range.
func (r *FunnelRepository) VisitOutcomes(ctx context.Context, filter models.VisitStatsFilter) (*models.VisitOutcomeStats, error) {
	var builder strings.Builder
	builder.WriteString(`SELECT
        SUM(CASE WHEN status = 'scheduled' THEN 1 ELSE 0 END) AS scheduled,
        SUM(CASE WHEN status = 'completed' THEN 1 ELSE 0 END) AS completed,
        SUM(CASE WHEN status = 'cancelled' THEN 1 ELSE 0 END) AS cancelled,
        SUM(CASE WHEN status = 'no_show' THEN 1 ELSE 0 END) AS no_show
        FROM visits WHERE institution_id = $1`)
	args := []interface{}{filter.InstitutionID}
	if filter.From != nil {
		args = append(args, *filter.From)
		builder.WriteString(fmt.Sprintf(" AND scheduled_at >= $%d", len(args)))
	}
	if filter.To != nil {
		args = append(args, *filter.To)
		builder.WriteString(fmt.Sprintf(" AND scheduled_at <= $%d", len(args)))
	}

	type row struct {
		Scheduled *int `db:"scheduled"`
		Completed *int `db:"completed"`
		Cancelled *int `db:"cancelled"`
		NoShow    *int `db:"no_show"`
	}
	var result row
	if err := r.db.GetContext(ctx, &result, builder.String(), args...); err != nil {
		return nil, fmt.Errorf("query visit outcomes: %w", err)
	}

	stats := &models.VisitOutcomeStats{}
	if result.Scheduled != nil {
		stats.Scheduled = *result.Scheduled
	}
	if result.Completed != nil {
		stats.Completed = *result.Completed
	}
	if result.Cancelled != nil {
		stats.Cancelled = *result.Cancelled
	}
	if result.NoShow != nil {
		stats.NoShow = *result.NoShow
	}
	return stats, nil
}
