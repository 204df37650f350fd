package handler

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/edu-crm-api/internal/models"
	"github.com/noah-isme/edu-crm-api/internal/service"
)

type funnelRepoFake struct {
	stageCounts []models.StageCount
	total       int
	converted   int
	leaderboard []models.LeaderboardEntry
	visitStats  models.VisitOutcomeStats
	lastFilter  models.VisitStatsFilter
}

func (f *funnelRepoFake) StageCounts(ctx context.Context, institutionID string) ([]models.StageCount, error) {
	return f.stageCounts, nil
}

func (f *funnelRepoFake) TotalLeads(ctx context.Context, institutionID string) (int, error) {
	return f.total, nil
}

func (f *funnelRepoFake) ConvertedLeads(ctx context.Context, institutionID string) (int, error) {
	return f.converted, nil
}

func (f *funnelRepoFake) LeaderboardRows(ctx context.Context, institutionID string) ([]models.LeaderboardEntry, error) {
	return f.leaderboard, nil
}

func (f *funnelRepoFake) VisitOutcomes(ctx context.Context, filter models.VisitStatsFilter) (*models.VisitOutcomeStats, error) {
	f.lastFilter = filter
	stats := f.visitStats
	return &stats, nil
}

func newFunnelHandlerUnderTest(repo *funnelRepoFake) *FunnelHandler {
	return NewFunnelHandler(service.NewFunnelService(repo, nil, time.Minute, nil))
}

func TestFunnelHandlerOverview(t *testing.T) {
	repo := &funnelRepoFake{
		stageCounts: []models.StageCount{{StageID: "stage-1", StageName: "Novo", OrderIndex: 1, LeadCount: 4}},
		total:       4,
		converted:   1,
		visitStats:  models.VisitOutcomeStats{Scheduled: 2},
	}
	handler := newFunnelHandlerUnderTest(repo)

	c, w := stageTestContext(t, http.MethodGet, "/funnel/overview", nil)
	handler.Overview(c)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"totalLeads":4`)
	assert.Contains(t, w.Body.String(), `"conversionRate":0.25`)
}

func TestFunnelHandlerVisitStatsParsesRange(t *testing.T) {
	repo := &funnelRepoFake{visitStats: models.VisitOutcomeStats{Completed: 3}}
	handler := newFunnelHandlerUnderTest(repo)

	c, w := stageTestContext(t, http.MethodGet, "/funnel/visits?from=2026-01-01T00:00:00Z&to=2026-02-01T00:00:00Z", nil)
	handler.VisitStats(c)

	require.Equal(t, http.StatusOK, w.Code)
	require.NotNil(t, repo.lastFilter.From)
	require.NotNil(t, repo.lastFilter.To)
	assert.Equal(t, 2026, repo.lastFilter.From.Year())
	assert.Contains(t, w.Body.String(), `"completed":3`)
}

func TestFunnelHandlerVisitStatsRejectsBadRange(t *testing.T) {
	handler := newFunnelHandlerUnderTest(&funnelRepoFake{})

	c, w := stageTestContext(t, http.MethodGet, "/funnel/visits?from=yesterday", nil)
	handler.VisitStats(c)

	require.Equal(t, http.StatusBadRequest, w.Code)
}
