package repository

import (
	"context"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/edu-crm-api/internal/models"
)

func TestFunnelRepositoryStageCountsIncludesEmptyStages(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewFunnelRepository(db)

	rows := sqlmock.NewRows([]string{"stage_id", "stage_name", "stage_color", "order_index", "lead_count"}).
		AddRow("stage-1", "Novo", "#3b82f6", 1, 5).
		AddRow("stage-2", "Contato", "#f59e0b", 2, 0).
		AddRow("stage-3", "Matrícula", "#10b981", 3, 2)
	mock.ExpectQuery("SELECT s.id AS stage_id").
		WithArgs("inst-1").
		WillReturnRows(rows)

	counts, err := repo.StageCounts(context.Background(), "inst-1")
	require.NoError(t, err)
	require.Len(t, counts, 3)
	assert.Equal(t, 0, counts[1].LeadCount)
	assert.Equal(t, 3, counts[2].OrderIndex)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFunnelRepositoryConvertedLeadsUsesTerminalStage(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewFunnelRepository(db)

	mock.ExpectQuery(`SELECT COUNT\(\*\)`).
		WithArgs("inst-1").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(2))

	converted, err := repo.ConvertedLeads(context.Background(), "inst-1")
	require.NoError(t, err)
	assert.Equal(t, 2, converted)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFunnelRepositoryLeaderboardRows(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewFunnelRepository(db)

	rows := sqlmock.NewRows([]string{"user_id", "user_name", "lead_count", "conversion_count"}).
		AddRow("user-1", "Maria", 10, 4).
		AddRow("user-2", "Joana", 5, 2)
	mock.ExpectQuery("SELECT p.id AS user_id").
		WithArgs("inst-1").
		WillReturnRows(rows)

	entries, err := repo.LeaderboardRows(context.Background(), "inst-1")
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, 4, entries[0].ConversionCount)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFunnelRepositoryVisitOutcomesHandlesEmptyTable(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewFunnelRepository(db)

	rows := sqlmock.NewRows([]string{"scheduled", "completed", "cancelled", "no_show"}).
		AddRow(nil, nil, nil, nil)
	mock.ExpectQuery("SELECT").
		WithArgs("inst-1").
		WillReturnRows(rows)

	stats, err := repo.VisitOutcomes(context.Background(), models.VisitStatsFilter{InstitutionID: "inst-1"})
	require.NoError(t, err)
	assert.Equal(t, 0, stats.Scheduled)
	assert.Equal(t, 0, stats.NoShow)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFunnelRepositoryVisitOutcomesAppliesRange(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewFunnelRepository(db)

	from := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2026, 1, 31, 23, 59, 59, 0, time.UTC)
	rows := sqlmock.NewRows([]string{"scheduled", "completed", "cancelled", "no_show"}).
		AddRow(3, 2, 1, 0)
	mock.ExpectQuery("SELECT").
		WithArgs("inst-1", from, to).
		WillReturnRows(rows)

	stats, err := repo.VisitOutcomes(context.Background(), models.VisitStatsFilter{
		InstitutionID: "inst-1",
		From:          &from,
		To:            &to,
	})
	require.NoError(t, err)
	assert.Equal(t, 3, stats.Scheduled)
	assert.Equal(t, 2, stats.Completed)
	assert.NoError(t, mock.ExpectationsWereMet())
}
