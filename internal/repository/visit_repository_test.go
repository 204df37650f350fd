package repository

import (
	"context"
	"database/sql"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/edu-crm-api/internal/models"
)

func TestVisitRepositoryCreate(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewVisitRepository(db)

	mock.ExpectExec("INSERT INTO visits").
		WillReturnResult(sqlmock.NewResult(1, 1))

	visit := &models.Visit{
		InstitutionID:   "inst-1",
		LeadID:          "lead-1",
		Title:           "Visit - Ana Silva",
		ScheduledAt:     time.Now().Add(24 * time.Hour),
		DurationMinutes: 45,
		Status:          models.VisitScheduled,
	}
	err := repo.Create(context.Background(), visit)
	require.NoError(t, err)
	assert.NotEmpty(t, visit.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestVisitRepositoryListFiltersByStatusAndRange(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewVisitRepository(db)

	from := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	now := time.Now()
	studentName := "Ana Silva"
	rows := sqlmock.NewRows([]string{
		"id", "institution_id", "lead_id", "title", "description", "scheduled_at",
		"duration_minutes", "status", "notes", "created_at", "updated_at", "student_name",
	}).AddRow("visit-1", "inst-1", "lead-1", "Visit - Ana Silva", nil, from.Add(time.Hour), 45, "scheduled", nil, now, now, studentName)

	mock.ExpectQuery("SELECT v.id, v.institution_id, v.lead_id").
		WithArgs("inst-1", "scheduled", from).
		WillReturnRows(rows)

	visits, err := repo.List(context.Background(), models.VisitFilter{
		InstitutionID: "inst-1",
		Status:        models.VisitScheduled,
		From:          &from,
	})
	require.NoError(t, err)
	require.Len(t, visits, 1)
	assert.Equal(t, models.VisitScheduled, visits[0].Status)
	require.NotNil(t, visits[0].StudentName)
	assert.Equal(t, studentName, *visits[0].StudentName)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestVisitRepositoryFindByIDScopesTenant(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewVisitRepository(db)

	mock.ExpectQuery("SELECT v.id, v.institution_id, v.lead_id").
		WithArgs("visit-1", "inst-2").
		WillReturnError(sql.ErrNoRows)

	_, err := repo.FindByID(context.Background(), "inst-2", "visit-1")
	require.ErrorIs(t, err, sql.ErrNoRows)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestVisitRepositoryUpdate(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewVisitRepository(db)

	mock.ExpectExec("UPDATE visits SET title").
		WillReturnResult(sqlmock.NewResult(0, 1))

	visit := &models.Visit{
		ID:              "visit-1",
		Title:           "Campus tour",
		ScheduledAt:     time.Now().Add(48 * time.Hour),
		DurationMinutes: 60,
		Status:          models.VisitCompleted,
	}
	err := repo.Update(context.Background(), visit)
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}
