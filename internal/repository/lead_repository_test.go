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

func TestLeadRepositoryFindByIDScopesTenant(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewLeadRepository(db)

	now := time.Now()
	stageID := "stage-1"
	rows := sqlmock.NewRows([]string{
		"id", "institution_id", "student_name", "parent_name", "email", "phone",
		"grade_level", "course_interest", "current_stage_id", "assigned_to", "notes",
		"created_at", "updated_at", "stage_name", "stage_color", "assignee_name",
	}).AddRow("lead-1", "inst-1", "Ana Silva", nil, nil, nil, nil, nil, stageID, nil, "", now, now, "Novo", "#3b82f6", nil)

	mock.ExpectQuery("SELECT l.id, l.institution_id, l.student_name").
		WithArgs("lead-1", "inst-1").
		WillReturnRows(rows)

	lead, err := repo.FindByID(context.Background(), "inst-1", "lead-1")
	require.NoError(t, err)
	assert.Equal(t, "Ana Silva", lead.StudentName)
	require.NotNil(t, lead.CurrentStageID)
	assert.Equal(t, stageID, *lead.CurrentStageID)
	require.NotNil(t, lead.StageName)
	assert.Equal(t, "Novo", *lead.StageName)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLeadRepositoryApplyTransitionCommitsAllThreeWrites(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewLeadRepository(db)

	from := "stage-1"
	mock.ExpectBegin()
	mock.ExpectExec("UPDATE leads SET current_stage_id").
		WithArgs("stage-2", sqlmock.AnyArg(), "lead-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO stage_changes").
		WithArgs(sqlmock.AnyArg(), "lead-1", from, "stage-2", "user-1", "Maria", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("INSERT INTO interactions").
		WithArgs(sqlmock.AnyArg(), "lead-1", string(models.InteractionNote), "Stage changed from Novo to Contato", "user-1", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	change, err := repo.ApplyTransition(context.Background(), TransitionParams{
		LeadID:        "lead-1",
		FromStageID:   &from,
		ToStageID:     "stage-2",
		ChangedBy:     "user-1",
		ChangedByName: "Maria",
		Description:   "Stage changed from Novo to Contato",
	})
	require.NoError(t, err)
	assert.Equal(t, "stage-2", change.ToStageID)
	assert.NotEmpty(t, change.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLeadRepositoryApplyTransitionRollsBackOnHistoryFailure(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewLeadRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE leads SET current_stage_id").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO stage_changes").
		WillReturnError(assert.AnError)
	mock.ExpectRollback()

	change, err := repo.ApplyTransition(context.Background(), TransitionParams{
		LeadID:    "lead-1",
		ToStageID: "stage-2",
		ChangedBy: "user-1",
	})
	require.Error(t, err)
	assert.Nil(t, change)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLeadRepositoryDeleteRemovesOwnedHistory(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewLeadRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec("DELETE FROM interactions WHERE lead_id").
		WithArgs("lead-1").
		WillReturnResult(sqlmock.NewResult(0, 3))
	mock.ExpectExec("DELETE FROM stage_changes WHERE lead_id").
		WithArgs("lead-1").
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectExec("DELETE FROM visits WHERE lead_id").
		WithArgs("lead-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("DELETE FROM leads WHERE id").
		WithArgs("lead-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := repo.Delete(context.Background(), "lead-1")
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLeadRepositoryListAppliesFilters(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewLeadRepository(db)

	now := time.Now()
	rows := sqlmock.NewRows([]string{
		"id", "institution_id", "student_name", "parent_name", "email", "phone",
		"grade_level", "course_interest", "current_stage_id", "assigned_to", "notes",
		"created_at", "updated_at", "stage_name", "stage_color", "assignee_name",
	}).AddRow("lead-1", "inst-1", "Ana Silva", nil, nil, nil, nil, nil, "stage-1", nil, "", now, now, "Novo", "#3b82f6", nil)

	mock.ExpectQuery("SELECT l.id, l.institution_id, l.student_name").
		WithArgs("inst-1", "stage-1", "%ana%").
		WillReturnRows(rows)
	mock.ExpectQuery(`SELECT COUNT\(\*\)`).
		WithArgs("inst-1", "stage-1", "%ana%").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

	leads, total, err := repo.List(context.Background(), models.LeadFilter{
		InstitutionID: "inst-1",
		StageID:       "stage-1",
		Search:        "Ana",
		Page:          1,
		PageSize:      20,
	})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	require.Len(t, leads, 1)
	assert.Equal(t, "Ana Silva", leads[0].StudentName)
	assert.NoError(t, mock.ExpectationsWereMet())
}
