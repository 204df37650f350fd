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

func TestInteractionRepositoryCreate(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewInteractionRepository(db)

	mock.ExpectExec("INSERT INTO interactions").
		WillReturnResult(sqlmock.NewResult(1, 1))

	interaction := &models.Interaction{
		LeadID:  "lead-1",
		Type:    models.InteractionCall,
		Content: "Parent asked about tuition",
		UserID:  "user-1",
	}
	err := repo.Create(context.Background(), interaction)
	require.NoError(t, err)
	assert.NotEmpty(t, interaction.ID)
	assert.False(t, interaction.CreatedAt.IsZero())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInteractionRepositoryListByLeadNewestFirst(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewInteractionRepository(db)

	now := time.Now()
	userName := "Maria"
	rows := sqlmock.NewRows([]string{"id", "lead_id", "type", "content", "user_id", "created_at", "user_name"}).
		AddRow("int-2", "lead-1", "note", "Stage changed from Novo to Contato", "user-1", now, userName).
		AddRow("int-1", "lead-1", "call", "First contact", "user-1", now.Add(-time.Hour), userName)

	mock.ExpectQuery("SELECT i.id, i.lead_id, i.type").
		WithArgs("lead-1").
		WillReturnRows(rows)

	interactions, err := repo.ListByLead(context.Background(), "lead-1")
	require.NoError(t, err)
	require.Len(t, interactions, 2)
	assert.Equal(t, models.InteractionNote, interactions[0].Type)
	require.NotNil(t, interactions[0].UserName)
	assert.Equal(t, userName, *interactions[0].UserName)
	assert.NoError(t, mock.ExpectationsWereMet())
}
