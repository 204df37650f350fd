package service

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/edu-crm-api/internal/models"
	"github.com/noah-isme/edu-crm-api/internal/repository"
	appErrors "github.com/noah-isme/edu-crm-api/pkg/errors"
)

type mockTransitionLeadRepo struct {
	leads       map[string]models.LeadDetail
	applied     []repository.TransitionParams
	applyErr    error
	findErr     error
	reloadCalls int
}

func (m *mockTransitionLeadRepo) FindByID(ctx context.Context, institutionID, id string) (*models.LeadDetail, error) {
	m.reloadCalls++
	if m.findErr != nil {
		return nil, m.findErr
	}
	if lead, ok := m.leads[id]; ok && lead.InstitutionID == institutionID {
		copied := lead
		return &copied, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockTransitionLeadRepo) ApplyTransition(ctx context.Context, params repository.TransitionParams) (*models.StageChange, error) {
	if m.applyErr != nil {
		return nil, m.applyErr
	}
	m.applied = append(m.applied, params)
	lead := m.leads[params.LeadID]
	stageID := params.ToStageID
	lead.CurrentStageID = &stageID
	m.leads[params.LeadID] = lead
	return &models.StageChange{
		ID:            "change-1",
		LeadID:        params.LeadID,
		FromStageID:   params.FromStageID,
		ToStageID:     params.ToStageID,
		ChangedBy:     params.ChangedBy,
		ChangedByName: params.ChangedByName,
		CreatedAt:     time.Now().UTC(),
	}, nil
}

type mockTransitionStageRepo struct {
	stages map[string]models.Stage
}

func (m *mockTransitionStageRepo) FindByID(ctx context.Context, id string) (*models.Stage, error) {
	if s, ok := m.stages[id]; ok {
		return &s, nil
	}
	return nil, sql.ErrNoRows
}

type mockHistoryRepo struct {
	changes []models.StageChangeDetail
}

func (m *mockHistoryRepo) ListByLead(ctx context.Context, leadID string) ([]models.StageChangeDetail, error) {
	return m.changes, nil
}

func transitionFixtures() (*mockTransitionLeadRepo, *mockTransitionStageRepo) {
	from := "stage-1"
	leads := &mockTransitionLeadRepo{leads: map[string]models.LeadDetail{
		"lead-1": {Lead: models.Lead{
			ID:             "lead-1",
			InstitutionID:  "inst-1",
			StudentName:    "Ana Silva",
			CurrentStageID: &from,
		}},
	}}
	stages := &mockTransitionStageRepo{stages: map[string]models.Stage{
		"stage-1": {ID: "stage-1", InstitutionID: "inst-1", Name: "Novo", Color: "#3b82f6", OrderIndex: 1},
		"stage-2": {ID: "stage-2", InstitutionID: "inst-1", Name: "Contato", Color: "#f59e0b", OrderIndex: 2},
		"stage-x": {ID: "stage-x", InstitutionID: "inst-2", Name: "Foreign", Color: "#000000", OrderIndex: 1},
	}}
	return leads, stages
}

func testActor() *models.JWTClaims {
	return &models.JWTClaims{UserID: "user-1", FullName: "Maria", InstitutionID: "inst-1", Role: models.RoleUser}
}

func TestTransitionServiceMoveHappyPath(t *testing.T) {
	leads, stages := transitionFixtures()
	svc := NewTransitionService(leads, stages, &mockHistoryRepo{}, nil, nil, nil, validator.New(), zap.NewNop())

	result, err := svc.Move(context.Background(), "inst-1", "lead-1", TransitionRequest{ToStageID: "stage-2"}, testActor())
	require.NoError(t, err)
	require.NotNil(t, result.StageChange)
	assert.Equal(t, "stage-2", result.StageChange.ToStageID)
	require.NotNil(t, result.Lead.CurrentStageID)
	assert.Equal(t, "stage-2", *result.Lead.CurrentStageID)

	require.Len(t, leads.applied, 1)
	assert.Equal(t, "Stage changed from Novo to Contato", leads.applied[0].Description)
	assert.Equal(t, "user-1", leads.applied[0].ChangedBy)
}

func TestTransitionServiceMoveNoOpLeavesNoHistory(t *testing.T) {
	leads, stages := transitionFixtures()
	svc := NewTransitionService(leads, stages, &mockHistoryRepo{}, nil, nil, nil, validator.New(), zap.NewNop())

	result, err := svc.Move(context.Background(), "inst-1", "lead-1", TransitionRequest{ToStageID: "stage-1"}, testActor())
	require.NoError(t, err)
	assert.Nil(t, result.StageChange)
	assert.Empty(t, leads.applied)
}

func TestTransitionServiceMoveUnknownLead(t *testing.T) {
	leads, stages := transitionFixtures()
	svc := NewTransitionService(leads, stages, &mockHistoryRepo{}, nil, nil, nil, validator.New(), zap.NewNop())

	_, err := svc.Move(context.Background(), "inst-1", "lead-9", TransitionRequest{ToStageID: "stage-2"}, testActor())
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErr.Code)
}

func TestTransitionServiceMoveHidesForeignStage(t *testing.T) {
	leads, stages := transitionFixtures()
	svc := NewTransitionService(leads, stages, &mockHistoryRepo{}, nil, nil, nil, validator.New(), zap.NewNop())

	_, err := svc.Move(context.Background(), "inst-1", "lead-1", TransitionRequest{ToStageID: "stage-x"}, testActor())
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErr.Code)
	assert.Empty(t, leads.applied)
}

func TestTransitionServiceMoveSurfacesStoreFailure(t *testing.T) {
	leads, stages := transitionFixtures()
	leads.applyErr = assert.AnError
	svc := NewTransitionService(leads, stages, &mockHistoryRepo{}, nil, nil, nil, validator.New(), zap.NewNop())

	_, err := svc.Move(context.Background(), "inst-1", "lead-1", TransitionRequest{ToStageID: "stage-2"}, testActor())
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrUnavailable.Code, appErr.Code)
}

func TestTransitionServiceMoveFirstClassification(t *testing.T) {
	leads, stages := transitionFixtures()
	lead := leads.leads["lead-1"]
	lead.CurrentStageID = nil
	leads.leads["lead-1"] = lead
	svc := NewTransitionService(leads, stages, &mockHistoryRepo{}, nil, nil, nil, validator.New(), zap.NewNop())

	result, err := svc.Move(context.Background(), "inst-1", "lead-1", TransitionRequest{ToStageID: "stage-2"}, testActor())
	require.NoError(t, err)
	require.NotNil(t, result.StageChange)
	assert.Nil(t, result.StageChange.FromStageID)
	require.Len(t, leads.applied, 1)
	assert.Equal(t, "Stage set to Contato", leads.applied[0].Description)
}

func TestTransitionServiceHistory(t *testing.T) {
	leads, stages := transitionFixtures()
	from := "stage-1"
	history := &mockHistoryRepo{changes: []models.StageChangeDetail{
		{StageChange: models.StageChange{ID: "change-1", LeadID: "lead-1", FromStageID: &from, ToStageID: "stage-2"}},
	}}
	svc := NewTransitionService(leads, stages, history, nil, nil, nil, validator.New(), zap.NewNop())

	changes, err := svc.History(context.Background(), "inst-1", "lead-1")
	require.NoError(t, err)
	require.Len(t, changes, 1)
	assert.Equal(t, "stage-2", changes[0].ToStageID)

	_, err = svc.History(context.Background(), "inst-1", "lead-9")
	require.Error(t, err)
}
