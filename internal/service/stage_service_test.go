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
	appErrors "github.com/noah-isme/edu-crm-api/pkg/errors"
)

type mockStageRepo struct {
	stages     map[string]models.Stage
	leadCounts map[string]int
	reordered  []string
	deleted    []string
}

func newMockStageRepo(stages ...models.Stage) *mockStageRepo {
	repo := &mockStageRepo{stages: make(map[string]models.Stage), leadCounts: make(map[string]int)}
	for _, s := range stages {
		repo.stages[s.ID] = s
	}
	return repo
}

func (m *mockStageRepo) ListByInstitution(ctx context.Context, institutionID string) ([]models.Stage, error) {
	var out []models.Stage
	for _, s := range m.stages {
		if s.InstitutionID == institutionID {
			out = append(out, s)
		}
	}
	for i := 0; i < len(out); i++ {
		for j := i + 1; j < len(out); j++ {
			if out[j].OrderIndex < out[i].OrderIndex {
				out[i], out[j] = out[j], out[i]
			}
		}
	}
	return out, nil
}

func (m *mockStageRepo) FindByID(ctx context.Context, id string) (*models.Stage, error) {
	if s, ok := m.stages[id]; ok {
		return &s, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockStageRepo) CountByInstitution(ctx context.Context, institutionID string) (int, error) {
	count := 0
	for _, s := range m.stages {
		if s.InstitutionID == institutionID {
			count++
		}
	}
	return count, nil
}

func (m *mockStageRepo) CountLeadsInStage(ctx context.Context, stageID string) (int, error) {
	return m.leadCounts[stageID], nil
}

func (m *mockStageRepo) NextOrderIndex(ctx context.Context, institutionID string) (int, error) {
	max := 0
	for _, s := range m.stages {
		if s.InstitutionID == institutionID && s.OrderIndex > max {
			max = s.OrderIndex
		}
	}
	return max + 1, nil
}

func (m *mockStageRepo) Create(ctx context.Context, stage *models.Stage) error {
	if stage.ID == "" {
		stage.ID = "generated"
	}
	m.stages[stage.ID] = *stage
	return nil
}

func (m *mockStageRepo) Update(ctx context.Context, stage *models.Stage) error {
	m.stages[stage.ID] = *stage
	return nil
}

func (m *mockStageRepo) Reorder(ctx context.Context, institutionID string, orderedIDs []string) error {
	m.reordered = orderedIDs
	for position, id := range orderedIDs {
		s := m.stages[id]
		s.OrderIndex = position + 1
		m.stages[id] = s
	}
	return nil
}

func (m *mockStageRepo) Delete(ctx context.Context, id string) error {
	m.deleted = append(m.deleted, id)
	delete(m.stages, id)
	return nil
}

func defaultStages() []models.Stage {
	now := time.Now().UTC()
	return []models.Stage{
		{ID: "stage-1", InstitutionID: "inst-1", Name: "Novo", Color: "#3b82f6", OrderIndex: 1, CreatedAt: now, UpdatedAt: now},
		{ID: "stage-2", InstitutionID: "inst-1", Name: "Contato", Color: "#f59e0b", OrderIndex: 2, CreatedAt: now, UpdatedAt: now},
		{ID: "stage-3", InstitutionID: "inst-1", Name: "Matrícula", Color: "#10b981", OrderIndex: 3, CreatedAt: now, UpdatedAt: now},
	}
}

func TestStageServiceCreateAppendsToEnd(t *testing.T) {
	repo := newMockStageRepo(defaultStages()...)
	svc := NewStageService(repo, nil, validator.New(), zap.NewNop())

	stage, err := svc.Create(context.Background(), "inst-1", CreateStageRequest{Name: "Visita", Color: "#8b5cf6"})
	require.NoError(t, err)
	assert.Equal(t, 4, stage.OrderIndex)
	assert.Equal(t, "inst-1", stage.InstitutionID)
}

func TestStageServiceDeleteRefusedAtMinimum(t *testing.T) {
	stages := defaultStages()[:2]
	repo := newMockStageRepo(stages...)
	svc := NewStageService(repo, nil, validator.New(), zap.NewNop())

	err := svc.Delete(context.Background(), "inst-1", "stage-1")
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrInvariant.Code, appErr.Code)
	assert.Empty(t, repo.deleted)
}

func TestStageServiceDeleteRefusedWhileOccupied(t *testing.T) {
	repo := newMockStageRepo(defaultStages()...)
	repo.leadCounts["stage-2"] = 3
	svc := NewStageService(repo, nil, validator.New(), zap.NewNop())

	err := svc.Delete(context.Background(), "inst-1", "stage-2")
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrInvariant.Code, appErr.Code)
}

func TestStageServiceDeleteEmptyStage(t *testing.T) {
	repo := newMockStageRepo(defaultStages()...)
	svc := NewStageService(repo, nil, validator.New(), zap.NewNop())

	err := svc.Delete(context.Background(), "inst-1", "stage-2")
	require.NoError(t, err)
	assert.Equal(t, []string{"stage-2"}, repo.deleted)
}

func TestStageServiceDeleteHidesForeignTenantStage(t *testing.T) {
	stages := append(defaultStages(), models.Stage{ID: "stage-x", InstitutionID: "inst-2", Name: "Other", OrderIndex: 1})
	repo := newMockStageRepo(stages...)
	svc := NewStageService(repo, nil, validator.New(), zap.NewNop())

	err := svc.Delete(context.Background(), "inst-1", "stage-x")
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErr.Code)
}

func TestStageServiceReorderRequiresFullPermutation(t *testing.T) {
	repo := newMockStageRepo(defaultStages()...)
	svc := NewStageService(repo, nil, validator.New(), zap.NewNop())

	_, err := svc.Reorder(context.Background(), "inst-1", ReorderStagesRequest{StageIDs: []string{"stage-1", "stage-2"}})
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErr.Code)

	_, err = svc.Reorder(context.Background(), "inst-1", ReorderStagesRequest{StageIDs: []string{"stage-1", "stage-2", "stage-9"}})
	require.Error(t, err)
	appErr = appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErr.Code)
}

func TestStageServiceReorderAppliesNewOrder(t *testing.T) {
	repo := newMockStageRepo(defaultStages()...)
	svc := NewStageService(repo, nil, validator.New(), zap.NewNop())

	stages, err := svc.Reorder(context.Background(), "inst-1", ReorderStagesRequest{StageIDs: []string{"stage-3", "stage-1", "stage-2"}})
	require.NoError(t, err)
	assert.Equal(t, []string{"stage-3", "stage-1", "stage-2"}, repo.reordered)
	require.Len(t, stages, 3)
	assert.Equal(t, "stage-3", stages[0].ID)
}

func TestStageServiceUpdateRejectsEmptyName(t *testing.T) {
	repo := newMockStageRepo(defaultStages()...)
	svc := NewStageService(repo, nil, validator.New(), zap.NewNop())

	empty := ""
	_, err := svc.Update(context.Background(), "inst-1", "stage-1", UpdateStageRequest{Name: &empty})
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErr.Code)
}
