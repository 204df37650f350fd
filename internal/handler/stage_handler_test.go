package handler

import (
	"bytes"
	"context"
	"database/sql"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/edu-crm-api/internal/middleware"
	"github.com/noah-isme/edu-crm-api/internal/models"
	"github.com/noah-isme/edu-crm-api/internal/service"
)

type stageRepoFake struct {
	stages     map[string]models.Stage
	leadCounts map[string]int
	deleted    []string
}

func newStageRepoFake(stages ...models.Stage) *stageRepoFake {
	f := &stageRepoFake{stages: map[string]models.Stage{}, leadCounts: map[string]int{}}
	for _, s := range stages {
		f.stages[s.ID] = s
	}
	return f
}

func (f *stageRepoFake) ListByInstitution(ctx context.Context, institutionID string) ([]models.Stage, error) {
	var out []models.Stage
	for _, s := range f.stages {
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

func (f *stageRepoFake) FindByID(ctx context.Context, id string) (*models.Stage, error) {
	if s, ok := f.stages[id]; ok {
		return &s, nil
	}
	return nil, sql.ErrNoRows
}

func (f *stageRepoFake) CountByInstitution(ctx context.Context, institutionID string) (int, error) {
	n := 0
	for _, s := range f.stages {
		if s.InstitutionID == institutionID {
			n++
		}
	}
	return n, nil
}

func (f *stageRepoFake) CountLeadsInStage(ctx context.Context, stageID string) (int, error) {
	return f.leadCounts[stageID], nil
}

func (f *stageRepoFake) NextOrderIndex(ctx context.Context, institutionID string) (int, error) {
	max := 0
	for _, s := range f.stages {
		if s.InstitutionID == institutionID && s.OrderIndex > max {
			max = s.OrderIndex
		}
	}
	return max + 1, nil
}

func (f *stageRepoFake) Create(ctx context.Context, stage *models.Stage) error {
	if stage.ID == "" {
		stage.ID = "stage-new"
	}
	f.stages[stage.ID] = *stage
	return nil
}

func (f *stageRepoFake) Update(ctx context.Context, stage *models.Stage) error {
	f.stages[stage.ID] = *stage
	return nil
}

func (f *stageRepoFake) Reorder(ctx context.Context, institutionID string, orderedIDs []string) error {
	for i, id := range orderedIDs {
		s := f.stages[id]
		s.OrderIndex = i + 1
		f.stages[id] = s
	}
	return nil
}

func (f *stageRepoFake) Delete(ctx context.Context, id string) error {
	delete(f.stages, id)
	f.deleted = append(f.deleted, id)
	return nil
}

func stageTestContext(t *testing.T, method, target string, body []byte) (*gin.Context, *httptest.ResponseRecorder) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	var req *http.Request
	if body != nil {
		req = httptest.NewRequest(method, target, bytes.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	c.Request = req
	c.Set(middleware.ContextUserKey, &models.JWTClaims{
		UserID:        "user-1",
		FullName:      "Maria",
		InstitutionID: "inst-1",
		Role:          models.RoleAdmin,
	})
	return c, w
}

func newStageHandlerUnderTest(repo *stageRepoFake) *StageHandler {
	return NewStageHandler(service.NewStageService(repo, nil, nil, nil))
}

func TestStageHandlerList(t *testing.T) {
	repo := newStageRepoFake(
		models.Stage{ID: "stage-1", InstitutionID: "inst-1", Name: "Novo", Color: "#3b82f6", OrderIndex: 1},
		models.Stage{ID: "stage-2", InstitutionID: "inst-1", Name: "Contato", Color: "#f59e0b", OrderIndex: 2},
	)
	handler := newStageHandlerUnderTest(repo)

	c, w := stageTestContext(t, http.MethodGet, "/stages", nil)
	handler.List(c)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "Novo")
	assert.Contains(t, w.Body.String(), "Contato")
}

func TestStageHandlerCreateInvalidBody(t *testing.T) {
	handler := newStageHandlerUnderTest(newStageRepoFake())

	c, w := stageTestContext(t, http.MethodPost, "/stages", []byte(`{"name":"Novo"`))
	handler.Create(c)

	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestStageHandlerCreate(t *testing.T) {
	repo := newStageRepoFake(
		models.Stage{ID: "stage-1", InstitutionID: "inst-1", Name: "Novo", Color: "#3b82f6", OrderIndex: 1},
	)
	handler := newStageHandlerUnderTest(repo)

	c, w := stageTestContext(t, http.MethodPost, "/stages", []byte(`{"name":"Matrícula","color":"#22c55e"}`))
	handler.Create(c)

	require.Equal(t, http.StatusCreated, w.Code)
	assert.Contains(t, w.Body.String(), "Matrícula")
}

func TestStageHandlerDeleteAtMinimumConflicts(t *testing.T) {
	repo := newStageRepoFake(
		models.Stage{ID: "stage-1", InstitutionID: "inst-1", Name: "Novo", Color: "#3b82f6", OrderIndex: 1},
		models.Stage{ID: "stage-2", InstitutionID: "inst-1", Name: "Contato", Color: "#f59e0b", OrderIndex: 2},
	)
	handler := newStageHandlerUnderTest(repo)

	c, w := stageTestContext(t, http.MethodDelete, "/stages/stage-2", nil)
	c.Params = gin.Params{{Key: "id", Value: "stage-2"}}
	handler.Delete(c)

	require.Equal(t, http.StatusConflict, w.Code)
	assert.Empty(t, repo.deleted)
}

func TestStageHandlerMissingClaims(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := newStageHandlerUnderTest(newStageRepoFake())

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/stages", nil)

	handler.List(c)
	require.Equal(t, http.StatusUnauthorized, w.Code)
}
