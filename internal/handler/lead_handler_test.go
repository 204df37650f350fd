package handler

import (
	"context"
	"database/sql"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/edu-crm-api/internal/models"
	"github.com/noah-isme/edu-crm-api/internal/repository"
	"github.com/noah-isme/edu-crm-api/internal/service"
)

type leadRepoFake struct {
	leads map[string]models.Lead
}

func newLeadRepoFake(leads ...models.Lead) *leadRepoFake {
	f := &leadRepoFake{leads: map[string]models.Lead{}}
	for _, l := range leads {
		f.leads[l.ID] = l
	}
	return f
}

func (f *leadRepoFake) List(ctx context.Context, filter models.LeadFilter) ([]models.LeadDetail, int, error) {
	var out []models.LeadDetail
	for _, l := range f.leads {
		if l.InstitutionID == filter.InstitutionID {
			out = append(out, models.LeadDetail{Lead: l})
		}
	}
	return out, len(out), nil
}

func (f *leadRepoFake) FindByID(ctx context.Context, institutionID, id string) (*models.LeadDetail, error) {
	if l, ok := f.leads[id]; ok && l.InstitutionID == institutionID {
		return &models.LeadDetail{Lead: l}, nil
	}
	return nil, sql.ErrNoRows
}

func (f *leadRepoFake) Create(ctx context.Context, lead *models.Lead) error {
	f.leads[lead.ID] = *lead
	return nil
}

func (f *leadRepoFake) Update(ctx context.Context, lead *models.Lead) error {
	f.leads[lead.ID] = *lead
	return nil
}

func (f *leadRepoFake) Assign(ctx context.Context, id string, userID *string) error {
	l := f.leads[id]
	l.AssignedTo = userID
	f.leads[id] = l
	return nil
}

func (f *leadRepoFake) Delete(ctx context.Context, id string) error {
	delete(f.leads, id)
	return nil
}

func (f *leadRepoFake) ApplyTransition(ctx context.Context, params repository.TransitionParams) (*models.StageChange, error) {
	l := f.leads[params.LeadID]
	stageID := params.ToStageID
	l.CurrentStageID = &stageID
	f.leads[params.LeadID] = l
	return &models.StageChange{
		ID:            "change-1",
		LeadID:        params.LeadID,
		FromStageID:   params.FromStageID,
		ToStageID:     params.ToStageID,
		ChangedBy:     params.ChangedBy,
		ChangedByName: params.ChangedByName,
	}, nil
}

type historyRepoFake struct{}

func (historyRepoFake) ListByLead(ctx context.Context, leadID string) ([]models.StageChangeDetail, error) {
	return nil, nil
}

type userRepoFake struct{}

func (userRepoFake) FindByID(ctx context.Context, id string) (*models.User, error) {
	return nil, sql.ErrNoRows
}

type interactionRepoFake struct {
	created []models.Interaction
}

func (f *interactionRepoFake) Create(ctx context.Context, interaction *models.Interaction) error {
	interaction.ID = "interaction-1"
	f.created = append(f.created, *interaction)
	return nil
}

func (f *interactionRepoFake) ListByLead(ctx context.Context, leadID string) ([]models.InteractionDetail, error) {
	var out []models.InteractionDetail
	for _, i := range f.created {
		out = append(out, models.InteractionDetail{Interaction: i})
	}
	return out, nil
}

type visitRepoFake struct {
	visits map[string]models.Visit
}

func (f *visitRepoFake) FindByID(ctx context.Context, institutionID, id string) (*models.VisitDetail, error) {
	if v, ok := f.visits[id]; ok && v.InstitutionID == institutionID {
		return &models.VisitDetail{Visit: v}, nil
	}
	return nil, sql.ErrNoRows
}

func (f *visitRepoFake) List(ctx context.Context, filter models.VisitFilter) ([]models.VisitDetail, error) {
	return nil, nil
}

func (f *visitRepoFake) Create(ctx context.Context, visit *models.Visit) error {
	if f.visits == nil {
		f.visits = map[string]models.Visit{}
	}
	f.visits[visit.ID] = *visit
	return nil
}

func (f *visitRepoFake) Update(ctx context.Context, visit *models.Visit) error {
	f.visits[visit.ID] = *visit
	return nil
}

func newLeadHandlerUnderTest(leadRepo *leadRepoFake, stageRepo *stageRepoFake) *LeadHandler {
	leadSvc := service.NewLeadService(leadRepo, stageRepo, userRepoFake{}, nil, nil, nil, nil)
	transitionSvc := service.NewTransitionService(leadRepo, stageRepo, historyRepoFake{}, nil, nil, nil, nil, nil)
	interactionSvc := service.NewInteractionService(&interactionRepoFake{}, leadRepo, nil, nil)
	visitSvc := service.NewVisitService(&visitRepoFake{}, leadRepo, nil, nil, nil)
	return NewLeadHandler(leadSvc, transitionSvc, interactionSvc, visitSvc)
}

func funnelStageFakes() *stageRepoFake {
	return newStageRepoFake(
		models.Stage{ID: "stage-1", InstitutionID: "inst-1", Name: "Novo", Color: "#3b82f6", OrderIndex: 1},
		models.Stage{ID: "stage-2", InstitutionID: "inst-1", Name: "Contato", Color: "#f59e0b", OrderIndex: 2},
	)
}

func TestLeadHandlerCreateLandsOnFirstStage(t *testing.T) {
	leadRepo := newLeadRepoFake()
	handler := newLeadHandlerUnderTest(leadRepo, funnelStageFakes())

	c, w := stageTestContext(t, http.MethodPost, "/leads", []byte(`{"student_name":"Ana Silva"}`))
	handler.Create(c)

	require.Equal(t, http.StatusCreated, w.Code)
	assert.Contains(t, w.Body.String(), `"current_stage_id":"stage-1"`)
	require.Len(t, leadRepo.leads, 1)
}

func TestLeadHandlerTransition(t *testing.T) {
	stageID := "stage-1"
	leadRepo := newLeadRepoFake(models.Lead{
		ID:             "lead-1",
		InstitutionID:  "inst-1",
		StudentName:    "Ana Silva",
		CurrentStageID: &stageID,
	})
	handler := newLeadHandlerUnderTest(leadRepo, funnelStageFakes())

	c, w := stageTestContext(t, http.MethodPost, "/leads/lead-1/transition", []byte(`{"to_stage_id":"stage-2"}`))
	c.Params = gin.Params{{Key: "id", Value: "lead-1"}}
	handler.Transition(c)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"to_stage_id":"stage-2"`)
	require.NotNil(t, leadRepo.leads["lead-1"].CurrentStageID)
	assert.Equal(t, "stage-2", *leadRepo.leads["lead-1"].CurrentStageID)
}

func TestLeadHandlerTransitionUnknownStage(t *testing.T) {
	stageID := "stage-1"
	leadRepo := newLeadRepoFake(models.Lead{
		ID:             "lead-1",
		InstitutionID:  "inst-1",
		StudentName:    "Ana Silva",
		CurrentStageID: &stageID,
	})
	handler := newLeadHandlerUnderTest(leadRepo, funnelStageFakes())

	c, w := stageTestContext(t, http.MethodPost, "/leads/lead-1/transition", []byte(`{"to_stage_id":"stage-9"}`))
	c.Params = gin.Params{{Key: "id", Value: "lead-1"}}
	handler.Transition(c)

	require.Equal(t, http.StatusNotFound, w.Code)
}

func TestLeadHandlerAddInteraction(t *testing.T) {
	leadRepo := newLeadRepoFake(models.Lead{ID: "lead-1", InstitutionID: "inst-1", StudentName: "Ana Silva"})
	handler := newLeadHandlerUnderTest(leadRepo, funnelStageFakes())

	c, w := stageTestContext(t, http.MethodPost, "/leads/lead-1/interactions", []byte(`{"type":"call","content":"Spoke with the parent"}`))
	c.Params = gin.Params{{Key: "id", Value: "lead-1"}}
	handler.AddInteraction(c)

	require.Equal(t, http.StatusCreated, w.Code)
	assert.Contains(t, w.Body.String(), "Spoke with the parent")
}

func TestLeadHandlerGetNotFound(t *testing.T) {
	handler := newLeadHandlerUnderTest(newLeadRepoFake(), funnelStageFakes())

	c, w := stageTestContext(t, http.MethodGet, "/leads/lead-9", nil)
	c.Params = gin.Params{{Key: "id", Value: "lead-9"}}
	handler.Get(c)

	require.Equal(t, http.StatusNotFound, w.Code)
}
