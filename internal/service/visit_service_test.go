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

const visitLeadID = "a3d2f6b1-7c4e-49d8-9e2a-5b8f1c6d3e7a"

type mockVisitRepo struct {
	visits map[string]models.Visit
}

func newMockVisitRepo() *mockVisitRepo {
	return &mockVisitRepo{visits: map[string]models.Visit{}}
}

func (m *mockVisitRepo) FindByID(ctx context.Context, institutionID, id string) (*models.VisitDetail, error) {
	if v, ok := m.visits[id]; ok && v.InstitutionID == institutionID {
		return &models.VisitDetail{Visit: v}, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockVisitRepo) List(ctx context.Context, filter models.VisitFilter) ([]models.VisitDetail, error) {
	var out []models.VisitDetail
	for _, v := range m.visits {
		if v.InstitutionID != filter.InstitutionID {
			continue
		}
		if filter.LeadID != "" && v.LeadID != filter.LeadID {
			continue
		}
		if filter.Status != "" && v.Status != filter.Status {
			continue
		}
		out = append(out, models.VisitDetail{Visit: v})
	}
	return out, nil
}

func (m *mockVisitRepo) Create(ctx context.Context, visit *models.Visit) error {
	m.visits[visit.ID] = *visit
	return nil
}

func (m *mockVisitRepo) Update(ctx context.Context, visit *models.Visit) error {
	m.visits[visit.ID] = *visit
	return nil
}

type mockVisitLeadRepo struct {
	leads map[string]models.LeadDetail
}

func (m *mockVisitLeadRepo) FindByID(ctx context.Context, institutionID, id string) (*models.LeadDetail, error) {
	if lead, ok := m.leads[id]; ok && lead.InstitutionID == institutionID {
		copied := lead
		return &copied, nil
	}
	return nil, sql.ErrNoRows
}

func newVisitService(visits *mockVisitRepo) *VisitService {
	leads := &mockVisitLeadRepo{leads: map[string]models.LeadDetail{
		visitLeadID: {Lead: models.Lead{ID: visitLeadID, InstitutionID: "inst-1", StudentName: "Ana Silva"}},
	}}
	return NewVisitService(visits, leads, nil, validator.New(), zap.NewNop())
}

func TestVisitServiceScheduleDefaultsTitle(t *testing.T) {
	repo := newMockVisitRepo()
	svc := newVisitService(repo)

	visit, err := svc.Schedule(context.Background(), "inst-1", ScheduleVisitRequest{
		LeadID:          visitLeadID,
		ScheduledAt:     time.Date(2026, 9, 10, 14, 0, 0, 0, time.UTC),
		DurationMinutes: 45,
	})
	require.NoError(t, err)
	assert.Equal(t, "Visit - Ana Silva", visit.Title)
	assert.Equal(t, models.VisitScheduled, visit.Status)
	require.NotNil(t, visit.StudentName)
	assert.Equal(t, "Ana Silva", *visit.StudentName)
}

func TestVisitServiceScheduleRequiresTime(t *testing.T) {
	svc := newVisitService(newMockVisitRepo())

	_, err := svc.Schedule(context.Background(), "inst-1", ScheduleVisitRequest{
		LeadID:          visitLeadID,
		DurationMinutes: 45,
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestVisitServiceScheduleRequiresPositiveDuration(t *testing.T) {
	svc := newVisitService(newMockVisitRepo())

	_, err := svc.Schedule(context.Background(), "inst-1", ScheduleVisitRequest{
		LeadID:          visitLeadID,
		ScheduledAt:     time.Date(2026, 9, 10, 14, 0, 0, 0, time.UTC),
		DurationMinutes: 0,
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestVisitServiceScheduleUnknownLead(t *testing.T) {
	svc := newVisitService(newMockVisitRepo())

	_, err := svc.Schedule(context.Background(), "inst-1", ScheduleVisitRequest{
		LeadID:          "b4e3a7c2-8d5f-4ae9-9f3b-6c9a2d7e4f8b",
		ScheduledAt:     time.Date(2026, 9, 10, 14, 0, 0, 0, time.UTC),
		DurationMinutes: 30,
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

func TestVisitServiceUpdateMovesBetweenAnyStatuses(t *testing.T) {
	repo := newMockVisitRepo()
	repo.visits["visit-1"] = models.Visit{
		ID:            "visit-1",
		InstitutionID: "inst-1",
		LeadID:        visitLeadID,
		Title:         "Campus tour",
		Status:        models.VisitCancelled,
	}
	svc := newVisitService(repo)

	status := models.VisitCompleted
	updated, err := svc.Update(context.Background(), "inst-1", "visit-1", UpdateVisitRequest{Status: &status})
	require.NoError(t, err)
	assert.Equal(t, models.VisitCompleted, updated.Status)
	assert.Equal(t, "Campus tour", updated.Title)
}

func TestVisitServiceUpdateRejectsUnknownStatus(t *testing.T) {
	repo := newMockVisitRepo()
	repo.visits["visit-1"] = models.Visit{ID: "visit-1", InstitutionID: "inst-1", LeadID: visitLeadID, Status: models.VisitScheduled}
	svc := newVisitService(repo)

	status := models.VisitStatus("postponed")
	_, err := svc.Update(context.Background(), "inst-1", "visit-1", UpdateVisitRequest{Status: &status})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestVisitServiceUpdateIgnoresEmptyTitle(t *testing.T) {
	repo := newMockVisitRepo()
	repo.visits["visit-1"] = models.Visit{ID: "visit-1", InstitutionID: "inst-1", LeadID: visitLeadID, Title: "Campus tour", Status: models.VisitScheduled}
	svc := newVisitService(repo)

	empty := ""
	notes := "parent asked about scholarships"
	updated, err := svc.Update(context.Background(), "inst-1", "visit-1", UpdateVisitRequest{Title: &empty, Notes: &notes})
	require.NoError(t, err)
	assert.Equal(t, "Campus tour", updated.Title)
	require.NotNil(t, updated.Notes)
	assert.Equal(t, notes, *updated.Notes)
}

func TestVisitServiceCalendarRejectsBadStatusFilter(t *testing.T) {
	svc := newVisitService(newMockVisitRepo())

	_, err := svc.Calendar(context.Background(), models.VisitFilter{InstitutionID: "inst-1", Status: "maybe"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestVisitServiceListForLead(t *testing.T) {
	repo := newMockVisitRepo()
	repo.visits["visit-1"] = models.Visit{ID: "visit-1", InstitutionID: "inst-1", LeadID: visitLeadID, Status: models.VisitScheduled}
	repo.visits["visit-2"] = models.Visit{ID: "visit-2", InstitutionID: "inst-1", LeadID: "other-lead", Status: models.VisitScheduled}
	svc := newVisitService(repo)

	visits, err := svc.ListForLead(context.Background(), "inst-1", visitLeadID)
	require.NoError(t, err)
	require.Len(t, visits, 1)
	assert.Equal(t, "visit-1", visits[0].ID)

	_, err = svc.ListForLead(context.Background(), "inst-1", "missing")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}
