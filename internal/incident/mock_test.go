package incident

import (
	"context"
	"math"
	"time"

	"github.com/Meta-project2/RAG-Complaint-2nd/pkg/models"
)

type mockStore struct {
	fetchFn  func(context.Context, UnassignedQuery) ([]*models.Fingerprint, error)
	loadFn   func(context.Context, CandidateQuery) ([]*models.IncidentMember, error)
	mergeFn  func(context.Context, Merge) error
	createFn func(context.Context, []*models.IncidentDraft, time.Time) ([]int64, error)
	syncFn   func(context.Context, time.Time) (models.SyncResult, error)

	merges  []Merge
	created []*models.IncidentDraft
	nextID  int64

	fetchCalled  int
	loadCalled   int
	mergeCalled  int
	createCalled int
	syncCalled   int
}

func (m *mockStore) FetchUnassigned(ctx context.Context, q UnassignedQuery) ([]*models.Fingerprint, error) {
	m.fetchCalled++
	if m.fetchFn == nil {
		return nil, nil
	}
	return m.fetchFn(ctx, q)
}

func (m *mockStore) LoadCandidates(ctx context.Context, q CandidateQuery) ([]*models.IncidentMember, error) {
	m.loadCalled++
	if m.loadFn == nil {
		return nil, nil
	}
	return m.loadFn(ctx, q)
}

func (m *mockStore) MergeComplaint(ctx context.Context, merge Merge) error {
	m.mergeCalled++
	if m.mergeFn != nil {
		if err := m.mergeFn(ctx, merge); err != nil {
			return err
		}
	}
	m.merges = append(m.merges, merge)
	return nil
}

func (m *mockStore) CreateIncidents(ctx context.Context, drafts []*models.IncidentDraft, now time.Time) ([]int64, error) {
	m.createCalled++
	if m.createFn != nil {
		return m.createFn(ctx, drafts, now)
	}
	if m.nextID == 0 {
		m.nextID = 100
	}
	ids := make([]int64, len(drafts))
	for i, d := range drafts {
		ids[i] = m.nextID
		m.nextID++
		m.created = append(m.created, d)
	}
	return ids, nil
}

func (m *mockStore) SyncStatuses(ctx context.Context, now time.Time) (models.SyncResult, error) {
	m.syncCalled++
	if m.syncFn == nil {
		return models.SyncResult{}, nil
	}
	return m.syncFn(ctx, now)
}

func ptr[T any](v T) *T { return &v }

// unit returns a 2-d unit vector whose cosine with (1, 0) is cos.
func unit(cos float64) []float32 {
	return []float32{float32(cos), float32(math.Sqrt(1 - cos*cos))}
}

func fingerprint(id, district int64, cos float64, keywords ...string) *models.Fingerprint {
	return &models.Fingerprint{
		ComplaintID:  id,
		DistrictID:   ptr(district),
		DistrictName: "강남구",
		Embedding:    unit(cos),
		Keywords:     keywords,
		CoreSummary:  "가로등 고장",
	}
}

func memberOf(incidentID int64, fp *models.Fingerprint) *models.IncidentMember {
	return &models.IncidentMember{IncidentID: incidentID, Status: models.IncidentOpen, Fingerprint: fp}
}

var testNow = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
