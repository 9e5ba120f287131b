package gorm

import (
	"context"
	"errors"
	"os"
	"sync"
	"testing"

	pgvec "github.com/pgvector/pgvector-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm/logger"

	"github.com/Meta-project2/RAG-Complaint-2nd/internal/incident"
	"github.com/Meta-project2/RAG-Complaint-2nd/pkg/models"
)

// TestIntegration_ConcurrentMerge verifies a complaint is linked at most once
// when several writers race for it.
func TestIntegration_ConcurrentMerge(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()

	seedComplaint(t, store, complaintSeed{id: 1, embedding: []float32{1, 0}})
	seedComplaint(t, store, complaintSeed{id: 2, embedding: []float32{1, 0}})
	target := createIncident(t, store, 1)

	const writers = 10
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		merged  int
		skipped int
	)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := store.MergeComplaint(ctx, incident.Merge{ComplaintID: 2, IncidentID: target, Score: 0.7, LinkedAt: testNow})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				merged++
			case errors.Is(err, incident.ErrAlreadyLinked):
				skipped++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, merged)
	assert.Equal(t, writers-1, skipped)
	assert.Equal(t, 2, loadIncident(t, store, target).ComplaintCount)
}

// TestIntegration_ConcurrentCreate verifies two batches claiming the same
// complaint cannot both commit.
func TestIntegration_ConcurrentCreate(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()

	for id := int64(1); id <= 3; id++ {
		seedComplaint(t, store, complaintSeed{id: id, embedding: []float32{1, 0}})
	}

	batches := [][]*models.IncidentDraft{
		{{Title: "a", MemberIDs: []int64{1, 2}, LinkScore: 0.95}},
		{{Title: "b", MemberIDs: []int64{2, 3}, LinkScore: 0.95}},
	}

	errs := make([]error, len(batches))
	var wg sync.WaitGroup
	for i, drafts := range batches {
		i, drafts := i, drafts
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, errs[i] = store.CreateIncidents(ctx, drafts, testNow)
		}()
	}
	wg.Wait()

	var ok int
	for _, err := range errs {
		if err == nil {
			ok++
			continue
		}
		assert.ErrorIs(t, err, incident.ErrAlreadyLinked)
	}
	assert.Equal(t, 1, ok)

	var incidents int64
	require.NoError(t, store.DB.Model(&Incident{}).Count(&incidents).Error)
	assert.Equal(t, int64(1), incidents, "the losing batch leaves no incident behind")
}

// TestIntegration_PostgresFingerprints reads a pgvector embedding back through
// FetchUnassigned on a real PostgreSQL+pgvector instance.
// Requires DATABASE_DSN; the rows it writes are removed afterwards.
func TestIntegration_PostgresFingerprints(t *testing.T) {
	dsn := os.Getenv("DATABASE_DSN")
	if dsn == "" {
		t.Skip("DATABASE_DSN not set, skipping integration test")
	}

	store, err := NewStore(Config{DSN: dsn, MaxConns: 2, LogLevel: logger.Silent})
	require.NoError(t, err)
	defer store.Close()
	require.NoError(t, store.Migrate())

	const id = int64(987654321)
	t.Cleanup(func() {
		store.DB.Where("complaint_id = ?", id).Delete(&ComplaintNormalization{})
		store.DB.Where("id = ?", id).Delete(&Complaint{})
	})

	embedding := make([]float32, DefaultEmbeddingDims)
	embedding[0], embedding[1] = 0.6, 0.8
	v := pgvec.NewVector(embedding)

	require.NoError(t, store.DB.Create(&Complaint{ID: id, Status: string(models.ComplaintReceived), CreatedAt: testNow}).Error)
	require.NoError(t, store.DB.Create(&ComplaintNormalization{
		ComplaintID: id,
		CoreRequest: "도로 파손 보수 요청",
		Keywords:    models.JSONStringArray{"도로", "파손"},
		Embedding:   &v,
		IsCurrent:   true,
		CreatedAt:   testNow,
	}).Error)

	fps, err := store.FetchUnassigned(context.Background(), incident.UnassignedQuery{})
	require.NoError(t, err)

	var got *models.Fingerprint
	for _, fp := range fps {
		if fp.ComplaintID == id {
			got = fp
		}
	}
	require.NotNil(t, got)
	require.Len(t, got.Embedding, DefaultEmbeddingDims)
	assert.InDelta(t, 0.6, got.Embedding[0], 1e-6)
	assert.InDelta(t, 0.8, got.Embedding[1], 1e-6)
	assert.Equal(t, []string{"도로", "파손"}, got.Keywords)
	assert.Equal(t, "도로 파손 보수 요청", got.CoreSummary)
}
