package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Meta-project2/RAG-Complaint-2nd/internal/pipeline"
)

func TestMetrics_ObservePass(t *testing.T) {
	m := New()

	m.ObservePass(&pipeline.PassReport{
		Elapsed:          150 * time.Millisecond,
		Fetched:          10,
		Merged:           4,
		IncidentsCreated: 3,
		Singletons:       1,
		Rematched:        1,
		Closed:           2,
		Reopened:         1,
		MergeFailures:    1,
		Silhouette:       0.42,
		SilhouetteOK:     true,
	}, nil)
	m.ObservePass(&pipeline.PassReport{Silhouette: 0.1}, errors.New("fetch unassigned: timeout"))
	m.ObservePass(nil, errors.New("pass panicked"))

	assert.Equal(t, 1.0, testutil.ToFloat64(m.passes.WithLabelValues("ok")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.passes.WithLabelValues("failed")))
	assert.Equal(t, 10.0, testutil.ToFloat64(m.fetched))
	assert.Equal(t, 4.0, testutil.ToFloat64(m.merged))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.created.WithLabelValues("cluster")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.created.WithLabelValues("singleton")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.transitions.WithLabelValues("CLOSED")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.transitions.WithLabelValues("OPEN")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.failures.WithLabelValues("merge")))
	assert.InDelta(t, 0.42, testutil.ToFloat64(m.silhouette), 1e-9, "undefined silhouette keeps the last value")
}

func TestMetrics_Handler(t *testing.T) {
	m := New()
	m.ObservePass(&pipeline.PassReport{Merged: 1}, nil)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.True(t, strings.Contains(body, "incidentd_complaints_merged_total 1"))
	assert.True(t, strings.Contains(body, `incidentd_passes_total{result="ok"} 1`))
}
