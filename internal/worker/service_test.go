package worker

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm/logger"

	"github.com/Meta-project2/RAG-Complaint-2nd/internal/config"
	dbgorm "github.com/Meta-project2/RAG-Complaint-2nd/internal/db/gorm"
	"github.com/Meta-project2/RAG-Complaint-2nd/internal/pipeline"
)

func testService(t *testing.T, mutate func(*config.Config)) *Service {
	t.Helper()

	store, err := dbgorm.Open(sqlite.Open(":memory:"), dbgorm.Config{MaxConns: 1, LogLevel: logger.Silent, EmbeddingDims: 2})
	require.NoError(t, err)
	require.NoError(t, store.Migrate())

	cfg := config.Default()
	cfg.HTTP.Addr = ""
	cfg.Database.EmbeddingDims = 2
	if mutate != nil {
		mutate(cfg)
	}

	svc, err := New(store, cfg, "test", zerolog.Nop())
	require.NoError(t, err)
	return svc
}

func get(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestService_LastPass(t *testing.T) {
	svc := testService(t, nil)
	t.Cleanup(func() { _ = svc.Shutdown(context.Background()) })

	rec := get(t, svc.Handler(), "/api/passes/last")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Empty(t, rec.Body.String())

	report, err := svc.RunOnce(context.Background())
	require.NoError(t, err)
	require.NotNil(t, report)

	rec = get(t, svc.Handler(), "/api/passes/last")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var got pipeline.PassReport
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, report.ID, got.ID)
	assert.Zero(t, got.Fetched)
}

func TestService_Health(t *testing.T) {
	svc := testService(t, nil)
	t.Cleanup(func() { _ = svc.Shutdown(context.Background()) })

	rec := get(t, svc.Handler(), "/health")
	require.Equal(t, http.StatusOK, rec.Code)

	var before HealthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &before))
	assert.Equal(t, "healthy", before.Status)
	assert.Equal(t, "test", before.Version)
	assert.Zero(t, before.Passes)
	assert.Nil(t, before.LastPassAt)

	_, err := svc.RunOnce(context.Background())
	require.NoError(t, err)

	rec = get(t, svc.Handler(), "/health")
	var after HealthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &after))
	assert.Equal(t, 1, after.Passes)
	require.NotNil(t, after.LastPassAt)
	assert.Empty(t, after.LastPassError)
}

func TestService_Metrics(t *testing.T) {
	svc := testService(t, nil)
	t.Cleanup(func() { _ = svc.Shutdown(context.Background()) })

	_, err := svc.RunOnce(context.Background())
	require.NoError(t, err)

	rec := get(t, svc.Handler(), "/metrics")
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, `incidentd_passes_total{result="ok"} 1`)
	assert.Contains(t, body, `go_sql_max_open_connections{db_name="incidentd"} 1`)
}

func TestService_RequestID(t *testing.T) {
	svc := testService(t, nil)
	t.Cleanup(func() { _ = svc.Shutdown(context.Background()) })

	rec := get(t, svc.Handler(), "/api/version")
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))

	req := httptest.NewRequest(http.MethodGet, "/api/version", nil)
	req.Header.Set("X-Request-ID", "abc-123")
	rec = httptest.NewRecorder()
	svc.Handler().ServeHTTP(rec, req)
	assert.Equal(t, "abc-123", rec.Header().Get("X-Request-ID"))
	assert.JSONEq(t, `{"version":"test"}`, rec.Body.String())
}

func TestService_StartAndShutdown(t *testing.T) {
	svc := testService(t, func(c *config.Config) {
		c.Scheduler.Interval = time.Hour
	})

	errCh := make(chan error, 1)
	go func() { errCh <- svc.Start(context.Background()) }()

	require.Eventually(t, func() bool {
		passes, _, _ := svc.scheduler.Status()
		return passes >= 1
	}, 5*time.Second, 10*time.Millisecond, "first pass runs immediately")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, svc.Shutdown(ctx))

	select {
	case err := <-errCh:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Start did not return after Shutdown")
	}
}

func TestRequestIDFromContext(t *testing.T) {
	assert.Empty(t, GetRequestID(context.Background()))

	var seen string
	h := RequestID(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		seen = GetRequestID(r.Context())
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.NotEmpty(t, seen)
	assert.Equal(t, seen, rec.Header().Get("X-Request-ID"))
}
