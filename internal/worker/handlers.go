package worker

import (
	"net/http"
	"time"

	"github.com/goccy/go-json"
)

// writeJSON writes a JSON response with proper error handling.
func (s *Service) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.logger.Error().Err(err).Msg("Failed to encode JSON response")
	}
}

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	LastPassAt     *time.Time `json:"last_pass_at,omitempty"`
	Database       any        `json:"database"`
	Status         string     `json:"status"`
	Version        string     `json:"version"`
	LastPassError  string     `json:"last_pass_error,omitempty"`
	Passes         int        `json:"passes"`
	LastPassAgeSec float64    `json:"last_pass_age_seconds,omitempty"`
	UptimeSec      float64    `json:"uptime_seconds"`
}

// handleHealth reports database health and the age of the last pass. It
// answers 503 only when the database is unreachable; a failing pass is
// reported in the body.
func (s *Service) handleHealth(w http.ResponseWriter, r *http.Request) {
	db := s.store.HealthCheck(r.Context())
	passes, lastAt, lastErr := s.scheduler.Status()

	resp := HealthResponse{
		Status:    db.Status,
		Version:   s.version,
		Database:  db,
		Passes:    passes,
		UptimeSec: time.Since(s.startTime).Seconds(),
	}
	if !lastAt.IsZero() {
		resp.LastPassAt = &lastAt
		resp.LastPassAgeSec = time.Since(lastAt).Seconds()
	}
	if lastErr != nil {
		resp.LastPassError = lastErr.Error()
	}

	status := http.StatusOK
	if db.Status == "unhealthy" {
		status = http.StatusServiceUnavailable
	}
	s.writeJSON(w, status, resp)
}

// handleVersion returns the worker version.
func (s *Service) handleVersion(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"version": s.version})
}

// handleLastPass returns the report of the most recent pass, or 204 before
// the first one.
func (s *Service) handleLastPass(w http.ResponseWriter, _ *http.Request) {
	report := s.scheduler.LastReport()
	if report == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	s.writeJSON(w, http.StatusOK, report)
}
