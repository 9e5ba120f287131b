package incident

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/Meta-project2/RAG-Complaint-2nd/pkg/models"
)

// Synchronizer keeps incident status consistent with linked complaints:
// an incident is CLOSED exactly when it has members and all of them are
// terminal.
type Synchronizer struct {
	store  Store
	logger zerolog.Logger
}

// NewSynchronizer creates a status synchronizer.
func NewSynchronizer(store Store, logger zerolog.Logger) *Synchronizer {
	return &Synchronizer{
		store:  store,
		logger: logger.With().Str("component", "status-sync").Logger(),
	}
}

// Sync applies pending status transitions. Incidents already in the right
// state are left untouched, so repeated calls are no-ops.
func (s *Synchronizer) Sync(ctx context.Context, now time.Time) (models.SyncResult, error) {
	res, err := s.store.SyncStatuses(ctx, now)
	if err != nil {
		return models.SyncResult{}, fmt.Errorf("sync incident statuses: %w", err)
	}
	if res.Changed() {
		s.logger.Info().
			Int64("closed", res.Closed).
			Int64("reopened", res.Reopened).
			Msg("Incident statuses synchronized")
	}
	return res, nil
}
