package incident

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Meta-project2/RAG-Complaint-2nd/pkg/models"
)

func TestSynchronizer_Sync(t *testing.T) {
	var gotNow time.Time
	store := &mockStore{
		syncFn: func(_ context.Context, now time.Time) (models.SyncResult, error) {
			gotNow = now
			return models.SyncResult{Closed: 2, Reopened: 1}, nil
		},
	}

	res, err := NewSynchronizer(store, zerolog.Nop()).Sync(context.Background(), testNow)
	require.NoError(t, err)
	assert.Equal(t, models.SyncResult{Closed: 2, Reopened: 1}, res)
	assert.Equal(t, testNow, gotNow)
	assert.Equal(t, 1, store.syncCalled)
}

func TestSynchronizer_WrapsError(t *testing.T) {
	cause := errors.New("boom")
	store := &mockStore{
		syncFn: func(context.Context, time.Time) (models.SyncResult, error) {
			return models.SyncResult{}, cause
		},
	}

	_, err := NewSynchronizer(store, zerolog.Nop()).Sync(context.Background(), testNow)
	assert.ErrorIs(t, err, cause)
}
