// Package incident groups complaints into incidents: it merges new complaints
// into existing incidents, clusters the rest into new ones and keeps incident
// status in step with the complaints linked to it.
package incident

import (
	"context"
	"errors"
	"time"

	"github.com/Meta-project2/RAG-Complaint-2nd/pkg/models"
)

var (
	// ErrAlreadyLinked is returned when a complaint already belongs to an
	// incident. Links are never overwritten.
	ErrAlreadyLinked = errors.New("complaint already linked to an incident")
	// ErrIncidentNotFound is returned when a merge targets a missing incident.
	ErrIncidentNotFound = errors.New("incident not found")
)

// CandidateQuery selects the incidents new complaints may be merged into.
type CandidateQuery struct {
	// Since drops incidents opened before this instant.
	Since time.Time
	// IncludeClosed makes CLOSED incidents eligible.
	IncludeClosed bool
}

// UnassignedQuery selects the backlog of one pass.
type UnassignedQuery struct {
	// Deferred complaints are ordered after every other complaint, so ids
	// that keep failing do not hold the head of a limited batch.
	Deferred []int64
	// Limit caps the result; <= 0 means no limit.
	Limit int
}

// Merge links one complaint to an incident.
type Merge struct {
	LinkedAt    time.Time
	ComplaintID int64
	IncidentID  int64
	Score       float64
}

// Store is the persistence surface the incident engine needs. Every write
// method is one transaction.
type Store interface {
	// FetchUnassigned returns current fingerprints of complaints not linked to
	// any incident, ordered by complaint id with q.Deferred last.
	FetchUnassigned(ctx context.Context, q UnassignedQuery) ([]*models.Fingerprint, error)
	// LoadCandidates returns the members of the eligible incidents.
	LoadCandidates(ctx context.Context, q CandidateQuery) ([]*models.IncidentMember, error)
	// MergeComplaint links the complaint, bumps the incident's complaint count
	// and reopens it.
	MergeComplaint(ctx context.Context, m Merge) error
	// CreateIncidents creates OPEN incidents and links their founding members.
	// The returned ids follow the order of drafts.
	CreateIncidents(ctx context.Context, drafts []*models.IncidentDraft, now time.Time) ([]int64, error)
	// SyncStatuses closes incidents whose members are all terminal and reopens
	// closed incidents with an active member.
	SyncStatuses(ctx context.Context, now time.Time) (models.SyncResult, error)
}
