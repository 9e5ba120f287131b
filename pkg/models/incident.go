package models

import "time"

// IncidentStatus is the status of an incident.
type IncidentStatus string

// Incident statuses.
const (
	IncidentOpen   IncidentStatus = "OPEN"
	IncidentClosed IncidentStatus = "CLOSED"
)

// IncidentMember is one linked complaint of an existing incident, carried with
// its fingerprint so new complaints can be scored against it.
type IncidentMember struct {
	OpenedAt    time.Time      `json:"opened_at"`
	Fingerprint *Fingerprint   `json:"fingerprint"`
	Status      IncidentStatus `json:"status"`
	IncidentID  int64          `json:"incident_id"`
}

// IncidentDraft describes an incident about to be created together with its
// founding members.
type IncidentDraft struct {
	DistrictID *int64  `json:"district_id,omitempty"`
	Title      string  `json:"title"`
	Keywords   string  `json:"keywords"`
	MemberIDs  []int64 `json:"member_ids"`
	LinkScore  float64 `json:"link_score"`
}

// SyncResult counts the incident status transitions applied by one
// synchronization.
type SyncResult struct {
	Closed   int64 `json:"closed"`
	Reopened int64 `json:"reopened"`
}

// Changed reports whether any incident changed status.
func (r SyncResult) Changed() bool {
	return r.Closed+r.Reopened > 0
}
