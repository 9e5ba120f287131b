// Package models contains domain models for the complaint incident worker.
package models

// ComplaintStatus is the lifecycle status of a complaint as stored by the
// complaint backend.
type ComplaintStatus string

// Complaint statuses.
const (
	ComplaintReceived    ComplaintStatus = "RECEIVED"
	ComplaintNormalized  ComplaintStatus = "NORMALIZED"
	ComplaintRecommended ComplaintStatus = "RECOMMENDED"
	ComplaintInProgress  ComplaintStatus = "IN_PROGRESS"
	ComplaintProcessing  ComplaintStatus = "PROCESSING"
	ComplaintDone        ComplaintStatus = "DONE"
	ComplaintClosed      ComplaintStatus = "CLOSED"
	ComplaintCanceled    ComplaintStatus = "CANCELED"
)

// TerminalComplaintStatuses lists the statuses after which a complaint needs no
// further handling. DONE is intentionally absent: a done complaint still
// waits for the citizen's confirmation and keeps its incident open.
var TerminalComplaintStatuses = []ComplaintStatus{ComplaintClosed, ComplaintCanceled}

// IsTerminal reports whether the status is terminal.
func (s ComplaintStatus) IsTerminal() bool {
	for _, t := range TerminalComplaintStatuses {
		if s == t {
			return true
		}
	}
	return false
}

// TerminalStatusStrings returns the terminal statuses as plain strings for SQL
// IN clauses.
func TerminalStatusStrings() []string {
	out := make([]string, len(TerminalComplaintStatuses))
	for i, s := range TerminalComplaintStatuses {
		out[i] = string(s)
	}
	return out
}
