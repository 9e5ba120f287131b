package incident

import (
	"sort"

	"github.com/Meta-project2/RAG-Complaint-2nd/pkg/models"
	"github.com/Meta-project2/RAG-Complaint-2nd/pkg/similarity"
)

// Filter holds the hard categorical constraints between a complaint and a
// candidate member.
type Filter struct {
	SameDistrict bool
	SameTarget   bool
}

func (f Filter) allows(a, b *models.Fingerprint) bool {
	if f.SameDistrict && !a.SameDistrict(b) {
		return false
	}
	if f.SameTarget && !a.SameTarget(b) {
		return false
	}
	return true
}

// Match is the best incident found for a complaint.
type Match struct {
	Member     *similarity.Item
	Score      similarity.Score
	IncidentID int64
}

type member struct {
	item       *similarity.Item
	incidentID int64
}

// CandidateIndex is the working set of incident members for one pass.
// Members added during the pass (merged complaints and the founders of newly
// created incidents) are visible to every later lookup.
type CandidateIndex struct {
	members   []member
	incidents map[int64]struct{}
}

// NewCandidateIndex builds an index from loaded incident members, ordered by
// incident id then complaint id. Members without an embedding are left out.
func NewCandidateIndex(loaded []*models.IncidentMember) *CandidateIndex {
	sorted := make([]*models.IncidentMember, 0, len(loaded))
	for _, m := range loaded {
		if m != nil && m.Fingerprint.HasEmbedding() {
			sorted = append(sorted, m)
		}
	}
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].IncidentID != sorted[j].IncidentID {
			return sorted[i].IncidentID < sorted[j].IncidentID
		}
		return sorted[i].Fingerprint.ComplaintID < sorted[j].Fingerprint.ComplaintID
	})

	idx := &CandidateIndex{incidents: make(map[int64]struct{})}
	for _, m := range sorted {
		idx.add(m.IncidentID, similarity.NewItem(m.Fingerprint))
	}
	return idx
}

// Add registers a complaint as a member of an incident.
func (x *CandidateIndex) Add(incidentID int64, item *similarity.Item) {
	x.add(incidentID, item)
}

func (x *CandidateIndex) add(incidentID int64, item *similarity.Item) {
	x.members = append(x.members, member{incidentID: incidentID, item: item})
	x.incidents[incidentID] = struct{}{}
}

// Len returns the number of members.
func (x *CandidateIndex) Len() int {
	return len(x.members)
}

// Incidents returns the number of distinct incidents.
func (x *CandidateIndex) Incidents() int {
	return len(x.incidents)
}

// Best returns the incident scoring highest against item. An incident scores
// as its best-matching member. Ties go to the lowest incident id.
func (x *CandidateIndex) Best(engine *similarity.Engine, item *similarity.Item, filter Filter) (Match, bool) {
	var best Match
	found := false
	for _, m := range x.members {
		if m.item.Fingerprint.ComplaintID == item.Fingerprint.ComplaintID {
			continue
		}
		if !filter.allows(item.Fingerprint, m.item.Fingerprint) {
			continue
		}
		s := engine.Compare(item, m.item)
		if !found || s.Combined > best.Score.Combined ||
			(s.Combined == best.Score.Combined && m.incidentID < best.IncidentID) {
			best = Match{IncidentID: m.incidentID, Score: s, Member: m.item}
			found = true
		}
	}
	return best, found
}
