package incident

import (
	"cmp"
	"context"
	"errors"
	"slices"
	"time"

	"github.com/rs/zerolog"

	"github.com/Meta-project2/RAG-Complaint-2nd/pkg/models"
	"github.com/Meta-project2/RAG-Complaint-2nd/pkg/similarity"
)

// DefaultMergeThreshold is the combined score a complaint must exceed to join
// an existing incident.
const DefaultMergeThreshold = 0.65

// VerifyConfig enables a stricter acceptance check on top of the threshold:
// a high combined score, shared keywords and similar summaries.
type VerifyConfig struct {
	Enabled           bool    `json:"enabled" yaml:"enabled"`
	MinScore          float64 `json:"min_score" yaml:"min_score"`
	MinSharedKeywords int     `json:"min_shared_keywords" yaml:"min_shared_keywords"`
	MinTextRatio      float64 `json:"min_text_ratio" yaml:"min_text_ratio"`
}

// MatcherConfig configures the merge matcher.
type MatcherConfig struct {
	// Threshold is exclusive: a match is accepted when score > Threshold.
	Threshold float64 `json:"threshold" yaml:"threshold"`
	// MatchDistrict requires candidates from the same district.
	MatchDistrict bool `json:"match_district" yaml:"match_district"`
	// MatchTarget requires candidates about the same target object.
	MatchTarget bool         `json:"match_target" yaml:"match_target"`
	Verify      VerifyConfig `json:"verify" yaml:"verify"`
}

// DefaultMatcherConfig returns the default matcher configuration.
func DefaultMatcherConfig() MatcherConfig {
	return MatcherConfig{
		Threshold:     DefaultMergeThreshold,
		MatchDistrict: true,
		MatchTarget:   true,
		Verify: VerifyConfig{
			MinScore:          0.82,
			MinSharedKeywords: 1,
			MinTextRatio:      0.3,
		},
	}
}

// MatchReport summarizes one MatchAll run.
type MatchReport struct {
	// Unmatched holds the complaints that found no incident, in input order.
	Unmatched []*models.Fingerprint
	// Failed holds the ids of complaints whose merge write failed.
	Failed    []int64
	Merged    int
	Skipped   int
	Failures  int
}

// Matcher assigns new complaints to the most similar existing incident.
type Matcher struct {
	store  Store
	engine *similarity.Engine
	config MatcherConfig
	logger zerolog.Logger
}

// NewMatcher creates a merge matcher.
func NewMatcher(store Store, engine *similarity.Engine, config MatcherConfig, logger zerolog.Logger) *Matcher {
	return &Matcher{
		store:  store,
		engine: engine,
		config: config,
		logger: logger.With().Str("component", "merge-matcher").Logger(),
	}
}

// Filter returns the hard constraints applied to candidates.
func (m *Matcher) Filter() Filter {
	return Filter{SameDistrict: m.config.MatchDistrict, SameTarget: m.config.MatchTarget}
}

// MatchAll tries to merge every complaint into an incident of idx. Complaints
// are processed in ascending id order. A failed merge leaves the complaint
// unassigned for a later pass and does not stop the run.
func (m *Matcher) MatchAll(ctx context.Context, fps []*models.Fingerprint, idx *CandidateIndex, now time.Time) MatchReport {
	var report MatchReport
	for _, fp := range sortByComplaintID(fps) {
		if ctx.Err() != nil {
			m.logger.Warn().Err(ctx.Err()).Msg("Merge run interrupted")
			break
		}

		merged, err := m.Match(ctx, similarity.NewItem(fp), idx, now)
		switch {
		case errors.Is(err, ErrAlreadyLinked):
			report.Skipped++
		case err != nil:
			report.Failures++
			report.Failed = append(report.Failed, fp.ComplaintID)
		case merged:
			report.Merged++
		default:
			report.Unmatched = append(report.Unmatched, fp)
		}
	}
	return report
}

// Match merges one complaint into its best incident when the match is
// accepted. On success the complaint joins idx as a member of that incident.
func (m *Matcher) Match(ctx context.Context, item *similarity.Item, idx *CandidateIndex, now time.Time) (bool, error) {
	match, ok := idx.Best(m.engine, item, m.Filter())
	if !ok || !m.Accepts(item, match) {
		return false, nil
	}

	err := m.store.MergeComplaint(ctx, Merge{
		ComplaintID: item.Fingerprint.ComplaintID,
		IncidentID:  match.IncidentID,
		Score:       match.Score.Combined,
		LinkedAt:    now,
	})
	if err != nil {
		ev := m.logger.Error()
		if errors.Is(err, ErrAlreadyLinked) {
			ev = m.logger.Debug()
		}
		ev.Err(err).
			Int64("complaint_id", item.Fingerprint.ComplaintID).
			Int64("incident_id", match.IncidentID).
			Msg("Merge failed")
		return false, err
	}

	idx.Add(match.IncidentID, item)
	m.logger.Debug().
		Int64("complaint_id", item.Fingerprint.ComplaintID).
		Int64("incident_id", match.IncidentID).
		Float64("score", match.Score.Combined).
		Msg("Complaint merged into incident")
	return true, nil
}

// Accepts reports whether a match clears the threshold and, when enabled, the
// verification gates.
func (m *Matcher) Accepts(item *similarity.Item, match Match) bool {
	if match.Score.Combined <= m.config.Threshold {
		return false
	}
	v := m.config.Verify
	if !v.Enabled {
		return true
	}
	if match.Score.Combined < v.MinScore {
		return false
	}
	if similarity.SharedKeywords(item.Terms(), match.Member.Terms()) < v.MinSharedKeywords {
		return false
	}
	ratio := similarity.SequenceRatio(item.Fingerprint.CoreSummary, match.Member.Fingerprint.CoreSummary)
	return ratio >= v.MinTextRatio
}

func sortByComplaintID(fps []*models.Fingerprint) []*models.Fingerprint {
	out := make([]*models.Fingerprint, 0, len(fps))
	for _, fp := range fps {
		if fp != nil {
			out = append(out, fp)
		}
	}
	slices.SortStableFunc(out, func(a, b *models.Fingerprint) int {
		return cmp.Compare(a.ComplaintID, b.ComplaintID)
	})
	return out
}
