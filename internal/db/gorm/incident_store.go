package gorm

import (
	"context"
	"fmt"
	"time"

	pgvec "github.com/pgvector/pgvector-go"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/Meta-project2/RAG-Complaint-2nd/internal/incident"
	"github.com/Meta-project2/RAG-Complaint-2nd/pkg/models"
)

var _ incident.Store = (*Store)(nil)

// fingerprintRow is the scan target of the fingerprint queries.
type fingerprintRow struct {
	OpenedAt       time.Time
	DistrictID     *int64
	DistrictName   *string
	TargetObject   *string
	CoreRequest    string
	IncidentStatus string
	Embedding      pgvec.Vector
	Keywords       models.JSONStringArray
	ComplaintID    int64
	IncidentID     int64
}

func (r *fingerprintRow) fingerprint() *models.Fingerprint {
	fp := &models.Fingerprint{
		ComplaintID:  r.ComplaintID,
		DistrictID:   r.DistrictID,
		TargetObject: r.TargetObject,
		CoreSummary:  r.CoreRequest,
		Keywords:     []string(r.Keywords),
		Embedding:    r.Embedding.Slice(),
	}
	if r.DistrictName != nil {
		fp.DistrictName = *r.DistrictName
	}
	return fp
}

const fingerprintColumns = "cn.complaint_id, cn.district_id, d.name AS district_name, cn.core_request, " +
	"cn.target_object, cn.keywords_jsonb AS keywords, cn.embedding"

func (s *Store) fingerprints(tx *gorm.DB) *gorm.DB {
	return tx.Table("complaint_normalizations AS cn").
		Joins("JOIN complaints c ON c.id = cn.complaint_id").
		Joins("LEFT JOIN districts d ON d.id = cn.district_id").
		Where("cn.is_current = ? AND cn.embedding IS NOT NULL", true)
}

// FetchUnassigned returns the current fingerprints of unlinked complaints in
// ascending complaint id order, with q.Deferred moved behind the rest. When a
// complaint has several current rows the newest wins.
func (s *Store) FetchUnassigned(ctx context.Context, uq incident.UnassignedQuery) ([]*models.Fingerprint, error) {
	ctx, cancel := s.WithTimeout(ctx, SlowQueryTimeout, "fetch_unassigned")
	defer cancel()

	order := "cn.complaint_id ASC, cn.id DESC"
	q := s.fingerprints(s.DB.WithContext(ctx)).
		Select(fingerprintColumns).
		Where("c.incident_id IS NULL")
	if len(uq.Deferred) > 0 {
		q = q.Order(clause.OrderBy{Expression: clause.Expr{
			SQL:  "CASE WHEN cn.complaint_id IN ? THEN 1 ELSE 0 END, " + order,
			Vars: []any{uq.Deferred},
		}})
	} else {
		q = q.Order(order)
	}
	if uq.Limit > 0 {
		q = q.Limit(uq.Limit)
	}

	var rows []fingerprintRow
	if err := q.Scan(&rows).Error; err != nil {
		return nil, fmt.Errorf("fetch unassigned fingerprints: %w", err)
	}

	out := make([]*models.Fingerprint, 0, len(rows))
	var last int64
	for i := range rows {
		if len(out) > 0 && rows[i].ComplaintID == last {
			continue
		}
		last = rows[i].ComplaintID
		out = append(out, rows[i].fingerprint())
	}
	return out, nil
}

// LoadCandidates returns the fingerprints of the members of eligible
// incidents, ordered by incident id then complaint id.
func (s *Store) LoadCandidates(ctx context.Context, q incident.CandidateQuery) ([]*models.IncidentMember, error) {
	ctx, cancel := s.WithTimeout(ctx, SlowQueryTimeout, "load_candidates")
	defer cancel()

	statuses := []string{string(models.IncidentOpen)}
	if q.IncludeClosed {
		statuses = append(statuses, string(models.IncidentClosed))
	}

	query := s.fingerprints(s.DB.WithContext(ctx)).
		Select(fingerprintColumns+", i.id AS incident_id, i.status AS incident_status, i.opened_at AS opened_at").
		Joins("JOIN incidents i ON i.id = c.incident_id").
		Where("i.status IN ?", statuses).
		Order("i.id ASC, cn.complaint_id ASC")
	if !q.Since.IsZero() {
		query = query.Where("i.opened_at >= ?", q.Since.UTC())
	}

	var rows []fingerprintRow
	if err := query.Scan(&rows).Error; err != nil {
		return nil, fmt.Errorf("load candidate incidents: %w", err)
	}

	out := make([]*models.IncidentMember, len(rows))
	for i := range rows {
		out[i] = &models.IncidentMember{
			IncidentID:  rows[i].IncidentID,
			Status:      models.IncidentStatus(rows[i].IncidentStatus),
			OpenedAt:    rows[i].OpenedAt,
			Fingerprint: rows[i].fingerprint(),
		}
	}
	return out, nil
}

// MergeComplaint links a complaint to an incident, increments the incident's
// complaint count and reopens it, all in one transaction. An existing link is
// never overwritten.
func (s *Store) MergeComplaint(ctx context.Context, m incident.Merge) error {
	return s.TransactionWithTimeout(ctx, DefaultQueryTimeout, "merge_complaint", func(tx *gorm.DB) error {
		res := tx.Model(&Complaint{}).
			Where("id = ? AND incident_id IS NULL", m.ComplaintID).
			Updates(map[string]any{
				"incident_id":         m.IncidentID,
				"incident_linked_at":  m.LinkedAt.UTC(),
				"incident_link_score": m.Score,
			})
		if res.Error != nil {
			return fmt.Errorf("link complaint %d: %w", m.ComplaintID, res.Error)
		}
		if res.RowsAffected == 0 {
			return fmt.Errorf("complaint %d: %w", m.ComplaintID, incident.ErrAlreadyLinked)
		}

		res = tx.Model(&Incident{}).
			Where("id = ?", m.IncidentID).
			Updates(map[string]any{
				"complaint_count": gorm.Expr("complaint_count + 1"),
				"status":          string(models.IncidentOpen),
				"closed_at":       nil,
			})
		if res.Error != nil {
			return fmt.Errorf("update incident %d: %w", m.IncidentID, res.Error)
		}
		if res.RowsAffected == 0 {
			return fmt.Errorf("incident %d: %w", m.IncidentID, incident.ErrIncidentNotFound)
		}
		return nil
	})
}

// CreateIncidents inserts OPEN incidents and links their founding members in a
// single transaction. If any member is already linked the whole batch is
// rolled back.
func (s *Store) CreateIncidents(ctx context.Context, drafts []*models.IncidentDraft, now time.Time) ([]int64, error) {
	if len(drafts) == 0 {
		return nil, nil
	}
	now = now.UTC()

	ids := make([]int64, 0, len(drafts))
	err := s.TransactionWithTimeout(ctx, SlowQueryTimeout, "create_incidents", func(tx *gorm.DB) error {
		for _, d := range drafts {
			if len(d.MemberIDs) == 0 {
				return fmt.Errorf("incident %q has no members", d.Title)
			}
			inc := &Incident{
				Title:          d.Title,
				Status:         string(models.IncidentOpen),
				ComplaintCount: len(d.MemberIDs),
				Keywords:       d.Keywords,
				DistrictID:     d.DistrictID,
				OpenedAt:       now,
			}
			if err := tx.Create(inc).Error; err != nil {
				return fmt.Errorf("insert incident: %w", err)
			}

			res := tx.Model(&Complaint{}).
				Where("id IN ? AND incident_id IS NULL", d.MemberIDs).
				Updates(map[string]any{
					"incident_id":         inc.ID,
					"incident_linked_at":  now,
					"incident_link_score": d.LinkScore,
				})
			if res.Error != nil {
				return fmt.Errorf("link members of incident %d: %w", inc.ID, res.Error)
			}
			if res.RowsAffected != int64(len(d.MemberIDs)) {
				return fmt.Errorf("link members of incident %d: %d of %d linked: %w",
					inc.ID, res.RowsAffected, len(d.MemberIDs), incident.ErrAlreadyLinked)
			}
			ids = append(ids, inc.ID)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return ids, nil
}

const (
	hasMembers      = "EXISTS (SELECT 1 FROM complaints c WHERE c.incident_id = incidents.id)"
	hasActiveMember = "EXISTS (SELECT 1 FROM complaints c WHERE c.incident_id = incidents.id AND c.status NOT IN ?)"
)

// SyncStatuses closes OPEN incidents whose members are all terminal and
// reopens CLOSED incidents with an active member. Rows already in the right
// state are not written.
func (s *Store) SyncStatuses(ctx context.Context, now time.Time) (models.SyncResult, error) {
	var res models.SyncResult
	terminal := models.TerminalStatusStrings()

	err := s.TransactionWithTimeout(ctx, DefaultQueryTimeout, "sync_statuses", func(tx *gorm.DB) error {
		closed := tx.Model(&Incident{}).
			Where("status = ?", string(models.IncidentOpen)).
			Where(hasMembers).
			Where("NOT "+hasActiveMember, terminal).
			Updates(map[string]any{
				"status":    string(models.IncidentClosed),
				"closed_at": now.UTC(),
			})
		if closed.Error != nil {
			return fmt.Errorf("close incidents: %w", closed.Error)
		}

		reopened := tx.Model(&Incident{}).
			Where("status = ?", string(models.IncidentClosed)).
			Where(hasActiveMember, terminal).
			Updates(map[string]any{
				"status":    string(models.IncidentOpen),
				"closed_at": nil,
			})
		if reopened.Error != nil {
			return fmt.Errorf("reopen incidents: %w", reopened.Error)
		}

		res = models.SyncResult{Closed: closed.RowsAffected, Reopened: reopened.RowsAffected}
		return nil
	})
	if err != nil {
		return models.SyncResult{}, err
	}
	return res, nil
}
