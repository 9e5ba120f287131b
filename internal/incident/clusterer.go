package incident

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog"
	"gonum.org/v1/gonum/mat"

	"github.com/Meta-project2/RAG-Complaint-2nd/pkg/models"
	"github.com/Meta-project2/RAG-Complaint-2nd/pkg/similarity"
)

// NoisePolicy decides what happens to complaints that end up in no cluster.
type NoisePolicy string

const (
	// NoiseSingleton gives each noise complaint its own one-member incident.
	NoiseSingleton NoisePolicy = "singleton"
	// NoiseDiscard leaves noise complaints unassigned; they are evaluated
	// again on the next pass.
	NoiseDiscard NoisePolicy = "discard"
)

// Valid reports whether p is a known policy.
func (p NoisePolicy) Valid() bool {
	return p == NoiseSingleton || p == NoiseDiscard
}

// SplitConfig re-clusters oversized clusters with a tighter radius.
type SplitConfig struct {
	Enabled bool    `json:"enabled" yaml:"enabled"`
	MinSize int     `json:"min_size" yaml:"min_size"`
	Eps     float64 `json:"eps" yaml:"eps"`
	Alpha   float64 `json:"alpha" yaml:"alpha"`
}

// TextConfig re-clusters each cluster on summary text similarity.
type TextConfig struct {
	Enabled bool    `json:"enabled" yaml:"enabled"`
	Eps     float64 `json:"eps" yaml:"eps"`
}

// ClustererConfig configures hierarchical clustering.
type ClustererConfig struct {
	NoisePolicy  NoisePolicy `json:"noise_policy" yaml:"noise_policy"`
	Draft        DraftConfig `json:"draft" yaml:"draft"`
	Split        SplitConfig `json:"split" yaml:"split"`
	Text         TextConfig  `json:"text" yaml:"text"`
	Eps          float64     `json:"eps" yaml:"eps"`
	Alpha        float64     `json:"alpha" yaml:"alpha"`
	MinSamples   int         `json:"min_samples" yaml:"min_samples"`
	RematchNoise bool        `json:"rematch_noise" yaml:"rematch_noise"`
}

// DefaultClustererConfig returns the default clustering configuration.
func DefaultClustererConfig() ClustererConfig {
	return ClustererConfig{
		Eps:        0.20,
		Alpha:      similarity.DefaultAlpha,
		MinSamples: 2,
		Split: SplitConfig{
			Enabled: true,
			MinSize: 30,
			Eps:     0.17,
			Alpha:   0.5,
		},
		Text: TextConfig{
			Eps: 0.25,
		},
		NoisePolicy:  NoiseSingleton,
		RematchNoise: true,
		Draft:        DefaultDraftConfig(),
	}
}

// ClusterReport summarizes one clustering run.
type ClusterReport struct {
	IncidentIDs  []int64
	// Failed holds the ids of complaints left unassigned by a failed write.
	Failed       []int64
	Partitions   int
	Clusters     int
	Singletons   int
	Rematched    int
	Discarded    int
	// Skipped counts noise complaints linked by another writer meanwhile.
	Skipped      int
	Failures     int
	Silhouette   float64
	SilhouetteOK bool
}

// Clusterer groups unmatched complaints into new incidents. Complaints are
// partitioned by their hard categorical keys first, so no incident ever spans
// two partitions.
type Clusterer struct {
	store   Store
	matcher *Matcher
	weights similarity.Weights
	config  ClustererConfig
	logger  zerolog.Logger
}

// NewClusterer creates a clusterer. weights supplies the categorical bonuses;
// the alphas of each level come from config. matcher is used to rematch noise
// and may be nil when rematching is disabled.
func NewClusterer(store Store, matcher *Matcher, weights similarity.Weights, config ClustererConfig, logger zerolog.Logger) *Clusterer {
	return &Clusterer{
		store:   store,
		matcher: matcher,
		weights: weights,
		config:  config,
		logger:  logger.With().Str("component", "clusterer").Logger(),
	}
}

type partition struct {
	key     models.PartitionKey
	members []*models.Fingerprint
}

// Cluster builds incidents from the given complaints. New incidents and their
// members are added to idx.
func (c *Clusterer) Cluster(ctx context.Context, fps []*models.Fingerprint, idx *CandidateIndex, now time.Time) ClusterReport {
	var report ClusterReport
	var silSum float64
	var silWeight int

	for _, p := range c.partition(fps) {
		if ctx.Err() != nil {
			c.logger.Warn().Err(ctx.Err()).Msg("Clustering interrupted")
			break
		}
		report.Partitions++

		groups, noise, sil, silN := c.clusterPartition(p.members)
		if silN > 0 {
			silSum += sil * float64(silN)
			silWeight += silN
		}

		if len(groups) > 0 {
			ids, err := c.create(ctx, groups, idx, now)
			if err != nil {
				c.logger.Error().Err(err).
					Str("partition", p.key.String()).
					Int("clusters", len(groups)).
					Msg("Failed to persist clusters")
				for _, g := range groups {
					report.Failures += len(g)
					for _, fp := range g {
						report.Failed = append(report.Failed, fp.ComplaintID)
					}
				}
			} else {
				report.Clusters += len(ids)
				report.IncidentIDs = append(report.IncidentIDs, ids...)
			}
		}

		c.handleNoise(ctx, p.key, noise, idx, now, &report)
	}

	if silWeight > 0 {
		report.Silhouette = silSum / float64(silWeight)
		report.SilhouetteOK = true
	}
	return report
}

// partition groups complaints by key. Partitions are ordered by key and
// members by complaint id, so runs are reproducible.
func (c *Clusterer) partition(fps []*models.Fingerprint) []partition {
	byDistrict, byTarget := true, true
	if c.matcher != nil {
		f := c.matcher.Filter()
		byDistrict, byTarget = f.SameDistrict, f.SameTarget
	}

	groups := make(map[models.PartitionKey][]*models.Fingerprint)
	for _, fp := range sortByComplaintID(fps) {
		k := fp.Partition(byDistrict, byTarget)
		groups[k] = append(groups[k], fp)
	}

	out := make([]partition, 0, len(groups))
	for k, members := range groups {
		out = append(out, partition{key: k, members: members})
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].members[0].ComplaintID < out[j].members[0].ComplaintID
	})
	return out
}

// clusterPartition runs the clustering levels on one partition and returns
// the final groups, the noise complaints and the level-one silhouette score
// with the number of points it covers.
func (c *Clusterer) clusterPartition(members []*models.Fingerprint) ([][]*models.Fingerprint, []*models.Fingerprint, float64, int) {
	if len(members) < 2 {
		return nil, members, 0, 0
	}

	items := similarity.NewItems(members)
	engine := similarity.NewEngine(c.weights.WithAlpha(c.config.Alpha))
	dist := engine.DistanceMatrix(items)
	labels := similarity.DBSCAN(dist, c.config.Eps, c.config.MinSamples)

	var sil float64
	var silN int
	if s, ok := similarity.Silhouette(dist, labels); ok {
		sil = s
		for _, l := range labels {
			if l != similarity.Noise {
				silN++
			}
		}
	}

	clusters, noiseIdx := similarity.Groups(labels)
	noise := pick(members, noiseIdx)

	var final [][]*models.Fingerprint
	for _, cl := range clusters {
		group := pick(members, cl)
		for _, sub := range c.refine(group) {
			if len(sub) >= c.minSize() {
				final = append(final, sub)
			} else {
				noise = append(noise, sub...)
			}
		}
	}
	noise = sortByComplaintID(noise)
	return final, noise, sil, silN
}

// refine applies the split and text levels to one cluster. Members dropped by
// a level come back as one-element groups.
func (c *Clusterer) refine(group []*models.Fingerprint) [][]*models.Fingerprint {
	groups := [][]*models.Fingerprint{group}

	if c.config.Split.Enabled && len(group) >= c.config.Split.MinSize {
		engine := similarity.NewEngine(c.weights.WithAlpha(c.config.Split.Alpha))
		dist := engine.DistanceMatrix(similarity.NewItems(group))
		groups = c.regroup(group, dist, c.config.Split.Eps)
		c.logger.Debug().Int("members", len(group)).Int("groups", len(groups)).Msg("Split oversized cluster")
	}

	if c.config.Text.Enabled {
		var out [][]*models.Fingerprint
		for _, g := range groups {
			if len(g) < c.minSize() {
				out = append(out, g)
				continue
			}
			texts := make([]string, len(g))
			for i, fp := range g {
				texts[i] = fp.CoreSummary
			}
			out = append(out, c.regroup(g, similarity.TextDistanceMatrix(texts), c.config.Text.Eps)...)
		}
		groups = out
	}
	return groups
}

func (c *Clusterer) regroup(group []*models.Fingerprint, dist mat.Symmetric, eps float64) [][]*models.Fingerprint {
	clusters, noise := similarity.Groups(similarity.DBSCAN(dist, eps, c.config.MinSamples))
	out := make([][]*models.Fingerprint, 0, len(clusters)+len(noise))
	for _, cl := range clusters {
		out = append(out, pick(group, cl))
	}
	for _, i := range noise {
		out = append(out, []*models.Fingerprint{group[i]})
	}
	return out
}

func (c *Clusterer) minSize() int {
	if c.config.MinSamples < 2 {
		return 2
	}
	return c.config.MinSamples
}

// create persists groups as incidents in one transaction and registers the
// founders in idx.
func (c *Clusterer) create(ctx context.Context, groups [][]*models.Fingerprint, idx *CandidateIndex, now time.Time) ([]int64, error) {
	drafts := make([]*models.IncidentDraft, len(groups))
	for i, g := range groups {
		drafts[i] = BuildDraft(g, c.config.Draft)
	}

	ids, err := c.store.CreateIncidents(ctx, drafts, now)
	if err != nil {
		return nil, err
	}
	if len(ids) != len(groups) {
		return nil, fmt.Errorf("created %d incidents for %d groups", len(ids), len(groups))
	}

	for i, g := range groups {
		for _, fp := range g {
			idx.Add(ids[i], similarity.NewItem(fp))
		}
		c.logger.Info().
			Int64("incident_id", ids[i]).
			Int("members", len(g)).
			Str("title", drafts[i].Title).
			Msg("Incident created")
	}
	return ids, nil
}

// handleNoise walks the noise complaints in id order. Each one is first
// offered to the incidents known so far, including singletons created for
// earlier noise in this partition, and only then falls to the noise policy.
// Every singleton is persisted on its own so later complaints can merge into it.
func (c *Clusterer) handleNoise(ctx context.Context, key models.PartitionKey, noise []*models.Fingerprint, idx *CandidateIndex, now time.Time, report *ClusterReport) {
	for _, fp := range sortByComplaintID(noise) {
		if ctx.Err() != nil {
			return
		}

		if c.config.RematchNoise && c.matcher != nil {
			merged, err := c.matcher.Match(ctx, similarity.NewItem(fp), idx, now)
			switch {
			case errors.Is(err, ErrAlreadyLinked):
				report.Skipped++
				continue
			case err != nil:
				report.Failures++
				report.Failed = append(report.Failed, fp.ComplaintID)
				continue
			case merged:
				report.Rematched++
				continue
			}
		}

		if c.config.NoisePolicy == NoiseDiscard {
			report.Discarded++
			continue
		}

		ids, err := c.create(ctx, [][]*models.Fingerprint{{fp}}, idx, now)
		switch {
		case errors.Is(err, ErrAlreadyLinked):
			report.Skipped++
		case err != nil:
			c.logger.Error().Err(err).
				Str("partition", key.String()).
				Int64("complaint_id", fp.ComplaintID).
				Msg("Failed to persist singleton incident")
			report.Failures++
			report.Failed = append(report.Failed, fp.ComplaintID)
		default:
			report.Singletons += len(ids)
			report.IncidentIDs = append(report.IncidentIDs, ids...)
		}
	}
}

func pick(fps []*models.Fingerprint, idx []int) []*models.Fingerprint {
	out := make([]*models.Fingerprint, len(idx))
	for i, j := range idx {
		out[i] = fps[j]
	}
	return out
}
