// Package similarity provides the hybrid complaint similarity measure and the
// density clustering primitives built on it.
//
// The combined score of two fingerprints is
//
//	min(1, α·cosine(embeddings) + (1−α)·jaccard(keywords) + bonus)
//
// where bonus is the sum of the configured categorical bonuses that apply
// (same district, same target object). Distance is 1 − score, floored at 0.
package similarity

import (
	"math"
	"strings"

	"github.com/Meta-project2/RAG-Complaint-2nd/pkg/models"
)

// DefaultAlpha is the default weight of the embedding component.
const DefaultAlpha = 0.6

// Weights configures the combined score.
type Weights struct {
	// Alpha weights cosine similarity; keywords get 1 - Alpha.
	Alpha float64 `json:"alpha" yaml:"alpha"`
	// DistrictBonus is added when both fingerprints share a district.
	DistrictBonus float64 `json:"district_bonus" yaml:"district_bonus"`
	// TargetBonus is added when both fingerprints share a target object.
	TargetBonus float64 `json:"target_bonus" yaml:"target_bonus"`
}

// DefaultWeights returns the default weights (α = 0.6, no bonuses).
func DefaultWeights() Weights {
	return Weights{Alpha: DefaultAlpha}
}

// WithAlpha returns a copy of w using alpha as embedding weight.
func (w Weights) WithAlpha(alpha float64) Weights {
	w.Alpha = alpha
	return w
}

// Score is the breakdown of one pairwise comparison.
type Score struct {
	Embedding float64 `json:"embedding"`
	Keyword   float64 `json:"keyword"`
	Bonus     float64 `json:"bonus"`
	Combined  float64 `json:"combined"`
}

// Distance converts the combined score into a distance in [0, 1].
func (s Score) Distance() float64 {
	return math.Max(0, 1-s.Combined)
}

// Item is a fingerprint prepared for repeated comparisons: its keyword set
// and embedding norm are computed once.
type Item struct {
	Fingerprint *models.Fingerprint
	terms       map[string]bool
	norm        float64
}

// NewItem prepares a fingerprint for scoring.
func NewItem(fp *models.Fingerprint) *Item {
	return &Item{
		Fingerprint: fp,
		terms:       KeywordSet(fp.Keywords),
		norm:        norm(fp.Embedding),
	}
}

// NewItems prepares a slice of fingerprints.
func NewItems(fps []*models.Fingerprint) []*Item {
	items := make([]*Item, len(fps))
	for i, fp := range fps {
		items[i] = NewItem(fp)
	}
	return items
}

// Terms returns the normalized keyword set of the item.
func (it *Item) Terms() map[string]bool {
	return it.terms
}

// Engine computes combined similarity scores.
type Engine struct {
	weights Weights
}

// NewEngine creates an engine with the given weights.
func NewEngine(w Weights) *Engine {
	return &Engine{weights: w}
}

// Weights returns the engine configuration.
func (e *Engine) Weights() Weights {
	return e.weights
}

// Score compares two fingerprints.
func (e *Engine) Score(a, b *models.Fingerprint) Score {
	return e.Compare(NewItem(a), NewItem(b))
}

// Compare scores two prepared items. Comparing a complaint with itself yields
// full keyword similarity even when it has no keywords.
func (e *Engine) Compare(a, b *Item) Score {
	var s Score
	if a.norm > 0 && b.norm > 0 && len(a.Fingerprint.Embedding) == len(b.Fingerprint.Embedding) {
		s.Embedding = dot(a.Fingerprint.Embedding, b.Fingerprint.Embedding) / (a.norm * b.norm)
	}
	if a.Fingerprint.ComplaintID == b.Fingerprint.ComplaintID {
		s.Keyword = 1.0
	} else {
		s.Keyword = JaccardSimilarity(a.terms, b.terms)
	}
	s.Bonus = e.bonus(a.Fingerprint, b.Fingerprint)
	s.Combined = e.combine(s.Embedding, s.Keyword, s.Bonus)
	return s
}

func (e *Engine) bonus(a, b *models.Fingerprint) float64 {
	var bonus float64
	if e.weights.DistrictBonus != 0 && a.DistrictID != nil && a.SameDistrict(b) {
		bonus += e.weights.DistrictBonus
	}
	if e.weights.TargetBonus != 0 && a.TargetObject != nil && a.SameTarget(b) {
		bonus += e.weights.TargetBonus
	}
	return bonus
}

func (e *Engine) combine(embedding, keyword, bonus float64) float64 {
	v := e.weights.Alpha*embedding + (1-e.weights.Alpha)*keyword + bonus
	return math.Min(1, math.Max(0, v))
}

// JaccardSimilarity returns |A∩B| / |A∪B|. Two empty sets carry no evidence
// of similarity and score 0.
func JaccardSimilarity(set1, set2 map[string]bool) float64 {
	if len(set1) == 0 || len(set2) == 0 {
		return 0.0
	}

	intersection := 0
	for term := range set1 {
		if set2[term] {
			intersection++
		}
	}

	union := len(set1) + len(set2) - intersection
	return float64(intersection) / float64(union)
}

// KeywordSet normalizes keywords into a set: trimmed, lower-cased, empty
// entries and duplicates dropped.
func KeywordSet(keywords []string) map[string]bool {
	set := make(map[string]bool, len(keywords))
	for _, k := range keywords {
		k = strings.ToLower(strings.TrimSpace(k))
		if k != "" {
			set[k] = true
		}
	}
	return set
}

// SharedKeywords counts the keywords two sets have in common.
func SharedKeywords(set1, set2 map[string]bool) int {
	n := 0
	for term := range set1 {
		if set2[term] {
			n++
		}
	}
	return n
}

func dot(a, b []float32) float64 {
	var sum float64
	for i := range a {
		sum += float64(a[i]) * float64(b[i])
	}
	return sum
}

func norm(v []float32) float64 {
	return math.Sqrt(dot(v, v))
}
