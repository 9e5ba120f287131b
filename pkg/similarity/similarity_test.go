package similarity

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Meta-project2/RAG-Complaint-2nd/pkg/models"
)

func ptr[T any](v T) *T { return &v }

func TestEngine_EmbeddingSimilarity(t *testing.T) {
	tests := []struct {
		name     string
		a, b     []float32
		expected float64
	}{
		{name: "identical", a: []float32{1, 2, 3}, b: []float32{1, 2, 3}, expected: 1},
		{name: "orthogonal", a: []float32{1, 0}, b: []float32{0, 1}, expected: 0},
		{name: "opposite", a: []float32{1, 0}, b: []float32{-1, 0}, expected: -1},
		{name: "dimension mismatch", a: []float32{1, 0}, b: []float32{1, 0, 0}, expected: 0},
		{name: "zero vector", a: []float32{0, 0}, b: []float32{1, 0}, expected: 0},
		{name: "empty", a: nil, b: nil, expected: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			engine := NewEngine(DefaultWeights())
			a := &models.Fingerprint{ComplaintID: 1, Embedding: tt.a}
			b := &models.Fingerprint{ComplaintID: 2, Embedding: tt.b}
			assert.InDelta(t, tt.expected, engine.Score(a, b).Embedding, 1e-6)
		})
	}
}

func TestJaccardSimilarity(t *testing.T) {
	tests := []struct {
		set1     map[string]bool
		set2     map[string]bool
		name     string
		expected float64
	}{
		{
			name:     "identical sets",
			set1:     map[string]bool{"a": true, "b": true, "c": true},
			set2:     map[string]bool{"a": true, "b": true, "c": true},
			expected: 1.0,
		},
		{
			name:     "no overlap",
			set1:     map[string]bool{"a": true, "b": true},
			set2:     map[string]bool{"c": true, "d": true},
			expected: 0.0,
		},
		{
			name:     "partial overlap",
			set1:     map[string]bool{"a": true, "b": true, "c": true},
			set2:     map[string]bool{"b": true, "c": true, "d": true},
			expected: 0.5,
		},
		{
			name:     "both empty carry no evidence",
			set1:     map[string]bool{},
			set2:     map[string]bool{},
			expected: 0.0,
		},
		{
			name:     "one empty",
			set1:     map[string]bool{"a": true},
			set2:     map[string]bool{},
			expected: 0.0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.expected, JaccardSimilarity(tt.set1, tt.set2), 1e-9)
		})
	}
}

func TestKeywordSet(t *testing.T) {
	set := KeywordSet([]string{" 소음 ", "소음", "", "Noise", "noise"})
	assert.Equal(t, map[string]bool{"소음": true, "noise": true}, set)
	assert.Equal(t, 1, SharedKeywords(set, KeywordSet([]string{"NOISE", "공사"})))
}

// cos(a, b) = 0.9 for these two vectors.
var (
	vecA = []float32{1, 0}
	vecB = []float32{0.9, float32(math.Sqrt(1 - 0.81))}
)

func TestEngine_Score(t *testing.T) {
	e := NewEngine(DefaultWeights())

	a := &models.Fingerprint{ComplaintID: 1, Embedding: vecA, Keywords: []string{"a", "b", "c"}}
	b := &models.Fingerprint{ComplaintID: 2, Embedding: vecB, Keywords: []string{"a", "b", "d"}}

	s := e.Score(a, b)
	assert.InDelta(t, 0.9, s.Embedding, 1e-6)
	assert.InDelta(t, 0.5, s.Keyword, 1e-9)
	assert.InDelta(t, 0.74, s.Combined, 1e-6)
	assert.InDelta(t, 0.26, s.Distance(), 1e-6)
}

func TestEngine_Score_SelfWithoutKeywords(t *testing.T) {
	e := NewEngine(DefaultWeights())
	a := &models.Fingerprint{ComplaintID: 7, Embedding: vecA}

	s := e.Score(a, a)
	assert.InDelta(t, 1.0, s.Keyword, 1e-9)
	assert.InDelta(t, 1.0, s.Combined, 1e-9)
	assert.InDelta(t, 0.0, s.Distance(), 1e-9)
}

func TestEngine_Score_MissingEmbedding(t *testing.T) {
	e := NewEngine(DefaultWeights())
	a := &models.Fingerprint{ComplaintID: 1, Keywords: []string{"x"}}
	b := &models.Fingerprint{ComplaintID: 2, Embedding: vecA, Keywords: []string{"x"}}

	s := e.Score(a, b)
	assert.Zero(t, s.Embedding)
	assert.InDelta(t, 0.4, s.Combined, 1e-9)
}

func TestEngine_Score_BonusIsCapped(t *testing.T) {
	e := NewEngine(Weights{Alpha: 0.6, DistrictBonus: 0.2, TargetBonus: 0.1})
	a := &models.Fingerprint{ComplaintID: 1, Embedding: vecA, Keywords: []string{"x"}, DistrictID: ptr(int64(1)), TargetObject: ptr("도로")}
	b := &models.Fingerprint{ComplaintID: 2, Embedding: vecA, Keywords: []string{"x"}, DistrictID: ptr(int64(1)), TargetObject: ptr("도로")}

	s := e.Score(a, b)
	assert.InDelta(t, 0.3, s.Bonus, 1e-9)
	assert.InDelta(t, 1.0, s.Combined, 1e-9)

	// unknown districts do not earn the bonus
	a.DistrictID, b.DistrictID = nil, nil
	assert.InDelta(t, 0.1, e.Score(a, b).Bonus, 1e-9)
}

func TestEngine_Score_DistanceFloor(t *testing.T) {
	e := NewEngine(Weights{Alpha: 1})
	a := &models.Fingerprint{ComplaintID: 1, Embedding: []float32{1, 0}}
	b := &models.Fingerprint{ComplaintID: 2, Embedding: []float32{-1, 0}}

	s := e.Score(a, b)
	assert.InDelta(t, -1.0, s.Embedding, 1e-9)
	assert.Zero(t, s.Combined)
	assert.InDelta(t, 1.0, s.Distance(), 1e-9)
}

func TestEngine_DistanceMatrix_MatchesPairwise(t *testing.T) {
	e := NewEngine(Weights{Alpha: 0.6, DistrictBonus: 0.05})
	fps := []*models.Fingerprint{
		{ComplaintID: 1, Embedding: []float32{1, 0, 0}, Keywords: []string{"소음", "공사"}, DistrictID: ptr(int64(1))},
		{ComplaintID: 2, Embedding: []float32{0.8, 0.6, 0}, Keywords: []string{"소음"}, DistrictID: ptr(int64(1))},
		{ComplaintID: 3, Embedding: []float32{0, 0, 2}, Keywords: []string{"가로등"}},
		{ComplaintID: 4, Keywords: []string{"가로등"}},
	}
	items := NewItems(fps)

	dist := e.DistanceMatrix(items)
	require.NotNil(t, dist)
	require.Equal(t, 4, dist.SymmetricDim())

	for i := range fps {
		assert.Zero(t, dist.At(i, i))
		for j := range fps {
			if i == j {
				continue
			}
			assert.InDelta(t, e.Compare(items[i], items[j]).Distance(), dist.At(i, j), 1e-6, "pair %d,%d", i, j)
		}
	}
	assert.Nil(t, e.DistanceMatrix(nil))
}

func TestEngine_DistanceMatrix_NoEmbeddings(t *testing.T) {
	e := NewEngine(DefaultWeights())
	items := NewItems([]*models.Fingerprint{
		{ComplaintID: 1, Keywords: []string{"a"}},
		{ComplaintID: 2, Keywords: []string{"a"}},
	})

	dist := e.DistanceMatrix(items)
	assert.InDelta(t, 0.6, dist.At(0, 1), 1e-9)
}
