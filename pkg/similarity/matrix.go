package similarity

import (
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// DistanceMatrix returns the symmetric matrix of combined distances between
// all items. The cosine part is computed as the Gram matrix of the
// unit-normalized embeddings; items without a usable embedding contribute a
// zero row. The diagonal is 0. Returns nil for an empty input.
func (e *Engine) DistanceMatrix(items []*Item) *mat.SymDense {
	n := len(items)
	if n == 0 {
		return nil
	}

	gram := cosineGram(items)
	dist := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			var cos float64
			if gram != nil {
				cos = gram.At(i, j)
			}
			kw := JaccardSimilarity(items[i].terms, items[j].terms)
			if items[i].Fingerprint.ComplaintID == items[j].Fingerprint.ComplaintID {
				kw = 1.0
			}
			score := Score{
				Embedding: cos,
				Keyword:   kw,
				Bonus:     e.bonus(items[i].Fingerprint, items[j].Fingerprint),
			}
			score.Combined = e.combine(score.Embedding, score.Keyword, score.Bonus)
			dist.SetSym(i, j, score.Distance())
		}
	}
	return dist
}

// cosineGram builds E·Eᵀ for the unit-normalized embedding rows. Returns nil
// when no item has an embedding.
func cosineGram(items []*Item) *mat.Dense {
	dims := 0
	for _, it := range items {
		if it.norm > 0 {
			dims = len(it.Fingerprint.Embedding)
			break
		}
	}
	if dims == 0 {
		return nil
	}

	e := mat.NewDense(len(items), dims, nil)
	row := make([]float64, dims)
	for i, it := range items {
		if it.norm == 0 || len(it.Fingerprint.Embedding) != dims {
			continue
		}
		for k, v := range it.Fingerprint.Embedding {
			row[k] = float64(v)
		}
		floats.Scale(1/floats.Norm(row, 2), row)
		e.SetRow(i, row)
	}

	var gram mat.Dense
	gram.Mul(e, e.T())
	return &gram
}

// TextDistanceMatrix returns 1 − SequenceRatio for every pair of texts.
func TextDistanceMatrix(texts []string) *mat.SymDense {
	n := len(texts)
	if n == 0 {
		return nil
	}
	dist := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			dist.SetSym(i, j, 1-SequenceRatio(texts[i], texts[j]))
		}
	}
	return dist
}
