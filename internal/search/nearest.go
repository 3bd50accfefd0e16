package search

import (
	"fmt"
	"math"

	"github.com/kamusis/lscope/internal/embedding"
)

// Cosine computes cosine similarity between two vectors of equal length.
func Cosine(a, b []float32) (float64, error) {
	if len(a) != len(b) {
		return 0, embedding.ErrVectorLengthMismatch
	}
	var dot, na, nb float64
	for i := range a {
		x := float64(a[i])
		y := float64(b[i])
		dot += x * y
		na += x * x
		nb += y * y
	}
	den := math.Sqrt(na) * math.Sqrt(nb)
	if den == 0 {
		return 0, nil
	}
	return dot / den, nil
}

// Nearest returns the k rows of m most similar to q, best first. Rows scoring
// below minScore are dropped. k <= 0 returns every row.
func Nearest(m *embedding.Matrix, q []float32, k int, minScore float64) ([]Result, error) {
	if len(q) != m.Manifest.Dim {
		return nil, fmt.Errorf("%w: query dim %d, embedding %s dim %d",
			embedding.ErrVectorLengthMismatch, len(q), m.Manifest.ID, m.Manifest.Dim)
	}
	out := make([]Result, 0, m.Manifest.Rows)
	for i := 0; i < m.Manifest.Rows; i++ {
		s, err := Cosine(q, m.Row(i))
		if err != nil {
			return nil, err
		}
		if s < minScore {
			continue
		}
		out = append(out, Result{Index: i, Score: s, Why: "semantic"})
	}
	SortResults(out)
	if k > 0 && len(out) > k {
		out = out[:k]
	}
	return out, nil
}
