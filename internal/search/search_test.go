package search

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kamusis/lscope/internal/embedding"
)

func TestKeyword_AndSemantics(t *testing.T) {
	texts := []string{"Red apple", "green apple pie", "apple", "pear"}
	got := Keyword(texts, "APPLE  green", 0)
	assert.Equal(t, []Result{{Index: 1, Score: 1, Why: "keyword"}}, got)

	got = Keyword(texts, "apple", 2)
	require.Len(t, got, 2)
	assert.Equal(t, 0, got[0].Index)
	assert.Equal(t, 1, got[1].Index)

	assert.Empty(t, Keyword(texts, "  ", 0))
}

func TestNearest(t *testing.T) {
	m := &embedding.Matrix{
		Manifest: embedding.Manifest{ID: "embedding-001", Dim: 2, Rows: 3},
		Data:     []float32{1, 0, 0, 1, 1, 1},
	}
	got, err := Nearest(m, []float32{1, 0}, 2, -1)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, 0, got[0].Index)
	assert.InDelta(t, 1.0, got[0].Score, 1e-9)
	assert.Equal(t, 2, got[1].Index)

	got, err = Nearest(m, []float32{1, 0}, 0, 0.5)
	require.NoError(t, err)
	assert.Len(t, got, 2)

	_, err = Nearest(m, []float32{1, 0, 0}, 1, 0)
	assert.ErrorIs(t, err, embedding.ErrVectorLengthMismatch)
}

func TestSortResults_TiesByIndex(t *testing.T) {
	r := []Result{{Index: 3, Score: 0.5}, {Index: 1, Score: 0.5}, {Index: 2, Score: 0.9}}
	SortResults(r)
	assert.Equal(t, []int{2, 1, 3}, []int{r[0].Index, r[1].Index, r[2].Index})
}
