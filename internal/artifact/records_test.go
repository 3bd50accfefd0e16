package artifact

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestListRecords_SortedAndSkipsInvalid(t *testing.T) {
	n, root := newTestNamer(t)
	dir := filepath.Join(root, "d1", "clusters")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	files := map[string]string{
		"cluster-002.json":    `{"id": "cluster-002"}`,
		"cluster-001.json":    `{"id": "cluster-001"}`,
		"cluster-003.json":    `{not json`,
		"cluster-001.parquet": "PAR1",
	}
	for name, body := range files {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644))
	}

	recs, err := n.ListRecords("d1", Clusters)
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, "cluster-001", recs[0]["id"])
	assert.Equal(t, "cluster-002", recs[1]["id"])
}

func TestSaveScope_AllocatesName(t *testing.T) {
	n, _ := newTestNamer(t)
	ctx := context.Background()

	s1, err := n.SaveScope(ctx, "d1", Scope{Embeddings: "embedding-001", UMAP: "umap-001", Label: "first"})
	require.NoError(t, err)
	assert.Equal(t, "scopes-001", s1.Name)

	s2, err := n.SaveScope(ctx, "d1", Scope{Label: "second"})
	require.NoError(t, err)
	assert.Equal(t, "scopes-002", s2.Name)

	named, err := n.SaveScope(ctx, "d1", Scope{Name: "favorite", Label: "named"})
	require.NoError(t, err)
	assert.Equal(t, "favorite", named.Name)

	recs, err := n.ListRecords("d1", Scopes)
	require.NoError(t, err)
	require.Len(t, recs, 3)
	assert.Equal(t, "favorite", recs[0]["name"])
	assert.Equal(t, "first", recs[1]["label"])
	assert.Equal(t, "umap-001", recs[1]["umap"])

	_, err = n.SaveScope(ctx, "d1", Scope{Name: "../escape"})
	assert.Error(t, err)
}
