package embedding

import (
	"context"
	"errors"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kamusis/lscope/internal/artifact"
	"github.com/kamusis/lscope/internal/dataset"
	"github.com/kamusis/lscope/internal/table"
	fixtures "github.com/kamusis/lscope/internal/testutil"
)

func TestWriteLoad_RoundTrip(t *testing.T) {
	dir := t.TempDir()
	m := Manifest{ID: "embedding-001", DatasetID: "d1", ModelID: "test", Dim: 2, Rows: 2}
	require.NoError(t, Write(dir, m, []float32{1, 0, 0.5, -1}))

	got, err := Load(dir, "embedding-001")
	require.NoError(t, err)
	assert.Equal(t, 2, got.Manifest.Dim)
	assert.Equal(t, "embedding-001.f32", got.Manifest.VectorFile)
	assert.NotEmpty(t, got.Manifest.CreatedAt)
	assert.Equal(t, []float32{0.5, -1}, got.Row(1))
}

func TestWrite_RejectsMismatch(t *testing.T) {
	err := Write(t.TempDir(), Manifest{ID: "e", Dim: 3, Rows: 2}, []float32{1, 2})
	assert.ErrorIs(t, err, ErrVectorLengthMismatch)
}

func TestLoad_SizeMismatch(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, Write(dir, Manifest{ID: "e", Dim: 2, Rows: 1}, []float32{1, 2}))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "e.f32"), []byte{0, 0, 0}, 0o644))

	_, err := Load(dir, "e")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "size mismatch")
}

func TestNormalizeL2(t *testing.T) {
	v := NormalizeL2([]float32{3, 4})
	assert.InDelta(t, 0.6, v[0], 1e-6)
	assert.InDelta(t, 0.8, v[1], 1e-6)
	assert.Equal(t, []float32{0, 0}, NormalizeL2([]float32{0, 0}))
}

type fakeProvider struct {
	calls int
	fail  bool
}

func (f *fakeProvider) ModelID() string { return "fake:len" }

func (f *fakeProvider) Embed(_ context.Context, texts []string) ([][]float32, error) {
	f.calls++
	if f.fail {
		return nil, errors.New("provider down")
	}
	out := make([][]float32, len(texts))
	for i, s := range texts {
		out[i] = []float32{float32(len(s)), float32(strings.Count(s, "1"))}
	}
	return out, nil
}

func TestBuilder_Build(t *testing.T) {
	root := t.TempDir()
	fixtures.NewDataset(t, root, "d1", 3)
	layout := dataset.NewLayout(root)
	prov := &fakeProvider{}
	b := &Builder{
		Tables:   table.NewCache(layout, nil, nil),
		Namer:    artifact.NewNamer(layout, nil),
		Provider: prov,
	}

	m, err := b.Build(context.Background(), BuildOptions{Dataset: "d1", TextColumn: "text", BatchSize: 2})
	require.NoError(t, err)
	assert.Equal(t, "embedding-001", m.ID)
	assert.Equal(t, 2, prov.calls)

	got, err := Load(filepath.Join(root, "d1", "embeddings"), m.ID)
	require.NoError(t, err)
	assert.Equal(t, []float32{5, 0, 5, 1, 5, 0}, got.Data)
	assert.Equal(t, "fake:len", got.Manifest.ModelID)

	m2, err := b.Build(context.Background(), BuildOptions{Dataset: "d1", TextColumn: "text", Normalize: true})
	require.NoError(t, err)
	assert.Equal(t, "embedding-002", m2.ID)
	got, err = Load(filepath.Join(root, "d1", "embeddings"), m2.ID)
	require.NoError(t, err)
	n := got.Row(1)
	assert.InDelta(t, 1.0, math.Hypot(float64(n[0]), float64(n[1])), 1e-6)
}

func TestBuilder_ProviderFailureWritesNothing(t *testing.T) {
	root := t.TempDir()
	fixtures.NewDataset(t, root, "d1", 3)
	layout := dataset.NewLayout(root)
	b := &Builder{
		Tables:   table.NewCache(layout, nil, nil),
		Namer:    artifact.NewNamer(layout, nil),
		Provider: &fakeProvider{fail: true},
	}

	_, err := b.Build(context.Background(), BuildOptions{Dataset: "d1", TextColumn: "text"})
	require.Error(t, err)
	_, err = os.Stat(filepath.Join(root, "d1", "embeddings"))
	assert.True(t, os.IsNotExist(err))
}
