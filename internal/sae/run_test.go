package sae

import (
	"context"
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kamusis/lscope/internal/artifact"
	"github.com/kamusis/lscope/internal/dataset"
	"github.com/kamusis/lscope/internal/embedding"
	fixtures "github.com/kamusis/lscope/internal/testutil"
)

// fakeEncoder selects feature i%numLatents and (i+1)%numLatents for a row
// whose first component is i.
type fakeEncoder struct {
	numLatents int
	calls      int
	fail       bool
}

func (f *fakeEncoder) Encode(_ context.Context, req EncodeRequest) (*EncodeResult, error) {
	f.calls++
	if f.fail {
		return nil, errors.New("model unavailable")
	}
	acts := Activations{Rows: req.Rows(), K: 2}
	for r := 0; r < acts.Rows; r++ {
		i := int(req.Embeddings[r*req.Dim])
		acts.Indices = append(acts.Indices, int32(i%f.numLatents), int32((i+1)%f.numLatents))
		acts.Values = append(acts.Values, float32(i), 0.5)
	}
	return &EncodeResult{Activations: acts, NumLatents: f.numLatents}, nil
}

func newTestRunner(t *testing.T, enc Encoder) (*Runner, string) {
	t.Helper()
	root := t.TempDir()
	fixtures.NewDataset(t, root, "d1", 3)
	layout := dataset.NewLayout(root)
	embDir := filepath.Join(root, "d1", "embeddings")
	require.NoError(t, os.MkdirAll(embDir, 0o755))
	require.NoError(t, embedding.Write(embDir,
		embedding.Manifest{ID: "embedding-001", DatasetID: "d1", ModelID: "test", Dim: 2, Rows: 3},
		[]float32{0, 0, 1, 0, 2, 0}))
	return &Runner{
		Layout:    layout,
		Namer:     artifact.NewNamer(layout, nil),
		Encoder:   enc,
		Workers:   2,
		BatchSize: 2,
	}, root
}

func TestRunner_Run(t *testing.T) {
	enc := &fakeEncoder{numLatents: 5}
	r, root := newTestRunner(t, enc)
	before := testutil.ToFloat64(runsTotal.WithLabelValues("ok"))

	meta, err := r.Run(context.Background(), RunOptions{
		Dataset: "d1", EmbeddingID: "embedding-001", ModelID: "m", KExpansion: "64_32",
	})
	require.NoError(t, err)
	assert.Equal(t, "sae-001", meta.ID)
	assert.Equal(t, 2, enc.calls)
	assert.Equal(t, []float32{0, 1, 2, 0.5, -1}, meta.MaxActivations)
	assert.Equal(t, 1, meta.DeadFeatures)
	assert.Equal(t, 4, meta.AliveFeatures)
	assert.Equal(t, 3, meta.Rows)
	assert.Equal(t, before+1, testutil.ToFloat64(runsTotal.WithLabelValues("ok")))
	assert.Equal(t, float64(1), testutil.ToFloat64(deadFeatures))

	dir := filepath.Join(root, "d1", "saes")
	got, err := ReadMetadata(dir, "sae-001")
	require.NoError(t, err)
	assert.Equal(t, meta.MaxActivations, got.MaxActivations)
	assert.Equal(t, "embedding-001", got.EmbeddingID)

	acts, err := ReadActivations(context.Background(), filepath.Join(dir, "sae-001"+RawExt), nil)
	require.NoError(t, err)
	assert.Equal(t, []int32{0, 1, 1, 2, 2, 3}, acts.Indices)

	meta, err = r.Run(context.Background(), RunOptions{Dataset: "d1", EmbeddingID: "embedding-001", ModelID: "m"})
	require.NoError(t, err)
	assert.Equal(t, "sae-002", meta.ID)
}

func TestRunner_EncoderFailureWritesNothing(t *testing.T) {
	r, root := newTestRunner(t, &fakeEncoder{numLatents: 5, fail: true})

	_, err := r.Run(context.Background(), RunOptions{Dataset: "d1", EmbeddingID: "embedding-001", ModelID: "m"})
	assert.ErrorIs(t, err, ErrEncoderFailure)
	_, err = os.Stat(filepath.Join(root, "d1", "saes"))
	assert.True(t, os.IsNotExist(err))
}

func TestRunner_IndexOutOfRangeWritesNothing(t *testing.T) {
	r, root := newTestRunner(t, &fakeEncoder{numLatents: 5})
	r.Encoder = encoderFunc(func(_ context.Context, req EncodeRequest) (*EncodeResult, error) {
		n := req.Rows()
		acts := Activations{Rows: n, K: 1}
		for i := 0; i < n; i++ {
			acts.Indices = append(acts.Indices, 9)
			acts.Values = append(acts.Values, 1)
		}
		return &EncodeResult{Activations: acts, NumLatents: 4}, nil
	})

	_, err := r.Run(context.Background(), RunOptions{Dataset: "d1", EmbeddingID: "embedding-001", ModelID: "m"})
	assert.ErrorIs(t, err, ErrFeatureIndexOutOfRange)
	_, err = os.Stat(filepath.Join(root, "d1", "saes"))
	assert.True(t, os.IsNotExist(err))
}

func TestRunner_InfiniteMagnitudeWritesNothing(t *testing.T) {
	r, root := newTestRunner(t, nil)
	r.Encoder = encoderFunc(func(_ context.Context, req EncodeRequest) (*EncodeResult, error) {
		n := req.Rows()
		acts := Activations{Rows: n, K: 1}
		for i := 0; i < n; i++ {
			acts.Indices = append(acts.Indices, 0)
			acts.Values = append(acts.Values, float32(math.Inf(1)))
		}
		return &EncodeResult{Activations: acts, NumLatents: 2}, nil
	})

	_, err := r.Run(context.Background(), RunOptions{Dataset: "d1", EmbeddingID: "embedding-001", ModelID: "m"})
	assert.ErrorIs(t, err, ErrShape)
	_, err = os.Stat(filepath.Join(root, "d1", "saes"))
	assert.True(t, os.IsNotExist(err))
}

func TestRunner_UnknownDataset(t *testing.T) {
	r, _ := newTestRunner(t, &fakeEncoder{numLatents: 5})
	_, err := r.Run(context.Background(), RunOptions{Dataset: "nope", EmbeddingID: "embedding-001", ModelID: "m"})
	assert.ErrorIs(t, err, dataset.ErrDatasetNotFound)
}

type encoderFunc func(context.Context, EncodeRequest) (*EncodeResult, error)

func (f encoderFunc) Encode(ctx context.Context, req EncodeRequest) (*EncodeResult, error) {
	return f(ctx, req)
}

func TestWriteRun_RoundTrip(t *testing.T) {
	dir := t.TempDir()
	acts := randomActivations(10, 3, 20, 11)
	require.NoError(t, WriteRun(dir, Metadata{ID: "sae-001", NumFeatures: 20}, acts, nil))

	got, err := ReadActivations(context.Background(), filepath.Join(dir, "sae-001.parquet"), nil)
	require.NoError(t, err)
	assert.Equal(t, acts, got)

	meta, err := ReadMetadata(dir, "sae-001")
	require.NoError(t, err)
	assert.NotEmpty(t, meta.CreatedAt)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 2)
}
