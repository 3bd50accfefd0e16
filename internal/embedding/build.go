package embedding

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/kamusis/lscope/internal/artifact"
	"github.com/kamusis/lscope/internal/embeddings"
	"github.com/kamusis/lscope/internal/logging"
	"github.com/kamusis/lscope/internal/table"
)

// BuildOptions controls an embedding run.
type BuildOptions struct {
	Dataset    string
	TextColumn string
	Normalize  bool
	BatchSize  int
}

// Builder embeds the text column of a dataset's input table and stores the
// result as the next embedding artifact.
type Builder struct {
	Tables   *table.Cache
	Namer    *artifact.Namer
	Provider embeddings.Provider
	Log      *zap.Logger
}

// Embed embeds texts in batches and returns the row-major matrix and its dimension.
func Embed(ctx context.Context, prov embeddings.Provider, texts []string, batchSize int, normalize bool) ([]float32, int, error) {
	if batchSize <= 0 {
		batchSize = 64
	}
	var (
		vectors []float32
		dim     int
	)
	for lo := 0; lo < len(texts); lo += batchSize {
		hi := min(lo+batchSize, len(texts))
		embs, err := prov.Embed(ctx, texts[lo:hi])
		if err != nil {
			return nil, 0, fmt.Errorf("rows %d-%d: %w", lo, hi-1, err)
		}
		if len(embs) != hi-lo {
			return nil, 0, fmt.Errorf("rows %d-%d: provider returned %d vectors", lo, hi-1, len(embs))
		}
		for i, emb := range embs {
			if dim == 0 {
				dim = len(emb)
			}
			if len(emb) != dim {
				return nil, 0, fmt.Errorf("%w: row %d has dim %d want %d", ErrVectorLengthMismatch, lo+i, len(emb), dim)
			}
			if normalize {
				emb = NormalizeL2(emb)
			}
			vectors = append(vectors, emb...)
		}
	}
	return vectors, dim, nil
}

// Build runs the embedding and persists it, returning the written manifest.
func (b *Builder) Build(ctx context.Context, opts BuildOptions) (*Manifest, error) {
	log := logging.OrNop(b.Log)
	if opts.TextColumn == "" {
		return nil, fmt.Errorf("text column is required")
	}
	tbl, err := b.Tables.Get(ctx, opts.Dataset)
	if err != nil {
		return nil, err
	}
	texts, err := tbl.Strings(opts.TextColumn)
	if err != nil {
		return nil, err
	}
	if len(texts) == 0 {
		return nil, fmt.Errorf("dataset %s has no rows", opts.Dataset)
	}

	vectors, dim, err := Embed(ctx, b.Provider, texts, opts.BatchSize, opts.Normalize)
	if err != nil {
		return nil, err
	}

	var m Manifest
	_, err = b.Namer.Reserve(ctx, opts.Dataset, artifact.Embeddings, func(id string) error {
		dir, err := b.Namer.Dir(opts.Dataset, artifact.Embeddings)
		if err != nil {
			return err
		}
		m = Manifest{
			ID:         id,
			DatasetID:  opts.Dataset,
			ModelID:    b.Provider.ModelID(),
			TextColumn: opts.TextColumn,
			Dim:        dim,
			Rows:       len(texts),
			Normalize:  opts.Normalize,
		}
		return Write(dir, m, vectors)
	})
	if err != nil {
		return nil, err
	}
	log.Info("Wrote embeddings",
		zap.String("dataset", opts.Dataset),
		zap.String("embedding", m.ID),
		zap.Int("rows", m.Rows),
		zap.Int("dim", m.Dim))
	return &m, nil
}
