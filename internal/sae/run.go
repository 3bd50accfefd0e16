package sae

import (
	"context"
	"errors"
	"fmt"

	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"

	"github.com/kamusis/lscope/internal/artifact"
	"github.com/kamusis/lscope/internal/dataset"
	"github.com/kamusis/lscope/internal/embedding"
	"github.com/kamusis/lscope/internal/logging"
)

var (
	runsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "lscope_sae_runs_total",
		Help: "Sparse feature runs by result.",
	}, []string{"result"})
	deadFeatures = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "lscope_sae_dead_features",
		Help: "Dead features of the last completed run.",
	})
	aliveFeatures = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "lscope_sae_alive_features",
		Help: "Alive features of the last completed run.",
	})
)

// RunOptions selects the inputs of a sparse feature run.
type RunOptions struct {
	Dataset     string
	EmbeddingID string
	ModelID     string
	KExpansion  string
}

// Runner encodes stored embeddings with a sparse autoencoder, reduces the
// per-feature statistics and persists the run as the next sae artifact.
type Runner struct {
	Layout    dataset.Layout
	Namer     *artifact.Namer
	Encoder   Encoder
	Log       *zap.Logger
	Workers   int
	BatchSize int
	Mem       memory.Allocator
}

// Run executes a run and returns its metadata. Nothing is written unless
// encoding and reduction succeed.
func (r *Runner) Run(ctx context.Context, opts RunOptions) (*Metadata, error) {
	meta, err := r.run(ctx, opts)
	if err != nil {
		runsTotal.WithLabelValues("error").Inc()
		return nil, err
	}
	runsTotal.WithLabelValues("ok").Inc()
	deadFeatures.Set(float64(meta.DeadFeatures))
	aliveFeatures.Set(float64(meta.AliveFeatures))
	return meta, nil
}

func (r *Runner) run(ctx context.Context, opts RunOptions) (*Metadata, error) {
	log := logging.OrNop(r.Log)
	if opts.EmbeddingID == "" {
		return nil, errors.New("embedding id is required")
	}
	if opts.ModelID == "" {
		return nil, errors.New("model id is required")
	}
	if _, err := r.Layout.Require(opts.Dataset); err != nil {
		return nil, err
	}
	embDir, err := r.Namer.Dir(opts.Dataset, artifact.Embeddings)
	if err != nil {
		return nil, err
	}
	mat, err := embedding.Load(embDir, opts.EmbeddingID)
	if err != nil {
		return nil, err
	}
	log.Info("Encoding embeddings",
		zap.String("dataset", opts.Dataset),
		zap.String("embedding", opts.EmbeddingID),
		zap.String("model", opts.ModelID),
		zap.Int("rows", mat.Manifest.Rows))

	acts, numLatents, err := r.encode(ctx, opts, mat)
	if err != nil {
		return nil, err
	}
	stats, err := ComputeParallel(ctx, acts, numLatents, r.Workers)
	if err != nil {
		return nil, err
	}

	var meta Metadata
	_, err = r.Namer.Reserve(ctx, opts.Dataset, artifact.SAEs, func(id string) error {
		dir, err := r.Namer.Dir(opts.Dataset, artifact.SAEs)
		if err != nil {
			return err
		}
		meta = Metadata{
			ID:             id,
			ModelID:        opts.ModelID,
			KExpansion:     opts.KExpansion,
			EmbeddingID:    opts.EmbeddingID,
			DatasetID:      opts.Dataset,
			MaxActivations: stats.MaxActivations,
			NumFeatures:    stats.NumFeatures,
			DeadFeatures:   stats.Dead,
			AliveFeatures:  stats.Alive,
			Rows:           acts.Rows,
			K:              acts.K,
		}
		return WriteRun(dir, meta, acts, r.Mem)
	})
	if err != nil {
		return nil, err
	}
	log.Info("Wrote sae run",
		zap.String("dataset", opts.Dataset),
		zap.String("sae", meta.ID),
		zap.Int("features", meta.NumFeatures),
		zap.Int("dead", meta.DeadFeatures),
		zap.Int("alive", meta.AliveFeatures))
	return &meta, nil
}

func (r *Runner) encode(ctx context.Context, opts RunOptions, mat *embedding.Matrix) (Activations, int, error) {
	batch := r.BatchSize
	if batch <= 0 {
		batch = 1024
	}
	dim := mat.Manifest.Dim
	var (
		acts       Activations
		numLatents = -1
	)
	for lo := 0; lo < mat.Manifest.Rows; lo += batch {
		hi := min(lo+batch, mat.Manifest.Rows)
		res, err := r.Encoder.Encode(ctx, EncodeRequest{
			ModelID:    opts.ModelID,
			KExpansion: opts.KExpansion,
			Dim:        dim,
			Embeddings: mat.Data[lo*dim : hi*dim],
		})
		if err != nil {
			if errors.Is(err, ErrEncoderFailure) {
				return Activations{}, 0, fmt.Errorf("rows %d-%d: %w", lo, hi-1, err)
			}
			return Activations{}, 0, fmt.Errorf("rows %d-%d: %w: %w", lo, hi-1, ErrEncoderFailure, err)
		}
		if res.Activations.Rows != hi-lo {
			return Activations{}, 0, fmt.Errorf("%w: rows %d-%d: encoder returned %d rows", ErrEncoderFailure, lo, hi-1, res.Activations.Rows)
		}
		if numLatents >= 0 && res.NumLatents != numLatents {
			return Activations{}, 0, fmt.Errorf("%w: num_latents changed from %d to %d", ErrEncoderFailure, numLatents, res.NumLatents)
		}
		numLatents = res.NumLatents
		if err := acts.Append(res.Activations); err != nil {
			return Activations{}, 0, err
		}
	}
	if numLatents < 0 {
		numLatents = 0
	}
	return acts, numLatents, nil
}
