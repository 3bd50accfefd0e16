// Package sae computes per-feature statistics of sparse autoencoder runs.
//
// A run is stored sparsely: each row keeps only its top-k active features as
// (index, magnitude) pairs. Statistics are reduced directly from those pairs,
// so memory stays proportional to rows*k rather than rows*num_latents.
package sae

import (
	"context"
	"errors"
	"fmt"
	"math"

	"golang.org/x/sync/errgroup"
)

// Unobserved is the max activation of a feature no row selected.
const Unobserved float32 = -1

var (
	// ErrFeatureIndexOutOfRange is returned for a feature index outside [0, num_latents).
	ErrFeatureIndexOutOfRange = errors.New("feature index out of range")
	// ErrShape is returned when the parallel arrays of an encoding disagree.
	ErrShape = errors.New("malformed sparse encoding")
)

// Activations is a sparse top-k encoding of Rows rows. Indices and Values are
// parallel, row-major arrays of Rows*K entries.
type Activations struct {
	Rows    int
	K       int
	Indices []int32
	Values  []float32
}

// Validate checks that the arrays match the declared shape.
func (a Activations) Validate() error {
	if a.Rows < 0 || a.K < 0 {
		return fmt.Errorf("%w: rows=%d k=%d", ErrShape, a.Rows, a.K)
	}
	n := a.Rows * a.K
	if len(a.Indices) != n || len(a.Values) != n {
		return fmt.Errorf("%w: rows=%d k=%d but %d indices and %d values", ErrShape, a.Rows, a.K, len(a.Indices), len(a.Values))
	}
	return nil
}

// Append adds the rows of b after the rows of a.
func (a *Activations) Append(b Activations) error {
	if err := b.Validate(); err != nil {
		return err
	}
	if a.Rows == 0 {
		a.K = b.K
	} else if b.Rows > 0 && a.K != b.K {
		return fmt.Errorf("%w: k changed from %d to %d", ErrShape, a.K, b.K)
	}
	a.Rows += b.Rows
	a.Indices = append(a.Indices, b.Indices...)
	a.Values = append(a.Values, b.Values...)
	return nil
}

// Stats summarizes the features of a run. Dead + Alive == NumFeatures.
type Stats struct {
	MaxActivations []float32
	NumFeatures    int
	Dead           int
	Alive          int
}

func newMaxArray(n int) []float32 {
	out := make([]float32, n)
	for i := range out {
		out[i] = Unobserved
	}
	return out
}

// scatterMax folds (idx, vals) pairs into dst. Negative and NaN magnitudes
// are not observations; an infinite magnitude is ErrShape.
func scatterMax(dst []float32, idx []int32, vals []float32) error {
	n := int32(len(dst))
	for j, f := range idx {
		if f < 0 || f >= n {
			return fmt.Errorf("%w: %d (num_latents=%d)", ErrFeatureIndexOutOfRange, f, n)
		}
		v := vals[j]
		if math.IsInf(float64(v), 0) {
			return fmt.Errorf("%w: infinite magnitude for feature %d", ErrShape, f)
		}
		if !(v >= 0) {
			continue
		}
		if v > dst[f] {
			dst[f] = v
		}
	}
	return nil
}

func summarize(maxAct []float32) Stats {
	s := Stats{MaxActivations: maxAct, NumFeatures: len(maxAct)}
	for _, v := range maxAct {
		if v < 0 {
			s.Dead++
		} else {
			s.Alive++
		}
	}
	return s
}

// Compute returns the max activation of every feature and the dead/alive
// split. A feature is dead when no row selected it.
func Compute(acts Activations, numLatents int) (Stats, error) {
	if numLatents < 0 {
		return Stats{}, fmt.Errorf("invalid num_latents: %d", numLatents)
	}
	if err := acts.Validate(); err != nil {
		return Stats{}, err
	}
	maxAct := newMaxArray(numLatents)
	if numLatents == 0 {
		return summarize(maxAct), nil
	}
	if err := scatterMax(maxAct, acts.Indices, acts.Values); err != nil {
		return Stats{}, err
	}
	return summarize(maxAct), nil
}

// ComputeParallel is Compute split into row shards reduced by up to workers
// goroutines. Each shard folds into its own array; shards are merged by
// element-wise max, so the result equals Compute.
func ComputeParallel(ctx context.Context, acts Activations, numLatents, workers int) (Stats, error) {
	if workers <= 1 || acts.Rows < 2 || numLatents <= 0 {
		return Compute(acts, numLatents)
	}
	if err := acts.Validate(); err != nil {
		return Stats{}, err
	}
	shards := min(workers, acts.Rows)
	per := (acts.Rows + shards - 1) / shards
	partials := make([][]float32, shards)

	g, ctx := errgroup.WithContext(ctx)
	for s := 0; s < shards; s++ {
		lo := s * per
		hi := min(lo+per, acts.Rows)
		if lo >= hi {
			break
		}
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			part := newMaxArray(numLatents)
			from, to := lo*acts.K, hi*acts.K
			if err := scatterMax(part, acts.Indices[from:to], acts.Values[from:to]); err != nil {
				return fmt.Errorf("rows %d-%d: %w", lo, hi-1, err)
			}
			partials[s] = part
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return Stats{}, err
	}

	merged := partials[0]
	for _, part := range partials[1:] {
		if part == nil {
			continue
		}
		for i, v := range part {
			if v > merged[i] {
				merged[i] = v
			}
		}
	}
	return summarize(merged), nil
}
