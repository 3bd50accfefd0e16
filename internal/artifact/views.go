package artifact

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/kamusis/lscope/internal/table"
)

// ErrArtifactNotFound is returned when a derived table of an artifact is absent.
var ErrArtifactNotFound = errors.New("artifact not found")

const (
	// SlidesDir holds per-cluster slide tables.
	SlidesDir = "slides"
	// ActiveSlidesKey is the meta.json key naming the cluster whose slides are shown.
	ActiveSlidesKey = "active_slides"

	tableExt = ".parquet"
)

func validName(kind, name string) error {
	if name == "" || strings.ContainsAny(name, `/\`) || strings.HasPrefix(name, ".") {
		return fmt.Errorf("invalid %s name %q", kind, name)
	}
	return nil
}

// readTable returns every row of <dataset>/<sub>/<file>. Nothing is created
// on disk.
func (n *Namer) readTable(ctx context.Context, id, sub, file string) ([]table.Row, error) {
	dir, err := n.layout.Require(id)
	if err != nil {
		return nil, err
	}
	p := filepath.Join(dir, sub, file)
	tbl, err := table.ReadParquet(ctx, p, nil)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s/%s/%s", ErrArtifactNotFound, id, sub, file)
		}
		return nil, err
	}
	return tbl.All()
}

// UMAPPoints returns the projected points of a umap artifact, one row per
// input row, from umaps/<umap>.parquet.
func (n *Namer) UMAPPoints(ctx context.Context, id, umap string) ([]table.Row, error) {
	if err := validName("umap", umap); err != nil {
		return nil, err
	}
	return n.readTable(ctx, id, UMAPs.Dir, umap+tableExt)
}

// ClusterLabels returns the label table of a cluster artifact. With an empty
// model the default clusters/<cluster>-labels.parquet is read, otherwise
// clusters/<cluster>-labels-<model>.parquet.
func (n *Namer) ClusterLabels(ctx context.Context, id, cluster, model string) ([]table.Row, error) {
	if err := validName("cluster", cluster); err != nil {
		return nil, err
	}
	file := cluster + "-labels" + tableExt
	if model != "" {
		if err := validName("model", model); err != nil {
			return nil, err
		}
		file = cluster + "-labels-" + model + tableExt
	}
	return n.readTable(ctx, id, Clusters.Dir, file)
}

// LabelsAvailable returns the models that labelled cluster, newest label
// table first. A dataset without a clusters directory has none.
func (n *Namer) LabelsAvailable(id, cluster string) ([]string, error) {
	if err := validName("cluster", cluster); err != nil {
		return nil, err
	}
	dir, err := n.layout.Require(id)
	if err != nil {
		return nil, err
	}
	dir = filepath.Join(dir, Clusters.Dir)
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return []string{}, nil
		}
		return nil, fmt.Errorf("cannot scan %s: %w", dir, err)
	}

	pattern := regexp.MustCompile(`^` + regexp.QuoteMeta(cluster) + `-labels-(.+)\.parquet$`)
	type found struct {
		model string
		mtime int64
	}
	var hits []found
	for _, e := range entries {
		m := pattern.FindStringSubmatch(e.Name())
		if m == nil || e.IsDir() {
			continue
		}
		info, err := e.Info()
		if err != nil {
			n.log.Warn("Cannot stat label table", zap.String("file", e.Name()), zap.Error(err))
			continue
		}
		hits = append(hits, found{model: m[1], mtime: info.ModTime().UnixNano()})
	}
	sort.Slice(hits, func(i, j int) bool {
		if hits[i].mtime == hits[j].mtime {
			return hits[i].model < hits[j].model
		}
		return hits[i].mtime > hits[j].mtime
	})
	out := make([]string, len(hits))
	for i, h := range hits {
		out[i] = h.model
	}
	return out, nil
}

// Slides returns the slide table of the dataset's active cluster. meta.json
// names it under active_slides as a cluster id (cluster-002), read from
// slides/slides-002.parquet.
func (n *Namer) Slides(ctx context.Context, id string) ([]table.Row, error) {
	meta, err := n.layout.ReadMeta(id)
	if err != nil {
		return nil, err
	}
	active, _ := meta[ActiveSlidesKey].(string)
	if active == "" {
		return nil, fmt.Errorf("%w: %s has no %s in meta.json", ErrArtifactNotFound, id, ActiveSlidesKey)
	}
	slide := strings.Replace(active, Clusters.Prefix, SlidesDir, 1)
	if err := validName("slides", slide); err != nil {
		return nil, err
	}
	return n.readTable(ctx, id, SlidesDir, slide+tableExt)
}
