// Package artifact allocates sequential version ids for analysis artifacts
// (embeddings, projections, clusters, scopes, sparse feature runs) and reads
// their JSON metadata records back.
package artifact

import (
	"fmt"
	"os"
	"regexp"
	"strconv"

	"go.uber.org/zap"

	"github.com/kamusis/lscope/internal/dataset"
	"github.com/kamusis/lscope/internal/logging"
)

// Class names one kind of artifact: the dataset subdirectory it lives in and
// the prefix of its versioned filenames.
type Class struct {
	Dir    string
	Prefix string
}

var (
	Embeddings = Class{Dir: "embeddings", Prefix: "embedding"}
	UMAPs      = Class{Dir: "umaps", Prefix: "umap"}
	Clusters   = Class{Dir: "clusters", Prefix: "cluster"}
	Scopes     = Class{Dir: "scopes", Prefix: "scopes"}
	SAEs       = Class{Dir: "saes", Prefix: "sae"}
)

// Classes lists the built-in artifact classes.
var Classes = []Class{Embeddings, UMAPs, Clusters, Scopes, SAEs}

// ClassByName resolves a class by its directory or prefix.
func ClassByName(name string) (Class, bool) {
	for _, c := range Classes {
		if c.Dir == name || c.Prefix == name {
			return c, true
		}
	}
	return Class{}, false
}

// FormatID renders prefix plus the version zero padded to 3 digits, e.g. "sae-003".
func FormatID(prefix string, version int) string {
	return fmt.Sprintf("%s-%03d", prefix, version)
}

func versionPattern(prefix string) *regexp.Regexp {
	return regexp.MustCompile(`^` + regexp.QuoteMeta(prefix) + `-(\d+)\.[A-Za-z0-9_]+$`)
}

// NextVersion returns one plus the highest version among files in dir named
// <prefix>-<digits>.<ext>, or 1 when there are none. dir is created if missing.
// Unrelated entries are ignored and gaps are never filled.
func NextVersion(dir, prefix string) (int, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return 0, fmt.Errorf("cannot create artifact dir %s: %w", dir, err)
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0, fmt.Errorf("cannot read artifact dir %s: %w", dir, err)
	}
	re := versionPattern(prefix)
	highest := 0
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		m := re.FindStringSubmatch(e.Name())
		if m == nil {
			continue
		}
		n, err := strconv.Atoi(m[1])
		if err != nil {
			// digits too long for int; not one of ours
			continue
		}
		if n > highest {
			highest = n
		}
	}
	return highest + 1, nil
}

// Namer allocates artifact versions inside datasets of a Layout.
//
// Next and NextID do not reserve anything: two callers scanning the same class
// concurrently can receive the same version. Use Reserve when the id must be
// unique.
type Namer struct {
	layout dataset.Layout
	log    *zap.Logger
}

// NewNamer returns a Namer for layout.
func NewNamer(layout dataset.Layout, log *zap.Logger) *Namer {
	return &Namer{layout: layout, log: logging.OrNop(log)}
}

// Dir returns the class directory of dataset id, creating it when missing.
func (n *Namer) Dir(id string, c Class) (string, error) {
	return n.layout.EnsureSubdir(id, c.Dir)
}

// Next returns the next version number of class c in dataset id.
func (n *Namer) Next(id string, c Class) (int, error) {
	dir, err := n.Dir(id, c)
	if err != nil {
		return 0, err
	}
	return NextVersion(dir, c.Prefix)
}

// NextID returns the rendered id of the next version of class c in dataset id.
func (n *Namer) NextID(id string, c Class) (string, error) {
	v, err := n.Next(id, c)
	if err != nil {
		return "", err
	}
	return FormatID(c.Prefix, v), nil
}
