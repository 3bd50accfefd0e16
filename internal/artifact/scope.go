package artifact

import (
	"context"
	"encoding/json"
	"path/filepath"

	"github.com/kamusis/lscope/internal/fsutil"
)

// Scope ties together the artifacts that make up one saved view of a dataset.
type Scope struct {
	Name          string `json:"name"`
	Embeddings    string `json:"embeddings"`
	UMAP          string `json:"umap"`
	Cluster       string `json:"cluster"`
	ClusterLabels string `json:"cluster_labels"`
	Label         string `json:"label"`
	Description   string `json:"description"`
}

// SaveScope writes s to <dataset>/scopes/<name>.json. When s.Name is empty the
// next scopes-NNN id is allocated under the class lock. An explicit name
// overwrites an existing scope of that name.
func (n *Namer) SaveScope(ctx context.Context, id string, s Scope) (Scope, error) {
	write := func(name string) error {
		if err := validName("scope", name); err != nil {
			return err
		}
		dir, err := n.Dir(id, Scopes)
		if err != nil {
			return err
		}
		s.Name = name
		b, err := json.MarshalIndent(s, "", "  ")
		if err != nil {
			return err
		}
		return fsutil.WriteFileAtomic(filepath.Join(dir, name+".json"), b, 0o644)
	}

	if s.Name != "" {
		if err := write(s.Name); err != nil {
			return Scope{}, err
		}
		return s, nil
	}
	if _, err := n.Reserve(ctx, id, Scopes, write); err != nil {
		return Scope{}, err
	}
	return s, nil
}
