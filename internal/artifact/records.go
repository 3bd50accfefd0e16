package artifact

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"go.uber.org/zap"
)

// ListRecords returns every JSON metadata record of class c in dataset id,
// sorted by filename. Records that do not parse are logged and skipped.
func (n *Namer) ListRecords(id string, c Class) ([]map[string]any, error) {
	dir, err := n.Dir(id, c)
	if err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || strings.HasPrefix(e.Name(), ".") || filepath.Ext(e.Name()) != ".json" {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)

	out := make([]map[string]any, 0, len(names))
	for _, name := range names {
		p := filepath.Join(dir, name)
		b, err := os.ReadFile(p)
		if err != nil {
			n.log.Warn("Cannot read artifact record", zap.String("path", p), zap.Error(err))
			continue
		}
		var rec map[string]any
		if err := json.Unmarshal(b, &rec); err != nil || rec == nil {
			n.log.Warn("Skipping invalid artifact record", zap.String("path", p), zap.Error(err))
			continue
		}
		out = append(out, rec)
	}
	return out, nil
}
