package dataset

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/kamusis/lscope/internal/fsutil"
)

// Meta is the free-form content of a dataset's meta.json.
type Meta map[string]any

// TextColumn returns the configured text column, if any.
func (m Meta) TextColumn() string {
	s, _ := m["text_column"].(string)
	return s
}

// ReadMeta loads meta.json of dataset id.
func (l Layout) ReadMeta(id string) (Meta, error) {
	dir, err := l.Require(id)
	if err != nil {
		return nil, err
	}
	return readMeta(filepath.Join(dir, MetaFile))
}

// UpdateMeta sets key to value in meta.json, creating the file when missing,
// and returns the updated record.
func (l Layout) UpdateMeta(id, key string, value any) (Meta, error) {
	dir, err := l.Require(id)
	if err != nil {
		return nil, err
	}
	p := filepath.Join(dir, MetaFile)
	m, err := readMeta(p)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, err
		}
		m = Meta{}
	}
	m[key] = value
	b, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("cannot marshal meta: %w", err)
	}
	if err := fsutil.WriteFileAtomic(p, b, 0o644); err != nil {
		return nil, err
	}
	return m, nil
}

// List returns the metadata of every dataset directory that has a meta.json,
// sorted by name. The directory name is injected as "name".
func (l Layout) List() ([]Meta, error) {
	entries, err := os.ReadDir(l.Root)
	if err != nil {
		if os.IsNotExist(err) {
			return []Meta{}, nil
		}
		return nil, fmt.Errorf("cannot read data dir %s: %w", l.Root, err)
	}
	out := []Meta{}
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		m, err := readMeta(filepath.Join(l.Root, e.Name(), MetaFile))
		if err != nil {
			continue
		}
		m["name"] = e.Name()
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i]["name"].(string) < out[j]["name"].(string) })
	return out, nil
}

func readMeta(path string) (Meta, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var m Meta
	if err := json.Unmarshal(b, &m); err != nil {
		return nil, fmt.Errorf("invalid meta JSON %s: %w", path, err)
	}
	if m == nil {
		m = Meta{}
	}
	return m, nil
}
