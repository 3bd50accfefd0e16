// Package dataset describes the on-disk data directory: one subdirectory per
// dataset holding its input table, meta.json, tags and analysis artifacts.
package dataset

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ErrDatasetNotFound is returned when a dataset directory or its input table is absent.
var ErrDatasetNotFound = errors.New("dataset not found")

const (
	// InputFile is the primary row-indexed table of a dataset.
	InputFile = "input.parquet"
	// MetaFile holds free-form dataset metadata.
	MetaFile = "meta.json"
	// TagsDir holds one <tag>.indices file per tag.
	TagsDir = "tags"
)

// Layout resolves dataset paths below a data directory.
type Layout struct {
	Root string
}

// NewLayout returns a Layout rooted at root.
func NewLayout(root string) Layout {
	return Layout{Root: root}
}

// Dir returns the directory of dataset id without checking it exists.
func (l Layout) Dir(id string) string {
	return filepath.Join(l.Root, id)
}

// Require returns the dataset directory, or ErrDatasetNotFound when it is absent.
func (l Layout) Require(id string) (string, error) {
	if err := validID(id); err != nil {
		return "", err
	}
	dir := l.Dir(id)
	st, err := os.Stat(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return "", fmt.Errorf("%w: %s", ErrDatasetNotFound, id)
		}
		return "", fmt.Errorf("cannot stat dataset %s: %w", dir, err)
	}
	if !st.IsDir() {
		return "", fmt.Errorf("%w: %s is not a directory", ErrDatasetNotFound, dir)
	}
	return dir, nil
}

// Create returns the directory of dataset id, creating it when missing.
func (l Layout) Create(id string) (string, error) {
	if err := validID(id); err != nil {
		return "", err
	}
	dir := l.Dir(id)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("cannot create dataset %s: %w", dir, err)
	}
	return dir, nil
}

// EnsureSubdir returns <dataset>/<name>, creating it when missing.
// The dataset itself must already exist.
func (l Layout) EnsureSubdir(id, name string) (string, error) {
	dir, err := l.Require(id)
	if err != nil {
		return "", err
	}
	sub := filepath.Join(dir, name)
	if err := os.MkdirAll(sub, 0o755); err != nil {
		return "", fmt.Errorf("cannot create %s: %w", sub, err)
	}
	return sub, nil
}

// InputPath returns the path of the dataset's input table.
func (l Layout) InputPath(id string) string {
	return filepath.Join(l.Dir(id), InputFile)
}

// TagDir returns the tag directory of a dataset without creating it.
func (l Layout) TagDir(id string) string {
	return filepath.Join(l.Dir(id), TagsDir)
}

func validID(id string) error {
	if id == "" || id == "." || id == ".." || strings.ContainsAny(id, `/\`) {
		return fmt.Errorf("%w: invalid dataset id %q", ErrDatasetNotFound, id)
	}
	return nil
}
