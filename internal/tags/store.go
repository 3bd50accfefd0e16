// Package tags keeps named sets of row indices per dataset, cached in memory
// and written through to one <tag>.indices file per tag.
package tags

import (
	"context"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/gofrs/flock"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
	"golang.org/x/text/unicode/norm"

	"github.com/kamusis/lscope/internal/dataset"
	"github.com/kamusis/lscope/internal/logging"
	"github.com/kamusis/lscope/internal/table"
)

var (
	// ErrMalformedTagFile is returned for tag records holding anything but non-negative integers.
	ErrMalformedTagFile = errors.New("malformed tag file")
	// ErrIO wraps failures to persist a tag record.
	ErrIO = errors.New("cannot persist tag")
	// ErrTagNotFound is returned when a tag has neither a cache entry nor a record.
	ErrTagNotFound = errors.New("tag not found")
	// ErrInvalidTagName is returned for names that cannot be used as a file name.
	ErrInvalidTagName = errors.New("invalid tag name")
	// ErrInvalidIndex is returned for row indices outside [0, 2^32).
	ErrInvalidIndex = errors.New("invalid row index")
)

const maxIndex = math.MaxUint32

var (
	tagMutations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "lscope_tag_mutations_total",
		Help: "Tag mutations by operation and result",
	}, []string{"op", "result"})

	malformedTagFiles = promauto.NewCounter(prometheus.CounterOpts{
		Name: "lscope_tag_malformed_files_total",
		Help: "Tag records skipped during hydration because they did not parse",
	})
)

// RowSource materializes dataset rows by position.
type RowSource interface {
	Rows(ctx context.Context, dataset string, indices []int) ([]table.Row, error)
}

type tag struct {
	mu        sync.Mutex
	set       *indexSet
	persisted bool   // a record exists on disk
	file      string // record name on disk without extension; may differ from the NFC key
}

type datasetTags struct {
	mu   sync.RWMutex
	tags map[string]*tag
}

// Store is the tag cache of every dataset accessed so far.
//
// Thread Safety:
//
//	Store is safe for concurrent use. Mutations of one tag are serialized and
//	its record is rewritten while the tag is locked, so the cached set and the
//	record never diverge. Different tags and datasets do not block each other.
type Store struct {
	layout dataset.Layout
	rows   RowSource
	log    *zap.Logger

	mu       sync.Mutex
	datasets map[string]*datasetTags
}

// NewStore returns an empty store. rows serves Rows; it may be nil if Rows is never called.
func NewStore(layout dataset.Layout, rows RowSource, log *zap.Logger) *Store {
	return &Store{
		layout:   layout,
		rows:     rows,
		log:      logging.OrNop(log),
		datasets: make(map[string]*datasetTags),
	}
}

// NormalizeName returns the canonical (NFC) form of a tag name, or
// ErrInvalidTagName when it cannot name a record file.
func NormalizeName(name string) (string, error) {
	n := norm.NFC.String(name)
	if n == "" || strings.HasPrefix(n, ".") || strings.ContainsAny(n, "/\\\x00") {
		return "", fmt.Errorf("%w: %q", ErrInvalidTagName, name)
	}
	return n, nil
}

func validIndex(i int) error {
	if i < 0 || int64(i) > maxIndex {
		return fmt.Errorf("%w: %d", ErrInvalidIndex, i)
	}
	return nil
}

// open returns the dataset's tag cache and tag directory, creating the
// directory when missing, and hydrates the cache from it.
func (s *Store) open(id string) (*datasetTags, string, error) {
	dir, err := s.layout.EnsureSubdir(id, dataset.TagsDir)
	if err != nil {
		return nil, "", err
	}
	s.mu.Lock()
	dt, ok := s.datasets[id]
	if !ok {
		dt = &datasetTags{tags: make(map[string]*tag)}
		s.datasets[id] = dt
	}
	s.mu.Unlock()

	if err := s.hydrate(id, dt, dir); err != nil {
		return nil, "", err
	}
	return dt, dir, nil
}

// hydrate loads every record in dir that is not cached yet. Records written
// by other means since the last call are picked up; cached tags are not
// re-read. Malformed records are logged and skipped.
func (s *Store) hydrate(id string, dt *datasetTags, dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("cannot read tag dir %s: %w", dir, err)
	}
	for _, e := range entries {
		fname := e.Name()
		if e.IsDir() || strings.HasPrefix(fname, ".") || !strings.HasSuffix(fname, FileExt) {
			continue
		}
		file := strings.TrimSuffix(fname, FileExt)
		name, err := NormalizeName(file)
		if err != nil {
			continue
		}
		dt.mu.RLock()
		existing, known := dt.tags[name]
		dt.mu.RUnlock()
		if known {
			if existing.file != file {
				s.log.Warn("Skipping tag file with the same normalized name as another",
					zap.String("dataset", id),
					zap.String("file", fname),
					zap.String("tag", name),
					zap.String("used", existing.file+FileExt))
			}
			continue
		}
		indices, err := readRecord(filepath.Join(dir, fname))
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			malformedTagFiles.Inc()
			s.log.Warn("Skipping tag file",
				zap.String("dataset", id),
				zap.String("file", fname),
				zap.Error(err))
			continue
		}
		s.insert(dt, name, &tag{set: newIndexSet(indices), persisted: true, file: file})
	}
	return nil
}

// insert adds t under name unless another entry won the race, and returns
// the entry in the cache.
func (s *Store) insert(dt *datasetTags, name string, t *tag) *tag {
	dt.mu.Lock()
	defer dt.mu.Unlock()
	if existing, ok := dt.tags[name]; ok {
		return existing
	}
	dt.tags[name] = t
	return t
}

func (s *Store) forget(dt *datasetTags, name string, t *tag) {
	dt.mu.Lock()
	defer dt.mu.Unlock()
	if dt.tags[name] == t {
		delete(dt.tags, name)
	}
}

// entry returns the cached tag, loading its record if needed. With create set
// an absent tag gets an empty, not yet persisted entry; otherwise nil is
// returned for it.
func (s *Store) entry(dt *datasetTags, dir, name string, create bool) (*tag, error) {
	dt.mu.RLock()
	t, ok := dt.tags[name]
	dt.mu.RUnlock()
	if ok {
		return t, nil
	}
	indices, err := readRecord(filepath.Join(dir, name+FileExt))
	switch {
	case err == nil:
		return s.insert(dt, name, &tag{set: newIndexSet(indices), persisted: true, file: name}), nil
	case os.IsNotExist(err):
		if !create {
			return nil, nil
		}
		return s.insert(dt, name, &tag{set: newIndexSet(nil), file: name}), nil
	default:
		return nil, err
	}
}

func snapshot(dt *datasetTags) map[string][]int {
	dt.mu.RLock()
	entries := make(map[string]*tag, len(dt.tags))
	for name, t := range dt.tags {
		entries[name] = t
	}
	dt.mu.RUnlock()

	out := make(map[string][]int, len(entries))
	for name, t := range entries {
		t.mu.Lock()
		out[name] = t.set.slice()
		t.mu.Unlock()
	}
	return out
}

// persist rewrites the record of t, under the spelling it was found with,
// while holding a cross-process lock on it. The caller holds t.mu.
func (s *Store) persist(dir string, t *tag) error {
	fl := flock.New(filepath.Join(dir, "."+t.file+".lock"))
	if err := fl.Lock(); err != nil {
		return fmt.Errorf("%w: cannot lock tag %s: %w", ErrIO, t.file, err)
	}
	defer func() { _ = fl.Unlock() }()
	return writeRecord(filepath.Join(dir, t.file+FileExt), t.set.order)
}

// List returns every tag of dataset id with its indices in insertion order.
func (s *Store) List(id string) (map[string][]int, error) {
	dt, _, err := s.open(id)
	if err != nil {
		return nil, err
	}
	return snapshot(dt), nil
}

// Create makes an empty tag, persisted as an empty record. It is a no-op for
// a tag that already exists.
func (s *Store) Create(id, name string) (map[string][]int, error) {
	name, err := NormalizeName(name)
	if err != nil {
		return nil, err
	}
	dt, dir, err := s.open(id)
	if err != nil {
		return nil, err
	}
	t, err := s.entry(dt, dir, name, true)
	if err != nil {
		return nil, err
	}

	t.mu.Lock()
	if !t.persisted {
		if err := s.persist(dir, t); err != nil {
			t.mu.Unlock()
			s.forget(dt, name, t)
			tagMutations.WithLabelValues("create", "error").Inc()
			return nil, err
		}
		t.persisted = true
		s.insert(dt, name, t)
		tagMutations.WithLabelValues("create", "changed").Inc()
		s.log.Debug("Created tag", zap.String("dataset", id), zap.String("tag", name))
	} else {
		tagMutations.WithLabelValues("create", "noop").Inc()
	}
	t.mu.Unlock()
	return snapshot(dt), nil
}

// Add appends index to the tag, creating the tag if needed, and rewrites its
// record. Adding a member is a no-op and does not touch the disk.
func (s *Store) Add(id, name string, index int) (map[string][]int, error) {
	if err := validIndex(index); err != nil {
		return nil, err
	}
	name, err := NormalizeName(name)
	if err != nil {
		return nil, err
	}
	dt, dir, err := s.open(id)
	if err != nil {
		return nil, err
	}
	t, err := s.entry(dt, dir, name, true)
	if err != nil {
		return nil, err
	}
	return s.add(dt, dir, name, t, index)
}

// add inserts index into t and persists it. A tag whose first persist fails
// is dropped from the cache; one that persists is put back, in case a
// concurrent failed first persist dropped it meanwhile.
func (s *Store) add(dt *datasetTags, dir, name string, t *tag, index int) (map[string][]int, error) {
	t.mu.Lock()
	if !t.set.add(index) {
		t.mu.Unlock()
		tagMutations.WithLabelValues("add", "noop").Inc()
		return snapshot(dt), nil
	}
	if err := s.persist(dir, t); err != nil {
		t.set.dropLast()
		wasNew := !t.persisted
		t.mu.Unlock()
		if wasNew {
			s.forget(dt, name, t)
		}
		tagMutations.WithLabelValues("add", "error").Inc()
		return nil, err
	}
	t.persisted = true
	t.mu.Unlock()
	s.insert(dt, name, t)
	tagMutations.WithLabelValues("add", "changed").Inc()
	return snapshot(dt), nil
}

// Remove deletes index from the tag and rewrites its record, possibly as an
// empty record. Removing a non-member, or from a tag that does not exist, is
// a no-op.
func (s *Store) Remove(id, name string, index int) (map[string][]int, error) {
	if err := validIndex(index); err != nil {
		return nil, err
	}
	name, err := NormalizeName(name)
	if err != nil {
		return nil, err
	}
	dt, dir, err := s.open(id)
	if err != nil {
		return nil, err
	}
	t, err := s.entry(dt, dir, name, false)
	if err != nil {
		return nil, err
	}
	if t == nil {
		tagMutations.WithLabelValues("remove", "noop").Inc()
		return snapshot(dt), nil
	}

	t.mu.Lock()
	pos := t.set.remove(index)
	if pos < 0 {
		t.mu.Unlock()
		tagMutations.WithLabelValues("remove", "noop").Inc()
		return snapshot(dt), nil
	}
	if err := s.persist(dir, t); err != nil {
		t.set.insertAt(pos, index)
		t.mu.Unlock()
		tagMutations.WithLabelValues("remove", "error").Inc()
		return nil, err
	}
	t.persisted = true
	t.mu.Unlock()
	tagMutations.WithLabelValues("remove", "changed").Inc()
	return snapshot(dt), nil
}

// Indices returns the indices of one tag.
func (s *Store) Indices(id, name string) ([]int, error) {
	name, err := NormalizeName(name)
	if err != nil {
		return nil, err
	}
	dt, dir, err := s.open(id)
	if err != nil {
		return nil, err
	}
	t, err := s.entry(dt, dir, name, false)
	if err != nil {
		return nil, err
	}
	if t == nil {
		return nil, fmt.Errorf("%w: %s/%s", ErrTagNotFound, id, name)
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.set.slice(), nil
}

// Rows materializes the rows of a tag in its index order.
func (s *Store) Rows(ctx context.Context, id, name string) ([]table.Row, error) {
	if s.rows == nil {
		return nil, errors.New("tag store has no row source")
	}
	indices, err := s.Indices(id, name)
	if err != nil {
		return nil, err
	}
	return s.rows.Rows(ctx, id, indices)
}
