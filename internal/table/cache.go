package table

import (
	"context"
	"fmt"
	"os"
	"sync"

	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/kamusis/lscope/internal/dataset"
	"github.com/kamusis/lscope/internal/logging"
)

var (
	cacheLoads = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "lscope_table_cache_loads_total",
		Help: "Input table loads by result",
	}, []string{"result"})

	cacheHits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "lscope_table_cache_hits_total",
		Help: "Input table lookups served from memory",
	})
)

// Cache holds the loaded input table of every dataset accessed so far.
//
// Thread Safety:
//
//	Cache is safe for concurrent use. Concurrent first access to the same
//	dataset performs a single load that every caller observes. Entries are
//	never evicted; failed loads are not cached.
type Cache struct {
	layout dataset.Layout
	mem    memory.Allocator
	log    *zap.Logger

	mu     sync.RWMutex
	tables map[string]*Table
	flight singleflight.Group
}

// NewCache returns an empty cache over layout. A nil mem uses the Go allocator.
func NewCache(layout dataset.Layout, mem memory.Allocator, log *zap.Logger) *Cache {
	if mem == nil {
		mem = memory.NewGoAllocator()
	}
	return &Cache{
		layout: layout,
		mem:    mem,
		log:    logging.OrNop(log),
		tables: make(map[string]*Table),
	}
}

func (c *Cache) lookup(id string) (*Table, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	t, ok := c.tables[id]
	return t, ok
}

// Get returns the input table of dataset id, loading it on first access.
func (c *Cache) Get(ctx context.Context, id string) (*Table, error) {
	if t, ok := c.lookup(id); ok {
		cacheHits.Inc()
		return t, nil
	}
	v, err, _ := c.flight.Do(id, func() (any, error) {
		if t, ok := c.lookup(id); ok {
			return t, nil
		}
		t, err := c.load(ctx, id)
		if err != nil {
			cacheLoads.WithLabelValues("error").Inc()
			return nil, err
		}
		c.mu.Lock()
		if existing, ok := c.tables[id]; ok {
			t = existing
		} else {
			c.tables[id] = t
		}
		c.mu.Unlock()
		cacheLoads.WithLabelValues("ok").Inc()
		return t, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Table), nil
}

func (c *Cache) load(ctx context.Context, id string) (*Table, error) {
	if _, err := c.layout.Require(id); err != nil {
		return nil, err
	}
	path := c.layout.InputPath(id)
	t, err := ReadParquet(ctx, path, c.mem)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s has no %s", dataset.ErrDatasetNotFound, id, dataset.InputFile)
		}
		return nil, err
	}
	c.log.Info("Loaded input table",
		zap.String("dataset", id),
		zap.Int("rows", t.Len()),
		zap.Strings("columns", t.Columns()))
	return t, nil
}

// Rows returns the rows of dataset id at the given positions, in order.
func (c *Cache) Rows(ctx context.Context, id string, indices []int) ([]Row, error) {
	t, err := c.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return t.Rows(indices)
}
