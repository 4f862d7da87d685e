package storagewrappers

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/datavirt/datavirt/internal/build"
	"github.com/datavirt/datavirt/pkg/entity"
	"github.com/datavirt/datavirt/pkg/logger"
	"github.com/datavirt/datavirt/pkg/storage"
	"github.com/datavirt/datavirt/pkg/value"
	"github.com/datavirt/datavirt/pkg/variable"
)

const defaultTTL = 10 * time.Minute

var (
	cacheTotalCounter = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: build.ProjectName,
		Name:      "datasource_cache_total_count",
		Help:      "The total number of cached datasource lookups.",
	}, []string{"operation"})

	cacheHitCounter = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: build.ProjectName,
		Name:      "datasource_cache_hit_count",
		Help:      "The total number of cache hits of datasource lookups.",
	}, []string{"operation"})
)

type CachedDatasourceOpt func(*CachedDatasource)

// WithCachedDatasourceLogger sets the logger for the CachedDatasource.
func WithCachedDatasourceLogger(l logger.Logger) CachedDatasourceOpt {
	return func(c *CachedDatasource) {
		c.logger = l
	}
}

// WithCache shares an existing cache. A shared cache is not stopped on Dispose.
func WithCache(cache storage.InMemoryCache[any]) CachedDatasourceOpt {
	return func(c *CachedDatasource) {
		c.cache = cache
	}
}

// WithCacheSize bounds the number of entries of the cache owned by the datasource.
func WithCacheSize(size int64) CachedDatasourceOpt {
	return func(c *CachedDatasource) {
		c.size = size
	}
}

// WithTTL sets how long a cached entry may be served.
func WithTTL(ttl time.Duration) CachedDatasourceOpt {
	return func(c *CachedDatasource) {
		c.ttl = ttl
	}
}

// CachedDatasource caches single value reads and entity sets. Entries expire after the
// TTL and are dropped when their table is refreshed, written or dropped through the
// wrapper. Vector reads bypass the cache.
type CachedDatasource struct {
	*datasource

	cache     storage.InMemoryCache[any]
	ownsCache bool
	size      int64
	ttl       time.Duration
	logger    logger.Logger

	// sf prevents loading the same entity set concurrently.
	sf singleflight.Group

	mu          sync.Mutex
	generations map[string]*atomic.Uint64 // GUARDED_BY(mu)
}

var _ storage.DatasourceWrapper = (*CachedDatasource)(nil)

// NewCachedDatasource returns a wrapper over a datasource that caches reads in memory.
func NewCachedDatasource(inner storage.Datasource, opts ...CachedDatasourceOpt) (*CachedDatasource, error) {
	c := &CachedDatasource{
		ttl:         defaultTTL,
		logger:      logger.NewNoopLogger(),
		generations: map[string]*atomic.Uint64{},
	}
	for _, opt := range opts {
		opt(c)
	}

	if c.cache == nil {
		var cacheOpts []storage.InMemoryLRUCacheOpt[any]
		if c.size > 0 {
			cacheOpts = append(cacheOpts, storage.WithMaxCacheSize[any](c.size))
		}
		cache, err := storage.NewInMemoryLRUCache(cacheOpts...)
		if err != nil {
			return nil, fmt.Errorf("create cache: %w", err)
		}
		c.cache, c.ownsCache = cache, true
	}

	c.datasource = &datasource{
		Datasource: inner,
		self:       c,
		wrapTable: func(ds storage.Datasource, t storage.ValueTable) storage.ValueTable {
			ct := &cachedTable{c: c}
			ct.table = &table{ValueTable: t, ds: ds, wrapSource: ct.wrapSource}
			return ct
		},
	}
	return c, nil
}

// Dispose disposes the inner datasource and stops the cache it owns.
func (c *CachedDatasource) Dispose(ctx context.Context) error {
	if c.ownsCache {
		c.cache.Stop()
	}
	return c.Datasource.Dispose(ctx)
}

func (c *CachedDatasource) generation(tableName string) *atomic.Uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	g, ok := c.generations[tableName]
	if !ok {
		g = &atomic.Uint64{}
		c.generations[tableName] = g
	}
	return g
}

// invalidate moves tableName to a new generation so that its cached entries are never
// read again.
func (c *CachedDatasource) invalidate(ctx context.Context, tableName string) {
	c.generation(tableName).Add(1)
	c.logger.DebugWithContext(ctx, "cached table invalidated",
		zap.String("datasource", c.Name()), zap.String("table", tableName))
}

// CreateWriter wraps the writer of the inner datasource so that every committed change
// invalidates the cached entries of the table.
func (c *CachedDatasource) CreateWriter(ctx context.Context, tableName, entityType string) (storage.ValueTableWriter, error) {
	w, err := c.Datasource.CreateWriter(ctx, tableName, entityType)
	if err != nil {
		return nil, err
	}
	return &cachedTableWriter{ValueTableWriter: w, c: c, table: tableName}, nil
}

func (c *CachedDatasource) DropTable(ctx context.Context, tableName string) error {
	err := c.Datasource.DropTable(ctx, tableName)
	c.invalidate(ctx, tableName)
	return err
}

func (c *CachedDatasource) Drop(ctx context.Context) error {
	err := c.Datasource.Drop(ctx)
	c.mu.Lock()
	names := make([]string, 0, len(c.generations))
	for name := range c.generations {
		names = append(names, name)
	}
	c.mu.Unlock()
	for _, name := range names {
		c.invalidate(ctx, name)
	}
	return err
}

type cachedTableWriter struct {
	storage.ValueTableWriter
	c     *CachedDatasource
	table string
}

func (w *cachedTableWriter) WriteVariable(ctx context.Context, v *variable.Variable) error {
	defer w.c.invalidate(ctx, w.table)
	return w.ValueTableWriter.WriteVariable(ctx, v)
}

func (w *cachedTableWriter) RemoveVariable(ctx context.Context, name string) error {
	defer w.c.invalidate(ctx, w.table)
	return w.ValueTableWriter.RemoveVariable(ctx, name)
}

func (w *cachedTableWriter) WriteValueSet(ctx context.Context, e entity.Entity) (storage.ValueSetWriter, error) {
	vsw, err := w.ValueTableWriter.WriteValueSet(ctx, e)
	if err != nil {
		return nil, err
	}
	return &cachedValueSetWriter{ValueSetWriter: vsw, w: w}, nil
}

func (w *cachedTableWriter) Close(ctx context.Context) error {
	defer w.c.invalidate(ctx, w.table)
	return w.ValueTableWriter.Close(ctx)
}

type cachedValueSetWriter struct {
	storage.ValueSetWriter
	w *cachedTableWriter
}

func (w *cachedValueSetWriter) Remove(ctx context.Context) error {
	defer w.w.c.invalidate(ctx, w.w.table)
	return w.ValueSetWriter.Remove(ctx)
}

func (w *cachedValueSetWriter) Close(ctx context.Context) error {
	defer w.w.c.invalidate(ctx, w.w.table)
	return w.ValueSetWriter.Close(ctx)
}

func (c *CachedDatasource) key(parts ...string) string {
	return strings.Join(append([]string{c.Name()}, parts...), "/")
}

func (c *CachedDatasource) tableKey(tableName string, parts ...string) string {
	gen := fmt.Sprintf("%d", c.generation(tableName).Load())
	return c.key(append([]string{tableName, gen}, parts...)...)
}

type cachedTable struct {
	*table
	c *CachedDatasource
}

func (t *cachedTable) wrapSource(_ storage.ValueTable, src storage.VariableValueSource) storage.VariableValueSource {
	return &cachedSource{VariableValueSource: src, t: t}
}

// VariableEntities loads the entity set once per generation.
func (t *cachedTable) VariableEntities(ctx context.Context) ([]entity.Entity, error) {
	const operation = "VariableEntities"
	cacheTotalCounter.WithLabelValues(operation).Inc()

	key := t.c.tableKey(t.Name(), "entities")
	if cached, ok := t.c.cache.Get(key); ok {
		cacheHitCounter.WithLabelValues(operation).Inc()
		return cached.([]entity.Entity), nil
	}

	v, err, _ := t.c.sf.Do(key, func() (any, error) {
		entities, err := t.ValueTable.VariableEntities(ctx)
		if err != nil {
			return nil, err
		}
		t.c.cache.Set(key, entities, t.c.ttl)
		return entities, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]entity.Entity), nil
}

// HasValueSet answers from the cached entity set.
func (t *cachedTable) HasValueSet(ctx context.Context, e entity.Entity) (bool, error) {
	if !t.IsForEntityType(e.Type) {
		return false, nil
	}
	entities, err := t.VariableEntities(ctx)
	if err != nil {
		return false, err
	}
	return slices.Contains(entities, e), nil
}

// Refresh refreshes the inner table and invalidates its cached entries.
func (t *cachedTable) Refresh(ctx context.Context) error {
	if err := t.ValueTable.Refresh(ctx); err != nil {
		return err
	}
	t.c.invalidate(ctx, t.Name())
	return nil
}

type cachedSource struct {
	storage.VariableValueSource
	t *cachedTable
}

func (s *cachedSource) Value(ctx context.Context, vs storage.ValueSet) (value.Value, error) {
	const operation = "Value"
	cacheTotalCounter.WithLabelValues(operation).Inc()

	key := s.t.c.tableKey(s.t.Name(), "value", s.Variable().Name(), vs.Entity.Identifier)
	if cached, ok := s.t.c.cache.Get(key); ok {
		cacheHitCounter.WithLabelValues(operation).Inc()
		return cached.(value.Value), nil
	}

	v, err := s.VariableValueSource.Value(ctx, vs)
	if err != nil {
		return value.Value{}, err
	}
	s.t.c.cache.Set(key, v, s.t.c.ttl)
	return v, nil
}
