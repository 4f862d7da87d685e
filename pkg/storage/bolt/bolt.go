// Package bolt provides a writable datasource persisted in a single bbolt file.
//
// Every table is a bucket below the root "tables" bucket. It holds a "meta" key with the
// entity type and timestamps, a "variables" bucket with the serialised dictionary in
// insertion order, an "entities" bucket keyed by identifier and a "values" bucket with
// one nested bucket per variable mapping identifiers to canonical value strings. Keys
// are ordered bytewise, which is the natural identifier order of the datasource.
package bolt

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	bolt "go.etcd.io/bbolt"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"

	"github.com/datavirt/datavirt/pkg/codec"
	"github.com/datavirt/datavirt/pkg/logger"
	"github.com/datavirt/datavirt/pkg/storage"
	"github.com/datavirt/datavirt/pkg/storage/support"
	"github.com/datavirt/datavirt/pkg/variable"
)

// Engine is the type name of bolt datasources.
const Engine = "bolt"

var tracer = otel.Tracer("datavirt/pkg/storage/bolt")

var (
	bucketTables    = []byte("tables")
	bucketVariables = []byte("variables")
	bucketEntities  = []byte("entities")
	bucketValues    = []byte("values")
	keyMeta         = []byte("meta")
)

// Option configures a [Datasource].
type Option func(ds *Datasource)

// WithLogger sets the logger of the datasource.
func WithLogger(l logger.Logger) Option {
	return func(ds *Datasource) {
		ds.logger = l
	}
}

// WithClock sets the clock used for table timestamps.
func WithClock(now func() time.Time) Option {
	return func(ds *Datasource) {
		ds.now = now
	}
}

// WithOpenTimeout sets how long Initialise waits for the file lock.
func WithOpenTimeout(d time.Duration) Option {
	return func(ds *Datasource) {
		ds.openTimeout = d
	}
}

// WithPageSize sets the number of values read per transaction when streaming vectors.
func WithPageSize(n int) Option {
	return func(ds *Datasource) {
		if n > 0 {
			ds.pageSize = n
		}
	}
}

// Datasource stores its tables in a bbolt file. Instances may be safely shared by
// multiple goroutines.
type Datasource struct {
	*support.Datasource
	path        string
	logger      logger.Logger
	now         func() time.Time
	openTimeout time.Duration
	pageSize    int

	mu sync.RWMutex
	db *bolt.DB // GUARDED_BY(mu)
}

var _ storage.Datasource = (*Datasource)(nil)

// New creates a datasource over the file at path. The file is created by Initialise
// when missing.
func New(name, path string, opts ...Option) *Datasource {
	ds := &Datasource{
		path:        path,
		logger:      logger.NewNoopLogger(),
		now:         time.Now,
		openTimeout: time.Second,
		pageSize:    256,
	}
	for _, opt := range opts {
		opt(ds)
	}
	ds.Datasource = support.NewDatasource(name, Engine, ds.logger)
	return ds
}

// Path returns the file of the datasource.
func (d *Datasource) Path() string {
	return d.path
}

func (d *Datasource) bolt() (*bolt.DB, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.db == nil {
		return nil, storage.RuntimeError("bolt datasource '%s' is not initialised", d.Name())
	}
	return d.db, nil
}

func (d *Datasource) view(fn func(tx *bolt.Tx) error) error {
	db, err := d.bolt()
	if err != nil {
		return err
	}
	return db.View(fn)
}

func (d *Datasource) update(fn func(tx *bolt.Tx) error) error {
	db, err := d.bolt()
	if err != nil {
		return err
	}
	return db.Update(fn)
}

// Initialise opens the file and loads the dictionaries of all tables.
func (d *Datasource) Initialise(ctx context.Context) error {
	ctx, span := tracer.Start(ctx, "bolt.Initialise")
	defer span.End()

	d.mu.Lock()
	if d.db == nil {
		if err := os.MkdirAll(filepath.Dir(d.path), 0o777); err != nil {
			d.mu.Unlock()
			return fmt.Errorf("mkdir %s: %w", filepath.Dir(d.path), err)
		}
		db, err := bolt.Open(d.path, 0o666, &bolt.Options{Timeout: d.openTimeout})
		if err != nil {
			d.mu.Unlock()
			return fmt.Errorf("open file %s: %w", d.path, err)
		}
		d.db = db
	}
	d.mu.Unlock()

	var tables []*Table
	err := d.update(func(tx *bolt.Tx) error {
		root, err := tx.CreateBucketIfNotExists(bucketTables)
		if err != nil {
			return fmt.Errorf("creating bucket %s: %w", bucketTables, err)
		}
		return root.ForEach(func(name, v []byte) error {
			if v != nil {
				return nil
			}
			t, err := d.loadTable(root.Bucket(name), string(name))
			if err != nil {
				return err
			}
			tables = append(tables, t)
			return nil
		})
	})
	if err != nil {
		return err
	}

	d.ClearTables()
	for _, t := range tables {
		d.AddTable(t)
	}
	d.logger.DebugWithContext(ctx, "bolt datasource initialised",
		zap.String("datasource", d.Name()), zap.String("path", d.path), zap.Int("tables", len(tables)))
	return d.InitialiseTables(ctx)
}

// Dispose closes the file.
func (d *Datasource) Dispose(context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.db == nil {
		return nil
	}
	err := d.db.Close()
	d.db = nil
	return err
}

func (d *Datasource) CanDropTable(name string) bool {
	return d.HasValueTable(name)
}

func (d *Datasource) DropTable(ctx context.Context, name string) error {
	if !d.HasValueTable(name) {
		return storage.NoSuchValueTableError(d.Name(), name)
	}
	err := d.update(func(tx *bolt.Tx) error {
		err := tx.Bucket(bucketTables).DeleteBucket([]byte(name))
		if errors.Is(err, bolt.ErrBucketNotFound) {
			return nil
		}
		return err
	})
	if err != nil {
		return fmt.Errorf("drop table '%s': %w", name, err)
	}
	d.RemoveTable(name)
	d.logger.InfoWithContext(ctx, "value table dropped", zap.String("datasource", d.Name()), zap.String("table", name))
	return nil
}

func (d *Datasource) CanDrop() bool {
	return true
}

// Drop closes and deletes the file.
func (d *Datasource) Drop(ctx context.Context) error {
	if err := d.Dispose(ctx); err != nil {
		return err
	}
	d.ClearTables()
	if err := os.Remove(d.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove %s: %w", d.path, err)
	}
	return nil
}

// CreateWriter opens a writer on the table, creating an empty table when missing.
func (d *Datasource) CreateWriter(ctx context.Context, name, entityType string) (storage.ValueTableWriter, error) {
	_, span := tracer.Start(ctx, "bolt.CreateWriter")
	defer span.End()

	if existing, err := d.ValueTable(name); err == nil {
		t := existing.(*Table)
		if !t.IsForEntityType(entityType) {
			return nil, storage.EntityTypeMismatchError(name, t.EntityType(), entityType)
		}
		return &tableWriter{table: t}, nil
	}

	now := d.now().UTC()
	meta := tableMeta{EntityType: entityType, Created: now, Updated: now}
	err := d.update(func(tx *bolt.Tx) error {
		b, err := tx.Bucket(bucketTables).CreateBucketIfNotExists([]byte(name))
		if err != nil {
			return err
		}
		for _, sub := range [][]byte{bucketVariables, bucketEntities, bucketValues} {
			if _, err := b.CreateBucketIfNotExists(sub); err != nil {
				return err
			}
		}
		return putMeta(b, meta)
	})
	if err != nil {
		return nil, fmt.Errorf("create table '%s': %w", name, err)
	}

	t := newTable(d, name, entityType)
	d.AddTable(t)
	return &tableWriter{table: t}, nil
}

type tableMeta struct {
	EntityType string    `json:"entityType"`
	Created    time.Time `json:"created"`
	Updated    time.Time `json:"updated"`
}

func getMeta(b *bolt.Bucket) (tableMeta, error) {
	var meta tableMeta
	data := b.Get(keyMeta)
	if data == nil {
		return meta, storage.RuntimeError("table metadata not found")
	}
	if err := json.Unmarshal(data, &meta); err != nil {
		return meta, storage.RuntimeError("decode table metadata: %v", err)
	}
	return meta, nil
}

func putMeta(b *bolt.Bucket, meta tableMeta) error {
	data, err := json.Marshal(meta)
	if err != nil {
		return err
	}
	return b.Put(keyMeta, data)
}

// touch moves the last update of the table bucket b to now.
func (d *Datasource) touch(b *bolt.Bucket) error {
	meta, err := getMeta(b)
	if err != nil {
		return err
	}
	meta.Updated = d.now().UTC()
	return putMeta(b, meta)
}

func (d *Datasource) loadTable(b *bolt.Bucket, name string) (*Table, error) {
	meta, err := getMeta(b)
	if err != nil {
		return nil, fmt.Errorf("value table '%s': %w", name, err)
	}

	t := newTable(d, name, meta.EntityType)
	vars := b.Bucket(bucketVariables)
	if vars == nil {
		return t, nil
	}
	err = vars.ForEach(func(k, data []byte) error {
		v, err := codec.UnmarshalVariable(data)
		if err != nil {
			return fmt.Errorf("value table '%s': %w", name, err)
		}
		t.keys[v.Name()] = append([]byte(nil), k...)
		t.AddSource(&valueSource{table: t, v: v})
		return nil
	})
	return t, err
}

func sequenceKey(seq uint64) []byte {
	key := make([]byte, 8)
	binary.BigEndian.PutUint64(key, seq)
	return key
}

func writeVariable(b *bolt.Bucket, key []byte, v *variable.Variable) ([]byte, error) {
	vars := b.Bucket(bucketVariables)
	if key == nil {
		seq, err := vars.NextSequence()
		if err != nil {
			return nil, err
		}
		key = sequenceKey(seq)
	}
	data, err := codec.MarshalVariable(v)
	if err != nil {
		return nil, err
	}
	if err := vars.Put(key, data); err != nil {
		return nil, err
	}
	if _, err := b.Bucket(bucketValues).CreateBucketIfNotExists([]byte(v.Name())); err != nil {
		return nil, err
	}
	return key, nil
}
