package bolt

import (
	"bytes"
	"context"
	"fmt"
	"sync"

	bolt "go.etcd.io/bbolt"

	"github.com/datavirt/datavirt/pkg/entity"
	"github.com/datavirt/datavirt/pkg/storage"
	"github.com/datavirt/datavirt/pkg/storage/support"
	"github.com/datavirt/datavirt/pkg/storage/vector"
	"github.com/datavirt/datavirt/pkg/value"
	"github.com/datavirt/datavirt/pkg/variable"
)

// Table is a value table stored in one bucket of the datasource file.
type Table struct {
	*support.ValueTable
	ds       *Datasource
	entities *support.EntityProvider

	mu   sync.Mutex
	keys map[string][]byte // variable name -> key in the variables bucket, GUARDED_BY(mu)
}

func newTable(ds *Datasource, name, entityType string) *Table {
	t := &Table{ds: ds, keys: map[string][]byte{}}
	t.entities = support.NewEntityProvider(entityType, func(context.Context) ([]string, error) {
		var ids []string
		err := t.view(func(b *bolt.Bucket) error {
			return b.Bucket(bucketEntities).ForEach(func(k, _ []byte) error {
				ids = append(ids, string(k))
				return nil
			})
		})
		return ids, err
	})
	t.ValueTable = support.NewValueTable(ds, name, t.entities)
	t.SetTimestamps(func(context.Context) (storage.Timestamps, error) {
		var meta tableMeta
		err := t.view(func(b *bolt.Bucket) error {
			var err error
			meta, err = getMeta(b)
			return err
		})
		if err != nil {
			return storage.Timestamps{}, err
		}
		return storage.Timestamps{Created: meta.Created, LastUpdate: meta.Updated}, nil
	})
	return t
}

func (t *Table) bucket(tx *bolt.Tx) (*bolt.Bucket, error) {
	b := tx.Bucket(bucketTables).Bucket([]byte(t.Name()))
	if b == nil {
		return nil, storage.NoSuchValueTableError(t.ds.Name(), t.Name())
	}
	return b, nil
}

func (t *Table) view(fn func(b *bolt.Bucket) error) error {
	return t.ds.view(func(tx *bolt.Tx) error {
		b, err := t.bucket(tx)
		if err != nil {
			return err
		}
		return fn(b)
	})
}

func (t *Table) update(fn func(b *bolt.Bucket) error) error {
	return t.ds.update(func(tx *bolt.Tx) error {
		b, err := t.bucket(tx)
		if err != nil {
			return err
		}
		if err := fn(b); err != nil {
			return err
		}
		return t.ds.touch(b)
	})
}

type valueSource struct {
	table *Table
	v     *variable.Variable
}

var (
	_ storage.VariableValueSource = (*valueSource)(nil)
	_ storage.VectorSource        = (*valueSource)(nil)
)

func (s *valueSource) Variable() *variable.Variable { return s.v }

func (s *valueSource) ValueType() *value.Type { return s.v.ValueType() }

func (s *valueSource) parse(data []byte) (value.Value, error) {
	if s.v.IsRepeatable() {
		return s.v.ValueType().ParseSequence(string(data))
	}
	return s.v.ValueType().Parse(string(data))
}

func (s *valueSource) Value(ctx context.Context, vs storage.ValueSet) (value.Value, error) {
	_, span := tracer.Start(ctx, "bolt.Value")
	defer span.End()

	var data []byte
	err := s.table.view(func(b *bolt.Bucket) error {
		if values := b.Bucket(bucketValues).Bucket([]byte(s.v.Name())); values != nil {
			if v := values.Get([]byte(vs.Entity.Identifier)); v != nil {
				data = bytes.Clone(v)
			}
		}
		return nil
	})
	if err != nil {
		return value.Value{}, err
	}
	if data == nil {
		return s.v.NullValue(), nil
	}
	return s.parse(data)
}

func (s *valueSource) VectorSource() storage.VectorSource { return s }

// Values streams the stored values in pages, each read in its own transaction so that
// writers are never blocked by a slow consumer.
func (s *valueSource) Values(_ context.Context, entities []entity.Entity) (storage.ValueIterator, error) {
	return vector.Stream(entities, s.v.NullValue(), func(ctx context.Context) (vector.Cursor, error) {
		c := &pageCursor{src: s, size: s.table.ds.pageSize}
		if len(entities) > 0 {
			c.from = []byte(entities[0].Identifier)
		}
		return c, nil
	}), nil
}

// pageCursor iterates the values bucket of one variable in key order.
type pageCursor struct {
	src  *valueSource
	size int
	from []byte // first key of the next page, inclusive
	last []byte // last key read, excluded from the next page
	page []vector.Row
	pos  int
	done bool
}

var _ vector.Cursor = (*pageCursor)(nil)

func (c *pageCursor) Next(ctx context.Context) (vector.Row, error) {
	if err := ctx.Err(); err != nil {
		return vector.Row{}, err
	}
	if c.pos >= len(c.page) {
		if c.done {
			return vector.Row{}, storage.ErrIteratorDone
		}
		if err := c.fetch(ctx); err != nil {
			return vector.Row{}, err
		}
		if len(c.page) == 0 {
			c.done = true
			return vector.Row{}, storage.ErrIteratorDone
		}
	}
	row := c.page[c.pos]
	c.pos++
	return row, nil
}

func (c *pageCursor) fetch(ctx context.Context) error {
	_, span := tracer.Start(ctx, "bolt.Values")
	defer span.End()

	type raw struct{ k, v []byte }
	var rows []raw
	err := c.src.table.view(func(b *bolt.Bucket) error {
		values := b.Bucket(bucketValues).Bucket([]byte(c.src.v.Name()))
		if values == nil {
			return nil
		}
		cur := values.Cursor()
		var k, v []byte
		switch {
		case c.last != nil:
			k, v = cur.Seek(c.last)
			if k != nil && bytes.Equal(k, c.last) {
				k, v = cur.Next()
			}
		case c.from != nil:
			k, v = cur.Seek(c.from)
		default:
			k, v = cur.First()
		}
		for ; k != nil && len(rows) < c.size; k, v = cur.Next() {
			rows = append(rows, raw{k: bytes.Clone(k), v: bytes.Clone(v)})
		}
		return nil
	})
	if err != nil {
		return err
	}

	c.page, c.pos = c.page[:0], 0
	for _, r := range rows {
		val, err := c.src.parse(r.v)
		if err != nil {
			return fmt.Errorf("value of '%s' for '%s': %w", c.src.v.Name(), r.k, err)
		}
		c.page = append(c.page, vector.Row{Identifier: string(r.k), Value: val})
	}
	if len(rows) > 0 {
		c.last = rows[len(rows)-1].k
	}
	c.done = len(rows) < c.size
	return nil
}

func (c *pageCursor) Stop() {
	c.page = nil
	c.done = true
}
