package bolt

import (
	"context"
	"fmt"

	bolt "go.etcd.io/bbolt"

	"github.com/datavirt/datavirt/pkg/entity"
	"github.com/datavirt/datavirt/pkg/storage"
	"github.com/datavirt/datavirt/pkg/value"
	"github.com/datavirt/datavirt/pkg/variable"
)

type tableWriter struct {
	table *Table
}

var _ storage.ValueTableWriter = (*tableWriter)(nil)

func (w *tableWriter) WriteVariable(ctx context.Context, v *variable.Variable) error {
	_, span := tracer.Start(ctx, "bolt.WriteVariable")
	defer span.End()

	t := w.table
	if !t.IsForEntityType(v.EntityType()) {
		return storage.EntityTypeMismatchError(t.Name(), t.EntityType(), v.EntityType())
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	key := t.keys[v.Name()]
	if key != nil {
		current, err := t.Variable(v.Name())
		if err == nil && (current.ValueType() != v.ValueType() || current.IsRepeatable() != v.IsRepeatable()) {
			return fmt.Errorf("variable '%s' of value table '%s' cannot change its value type: %w",
				v.Name(), t.Name(), storage.ErrInvalidArgument)
		}
	}

	err := t.update(func(b *bolt.Bucket) error {
		var err error
		key, err = writeVariable(b, key, v)
		return err
	})
	if err != nil {
		return fmt.Errorf("write variable '%s': %w", v.Name(), err)
	}
	t.keys[v.Name()] = key
	t.AddSource(&valueSource{table: t, v: v})
	return nil
}

func (w *tableWriter) RemoveVariable(ctx context.Context, name string) error {
	_, span := tracer.Start(ctx, "bolt.RemoveVariable")
	defer span.End()

	t := w.table
	t.mu.Lock()
	defer t.mu.Unlock()

	key, ok := t.keys[name]
	if !ok {
		return storage.NoSuchVariableError(t.Name(), name)
	}
	err := t.update(func(b *bolt.Bucket) error {
		if err := b.Bucket(bucketVariables).Delete(key); err != nil {
			return err
		}
		if b.Bucket(bucketValues).Bucket([]byte(name)) == nil {
			return nil
		}
		return b.Bucket(bucketValues).DeleteBucket([]byte(name))
	})
	if err != nil {
		return fmt.Errorf("remove variable '%s': %w", name, err)
	}
	delete(t.keys, name)
	t.RemoveSource(name)
	return nil
}

func (w *tableWriter) WriteValueSet(_ context.Context, e entity.Entity) (storage.ValueSetWriter, error) {
	if !w.table.IsForEntityType(e.Type) {
		return nil, storage.EntityTypeMismatchError(w.table.Name(), w.table.EntityType(), e.Type)
	}
	return &valueSetWriter{table: w.table, entity: e, pending: map[string]value.Value{}}, nil
}

func (w *tableWriter) Close(context.Context) error {
	return nil
}

type valueSetWriter struct {
	table   *Table
	entity  entity.Entity
	order   []string
	pending map[string]value.Value
	removed bool
}

var _ storage.ValueSetWriter = (*valueSetWriter)(nil)

func (w *valueSetWriter) WriteValue(_ context.Context, v *variable.Variable, val value.Value) error {
	if err := storage.CheckValue(w.table, v, val); err != nil {
		return err
	}
	if _, ok := w.pending[v.Name()]; !ok {
		w.order = append(w.order, v.Name())
	}
	w.pending[v.Name()] = val
	return nil
}

func (w *valueSetWriter) Remove(ctx context.Context) error {
	_, span := tracer.Start(ctx, "bolt.RemoveValueSet")
	defer span.End()

	id := []byte(w.entity.Identifier)
	err := w.table.update(func(b *bolt.Bucket) error {
		if err := b.Bucket(bucketEntities).Delete(id); err != nil {
			return err
		}
		return b.Bucket(bucketValues).ForEach(func(name, v []byte) error {
			if v != nil {
				return nil
			}
			return b.Bucket(bucketValues).Bucket(name).Delete(id)
		})
	})
	if err != nil {
		return fmt.Errorf("remove value set '%s': %w", w.entity, err)
	}

	w.table.entities.Remove(w.entity)
	w.removed = true
	w.pending = map[string]value.Value{}
	w.order = nil
	return nil
}

// Close stores the pending values and the entity in one transaction.
func (w *valueSetWriter) Close(ctx context.Context) error {
	if w.removed {
		return nil
	}
	_, span := tracer.Start(ctx, "bolt.WriteValueSet")
	defer span.End()

	id := []byte(w.entity.Identifier)
	err := w.table.update(func(b *bolt.Bucket) error {
		values := b.Bucket(bucketValues)
		for _, name := range w.order {
			vb := values.Bucket([]byte(name))
			if vb == nil {
				continue
			}
			val := w.pending[name]
			var err error
			if val.IsNull() {
				err = vb.Delete(id)
			} else {
				err = vb.Put(id, []byte(val.String()))
			}
			if err != nil {
				return err
			}
		}
		return b.Bucket(bucketEntities).Put(id, []byte{})
	})
	if err != nil {
		return fmt.Errorf("write value set '%s': %w", w.entity, err)
	}

	w.table.entities.Add(w.entity)
	return nil
}
