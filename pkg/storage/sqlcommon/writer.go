package sqlcommon

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	sq "github.com/Masterminds/squirrel"

	"github.com/datavirt/datavirt/pkg/entity"
	"github.com/datavirt/datavirt/pkg/storage"
	"github.com/datavirt/datavirt/pkg/value"
	"github.com/datavirt/datavirt/pkg/variable"
)

type tableWriter struct {
	table *Table
}

var _ storage.ValueTableWriter = (*tableWriter)(nil)

// WriteVariable adds the column of v, or replaces the metadata of an existing one.
func (w *tableWriter) WriteVariable(ctx context.Context, v *variable.Variable) error {
	ctx, span := startTrace(ctx, "WriteVariable")
	defer span.End()

	t := w.table
	if !t.IsForEntityType(v.EntityType()) {
		return storage.EntityTypeMismatchError(t.Name(), t.EntityType(), v.EntityType())
	}

	ds := t.ds
	ds.schemaMu.Lock()
	defer ds.schemaMu.Unlock()

	column, exists := t.columnOf(v.Name())
	if exists {
		current, _ := t.Variable(v.Name())
		if current.ValueType() != v.ValueType() || current.IsRepeatable() != v.IsRepeatable() {
			return fmt.Errorf("variable '%s' of value table '%s' cannot change its value type: %w",
				v.Name(), t.Name(), storage.ErrInvalidArgument)
		}
	} else {
		column = columnName(v.Name())
	}

	err := ds.inTx(ctx, func(tx *sql.Tx) error {
		if !exists {
			ddl := fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s %s",
				t.quotedTable(), ds.dialect.Quote(column), ds.dialect.ColumnType(v.ValueType(), v.IsRepeatable()))
			if _, err := tx.ExecContext(ctx, ddl); err != nil {
				return ds.dialect.HandleSQLError(err, column)
			}
		}
		if ds.cfg.UseMetadataTables {
			return ds.writeVariableMetadata(ctx, tx, t.Name(), v, column)
		}
		return nil
	})
	if err != nil {
		return err
	}

	t.AddSource(t.source(v, column))
	return nil
}

// RemoveVariable drops the column of the variable.
func (w *tableWriter) RemoveVariable(ctx context.Context, name string) error {
	ctx, span := startTrace(ctx, "RemoveVariable")
	defer span.End()

	t := w.table
	ds := t.ds
	ds.schemaMu.Lock()
	defer ds.schemaMu.Unlock()

	column, ok := t.columnOf(name)
	if !ok {
		return storage.NoSuchVariableError(t.Name(), name)
	}

	err := ds.inTx(ctx, func(tx *sql.Tx) error {
		ddl := fmt.Sprintf("ALTER TABLE %s DROP COLUMN %s", t.quotedTable(), ds.dialect.Quote(column))
		if _, err := tx.ExecContext(ctx, ddl); err != nil {
			return ds.dialect.HandleSQLError(err, column)
		}
		if ds.cfg.UseMetadataTables {
			return ds.deleteVariableMetadata(ctx, tx, t.Name(), name)
		}
		return nil
	})
	if err != nil {
		return err
	}

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

func (w *valueSetWriter) idColumn() string {
	return w.table.ds.dialect.Quote(w.table.settings.EntityIdentifierColumns[0])
}

// Remove deletes the row of the entity.
func (w *valueSetWriter) Remove(ctx context.Context) error {
	ctx, span := startTrace(ctx, "RemoveValueSet")
	defer span.End()

	t := w.table
	err := t.ds.dialect.Retry(func() error {
		_, err := t.ds.stbl.Delete(t.quotedTable()).
			Where(sq.Eq{w.idColumn(): w.entity.Identifier}).
			ExecContext(ctx)
		if err != nil {
			return t.ds.dialect.HandleSQLError(err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	t.entities.Remove(w.entity)
	w.removed = true
	w.pending = map[string]value.Value{}
	w.order = nil
	return nil
}

// Close inserts or updates the row of the entity and makes it visible.
func (w *valueSetWriter) Close(ctx context.Context) error {
	if w.removed {
		return nil
	}

	ctx, span := startTrace(ctx, "WriteValueSet")
	defer span.End()

	t := w.table
	ds := t.ds
	q := ds.dialect.Quote

	var (
		columns []string
		args    []any
	)
	for _, name := range w.order {
		column, ok := t.columnOf(name)
		if !ok {
			continue
		}
		arg, err := encodeValue(w.pending[name])
		if err != nil {
			return err
		}
		columns = append(columns, q(column))
		args = append(args, arg)
	}

	now := ds.cfg.Now().UTC()
	err := ds.inTx(ctx, func(tx *sql.Tx) error {
		stbl := ds.stbl.RunWith(tx)

		var one int
		err := stbl.Select("1").
			From(t.quotedTable()).
			Where(sq.Eq{w.idColumn(): w.entity.Identifier}).
			QueryRowContext(ctx).
			Scan(&one)
		switch {
		case errors.Is(err, sql.ErrNoRows):
			cols := append([]string{w.idColumn()}, columns...)
			vals := append([]any{w.entity.Identifier}, args...)
			if t.settings.hasTimestamps() {
				cols = append(cols, q(t.settings.CreatedColumn), q(t.settings.UpdatedColumn))
				vals = append(vals, now, now)
			}
			_, err = stbl.Insert(t.quotedTable()).Columns(cols...).Values(vals...).ExecContext(ctx)
		case err != nil:
			return ds.dialect.HandleSQLError(err)
		default:
			ub := stbl.Update(t.quotedTable()).Where(sq.Eq{w.idColumn(): w.entity.Identifier})
			for i, c := range columns {
				ub = ub.Set(c, args[i])
			}
			if t.settings.hasTimestamps() {
				ub = ub.Set(q(t.settings.UpdatedColumn), now)
			} else if len(columns) == 0 {
				return nil
			}
			_, err = ub.ExecContext(ctx)
		}
		if err != nil {
			return ds.dialect.HandleSQLError(err, w.entity)
		}
		return nil
	})
	if err != nil {
		return err
	}

	t.entities.Add(w.entity)
	return nil
}
