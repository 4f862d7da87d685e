package sqlcommon

import (
	"context"
	"database/sql"
	"errors"
	"time"

	sq "github.com/Masterminds/squirrel"

	"github.com/datavirt/datavirt/pkg/entity"
	"github.com/datavirt/datavirt/pkg/storage"
	"github.com/datavirt/datavirt/pkg/storage/support"
	"github.com/datavirt/datavirt/pkg/storage/vector"
	"github.com/datavirt/datavirt/pkg/value"
	"github.com/datavirt/datavirt/pkg/variable"
)

// Table is a value table over one SQL table. Each variable is one column; each row is
// the value set of the entity its identifier columns name.
type Table struct {
	*support.ValueTable
	ds       *Datasource
	settings TableSettings
	entities *support.EntityProvider
	idExpr   string
}

func newTable(ds *Datasource, s TableSettings) *Table {
	quoted := make([]string, len(s.EntityIdentifierColumns))
	for i, c := range s.EntityIdentifierColumns {
		quoted[i] = ds.dialect.Quote(c)
	}

	t := &Table{
		ds:       ds,
		settings: s,
		idExpr:   ds.dialect.IdentifierExpr(quoted),
	}
	t.entities = support.NewEntityProvider(s.EntityType, t.loadEntities)
	t.ValueTable = support.NewValueTable(ds, s.name(), t.entities)
	t.SetTimestamps(t.timestamps)
	return t
}

// Settings returns the mapping of the table.
func (t *Table) Settings() TableSettings {
	return t.settings
}

func (t *Table) quotedTable() string {
	return t.ds.dialect.Quote(t.settings.SQLTableName)
}

func (t *Table) loadEntities(ctx context.Context) ([]string, error) {
	ctx, span := startTrace(ctx, "loadEntities")
	defer span.End()

	rows, err := t.ds.stbl.Select(t.idExpr).From(t.quotedTable()).QueryContext(ctx)
	if err != nil {
		return nil, t.ds.dialect.HandleSQLError(err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id sql.NullString
		if err := rows.Scan(&id); err != nil {
			return nil, t.ds.dialect.HandleSQLError(err)
		}
		if id.Valid {
			ids = append(ids, id.String)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, t.ds.dialect.HandleSQLError(err)
	}
	return ids, nil
}

// timestamps reads the oldest creation and the latest update of the rows.
func (t *Table) timestamps(ctx context.Context) (storage.Timestamps, error) {
	if !t.settings.hasTimestamps() {
		return storage.UnknownTimestamps(), nil
	}

	ctx, span := startTrace(ctx, "Timestamps")
	defer span.End()

	q := t.ds.dialect.Quote
	var created, updated any
	err := t.ds.stbl.
		Select("MIN("+q(t.settings.CreatedColumn)+")", "MAX("+q(t.settings.UpdatedColumn)+")").
		From(t.quotedTable()).
		QueryRowContext(ctx).
		Scan(&created, &updated)
	if err != nil {
		return storage.Timestamps{}, t.ds.dialect.HandleSQLError(err)
	}
	if created == nil || updated == nil {
		return storage.UnknownTimestamps(), nil
	}

	c, err := decodeValue(value.DateTime, false, created)
	if err != nil {
		return storage.Timestamps{}, err
	}
	u, err := decodeValue(value.DateTime, false, updated)
	if err != nil {
		return storage.Timestamps{}, err
	}
	cn, _ := c.Native()
	un, _ := u.Native()
	ts := storage.Timestamps{}
	ts.Created, _ = cn.(time.Time)
	ts.LastUpdate, _ = un.(time.Time)
	return ts, nil
}

func (t *Table) source(v *variable.Variable, column string) *valueSource {
	return &valueSource{table: t, v: v, column: column}
}

func (t *Table) columnOf(name string) (string, bool) {
	src, err := t.VariableValueSource(name)
	if err != nil {
		return "", false
	}
	return src.(*valueSource).column, true
}

// valueSource reads one column.
type valueSource struct {
	table  *Table
	v      *variable.Variable
	column string
}

var (
	_ storage.VariableValueSource = (*valueSource)(nil)
	_ storage.VectorSource        = (*valueSource)(nil)
)

func (s *valueSource) Variable() *variable.Variable { return s.v }

func (s *valueSource) ValueType() *value.Type { return s.v.ValueType() }

func (s *valueSource) VectorSource() storage.VectorSource { return s }

func (s *valueSource) Value(ctx context.Context, vs storage.ValueSet) (value.Value, error) {
	ctx, span := startTrace(ctx, "Value")
	defer span.End()

	t := s.table
	var raw any
	err := t.ds.stbl.
		Select(t.ds.dialect.Quote(s.column)).
		From(t.quotedTable()).
		Where(sq.Expr(t.idExpr+" = ?", vs.Entity.Identifier)).
		QueryRowContext(ctx).
		Scan(&raw)
	if err != nil {
		err = t.ds.dialect.HandleSQLError(err)
		if errors.Is(err, storage.ErrNotFound) {
			return s.v.NullValue(), nil
		}
		return value.Value{}, err
	}
	return decodeValue(s.v.ValueType(), s.v.IsRepeatable(), raw)
}

// Values streams the column ordered by identifier and merges it with entities.
func (s *valueSource) Values(_ context.Context, entities []entity.Entity) (storage.ValueIterator, error) {
	t := s.table
	sb := t.ds.stbl.
		Select(t.idExpr, t.ds.dialect.Quote(s.column)).
		From(t.quotedTable()).
		OrderBy(t.ds.dialect.OrderByIdentifier(t.idExpr))

	decode := func(raw any) (vector.Row, error) {
		v, err := decodeValue(s.v.ValueType(), s.v.IsRepeatable(), raw)
		if err != nil {
			return vector.Row{}, err
		}
		return vector.Row{Value: v}, nil
	}

	return vector.Stream(entities, s.v.NullValue(), func(ctx context.Context) (vector.Cursor, error) {
		return newRowCursor(sb, t.ds.dialect.HandleSQLError, decode), nil
	}), nil
}
