package sqlcommon

import (
	"context"
	"database/sql"
	"fmt"
	"slices"
	"strings"
	"sync"

	sq "github.com/Masterminds/squirrel"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/datavirt/datavirt/pkg/logger"
	"github.com/datavirt/datavirt/pkg/storage"
	"github.com/datavirt/datavirt/pkg/storage/support"
	"github.com/datavirt/datavirt/pkg/variable"
)

// Datasource provides a relational implementation of [storage.Datasource]. Every SQL
// table mapped by the configuration is exposed as a value table.
type Datasource struct {
	*support.Datasource

	db               *sql.DB
	stbl             sq.StatementBuilderType
	dialect          Dialect
	cfg              *Config
	logger           logger.Logger
	dbStatsCollector prometheus.Collector

	// schemaMu serialises DDL and metadata writes.
	schemaMu sync.Mutex
}

var _ storage.Datasource = (*Datasource)(nil)

// New creates a datasource over db. The collector, when not nil, is unregistered by
// Dispose.
func New(name string, db *sql.DB, dialect Dialect, cfg *Config, collector prometheus.Collector) *Datasource {
	if cfg == nil {
		cfg = NewConfig()
	}
	ds := &Datasource{
		db:               db,
		stbl:             sq.StatementBuilder.PlaceholderFormat(dialect.Placeholder()).RunWith(db),
		dialect:          dialect,
		cfg:              cfg,
		logger:           cfg.Logger,
		dbStatsCollector: collector,
	}
	ds.Datasource = support.NewDatasource(name, dialect.Name(), cfg.Logger)
	ds.MaxConcurrentRefresh = cfg.MaxConcurrentRefresh
	return ds
}

// DB returns the database the datasource reads.
func (d *Datasource) DB() *sql.DB {
	return d.db
}

// Initialise maps the SQL tables and loads their entity sets.
func (d *Datasource) Initialise(ctx context.Context) error {
	ctx, span := startTrace(ctx, "Initialise")
	defer span.End()

	settings, err := d.tableSettings(ctx)
	if err != nil {
		return err
	}

	d.ClearTables()
	for _, s := range settings {
		t, err := d.openTable(ctx, s)
		if err != nil {
			return err
		}
		d.AddTable(t)
	}
	return d.InitialiseTables(ctx)
}

// Dispose closes the database.
func (d *Datasource) Dispose(context.Context) error {
	if d.dbStatsCollector != nil {
		prometheus.Unregister(d.dbStatsCollector)
	}
	return d.db.Close()
}

func (d *Datasource) CanDropTable(name string) bool {
	return d.HasValueTable(name)
}

func (d *Datasource) DropTable(ctx context.Context, name string) error {
	ctx, span := startTrace(ctx, "DropTable")
	defer span.End()

	vt, err := d.ValueTable(name)
	if err != nil {
		return err
	}
	t := vt.(*Table)

	d.schemaMu.Lock()
	defer d.schemaMu.Unlock()

	err = d.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, "DROP TABLE "+d.dialect.Quote(t.settings.SQLTableName)); err != nil {
			return d.dialect.HandleSQLError(err)
		}
		if d.cfg.UseMetadataTables {
			return d.deleteTableMetadata(ctx, tx, name)
		}
		return nil
	})
	if err != nil {
		return err
	}

	d.RemoveTable(name)
	d.logger.InfoWithContext(ctx, "value table dropped", zap.String("datasource", d.Name()), zap.String("table", name))
	return nil
}

func (d *Datasource) CanDrop() bool {
	return true
}

// Drop drops every mapped table.
func (d *Datasource) Drop(ctx context.Context) error {
	for _, name := range d.ValueTableNames() {
		if err := d.DropTable(ctx, name); err != nil {
			return err
		}
	}
	return nil
}

// CreateWriter opens a writer on the table. A missing table is created with a single
// identifier column and the configured timestamp columns.
func (d *Datasource) CreateWriter(ctx context.Context, name, entityType string) (storage.ValueTableWriter, error) {
	ctx, span := startTrace(ctx, "CreateWriter")
	defer span.End()

	if vt, err := d.ValueTable(name); err == nil {
		t := vt.(*Table)
		if !t.IsForEntityType(entityType) {
			return nil, storage.EntityTypeMismatchError(name, t.EntityType(), entityType)
		}
		if len(t.settings.EntityIdentifierColumns) != 1 {
			return nil, fmt.Errorf("write to value table '%s' with a composite identifier: %w", name, storage.ErrUnsupported)
		}
		return &tableWriter{table: t}, nil
	}

	t, err := d.createTable(ctx, name, entityType)
	if err != nil {
		return nil, err
	}
	return &tableWriter{table: t}, nil
}

func (d *Datasource) createTable(ctx context.Context, name, entityType string) (*Table, error) {
	d.schemaMu.Lock()
	defer d.schemaMu.Unlock()

	s := TableSettings{
		SQLTableName:            columnName(name),
		TableName:               name,
		EntityType:              entityType,
		EntityIdentifierColumns: []string{EntityIDColumn},
		CreatedColumn:           d.cfg.CreatedColumn,
		UpdatedColumn:           d.cfg.UpdatedColumn,
	}

	q := d.dialect.Quote
	ddl := fmt.Sprintf("CREATE TABLE %s (%s %s NOT NULL PRIMARY KEY, %s %s NOT NULL, %s %s NOT NULL)",
		q(s.SQLTableName),
		q(EntityIDColumn), d.dialect.IdentifierType(),
		q(s.CreatedColumn), d.dialect.TimestampType(),
		q(s.UpdatedColumn), d.dialect.TimestampType())

	err := d.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, ddl); err != nil {
			return d.dialect.HandleSQLError(err, s.SQLTableName)
		}
		if d.cfg.UseMetadataTables {
			return d.insertTableMetadata(ctx, tx, s)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	t := newTable(d, s)
	d.AddTable(t)
	if !d.cfg.UseMetadataTables {
		d.cfg.Tables = append(d.cfg.Tables, s)
	}
	d.logger.InfoWithContext(ctx, "value table created", zap.String("datasource", d.Name()), zap.String("table", name))
	return t, nil
}

func (d *Datasource) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	return d.dialect.Retry(func() error {
		tx, err := d.db.BeginTx(ctx, nil)
		if err != nil {
			return d.dialect.HandleSQLError(err)
		}
		defer func() {
			_ = tx.Rollback()
		}()

		if err := fn(tx); err != nil {
			return err
		}
		if err := tx.Commit(); err != nil {
			return d.dialect.HandleSQLError(err)
		}
		return nil
	})
}

// reserved reports whether table belongs to the datasource bookkeeping.
func (d *Datasource) reserved(table string) bool {
	return slices.Contains(metadataTables, table) || table == "goose_db_version" || strings.HasPrefix(table, "sqlite_")
}

// tableSettings resolves the tables to map, from the metadata tables or the catalog.
func (d *Datasource) tableSettings(ctx context.Context) ([]TableSettings, error) {
	explicit := map[string]TableSettings{}
	d.schemaMu.Lock()
	for _, s := range d.cfg.Tables {
		explicit[s.SQLTableName] = s
	}
	d.schemaMu.Unlock()

	existing, err := d.dialect.ListTables(ctx, d.db)
	if err != nil {
		return nil, d.dialect.HandleSQLError(err)
	}

	var out []TableSettings
	if d.cfg.UseMetadataTables {
		if err := d.checkMetadataTables(existing); err != nil {
			return nil, err
		}
		stored, err := d.readTableSettings(ctx)
		if err != nil {
			return nil, err
		}
		for _, s := range stored {
			if e, ok := explicit[s.SQLTableName]; ok {
				s = e
				delete(explicit, s.SQLTableName)
			}
			out = append(out, s)
		}
	} else {
		for _, name := range existing {
			if d.reserved(name) {
				continue
			}
			if len(d.cfg.MappedTables) > 0 && !slices.Contains(d.cfg.MappedTables, name) {
				if _, ok := explicit[name]; !ok {
					continue
				}
			}
			s, ok := explicit[name]
			if !ok {
				s = TableSettings{SQLTableName: name}
			}
			delete(explicit, name)
			out = append(out, s)
		}
	}

	for name := range explicit {
		if !slices.Contains(existing, name) {
			d.logger.WarnWithContext(ctx, "mapped table not found", zap.String("datasource", d.Name()), zap.String("sql_table", name))
			continue
		}
		out = append(out, explicit[name])
	}
	return out, nil
}

// openTable reads the columns of the SQL table and builds its value table.
func (d *Datasource) openTable(ctx context.Context, s TableSettings) (*Table, error) {
	columns, err := d.columns(ctx, s.SQLTableName)
	if err != nil {
		return nil, err
	}
	has := func(name string) bool {
		return slices.ContainsFunc(columns, func(c *sql.ColumnType) bool { return strings.EqualFold(c.Name(), name) })
	}

	if s.EntityType == "" {
		s.EntityType = d.cfg.DefaultEntityType
	}
	if len(s.EntityIdentifierColumns) == 0 {
		pk, err := d.dialect.PrimaryKey(ctx, d.db, s.SQLTableName)
		if err != nil {
			return nil, d.dialect.HandleSQLError(err)
		}
		if len(pk) == 0 && has(EntityIDColumn) {
			pk = []string{EntityIDColumn}
		}
		if len(pk) == 0 {
			return nil, storage.RuntimeError("table '%s' has no entity identifier columns", s.SQLTableName)
		}
		s.EntityIdentifierColumns = pk
	}
	if !s.hasTimestamps() && has(d.cfg.CreatedColumn) && has(d.cfg.UpdatedColumn) {
		s.CreatedColumn, s.UpdatedColumn = d.cfg.CreatedColumn, d.cfg.UpdatedColumn
	}

	t := newTable(d, s)

	if d.cfg.UseMetadataTables {
		vars, err := d.readVariables(ctx, s.name(), s.EntityType)
		if err != nil {
			return nil, err
		}
		for _, v := range vars {
			t.AddSource(t.source(v.variable, v.column))
		}
		return t, nil
	}

	for _, c := range columns {
		name := c.Name()
		if slices.ContainsFunc(s.EntityIdentifierColumns, func(id string) bool { return strings.EqualFold(id, name) }) ||
			strings.EqualFold(name, s.CreatedColumn) || strings.EqualFold(name, s.UpdatedColumn) {
			continue
		}
		v, err := variable.NewBuilder(name, ValueTypeForColumn(c.DatabaseTypeName()), s.EntityType).Build()
		if err != nil {
			return nil, err
		}
		t.AddSource(t.source(v, name))
	}
	return t, nil
}

func (d *Datasource) columns(ctx context.Context, table string) ([]*sql.ColumnType, error) {
	rows, err := d.db.QueryContext(ctx, "SELECT * FROM "+d.dialect.Quote(table)+" WHERE 1 = 0")
	if err != nil {
		return nil, d.dialect.HandleSQLError(err, table)
	}
	defer rows.Close()

	columns, err := rows.ColumnTypes()
	if err != nil {
		return nil, d.dialect.HandleSQLError(err, table)
	}
	return columns, nil
}
