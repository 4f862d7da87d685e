// Package sqlite provides the SQLite dialect of the relational datasource.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"slices"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/datavirt/datavirt/pkg/storage"
	"github.com/datavirt/datavirt/pkg/storage/sqlcommon"
	"github.com/datavirt/datavirt/pkg/value"
)

// Engine is the engine name of the dialect.
const Engine = "sqlite"

// defaultPragmas are added to a DSN setting none of the same name. WAL lets vector
// cursors read while a writer commits.
var defaultPragmas = []struct{ name, value string }{
	{"journal_mode", "journal_mode(WAL)"},
	{"busy_timeout", "busy_timeout(100)"},
}

// PrepareDSN adds the default pragmas, the immediate transaction lock and the SQLite
// time format to uri unless it sets them already.
func PrepareDSN(uri string) (string, error) {
	base, rawQuery, _ := strings.Cut(uri, "?")
	query, err := url.ParseQuery(rawQuery)
	if err != nil {
		return uri, fmt.Errorf("parse sqlite dsn: %w", err)
	}

	for _, p := range defaultPragmas {
		set := slices.ContainsFunc(query["_pragma"], func(v string) bool {
			return strings.HasPrefix(v, p.name)
		})
		if !set {
			query.Add("_pragma", p.value)
		}
	}
	if !query.Has("_txlock") {
		query.Set("_txlock", "immediate")
	}
	// Times are written as "2006-01-02 15:04:05.999999999-07:00", which SQLite date
	// functions read and which sorts chronologically in UTC.
	if !query.Has("_time_format") {
		query.Set("_time_format", "sqlite")
	}
	return base + "?" + query.Encode(), nil
}

// Open opens the database at uri with the pool settings of cfg.
func Open(uri string, cfg *sqlcommon.Config) (*sql.DB, error) {
	uri, err := PrepareDSN(uri)
	if err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", uri)
	if err != nil {
		return nil, fmt.Errorf("initialize sqlite connection: %w", err)
	}
	sqlcommon.ConfigurePool(db, cfg)
	return db, nil
}

// New creates a datasource named name over the SQLite database at uri.
func New(name, uri string, cfg *sqlcommon.Config) (*sqlcommon.Datasource, error) {
	if cfg == nil {
		cfg = sqlcommon.NewConfig()
	}

	db, err := Open(uri, cfg)
	if err != nil {
		return nil, err
	}

	collector, err := sqlcommon.ConfigureDB(context.Background(), db, cfg, 10*time.Second)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("configure db: %w", err)
	}

	return sqlcommon.New(name, db, Dialect{}, cfg, collector), nil
}

// Dialect is the SQLite [sqlcommon.Dialect].
type Dialect struct{}

var _ sqlcommon.Dialect = Dialect{}

func (Dialect) Name() string { return Engine }

func (Dialect) Placeholder() sq.PlaceholderFormat { return sq.Question }

func (Dialect) Quote(ident string) string { return sqlcommon.QuoteDouble(ident) }

func (Dialect) ListTables(ctx context.Context, db *sql.DB) ([]string, error) {
	return sqlcommon.QueryStrings(ctx, db, "SELECT name FROM sqlite_master WHERE type = 'table' ORDER BY name")
}

func (Dialect) PrimaryKey(ctx context.Context, db *sql.DB, table string) ([]string, error) {
	rows, err := db.QueryContext(ctx, "SELECT name, pk FROM pragma_table_info(?) WHERE pk > 0", table)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	type keyColumn struct {
		name string
		pos  int
	}
	var keys []keyColumn
	for rows.Next() {
		var k keyColumn
		if err := rows.Scan(&k.name, &k.pos); err != nil {
			return nil, err
		}
		keys = append(keys, k)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	slices.SortFunc(keys, func(a, b keyColumn) int { return a.pos - b.pos })
	columns := make([]string, len(keys))
	for i, k := range keys {
		columns[i] = k.name
	}
	return columns, nil
}

func (Dialect) IdentifierExpr(columns []string) string {
	parts := make([]string, len(columns))
	for i, c := range columns {
		parts[i] = "CAST(" + c + " AS TEXT)"
	}
	return strings.Join(parts, " || '-' || ")
}

// OrderByIdentifier relies on the BINARY collation of text expressions.
func (Dialect) OrderByIdentifier(expr string) string { return expr }

func (Dialect) ColumnType(t *value.Type, repeatable bool) string {
	if repeatable {
		return "TEXT"
	}
	switch t {
	case value.Integer:
		return "INTEGER"
	case value.Decimal:
		return "REAL"
	case value.Boolean:
		return "BOOLEAN"
	case value.Date:
		return "DATE"
	case value.DateTime:
		return "DATETIME"
	case value.Binary:
		return "BLOB"
	}
	return "TEXT"
}

func (Dialect) IdentifierType() string { return "TEXT" }

func (Dialect) TimestampType() string { return "DATETIME" }

func (Dialect) HandleSQLError(err error, args ...interface{}) error {
	return HandleSQLError(err, args...)
}

func (Dialect) Retry(fn func() error) error { return busyRetry(fn) }

// HandleSQLError processes an SQL error and converts it into a more
// specific error type based on the nature of the SQL error.
func HandleSQLError(err error, args ...interface{}) error {
	if errors.Is(err, sql.ErrNoRows) {
		return storage.ErrNotFound
	}

	var sqliteErr *sqlite.Error
	if errors.As(err, &sqliteErr) {
		if sqliteErr.Code()&0xFF == sqlite3.SQLITE_CONSTRAINT {
			if len(args) > 0 {
				return fmt.Errorf("%v: %w", args[0], storage.ErrCollision)
			}
			return storage.ErrCollision
		}
	}

	return fmt.Errorf("sql error: %w", err)
}

// SQLite will return an SQLITE_BUSY error when the database is locked rather than waiting for the lock.
// This function retries the operation up to maxRetries times before returning the error.
func busyRetry(fn func() error) error {
	const maxRetries = 10
	for retries := 0; ; retries++ {
		err := fn()
		if err == nil {
			return nil
		}

		if isBusyError(err) {
			if retries < maxRetries {
				continue
			}

			return fmt.Errorf("sqlite busy error after %d retries: %w", maxRetries, err)
		}

		return err
	}
}

var busyErrors = map[int]struct{}{
	sqlite3.SQLITE_BUSY_RECOVERY:      {},
	sqlite3.SQLITE_BUSY_SNAPSHOT:      {},
	sqlite3.SQLITE_BUSY_TIMEOUT:       {},
	sqlite3.SQLITE_BUSY:               {},
	sqlite3.SQLITE_LOCKED_SHAREDCACHE: {},
	sqlite3.SQLITE_LOCKED:             {},
}

func isBusyError(err error) bool {
	var sqliteErr *sqlite.Error
	if !errors.As(err, &sqliteErr) {
		return false
	}

	_, ok := busyErrors[sqliteErr.Code()]
	return ok
}
