// Package mysql provides the MySQL dialect of the relational datasource.
package mysql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	sq "github.com/Masterminds/squirrel"
	"github.com/go-sql-driver/mysql"

	"github.com/datavirt/datavirt/pkg/storage"
	"github.com/datavirt/datavirt/pkg/storage/sqlcommon"
	"github.com/datavirt/datavirt/pkg/value"
)

// Engine is the engine name of the dialect.
const Engine = "mysql"

const duplicateEntry = 1062

// PrepareDSN applies the credentials of cfg to uri and enables the parsing of date and
// time columns into time.Time.
func PrepareDSN(uri string, cfg *sqlcommon.Config) (string, error) {
	dsnCfg, err := mysql.ParseDSN(uri)
	if err != nil {
		return "", fmt.Errorf("failed to parse mysql connection dsn: %w", err)
	}

	if cfg.Username != "" {
		dsnCfg.User = cfg.Username
	}
	if cfg.Password != "" {
		dsnCfg.Passwd = cfg.Password
	}
	dsnCfg.ParseTime = true

	return dsnCfg.FormatDSN(), nil
}

// Open opens the database at uri.
func Open(uri string, cfg *sqlcommon.Config) (*sql.DB, error) {
	uri, err := PrepareDSN(uri, cfg)
	if err != nil {
		return nil, err
	}

	db, err := sql.Open("mysql", uri)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize mysql connection: %w", err)
	}
	sqlcommon.ConfigurePool(db, cfg)
	return db, nil
}

// New creates a datasource named name over the MySQL database at uri.
func New(name, uri string, cfg *sqlcommon.Config) (*sqlcommon.Datasource, error) {
	if cfg == nil {
		cfg = sqlcommon.NewConfig()
	}

	db, err := Open(uri, cfg)
	if err != nil {
		return nil, err
	}

	collector, err := sqlcommon.ConfigureDB(context.Background(), db, cfg, sqlcommon.DefaultConnectTimeout)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize mysql connection: %w", err)
	}

	return sqlcommon.New(name, db, Dialect{}, cfg, collector), nil
}

// Dialect is the MySQL [sqlcommon.Dialect].
type Dialect struct{}

var _ sqlcommon.Dialect = Dialect{}

func (Dialect) Name() string { return Engine }

func (Dialect) Placeholder() sq.PlaceholderFormat { return sq.Question }

func (Dialect) Quote(ident string) string { return sqlcommon.QuoteBacktick(ident) }

func (Dialect) ListTables(ctx context.Context, db *sql.DB) ([]string, error) {
	return sqlcommon.QueryStrings(ctx, db, `SELECT table_name FROM information_schema.tables
		WHERE table_schema = DATABASE() AND table_type = 'BASE TABLE'
		ORDER BY table_name`)
}

func (Dialect) PrimaryKey(ctx context.Context, db *sql.DB, table string) ([]string, error) {
	return sqlcommon.QueryStrings(ctx, db, `SELECT column_name FROM information_schema.key_column_usage
		WHERE table_schema = DATABASE() AND table_name = ? AND constraint_name = 'PRIMARY'
		ORDER BY ordinal_position`, table)
}

func (Dialect) IdentifierExpr(columns []string) string {
	parts := make([]string, len(columns))
	for i, c := range columns {
		parts[i] = "CAST(" + c + " AS CHAR)"
	}
	if len(parts) == 1 {
		return parts[0]
	}
	return "CONCAT_WS('-', " + strings.Join(parts, ", ") + ")"
}

func (Dialect) OrderByIdentifier(expr string) string { return "CAST(" + expr + " AS BINARY)" }

func (Dialect) ColumnType(t *value.Type, repeatable bool) string {
	if repeatable {
		return "TEXT"
	}
	switch t {
	case value.Integer:
		return "BIGINT"
	case value.Decimal:
		return "DOUBLE"
	case value.Boolean:
		return "BOOLEAN"
	case value.Date:
		return "DATE"
	case value.DateTime:
		return "DATETIME(6)"
	case value.Binary:
		return "LONGBLOB"
	}
	return "TEXT"
}

// IdentifierType is bounded because MySQL cannot index unbounded text.
func (Dialect) IdentifierType() string { return "VARCHAR(255)" }

func (Dialect) TimestampType() string { return "DATETIME(6)" }

func (Dialect) HandleSQLError(err error, args ...interface{}) error {
	return HandleSQLError(err, args...)
}

func (Dialect) Retry(fn func() error) error { return sqlcommon.NoRetry(fn) }

// HandleSQLError processes an SQL error and converts it into a more
// specific error type based on the nature of the SQL error.
func HandleSQLError(err error, args ...interface{}) error {
	var mysqlErr *mysql.MySQLError
	if errors.As(err, &mysqlErr) && mysqlErr.Number == duplicateEntry {
		if len(args) > 0 {
			return fmt.Errorf("%v: %w", args[0], storage.ErrCollision)
		}
		return storage.ErrCollision
	}
	return sqlcommon.HandleSQLError(err, args...)
}
