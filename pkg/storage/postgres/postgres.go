// Package postgres provides the PostgreSQL dialect of the relational datasource.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"strings"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib" // PostgreSQL driver.

	"github.com/datavirt/datavirt/pkg/storage"
	"github.com/datavirt/datavirt/pkg/storage/sqlcommon"
	"github.com/datavirt/datavirt/pkg/value"
)

// Engine is the engine name of the dialect.
const Engine = "postgres"

const uniqueViolation = "23505"

// Open opens the database at uri. The username and password of cfg, when set, replace
// the ones of uri.
func Open(uri string, cfg *sqlcommon.Config) (*sql.DB, error) {
	if cfg.Username != "" || cfg.Password != "" {
		parsed, err := url.Parse(uri)
		if err != nil {
			return nil, fmt.Errorf("parse postgres connection uri: %w", err)
		}

		username := ""
		if cfg.Username != "" {
			username = cfg.Username
		} else if parsed.User != nil {
			username = parsed.User.Username()
		}

		switch {
		case cfg.Password != "":
			parsed.User = url.UserPassword(username, cfg.Password)
		case parsed.User != nil:
			if password, ok := parsed.User.Password(); ok {
				parsed.User = url.UserPassword(username, password)
			} else {
				parsed.User = url.User(username)
			}
		default:
			parsed.User = url.User(username)
		}

		uri = parsed.String()
	}

	db, err := sql.Open("pgx", uri)
	if err != nil {
		return nil, fmt.Errorf("initialize postgres connection: %w", err)
	}
	sqlcommon.ConfigurePool(db, cfg)
	return db, nil
}

// New creates a datasource named name over the PostgreSQL database at uri.
func New(name, uri string, cfg *sqlcommon.Config) (*sqlcommon.Datasource, error) {
	if cfg == nil {
		cfg = sqlcommon.NewConfig()
	}

	db, err := Open(uri, cfg)
	if err != nil {
		return nil, err
	}
	return NewWithDB(name, db, cfg)
}

// NewWithDB creates a datasource over an open database.
func NewWithDB(name string, db *sql.DB, cfg *sqlcommon.Config) (*sqlcommon.Datasource, error) {
	collector, err := sqlcommon.ConfigureDB(context.Background(), db, cfg, sqlcommon.DefaultConnectTimeout)
	if err != nil {
		return nil, fmt.Errorf("configure db: %w", err)
	}
	return sqlcommon.New(name, db, Dialect{}, cfg, collector), nil
}

// Dialect is the PostgreSQL [sqlcommon.Dialect].
type Dialect struct{}

var _ sqlcommon.Dialect = Dialect{}

func (Dialect) Name() string { return Engine }

func (Dialect) Placeholder() sq.PlaceholderFormat { return sq.Dollar }

func (Dialect) Quote(ident string) string { return sqlcommon.QuoteDouble(ident) }

func (Dialect) ListTables(ctx context.Context, db *sql.DB) ([]string, error) {
	return sqlcommon.QueryStrings(ctx, db, `SELECT table_name FROM information_schema.tables
		WHERE table_schema = current_schema() AND table_type = 'BASE TABLE'
		ORDER BY table_name`)
}

func (Dialect) PrimaryKey(ctx context.Context, db *sql.DB, table string) ([]string, error) {
	return sqlcommon.QueryStrings(ctx, db, `SELECT kcu.column_name
		FROM information_schema.table_constraints tc
		JOIN information_schema.key_column_usage kcu
			ON tc.constraint_name = kcu.constraint_name
			AND tc.table_schema = kcu.table_schema
			AND tc.table_name = kcu.table_name
		WHERE tc.constraint_type = 'PRIMARY KEY'
			AND tc.table_schema = current_schema()
			AND tc.table_name = $1
		ORDER BY kcu.ordinal_position`, table)
}

func (Dialect) IdentifierExpr(columns []string) string {
	parts := make([]string, len(columns))
	for i, c := range columns {
		parts[i] = "CAST(" + c + " AS TEXT)"
	}
	if len(parts) == 1 {
		return parts[0]
	}
	return "CONCAT_WS('-', " + strings.Join(parts, ", ") + ")"
}

func (Dialect) OrderByIdentifier(expr string) string { return expr + ` COLLATE "C"` }

func (Dialect) ColumnType(t *value.Type, repeatable bool) string {
	if repeatable {
		return "TEXT"
	}
	switch t {
	case value.Integer:
		return "BIGINT"
	case value.Decimal:
		return "DOUBLE PRECISION"
	case value.Boolean:
		return "BOOLEAN"
	case value.Date:
		return "DATE"
	case value.DateTime:
		return "TIMESTAMPTZ"
	case value.Binary:
		return "BYTEA"
	}
	return "TEXT"
}

func (Dialect) IdentifierType() string { return "TEXT" }

func (Dialect) TimestampType() string { return "TIMESTAMPTZ" }

func (Dialect) HandleSQLError(err error, args ...interface{}) error {
	return HandleSQLError(err, args...)
}

func (Dialect) Retry(fn func() error) error { return sqlcommon.NoRetry(fn) }

// HandleSQLError processes an SQL error and converts it into a more
// specific error type based on the nature of the SQL error.
func HandleSQLError(err error, args ...interface{}) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		if len(args) > 0 {
			return fmt.Errorf("%v: %w", args[0], storage.ErrCollision)
		}
		return storage.ErrCollision
	}
	return sqlcommon.HandleSQLError(err, args...)
}
