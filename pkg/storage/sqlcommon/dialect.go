package sqlcommon

import (
	"context"
	"database/sql"
	"strings"

	sq "github.com/Masterminds/squirrel"

	"github.com/datavirt/datavirt/pkg/value"
)

// Dialect captures what differs between database engines.
type Dialect interface {
	// Name is the engine name, e.g. "sqlite".
	Name() string
	Placeholder() sq.PlaceholderFormat
	Quote(ident string) string

	// ListTables returns the user tables of the database.
	ListTables(ctx context.Context, db *sql.DB) ([]string, error)
	// PrimaryKey returns the primary key columns of table in key order.
	PrimaryKey(ctx context.Context, db *sql.DB, table string) ([]string, error)

	// IdentifierExpr builds a text expression of the entity identifier from the
	// identifier columns, joining them with '-'.
	IdentifierExpr(columns []string) string
	// OrderByIdentifier orders rows by expr with byte-wise string comparison.
	OrderByIdentifier(expr string) string

	// ColumnType is the column type storing values of t.
	ColumnType(t *value.Type, repeatable bool) string
	IdentifierType() string
	TimestampType() string

	HandleSQLError(err error, args ...interface{}) error
	// Retry runs fn, retrying while the database reports transient contention.
	Retry(fn func() error) error
}

// NoRetry is a Retry implementation running fn once.
func NoRetry(fn func() error) error {
	return fn()
}

// QuoteDouble quotes an identifier with double quotes.
func QuoteDouble(ident string) string {
	return `"` + strings.ReplaceAll(ident, `"`, `""`) + `"`
}

// QuoteBacktick quotes an identifier with backticks.
func QuoteBacktick(ident string) string {
	return "`" + strings.ReplaceAll(ident, "`", "``") + "`"
}

var integerColumnTypes = map[string]bool{
	"INT": true, "INTEGER": true, "TINYINT": true, "SMALLINT": true, "MEDIUMINT": true, "BIGINT": true,
	"INT2": true, "INT4": true, "INT8": true, "SERIAL": true, "BIGSERIAL": true,
}

// ValueTypeForColumn maps a database type name reported by the driver onto a value
// type. Unknown names map to text.
func ValueTypeForColumn(databaseTypeName string) *value.Type {
	name := strings.ToUpper(databaseTypeName)
	if i := strings.IndexByte(name, '('); i >= 0 {
		name = name[:i]
	}
	name = strings.TrimPrefix(strings.TrimSpace(name), "UNSIGNED ")

	switch {
	case name == "BOOLEAN" || name == "BOOL":
		return value.Boolean
	case integerColumnTypes[name]:
		return value.Integer
	case name == "REAL" || name == "FLOAT" || name == "FLOAT4" || name == "FLOAT8" ||
		strings.HasPrefix(name, "DOUBLE") || name == "NUMERIC" || name == "DECIMAL":
		return value.Decimal
	case name == "DATE":
		return value.Date
	case strings.HasPrefix(name, "DATETIME") || strings.HasPrefix(name, "TIMESTAMP"):
		return value.DateTime
	case strings.Contains(name, "BLOB") || name == "BYTEA" || strings.Contains(name, "BINARY"):
		return value.Binary
	}
	return value.Text
}

// columnName derives the column name of a variable: characters outside [A-Za-z0-9_]
// become '_'.
func columnName(variableName string) string {
	var b strings.Builder
	for _, r := range variableName {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	return b.String()
}

// QueryStrings runs a query returning one text column and collects it.
func QueryStrings(ctx context.Context, db *sql.DB, query string, args ...any) ([]string, error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}
