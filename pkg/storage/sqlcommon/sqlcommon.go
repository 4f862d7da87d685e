// Package sqlcommon implements a datasource over relational databases. The dialect
// packages (sqlite, postgres, mysql) open the connection and provide a [Dialect].
package sqlcommon

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	sq "github.com/Masterminds/squirrel"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/datavirt/datavirt/pkg/logger"
	"github.com/datavirt/datavirt/pkg/storage"
	"github.com/datavirt/datavirt/pkg/storage/vector"
)

var tracer = otel.Tracer("datavirt/pkg/storage/sqlcommon")

func startTrace(ctx context.Context, name string) (context.Context, trace.Span) {
	return tracer.Start(ctx, "sqlcommon."+name)
}

const (
	// DefaultEntityType is used for tables whose settings name no entity type.
	DefaultEntityType = "Participant"
	// EntityIDColumn is the identifier column of the tables created by writers.
	EntityIDColumn = "entity_id"
	// DefaultCreatedColumn and DefaultUpdatedColumn are the timestamp columns of the
	// tables created by writers.
	DefaultCreatedColumn = "created"
	DefaultUpdatedColumn = "updated"
)

// Config defines the configuration parameters
// for setting up and managing a sql datasource.
type Config struct {
	Username string
	Password string
	Logger   logger.Logger

	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxIdleTime time.Duration
	ConnMaxLifetime time.Duration

	ExportMetrics bool

	// DefaultEntityType applies to tables without settings.
	DefaultEntityType string
	// UseMetadataTables reads tables and variables from the metadata tables instead of
	// the database catalog.
	UseMetadataTables bool
	// MappedTables restricts catalog discovery to the named SQL tables.
	MappedTables []string
	Tables       []TableSettings

	CreatedColumn string
	UpdatedColumn string

	MaxConcurrentRefresh int
	Now                  func() time.Time
}

// DatastoreOption defines a function type
// used for configuring a Config object.
type DatastoreOption func(*Config)

// WithUsername returns a DatastoreOption that sets the username in the Config.
func WithUsername(username string) DatastoreOption {
	return func(config *Config) {
		config.Username = username
	}
}

// WithPassword returns a DatastoreOption that sets the password in the Config.
func WithPassword(password string) DatastoreOption {
	return func(config *Config) {
		config.Password = password
	}
}

// WithLogger returns a DatastoreOption that sets the Logger in the Config.
func WithLogger(l logger.Logger) DatastoreOption {
	return func(cfg *Config) {
		cfg.Logger = l
	}
}

// WithMaxOpenConns returns a DatastoreOption that sets the
// maximum number of open connections in the Config.
func WithMaxOpenConns(c int) DatastoreOption {
	return func(cfg *Config) {
		cfg.MaxOpenConns = c
	}
}

// WithMaxIdleConns returns a DatastoreOption that sets the
// maximum number of idle connections in the Config.
func WithMaxIdleConns(c int) DatastoreOption {
	return func(cfg *Config) {
		cfg.MaxIdleConns = c
	}
}

// WithConnMaxIdleTime returns a DatastoreOption that sets
// the maximum idle time for a connection in the Config.
func WithConnMaxIdleTime(d time.Duration) DatastoreOption {
	return func(cfg *Config) {
		cfg.ConnMaxIdleTime = d
	}
}

// WithConnMaxLifetime returns a DatastoreOption that sets
// the maximum lifetime for a connection in the Config.
func WithConnMaxLifetime(d time.Duration) DatastoreOption {
	return func(cfg *Config) {
		cfg.ConnMaxLifetime = d
	}
}

// WithMetrics returns a DatastoreOption that
// enables the export of metrics in the Config.
func WithMetrics() DatastoreOption {
	return func(cfg *Config) {
		cfg.ExportMetrics = true
	}
}

func WithDefaultEntityType(entityType string) DatastoreOption {
	return func(cfg *Config) {
		cfg.DefaultEntityType = entityType
	}
}

// WithMetadataTables makes the datasource read its tables and variables from the
// metadata tables created by the migrations.
func WithMetadataTables() DatastoreOption {
	return func(cfg *Config) {
		cfg.UseMetadataTables = true
	}
}

func WithMappedTables(tables ...string) DatastoreOption {
	return func(cfg *Config) {
		cfg.MappedTables = append(cfg.MappedTables, tables...)
	}
}

func WithTableSettings(settings ...TableSettings) DatastoreOption {
	return func(cfg *Config) {
		cfg.Tables = append(cfg.Tables, settings...)
	}
}

// WithTimestampColumns names the columns holding the creation and last update time
// of each row.
func WithTimestampColumns(created, updated string) DatastoreOption {
	return func(cfg *Config) {
		cfg.CreatedColumn = created
		cfg.UpdatedColumn = updated
	}
}

func WithMaxConcurrentRefresh(n int) DatastoreOption {
	return func(cfg *Config) {
		cfg.MaxConcurrentRefresh = n
	}
}

// WithClock sets the clock used for the timestamp columns.
func WithClock(now func() time.Time) DatastoreOption {
	return func(cfg *Config) {
		cfg.Now = now
	}
}

// NewConfig creates a new Config instance with default values
// and applies any provided DatastoreOption modifications.
func NewConfig(opts ...DatastoreOption) *Config {
	cfg := &Config{}

	for _, opt := range opts {
		opt(cfg)
	}

	if cfg.Logger == nil {
		cfg.Logger = logger.NewNoopLogger()
	}

	if cfg.DefaultEntityType == "" {
		cfg.DefaultEntityType = DefaultEntityType
	}

	if cfg.CreatedColumn == "" {
		cfg.CreatedColumn = DefaultCreatedColumn
	}

	if cfg.UpdatedColumn == "" {
		cfg.UpdatedColumn = DefaultUpdatedColumn
	}

	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	return cfg
}

// TableSettings maps one SQL table to a value table.
type TableSettings struct {
	// SQLTableName is the name of the table in the database.
	SQLTableName string
	// TableName is the value table name, SQLTableName when empty.
	TableName  string
	EntityType string
	// EntityIdentifierColumns are joined with '-' to form entity identifiers. The
	// primary key of the table is used when empty.
	EntityIdentifierColumns []string
	// CreatedColumn and UpdatedColumn hold row timestamps; timestamps are unknown unless
	// both are set.
	CreatedColumn string
	UpdatedColumn string
}

func (s TableSettings) name() string {
	if s.TableName != "" {
		return s.TableName
	}
	return s.SQLTableName
}

func (s TableSettings) hasTimestamps() bool {
	return s.CreatedColumn != "" && s.UpdatedColumn != ""
}

// JoinIdentifier builds the identifier of an entity from its identifier column values.
func JoinIdentifier(parts ...string) string {
	return strings.Join(parts, "-")
}

// HandleSQLError maps database errors onto the storage sentinels.
func HandleSQLError(err error, args ...interface{}) error {
	if errors.Is(err, sql.ErrNoRows) {
		return storage.ErrNotFound
	}

	if strings.Contains(err.Error(), "duplicate key value") {
		if len(args) > 0 {
			return fmt.Errorf("%v: %w", args[0], storage.ErrCollision)
		}
		return storage.ErrCollision
	}

	return fmt.Errorf("sql error: %w", err)
}

type errorHandlerFn func(error, ...interface{}) error

// rowCursor lazily runs a select of (identifier, value) and scans its rows into
// vector rows. Stop closes the underlying rows.
type rowCursor struct {
	sb             sq.SelectBuilder
	handleSQLError errorHandlerFn
	decode         func(raw any) (vector.Row, error)

	mu   sync.Mutex
	rows *sql.Rows // GUARDED_BY(mu)
	done bool      // GUARDED_BY(mu)
}

var _ vector.Cursor = (*rowCursor)(nil)

func newRowCursor(sb sq.SelectBuilder, errHandler errorHandlerFn, decode func(raw any) (vector.Row, error)) *rowCursor {
	return &rowCursor{
		sb:             sb,
		handleSQLError: errHandler,
		decode:         decode,
	}
}

func (c *rowCursor) fetch(ctx context.Context) error {
	ctx, span := startTrace(ctx, "fetch")
	defer span.End()

	rows, err := c.sb.QueryContext(ctx)
	if err != nil {
		return c.handleSQLError(err)
	}
	c.rows = rows
	return nil
}

func (c *rowCursor) Next(ctx context.Context) (vector.Row, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.done {
		return vector.Row{}, storage.ErrIteratorDone
	}
	if ctx.Err() != nil {
		return vector.Row{}, ctx.Err()
	}

	if c.rows == nil {
		if err := c.fetch(ctx); err != nil {
			return vector.Row{}, err
		}
	}

	if !c.rows.Next() {
		if err := c.rows.Err(); err != nil {
			return vector.Row{}, c.handleSQLError(err)
		}
		return vector.Row{}, storage.ErrIteratorDone
	}

	var (
		id  sql.NullString
		raw any
	)
	if err := c.rows.Scan(&id, &raw); err != nil {
		return vector.Row{}, c.handleSQLError(err)
	}
	row, err := c.decode(raw)
	if err != nil {
		return vector.Row{}, err
	}
	row.Identifier = id.String
	return row, nil
}

// Stop terminates iteration.
func (c *rowCursor) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.done = true
	if c.rows != nil {
		_ = c.rows.Close()
	}
}
