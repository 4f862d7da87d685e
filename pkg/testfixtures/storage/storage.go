// Package storage runs database containers for the tests of the relational datasources.
package storage

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v4"
	_ "github.com/go-sql-driver/mysql" // MySQL driver.
	_ "github.com/jackc/pgx/v5/stdlib" // PostgreSQL driver.
	"github.com/pressly/goose/v3"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite" // SQLite driver.

	"github.com/datavirt/datavirt/assets"
	"github.com/datavirt/datavirt/pkg/storage/sqlcommon"
)

// DatasourceTestContainer represents a runnable database for testing one engine.
type DatasourceTestContainer interface {
	// GetConnectionURI returns a connection string to the database.
	GetConnectionURI() string

	// GetDatabaseSchemaVersion returns the last migration applied when the container
	// was created.
	GetDatabaseSchemaVersion() int64
}

type testContainer struct {
	uri     string
	version int64
}

func (c testContainer) GetConnectionURI() string { return c.uri }

func (c testContainer) GetDatabaseSchemaVersion() int64 { return c.version }

// RunDatasourceTestContainer runs the database of engine ("postgres", "mysql" or
// "sqlite") and applies the migrations. The resources used are cleaned up after the
// test has finished.
func RunDatasourceTestContainer(t testing.TB, engine string) DatasourceTestContainer {
	var (
		uri     string
		driver  string
		dialect goose.Dialect
		dir     string
	)

	switch engine {
	case "postgres":
		addr := runContainer(t, containerSpec{
			image: "postgres:17",
			env:   []string{"POSTGRES_DB=defaultdb", "POSTGRES_PASSWORD=secret"},
			port:  "5432/tcp",
		})
		uri = fmt.Sprintf("postgres://postgres:secret@%s/defaultdb?sslmode=disable", addr)
		driver, dialect, dir = "pgx", goose.DialectPostgres, assets.PostgresMigrationDir
	case "mysql":
		addr := runContainer(t, containerSpec{
			image: "mysql:8",
			env:   []string{"MYSQL_DATABASE=defaultdb", "MYSQL_ROOT_PASSWORD=secret"},
			port:  "3306/tcp",
		})
		uri = fmt.Sprintf("root:secret@tcp(%s)/defaultdb?parseTime=true", addr)
		driver, dialect, dir = "mysql", goose.DialectMySQL, assets.MySQLMigrationDir
	case "sqlite":
		uri = filepath.Join(t.TempDir(), "datavirt.db")
		driver, dialect, dir = "sqlite", goose.DialectSQLite3, assets.SqliteMigrationDir
	default:
		t.Fatalf("'%s' engine is not supported by RunDatasourceTestContainer", engine)
		return nil
	}

	db, err := sql.Open(driver, uri)
	require.NoError(t, err)
	defer db.Close()

	backoffPolicy := backoff.NewExponentialBackOff()
	backoffPolicy.MaxElapsedTime = time.Minute
	err = backoff.Retry(
		func() error {
			return db.Ping()
		},
		backoffPolicy,
	)
	require.NoError(t, err, "failed to connect to %s", engine)

	version, err := sqlcommon.Migrate(context.Background(), db, dialect, dir)
	require.NoError(t, err)

	return testContainer{uri: uri, version: version}
}
