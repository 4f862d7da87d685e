package mysql

import (
	"context"
	"testing"

	"github.com/go-sql-driver/mysql"
	"github.com/stretchr/testify/require"

	"github.com/datavirt/datavirt/pkg/storage"
	"github.com/datavirt/datavirt/pkg/storage/sqlcommon"
	"github.com/datavirt/datavirt/pkg/storage/test"
	storagefixtures "github.com/datavirt/datavirt/pkg/testfixtures/storage"
)

func TestMySQLDatasource(t *testing.T) {
	testDatasource := storagefixtures.RunDatasourceTestContainer(t, Engine)
	require.Equal(t, int64(1), testDatasource.GetDatabaseSchemaVersion())

	ds, err := New("mysql", testDatasource.GetConnectionURI(), sqlcommon.NewConfig(sqlcommon.WithMetadataTables()))
	require.NoError(t, err)
	t.Cleanup(func() { _ = ds.Dispose(context.Background()) })

	test.RunAllTests(t, ds)
}

func TestPrepareDSN(t *testing.T) {
	dsn, err := PrepareDSN("root:secret@tcp(localhost:3306)/db", sqlcommon.NewConfig(
		sqlcommon.WithUsername("user"),
		sqlcommon.WithPassword("pass"),
	))
	require.NoError(t, err)

	parsed, err := mysql.ParseDSN(dsn)
	require.NoError(t, err)
	require.Equal(t, "user", parsed.User)
	require.Equal(t, "pass", parsed.Passwd)
	require.True(t, parsed.ParseTime)
	require.Equal(t, "db", parsed.DBName)

	_, err = PrepareDSN("not a dsn", sqlcommon.NewConfig())
	require.Error(t, err)
}

func TestHandleSQLError(t *testing.T) {
	require.ErrorIs(t, HandleSQLError(&mysql.MySQLError{Number: duplicateEntry}), storage.ErrCollision)
	require.NotErrorIs(t, HandleSQLError(&mysql.MySQLError{Number: 1146}), storage.ErrCollision)
}

func TestDialect(t *testing.T) {
	d := Dialect{}
	require.Equal(t, "CAST(`id` AS CHAR)", d.IdentifierExpr([]string{d.Quote("id")}))
	require.Equal(t, "CONCAT_WS('-', CAST(`a` AS CHAR), CAST(`b` AS CHAR))", d.IdentifierExpr([]string{d.Quote("a"), d.Quote("b")}))
	require.Equal(t, "CAST(x AS BINARY)", d.OrderByIdentifier("x"))
	require.Equal(t, "VARCHAR(255)", d.IdentifierType())
}
