package sqlcommon

import (
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/datavirt/datavirt/pkg/storage"
	"github.com/datavirt/datavirt/pkg/value"
)

func TestNewConfigDefaults(t *testing.T) {
	cfg := NewConfig()
	require.NotNil(t, cfg.Logger)
	require.Equal(t, DefaultEntityType, cfg.DefaultEntityType)
	require.Equal(t, DefaultCreatedColumn, cfg.CreatedColumn)
	require.Equal(t, DefaultUpdatedColumn, cfg.UpdatedColumn)
	require.NotNil(t, cfg.Now)
	require.False(t, cfg.UseMetadataTables)

	fixed := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	cfg = NewConfig(
		WithDefaultEntityType("Sample"),
		WithTimestampColumns("c", "u"),
		WithMetadataTables(),
		WithMappedTables("a", "b"),
		WithClock(func() time.Time { return fixed }),
		WithMaxOpenConns(3),
	)
	require.Equal(t, "Sample", cfg.DefaultEntityType)
	require.Equal(t, "c", cfg.CreatedColumn)
	require.Equal(t, "u", cfg.UpdatedColumn)
	require.True(t, cfg.UseMetadataTables)
	require.Equal(t, []string{"a", "b"}, cfg.MappedTables)
	require.Equal(t, fixed, cfg.Now())
	require.Equal(t, 3, cfg.MaxOpenConns)
}

func TestTableSettings(t *testing.T) {
	s := TableSettings{SQLTableName: "t_1"}
	require.Equal(t, "t_1", s.name())
	require.False(t, s.hasTimestamps())

	s.TableName = "Table One"
	s.CreatedColumn, s.UpdatedColumn = "c", "u"
	require.Equal(t, "Table One", s.name())
	require.True(t, s.hasTimestamps())
}

func TestJoinIdentifier(t *testing.T) {
	require.Equal(t, "p1", JoinIdentifier("p1"))
	require.Equal(t, "p1-2", JoinIdentifier("p1", "2"))
}

func TestHandleSQLError(t *testing.T) {
	require.ErrorIs(t, HandleSQLError(sql.ErrNoRows), storage.ErrNotFound)
	require.ErrorIs(t, HandleSQLError(errors.New(`duplicate key value violates unique constraint "pk"`)), storage.ErrCollision)

	err := HandleSQLError(errors.New("boom"))
	require.EqualError(t, err, "sql error: boom")
}

func TestValueTypeForColumn(t *testing.T) {
	tests := map[string]*value.Type{
		"INTEGER":          value.Integer,
		"int8":             value.Integer,
		"UNSIGNED BIGINT":  value.Integer,
		"REAL":             value.Decimal,
		"DOUBLE PRECISION": value.Decimal,
		"NUMERIC(10,2)":    value.Decimal,
		"BOOLEAN":          value.Boolean,
		"DATE":             value.Date,
		"DATETIME(6)":      value.DateTime,
		"TIMESTAMPTZ":      value.DateTime,
		"BYTEA":            value.Binary,
		"LONGBLOB":         value.Binary,
		"VARCHAR(32)":      value.Text,
		"":                 value.Text,
	}
	for name, want := range tests {
		require.Equal(t, want, ValueTypeForColumn(name), name)
	}
}

func TestColumnName(t *testing.T) {
	require.Equal(t, "age", columnName("age"))
	require.Equal(t, "body_mass_index", columnName("body mass-index"))
	require.Equal(t, "_t", columnName("ét"))
}

func TestQuote(t *testing.T) {
	require.Equal(t, `"a""b"`, QuoteDouble(`a"b`))
	require.Equal(t, "`a``b`", QuoteBacktick("a`b"))
}

func TestEncodeValue(t *testing.T) {
	arg, err := encodeValue(value.Integer.NullValue())
	require.NoError(t, err)
	require.Nil(t, arg)

	arg, err = encodeValue(value.Value{})
	require.NoError(t, err)
	require.Nil(t, arg)

	v, err := value.Integer.ValueOf(42)
	require.NoError(t, err)
	arg, err = encodeValue(v)
	require.NoError(t, err)
	require.Equal(t, int64(42), arg)

	seq, err := value.Text.Sequence("a", "b")
	require.NoError(t, err)
	arg, err = encodeValue(seq)
	require.NoError(t, err)
	require.Equal(t, seq.String(), arg)

	locale, err := value.Locale.Parse("fr")
	require.NoError(t, err)
	arg, err = encodeValue(locale)
	require.NoError(t, err)
	require.Equal(t, "fr", arg)
}

func TestDecodeValue(t *testing.T) {
	t.Run("Null", func(t *testing.T) {
		v, err := decodeValue(value.Integer, false, nil)
		require.NoError(t, err)
		require.True(t, v.IsNull())
		require.False(t, v.IsSequence())

		v, err = decodeValue(value.Integer, true, nil)
		require.NoError(t, err)
		require.True(t, v.IsNull())
		require.True(t, v.IsSequence())
	})

	t.Run("Scalars", func(t *testing.T) {
		tests := []struct {
			typ  *value.Type
			raw  any
			want string
		}{
			{value.Integer, int64(7), "7"},
			{value.Integer, []byte("7"), "7"},
			{value.Decimal, 1.5, "1.5"},
			{value.Decimal, "2.25", "2.25"},
			{value.Boolean, int64(1), "true"},
			{value.Boolean, []byte("0"), "false"},
			{value.Boolean, true, "true"},
			{value.Text, int64(12), "12"},
			{value.Text, 0.5, "0.5"},
			{value.Text, false, "false"},
			{value.Text, []byte("abc"), "abc"},
			{value.Date, "1984-02-01", "1984-02-01"},
			{value.Date, time.Date(1984, 2, 1, 13, 0, 0, 0, time.UTC), "1984-02-01"},
			{value.DateTime, "2024-01-01 10:00:00", "2024-01-01T10:00:00Z"},
			{value.DateTime, "2024-01-01 10:00:00.5+00:00", "2024-01-01T10:00:00.5Z"},
			{value.DateTime, "2024-01-01T10:00:00Z", "2024-01-01T10:00:00Z"},
			{value.DateTime, "2024-01-01 10:00:00.25 +0000 UTC", "2024-01-01T10:00:00.25Z"},
			{value.Binary, []byte{1, 2}, "AQI="},
		}
		for _, tt := range tests {
			v, err := decodeValue(tt.typ, false, tt.raw)
			require.NoError(t, err, "%s %v", tt.typ, tt.raw)
			require.Equal(t, tt.want, v.String(), "%s %v", tt.typ, tt.raw)
		}
	})

	t.Run("Sequence", func(t *testing.T) {
		seq, err := value.Integer.Sequence(1, 2, 3)
		require.NoError(t, err)

		v, err := decodeValue(value.Integer, true, []byte(seq.String()))
		require.NoError(t, err)
		require.True(t, v.Equal(seq))

		_, err = decodeValue(value.Integer, true, int64(1))
		require.Error(t, err)
	})

	t.Run("Invalid", func(t *testing.T) {
		_, err := decodeValue(value.Integer, false, "abc")
		require.Error(t, err)
		_, err = decodeValue(value.Date, false, "not a date")
		require.Error(t, err)
	})
}
