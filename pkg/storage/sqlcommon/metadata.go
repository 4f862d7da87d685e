package sqlcommon

import (
	"context"
	"database/sql"
	"errors"
	"slices"
	"strings"

	sq "github.com/Masterminds/squirrel"
	"golang.org/x/text/language"

	"github.com/datavirt/datavirt/pkg/storage"
	"github.com/datavirt/datavirt/pkg/value"
	"github.com/datavirt/datavirt/pkg/variable"
)

// Metadata tables created by the migrations.
const (
	ValueTablesTable        = "value_tables"
	VariablesTable          = "variables"
	VariableAttributesTable = "variable_attributes"
	CategoriesTable         = "categories"
	CategoryAttributesTable = "category_attributes"
)

var metadataTables = []string{
	ValueTablesTable,
	VariablesTable,
	VariableAttributesTable,
	CategoriesTable,
	CategoryAttributesTable,
}

func (d *Datasource) checkMetadataTables(existing []string) error {
	for _, t := range metadataTables {
		if !slices.Contains(existing, t) {
			return storage.RuntimeError("metadata tables not found")
		}
	}
	return nil
}

func (d *Datasource) readTableSettings(ctx context.Context) ([]TableSettings, error) {
	rows, err := d.stbl.
		Select("name", "sql_table_name", "entity_type", "identifier_columns", "created_column", "updated_column").
		From(ValueTablesTable).
		OrderBy("name").
		QueryContext(ctx)
	if err != nil {
		return nil, d.dialect.HandleSQLError(err)
	}
	defer rows.Close()

	var out []TableSettings
	for rows.Next() {
		var (
			s   TableSettings
			ids string
		)
		if err := rows.Scan(&s.TableName, &s.SQLTableName, &s.EntityType, &ids, &s.CreatedColumn, &s.UpdatedColumn); err != nil {
			return nil, d.dialect.HandleSQLError(err)
		}
		if ids != "" {
			s.EntityIdentifierColumns = strings.Split(ids, ",")
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, d.dialect.HandleSQLError(err)
	}
	return out, nil
}

func (d *Datasource) insertTableMetadata(ctx context.Context, tx *sql.Tx, s TableSettings) error {
	_, err := d.stbl.RunWith(tx).
		Insert(ValueTablesTable).
		Columns("name", "sql_table_name", "entity_type", "identifier_columns", "created_column", "updated_column").
		Values(s.name(), s.SQLTableName, s.EntityType, strings.Join(s.EntityIdentifierColumns, ","), s.CreatedColumn, s.UpdatedColumn).
		ExecContext(ctx)
	if err != nil {
		return d.dialect.HandleSQLError(err, s.name())
	}
	return nil
}

func (d *Datasource) deleteTableMetadata(ctx context.Context, tx *sql.Tx, table string) error {
	stbl := d.stbl.RunWith(tx)
	for _, mt := range []string{CategoryAttributesTable, CategoriesTable, VariableAttributesTable, VariablesTable} {
		if _, err := stbl.Delete(mt).Where(sq.Eq{"value_table": table}).ExecContext(ctx); err != nil {
			return d.dialect.HandleSQLError(err)
		}
	}
	if _, err := stbl.Delete(ValueTablesTable).Where(sq.Eq{"name": table}).ExecContext(ctx); err != nil {
		return d.dialect.HandleSQLError(err)
	}
	return nil
}

type storedVariable struct {
	variable *variable.Variable
	column   string
}

type attributeRow struct {
	name   string
	locale string
	value  string
}

func (r attributeRow) attribute() variable.Attribute {
	if r.locale == "" {
		return variable.NewAttribute(r.name, r.value)
	}
	return variable.NewLocalisedAttribute(r.name, language.Make(r.locale), r.value)
}

func localeOf(a variable.Attribute) string {
	if !a.IsLocalised() {
		return ""
	}
	return a.Locale.String()
}

// readVariables loads the variables of table in their stored order.
func (d *Datasource) readVariables(ctx context.Context, table, entityType string) ([]storedVariable, error) {
	attrs, err := d.readAttributes(ctx, VariableAttributesTable, table, "variable_name")
	if err != nil {
		return nil, err
	}
	categories, err := d.readCategories(ctx, table)
	if err != nil {
		return nil, err
	}

	rows, err := d.stbl.
		Select("name", "column_name", "value_type", "is_repeatable", "occurrence_group",
			"units", "mime_type", "referenced_entity_type", "variable_index").
		From(VariablesTable).
		Where(sq.Eq{"value_table": table}).
		OrderBy("ordinal").
		QueryContext(ctx)
	if err != nil {
		return nil, d.dialect.HandleSQLError(err)
	}
	defer rows.Close()

	var out []storedVariable
	for rows.Next() {
		var (
			name, column, valueType, group, unit, mime, ref string
			repeatable                                      bool
			index                                           int
		)
		if err := rows.Scan(&name, &column, &valueType, &repeatable, &group, &unit, &mime, &ref, &index); err != nil {
			return nil, d.dialect.HandleSQLError(err)
		}
		typ, err := value.ForName(valueType)
		if err != nil {
			return nil, storage.RuntimeError("variable '%s' of value table '%s': %v", name, table, err)
		}

		b := variable.NewBuilder(name, typ, entityType).
			Unit(unit).
			MimeType(mime).
			ReferencedEntityType(ref).
			Index(index)
		if repeatable {
			b.Repeatable(group)
		}
		for _, a := range attrs[name] {
			b.AddAttribute(a.attribute())
		}
		b.AddCategory(categories[name]...)

		v, err := b.Build()
		if err != nil {
			return nil, storage.RuntimeError("variable '%s' of value table '%s': %v", name, table, err)
		}
		out = append(out, storedVariable{variable: v, column: column})
	}
	if err := rows.Err(); err != nil {
		return nil, d.dialect.HandleSQLError(err)
	}
	return out, nil
}

// readAttributes returns the attribute rows of table keyed by the values of their key
// columns joined with a NUL byte.
func (d *Datasource) readAttributes(ctx context.Context, from, table string, keyColumns ...string) (map[string][]attributeRow, error) {
	columns := append(slices.Clone(keyColumns), "attribute_name", "attribute_locale", "attribute_value")

	rows, err := d.stbl.
		Select(columns...).
		From(from).
		Where(sq.Eq{"value_table": table}).
		OrderBy("ordinal").
		QueryContext(ctx)
	if err != nil {
		return nil, d.dialect.HandleSQLError(err)
	}
	defer rows.Close()

	out := map[string][]attributeRow{}
	for rows.Next() {
		var r attributeRow
		keys := make([]string, len(keyColumns))
		dest := make([]any, 0, len(columns))
		for i := range keys {
			dest = append(dest, &keys[i])
		}
		dest = append(dest, &r.name, &r.locale, &r.value)
		if err := rows.Scan(dest...); err != nil {
			return nil, d.dialect.HandleSQLError(err)
		}
		key := attributeKey(keys...)
		out[key] = append(out[key], r)
	}
	if err := rows.Err(); err != nil {
		return nil, d.dialect.HandleSQLError(err)
	}
	return out, nil
}

func attributeKey(parts ...string) string {
	return strings.Join(parts, "\x00")
}

// readCategories returns the categories of table grouped by variable name.
func (d *Datasource) readCategories(ctx context.Context, table string) (map[string][]variable.Category, error) {
	attrs, err := d.readAttributes(ctx, CategoryAttributesTable, table, "variable_name", "category_name")
	if err != nil {
		return nil, err
	}

	rows, err := d.stbl.
		Select("variable_name", "name", "code", "missing").
		From(CategoriesTable).
		Where(sq.Eq{"value_table": table}).
		OrderBy("ordinal").
		QueryContext(ctx)
	if err != nil {
		return nil, d.dialect.HandleSQLError(err)
	}
	defer rows.Close()

	out := map[string][]variable.Category{}
	for rows.Next() {
		var (
			variableName, name, code string
			missing                  bool
		)
		if err := rows.Scan(&variableName, &name, &code, &missing); err != nil {
			return nil, d.dialect.HandleSQLError(err)
		}
		b := variable.NewCategoryBuilder(name).Code(code).Missing(missing)
		for _, a := range attrs[attributeKey(variableName, name)] {
			b.AddAttribute(a.attribute())
		}
		c, err := b.Build()
		if err != nil {
			return nil, storage.RuntimeError("category '%s' of variable '%s': %v", name, variableName, err)
		}
		out[variableName] = append(out[variableName], c)
	}
	if err := rows.Err(); err != nil {
		return nil, d.dialect.HandleSQLError(err)
	}
	return out, nil
}

// writeVariableMetadata replaces the stored metadata of v.
func (d *Datasource) writeVariableMetadata(ctx context.Context, tx *sql.Tx, table string, v *variable.Variable, column string) error {
	stbl := d.stbl.RunWith(tx)

	var ordinal int
	err := stbl.Select("ordinal").
		From(VariablesTable).
		Where(sq.Eq{"value_table": table, "name": v.Name()}).
		QueryRowContext(ctx).
		Scan(&ordinal)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		var last sql.NullInt64
		err = stbl.Select("MAX(ordinal)").
			From(VariablesTable).
			Where(sq.Eq{"value_table": table}).
			QueryRowContext(ctx).
			Scan(&last)
		if err != nil {
			return d.dialect.HandleSQLError(err)
		}
		if last.Valid {
			ordinal = int(last.Int64) + 1
		}
	case err != nil:
		return d.dialect.HandleSQLError(err)
	}

	if err := d.deleteVariableMetadata(ctx, tx, table, v.Name()); err != nil {
		return err
	}

	_, err = stbl.Insert(VariablesTable).
		Columns("value_table", "name", "column_name", "ordinal", "entity_type", "value_type", "is_repeatable",
			"occurrence_group", "units", "mime_type", "referenced_entity_type", "variable_index").
		Values(table, v.Name(), column, ordinal, v.EntityType(), v.ValueType().Name(), v.IsRepeatable(),
			v.OccurrenceGroup(), v.Unit(), v.MimeType(), v.ReferencedEntityType(), v.Index()).
		ExecContext(ctx)
	if err != nil {
		return d.dialect.HandleSQLError(err, v.Name())
	}

	if attrs := v.Attributes(); len(attrs) > 0 {
		ib := stbl.Insert(VariableAttributesTable).
			Columns("value_table", "variable_name", "ordinal", "attribute_name", "attribute_locale", "attribute_value")
		for i, a := range attrs {
			ib = ib.Values(table, v.Name(), i, a.Name, localeOf(a), a.Value.String())
		}
		if _, err := ib.ExecContext(ctx); err != nil {
			return d.dialect.HandleSQLError(err, v.Name())
		}
	}

	for i, c := range v.Categories() {
		_, err := stbl.Insert(CategoriesTable).
			Columns("value_table", "variable_name", "ordinal", "name", "code", "missing").
			Values(table, v.Name(), i, c.Name(), c.Code(), c.IsMissing()).
			ExecContext(ctx)
		if err != nil {
			return d.dialect.HandleSQLError(err, c.Name())
		}

		attrs := c.Attributes()
		if len(attrs) == 0 {
			continue
		}
		ib := stbl.Insert(CategoryAttributesTable).
			Columns("value_table", "variable_name", "category_name", "ordinal", "attribute_name", "attribute_locale", "attribute_value")
		for j, a := range attrs {
			ib = ib.Values(table, v.Name(), c.Name(), j, a.Name, localeOf(a), a.Value.String())
		}
		if _, err := ib.ExecContext(ctx); err != nil {
			return d.dialect.HandleSQLError(err, c.Name())
		}
	}
	return nil
}

func (d *Datasource) deleteVariableMetadata(ctx context.Context, tx *sql.Tx, table, name string) error {
	stbl := d.stbl.RunWith(tx)
	for _, mt := range []string{CategoryAttributesTable, CategoriesTable, VariableAttributesTable, VariablesTable} {
		ownerColumn := "variable_name"
		if mt == VariablesTable {
			ownerColumn = "name"
		}
		if _, err := stbl.Delete(mt).Where(sq.Eq{"value_table": table, ownerColumn: name}).ExecContext(ctx); err != nil {
			return d.dialect.HandleSQLError(err)
		}
	}
	return nil
}
