package util

import (
	"github.com/spf13/pflag"

	"github.com/datavirt/datavirt/pkg/derived"
	"github.com/datavirt/datavirt/pkg/storage"
	"github.com/datavirt/datavirt/pkg/storage/filter"
	"github.com/datavirt/datavirt/pkg/variable"
)

const (
	IncludeFlag = "include"
	ExcludeFlag = "exclude"
	DeriveFlag  = "derive"
)

// AddSelectionFlags declares the flags selecting and deriving the variables of a table.
func AddSelectionFlags(flags *pflag.FlagSet) {
	flags.StringArray(IncludeFlag, nil, "select the variables matching a filter (valueType=, entityType=, attribute=name[:text], name=pattern)")
	flags.StringArray(ExcludeFlag, nil, "drop the variables matching a filter, applied after the includes")
	flags.StringArray(DeriveFlag, nil, "add a computed variable written name[:type]=expression (CEL over the other variables)")
}

// Selection is a table and the variables chosen by the selection flags.
type Selection struct {
	Table     storage.ValueTable
	Variables []*variable.Variable
}

// Sources returns the value sources of the selected variables.
func (s Selection) Sources() ([]storage.VariableValueSource, error) {
	sources := make([]storage.VariableValueSource, len(s.Variables))
	for i, v := range s.Variables {
		src, err := s.Table.VariableValueSource(v.Name())
		if err != nil {
			return nil, err
		}
		sources[i] = src
	}
	return sources, nil
}

// Select resolves the table referenced by ref ("datasource.table"), adds the derived
// variables of the selection flags and filters its variables.
func Select(reg storage.DatasourceRegistry, ref string, flags *pflag.FlagSet) (Selection, error) {
	table, err := storage.LookupTable(reg, ref)
	if err != nil {
		return Selection{}, err
	}

	defs, err := flags.GetStringArray(DeriveFlag)
	if err != nil {
		return Selection{}, err
	}
	if len(defs) > 0 {
		vars := make([]*variable.Variable, 0, len(defs))
		for _, def := range defs {
			v, err := derived.ParseVariable(def, table.EntityType())
			if err != nil {
				return Selection{}, err
			}
			vars = append(vars, v)
		}
		dt, err := derived.NewTable(table, vars...)
		if err != nil {
			return Selection{}, err
		}
		table = dt
	}

	includes, err := flags.GetStringArray(IncludeFlag)
	if err != nil {
		return Selection{}, err
	}
	excludes, err := flags.GetStringArray(ExcludeFlag)
	if err != nil {
		return Selection{}, err
	}
	chain, err := filter.ParseChain(includes, excludes)
	if err != nil {
		return Selection{}, err
	}

	return Selection{Table: table, Variables: filter.Variables(chain, table.Variables())}, nil
}
