// Package vector contains the command streaming the values of variables.
package vector

import (
	"fmt"
	"slices"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/datavirt/datavirt/cmd/util"
	"github.com/datavirt/datavirt/internal/bootstrap"
	"github.com/datavirt/datavirt/pkg/codec"
	"github.com/datavirt/datavirt/pkg/entity"
	"github.com/datavirt/datavirt/pkg/storage"
	"github.com/datavirt/datavirt/pkg/value"
)

const limitFlag = "limit"

func NewVectorCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "vector <datasource.table> [entity...]",
		Short: "Print the values of variables for the entities of a table",
		Long: `Print the values of the selected variables for the given entities of a table, or for
all its entities. Each variable is read as one vector, in the natural order of the entities.`,
		Example: `  datavirt vector cohort.participants p1 p2 --include name=age
  datavirt vector cohort.participants --derive 'months:integer=age * 12' --include name=months -o json`,
		Args: cobra.MinimumNArgs(1),
		RunE: util.RunWithContext(printVectors),
	}

	flags := cmd.Flags()
	util.AddConfigFlags(flags)
	util.AddOutputFlag(flags)
	util.AddSelectionFlags(flags)
	flags.Int(limitFlag, 0, "print at most this many entities (0 prints all)")

	cmd.PreRun = func(cmd *cobra.Command, _ []string) {
		util.BindConfigFlags(cmd.Flags())
	}

	return cmd
}

// entities returns the entities of t named by ids, in the order of the table.
func entities(cmd *cobra.Command, t storage.ValueTable, ids []string) ([]entity.Entity, error) {
	all, err := t.VariableEntities(cmd.Context())
	if err != nil {
		return nil, err
	}

	limit, err := cmd.Flags().GetInt(limitFlag)
	if err != nil {
		return nil, err
	}

	if len(ids) > 0 {
		for _, id := range ids {
			if !slices.ContainsFunc(all, func(e entity.Entity) bool { return e.Identifier == id }) {
				return nil, storage.NoSuchValueSetError(t.Name(), entity.New(t.EntityType(), id))
			}
		}
		all = slices.DeleteFunc(slices.Clone(all), func(e entity.Entity) bool {
			return !slices.Contains(ids, e.Identifier)
		})
	}

	if limit > 0 && len(all) > limit {
		all = all[:limit]
	}
	return all, nil
}

func printVectors(cmd *cobra.Command, args []string, c *bootstrap.Context) error {
	ctx := cmd.Context()
	output, err := cmd.Flags().GetString(util.OutputFlag)
	if err != nil {
		return err
	}

	sel, err := util.Select(c.Datasources(), args[0], cmd.Flags())
	if err != nil {
		return err
	}
	sources, err := sel.Sources()
	if err != nil {
		return err
	}

	es, err := entities(cmd, sel.Table, args[1:])
	if err != nil {
		return err
	}

	columns := make([][]value.Value, len(sources))
	for i, src := range sources {
		columns[i], err = storage.ReadValues(ctx, sel.Table, src, es)
		if err != nil {
			return fmt.Errorf("read %s: %w", src.Variable().Name(), err)
		}
	}

	valueSets := make([]codec.ValueSet, len(es))
	for row, e := range es {
		values := make([]value.Value, len(sources))
		for i := range sources {
			values[i] = columns[i][row]
		}
		valueSets[row] = codec.NewValueSet(e.Identifier, sel.Variables, values)
	}

	metrics := c.Metrics()
	c.Logger.Debug("vectors read",
		zap.Int("entities", len(es)),
		zap.Int("variables", len(sources)),
		zap.Uint32("vector_reads", metrics.VectorReadCount),
		zap.Uint32("value_reads", metrics.ValueReadCount))

	header := []string{"ID"}
	for _, v := range sel.Variables {
		header = append(header, v.Name())
	}
	return util.Print(cmd.OutOrStdout(), output, valueSets, header, func(add func(cells ...any)) {
		for row, e := range es {
			cells := []any{e.Identifier}
			for i := range sources {
				cells = append(cells, columns[i][row].String())
			}
			add(cells...)
		}
	})
}
