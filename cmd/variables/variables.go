// Package variables contains the command describing the variables of a value table.
package variables

import (
	"github.com/spf13/cobra"

	"github.com/datavirt/datavirt/cmd/util"
	"github.com/datavirt/datavirt/internal/bootstrap"
	"github.com/datavirt/datavirt/pkg/codec"
	"github.com/datavirt/datavirt/pkg/variable"
)

func NewVariablesCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "variables <datasource.table>",
		Short: "Describe the variables of a value table",
		Long: `Describe the variables of a value table. Variables may be filtered with --include and
--exclude and computed variables added with --derive. The json and yaml outputs are the
table dictionary, which the export command can write next to the copied data.`,
		Example: `  datavirt variables cohort.participants --include valueType=decimal
  datavirt variables cohort.participants --derive 'bmi:decimal=weight / ((height / 100.0) * (height / 100.0))' -o yaml`,
		Args: cobra.ExactArgs(1),
		RunE: util.RunWithContext(describe),
	}

	flags := cmd.Flags()
	util.AddConfigFlags(flags)
	util.AddOutputFlag(flags)
	util.AddSelectionFlags(flags)

	cmd.PreRun = func(cmd *cobra.Command, _ []string) {
		util.BindConfigFlags(cmd.Flags())
	}

	return cmd
}

func describe(cmd *cobra.Command, args []string, c *bootstrap.Context) error {
	output, err := cmd.Flags().GetString(util.OutputFlag)
	if err != nil {
		return err
	}

	sel, err := util.Select(c.Datasources(), args[0], cmd.Flags())
	if err != nil {
		return err
	}

	dictionary := codec.FromVariables(sel.Table.Name(), sel.Table.EntityType(), sel.Variables)
	header := []string{"NAME", "TYPE", "REPEATABLE", "UNIT", "LABEL"}
	return util.Print(cmd.OutOrStdout(), output, dictionary, header, func(add func(cells ...any)) {
		for _, v := range sel.Variables {
			add(v.Name(), v.ValueType().Name(), v.IsRepeatable(), v.Unit(), label(v))
		}
	})
}

func label(v *variable.Variable) string {
	labels := v.Attributes().Named(variable.LabelAttribute)
	if len(labels) == 0 {
		return ""
	}
	return labels[0].Value.String()
}
