// Package export contains the command copying a value table into another datasource.
package export

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/datavirt/datavirt/cmd/util"
	"github.com/datavirt/datavirt/internal/bootstrap"
	"github.com/datavirt/datavirt/internal/config"
	"github.com/datavirt/datavirt/pkg/codec"
	"github.com/datavirt/datavirt/pkg/storage"
)

const (
	tableFlag       = "table"
	batchSizeFlag   = "batch-size"
	concurrencyFlag = "concurrency"
	dictionaryFlag  = "dictionary"
)

func NewExportCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export <datasource.table> <datasource>",
		Short: "Copy a value table into another datasource",
		Long: `Copy the selected variables of a value table and the values of all its entities into a
table of another datasource, creating or extending it. Computed variables added with --derive
are copied as plain variables holding their computed values.`,
		Example: `  datavirt export cohort.participants archive --table participants_2024
  datavirt export cohort.participants archive --exclude attribute=identifying --dictionary dictionary.yaml`,
		Args: cobra.ExactArgs(2),
		RunE: util.RunWithContext(export),
	}

	flags := cmd.Flags()
	util.AddConfigFlags(flags)
	util.AddSelectionFlags(flags)
	flags.String(tableFlag, "", "the name of the target table (defaults to the source table name)")
	flags.Int(batchSizeFlag, config.DefaultCopyBatchSize, "the number of entities copied at once")
	flags.Int(concurrencyFlag, 0, "the number of variables read at once (0 uses the number of CPUs)")
	flags.String(dictionaryFlag, "", "write the YAML dictionary of the copied variables to this file")

	cmd.PreRun = func(cmd *cobra.Command, _ []string) {
		flags := cmd.Flags()
		util.BindConfigFlags(flags)
		util.MustBind(flags, util.Binding{Key: "copyBatchSize", Flag: batchSizeFlag, Env: []string{"DATAVIRT_COPY_BATCH_SIZE"}})
	}

	return cmd
}

func export(cmd *cobra.Command, args []string, c *bootstrap.Context) error {
	ctx := cmd.Context()
	flags := cmd.Flags()

	sel, err := util.Select(c.Datasources(), args[0], flags)
	if err != nil {
		return err
	}

	target, err := c.Datasources().Datasource(args[1])
	if err != nil {
		return err
	}

	name, err := flags.GetString(tableFlag)
	if err != nil {
		return err
	}
	if name == "" {
		name = sel.Table.Name()
	}
	concurrency, err := flags.GetInt(concurrencyFlag)
	if err != nil {
		return err
	}

	n, err := storage.CopyTable(ctx, sel.Table, target, name,
		storage.WithCopyBatchSize(viper.GetInt("copyBatchSize")),
		storage.WithCopyConcurrency(concurrency),
		storage.WithCopyVariables(sel.Variables...),
	)
	if err != nil {
		return err
	}

	c.Logger.Info("table exported",
		zap.String("source", args[0]),
		zap.String("target", args[1]+"."+name),
		zap.Int("entities", n),
		zap.Int("variables", len(sel.Variables)))

	if path, _ := flags.GetString(dictionaryFlag); path != "" {
		out, err := codec.MarshalTableYAML(codec.FromVariables(name, sel.Table.EntityType(), sel.Variables))
		if err != nil {
			return err
		}
		if err := os.WriteFile(path, out, 0o644); err != nil {
			return fmt.Errorf("write dictionary: %w", err)
		}
	}

	_, err = fmt.Fprintf(cmd.OutOrStdout(), "exported %d entities of %s to %s.%s\n", n, args[0], args[1], name)
	return err
}
