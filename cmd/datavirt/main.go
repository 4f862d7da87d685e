package main

import (
	"os"

	"github.com/datavirt/datavirt/cmd"
	"github.com/datavirt/datavirt/cmd/export"
	"github.com/datavirt/datavirt/cmd/migrate"
	"github.com/datavirt/datavirt/cmd/tables"
	"github.com/datavirt/datavirt/cmd/variables"
	"github.com/datavirt/datavirt/cmd/vector"
)

func main() {
	rootCmd := cmd.NewRootCommand()

	rootCmd.AddCommand(migrate.NewMigrateCommand())
	rootCmd.AddCommand(tables.NewTablesCommand())
	rootCmd.AddCommand(variables.NewVariablesCommand())
	rootCmd.AddCommand(vector.NewVectorCommand())
	rootCmd.AddCommand(export.NewExportCommand())
	rootCmd.AddCommand(cmd.NewVersionCommand())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
