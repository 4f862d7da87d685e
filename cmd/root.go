// Package cmd contains all the commands included in the binary file.
package cmd

import (
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// NewRootCommand enables all children commands to read flags from CLI flags, environment variables prefixed with DATAVIRT, or config.yaml (in that order).
func NewRootCommand() *cobra.Command {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")

	viper.SetEnvPrefix("DATAVIRT")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()

	configPaths := []string{"/etc/datavirt", "$HOME/.datavirt", "."}
	for _, path := range configPaths {
		viper.AddConfigPath(path)
	}

	return &cobra.Command{
		Use:   "datavirt",
		Short: "A data virtualization layer over tabular datasources",
		Long: `A data virtualization layer over tabular datasources.

datavirt exposes relational databases, bolt files and in-memory stores as value tables of
typed variables indexed by entities, streams variable vectors across them, derives computed
variables and copies tables between datasources under a permission policy.`,
		SilenceUsage: true,
	}
}
