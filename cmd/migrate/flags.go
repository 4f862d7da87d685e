package migrate

import (
	"github.com/spf13/cobra"

	"github.com/datavirt/datavirt/cmd/util"
)

var runFlags = []string{
	datasourceFlag,
	datasourceEngineFlag,
	datasourceURIFlag,
	datasourceUsername,
	datasourcePassword,
	versionFlag,
	timeoutFlag,
	verboseMigrationFlag,
	logFormatFlag,
	logLevelFlag,
}

// bindRunFlags binds each migrate flag to the config key of the same name.
func bindRunFlags(command *cobra.Command, _ []string) {
	bindings := make([]util.Binding, 0, len(runFlags))
	for _, flag := range runFlags {
		bindings = append(bindings, util.FlagBinding(flag))
	}
	util.MustBind(command.Flags(), bindings...)
}
