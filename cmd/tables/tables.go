// Package tables contains the command listing the value tables of the datasources.
package tables

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/datavirt/datavirt/cmd/util"
	"github.com/datavirt/datavirt/internal/bootstrap"
	"github.com/datavirt/datavirt/pkg/storage"
)

const countFlag = "count"

type tableInfo struct {
	Datasource string     `json:"datasource"`
	Name       string     `json:"name"`
	EntityType string     `json:"entityType"`
	Variables  int        `json:"variables"`
	Entities   *int       `json:"entities,omitempty"`
	Created    *time.Time `json:"created,omitempty"`
	LastUpdate *time.Time `json:"lastUpdate,omitempty"`
}

func NewTablesCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tables [datasource...]",
		Short: "List the value tables of the datasources",
		Long: `List the value tables of the named datasources, or of all the datasources the
configured policy lets you read.`,
		RunE: util.RunWithContext(listTables),
	}

	flags := cmd.Flags()
	util.AddConfigFlags(flags)
	util.AddOutputFlag(flags)
	flags.Bool(countFlag, false, "count the entities of each table")

	cmd.PreRun = func(cmd *cobra.Command, _ []string) {
		util.BindConfigFlags(cmd.Flags())
	}

	return cmd
}

func datasources(reg storage.DatasourceRegistry, names []string) ([]storage.Datasource, error) {
	if len(names) == 0 {
		return reg.Datasources(), nil
	}
	out := make([]storage.Datasource, 0, len(names))
	for _, name := range names {
		ds, err := reg.Datasource(name)
		if err != nil {
			return nil, err
		}
		out = append(out, ds)
	}
	return out, nil
}

func listTables(cmd *cobra.Command, args []string, c *bootstrap.Context) error {
	ctx := cmd.Context()
	flags := cmd.Flags()

	count, err := flags.GetBool(countFlag)
	if err != nil {
		return err
	}
	output, err := flags.GetString(util.OutputFlag)
	if err != nil {
		return err
	}

	dss, err := datasources(c.Datasources(), args)
	if err != nil {
		return err
	}

	infos := []tableInfo{}
	for _, ds := range dss {
		for _, t := range ds.ValueTables() {
			info := tableInfo{
				Datasource: ds.Name(),
				Name:       t.Name(),
				EntityType: t.EntityType(),
				Variables:  len(t.Variables()),
			}
			if count {
				entities, err := t.VariableEntities(ctx)
				if err != nil {
					return err
				}
				n := len(entities)
				info.Entities = &n
			}
			ts, err := t.Timestamps(ctx)
			if err != nil {
				return err
			}
			if !ts.Created.IsZero() {
				info.Created = &ts.Created
			}
			if !ts.LastUpdate.IsZero() {
				info.LastUpdate = &ts.LastUpdate
			}
			infos = append(infos, info)
		}
	}

	header := []string{"DATASOURCE", "TABLE", "ENTITY TYPE", "VARIABLES"}
	if count {
		header = append(header, "ENTITIES")
	}
	header = append(header, "LAST UPDATE")
	return util.Print(cmd.OutOrStdout(), output, infos, header, func(add func(cells ...any)) {
		for _, info := range infos {
			cells := []any{info.Datasource, info.Name, info.EntityType, info.Variables}
			if info.Entities != nil {
				cells = append(cells, *info.Entities)
			}
			updated := "-"
			if info.LastUpdate != nil {
				updated = info.LastUpdate.Format(time.RFC3339)
			}
			add(append(cells, updated)...)
		}
	})
}
