package cli

import (
	"strings"

	"github.com/spf13/cobra"

	"github.com/imgajeed76/gridsync/internal/config"
	"github.com/imgajeed76/gridsync/internal/record"
	"github.com/imgajeed76/gridsync/internal/ui/table"
	"github.com/imgajeed76/gridsync/internal/viewstate"
)

func newTablesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tables",
		Short: "List configured table profiles",
		Args:  cobra.NoArgs,
		RunE:  runTables,
	}
	cmd.Flags().Bool("json", false, "Output profiles as a JSON array")
	return cmd
}

func runTables(cmd *cobra.Command, args []string) error {
	jsonOutput, _ := cmd.Flags().GetBool("json")

	path, _ := cmd.Flags().GetString("config")
	if path == "" {
		path = config.Path()
	}
	cfg, err := config.Load(path)
	if err != nil {
		return err
	}

	cols := []viewstate.Column{
		{ID: "name", Title: "Table"},
		{ID: "title", Title: "Title"},
		{ID: "source", Title: "Source"},
		{ID: "columns", Title: "Columns"},
		{ID: "filters", Title: "Filters"},
	}
	var rows []record.Record
	for _, name := range cfg.TableNames() {
		p := cfg.Tables[name]
		source := p.Endpoint
		if cfg.Database.URL != "" {
			source = p.Table
			if source == "" {
				source = name
			}
		}
		filters := make([]string, len(p.Filters))
		for i, f := range p.Filters {
			filters[i] = f.ID
			if f.Parent != "" {
				filters[i] += "<" + f.Parent
			}
		}
		rows = append(rows, record.Record{
			"name":    name,
			"title":   p.Title,
			"source":  source,
			"columns": len(p.Columns),
			"filters": strings.Join(filters, " "),
		})
	}

	if jsonOutput {
		return table.PrintJSON(cmd.OutOrStdout(), cols, rows)
	}
	table.PrintPlain(cmd.OutOrStdout(), cols, rows)
	return nil
}
