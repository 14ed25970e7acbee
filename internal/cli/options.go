package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/imgajeed76/gridsync/internal/record"
	"github.com/imgajeed76/gridsync/internal/ui/styles"
	"github.com/imgajeed76/gridsync/internal/ui/table"
	"github.com/imgajeed76/gridsync/internal/util"
	"github.com/imgajeed76/gridsync/internal/viewstate"
)

func newOptionsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "options <table> <dimension>",
		Short: "List the selectable options of a filter",
		Long: `List the options of a filter dimension that are valid under the other
filters of the view. A dependent filter only offers options whose parent is
selected.

Examples:
  gridsync options equipment direction_id
  gridsync options equipment department_id --filter direction_id=D1`,
		Args: cobra.ExactArgs(2),
		RunE: runOptions,
	}
	addViewFlags(cmd)
	cmd.Flags().Bool("json", false, "Output options as a JSON array")
	return cmd
}

func runOptions(cmd *cobra.Command, args []string) error {
	name, dim := args[0], args[1]
	jsonOutput, _ := cmd.Flags().GetBool("json")

	env, err := loadEnv(cmd, false)
	if err != nil {
		return err
	}
	defer env.Close()

	ctx := cmd.Context()
	sess, err := env.openTable(ctx, name)
	if err != nil {
		return err
	}
	defer sess.Close()

	ctrl, err := sess.controller(env, nil)
	if err != nil {
		return err
	}
	d, ok := ctrl.Schema().Dimension(dim)
	if !ok {
		return util.NewError(fmt.Sprintf("Table %s has no filter '%s'", name, dim)).
			WithMessage("Filters: " + fmt.Sprint(dimensionIDs(ctrl.Schema()))).
			Wrap(util.ErrInvalidView)
	}

	query, err := viewQuery(cmd, ctrl.Codec())
	if err != nil {
		return err
	}
	if err := ctrl.Mount(ctx, query); err != nil {
		return err
	}
	defer ctrl.Unmount()

	for _, u := range ctrl.Unavailable() {
		if u == dim {
			return env.backendError(fmt.Errorf("options of %s could not be loaded", dim))
		}
	}

	selected := ctrl.State().Filters[dim]
	cols := []viewstate.Column{{ID: "id", Title: "ID"}, {ID: "label", Title: "Label"}}
	if d.Parent != "" {
		cols = append(cols, viewstate.Column{ID: "parent", Title: "Parent"})
	}
	cols = append(cols, viewstate.Column{ID: "selected", Title: "Selected"})

	opts := ctrl.Options(dim)
	rows := make([]record.Record, len(opts))
	for i, o := range opts {
		rows[i] = record.Record{"id": o.ID, "label": o.Label, "parent": o.ParentID, "selected": selected.Has(o.ID)}
	}

	if jsonOutput {
		return table.PrintJSON(cmd.OutOrStdout(), cols, rows)
	}
	if parent := ctrl.Parent(d.ID); parent != "" {
		if p := ctrl.State().FilterValues(parent); len(p) > 0 {
			fmt.Fprintln(os.Stderr, styles.MutedMsg(fmt.Sprintf("Narrowed by %s=%v", parent, p)))
		}
	}
	table.PrintPlain(cmd.OutOrStdout(), cols, rows)
	return nil
}
