package cli

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/imgajeed76/gridsync/internal/export"
	"github.com/imgajeed76/gridsync/internal/ui"
	"github.com/imgajeed76/gridsync/internal/ui/styles"
	"github.com/imgajeed76/gridsync/internal/util"
)

func newExportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export <table>",
		Short: "Export the visible columns of one page to CSV or XLSX",
		Long: `Export the visible columns of one page to CSV or XLSX.

With --ids only those rows of the page are written.

Examples:
  gridsync export equipment --out equipment.xlsx
  gridsync export equipment --filter status=repair --out - --format csv
  gridsync export equipment --page 3 --ids 41,42 --out picked.csv`,
		Args:              cobra.ExactArgs(1),
		ValidArgsFunction: completeTables,
		RunE:              runExport,
	}
	addViewFlags(cmd)
	cmd.Flags().StringP("out", "o", "", "Output file, or - for stdout")
	cmd.Flags().String("format", "", "csv or xlsx (default: from --out extension)")
	cmd.Flags().StringSlice("ids", nil, "Export only these rows of the page")
	_ = cmd.MarkFlagRequired("out")
	return cmd
}

func runExport(cmd *cobra.Command, args []string) error {
	out, _ := cmd.Flags().GetString("out")
	formatFlag, _ := cmd.Flags().GetString("format")
	ids, _ := cmd.Flags().GetStringSlice("ids")

	var format export.Format
	var err error
	switch {
	case formatFlag != "":
		format, err = export.ParseFormat(formatFlag)
	case out == "-":
		format = export.CSV
	default:
		format, err = export.FormatFromPath(out)
	}
	if err != nil {
		return util.NewError("Unknown export format").
			WithSuggestions("--format csv", "--format xlsx").
			Wrap(err)
	}

	env, err := loadEnv(cmd, false)
	if err != nil {
		return err
	}
	defer env.Close()

	ctx := cmd.Context()
	sess, err := env.openTable(ctx, args[0])
	if err != nil {
		return err
	}
	defer sess.Close()

	ctrl, err := sess.controller(env, nil)
	if err != nil {
		return err
	}
	query, err := viewQuery(cmd, ctrl.Codec())
	if err != nil {
		return err
	}

	spinner := ui.NewSpinner("Loading " + sess.title())
	spinner.Start()
	if err := ctrl.Mount(ctx, query); err != nil {
		spinner.Stop()
		return err
	}
	defer ctrl.Unmount()

	snap, err := awaitPage(ctx, ctrl)
	spinner.Stop()
	if err != nil {
		return env.backendError(err)
	}

	for _, id := range ids {
		if err := ctrl.ToggleRow(strings.TrimSpace(id)); err != nil {
			return util.NewError(fmt.Sprintf("Row %s is not on this page", id)).
				WithSuggestions("gridsync list " + args[0] + " --raw    # Show the page").
				Wrap(err)
		}
	}

	tbl := export.Table{
		Title:     sess.title(),
		Columns:   snap.Columns,
		Rows:      snap.Result.Rows,
		Selection: ctrl.State().Selection,
		RowID:     ctrl.RowID,
	}

	var w io.Writer = cmd.OutOrStdout()
	if out != "-" {
		f, err := os.Create(out)
		if err != nil {
			return err
		}
		defer f.Close()
		w = f
	}
	if err := export.Write(w, format, tbl); err != nil {
		return fmt.Errorf("failed to write %s: %w", out, err)
	}

	if out != "-" {
		fmt.Fprintln(os.Stderr, styles.SuccessMsg(fmt.Sprintf("Wrote %d rows to %s", len(tbl.Selected()), out)))
	}
	return nil
}
