package cli

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/imgajeed76/gridsync/internal/api"
	"github.com/imgajeed76/gridsync/internal/ui"
	"github.com/imgajeed76/gridsync/internal/ui/styles"
	"github.com/imgajeed76/gridsync/internal/ui/table"
	"github.com/imgajeed76/gridsync/internal/util"
)

func newListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list <table>",
		Short: "Print one page of a table",
		Long: `Print one page of a table.

Examples:
  gridsync list equipment
  gridsync list equipment --page 2 --sort name:desc
  gridsync list equipment --filter status=in_use,repair --search drill
  gridsync list equipment --view 'page=1&pageSize=50' --json`,
		Args:              cobra.ExactArgs(1),
		ValidArgsFunction: completeTables,
		RunE:              runList,
	}
	addViewFlags(cmd)
	cmd.Flags().Bool("json", false, "Output rows as a JSON array")
	cmd.Flags().Bool("raw", false, "Output tab-separated values (for piping)")
	return cmd
}

func runList(cmd *cobra.Command, args []string) error {
	jsonOutput, _ := cmd.Flags().GetBool("json")
	raw, _ := cmd.Flags().GetBool("raw")

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

	if len(snap.Unavailable) > 0 {
		fmt.Fprintln(os.Stderr, styles.WarningMsg("Filter options unavailable: "+strings.Join(snap.Unavailable, ", ")))
	}
	if snap.OutOfRange {
		fmt.Fprintln(os.Stderr, styles.WarningMsg(fmt.Sprintf("Page %d is past the last page (%d)", snap.State.PageIndex+1, snap.PageCount)))
	}

	return table.Display(cmd.OutOrStdout(), table.Page{
		Columns:   snap.Columns,
		Rows:      snap.Result.Rows,
		Total:     snap.Result.Total,
		PageIndex: snap.State.PageIndex,
		PageSize:  snap.State.PageSize,
	}, table.DisplayOptions{JSON: jsonOutput, Raw: raw})
}

// backendError explains a failed fetch in terms of the configured backend.
func (e *environment) backendError(err error) error {
	if e.cfg.Database.URL != "" {
		return util.NewError("Database query failed").
			WithContext(e.cfg.Database.URL).
			WithSuggestions("gridsync tables        # Check the table profile").
			Wrap(err)
	}
	ge := util.APIError(e.cfg.API.BaseURL, err)
	var apiErr *api.Error
	if errors.As(err, &apiErr) && apiErr.RequestID != "" {
		ge = ge.WithContext(fmt.Sprintf("%s (request %s)", e.cfg.API.BaseURL, util.ShortID(apiErr.RequestID)))
	}
	return ge
}

func completeTables(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
	if len(args) > 0 {
		return nil, cobra.ShellCompDirectiveNoFileComp
	}
	env, err := loadEnv(cmd, false)
	if err != nil {
		return nil, cobra.ShellCompDirectiveError
	}
	defer env.Close()
	return env.cfg.TableNames(), cobra.ShellCompDirectiveNoFileComp
}
