package cli

import (
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/imgajeed76/gridsync/internal/config"
	"github.com/imgajeed76/gridsync/internal/grid"
	"github.com/imgajeed76/gridsync/internal/ui/table"
	"github.com/imgajeed76/gridsync/internal/util"
	"github.com/imgajeed76/gridsync/internal/viewstate"
)

func newBrowseCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "browse <table>",
		Short: "Open a table in the interactive viewer",
		Long: `Open a table in the interactive viewer.

The view (page, page size, sort, search, filters, hidden columns) is kept
as a query string. Without --view the table reopens with the view it had
when it was last closed (core.restore_views).

Keys:
  n/p page   +/- page size   s sort   / search   f filters   F clear filters
  H hide column   U show all   space select   a select page   c clear
  d delete   r refresh   y copy cell   u copy link   q quit`,
		Args:              cobra.ExactArgs(1),
		ValidArgsFunction: completeTables,
		RunE:              runBrowse,
	}
	addViewFlags(cmd)
	return cmd
}

func runBrowse(cmd *cobra.Command, args []string) error {
	name := args[0]
	if !term.IsTerminal(int(os.Stdout.Fd())) {
		return util.NewError("browse needs an interactive terminal").
			WithSuggestions("gridsync list " + name + "        # Print one page instead").
			Wrap(util.ErrNotInteractive)
	}

	env, err := loadEnv(cmd, true)
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

	views, err := config.OpenViews(viewsPath(env.cfgPath))
	if err != nil {
		return util.NewError("Cannot read stored views").WithContext(viewsPath(env.cfgPath)).Wrap(err)
	}

	var writer grid.URLWriter
	if env.cfg.Core.RestoreViews {
		writer = views.Writer(name)
	}
	ctrl, err := sess.controller(env, writer)
	if err != nil {
		return err
	}

	query, err := startQuery(cmd, ctrl.Codec(), views, name, env.cfg.Core.RestoreViews)
	if err != nil {
		return err
	}

	if err := ctrl.Mount(ctx, query); err != nil {
		return err
	}
	defer ctrl.Unmount()

	return table.Run(ctx, ctrl, table.Options{
		Title:    sess.title(),
		ShareURL: sess.shareTo,
		Logger:   env.logger.Named("tui"),
	})
}

// startQuery picks the initial view: explicit flags win, then the stored
// view, then the defaults.
func startQuery(cmd *cobra.Command, codec *viewstate.Codec, views *config.ViewStore, name string, restore bool) (string, error) {
	if restore && !viewFlagsChanged(cmd) {
		if q, ok := views.Get(name); ok {
			return q, nil
		}
	}
	return viewQuery(cmd, codec)
}

func viewFlagsChanged(cmd *cobra.Command) bool {
	for _, f := range []string{"view", "page", "page-size", "sort", "search", "filter", "hide", "show"} {
		if cmd.Flags().Changed(f) {
			return true
		}
	}
	return false
}
