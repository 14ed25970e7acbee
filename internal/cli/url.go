package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/imgajeed76/gridsync/internal/config"
	"github.com/imgajeed76/gridsync/internal/viewstate"
)

func newURLCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "url <table>",
		Short: "Print the canonical query string of a view",
		Long: `Print the canonical query string of a view. Parameters equal to their
defaults are left out, so the default view prints an empty line.

Filters are not narrowed against option catalogs here; browse and list do
that when the view is opened.

Examples:
  gridsync url equipment --sort name:desc --page 3
  gridsync url equipment --view 'pageSize=999&page=-4'    # normalize a link
  gridsync url equipment --stored                          # last browse view`,
		Args:              cobra.ExactArgs(1),
		ValidArgsFunction: completeTables,
		RunE:              runURL,
	}
	addViewFlags(cmd)
	cmd.Flags().Bool("full", false, "Prefix the table endpoint of the REST backend")
	cmd.Flags().Bool("stored", false, "Start from the view stored by the last browse session")
	return cmd
}

func runURL(cmd *cobra.Command, args []string) error {
	name := args[0]
	full, _ := cmd.Flags().GetBool("full")
	stored, _ := cmd.Flags().GetBool("stored")

	path, _ := cmd.Flags().GetString("config")
	if path == "" {
		path = config.Path()
	}
	cfg, err := config.Load(path)
	if err != nil {
		return err
	}
	profile, err := cfg.Table(name)
	if err != nil {
		return err
	}
	codec, err := viewstate.NewCodec(profile.Schema(cfg.Core))
	if err != nil {
		return err
	}

	if stored && !cmd.Flags().Changed("view") {
		views, err := config.OpenViews(viewsPath(path))
		if err != nil {
			return err
		}
		if q, ok := views.Get(name); ok {
			_ = cmd.Flags().Set("view", q)
		}
	}

	query, err := viewQuery(cmd, codec)
	if err != nil {
		return err
	}

	if full && cfg.API.BaseURL != "" {
		link := cfg.API.BaseURL + profile.Endpoint
		if query != "" {
			link += "?" + query
		}
		fmt.Fprintln(cmd.OutOrStdout(), link)
		return nil
	}
	fmt.Fprintln(cmd.OutOrStdout(), query)
	return nil
}
