package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/imgajeed76/gridsync/internal/ui/styles"
	"github.com/imgajeed76/gridsync/internal/util"
)

var (
	// Version information (set at build time)
	Version   = "dev"
	CommitSHA = "unknown"
	BuildDate = "unknown"
)

var rootCmd = newRootCmd()

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "gridsync",
		Short: "Browse and manage paginated backend tables from the terminal",
		Long: `gridsync keeps a table view (page, page size, sort, search, filters,
visible columns) in sync with a shareable query string, fetches pages from
a REST backend or a Postgres database, and runs bulk deletes with
confirmation.

Every view can be written as a query string:

  gridsync browse equipment --view 'status=in_use&sortColumn=name'
  gridsync url equipment --filter status=repair --search drill`,
		SilenceUsage:  true,
		SilenceErrors: true,
		Version:       Version,
	}

	// Global flags
	cmd.PersistentFlags().String("config", "", "Config file (default: "+configHint()+")")
	cmd.PersistentFlags().BoolP("verbose", "v", false, "Enable verbose output")
	cmd.PersistentFlags().Bool("no-color", false, "Disable colored output")

	cmd.SetVersionTemplate(fmt.Sprintf("gridsync version %s\n  commit: %s\n  built:  %s\n", Version, CommitSHA, BuildDate))

	cmd.PersistentPreRun = func(cmd *cobra.Command, args []string) {
		if noColor, _ := cmd.Flags().GetBool("no-color"); noColor {
			styles.SetNoColor(true)
		}
	}

	cmd.AddCommand(
		newVersionCmd(),
		newConfigCmd(),
		newTablesCmd(),
		newBrowseCmd(),
		newListCmd(),
		newDeleteCmd(),
		newExportCmd(),
		newURLCmd(),
		newOptionsCmd(),
		newCompletionCmd(),
	)
	return cmd
}

// Execute runs the root command and prints structured errors.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		var gridErr *util.GridError
		if errors.As(err, &gridErr) {
			fmt.Fprintln(os.Stderr, gridErr.Format())
		} else {
			fmt.Fprintln(os.Stderr, styles.ErrorMsg(err.Error()))
		}
		return err
	}
	return nil
}

func newCompletionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "completion [bash|zsh|fish|powershell]",
		Short: "Generate shell completion scripts",
		Long: `Generate shell completion scripts for gridsync.

Bash:
  $ source <(gridsync completion bash)

Zsh:
  $ gridsync completion zsh > "${fpath[1]}/_gridsync"

Fish:
  $ gridsync completion fish | source

PowerShell:
  PS> gridsync completion powershell | Out-String | Invoke-Expression
`,
		DisableFlagsInUseLine: true,
		ValidArgs:             []string{"bash", "zsh", "fish", "powershell"},
		Args:                  cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
		RunE: func(cmd *cobra.Command, args []string) error {
			root := cmd.Root()
			out := cmd.OutOrStdout()
			switch args[0] {
			case "bash":
				return root.GenBashCompletion(out)
			case "zsh":
				return root.GenZshCompletion(out)
			case "fish":
				return root.GenFishCompletion(out, true)
			case "powershell":
				return root.GenPowerShellCompletionWithDesc(out)
			}
			return nil
		},
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "gridsync version %s\n", Version)
			fmt.Fprintf(out, "  commit: %s\n", CommitSHA)
			fmt.Fprintf(out, "  built:  %s\n", BuildDate)
		},
	}
}
