package cli

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/imgajeed76/gridsync/internal/access"
	"github.com/imgajeed76/gridsync/internal/grid"
	"github.com/imgajeed76/gridsync/internal/ui"
	"github.com/imgajeed76/gridsync/internal/ui/styles"
	"github.com/imgajeed76/gridsync/internal/util"
)

func newDeleteCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "delete <table> <id>...",
		Short: "Delete rows by id",
		Long: `Delete rows by id in one request, after confirmation.

Examples:
  gridsync delete equipment 41 42 43
  gridsync delete equipment 41 --yes`,
		Args:              cobra.MinimumNArgs(2),
		ValidArgsFunction: completeTables,
		RunE:              runDelete,
	}
	cmd.Flags().BoolP("yes", "y", false, "Do not ask for confirmation")
	return cmd
}

func runDelete(cmd *cobra.Command, args []string) error {
	name, ids := args[0], args[1:]
	yes, _ := cmd.Flags().GetBool("yes")

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

	if err := ctrl.RequestDelete(ids...); err != nil {
		switch {
		case errors.Is(err, access.ErrForbidden):
			return util.NewError("Not allowed to delete from " + name).
				WithContext(fmt.Sprintf("user %q", env.cfg.Session.UserID)).
				Wrap(err)
		case errors.Is(err, grid.ErrDeleteUnsupported):
			return util.NewError("Table " + name + " has no delete endpoint").
				WithSuggestions("Set delete_endpoint in the [tables." + name + "] profile").
				Wrap(err)
		}
		return err
	}

	if !yes {
		if !term.IsTerminal(int(os.Stdin.Fd())) {
			_ = ctrl.CancelBulk()
			return util.NewError("Refusing to delete without confirmation").
				WithSuggestions(fmt.Sprintf("gridsync delete %s %s --yes", name, strings.Join(ids, " "))).
				Wrap(util.ErrNotInteractive)
		}
		fmt.Printf("Delete %d %s from %s? [y/N] ", len(ids), plural(len(ids), "row"), sess.title())
		reader := bufio.NewReader(os.Stdin)
		answer, _ := reader.ReadString('\n')
		answer = strings.TrimSpace(strings.ToLower(answer))
		if answer != "y" && answer != "yes" {
			_ = ctrl.CancelBulk()
			fmt.Println(styles.MutedMsg("Aborted"))
			return nil
		}
	}

	spinner := ui.NewSpinner(fmt.Sprintf("Deleting %d %s", len(ids), plural(len(ids), "row")))
	spinner.Start()
	if err := ctrl.ConfirmBulk(ctx); err != nil {
		spinner.Error("Delete failed")
		return env.backendError(err)
	}
	spinner.Success(fmt.Sprintf("Deleted %d %s from %s", len(ids), plural(len(ids), "row"), sess.title()))
	return nil
}

func plural(n int, word string) string {
	if n == 1 {
		return word
	}
	return word + "s"
}
