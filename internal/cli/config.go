package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/imgajeed76/gridsync/internal/config"
	"github.com/imgajeed76/gridsync/internal/ui/styles"
	"github.com/imgajeed76/gridsync/internal/util"
)

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config <key> [value]",
		Short: "Get and set gridsync options",
		Long: `Get and set gridsync options.

Examples:
  gridsync config api.base_url                          # Get value
  gridsync config api.base_url http://localhost:8080    # Set value
  gridsync config --list                                # List all settings

` + config.HelpText(),
		Args: cobra.MaximumNArgs(2),
		ValidArgsFunction: func(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
			if len(args) == 0 {
				return config.ListKeys(), cobra.ShellCompDirectiveNoFileComp
			}
			return nil, cobra.ShellCompDirectiveNoFileComp
		},
		RunE: runConfig,
	}

	cmd.Flags().BoolP("list", "l", false, "List all settings")
	cmd.Flags().Bool("path", false, "Print the config file path")
	return cmd
}

func runConfig(cmd *cobra.Command, args []string) error {
	listAll, _ := cmd.Flags().GetBool("list")
	showPath, _ := cmd.Flags().GetBool("path")
	out := cmd.OutOrStdout()

	path, _ := cmd.Flags().GetString("config")
	if path == "" {
		path = config.Path()
	}
	if showPath {
		fmt.Fprintln(out, path)
		return nil
	}

	cfg, err := config.Load(path)
	if err != nil {
		return err
	}

	if listAll {
		for _, key := range config.ListKeys() {
			value, _ := cfg.GetValue(key)
			if key == "api.token" && value != "" {
				value = "********"
			}
			fmt.Fprintf(out, "%s=%s\n", key, value)
		}
		return nil
	}

	if len(args) == 0 {
		return util.MissingArgumentError("key", "gridsync config --list")
	}

	key := strings.ToLower(args[0])
	if len(args) == 1 {
		value, ok := cfg.GetValue(key)
		if !ok {
			return unknownKeyError(key)
		}
		if value == "" {
			return util.NewError(fmt.Sprintf("%s is not set", key)).Wrap(util.ErrConfigKeyNotSet)
		}
		fmt.Fprintln(out, value)
		return nil
	}

	if err := cfg.SetValue(key, args[1]); err != nil {
		if _, ok := cfg.GetValue(key); !ok {
			return unknownKeyError(key)
		}
		return err
	}
	if err := cfg.Save(path); err != nil {
		return fmt.Errorf("failed to save config: %w", err)
	}
	fmt.Fprintln(out, styles.SuccessMsg(fmt.Sprintf("%s = %s", key, args[1])))
	return nil
}

func unknownKeyError(key string) error {
	return util.NewError(fmt.Sprintf("Unknown config key: %s", key)).
		WithSuggestions("gridsync config --list").
		Wrap(util.ErrConfigKeyNotSet)
}
