package cli

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/glorpus-work/sitepkg/internal/logger"
	"github.com/glorpus-work/sitepkg/pkg/config"
	"github.com/spf13/cobra"
)

// Where a setting shown by "config show" comes from.
const (
	sourceDefault = "default"
	sourceFile    = "file"
	sourceEnv     = "env"
)

// NewConfigCmd creates the config command with subcommands.
func NewConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage configuration",
		Long: `View and modify sitepkg configuration settings.

Settings are read from the config file and then overridden by SITEPKG_*
environment variables. "set" and "init" only ever write the file.`,
	}

	var force bool
	initCmd := &cobra.Command{
		Use:   "init",
		Short: "Write a default configuration file",
		RunE: func(_ *cobra.Command, _ []string) error {
			return runConfigInit(force)
		},
	}
	initCmd.Flags().BoolVar(&force, "force", false, "Overwrite existing configuration file")

	cmd.AddCommand(
		&cobra.Command{
			Use:   "show",
			Short: "Show the effective configuration and where each value comes from",
			RunE:  runConfigShow,
		},
		&cobra.Command{
			Use:   "get KEY",
			Short: "Print one effective configuration value",
			Args:  cobra.ExactArgs(1),
			RunE:  runConfigGet,
		},
		&cobra.Command{
			Use:   "set KEY VALUE",
			Short: "Store a configuration value in the config file",
			Args:  cobra.ExactArgs(setCommandArgs),
			RunE:  runConfigSet,
		},
		initCmd,
	)

	return cmd
}

// Number of arguments expected by the set command.
const setCommandArgs = 2

// settingSources labels every key of effective with the layer that set it.
func settingSources(path string, effective *config.Config) (map[string]string, error) {
	fileOnly, err := config.LoadConfig(path)
	if err != nil {
		return nil, err
	}
	defaults := config.DefaultConfig().ToMap()
	fromFile := fileOnly.ToMap()

	sources := map[string]string{}
	for key, value := range effective.ToMap() {
		switch {
		case value != fromFile[key]:
			sources[key] = sourceEnv
		case value != defaults[key]:
			sources[key] = sourceFile
		default:
			sources[key] = sourceDefault
		}
	}
	return sources, nil
}

func runConfigShow(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if ok, err := printStructured(out, cfg); ok {
		return err
	}

	sources, err := settingSources(getConfigPath(), cfg)
	if err != nil {
		return err
	}

	tw := tabwriter.NewWriter(out, 0, 0, TabWidth, ' ', 0)
	_, _ = fmt.Fprintln(tw, "SETTING\tVALUE\tSOURCE")
	values := cfg.ToMap()
	for _, key := range cfg.Keys() {
		_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\n", key, values[key], sources[key])
	}
	return tw.Flush()
}

func runConfigGet(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	value, err := cfg.GetValue(args[0])
	if err != nil {
		return err
	}
	_, _ = fmt.Fprintln(cmd.OutOrStdout(), value)
	return nil
}

// runConfigSet edits the file layer only, so environment overrides are
// never persisted.
func runConfigSet(_ *cobra.Command, args []string) error {
	key, value := args[0], args[1]
	path := getConfigPath()

	cfg, err := config.LoadConfig(path)
	if err != nil {
		return err
	}
	if err := cfg.SetValue(key, value); err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("refusing to store %s=%s: %w", key, value, err)
	}
	if err := cfg.SaveConfig(path); err != nil {
		return fmt.Errorf("failed to save configuration: %w", err)
	}

	logger.Success("Configuration updated", logger.Fields{"key": key, "value": value, "path": path})
	return nil
}

func runConfigInit(force bool) error {
	path := getConfigPath()

	if _, err := os.Stat(path); err == nil && !force {
		return fmt.Errorf("configuration file already exists at %s (use --force to overwrite)", path)
	}
	if err := config.DefaultConfig().SaveConfig(path); err != nil {
		return fmt.Errorf("failed to save default configuration: %w", err)
	}

	logger.Success("Configuration file created", logger.Fields{"path": path})
	return nil
}
