package cli

import (
	"fmt"

	"github.com/glorpus-work/sitepkg/pkg/cache"
	"github.com/spf13/cobra"
)

// NewCacheCmd creates the cache command with subcommands.
func NewCacheCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Manage the package cache",
		Long:  "Inspect and clean the directory holding downloaded packages",
	}

	cmd.AddCommand(
		newCacheInfoCmd(),
		newCacheCleanCmd(),
	)

	return cmd
}

func newCacheInfoCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "info",
		Short: "Show cache information",
		RunE:  runCacheInfo,
	}
}

func newCacheCleanCmd() *cobra.Command {
	var opts cache.CleanOptions

	cmd := &cobra.Command{
		Use:   "clean",
		Short: "Remove incomplete packages from the cache",
		Long: `Remove package directories that are not fully downloaded, such as
leftovers of an interrupted fetch. With --all every cached package is removed.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runCacheClean(cmd, opts)
		},
	}

	cmd.Flags().BoolVar(&opts.All, "all", false, "Remove every cached package")
	cmd.Flags().BoolVar(&opts.DryRun, "dry-run", false, "Only print what would be removed")

	return cmd
}

func cacheManager() (*cache.Manager, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	s, err := newSite(cfg)
	if err != nil {
		return nil, err
	}
	return cache.NewManager(s.store), nil
}

func runCacheInfo(cmd *cobra.Command, _ []string) error {
	m, err := cacheManager()
	if err != nil {
		return err
	}
	info, err := m.GetInfo()
	if err != nil {
		return fmt.Errorf("failed to get cache info: %w", err)
	}

	out := cmd.OutOrStdout()
	if ok, err := printStructured(out, info); ok {
		return err
	}

	_, _ = fmt.Fprintf(out, `Cache Information:
  Directory:  %s
  Total Size: %s
  Packages:   %d
  Incomplete: %d
`, info.Directory, cache.FormatBytes(info.TotalSize), info.Packages, info.Incomplete)
	return nil
}

func runCacheClean(cmd *cobra.Command, opts cache.CleanOptions) error {
	m, err := cacheManager()
	if err != nil {
		return err
	}
	result, err := m.Clean(opts)
	if err != nil {
		return fmt.Errorf("failed to clean cache: %w", err)
	}

	out := cmd.OutOrStdout()
	if ok, err := printStructured(out, result); ok {
		return err
	}

	if len(result.Removed) == 0 {
		_, _ = fmt.Fprintln(out, "No packages were removed from the cache.")
		return nil
	}
	verb := "Removed"
	if opts.DryRun {
		verb = "Would remove"
	}
	for _, name := range result.Removed {
		_, _ = fmt.Fprintf(out, "%s %s\n", verb, name)
	}
	_, _ = fmt.Fprintf(out, "Freed %s of disk space.\n", cache.FormatBytes(result.TotalFreed))
	return nil
}
