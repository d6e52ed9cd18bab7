package cli

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/glorpus-work/sitepkg/pkg/registry"
	"github.com/spf13/cobra"
)

// TabWidth is the width of tabs in formatted output.
const TabWidth = 2

// How often --watch checks the registry for invalidations.
const watchInterval = 500 * time.Millisecond

// NewPluginsCmd creates the plugins command.
func NewPluginsCmd() *cobra.Command {
	var watch bool

	cmd := &cobra.Command{
		Use:   "plugins",
		Short: "List installed plugins",
		Long: `List the plugins found in the plugins directory.

With --watch the list is printed again whenever the plugins directory changes,
until interrupted.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runPlugins(cmd, watch)
		},
	}

	cmd.Flags().BoolVarP(&watch, "watch", "w", false, "Keep running and reprint on changes")

	return cmd
}

func runPlugins(cmd *cobra.Command, watch bool) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	s, err := newSite(cfg)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	out := cmd.OutOrStdout()
	if err := printPlugins(ctx, out, s.registry); err != nil {
		return err
	}
	if !watch {
		return nil
	}

	if err := s.registry.Watch(ctx); err != nil {
		return err
	}
	ticker := time.NewTicker(watchInterval)
	defer ticker.Stop()

	seen := s.registry.Generation()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if gen := s.registry.Generation(); gen != seen {
				seen = gen
				_, _ = fmt.Fprintln(out)
				if err := printPlugins(ctx, out, s.registry); err != nil {
					return err
				}
			}
		}
	}
}

func printPlugins(ctx context.Context, out io.Writer, r *registry.Registry) error {
	plugins, err := r.Load(ctx)
	if err != nil {
		return fmt.Errorf("failed to load plugins: %w", err)
	}

	if ok, err := printStructured(out, plugins); ok {
		return err
	}

	if len(plugins) == 0 {
		_, _ = fmt.Fprintln(out, "No plugins installed")
		return nil
	}

	tw := tabwriter.NewWriter(out, 0, 0, TabWidth, ' ', 0)
	_, _ = fmt.Fprintln(tw, "ID\tVERSION\tTITLE")
	for _, p := range plugins {
		version := p.Version
		if !p.FromManifest {
			version = "?"
		}
		_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\n", p.ID, version, p.Title)
	}
	return tw.Flush()
}
