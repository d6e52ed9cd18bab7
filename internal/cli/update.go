package cli

import (
	"fmt"

	"github.com/glorpus-work/sitepkg/pkg/model"
	"github.com/glorpus-work/sitepkg/pkg/orchestrator"
	"github.com/spf13/cobra"
)

// Number of arguments expected by the package commands.
const packageArgs = 2

// NewUpdateCmd creates the update command.
func NewUpdateCmd() *cobra.Command {
	var (
		pkgType     string
		noProgress  bool
		metricsFile string
	)

	cmd := &cobra.Command{
		Use:   "update ID VERSION",
		Short: "Download and install a package",
		Long: `Download a package into the package cache (unless that version is already
resident) and install it into the site.

--type selects the install route: "plugin" installs into the plugins directory,
"library" copies binaries into the shared Bin directory without overwriting.
The core system package is always installed as "core".`,
		Args: cobra.ExactArgs(packageArgs),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runUpdate(cmd, model.NewIdentity(args[0], args[1]), model.ParsePackageType(pkgType), !noProgress, metricsFile)
		},
	}

	cmd.Flags().StringVarP(&pkgType, "type", "t", "library", "Package type (plugin, library, core)")
	cmd.Flags().BoolVar(&noProgress, "no-progress", false, "Do not draw a download progress bar")
	cmd.Flags().StringVar(&metricsFile, "metrics-file", "", "Write Prometheus metrics to this file when done")

	return cmd
}

func runUpdate(cmd *cobra.Command, identity model.PackageIdentity, pkgType model.PackageType, progress bool, metricsFile string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	s, err := newSite(cfg)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	text := outputFormat() == outputText

	hooks := orchestrator.Hooks{OnEvent: func(e orchestrator.Event) {
		if text {
			_, _ = fmt.Fprintf(cmd.ErrOrStderr(), "%s: %s\n", e.Phase, e.Msg)
		}
	}}

	bar := newDownloadBar(cmd.ErrOrStderr())
	u := s.updater(hooks, nil)
	if progress && text {
		u.Progress = bar.Func(identity.String())
	}

	result := u.Update(cmd.Context(), identity, pkgType)
	bar.Finish()

	if err := s.writeMetrics(metricsFile); err != nil {
		return err
	}

	if ok, err := printStructured(out, result); ok {
		if err != nil {
			return err
		}
	} else if result.Success {
		_, _ = fmt.Fprintf(out, "Installed %s as %s\n", identity, model.EffectiveType(identity, pkgType, cfg.CoreSystemID))
		for _, dep := range result.Dependencies {
			_, _ = fmt.Fprintf(out, "  depends on %s %s\n", dep.ID, dep.Range)
		}
	}

	if !result.Success {
		return fmt.Errorf("%s", result.ErrorMessage)
	}
	return nil
}
