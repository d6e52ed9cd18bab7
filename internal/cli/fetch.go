package cli

import (
	"fmt"

	"github.com/glorpus-work/sitepkg/pkg/fetcher"
	"github.com/glorpus-work/sitepkg/pkg/model"
	"github.com/spf13/cobra"
)

// NewFetchCmd creates the fetch command.
func NewFetchCmd() *cobra.Command {
	var noProgress bool

	cmd := &cobra.Command{
		Use:   "fetch ID VERSION",
		Short: "Download a package into the cache without installing it",
		Args:  cobra.ExactArgs(packageArgs),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runFetch(cmd, model.NewIdentity(args[0], args[1]), !noProgress)
		},
	}

	cmd.Flags().BoolVar(&noProgress, "no-progress", false, "Do not draw a download progress bar")

	return cmd
}

func runFetch(cmd *cobra.Command, identity model.PackageIdentity, progress bool) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	s, err := newSite(cfg)
	if err != nil {
		return err
	}

	var opts []fetcher.Option
	bar := newDownloadBar(cmd.ErrOrStderr())
	if progress {
		opts = append(opts, fetcher.WithProgress(bar.Func(identity.String())))
	}

	downloaded, err := s.fetcher.Fetch(cmd.Context(), identity, opts...)
	bar.Finish()
	if err != nil {
		return err
	}

	if downloaded {
		_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Downloaded %s to %s\n", identity, s.store.Path(identity))
	} else {
		_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%s is already downloaded\n", identity)
	}
	return nil
}
