package cli

import (
	"fmt"
	"strings"

	"github.com/glorpus-work/sitepkg/pkg/model"
	"github.com/spf13/cobra"
)

// packageStatus is what the status command reports.
type packageStatus struct {
	ID         string   `json:"id" yaml:"id"`
	Version    string   `json:"version" yaml:"version"`
	Path       string   `json:"path" yaml:"path"`
	Downloaded bool     `json:"downloaded" yaml:"downloaded"`
	Resident   []string `json:"resident" yaml:"resident"`
	URL        string   `json:"url" yaml:"url"`
}

// NewStatusCmd creates the status command.
func NewStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status ID VERSION",
		Short: "Show the cache state of a package",
		Args:  cobra.ExactArgs(packageArgs),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStatus(cmd, model.NewIdentity(args[0], args[1]))
		},
	}
}

func runStatus(cmd *cobra.Command, identity model.PackageIdentity) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	s, err := newSite(cfg)
	if err != nil {
		return err
	}

	resident, err := s.store.Resident(identity.ID)
	if err != nil {
		return err
	}
	st := packageStatus{
		ID:         identity.ID,
		Version:    identity.Version,
		Path:       s.store.Path(identity),
		Downloaded: s.store.IsDownloaded(identity),
		Resident:   resident,
		URL:        s.fetcher.URL(identity).String(),
	}

	out := cmd.OutOrStdout()
	if ok, err := printStructured(out, st); ok {
		return err
	}

	_, _ = fmt.Fprintf(out, "Package:    %s\n", identity)
	_, _ = fmt.Fprintf(out, "Path:       %s\n", st.Path)
	_, _ = fmt.Fprintf(out, "Downloaded: %t\n", st.Downloaded)
	_, _ = fmt.Fprintf(out, "Resident:   %s\n", strings.Join(st.Resident, ", "))
	_, _ = fmt.Fprintf(out, "Source:     %s\n", st.URL)
	return nil
}
