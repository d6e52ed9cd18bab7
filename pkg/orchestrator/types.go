//go:generate mockgen -destination=./mocks/orchestrator.go -package=mocks . Fetcher,Installer

package orchestrator

import (
	"context"

	"github.com/glorpus-work/sitepkg/pkg/download"
	"github.com/glorpus-work/sitepkg/pkg/fetcher"
	"github.com/glorpus-work/sitepkg/pkg/metrics"
	"github.com/glorpus-work/sitepkg/pkg/model"
)

// Fetcher is the subset of the artifact fetcher used by the updater.
type Fetcher interface {
	Fetch(ctx context.Context, identity model.PackageIdentity, opts ...fetcher.Option) (bool, error)
}

// Installer is the subset of the installer used by the updater.
type Installer interface {
	Install(ctx context.Context, identity model.PackageIdentity, declared model.PackageType) model.InstallResult
}

// Updater ties the fetcher and installer together behind a single call.
type Updater struct {
	Fetcher   Fetcher
	Installer Installer
	Metrics   *metrics.Metrics
	CoreID    string
	Progress  download.ProgressFunc // optional download progress
	Hooks     Hooks                 // Hooks for progress and event notifications

	locks keyedMutex
}

// Event phases.
const (
	PhaseFetching   = "fetching"
	PhaseInstalling = "installing"
	PhaseDone       = "done"
	PhaseError      = "error"
)

// Event represents a simple progress notification.
type Event struct {
	Phase string // fetching|installing|done|error
	ID    string // operation ID
	Msg   string
}

// Hooks carries callbacks for progress events.
type Hooks struct {
	OnEvent func(Event)
}
