package orchestrator

import (
	"context"
	"fmt"
	"time"

	"github.com/glorpus-work/sitepkg/internal/logger"
	"github.com/glorpus-work/sitepkg/pkg/errors"
	"github.com/glorpus-work/sitepkg/pkg/fetcher"
	"github.com/glorpus-work/sitepkg/pkg/metrics"
	"github.com/glorpus-work/sitepkg/pkg/model"
	"github.com/google/uuid"
)

func emit(h Hooks, e Event) {
	if h.OnEvent != nil {
		h.OnEvent(e)
	}
}

// Update makes identity resident in the package store and installs it. The
// core id always installs as CoreSystem, whatever declared says. Calls for
// the same id are serialized; different ids run in parallel.
func (u *Updater) Update(ctx context.Context, identity model.PackageIdentity, declared model.PackageType) model.InstallResult {
	opID := uuid.NewString()
	pkgType := model.EffectiveType(identity, declared, u.CoreID)
	fields := logger.Fields{"op": opID, "package": identity.ID, "version": identity.Version, "type": pkgType.String()}

	result := u.update(ctx, opID, identity, declared)
	if result.Success {
		emit(u.Hooks, Event{Phase: PhaseDone, ID: opID, Msg: identity.String()})
		logger.Debug("Update finished", fields)
	} else {
		emit(u.Hooks, Event{Phase: PhaseError, ID: opID, Msg: result.ErrorMessage})
		fields["kind"] = string(result.Kind)
		logger.Error(result.ErrorMessage, fields)
	}
	return result
}

func (u *Updater) update(ctx context.Context, opID string, identity model.PackageIdentity, declared model.PackageType) model.InstallResult {
	if u.Fetcher == nil || u.Installer == nil {
		return model.Failed(fmt.Errorf("updater is not configured"))
	}
	if err := identity.Validate(); err != nil {
		return model.Failed(err)
	}

	unlock, err := u.locks.Lock(ctx, identity.ID)
	if err != nil {
		return model.Failed(errors.Wrapf(err, "waiting for %s", identity.ID))
	}
	defer unlock()

	emit(u.Hooks, Event{Phase: PhaseFetching, ID: opID, Msg: identity.String()})
	var opts []fetcher.Option
	if u.Progress != nil {
		opts = append(opts, fetcher.WithProgress(u.Progress))
	}
	downloaded, err := u.Fetcher.Fetch(ctx, identity, opts...)
	if err != nil {
		u.Metrics.ObserveFetch(metrics.ResultError)
		return model.Failed(err)
	}
	if downloaded {
		u.Metrics.ObserveFetch(metrics.ResultDownloaded)
	} else {
		u.Metrics.ObserveFetch(metrics.ResultCached)
	}

	emit(u.Hooks, Event{Phase: PhaseInstalling, ID: opID, Msg: identity.String()})
	start := time.Now()
	result := u.Installer.Install(ctx, identity, declared)
	u.Metrics.ObserveInstall(model.EffectiveType(identity, declared, u.CoreID).String(), result.Success, time.Since(start))
	return result
}
