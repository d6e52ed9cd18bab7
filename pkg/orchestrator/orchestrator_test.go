package orchestrator

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/glorpus-work/sitepkg/pkg/archive"
	"github.com/glorpus-work/sitepkg/pkg/download"
	"github.com/glorpus-work/sitepkg/pkg/errors"
	"github.com/glorpus-work/sitepkg/pkg/fetcher"
	"github.com/glorpus-work/sitepkg/pkg/installer"
	"github.com/glorpus-work/sitepkg/pkg/locator"
	"github.com/glorpus-work/sitepkg/pkg/metrics"
	"github.com/glorpus-work/sitepkg/pkg/model"
	ocmocks "github.com/glorpus-work/sitepkg/pkg/orchestrator/mocks"
	"github.com/glorpus-work/sitepkg/pkg/registry"
	"github.com/glorpus-work/sitepkg/pkg/store"
	"github.com/glorpus-work/sitepkg/test/testutil"
	"github.com/prometheus/client_golang/prometheus"
	promtestutil "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

const coreID = "Core.System"

func TestUpdate_Success(t *testing.T) {
	ctrl := gomock.NewController(t)
	identity := model.NewIdentity("SS.Plugin.Form", "2.1.0")

	f := ocmocks.NewMockFetcher(ctrl)
	inst := ocmocks.NewMockInstaller(ctrl)
	gomock.InOrder(
		f.EXPECT().Fetch(gomock.Any(), identity).Return(true, nil),
		inst.EXPECT().Install(gomock.Any(), identity, model.Plugin).Return(model.Succeeded(nil)),
	)

	m := metrics.New(prometheus.NewRegistry())
	var events []Event
	u := &Updater{
		Fetcher:   f,
		Installer: inst,
		Metrics:   m,
		CoreID:    coreID,
		Hooks:     Hooks{OnEvent: func(e Event) { events = append(events, e) }},
	}

	res := u.Update(context.Background(), identity, model.Plugin)
	require.True(t, res.Success)

	phases := make([]string, 0, len(events))
	for _, e := range events {
		phases = append(phases, e.Phase)
		assert.Equal(t, events[0].ID, e.ID, "events share one operation id")
	}
	assert.Equal(t, []string{PhaseFetching, PhaseInstalling, PhaseDone}, phases)
	assert.NotEmpty(t, events[0].ID)

	assert.Equal(t, 1.0, promtestutil.ToFloat64(m.FetchTotal.WithLabelValues(metrics.ResultDownloaded)))
	assert.Equal(t, 1.0, promtestutil.ToFloat64(m.InstallTotal.WithLabelValues("plugin", metrics.ResultSuccess)))
}

func TestUpdate_FetchFailureSkipsInstall(t *testing.T) {
	ctrl := gomock.NewController(t)
	identity := model.NewIdentity("Lib.A", "1.0.0")

	f := ocmocks.NewMockFetcher(ctrl)
	inst := ocmocks.NewMockInstaller(ctrl)
	f.EXPECT().Fetch(gomock.Any(), identity).
		Return(false, errors.Mark(errors.ErrArtifactFetchFailed, fmt.Errorf("unexpected status code: 404")))

	var last Event
	u := &Updater{Fetcher: f, Installer: inst, CoreID: coreID, Hooks: Hooks{OnEvent: func(e Event) { last = e }}}

	res := u.Update(context.Background(), identity, model.Library)
	assert.False(t, res.Success)
	assert.Equal(t, errors.KindArtifactFetchFailed, res.Kind)
	assert.Contains(t, res.ErrorMessage, "404")
	assert.Equal(t, PhaseError, last.Phase)
}

func TestUpdate_InstallFailureIsReturned(t *testing.T) {
	ctrl := gomock.NewController(t)
	identity := model.NewIdentity("Core.System", "1.2.0")

	f := ocmocks.NewMockFetcher(ctrl)
	inst := ocmocks.NewMockInstaller(ctrl)
	f.EXPECT().Fetch(gomock.Any(), identity).Return(false, nil)
	failed := model.Failed(errors.Wrap(errors.ErrConfigMissing, "upgrade package Core.System.1.2.0 does not exist"))
	inst.EXPECT().Install(gomock.Any(), identity, model.Library).Return(failed)

	m := metrics.New(prometheus.NewRegistry())
	u := &Updater{Fetcher: f, Installer: inst, Metrics: m, CoreID: coreID}

	res := u.Update(context.Background(), identity, model.Library)
	assert.Equal(t, failed, res)
	assert.Equal(t, 1.0, promtestutil.ToFloat64(m.FetchTotal.WithLabelValues(metrics.ResultCached)))
	assert.Equal(t, 1.0, promtestutil.ToFloat64(m.InstallTotal.WithLabelValues("core", metrics.ResultError)))
}

func TestUpdate_InvalidInput(t *testing.T) {
	ctrl := gomock.NewController(t)
	u := &Updater{Fetcher: ocmocks.NewMockFetcher(ctrl), Installer: ocmocks.NewMockInstaller(ctrl)}

	for _, identity := range []model.PackageIdentity{{ID: "", Version: "1.0"}, {ID: "a", Version: " "}} {
		res := u.Update(context.Background(), identity, model.Library)
		assert.False(t, res.Success)
		assert.Contains(t, res.ErrorMessage, "package id and version are required")
	}

	for _, identity := range []model.PackageIdentity{
		{ID: "x", Version: "1/../.."},
		{ID: "..", Version: "1.0"},
		{ID: "/etc", Version: "1.0"},
		{ID: `a\b`, Version: "1.0"},
	} {
		res := u.Update(context.Background(), identity, model.Plugin)
		assert.False(t, res.Success, identity.String())
		assert.Contains(t, res.ErrorMessage, errors.ErrInvalidPath.Error())
	}

	res := (&Updater{}).Update(context.Background(), model.NewIdentity("a", "1.0"), model.Library)
	assert.False(t, res.Success)
}

func TestUpdate_SerializesSameID(t *testing.T) {
	ctrl := gomock.NewController(t)
	f := ocmocks.NewMockFetcher(ctrl)
	inst := ocmocks.NewMockInstaller(ctrl)

	var mu sync.Mutex
	active, peak := 0, 0
	f.EXPECT().Fetch(gomock.Any(), gomock.Any()).DoAndReturn(
		func(context.Context, model.PackageIdentity, ...fetcher.Option) (bool, error) {
			mu.Lock()
			active++
			if active > peak {
				peak = active
			}
			mu.Unlock()
			time.Sleep(5 * time.Millisecond)
			return true, nil
		}).Times(4)
	inst.EXPECT().Install(gomock.Any(), gomock.Any(), gomock.Any()).DoAndReturn(
		func(context.Context, model.PackageIdentity, model.PackageType) model.InstallResult {
			mu.Lock()
			active--
			mu.Unlock()
			return model.Succeeded(nil)
		}).Times(4)

	u := &Updater{Fetcher: f, Installer: inst, CoreID: coreID}
	var wg sync.WaitGroup
	for _, v := range []string{"1.0.0", "1.1.0", "1.2.0", "1.3.0"} {
		wg.Add(1)
		go func(v string) {
			defer wg.Done()
			res := u.Update(context.Background(), model.NewIdentity("Lib.A", v), model.Library)
			assert.True(t, res.Success)
		}(v)
	}
	wg.Wait()
	assert.Equal(t, 1, peak)
}

func TestUpdate_CancelledWhileWaiting(t *testing.T) {
	ctrl := gomock.NewController(t)
	f := ocmocks.NewMockFetcher(ctrl)
	u := &Updater{Fetcher: f, Installer: ocmocks.NewMockInstaller(ctrl), CoreID: coreID}

	unlock, err := u.locks.Lock(context.Background(), "lib.a")
	require.NoError(t, err)
	defer unlock()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	res := u.Update(ctx, model.NewIdentity("Lib.A", "1.0.0"), model.Library)
	assert.False(t, res.Success)
	assert.Contains(t, res.ErrorMessage, context.Canceled.Error())
}

type site struct {
	root     string
	store    *store.Store
	registry *registry.Registry
	updater  *Updater
	server   *testutil.PackageServer
}

func newSite(t *testing.T) *site {
	t.Helper()
	root := t.TempDir()
	srv := testutil.NewPackageServer(t)

	st := store.New(filepath.Join(root, "packages"), coreID, "Web.config")
	f, err := fetcher.New(st, download.NewManager(download.Config{}), archive.NewManager(), srv.URL)
	require.NoError(t, err)

	reg := registry.New(filepath.Join(root, "plugins"))
	inst := installer.New(installer.Config{
		PluginsDir: filepath.Join(root, "plugins"),
		BinDir:     filepath.Join(root, "Bin"),
	}, st, locator.New(nil), installer.WithRegistry(reg))

	return &site{
		root:     root,
		store:    st,
		registry: reg,
		server:   srv,
		updater:  &Updater{Fetcher: f, Installer: inst, CoreID: coreID},
	}
}

func TestUpdate_EndToEnd(t *testing.T) {
	s := newSite(t)
	ctx := context.Background()

	s.server.AddPackage(t, testutil.Package{
		ID:           "SS.Plugin.Form",
		Version:      "2.1.0",
		Dependencies: map[string]string{"Lib.A": "[1.0,2.0)"},
		Files: map[string]string{
			"content/index.html":        "form",
			"lib/net45/SS.Form.dll":     "form-bin",
			"lib/netstandard/ignored.x": "x",
		},
	})
	s.server.AddPackage(t, testutil.Package{
		ID:      "Lib.A",
		Version: "1.0.0",
		Files:   map[string]string{"lib/net46/Lib.A.dll": "a"},
	})
	s.server.AddCore(t, testutil.Package{
		ID:      "Core.System",
		Version: "7.0.0",
		Files:   map[string]string{"Web.config": "<configuration/>"},
	})

	// warm the registry so the plugin install has something to invalidate
	_, err := s.registry.Load(ctx)
	require.NoError(t, err)

	res := s.updater.Update(ctx, model.NewIdentity("SS.Plugin.Form", "2.1.0"), model.Plugin)
	require.True(t, res.Success, res.ErrorMessage)
	assert.Equal(t, []model.Dependency{{ID: "Lib.A", Range: "[1.0,2.0)"}}, res.Dependencies)
	assert.FileExists(t, filepath.Join(s.root, "plugins", "SS.Plugin.Form", "index.html"))
	assert.FileExists(t, filepath.Join(s.root, "plugins", "SS.Plugin.Form", "Bin", "SS.Form.dll"))
	assert.FileExists(t, filepath.Join(s.root, "plugins", "SS.Plugin.Form", "SS.Plugin.Form.nuspec"))

	desc, ok, err := s.registry.Get(ctx, "ss.plugin.form")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "2.1.0", desc.Version)

	res = s.updater.Update(ctx, model.NewIdentity("Lib.A", "1.0.0"), model.Library)
	require.True(t, res.Success, res.ErrorMessage)
	assert.FileExists(t, filepath.Join(s.root, "Bin", "Lib.A.dll"))

	// declared type is ignored for the core id
	res = s.updater.Update(ctx, model.NewIdentity("core.system", "7.0.0"), model.Plugin)
	require.True(t, res.Success, res.ErrorMessage)
	assert.Equal(t, 1, s.server.Hits(testutil.UpdatePath("7.0.0")))
	assert.NoDirExists(t, filepath.Join(s.root, "plugins", "core.system"))

	// a second update of a resident package does not hit the network
	res = s.updater.Update(ctx, model.NewIdentity("Lib.A", "1.0.0"), model.Library)
	require.True(t, res.Success)
	assert.Equal(t, 1, s.server.Hits(testutil.PackagePath("Lib.A", "1.0.0")))
}

func TestUpdate_EndToEndMissingArtifact(t *testing.T) {
	s := newSite(t)

	res := s.updater.Update(context.Background(), model.NewIdentity("Lib.Missing", "1.0.0"), model.Library)
	assert.False(t, res.Success)
	assert.Equal(t, errors.KindArtifactFetchFailed, res.Kind)
	assert.NoDirExists(t, s.store.Path(model.NewIdentity("Lib.Missing", "1.0.0")))
}

func TestUpdate_EndToEndTraversalLeavesRootIntact(t *testing.T) {
	s := newSite(t)
	appConfig := filepath.Join(s.root, "Web.config")
	require.NoError(t, os.WriteFile(appConfig, []byte("<configuration/>"), 0o644))
	require.NoError(t, os.MkdirAll(filepath.Join(s.root, "plugins", "SS.Existing"), 0o755))

	res := s.updater.Update(context.Background(), model.NewIdentity("x", "1/../.."), model.Library)
	assert.False(t, res.Success)
	assert.FileExists(t, appConfig)
	assert.DirExists(t, filepath.Join(s.root, "plugins", "SS.Existing"))
}
