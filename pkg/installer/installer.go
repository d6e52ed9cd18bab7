// Package installer places a fetched package into the live application tree.
// The route is chosen by package type: the core package is validated only,
// plugins are merged into their own directory and libraries add binaries to
// the shared bin directory without replacing anything.
package installer

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/glorpus-work/sitepkg/internal/logger"
	"github.com/glorpus-work/sitepkg/pkg/errors"
	"github.com/glorpus-work/sitepkg/pkg/fsutil"
	"github.com/glorpus-work/sitepkg/pkg/hooks"
	"github.com/glorpus-work/sitepkg/pkg/locator"
	"github.com/glorpus-work/sitepkg/pkg/manifest"
	"github.com/glorpus-work/sitepkg/pkg/model"
	"github.com/glorpus-work/sitepkg/pkg/store"
)

const (
	// ContentDir is the package subtree copied into a plugin directory.
	ContentDir = "content"
	// PluginBinDir receives a plugin's binaries.
	PluginBinDir = "Bin"
	// DefaultLibraryPattern matches every file.
	DefaultLibraryPattern = "*"
)

// Invalidator is notified after a plugin install changed the plugins
// directory.
type Invalidator interface {
	Invalidate()
}

// Config holds the install destinations.
type Config struct {
	PluginsDir     string
	BinDir         string
	LibraryPattern string
	Hooks          bool
	HookVars       map[string]string
}

// Installer installs packages resident in a Store.
type Installer struct {
	cfg      Config
	store    *store.Store
	locator  *locator.Locator
	hooks    hooks.Executor
	registry Invalidator
	handlers map[model.PackageType]handler
}

// job is the state of a single install.
type job struct {
	identity     model.PackageIdentity
	pkgType      model.PackageType
	pkgDir       string
	manifestPath string
	meta         *model.PackageMetadata
	binaryDir    string
}

type handler func(ctx context.Context, j *job) error

// Option configures an Installer.
type Option func(*Installer)

// WithHooks runs package hook scripts through e.
func WithHooks(e hooks.Executor) Option {
	return func(i *Installer) { i.hooks = e }
}

// WithRegistry invalidates r after every plugin install.
func WithRegistry(r Invalidator) Option {
	return func(i *Installer) { i.registry = r }
}

// New creates an Installer.
func New(cfg Config, st *store.Store, loc *locator.Locator, opts ...Option) *Installer {
	if cfg.LibraryPattern == "" {
		cfg.LibraryPattern = DefaultLibraryPattern
	}
	if loc == nil {
		loc = locator.New(nil)
	}
	i := &Installer{cfg: cfg, store: st, locator: loc}
	i.handlers = map[model.PackageType]handler{
		model.CoreSystem: i.installCore,
		model.Plugin:     i.installPlugin,
		model.Library:    i.installLibrary,
	}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// Install installs the resident package identity. declared is replaced by
// CoreSystem for the core id. Every failure is reported in the result.
func (i *Installer) Install(ctx context.Context, identity model.PackageIdentity, declared model.PackageType) model.InstallResult {
	meta, err := i.install(ctx, identity, declared)
	if err != nil {
		return model.Failed(err)
	}
	return model.Succeeded(meta.DependencyList())
}

func (i *Installer) install(ctx context.Context, identity model.PackageIdentity, declared model.PackageType) (*model.PackageMetadata, error) {
	if err := identity.Validate(); err != nil {
		return nil, err
	}
	j := &job{
		identity: identity,
		pkgType:  model.EffectiveType(identity, declared, i.store.CoreID()),
		pkgDir:   i.store.Path(identity),
	}
	fields := logger.Fields{"package": identity.ID, "version": identity.Version, "type": j.pkgType.String()}

	path, err := manifest.FindManifest(j.pkgDir)
	if err != nil {
		return nil, err
	}
	if path == "" {
		return nil, errors.Wrap(errors.ErrConfigMissing, "manifest file does not exist")
	}
	if j.meta, err = manifest.Read(path); err != nil {
		return nil, err
	}
	j.manifestPath = path

	if j.pkgType != model.CoreSystem {
		j.binaryDir = i.locator.Locate(j.pkgDir)
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	hc := i.hookContext(j)
	if i.cfg.Hooks && i.hooks != nil {
		if _, err := i.hooks.Run(ctx, hooks.PreInstall, hc); err != nil {
			return nil, errors.Wrapf(err, "pre-install hook of %s", identity)
		}
	}

	handle, ok := i.handlers[j.pkgType]
	if !ok {
		return nil, fmt.Errorf("no install route for package type %s", j.pkgType)
	}
	logger.Debug("Installing package", fields)
	if err := handle(ctx, j); err != nil {
		return nil, err
	}

	if i.cfg.Hooks && i.hooks != nil {
		if _, err := i.hooks.Run(ctx, hooks.PostInstall, hc); err != nil {
			logger.Warn("Post-install hook failed", logger.Fields{"package": identity.ID, "error": err.Error()})
		}
	}

	logger.Success("Package installed", fields)
	return j.meta, nil
}

func (i *Installer) hookContext(j *job) *hooks.Context {
	target := ""
	switch j.pkgType {
	case model.Plugin:
		target = i.pluginDir(j.meta.ID)
	case model.Library:
		target = i.cfg.BinDir
	}
	return &hooks.Context{
		PackageID:   j.identity.ID,
		Version:     j.identity.Version,
		PackageType: j.pkgType.String(),
		PackageDir:  j.pkgDir,
		TargetDir:   target,
		Vars:        i.cfg.HookVars,
	}
}

func (i *Installer) pluginDir(id string) string {
	return filepath.Join(i.cfg.PluginsDir, id)
}

// installCore only checks that the update carries the application config.
func (i *Installer) installCore(_ context.Context, j *job) error {
	path := i.store.AppConfigPath(j.identity)
	if !fsutil.FileExists(path) {
		return errors.Wrapf(errors.ErrConfigMissing, "upgrade package %s does not exist", path)
	}
	return nil
}

// installPlugin builds the new plugin directory next to the live one and
// swaps it in. Files already in the plugin directory survive unless the
// package ships a replacement.
func (i *Installer) installPlugin(ctx context.Context, j *job) error {
	target := i.pluginDir(j.meta.ID)

	staged, err := fsutil.StageDir(target)
	if err != nil {
		return errors.Mark(errors.ErrFileCopyFailed, err)
	}
	defer func() { _ = os.RemoveAll(staged) }()

	steps := []struct {
		src, dst string
	}{
		{target, staged},
		{filepath.Join(j.pkgDir, ContentDir), staged},
		{j.binaryDir, filepath.Join(staged, PluginBinDir)},
	}
	for _, step := range steps {
		if err := ctx.Err(); err != nil {
			return err
		}
		if !fsutil.DirExists(step.src) {
			continue
		}
		if err := fsutil.CopyDir(step.src, step.dst, true); err != nil {
			return errors.Mark(errors.ErrFileCopyFailed, err)
		}
	}

	if err := fsutil.Copy(j.manifestPath, filepath.Join(staged, j.meta.ID+manifest.Extension)); err != nil {
		return errors.Mark(errors.ErrFileCopyFailed, err)
	}

	if err := fsutil.ReplaceDir(staged, target); err != nil {
		return errors.Mark(errors.ErrFileCopyFailed, err)
	}

	if i.registry != nil {
		i.registry.Invalidate()
	}
	return nil
}

// installLibrary adds the package binaries to the shared bin directory.
// Existing files are never replaced.
func (i *Installer) installLibrary(ctx context.Context, j *job) error {
	names, err := fsutil.ListFileNames(j.binaryDir)
	if err != nil {
		return errors.Mark(errors.ErrFileCopyFailed, err)
	}
	if err := fsutil.EnsureDir(i.cfg.BinDir); err != nil {
		return errors.Mark(errors.ErrFileCopyFailed, err)
	}

	pattern := strings.ToLower(i.cfg.LibraryPattern)
	copied := 0
	for _, name := range names {
		if err := ctx.Err(); err != nil {
			return err
		}
		ok, err := doublestar.Match(pattern, strings.ToLower(name))
		if err != nil {
			return fmt.Errorf("invalid library pattern %q: %w", i.cfg.LibraryPattern, err)
		}
		if !ok {
			continue
		}

		dst := filepath.Join(i.cfg.BinDir, name)
		if _, err := os.Lstat(dst); err == nil {
			continue
		}
		added, err := addFile(filepath.Join(j.binaryDir, name), dst)
		if err != nil {
			return errors.Mark(errors.ErrFileCopyFailed, err)
		}
		if added {
			copied++
		}
	}

	logger.Debug("Library files added", logger.Fields{"package": j.identity.ID, "copied": copied, "candidates": len(names)})
	return nil
}

// addFile copies src to a private staging file beside dst and publishes it
// unless dst showed up in the meantime. Concurrent installs of packages that
// ship the same file name each stage their own copy; exactly one wins.
func addFile(src, dst string) (bool, error) {
	in, err := os.Open(src)
	if err != nil {
		return false, fmt.Errorf("failed to open %s: %w", src, err)
	}
	defer in.Close()

	info, err := in.Stat()
	if err != nil {
		return false, fmt.Errorf("failed to stat %s: %w", src, err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(dst), fsutil.StagingPrefix+filepath.Base(dst)+"-*")
	if err != nil {
		return false, fmt.Errorf("failed to stage %s: %w", dst, err)
	}
	tmpPath := tmp.Name()
	defer func() { _ = os.Remove(tmpPath) }()

	if _, err := io.Copy(tmp, in); err != nil {
		_ = tmp.Close()
		return false, fmt.Errorf("failed to copy %s: %w", src, err)
	}
	if err := tmp.Close(); err != nil {
		return false, err
	}
	if err := os.Chmod(tmpPath, info.Mode().Perm()); err != nil {
		return false, err
	}

	// a hard link never replaces an existing dst
	switch err := os.Link(tmpPath, dst); {
	case err == nil:
		return true, nil
	case os.IsExist(err):
		return false, nil
	}

	if fsutil.FileExists(dst) {
		return false, nil
	}
	if err := os.Rename(tmpPath, dst); err != nil {
		return false, err
	}
	return true, nil
}
