// Package registry keeps the in-memory list of installed plugins. The list is
// built lazily from the plugins directory and dropped whenever a plugin
// install changes that directory.
package registry

import (
	"context"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/glorpus-work/sitepkg/internal/logger"
	"github.com/glorpus-work/sitepkg/pkg/fsutil"
	"github.com/glorpus-work/sitepkg/pkg/manifest"
	"github.com/glorpus-work/sitepkg/pkg/metrics"
	"github.com/glorpus-work/sitepkg/pkg/model"
	"golang.org/x/sync/singleflight"
)

// Descriptor describes one installed plugin.
type Descriptor struct {
	ID          string
	Version     string
	Title       string
	Description string
	Dir         string
	// FromManifest is false when the plugin directory had no readable
	// <dir>/<dir>.nuspec and the id was taken from the directory name.
	FromManifest bool
	Metadata     *model.PackageMetadata
}

// Registry is the plugin registry cache.
type Registry struct {
	dir     string
	metrics *metrics.Metrics

	mu          sync.RWMutex
	descriptors []*Descriptor
	loaded      bool
	generation  uint64

	group singleflight.Group

	// afterScan runs between the scan and storing its result.
	afterScan func()
}

// Option configures a Registry.
type Option func(*Registry)

// WithMetrics records loads and invalidations on m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(r *Registry) { r.metrics = m }
}

// New creates a registry over pluginsDir. Nothing is read until Load.
func New(pluginsDir string, opts ...Option) *Registry {
	r := &Registry{dir: pluginsDir}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Dir returns the plugins directory.
func (r *Registry) Dir() string {
	return r.dir
}

// Load returns the plugin descriptors, scanning the plugins directory on the
// first call after construction or invalidation. Concurrent callers share one
// scan, which does not stop when a single caller gives up. A scan that
// started before an Invalidate is returned to its callers but not cached.
func (r *Registry) Load(ctx context.Context) ([]*Descriptor, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.RLock()
	if r.loaded {
		out := append([]*Descriptor(nil), r.descriptors...)
		r.mu.RUnlock()
		return out, nil
	}
	gen := r.generation
	r.mu.RUnlock()

	scanCtx := context.WithoutCancel(ctx)
	ch := r.group.DoChan(strconv.FormatUint(gen, 10), func() (interface{}, error) {
		descs, err := r.scan(scanCtx)
		if err != nil {
			return nil, err
		}
		r.metrics.ObserveLoad(len(descs))
		if r.afterScan != nil {
			r.afterScan()
		}

		r.mu.Lock()
		if r.generation == gen {
			r.descriptors = descs
			r.loaded = true
		}
		r.mu.Unlock()
		return descs, nil
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return append([]*Descriptor(nil), res.Val.([]*Descriptor)...), nil
	}
}

// Get looks up a plugin by id, ignoring case.
func (r *Registry) Get(ctx context.Context, id string) (*Descriptor, bool, error) {
	descs, err := r.Load(ctx)
	if err != nil {
		return nil, false, err
	}
	for _, d := range descs {
		if strings.EqualFold(d.ID, id) {
			return d, true, nil
		}
	}
	return nil, false, nil
}

// Invalidate drops the cached descriptors. The next Load rescans.
func (r *Registry) Invalidate() {
	r.mu.Lock()
	r.descriptors = nil
	r.loaded = false
	r.generation++
	r.mu.Unlock()

	r.metrics.ObserveInvalidation()
	logger.Debug("Plugin registry invalidated", logger.Fields{"dir": r.dir})
}

// Generation increases with every Invalidate.
func (r *Registry) Generation() uint64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.generation
}

// Loaded reports whether descriptors are cached.
func (r *Registry) Loaded() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.loaded
}

func (r *Registry) scan(ctx context.Context) ([]*Descriptor, error) {
	names, err := fsutil.ListDirNames(r.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to list plugins dir %s: %w", r.dir, err)
	}

	descs := make([]*Descriptor, 0, len(names))
	for _, name := range names {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if fsutil.IsStagingName(name) {
			continue
		}
		descs = append(descs, describe(filepath.Join(r.dir, name), name))
	}
	return descs, nil
}

func describe(dir, name string) *Descriptor {
	desc := &Descriptor{ID: name, Dir: dir}

	path := filepath.Join(dir, name+manifest.Extension)
	if !fsutil.FileExists(path) {
		return desc
	}
	meta, err := manifest.Read(path)
	if err != nil {
		logger.Warn("Ignoring unreadable plugin manifest", logger.Fields{"path": path, "error": err.Error()})
		return desc
	}

	desc.ID = meta.ID
	desc.Version = meta.Version
	desc.Title = meta.Title
	desc.Description = meta.Description
	desc.FromManifest = true
	desc.Metadata = meta
	return desc
}

// Watch invalidates the registry whenever the plugins directory changes from
// outside. It returns once the watcher is running; the watcher stops with ctx.
func (r *Registry) Watch(ctx context.Context) error {
	if err := fsutil.EnsureDir(r.dir); err != nil {
		return fmt.Errorf("failed to create plugins dir %s: %w", r.dir, err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	if err := watcher.Add(r.dir); err != nil {
		_ = watcher.Close()
		return fmt.Errorf("failed to watch %s: %w", r.dir, err)
	}

	go func() {
		defer watcher.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if fsutil.IsStagingName(filepath.Base(event.Name)) {
					continue
				}
				if event.Has(fsnotify.Create) || event.Has(fsnotify.Remove) || event.Has(fsnotify.Rename) || event.Has(fsnotify.Write) {
					r.Invalidate()
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				logger.Warn("Plugin directory watcher error", logger.Fields{"error": err.Error()})
			}
		}
	}()
	return nil
}
