// Package cache inspects and cleans the local package cache.
package cache

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/glorpus-work/sitepkg/internal/logger"
	"github.com/glorpus-work/sitepkg/pkg/fsutil"
	"github.com/glorpus-work/sitepkg/pkg/manifest"
	"github.com/glorpus-work/sitepkg/pkg/model"
	"github.com/glorpus-work/sitepkg/pkg/store"
)

// Entry is one directory of the package cache.
type Entry struct {
	Name     string `json:"name" yaml:"name"`
	Size     int64  `json:"size" yaml:"size"`
	Complete bool   `json:"complete" yaml:"complete"`
}

// Info summarizes the package cache.
type Info struct {
	Directory  string  `json:"directory" yaml:"directory"`
	TotalSize  int64   `json:"total_size" yaml:"total_size"`
	Packages   int     `json:"packages" yaml:"packages"`
	Incomplete int     `json:"incomplete" yaml:"incomplete"`
	Entries    []Entry `json:"entries" yaml:"entries"`
}

// CleanOptions specifies what to clean from the cache.
type CleanOptions struct {
	// All removes every package, not only incomplete ones.
	All bool
	// DryRun reports what would be removed without touching disk.
	DryRun bool
}

// CleanResult contains information about what was cleaned.
type CleanResult struct {
	Removed    []string `json:"removed" yaml:"removed"`
	TotalFreed int64    `json:"total_freed" yaml:"total_freed"`
}

// Manager works on the directory of a package store.
type Manager struct {
	store *store.Store
}

// NewManager creates a cache manager for st.
func NewManager(st *store.Store) *Manager {
	return &Manager{store: st}
}

// GetDirectory returns the cache directory path.
func (m *Manager) GetDirectory() string {
	return m.store.Dir()
}

// GetInfo walks the cache directory.
func (m *Manager) GetInfo() (*Info, error) {
	names, err := fsutil.ListDirNames(m.store.Dir())
	if err != nil {
		return nil, fmt.Errorf("failed to list cache dir %s: %w", m.store.Dir(), err)
	}

	info := &Info{Directory: m.store.Dir(), Entries: make([]Entry, 0, len(names))}
	for _, name := range names {
		size, err := dirSize(filepath.Join(m.store.Dir(), name))
		if err != nil {
			return nil, err
		}
		e := Entry{Name: name, Size: size, Complete: m.complete(name)}
		info.Entries = append(info.Entries, e)
		info.TotalSize += size
		if e.Complete {
			info.Packages++
		} else {
			info.Incomplete++
		}
	}
	return info, nil
}

// Clean removes incomplete package directories, or every package with All.
// A directory is complete when its manifest names it and the store
// considers that identity downloaded.
func (m *Manager) Clean(options CleanOptions) (*CleanResult, error) {
	info, err := m.GetInfo()
	if err != nil {
		return nil, err
	}

	result := &CleanResult{}
	for _, e := range info.Entries {
		if e.Complete && !options.All {
			continue
		}
		if !options.DryRun {
			logger.Debug("Removing cached package", logger.Fields{"dir": e.Name, "complete": e.Complete})
			if err := os.RemoveAll(filepath.Join(info.Directory, e.Name)); err != nil {
				return result, fmt.Errorf("failed to remove %s: %w", e.Name, err)
			}
		}
		result.Removed = append(result.Removed, e.Name)
		result.TotalFreed += e.Size
	}
	return result, nil
}

func (m *Manager) complete(name string) bool {
	if fsutil.IsStagingName(name) {
		return false
	}
	meta, err := manifest.ReadDir(filepath.Join(m.store.Dir(), name))
	if err != nil {
		return false
	}
	identity := model.NewIdentity(meta.ID, meta.Version)
	if len(identity.Key()) != len(name) || !strings.EqualFold(identity.Key(), name) {
		return false
	}
	// the directory name is authoritative for on-disk lookups
	identity.ID = name[:len(meta.ID)]
	identity.Version = name[len(meta.ID)+1:]
	return m.store.IsDownloaded(identity)
}

func dirSize(path string) (int64, error) {
	var size int64
	err := filepath.WalkDir(path, func(_ string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.Type().IsRegular() {
			fi, err := d.Info()
			if err != nil {
				return err
			}
			size += fi.Size()
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("failed to measure %s: %w", path, err)
	}
	return size, nil
}

// FormatBytes converts bytes to a human-readable string.
func FormatBytes(bytes int64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}

	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}

	units := []string{"K", "M", "G", "T", "P", "E"}
	if exp < len(units) {
		return fmt.Sprintf("%.1f %sB", float64(bytes)/float64(div), units[exp])
	}
	return fmt.Sprintf("%d B", bytes)
}
