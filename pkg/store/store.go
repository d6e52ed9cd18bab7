// Package store manages the on-disk cache of unpacked packages. Each package
// lives in <packagesDir>/<id>.<version> and at most one version of an id is
// kept.
package store

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/glorpus-work/sitepkg/internal/logger"
	"github.com/glorpus-work/sitepkg/pkg/fsutil"
	"github.com/glorpus-work/sitepkg/pkg/model"
	"github.com/hashicorp/go-version"
)

const (
	// ArtifactExt is the extension of the downloaded artifact.
	ArtifactExt = ".nupkg"
	// ManifestExt is the extension of the manifest file.
	ManifestExt = ".nuspec"
)

// Store is the package cache rooted at a packages directory.
type Store struct {
	dir           string
	coreID        string
	appConfigFile string
}

// New creates a Store. coreID names the package that must also carry
// appConfigFile to count as downloaded.
func New(packagesDir, coreID, appConfigFile string) *Store {
	return &Store{dir: packagesDir, coreID: coreID, appConfigFile: appConfigFile}
}

// Dir returns the packages directory.
func (s *Store) Dir() string {
	return s.dir
}

// CoreID returns the reserved core package id.
func (s *Store) CoreID() string {
	return s.coreID
}

// Path returns the directory of identity.
func (s *Store) Path(identity model.PackageIdentity) string {
	return filepath.Join(s.dir, identity.Key())
}

// ArtifactPath returns where the downloaded artifact of identity is stored.
func (s *Store) ArtifactPath(identity model.PackageIdentity) string {
	return filepath.Join(s.Path(identity), identity.Key()+ArtifactExt)
}

// ManifestPath returns the conventional manifest location of identity.
func (s *Store) ManifestPath(identity model.PackageIdentity) string {
	return filepath.Join(s.Path(identity), identity.ID+ManifestExt)
}

// AppConfigPath returns the application config file inside a core package.
func (s *Store) AppConfigPath(identity model.PackageIdentity) string {
	return filepath.Join(s.Path(identity), s.appConfigFile)
}

// IsDownloaded reports whether identity is fully present: artifact and
// manifest, plus the application config file for the core package.
func (s *Store) IsDownloaded(identity model.PackageIdentity) bool {
	if !fsutil.DirExists(s.Path(identity)) {
		return false
	}
	if !fsutil.FileExists(s.ArtifactPath(identity)) || !fsutil.FileExists(s.ManifestPath(identity)) {
		return false
	}
	if identity.IsCoreSystem(s.coreID) {
		return fsutil.FileExists(s.AppConfigPath(identity))
	}
	return true
}

// PurgeOtherVersions removes every resident version of identity.ID except
// identity itself. A directory only counts as a version of the id when the
// rest of its name after "<id>." parses as a version, so "A.B.1.0" is not a
// version of "A".
func (s *Store) PurgeOtherVersions(identity model.PackageIdentity) error {
	names, err := s.Resident(identity.ID)
	if err != nil {
		return err
	}
	keep := identity.Key()
	for _, name := range names {
		if strings.EqualFold(name, keep) {
			continue
		}
		path := filepath.Join(s.dir, name)
		logger.Debug("Purging package version", logger.Fields{"package": identity.ID, "dir": name})
		if err := os.RemoveAll(path); err != nil {
			return fmt.Errorf("failed to purge %s: %w", path, err)
		}
	}
	return nil
}

// Resident lists the directory names holding a version of id.
func (s *Store) Resident(id string) ([]string, error) {
	names, err := fsutil.ListDirNames(s.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to list packages dir %s: %w", s.dir, err)
	}
	prefix := strings.ToLower(id) + "."
	var out []string
	for _, name := range names {
		if !strings.HasPrefix(strings.ToLower(name), prefix) {
			continue
		}
		if _, err := version.NewVersion(name[len(prefix):]); err != nil {
			continue
		}
		out = append(out, name)
	}
	return out, nil
}
