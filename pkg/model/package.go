// Package model provides the data structures shared by the sitepkg install
// pipeline: package identities, manifest metadata, package types and results.
package model

import (
	"strings"

	"github.com/glorpus-work/sitepkg/pkg/errors"
)

// PackageIdentity addresses one downloadable unit.
type PackageIdentity struct {
	ID      string `json:"id" yaml:"id"`
	Version string `json:"version" yaml:"version"`
}

// NewIdentity builds an identity from its parts.
func NewIdentity(id, version string) PackageIdentity {
	return PackageIdentity{ID: id, Version: version}
}

// Key returns the "{id}.{version}" form used as the on-disk directory name.
func (p PackageIdentity) Key() string {
	return p.ID + "." + p.Version
}

// IsCoreSystem reports whether the identity names the reserved core package.
func (p PackageIdentity) IsCoreSystem(coreID string) bool {
	return strings.EqualFold(p.ID, coreID)
}

// Validate checks that both parts of the identity can name a directory
// under the package and plugin roots.
func (p PackageIdentity) Validate() error {
	if strings.TrimSpace(p.ID) == "" || strings.TrimSpace(p.Version) == "" {
		return errors.Wrap(errors.ErrInvalidPath, "package id and version are required")
	}
	if err := ValidateSegment(p.ID); err != nil {
		return errors.Wrap(err, "package id")
	}
	if err := ValidateSegment(p.Version); err != nil {
		return errors.Wrap(err, "package version")
	}
	return nil
}

// ValidateSegment rejects values that are not exactly one path element:
// empty names, separators, volume names and parent references.
func ValidateSegment(s string) error {
	switch {
	case strings.TrimSpace(s) == "":
		return errors.Wrap(errors.ErrInvalidPath, "empty name")
	case strings.ContainsAny(s, `/\:`+"\x00"):
		return errors.Wrapf(errors.ErrInvalidPath, "%q contains a path separator", s)
	case s == "." || strings.Contains(s, ".."):
		return errors.Wrapf(errors.ErrInvalidPath, "%q contains a parent reference", s)
	}
	return nil
}

// String returns a human friendly "id@version" representation.
func (p PackageIdentity) String() string {
	return p.ID + "@" + p.Version
}

// PackageType selects the install route. It is supplied by the caller, except
// for the reserved core id which always installs as CoreSystem.
type PackageType int

// Known package types.
const (
	Library PackageType = iota
	Plugin
	CoreSystem
)

// String returns the lower-case name used in config, flags and metrics.
func (t PackageType) String() string {
	switch t {
	case CoreSystem:
		return "core"
	case Plugin:
		return "plugin"
	default:
		return "library"
	}
}

// ParsePackageType maps a caller supplied name onto a PackageType. Unknown or
// empty names fall back to Library.
func ParsePackageType(s string) PackageType {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "core", "coresystem", "core-system", "sscms":
		return CoreSystem
	case "plugin":
		return Plugin
	default:
		return Library
	}
}

// EffectiveType applies the core override to a declared type.
func EffectiveType(identity PackageIdentity, declared PackageType, coreID string) PackageType {
	if identity.IsCoreSystem(coreID) {
		return CoreSystem
	}
	return declared
}

// PackageMetadata is what the manifest declares about a package. It lives for
// the duration of a single install.
type PackageMetadata struct {
	ID                 string
	Version            string
	Title              string
	Description        string
	Authors            string
	Dependencies       map[string]string
	DeclaredBinaryDirs []string
}

// DependencyList returns the declared dependencies sorted by id.
func (m *PackageMetadata) DependencyList() []Dependency {
	return SortedDependencies(m.Dependencies)
}

// InstallResult is returned synchronously by every install call.
type InstallResult struct {
	Success      bool         `json:"success" yaml:"success"`
	ErrorMessage string       `json:"error_message,omitempty" yaml:"error_message,omitempty"`
	Kind         errors.Kind  `json:"kind,omitempty" yaml:"kind,omitempty"`
	Dependencies []Dependency `json:"dependencies,omitempty" yaml:"dependencies,omitempty"`
}

// Succeeded builds a successful result.
func Succeeded(deps []Dependency) InstallResult {
	return InstallResult{Success: true, Dependencies: deps}
}

// Failed converts err into a failed result.
func Failed(err error) InstallResult {
	return InstallResult{
		Success:      false,
		ErrorMessage: err.Error(),
		Kind:         errors.KindOf(err),
	}
}
