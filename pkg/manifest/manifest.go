// Package manifest reads .nuspec package manifests.
package manifest

import (
	"encoding/xml"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/glorpus-work/sitepkg/pkg/errors"
	"github.com/glorpus-work/sitepkg/pkg/model"
)

// Extension is the manifest file extension.
const Extension = ".nuspec"

type document struct {
	XMLName  xml.Name  `xml:"package"`
	Metadata *metadata `xml:"metadata"`
}

type metadata struct {
	ID           string        `xml:"id"`
	Version      string        `xml:"version"`
	Title        string        `xml:"title"`
	Description  string        `xml:"description"`
	Authors      string        `xml:"authors"`
	Dependencies *dependencies `xml:"dependencies"`
}

type dependencies struct {
	Direct []dependency `xml:"dependency"`
	Groups []group      `xml:"group"`
}

type group struct {
	TargetFramework string       `xml:"targetFramework,attr"`
	Dependencies    []dependency `xml:"dependency"`
}

type dependency struct {
	ID      string `xml:"id,attr"`
	Version string `xml:"version,attr"`
}

// FindManifest returns the path of the first .nuspec file directly inside
// dir, or "" when there is none.
func FindManifest(dir string) (string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", fmt.Errorf("failed to list %s: %w", dir, err)
	}
	for _, entry := range entries {
		if entry.Type().IsRegular() && strings.EqualFold(filepath.Ext(entry.Name()), Extension) {
			return filepath.Join(dir, entry.Name()), nil
		}
	}
	return "", nil
}

// Read parses the manifest at path.
func Read(path string) (*model.PackageMetadata, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.Wrapf(errors.ErrManifestMissing, "manifest %s", path)
		}
		return nil, errors.Wrapf(err, "reading manifest %s", path)
	}
	return Parse(path, data)
}

// Parse decodes manifest bytes. name is only used in error messages.
func Parse(name string, data []byte) (*model.PackageMetadata, error) {
	var doc document
	if err := xml.Unmarshal(data, &doc); err != nil {
		return nil, invalid(name)
	}
	if doc.Metadata == nil || strings.TrimSpace(doc.Metadata.ID) == "" {
		return nil, invalid(name)
	}
	if err := model.ValidateSegment(strings.TrimSpace(doc.Metadata.ID)); err != nil {
		return nil, errors.Wrapf(errors.Mark(errors.ErrManifestInvalid, err), "manifest %s", name)
	}

	md := doc.Metadata
	meta := &model.PackageMetadata{
		ID:           strings.TrimSpace(md.ID),
		Version:      strings.TrimSpace(md.Version),
		Title:        strings.TrimSpace(md.Title),
		Description:  strings.TrimSpace(md.Description),
		Authors:      strings.TrimSpace(md.Authors),
		Dependencies: map[string]string{},
	}
	if md.Dependencies != nil {
		for _, g := range md.Dependencies.Groups {
			if g.TargetFramework != "" {
				meta.DeclaredBinaryDirs = append(meta.DeclaredBinaryDirs, g.TargetFramework)
			}
			addDependencies(meta.Dependencies, g.Dependencies)
		}
		addDependencies(meta.Dependencies, md.Dependencies.Direct)
	}
	return meta, nil
}

// ReadDir locates and parses the manifest of an unpacked package directory.
func ReadDir(dir string) (*model.PackageMetadata, error) {
	path, err := FindManifest(dir)
	if err != nil {
		return nil, err
	}
	if path == "" {
		return nil, errors.Wrap(errors.ErrConfigMissing, "manifest file does not exist")
	}
	return Read(path)
}

func addDependencies(into map[string]string, deps []dependency) {
	for _, d := range deps {
		id := strings.TrimSpace(d.ID)
		if id == "" {
			continue
		}
		into[id] = strings.TrimSpace(d.Version)
	}
}

func invalid(name string) error {
	return errors.Wrapf(errors.ErrManifestInvalid, "manifest %s is not valid", name)
}
