// Package testutil builds .nupkg fixtures and serves them over HTTP for tests.
package testutil

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"

	"github.com/glorpus-work/sitepkg/pkg/archive"
	"github.com/stretchr/testify/require"
)

// Package describes a fixture package.
type Package struct {
	ID           string
	Version      string
	Files        map[string]string // slash separated path -> content
	Dependencies map[string]string
	// Manifest replaces the generated manifest when set.
	Manifest string
	// NoManifest leaves the manifest out of the artifact.
	NoManifest bool
}

// ManifestXML renders a minimal .nuspec document.
func ManifestXML(id, version string, deps map[string]string) string {
	var b strings.Builder
	b.WriteString(`<?xml version="1.0" encoding="utf-8"?>` + "\n")
	b.WriteString(`<package xmlns="http://schemas.microsoft.com/packaging/2013/05/nuspec.xsd">` + "\n")
	b.WriteString("  <metadata>\n")
	fmt.Fprintf(&b, "    <id>%s</id>\n    <version>%s</version>\n", id, version)
	fmt.Fprintf(&b, "    <title>%s</title>\n    <authors>sitepkg</authors>\n", id)
	if len(deps) > 0 {
		ids := make([]string, 0, len(deps))
		for dep := range deps {
			ids = append(ids, dep)
		}
		sort.Strings(ids)
		b.WriteString("    <dependencies>\n")
		for _, dep := range ids {
			fmt.Fprintf(&b, "      <dependency id=%q version=%q />\n", dep, deps[dep])
		}
		b.WriteString("    </dependencies>\n")
	}
	b.WriteString("  </metadata>\n</package>\n")
	return b.String()
}

// WriteTree writes files below root.
func WriteTree(t *testing.T, root string, files map[string]string) {
	t.Helper()
	for name, content := range files {
		path := filepath.Join(root, filepath.FromSlash(name))
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	}
}

// Stage lays pkg out as an unpacked package directory in dir.
func Stage(t *testing.T, dir string, pkg Package) {
	t.Helper()
	files := make(map[string]string, len(pkg.Files)+1)
	for k, v := range pkg.Files {
		files[k] = v
	}
	if !pkg.NoManifest {
		manifest := pkg.Manifest
		if manifest == "" {
			manifest = ManifestXML(pkg.ID, pkg.Version, pkg.Dependencies)
		}
		files[pkg.ID+".nuspec"] = manifest
	}
	WriteTree(t, dir, files)
}

// BuildNupkg returns the zip bytes of pkg.
func BuildNupkg(t *testing.T, pkg Package) []byte {
	t.Helper()
	root := t.TempDir()
	src := filepath.Join(root, "src")
	require.NoError(t, os.MkdirAll(src, 0o755))
	Stage(t, src, pkg)

	out := filepath.Join(root, pkg.ID+"."+pkg.Version+".nupkg")
	require.NoError(t, archive.NewManager().Create(context.Background(), src, out))

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	return data
}
