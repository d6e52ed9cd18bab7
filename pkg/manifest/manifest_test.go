package manifest

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/glorpus-work/sitepkg/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const formManifest = `<?xml version="1.0" encoding="utf-8"?>
<package xmlns="http://schemas.microsoft.com/packaging/2013/05/nuspec.xsd">
  <metadata>
    <id>SS.Plugin.Form</id>
    <version>2.1.0</version>
    <title>Form</title>
    <authors>SiteServer</authors>
    <description>Form plugin</description>
    <dependencies>
      <group targetFramework=".NETFramework4.5">
        <dependency id="Newtonsoft.Json" version="[10.0.3]" />
        <dependency id="Dapper" version="1.50" />
      </group>
      <dependency id="SS.Common" version="[1.0,2.0)" />
    </dependencies>
  </metadata>
</package>`

func writeManifest(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestRead(t *testing.T) {
	path := writeManifest(t, t.TempDir(), "SS.Plugin.Form.nuspec", formManifest)

	meta, err := Read(path)
	require.NoError(t, err)

	assert.Equal(t, "SS.Plugin.Form", meta.ID)
	assert.Equal(t, "2.1.0", meta.Version)
	assert.Equal(t, "Form", meta.Title)
	assert.Equal(t, "SiteServer", meta.Authors)
	assert.Equal(t, map[string]string{
		"Newtonsoft.Json": "[10.0.3]",
		"Dapper":          "1.50",
		"SS.Common":       "[1.0,2.0)",
	}, meta.Dependencies)
	assert.Equal(t, []string{".NETFramework4.5"}, meta.DeclaredBinaryDirs)
	assert.Len(t, meta.DependencyList(), 3)
}

func TestRead_Errors(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    errors.Kind
	}{
		{name: "no metadata", content: `<package></package>`, want: errors.KindManifestInvalid},
		{name: "empty id", content: `<package><metadata><id> </id><version>1.0</version></metadata></package>`, want: errors.KindManifestInvalid},
		{name: "not xml", content: `{"id":"x"}`, want: errors.KindManifestInvalid},
		{name: "parent id", content: `<package><metadata><id>../..</id><version>1.0</version></metadata></package>`, want: errors.KindManifestInvalid},
		{name: "nested id", content: `<package><metadata><id>a/b</id><version>1.0</version></metadata></package>`, want: errors.KindManifestInvalid},
		{name: "dot id", content: `<package><metadata><id>.</id><version>1.0</version></metadata></package>`, want: errors.KindManifestInvalid},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeManifest(t, t.TempDir(), "bad.nuspec", tt.content)
			_, err := Read(path)
			require.Error(t, err)
			assert.Equal(t, tt.want, errors.KindOf(err))
			assert.Contains(t, err.Error(), "is not valid")
		})
	}

	_, err := Read(filepath.Join(t.TempDir(), "missing.nuspec"))
	require.Error(t, err)
	assert.Equal(t, errors.KindManifestMissing, errors.KindOf(err))
}

func TestFindManifest(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(dir, "sub.nuspec"), 0o755))
	writeManifest(t, dir, "readme.txt", "x")

	path, err := FindManifest(dir)
	require.NoError(t, err)
	assert.Empty(t, path)

	want := writeManifest(t, dir, "Pkg.NUSPEC", formManifest)
	path, err = FindManifest(dir)
	require.NoError(t, err)
	assert.Equal(t, want, path)

	path, err = FindManifest(filepath.Join(dir, "missing"))
	require.NoError(t, err)
	assert.Empty(t, path)
}

func TestReadDir(t *testing.T) {
	dir := t.TempDir()

	_, err := ReadDir(dir)
	require.Error(t, err)
	assert.Equal(t, errors.KindConfigMissing, errors.KindOf(err))
	assert.Contains(t, err.Error(), "manifest file does not exist")

	writeManifest(t, dir, "SS.Plugin.Form.nuspec", formManifest)
	meta, err := ReadDir(dir)
	require.NoError(t, err)
	assert.Equal(t, "SS.Plugin.Form", meta.ID)
}
