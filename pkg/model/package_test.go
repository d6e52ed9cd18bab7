package model

import (
	"fmt"
	"testing"

	"github.com/glorpus-work/sitepkg/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPackageIdentity_Key(t *testing.T) {
	id := NewIdentity("SS.Plugin.Form", "2.1.0")
	assert.Equal(t, "SS.Plugin.Form.2.1.0", id.Key())
	assert.Equal(t, "SS.Plugin.Form@2.1.0", id.String())
}

func TestPackageIdentity_IsCoreSystem(t *testing.T) {
	assert.True(t, NewIdentity("Core.System", "1.2.0").IsCoreSystem("Core.System"))
	assert.True(t, NewIdentity("core.system", "1.2.0").IsCoreSystem("Core.System"))
	assert.False(t, NewIdentity("Core.System.Extra", "1.2.0").IsCoreSystem("Core.System"))
}

func TestParsePackageType(t *testing.T) {
	tests := []struct {
		in   string
		want PackageType
	}{
		{"plugin", Plugin},
		{"Plugin", Plugin},
		{"core", CoreSystem},
		{"CoreSystem", CoreSystem},
		{"library", Library},
		{"", Library},
		{"nonsense", Library},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, ParsePackageType(tt.in))
		})
	}
}

func TestPackageType_String(t *testing.T) {
	for _, pt := range []PackageType{Library, Plugin, CoreSystem} {
		assert.Equal(t, pt, ParsePackageType(pt.String()))
	}
}

func TestEffectiveType(t *testing.T) {
	core := NewIdentity("Core.System", "1.2.0")
	assert.Equal(t, CoreSystem, EffectiveType(core, Library, "Core.System"))
	assert.Equal(t, CoreSystem, EffectiveType(core, Plugin, "Core.System"))

	plugin := NewIdentity("SS.Plugin.Form", "1.0.0")
	assert.Equal(t, Plugin, EffectiveType(plugin, Plugin, "Core.System"))
	assert.Equal(t, Library, EffectiveType(plugin, Library, "Core.System"))
}

func TestInstallResult(t *testing.T) {
	ok := Succeeded([]Dependency{{ID: "a", Range: "1.0"}})
	assert.True(t, ok.Success)
	assert.Empty(t, ok.ErrorMessage)
	assert.Len(t, ok.Dependencies, 1)

	failed := Failed(errors.Wrap(errors.ErrConfigMissing, "manifest file does not exist"))
	assert.False(t, failed.Success)
	assert.Equal(t, errors.KindConfigMissing, failed.Kind)
	assert.Contains(t, failed.ErrorMessage, "manifest file does not exist")

	unknown := Failed(fmt.Errorf("boom"))
	assert.Equal(t, errors.KindUnknown, unknown.Kind)
}

func TestDependency_Constraint(t *testing.T) {
	tests := []struct {
		name      string
		rng       string
		inside    []string
		outside   []string
		expectErr bool
	}{
		{name: "empty accepts anything", rng: "", inside: []string{"0.0.1", "9.9.9"}},
		{name: "bare minimum", rng: "1.0", inside: []string{"1.0.0", "3.0.0"}, outside: []string{"0.9.0"}},
		{name: "exact", rng: "[1.2.0]", inside: []string{"1.2.0"}, outside: []string{"1.2.1"}},
		{name: "half open", rng: "[1.0,2.0)", inside: []string{"1.0.0", "1.9.9"}, outside: []string{"2.0.0", "0.9.0"}},
		{name: "upper inclusive only", rng: "(,2.0]", inside: []string{"0.1.0", "2.0.0"}, outside: []string{"2.0.1"}},
		{name: "lower exclusive only", rng: "(1.0,)", inside: []string{"1.0.1"}, outside: []string{"1.0.0"}},
		{name: "malformed", rng: "[1.0", expectErr: true},
		{name: "empty brackets", rng: "[,]", expectErr: true},
		{name: "exclusive exact", rng: "(1.0)", expectErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dep := Dependency{ID: "dep", Range: tt.rng}
			_, err := dep.Constraint()
			if tt.expectErr {
				require.Error(t, err)
				assert.False(t, dep.Satisfied("1.0.0"))
				return
			}
			require.NoError(t, err)
			for _, v := range tt.inside {
				assert.True(t, dep.Satisfied(v), "expected %s inside %q", v, tt.rng)
			}
			for _, v := range tt.outside {
				assert.False(t, dep.Satisfied(v), "expected %s outside %q", v, tt.rng)
			}
		})
	}
}

func TestSortedDependencies(t *testing.T) {
	deps := SortedDependencies(map[string]string{"b": "2.0", "a": "1.0"})
	require.Len(t, deps, 2)
	assert.Equal(t, "a", deps[0].ID)
	assert.Equal(t, "b", deps[1].ID)

	meta := &PackageMetadata{Dependencies: map[string]string{"x": "[1.0]"}}
	assert.Equal(t, []Dependency{{ID: "x", Range: "[1.0]"}}, meta.DependencyList())
}

func TestPackageIdentity_Validate(t *testing.T) {
	tests := []struct {
		name    string
		id      PackageIdentity
		wantErr bool
	}{
		{name: "plain", id: NewIdentity("SS.Plugin.Form", "2.1.0")},
		{name: "prerelease", id: NewIdentity("Lib.A", "1.0.0-beta.1")},
		{name: "empty id", id: NewIdentity("", "1.0"), wantErr: true},
		{name: "blank version", id: NewIdentity("a", " "), wantErr: true},
		{name: "traversal version", id: NewIdentity("x", "1/../.."), wantErr: true},
		{name: "parent id", id: NewIdentity("..", "1.0"), wantErr: true},
		{name: "dot id", id: NewIdentity(".", "1.0"), wantErr: true},
		{name: "absolute id", id: NewIdentity("/etc", "1.0"), wantErr: true},
		{name: "backslash", id: NewIdentity(`a\b`, "1.0"), wantErr: true},
		{name: "volume", id: NewIdentity("C:x", "1.0"), wantErr: true},
		{name: "nul", id: NewIdentity("a\x00b", "1.0"), wantErr: true},
		{name: "embedded parent", id: NewIdentity("a", "1..2"), wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.id.Validate()
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.Is(err, errors.ErrInvalidPath))
				return
			}
			require.NoError(t, err)
		})
	}
}
