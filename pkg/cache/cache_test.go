package cache

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/glorpus-work/sitepkg/pkg/model"
	"github.com/glorpus-work/sitepkg/pkg/store"
	"github.com/glorpus-work/sitepkg/test/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// seed lays out one complete package, one package without its artifact and
// a stray directory without a manifest.
func seed(t *testing.T) (*store.Store, *Manager) {
	t.Helper()
	st := store.New(t.TempDir(), "Core.System", "Web.config")

	complete := model.NewIdentity("Lib.A", "1.0.0")
	testutil.Stage(t, st.Path(complete), testutil.Package{ID: "Lib.A", Version: "1.0.0", Files: map[string]string{"lib/A.dll": "aaaa"}})
	require.NoError(t, os.WriteFile(st.ArtifactPath(complete), []byte("zip"), 0o644))

	partial := model.NewIdentity("Lib.B", "2.0.0")
	testutil.Stage(t, st.Path(partial), testutil.Package{ID: "Lib.B", Version: "2.0.0"})

	testutil.WriteTree(t, filepath.Join(st.Dir(), "junk"), map[string]string{"x.txt": "x"})
	return st, NewManager(st)
}

func TestGetInfo(t *testing.T) {
	st, m := seed(t)

	info, err := m.GetInfo()
	require.NoError(t, err)
	assert.Equal(t, st.Dir(), info.Directory)
	assert.Equal(t, 1, info.Packages)
	assert.Equal(t, 2, info.Incomplete)
	require.Len(t, info.Entries, 3)
	assert.Equal(t, "Lib.A.1.0.0", info.Entries[0].Name)
	assert.True(t, info.Entries[0].Complete)
	assert.Positive(t, info.TotalSize)
}

func TestGetInfo_MissingDir(t *testing.T) {
	m := NewManager(store.New(filepath.Join(t.TempDir(), "none"), "Core.System", "Web.config"))
	info, err := m.GetInfo()
	require.NoError(t, err)
	assert.Empty(t, info.Entries)
}

func TestClean(t *testing.T) {
	tests := []struct {
		name      string
		opts      CleanOptions
		removed   []string
		remaining []string
	}{
		{
			name:      "incomplete only",
			removed:   []string{"Lib.B.2.0.0", "junk"},
			remaining: []string{"Lib.A.1.0.0"},
		},
		{
			name:    "all",
			opts:    CleanOptions{All: true},
			removed: []string{"Lib.A.1.0.0", "Lib.B.2.0.0", "junk"},
		},
		{
			name:      "dry run",
			opts:      CleanOptions{All: true, DryRun: true},
			removed:   []string{"Lib.A.1.0.0", "Lib.B.2.0.0", "junk"},
			remaining: []string{"Lib.A.1.0.0", "Lib.B.2.0.0", "junk"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			st, m := seed(t)

			result, err := m.Clean(tt.opts)
			require.NoError(t, err)
			assert.Equal(t, tt.removed, result.Removed)
			assert.Positive(t, result.TotalFreed)

			entries, err := os.ReadDir(st.Dir())
			require.NoError(t, err)
			var names []string
			for _, e := range entries {
				names = append(names, e.Name())
			}
			assert.Equal(t, tt.remaining, names)
		})
	}
}

func TestFormatBytes(t *testing.T) {
	assert.Equal(t, "512 B", FormatBytes(512))
	assert.Equal(t, "1.5 KB", FormatBytes(1536))
	assert.Equal(t, "2.0 MB", FormatBytes(2*1024*1024))
}
