// Package locator picks the binary directory of an unpacked package.
package locator

import (
	"path/filepath"
	"strings"

	"github.com/glorpus-work/sitepkg/pkg/fsutil"
)

// LibDir is the directory holding per-platform binaries inside a package.
const LibDir = "lib"

// DefaultTargets is the preference order used when none is configured.
var DefaultTargets = []string{"net45", "net451", "net452", "net46", "net461", "net462"}

// Locator resolves binary directories using an ordered list of target name
// prefixes.
type Locator struct {
	targets []string
}

// New creates a Locator. An empty targets list uses DefaultTargets.
func New(targets []string) *Locator {
	if len(targets) == 0 {
		targets = DefaultTargets
	}
	return &Locator{targets: targets}
}

// Locate returns the first child of <packageDir>/lib whose name starts with a
// preferred target, trying targets in order. It falls back to the lib
// directory itself.
func (l *Locator) Locate(packageDir string) string {
	lib := filepath.Join(packageDir, LibDir)
	children, err := fsutil.ListDirNames(lib)
	if err != nil || len(children) == 0 {
		return lib
	}
	for _, target := range l.targets {
		prefix := strings.ToLower(target)
		for _, child := range children {
			if strings.HasPrefix(strings.ToLower(child), prefix) {
				return filepath.Join(lib, child)
			}
		}
	}
	return lib
}
