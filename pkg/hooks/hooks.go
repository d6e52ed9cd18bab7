// Package hooks runs the optional Tengo install scripts shipped inside a
// package under hooks/<phase>.tengo.
package hooks

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/d5/tengo/v2"
	"github.com/d5/tengo/v2/stdlib"
	"github.com/glorpus-work/sitepkg/internal/logger"
	"github.com/glorpus-work/sitepkg/pkg/errors"
)

// Phase names an install phase that may carry a script.
type Phase string

// Supported phases.
const (
	PreInstall  Phase = "pre-install"
	PostInstall Phase = "post-install"
)

const (
	// Dir is the hooks directory inside an unpacked package.
	Dir = "hooks"
	// Extension is the script file extension.
	Extension = ".tengo"
)

// Context is exposed to scripts as the "context", "dirs" and "vars" modules.
type Context struct {
	PackageID   string
	Version     string
	PackageType string
	PackageDir  string
	TargetDir   string
	Vars        map[string]string
}

// Executor runs the script of a phase when the package ships one.
type Executor interface {
	// Run executes <packageDir>/hooks/<phase>.tengo. It reports false when
	// no script exists.
	Run(ctx context.Context, phase Phase, hc *Context) (bool, error)
}

// DefaultModules are the standard library modules scripts may import.
// "os" is left out: scripts come from downloaded packages.
var DefaultModules = []string{"base64", "enum", "fmt", "hex", "json", "math", "rand", "text", "times"}

// TengoExecutor is the default Executor.
type TengoExecutor struct {
	modules []string
}

// NewTengoExecutor creates a new Tengo script executor. Scripts may import
// the named standard library modules, or DefaultModules when none are given.
func NewTengoExecutor(modules ...string) *TengoExecutor {
	if len(modules) == 0 {
		modules = DefaultModules
	}
	return &TengoExecutor{modules: modules}
}

// ScriptPath returns where the script of phase lives inside packageDir.
func ScriptPath(packageDir string, phase Phase) string {
	return filepath.Join(packageDir, Dir, string(phase)+Extension)
}

// Run implements Executor.
func (e *TengoExecutor) Run(ctx context.Context, phase Phase, hc *Context) (bool, error) {
	path := ScriptPath(hc.PackageDir, phase)
	content, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to read hook script %s: %w", path, err)
	}

	logger.Debug("Executing hook script", logger.Fields{
		"hook":    string(phase),
		"package": hc.PackageID,
		"version": hc.Version,
	})

	moduleMap := stdlib.GetModuleMap(e.modules...)
	setupModules(moduleMap, hc)

	script := tengo.NewScript(content)
	script.SetImports(moduleMap)

	compiled, err := script.RunContext(ctx)
	if err != nil {
		return true, errors.Wrapf(errors.ErrHookExecution, "%s: %v", phase, err)
	}

	if errVar := compiled.Get("err"); errVar != nil {
		switch v := errVar.Value().(type) {
		case error:
			return true, errors.Wrapf(errors.ErrHookScript, "%s: %v", phase, v)
		case string:
			if v != "" {
				return true, errors.Wrapf(errors.ErrHookScript, "%s: %s", phase, v)
			}
		}
	}
	return true, nil
}

func setupModules(moduleMap *tengo.ModuleMap, hc *Context) {
	moduleMap.AddBuiltinModule("context", map[string]tengo.Object{
		"package_id":      &tengo.String{Value: hc.PackageID},
		"package_version": &tengo.String{Value: hc.Version},
		"package_type":    &tengo.String{Value: hc.PackageType},
	})

	dirs := map[string]tengo.Object{
		"package_dir": &tengo.String{Value: hc.PackageDir},
	}
	if hc.TargetDir != "" {
		dirs["target_dir"] = &tengo.String{Value: hc.TargetDir}
	}
	moduleMap.AddBuiltinModule("dirs", dirs)

	vars := make(map[string]tengo.Object, len(hc.Vars))
	for k, v := range hc.Vars {
		vars[k] = &tengo.String{Value: v}
	}
	moduleMap.AddBuiltinModule("vars", vars)
}
