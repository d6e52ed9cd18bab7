// Package cli implements the sitepkg subcommands.
package cli

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/glorpus-work/sitepkg/internal/logger"
	"github.com/glorpus-work/sitepkg/pkg/archive"
	"github.com/glorpus-work/sitepkg/pkg/config"
	"github.com/glorpus-work/sitepkg/pkg/download"
	"github.com/glorpus-work/sitepkg/pkg/fetcher"
	"github.com/glorpus-work/sitepkg/pkg/hooks"
	"github.com/glorpus-work/sitepkg/pkg/installer"
	"github.com/glorpus-work/sitepkg/pkg/locator"
	"github.com/glorpus-work/sitepkg/pkg/metrics"
	"github.com/glorpus-work/sitepkg/pkg/orchestrator"
	"github.com/glorpus-work/sitepkg/pkg/registry"
	"github.com/glorpus-work/sitepkg/pkg/store"
	"github.com/prometheus/client_golang/prometheus"
	"gopkg.in/yaml.v3"
)

// These variables will be set by the main package
var (
	ConfigPath   *string
	Verbose      *bool
	OutputFormat *string
)

// Output formats accepted by --output.
const (
	outputText = ""
	outputJSON = "json"
	outputYAML = "yaml"
)

// loadConfig loads the configuration, applies the global flags and
// initializes the logger.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(getConfigPath())
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if Verbose != nil && *Verbose {
		cfg.LogLevel = "debug"
	}
	logger.InitLogger(cfg.LogLevel, logger.OutputFormat(cfg.LogFormat))
	return cfg, nil
}

func getConfigPath() string {
	if ConfigPath != nil && *ConfigPath != "" {
		return *ConfigPath
	}

	defaultPath, err := config.GetDefaultConfigPath()
	if err != nil {
		logger.Warn("Failed to get default config path, using config.yaml", logger.Fields{"error": err.Error()})
		return "config.yaml"
	}
	return defaultPath
}

func outputFormat() string {
	if OutputFormat == nil {
		return outputText
	}
	return *OutputFormat
}

// site bundles the components built from one configuration.
type site struct {
	cfg       *config.Config
	store     *store.Store
	fetcher   *fetcher.Fetcher
	installer *installer.Installer
	registry  *registry.Registry
	metrics   *metrics.Metrics
	gatherer  prometheus.Gatherer
}

func newSite(cfg *config.Config) (*site, error) {
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)

	st := store.New(cfg.PackagesPath(), cfg.CoreSystemID, cfg.AppConfigFile)
	dl := download.NewManager(download.Config{
		Timeout:   cfg.Download.Timeout,
		RetryMax:  cfg.Download.RetryMax,
		UserAgent: cfg.Download.UserAgent,
	})
	f, err := fetcher.New(st, dl, archive.NewManager(), cfg.Download.BaseURL)
	if err != nil {
		return nil, err
	}

	plugins := registry.New(cfg.PluginsPath(), registry.WithMetrics(m))
	inst := installer.New(installer.Config{
		PluginsDir:     cfg.PluginsPath(),
		BinDir:         cfg.BinPath(),
		LibraryPattern: cfg.Install.LibraryPattern,
		Hooks:          cfg.Install.Hooks,
		HookVars:       cfg.Install.HookVars,
	}, st, locator.New(cfg.Install.BinaryTargets),
		installer.WithRegistry(plugins),
		installer.WithHooks(hooks.NewTengoExecutor()),
	)

	return &site{
		cfg:       cfg,
		store:     st,
		fetcher:   f,
		installer: inst,
		registry:  plugins,
		metrics:   m,
		gatherer:  reg,
	}, nil
}

func (s *site) updater(h orchestrator.Hooks, progress download.ProgressFunc) *orchestrator.Updater {
	return &orchestrator.Updater{
		Fetcher:   s.fetcher,
		Installer: s.installer,
		Metrics:   s.metrics,
		CoreID:    s.cfg.CoreSystemID,
		Progress:  progress,
		Hooks:     h,
	}
}

// writeMetrics dumps the collected metrics in the node exporter textfile
// format. An empty path is a no-op.
func (s *site) writeMetrics(path string) error {
	if path == "" {
		return nil
	}
	if err := prometheus.WriteToTextfile(path, s.gatherer); err != nil {
		return fmt.Errorf("failed to write metrics to %s: %w", path, err)
	}
	return nil
}

// printStructured writes v as JSON or YAML. It returns false for the text
// format so the caller can render its own table.
func printStructured(w io.Writer, v any) (bool, error) {
	switch outputFormat() {
	case outputJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return true, enc.Encode(v)
	case outputYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(config.YAMLIndent)
		defer func() { _ = enc.Close() }()
		return true, enc.Encode(v)
	case outputText, "table":
		return false, nil
	default:
		return true, fmt.Errorf("unsupported output format %q", outputFormat())
	}
}

