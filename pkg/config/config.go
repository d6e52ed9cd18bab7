// Package config provides configuration management for sitepkg. Settings are
// read from a YAML file, completed with defaults and finally overridden by
// SITEPKG_* environment variables.
package config

import (
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/glorpus-work/sitepkg/pkg/errors"
	"github.com/glorpus-work/sitepkg/pkg/fsutil"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// Config represents the application configuration.
type Config struct {
	// AppRoot is the live application tree. Relative directories below are
	// resolved against it.
	AppRoot       string `yaml:"app_root"`
	PackagesDir   string `yaml:"packages_dir"`
	PluginsDir    string `yaml:"plugins_dir"`
	BinDir        string `yaml:"bin_dir"`
	CoreSystemID  string `yaml:"core_system_id"`
	AppConfigFile string `yaml:"app_config_file"`

	Download DownloadConfig `yaml:"download"`
	Install  InstallConfig  `yaml:"install"`

	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`
}

// DownloadConfig configures artifact downloads.
type DownloadConfig struct {
	BaseURL   string        `yaml:"base_url"`
	Timeout   time.Duration `yaml:"timeout"`
	RetryMax  int           `yaml:"retry_max"`
	UserAgent string        `yaml:"user_agent,omitempty"`
}

// InstallConfig configures the install routes.
type InstallConfig struct {
	BinaryTargets  []string `yaml:"binary_targets"`
	LibraryPattern string   `yaml:"library_pattern"`
	Hooks          bool     `yaml:"hooks"`

	// HookVars is exposed to hook scripts as the "vars" module.
	HookVars map[string]string `yaml:"hook_vars,omitempty"`
}

// Default configuration values.
const (
	DefaultCoreSystemID   = "Core.System"
	DefaultAppConfigFile  = "Web.config"
	DefaultBaseURL        = "https://api.siteserver.cn/downloads"
	DefaultTimeout        = 5 * time.Minute
	DefaultLibraryPattern = "*"
	DefaultLogLevel       = "info"
	DefaultLogFormat      = "text"

	// EnvPrefix prefixes every environment override.
	EnvPrefix = "SITEPKG"

	// YAMLIndent is the number of spaces to use for YAML indentation.
	YAMLIndent = 2
)

// DefaultBinaryTargets is the binary directory preference order.
var DefaultBinaryTargets = []string{"net45", "net451", "net452", "net46", "net461", "net462"}

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() *Config {
	c := &Config{}
	c.applyDefaults()
	return c
}

// Load reads path (missing files yield defaults), applies environment
// overrides and validates the result.
func Load(path string) (*Config, error) {
	c, err := LoadConfig(path)
	if err != nil {
		return nil, err
	}
	if err := c.ApplyEnv(); err != nil {
		return nil, err
	}
	c.applyDefaults()
	if err := c.resolveRoot(); err != nil {
		return nil, err
	}
	if err := c.Validate(); err != nil {
		return nil, errors.Wrap(errors.ErrConfigValidation, err.Error())
	}
	return c, nil
}

// resolveRoot pins a relative app_root to the working directory so every
// derived directory is absolute.
func (c *Config) resolveRoot() error {
	if filepath.IsAbs(c.AppRoot) {
		return nil
	}
	abs, err := filepath.Abs(c.AppRoot)
	if err != nil {
		return errors.Wrapf(errors.ErrInvalidPath, "app_root %q: %v", c.AppRoot, err)
	}
	c.AppRoot = abs
	return nil
}

// LoadConfig loads configuration from a file.
func LoadConfig(path string) (*Config, error) {
	if path == "" {
		return nil, errors.ErrEmptyConfigPath
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, errors.Wrap(errors.ErrInvalidConfigPath, err.Error())
	}

	file, err := os.Open(absPath)
	if err != nil {
		if os.IsNotExist(err) {
			return DefaultConfig(), nil
		}
		return nil, errors.Wrapf(err, "failed to open config file: %s", path)
	}
	defer func() { _ = file.Close() }()

	return LoadConfigFromReader(file)
}

// LoadConfigFromReader loads configuration from an io.Reader.
func LoadConfigFromReader(reader io.Reader) (*Config, error) {
	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read config data")
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, errors.Wrap(errors.ErrConfigParse, err.Error())
	}

	config.applyDefaults()

	if err := config.Validate(); err != nil {
		return nil, errors.Wrap(errors.ErrConfigValidation, err.Error())
	}

	return &config, nil
}

// envOverrides mirrors the settings that may come from the environment.
// Unset variables leave the pointer nil.
type envOverrides struct {
	AppRoot          *string           `envconfig:"APP_ROOT"`
	PackagesDir      *string           `envconfig:"PACKAGES_DIR"`
	PluginsDir       *string           `envconfig:"PLUGINS_DIR"`
	BinDir           *string           `envconfig:"BIN_DIR"`
	CoreSystemID     *string           `envconfig:"CORE_SYSTEM_ID"`
	AppConfigFile    *string           `envconfig:"APP_CONFIG_FILE"`
	DownloadBaseURL  *string           `envconfig:"DOWNLOAD_BASE_URL"`
	DownloadTimeout  *time.Duration    `envconfig:"DOWNLOAD_TIMEOUT"`
	DownloadRetryMax *int              `envconfig:"DOWNLOAD_RETRY_MAX"`
	BinaryTargets    []string          `envconfig:"BINARY_TARGETS"`
	LibraryPattern   *string           `envconfig:"LIBRARY_PATTERN"`
	Hooks            *bool             `envconfig:"HOOKS"`
	HookVars         map[string]string `envconfig:"HOOK_VARS"`
	LogLevel         *string           `envconfig:"LOG_LEVEL"`
	LogFormat        *string           `envconfig:"LOG_FORMAT"`
}

// ApplyEnv overrides settings from SITEPKG_* environment variables.
func (c *Config) ApplyEnv() error {
	var env envOverrides
	if err := envconfig.Process(EnvPrefix, &env); err != nil {
		return errors.Wrap(errors.ErrConfigParse, err.Error())
	}

	setString(&c.AppRoot, env.AppRoot)
	setString(&c.PackagesDir, env.PackagesDir)
	setString(&c.PluginsDir, env.PluginsDir)
	setString(&c.BinDir, env.BinDir)
	setString(&c.CoreSystemID, env.CoreSystemID)
	setString(&c.AppConfigFile, env.AppConfigFile)
	setString(&c.Download.BaseURL, env.DownloadBaseURL)
	setString(&c.Install.LibraryPattern, env.LibraryPattern)
	setString(&c.LogLevel, env.LogLevel)
	setString(&c.LogFormat, env.LogFormat)
	if env.DownloadTimeout != nil {
		c.Download.Timeout = *env.DownloadTimeout
	}
	if env.DownloadRetryMax != nil {
		c.Download.RetryMax = *env.DownloadRetryMax
	}
	if len(env.BinaryTargets) > 0 {
		c.Install.BinaryTargets = env.BinaryTargets
	}
	if env.Hooks != nil {
		c.Install.Hooks = *env.Hooks
	}
	if len(env.HookVars) > 0 {
		c.Install.HookVars = env.HookVars
	}
	return nil
}

func setString(dst *string, v *string) {
	if v != nil {
		*dst = *v
	}
}

func (c *Config) applyDefaults() {
	if c.AppRoot == "" {
		root, err := fsutil.GetDataDir()
		if err != nil {
			root = "."
		}
		c.AppRoot = root
	}
	if c.PackagesDir == "" {
		c.PackagesDir = "packages"
	}
	if c.PluginsDir == "" {
		c.PluginsDir = "plugins"
	}
	if c.BinDir == "" {
		c.BinDir = "Bin"
	}
	if c.CoreSystemID == "" {
		c.CoreSystemID = DefaultCoreSystemID
	}
	if c.AppConfigFile == "" {
		c.AppConfigFile = DefaultAppConfigFile
	}
	if c.Download.BaseURL == "" {
		c.Download.BaseURL = DefaultBaseURL
	}
	if c.Download.Timeout == 0 {
		c.Download.Timeout = DefaultTimeout
	}
	if len(c.Install.BinaryTargets) == 0 {
		c.Install.BinaryTargets = append([]string(nil), DefaultBinaryTargets...)
	}
	if c.Install.LibraryPattern == "" {
		c.Install.LibraryPattern = DefaultLibraryPattern
	}
	if c.LogLevel == "" {
		c.LogLevel = DefaultLogLevel
	}
	if c.LogFormat == "" {
		c.LogFormat = DefaultLogFormat
	}
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c == nil {
		return errors.ErrConfigValidation
	}
	if strings.TrimSpace(c.CoreSystemID) == "" {
		return fmt.Errorf("core_system_id cannot be empty")
	}
	u, err := url.Parse(c.Download.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("download.base_url %q is not an absolute URL", c.Download.BaseURL)
	}
	if c.Download.Timeout < 0 {
		return fmt.Errorf("download.timeout cannot be negative")
	}
	if c.Download.RetryMax < 0 {
		return fmt.Errorf("download.retry_max cannot be negative")
	}
	if !doublestar.ValidatePattern(c.Install.LibraryPattern) {
		return fmt.Errorf("install.library_pattern %q is not a valid glob", c.Install.LibraryPattern)
	}
	switch strings.ToLower(c.LogLevel) {
	case "debug", "info", "warn", "error":
	default:
		return errors.ErrInvalidLogLevelWithDetails(c.LogLevel)
	}
	switch c.LogFormat {
	case "text", "json":
	default:
		return fmt.Errorf("invalid log format %q, must be one of: text, json", c.LogFormat)
	}
	return nil
}

// SaveConfig saves configuration to a file.
func (c *Config) SaveConfig(path string) error {
	if path == "" {
		return errors.ErrEmptyConfigPath
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return errors.Wrap(errors.ErrInvalidConfigPath, err.Error())
	}

	if err := fsutil.EnsureFileDir(absPath); err != nil {
		return errors.Wrap(errors.ErrConfigDirectory, err.Error())
	}

	tempPath := absPath + ".tmp"
	file, err := fsutil.CreateFilePerm(tempPath, fsutil.FileModeDefault)
	if err != nil {
		return errors.Wrap(errors.ErrConfigFileCreate, err.Error())
	}

	encoder := yaml.NewEncoder(file)
	encoder.SetIndent(YAMLIndent)
	if err := encoder.Encode(c); err != nil {
		_ = file.Close()
		_ = os.Remove(tempPath)
		return errors.Wrap(errors.ErrConfigEncode, err.Error())
	}
	_ = encoder.Close()
	_ = file.Close()

	if err := os.Rename(tempPath, absPath); err != nil {
		_ = os.Remove(tempPath)
		return errors.Wrap(errors.ErrConfigFileRename, err.Error())
	}
	return nil
}

// ToYAML converts the config to YAML bytes.
func (c *Config) ToYAML() ([]byte, error) {
	data, err := yaml.Marshal(c)
	if err != nil {
		return nil, errors.Wrap(errors.ErrConfigEncode, err.Error())
	}
	return data, nil
}

// GetDefaultConfigPath returns the default configuration file path.
func GetDefaultConfigPath() (string, error) {
	dir, err := fsutil.GetConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.yaml"), nil
}

// PackagesPath returns the package cache directory.
func (c *Config) PackagesPath() string { return fsutil.ResolveUnder(c.AppRoot, c.PackagesDir) }

// PluginsPath returns the plugins directory.
func (c *Config) PluginsPath() string { return fsutil.ResolveUnder(c.AppRoot, c.PluginsDir) }

// BinPath returns the shared binary directory.
func (c *Config) BinPath() string { return fsutil.ResolveUnder(c.AppRoot, c.BinDir) }
