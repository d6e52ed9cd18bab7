package config

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
)

// SetValue sets a configuration value by its dotted key, e.g.
// "download.retry_max". List values are comma separated.
func (c *Config) SetValue(key, value string) error {
	switch key {
	case "app_root":
		c.AppRoot = value
	case "packages_dir":
		c.PackagesDir = value
	case "plugins_dir":
		c.PluginsDir = value
	case "bin_dir":
		c.BinDir = value
	case "core_system_id":
		c.CoreSystemID = value
	case "app_config_file":
		c.AppConfigFile = value
	case "download.base_url":
		c.Download.BaseURL = value
	case "download.timeout":
		d, err := time.ParseDuration(value)
		if err != nil {
			return fmt.Errorf("invalid duration for %s: %s", key, value)
		}
		c.Download.Timeout = d
	case "download.retry_max":
		n, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid integer for %s: %s", key, value)
		}
		c.Download.RetryMax = n
	case "install.binary_targets":
		c.Install.BinaryTargets = splitList(value)
	case "install.library_pattern":
		c.Install.LibraryPattern = value
	case "install.hooks":
		b, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("invalid boolean value for %s: %s", key, value)
		}
		c.Install.Hooks = b
	case "log_level":
		c.LogLevel = value
	case "log_format":
		c.LogFormat = value
	default:
		return fmt.Errorf("unknown configuration key: %s", key)
	}
	return nil
}

// GetValue returns a configuration value by its dotted key.
func (c *Config) GetValue(key string) (string, error) {
	v, ok := c.ToMap()[key]
	if !ok {
		return "", fmt.Errorf("unknown configuration key: %s", key)
	}
	return v, nil
}

// ToMap flattens the configuration into dotted keys.
func (c *Config) ToMap() map[string]string {
	return map[string]string{
		"app_root":                c.AppRoot,
		"packages_dir":            c.PackagesDir,
		"plugins_dir":             c.PluginsDir,
		"bin_dir":                 c.BinDir,
		"core_system_id":          c.CoreSystemID,
		"app_config_file":         c.AppConfigFile,
		"download.base_url":       c.Download.BaseURL,
		"download.timeout":        c.Download.Timeout.String(),
		"download.retry_max":      strconv.Itoa(c.Download.RetryMax),
		"install.binary_targets":  strings.Join(c.Install.BinaryTargets, ","),
		"install.library_pattern": c.Install.LibraryPattern,
		"install.hooks":           strconv.FormatBool(c.Install.Hooks),
		"log_level":               c.LogLevel,
		"log_format":              c.LogFormat,
	}
}

// Keys returns the supported keys in sorted order.
func (c *Config) Keys() []string {
	m := c.ToMap()
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func splitList(value string) []string {
	var out []string
	for _, part := range strings.Split(value, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
