// Package config provides configuration loading and parsing functionality
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// ConfigFormat represents the configuration file format
type ConfigFormat string

const (
	FormatYAML ConfigFormat = "yaml"
	FormatJSON ConfigFormat = "json"
	FormatTOML ConfigFormat = "toml"
)

// formatOf determines the configuration format from a file extension
func formatOf(filename string) (ConfigFormat, error) {
	switch ext := strings.ToLower(filepath.Ext(filename)); ext {
	case ".yaml", ".yml":
		return FormatYAML, nil
	case ".json":
		return FormatJSON, nil
	case ".toml":
		return FormatTOML, nil
	default:
		return "", fmt.Errorf("unsupported config file format: %s", ext)
	}
}

// Loader handles configuration loading from various sources
type Loader struct {
	// Configuration search paths
	searchPaths []string

	// Environment variable prefix
	envPrefix string

	// Default configuration
	defaultConfig *Config
}

// NewLoader creates a new configuration loader
func NewLoader() *Loader {
	return &Loader{
		searchPaths: []string{
			".",
			"./config",
			"/etc/uboss",
			os.Getenv("HOME") + "/.uboss",
		},
		envPrefix:     "UBOSS",
		defaultConfig: DefaultConfig(),
	}
}

// SetSearchPaths sets the configuration file search paths
func (l *Loader) SetSearchPaths(paths []string) *Loader {
	l.searchPaths = paths
	return l
}

// SetEnvPrefix sets the environment variable prefix
func (l *Loader) SetEnvPrefix(prefix string) *Loader {
	l.envPrefix = prefix
	return l
}

// SetDefaultConfig sets the default configuration
func (l *Loader) SetDefaultConfig(config *Config) *Loader {
	l.defaultConfig = config
	return l
}

func (l *Loader) defaults() *Config {
	if l.defaultConfig == nil {
		return DefaultConfig()
	}
	merged := *l.defaultConfig
	merged.Env = make(map[string]string, len(l.defaultConfig.Env))
	for k, v := range l.defaultConfig.Env {
		merged.Env[k] = v
	}
	return &merged
}

// Load loads configuration from the specified file, or auto-discovers one
// when filename is empty
func (l *Loader) Load(filename string) (*Config, error) {
	if filename == "" {
		return l.AutoLoad()
	}

	config, err := l.loadFromFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to load config from file %s: %w", filename, err)
	}
	return config, nil
}

// LoadFromFile loads configuration from a specific file
func (l *Loader) LoadFromFile(filename string) (*Config, error) {
	return l.loadFromFile(filename)
}

// LoadFromReader loads configuration from an io.Reader. The result is not
// merged with defaults.
func (l *Loader) LoadFromReader(reader io.Reader, format ConfigFormat) (*Config, error) {
	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("failed to read configuration data: %w", err)
	}

	return l.parseConfig(data, format)
}

// AutoLoad automatically discovers and loads configuration
func (l *Loader) AutoLoad() (*Config, error) {
	configFile, err := l.findConfigFile()
	if errors.Is(err, ErrConfigFileNotFound) {
		// no file: defaults plus environment
		return l.finish(l.defaults())
	}
	if err != nil {
		return nil, err
	}
	return l.loadFromFile(configFile)
}

// findConfigFile searches for configuration files in search paths
func (l *Loader) findConfigFile() (string, error) {
	filenames := []string{
		"uboss.yaml", "uboss.yml",
		"uboss.json", "uboss.toml",
	}

	for _, searchPath := range l.searchPaths {
		for _, filename := range filenames {
			fullPath := filepath.Join(searchPath, filename)
			if _, err := os.Stat(fullPath); err == nil {
				return fullPath, nil
			}
		}
	}

	return "", ErrConfigFileNotFound
}

// loadFromFile loads configuration from a file
func (l *Loader) loadFromFile(filename string) (*Config, error) {
	format, err := formatOf(filename)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config, err := l.parseConfig(data, format)
	if err != nil {
		return nil, err
	}

	// Merge with default config to fill missing fields
	return l.finish(l.mergeConfig(l.defaults(), config))
}

// finish applies environment overrides and validates
func (l *Loader) finish(config *Config) (*Config, error) {
	if err := l.loadFromEnv(config); err != nil {
		return nil, fmt.Errorf("failed to load environment overrides: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return config, nil
}

// parseConfig parses configuration data based on format
func (l *Loader) parseConfig(data []byte, format ConfigFormat) (*Config, error) {
	config := &Config{}

	switch format {
	case FormatYAML:
		if err := yaml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse YAML config: %w", err)
		}
	case FormatJSON:
		if err := json.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse JSON config: %w", err)
		}
	case FormatTOML:
		if _, err := toml.Decode(string(data), config); err != nil {
			return nil, fmt.Errorf("failed to parse TOML config: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported config format: %s", format)
	}

	return config, nil
}

// loadFromEnv loads configuration overrides from environment variables
func (l *Loader) loadFromEnv(config *Config) error {
	env := func(key string) string {
		return os.Getenv(l.envPrefix + "_" + key)
	}

	// App configuration
	if val := env("APP_NAME"); val != "" {
		config.App.Name = val
	}
	if val := env("APP_ENVIRONMENT"); val != "" {
		config.App.Environment = Environment(val)
	}
	if val := env("APP_DEBUG"); val != "" {
		config.App.Debug = strings.ToLower(val) == "true"
	}

	// Log configuration
	if val := env("LOG_LEVEL"); val != "" {
		config.Log.Level = LogLevel(val)
	}
	if val := env("LOG_FORMAT"); val != "" {
		config.Log.Format = val
	}
	if val := env("LOG_OUTPUT"); val != "" {
		config.Log.Output = val
	}

	// Node configuration
	if val := env("THREAD"); val != "" {
		n, err := strconv.Atoi(val)
		if err != nil {
			return fmt.Errorf("%s_THREAD: %w", l.envPrefix, err)
		}
		config.Node.Thread = n
	}
	if val := env("HARBOR"); val != "" {
		n, err := strconv.Atoi(val)
		if err != nil {
			return fmt.Errorf("%s_HARBOR: %w", l.envPrefix, err)
		}
		config.Node.Harbor = n
	}
	if val := env("BOOTSTRAP"); val != "" {
		config.Node.Bootstrap = val
	}
	if val := env("LOGSERVICE"); val != "" {
		config.Node.LogService = val
	}
	if val := env("LOGGER"); val != "" {
		config.Node.Logger = val
	}
	if val := env("LOGPATH"); val != "" {
		config.Node.LogPath = val
	}
	if val := env("MODULE_PATH"); val != "" {
		config.Node.ModulePath = val
	}
	if val := env("PROFILE"); val != "" {
		config.Node.Profile = strings.ToLower(val) == "true"
	}
	if val := env("MONITOR_INTERVAL"); val != "" {
		d, err := time.ParseDuration(val)
		if err != nil {
			return fmt.Errorf("%s_MONITOR_INTERVAL: %w", l.envPrefix, err)
		}
		config.Node.MonitorInterval = Duration(d)
	}

	// Monitor configuration
	if val := env("MONITOR_ENABLED"); val != "" {
		config.Monitor.HTTP.Enabled = strings.ToLower(val) == "true"
	}
	if val := env("MONITOR_PORT"); val != "" {
		if port, err := parsePort(val); err == nil {
			config.Monitor.HTTP.Port = port
		}
	}

	return nil
}

// Helper function to parse port number
func parsePort(val string) (int, error) {
	port, err := strconv.Atoi(val)
	if err != nil {
		return 0, err
	}
	if port <= 0 || port > 65535 {
		return 0, fmt.Errorf("invalid port number: %d", port)
	}
	return port, nil
}

// mergeConfig merges user config with default config
func (l *Loader) mergeConfig(defaultConfig, userConfig *Config) *Config {
	// Start with default config
	merged := *defaultConfig

	// App config
	if userConfig.App.Name != "" {
		merged.App.Name = userConfig.App.Name
	}
	if userConfig.App.Version != "" {
		merged.App.Version = userConfig.App.Version
	}
	if userConfig.App.Environment != "" {
		merged.App.Environment = userConfig.App.Environment
	}
	merged.App.Debug = userConfig.App.Debug

	// Log config
	if userConfig.Log.Level != "" {
		merged.Log.Level = userConfig.Log.Level
	}
	if userConfig.Log.Format != "" {
		merged.Log.Format = userConfig.Log.Format
	}
	if userConfig.Log.Output != "" {
		merged.Log.Output = userConfig.Log.Output
	}
	merged.Log.Color = userConfig.Log.Color

	// Node config
	if userConfig.Node.Thread != 0 {
		merged.Node.Thread = userConfig.Node.Thread
	}
	if userConfig.Node.Harbor != 0 {
		merged.Node.Harbor = userConfig.Node.Harbor
	}
	if userConfig.Node.Bootstrap != "" {
		merged.Node.Bootstrap = userConfig.Node.Bootstrap
	}
	if userConfig.Node.LogService != "" {
		merged.Node.LogService = userConfig.Node.LogService
	}
	if userConfig.Node.Logger != "" {
		merged.Node.Logger = userConfig.Node.Logger
	}
	if userConfig.Node.LogPath != "" {
		merged.Node.LogPath = userConfig.Node.LogPath
	}
	if userConfig.Node.ModulePath != "" {
		merged.Node.ModulePath = userConfig.Node.ModulePath
	}
	merged.Node.Profile = userConfig.Node.Profile
	if userConfig.Node.MonitorInterval != 0 {
		merged.Node.MonitorInterval = userConfig.Node.MonitorInterval
	}
	if userConfig.Node.TimerInterval != 0 {
		merged.Node.TimerInterval = userConfig.Node.TimerInterval
	}

	// Monitor config
	if userConfig.Monitor.HTTP.Address != "" {
		merged.Monitor.HTTP.Address = userConfig.Monitor.HTTP.Address
	}
	if userConfig.Monitor.HTTP.Port != 0 {
		merged.Monitor.HTTP.Port = userConfig.Monitor.HTTP.Port
	}
	if userConfig.Monitor.HTTP.HealthPath != "" {
		merged.Monitor.HTTP.HealthPath = userConfig.Monitor.HTTP.HealthPath
	}
	if userConfig.Monitor.HTTP.RateLimit != 0 {
		merged.Monitor.HTTP.RateLimit = userConfig.Monitor.HTTP.RateLimit
	}
	merged.Monitor.HTTP.Enabled = userConfig.Monitor.HTTP.Enabled

	// Env values
	merged.Env = make(map[string]string, len(defaultConfig.Env)+len(userConfig.Env))
	for k, v := range defaultConfig.Env {
		merged.Env[k] = v
	}
	for k, v := range userConfig.Env {
		merged.Env[k] = v
	}

	return &merged
}
