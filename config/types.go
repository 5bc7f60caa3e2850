// Package config provides configuration management for uboss nodes
package config

import (
	"runtime"
	"strconv"
	"time"
)

// Environment represents the deployment environment
type Environment string

const (
	EnvDevelopment Environment = "development"
	EnvTesting     Environment = "testing"
	EnvStaging     Environment = "staging"
	EnvProduction  Environment = "production"
)

// String returns the string representation of Environment
func (e Environment) String() string {
	return string(e)
}

// IsValid checks if the environment is valid
func (e Environment) IsValid() bool {
	switch e {
	case EnvDevelopment, EnvTesting, EnvStaging, EnvProduction:
		return true
	default:
		return false
	}
}

// LogLevel represents the logging level
type LogLevel string

const (
	LogLevelDebug LogLevel = "debug"
	LogLevelInfo  LogLevel = "info"
	LogLevelWarn  LogLevel = "warn"
	LogLevelError LogLevel = "error"
	LogLevelFatal LogLevel = "fatal"
)

// String returns the string representation of LogLevel
func (l LogLevel) String() string {
	return string(l)
}

// IsValid checks if the log level is valid
func (l LogLevel) IsValid() bool {
	switch l {
	case LogLevelDebug, LogLevelInfo, LogLevelWarn, LogLevelError, LogLevelFatal:
		return true
	default:
		return false
	}
}

// Config represents the complete uboss configuration
type Config struct {
	// Application configuration
	App AppConfig `yaml:"app" json:"app" toml:"app"`

	// Logging configuration
	Log LogConfig `yaml:"log" json:"log" toml:"log"`

	// Node (kernel) configuration
	Node NodeConfig `yaml:"node" json:"node" toml:"node"`

	// Monitoring configuration
	Monitor MonitorConfig `yaml:"monitor" json:"monitor" toml:"monitor"`

	// Extra values copied into the node env store
	Env map[string]string `yaml:"env,omitempty" json:"env,omitempty" toml:"env,omitempty"`
}

// AppConfig contains application-level configuration
type AppConfig struct {
	// Application name
	Name string `yaml:"name" json:"name" toml:"name"`

	// Application version
	Version string `yaml:"version" json:"version" toml:"version"`

	// Deployment environment
	Environment Environment `yaml:"environment" json:"environment" toml:"environment"`

	// Debug mode
	Debug bool `yaml:"debug" json:"debug" toml:"debug"`
}

// LogConfig contains process logging configuration
type LogConfig struct {
	// Log level
	Level LogLevel `yaml:"level" json:"level" toml:"level"`

	// Log format (json, text)
	Format string `yaml:"format" json:"format" toml:"format"`

	// Output destination (stdout, stderr, file path)
	Output string `yaml:"output" json:"output" toml:"output"`

	// Enable colored level names in text format
	Color bool `yaml:"color" json:"color" toml:"color"`
}

// NodeConfig contains the kernel settings
type NodeConfig struct {
	// Number of worker threads
	Thread int `yaml:"thread" json:"thread" toml:"thread"`

	// Harbor id stored in the high 8 bits of every handle
	Harbor int `yaml:"harbor" json:"harbor" toml:"harbor"`

	// Bootstrap command line, "<module> <args>"
	Bootstrap string `yaml:"bootstrap" json:"bootstrap" toml:"bootstrap"`

	// Module launched as the log service
	LogService string `yaml:"logservice" json:"logservice" toml:"logservice"`

	// Argument of the log service, a file path or empty for stdout
	Logger string `yaml:"logger" json:"logger" toml:"logger"`

	// Directory of the per-service message logs
	LogPath string `yaml:"logpath" json:"logpath" toml:"logpath"`

	// Search path of plugin modules, e.g. "./module/?.so"
	ModulePath string `yaml:"module_path" json:"module_path" toml:"module_path"`

	// Enable per-service CPU accounting
	Profile bool `yaml:"profile" json:"profile" toml:"profile"`

	// Period of the endless-loop check
	MonitorInterval Duration `yaml:"monitor_interval" json:"monitor_interval" toml:"monitor_interval"`

	// Sleep of the timer goroutine between updates
	TimerInterval Duration `yaml:"timer_interval" json:"timer_interval" toml:"timer_interval"`
}

// MonitorConfig contains the admin HTTP server settings
type MonitorConfig struct {
	// HTTP admin server
	HTTP HTTPMonitorConfig `yaml:"http" json:"http" toml:"http"`
}

// HTTPMonitorConfig contains HTTP admin server settings
type HTTPMonitorConfig struct {
	// Enable HTTP admin server
	Enabled bool `yaml:"enabled" json:"enabled" toml:"enabled"`

	// HTTP server address
	Address string `yaml:"address" json:"address" toml:"address"`

	// HTTP server port
	Port int `yaml:"port" json:"port" toml:"port"`

	// Health endpoint path
	HealthPath string `yaml:"health_path" json:"health_path" toml:"health_path"`

	// Requests per second allowed per client, 0 disables limiting
	RateLimit float64 `yaml:"rate_limit" json:"rate_limit" toml:"rate_limit"`
}

// DefaultConfig returns a default configuration
func DefaultConfig() *Config {
	return &Config{
		App: AppConfig{
			Name:        "uboss",
			Version:     "1.0.0",
			Environment: EnvDevelopment,
			Debug:       true,
		},
		Log: LogConfig{
			Level:  LogLevelInfo,
			Format: "text",
			Output: "stdout",
			Color:  true,
		},
		Node: NodeConfig{
			Thread:          runtime.GOMAXPROCS(0),
			Harbor:          0,
			LogService:      "logger",
			LogPath:         "./log",
			MonitorInterval: Duration(5 * time.Second),
			TimerInterval:   Duration(2500 * time.Microsecond),
		},
		Monitor: MonitorConfig{
			HTTP: HTTPMonitorConfig{
				Enabled:    false,
				Address:    "127.0.0.1",
				Port:       9090,
				HealthPath: "/health",
				RateLimit:  20,
			},
		},
		Env: make(map[string]string),
	}
}

// Validate validates the configuration
func (c *Config) Validate() error {
	// Validate app config
	if c.App.Name == "" {
		return ErrInvalidAppName
	}
	if !c.App.Environment.IsValid() {
		return ErrInvalidEnvironment
	}

	// Validate log config
	if !c.Log.Level.IsValid() {
		return ErrInvalidLogLevel
	}

	// Validate node config
	if c.Node.Thread <= 0 {
		return ErrInvalidThreadCount
	}
	if c.Node.Harbor < 0 || c.Node.Harbor > 255 {
		return ErrInvalidHarbor
	}
	if c.Node.LogService == "" {
		return ErrInvalidLogService
	}

	// Validate monitor config
	if c.Monitor.HTTP.Enabled && (c.Monitor.HTTP.Port <= 0 || c.Monitor.HTTP.Port > 65535) {
		return ErrInvalidPort
	}

	return nil
}

// IsProduction returns true if the environment is production
func (c *Config) IsProduction() bool {
	return c.App.Environment == EnvProduction
}

// IsDebugEnabled returns true if debug mode is enabled
func (c *Config) IsDebugEnabled() bool {
	return c.App.Debug || c.App.Environment == EnvDevelopment
}

// EnvValues returns the values seeded into the node env store: every node
// key under its config name plus the free-form env map.
func (c *Config) EnvValues() map[string]string {
	values := map[string]string{
		"thread":           strconv.Itoa(c.Node.Thread),
		"harbor":           strconv.Itoa(c.Node.Harbor),
		"bootstrap":        c.Node.Bootstrap,
		"logservice":       c.Node.LogService,
		"logger":           c.Node.Logger,
		"logpath":          c.Node.LogPath,
		"module_path":      c.Node.ModulePath,
		"profile":          strconv.FormatBool(c.Node.Profile),
		"monitor_interval": c.Node.MonitorInterval.String(),
		"timer_interval":   c.Node.TimerInterval.String(),
	}
	for k, v := range c.Env {
		if _, ok := values[k]; !ok {
			values[k] = v
		}
	}
	return values
}
