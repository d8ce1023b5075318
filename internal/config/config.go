package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/pelletier/go-toml/v2"
)

// Config represents the application configuration.
type Config struct {
	Server  ServerConfig  `toml:"server"`
	Monitor MonitorConfig `toml:"monitor"`
	Browser BrowserConfig `toml:"browser"`
	Optical OpticalConfig `toml:"optical"`
	Storage StorageConfig `toml:"storage"`
	Logging LoggingConfig `toml:"logging"`
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	Port int    `toml:"port"`
	Host string `toml:"host"`
}

// MonitorConfig contains balance monitor scheduling settings.
type MonitorConfig struct {
	IntervalMinutes    int `toml:"interval_minutes"`     // periodic sweep interval
	WalletDelaySeconds int `toml:"wallet_delay_seconds"` // pacing between wallets in a sweep
	RetryAttempts      int `toml:"retry_attempts"`       // total attempts per wallet per sweep
	RetryDelaySeconds  int `toml:"retry_delay_seconds"`  // base delay between attempts
}

// BrowserConfig contains headless browser settings.
type BrowserConfig struct {
	Headless          bool   `toml:"headless"`
	ExecPath          string `toml:"exec_path"` // optional Chrome binary path
	NavTimeoutSeconds int    `toml:"nav_timeout_seconds"`
}

// OpticalConfig contains settings for the OCR extraction fallback.
type OpticalConfig struct {
	Enabled   bool   `toml:"enabled"`
	ModelPath string `toml:"model_path"` // digit classifier ONNX model
}

// StorageConfig contains storage layer settings.
type StorageConfig struct {
	Badger BadgerConfig `toml:"badger"`
}

// BadgerConfig contains BadgerDB-specific settings.
type BadgerConfig struct {
	Path string `toml:"path"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level      string   `toml:"level"`
	Outputs    []string `toml:"outputs"`
	FilePath   string   `toml:"file_path"`
	MaxSizeMB  int      `toml:"max_size_mb"`
	MaxBackups int      `toml:"max_backups"`
}

// LoadFromFile loads configuration with priority: defaults -> file -> env.
func LoadFromFile(path string) (*Config, error) {
	if path == "" {
		return LoadFromFiles()
	}
	return LoadFromFiles(path)
}

// LoadFromFiles loads configuration from multiple files with priority:
// defaults -> file1 -> file2 -> ... -> env.
// Later files override earlier files.
func LoadFromFiles(paths ...string) (*Config, error) {
	config := NewDefaultConfig()

	for i, path := range paths {
		if path == "" {
			continue
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}

		err = toml.Unmarshal(data, config)
		if err != nil {
			return nil, fmt.Errorf("failed to parse config file %s (file %d of %d): %w", path, i+1, len(paths), err)
		}
	}

	applyEnvOverrides(config)

	return config, nil
}

// applyEnvOverrides applies VIREB_* environment variable overrides to config.
func applyEnvOverrides(config *Config) {
	if port := os.Getenv("VIREB_SERVER_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			config.Server.Port = p
		}
	}
	if host := os.Getenv("VIREB_SERVER_HOST"); host != "" {
		config.Server.Host = host
	}
	if interval := os.Getenv("VIREB_MONITOR_INTERVAL_MINUTES"); interval != "" {
		if m, err := strconv.Atoi(interval); err == nil {
			config.Monitor.IntervalMinutes = m
		}
	}
	if badgerPath := os.Getenv("VIREB_BADGER_PATH"); badgerPath != "" {
		config.Storage.Badger.Path = badgerPath
	}
	if execPath := os.Getenv("VIREB_CHROME_PATH"); execPath != "" {
		config.Browser.ExecPath = execPath
	}
	if modelPath := os.Getenv("VIREB_OCR_MODEL_PATH"); modelPath != "" {
		config.Optical.ModelPath = modelPath
	}
	if level := os.Getenv("VIREB_LOG_LEVEL"); level != "" {
		config.Logging.Level = level
	}
}

// ApplyFlagOverrides applies command-line flag overrides to config.
func ApplyFlagOverrides(config *Config, port int, host string) {
	if port > 0 {
		config.Server.Port = port
	}
	if host != "" {
		config.Server.Host = host
	}
}

// Validate checks mandatory configuration and returns a list of issues.
func (c *Config) Validate() []string {
	var issues []string
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		issues = append(issues, fmt.Sprintf("server.port must be between 1 and 65535 (got %d)", c.Server.Port))
	}
	if c.Monitor.IntervalMinutes <= 0 {
		issues = append(issues, fmt.Sprintf("monitor.interval_minutes must be positive (got %d)", c.Monitor.IntervalMinutes))
	}
	if c.Monitor.RetryAttempts <= 0 {
		issues = append(issues, fmt.Sprintf("monitor.retry_attempts must be positive (got %d)", c.Monitor.RetryAttempts))
	}
	if c.Storage.Badger.Path == "" {
		issues = append(issues, "storage.badger.path must not be empty")
	}
	if c.Optical.Enabled && c.Optical.ModelPath == "" {
		issues = append(issues, "optical.model_path is required when optical.enabled is true")
	}
	return issues
}
