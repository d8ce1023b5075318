package config

// NewDefaultConfig creates a configuration with default values.
func NewDefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port: 4261,
			Host: "localhost",
		},
		Monitor: MonitorConfig{
			IntervalMinutes:    60,
			WalletDelaySeconds: 5,
			RetryAttempts:      3,
			RetryDelaySeconds:  5,
		},
		Browser: BrowserConfig{
			Headless:          true,
			NavTimeoutSeconds: 30,
		},
		Optical: OpticalConfig{
			Enabled: false,
		},
		Storage: StorageConfig{
			Badger: BadgerConfig{
				Path: "./data/vire-balance",
			},
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}
