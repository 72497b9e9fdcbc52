package config

import (
	"os"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the application configuration
type Config struct {
	Log             LogConfig      `yaml:"log"`
	Database        DatabaseConfig `yaml:"database"`
	DataDir         string         `yaml:"data_dir"`
	Catalog         CatalogConfig  `yaml:"catalog"`
	Images          ImagesConfig   `yaml:"images"`
	Ledger          LedgerConfig   `yaml:"ledger"`
	EventBus        EventBusConfig `yaml:"eventbus"`
	Status          StatusConfig   `yaml:"status"`
	ShutdownTimeout Duration       `yaml:"shutdown_timeout"` // General shutdown timeout for graceful stops
}

// LogConfig contains logging settings
type LogConfig struct {
	Level   string `yaml:"level"`
	UseJSON bool   `yaml:"json"`
	Colors  bool   `yaml:"colors"`
}

// GetLevel returns the log level with default
func (c *LogConfig) GetLevel() string {
	if c.Level == "" {
		return "info"
	}
	return c.Level
}

// DatabaseConfig contains database settings
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// CatalogConfig contains catalog synchronization settings.
// FetchMode and CustomURL, when set, override the persisted sync state at
// startup; leaving them empty keeps whatever was configured last run.
type CatalogConfig struct {
	FetchMode    string   `yaml:"fetch_mode"`   // default | custom | disabled
	CustomURL    string   `yaml:"custom_url"`   // only meaningful under custom
	DefaultURL   string   `yaml:"default_url"`  // override of the well-known remote
	TTL          Duration `yaml:"ttl"`          // minimum interval between automatic checks
	TickInterval Duration `yaml:"tick_interval"`
	HTTPTimeout  Duration `yaml:"http_timeout"`
}

// ImagesConfig contains image cache settings
type ImagesConfig struct {
	Workers      int      `yaml:"workers"`        // max concurrent image fetches
	RateLimitRPS float64  `yaml:"rate_limit_rps"` // outbound request rate
	HTTPTimeout  Duration `yaml:"http_timeout"`
}

// LedgerConfig contains sync attempt history settings
type LedgerConfig struct {
	Enabled         *bool    `yaml:"enabled"`
	Retention       Duration `yaml:"retention"`
	CleanupInterval Duration `yaml:"cleanup_interval"`
}

// IsEnabled returns whether the ledger is enabled (default: true)
func (c *LedgerConfig) IsEnabled() bool {
	return c.Enabled == nil || *c.Enabled
}

// EventBusConfig contains event bus settings
type EventBusConfig struct {
	Workers   int `yaml:"workers"`    // Number of worker goroutines (default: 4)
	QueueSize int `yaml:"queue_size"` // Event queue size (default: 100)
}

// GetWorkers returns worker count with default
func (c *EventBusConfig) GetWorkers() int {
	if c.Workers <= 0 {
		return 4
	}
	return c.Workers
}

// GetQueueSize returns queue size with default
func (c *EventBusConfig) GetQueueSize() int {
	if c.QueueSize <= 0 {
		return 100
	}
	return c.QueueSize
}

// StatusConfig contains the local status server settings
type StatusConfig struct {
	Enabled bool   `yaml:"enabled"`
	Host    string `yaml:"host"`
	Port    int    `yaml:"port"`
}

// Duration is a wrapper around time.Duration for YAML unmarshalling
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler for Duration
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(parsed)
	return nil
}

// Duration returns the underlying time.Duration
func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}

// Load reads and parses the configuration file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	// Expand environment variables
	expanded := expandEnvVars(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, err
	}

	cfg.applyDefaults()
	return &cfg, nil
}

func (cfg *Config) applyDefaults() {
	if cfg.Database.Path == "" {
		cfg.Database.Path = "./glowd.sqlite"
	}
	if cfg.DataDir == "" {
		cfg.DataDir = "./data"
	}

	// Catalog sync defaults
	if cfg.Catalog.TTL == 0 {
		cfg.Catalog.TTL = Duration(8 * time.Hour)
	}
	if cfg.Catalog.TickInterval == 0 {
		cfg.Catalog.TickInterval = Duration(10 * time.Second)
	}
	if cfg.Catalog.HTTPTimeout == 0 {
		cfg.Catalog.HTTPTimeout = Duration(30 * time.Second)
	}

	// Image cache defaults
	if cfg.Images.Workers == 0 {
		cfg.Images.Workers = 10
	}
	if cfg.Images.RateLimitRPS == 0 {
		cfg.Images.RateLimitRPS = 4.0
	}
	if cfg.Images.HTTPTimeout == 0 {
		cfg.Images.HTTPTimeout = Duration(20 * time.Second)
	}

	// Ledger defaults
	if cfg.Ledger.Retention == 0 {
		cfg.Ledger.Retention = Duration(30 * 24 * time.Hour)
	}
	if cfg.Ledger.CleanupInterval == 0 {
		cfg.Ledger.CleanupInterval = Duration(24 * time.Hour)
	}

	// Status server defaults
	if cfg.Status.Host == "" {
		cfg.Status.Host = "127.0.0.1"
	}
	if cfg.Status.Port == 0 {
		cfg.Status.Port = 9190
	}

	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = Duration(5 * time.Second)
	}
}

// GetShutdownTimeout returns the shutdown timeout as a time.Duration
func (cfg *Config) GetShutdownTimeout() time.Duration {
	return cfg.ShutdownTimeout.Duration()
}

// expandEnvVars expands environment variables in the format ${VAR} or ${VAR:default}
func expandEnvVars(input string) string {
	// Match ${VAR} or ${VAR:default}
	re := regexp.MustCompile(`\$\{([^}:]+)(?::([^}]*))?\}`)

	return re.ReplaceAllStringFunc(input, func(match string) string {
		parts := re.FindStringSubmatch(match)
		if len(parts) < 2 {
			return match
		}

		varName := parts[1]
		defaultVal := ""
		if len(parts) >= 3 {
			defaultVal = parts[2]
		}

		if val := os.Getenv(varName); val != "" {
			return val
		}
		return defaultVal
	})
}
