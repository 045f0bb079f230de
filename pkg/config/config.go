package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration options for immichporter
type Config struct {
	// Source gallery scraping settings
	Source SourceConfig `yaml:"source" json:"source"`

	// Immich server settings
	Immich ImmichConfig `yaml:"immich" json:"immich"`

	// Record store settings
	Database DatabaseConfig `yaml:"database" json:"database"`

	// Reconciliation settings
	Reconcile ReconcileConfig `yaml:"reconcile" json:"reconcile"`

	// Logging configuration
	Logging LoggingConfig `yaml:"logging" json:"logging"`
}

// SourceConfig holds Google Photos scraping configuration.
//
// The duplicate thresholds are a heuristic: the source UI has no
// authoritative end-of-album signal, so a run of identical source ids is
// the only way to tell "stale render" (low counts) from "wrapped around"
// (hard threshold). The defaults match the behavior the walker was tuned
// against; override with care.
type SourceConfig struct {
	BaseURL               string `yaml:"base_url" json:"base_url"`
	UserDataDir           string `yaml:"user_data_dir" json:"user_data_dir"`
	Headless              bool   `yaml:"headless" json:"headless"`
	ClearStorage          bool   `yaml:"clear_storage" json:"clear_storage"`
	MaxAlbums             int    `yaml:"max_albums" json:"max_albums"`
	StartAlbum            int    `yaml:"start_album" json:"start_album"`
	DuplicateLogThreshold int    `yaml:"duplicate_log_threshold" json:"duplicate_log_threshold"`
	DuplicateThreshold    int    `yaml:"duplicate_threshold" json:"duplicate_threshold"`
	ExtractAttempts       int    `yaml:"extract_attempts" json:"extract_attempts"`

	FieldTimeout         time.Duration `yaml:"field_timeout" json:"field_timeout"`
	ExtractRetryDelay    time.Duration `yaml:"extract_retry_delay" json:"extract_retry_delay"`
	AlbumNavigationDelay time.Duration `yaml:"album_navigation_delay" json:"album_navigation_delay"`
	ImageNavigationDelay time.Duration `yaml:"image_navigation_delay" json:"image_navigation_delay"`
}

// ImmichConfig holds Immich server configuration
type ImmichConfig struct {
	Endpoint string        `yaml:"endpoint" json:"endpoint"`
	APIKey   string        `yaml:"api_key" json:"api_key"`
	Insecure bool          `yaml:"insecure" json:"insecure"`
	Timeout  time.Duration `yaml:"timeout" json:"timeout"`
}

// DatabaseConfig holds record store configuration
type DatabaseConfig struct {
	Path string `yaml:"path" json:"path"`
}

// ReconcileConfig holds reconciliation worker pool configuration
type ReconcileConfig struct {
	Workers           int `yaml:"workers" json:"workers"`
	BatchSize         int `yaml:"batch_size" json:"batch_size"`
	RequestsPerMinute int `yaml:"requests_per_minute" json:"requests_per_minute"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level string `yaml:"level" json:"level"`
	File  string `yaml:"file" json:"file"`
}

// DefaultConfig returns a Config instance with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Source: SourceConfig{
			BaseURL:               "https://photos.google.com",
			UserDataDir:           "./browser_profile",
			Headless:              false,
			MaxAlbums:             0, // 0 means no limit
			StartAlbum:            1,
			DuplicateLogThreshold: 5,
			DuplicateThreshold:    10,
			ExtractAttempts:       5,
			FieldTimeout:          2 * time.Second,
			ExtractRetryDelay:     time.Second,
			AlbumNavigationDelay:  0,
			ImageNavigationDelay:  50 * time.Millisecond,
		},
		Immich: ImmichConfig{
			Endpoint: "http://localhost:2283",
			Timeout:  30 * time.Second,
		},
		Database: DatabaseConfig{
			Path: "photos.db",
		},
		Reconcile: ReconcileConfig{
			Workers:           5,
			BatchSize:         20,
			RequestsPerMinute: 60,
		},
		Logging: LoggingConfig{
			Level: "info",
			File:  "",
		},
	}
}

// LoadFromEnv loads configuration from environment variables
func (c *Config) LoadFromEnv() error {
	if endpoint := os.Getenv("IMMICH_ENDPOINT"); endpoint != "" {
		c.Immich.Endpoint = endpoint
	}
	if apiKey := os.Getenv("IMMICH_API_KEY"); apiKey != "" {
		c.Immich.APIKey = apiKey
	}
	if insecure := os.Getenv("IMMICH_INSECURE"); insecure != "" {
		c.Immich.Insecure = insecure == "1" || insecure == "true"
	}

	if path := os.Getenv("IMPORTER_DB_PATH"); path != "" {
		c.Database.Path = path
	}
	if dir := os.Getenv("IMPORTER_USER_DATA_DIR"); dir != "" {
		c.Source.UserDataDir = dir
	}
	if level := os.Getenv("IMPORTER_LOG_LEVEL"); level != "" {
		c.Logging.Level = level
	}
	if workers := os.Getenv("IMPORTER_RECONCILE_WORKERS"); workers != "" {
		n, err := strconv.Atoi(workers)
		if err != nil {
			return fmt.Errorf("invalid IMPORTER_RECONCILE_WORKERS: %w", err)
		}
		c.Reconcile.Workers = n
	}

	return nil
}

// LoadFromFile loads configuration from a YAML file
func (c *Config) LoadFromFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}

	return nil
}

// Load builds the effective configuration: defaults, then an optional
// config file, then environment overrides. A .env file in the working
// directory is honored if present.
func Load(configFile string) (*Config, error) {
	_ = godotenv.Load()

	cfg := DefaultConfig()

	if configFile == "" {
		if home, err := os.UserHomeDir(); err == nil {
			candidate := filepath.Join(home, ".immichporter.yaml")
			if _, err := os.Stat(candidate); err == nil {
				configFile = candidate
			}
		}
	}
	if configFile != "" {
		if err := cfg.LoadFromFile(configFile); err != nil {
			return nil, err
		}
	}

	if err := cfg.LoadFromEnv(); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks the configuration for invalid values
func (c *Config) Validate() error {
	if c.Source.StartAlbum < 1 {
		return fmt.Errorf("source.start_album must be 1 or higher, got %d", c.Source.StartAlbum)
	}
	if c.Source.DuplicateLogThreshold < 1 {
		return fmt.Errorf("source.duplicate_log_threshold must be positive, got %d", c.Source.DuplicateLogThreshold)
	}
	if c.Source.DuplicateThreshold < c.Source.DuplicateLogThreshold {
		return fmt.Errorf("source.duplicate_threshold (%d) must not be lower than the log threshold (%d)",
			c.Source.DuplicateThreshold, c.Source.DuplicateLogThreshold)
	}
	if c.Source.ExtractAttempts < 1 {
		return fmt.Errorf("source.extract_attempts must be positive, got %d", c.Source.ExtractAttempts)
	}
	if c.Source.FieldTimeout <= 0 {
		return fmt.Errorf("source.field_timeout must be positive, got %s", c.Source.FieldTimeout)
	}
	if c.Database.Path == "" {
		return fmt.Errorf("database.path must not be empty")
	}
	if c.Reconcile.Workers < 1 {
		return fmt.Errorf("reconcile.workers must be positive, got %d", c.Reconcile.Workers)
	}
	if c.Reconcile.BatchSize < 1 {
		return fmt.Errorf("reconcile.batch_size must be positive, got %d", c.Reconcile.BatchSize)
	}
	return nil
}

// Save writes the configuration to a YAML file
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}
