package config

import (
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Environment variables that override directory settings after the file is loaded
const (
	EnvTemplateDirectory = "TPLSYNC_TEMPLATE_DIRECTORY"
	EnvBackupDirectory   = "TPLSYNC_BACKUP_DIRECTORY"
)

// DefaultFeedURL is the Community Applications feed
const DefaultFeedURL = "https://raw.githubusercontent.com/Squidly271/AppFeed/master/applicationFeed.json"

// Config represents the main configuration
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	Templates TemplatesConfig `yaml:"templates"`
	Community CommunityConfig `yaml:"community"`
	Sync      SyncConfig      `yaml:"sync"`
	Metrics   MetricsConfig   `yaml:"metrics"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// ServerConfig contains HTTP API settings
type ServerConfig struct {
	ListenAddr   string        `yaml:"listen_addr"`
	APIKey       string        `yaml:"api_key"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

// DatabaseConfig contains record store settings
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// TemplatesConfig contains local template locations
type TemplatesConfig struct {
	Directory       string `yaml:"directory"`
	BackupDirectory string `yaml:"backup_directory"`
	BackupIndex     string `yaml:"backup_index"`
	// KeepBackups is the number of backups per template kept by cleanup
	KeepBackups int `yaml:"keep_backups"`
}

// CommunityConfig contains catalog feed settings
type CommunityConfig struct {
	FeedURL   string        `yaml:"feed_url"`
	Timeout   time.Duration `yaml:"timeout"`
	CacheTTL  time.Duration `yaml:"cache_ttl"`
	UserAgent string        `yaml:"user_agent"`
}

// SyncConfig contains background sync settings
type SyncConfig struct {
	Enabled       bool          `yaml:"enabled"`
	Interval      time.Duration `yaml:"interval"`
	RunOnStartup  bool          `yaml:"run_on_startup"`
	RetentionDays int           `yaml:"retention_days"`
}

// MetricsConfig contains Prometheus metrics settings
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// LoggingConfig contains logging settings
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Load loads configuration from a YAML file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.applyEnv()
	cfg.setDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Default returns a configuration with booleans that default to on already set.
// Remaining defaults are filled by setDefaults.
func Default() *Config {
	cfg := &Config{
		Sync:    SyncConfig{Enabled: true},
		Metrics: MetricsConfig{Enabled: true},
	}
	cfg.setDefaults()
	return cfg
}

func (c *Config) applyEnv() {
	if v := os.Getenv(EnvTemplateDirectory); v != "" {
		c.Templates.Directory = v
	}
	if v := os.Getenv(EnvBackupDirectory); v != "" {
		c.Templates.BackupDirectory = v
	}
}

func (c *Config) setDefaults() {
	if c.Server.ListenAddr == "" {
		c.Server.ListenAddr = ":8090"
	}
	if c.Server.ReadTimeout == 0 {
		c.Server.ReadTimeout = 30 * time.Second
	}
	if c.Server.WriteTimeout == 0 {
		c.Server.WriteTimeout = 60 * time.Second
	}

	if c.Database.Path == "" {
		c.Database.Path = "/var/lib/tplsync/tplsync.db"
	}

	if c.Templates.Directory == "" {
		c.Templates.Directory = "/boot/config/plugins/dockerMan/templates-user"
	}
	if c.Templates.BackupDirectory == "" {
		c.Templates.BackupDirectory = "/var/lib/tplsync/backups"
	}
	if c.Templates.BackupIndex == "" {
		c.Templates.BackupIndex = "/var/lib/tplsync/backups.db"
	}
	if c.Templates.KeepBackups == 0 {
		c.Templates.KeepBackups = 10
	}

	if c.Community.FeedURL == "" {
		c.Community.FeedURL = DefaultFeedURL
	}
	if c.Community.Timeout == 0 {
		c.Community.Timeout = 30 * time.Second
	}
	if c.Community.CacheTTL == 0 {
		c.Community.CacheTTL = 10 * time.Minute
	}
	if c.Community.UserAgent == "" {
		c.Community.UserAgent = "tplsync"
	}

	if c.Sync.Interval == 0 {
		c.Sync.Interval = 6 * time.Hour
	}
	if c.Sync.RetentionDays == 0 {
		c.Sync.RetentionDays = 30
	}

	if c.Metrics.Path == "" {
		c.Metrics.Path = "/metrics"
	}

	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "json"
	}
}

// Validate checks the configuration for errors
func (c *Config) Validate() error {
	if c.Server.ListenAddr == "" {
		return fmt.Errorf("server.listen_addr is required")
	}
	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}
	if c.Templates.Directory == "" {
		return fmt.Errorf("templates.directory is required")
	}
	if c.Templates.BackupDirectory == "" {
		return fmt.Errorf("templates.backup_directory is required")
	}
	if c.Templates.KeepBackups < 0 {
		return fmt.Errorf("templates.keep_backups must not be negative")
	}

	u, err := url.Parse(c.Community.FeedURL)
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return fmt.Errorf("community.feed_url must be an http(s) URL: %q", c.Community.FeedURL)
	}
	if c.Community.Timeout < 0 {
		return fmt.Errorf("community.timeout must not be negative")
	}

	if c.Sync.Enabled && c.Sync.Interval < time.Minute {
		return fmt.Errorf("sync.interval must be at least 1m, got %s", c.Sync.Interval)
	}
	if c.Sync.RetentionDays < 0 {
		return fmt.Errorf("sync.retention_days must not be negative")
	}

	if c.Metrics.Enabled && !strings.HasPrefix(c.Metrics.Path, "/") {
		return fmt.Errorf("metrics.path must start with /")
	}

	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level must be one of debug, info, warn, error")
	}
	switch c.Logging.Format {
	case "json", "text":
	default:
		return fmt.Errorf("logging.format must be json or text")
	}

	return nil
}
