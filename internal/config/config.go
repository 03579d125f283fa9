// Package config loads and validates the service configuration using Viper.
//
// Configuration is layered: built-in defaults < YAML config file < environment
// variables. Environment variables use the QMS_ prefix (e.g., QMS_DATABASE_HOST
// overrides database.host in the YAML). This layering allows the same binary to
// run with a config.yaml in local development and with pure environment variables
// in containerized deployments — no recompilation or different binaries needed.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// Config holds all application configuration
type Config struct {
	Server        ServerConfig        `mapstructure:"server"`
	Database      DatabaseConfig      `mapstructure:"database"`
	Snapshot      SnapshotConfig      `mapstructure:"snapshot"`
	Catalog       CatalogConfig       `mapstructure:"catalog"`
	Auth          AuthConfig          `mapstructure:"auth"`
	Security      SecurityConfig      `mapstructure:"security"`
	Logging       LoggingConfig       `mapstructure:"logging"`
	Telemetry     TelemetryConfig     `mapstructure:"telemetry"`
	Audit         AuditConfig         `mapstructure:"audit"`
	ExportArchive ExportArchiveConfig `mapstructure:"export_archive"`
	Notifications NotificationsConfig `mapstructure:"notifications"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	BaseURL      string        `mapstructure:"base_url"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// DatabaseConfig holds the optional audit archive database configuration.
// When Enabled is false the service runs without long-term archiving and all
// audit data lives in memory plus the snapshot store.
type DatabaseConfig struct {
	Enabled            bool   `mapstructure:"enabled"`
	Host               string `mapstructure:"host"`
	Port               int    `mapstructure:"port"`
	Name               string `mapstructure:"name"`
	User               string `mapstructure:"user"`
	Password           string `mapstructure:"password"`
	SSLMode            string `mapstructure:"ssl_mode"`
	MaxConnections     int    `mapstructure:"max_connections"`
	MinIdleConnections int    `mapstructure:"min_idle_connections"`
}

// GetDSN builds the PostgreSQL connection string
func (d *DatabaseConfig) GetDSN() string {
	return fmt.Sprintf("host=%s port=%d dbname=%s user=%s password=%s sslmode=%s",
		d.Host, d.Port, d.Name, d.User, d.Password, d.SSLMode)
}

// SnapshotConfig selects and configures the state snapshot backend.
type SnapshotConfig struct {
	Backend string              `mapstructure:"backend"` // file or redis
	File    FileSnapshotConfig  `mapstructure:"file"`
	Redis   RedisSnapshotConfig `mapstructure:"redis"`
}

// FileSnapshotConfig holds filesystem snapshot configuration
type FileSnapshotConfig struct {
	BasePath string `mapstructure:"base_path"`
}

// RedisSnapshotConfig holds Redis snapshot configuration
type RedisSnapshotConfig struct {
	Addr      string `mapstructure:"addr"`
	Password  string `mapstructure:"password"`
	DB        int    `mapstructure:"db"`
	KeyPrefix string `mapstructure:"key_prefix"`
}

// CatalogConfig points at an optional metric catalog file. When File is empty
// the built-in default catalog is used.
type CatalogConfig struct {
	File string `mapstructure:"file"`
}

// AuthConfig holds authentication configuration
type AuthConfig struct {
	JWT JWTConfig `mapstructure:"jwt"`
	// AdminTokenHash is the bcrypt hash of the admin token protecting the
	// audit administration endpoints (purge, recording toggle). Generate with
	// the hash subcommand. Empty disables those endpoints.
	AdminTokenHash string `mapstructure:"admin_token_hash"`
}

// JWTConfig holds JWT validation configuration
type JWTConfig struct {
	Secret string `mapstructure:"secret"`
	Issuer string `mapstructure:"issuer"`
}

// SecurityConfig holds security-related configuration
type SecurityConfig struct {
	CORS         CORSConfig         `mapstructure:"cors"`
	RateLimiting RateLimitingConfig `mapstructure:"rate_limiting"`
}

// CORSConfig holds CORS configuration
type CORSConfig struct {
	AllowedOrigins []string `mapstructure:"allowed_origins"`
	AllowedMethods []string `mapstructure:"allowed_methods"`
}

// RateLimitingConfig holds rate limiting configuration. The redis backend
// shares limiter state across replicas; the memory backend is per-process.
type RateLimitingConfig struct {
	Enabled           bool   `mapstructure:"enabled"`
	Backend           string `mapstructure:"backend"` // memory or redis
	RequestsPerMinute int    `mapstructure:"requests_per_minute"`
	Burst             int    `mapstructure:"burst"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// TelemetryConfig holds observability configuration
type TelemetryConfig struct {
	Enabled     bool          `mapstructure:"enabled"`
	ServiceName string        `mapstructure:"service_name"`
	Metrics     MetricsConfig `mapstructure:"metrics"`
}

// MetricsConfig holds Prometheus metrics configuration
type MetricsConfig struct {
	Enabled        bool `mapstructure:"enabled"`
	PrometheusPort int  `mapstructure:"prometheus_port"`
}

// AuditConfig holds audit trail configuration
type AuditConfig struct {
	// RecordingEnabled is the initial recording state; a persisted snapshot
	// overrides it on rehydration.
	RecordingEnabled bool `mapstructure:"recording_enabled"`
	// MaxEntries caps the in-memory trail.
	MaxEntries int `mapstructure:"max_entries"`
	// SnapshotMaxEntries caps the persisted trail document.
	SnapshotMaxEntries int `mapstructure:"snapshot_max_entries"`
	// RetentionDays is how long the in-memory trail keeps entries; the
	// retention job purges older ones. 0 disables the job.
	RetentionDays int `mapstructure:"retention_days"`
	// ArchiveRetentionDays is how long the database archive keeps entries.
	// 0 keeps them forever.
	ArchiveRetentionDays int `mapstructure:"archive_retention_days"`
	// RetentionCheckIntervalHours determines how often the retention job runs.
	RetentionCheckIntervalHours int `mapstructure:"retention_check_interval_hours"`
	// Shippers configures external log shipping
	Shippers []AuditShipperConfig `mapstructure:"shippers"`
}

// AuditShipperConfig holds configuration for a single audit shipper
type AuditShipperConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Type    string `mapstructure:"type"` // webhook or file

	Webhook *AuditWebhookConfig `mapstructure:"webhook"`
	File    *AuditFileConfig    `mapstructure:"file"`
}

// AuditWebhookConfig holds webhook shipper configuration
type AuditWebhookConfig struct {
	URL           string            `mapstructure:"url"`
	Headers       map[string]string `mapstructure:"headers"`
	TimeoutSecs   int               `mapstructure:"timeout_secs"`
	BatchSize     int               `mapstructure:"batch_size"`
	FlushInterval int               `mapstructure:"flush_interval_secs"`
}

// AuditFileConfig holds file shipper configuration
type AuditFileConfig struct {
	Path       string `mapstructure:"path"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
}

// ExportArchiveConfig selects and configures the export archival backend.
type ExportArchiveConfig struct {
	Enabled bool                     `mapstructure:"enabled"`
	Backend string                   `mapstructure:"backend"` // local or s3
	Local   LocalExportArchiveConfig `mapstructure:"local"`
	S3      S3ExportArchiveConfig    `mapstructure:"s3"`
}

// LocalExportArchiveConfig holds local filesystem archival configuration
type LocalExportArchiveConfig struct {
	BasePath string `mapstructure:"base_path"`
}

// S3ExportArchiveConfig holds S3-compatible archival configuration. Endpoint
// supports MinIO and other S3-compatible services.
type S3ExportArchiveConfig struct {
	Endpoint        string `mapstructure:"endpoint"`
	Region          string `mapstructure:"region"`
	Bucket          string `mapstructure:"bucket"`
	Prefix          string `mapstructure:"prefix"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
	UsePathStyle    bool   `mapstructure:"use_path_style"`
}

// NotificationsConfig holds settings for outbound alert notification emails
type NotificationsConfig struct {
	// Enabled globally toggles alert notification emails. Requires SMTP.
	Enabled bool `mapstructure:"enabled"`
	// SMTP holds the outbound mail server settings
	SMTP SMTPConfig `mapstructure:"smtp"`
	// Recipients receive critical alert notifications
	Recipients []string `mapstructure:"recipients"`
	// CheckIntervalMinutes determines how often the notifier job scans for
	// unnotified critical alerts (default 15)
	CheckIntervalMinutes int `mapstructure:"check_interval_minutes"`
}

// SMTPConfig holds outbound mail server configuration
type SMTPConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	From     string `mapstructure:"from"`
}

// bindEnvVars explicitly binds environment variables to config keys.
// This is necessary because AutomaticEnv() doesn't work well with nested structs during Unmarshal.
// viper.BindEnv only errors when called with zero keys; since every key here is a non-empty
// hardcoded string, any error indicates a programming bug and is surfaced to the caller.
func bindEnvVars(v *viper.Viper) error {
	keys := []string{
		// Server
		"server.host",
		"server.port",
		"server.base_url",
		"server.read_timeout",
		"server.write_timeout",

		// Database
		"database.enabled",
		"database.host",
		"database.port",
		"database.name",
		"database.user",
		"database.password",
		"database.ssl_mode",
		"database.max_connections",
		"database.min_idle_connections",

		// Snapshot
		"snapshot.backend",
		"snapshot.file.base_path",
		"snapshot.redis.addr",
		"snapshot.redis.password",
		"snapshot.redis.db",
		"snapshot.redis.key_prefix",

		// Catalog
		"catalog.file",

		// Auth
		"auth.jwt.secret",
		"auth.jwt.issuer",
		"auth.admin_token_hash",

		// Security
		"security.cors.allowed_origins",
		"security.cors.allowed_methods",
		"security.rate_limiting.enabled",
		"security.rate_limiting.backend",
		"security.rate_limiting.requests_per_minute",
		"security.rate_limiting.burst",

		// Logging
		"logging.level",
		"logging.format",

		// Telemetry
		"telemetry.enabled",
		"telemetry.service_name",
		"telemetry.metrics.enabled",
		"telemetry.metrics.prometheus_port",

		// Audit
		"audit.recording_enabled",
		"audit.max_entries",
		"audit.snapshot_max_entries",
		"audit.retention_days",
		"audit.archive_retention_days",
		"audit.retention_check_interval_hours",

		// Export archive
		"export_archive.enabled",
		"export_archive.backend",
		"export_archive.local.base_path",
		"export_archive.s3.endpoint",
		"export_archive.s3.region",
		"export_archive.s3.bucket",
		"export_archive.s3.prefix",
		"export_archive.s3.access_key_id",
		"export_archive.s3.secret_access_key",
		"export_archive.s3.use_path_style",

		// Notifications / SMTP
		"notifications.enabled",
		"notifications.smtp.host",
		"notifications.smtp.port",
		"notifications.smtp.username",
		"notifications.smtp.password",
		"notifications.smtp.from",
		"notifications.recipients",
		"notifications.check_interval_minutes",
	}
	for _, key := range keys {
		if err := v.BindEnv(key); err != nil {
			return fmt.Errorf("failed to bind env var %q: %w", key, err)
		}
	}
	return nil
}

// Load loads configuration from file and environment variables
func Load(configPath string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		v.AddConfigPath("/etc/meddev-qms")
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// Config file not found; use defaults and environment variables
	}

	v.SetEnvPrefix("QMS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := bindEnvVars(v); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	// Expand environment variables in sensitive fields
	cfg.Database.Password = expandEnv(cfg.Database.Password)
	cfg.Snapshot.Redis.Password = expandEnv(cfg.Snapshot.Redis.Password)
	cfg.Auth.JWT.Secret = expandEnv(cfg.Auth.JWT.Secret)
	cfg.ExportArchive.S3.AccessKeyID = expandEnv(cfg.ExportArchive.S3.AccessKeyID)
	cfg.ExportArchive.S3.SecretAccessKey = expandEnv(cfg.ExportArchive.S3.SecretAccessKey)
	cfg.Notifications.SMTP.Password = expandEnv(cfg.Notifications.SMTP.Password)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// Watch registers a callback fired whenever the config file changes on disk.
// Only call this when a config file was actually loaded.
func Watch(configPath string, onChange func(fsnotify.Event)) {
	v := viper.New()
	v.SetConfigFile(configPath)
	v.OnConfigChange(onChange)
	v.WatchConfig()
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.base_url", "http://localhost:8080")
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "30s")

	// Database defaults (archive is opt-in)
	v.SetDefault("database.enabled", false)
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.name", "meddev_qms")
	v.SetDefault("database.user", "qms")
	v.SetDefault("database.ssl_mode", "require")
	v.SetDefault("database.max_connections", 25)
	v.SetDefault("database.min_idle_connections", 5)

	// Snapshot defaults
	v.SetDefault("snapshot.backend", "file")
	v.SetDefault("snapshot.file.base_path", "./data")
	v.SetDefault("snapshot.redis.addr", "localhost:6379")
	v.SetDefault("snapshot.redis.db", 0)
	v.SetDefault("snapshot.redis.key_prefix", "meddev-qms:")

	// Security defaults
	v.SetDefault("security.cors.allowed_origins", []string{"*"})
	v.SetDefault("security.cors.allowed_methods", []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"})
	v.SetDefault("security.rate_limiting.enabled", true)
	v.SetDefault("security.rate_limiting.backend", "memory")
	v.SetDefault("security.rate_limiting.requests_per_minute", 60)
	v.SetDefault("security.rate_limiting.burst", 10)

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	// Telemetry defaults
	v.SetDefault("telemetry.enabled", true)
	v.SetDefault("telemetry.service_name", "meddev-qms")
	v.SetDefault("telemetry.metrics.enabled", true)
	v.SetDefault("telemetry.metrics.prometheus_port", 9090)

	// Audit defaults
	v.SetDefault("audit.recording_enabled", true)
	v.SetDefault("audit.max_entries", 10000)
	v.SetDefault("audit.snapshot_max_entries", 5000)
	v.SetDefault("audit.retention_days", 0)
	v.SetDefault("audit.archive_retention_days", 0)
	v.SetDefault("audit.retention_check_interval_hours", 24)

	// Export archive defaults
	v.SetDefault("export_archive.enabled", false)
	v.SetDefault("export_archive.backend", "local")
	v.SetDefault("export_archive.local.base_path", "./exports")

	// Notifications defaults
	v.SetDefault("notifications.enabled", false)
	v.SetDefault("notifications.smtp.port", 587)
	v.SetDefault("notifications.check_interval_minutes", 15)
}

// expandEnv expands environment variables in the format ${VAR_NAME}
func expandEnv(s string) string {
	return os.ExpandEnv(s)
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}
	if c.Server.BaseURL == "" {
		return fmt.Errorf("server.base_url is required")
	}

	if c.Database.Enabled {
		if c.Database.Host == "" {
			return fmt.Errorf("database.host is required when the archive database is enabled")
		}
		if c.Database.Name == "" {
			return fmt.Errorf("database.name is required when the archive database is enabled")
		}
		if c.Database.User == "" {
			return fmt.Errorf("database.user is required when the archive database is enabled")
		}
	}

	validSnapshotBackends := map[string]bool{"file": true, "redis": true}
	if !validSnapshotBackends[c.Snapshot.Backend] {
		return fmt.Errorf("invalid snapshot backend: %s (must be file or redis)", c.Snapshot.Backend)
	}
	if c.Snapshot.Backend == "file" && c.Snapshot.File.BasePath == "" {
		return fmt.Errorf("snapshot.file.base_path is required when using the file backend")
	}
	if c.Snapshot.Backend == "redis" && c.Snapshot.Redis.Addr == "" {
		return fmt.Errorf("snapshot.redis.addr is required when using the redis backend")
	}

	if c.Security.RateLimiting.Enabled {
		validLimiterBackends := map[string]bool{"memory": true, "redis": true}
		if !validLimiterBackends[c.Security.RateLimiting.Backend] {
			return fmt.Errorf("invalid rate limiting backend: %s (must be memory or redis)", c.Security.RateLimiting.Backend)
		}
		if c.Security.RateLimiting.Backend == "redis" && c.Snapshot.Redis.Addr == "" {
			return fmt.Errorf("snapshot.redis.addr is required when rate limiting uses the redis backend")
		}
	}

	if c.Audit.MaxEntries < 1 {
		return fmt.Errorf("audit.max_entries must be positive")
	}
	if c.Audit.SnapshotMaxEntries < 1 {
		return fmt.Errorf("audit.snapshot_max_entries must be positive")
	}
	if c.Audit.SnapshotMaxEntries > c.Audit.MaxEntries {
		return fmt.Errorf("audit.snapshot_max_entries cannot exceed audit.max_entries")
	}

	if c.ExportArchive.Enabled {
		switch c.ExportArchive.Backend {
		case "local":
			if c.ExportArchive.Local.BasePath == "" {
				return fmt.Errorf("export_archive.local.base_path is required when using the local backend")
			}
		case "s3":
			if c.ExportArchive.S3.Bucket == "" {
				return fmt.Errorf("export_archive.s3.bucket is required when using the s3 backend")
			}
			if c.ExportArchive.S3.Region == "" {
				return fmt.Errorf("export_archive.s3.region is required when using the s3 backend")
			}
		default:
			return fmt.Errorf("invalid export archive backend: %s (must be local or s3)", c.ExportArchive.Backend)
		}
	}

	if c.Notifications.Enabled {
		if c.Notifications.SMTP.Host == "" {
			return fmt.Errorf("notifications.smtp.host is required when notifications are enabled")
		}
		if c.Notifications.SMTP.From == "" {
			return fmt.Errorf("notifications.smtp.from is required when notifications are enabled")
		}
		if len(c.Notifications.Recipients) == 0 {
			return fmt.Errorf("notifications.recipients is required when notifications are enabled")
		}
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[c.Logging.Level] {
		return fmt.Errorf("invalid logging level: %s (must be debug, info, warn, or error)", c.Logging.Level)
	}
	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[c.Logging.Format] {
		return fmt.Errorf("invalid logging format: %s (must be json or text)", c.Logging.Format)
	}

	return nil
}
