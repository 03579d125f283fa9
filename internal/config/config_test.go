package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

// chdirTemp runs the test from an empty directory so Load never picks up a
// stray config.yaml from the repository root.
func chdirTemp(t *testing.T) {
	t.Helper()
	orig, err := os.Getwd()
	if err != nil {
		t.Fatalf("Getwd: %v", err)
	}
	if err := os.Chdir(t.TempDir()); err != nil {
		t.Fatalf("Chdir: %v", err)
	}
	t.Cleanup(func() { _ = os.Chdir(orig) })
}

// ---------------------------------------------------------------------------
// Load
// ---------------------------------------------------------------------------

func TestLoad_Defaults(t *testing.T) {
	chdirTemp(t)
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Server.Port != 8080 {
		t.Errorf("server.port = %d, want 8080", cfg.Server.Port)
	}
	if cfg.Server.ReadTimeout != 30*time.Second {
		t.Errorf("server.read_timeout = %v, want 30s", cfg.Server.ReadTimeout)
	}
	if cfg.Database.Enabled {
		t.Error("database enabled by default, want disabled")
	}
	if cfg.Snapshot.Backend != "file" {
		t.Errorf("snapshot.backend = %q, want file", cfg.Snapshot.Backend)
	}
	if cfg.Audit.MaxEntries != 10000 || cfg.Audit.SnapshotMaxEntries != 5000 {
		t.Errorf("audit caps = %d/%d, want 10000/5000", cfg.Audit.MaxEntries, cfg.Audit.SnapshotMaxEntries)
	}
	if !cfg.Audit.RecordingEnabled {
		t.Error("audit recording disabled by default, want enabled")
	}
	if cfg.Security.RateLimiting.Backend != "memory" {
		t.Errorf("rate_limiting.backend = %q, want memory", cfg.Security.RateLimiting.Backend)
	}
	if cfg.Telemetry.Metrics.PrometheusPort != 9090 {
		t.Errorf("prometheus_port = %d, want 9090", cfg.Telemetry.Metrics.PrometheusPort)
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	chdirTemp(t)
	t.Setenv("QMS_SERVER_PORT", "9999")
	t.Setenv("QMS_AUDIT_MAX_ENTRIES", "500")
	t.Setenv("QMS_AUDIT_SNAPSHOT_MAX_ENTRIES", "200")
	t.Setenv("QMS_LOGGING_LEVEL", "debug")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Port != 9999 {
		t.Errorf("server.port = %d, want 9999", cfg.Server.Port)
	}
	if cfg.Audit.MaxEntries != 500 || cfg.Audit.SnapshotMaxEntries != 200 {
		t.Errorf("audit caps = %d/%d, want 500/200", cfg.Audit.MaxEntries, cfg.Audit.SnapshotMaxEntries)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("logging.level = %q, want debug", cfg.Logging.Level)
	}
}

func TestLoad_YAMLFile(t *testing.T) {
	chdirTemp(t)
	path := filepath.Join(t.TempDir(), "config.yaml")
	yaml := `
server:
  port: 8443
audit:
  recording_enabled: false
  retention_days: 90
notifications:
  enabled: true
  smtp:
    host: smtp.example.com
    from: qms@example.com
  recipients:
    - quality@example.com
`
	if err := os.WriteFile(path, []byte(yaml), 0600); err != nil {
		t.Fatalf("write: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Port != 8443 {
		t.Errorf("server.port = %d, want 8443", cfg.Server.Port)
	}
	if cfg.Audit.RecordingEnabled {
		t.Error("audit.recording_enabled = true, want false from file")
	}
	if cfg.Audit.RetentionDays != 90 {
		t.Errorf("audit.retention_days = %d, want 90", cfg.Audit.RetentionDays)
	}
	if !cfg.Notifications.Enabled || cfg.Notifications.SMTP.Host != "smtp.example.com" {
		t.Errorf("notifications = %+v", cfg.Notifications)
	}
}

func TestLoad_ExpandsSensitiveEnvRefs(t *testing.T) {
	chdirTemp(t)
	t.Setenv("DB_SECRET", "s3cret")
	t.Setenv("QMS_DATABASE_PASSWORD", "${DB_SECRET}")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Database.Password != "s3cret" {
		t.Errorf("database.password = %q, want expanded value", cfg.Database.Password)
	}
}

// ---------------------------------------------------------------------------
// Validate
// ---------------------------------------------------------------------------

func validConfig(t *testing.T) *Config {
	t.Helper()
	chdirTemp(t)
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	return cfg
}

func TestValidate_Rejections(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"bad port", func(c *Config) { c.Server.Port = 0 }},
		{"missing base url", func(c *Config) { c.Server.BaseURL = "" }},
		{"bad snapshot backend", func(c *Config) { c.Snapshot.Backend = "etcd" }},
		{"file backend without path", func(c *Config) { c.Snapshot.File.BasePath = "" }},
		{"bad limiter backend", func(c *Config) { c.Security.RateLimiting.Backend = "dynamo" }},
		{"zero audit cap", func(c *Config) { c.Audit.MaxEntries = 0 }},
		{"snapshot cap over memory cap", func(c *Config) {
			c.Audit.MaxEntries = 100
			c.Audit.SnapshotMaxEntries = 200
		}},
		{"db enabled without host", func(c *Config) {
			c.Database.Enabled = true
			c.Database.Host = ""
		}},
		{"s3 archive without bucket", func(c *Config) {
			c.ExportArchive.Enabled = true
			c.ExportArchive.Backend = "s3"
		}},
		{"notifications without recipients", func(c *Config) {
			c.Notifications.Enabled = true
			c.Notifications.SMTP.Host = "smtp.example.com"
			c.Notifications.SMTP.From = "qms@example.com"
			c.Notifications.Recipients = nil
		}},
		{"bad log level", func(c *Config) { c.Logging.Level = "verbose" }},
		{"bad log format", func(c *Config) { c.Logging.Format = "xml" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig(t)
			tt.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("Validate() = nil, want error")
			}
		})
	}
}

func TestValidate_AcceptsDefaults(t *testing.T) {
	cfg := validConfig(t)
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() on defaults: %v", err)
	}
}
