// Package main is the entry point for the QMS compliance server binary.
// It dispatches three subcommands — serve, migrate, and version — via a simple
// switch on os.Args so the binary's full CLI surface is readable in one place
// without requiring a cobra dependency. The serve command runs auto-migration
// on startup when the archive database is enabled, so freshly deployed
// containers never need a separate migration step.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/meddev-qms/meddev-qms/internal/api"
	"github.com/meddev-qms/meddev-qms/internal/audit"
	"github.com/meddev-qms/meddev-qms/internal/auth"
	"github.com/meddev-qms/meddev-qms/internal/catalog"
	"github.com/meddev-qms/meddev-qms/internal/compliance"
	"github.com/meddev-qms/meddev-qms/internal/config"
	"github.com/meddev-qms/meddev-qms/internal/db"
	"github.com/meddev-qms/meddev-qms/internal/db/repositories"
	"github.com/meddev-qms/meddev-qms/internal/jobs"
	"github.com/meddev-qms/meddev-qms/internal/middleware"
	"github.com/meddev-qms/meddev-qms/internal/snapshot"
	"github.com/meddev-qms/meddev-qms/internal/storage"
	"github.com/meddev-qms/meddev-qms/internal/telemetry"

	// Export archival backends register themselves with the storage factory.
	_ "github.com/meddev-qms/meddev-qms/internal/storage/local"
	_ "github.com/meddev-qms/meddev-qms/internal/storage/s3"
)

const version = "0.1.0"

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	command := "serve"
	if len(os.Args) > 1 {
		command = os.Args[1]
	}

	configPath := os.Getenv("CONFIG_PATH")
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	switch command {
	case "serve":
		return serve(cfg, configPath)
	case "migrate":
		if len(os.Args) < 3 {
			return fmt.Errorf("usage: %s migrate <up|down>", os.Args[0])
		}
		return runMigrations(cfg, os.Args[2])
	case "version":
		fmt.Printf("MedDev QMS v%s\n", version)
		return nil
	default:
		return fmt.Errorf("unknown command: %s\nAvailable commands: serve, migrate, version", command)
	}
}

func serve(cfg *config.Config, configPath string) error {
	// Initialise structured logging as early as possible so all subsequent
	// output uses the configured format and level.
	telemetry.SetupLogger(cfg.Logging.Format, cfg.Logging.Level)

	if cfg.Logging.Level == "debug" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	if err := auth.ValidateJWTSecret(); err != nil {
		return fmt.Errorf("security configuration error: %w", err)
	}

	// Metric catalog: built-in defaults unless a catalog file is configured.
	cat := catalog.Default()
	if cfg.Catalog.File != "" {
		loaded, err := catalog.LoadFile(cfg.Catalog.File)
		if err != nil {
			return fmt.Errorf("failed to load metric catalog: %w", err)
		}
		cat = loaded
		slog.Info("metric catalog loaded", "file", cfg.Catalog.File, "metrics", cat.Len())
	}

	// Snapshot store for the compliance state and audit trail documents.
	store, err := snapshot.New(snapshot.Config{
		Backend: cfg.Snapshot.Backend,
		File:    snapshot.FileConfig{BasePath: cfg.Snapshot.File.BasePath},
		Redis: snapshot.RedisConfig{
			Addr:      cfg.Snapshot.Redis.Addr,
			Password:  cfg.Snapshot.Redis.Password,
			DB:        cfg.Snapshot.Redis.DB,
			KeyPrefix: cfg.Snapshot.Redis.KeyPrefix,
		},
	})
	if err != nil {
		return fmt.Errorf("failed to create snapshot store: %w", err)
	}
	slog.Info("snapshot store ready", "backend", cfg.Snapshot.Backend)

	// Optional long-term audit archive database.
	var (
		database    *sqlx.DB
		archiveRepo *repositories.AuditArchiveRepository
	)
	if cfg.Database.Enabled {
		database, err = db.Connect(cfg.Database.GetDSN(), cfg.Database.MaxConnections, cfg.Database.MinIdleConnections)
		if err != nil {
			return fmt.Errorf("failed to connect to archive database: %w", err)
		}
		defer database.Close()
		slog.Info("connected to archive database")

		telemetry.StartDBStatsCollector(database.DB)

		if err := db.RunMigrations(database.DB, "up"); err != nil {
			return fmt.Errorf("failed to run migrations: %w", err)
		}
		schemaVersion, dirty, err := db.GetMigrationVersion(database.DB)
		if err != nil {
			slog.Warn("failed to get migration version", "error", err)
		} else {
			slog.Info("archive database schema", "version", schemaVersion, "dirty", dirty)
		}

		archiveRepo = repositories.NewAuditArchiveRepository(database)
	}

	// Audit trail with optional shipping and archiving.
	shipper, err := buildShipper(cfg.Audit.Shippers)
	if err != nil {
		return fmt.Errorf("failed to create audit shippers: %w", err)
	}
	defer shipper.Close()

	trailOpts := []audit.Option{
		audit.WithCaps(cfg.Audit.MaxEntries, cfg.Audit.SnapshotMaxEntries),
		audit.WithRecording(cfg.Audit.RecordingEnabled),
	}
	if shipper.Len() > 0 {
		trailOpts = append(trailOpts, audit.WithShipper(shipper))
	}
	if archiveRepo != nil {
		trailOpts = append(trailOpts, audit.WithArchiver(archiveRepo))
	}
	trail := audit.NewTrailStore(store, trailOpts...)

	engine := compliance.NewEngine(cat, trail, store)

	// Rehydrate persisted state before accepting traffic.
	rehydrateCtx, cancelRehydrate := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancelRehydrate()
	if err := trail.Rehydrate(rehydrateCtx); err != nil {
		return fmt.Errorf("failed to rehydrate audit trail: %w", err)
	}
	if err := engine.Rehydrate(rehydrateCtx); err != nil {
		return fmt.Errorf("failed to rehydrate compliance state: %w", err)
	}

	// Optional export archival backend.
	var exportBackend storage.Backend
	if cfg.ExportArchive.Enabled {
		exportBackend, err = storage.New(&cfg.ExportArchive)
		if err != nil {
			return fmt.Errorf("failed to create export archive backend: %w", err)
		}
		slog.Info("export archival ready", "backend", cfg.ExportArchive.Backend)
	}

	// Rate limiter.
	var limiter middleware.Limiter
	if cfg.Security.RateLimiting.Enabled {
		limitCfg := middleware.RateLimitConfig{
			RequestsPerMinute: cfg.Security.RateLimiting.RequestsPerMinute,
			BurstSize:         cfg.Security.RateLimiting.Burst,
			CleanupInterval:   5 * time.Minute,
		}
		switch cfg.Security.RateLimiting.Backend {
		case "redis":
			var client *redis.Client
			if rs, ok := store.(*snapshot.RedisStore); ok {
				// Share the snapshot store's connection.
				client = rs.Client()
			} else {
				client = redis.NewClient(&redis.Options{
					Addr:     cfg.Snapshot.Redis.Addr,
					Password: cfg.Snapshot.Redis.Password,
					DB:       cfg.Snapshot.Redis.DB,
				})
			}
			limiter = middleware.NewRedisLimiter(client, limitCfg)
		default:
			memLimiter := middleware.NewMemoryLimiter(limitCfg)
			defer memLimiter.Stop()
			limiter = memLimiter
		}
	}

	// Prometheus metrics on a dedicated port, off the public ingress path.
	if cfg.Telemetry.Enabled && cfg.Telemetry.Metrics.Enabled {
		metricsAddr := fmt.Sprintf(":%d", cfg.Telemetry.Metrics.PrometheusPort)
		go func() {
			mux := http.NewServeMux()
			mux.Handle("/metrics", promhttp.Handler())
			slog.Info("starting Prometheus metrics server", "addr", metricsAddr)
			srv := &http.Server{
				Addr:         metricsAddr,
				Handler:      mux,
				ReadTimeout:  10 * time.Second,
				WriteTimeout: 10 * time.Second,
			}
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				slog.Error("metrics server error", "error", err)
			}
		}()
	}

	// Background jobs.
	jobCtx, cancelJobs := context.WithCancel(context.Background())
	defer cancelJobs()

	retention := jobs.NewAuditRetention(trail, archiveRepo, &cfg.Audit)
	go retention.Start(jobCtx)

	notifier := jobs.NewAlertNotifier(engine, &cfg.Notifications)
	go notifier.Start(jobCtx)

	// Log config file changes; a restart is still required to apply them.
	if configPath != "" {
		config.Watch(configPath, func(e fsnotify.Event) {
			slog.Info("config file changed, restart to apply", "file", e.Name)
		})
	}

	router := api.SetupRouter(api.Deps{
		Config:        cfg,
		Engine:        engine,
		Trail:         trail,
		Archive:       archiveRepo,
		ExportBackend: exportBackend,
		DB:            database,
		Limiter:       limiter,
	})

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		slog.Info("starting server",
			"addr", server.Addr,
			"base_url", cfg.Server.BaseURL,
			"metrics", cat.Len(),
			"audit_entries", trail.Len())
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("failed to start server", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	retention.Stop()
	notifier.Stop()

	slog.Info("server stopped gracefully")
	return nil
}

// buildShipper converts the config shipper list into audit shipper configs.
func buildShipper(configs []config.AuditShipperConfig) (*audit.MultiShipper, error) {
	shipperConfigs := make([]audit.ShipperConfig, 0, len(configs))
	for _, c := range configs {
		sc := audit.ShipperConfig{
			Enabled: c.Enabled,
			Type:    c.Type,
		}
		if c.Webhook != nil {
			sc.Webhook = &audit.WebhookConfig{
				URL:           c.Webhook.URL,
				Headers:       c.Webhook.Headers,
				Timeout:       time.Duration(c.Webhook.TimeoutSecs) * time.Second,
				BatchSize:     c.Webhook.BatchSize,
				FlushInterval: time.Duration(c.Webhook.FlushInterval) * time.Second,
			}
		}
		if c.File != nil {
			sc.File = &audit.FileShipperConfig{
				Path:       c.File.Path,
				MaxSizeMB:  c.File.MaxSizeMB,
				MaxBackups: c.File.MaxBackups,
			}
		}
		shipperConfigs = append(shipperConfigs, sc)
	}
	return audit.NewMultiShipper(shipperConfigs)
}

// runMigrations applies or rolls back archive database migrations.
func runMigrations(cfg *config.Config, direction string) error {
	telemetry.SetupLogger(cfg.Logging.Format, cfg.Logging.Level)

	database, err := db.Connect(cfg.Database.GetDSN(), cfg.Database.MaxConnections, cfg.Database.MinIdleConnections)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer database.Close()

	if err := db.RunMigrations(database.DB, direction); err != nil {
		return err
	}

	schemaVersion, dirty, err := db.GetMigrationVersion(database.DB)
	if err != nil {
		return err
	}
	slog.Info("migrations complete", "direction", direction, "version", schemaVersion, "dirty", dirty)
	return nil
}
