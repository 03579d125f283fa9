// audit_retention.go implements the AuditRetention background job, which
// periodically purges in-memory trail entries older than the configured
// retention window and, when the archive database is enabled, prunes archive
// rows past their own (usually longer) horizon. The job is a no-op when
// retention_days is 0, so it is always safe to start.
package jobs

import (
	"context"
	"log/slog"
	"time"

	"github.com/meddev-qms/meddev-qms/internal/audit"
	"github.com/meddev-qms/meddev-qms/internal/config"
	"github.com/meddev-qms/meddev-qms/internal/db/repositories"
)

// AuditRetention periodically enforces trail and archive retention.
type AuditRetention struct {
	trail    *audit.TrailStore
	archive  *repositories.AuditArchiveRepository // may be nil
	cfg      *config.AuditConfig
	interval time.Duration
	stopChan chan struct{}
}

// NewAuditRetention creates the retention job. archive may be nil when the
// archive database is disabled.
func NewAuditRetention(trail *audit.TrailStore, archive *repositories.AuditArchiveRepository, cfg *config.AuditConfig) *AuditRetention {
	hours := cfg.RetentionCheckIntervalHours
	if hours <= 0 {
		hours = 24
	}
	return &AuditRetention{
		trail:    trail,
		archive:  archive,
		cfg:      cfg,
		interval: time.Duration(hours) * time.Hour,
		stopChan: make(chan struct{}),
	}
}

// Start begins the retention loop. It runs an initial sweep immediately, then
// repeats on the configured interval. The loop exits when ctx is cancelled or
// Stop() is called.
func (j *AuditRetention) Start(ctx context.Context) {
	if j.cfg.RetentionDays <= 0 && j.cfg.ArchiveRetentionDays <= 0 {
		slog.Info("audit retention job disabled (retention_days=0)")
		return
	}

	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	slog.Info("audit retention job started",
		"interval", j.interval,
		"retention_days", j.cfg.RetentionDays,
		"archive_retention_days", j.cfg.ArchiveRetentionDays)

	j.runSweep(ctx)

	for {
		select {
		case <-ticker.C:
			j.runSweep(ctx)
		case <-j.stopChan:
			slog.Info("audit retention job stopped")
			return
		case <-ctx.Done():
			slog.Info("audit retention job context cancelled")
			return
		}
	}
}

// Stop signals the loop to exit.
func (j *AuditRetention) Stop() {
	close(j.stopChan)
}

// runSweep purges the in-memory trail first, then the archive. Entries
// leaving the in-memory trail have already been archived at log time, so the
// order never loses data.
func (j *AuditRetention) runSweep(ctx context.Context) {
	if j.cfg.RetentionDays > 0 {
		removed := j.trail.ClearOldEntries(j.cfg.RetentionDays)
		if removed > 0 {
			slog.Info("audit retention: purged in-memory entries", "removed", removed)
		}
	}

	if j.archive != nil && j.cfg.ArchiveRetentionDays > 0 {
		cutoff := time.Now().AddDate(0, 0, -j.cfg.ArchiveRetentionDays)
		deleted, err := j.archive.DeleteOlderThan(ctx, cutoff)
		if err != nil {
			slog.Error("audit retention: archive prune failed", "error", err)
			return
		}
		if deleted > 0 {
			slog.Info("audit retention: pruned archive rows", "deleted", deleted)
		}
	}
}
