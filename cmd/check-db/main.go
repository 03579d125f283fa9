// Package main is a diagnostic tool for the optional audit archive database.
// It loads the service configuration, connects, reports the migration version,
// and prints a summary of archived audit entries. The binary exits non-zero on
// any failure so it can gate deployments on a reachable, migrated database.
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/meddev-qms/meddev-qms/internal/config"
	"github.com/meddev-qms/meddev-qms/internal/db"
	"github.com/meddev-qms/meddev-qms/internal/db/repositories"
)

func main() {
	cfg, err := config.Load(os.Getenv("CONFIG_PATH"))
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if !cfg.Database.Enabled {
		log.Fatal("Archive database is disabled (set database.enabled: true)")
	}

	database, err := db.Connect(cfg.Database.GetDSN(), cfg.Database.MaxConnections, cfg.Database.MinIdleConnections)
	if err != nil {
		log.Fatalf("Failed to connect: %v", err)
	}
	defer database.Close()

	version, dirty, err := db.GetMigrationVersion(database.DB)
	if err != nil {
		log.Fatalf("Failed to read migration version: %v", err)
	}
	fmt.Printf("Schema version: %d (dirty: %v)\n", version, dirty)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	repo := repositories.NewAuditArchiveRepository(database)
	total, err := repo.Count(ctx)
	if err != nil {
		log.Fatalf("Failed to count archived entries: %v", err)
	}
	fmt.Printf("Archived audit entries: %d\n", total)

	entries, _, err := repo.List(ctx, repositories.ArchiveFilters{}, 5, 0)
	if err != nil {
		log.Fatalf("Failed to list archived entries: %v", err)
	}
	fmt.Println("\n=== MOST RECENT ===")
	for _, e := range entries {
		fmt.Printf("%s  %-20s  %-24s  %s\n",
			e.Timestamp.Format(time.RFC3339), e.EntityType, e.Action, e.User)
	}
	if len(entries) == 0 {
		fmt.Println("No entries archived yet.")
	}
}
