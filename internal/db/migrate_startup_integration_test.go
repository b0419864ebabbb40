package db_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	dbfs "github.com/garnizeh/recboard/db"
	"github.com/garnizeh/recboard/internal/config"
	"github.com/garnizeh/recboard/internal/db"
)

// TestMigrateOnStart_TempWorkdir runs the startup path of the sqlite driver
// (config file, validate, open, migrate with seeds) against a database kept in
// a temporary directory.
func TestMigrateOnStart_TempWorkdir(t *testing.T) {
	ctx := context.Background()
	tmpDir := t.TempDir()
	dbPath := filepath.Join(tmpDir, "test.db")

	cfgY := "addr: \":0\"\n" +
		"migrate_on_start: true\n" +
		"store:\n  driver: sqlite\n  database_path: '" + dbPath + "'\n"

	cfgPath := filepath.Join(tmpDir, "config.yaml")
	if err := os.WriteFile(cfgPath, []byte(cfgY), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	// allow insecure default JWT secret for this test
	t.Setenv("RECBOARD_ENV", "development")

	cfg, err := config.LoadConfig(cfgPath)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("validate config: %v", err)
	}
	if !cfg.MigrateOnStart {
		t.Fatalf("expected migrate_on_start from file")
	}

	dbCtx, dbCancel := context.WithTimeout(ctx, cfg.APITimeout)
	defer dbCancel()

	d, err := db.New(dbCtx, cfg.Store.DatabasePath, nil)
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	defer d.Close()

	for range 2 {
		if err := db.Migrate(dbCtx, d, dbfs.Migrations, dbfs.SeedFiles); err != nil {
			t.Fatalf("migrate failed: %v", err)
		}
	}

	var count int
	if err := d.QueryRow(ctx, `SELECT COUNT(1) FROM schema_migrations`).Scan(&count); err != nil {
		t.Fatalf("scan schema_migrations count: %v", err)
	}
	if count == 0 {
		t.Fatalf("expected migrations recorded, got 0")
	}

	var queries int
	if err := d.QueryRow(ctx, `SELECT COUNT(1) FROM queries`).Scan(&queries); err != nil {
		t.Fatalf("count queries: %v", err)
	}
	if queries == 0 {
		t.Fatalf("expected seeded demo query")
	}
}
