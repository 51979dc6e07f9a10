package database

import (
	"database/sql"
	"path/filepath"
	"strings"
	"testing"
	"testing/fstest"
	"time"
)

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	cfg := DefaultConfig()
	cfg.DatabasePath = filepath.Join(t.TempDir(), "test.db")
	db, err := sql.Open("sqlite3", cfg.DSN())
	if err != nil {
		t.Fatalf("Failed to open test database: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

// Functional Validation Tests - Config

func TestConfig_DefaultConfig(t *testing.T) {
	config := DefaultConfig()

	if config.DatabasePath != "./whiteboard.db" {
		t.Errorf("Expected DatabasePath './whiteboard.db', got %s", config.DatabasePath)
	}
	if config.MaxConnections != 10 {
		t.Errorf("Expected MaxConnections 10, got %d", config.MaxConnections)
	}
	if config.ConnMaxLifetime != time.Hour {
		t.Errorf("Expected ConnMaxLifetime 1 hour, got %v", config.ConnMaxLifetime)
	}
	if config.ConnMaxIdleTime != time.Minute*10 {
		t.Errorf("Expected ConnMaxIdleTime 10 minutes, got %v", config.ConnMaxIdleTime)
	}
	if !strings.HasPrefix(config.DSN(), "./whiteboard.db?") || !strings.Contains(config.DSN(), "_journal_mode=WAL") {
		t.Errorf("DSN() = %s", config.DSN())
	}
}

func TestConfig_Validation(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"valid config", func(*Config) {}, false},
		{"empty database path", func(c *Config) { c.DatabasePath = "" }, true},
		{"zero max connections", func(c *Config) { c.MaxConnections = 0 }, true},
		{"zero lifetime", func(c *Config) { c.ConnMaxLifetime = 0 }, true},
		{"negative idle time", func(c *Config) { c.ConnMaxIdleTime = -time.Second }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := DefaultConfig()
			tt.mutate(config)
			if err := config.Validate(); (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestApplySQLiteOptimizations(t *testing.T) {
	db := openTestDB(t)
	if err := ApplySQLiteOptimizations(db); err != nil {
		t.Fatalf("ApplySQLiteOptimizations failed: %v", err)
	}
	var mode string
	if err := db.QueryRow("PRAGMA journal_mode").Scan(&mode); err != nil {
		t.Fatal(err)
	}
	if strings.ToLower(mode) != "wal" {
		t.Errorf("journal_mode = %s, want wal", mode)
	}
}

// Functional Validation Tests - Migrations

func TestMigrationManager_ApplyEmbedded(t *testing.T) {
	db := openTestDB(t)
	manager := NewMigrationManager(db)

	if err := manager.ApplyMigrations(); err != nil {
		t.Fatalf("ApplyMigrations failed: %v", err)
	}
	if err := manager.ValidateSchema(); err != nil {
		t.Errorf("ValidateSchema failed: %v", err)
	}

	// Idempotent on restart.
	if err := manager.ApplyMigrations(); err != nil {
		t.Errorf("second ApplyMigrations failed: %v", err)
	}
	var count int
	db.QueryRow("SELECT COUNT(*) FROM schema_migrations").Scan(&count)
	if count != 1 {
		t.Errorf("schema_migrations rows = %d, want 1", count)
	}
}

func TestMigrationManager_OrderAndFailure(t *testing.T) {
	db := openTestDB(t)
	fsys := fstest.MapFS{
		"m/002_second.sql": {Data: []byte("CREATE TABLE second (id INTEGER REFERENCES first(id));")},
		"m/001_first.sql":  {Data: []byte("CREATE TABLE first (id INTEGER PRIMARY KEY);")},
		"m/README.md":      {Data: []byte("ignored")},
		"m/003_broken.sql": {Data: []byte("CREATE TABLE nonsense (")},
	}
	manager := NewMigrationManagerFS(db, fsys, "m")

	migrations, err := manager.loadMigrations()
	if err != nil {
		t.Fatal(err)
	}
	if len(migrations) != 3 || migrations[0].Version != "001" || migrations[0].Description != "first" {
		t.Fatalf("loadMigrations() = %+v", migrations)
	}

	err = manager.ApplyMigrations()
	if err == nil || !strings.Contains(err.Error(), "003") {
		t.Fatalf("expected failure on 003, got %v", err)
	}
	applied, _ := manager.getAppliedMigrations()
	if !applied["001"] || !applied["002"] || applied["003"] {
		t.Errorf("applied = %v", applied)
	}
}

func TestMigrationManager_ValidateSchemaMissing(t *testing.T) {
	db := openTestDB(t)
	if err := NewMigrationManager(db).ValidateSchema(); err == nil {
		t.Error("ValidateSchema should fail on an empty database")
	}
}
