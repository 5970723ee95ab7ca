// Package dbtest opens migrated SQLite databases for package tests.
package dbtest

import (
	"path/filepath"
	"testing"

	"mentorbook/internal/database"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// Open returns a fresh migrated database under t.TempDir(). A single
// connection serialises writers the way row locks do on MySQL.
func Open(t testing.TB) *gorm.DB {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	cfg := database.GormConfig()
	cfg.DisableForeignKeyConstraintWhenMigrating = true
	db, err := gorm.Open(sqlite.Open(path+"?_busy_timeout=5000"), cfg)
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	if err := database.AutoMigrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}
