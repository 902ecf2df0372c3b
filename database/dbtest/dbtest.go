// Package dbtest provides migrated in-memory databases for package tests.
package dbtest

import (
	"testing"

	"rollingdoor-backend/database"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
)

// New opens a private in-memory SQLite database with every model migrated.
// The pool is pinned to one connection so all queries see the same database.
func New(t testing.TB) *gorm.DB {
	t.Helper()

	db, err := database.Open(sqlite.Open(":memory:"))
	if err != nil {
		t.Fatalf("failed opening in-memory sqlite database: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("failed getting sql.DB from gorm: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() {
		_ = sqlDB.Close()
	})

	if err := database.Migrate(db); err != nil {
		t.Fatalf("failed automigrating models: %v", err)
	}
	return db
}
