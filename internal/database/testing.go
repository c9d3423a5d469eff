package database

import (
	"path/filepath"
	"testing"

	"go.uber.org/zap"
)

// NewTestDB opens a migrated database in a per-test temp directory.
func NewTestDB(tb testing.TB) *DB {
	tb.Helper()
	db, err := NewDB(filepath.Join(tb.TempDir(), "test.db"), zap.NewNop())
	if err != nil {
		tb.Fatalf("failed to open test database: %v", err)
	}
	tb.Cleanup(func() { db.Close() })
	return db
}
