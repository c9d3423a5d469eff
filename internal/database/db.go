// Package database owns the SQLite file that holds daily logs, prediction
// runs and share revocations.
package database

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Connection pragmas. The bot webhook and the scheduler write concurrently
// with API requests, so writers wait on the lock instead of failing fast.
const pragmas = "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"

// DB wraps the shared connection pool.
type DB struct {
	SQL *sql.DB
}

// NewDB creates the parent directory if needed, brings the schema up to
// date and opens the pool.
func NewDB(dbPath string, logger *zap.Logger) (*DB, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}
	if err := migrateUp(dbPath, logger); err != nil {
		return nil, err
	}

	pool, err := sql.Open("sqlite", dbPath+pragmas)
	if err != nil {
		return nil, fmt.Errorf("failed to open database %s: %w", dbPath, err)
	}
	if err := pool.Ping(); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to connect to database %s: %w", dbPath, err)
	}
	return &DB{SQL: pool}, nil
}

func (d *DB) Close() error {
	return d.SQL.Close()
}

func migrateUp(dbPath string, logger *zap.Logger) error {
	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("failed to load embedded migrations: %w", err)
	}
	m, err := migrate.NewWithSourceInstance("iofs", src, "sqlite://"+dbPath)
	if err != nil {
		return fmt.Errorf("failed to prepare migrations for %s: %w", dbPath, err)
	}
	defer m.Close()

	err = m.Up()
	switch {
	case errors.Is(err, migrate.ErrNoChange):
		logger.Debug("database schema up to date", zap.String("path", dbPath))
		return nil
	case err != nil:
		return fmt.Errorf("failed to apply migrations to %s: %w", dbPath, err)
	}

	version, dirty, err := m.Version()
	if err != nil {
		return fmt.Errorf("failed to read schema version: %w", err)
	}
	logger.Info("database schema migrated",
		zap.String("path", dbPath),
		zap.Uint("version", version),
		zap.Bool("dirty", dirty),
	)
	return nil
}
