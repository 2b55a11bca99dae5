package db

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	"github.com/hpungsan/nami/internal/config"
	_ "modernc.org/sqlite"
)

// FileName is the database file inside the base directory.
const FileName = "nami.db"

// migrations holds the schema steps in order. Step i moves user_version
// from i to i+1. Append only.
var migrations = []string{
	// 1: snapshot blobs keyed by logical name
	`CREATE TABLE IF NOT EXISTS blobs (
	  key        TEXT PRIMARY KEY,
	  data       TEXT NOT NULL,
	  updated_at INTEGER NOT NULL
	);`,
	// 2: ListBlobKeys walks backups oldest first
	`CREATE INDEX IF NOT EXISTS idx_blobs_updated ON blobs(updated_at, key);`,
	// 3: write counter for compare-and-swap; existing rows start at 1
	`ALTER TABLE blobs ADD COLUMN version INTEGER NOT NULL DEFAULT 1;`,
}

// CurrentSchemaVersion is the user_version after all migrations ran.
var CurrentSchemaVersion = len(migrations)

// Init opens (creating if needed) the SQLite database at baseDir/nami.db
// and brings its schema up to date. Tests pass t.TempDir() as baseDir.
func Init(baseDir string) (*sql.DB, error) {
	for _, dir := range []string{baseDir, filepath.Join(baseDir, "exports")} {
		if err := os.MkdirAll(dir, 0700); err != nil {
			return nil, fmt.Errorf("failed to create %s: %w", dir, err)
		}
		// MkdirAll leaves existing dirs alone and honours umask.
		_ = os.Chmod(dir, 0700)
	}

	// Pragmas in the DSN apply to every pooled connection.
	dbPath := filepath.Join(baseDir, FileName)
	db, err := sql.Open("sqlite", dbPath+"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := verifyWALMode(db); err != nil {
		db.Close()
		return nil, err
	}
	if err := migrate(db); err != nil {
		db.Close()
		return nil, err
	}

	_ = os.Chmod(dbPath, 0600)
	return db, nil
}

// ConfigurePool applies the pool limits set in cfg. Zero values keep the
// database/sql defaults.
func ConfigurePool(db *sql.DB, cfg *config.Config) {
	if cfg == nil {
		return
	}
	if cfg.DBMaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.DBMaxOpenConns)
	}
	if cfg.DBMaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.DBMaxIdleConns)
	}
}

// migrate runs every step above the stored user_version. Each step and its
// version bump commit together.
func migrate(db *sql.DB) error {
	version, err := GetUserVersion(db)
	if err != nil {
		return err
	}

	for i := version; i < len(migrations); i++ {
		tx, err := db.Begin()
		if err != nil {
			return fmt.Errorf("migration %d: %w", i+1, err)
		}
		if _, err := tx.Exec(migrations[i]); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("migration %d failed: %w", i+1, err)
		}
		if _, err := tx.Exec(fmt.Sprintf("PRAGMA user_version=%d", i+1)); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("migration %d: failed to set user_version: %w", i+1, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("migration %d: %w", i+1, err)
		}
	}
	return nil
}

func verifyWALMode(db *sql.DB) error {
	var journalMode string
	if err := db.QueryRow("PRAGMA journal_mode;").Scan(&journalMode); err != nil {
		return fmt.Errorf("failed to verify journal mode: %w", err)
	}
	if journalMode != "wal" {
		return fmt.Errorf("expected WAL mode, got %s", journalMode)
	}
	return nil
}

// GetUserVersion returns the schema version stored in the user_version pragma.
func GetUserVersion(db *sql.DB) (int, error) {
	var version int
	if err := db.QueryRow("PRAGMA user_version;").Scan(&version); err != nil {
		return 0, fmt.Errorf("failed to get user_version: %w", err)
	}
	return version, nil
}

// SetUserVersion overwrites the user_version pragma.
func SetUserVersion(db *sql.DB, version int) error {
	if _, err := db.Exec(fmt.Sprintf("PRAGMA user_version=%d", version)); err != nil {
		return fmt.Errorf("failed to set user_version: %w", err)
	}
	return nil
}
