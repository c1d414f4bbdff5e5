package storage

import (
	"database/sql"
	"fmt"
	"time"
)

// CreateSchema creates the declaration-cache tables and indexes in one
// transaction. It is a no-op for tables that already exist.
//
// Must be called with SQLite PRAGMA foreign_keys = ON so that deleting a
// root cascades to everything recorded under it.
func CreateSchema(db *sql.DB) error {
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin schema transaction: %w", err)
	}
	defer tx.Rollback() // Safe to call even after commit

	// Create all tables in dependency order
	tables := []struct {
		name string
		ddl  string
	}{
		{"cache_metadata", createCacheMetadataTable},
		{"roots", createRootsTable},
		{"files", createFilesTable},
		{"file_tree", createFileTreeTable},
		{"macro_defs", createMacroDefsTable},
		{"macro_refs", createMacroRefsTable},
		{"decls", createDeclsTable},
		{"missing_includes", createMissingIncludesTable},
	}
	for _, table := range tables {
		if _, err := tx.Exec(table.ddl); err != nil {
			return fmt.Errorf("failed to create %s table: %w", table.name, err)
		}
	}

	// Create all indexes
	for i, idx := range indexes {
		if _, err := tx.Exec(idx); err != nil {
			return fmt.Errorf("failed to create index %d: %w", i+1, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit schema transaction: %w", err)
	}
	return nil
}

// DropSchema removes every cache table, for replacing a cache written in
// another format.
func DropSchema(db *sql.DB) error {
	// Reverse dependency order
	tables := []string{
		"missing_includes", "decls", "macro_refs", "macro_defs",
		"file_tree", "files", "roots", "cache_metadata",
	}
	for _, name := range tables {
		if _, err := db.Exec("DROP TABLE IF EXISTS " + name); err != nil {
			return fmt.Errorf("failed to drop %s table: %w", name, err)
		}
	}
	return nil
}

// GetSchemaVersion returns the cache format tag stored in cache_metadata,
// or "" for a database that has never been written.
func GetSchemaVersion(db *sql.DB) (string, error) {
	// First check if cache_metadata table exists
	var tableExists int
	err := db.QueryRow("SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name='cache_metadata'").Scan(&tableExists)
	if err != nil {
		return "", fmt.Errorf("failed to check cache_metadata existence: %w", err)
	}
	if tableExists == 0 {
		return "", nil
	}

	// Query version
	var version string
	err = db.QueryRow("SELECT value FROM cache_metadata WHERE key = ?", metaVersion).Scan(&version)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to query schema version: %w", err)
	}
	return version, nil
}

func setMetadata(tx *sql.Tx, key, value string) error {
	now := time.Now().UTC().Format(time.RFC3339)
	_, err := tx.Exec(`
		INSERT INTO cache_metadata (key, value, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			value = excluded.value,
			updated_at = excluded.updated_at
	`, key, value, now)
	if err != nil {
		return fmt.Errorf("failed to set %s: %w", key, err)
	}
	return nil
}

// cache_metadata keys
const (
	metaVersion       = "version"
	metaBaseLocation  = "base_location"
	metaGeneration    = "generation"
	metaIncludePaths  = "include_paths"
	metaGlobalDefines = "global_defines"
)

// Table DDL constants

// Key/value store for cache-wide metadata
const createCacheMetadataTable = `
CREATE TABLE IF NOT EXISTS cache_metadata (
    key TEXT PRIMARY KEY,
    value TEXT NOT NULL,
    updated_at TEXT NOT NULL
)
`

const createRootsTable = `
CREATE TABLE IF NOT EXISTS roots (
    root_path TEXT PRIMARY KEY,
    position INTEGER NOT NULL,                   -- Processing order within the base location
    included_by TEXT NOT NULL DEFAULT ''         -- Another root that includes this one
)
`

// Every file read while processing a root, with the mtime it was indexed at
const createFilesTable = `
CREATE TABLE IF NOT EXISTS files (
    root_path TEXT NOT NULL,
    file_path TEXT NOT NULL,
    mtime INTEGER NOT NULL,                      -- Unix nanoseconds when indexed
    PRIMARY KEY (root_path, file_path),
    FOREIGN KEY (root_path) REFERENCES roots(root_path) ON DELETE CASCADE
)
`

// Include edges of a root's file tree in visit order
const createFileTreeTable = `
CREATE TABLE IF NOT EXISTS file_tree (
    root_path TEXT NOT NULL,
    seq INTEGER NOT NULL,
    parent_path TEXT NOT NULL,
    child_path TEXT NOT NULL,
    line INTEGER NOT NULL,
    PRIMARY KEY (root_path, seq),
    FOREIGN KEY (root_path) REFERENCES roots(root_path) ON DELETE CASCADE
)
`

// Define and undef events of a root, replayed for later roots of a unit
const createMacroDefsTable = `
CREATE TABLE IF NOT EXISTS macro_defs (
    root_path TEXT NOT NULL,
    seq INTEGER NOT NULL,                        -- Event order; replay order matters
    name TEXT NOT NULL,                          -- Empty for an undefineall event
    params TEXT,                                 -- JSON parameter list, NULL for object-like
    body TEXT NOT NULL,
    file_path TEXT NOT NULL,
    line INTEGER NOT NULL,
    undef INTEGER NOT NULL DEFAULT 0,
    PRIMARY KEY (root_path, seq),
    FOREIGN KEY (root_path) REFERENCES roots(root_path) ON DELETE CASCADE
)
`

// Macros a root looked up outside its own definitions, for staleness checks
const createMacroRefsTable = `
CREATE TABLE IF NOT EXISTS macro_refs (
    root_path TEXT NOT NULL,
    name TEXT NOT NULL,
    value TEXT,                                  -- NULL: looked up and found undefined
    after_reset INTEGER NOT NULL DEFAULT 0,      -- 1: made after an undefineall, against global defines only
    PRIMARY KEY (root_path, after_reset, name),
    FOREIGN KEY (root_path) REFERENCES roots(root_path) ON DELETE CASCADE
)
`

const createDeclsTable = `
CREATE TABLE IF NOT EXISTS decls (
    root_path TEXT NOT NULL,
    seq INTEGER NOT NULL,
    name TEXT NOT NULL,
    kind TEXT NOT NULL,
    file_path TEXT NOT NULL,
    line INTEGER NOT NULL,
    pos INTEGER NOT NULL DEFAULT 0,
    container TEXT NOT NULL DEFAULT '',
    super TEXT NOT NULL DEFAULT '',
    enumerators TEXT,                            -- JSON list for enum typedefs
    PRIMARY KEY (root_path, seq),
    FOREIGN KEY (root_path) REFERENCES roots(root_path) ON DELETE CASCADE
)
`

// Includes that could not be resolved when the root was processed
const createMissingIncludesTable = `
CREATE TABLE IF NOT EXISTS missing_includes (
    root_path TEXT NOT NULL,
    seq INTEGER NOT NULL,
    file_path TEXT NOT NULL,
    include_name TEXT NOT NULL,
    line INTEGER NOT NULL,
    PRIMARY KEY (root_path, seq),
    FOREIGN KEY (root_path) REFERENCES roots(root_path) ON DELETE CASCADE
)
`

// Indexes for name lookups and file-to-root resolution
var indexes = []string{
	"CREATE INDEX IF NOT EXISTS idx_decls_name ON decls(name)",
	"CREATE INDEX IF NOT EXISTS idx_decls_container ON decls(container)",
	"CREATE INDEX IF NOT EXISTS idx_files_path ON files(file_path)",
}
