package prefs

import (
	"database/sql"
	"embed"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// SQLiteStore persists settings in a SQLite database. Each store handle is
// scoped to a single domain; several domains share one database file, which
// lets multiple coexisting settings namespaces read and write the same
// persistent state.
type SQLiteStore struct {
	db     *sql.DB
	domain string
	shared bool // db owned by another store handle; Close must not close it
}

// OpenSQLite opens (or creates) the settings database in dataDir and runs
// pending migrations. Pass ":memory:" as dataDir for an in-memory database
// (used by tests).
func OpenSQLite(dataDir, domain string) (*SQLiteStore, error) {
	if domain == "" {
		return nil, fmt.Errorf("domain must not be empty")
	}

	var dsn string
	if dataDir == ":memory:" {
		dsn = ":memory:"
	} else {
		if err := os.MkdirAll(dataDir, 0o755); err != nil {
			return nil, fmt.Errorf("creating data directory: %w", err)
		}
		dsn = filepath.Join(dataDir, "prefd.db")
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	// Limit to single connection to avoid "database is locked" errors.
	db.SetMaxOpenConns(1)

	// Set busy timeout so concurrent access waits briefly instead of failing immediately.
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting busy timeout: %w", err)
	}

	// Enable WAL mode for better concurrent read performance.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting journal mode: %w", err)
	}

	s := &SQLiteStore{db: db, domain: domain}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return s, nil
}

// WithDomain returns a store handle over the same database scoped to a
// different domain. The returned handle shares the connection; closing it
// is a no-op, close the original store instead.
func (s *SQLiteStore) WithDomain(domain string) *SQLiteStore {
	return &SQLiteStore{db: s.db, domain: domain, shared: true}
}

// Domain returns the settings namespace this handle reads and writes.
func (s *SQLiteStore) Domain() string { return s.domain }

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	if s.shared {
		return nil
	}
	return s.db.Close()
}

// migrate reads embedded SQL migration files and applies any that haven't been run yet.
func (s *SQLiteStore) migrate() error {
	// Ensure schema_version table exists (bootstrap).
	if _, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS schema_version (
		version INTEGER PRIMARY KEY,
		applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
	)`); err != nil {
		return fmt.Errorf("creating schema_version table: %w", err)
	}

	entries, err := migrationsFS.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("reading migrations directory: %w", err)
	}

	// Sort by filename to guarantee ascending order.
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Name() < entries[j].Name()
	})

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".sql") {
			continue
		}

		version, err := parseMigrationVersion(entry.Name())
		if err != nil {
			return err
		}

		var exists int
		if err := s.db.QueryRow("SELECT COUNT(*) FROM schema_version WHERE version = ?", version).Scan(&exists); err != nil {
			return fmt.Errorf("checking migration %d: %w", version, err)
		}
		if exists > 0 {
			continue
		}

		content, err := migrationsFS.ReadFile("migrations/" + entry.Name())
		if err != nil {
			return fmt.Errorf("reading migration %s: %w", entry.Name(), err)
		}

		tx, err := s.db.Begin()
		if err != nil {
			return fmt.Errorf("beginning transaction for migration %d: %w", version, err)
		}

		if _, err := tx.Exec(string(content)); err != nil {
			tx.Rollback()
			return fmt.Errorf("applying migration %d: %w", version, err)
		}

		if _, err := tx.Exec("INSERT INTO schema_version (version) VALUES (?)", version); err != nil {
			tx.Rollback()
			return fmt.Errorf("recording migration %d: %w", version, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("committing migration %d: %w", version, err)
		}
	}

	return nil
}

func parseMigrationVersion(filename string) (int, error) {
	var version int
	if _, err := fmt.Sscanf(filename, "%d_", &version); err != nil {
		return 0, fmt.Errorf("parsing migration version from %q: %w", filename, err)
	}
	return version, nil
}

// AppliedMigrations returns the list of applied migration versions in ascending order.
func (s *SQLiteStore) AppliedMigrations() ([]int, error) {
	rows, err := s.db.Query("SELECT version FROM schema_version ORDER BY version ASC")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var versions []int
	for rows.Next() {
		var v int
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		versions = append(versions, v)
	}
	return versions, rows.Err()
}

func (s *SQLiteStore) Get(key string) (any, bool, error) {
	var raw string
	err := s.db.QueryRow(
		"SELECT value FROM settings WHERE domain = ? AND key = ?",
		s.domain, key,
	).Scan(&raw)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	var value any
	if err := json.Unmarshal([]byte(raw), &value); err != nil {
		return nil, false, fmt.Errorf("decoding value for key %q: %w", key, err)
	}
	return value, true, nil
}

func (s *SQLiteStore) Set(key string, value any) error {
	if value == nil {
		return s.Delete(key)
	}

	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encoding value for key %q: %w", key, err)
	}

	_, err = s.db.Exec(`
		INSERT INTO settings (domain, key, value, updated_at) VALUES (?, ?, ?, ?)
		ON CONFLICT(domain, key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		s.domain, key, string(raw), time.Now().UTC().Format(time.RFC3339),
	)
	return err
}

func (s *SQLiteStore) Delete(key string) error {
	_, err := s.db.Exec("DELETE FROM settings WHERE domain = ? AND key = ?", s.domain, key)
	return err
}

func (s *SQLiteStore) All() (map[string]any, error) {
	rows, err := s.db.Query("SELECT key, value FROM settings WHERE domain = ?", s.domain)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := make(map[string]any)
	for rows.Next() {
		var k, raw string
		if err := rows.Scan(&k, &raw); err != nil {
			return nil, err
		}
		var value any
		if err := json.Unmarshal([]byte(raw), &value); err != nil {
			return nil, fmt.Errorf("decoding value for key %q: %w", k, err)
		}
		result[k] = value
	}
	return result, rows.Err()
}
