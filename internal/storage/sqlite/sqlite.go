// Package sqlite is the embedded relational cutscene backend.
package sqlite

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/jmoiron/sqlx"
	"github.com/nonxedy/nonscenes/internal/storage"
	"github.com/nonxedy/nonscenes/internal/storage/sqlite/migrations"
	"github.com/nonxedy/nonscenes/internal/storage/sqlstore"
	_ "modernc.org/sqlite"
)

// Memory opens a private in-memory database.
const Memory = ":memory:"

// Open returns an uninitialized store for the database file at path.
func Open(path string, opts storage.Options) *sqlstore.Store {
	return sqlstore.New(Dialect(path), opts)
}

// Dialect describes SQLite for sqlstore.
func Dialect(path string) sqlstore.Dialect {
	return sqlstore.Dialect{
		Name:   "sqlite",
		Driver: "sqlite",
		DSN: func() (string, error) {
			return DSN(path)
		},
		Migrations: migrations.FS,
		Configure: func(db *sqlx.DB) {
			// One writer at a time; also keeps :memory: on a single database.
			db.SetMaxOpenConns(1)
		},
	}
}

// DSN builds the connection string for path, creating its directory.
func DSN(path string) (string, error) {
	if strings.TrimSpace(path) == "" {
		return "", fmt.Errorf("storage path is required")
	}
	v := url.Values{}
	v.Add("_pragma", "foreign_keys(1)")
	v.Add("_pragma", "busy_timeout(5000)")
	if path == Memory {
		return fmt.Sprintf("%s?%s", path, v.Encode()), nil
	}

	cleanPath := filepath.Clean(path)
	if dir := filepath.Dir(cleanPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return "", fmt.Errorf("create storage dir: %w", err)
		}
	}
	v.Add("_pragma", "journal_mode(WAL)")
	v.Add("_pragma", "synchronous(NORMAL)")
	return fmt.Sprintf("%s?%s", cleanPath, v.Encode()), nil
}
