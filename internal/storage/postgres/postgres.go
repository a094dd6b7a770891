// Package postgres is the PostgreSQL cutscene backend, driven through the pgx
// database/sql adapter.
package postgres

import (
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	"github.com/nonxedy/nonscenes/internal/storage"
	"github.com/nonxedy/nonscenes/internal/storage/postgres/migrations"
	"github.com/nonxedy/nonscenes/internal/storage/sqlstore"
)

const defaultPort = 5432

// Config selects a PostgreSQL server. DSN, when set, wins over the other
// fields.
type Config struct {
	DSN      string
	Host     string
	Port     int
	Database string
	User     string
	Password string
	SSLMode  string
}

// Open returns an uninitialized store for cfg.
func Open(cfg Config, opts storage.Options) *sqlstore.Store {
	return sqlstore.New(Dialect(cfg), opts)
}

// Dialect describes PostgreSQL for sqlstore.
func Dialect(cfg Config) sqlstore.Dialect {
	return sqlstore.Dialect{
		Name:   "postgres",
		Driver: "pgx",
		DSN: func() (string, error) {
			return DSN(cfg)
		},
		Migrations: migrations.FS,
		Configure: func(db *sqlx.DB) {
			db.SetMaxOpenConns(10)
			db.SetConnMaxIdleTime(5 * time.Minute)
		},
	}
}

// DSN builds a connection URL and checks that pgx can parse it.
func DSN(cfg Config) (string, error) {
	dsn := strings.TrimSpace(cfg.DSN)
	if dsn == "" {
		if strings.TrimSpace(cfg.Host) == "" {
			return "", fmt.Errorf("postgres host is required")
		}
		if strings.TrimSpace(cfg.Database) == "" {
			return "", fmt.Errorf("postgres database is required")
		}
		port := cfg.Port
		if port <= 0 {
			port = defaultPort
		}
		sslMode := strings.TrimSpace(cfg.SSLMode)
		if sslMode == "" {
			sslMode = "disable"
		}
		u := url.URL{
			Scheme:   "postgres",
			Host:     net.JoinHostPort(strings.TrimSpace(cfg.Host), strconv.Itoa(port)),
			Path:     "/" + strings.TrimSpace(cfg.Database),
			RawQuery: url.Values{"sslmode": {sslMode}}.Encode(),
		}
		if cfg.User != "" {
			u.User = url.UserPassword(cfg.User, cfg.Password)
		}
		dsn = u.String()
	}
	if _, err := pgx.ParseConfig(dsn); err != nil {
		return "", fmt.Errorf("parse postgres dsn: %w", err)
	}
	return dsn, nil
}
