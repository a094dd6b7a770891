// Package mysql is the MySQL/MariaDB cutscene backend.
package mysql

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/jmoiron/sqlx"
	"github.com/nonxedy/nonscenes/internal/storage"
	"github.com/nonxedy/nonscenes/internal/storage/mysql/migrations"
	"github.com/nonxedy/nonscenes/internal/storage/sqlstore"
)

const defaultPort = 3306

// Config selects a MySQL server. DSN, when set, wins over the other fields.
type Config struct {
	DSN      string
	Host     string
	Port     int
	Database string
	User     string
	Password string
}

// Open returns an uninitialized store for cfg.
func Open(cfg Config, opts storage.Options) *sqlstore.Store {
	return sqlstore.New(Dialect(cfg), opts)
}

// Dialect describes MySQL for sqlstore.
func Dialect(cfg Config) sqlstore.Dialect {
	return sqlstore.Dialect{
		Name:   "mysql",
		Driver: "mysql",
		DSN: func() (string, error) {
			return DSN(cfg)
		},
		Migrations: migrations.FS,
		Configure: func(db *sqlx.DB) {
			db.SetMaxOpenConns(10)
			db.SetConnMaxLifetime(30 * time.Minute)
		},
	}
}

// DSN builds the driver connection string.
func DSN(cfg Config) (string, error) {
	if dsn := strings.TrimSpace(cfg.DSN); dsn != "" {
		parsed, err := mysql.ParseDSN(dsn)
		if err != nil {
			return "", fmt.Errorf("parse mysql dsn: %w", err)
		}
		parsed.ParseTime = true
		return parsed.FormatDSN(), nil
	}
	if strings.TrimSpace(cfg.Host) == "" {
		return "", fmt.Errorf("mysql host is required")
	}
	if strings.TrimSpace(cfg.Database) == "" {
		return "", fmt.Errorf("mysql database is required")
	}
	port := cfg.Port
	if port <= 0 {
		port = defaultPort
	}

	c := mysql.NewConfig()
	c.Net = "tcp"
	c.Addr = fmt.Sprintf("%s:%d", strings.TrimSpace(cfg.Host), port)
	c.DBName = strings.TrimSpace(cfg.Database)
	c.User = cfg.User
	c.Passwd = cfg.Password
	c.ParseTime = true
	return c.FormatDSN(), nil
}
