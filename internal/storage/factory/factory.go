// Package factory builds the configured storage backend.
package factory

import (
	"fmt"
	"path/filepath"
	"strings"

	apperrors "github.com/nonxedy/nonscenes/internal/platform/errors"
	"github.com/nonxedy/nonscenes/internal/storage"
	"github.com/nonxedy/nonscenes/internal/storage/bbolt"
	"github.com/nonxedy/nonscenes/internal/storage/legacy"
	"github.com/nonxedy/nonscenes/internal/storage/mongo"
	"github.com/nonxedy/nonscenes/internal/storage/mysql"
	"github.com/nonxedy/nonscenes/internal/storage/postgres"
	"github.com/nonxedy/nonscenes/internal/storage/redis"
	"github.com/nonxedy/nonscenes/internal/storage/sqlite"
)

// Type names a backend.
type Type string

const (
	TypeSQLite   Type = "sqlite"
	TypeMySQL    Type = "mysql"
	TypePostgres Type = "postgres"
	TypeMongo    Type = "mongodb"
	TypeRedis    Type = "redis"
	TypeBbolt    Type = "bbolt"
	// TypeLegacy is the flat YAML directory. It is only selectable as a
	// migration source or target, never as the primary store.
	TypeLegacy Type = "legacy"
)

// Types lists the primary backends.
var Types = []Type{TypeSQLite, TypeMySQL, TypePostgres, TypeMongo, TypeRedis, TypeBbolt}

// ParseType normalizes a backend name, accepting common aliases.
func ParseType(raw string) (Type, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "", "sqlite", "sqlite3":
		return TypeSQLite, nil
	case "mysql", "mariadb":
		return TypeMySQL, nil
	case "postgres", "postgresql", "pg":
		return TypePostgres, nil
	case "mongodb", "mongo":
		return TypeMongo, nil
	case "redis":
		return TypeRedis, nil
	case "bbolt", "bolt", "boltdb":
		return TypeBbolt, nil
	case "legacy", "yaml", "files":
		return TypeLegacy, nil
	default:
		return "", apperrors.WithMetadata(apperrors.CodeInvalidArgument,
			fmt.Sprintf("unknown storage type %q", raw),
			map[string]string{"type": raw})
	}
}

// MySQLConfig is read from NONSCENES_MYSQL_*.
type MySQLConfig struct {
	DSN      string `env:"DSN"`
	Host     string `env:"HOST" envDefault:"localhost"`
	Port     int    `env:"PORT" envDefault:"3306"`
	Database string `env:"DATABASE" envDefault:"nonscenes"`
	User     string `env:"USER" envDefault:"root"`
	Password string `env:"PASSWORD"`
}

// PostgresConfig is read from NONSCENES_POSTGRES_*.
type PostgresConfig struct {
	DSN      string `env:"DSN"`
	Host     string `env:"HOST" envDefault:"localhost"`
	Port     int    `env:"PORT" envDefault:"5432"`
	Database string `env:"DATABASE" envDefault:"nonscenes"`
	User     string `env:"USER" envDefault:"postgres"`
	Password string `env:"PASSWORD"`
	SSLMode  string `env:"SSLMODE" envDefault:"disable"`
}

// MongoConfig is read from NONSCENES_MONGO_*.
type MongoConfig struct {
	URI        string `env:"URI" envDefault:"mongodb://localhost:27017"`
	Database   string `env:"DATABASE" envDefault:"nonscenes"`
	Collection string `env:"COLLECTION" envDefault:"cutscenes"`
}

// RedisConfig is read from NONSCENES_REDIS_*.
type RedisConfig struct {
	URL      string `env:"URL"`
	Addr     string `env:"ADDR" envDefault:"localhost:6379"`
	Username string `env:"USERNAME"`
	Password string `env:"PASSWORD"`
	DB       int    `env:"DB" envDefault:"0"`
}

// Config selects and configures the storage backend.
type Config struct {
	Type      string `env:"NONSCENES_STORAGE_TYPE" envDefault:"sqlite"`
	DataDir   string `env:"NONSCENES_DATA_DIR" envDefault:"data"`
	LegacyDir string `env:"NONSCENES_LEGACY_DIR"`
	KeyPrefix string `env:"NONSCENES_KEY_PREFIX" envDefault:"nonscenes:"`

	SQLitePath string `env:"NONSCENES_SQLITE_PATH"`
	BboltPath  string `env:"NONSCENES_BBOLT_PATH"`

	MySQL    MySQLConfig    `envPrefix:"NONSCENES_MYSQL_"`
	Postgres PostgresConfig `envPrefix:"NONSCENES_POSTGRES_"`
	Mongo    MongoConfig    `envPrefix:"NONSCENES_MONGO_"`
	Redis    RedisConfig    `envPrefix:"NONSCENES_REDIS_"`
}

// LegacyPath resolves the legacy YAML directory.
func (c Config) LegacyPath() string {
	if strings.TrimSpace(c.LegacyDir) != "" {
		return c.LegacyDir
	}
	return filepath.Join(c.dataDir(), "cutscenes")
}

func (c Config) dataDir() string {
	if strings.TrimSpace(c.DataDir) == "" {
		return "data"
	}
	return c.DataDir
}

func (c Config) sqlitePath() string {
	if strings.TrimSpace(c.SQLitePath) != "" {
		return c.SQLitePath
	}
	return filepath.Join(c.dataDir(), "cutscenes.db")
}

func (c Config) bboltPath() string {
	if strings.TrimSpace(c.BboltPath) != "" {
		return c.BboltPath
	}
	return filepath.Join(c.dataDir(), "cutscenes.bolt")
}

// Open builds the primary store named by cfg.Type. The store is traced and
// still needs Initialize.
func Open(cfg Config, opts storage.Options) (storage.Store, Type, error) {
	t, err := ParseType(cfg.Type)
	if err != nil {
		return nil, "", err
	}
	if t == TypeLegacy {
		return nil, "", apperrors.New(apperrors.CodeInvalidArgument, "legacy files cannot be the primary store")
	}
	s, err := OpenType(cfg, t, opts)
	if err != nil {
		return nil, "", err
	}
	return s, t, nil
}

// OpenType builds the store for t, legacy included.
func OpenType(cfg Config, t Type, opts storage.Options) (storage.Store, error) {
	var s storage.Store
	switch t {
	case TypeSQLite:
		s = sqlite.Open(cfg.sqlitePath(), opts)
	case TypeMySQL:
		s = mysql.Open(mysql.Config(cfg.MySQL), opts)
	case TypePostgres:
		s = postgres.Open(postgres.Config(cfg.Postgres), opts)
	case TypeMongo:
		s = mongo.Open(mongo.Config(cfg.Mongo), opts)
	case TypeRedis:
		s = redis.Open(redis.Config{
			URL:      cfg.Redis.URL,
			Addr:     cfg.Redis.Addr,
			Username: cfg.Redis.Username,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			Prefix:   cfg.KeyPrefix,
		}, opts)
	case TypeBbolt:
		s = bbolt.Open(bbolt.Config{Path: cfg.bboltPath(), Prefix: cfg.KeyPrefix}, opts)
	case TypeLegacy:
		s = legacy.Open(cfg.LegacyPath(), opts)
	default:
		return nil, apperrors.New(apperrors.CodeInvalidArgument, fmt.Sprintf("unsupported storage type %q", t))
	}
	return storage.Traced(s, string(t)), nil
}

// Legacy builds the legacy YAML store used for import and fallback.
func Legacy(cfg Config, opts storage.Options) *legacy.Store {
	return legacy.Open(cfg.LegacyPath(), opts)
}
