// Package nonscenes parses daemon flags and launches the cutscene runtime.
package nonscenes

import (
	"context"
	"flag"
	"fmt"

	"github.com/nonxedy/nonscenes/internal/app"
	entrypoint "github.com/nonxedy/nonscenes/internal/platform/cmd"
	"github.com/nonxedy/nonscenes/internal/platform/logging"
	"github.com/nonxedy/nonscenes/internal/session"
	"github.com/nonxedy/nonscenes/internal/storage/factory"
	"go.uber.org/zap"
)

// Config holds daemon command configuration.
type Config struct {
	Port           int      `env:"NONSCENES_PORT" envDefault:"8095"`
	TicksPerSecond int      `env:"NONSCENES_TICKS_PER_SECOND" envDefault:"20"`
	Worlds         []string `env:"NONSCENES_WORLDS" envDefault:"world,world_nether,world_the_end" envSeparator:","`

	Storage factory.Config
	Session session.Config
	Log     logging.Config
}

// ParseConfig parses environment and flags into a Config.
func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	var cfg Config
	if err := entrypoint.ParseConfig(&cfg); err != nil {
		return Config{}, err
	}
	fs.IntVar(&cfg.Port, "port", cfg.Port, "The health gRPC server port")
	fs.IntVar(&cfg.TicksPerSecond, "tps", cfg.TicksPerSecond, "Scheduler ticks per second")
	fs.StringVar(&cfg.Storage.Type, "storage", cfg.Storage.Type, "Storage backend (sqlite, mysql, postgres, mongodb, redis, bbolt)")
	fs.StringVar(&cfg.Storage.DataDir, "data-dir", cfg.Storage.DataDir, "Directory for embedded databases and legacy files")
	fs.StringVar(&cfg.Log.Level, "log-level", cfg.Log.Level, "Log level")
	fs.StringVar(&cfg.Log.File, "log-file", cfg.Log.File, "Rotated log file; empty logs to stderr")
	if err := entrypoint.ParseArgs(fs, args); err != nil {
		return Config{}, err
	}
	if _, err := factory.ParseType(cfg.Storage.Type); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Run starts the cutscene runtime with a headless host. It serves health,
// ticks the scheduler and flushes cutscenes on shutdown; sessions run only
// when an embedding adapter joins actors.
func Run(ctx context.Context, cfg Config) error {
	logger, err := logging.New(cfg.Log)
	if err != nil {
		return fmt.Errorf("build logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()
	logger = logger.With(zap.String("service", entrypoint.ServiceNonscenes))

	return entrypoint.RunWithTelemetryAndOptions(ctx, entrypoint.ServiceNonscenes, entrypoint.RunOptions{Logger: logger},
		func(ctx context.Context) error {
			return app.Run(ctx, app.RuntimeConfig{
				Port:           cfg.Port,
				TicksPerSecond: cfg.TicksPerSecond,
				Worlds:         cfg.Worlds,
				Storage:        cfg.Storage,
				Session:        cfg.Session,
				Logger:         logger,
			})
		})
}
