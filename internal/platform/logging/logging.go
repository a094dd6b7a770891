// Package logging builds the process logger.
package logging

import (
	"fmt"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Config selects level and destination. An empty File logs to stderr.
type Config struct {
	Level      string `env:"NONSCENES_LOG_LEVEL" envDefault:"info"`
	File       string `env:"NONSCENES_LOG_FILE"`
	MaxSizeMB  int    `env:"NONSCENES_LOG_MAX_SIZE_MB" envDefault:"50"`
	MaxBackups int    `env:"NONSCENES_LOG_MAX_BACKUPS" envDefault:"3"`
}

// New builds a production zap logger. With File set, output goes to a
// rotating file instead of stderr.
func New(cfg Config) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(strings.TrimSpace(cfg.Level))
	if err != nil {
		return nil, fmt.Errorf("log level %q: %w", cfg.Level, err)
	}

	if cfg.File == "" {
		zc := zap.NewProductionConfig()
		zc.Level = zap.NewAtomicLevelAt(level)
		logger, err := zc.Build()
		if err != nil {
			return nil, fmt.Errorf("build logger: %w", err)
		}
		return logger, nil
	}

	sink := &lumberjack.Logger{
		Filename:   cfg.File,
		MaxSize:    max(cfg.MaxSizeMB, 1), // megabytes
		MaxBackups: max(cfg.MaxBackups, 0),
	}
	core := zapcore.NewCore(
		zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig()),
		zapcore.AddSync(sink),
		level,
	)
	return zap.New(core, zap.AddCaller(), zap.AddStacktrace(zapcore.ErrorLevel)), nil
}
