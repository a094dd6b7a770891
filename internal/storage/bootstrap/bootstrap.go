// Package bootstrap brings the cutscene storage online at startup and fills
// the registry from it.
package bootstrap

import (
	"context"
	"sync/atomic"

	"github.com/nonxedy/nonscenes/internal/cutscene"
	"github.com/nonxedy/nonscenes/internal/registry"
	"github.com/nonxedy/nonscenes/internal/storage"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const scopeName = "github.com/nonxedy/nonscenes/internal/storage/bootstrap"

var tracer = otel.Tracer(scopeName)

const migrateConcurrency = 4

// Result describes the storage state after Run.
type Result struct {
	// Store is where assets are written from now on: the primary store when
	// it initialized, the legacy store otherwise.
	Store storage.Store
	// Ready reports whether the primary store initialized.
	Ready bool
	// Loaded counts assets read from the primary store.
	Loaded int
	// Imported counts legacy assets added to the registry.
	Imported int
	// Migrated counts imported assets written into the primary store.
	Migrated int
}

// Run initializes primary, falling back to the legacy store when it cannot be
// reached, loads every asset into reg and imports legacy files that are not
// already known. Imported assets are copied into the primary store when it is
// ready. Failures are logged; Run only returns an error when ctx ends.
func Run(ctx context.Context, primary, legacy storage.Store, reg *registry.Registry, logger *zap.Logger) (Result, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	ctx, span := tracer.Start(ctx, "storage.bootstrap")
	defer span.End()

	var res Result
	if primary != nil {
		if err := primary.Initialize(ctx); err != nil {
			if ctx.Err() != nil {
				return res, ctx.Err()
			}
			logger.Error("storage unavailable, falling back to legacy files", zap.Error(err))
			span.RecordError(err)
		} else {
			res.Ready = true
			res.Store = primary
		}
	}

	if legacy != nil {
		if err := legacy.Initialize(ctx); err != nil {
			logger.Warn("initialize legacy files", zap.Error(err))
		}
	}
	if !res.Ready {
		res.Store = legacy
	}

	if res.Ready {
		loaded, err := primary.LoadAll(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return res, ctx.Err()
			}
			logger.Error("load cutscenes", zap.Error(err))
			span.RecordError(err)
		}
		for _, c := range loaded {
			reg.Put(c)
		}
		res.Loaded = len(loaded)
		logger.Info("loaded cutscenes from storage", zap.Int("count", res.Loaded))
	}

	if legacy != nil {
		imported, err := importLegacy(ctx, legacy, reg, logger)
		if err != nil {
			if ctx.Err() != nil {
				return res, ctx.Err()
			}
			logger.Warn("read legacy files", zap.Error(err))
		}
		res.Imported = len(imported)
		if res.Ready && len(imported) > 0 {
			res.Migrated = migrate(ctx, primary, imported, logger)
		}
		if res.Imported > 0 {
			logger.Info("loaded cutscenes from legacy files", zap.Int("count", res.Imported))
		}
	}

	span.SetAttributes(
		attribute.Bool("storage.ready", res.Ready),
		attribute.Int("cutscene.loaded", res.Loaded),
		attribute.Int("cutscene.imported", res.Imported),
		attribute.Int("cutscene.migrated", res.Migrated),
	)
	if !res.Ready {
		span.SetStatus(codes.Error, "primary storage unavailable")
	}
	return res, ctx.Err()
}

func importLegacy(ctx context.Context, legacy storage.Store, reg *registry.Registry, logger *zap.Logger) ([]cutscene.Cutscene, error) {
	all, err := legacy.LoadAll(ctx)
	if err != nil {
		return nil, err
	}
	var imported []cutscene.Cutscene
	for _, c := range all {
		if !reg.PutIfAbsent(c) {
			logger.Debug("legacy cutscene already loaded", zap.String("name", c.Name()))
			continue
		}
		imported = append(imported, c)
	}
	return imported, nil
}

func migrate(ctx context.Context, primary storage.Store, cutscenes []cutscene.Cutscene, logger *zap.Logger) int {
	var migrated atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(migrateConcurrency)
	for _, c := range cutscenes {
		g.Go(func() error {
			if err := primary.Save(gctx, c); err != nil {
				logger.Warn("migrate cutscene", zap.String("name", c.Name()), zap.Error(err))
				return nil
			}
			migrated.Add(1)
			logger.Info("migrated cutscene from file", zap.String("name", c.Name()))
			return nil
		})
	}
	_ = g.Wait()
	return int(migrated.Load())
}
