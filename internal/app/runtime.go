// Package app wires storage, the tick loop and the session coordinator into
// a running cutscene service.
package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"

	"github.com/nonxedy/nonscenes/internal/host/headless"
	platformgrpc "github.com/nonxedy/nonscenes/internal/platform/grpc"
	"github.com/nonxedy/nonscenes/internal/platform/timeouts"
	"github.com/nonxedy/nonscenes/internal/registry"
	"github.com/nonxedy/nonscenes/internal/scheduler"
	"github.com/nonxedy/nonscenes/internal/session"
	"github.com/nonxedy/nonscenes/internal/storage"
	"github.com/nonxedy/nonscenes/internal/storage/bootstrap"
	"github.com/nonxedy/nonscenes/internal/storage/factory"
	"go.uber.org/zap"
)

// RuntimeConfig controls service startup and loop behavior.
type RuntimeConfig struct {
	Port           int
	TicksPerSecond int
	// Worlds known to the headless host. Defaults to "world".
	Worlds  []string
	Storage factory.Config
	Session session.Config
	Logger  *zap.Logger
}

const (
	defaultPort  = 8095
	defaultWorld = "world"

	// StorageHealthService reports SERVING while the primary store is in use
	// and NOT_SERVING in legacy fallback.
	StorageHealthService = "nonscenes.storage"
)

// Runtime is a started service. Close releases it.
//
// Embedders drive sessions by joining actors on Host and calling
// Coordinator; Serve only ticks the loop and reports health.
type Runtime struct {
	Host        *headless.Host
	Registry    *registry.Registry
	Loop        *scheduler.Loop
	Coordinator *session.Coordinator
	Storage     bootstrap.Result
	StorageType factory.Type

	primary storage.Store
	legacy  storage.Store
	log     *zap.Logger
}

// Start opens storage, loads every cutscene and builds the coordinator. It
// does not start the tick loop.
func Start(ctx context.Context, cfg RuntimeConfig) (*Runtime, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	worlds := cfg.Worlds
	if len(worlds) == 0 {
		worlds = []string{defaultWorld}
	}

	host := headless.New(logger.Named("host"), worlds...)
	opts := storage.Options{Resolver: host, Logger: logger.Named("storage")}
	primary, storageType, err := factory.Open(cfg.Storage, opts)
	if err != nil {
		return nil, fmt.Errorf("open %s store: %w", strings.TrimSpace(cfg.Storage.Type), err)
	}
	legacy := storage.Traced(factory.Legacy(cfg.Storage, opts), string(factory.TypeLegacy))

	reg := registry.New()
	initCtx, cancel := context.WithTimeout(ctx, timeouts.StorageInit)
	defer cancel()
	res, err := bootstrap.Run(initCtx, primary, legacy, reg, logger.Named("bootstrap"))
	if err != nil {
		shutdownStores(logger, primary, legacy)
		return nil, fmt.Errorf("bootstrap storage: %w", err)
	}

	loop := scheduler.NewLoop(
		scheduler.WithTicksPerSecond(cfg.TicksPerSecond),
		scheduler.WithLogger(logger.Named("scheduler")),
	)
	coord, err := session.New(session.Deps{
		Host:      host,
		Notifier:  host,
		Registry:  reg,
		Scheduler: loop,
		Store:     res.Store,
		Legacy:    legacy,
		Logger:    logger.Named("session"),
	}, cfg.Session)
	if err != nil {
		shutdownStores(logger, primary, legacy)
		return nil, fmt.Errorf("build coordinator: %w", err)
	}

	logger.Info("cutscenes loaded",
		zap.String("storage", string(storageType)),
		zap.Bool("storage_ready", res.Ready),
		zap.Int("loaded", res.Loaded),
		zap.Int("imported", res.Imported),
		zap.Int("migrated", res.Migrated),
		zap.Int("total", reg.Len()))

	return &Runtime{
		Host:        host,
		Registry:    reg,
		Loop:        loop,
		Coordinator: coord,
		Storage:     res,
		StorageType: storageType,
		primary:     primary,
		legacy:      legacy,
		log:         logger,
	}, nil
}

// Serve reports health on lis and runs the tick loop until ctx ends.
func (r *Runtime) Serve(ctx context.Context, lis net.Listener) error {
	if ctx == nil {
		ctx = context.Background()
	}
	server := platformgrpc.NewHealthServer()
	status := platformgrpc.NotServing
	if r.Storage.Ready {
		status = platformgrpc.Serving
	}
	server.SetStatus(StorageHealthService, status)

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- server.Serve(lis)
	}()
	defer func() {
		server.Stop()
		<-serveErr
	}()

	r.log.Info("nonscenes listening", zap.Stringer("addr", lis.Addr()))
	return r.Loop.Run(ctx)
}

// Close stops every session, flushes the registry and shuts storage down.
func (r *Runtime) Close(ctx context.Context) error {
	cleanupErr := r.Coordinator.Cleanup(ctx)
	if cleanupErr != nil {
		r.log.Error("cleanup", zap.Error(cleanupErr))
	}
	r.Loop.CancelAll()
	r.Loop.Wait()
	return errors.Join(cleanupErr, shutdownStores(r.log, r.primary, r.legacy))
}

func shutdownStores(logger *zap.Logger, stores ...storage.Store) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeouts.Shutdown)
	defer cancel()
	var errs []error
	for _, s := range stores {
		if s == nil {
			continue
		}
		if err := s.Shutdown(ctx); err != nil {
			logger.Warn("shutdown store", zap.Error(err))
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Run starts the service on cfg.Port and blocks until ctx ends.
func Run(ctx context.Context, cfg RuntimeConfig) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if cfg.Port <= 0 {
		cfg.Port = defaultPort
	}

	listener, err := net.Listen("tcp", fmt.Sprintf(":%d", cfg.Port))
	if err != nil {
		return fmt.Errorf("listen on port %d: %w", cfg.Port, err)
	}
	defer listener.Close()

	rt, err := Start(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		// Not derived from ctx, which is already done here. Saves are capped
		// one at a time inside the flush.
		if err := rt.Close(context.WithoutCancel(ctx)); err != nil {
			rt.log.Error("close runtime", zap.Error(err))
		}
	}()
	return rt.Serve(ctx, listener)
}
