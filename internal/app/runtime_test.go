package app

import (
	"context"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/nonxedy/nonscenes/internal/cutscene"
	platformgrpc "github.com/nonxedy/nonscenes/internal/platform/grpc"
	"github.com/nonxedy/nonscenes/internal/storage"
	"github.com/nonxedy/nonscenes/internal/storage/factory"
	"github.com/nonxedy/nonscenes/internal/storage/legacy"
	"github.com/nonxedy/nonscenes/internal/storage/sqlite"
	"go.uber.org/zap/zaptest"
)

func testConfig(t *testing.T, dir string) RuntimeConfig {
	t.Helper()
	return RuntimeConfig{
		TicksPerSecond: 20,
		Storage: factory.Config{
			Type:    "sqlite",
			DataDir: dir,
		},
		Logger: zaptest.NewLogger(t),
	}
}

func seedLegacy(t *testing.T, dir string, cs ...cutscene.Cutscene) {
	t.Helper()
	s := legacy.Open(dir, storage.Options{})
	ctx := context.Background()
	if err := s.Initialize(ctx); err != nil {
		t.Fatalf("init legacy: %v", err)
	}
	for _, c := range cs {
		if err := s.Save(ctx, c); err != nil {
			t.Fatalf("seed legacy %s: %v", c.Name(), err)
		}
	}
}

func mustCutscene(t *testing.T, name string, n int) cutscene.Cutscene {
	t.Helper()
	frames := make([]cutscene.Pose, n)
	for i := range frames {
		frames[i] = cutscene.Pose{World: defaultWorld, X: float64(i), Y: 64}
	}
	c, err := cutscene.New(name, frames)
	if err != nil {
		t.Fatalf("new cutscene: %v", err)
	}
	return c
}

func serve(t *testing.T, rt *Runtime) (string, context.CancelFunc) {
	t.Helper()
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- rt.Serve(ctx, lis)
	}()
	stop := func() {
		cancel()
		if err := <-done; err != nil {
			t.Errorf("serve: %v", err)
		}
	}
	return lis.Addr().String(), stop
}

func TestStartMigratesLegacyAndServesHealth(t *testing.T) {
	dir := t.TempDir()
	seedLegacy(t, filepath.Join(dir, "cutscenes"), mustCutscene(t, "Intro", 3))

	rt, err := Start(context.Background(), testConfig(t, dir))
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if !rt.Storage.Ready {
		t.Fatal("expected primary store ready")
	}
	if rt.StorageType != factory.TypeSQLite {
		t.Fatalf("storage type = %s, want %s", rt.StorageType, factory.TypeSQLite)
	}
	if rt.Storage.Migrated != 1 {
		t.Fatalf("migrated = %d, want 1", rt.Storage.Migrated)
	}
	if !rt.Registry.Contains("intro") {
		t.Fatal("expected Intro in registry")
	}

	addr, stop := serve(t, rt)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := platformgrpc.WaitForHealth(ctx, addr, StorageHealthService, t.Logf); err != nil {
		t.Fatalf("wait for storage health: %v", err)
	}
	stop()

	rt.Registry.Put(mustCutscene(t, "Outro", 2))
	if err := rt.Close(context.Background()); err != nil {
		t.Fatalf("close: %v", err)
	}

	check := sqlite.Open(filepath.Join(dir, "cutscenes.db"), storage.Options{})
	if err := check.Initialize(context.Background()); err != nil {
		t.Fatalf("reopen sqlite: %v", err)
	}
	defer check.Shutdown(context.Background())
	all, err := check.LoadAll(context.Background())
	if err != nil {
		t.Fatalf("load all: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("stored cutscenes = %d, want 2", len(all))
	}
}

func TestEmbedderDrivesSessionsThroughHost(t *testing.T) {
	dir := t.TempDir()
	rt, err := Start(context.Background(), testConfig(t, dir))
	if err != nil {
		t.Fatalf("start: %v", err)
	}

	actor := uuid.New()
	if err := rt.Host.Join(actor, cutscene.Pose{World: defaultWorld, Y: 64}); err != nil {
		t.Fatalf("join: %v", err)
	}
	if err := rt.Coordinator.StartRecording(actor, "Tour", 3); err != nil {
		t.Fatalf("start recording: %v", err)
	}
	for i := 1; rt.Coordinator.IsRecording(actor) && i < 500; i++ {
		if err := rt.Host.Move(actor, cutscene.Pose{World: defaultWorld, X: float64(i), Y: 64}); err != nil {
			t.Fatalf("move: %v", err)
		}
		rt.Loop.Step()
	}
	rt.Loop.Wait()
	if !rt.Registry.Contains("tour") {
		t.Fatal("expected recorded Tour in registry")
	}

	if err := rt.Coordinator.PlayCutscene(actor, "Tour"); err != nil {
		t.Fatalf("play: %v", err)
	}
	if st, _ := rt.Host.State(actor); !st.Detached {
		t.Fatal("expected actor detached during playback")
	}
	rt.Host.Leave(actor)
	rt.Coordinator.HandleActorQuit(actor)
	if rt.Coordinator.IsWatching(actor) {
		t.Fatal("expected playback to end when the actor leaves")
	}

	if err := rt.Close(context.Background()); err != nil {
		t.Fatalf("close: %v", err)
	}
	check := sqlite.Open(filepath.Join(dir, "cutscenes.db"), storage.Options{})
	if err := check.Initialize(context.Background()); err != nil {
		t.Fatalf("reopen sqlite: %v", err)
	}
	defer check.Shutdown(context.Background())
	all, err := check.LoadAll(context.Background())
	if err != nil {
		t.Fatalf("load all: %v", err)
	}
	if len(all) != 1 || all[0].Len() != 3 {
		t.Fatalf("stored cutscenes = %v, want Tour with 3 frames", all)
	}
}

func TestStartFallsBackToLegacy(t *testing.T) {
	dir := t.TempDir()
	blocker := filepath.Join(dir, "blocker")
	if err := os.WriteFile(blocker, []byte("x"), 0o644); err != nil {
		t.Fatalf("write blocker: %v", err)
	}
	seedLegacy(t, filepath.Join(dir, "cutscenes"), mustCutscene(t, "Intro", 2))

	cfg := testConfig(t, dir)
	cfg.Storage.SQLitePath = filepath.Join(blocker, "db", "cutscenes.db")
	rt, err := Start(context.Background(), cfg)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	t.Cleanup(func() { _ = rt.Close(context.Background()) })

	if rt.Storage.Ready {
		t.Fatal("expected fallback to legacy files")
	}
	if !rt.Registry.Contains("Intro") {
		t.Fatal("expected legacy cutscene in registry")
	}

	addr, stop := serve(t, rt)
	defer stop()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := platformgrpc.WaitForHealth(ctx, addr, "", t.Logf); err != nil {
		t.Fatalf("wait for overall health: %v", err)
	}
	status, err := platformgrpc.Check(ctx, addr, StorageHealthService, time.Second)
	if err != nil {
		t.Fatalf("check storage: %v", err)
	}
	if status != platformgrpc.NotServing {
		t.Fatalf("storage status = %s, want %s", status, platformgrpc.NotServing)
	}
}

func TestStartRejectsUnknownStorageType(t *testing.T) {
	cfg := testConfig(t, t.TempDir())
	cfg.Storage.Type = "cassandra"
	if _, err := Start(context.Background(), cfg); err == nil {
		t.Fatal("expected error for unknown storage type")
	}
}

func TestRunStopsWithContext(t *testing.T) {
	cfg := testConfig(t, t.TempDir())
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	cfg.Port = lis.Addr().(*net.TCPAddr).Port
	lis.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()
	if err := Run(ctx, cfg); err != nil {
		t.Fatalf("run: %v", err)
	}
}
