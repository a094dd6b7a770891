package grpc

import (
	"context"
	"net"
	"testing"
	"time"
)

func startHealthServer(t *testing.T) (*HealthServer, string) {
	t.Helper()

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	server := NewHealthServer()
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = server.Serve(listener)
	}()
	t.Cleanup(func() {
		server.Stop()
		<-done
	})
	return server, listener.Addr().String()
}

func TestCheckReportsServiceStatus(t *testing.T) {
	server, addr := startHealthServer(t)
	server.SetStatus("nonscenes.storage", NotServing)

	ctx := context.Background()
	got, err := Check(ctx, addr, "", time.Second)
	if err != nil {
		t.Fatalf("check overall: %v", err)
	}
	if got != Serving {
		t.Fatalf("overall status = %s, want %s", got, Serving)
	}

	got, err = Check(ctx, addr, "nonscenes.storage", time.Second)
	if err != nil {
		t.Fatalf("check storage: %v", err)
	}
	if got != NotServing {
		t.Fatalf("storage status = %s, want %s", got, NotServing)
	}
}

func TestCheckUnknownService(t *testing.T) {
	_, addr := startHealthServer(t)

	if _, err := Check(context.Background(), addr, "missing", time.Second); err == nil {
		t.Fatal("expected error for unregistered service")
	}
}

func TestWaitForHealthTransitionsToServing(t *testing.T) {
	server, addr := startHealthServer(t)
	server.SetStatus("nonscenes.storage", NotServing)

	go func() {
		time.Sleep(200 * time.Millisecond)
		server.SetStatus("nonscenes.storage", Serving)
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := WaitForHealth(ctx, addr, "nonscenes.storage", t.Logf); err != nil {
		t.Fatalf("wait for health after transition: %v", err)
	}
}

func TestWaitForHealthRespectsContext(t *testing.T) {
	server, addr := startHealthServer(t)
	server.SetStatus("nonscenes.storage", NotServing)

	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()
	if err := WaitForHealth(ctx, addr, "nonscenes.storage", nil); err == nil {
		t.Fatal("expected context error, got nil")
	}
}
