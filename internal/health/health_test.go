package health_test

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/shaw77735-web/JuteVisionAudit/internal/health"
)

func startServer(t *testing.T) (*health.Server, string) {
	t.Helper()

	lis, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}

	srv := health.NewServer(nil)
	serveErr := make(chan error, 1)
	go func() { serveErr <- srv.Serve(lis) }()

	t.Cleanup(func() {
		srv.Shutdown()
		select {
		case <-serveErr:
		case <-time.After(2 * time.Second):
		}
	})
	return srv, lis.Addr().String()
}

func TestWaitForHealth_Serving(t *testing.T) {
	_, addr := startServer(t)

	conn, err := health.Dial(addr)
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if err := health.WaitForHealth(ctx, conn, health.ServiceName, nil); err != nil {
		t.Fatalf("wait for health: %v", err)
	}
}

func TestWaitForHealth_TransitionsToServing(t *testing.T) {
	srv, addr := startServer(t)
	srv.SetServing(false)

	conn, err := health.Dial(addr)
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()

	go func() {
		time.Sleep(200 * time.Millisecond)
		srv.SetServing(true)
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	if err := health.WaitForHealth(ctx, conn, health.ServiceName, nil); err != nil {
		t.Fatalf("wait for health after transition: %v", err)
	}
}

func TestWaitForHealth_RespectsContext(t *testing.T) {
	srv, addr := startServer(t)
	srv.SetServing(false)

	conn, err := health.Dial(addr)
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()

	if err := health.WaitForHealth(ctx, conn, health.ServiceName, nil); err == nil {
		t.Fatal("expected context error, got nil")
	}
}
