package bridge

import (
	"context"
	"net"
	"testing"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"forefront/arena/internal/logging"
)

func TestHealthFollowsMatchLifecycle(t *testing.T) {
	f := newFixture(t)
	reporter := NewHealth(f.host, logging.NewTestLogger())
	if reporter.Status() != healthpb.HealthCheckResponse_NOT_SERVING {
		t.Fatalf("expected NOT_SERVING before any match, got %s", reporter.Status())
	}
	sub, err := f.stream.Subscribe(f.ctx, "health", 256)
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	go reporter.Run(f.ctx, sub)

	//1.- Starting a match flips the service to SERVING.
	f.start(t)
	waitStatus(t, reporter, healthpb.HealthCheckResponse_SERVING)

	//2.- Reset leaves no match, which Refresh reports as NOT_SERVING.
	f.host.Reset()
	if got := reporter.Refresh(); got != healthpb.HealthCheckResponse_NOT_SERVING {
		t.Fatalf("expected NOT_SERVING after reset, got %s", got)
	}
}

func TestHealthServesGRPCChecks(t *testing.T) {
	f := newFixture(t)
	reporter := NewHealth(f.host, logging.NewTestLogger())
	f.start(t)
	reporter.Refresh()

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	server := grpc.NewServer()
	reporter.Register(server)
	go server.Serve(listener)
	t.Cleanup(server.Stop)

	conn, err := grpc.NewClient(listener.Addr().String(), grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		t.Fatalf("client: %v", err)
	}
	t.Cleanup(func() { conn.Close() })

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	resp, err := healthpb.NewHealthClient(conn).Check(ctx, &healthpb.HealthCheckRequest{Service: MatchService})
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if resp.GetStatus() != healthpb.HealthCheckResponse_SERVING {
		t.Fatalf("expected SERVING, got %s", resp.GetStatus())
	}

	//1.- Shutdown reports NOT_SERVING to remote callers.
	reporter.Shutdown()
	resp, err = healthpb.NewHealthClient(conn).Check(ctx, &healthpb.HealthCheckRequest{})
	if err != nil {
		t.Fatalf("check after shutdown: %v", err)
	}
	if resp.GetStatus() != healthpb.HealthCheckResponse_NOT_SERVING {
		t.Fatalf("expected NOT_SERVING after shutdown, got %s", resp.GetStatus())
	}
}

func waitStatus(t *testing.T, reporter *Health, want healthpb.HealthCheckResponse_ServingStatus) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for reporter.Status() != want {
		if time.Now().After(deadline) {
			t.Fatalf("expected %s, have %s", want, reporter.Status())
		}
		time.Sleep(5 * time.Millisecond)
	}
}
