package main

import (
	"context"
	"net"
	"net/http"
	"os"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"forefront/arena/internal/bridge"
	"forefront/arena/internal/config"
	"forefront/arena/internal/events"
	"forefront/arena/internal/logging"
	"forefront/arena/internal/stats"
)

func loadTestConfig(t *testing.T) *config.Config {
	t.Helper()
	t.Setenv("FOREFRONT_REPLAY_DIR", t.TempDir())
	t.Setenv("FOREFRONT_SEED", "7")
	t.Setenv("FOREFRONT_HEALTH_SECRET", "")
	cfg, err := config.Load()
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	return cfg
}

func listen(t *testing.T) net.Listener {
	t.Helper()
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	return listener
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestAppServesBridgeAndHealth(t *testing.T) {
	cfg := loadTestConfig(t)
	a, err := newApp(cfg, logging.NewTestLogger(), stats.NewMemoryStore())
	if err != nil {
		t.Fatalf("new app: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	//1.- Starting the app begins a seeded match.
	if err := a.start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	m := a.host.Current()
	if m == nil || m.Grid().Seed() != 7 {
		t.Fatalf("expected a seeded match, got %v", m)
	}

	bridgeListener, healthListener := listen(t), listen(t)
	served := make(chan error, 1)
	go func() { served <- a.serveOn(ctx, bridgeListener, healthListener) }()

	//2.- A presentation client receives the current snapshot first.
	url := bridge.ListenerURL(bridgeListener.Addr().String(), "/ws")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial bridge: %v", err)
	}
	defer conn.Close()
	var first bridge.Message
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	if err := conn.ReadJSON(&first); err != nil {
		t.Fatalf("read snapshot: %v", err)
	}
	if first.Type != bridge.MessageSnapshot || first.Snapshot == nil || first.Snapshot.Epoch != m.Epoch() {
		t.Fatalf("unexpected first message %+v", first)
	}

	resp, err := http.Get("http://" + bridgeListener.Addr().String() + "/readyz")
	if err != nil {
		t.Fatalf("readyz: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected ready, got %d", resp.StatusCode)
	}

	//3.- The gRPC health service reports the running match.
	client, err := grpc.NewClient(healthListener.Addr().String(), grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		t.Fatalf("health client: %v", err)
	}
	defer client.Close()
	checkCtx, checkCancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer checkCancel()
	check, err := healthpb.NewHealthClient(client).Check(checkCtx, &healthpb.HealthCheckRequest{Service: bridge.MatchService})
	if err != nil {
		t.Fatalf("health check: %v", err)
	}
	if check.GetStatus() != healthpb.HealthCheckResponse_SERVING {
		t.Fatalf("expected SERVING, got %s", check.GetStatus())
	}

	//4.- Cancelling stops the listeners and close drains the recorder.
	waitFor(t, "the replay bundle", func() bool {
		entries, err := os.ReadDir(cfg.ReplayDir)
		return err == nil && len(entries) == 1
	})
	cancel()
	select {
	case err := <-served:
		if err != nil {
			t.Fatalf("serve returned %v", err)
		}
	case <-time.After(shutdownTimeout + time.Second):
		t.Fatalf("serve did not return after cancel")
	}
	a.close()
	if bundles := a.recorder.Bundles(); len(bundles) != 1 {
		t.Fatalf("expected one replay bundle, got %v", bundles)
	}
}

func TestLifecycleRestartsAfterReturnToStart(t *testing.T) {
	cfg := loadTestConfig(t)
	cfg.ReplayDir = ""
	a, err := newApp(cfg, logging.NewTestLogger(), stats.NewMemoryStore())
	if err != nil {
		t.Fatalf("new app: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer func() {
		cancel()
		a.close()
	}()
	if err := a.start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	epoch := a.host.Epoch()

	//1.- A stale return signal from an older epoch is ignored.
	if _, err := a.stream.Publish(events.Event{Kind: events.KindReturnToStart, Epoch: epoch - 1}); err != nil {
		t.Fatalf("publish: %v", err)
	}
	//2.- The current epoch returning to start brings up a fresh match.
	if _, err := a.stream.Publish(events.Event{Kind: events.KindReturnToStart, Epoch: epoch}); err != nil {
		t.Fatalf("publish: %v", err)
	}
	waitFor(t, "a fresh match", func() bool {
		m := a.host.Current()
		return m != nil && m.Epoch() == epoch+1
	})
	time.Sleep(50 * time.Millisecond)
	if got := a.host.Epoch(); got != epoch+1 {
		t.Fatalf("expected exactly one restart, epoch %d", got)
	}
}

func TestNewAppRejectsInvalidRules(t *testing.T) {
	cfg := loadTestConfig(t)
	cfg.Match.TieBreak = "coin-toss"
	if _, err := newApp(cfg, logging.NewTestLogger(), stats.NewMemoryStore()); err == nil {
		t.Fatalf("expected an error for an unknown tie break")
	}
}
