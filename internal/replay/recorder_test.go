package replay

import (
	"context"
	"testing"
	"time"

	"forefront/arena/internal/ballistics"
	"forefront/arena/internal/events"
	"forefront/arena/internal/geom"
	"forefront/arena/internal/logging"
	"forefront/arena/internal/match"
)

type fixedTracker map[uint64]geom.Vec3

func (f fixedTracker) Projectiles() map[uint64]geom.Vec3 { return f }

func testRules() match.Rules {
	rules := match.DefaultRules()
	rules.TurnSeconds = 100
	rules.Tick = 10 * time.Millisecond
	rules.HandoffDelay = 10 * time.Millisecond
	rules.MatchOverNotice = 10 * time.Millisecond
	return rules
}

func TestRecorderWritesOneBundlePerMatch(t *testing.T) {
	stream := events.NewStream(events.Config{})
	host, err := match.NewHost(
		match.WithRules(testRules()),
		match.WithEvents(stream),
		match.WithSeed(3),
		match.WithLogger(logging.NewTestLogger()),
	)
	if err != nil {
		t.Fatalf("host: %v", err)
	}
	defer host.Close()

	root := t.TempDir()
	recorder, err := NewRecorder(root, host,
		WithSampleInterval(5*time.Millisecond),
		WithRecorderLogger(logging.NewTestLogger()),
	)
	if err != nil {
		t.Fatalf("recorder: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sub, err := stream.Subscribe(ctx, "replay", 64)
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	finished := make(chan struct{})
	go func() {
		recorder.Run(ctx, sub)
		close(finished)
	}()

	//1.- Two matches in a row rotate the bundle on the epoch change.
	first, err := host.StartMatch(ctx, 25, 7.5, 0.25)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	waitForBundles(t, recorder, 0)
	time.Sleep(50 * time.Millisecond)
	if _, err := host.StartMatch(ctx, 25, 7.5, 0.25); err != nil {
		t.Fatalf("restart: %v", err)
	}
	waitForBundles(t, recorder, 1)
	time.Sleep(50 * time.Millisecond)
	cancel()
	select {
	case <-finished:
	case <-time.After(2 * time.Second):
		t.Fatalf("recorder did not stop")
	}

	bundles := recorder.Bundles()
	if len(bundles) != 2 {
		t.Fatalf("expected two bundles, got %v", bundles)
	}
	loader, err := Load(bundles[0])
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	header := loader.Header()
	if header.Epoch != first.Epoch() || header.Seed != 3 || header.Level.Columns != first.Grid().Columns() {
		t.Fatalf("unexpected header %+v", header)
	}
	var sawStart, sawFrame bool
	for _, entry := range loader.Entries() {
		if entry.Event != nil {
			if entry.Event.Epoch != first.Epoch() {
				t.Fatalf("event from epoch %d leaked into bundle %d", entry.Event.Epoch, first.Epoch())
			}
			sawStart = sawStart || entry.Event.Kind == events.KindMatchStarted
		}
		if entry.Frame != nil {
			sawFrame = true
			if len(entry.Frame.Tanks) != 2 {
				t.Fatalf("expected both tanks in frame, got %+v", entry.Frame)
			}
		}
	}
	if !sawStart || !sawFrame {
		t.Fatalf("expected start event and frames, got start=%t frame=%t", sawStart, sawFrame)
	}
}

// waitForBundles blocks until the recorder has opened the bundle after n closed ones.
func waitForBundles(t *testing.T, recorder *Recorder, closed int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		recorder.mu.Lock()
		open := recorder.writer != nil
		recorder.mu.Unlock()
		if open && len(recorder.Bundles()) == closed {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("recorder never reached %d closed bundles with one open", closed)
}

func TestFrameFromSnapshotPrefersLivePositions(t *testing.T) {
	snapshot := match.TurnSnapshot{Epoch: 2, Turn: 3, ActivePlayer: 2, Phase: match.PhaseProjectileInFlight}
	snapshot.Projectiles = []ballistics.Projectile{
		{ID: 9, Owner: 2, Position: geom.Vec3{X: 1, Y: 1}},
		{ID: 4, Owner: 2, Position: geom.Vec3{X: 2, Y: 2}},
	}
	frame := FrameFromSnapshot(snapshot, fixedTracker{9: {X: 5, Y: 6}})
	if frame.Phase != string(match.PhaseProjectileInFlight) || frame.ActivePlayer != 2 {
		t.Fatalf("unexpected frame %+v", frame)
	}
	//1.- Shells are ordered by id and the tracked one reports its live position.
	if len(frame.Projectiles) != 2 || frame.Projectiles[0].ID != 4 || frame.Projectiles[1].X != 5 {
		t.Fatalf("unexpected projectiles %+v", frame.Projectiles)
	}
}

func TestNewRecorderRequiresSource(t *testing.T) {
	if _, err := NewRecorder(t.TempDir(), nil); err == nil {
		t.Fatalf("expected an error without a source")
	}
}
