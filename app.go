package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"google.golang.org/grpc"

	"forefront/arena/internal/bridge"
	"forefront/arena/internal/config"
	"forefront/arena/internal/events"
	"forefront/arena/internal/logging"
	"forefront/arena/internal/match"
	"forefront/arena/internal/physics"
	"forefront/arena/internal/replay"
	"forefront/arena/internal/simulation"
	"forefront/arena/internal/stats"
	"forefront/arena/internal/telemetry"
)

const (
	subscriberBuffer = 256
	shutdownTimeout  = 5 * time.Second
)

// app owns every long-lived collaborator of the game host.
type app struct {
	cfg     *config.Config
	logger  *logging.Logger
	store   stats.Store
	metrics *telemetry.Metrics
	stream  *events.Stream
	world   *physics.World
	host    *match.Host
	loop    *simulation.Loop
	monitor *simulation.TickMonitor
	hub     *bridge.Hub
	health  *bridge.Health
	ops     *bridge.OpsHandlers

	recorder *replay.Recorder
	cleaner  *replay.Cleaner

	wg sync.WaitGroup
}

// consumer is one named subscriber of the match event stream.
type consumer struct {
	id  string
	run func(context.Context, *events.Subscription)
}

// newApp wires the host from cfg. The store is owned by the caller.
func newApp(cfg *config.Config, logger *logging.Logger, store stats.Store) (*app, error) {
	if cfg == nil {
		return nil, errors.New("config required")
	}
	if logger == nil {
		logger = logging.L()
	}
	rules, err := match.RulesFromConfig(cfg.Match)
	if err != nil {
		return nil, fmt.Errorf("match rules: %w", err)
	}
	metrics, err := telemetry.New(nil)
	if err != nil {
		return nil, fmt.Errorf("telemetry: %w", err)
	}

	a := &app{
		cfg:     cfg,
		logger:  logger,
		store:   store,
		metrics: metrics,
		stream:  events.NewStream(events.Config{}),
		world:   physics.NewWorld(),
		monitor: simulation.NewTickMonitor(cfg.PhysicsStep),
	}

	opts := []match.HostOption{
		match.WithRules(rules),
		match.WithPhysics(a.world),
		match.WithEvents(a.stream),
		match.WithStats(store),
		match.WithMetrics(metrics),
		match.WithLogger(logger),
	}
	if cfg.Level.HasSeed {
		opts = append(opts, match.WithSeed(cfg.Level.Seed))
	}
	a.host, err = match.NewHost(opts...)
	if err != nil {
		return nil, fmt.Errorf("match host: %w", err)
	}
	//1.- Physics contacts flow back into whichever match is current.
	a.world.SetHandler(a.host)
	a.loop = simulation.NewLoop(cfg.PhysicsStep,
		func(step time.Duration) { a.world.Step(step.Seconds()) },
		simulation.WithGate(a.host.Paused),
		simulation.WithMonitor(a.monitor),
	)

	a.hub = bridge.NewHub(bridge.Options{
		Source:          a.host,
		Logger:          logger,
		AllowedOrigins:  cfg.AllowedOrigins,
		PingInterval:    cfg.PingInterval,
		MaxPayloadBytes: cfg.MaxPayloadBytes,
		MaxClients:      cfg.MaxClients,
	})
	a.health = bridge.NewHealth(a.host, logger)

	var replays func() replay.StorageStats
	if cfg.ReplayDir != "" {
		a.recorder, err = replay.NewRecorder(cfg.ReplayDir, a.host,
			replay.WithTracker(a.world),
			replay.WithRecorderLogger(logger),
		)
		if err != nil {
			return nil, fmt.Errorf("replay recorder: %w", err)
		}
		a.cleaner = replay.NewCleaner(cfg.ReplayDir, replay.RetentionPolicy{
			MaxBundles: cfg.ReplayRetain,
			MaxAge:     cfg.ReplayMaxAge,
		}, logger)
		replays = a.cleaner.Stats
	}
	a.ops = bridge.NewOpsHandlers(bridge.OpsOptions{
		Logger:  logger,
		Source:  a.host,
		Hub:     a.hub,
		Metrics: metrics,
		Stats:   store,
		Replays: replays,
	})
	return a, nil
}

// start subscribes every consumer, launches the physics loop and begins the
// first match. Consumers attach first so none misses match_started.
func (a *app) start(ctx context.Context) error {
	ctx = logging.ContextWithLogger(ctx, a.logger.With(logging.String("component", "host")))
	consumers := []consumer{
		{"bridge", a.hub.Run},
		{"health", a.health.Run},
		{"lifecycle", a.runLifecycle},
	}
	if a.recorder != nil {
		consumers = append(consumers, consumer{"replay", a.recorder.Run})
	}
	for _, consumer := range consumers {
		sub, err := a.stream.Subscribe(ctx, consumer.id, subscriberBuffer)
		if err != nil {
			return fmt.Errorf("subscribe %s: %w", consumer.id, err)
		}
		run := consumer.run
		a.wg.Add(1)
		go func() {
			defer a.wg.Done()
			defer sub.Close()
			run(ctx, sub)
		}()
	}
	if a.cleaner != nil {
		a.wg.Add(1)
		go func() {
			defer a.wg.Done()
			a.cleaner.Run(ctx, a.cfg.ReplaySweep)
		}()
	}

	a.loop.Start(ctx)
	return a.startMatch(ctx)
}

func (a *app) startMatch(ctx context.Context) error {
	level := a.cfg.Level
	m, err := a.host.StartMatch(ctx, level.Width, level.Height, level.CellSize)
	if err != nil {
		return err
	}
	a.monitor.Reset()
	a.health.Refresh()
	a.logger.Info("match started", logging.Epoch(m.Epoch()), logging.Int64("seed", m.Grid().Seed()))
	return nil
}

// runLifecycle begins a fresh match whenever the previous one returns to start.
func (a *app) runLifecycle(ctx context.Context, sub *events.Subscription) {
	logger := logging.FromContext(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-sub.Done():
			return
		case event := <-sub.Events():
			if err := sub.Ack(event.Sequence); err != nil {
				logger.Warn("lifecycle ack failed", logging.Uint64("sequence", event.Sequence), logging.Error(err))
			}
			if event.Kind != events.KindReturnToStart || event.Epoch != a.host.Epoch() {
				continue
			}
			if err := a.startMatch(ctx); err != nil && !errors.Is(err, match.ErrHostClosed) {
				logger.Error("restart match failed", logging.Error(err))
			}
		}
	}
}

// serve runs the bridge and health listeners until ctx ends.
func (a *app) serve(ctx context.Context) error {
	bridgeListener, err := net.Listen("tcp", a.cfg.BridgeAddr)
	if err != nil {
		return fmt.Errorf("listen bridge: %w", err)
	}
	healthListener, err := net.Listen("tcp", a.cfg.HealthAddr)
	if err != nil {
		bridgeListener.Close()
		return fmt.Errorf("listen health: %w", err)
	}
	return a.serveOn(ctx, bridgeListener, healthListener)
}

func (a *app) serveOn(ctx context.Context, bridgeListener, healthListener net.Listener) error {
	mux := http.NewServeMux()
	mux.Handle("/ws", a.hub)
	a.ops.Register(mux)
	httpServer := &http.Server{Handler: mux, ReadHeaderTimeout: 10 * time.Second}

	grpcServer := grpc.NewServer(healthServerOptions(a.cfg, a.logger)...)
	a.health.Register(grpcServer)

	errs := make(chan error, 2)
	go func() {
		if err := httpServer.Serve(bridgeListener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errs <- fmt.Errorf("bridge server: %w", err)
		}
	}()
	go func() {
		if err := grpcServer.Serve(healthListener); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			errs <- fmt.Errorf("health server: %w", err)
		}
	}()
	a.logger.Info("presentation bridge listening", logging.String("url", bridge.ListenerURL(bridgeListener.Addr().String(), "/ws")))
	a.logger.Info("health service listening", logging.String("addr", healthListener.Addr().String()))

	var serveErr error
	select {
	case <-ctx.Done():
	case serveErr = <-errs:
	}

	//1.- Stop accepting work before the match and recorder wind down.
	a.health.Shutdown()
	a.hub.Close()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		a.logger.Warn("bridge shutdown incomplete", logging.Error(err))
	}
	stopped := make(chan struct{})
	go func() {
		grpcServer.GracefulStop()
		close(stopped)
	}()
	select {
	case <-stopped:
	case <-shutdownCtx.Done():
		grpcServer.Stop()
	}
	return serveErr
}

// close tears down the match, the physics loop and every consumer. The
// context passed to start must already be cancelled.
func (a *app) close() {
	a.host.Close()
	a.loop.Stop()
	a.wg.Wait()
	if a.logger.Enabled(logging.DebugLevel) {
		ticks := a.monitor.Snapshot()
		a.logger.Debug("physics loop stopped",
			logging.Uint64("steps", a.world.Steps()),
			logging.Int("overruns", ticks.Overruns),
			logging.Duration("max_step", ticks.Max),
		)
	}
}
