package bridge

import (
	"context"
	"sync"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"forefront/arena/internal/events"
	"forefront/arena/internal/logging"
)

// MatchService is the health service name that tracks the running match.
const MatchService = "forefront.arena.Match"

// Health publishes match availability through the standard gRPC health
// protocol: SERVING while a match is in progress, NOT_SERVING otherwise.
type Health struct {
	server *health.Server
	source Source
	logger *logging.Logger

	mu     sync.Mutex
	status healthpb.HealthCheckResponse_ServingStatus
}

// NewHealth builds the reporter in the NOT_SERVING state.
func NewHealth(source Source, logger *logging.Logger) *Health {
	if logger == nil {
		logger = logging.L()
	}
	h := &Health{
		server: health.NewServer(),
		source: source,
		logger: logger.With(logging.String("component", "health")),
		status: healthpb.HealthCheckResponse_UNKNOWN,
	}
	h.set(healthpb.HealthCheckResponse_NOT_SERVING)
	return h
}

// Register attaches the health service to a gRPC server.
func (h *Health) Register(server *grpc.Server) {
	healthpb.RegisterHealthServer(server, h.server)
}

// Refresh recomputes the status from the current match.
func (h *Health) Refresh() healthpb.HealthCheckResponse_ServingStatus {
	status := healthpb.HealthCheckResponse_NOT_SERVING
	if h.source != nil {
		if m := h.source.Current(); m != nil && !m.Snapshot().Over {
			status = healthpb.HealthCheckResponse_SERVING
		}
	}
	h.set(status)
	return status
}

func (h *Health) set(status healthpb.HealthCheckResponse_ServingStatus) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.status == status {
		return
	}
	h.status = status
	h.server.SetServingStatus("", status)
	h.server.SetServingStatus(MatchService, status)
	h.logger.Info("health status changed", logging.String("status", status.String()))
}

// Status reports the last published status.
func (h *Health) Status() healthpb.HealthCheckResponse_ServingStatus {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.status
}

// Run refreshes on every match lifecycle event until ctx ends or the
// subscription closes.
func (h *Health) Run(ctx context.Context, sub *events.Subscription) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-sub.Done():
			return
		case event := <-sub.Events():
			switch event.Kind {
			case events.KindMatchStarted, events.KindMatchOver, events.KindReturnToStart:
				h.Refresh()
			}
			if err := sub.Ack(event.Sequence); err != nil {
				h.logger.Warn("health ack failed", logging.Uint64("sequence", event.Sequence), logging.Error(err))
			}
		}
	}
}

// Shutdown marks every service NOT_SERVING and ignores later updates.
func (h *Health) Shutdown() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.status = healthpb.HealthCheckResponse_NOT_SERVING
	h.server.Shutdown()
}
