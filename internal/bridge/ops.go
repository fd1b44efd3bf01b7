package bridge

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"forefront/arena/internal/logging"
	"forefront/arena/internal/replay"
	"forefront/arena/internal/stats"
	"forefront/arena/internal/telemetry"
)

const statsTimeout = 2 * time.Second

// OpsOptions configures the operational handlers.
type OpsOptions struct {
	Logger  *logging.Logger
	Source  Source
	Hub     *Hub
	Metrics *telemetry.Metrics
	Stats   stats.Store
	Replays func() replay.StorageStats
	Clock   func() time.Time
	Started time.Time
}

// OpsHandlers serves liveness, readiness, metrics and snapshot endpoints.
type OpsHandlers struct {
	logger  *logging.Logger
	source  Source
	hub     *Hub
	metrics *telemetry.Metrics
	stats   stats.Store
	replays func() replay.StorageStats
	now     func() time.Time
	started time.Time
}

// NewOpsHandlers builds the handler set.
func NewOpsHandlers(opts OpsOptions) *OpsHandlers {
	h := &OpsHandlers{
		logger:  opts.Logger,
		source:  opts.Source,
		hub:     opts.Hub,
		metrics: opts.Metrics,
		stats:   opts.Stats,
		replays: opts.Replays,
		now:     opts.Clock,
		started: opts.Started,
	}
	if h.logger == nil {
		h.logger = logging.L()
	}
	if h.now == nil {
		h.now = time.Now
	}
	if h.started.IsZero() {
		h.started = h.now()
	}
	return h
}

// Register attaches the handlers to mux.
func (h *OpsHandlers) Register(mux *http.ServeMux) {
	mux.HandleFunc("/livez", h.Liveness)
	mux.HandleFunc("/readyz", h.Readiness)
	mux.HandleFunc("/metrics", h.Metrics)
	mux.HandleFunc("/snapshot", h.Snapshot)
}

// Liveness reports that the HTTP server answers.
func (h *OpsHandlers) Liveness(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":    "alive",
		"timestamp": h.now().UTC().Format(time.RFC3339Nano),
	})
}

// Readiness is ready while a match is running.
func (h *OpsHandlers) Readiness(w http.ResponseWriter, _ *http.Request) {
	type response struct {
		Status        string  `json:"status"`
		Epoch         uint64  `json:"epoch,omitempty"`
		UptimeSeconds float64 `json:"uptime_seconds"`
		Clients       int     `json:"clients"`
	}
	resp := response{Status: "no_match", UptimeSeconds: h.now().Sub(h.started).Seconds()}
	if h.hub != nil {
		resp.Clients = h.hub.Clients()
	}
	status := http.StatusServiceUnavailable
	if h.source != nil {
		if m := h.source.Current(); m != nil {
			resp.Status = "ok"
			resp.Epoch = m.Epoch()
			status = http.StatusOK
		}
	}
	writeJSON(w, status, resp)
}

// Snapshot returns the current turn state.
func (h *OpsHandlers) Snapshot(w http.ResponseWriter, _ *http.Request) {
	if h.source == nil {
		http.Error(w, ErrNoMatch.Error(), http.StatusNotFound)
		return
	}
	m := h.source.Current()
	if m == nil {
		http.Error(w, ErrNoMatch.Error(), http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, m.Snapshot())
}

// Metrics emits Prometheus text exposition of the in-process counters.
func (h *OpsHandlers) Metrics(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; version=0.0.4")
	gauge := func(name, help string, value any) {
		fmt.Fprintf(w, "# HELP %s %s\n# TYPE %s gauge\n%s %v\n", name, help, name, name, value)
	}
	counter := func(name, help string, value any) {
		fmt.Fprintf(w, "# HELP %s %s\n# TYPE %s counter\n%s %v\n", name, help, name, name, value)
	}

	gauge("forefront_uptime_seconds", "Host uptime in seconds.", int64(h.now().Sub(h.started).Seconds()))
	if h.hub != nil {
		gauge("forefront_bridge_clients", "Connected presentation clients.", h.hub.Clients())
		counter("forefront_bridge_broadcasts_total", "Event fan-outs sent to clients.", h.hub.Broadcasts())
	}
	if h.metrics != nil {
		counts := h.metrics.Snapshot()
		counter("forefront_shots_fired_total", "Projectiles launched.", counts.ShotsFired)
		counter("forefront_damage_applied_total", "Health removed from tanks.", counts.DamageApplied)
		counter("forefront_cells_destroyed_total", "Terrain cells removed by explosions.", counts.CellsDestroyed)
		counter("forefront_whiffs_total", "Flights cleared by the whiff timeout.", counts.Whiffs)
		counter("forefront_turns_completed_total", "Turns handed off.", counts.TurnsCompleted)
		counter("forefront_matches_completed_total", "Matches that produced a result.", counts.MatchesCompleted)
		gauge("forefront_active_matches", "Matches currently running.", h.metrics.ActiveMatches())
	}
	if h.stats != nil {
		ctx, cancel := context.WithTimeout(r.Context(), statsTimeout)
		tally, err := h.stats.Wins(ctx)
		cancel()
		if err != nil {
			h.logger.Warn("metrics win tally unavailable", logging.Error(err))
		} else {
			fmt.Fprintf(w, "# HELP forefront_wins Persisted wins per seat.\n# TYPE forefront_wins gauge\n")
			fmt.Fprintf(w, "forefront_wins{player=\"1\"} %d\n", tally.For(1))
			fmt.Fprintf(w, "forefront_wins{player=\"2\"} %d\n", tally.For(2))
		}
	}
	if h.replays != nil {
		storage := h.replays()
		gauge("forefront_replay_bundles", "Replay bundles retained on disk.", storage.Bundles)
		gauge("forefront_replay_bytes", "Disk footprint of retained replay bundles.", storage.Bytes)
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
