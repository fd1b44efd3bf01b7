package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	// DefaultBridgeAddr is the TCP address the presentation bridge listens on.
	DefaultBridgeAddr = ":43127"
	// DefaultHealthAddr is the TCP address of the gRPC health service.
	DefaultHealthAddr = ":43128"
	// DefaultPingInterval controls the keepalive cadence for WebSocket connections.
	DefaultPingInterval = 30 * time.Second
	// DefaultMaxPayloadBytes limits inbound WebSocket frame size.
	DefaultMaxPayloadBytes int64 = 64 << 10
	// DefaultMaxClients bounds concurrent WebSocket connections. Zero disables the limit.
	DefaultMaxClients = 16

	// DefaultTurnDuration is the countdown granted to each turn.
	DefaultTurnDuration = 20 * time.Second
	// DefaultTickInterval is the countdown resolution.
	DefaultTickInterval = time.Second
	// DefaultWhiffThreshold is how many unanswered polls clear a lost projectile.
	DefaultWhiffThreshold = 5
	// DefaultHandoffDelay is the pause between turns.
	DefaultHandoffDelay = 2 * time.Second
	// DefaultSelfHitGrace suppresses damage to the shooter right after firing.
	DefaultSelfHitGrace = 500 * time.Millisecond
	// DefaultMatchOverNotice is how long the result is shown before returning to start.
	DefaultMatchOverNotice = 3 * time.Second
	// DefaultMovementBudget is the number of lateral steps per turn.
	DefaultMovementBudget = 60
	// DefaultBoostBudget is the number of vertical boosts per turn.
	DefaultBoostBudget = 3
	// DefaultTieBreak decides simultaneous destruction.
	DefaultTieBreak = "player1-first"

	// DefaultLevelWidth is the world width of generated terrain.
	DefaultLevelWidth = 25.0
	// DefaultLevelHeight is the world height of generated terrain.
	DefaultLevelHeight = 7.5
	// DefaultCellSize is the edge length of one terrain cell.
	DefaultCellSize = 0.25
	// DefaultPhysicsStep is the fixed timestep of the reference physics world.
	DefaultPhysicsStep = time.Second / 60

	// DefaultStatsPath is the SQLite database holding win counters.
	DefaultStatsPath = "forefront.db"

	// DefaultReplayRetain is how many replay bundles are kept on disk.
	DefaultReplayRetain = 20
	// DefaultReplayMaxAge prunes bundles older than this. Zero disables the age limit.
	DefaultReplayMaxAge = 7 * 24 * time.Hour
	// DefaultReplaySweep is the cadence of replay retention sweeps.
	DefaultReplaySweep = time.Hour

	// DefaultLogLevel controls verbosity for host logs.
	DefaultLogLevel = "info"
	// DefaultLogPath is where structured logs are written.
	DefaultLogPath = "forefront.log"
	// DefaultLogMaxSizeMB caps the size of a single log file before rotation.
	DefaultLogMaxSizeMB = 100
	// DefaultLogMaxBackups limits retained rotated log files.
	DefaultLogMaxBackups = 10
	// DefaultLogMaxAgeDays controls how long rotated log files are kept on disk.
	DefaultLogMaxAgeDays = 7
	// DefaultLogCompress toggles gzip compression for rotated log files.
	DefaultLogCompress = true
)

var validTieBreaks = map[string]struct{}{
	"player1-first": {},
	"player2-first": {},
	"draw":          {},
}

// Config captures all runtime tunables for the game host.
type Config struct {
	BridgeAddr      string
	HealthAddr      string
	HealthSecret    string
	AllowedOrigins  []string
	PingInterval    time.Duration
	MaxPayloadBytes int64
	MaxClients      int
	Match           MatchConfig
	Level           LevelConfig
	PhysicsStep     time.Duration
	StatsPath       string
	ReplayDir       string
	ReplayRetain    int
	ReplayMaxAge    time.Duration
	ReplaySweep     time.Duration
	Logging         LoggingConfig
}

// MatchConfig holds turn timing, budgets and the tie-break policy.
type MatchConfig struct {
	TurnDuration    time.Duration
	TickInterval    time.Duration
	WhiffThreshold  int
	HandoffDelay    time.Duration
	SelfHitGrace    time.Duration
	MatchOverNotice time.Duration
	MovementBudget  int
	BoostBudget     int
	TieBreak        string
}

// LevelConfig describes the generated battlefield.
type LevelConfig struct {
	Width    float64
	Height   float64
	CellSize float64
	Seed     int64
	HasSeed  bool
}

// LoggingConfig captures structured logging configuration options.
type LoggingConfig struct {
	Level      string
	Path       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool
}

// Load reads the host configuration from environment variables, applying sane
// defaults and returning descriptive errors for invalid overrides.
func Load() (*Config, error) {
	cfg := &Config{
		BridgeAddr:      getString("FOREFRONT_BRIDGE_ADDR", DefaultBridgeAddr),
		HealthAddr:      getString("FOREFRONT_HEALTH_ADDR", DefaultHealthAddr),
		HealthSecret:    strings.TrimSpace(os.Getenv("FOREFRONT_HEALTH_SECRET")),
		AllowedOrigins:  parseList(os.Getenv("FOREFRONT_ALLOWED_ORIGINS")),
		PingInterval:    DefaultPingInterval,
		MaxPayloadBytes: DefaultMaxPayloadBytes,
		MaxClients:      DefaultMaxClients,
		Match: MatchConfig{
			TurnDuration:    DefaultTurnDuration,
			TickInterval:    DefaultTickInterval,
			WhiffThreshold:  DefaultWhiffThreshold,
			HandoffDelay:    DefaultHandoffDelay,
			SelfHitGrace:    DefaultSelfHitGrace,
			MatchOverNotice: DefaultMatchOverNotice,
			MovementBudget:  DefaultMovementBudget,
			BoostBudget:     DefaultBoostBudget,
			TieBreak:        strings.ToLower(getString("FOREFRONT_TIE_BREAK", DefaultTieBreak)),
		},
		Level: LevelConfig{
			Width:    DefaultLevelWidth,
			Height:   DefaultLevelHeight,
			CellSize: DefaultCellSize,
		},
		PhysicsStep:  DefaultPhysicsStep,
		StatsPath:    strings.TrimSpace(getString("FOREFRONT_STATS_PATH", DefaultStatsPath)),
		ReplayDir:    strings.TrimSpace(os.Getenv("FOREFRONT_REPLAY_DIR")),
		ReplayRetain: DefaultReplayRetain,
		ReplayMaxAge: DefaultReplayMaxAge,
		ReplaySweep:  DefaultReplaySweep,
		Logging: LoggingConfig{
			Level:      strings.TrimSpace(getString("FOREFRONT_LOG_LEVEL", DefaultLogLevel)),
			Path:       strings.TrimSpace(getString("FOREFRONT_LOG_PATH", DefaultLogPath)),
			MaxSizeMB:  DefaultLogMaxSizeMB,
			MaxBackups: DefaultLogMaxBackups,
			MaxAgeDays: DefaultLogMaxAgeDays,
			Compress:   DefaultLogCompress,
		},
	}

	var problems []string

	//1.- Transport tunables.
	positiveDuration("FOREFRONT_PING_INTERVAL", &cfg.PingInterval, &problems)
	if raw := strings.TrimSpace(os.Getenv("FOREFRONT_MAX_PAYLOAD_BYTES")); raw != "" {
		value, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || value <= 0 {
			problems = append(problems, fmt.Sprintf("FOREFRONT_MAX_PAYLOAD_BYTES must be a positive integer, got %q", raw))
		} else {
			cfg.MaxPayloadBytes = value
		}
	}
	nonNegativeInt("FOREFRONT_MAX_CLIENTS", &cfg.MaxClients, &problems)

	//2.- Turn rules.
	positiveDuration("FOREFRONT_TURN_DURATION", &cfg.Match.TurnDuration, &problems)
	positiveDuration("FOREFRONT_TICK_INTERVAL", &cfg.Match.TickInterval, &problems)
	positiveInt("FOREFRONT_WHIFF_THRESHOLD", &cfg.Match.WhiffThreshold, &problems)
	nonNegativeDuration("FOREFRONT_HANDOFF_DELAY", &cfg.Match.HandoffDelay, &problems)
	nonNegativeDuration("FOREFRONT_SELF_HIT_GRACE", &cfg.Match.SelfHitGrace, &problems)
	nonNegativeDuration("FOREFRONT_MATCH_OVER_NOTICE", &cfg.Match.MatchOverNotice, &problems)
	nonNegativeInt("FOREFRONT_MOVEMENT_BUDGET", &cfg.Match.MovementBudget, &problems)
	nonNegativeInt("FOREFRONT_BOOST_BUDGET", &cfg.Match.BoostBudget, &problems)
	if _, ok := validTieBreaks[cfg.Match.TieBreak]; !ok {
		problems = append(problems, fmt.Sprintf("FOREFRONT_TIE_BREAK must be one of player1-first, player2-first, draw, got %q", cfg.Match.TieBreak))
	}

	//3.- Battlefield geometry.
	positiveFloat("FOREFRONT_LEVEL_WIDTH", &cfg.Level.Width, &problems)
	positiveFloat("FOREFRONT_LEVEL_HEIGHT", &cfg.Level.Height, &problems)
	positiveFloat("FOREFRONT_CELL_SIZE", &cfg.Level.CellSize, &problems)
	if raw := strings.TrimSpace(os.Getenv("FOREFRONT_SEED")); raw != "" {
		value, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			problems = append(problems, fmt.Sprintf("FOREFRONT_SEED must be an integer, got %q", raw))
		} else {
			cfg.Level.Seed = value
			cfg.Level.HasSeed = true
		}
	}
	if cfg.Level.CellSize > cfg.Level.Width || cfg.Level.CellSize > cfg.Level.Height {
		problems = append(problems, "FOREFRONT_CELL_SIZE must not exceed the level width or height")
	}
	positiveDuration("FOREFRONT_PHYSICS_STEP", &cfg.PhysicsStep, &problems)

	//4.- Replay retention.
	nonNegativeInt("FOREFRONT_REPLAY_RETAIN", &cfg.ReplayRetain, &problems)
	nonNegativeDuration("FOREFRONT_REPLAY_MAX_AGE", &cfg.ReplayMaxAge, &problems)
	positiveDuration("FOREFRONT_REPLAY_SWEEP", &cfg.ReplaySweep, &problems)

	//5.- Log output.
	positiveInt("FOREFRONT_LOG_MAX_SIZE_MB", &cfg.Logging.MaxSizeMB, &problems)
	nonNegativeInt("FOREFRONT_LOG_MAX_BACKUPS", &cfg.Logging.MaxBackups, &problems)
	nonNegativeInt("FOREFRONT_LOG_MAX_AGE_DAYS", &cfg.Logging.MaxAgeDays, &problems)
	if raw := strings.TrimSpace(os.Getenv("FOREFRONT_LOG_COMPRESS")); raw != "" {
		value, err := strconv.ParseBool(raw)
		if err != nil {
			problems = append(problems, fmt.Sprintf("FOREFRONT_LOG_COMPRESS must be a boolean value, got %q", raw))
		} else {
			cfg.Logging.Compress = value
		}
	}

	if len(problems) > 0 {
		return nil, errors.New(strings.Join(problems, "; "))
	}

	return cfg, nil
}

func positiveDuration(key string, target *time.Duration, problems *[]string) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return
	}
	duration, err := time.ParseDuration(raw)
	if err != nil || duration <= 0 {
		*problems = append(*problems, fmt.Sprintf("%s must be a positive duration, got %q", key, raw))
		return
	}
	*target = duration
}

func nonNegativeDuration(key string, target *time.Duration, problems *[]string) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return
	}
	duration, err := time.ParseDuration(raw)
	if err != nil || duration < 0 {
		*problems = append(*problems, fmt.Sprintf("%s must be a non-negative duration, got %q", key, raw))
		return
	}
	*target = duration
}

func positiveInt(key string, target *int, problems *[]string) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return
	}
	value, err := strconv.Atoi(raw)
	if err != nil || value <= 0 {
		*problems = append(*problems, fmt.Sprintf("%s must be a positive integer, got %q", key, raw))
		return
	}
	*target = value
}

func nonNegativeInt(key string, target *int, problems *[]string) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return
	}
	value, err := strconv.Atoi(raw)
	if err != nil || value < 0 {
		*problems = append(*problems, fmt.Sprintf("%s must be a non-negative integer, got %q", key, raw))
		return
	}
	*target = value
}

func positiveFloat(key string, target *float64, problems *[]string) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return
	}
	value, err := strconv.ParseFloat(raw, 64)
	if err != nil || !(value > 0) {
		*problems = append(*problems, fmt.Sprintf("%s must be a positive number, got %q", key, raw))
		return
	}
	*target = value
}

func getString(key, fallback string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return fallback
}

func parseList(raw string) []string {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	values := make([]string, 0, len(parts))
	for _, part := range parts {
		if item := strings.TrimSpace(part); item != "" {
			values = append(values, item)
		}
	}
	return values
}
