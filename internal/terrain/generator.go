package terrain

import (
	"errors"
	"math/rand/v2"
	"time"

	"forefront/arena/internal/geom"
)

// ErrInvalidDimensions is returned when the level does not fit a single cell.
var ErrInvalidDimensions = errors.New("terrain dimensions must yield at least one column and one row")

// GeneratorParams tunes the random-walk slope process.
type GeneratorParams struct {
	Amplifier          float64 `json:"amplifier"`
	DampeningFactor    float64 `json:"dampening_factor"`
	DampeningThreshold float64 `json:"dampening_threshold"`
	MaxSlope           float64 `json:"max_slope"`
}

// DefaultGeneratorParams returns the tuning used for regular matches.
func DefaultGeneratorParams() GeneratorParams {
	return GeneratorParams{
		Amplifier:          0.7,
		DampeningFactor:    1.8,
		DampeningThreshold: 0.2,
		MaxSlope:           2.0,
	}
}

func (p GeneratorParams) normalized() GeneratorParams {
	defaults := DefaultGeneratorParams()
	if !(p.Amplifier > 0) {
		p.Amplifier = defaults.Amplifier
	}
	if !(p.DampeningFactor >= 1) {
		p.DampeningFactor = defaults.DampeningFactor
	}
	if p.DampeningThreshold < 0 {
		p.DampeningThreshold = defaults.DampeningThreshold
	}
	if !(p.MaxSlope > 0) {
		p.MaxSlope = defaults.MaxSlope
	}
	return p
}

// HeightProfile is the generation-time walker that derives one height per column.
type HeightProfile struct {
	rows   int
	params GeneratorParams
	rng    *rand.Rand
	column int
	height float64
	slope  float64
}

// NewHeightProfile starts a walker at the vertical midline of a grid with the given row count.
func NewHeightProfile(rows int, params GeneratorParams, rng *rand.Rand) *HeightProfile {
	if rng == nil {
		rng = newRand(time.Now().UnixNano())
	}
	return &HeightProfile{
		rows:   rows,
		params: params.normalized(),
		rng:    rng,
		column: -1,
		height: float64(rows) / 2,
	}
}

// Height reports the current height in row units.
func (p *HeightProfile) Height() float64 { return p.height }

// Slope reports the slope applied for the most recent column.
func (p *HeightProfile) Slope() float64 { return p.slope }

// Column reports the last column index processed.
func (p *HeightProfile) Column() int { return p.column }

// Advance derives the height for col. Repeated calls for the same column return the memoized value.
func (p *HeightProfile) Advance(col int) float64 {
	if col == p.column {
		return p.height
	}
	p.column = col
	rows := float64(p.rows)
	midline := rows / 2

	//1.- Bias the walk back toward the midline the further it has drifted.
	increaseRange := p.params.Amplifier * (1 - p.height/rows)
	decreaseRange := -p.params.Amplifier * (1 - (rows-p.height)/rows)

	//2.- Dampen continued climbs above the midline and continued drops below it.
	if p.slope > p.params.DampeningThreshold && p.height > midline {
		increaseRange /= p.params.DampeningFactor
	}
	if p.slope < -p.params.DampeningThreshold && p.height < midline {
		decreaseRange /= p.params.DampeningFactor
	}

	//3.- Draw the new slope uniformly and keep it inside the configured bound.
	slope := decreaseRange + p.rng.Float64()*(increaseRange-decreaseRange)
	p.slope = clamp(slope, -p.params.MaxSlope, p.params.MaxSlope)

	p.height = clamp(p.height+p.slope, 0, rows)
	return p.height
}

type generateOptions struct {
	seed    int64
	seeded  bool
	params  GeneratorParams
	origin  geom.Vec3
	nowSeed func() int64
}

// Option configures terrain generation.
type Option func(*generateOptions)

// WithSeed makes generation reproducible.
func WithSeed(seed int64) Option {
	return func(o *generateOptions) {
		o.seed = seed
		o.seeded = true
	}
}

// WithParams overrides the random-walk tuning.
func WithParams(params GeneratorParams) Option {
	return func(o *generateOptions) {
		o.params = params
	}
}

// WithOrigin positions the bottom-left cell of the grid in world space.
func WithOrigin(origin geom.Vec3) Option {
	return func(o *generateOptions) {
		o.origin = origin
	}
}

// Generate builds a destructible grid whose solid cells fill below a random-walk height line.
func Generate(width, height, cellSize float64, opts ...Option) (*Grid, error) {
	settings := generateOptions{
		params:  DefaultGeneratorParams(),
		nowSeed: func() int64 { return time.Now().UnixNano() },
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&settings)
		}
	}
	if !(cellSize > 0) {
		return nil, ErrInvalidDimensions
	}
	columns := int(width / cellSize)
	rows := int(height / cellSize)
	if columns <= 0 || rows <= 0 {
		return nil, ErrInvalidDimensions
	}
	//1.- Record the seed even when it was derived from the clock so replays can rebuild the level.
	if !settings.seeded {
		settings.seed = settings.nowSeed()
	}
	params := settings.params.normalized()

	grid := newGrid(columns, rows, cellSize, settings.origin)
	grid.seed = settings.seed
	grid.params = params

	//2.- Walk the columns left to right, carving solid cells below each height.
	profile := NewHeightProfile(rows, params, newRand(settings.seed))
	for col := 0; col < columns; col++ {
		line := profile.Advance(col)
		grid.heights[col] = line
		for row := 0; row < rows; row++ {
			if float64(row) > line {
				grid.cells[grid.index(col, row)] = CellState{Present: true}
				grid.present++
			}
		}
	}
	return grid, nil
}

func newRand(seed int64) *rand.Rand {
	return rand.New(rand.NewPCG(uint64(seed), 0x9e3779b97f4a7c15))
}

func clamp(value, lo, hi float64) float64 {
	if value < lo {
		return lo
	}
	if value > hi {
		return hi
	}
	return value
}
