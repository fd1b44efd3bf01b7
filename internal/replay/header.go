package replay

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"forefront/arena/internal/terrain"
)

// HeaderSchemaVersion tracks the schema version for replay header documents.
const HeaderSchemaVersion = 2

// ErrInvalidHeader is returned for headers that tooling cannot use.
var ErrInvalidHeader = errors.New("invalid replay header")

// Level records the dimensions a match was generated with.
type Level struct {
	Width    float64 `json:"width"`
	Height   float64 `json:"height"`
	CellSize float64 `json:"cell_size"`
	Columns  int     `json:"columns"`
	Rows     int     `json:"rows"`
}

// Header is the metadata persisted alongside a replay bundle. Seed, level and
// terrain parameters are enough to regenerate the starting battlefield.
type Header struct {
	SchemaVersion int                     `json:"schema_version"`
	Epoch         uint64                  `json:"epoch"`
	Seed          int64                   `json:"seed"`
	Level         Level                   `json:"level"`
	TerrainParams terrain.GeneratorParams `json:"terrain_params"`
	Winner        int                     `json:"winner,omitempty"`
	FilePointer   string                  `json:"file_pointer"`
}

// HeaderFor describes the battlefield of grid.
func HeaderFor(epoch uint64, grid *terrain.Grid) Header {
	header := Header{SchemaVersion: HeaderSchemaVersion, Epoch: epoch, FilePointer: manifestName}
	if grid == nil {
		return header
	}
	header.Seed = grid.Seed()
	header.TerrainParams = grid.Params()
	header.Level = Level{
		CellSize: grid.CellSize(),
		Columns:  grid.Columns(),
		Rows:     grid.Rows(),
		Width:    float64(grid.Columns()) * grid.CellSize(),
		Height:   float64(grid.Rows()) * grid.CellSize(),
	}
	return header
}

// Regenerate rebuilds the starting terrain recorded by the header.
func (h Header) Regenerate() (*terrain.Grid, error) {
	//1.- Pad by half a cell so float rounding cannot drop a column or row.
	width := (float64(h.Level.Columns) + 0.5) * h.Level.CellSize
	height := (float64(h.Level.Rows) + 0.5) * h.Level.CellSize
	return terrain.Generate(width, height, h.Level.CellSize,
		terrain.WithSeed(h.Seed),
		terrain.WithParams(h.TerrainParams),
	)
}

// Validate ensures the header contains enough information for catalogue tooling.
func (h Header) Validate() error {
	if h.SchemaVersion <= 0 {
		return fmt.Errorf("%w: schema_version must be positive", ErrInvalidHeader)
	}
	if strings.TrimSpace(h.FilePointer) == "" {
		return fmt.Errorf("%w: file_pointer must not be empty", ErrInvalidHeader)
	}
	return nil
}

// WriteHeader persists the supplied header to the provided file path.
func WriteHeader(path string, header Header) error {
	if err := header.Validate(); err != nil {
		return err
	}
	//1.- Encode using indented JSON so manual inspection remains readable.
	payload, err := json.MarshalIndent(header, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, append(payload, '\n'), 0o644)
}

// ReadHeader loads and decodes a replay header from disk.
func ReadHeader(path string) (Header, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Header{}, err
	}
	var header Header
	if err := json.Unmarshal(data, &header); err != nil {
		return Header{}, fmt.Errorf("decode header: %w", err)
	}
	if err := header.Validate(); err != nil {
		return Header{}, err
	}
	return header, nil
}
