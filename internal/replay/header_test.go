package replay

import (
	"errors"
	"path/filepath"
	"testing"

	"forefront/arena/internal/terrain"
)

func TestHeaderRoundTripRegeneratesTerrain(t *testing.T) {
	grid, err := terrain.Generate(25, 7.5, 0.25, terrain.WithSeed(11))
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	header := HeaderFor(4, grid)
	header.Winner = 2
	path := filepath.Join(t.TempDir(), "header.json")
	//1.- Persist and reload through the JSON document.
	if err := WriteHeader(path, header); err != nil {
		t.Fatalf("write: %v", err)
	}
	loaded, err := ReadHeader(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if loaded.Epoch != 4 || loaded.Seed != 11 || loaded.Winner != 2 || loaded.Level != header.Level {
		t.Fatalf("unexpected header %+v", loaded)
	}

	//2.- The recorded seed and level rebuild the same battlefield.
	rebuilt, err := loaded.Regenerate()
	if err != nil {
		t.Fatalf("regenerate: %v", err)
	}
	if rebuilt.Columns() != grid.Columns() || rebuilt.Rows() != grid.Rows() {
		t.Fatalf("expected %dx%d, got %dx%d", grid.Columns(), grid.Rows(), rebuilt.Columns(), rebuilt.Rows())
	}
	for col := 0; col < grid.Columns(); col++ {
		for row := 0; row < grid.Rows(); row++ {
			if grid.IsPresent(col, row) != rebuilt.IsPresent(col, row) {
				t.Fatalf("cell (%d,%d) differs after regeneration", col, row)
			}
		}
	}
}

func TestHeaderForWithoutGrid(t *testing.T) {
	header := HeaderFor(8, nil)
	if header.Epoch != 8 || header.SchemaVersion != HeaderSchemaVersion || header.FilePointer != manifestName {
		t.Fatalf("unexpected header %+v", header)
	}
}

func TestWriteHeaderRejectsInvalid(t *testing.T) {
	cases := map[string]Header{
		"schema":  {FilePointer: manifestName},
		"pointer": {SchemaVersion: HeaderSchemaVersion},
	}
	for name, header := range cases {
		t.Run(name, func(t *testing.T) {
			err := WriteHeader(filepath.Join(t.TempDir(), "header.json"), header)
			if !errors.Is(err, ErrInvalidHeader) {
				t.Fatalf("expected ErrInvalidHeader, got %v", err)
			}
		})
	}
}
