package terrain

import (
	"errors"
	"math/rand/v2"
	"testing"
)

func TestHeightProfileStaysBounded(t *testing.T) {
	params := DefaultGeneratorParams()
	//1.- Walk many seeds across a long strip and assert height and slope never escape their bounds.
	for seed := int64(0); seed < 200; seed++ {
		rows := 10 + int(seed%40)
		profile := NewHeightProfile(rows, params, newRand(seed))
		for col := 0; col < 500; col++ {
			height := profile.Advance(col)
			if height < 0 || height > float64(rows) {
				t.Fatalf("seed %d col %d: height %f outside [0,%d]", seed, col, height, rows)
			}
			if slope := profile.Slope(); slope < -params.MaxSlope || slope > params.MaxSlope {
				t.Fatalf("seed %d col %d: slope %f outside bound", seed, col, slope)
			}
		}
	}
}

func TestHeightProfileMemoizesColumn(t *testing.T) {
	profile := NewHeightProfile(30, DefaultGeneratorParams(), rand.New(rand.NewPCG(1, 2)))
	first := profile.Advance(0)
	slope := profile.Slope()
	//1.- Asking for the same column again must not re-derive the slope.
	if again := profile.Advance(0); again != first || profile.Slope() != slope {
		t.Fatalf("column 0 re-derived: %f/%f vs %f/%f", again, profile.Slope(), first, slope)
	}
	if profile.Column() != 0 {
		t.Fatalf("unexpected column %d", profile.Column())
	}
}

func TestGenerateScenarioFreshGrid(t *testing.T) {
	//1.- A 25x7.5 level with 0.25 cells yields the 100x30 grid used by regular matches.
	grid, err := Generate(25, 7.5, 0.25, WithSeed(42))
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if grid.Columns() != 100 || grid.Rows() != 30 {
		t.Fatalf("unexpected dimensions %dx%d", grid.Columns(), grid.Rows())
	}
	heights := grid.Heights()
	if heights[0] < 0 || heights[0] > 30 {
		t.Fatalf("column 0 height %f outside [0,30]", heights[0])
	}
	//2.- The same seed reproduces the exact layout.
	again, err := Generate(25, 7.5, 0.25, WithSeed(42))
	if err != nil {
		t.Fatalf("generate again: %v", err)
	}
	for col := 0; col < grid.Columns(); col++ {
		if heights[col] != again.Heights()[col] {
			t.Fatalf("column %d differs between runs", col)
		}
		for row := 0; row < grid.Rows(); row++ {
			if grid.IsPresent(col, row) != again.IsPresent(col, row) {
				t.Fatalf("cell %d,%d differs between runs", col, row)
			}
		}
	}
}

func TestGenerateFillsBelowHeightLine(t *testing.T) {
	grid, err := Generate(20, 10, 0.5, WithSeed(7))
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	heights := grid.Heights()
	count := 0
	for col := 0; col < grid.Columns(); col++ {
		for row := 0; row < grid.Rows(); row++ {
			want := float64(row) > heights[col]
			if grid.IsPresent(col, row) != want {
				t.Fatalf("cell %d,%d presence %v, want %v", col, row, !want, want)
			}
			if want {
				count++
			}
		}
	}
	if grid.PresentCount() != count {
		t.Fatalf("present count %d, want %d", grid.PresentCount(), count)
	}
}

func TestGenerateWithoutSeedRecordsSeed(t *testing.T) {
	grid, err := Generate(10, 5, 0.25)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	replayed, err := Generate(10, 5, 0.25, WithSeed(grid.Seed()))
	if err != nil {
		t.Fatalf("regenerate: %v", err)
	}
	for col, h := range grid.Heights() {
		if replayed.Heights()[col] != h {
			t.Fatalf("recorded seed did not reproduce column %d", col)
		}
	}
}

func TestGenerateRejectsEmptyDimensions(t *testing.T) {
	cases := []struct {
		name                    string
		width, height, cellSize float64
	}{
		{name: "zero width", width: 0, height: 5, cellSize: 0.25},
		{name: "tiny height", width: 5, height: 0.1, cellSize: 0.25},
		{name: "zero cell", width: 5, height: 5, cellSize: 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := Generate(tc.width, tc.height, tc.cellSize); !errors.Is(err, ErrInvalidDimensions) {
				t.Fatalf("expected ErrInvalidDimensions, got %v", err)
			}
		})
	}
}
