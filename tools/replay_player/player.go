package replayplayer

import (
	"fmt"
	"os"
	"path/filepath"

	"forefront/arena/internal/events"
	"forefront/arena/internal/replay"
	"forefront/arena/internal/terrain"
)

// Bundle is a decoded replay directory.
type Bundle struct {
	Dir      string                 `json:"dir"`
	Manifest replay.Manifest        `json:"manifest"`
	Header   replay.Header          `json:"header"`
	Timeline []replay.TimelineEntry `json:"timeline"`
}

// Verification summarises how the recorded destruction replays over the
// regenerated battlefield.
type Verification struct {
	InitialCells   int            `json:"initial_cells"`
	FinalCells     int            `json:"final_cells"`
	Explosions     int            `json:"explosions"`
	RemovedCells   int            `json:"removed_cells"`
	Redundant      []terrain.Cell `json:"redundant,omitempty"`
	Winner         int            `json:"winner,omitempty"`
	Events         int            `json:"events"`
	Frames         int            `json:"frames"`
	LastFrameTurn  int            `json:"last_frame_turn"`
	LastFrameEpoch uint64         `json:"last_frame_epoch"`
}

// ReplayBundle loads a bundle from its directory or its manifest.json.
func ReplayBundle(path string) (Bundle, error) {
	if path == "" {
		return Bundle{}, fmt.Errorf("path is required")
	}
	info, err := os.Stat(path)
	if err != nil {
		return Bundle{}, err
	}
	dir := path
	if !info.IsDir() {
		dir = filepath.Dir(path)
	}

	//1.- The manifest must exist; it marks the directory as a bundle.
	manifest, err := replay.ReadManifest(dir)
	if err != nil {
		return Bundle{}, err
	}
	loader, err := replay.Load(dir)
	if err != nil {
		return Bundle{}, err
	}
	return Bundle{Dir: dir, Manifest: manifest, Header: loader.Header(), Timeline: loader.Entries()}, nil
}

// Verify rebuilds the starting terrain from the header and reapplies every
// recorded terrain change in order. Cells destroyed twice are reported as
// redundant.
func (b Bundle) Verify() (Verification, error) {
	grid, err := b.Header.Regenerate()
	if err != nil {
		return Verification{}, fmt.Errorf("regenerate terrain: %w", err)
	}
	result := Verification{InitialCells: grid.PresentCount(), Winner: b.Header.Winner}
	for _, entry := range b.Timeline {
		if entry.Frame != nil {
			result.Frames++
			result.LastFrameTurn = entry.Frame.Turn
			result.LastFrameEpoch = entry.Frame.Epoch
			continue
		}
		if entry.Event == nil {
			continue
		}
		result.Events++
		event := entry.Event
		switch event.Kind {
		case events.KindTerrainChanged:
			result.Explosions++
			//1.- Apply one cell at a time so a repeat is attributed exactly.
			for _, cell := range event.Cells {
				if grid.Remove([]terrain.Cell{cell}) == 1 {
					result.RemovedCells++
				} else {
					result.Redundant = append(result.Redundant, cell)
				}
			}
		case events.KindMatchOver:
			if result.Winner == 0 {
				result.Winner = event.WinnerID
			}
		}
	}
	result.FinalCells = grid.PresentCount()
	return result, nil
}
