package replaycatalog

import (
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"forefront/arena/internal/replay"
)

// Entry captures a replay header alongside the bundle it points at.
type Entry struct {
	HeaderPath string        `json:"header_path"`
	ReplayPath string        `json:"replay_path"`
	Header     replay.Header `json:"header"`
}

// List walks the directory tree and returns parsed replay headers.
func List(root string) ([]Entry, error) {
	if strings.TrimSpace(root) == "" {
		return nil, fmt.Errorf("root directory must be provided")
	}
	info, err := os.Stat(root)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("root must be a directory")
	}

	var entries []Entry
	//1.- Every bundle directory carries one header.json written when its match closed.
	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if d.IsDir() {
			return nil
		}
		if d.Name() != "header.json" {
			return nil
		}
		header, err := replay.ReadHeader(path)
		if err != nil {
			return err
		}
		replayPath := header.FilePointer
		if !filepath.IsAbs(replayPath) {
			replayPath = filepath.Join(filepath.Dir(path), replayPath)
		}
		entries = append(entries, Entry{HeaderPath: path, ReplayPath: replayPath, Header: header})
		return nil
	})
	if err != nil {
		return nil, err
	}
	//2.- Order by match epoch, then path, so repeated runs print identically.
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Header.Epoch == entries[j].Header.Epoch {
			return entries[i].ReplayPath < entries[j].ReplayPath
		}
		return entries[i].Header.Epoch < entries[j].Header.Epoch
	})
	return entries, nil
}

// MarshalEntries renders the entries as indented JSON.
func MarshalEntries(entries []Entry) ([]byte, error) {
	return json.MarshalIndent(entries, "", "  ")
}

// Describe summarises one entry for terminal output.
func Describe(entry Entry) string {
	var b strings.Builder
	h := entry.Header
	fmt.Fprintf(&b, "%s (schema %d, epoch %d)\n", entry.ReplayPath, h.SchemaVersion, h.Epoch)
	fmt.Fprintf(&b, "  seed: %d\n", h.Seed)
	fmt.Fprintf(&b, "  level: %dx%d cells of %.2f\n", h.Level.Columns, h.Level.Rows, h.Level.CellSize)
	p := h.TerrainParams
	fmt.Fprintf(&b, "  terrain: amplifier=%.3f dampening=%.3f threshold=%.3f max_slope=%.3f\n",
		p.Amplifier, p.DampeningFactor, p.DampeningThreshold, p.MaxSlope)
	if h.Winner != 0 {
		fmt.Fprintf(&b, "  winner: player %d\n", h.Winner)
	}
	fmt.Fprintf(&b, "  header: %s\n", entry.HeaderPath)
	return b.String()
}
