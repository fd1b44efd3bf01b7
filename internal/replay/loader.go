package replay

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/golang/snappy"
	"github.com/klauspost/compress/zstd"
	"google.golang.org/protobuf/encoding/protowire"

	"forefront/arena/internal/events"
)

// maxEventLine bounds a single JSONL record.
const maxEventLine = 1 << 20

// ReadManifest loads the manifest of a bundle directory.
func ReadManifest(dir string) (Manifest, error) {
	data, err := os.ReadFile(filepath.Join(dir, manifestName))
	if err != nil {
		return Manifest{}, err
	}
	var manifest Manifest
	if err := json.Unmarshal(data, &manifest); err != nil {
		return Manifest{}, fmt.Errorf("decode manifest: %w", err)
	}
	return manifest, nil
}

// ReadEvents decodes the event log of a bundle.
func ReadEvents(dir string) ([]events.Event, error) {
	file, err := os.Open(filepath.Join(dir, eventsName))
	if err != nil {
		return nil, err
	}
	defer file.Close()

	scanner := bufio.NewScanner(snappy.NewReader(file))
	scanner.Buffer(make([]byte, 0, 64*1024), maxEventLine)
	var out []events.Event
	for scanner.Scan() {
		if len(scanner.Bytes()) == 0 {
			continue
		}
		var event events.Event
		if err := json.Unmarshal(scanner.Bytes(), &event); err != nil {
			return nil, fmt.Errorf("decode event %d: %w", len(out)+1, err)
		}
		out = append(out, event)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read events: %w", err)
	}
	return out, nil
}

// ReadFrames decodes the frame stream of a bundle.
func ReadFrames(dir string) ([]Frame, error) {
	file, err := os.Open(filepath.Join(dir, framesName))
	if err != nil {
		return nil, err
	}
	defer file.Close()

	decoder, err := zstd.NewReader(file)
	if err != nil {
		return nil, err
	}
	defer decoder.Close()
	data, err := io.ReadAll(decoder)
	if err != nil {
		return nil, fmt.Errorf("read frames: %w", err)
	}

	//1.- Each record is a varint length followed by one encoded frame.
	var frames []Frame
	for len(data) > 0 {
		record, n := protowire.ConsumeBytes(data)
		if n < 0 {
			return frames, fmt.Errorf("%w after %d frames", ErrTruncatedFrame, len(frames))
		}
		data = data[n:]
		frame, err := DecodeFrame(record)
		if err != nil {
			return frames, fmt.Errorf("decode frame %d: %w", len(frames)+1, err)
		}
		frames = append(frames, frame)
	}
	return frames, nil
}

// TimelineEntry is one replay datum in capture order. Exactly one of Event
// and Frame is set.
type TimelineEntry struct {
	At    time.Time
	Event *events.Event
	Frame *Frame
}

// Loader rehydrates a bundle for validation and playback tooling.
type Loader struct {
	header  Header
	entries []TimelineEntry
}

// Load reads the header, events and frames of a bundle directory.
func Load(dir string) (*Loader, error) {
	if dir == "" {
		return nil, fmt.Errorf("replay path must be provided")
	}
	header, err := ReadHeader(filepath.Join(dir, headerName))
	if err != nil {
		return nil, err
	}
	eventLog, err := ReadEvents(dir)
	if err != nil {
		return nil, err
	}
	frames, err := ReadFrames(dir)
	if err != nil {
		return nil, err
	}

	entries := make([]TimelineEntry, 0, len(eventLog)+len(frames))
	for i := range eventLog {
		entries = append(entries, TimelineEntry{At: eventLog[i].At, Event: &eventLog[i]})
	}
	for i := range frames {
		entries = append(entries, TimelineEntry{At: frames[i].CapturedAt, Frame: &frames[i]})
	}
	//1.- Stable sort keeps events ahead of frames captured in the same instant.
	sort.SliceStable(entries, func(i, j int) bool { return entries[i].At.Before(entries[j].At) })
	return &Loader{header: header, entries: entries}, nil
}

// Header returns the bundle metadata.
func (l *Loader) Header() Header {
	if l == nil {
		return Header{}
	}
	return l.header
}

// Replay iterates over the loaded entries in capture order.
func (l *Loader) Replay(apply func(TimelineEntry) error) error {
	if l == nil {
		return fmt.Errorf("loader not initialised")
	}
	if apply == nil {
		return fmt.Errorf("replay callback must be provided")
	}
	for _, entry := range l.entries {
		if err := apply(entry); err != nil {
			return err
		}
	}
	return nil
}

// Entries exposes a copy of the timeline.
func (l *Loader) Entries() []TimelineEntry {
	if l == nil {
		return nil
	}
	return append([]TimelineEntry(nil), l.entries...)
}
