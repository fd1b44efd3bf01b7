package replay

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sync"
	"time"

	"github.com/golang/snappy"
	"github.com/klauspost/compress/zstd"
	"google.golang.org/protobuf/encoding/protowire"

	"forefront/arena/internal/events"
)

const (
	manifestName = "manifest.json"
	headerName   = "header.json"
	eventsName   = "events.jsonl.sz"
	framesName   = "frames.bin.zst"
)

// DefaultFrameInterval is the minimum spacing between persisted frames.
const DefaultFrameInterval = 200 * time.Millisecond

// ErrWriterClosed is returned by writes after Close.
var ErrWriterClosed = errors.New("replay writer closed")

var bundleNameCleaner = regexp.MustCompile(`[^a-zA-Z0-9_-]+`)

// Manifest describes the replay bundle layout so tooling can locate artefacts.
type Manifest struct {
	Version         int    `json:"version"`
	CreatedAt       string `json:"created_at"`
	FrameIntervalMs int    `json:"frame_interval_ms"`
	EventsPath      string `json:"events_path"`
	FramesPath      string `json:"frames_path"`
	HeaderPath      string `json:"header_path"`
}

// Writer streams one match to a bundle directory: a snappy-framed JSONL event
// log, a zstd stream of length-delimited frames, a manifest and a header.
type Writer struct {
	mu          sync.Mutex
	dir         string
	now         func() time.Time
	interval    time.Duration
	eventFile   *os.File
	eventStream *snappy.Writer
	frameFile   *os.File
	frameStream *zstd.Encoder
	lastFrame   time.Time
	header      Header
	events      int
	frames      int
	closed      bool
}

// NewWriter prepares the bundle directory under root and opens the compressed sinks.
func NewWriter(root, matchID string, clock func() time.Time) (*Writer, Manifest, error) {
	if root == "" {
		return nil, Manifest{}, fmt.Errorf("replay root must be provided")
	}
	if clock == nil {
		clock = time.Now
	}
	cleaned := bundleNameCleaner.ReplaceAllString(matchID, "")
	if cleaned == "" {
		cleaned = "match"
	}
	created := clock().UTC()
	dir := filepath.Join(root, fmt.Sprintf("%s-%s", cleaned, created.Format("20060102T150405.000Z")))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, Manifest{}, err
	}

	manifest := Manifest{
		Version:         2,
		CreatedAt:       created.Format(time.RFC3339Nano),
		FrameIntervalMs: int(DefaultFrameInterval / time.Millisecond),
		EventsPath:      eventsName,
		FramesPath:      framesName,
		HeaderPath:      headerName,
	}
	data, err := json.MarshalIndent(manifest, "", "  ")
	if err != nil {
		return nil, Manifest{}, err
	}
	if err := os.WriteFile(filepath.Join(dir, manifestName), data, 0o644); err != nil {
		return nil, Manifest{}, err
	}

	//1.- Open both sinks, unwinding the first if the second fails.
	eventFile, err := os.Create(filepath.Join(dir, eventsName))
	if err != nil {
		return nil, Manifest{}, err
	}
	frameFile, err := os.Create(filepath.Join(dir, framesName))
	if err != nil {
		eventFile.Close()
		return nil, Manifest{}, err
	}
	frameStream, err := zstd.NewWriter(frameFile)
	if err != nil {
		eventFile.Close()
		frameFile.Close()
		return nil, Manifest{}, err
	}

	return &Writer{
		dir:         dir,
		now:         clock,
		interval:    DefaultFrameInterval,
		eventFile:   eventFile,
		eventStream: snappy.NewBufferedWriter(eventFile),
		frameFile:   frameFile,
		frameStream: frameStream,
		header:      Header{SchemaVersion: HeaderSchemaVersion, FilePointer: manifestName},
	}, manifest, nil
}

// Directory exposes the directory backing the replay bundle.
func (w *Writer) Directory() string {
	if w == nil {
		return ""
	}
	return w.dir
}

// SetHeader records the metadata written to header.json on Close.
func (w *Writer) SetHeader(header Header) {
	if w == nil {
		return
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if header.SchemaVersion == 0 {
		header.SchemaVersion = HeaderSchemaVersion
	}
	if header.FilePointer == "" {
		header.FilePointer = manifestName
	}
	w.header = header
}

// SetWinner stamps the result into the header.
func (w *Writer) SetWinner(winner int) {
	if w == nil {
		return
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	w.header.Winner = winner
}

// AppendEvent writes one event as a JSON line.
func (w *Writer) AppendEvent(event events.Event) error {
	if w == nil {
		return ErrWriterClosed
	}
	line, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return ErrWriterClosed
	}
	if _, err := w.eventStream.Write(append(line, '\n')); err != nil {
		return err
	}
	w.events++
	return w.eventStream.Flush()
}

// AppendFrame persists a frame unless one was written less than the frame
// interval ago. It reports whether the frame was kept.
func (w *Writer) AppendFrame(frame Frame) (bool, error) {
	if w == nil {
		return false, ErrWriterClosed
	}
	captured := w.now().UTC()
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return false, ErrWriterClosed
	}
	//1.- Enforce the sampling cadence so a fast caller cannot bloat the bundle.
	if !w.lastFrame.IsZero() && captured.Sub(w.lastFrame) < w.interval {
		return false, nil
	}
	if frame.CapturedAt.IsZero() {
		frame.CapturedAt = captured
	}
	if err := w.writeFrameLocked(frame); err != nil {
		return false, err
	}
	w.lastFrame = captured
	return true, nil
}

// ForceFrame persists a frame regardless of cadence, used for terminal states.
func (w *Writer) ForceFrame(frame Frame) error {
	if w == nil {
		return ErrWriterClosed
	}
	captured := w.now().UTC()
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return ErrWriterClosed
	}
	if frame.CapturedAt.IsZero() {
		frame.CapturedAt = captured
	}
	w.lastFrame = captured
	return w.writeFrameLocked(frame)
}

func (w *Writer) writeFrameLocked(frame Frame) error {
	//1.- Length-delimit each record so readers can step through the stream.
	record := protowire.AppendBytes(nil, EncodeFrame(frame))
	if _, err := w.frameStream.Write(record); err != nil {
		return err
	}
	w.frames++
	return nil
}

// Counts reports how many events and frames have been written.
func (w *Writer) Counts() (eventCount, frameCount int) {
	if w == nil {
		return 0, 0
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.events, w.frames
}

// Close writes the header, flushes both streams and releases file handles.
func (w *Writer) Close() error {
	if w == nil {
		return nil
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return nil
	}
	w.closed = true

	//1.- Attempt every step and surface the first failure.
	var firstErr error
	keep := func(err error) {
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}
	keep(WriteHeader(filepath.Join(w.dir, headerName), w.header))
	keep(w.eventStream.Close())
	keep(w.eventFile.Close())
	keep(w.frameStream.Close())
	keep(w.frameFile.Close())
	return firstErr
}
