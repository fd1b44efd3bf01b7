package replay

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"forefront/arena/internal/events"
	"forefront/arena/internal/geom"
	"forefront/arena/internal/logging"
	"forefront/arena/internal/match"
)

// Source exposes the running match to the recorder.
type Source interface {
	Current() *match.Match
}

// Tracker reports live shell positions. The headless physics world satisfies it.
type Tracker interface {
	Projectiles() map[uint64]geom.Vec3
}

// RecorderOption configures optional Recorder behaviour.
type RecorderOption func(*Recorder)

// WithTracker samples shell positions from a physics collaborator.
func WithTracker(tracker Tracker) RecorderOption {
	return func(r *Recorder) {
		r.tracker = tracker
	}
}

// WithRecorderClock overrides the wall-clock source.
func WithRecorderClock(clock func() time.Time) RecorderOption {
	return func(r *Recorder) {
		if clock != nil {
			r.now = clock
		}
	}
}

// WithRecorderLogger overrides the global logger.
func WithRecorderLogger(logger *logging.Logger) RecorderOption {
	return func(r *Recorder) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithSampleInterval overrides how often frames are sampled.
func WithSampleInterval(interval time.Duration) RecorderOption {
	return func(r *Recorder) {
		if interval > 0 {
			r.interval = interval
		}
	}
}

// Recorder writes one bundle per match by following the event stream and
// sampling frames from the current match.
type Recorder struct {
	root     string
	source   Source
	tracker  Tracker
	logger   *logging.Logger
	now      func() time.Time
	interval time.Duration

	mu       sync.Mutex
	writer   *Writer
	epoch    uint64
	lastSeq  uint64
	finished []string
}

// NewRecorder builds a recorder that writes bundles below root.
func NewRecorder(root string, source Source, opts ...RecorderOption) (*Recorder, error) {
	if root == "" {
		return nil, fmt.Errorf("replay directory must be provided")
	}
	if source == nil {
		return nil, fmt.Errorf("replay source must be provided")
	}
	r := &Recorder{
		root:     root,
		source:   source,
		logger:   logging.L(),
		now:      time.Now,
		interval: DefaultFrameInterval,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}
	r.logger = r.logger.With(logging.String("component", "replay"))
	return r, nil
}

// Run consumes the subscription until ctx ends or the subscription closes.
// The open bundle is closed on return.
func (r *Recorder) Run(ctx context.Context, sub *events.Subscription) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	defer r.closeWriter()
	for {
		select {
		case <-ctx.Done():
			return
		case <-sub.Done():
			return
		case event := <-sub.Events():
			r.handle(event)
			if err := sub.Ack(event.Sequence); err != nil {
				r.logger.Warn("replay ack failed", logging.Uint64("sequence", event.Sequence), logging.Error(err))
			}
		case <-ticker.C:
			r.sample(false)
		}
	}
}

func (r *Recorder) handle(event *events.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	//1.- A new epoch starts a new bundle.
	if r.writer == nil || event.Epoch != r.epoch {
		if event.Kind == events.KindReturnToStart {
			return
		}
		r.rotateLocked(event.Epoch)
	}
	if r.writer == nil {
		return
	}
	r.lastSeq = event.Sequence
	if err := r.writer.AppendEvent(*event); err != nil {
		r.logger.Warn("replay event write failed", logging.String("kind", string(event.Kind)), logging.Error(err))
	}
	switch event.Kind {
	case events.KindMatchOver:
		r.writer.SetWinner(event.WinnerID)
		r.sampleLocked(true)
	case events.KindReturnToStart:
		r.closeWriterLocked()
	}
}

func (r *Recorder) rotateLocked(epoch uint64) {
	r.closeWriterLocked()
	writer, manifest, err := NewWriter(r.root, fmt.Sprintf("match-%d", epoch), r.now)
	if err != nil {
		r.logger.Error("replay bundle open failed", logging.Epoch(epoch), logging.Error(err))
		return
	}
	r.writer = writer
	r.epoch = epoch
	var header Header
	if m := r.source.Current(); m != nil && m.Epoch() == epoch {
		header = HeaderFor(epoch, m.Grid())
	} else {
		header = HeaderFor(epoch, nil)
	}
	writer.SetHeader(header)
	r.logger.Info("replay bundle opened",
		logging.Epoch(epoch),
		logging.String("directory", writer.Directory()),
		logging.String("created_at", manifest.CreatedAt),
	)
}

func (r *Recorder) sample(force bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sampleLocked(force)
}

func (r *Recorder) sampleLocked(force bool) {
	if r.writer == nil {
		return
	}
	m := r.source.Current()
	if m == nil || m.Epoch() != r.epoch {
		return
	}
	var positions map[uint64]geom.Vec3
	if r.tracker != nil {
		positions = r.tracker.Projectiles()
	}
	frame := FrameFromSnapshot(m.Snapshot(), positions)
	frame.Sequence = r.lastSeq
	var err error
	if force {
		err = r.writer.ForceFrame(frame)
	} else {
		_, err = r.writer.AppendFrame(frame)
	}
	if err != nil {
		r.logger.Warn("replay frame write failed", logging.Error(err))
	}
}

func (r *Recorder) closeWriter() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closeWriterLocked()
}

func (r *Recorder) closeWriterLocked() {
	if r.writer == nil {
		return
	}
	eventCount, frameCount := r.writer.Counts()
	if err := r.writer.Close(); err != nil {
		r.logger.Error("replay bundle close failed", logging.Epoch(r.epoch), logging.Error(err))
	} else {
		r.finished = append(r.finished, r.writer.Directory())
		r.logger.Info("replay bundle closed",
			logging.Epoch(r.epoch),
			logging.Int("events", eventCount),
			logging.Int("frames", frameCount),
		)
	}
	r.writer = nil
}

// Bundles lists the directories of bundles closed so far.
func (r *Recorder) Bundles() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.finished...)
}

// FrameFromSnapshot converts turn state into a frame. Shell positions come from
// positions when available and fall back to launch positions otherwise.
func FrameFromSnapshot(snapshot match.TurnSnapshot, positions map[uint64]geom.Vec3) Frame {
	frame := Frame{
		Epoch:        snapshot.Epoch,
		Turn:         snapshot.Turn,
		ActivePlayer: snapshot.ActivePlayer,
		SecondsLeft:  snapshot.SecondsLeft,
		Phase:        string(snapshot.Phase),
		Paused:       snapshot.Paused,
		Winner:       snapshot.Winner,
	}
	for _, tk := range snapshot.Tanks {
		frame.Tanks = append(frame.Tanks, TankFrame{PlayerID: tk.PlayerID, Health: tk.Health, X: tk.Position.X, Y: tk.Position.Y})
	}
	for _, p := range snapshot.Projectiles {
		position := p.Position
		if live, ok := positions[p.ID]; ok {
			position = live
		}
		frame.Projectiles = append(frame.Projectiles, ProjectileFrame{ID: p.ID, X: position.X, Y: position.Y})
	}
	sort.Slice(frame.Projectiles, func(i, j int) bool { return frame.Projectiles[i].ID < frame.Projectiles[j].ID })
	return frame
}
