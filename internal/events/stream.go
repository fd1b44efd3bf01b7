package events

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"
)

// Config controls the retention policy for the stream log and subscriber buffers.
type Config struct {
	Retain int
	Clock  func() time.Time
}

const defaultRetention = 512

// ErrOutOfOrderAck signals that a subscriber acknowledged a sequence that was never published.
var ErrOutOfOrderAck = errors.New("ack sequence has not been published")

// ErrNilStream is returned by operations on a nil stream.
var ErrNilStream = errors.New("nil stream")

// Stream sequences events and delivers them to named subscribers, replaying
// anything unacknowledged when a subscriber reconnects.
type Stream struct {
	mu          sync.Mutex
	nextSeq     uint64
	retention   int
	clock       func() time.Time
	order       []uint64
	log         map[uint64]*Event
	subscribers map[string]*subscriber
}

type subscriber struct {
	id      string
	pending []uint64
	lastAck uint64
	ch      chan *Event
	done    chan struct{}
}

// Subscription exposes the event channel and acknowledgement helpers for a subscriber.
type Subscription struct {
	id     string
	stream *Stream
	events <-chan *Event
	done   chan struct{}
	once   sync.Once
}

// NewStream constructs a stream using the provided configuration.
func NewStream(cfg Config) *Stream {
	retention := cfg.Retain
	if retention <= 0 {
		retention = defaultRetention
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	return &Stream{
		retention:   retention,
		clock:       clock,
		log:         make(map[uint64]*Event),
		subscribers: make(map[string]*subscriber),
	}
}

// Subscribe attaches the named subscriber and replays its outstanding events.
// A second Subscribe for the same name supersedes the previous subscription.
func (s *Stream) Subscribe(ctx context.Context, subscriberID string, buffer int) (*Subscription, error) {
	if s == nil {
		return nil, ErrNilStream
	}
	if subscriberID == "" {
		return nil, errors.New("subscriber id must be provided")
	}
	if buffer <= 0 {
		buffer = 32
	}

	s.mu.Lock()
	state, ok := s.subscribers[subscriberID]
	if !ok {
		state = &subscriber{id: subscriberID}
		s.subscribers[subscriberID] = state
	}
	if state.done != nil {
		close(state.done)
	}
	//1.- Everything newer than the last ack is pending again for the new connection.
	state.pending = state.pending[:0]
	replay := make([]*Event, 0, len(s.order))
	for _, seq := range s.order {
		if seq <= state.lastAck {
			continue
		}
		state.pending = append(state.pending, seq)
		replay = append(replay, s.log[seq].Clone())
	}
	//2.- Size the channel so the replay fits ahead of any live delivery.
	ch := make(chan *Event, buffer+len(replay))
	for _, event := range replay {
		ch <- event
	}
	done := make(chan struct{})
	state.ch = ch
	state.done = done
	s.mu.Unlock()

	sub := &Subscription{id: subscriberID, stream: s, events: ch, done: done}
	if ctx != nil && ctx.Done() != nil {
		go func() {
			select {
			case <-ctx.Done():
				sub.Close()
			case <-done:
			}
		}()
	}
	return sub, nil
}

// Events exposes the ordered delivery channel for the subscriber.
func (s *Subscription) Events() <-chan *Event {
	if s == nil {
		return nil
	}
	return s.events
}

// Done is closed once the subscription is closed or superseded.
func (s *Subscription) Done() <-chan struct{} {
	if s == nil {
		return nil
	}
	return s.done
}

// Ack informs the stream that the subscriber processed the given sequence.
func (s *Subscription) Ack(sequence uint64) error {
	if s == nil || s.stream == nil {
		return errors.New("subscription closed")
	}
	return s.stream.ack(s.id, sequence)
}

// Close detaches the subscription while preserving acknowledgement state.
func (s *Subscription) Close() {
	if s == nil || s.stream == nil {
		return
	}
	s.once.Do(func() {
		s.stream.detach(s.id, s.done)
	})
}

// Publish stamps, sequences and fans out one event. Slow subscribers miss live
// delivery but receive the event on their next Subscribe if they never acked it.
func (s *Stream) Publish(event Event) (uint64, error) {
	if s == nil {
		return 0, ErrNilStream
	}
	if event.Kind == "" {
		return 0, errors.New("event kind required")
	}

	s.mu.Lock()
	s.nextSeq++
	seq := s.nextSeq
	event.Sequence = seq
	if event.At.IsZero() {
		event.At = s.clock()
	}
	stored := event.Clone()
	s.log[seq] = stored
	s.order = append(s.order, seq)

	type delivery struct {
		ch    chan<- *Event
		done  <-chan struct{}
		event *Event
	}
	deliveries := make([]delivery, 0, len(s.subscribers))
	for _, state := range s.subscribers {
		state.pending = append(state.pending, seq)
		if state.ch != nil {
			deliveries = append(deliveries, delivery{ch: state.ch, done: state.done, event: stored.Clone()})
		}
	}
	s.pruneLocked()
	s.mu.Unlock()

	for _, item := range deliveries {
		//1.- Never block the publisher; the match publishes while holding its own lock.
		select {
		case <-item.done:
		case item.ch <- item.event:
		default:
		}
	}
	return seq, nil
}

// Since returns retained events with a sequence greater than after.
func (s *Stream) Since(after uint64) []Event {
	if s == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	idx := sort.Search(len(s.order), func(i int) bool { return s.order[i] > after })
	out := make([]Event, 0, len(s.order)-idx)
	for _, seq := range s.order[idx:] {
		out = append(out, *s.log[seq].Clone())
	}
	return out
}

// LastSequence reports the sequence of the most recent event.
func (s *Stream) LastSequence() uint64 {
	if s == nil {
		return 0
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.nextSeq
}

func (s *Stream) pruneLocked() {
	//1.- The retention window is a hard cap; subscribers further behind lose the oldest events.
	excess := len(s.order) - s.retention
	if excess <= 0 {
		return
	}
	for _, seq := range s.order[:excess] {
		delete(s.log, seq)
	}
	s.order = append([]uint64(nil), s.order[excess:]...)
	//2.- Pending entries that fell out of the log can never be replayed, so drop them too.
	oldest := s.order[0]
	for _, state := range s.subscribers {
		idx := sort.Search(len(state.pending), func(i int) bool { return state.pending[i] >= oldest })
		if idx > 0 {
			state.pending = append([]uint64(nil), state.pending[idx:]...)
		}
	}
}

func (s *Stream) ack(subscriberID string, sequence uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	state, ok := s.subscribers[subscriberID]
	if !ok {
		return fmt.Errorf("unknown subscriber %q", subscriberID)
	}
	//1.- Acks are cumulative: everything pending up to the sequence is settled,
	// including live deliveries the subscriber's buffer dropped.
	switch {
	case sequence <= state.lastAck:
		return nil
	case sequence > s.nextSeq:
		return ErrOutOfOrderAck
	}
	//2.- Pending is contiguous, so a published sequence missing from it was already pruned.
	idx := sort.Search(len(state.pending), func(i int) bool { return state.pending[i] > sequence })
	state.pending = state.pending[idx:]
	state.lastAck = sequence
	s.pruneLocked()
	return nil
}

func (s *Stream) detach(subscriberID string, done chan struct{}) {
	s.mu.Lock()
	defer s.mu.Unlock()
	state, ok := s.subscribers[subscriberID]
	if !ok || state.done != done {
		return
	}
	close(state.done)
	state.done = nil
	state.ch = nil
}
