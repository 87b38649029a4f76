// Package schedule buffers speech segments arriving in arbitrary order
// and exposes them for strictly sequential, interruptible playback.
package schedule

import (
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/voxline/animus/internal/audio"
	"github.com/voxline/animus/internal/lipsync"
)

// Status tracks a segment through its lifecycle.
type Status int

const (
	StatusPending Status = iota
	StatusPlaying
	StatusPlayed
)

// Segment is one ordered chunk of synthesized speech audio plus its
// optional lip-sync timeline. Immutable except for Status.
type Segment struct {
	Utterance uuid.UUID
	Index     int
	Audio     *audio.Buffer
	Timeline  []lipsync.Cue
	Status    Status
}

// Scheduler owns the segment buffer. Segments may arrive out of order;
// only the segment matching the expected cursor is ever handed out.
type Scheduler struct {
	mu     sync.Mutex
	logger zerolog.Logger

	segments     []*Segment
	utterance    uuid.UUID
	nextExpected int

	// onInterrupt fires when a new utterance preempts the buffered one.
	onInterrupt func(old uuid.UUID)
}

// NewScheduler creates an empty scheduler.
func NewScheduler(logger zerolog.Logger) *Scheduler {
	return &Scheduler{
		logger: logger.With().Str("component", "scheduler").Logger(),
	}
}

// OnInterrupt registers a callback fired when barge-in abandons an
// in-flight utterance.
func (s *Scheduler) OnInterrupt(fn func(old uuid.UUID)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onInterrupt = fn
}

// Add inserts a segment keeping the buffer sorted by index. A segment
// from a fresh utterance clears the buffer and resets the cursor: the
// previous utterance is abandoned rather than finished, and playback
// waits for the new utterance's segment 0.
func (s *Scheduler) Add(seg *Segment) {
	s.mu.Lock()

	var interrupted uuid.UUID
	var fireInterrupt bool

	if seg.Utterance != s.utterance {
		if s.utterance != (uuid.UUID{}) && (len(s.segments) > 0 || s.nextExpected > 0) {
			interrupted = s.utterance
			fireInterrupt = true
			s.logger.Info().
				Str("old", s.utterance.String()).
				Str("new", seg.Utterance.String()).
				Msg("Barge-in: abandoning buffered utterance")
		}
		s.segments = s.segments[:0]
		s.nextExpected = 0
		s.utterance = seg.Utterance
	}

	i := sort.Search(len(s.segments), func(i int) bool {
		return s.segments[i].Index >= seg.Index
	})
	if i < len(s.segments) && s.segments[i].Index == seg.Index {
		// Duplicate delivery; keep the first copy.
		s.mu.Unlock()
		return
	}
	s.segments = append(s.segments, nil)
	copy(s.segments[i+1:], s.segments[i:])
	s.segments[i] = seg

	onInterrupt := s.onInterrupt
	s.mu.Unlock()

	if fireInterrupt && onInterrupt != nil {
		onInterrupt(interrupted)
	}
}

// Next returns the segment whose index matches the cursor and which has
// not yet been handed out, or nil when the caller must wait. A missing
// predecessor stalls rather than skipping ahead.
func (s *Scheduler) Next() *Segment {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, seg := range s.segments {
		if seg.Index == s.nextExpected && seg.Status == StatusPending {
			return seg
		}
	}
	return nil
}

// MarkPlaying flags the segment at index as in flight. At most one
// segment is playing at any time; the previous one must be played or
// cleared first.
func (s *Scheduler) MarkPlaying(index int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, seg := range s.segments {
		if seg.Index == index && seg.Status == StatusPending {
			seg.Status = StatusPlaying
			return
		}
	}
}

// MarkPlayed advances the cursor past index. It is the only way the
// cursor moves, and it consumes only a segment this scheduler handed
// out: the match must be in flight, so a stale completion arriving
// after a barge-in reset cannot eat the new utterance's still-pending
// segment, and a duplicate call for a consumed index is a no-op.
func (s *Scheduler) MarkPlayed(index int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if index != s.nextExpected {
		return
	}

	for i, seg := range s.segments {
		if seg.Index == index {
			if seg.Status != StatusPlaying {
				return
			}
			seg.Status = StatusPlayed
			s.segments = append(s.segments[:i], s.segments[i+1:]...)
			s.nextExpected++
			return
		}
	}
}

// Expected returns the cursor value, the index Next will hand out.
func (s *Scheduler) Expected() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.nextExpected
}

// Pending returns the number of buffered, unconsumed segments.
func (s *Scheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.segments)
}

// Clear drops every buffered segment and resets the cursor.
func (s *Scheduler) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.segments = s.segments[:0]
	s.nextExpected = 0
	s.utterance = uuid.UUID{}
}
