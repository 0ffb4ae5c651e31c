// Package history keeps a short, ordered record of recognition outcomes
// and suppresses single-cycle flicker between matches of the same track.
package history

import (
	"sync"
	"time"

	"earshot/recognizer"
)

const DefaultSize = 5

// Entry is one recorded point in playback history. A nil Outcome means the
// attempt failed or no window was available yet.
type Entry struct {
	ObservedAt time.Time
	Outcome    *recognizer.Outcome
}

// Track returns the recognized track, or nil.
func (e Entry) Track() *recognizer.Track {
	if e.Outcome == nil {
		return nil
	}
	return e.Outcome.Track
}

// Key returns the track key, or "" when nothing was recognized.
func (e Entry) Key() string {
	if t := e.Track(); t != nil {
		return t.Key
	}
	return ""
}

// Equal compares entries by value: timestamps, outcome presence and track
// identity. Two unrecognized entries are equal only if observed at the same
// instant.
func (e Entry) Equal(o Entry) bool {
	if !e.ObservedAt.Equal(o.ObservedAt) {
		return false
	}
	if (e.Outcome == nil) != (o.Outcome == nil) {
		return false
	}
	if e.Outcome != nil && !e.Outcome.CapturedAt.Equal(o.Outcome.CapturedAt) {
		return false
	}
	if (e.Track() == nil) != (o.Track() == nil) {
		return false
	}
	return e.Key() == o.Key()
}

type Action int

const (
	Appended  Action = iota
	Unchanged        // same track as the last entry
	Collapsed        // gap between two matches of one track removed
)

func (a Action) String() string {
	switch a {
	case Appended:
		return "appended"
	case Unchanged:
		return "unchanged"
	case Collapsed:
		return "collapsed"
	}
	return "unknown"
}

// History is a bounded ring of entries with a single writer (the
// scheduler) and any number of readers.
type History struct {
	mu      sync.RWMutex
	entries []Entry
	size    int
	version uint64
}

func New(size int) *History {
	if size < 1 {
		size = DefaultSize
	}
	return &History{size: size}
}

// Record applies the deduplication policy to a successful outcome. The
// entry's ObservedAt is the outcome's capture time.
func (h *History) Record(o recognizer.Outcome) Action {
	h.mu.Lock()
	defer h.mu.Unlock()

	entry := Entry{ObservedAt: o.CapturedAt, Outcome: &o}
	n := len(h.entries)

	if n == 0 || o.Track == nil {
		h.appendLocked(entry)
		return Appended
	}

	last := h.entries[n-1]
	if last.Track() != nil && last.Key() == o.Track.Key {
		return Unchanged
	}

	// X, gap, X: drop the gap rather than append X a second time.
	if last.Track() == nil && n >= 2 && h.entries[n-2].Track() != nil && h.entries[n-2].Key() == o.Track.Key {
		h.entries = h.entries[:n-1]
		h.version++
		return Collapsed
	}

	h.appendLocked(entry)
	return Appended
}

func (h *History) appendLocked(e Entry) {
	if n := len(h.entries); n > 0 && e.ObservedAt.Before(h.entries[n-1].ObservedAt) {
		e.ObservedAt = h.entries[n-1].ObservedAt
	}
	if len(h.entries) == h.size {
		copy(h.entries, h.entries[1:])
		h.entries = h.entries[:h.size-1]
	}
	h.entries = append(h.entries, e)
	h.version++
}

// Entries returns a copy, oldest first.
func (h *History) Entries() []Entry {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]Entry, len(h.entries))
	copy(out, h.entries)
	return out
}

// Latest returns the newest entry and false when history is empty.
func (h *History) Latest() (Entry, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if len(h.entries) == 0 {
		return Entry{}, false
	}
	return h.entries[len(h.entries)-1], true
}

func (h *History) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.entries)
}

// Version increases on every change; readers use it to skip redundant work.
func (h *History) Version() uint64 {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.version
}
