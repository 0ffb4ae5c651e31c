// Package animator turns the selected history entry into a time-driven card
// transition. Nothing here ticks: callers sample Frame at whatever rate they
// render.
package animator

import (
	"sync"
	"time"

	"earshot/clock"
	"earshot/history"
)

type Phase int

const (
	PhaseOut Phase = iota
	PhaseDelay
	PhaseIn
	PhaseSettled
)

func (p Phase) String() string {
	switch p {
	case PhaseOut:
		return "out"
	case PhaseDelay:
		return "delay"
	case PhaseIn:
		return "in"
	case PhaseSettled:
		return "settled"
	}
	return "unknown"
}

type Options struct {
	Out   time.Duration
	Delay time.Duration
	In    time.Duration

	// Scroll rates in surface units per second.
	TitlePPS    float64
	SubtitlePPS float64
	// ScrollLead is where overflowing text starts; ScrollGap separates repetitions.
	ScrollLead int
	ScrollGap  int
}

func DefaultOptions() Options {
	return Options{
		Out:         500 * time.Millisecond,
		Delay:       200 * time.Millisecond,
		In:          500 * time.Millisecond,
		TitlePPS:    50,
		SubtitlePPS: 30,
		ScrollLead:  1,
		ScrollGap:   4,
	}
}

func (o Options) Total() time.Duration { return o.Out + o.Delay + o.In }

type Selection struct {
	Entry history.Entry
}

func (s Selection) Equal(o Selection) bool { return s.Entry.Equal(o.Entry) }

type State struct {
	Outgoing  *Selection
	Incoming  *Selection
	StartedAt time.Time
	// OutgoingScroll freezes the outgoing card's text where it was when the
	// transition began.
	OutgoingScroll time.Duration
}

type Size struct {
	W, H int
}

// Placement is one card to draw. X and Y are the card's top-left corner in
// surface units and may lie outside the surface while sliding.
type Placement struct {
	Entry    history.Entry
	X, Y     float64
	ScrollAt time.Duration
}

type Frame struct {
	Phase    Phase
	Progress float64
	Card     *Placement
}

type Animator struct {
	mu    sync.Mutex
	opts  Options
	clock clock.Clock
	st    State
}

func New(opts Options, clk clock.Clock) *Animator {
	if clk == nil {
		clk = clock.Real{}
	}
	return &Animator{opts: opts, clock: clk}
}

// SetSelection starts a transition to sel and reports whether it did. An
// in-flight transition is dropped; the newest selection always wins. If the
// current incoming card never became visible, the card that was on screen
// before it slides out instead.
func (a *Animator) SetSelection(sel Selection) bool {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.st.Incoming != nil && a.st.Incoming.Equal(sel) {
		return false
	}
	now := a.clock.Now()
	t := now.Sub(a.st.StartedAt)

	next := State{Incoming: &sel, StartedAt: now}
	switch {
	case a.st.Incoming == nil:
	case t < a.opts.Out+a.opts.Delay:
		next.Outgoing = a.st.Outgoing
		next.OutgoingScroll = a.st.OutgoingScroll
	default:
		next.Outgoing = a.st.Incoming
		next.OutgoingScroll = max(t-a.opts.Total(), 0)
	}
	a.st = next
	return true
}

func (a *Animator) State() State {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.st
}

func (a *Animator) Options() Options {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.opts
}

// SetOptions applies new timings; an in-flight transition is re-evaluated
// against them on the next Frame.
func (a *Animator) SetOptions(o Options) {
	a.mu.Lock()
	a.opts = o
	a.mu.Unlock()
}

func (a *Animator) Frame(now time.Time, surface, card Size) Frame {
	a.mu.Lock()
	st, opts := a.st, a.opts
	a.mu.Unlock()
	return Render(st, opts, now, surface, card)
}

// Render computes what to draw at now. It has no side effects.
func Render(st State, o Options, now time.Time, surface, card Size) Frame {
	if st.Incoming == nil && st.Outgoing == nil {
		return Frame{Phase: PhaseSettled, Progress: 1}
	}

	t := max(now.Sub(st.StartedAt), 0)
	cx := float64(surface.W-card.W) / 2
	cy := float64(surface.H-card.H) / 2

	switch {
	case t < o.Out:
		p := ratio(t, o.Out)
		return Frame{
			Phase:    PhaseOut,
			Progress: p,
			Card:     place(st.Outgoing, cx, lerp(cy, float64(surface.H), p), st.OutgoingScroll),
		}
	case t < o.Out+o.Delay:
		return Frame{Phase: PhaseDelay, Progress: ratio(t-o.Out, o.Delay)}
	case t < o.Total():
		p := ratio(t-o.Out-o.Delay, o.In)
		return Frame{
			Phase:    PhaseIn,
			Progress: p,
			Card:     place(st.Incoming, cx, lerp(-float64(card.H), cy, p), 0),
		}
	}
	return Frame{
		Phase:    PhaseSettled,
		Progress: 1,
		Card:     place(st.Incoming, cx, cy, t-o.Total()),
	}
}

// place returns nil for empty slots and for entries without a track.
func place(sel *Selection, x, y float64, scroll time.Duration) *Placement {
	if sel == nil || sel.Entry.Track() == nil {
		return nil
	}
	return &Placement{Entry: sel.Entry, X: x, Y: y, ScrollAt: scroll}
}

func ratio(t, d time.Duration) float64 {
	if d <= 0 {
		return 1
	}
	return min(float64(t)/float64(d), 1)
}

func lerp(a, b, p float64) float64 { return a + (b-a)*p }
