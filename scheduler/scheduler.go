// Package scheduler runs the recognition control loop: wait for a full
// audio window, submit it, record the outcome, then throttle.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"earshot/clock"
	"earshot/encoder"
	"earshot/history"
	"earshot/log"
	"earshot/recognizer"
)

type State int

const (
	StateWaiting State = iota
	StateSubmitting
	StateSleeping
	StateBackoff
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateWaiting:
		return "waiting"
	case StateSubmitting:
		return "submitting"
	case StateSleeping:
		return "sleeping"
	case StateBackoff:
		return "backoff"
	case StateStopped:
		return "stopped"
	}
	return "unknown"
}

// Window is the read side of the audio ring buffer.
type Window interface {
	IsFull() bool
	Snapshot() []int16
}

// Recorder receives every successful outcome.
type Recorder interface {
	Record(o recognizer.Outcome) history.Action
}

type Config struct {
	SampleRate     int
	PollInterval   time.Duration
	FailurePenalty time.Duration
	SleepInterval  time.Duration
}

func DefaultConfig() Config {
	return Config{
		SampleRate:     encoder.DefaultSampleRate,
		PollInterval:   500 * time.Millisecond,
		FailurePenalty: 10 * time.Second,
		SleepInterval:  5 * time.Second,
	}
}

type Stats struct {
	State       State
	Submissions int
	Faults      int
	Matches     int
	Misses      int
	LastError   string
	LastSubmit  time.Time
}

type Scheduler struct {
	cfg      Config
	window   Window
	encoder  encoder.Encoder
	service  recognizer.Service
	recorder Recorder
	clock    clock.Clock

	// OnState, if set, is called on every state change from the loop goroutine.
	OnState func(State)
	// OnRecord, if set, is called after each outcome is recorded.
	OnRecord func(recognizer.Outcome, history.Action)

	mu    sync.Mutex
	stats Stats
}

func New(cfg Config, w Window, enc encoder.Encoder, svc recognizer.Service, rec Recorder, clk clock.Clock) *Scheduler {
	if clk == nil {
		clk = clock.Real{}
	}
	return &Scheduler{
		cfg:      cfg,
		window:   w,
		encoder:  enc,
		service:  svc,
		recorder: rec,
		clock:    clk,
	}
}

// Run loops until ctx is cancelled. A recognition call already in flight
// is allowed to finish; its result is discarded if shutdown began meanwhile.
func (s *Scheduler) Run(ctx context.Context) {
	defer s.setState(StateStopped)

	for ctx.Err() == nil {
		if !s.window.IsFull() {
			s.setState(StateWaiting)
			if s.clock.Sleep(ctx, s.cfg.PollInterval) != nil {
				return
			}
			continue
		}

		s.setState(StateSubmitting)
		out, err := s.submit(ctx)
		if ctx.Err() != nil {
			return
		}
		if err != nil {
			s.fault(err)
			s.setState(StateBackoff)
			if s.clock.Sleep(ctx, s.cfg.FailurePenalty) != nil {
				return
			}
			continue
		}

		action := s.recorder.Record(*out)
		s.mu.Lock()
		if out.Track != nil {
			s.stats.Matches++
		} else {
			s.stats.Misses++
		}
		s.stats.LastError = ""
		s.mu.Unlock()
		if s.OnRecord != nil {
			s.OnRecord(*out, action)
		}

		s.setState(StateSleeping)
		if s.clock.Sleep(ctx, s.sleepFor(out)) != nil {
			return
		}
	}
}

func (s *Scheduler) submit(ctx context.Context) (*recognizer.Outcome, error) {
	capturedAt := s.clock.Now()
	samples := s.window.Snapshot()
	id := uuid.NewString()

	s.mu.Lock()
	s.stats.Submissions++
	s.stats.LastSubmit = capturedAt
	s.mu.Unlock()

	encStart := time.Now()
	data, err := s.encoder.Encode(samples, s.cfg.SampleRate)
	if err != nil {
		return nil, fmt.Errorf("encoding window: %w", err)
	}
	encodeTime := time.Since(encStart)

	out, err := s.service.Recognize(context.WithoutCancel(ctx), recognizer.Request{
		ID:          id,
		Audio:       data,
		Format:      s.encoder.Format(),
		ContentType: s.encoder.ContentType(),
		SampleRate:  s.cfg.SampleRate,
	})
	if err != nil {
		return nil, err
	}
	out.CapturedAt = capturedAt

	m := log.SubmissionMetrics{
		ID:       id,
		Provider: s.service.Name(),
		Format:   s.encoder.Format(),
		AudioS:   float64(len(samples)) / float64(s.cfg.SampleRate),
		SizeKB:   float64(len(data)) / 1024,
		EncodeMs: float64(encodeTime.Microseconds()) / 1000,
		Matched:  out.Track != nil,
		RetryMs:  out.RetryHint.Milliseconds(),
	}
	if nm := out.Metrics; nm != nil {
		m.TTFBMs = float64(nm.TTFB.Milliseconds())
		m.TotalMs = float64(nm.Total.Milliseconds())
		m.ConnReused = nm.ConnReused
	}
	log.Submission(m)
	return out, nil
}

func (s *Scheduler) fault(err error) {
	log.Errorf("recognition fault: %v", err)
	s.mu.Lock()
	s.stats.Faults++
	s.stats.LastError = err.Error()
	s.mu.Unlock()
}

func (s *Scheduler) sleepFor(out *recognizer.Outcome) time.Duration {
	if out.RetryHint > 0 {
		return min(s.cfg.SleepInterval, out.RetryHint)
	}
	return s.cfg.SleepInterval
}

func (s *Scheduler) setState(st State) {
	s.mu.Lock()
	changed := s.stats.State != st
	s.stats.State = st
	s.mu.Unlock()
	if changed && s.OnState != nil {
		s.OnState(st)
	}
}

func (s *Scheduler) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stats
}
