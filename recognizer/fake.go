package recognizer

import (
	"context"
	"sync"
)

// Step is one scripted answer of a Fake service.
type Step struct {
	Track     *Track
	RetryHint int64 // milliseconds
	Err       error
}

type Fake struct {
	mu       sync.Mutex
	script   []Step
	requests []Request
}

// NewFake returns a service that always recognizes the same demo track.
func NewFake() *Fake {
	return NewScripted(Step{Track: &Track{
		Key:      "fake-1",
		Title:    "Test Pattern",
		Subtitle: "earshot",
	}})
}

// NewScripted answers with each step in turn and then repeats the last one.
func NewScripted(steps ...Step) *Fake {
	return &Fake{script: steps}
}

func (f *Fake) Name() string { return "fake" }

func (f *Fake) Recognize(_ context.Context, r Request) (*Outcome, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	i := len(f.requests)
	f.requests = append(f.requests, r)
	if len(f.script) == 0 {
		return &Outcome{}, nil
	}
	step := f.script[min(i, len(f.script)-1)]
	if step.Err != nil {
		return nil, callErr("fake: %v", step.Err)
	}
	out := &Outcome{Track: step.Track}
	if step.RetryHint > 0 {
		out.RetryHint = msDuration(step.RetryHint)
	}
	return out, nil
}

func (f *Fake) Requests() []Request {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]Request, len(f.requests))
	copy(out, f.requests)
	return out
}
