package main

import (
	"context"
	"sync"
	"testing"
	"time"

	"earshot/clock"
	"earshot/config"
	"earshot/history"
	"earshot/recognizer"
)

var t0 = time.Date(2024, 5, 1, 21, 30, 0, 0, time.UTC)

func testPipeline(t *testing.T, svc recognizer.Service) (*pipeline, *clock.Fake) {
	t.Helper()
	cfg := config.Default()
	cfg.Recognizer = "fake"
	cfg.WindowSeconds = 0.1
	clk := clock.NewFake(t0)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	p, err := newPipeline(ctx, cfg, svc, clk)
	if err != nil {
		t.Fatal(err)
	}
	return p, clk
}

func song(key string, at time.Time) recognizer.Outcome {
	return recognizer.Outcome{
		CapturedAt: at,
		Track:      &recognizer.Track{Key: key, Title: "Song " + key, Subtitle: "Artist " + key},
	}
}

func TestNewPipelineRejectsUnknownFormat(t *testing.T) {
	cfg := config.Default()
	cfg.Format = "ogg"
	if _, err := newPipeline(context.Background(), cfg, recognizer.NewFake(), nil); err == nil {
		t.Error("expected error for unknown format")
	}
}

func TestAnimatorOptionsFromConfig(t *testing.T) {
	cfg := config.Default()
	cfg.TransitionOut = time.Second
	cfg.TransitionDelay = 0
	cfg.TransitionIn = 2 * time.Second
	cfg.TitleScrollPPS = 10
	cfg.SubtitleScrollPPS = 5

	o := animatorOptions(cfg)
	if o.Out != time.Second || o.Delay != 0 || o.In != 2*time.Second {
		t.Errorf("durations = %v/%v/%v", o.Out, o.Delay, o.In)
	}
	if o.TitlePPS != 10 || o.SubtitlePPS != 5 {
		t.Errorf("pps = %v/%v", o.TitlePPS, o.SubtitlePPS)
	}
	if o.Total() != 3*time.Second {
		t.Errorf("Total = %v", o.Total())
	}
}

func TestReconfigureAppliesAnimation(t *testing.T) {
	p, _ := testPipeline(t, recognizer.NewFake())
	cfg := p.cfg
	cfg.TransitionIn = 3 * time.Second
	p.reconfigure(cfg)
	if got := p.anim.Options().In; got != 3*time.Second {
		t.Errorf("In = %v after reconfigure", got)
	}
}

func TestCaptureFillsWindow(t *testing.T) {
	p, _ := testPipeline(t, recognizer.NewFake())
	cb := p.capture()

	half := p.buf.Cap() / 2
	cb(make([]byte, half*2), uint32(half))
	if p.buf.IsFull() {
		t.Fatal("window full after half of it")
	}
	cb(make([]byte, half*2), uint32(half))
	if !p.buf.IsFull() {
		t.Fatalf("window not full after %d samples", p.buf.Len())
	}
}

func TestPipelineRecordsRecognizedTrack(t *testing.T) {
	p, _ := testPipeline(t, recognizer.NewFake())

	var mu sync.Mutex
	var actions []history.Action
	first := make(chan struct{})
	p.OnChange(func(_ recognizer.Outcome, a history.Action) {
		mu.Lock()
		defer mu.Unlock()
		actions = append(actions, a)
		if len(actions) == 1 {
			close(first)
		}
	})

	n := p.buf.Cap()
	p.capture()(make([]byte, n*2), uint32(n))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		p.sched.Run(ctx)
	}()

	select {
	case <-first:
	case <-time.After(5 * time.Second):
		t.Fatal("no outcome recorded")
	}
	cancel()
	<-done

	mu.Lock()
	defer mu.Unlock()
	if actions[0] != history.Appended {
		t.Errorf("first action = %v, want appended", actions[0])
	}
	for _, a := range actions[1:] {
		if a != history.Unchanged {
			t.Errorf("repeat of the same track gave %v, want unchanged", a)
		}
	}
	if p.hist.Len() != 1 {
		t.Errorf("history has %d entries, want 1", p.hist.Len())
	}
	latest, _ := p.hist.Latest()
	if latest.Key() != "fake-1" {
		t.Errorf("latest key = %q", latest.Key())
	}
}

func TestServeFeed(t *testing.T) {
	p, _ := testPipeline(t, recognizer.NewFake())
	stop, err := p.serveFeed("127.0.0.1:0", false)
	if err != nil {
		t.Fatal(err)
	}
	if p.feed == nil {
		t.Fatal("feed not attached to pipeline")
	}

	p.hist.Record(song("A", t0))
	p.recorded(song("A", t0), history.Appended)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	stop(ctx)
}

func TestDescribeChange(t *testing.T) {
	for _, tt := range []struct {
		out    recognizer.Outcome
		action history.Action
		want   string
	}{
		{song("A", t0), history.Appended, "appended\tSong A\tArtist A\tA"},
		{song("A", t0), history.Collapsed, "collapsed\tSong A\tArtist A\tA"},
		{recognizer.Outcome{CapturedAt: t0}, history.Appended, "appended\tnone"},
	} {
		if got := describeChange(tt.out, tt.action); got != tt.want {
			t.Errorf("describeChange = %q, want %q", got, tt.want)
		}
	}
}
