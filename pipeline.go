package main

import (
	"context"
	"fmt"
	"net"
	"sync"

	"earshot/animator"
	"earshot/artwork"
	"earshot/audio"
	"earshot/clock"
	"earshot/config"
	"earshot/encoder"
	"earshot/feed"
	"earshot/history"
	"earshot/log"
	"earshot/recognizer"
	"earshot/ringbuf"
	"earshot/scheduler"
)

// Artwork is drawn with half-block characters, two pixels per cell row.
const (
	artCols    = 12
	artRows    = 6
	artPixelsH = artRows * 2
)

// pipeline owns every stage between the capture callback and the renderer.
// Nothing here is global; the TUI and headless mode each build their own.
type pipeline struct {
	cfg     config.Config
	buf     *ringbuf.Buffer
	meter   audio.Meter
	hist    *history.History
	sched   *scheduler.Scheduler
	anim    *animator.Animator
	art     *artwork.Cache
	service recognizer.Service
	encoder encoder.Encoder
	clock   clock.Clock

	mu       sync.Mutex
	feed     *feed.Server
	onChange func(recognizer.Outcome, history.Action)
}

func newPipeline(ctx context.Context, cfg config.Config, svc recognizer.Service, clk clock.Clock) (*pipeline, error) {
	enc, err := encoder.New(cfg.Format)
	if err != nil {
		return nil, err
	}
	if clk == nil {
		clk = clock.Real{}
	}

	p := &pipeline{
		cfg:     cfg,
		buf:     ringbuf.New(cfg.WindowSamples()),
		hist:    history.New(cfg.HistorySize),
		anim:    animator.New(animatorOptions(cfg), clk),
		art:     artwork.NewCache(ctx, artwork.NewHTTPFetcher(cfg.RequestTimeout, artPixelsH), cfg.ArtworkCacheMax),
		service: svc,
		encoder: enc,
		clock:   clk,
	}
	p.sched = scheduler.New(schedulerConfig(cfg), p.buf, enc, svc, p.hist, clk)
	p.sched.OnRecord = p.recorded
	return p, nil
}

func schedulerConfig(cfg config.Config) scheduler.Config {
	return scheduler.Config{
		SampleRate:     cfg.SampleRate,
		PollInterval:   cfg.PollInterval,
		FailurePenalty: cfg.FailurePenalty,
		SleepInterval:  cfg.SleepInterval,
	}
}

func animatorOptions(cfg config.Config) animator.Options {
	o := animator.DefaultOptions()
	o.Out = cfg.TransitionOut
	o.Delay = cfg.TransitionDelay
	o.In = cfg.TransitionIn
	o.TitlePPS = cfg.TitleScrollPPS
	o.SubtitlePPS = cfg.SubtitleScrollPPS
	return o
}

// capture is the device callback: it fills the window and the level meter.
func (p *pipeline) capture() audio.DataCallback {
	return audio.Tee(p.buf.WritePCM, p.meter.Observe)
}

// OnChange registers a listener for every recorded outcome.
func (p *pipeline) OnChange(fn func(recognizer.Outcome, history.Action)) {
	p.mu.Lock()
	p.onChange = fn
	p.mu.Unlock()
}

func (p *pipeline) recorded(out recognizer.Outcome, action history.Action) {
	if action == history.Appended && out.Track != nil {
		log.Track(out.Track.Title, out.Track.Subtitle, out.Track.Key)
	}

	p.mu.Lock()
	fd, fn := p.feed, p.onChange
	p.mu.Unlock()

	if fd != nil && action != history.Unchanged {
		fd.Publish()
	}
	if fn != nil {
		fn(out, action)
	}
}

// serveFeed starts the HTTP/websocket feed and, if asked, advertises it
// over mDNS. The returned function stops both.
func (p *pipeline) serveFeed(addr string, advertise bool) (func(context.Context), error) {
	srv := feed.New(p.hist)
	bound, err := srv.Start(addr)
	if err != nil {
		return nil, fmt.Errorf("feed: %w", err)
	}
	p.mu.Lock()
	p.feed = srv
	p.mu.Unlock()
	log.Infof("feed listening on %s", bound)

	withdraw := func() {}
	if advertise {
		if tcp, ok := bound.(*net.TCPAddr); ok {
			if stop, err := feed.Advertise(tcp.Port); err != nil {
				log.Warnf("mdns advertise failed: %v", err)
			} else {
				withdraw = stop
			}
		}
	}

	return func(ctx context.Context) {
		withdraw()
		if err := srv.Shutdown(ctx); err != nil {
			log.Warnf("feed shutdown: %v", err)
		}
	}, nil
}

// reconfigure applies the live-reloadable subset of cfg.
func (p *pipeline) reconfigure(cfg config.Config) {
	p.anim.SetOptions(animatorOptions(cfg))
	log.Info("config reloaded")
}
