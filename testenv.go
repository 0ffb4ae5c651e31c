package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"earshot/audio"
	"earshot/config"
	"earshot/encoder"
	"earshot/history"
	"earshot/log"
	"earshot/recognizer"
	"earshot/shutdown"
)

// runTestMode replays wavPath through the full pipeline without a terminal
// UI. History changes are printed to stdout, one per line. Stdin drives the
// session:
//
//	WAIT_AUDIO_DONE  block until the whole file has been captured
//	WAIT_CHANGE      block until the next history change
//	SLEEP <ms>       pause the driver
//	QUIT             stop and exit (also on EOF)
func runTestMode(cfg config.Config, wavPath string, speed float64) int {
	if err := log.Init(); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: could not init logging: %v\n", err)
	}
	defer log.Close()

	svc, err := newService(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}

	fakeCtx, err := audio.NewFakeContext(wavPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading WAV: %v\n", err)
		return 1
	}
	fakeCtx.Speed = speed

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	p, err := newPipeline(ctx, cfg, svc, nil)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}

	capture, err := fakeCtx.NewCapture(nil, audio.CaptureConfig{
		SampleRate: uint32(cfg.SampleRate),
		Channels:   encoder.Channels,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error creating capture: %v\n", err)
		return 1
	}
	defer capture.Close()
	fakeCapture := capture.(*audio.FakeCapture)

	log.SessionStart(svc.Name(), p.encoder.Format(), capture.DeviceName())

	changes := make(chan struct{}, 16)
	p.OnChange(func(out recognizer.Outcome, action history.Action) {
		if action == history.Unchanged {
			return
		}
		fmt.Println(describeChange(out, action))
		select {
		case changes <- struct{}{}:
		default:
		}
	})

	capture.SetCallback(p.capture())
	if err := capture.Start(); err != nil {
		fmt.Fprintf(os.Stderr, "Error starting capture: %v\n", err)
		return 1
	}
	defer capture.Stop()

	schedDone := make(chan struct{})
	go func() {
		defer close(schedDone)
		p.sched.Run(ctx)
	}()

	drive(os.Stdin, fakeCapture.FileDone(), changes)

	cancel()
	if !shutdown.Wait(joinTimeout, schedDone) {
		log.Warn("scheduler did not stop in time")
	}
	st := p.sched.Stats()
	log.SessionEnd(st.Submissions, st.Matches, st.Faults)
	fmt.Printf("done\tsubmissions=%d\tmatches=%d\tfaults=%d\n", st.Submissions, st.Matches, st.Faults)
	return 0
}

// describeChange formats one history change for stdout.
func describeChange(out recognizer.Outcome, action history.Action) string {
	if out.Track == nil {
		return fmt.Sprintf("%s\tnone", action)
	}
	return fmt.Sprintf("%s\t%s\t%s\t%s", action, out.Track.Title, out.Track.Subtitle, out.Track.Key)
}

// drive runs stdin commands until QUIT or EOF.
func drive(r io.Reader, audioDone <-chan struct{}, changes <-chan struct{}) {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		cmd := strings.TrimSpace(scanner.Text())
		switch {
		case cmd == "WAIT_AUDIO_DONE":
			<-audioDone
		case cmd == "WAIT_CHANGE":
			<-changes
		case cmd == "QUIT":
			return
		case strings.HasPrefix(cmd, "SLEEP "):
			if ms, err := strconv.Atoi(cmd[6:]); err == nil {
				time.Sleep(time.Duration(ms) * time.Millisecond)
			}
		case cmd == "":
		default:
			log.Warnf("test mode: unknown command %q", cmd)
		}
	}
}
