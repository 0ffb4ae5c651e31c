package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	_ "net/http/pprof"
	"os"
	"path/filepath"
	"runtime/debug"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"earshot/audio"
	"earshot/config"
	"earshot/doctor"
	"earshot/encoder"
	"earshot/history"
	"earshot/log"
	"earshot/recognizer"
	"earshot/shutdown"
)

var version = "dev"

const joinTimeout = 5 * time.Second

func main() {
	initCrashLog()
	run()
}

// initCrashLog routes fatal runtime errors to crash_log.txt before any cgo
// audio code is loaded. The log directory is only known after flag parsing,
// so this first pass uses the environment and OS default.
func initCrashLog() {
	dir, err := log.ResolveDir("")
	if err != nil {
		return
	}
	log.SetDir(dir)
	if log.EnsureDir() != nil {
		return
	}
	crashFile, err := os.OpenFile(filepath.Join(dir, "crash_log.txt"), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return
	}
	fmt.Fprintf(crashFile, "\n=== Session %s [pid=%d] ===\n", time.Now().Format("2006-01-02 15:04:05"), os.Getpid())
	debug.SetCrashOutput(crashFile, debug.CrashOptions{})
	crashFile.Close()
}

func run() {
	configFlag := flag.String("config", "", "TOML config file (reloaded on change)")
	logPathFlag := flag.String("logpath", "", "log directory path (default: OS-specific location, use ./ for current dir)")
	setupFlag := flag.Bool("setup", false, "Select the capture device interactively")
	deviceFlag := flag.String("device", "", "Use the named capture device")
	formatFlag := flag.String("format", "", "Upload format: wav or flac")
	recognizerFlag := flag.String("recognizer", "", "Recognition backend: shazam, audd or fake")
	endpointFlag := flag.String("endpoint", "", "Recognition service URL")
	windowFlag := flag.Float64("window", 0, "Seconds of audio per submission")
	historyFlag := flag.Int("history", 0, "Number of history entries to keep")
	feedFlag := flag.String("feed", "", "Serve the history over HTTP/websocket on this address (e.g. :8765)")
	advertiseFlag := flag.Bool("advertise", false, "Advertise the feed over mDNS")
	versionFlag := flag.Bool("version", false, "Print version and exit")
	doctorFlag := flag.Bool("doctor", false, "Run system diagnostics and exit")
	testFlag := flag.Bool("test", false, "Headless mode: replay a WAV file and print recognized tracks")
	speedFlag := flag.Float64("speed", 1, "Replay speed for -test (0 = as fast as possible)")
	profileFlag := flag.String("profile", "", "Enable pprof profiling server (e.g., :6060 or localhost:6060)")
	flag.Parse()

	if *versionFlag {
		fmt.Printf("earshot %s\n", version)
		os.Exit(0)
	}

	logPath, err := log.ResolveDir(*logPathFlag)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to resolve log directory: %v\n", err)
		os.Exit(1)
	}
	log.SetDir(logPath)
	if err := log.EnsureDir(); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: could not create log directory: %v\n", err)
	}

	cfg, err := config.Load(*configFlag)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "device":
			cfg.Device = *deviceFlag
		case "format":
			cfg.Format = *formatFlag
		case "recognizer":
			cfg.Recognizer = *recognizerFlag
		case "endpoint":
			cfg.Endpoint = *endpointFlag
		case "window":
			cfg.WindowSeconds = *windowFlag
		case "history":
			cfg.HistorySize = *historyFlag
		case "feed":
			cfg.FeedAddr = *feedFlag
		case "advertise":
			cfg.Advertise = *advertiseFlag
		}
	})
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid configuration:\n%v\n", err)
		os.Exit(1)
	}

	if *profileFlag != "" {
		go func() {
			fmt.Fprintf(os.Stderr, "pprof server listening on http://%s/debug/pprof/\n", *profileFlag)
			if err := http.ListenAndServe(*profileFlag, nil); err != nil {
				fmt.Fprintf(os.Stderr, "pprof server error: %v\n", err)
			}
		}()
	}

	if *doctorFlag {
		os.Exit(doctor.Run(cfg))
	}

	if *testFlag {
		if flag.NArg() != 1 {
			fmt.Fprintln(os.Stderr, "usage: earshot -test <file.wav>")
			os.Exit(2)
		}
		os.Exit(runTestMode(cfg, flag.Arg(0), *speedFlag))
	}

	os.Exit(runLive(cfg, *setupFlag, *configFlag))
}

func newService(cfg config.Config) (recognizer.Service, error) {
	return recognizer.New(recognizer.Options{
		Backend:  cfg.Recognizer,
		Endpoint: cfg.Endpoint,
		APIToken: cfg.APIToken,
		Timeout:  cfg.RequestTimeout,
	})
}

func runLive(cfg config.Config, setup bool, configPath string) int {
	svc, err := newService(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}

	actx, err := audio.NewContext()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error initializing audio: %v\n", err)
		return 1
	}
	defer actx.Close()

	var device *audio.DeviceInfo
	switch {
	case setup:
		device, err = audio.SelectDevice(actx)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			return 1
		}
	case cfg.Device != "":
		d, ok := audio.FindDevice(actx, cfg.Device)
		if !ok {
			fmt.Fprintf(os.Stderr, "Error: capture device %q not found (see -doctor)\n", cfg.Device)
			return 1
		}
		device = d
	}

	if err := log.Init(); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: could not init logging: %v\n", err)
	}
	defer log.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	p, err := newPipeline(ctx, cfg, svc, nil)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}

	capture, err := actx.NewCapture(device, audio.CaptureConfig{
		SampleRate: uint32(cfg.SampleRate),
		Channels:   encoder.Channels,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error opening capture device: %v\n", err)
		return 1
	}
	defer capture.Close()
	capture.SetCallback(p.capture())
	if err := capture.Start(); err != nil {
		fmt.Fprintf(os.Stderr, "Error starting capture: %v\n", err)
		return 1
	}
	defer capture.Stop()

	log.SessionStart(svc.Name(), p.encoder.Format(), capture.DeviceName())

	stopFeed := func(context.Context) {}
	if cfg.FeedAddr != "" {
		stop, err := p.serveFeed(cfg.FeedAddr, cfg.Advertise)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			return 1
		}
		stopFeed = stop
	}

	if configPath != "" {
		go func() {
			if err := config.Watch(ctx, configPath, p.reconfigure); err != nil {
				log.Warnf("config watch: %v", err)
			}
		}()
	}

	schedDone := make(chan struct{})
	go func() {
		defer close(schedDone)
		p.sched.Run(ctx)
	}()

	program := tea.NewProgram(newTUIModel(p, capture.DeviceName()), tea.WithAltScreen())
	p.OnChange(func(recognizer.Outcome, history.Action) { program.Send(historyMsg{}) })

	sigChan := make(chan os.Signal, 1)
	shutdown.Notify(sigChan)
	go func() {
		select {
		case <-sigChan:
			program.Quit()
		case <-ctx.Done():
		}
	}()

	tuiDone := make(chan struct{})
	go func() {
		defer close(tuiDone)
		if _, err := program.Run(); err != nil {
			log.Errorf("tui error: %v", err)
		}
		cancel()
	}()

	<-ctx.Done()
	if !shutdown.Wait(joinTimeout, schedDone, tuiDone) {
		log.Warn("shutdown timed out; abandoning unresponsive workers")
	}

	feedCtx, feedCancel := context.WithTimeout(context.Background(), time.Second)
	stopFeed(feedCtx)
	feedCancel()

	st := p.sched.Stats()
	log.SessionEnd(st.Submissions, st.Matches, st.Faults)
	return 0
}
