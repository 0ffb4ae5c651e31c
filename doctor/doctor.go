package doctor

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/atotto/clipboard"
	"github.com/google/uuid"

	"earshot/audio"
	"earshot/config"
	"earshot/encoder"
	"earshot/recognizer"
	"earshot/ringbuf"
	"earshot/shutdown"
)

const levelSeconds = 3

// Run executes the diagnostic checks and returns an exit code (0=all pass, 1=any fail).
func Run(cfg config.Config) int {
	resetTerminal()
	setupInterruptHandler()

	fmt.Println("earshot doctor - system diagnostics")
	fmt.Println("===================================")

	actx, err := audio.NewContext()
	if err != nil {
		fmt.Printf("\n  FAIL: cannot connect to audio: %v\n", err)
		return 1
	}
	defer actx.Close()

	allPass := true
	device, ok := checkDevices(actx, cfg.Device)
	if !ok {
		allPass = false
	}
	if allPass && !checkLevel(actx, device, cfg) {
		allPass = false
	}
	if allPass && !checkRecognition(actx, device, cfg) {
		allPass = false
	}
	if !checkClipboard() {
		allPass = false
	}

	fmt.Println()
	if allPass {
		fmt.Println("All checks passed!")
		return 0
	}
	fmt.Println("Some checks failed. See details above.")
	return 1
}

func setupInterruptHandler() {
	sigChan := make(chan os.Signal, 1)
	shutdown.Notify(sigChan)
	go func() {
		<-sigChan
		resetTerminal()
		println("\nInterrupted")
		os.Exit(1)
	}()
}

func checkDevices(actx audio.Context, want string) (*audio.DeviceInfo, bool) {
	fmt.Println()
	fmt.Println("[1/4] Capture devices")

	devices, err := actx.Devices()
	if err != nil {
		fmt.Printf("  FAIL: cannot list devices: %v\n", err)
		return nil, false
	}
	if len(devices) == 0 {
		fmt.Println("  FAIL: no capture devices found")
		return nil, false
	}
	for _, d := range devices {
		note := ""
		switch {
		case d.Monitor:
			note = "  (system output)"
		case audio.IsBluetooth(d.Name):
			note = "  (headset mic, poor for music)"
		}
		fmt.Printf("  - %s%s\n", d.Name, note)
	}

	if want == "" {
		fmt.Println("  PASS: using the system default input")
		return nil, true
	}
	d, ok := audio.FindDevice(actx, want)
	if !ok {
		fmt.Printf("  FAIL: configured device %q not found\n", want)
		return nil, false
	}
	fmt.Printf("  PASS: using %s\n", d.Name)
	return d, true
}

func checkLevel(actx audio.Context, device *audio.DeviceInfo, cfg config.Config) bool {
	fmt.Println()
	fmt.Println("[2/4] Input level")
	fmt.Printf("  Play some music near the input for %d seconds", levelSeconds)

	samples, peak, err := record(actx, device, cfg, levelSeconds*time.Second)
	if err != nil {
		fmt.Printf("\n  FAIL: recording error: %v\n", err)
		return false
	}
	if len(samples) == 0 {
		fmt.Println("  FAIL: no audio captured")
		return false
	}
	fmt.Printf("  Peak level %.3f\n", peak)
	if peak < audio.DefaultSignalGate {
		fmt.Println("  FAIL: input is silent; check the device and its volume")
		return false
	}
	fmt.Println("  PASS: signal present")
	return true
}

func checkRecognition(actx audio.Context, device *audio.DeviceInfo, cfg config.Config) bool {
	fmt.Println()
	fmt.Printf("[3/4] Recognition (%s)\n", cfg.Recognizer)

	svc, err := recognizer.New(recognizer.Options{
		Backend:  cfg.Recognizer,
		Endpoint: cfg.Endpoint,
		APIToken: cfg.APIToken,
		Timeout:  cfg.RequestTimeout,
	})
	if err != nil {
		fmt.Printf("  FAIL: %v\n", err)
		return false
	}
	enc, err := encoder.New(cfg.Format)
	if err != nil {
		fmt.Printf("  FAIL: %v\n", err)
		return false
	}

	window := time.Duration(cfg.WindowSeconds * float64(time.Second))
	fmt.Printf("  Capturing a %v window", window)
	samples, _, err := record(actx, device, cfg, window)
	if err != nil {
		fmt.Printf("\n  FAIL: recording error: %v\n", err)
		return false
	}
	data, err := enc.Encode(samples, cfg.SampleRate)
	if err != nil {
		fmt.Printf("  FAIL: encode: %v\n", err)
		return false
	}

	fmt.Printf("  Submitting %.1f KB of %s...\n", float64(len(data))/1024, enc.Format())
	out, err := svc.Recognize(context.Background(), recognizer.Request{
		ID:          uuid.NewString(),
		Audio:       data,
		Format:      enc.Format(),
		ContentType: enc.ContentType(),
		SampleRate:  cfg.SampleRate,
	})
	if err != nil {
		fmt.Printf("  FAIL: %v\n", err)
		return false
	}
	if m := out.Metrics; m != nil {
		fmt.Printf("  Round trip %v (ttfb %v)\n", m.Total.Round(time.Millisecond), m.TTFB.Round(time.Millisecond))
	}
	if out.Track == nil {
		fmt.Println("  PASS: service reachable, nothing recognized")
		return true
	}
	fmt.Printf("  PASS: recognized %q by %q\n", out.Track.Title, out.Track.Subtitle)
	return true
}

// record captures d of audio and returns it with the peak chunk level.
func record(actx audio.Context, device *audio.DeviceInfo, cfg config.Config, d time.Duration) ([]int16, float64, error) {
	dev, err := actx.NewCapture(device, audio.CaptureConfig{
		SampleRate: uint32(cfg.SampleRate),
		Channels:   encoder.Channels,
	})
	if err != nil {
		return nil, 0, err
	}
	defer dev.Close()

	buf := ringbuf.New(int(d.Seconds() * float64(cfg.SampleRate)))
	var meter audio.Meter
	dev.SetCallback(audio.Tee(meter.Observe, buf.WritePCM))
	if err := dev.Start(); err != nil {
		return nil, 0, err
	}

	ticker := time.NewTicker(500 * time.Millisecond)
	deadline := time.After(d)
loop:
	for {
		select {
		case <-ticker.C:
			fmt.Print(".")
		case <-deadline:
			break loop
		}
	}
	ticker.Stop()
	dev.Stop()
	dev.ClearCallback()
	fmt.Println(" done")

	return buf.Snapshot(), meter.Take(), nil
}

func checkClipboard() bool {
	fmt.Println()
	fmt.Println("[4/4] Clipboard")

	if clipboard.Unsupported {
		fmt.Println("  FAIL: no clipboard utility found (install xclip, xsel or wl-clipboard)")
		return false
	}
	prev, _ := clipboard.ReadAll()
	defer clipboard.WriteAll(prev)

	sentinel := "earshot-doctor-" + uuid.NewString()[:8]
	if err := clipboard.WriteAll(sentinel); err != nil {
		fmt.Printf("  FAIL: copy failed: %v\n", err)
		return false
	}
	got, err := clipboard.ReadAll()
	if err != nil {
		fmt.Printf("  FAIL: read back failed: %v\n", err)
		return false
	}
	if got != sentinel {
		fmt.Printf("  FAIL: clipboard returned %q, want %q\n", got, sentinel)
		return false
	}
	fmt.Println("  PASS: copy and read back")
	return true
}
