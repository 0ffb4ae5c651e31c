package config

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeFile(t *testing.T, path, body string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(body), 0644); err != nil {
		t.Fatal(err)
	}
}

func TestDefault(t *testing.T) {
	c := Default()
	if c.WindowSamples() != 192000 {
		t.Errorf("WindowSamples = %d, want 192000", c.WindowSamples())
	}
	c.Endpoint = "http://localhost:9000/recognize"
	if err := c.Validate(); err != nil {
		t.Errorf("default config with endpoint invalid: %v", err)
	}
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "earshot.toml")
	writeFile(t, path, `
sample_rate = 44100
window_seconds = 8.5
poll_interval = "250ms"
transition_in = "1s"
format = "flac"
recognizer = "audd"
api_token = "secret"
artwork_cache_max = 50
advertise = true
`)
	c, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if c.SampleRate != 44100 || c.WindowSeconds != 8.5 || c.Format != "flac" || c.Recognizer != "audd" {
		t.Errorf("file values not applied: %+v", c)
	}
	if c.PollInterval != 250*time.Millisecond || c.TransitionIn != time.Second {
		t.Errorf("durations = %v %v", c.PollInterval, c.TransitionIn)
	}
	if c.ArtworkCacheMax != 50 || !c.Advertise {
		t.Errorf("artwork_cache_max=%d advertise=%v", c.ArtworkCacheMax, c.Advertise)
	}
	if c.SleepInterval != 5*time.Second {
		t.Errorf("unset key lost its default: %v", c.SleepInterval)
	}
	if err := c.Validate(); err != nil {
		t.Errorf("Validate: %v", err)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.toml")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestEnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "earshot.toml")
	writeFile(t, path, "sample_rate = 44100\nformat = \"flac\"\n")

	t.Setenv("EARSHOT_SAMPLE_RATE", "22050")
	t.Setenv("EARSHOT_SLEEP_INTERVAL", "3s")
	t.Setenv("EARSHOT_ADVERTISE", "yes")
	t.Setenv("EARSHOT_HISTORY_SIZE", "not-a-number")

	c, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if c.SampleRate != 22050 {
		t.Errorf("SampleRate = %d, want env 22050", c.SampleRate)
	}
	if c.Format != "flac" {
		t.Errorf("Format = %q, want file value", c.Format)
	}
	if c.SleepInterval != 3*time.Second || !c.Advertise {
		t.Errorf("SleepInterval=%v Advertise=%v", c.SleepInterval, c.Advertise)
	}
	if c.HistorySize != 5 {
		t.Errorf("bad env value applied: HistorySize = %d", c.HistorySize)
	}
}

func TestValidate(t *testing.T) {
	for _, tt := range []struct {
		name   string
		modify func(*Config)
		want   string
	}{
		{"zero rate", func(c *Config) { c.SampleRate = 0 }, "sample_rate"},
		{"negative window", func(c *Config) { c.WindowSeconds = -1 }, "window_seconds"},
		{"zero penalty", func(c *Config) { c.FailurePenalty = 0 }, "failure_penalty"},
		{"tiny history", func(c *Config) { c.HistorySize = 1 }, "history_size"},
		{"negative transition", func(c *Config) { c.TransitionDelay = -time.Second }, "transition"},
		{"bad format", func(c *Config) { c.Format = "mp3" }, "format"},
		{"bad recognizer", func(c *Config) { c.Recognizer = "acr" }, "recognizer"},
		{"shazam without endpoint", func(c *Config) { c.Endpoint = "" }, "endpoint"},
		{"audd without token", func(c *Config) { c.Recognizer = "audd" }, "api_token"},
		{"negative cache", func(c *Config) { c.ArtworkCacheMax = -1 }, "artwork_cache_max"},
	} {
		t.Run(tt.name, func(t *testing.T) {
			c := Default()
			c.Endpoint = "http://localhost:9000"
			tt.modify(&c)
			err := c.Validate()
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error %q does not mention %q", err, tt.want)
			}
		})
	}

	c := Default()
	c.Recognizer = "fake"
	if err := c.Validate(); err != nil {
		t.Errorf("fake recognizer: %v", err)
	}
}

func TestWatchReloads(t *testing.T) {
	path := filepath.Join(t.TempDir(), "earshot.toml")
	writeFile(t, path, "recognizer = \"fake\"\n")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	got := make(chan Config, 10)
	done := make(chan error, 1)
	go func() { done <- Watch(ctx, path, func(c Config) { got <- c }) }()

	deadline := time.After(5 * time.Second)
	tick := time.NewTicker(100 * time.Millisecond)
	defer tick.Stop()
	for {
		select {
		case c := <-got:
			if c.TransitionIn != 2*time.Second {
				t.Errorf("reloaded TransitionIn = %v, want 2s", c.TransitionIn)
			}
			cancel()
			if err := <-done; err != nil {
				t.Errorf("Watch: %v", err)
			}
			return
		case <-tick.C:
			writeFile(t, path, "recognizer = \"fake\"\ntransition_in = \"2s\"\n")
		case <-deadline:
			t.Fatal("no reload within 5s")
		}
	}
}

func TestWatchSkipsInvalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "earshot.toml")
	writeFile(t, path, "recognizer = \"fake\"\n")

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	calls := 0
	go func() {
		time.Sleep(200 * time.Millisecond)
		os.WriteFile(path, []byte("recognizer = \"fake\"\nsample_rate = -1\n"), 0644)
	}()
	if err := Watch(ctx, path, func(Config) { calls++ }); err != nil {
		t.Fatal(err)
	}
	if calls != 0 {
		t.Errorf("onChange called %d times for an invalid file", calls)
	}
}
