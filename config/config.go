// Package config loads settings from defaults, an optional TOML file and
// EARSHOT_* environment variables, in that order.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"earshot/log"
)

type Config struct {
	SampleRate     int           `toml:"sample_rate"`
	WindowSeconds  float64       `toml:"window_seconds"`
	PollInterval   time.Duration `toml:"poll_interval"`
	FailurePenalty time.Duration `toml:"failure_penalty"`
	SleepInterval  time.Duration `toml:"sleep_interval"`
	HistorySize    int           `toml:"history_size"`

	TransitionOut     time.Duration `toml:"transition_out"`
	TransitionDelay   time.Duration `toml:"transition_delay"`
	TransitionIn      time.Duration `toml:"transition_in"`
	TitleScrollPPS    float64       `toml:"title_scroll_pps"`
	SubtitleScrollPPS float64       `toml:"subtitle_scroll_pps"`

	Format         string        `toml:"format"`
	Recognizer     string        `toml:"recognizer"`
	Endpoint       string        `toml:"endpoint"`
	APIToken       string        `toml:"api_token"`
	RequestTimeout time.Duration `toml:"request_timeout"`

	ArtworkCacheMax int    `toml:"artwork_cache_max"`
	Device          string `toml:"device"`
	FeedAddr        string `toml:"feed_addr"`
	Advertise       bool   `toml:"advertise"`
}

func Default() Config {
	return Config{
		SampleRate:        16000,
		WindowSeconds:     12,
		PollInterval:      500 * time.Millisecond,
		FailurePenalty:    10 * time.Second,
		SleepInterval:     5 * time.Second,
		HistorySize:       5,
		TransitionOut:     500 * time.Millisecond,
		TransitionDelay:   200 * time.Millisecond,
		TransitionIn:      500 * time.Millisecond,
		TitleScrollPPS:    50,
		SubtitleScrollPPS: 30,
		Format:            "wav",
		Recognizer:        "shazam",
		RequestTimeout:    20 * time.Second,
	}
}

// WindowSamples is the ring buffer capacity.
func (c Config) WindowSamples() int {
	return int(float64(c.SampleRate) * c.WindowSeconds)
}

// Load returns the defaults overlaid with path (if non-empty) and the
// environment. The result is not validated; callers apply flags first.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		md, err := toml.DecodeFile(path, &cfg)
		if err != nil {
			return cfg, fmt.Errorf("reading config %s: %w", path, err)
		}
		for _, k := range md.Undecoded() {
			log.Warnf("config: unknown key %q in %s", k.String(), path)
		}
	}
	applyEnv(&cfg)
	return cfg, nil
}

func applyEnv(c *Config) {
	c.SampleRate = envInt("EARSHOT_SAMPLE_RATE", c.SampleRate)
	c.WindowSeconds = envFloat("EARSHOT_WINDOW_SECONDS", c.WindowSeconds)
	c.PollInterval = envDuration("EARSHOT_POLL_INTERVAL", c.PollInterval)
	c.FailurePenalty = envDuration("EARSHOT_FAILURE_PENALTY", c.FailurePenalty)
	c.SleepInterval = envDuration("EARSHOT_SLEEP_INTERVAL", c.SleepInterval)
	c.HistorySize = envInt("EARSHOT_HISTORY_SIZE", c.HistorySize)
	c.TransitionOut = envDuration("EARSHOT_TRANSITION_OUT", c.TransitionOut)
	c.TransitionDelay = envDuration("EARSHOT_TRANSITION_DELAY", c.TransitionDelay)
	c.TransitionIn = envDuration("EARSHOT_TRANSITION_IN", c.TransitionIn)
	c.TitleScrollPPS = envFloat("EARSHOT_TITLE_SCROLL_PPS", c.TitleScrollPPS)
	c.SubtitleScrollPPS = envFloat("EARSHOT_SUBTITLE_SCROLL_PPS", c.SubtitleScrollPPS)
	c.Format = envStr("EARSHOT_FORMAT", c.Format)
	c.Recognizer = envStr("EARSHOT_RECOGNIZER", c.Recognizer)
	c.Endpoint = envStr("EARSHOT_ENDPOINT", c.Endpoint)
	c.APIToken = envStr("EARSHOT_API_TOKEN", c.APIToken)
	c.RequestTimeout = envDuration("EARSHOT_REQUEST_TIMEOUT", c.RequestTimeout)
	c.ArtworkCacheMax = envInt("EARSHOT_ARTWORK_CACHE_MAX", c.ArtworkCacheMax)
	c.Device = envStr("EARSHOT_DEVICE", c.Device)
	c.FeedAddr = envStr("EARSHOT_FEED_ADDR", c.FeedAddr)
	c.Advertise = envBool("EARSHOT_ADVERTISE", c.Advertise)
}

func (c Config) Validate() error {
	var errs []error
	check := func(ok bool, format string, args ...any) {
		if !ok {
			errs = append(errs, fmt.Errorf(format, args...))
		}
	}
	check(c.SampleRate > 0, "sample_rate must be positive, got %d", c.SampleRate)
	check(c.WindowSeconds > 0, "window_seconds must be positive, got %v", c.WindowSeconds)
	check(c.PollInterval > 0, "poll_interval must be positive, got %v", c.PollInterval)
	check(c.FailurePenalty > 0, "failure_penalty must be positive, got %v", c.FailurePenalty)
	check(c.SleepInterval > 0, "sleep_interval must be positive, got %v", c.SleepInterval)
	check(c.HistorySize >= 2, "history_size must be at least 2, got %d", c.HistorySize)
	check(c.TransitionOut >= 0 && c.TransitionDelay >= 0 && c.TransitionIn >= 0,
		"transition durations must not be negative")
	check(c.TitleScrollPPS >= 0 && c.SubtitleScrollPPS >= 0, "scroll rates must not be negative")
	check(c.RequestTimeout > 0, "request_timeout must be positive, got %v", c.RequestTimeout)
	check(c.ArtworkCacheMax >= 0, "artwork_cache_max must not be negative, got %d", c.ArtworkCacheMax)

	switch c.Format {
	case "wav", "flac":
	default:
		errs = append(errs, fmt.Errorf("unknown format %q (want wav or flac)", c.Format))
	}
	switch c.Recognizer {
	case "shazam":
		check(c.Endpoint != "", "recognizer shazam needs an endpoint")
	case "audd":
		check(c.APIToken != "", "recognizer audd needs an api_token")
	case "fake":
	default:
		errs = append(errs, fmt.Errorf("unknown recognizer %q (want shazam, audd or fake)", c.Recognizer))
	}
	return errors.Join(errs...)
}

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
		log.Warnf("config: ignoring %s=%q", key, v)
	}
	return fallback
}

func envFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
		log.Warnf("config: ignoring %s=%q", key, v)
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
		log.Warnf("config: ignoring %s=%q", key, v)
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		switch strings.ToLower(v) {
		case "1", "true", "yes", "on":
			return true
		case "0", "false", "no", "off":
			return false
		}
		log.Warnf("config: ignoring %s=%q", key, v)
	}
	return fallback
}
