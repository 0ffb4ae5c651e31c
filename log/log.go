package log

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

const (
	DiagnosticsFile = "diagnostics_log.txt"
	TracksFile      = "tracks_log.txt"
)

var (
	diagLog    zerolog.Logger
	diagFile   *os.File
	tracksFile *os.File
	logMu      sync.Mutex
	logReady   bool
	pid        int
	dir        string
)

type SubmissionMetrics struct {
	ID         string
	Provider   string
	Format     string
	AudioS     float64
	SizeKB     float64
	EncodeMs   float64
	TTFBMs     float64
	TotalMs    float64
	ConnReused bool
	Matched    bool
	RetryMs    int64
}

func ResolveDir(flagPath string) (string, error) {
	if flagPath != "" {
		return absolute(flagPath)
	}
	if envPath := os.Getenv("EARSHOT_LOG_PATH"); envPath != "" {
		return absolute(envPath)
	}
	return getDefaultDir()
}

func absolute(p string) (string, error) {
	if filepath.IsAbs(p) {
		return p, nil
	}
	wd, err := os.Getwd()
	if err != nil {
		return "", err
	}
	return filepath.Join(wd, p), nil
}

func SetDir(d string) {
	dir = d
}

func Dir() string {
	return dir
}

func EnsureDir() error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create log directory: %w", err)
	}
	return nil
}

func Init() error {
	logMu.Lock()
	defer logMu.Unlock()

	if err := EnsureDir(); err != nil {
		return err
	}

	pid = os.Getpid()

	var err error
	diagFile, err = os.OpenFile(filepath.Join(dir, DiagnosticsFile), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}
	tracksFile, err = os.OpenFile(filepath.Join(dir, TracksFile), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		diagFile.Close()
		return err
	}

	diagLog = zerolog.New(zerolog.ConsoleWriter{
		Out:        diagFile,
		TimeFormat: "2006-01-02 15:04:05",
		NoColor:    true,
	}).With().Timestamp().Int("pid", pid).Logger()

	logReady = true
	return nil
}

func Close() {
	logMu.Lock()
	defer logMu.Unlock()
	if diagFile != nil {
		diagFile.Close()
		diagFile = nil
	}
	if tracksFile != nil {
		tracksFile.Close()
		tracksFile = nil
	}
	logReady = false
}

// write runs fn under logMu so no entry lands on a file Close has released.
func write(fn func()) {
	logMu.Lock()
	defer logMu.Unlock()
	if logReady {
		fn()
	}
}

func Info(msg string) {
	write(func() { diagLog.Info().Msg(msg) })
}

func Infof(format string, args ...any) {
	write(func() { diagLog.Info().Msg(fmt.Sprintf(format, args...)) })
}

func Error(msg string) {
	write(func() { diagLog.Error().Msg(msg) })
}

func Errorf(format string, args ...any) {
	write(func() { diagLog.Error().Msg(fmt.Sprintf(format, args...)) })
}

func Warn(msg string) {
	write(func() { diagLog.Warn().Msg(msg) })
}

func Warnf(format string, args ...any) {
	write(func() { diagLog.Warn().Msg(fmt.Sprintf(format, args...)) })
}

func Submission(m SubmissionMetrics) {
	conn := "new"
	if m.ConnReused {
		conn = "reused"
	}
	write(func() {
		ev := diagLog.Info().
			Str("id", m.ID).
			Str("provider", m.Provider).
			Str("format", m.Format).
			Str("conn", conn).
			Float64("audio_s", m.AudioS).
			Float64("size_kb", m.SizeKB).
			Float64("encode_ms", m.EncodeMs).
			Float64("ttfb_ms", m.TTFBMs).
			Float64("total_ms", m.TotalMs).
			Bool("matched", m.Matched)
		if m.RetryMs > 0 {
			ev = ev.Int64("retry_ms", m.RetryMs)
		}
		ev.Msg("submission")
	})
}

// Track appends one line per newly displayed track to the tracks log.
func Track(title, subtitle, key string) {
	write(func() {
		line := fmt.Sprintf("%s\t[%d]\t%s\t%s\t%s\n", time.Now().Format("2006-01-02 15:04:05"), pid, title, subtitle, key)
		tracksFile.WriteString(line)
	})
}

func SessionStart(provider, format, device string) {
	write(func() {
		diagLog.Info().
			Str("provider", provider).
			Str("format", format).
			Str("device", device).
			Msg("session_start")
	})
}

func SessionEnd(submissions, matches, faults int) {
	write(func() {
		diagLog.Info().
			Int("submissions", submissions).
			Int("matches", matches).
			Int("faults", faults).
			Msg("session_end")
	})
}
