package log

import (
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
)

func setupLogDir(t *testing.T) string {
	t.Helper()
	tmp := t.TempDir()
	SetDir(tmp)
	t.Cleanup(func() { Close(); SetDir("") })
	return tmp
}

func TestResolveDir(t *testing.T) {
	wd, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	for _, tt := range []struct {
		name string
		flag string
		env  string
		want string
	}{
		{"flag absolute", "/tmp/mylog", "", "/tmp/mylog"},
		{"flag relative", "logs", "", filepath.Join(wd, "logs")},
		{"flag beats env", "/tmp/flag", "/tmp/env", "/tmp/flag"},
		{"env absolute", "", "/tmp/earshot-env-log", "/tmp/earshot-env-log"},
		{"env relative", "", "envlogs", filepath.Join(wd, "envlogs")},
	} {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("EARSHOT_LOG_PATH", tt.env)
			got, err := ResolveDir(tt.flag)
			if err != nil {
				t.Fatal(err)
			}
			if got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestResolveDirDefault(t *testing.T) {
	t.Setenv("EARSHOT_LOG_PATH", "")
	got, err := ResolveDir("")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(got, "earshot") {
		t.Errorf("default dir %q does not mention earshot", got)
	}
}

func TestInitCreatesFiles(t *testing.T) {
	tmp := setupLogDir(t)

	if err := Init(); err != nil {
		t.Fatal(err)
	}

	for _, name := range []string{DiagnosticsFile, TracksFile} {
		if _, err := os.Stat(filepath.Join(tmp, name)); err != nil {
			t.Errorf("%s not created: %v", name, err)
		}
	}
}

func TestTrack(t *testing.T) {
	tmp := setupLogDir(t)

	if err := Init(); err != nil {
		t.Fatal(err)
	}

	Track("Song Title", "Some Artist", "k-42")

	data, err := os.ReadFile(filepath.Join(tmp, TracksFile))
	if err != nil {
		t.Fatal(err)
	}
	line := strings.TrimSuffix(string(data), "\n")
	fields := strings.Split(line, "\t")
	if len(fields) != 5 {
		t.Fatalf("expected 5 tab-separated fields, got %q", line)
	}
	if fields[2] != "Song Title" || fields[3] != "Some Artist" || fields[4] != "k-42" {
		t.Errorf("unexpected fields: %q", fields)
	}
}

func TestSubmissionWritesDiagnostics(t *testing.T) {
	tmp := setupLogDir(t)

	if err := Init(); err != nil {
		t.Fatal(err)
	}

	Submission(SubmissionMetrics{ID: "req-1", Provider: "fake", Format: "wav", AudioS: 12, Matched: true, RetryMs: 3000})
	Close()

	data, err := os.ReadFile(filepath.Join(tmp, DiagnosticsFile))
	if err != nil {
		t.Fatal(err)
	}
	out := string(data)
	for _, want := range []string{"submission", "id=req-1", "provider=fake", "matched=true", "retry_ms=3000"} {
		if !strings.Contains(out, want) {
			t.Errorf("diagnostics missing %q in %q", want, out)
		}
	}
}

func TestNoopBeforeInit(t *testing.T) {
	Close()
	Info("ignored")
	Track("a", "b", "c")
	Submission(SubmissionMetrics{})
}

func TestCloseIdempotent(t *testing.T) {
	setupLogDir(t)

	if err := Init(); err != nil {
		t.Fatal(err)
	}
	Close()
	Close()
}

func TestWritesRacingClose(t *testing.T) {
	setupLogDir(t)
	if err := Init(); err != nil {
		t.Fatal(err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 200; j++ {
				Track("t", "s", "k")
				Submission(SubmissionMetrics{ID: "r"})
				Warnf("n=%d", j)
			}
		}()
	}
	Close()
	wg.Wait()

	Info("after close")
	Track("a", "b", "c")
}
