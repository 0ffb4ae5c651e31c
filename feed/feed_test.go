package feed

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"earshot/history"
	"earshot/recognizer"
)

var t0 = time.Date(2024, 5, 1, 20, 0, 0, 0, time.UTC)

func song(key string, at time.Time) recognizer.Outcome {
	return recognizer.Outcome{CapturedAt: at, Track: &recognizer.Track{
		Key:           key,
		Title:         "title " + key,
		Subtitle:      "artist " + key,
		InitialOffset: 12.5,
		Sections: []recognizer.Section{{
			Kind:  recognizer.SectionSong,
			Pages: []recognizer.MetaPage{{Caption: "title " + key, ImageURL: "http://img/" + key}},
		}},
	}}
}

func dial(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readSnapshot(t *testing.T, conn *websocket.Conn) Snapshot {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	var snap Snapshot
	if err := conn.ReadJSON(&snap); err != nil {
		t.Fatalf("read: %v", err)
	}
	return snap
}

func TestNow(t *testing.T) {
	h := history.New(5)
	h.Record(song("A", t0))
	h.Record(recognizer.Outcome{CapturedAt: t0.Add(10 * time.Second)})

	srv := httptest.NewServer(New(h).Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/now")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if ct := resp.Header.Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q", ct)
	}
	var snap Snapshot
	if err := json.NewDecoder(resp.Body).Decode(&snap); err != nil {
		t.Fatal(err)
	}
	if len(snap.Entries) != 2 {
		t.Fatalf("entries = %d, want 2", len(snap.Entries))
	}
	a := snap.Entries[0]
	if !a.Recognized || a.Key != "A" || a.Title != "title A" || a.Artwork != "http://img/A" || a.InitialOffset != 12.5 {
		t.Errorf("entry A = %+v", a)
	}
	if snap.Entries[1].Recognized || snap.Entries[1].Key != "" {
		t.Errorf("unrecognized entry = %+v", snap.Entries[1])
	}
	if snap.Version != h.Version() {
		t.Errorf("version = %d, want %d", snap.Version, h.Version())
	}
}

func TestWebSocketPushesChanges(t *testing.T) {
	h := history.New(5)
	s := New(h)
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	conn := dial(t, srv)
	if first := readSnapshot(t, conn); len(first.Entries) != 0 {
		t.Fatalf("initial snapshot has %d entries", len(first.Entries))
	}

	h.Record(song("A", t0))
	s.Publish()
	snap := readSnapshot(t, conn)
	if len(snap.Entries) != 1 || snap.Entries[0].Key != "A" {
		t.Fatalf("pushed snapshot = %+v", snap)
	}

	// Unchanged history publishes nothing; the next message is B.
	h.Record(song("A", t0.Add(5*time.Second)))
	s.Publish()
	h.Record(song("B", t0.Add(10*time.Second)))
	s.Publish()
	snap = readSnapshot(t, conn)
	if len(snap.Entries) != 2 || snap.Entries[1].Key != "B" {
		t.Fatalf("pushed snapshot = %+v", snap)
	}
}

func TestShutdownDisconnectsClients(t *testing.T) {
	h := history.New(5)
	s := New(h)
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	conn := dial(t, srv)
	readSnapshot(t, conn)

	deadline := time.Now().Add(5 * time.Second)
	for s.Clients() != 1 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if s.Clients() != 1 {
		t.Fatalf("clients = %d, want 1", s.Clients())
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
	if s.Clients() != 0 {
		t.Errorf("clients after shutdown = %d", s.Clients())
	}
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	if _, _, err := conn.ReadMessage(); err == nil {
		t.Error("connection still open after shutdown")
	}
}

func TestStart(t *testing.T) {
	s := New(history.New(5))
	addr, err := s.Start("127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	defer s.Shutdown(context.Background())

	resp, err := http.Get("http://" + addr.String() + "/now")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d", resp.StatusCode)
	}
}
