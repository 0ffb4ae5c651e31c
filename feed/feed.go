// Package feed serves the playback history over HTTP and pushes changes to
// websocket subscribers.
package feed

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"earshot/history"
	"earshot/log"
)

const (
	writeDeadline = 10 * time.Second
	pingInterval  = 30 * time.Second
	sendBuffer    = 8
)

// Source is the read side of the history.
type Source interface {
	Entries() []history.Entry
	Version() uint64
}

type Entry struct {
	ObservedAt    time.Time `json:"observed_at"`
	Recognized    bool      `json:"recognized"`
	Key           string    `json:"key,omitempty"`
	Title         string    `json:"title,omitempty"`
	Subtitle      string    `json:"subtitle,omitempty"`
	Artwork       string    `json:"artwork,omitempty"`
	InitialOffset float64   `json:"initial_offset,omitempty"`
}

type Snapshot struct {
	Version uint64  `json:"version"`
	Entries []Entry `json:"entries"`
}

func snapshotOf(src Source) Snapshot {
	es := src.Entries()
	snap := Snapshot{Version: src.Version(), Entries: make([]Entry, 0, len(es))}
	for _, e := range es {
		out := Entry{ObservedAt: e.ObservedAt}
		if t := e.Track(); t != nil {
			out.Recognized = true
			out.Key = t.Key
			out.Title = t.Title
			out.Subtitle = t.Subtitle
			out.InitialOffset = t.InitialOffset
			out.Artwork, _ = t.ArtworkURL()
		}
		snap.Entries = append(snap.Entries, out)
	}
	return snap
}

type client struct {
	id   string
	conn *websocket.Conn
	send chan []byte
}

type Server struct {
	src      Source
	mux      *http.ServeMux
	upgrader websocket.Upgrader
	http     *http.Server

	mu          sync.Mutex
	clients     map[string]*client
	lastVersion uint64
	closed      bool
	wg          sync.WaitGroup
}

func New(src Source) *Server {
	s := &Server{
		src: src,
		mux: http.NewServeMux(),
		upgrader: websocket.Upgrader{
			// Local network only; any origin may subscribe.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		clients: make(map[string]*client),
	}
	s.mux.HandleFunc("/now", s.handleNow)
	s.mux.HandleFunc("/ws", s.handleWebSocket)
	return s
}

func (s *Server) Handler() http.Handler { return s.mux }

// Start listens on addr and serves in the background. It returns the bound
// address so ":0" can be used.
func (s *Server) Start(addr string) (net.Addr, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	s.http = &http.Server{Handler: s.mux, ReadHeaderTimeout: 10 * time.Second}
	go func() {
		if err := s.http.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Errorf("feed server: %v", err)
		}
	}()
	log.Infof("feed listening on %s", ln.Addr())
	return ln.Addr(), nil
}

func (s *Server) handleNow(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(snapshotOf(s.src)); err != nil {
		log.Warnf("feed /now: %v", err)
	}
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warnf("feed upgrade: %v", err)
		return
	}

	data, err := json.Marshal(snapshotOf(s.src))
	if err != nil {
		conn.Close()
		return
	}
	c := &client{id: uuid.NewString(), conn: conn, send: make(chan []byte, sendBuffer)}
	c.send <- data

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		conn.Close()
		return
	}
	s.clients[c.id] = c
	s.wg.Add(2)
	s.mu.Unlock()
	log.Infof("feed client %s connected from %s", c.id, r.RemoteAddr)

	go s.writer(c)
	go s.reader(c)
}

// reader drains incoming frames so close and pong messages are processed.
func (s *Server) reader(c *client) {
	defer s.wg.Done()
	defer s.drop(c)
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (s *Server) writer(c *client) {
	defer s.wg.Done()
	defer c.conn.Close()

	ping := time.NewTicker(pingInterval)
	defer ping.Stop()

	for {
		select {
		case msg, ok := <-c.send:
			if !ok {
				c.conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, ""), time.Now().Add(time.Second))
				return
			}
			c.conn.SetWriteDeadline(time.Now().Add(writeDeadline))
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				log.Warnf("feed client %s: %v", c.id, err)
				return
			}
		case <-ping.C:
			if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeDeadline)); err != nil {
				return
			}
		}
	}
}

func (s *Server) drop(c *client) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.clients[c.id]; ok {
		delete(s.clients, c.id)
		close(c.send)
		log.Infof("feed client %s disconnected", c.id)
	}
}

// Publish sends the current history to every subscriber if it changed since
// the last call. Slow subscribers miss updates rather than block the caller.
func (s *Server) Publish() {
	snap := snapshotOf(s.src)

	s.mu.Lock()
	defer s.mu.Unlock()
	if snap.Version == s.lastVersion {
		return
	}
	s.lastVersion = snap.Version

	data, err := json.Marshal(snap)
	if err != nil {
		log.Warnf("feed publish: %v", err)
		return
	}
	for _, c := range s.clients {
		select {
		case c.send <- data:
		default:
			log.Warnf("feed client %s is behind, skipping update", c.id)
		}
	}
}

func (s *Server) Clients() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.clients)
}

// Shutdown stops the listener and disconnects every subscriber.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.closed = true
	for id, c := range s.clients {
		delete(s.clients, id)
		close(c.send)
	}
	s.mu.Unlock()

	var err error
	if s.http != nil {
		err = s.http.Shutdown(ctx)
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}
	return err
}
