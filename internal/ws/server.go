package ws

import (
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/obiente/translate/chunkscribe/internal/progress"
)

const (
	readWait  = 60 * time.Second
	writeWait = 5 * time.Second
)

// Server fans progress events out to websocket listeners. Listeners join the
// room of one run with ?run=<id>; without it they receive every run.
type Server struct {
	upgrader websocket.Upgrader
	mu       sync.RWMutex
	rooms    map[string]map[*client]struct{}
	last     map[string]progress.Event
}

// client serializes writes; gorilla connections allow one writer at a time.
type client struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (c *client) send(v any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteJSON(v)
}

func NewServer() *Server {
	return &Server{
		upgrader: websocket.Upgrader{
			CheckOrigin:     func(r *http.Request) bool { return true },
			ReadBufferSize:  1024,
			WriteBufferSize: 1024 * 4,
		},
		rooms: make(map[string]map[*client]struct{}),
		last:  make(map[string]progress.Event),
	}
}

// Report implements progress.Reporter.
func (s *Server) Report(e progress.Event) {
	s.mu.Lock()
	s.last[e.RunID] = e
	s.mu.Unlock()
	s.broadcast(e.RunID, e)
}

// Listeners returns the number of connected clients.
func (s *Server) Listeners() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, m := range s.rooms {
		n += len(m)
	}
	return n
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) { s.Handle(w, r) }

func (s *Server) Handle(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Error().Err(err).Msg("ws upgrade failed")
		return
	}
	defer conn.Close()

	room := r.URL.Query().Get("run")
	c := &client{conn: conn}
	s.join(room, c)
	defer s.leave(room, c)

	_ = conn.SetReadDeadline(time.Now().Add(readWait))
	conn.SetPongHandler(func(string) error { _ = conn.SetReadDeadline(time.Now().Add(readWait)); return nil })

	// Late listeners get the latest state right away.
	for _, e := range s.snapshot(room) {
		if err := c.send(e); err != nil {
			return
		}
	}

	for {
		var msg map[string]any
		if err := conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Debug().Err(err).Msg("ws: listener closed")
			}
			return
		}
		_ = conn.SetReadDeadline(time.Now().Add(readWait))
		switch t, _ := msg["type"].(string); t {
		case "ping":
			_ = c.send(map[string]any{"type": "pong", "ts": msg["ts"]})
		default:
			_ = c.send(map[string]any{"type": "error", "detail": "unknown message type"})
		}
	}
}

func (s *Server) join(room string, c *client) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m := s.rooms[room]
	if m == nil {
		m = make(map[*client]struct{})
		s.rooms[room] = m
	}
	m[c] = struct{}{}
	log.Debug().Str("run", room).Msg("ws: listener joined")
}

func (s *Server) leave(room string, c *client) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if m := s.rooms[room]; m != nil {
		delete(m, c)
		if len(m) == 0 {
			delete(s.rooms, room)
		}
	}
}

func (s *Server) snapshot(room string) []progress.Event {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if room != "" {
		if e, ok := s.last[room]; ok {
			return []progress.Event{e}
		}
		return nil
	}
	out := make([]progress.Event, 0, len(s.last))
	for _, e := range s.last {
		out = append(out, e)
	}
	return out
}

// broadcast sends payload to the run's room and to the catch-all room.
func (s *Server) broadcast(run string, payload any) {
	s.mu.RLock()
	targets := make([]*client, 0)
	for c := range s.rooms[run] {
		targets = append(targets, c)
	}
	if run != "" {
		for c := range s.rooms[""] {
			targets = append(targets, c)
		}
	}
	s.mu.RUnlock()

	for _, c := range targets {
		if err := c.send(payload); err != nil {
			log.Debug().Err(err).Msg("ws: dropping slow listener")
			_ = c.conn.Close()
		}
	}
}
