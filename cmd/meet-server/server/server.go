// Package server provides an importable reference conference server for
// the torture suite. It serves a small single-page conference app that
// records connection checkpoints the same way a production deployment
// does, so the timing suite can run against a local server from tests.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/pion/webrtc/v4"
	"github.com/sirupsen/logrus"
)

// PreBindPath is where attach-mode pages obtain a pre-bound session.
const PreBindPath = "/http-pre-bind"

// Config holds server configuration options.
type Config struct {
	Addr         string        // Listen address (e.g., ":8080" or ":0" for random port)
	ReadTimeout  time.Duration // HTTP read timeout
	WriteTimeout time.Duration // HTTP write timeout

	// MaxOccupants caps each room. Zero means unlimited.
	MaxOccupants int

	// RoomLimits overrides MaxOccupants for individual rooms. Room names
	// are matched case-insensitively.
	RoomLimits map[string]int

	// ExternalConnect makes pages attach to a pre-bound session instead
	// of connecting themselves.
	ExternalConnect bool

	// Auth, when set, requires the first occupant of a room to sign in
	// as host.
	Auth *Credentials

	Log logrus.FieldLogger
}

// DefaultConfig returns a configuration suitable for testing.
// Uses ":0" to bind to a random available port.
func DefaultConfig() Config {
	return Config{
		Addr:         ":0",
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
	}
}

// Server is an importable conference server.
type Server struct {
	cfg        Config
	log        logrus.FieldLogger
	api        *webrtc.API
	rooms      *Rooms
	sessions   *sessions
	httpServer *http.Server
	listener   net.Listener
	addr       string
	mu         sync.Mutex
	running    bool

	peersMu sync.Mutex
	peers   map[*peer]struct{}
	wg      sync.WaitGroup
}

// NewServer creates a new server with the given configuration.
// The server is not started until Start() is called.
func NewServer(cfg Config) (*Server, error) {
	if cfg.MaxOccupants < 0 {
		return nil, fmt.Errorf("max occupants must be >= 0, got %d", cfg.MaxOccupants)
	}
	if cfg.Log == nil {
		cfg.Log = logrus.StandardLogger()
	}
	api, err := newAPI()
	if err != nil {
		return nil, err
	}

	s := &Server{
		cfg:      cfg,
		log:      cfg.Log,
		api:      api,
		rooms:    NewRooms(cfg.MaxOccupants, cfg.Auth != nil),
		sessions: newSessions(time.Minute),
		peers:    make(map[*peer]struct{}),
	}
	for name, n := range cfg.RoomLimits {
		if n < 0 {
			return nil, fmt.Errorf("room %s: limit must be >= 0, got %d", name, n)
		}
		s.rooms.SetLimit(strings.ToLower(name), n)
	}

	r := mux.NewRouter()
	r.HandleFunc("/config.js", s.handleConfig).Methods(http.MethodGet)
	r.HandleFunc(PreBindPath, s.handlePreBind).Methods(http.MethodPost)
	r.HandleFunc("/xmpp-websocket", s.handleWebSocket).Methods(http.MethodGet)
	r.HandleFunc("/rooms/{room}", s.handleRoom).Methods(http.MethodGet)
	r.HandleFunc("/", s.handlePage).Methods(http.MethodGet)
	r.HandleFunc("/{room}", s.handlePage).Methods(http.MethodGet)

	s.httpServer = &http.Server{
		Addr:         cfg.Addr,
		Handler:      r,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}
	return s, nil
}

// Start begins listening and serving HTTP requests.
// Returns the actual address the server is listening on (useful when port is 0).
// This method is non-blocking - the server runs in a goroutine.
func (s *Server) Start() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return s.addr, nil
	}

	ln, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return "", fmt.Errorf("failed to listen: %w", err)
	}

	s.listener = ln
	s.addr = ln.Addr().String()
	s.running = true

	go func() {
		if err := s.httpServer.Serve(ln); err != nil && err != http.ErrServerClosed {
			s.log.WithError(err).Error("server stopped")
		}
	}()

	s.log.WithField("addr", s.addr).Info("conference server listening")
	return s.addr, nil
}

// Shutdown gracefully shuts down the server. Hijacked signaling sockets
// are not tracked by http.Server, so they are closed once the listener
// has stopped.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return nil
	}

	s.running = false
	err := s.httpServer.Shutdown(ctx)

	s.peersMu.Lock()
	for p := range s.peers {
		p.close()
	}
	s.peersMu.Unlock()
	s.wg.Wait()
	return err
}

// Addr returns the address the server is listening on.
// Returns empty string if server is not running.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addr
}

// Rooms exposes the server's room registry.
func (s *Server) Rooms() *Rooms {
	return s.rooms
}

func (s *Server) handlePage(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html")
	w.Write([]byte(HTMLPage))
}

func (s *Server) handleConfig(w http.ResponseWriter, r *http.Request) {
	cfg := map[string]any{
		"hosts":              map[string]string{"domain": r.Host, "muc": "conference." + r.Host},
		"websocket":          "/xmpp-websocket",
		"requireDisplayName": true,
		"p2p":                map[string]bool{"enabled": false},
	}
	if s.cfg.ExternalConnect {
		cfg["externalConnectUrl"] = PreBindPath
	}
	b, err := json.Marshal(cfg)
	if err != nil {
		http.Error(w, "Internal error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/javascript")
	fmt.Fprintf(w, "var config = %s;\n", b)
}

func (s *Server) handlePreBind(w http.ResponseWriter, r *http.Request) {
	sid := s.sessions.issue()
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"sid": sid})
}

func (s *Server) handleRoom(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["room"]
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(struct {
		Room    string   `json:"room"`
		Members []Member `json:"members"`
	}{name, s.rooms.Members(name)})
}

// sessions are pre-bound connections waiting for a page to attach.
type sessions struct {
	ttl time.Duration

	mu      sync.Mutex
	expires map[string]time.Time
}

func newSessions(ttl time.Duration) *sessions {
	return &sessions{ttl: ttl, expires: make(map[string]time.Time)}
}

func (s *sessions) issue() string {
	sid := uuid.NewString()
	now := time.Now()
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, exp := range s.expires {
		if now.After(exp) {
			delete(s.expires, id)
		}
	}
	s.expires[sid] = now.Add(s.ttl)
	return sid
}

// consume reports whether sid was issued and is unexpired. A session can
// be attached once.
func (s *sessions) consume(sid string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	exp, ok := s.expires[sid]
	if !ok {
		return false
	}
	delete(s.expires, sid)
	return time.Now().Before(exp)
}
