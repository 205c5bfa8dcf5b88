package livefeed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"time"

	"github.com/lowaak/smart-rower/smart-rower-app/internal/go_func_utils"
)

// StatusFunc adds application fields, such as the rower connection and the
// shadow state, to the status endpoint.
type StatusFunc func() map[string]any

// Server serves the live feed: /ws for events, /api/status for the latest
// snapshot and /healthz.
type Server struct {
	hub       *Hub
	display   *Display
	status    StatusFunc
	logger    *log.Logger
	startedAt time.Time

	server   *http.Server
	listener net.Listener
}

func NewServer(bind string, hub *Hub, display *Display, status StatusFunc, logger *log.Logger) *Server {
	if logger == nil {
		panic("LiveFeedServer: logger cannot be nil")
	}
	if hub == nil || display == nil {
		panic("LiveFeedServer: hub and display cannot be nil")
	}
	s := &Server{
		hub:       hub,
		display:   display,
		status:    status,
		logger:    logger,
		startedAt: time.Now(),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", s.handleHealthz)
	mux.HandleFunc("/api/status", s.handleStatus)
	mux.Handle("/ws", hub.Handler())

	s.server = &http.Server{
		Addr:              bind,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// Start binds the listen address and serves in the background.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.server.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.server.Addr, err)
	}
	s.listener = ln
	s.logger.Printf("LiveFeedServer: listening on http://%s", ln.Addr())

	go_func_utils.SafeGo(s.logger, func() {
		if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Printf("LiveFeedServer: server error: %v", err)
		}
	})
	return nil
}

// Addr is the bound address, useful when listening on port 0.
func (s *Server) Addr() string {
	if s.listener == nil {
		return s.server.Addr
	}
	return s.listener.Addr().String()
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Println("LiveFeedServer: shutting down")
	return s.server.Shutdown(ctx)
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok\n"))
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	resp := map[string]any{
		"name":           "smart-rower",
		"uptime_seconds": int64(time.Since(s.startedAt).Seconds()),
		"clients":        s.hub.Clients(),
		"workout":        s.display.Snapshot(),
	}
	if s.status != nil {
		for k, v := range s.status() {
			resp[k] = v
		}
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}
