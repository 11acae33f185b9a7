// Package statusapi exposes a read-only admin surface over the
// relay's mount registry: a JSON snapshot endpoint and a WebSocket
// feed that pushes the same snapshot every few seconds. Neither
// endpoint is reachable by RTSP clients.
package statusapi

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

// Snapshot is supplied by the caller on each request/push tick.
type Snapshot func() any

// Server serves the admin HTTP + WebSocket surface.
type Server struct {
	snapshot Snapshot
	log      *slog.Logger
	upgrader websocket.Upgrader
}

// New builds a Server that calls snapshot to produce each response.
func New(snapshot Snapshot, log *slog.Logger) *Server {
	if log == nil {
		log = slog.Default()
	}
	return &Server{
		snapshot: snapshot,
		log:      log,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// same-origin checks are meaningless for an internal
			// operator tool; allow any origin.
			CheckOrigin: func(_ *http.Request) bool { return true },
		},
	}
}

// Handler returns the mux to mount at the admin listener.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/status", s.handleStatus)
	mux.HandleFunc("/status/ws", s.handleStatusWS)
	return mux
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(s.snapshot()); err != nil {
		s.log.Error("failed to encode status snapshot", "error", err)
	}
}

const statusPushInterval = 3 * time.Second

func (s *Server) handleStatusWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Debug("status websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	ticker := time.NewTicker(statusPushInterval)
	defer ticker.Stop()

	for range ticker.C {
		if err := conn.WriteJSON(s.snapshot()); err != nil {
			return
		}
	}
}
