// Package api serves the observation surface: JSON status and snapshot
// endpoints plus a websocket stream pushing snapshots to clients.
package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/gorilla/websocket"

	"github.com/talgya/lifesim/internal/sim"
)

// Server exposes the running engine over HTTP.
type Server struct {
	engine *sim.Engine
	mux    *http.ServeMux

	pushInterval time.Duration
	upgrader     websocket.Upgrader
}

// NewServer builds the handler set.
func NewServer(engine *sim.Engine, pushInterval time.Duration) *Server {
	if pushInterval <= 0 {
		pushInterval = time.Second
	}
	s := &Server{
		engine:       engine,
		mux:          http.NewServeMux(),
		pushInterval: pushInterval,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
	s.mux.HandleFunc("GET /api/v1/status", s.handleStatus)
	s.mux.HandleFunc("GET /api/v1/snapshot", s.handleSnapshot)
	s.mux.HandleFunc("GET /api/v1/characters/{id}", s.handleCharacter)
	s.mux.HandleFunc("GET /api/v1/events", s.handleEvents)
	s.mux.HandleFunc("POST /api/v1/pause", s.handlePause)
	s.mux.HandleFunc("GET /ws", s.handleWS)
	return s
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler { return s.mux }

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("write response failed", "err", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	snap := s.engine.World().TakeSnapshot()
	totalMoney := 0
	for _, c := range snap.Characters {
		totalMoney += c.Money
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"time":       snap.TimeDisplay,
		"day":        snap.Time.Day,
		"tick":       s.engine.Tick(),
		"paused":     snap.Paused,
		"characters": len(snap.Characters),
		"npcs":       len(snap.NPCs),
		"totalMoney": humanize.Comma(int64(totalMoney)),
		"uptime":     humanize.Time(s.engine.ServerStart()),
	})
}

func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.engine.World().TakeSnapshot())
}

func (s *Server) handleCharacter(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	snap := s.engine.World().TakeSnapshot()
	for _, c := range snap.Characters {
		if c.ID == id {
			writeJSON(w, http.StatusOK, c)
			return
		}
	}
	writeError(w, http.StatusNotFound, "unknown character "+id)
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.engine.Events())
}

func (s *Server) handlePause(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Paused bool `json:"paused"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}
	s.engine.SetPaused(body.Paused)
	writeJSON(w, http.StatusOK, map[string]bool{"paused": body.Paused})
}

// handleWS upgrades and pushes snapshots until the client goes away.
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("websocket upgrade failed", "err", err)
		return
	}
	defer conn.Close()
	slog.Info("websocket client connected", "remote", r.RemoteAddr)

	// Drain client frames so pings and close messages are processed.
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(s.pushInterval)
	defer ticker.Stop()
	for {
		select {
		case <-r.Context().Done():
			return
		case <-ticker.C:
			snap := s.engine.World().TakeSnapshot()
			if err := conn.WriteJSON(snap); err != nil {
				if !strings.Contains(err.Error(), "use of closed") {
					slog.Info("websocket client gone", "remote", r.RemoteAddr, "err", err)
				}
				return
			}
		}
	}
}
