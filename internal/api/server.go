// Package api exposes the node's traffic log, neighbor table, and a live
// packet tail over HTTP.
package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/meshradio/loralink/internal/db"
)

// Announcer queues a presence broadcast for transmission.
type Announcer interface {
	Announce() error
}

type Server struct {
	hub       *PacketHub
	db        *db.DB
	announcer Announcer
	log       zerolog.Logger
}

func NewServer(hub *PacketHub, database *db.DB, announcer Announcer, logger zerolog.Logger) *Server {
	return &Server{
		hub:       hub,
		db:        database,
		announcer: announcer,
		log:       logger,
	}
}

// Handler returns the route table for the API.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/packets", s.handlePackets)
	mux.HandleFunc("/api/nodes", s.handleNodes)
	mux.HandleFunc("/api/broadcast", s.handleBroadcast)
	mux.HandleFunc("/api/tail", s.handleTail)
	return s.logRequests(mux)
}

type statusRecorder struct {
	http.ResponseWriter
	statusCode int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.statusCode = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Flush() {
	if flusher, ok := r.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(rec, r)
		s.log.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", rec.statusCode).
			Dur("duration", time.Since(start)).
			Msg("http request")
	})
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

func (s *Server) handlePackets(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	limit := 100
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			http.Error(w, fmt.Sprintf("invalid limit %q", raw), http.StatusBadRequest)
			return
		}
		limit = parsed
	}

	records, err := s.db.Packets(limit)
	if err != nil {
		s.log.Error().Err(err).Msg("listing packets")
		http.Error(w, "Failed to list packets", http.StatusInternalServerError)
		return
	}
	if records == nil {
		records = []db.PacketRecord{}
	}
	writeJSON(w, records)
}

func (s *Server) handleNodes(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	nodes, err := s.db.Nodes()
	if err != nil {
		s.log.Error().Err(err).Msg("listing nodes")
		http.Error(w, "Failed to list nodes", http.StatusInternalServerError)
		return
	}
	if nodes == nil {
		nodes = []db.Node{}
	}
	writeJSON(w, nodes)
}

func (s *Server) handleBroadcast(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if err := s.announcer.Announce(); err != nil {
		s.log.Error().Err(err).Msg("queueing broadcast")
		http.Error(w, "Failed to queue broadcast", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusAccepted)
	writeJSON(w, map[string]string{"status": "queued"})
}

// handleTail streams packet events as server-sent events until the client
// disconnects.
func (s *Server) handleTail(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no") // Disable buffering for nginx

	id, events := s.hub.Subscribe()
	defer s.hub.Unsubscribe(id)

	// Send initial ping to establish connection
	w.Write([]byte(": ping\n\n"))
	flusher.Flush()

	for {
		select {
		case ev, ok := <-events:
			if !ok {
				return
			}
			payload, err := json.Marshal(ev)
			if err != nil {
				s.log.Error().Err(err).Msg("encoding tail event")
				continue
			}
			if _, err := fmt.Fprintf(w, "data: %s\n\n", payload); err != nil {
				return
			}
			flusher.Flush()
		case <-r.Context().Done():
			return
		}
	}
}
