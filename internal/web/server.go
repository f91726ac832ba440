// Package web exposes the daemon's health and tracking statistics over HTTP.
package web

import (
	"encoding/json"
	"net/http"

	"roadlog/internal/storage"
	"roadlog/internal/tracker"
)

type Server struct {
	Store  *storage.Store
	Engine *tracker.Engine
}

func (s *Server) Routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", s.Healthz)
	mux.HandleFunc("/stats", s.Stats)
	return mux
}

func (s *Server) Healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// Stats reports the engine counters plus the current queue depth: the same
// numbers a driver-facing notification would show.
func (s *Server) Stats(w http.ResponseWriter, r *http.Request) {
	queued, err := s.Store.CountUnsent(r.Context())
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	payload := struct {
		tracker.Stats
		Queued int `json:"queued"`
	}{s.Engine.Stats(), queued}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(payload)
}
