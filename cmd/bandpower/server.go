package main

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/cwbudde/algo-neurofeedback/feedback/pipeline"
)

// statusSink keeps the most recent output for the /status endpoint.
type statusSink struct {
	mu   sync.RWMutex
	last pipeline.Output
	seen bool
}

func (s *statusSink) Publish(_ context.Context, out pipeline.Output) error {
	s.mu.Lock()
	s.last, s.seen = out, true
	s.mu.Unlock()
	return nil
}

func (s *statusSink) Close() error { return nil }

func (s *statusSink) ServeHTTP(w http.ResponseWriter, _ *http.Request) {
	s.mu.RLock()
	out, seen := s.last, s.seen
	s.mu.RUnlock()

	if !seen {
		http.Error(w, "no output yet", http.StatusServiceUnavailable)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(out); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func newRouter(wsPath string, feed, status http.Handler) *chi.Mux {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get(wsPath, feed.ServeHTTP)
	r.Get("/status", status.ServeHTTP)

	return r
}
