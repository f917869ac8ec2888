// Package server exposes the measurement service over HTTP: job
// status, stored measurements, optimizer traces, and a live result
// stream.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"cmodel/internal/pipeline"
	"cmodel/internal/storage"
)

// Server wraps the HTTP API.
type Server struct {
	addr     string
	store    *storage.Store
	pipeline *pipeline.Pipeline
	log      *slog.Logger
	server   *http.Server
}

// NewServer creates the API server.
func NewServer(addr string, store *storage.Store, pipe *pipeline.Pipeline, log *slog.Logger) *Server {
	return &Server{
		addr:     addr,
		store:    store,
		pipeline: pipe,
		log:      log,
	}
}

// Start begins serving until ctx is cancelled.
func (s *Server) Start(ctx context.Context) error {
	r := mux.NewRouter()
	s.setupRoutes(r)

	s.server = &http.Server{
		Addr:    s.addr,
		Handler: r,
	}

	// Graceful shutdown
	go func() {
		<-ctx.Done()
		s.log.Info("shutting down server")
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.server.Shutdown(ctxShutdown)
	}()

	s.log.Info("server starting", "addr", s.addr)
	err := s.server.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

func (s *Server) setupRoutes(r *mux.Router) {
	r.HandleFunc("/healthz", s.handleHealth).Methods("GET")
	r.HandleFunc("/jobs", s.handleJobs).Methods("GET")
	r.HandleFunc("/measurements", s.handleMeasurements).Methods("GET")
	r.HandleFunc("/measurements/{id:[0-9]+}", s.handleMeasurement).Methods("GET")
	r.HandleFunc("/measurements/{id:[0-9]+}/trace/{stage}", s.handleTrace).Methods("GET")
	r.HandleFunc("/stream", s.handleStream).Methods("GET")
}

// Serve runs a server with default wiring.
func Serve(ctx context.Context, addr string, store *storage.Store, pipe *pipeline.Pipeline, log *slog.Logger) error {
	return NewServer(addr, store, pipe, log).Start(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

func (s *Server) handleJobs(w http.ResponseWriter, r *http.Request) {
	recs, err := s.store.RecentJobs(100)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, recs)
}

func (s *Server) handleMeasurements(w http.ResponseWriter, r *http.Request) {
	recs, err := s.store.RecentMeasurements(100)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, recs)
}

func (s *Server) handleMeasurement(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		http.Error(w, "invalid object id", http.StatusBadRequest)
		return
	}
	rec, err := s.store.GetMeasurement(id)
	if errors.Is(err, storage.ErrNotFound) {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, rec)
}

func (s *Server) handleTrace(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	id, err := strconv.ParseInt(vars["id"], 10, 64)
	if err != nil {
		http.Error(w, "invalid object id", http.StatusBadRequest)
		return
	}
	trace, err := s.store.Trace(id, vars["stage"])
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if len(trace) == 0 {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
	writeJSON(w, trace)
}

func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}
	resCh, unsubscribe := s.pipeline.Subscribe()
	defer unsubscribe()
	for {
		select {
		case <-r.Context().Done():
			return
		case res, ok := <-resCh:
			if !ok {
				return
			}
			payload, _ := json.Marshal(res)
			_, _ = w.Write([]byte("data: " + string(payload) + "\n\n"))
			flusher.Flush()
		}
	}
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}
