// Package web is the HTTP surface: batch transcription, summarization,
// health, metrics, and the realtime websocket endpoint.
package web

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/charmbracelet/log"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"scriv.town/asr"
)

// Summarizer is the single-shot summarization collaborator.
type Summarizer interface {
	Summarize(ctx context.Context, transcript string) (string, error)
}

type Server struct {
	asr        *asr.Client
	summarizer Summarizer
	realtime   http.Handler
	logger     *log.Logger
	jobs       *jobTable
}

func NewServer(
	asrClient *asr.Client,
	summarizer Summarizer,
	realtime http.Handler,
	logger *log.Logger,
) *Server {
	return &Server{
		asr:        asrClient,
		summarizer: summarizer,
		realtime:   realtime,
		logger:     logger,
		jobs:       newJobTable(),
	}
}

func (s *Server) Router() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/health", s.handleHealth)
	r.Post("/transcribe", s.handleTranscribe)
	r.Post("/transcribe-batch", s.handleTranscribeBatch)
	r.Post("/transcribe-batch-async", s.handleTranscribeBatchAsync)
	r.Get("/transcribe-job/{name}", s.handleJobStatus)
	r.Get("/transcribe-jobs", s.handleListJobs)
	r.Post("/summarize", s.handleSummarize)
	r.Handle("/metrics", promhttp.Handler())

	if s.realtime != nil {
		r.Handle("/ws", s.realtime)
	}

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

func (s *Server) handleSummarize(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Transcript string `json:"transcript"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.Transcript == "" {
		writeError(w, http.StatusBadRequest, "transcript is required")
		return
	}
	if s.summarizer == nil {
		writeError(w, http.StatusServiceUnavailable, "summarization not configured")
		return
	}

	summary, err := s.summarizer.Summarize(r.Context(), req.Transcript)
	if err != nil {
		s.logger.Error("summarize", "error", err)
		writeError(w, http.StatusBadGateway, "summarization failed")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"summary": summary})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
