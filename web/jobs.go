package web

import (
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"scriv.town/asr"
	"scriv.town/metrics"
)

// Client-facing job statuses for the async batch flow.
const (
	jobInProgress = "IN_PROGRESS"
	jobCompleted  = "COMPLETED"
	jobFailed     = "FAILED"
)

type jobEntry struct {
	Name      string
	RemoteID  string
	Language  string
	CreatedAt time.Time
}

// jobTable maps client-visible job names to the recognition service's job
// ids. In-process only, like the session registry.
type jobTable struct {
	mu   sync.RWMutex
	jobs map[string]*jobEntry
}

func newJobTable() *jobTable {
	return &jobTable{jobs: make(map[string]*jobEntry)}
}

func (t *jobTable) add(e *jobEntry) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.jobs[e.Name] = e
}

func (t *jobTable) get(name string) (*jobEntry, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	e, ok := t.jobs[name]
	return e, ok
}

func (t *jobTable) all() []*jobEntry {
	t.mu.RLock()
	defer t.mu.RUnlock()
	entries := make([]*jobEntry, 0, len(t.jobs))
	for _, e := range t.jobs {
		entries = append(entries, e)
	}
	return entries
}

// handleTranscribeBatchAsync starts a batch job and returns immediately;
// the client polls the status endpoint.
func (s *Server) handleTranscribeBatchAsync(w http.ResponseWriter, r *http.Request) {
	file, filename, language, err := uploadedFile(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	defer file.Close()

	started := time.Now()
	job, err := s.asr.CreateJob(r.Context(), file, filename,
		asr.NewTranscriptionJobConfig(language))
	if err != nil {
		metrics.BatchJobs.WithLabelValues("failed").Inc()
		s.logger.Error("create batch job", "file", filename, "error", err)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	name := fmt.Sprintf("transcribe-%s", uuid.NewString())
	s.jobs.add(&jobEntry{
		Name:      name,
		RemoteID:  job.ID,
		Language:  language,
		CreatedAt: started,
	})

	s.logger.Info("batch job started", "name", name, "remote", job.ID)
	writeJSON(w, http.StatusCreated, map[string]any{
		"job_name":            name,
		"status":              jobInProgress,
		"upload_time_seconds": time.Since(started).Seconds(),
		"status_endpoint":     "/transcribe-job/" + name,
	})
}

func (s *Server) handleJobStatus(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	entry, ok := s.jobs.get(name)
	if !ok {
		writeError(w, http.StatusNotFound, "unknown job: "+name)
		return
	}

	job, err := s.asr.GetJob(r.Context(), entry.RemoteID)
	if err != nil {
		s.logger.Error("get batch job", "name", name, "error", err)
		writeError(w, http.StatusBadGateway, "could not fetch job status")
		return
	}

	doc := map[string]any{
		"job_name":      name,
		"status":        clientStatus(job.Status),
		"language_code": entry.Language,
		"creation_time": entry.CreatedAt.UTC().Format(time.RFC3339),
	}

	switch job.Status {
	case asr.JobStatusDone:
		transcript, err := s.asr.GetTranscript(r.Context(), entry.RemoteID)
		if err != nil {
			writeError(w, http.StatusBadGateway, "could not fetch transcript")
			return
		}
		doc["transcript"] = transcript
	case asr.JobStatusRejected, asr.JobStatusDeleted, asr.JobStatusExpired:
		reason := job.FailureReason
		if reason == "" {
			reason = job.Status
		}
		doc["failure_reason"] = reason
	}

	writeJSON(w, http.StatusOK, doc)
}

func (s *Server) handleListJobs(w http.ResponseWriter, r *http.Request) {
	entries := s.jobs.all()

	jobs := make([]map[string]any, 0, len(entries))
	for _, entry := range entries {
		doc := map[string]any{
			"job_name":      entry.Name,
			"language_code": entry.Language,
			"creation_time": entry.CreatedAt.UTC().Format(time.RFC3339),
		}
		job, err := s.asr.GetJob(r.Context(), entry.RemoteID)
		if err != nil {
			doc["status"] = "UNKNOWN"
		} else {
			doc["status"] = clientStatus(job.Status)
			if job.FailureReason != "" {
				doc["failure_reason"] = job.FailureReason
			}
		}
		jobs = append(jobs, doc)
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"count": len(jobs),
		"jobs":  jobs,
	})
}

func clientStatus(status string) string {
	switch status {
	case asr.JobStatusDone:
		return jobCompleted
	case asr.JobStatusRejected, asr.JobStatusDeleted, asr.JobStatusExpired:
		return jobFailed
	default:
		return jobInProgress
	}
}
