// Package metrics exposes the service's Prometheus instrumentation.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ActiveSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "scriv_active_sessions",
		Help: "Number of live realtime transcription sessions",
	})

	SessionsStarted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "scriv_sessions_started_total",
		Help: "Total number of realtime sessions started",
	})

	FramesReceived = promauto.NewCounter(prometheus.CounterOpts{
		Name: "scriv_frames_received_total",
		Help: "Total number of audio frames received over the realtime transport",
	})

	AudioBytesReceived = promauto.NewCounter(prometheus.CounterOpts{
		Name: "scriv_audio_bytes_received_total",
		Help: "Total audio payload bytes received over the realtime transport",
	})

	RecognitionEvents = promauto.NewCounter(prometheus.CounterOpts{
		Name: "scriv_recognition_events_total",
		Help: "Total recognition events forwarded to clients",
	})

	ArchivedBytes = promauto.NewCounter(prometheus.CounterOpts{
		Name: "scriv_archived_bytes_total",
		Help: "Total audio bytes handed to the archive store",
	})

	ArchiveFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "scriv_archive_failures_total",
		Help: "Total failed archive store attempts",
	})

	BatchJobs = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "scriv_batch_jobs_total",
		Help: "Batch transcription jobs by outcome",
	}, []string{"outcome"})
)
