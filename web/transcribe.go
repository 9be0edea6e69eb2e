package web

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"scriv.town/asr"
	"scriv.town/metrics"
)

const (
	maxUploadBytes = 512 << 20
	chunkSize      = 8 * 1024

	batchPollInterval = 5 * time.Second
	batchTimeout      = 5 * time.Minute
)

var supportedFormats = map[string]bool{
	"mp3": true, "mp4": true, "wav": true, "flac": true,
	"ogg": true, "amr": true, "webm": true, "m4a": true,
}

func uploadedFile(r *http.Request) (io.ReadCloser, string, string, error) {
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		return nil, "", "", fmt.Errorf("no file provided")
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		return nil, "", "", fmt.Errorf("no file provided")
	}
	if header.Filename == "" {
		file.Close()
		return nil, "", "", fmt.Errorf("no file selected")
	}

	language := r.FormValue("language_code")
	if language == "" {
		language = "en-US"
	}

	return file, header.Filename, language, nil
}

// handleTranscribe streams the whole uploaded file through a realtime
// recognition stream and returns the joined final transcript.
func (s *Server) handleTranscribe(w http.ResponseWriter, r *http.Request) {
	file, filename, language, err := uploadedFile(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	defer file.Close()

	transcript, err := s.transcribeStreaming(r.Context(), file, language)
	if err != nil {
		s.logger.Error("streaming transcription", "file", filename, "error", err)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success":    true,
		"transcript": transcript,
	})
}

func (s *Server) transcribeStreaming(
	ctx context.Context,
	audio io.Reader,
	language string,
) (string, error) {
	stream, err := s.asr.OpenStream(ctx, asr.StreamConfig{Language: language})
	if err != nil {
		return "", err
	}

	// Collect final results while audio is still being written.
	finals := make(chan string, 1)
	go func() {
		var parts []string
		for ev := range stream.Events() {
			if ev.IsFinal {
				parts = append(parts, ev.Text)
			}
		}
		finals <- strings.Join(parts, " ")
	}()

	buf := make([]byte, chunkSize)
	for {
		n, readErr := audio.Read(buf)
		if n > 0 {
			if err := stream.Send(buf[:n]); err != nil {
				stream.Close(ctx)
				<-finals
				return "", fmt.Errorf("send audio: %w", err)
			}
		}
		if readErr == io.EOF {
			break
		}
		if readErr != nil {
			stream.Close(ctx)
			<-finals
			return "", fmt.Errorf("read audio: %w", readErr)
		}
	}

	if err := stream.Close(ctx); err != nil {
		// Drain timeout: return what arrived before the cutoff.
		s.logger.Warn("stream close", "error", err)
	}

	return <-finals, nil
}

// handleTranscribeBatch uploads the file to the recognition service's job
// API and polls the job to completion before responding.
func (s *Server) handleTranscribeBatch(w http.ResponseWriter, r *http.Request) {
	file, filename, language, err := uploadedFile(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	defer file.Close()

	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(filename), "."))
	if !supportedFormats[ext] {
		writeError(w, http.StatusBadRequest, fmt.Sprintf(
			"unsupported file format: %s. Supported formats: mp3, mp4, wav, flac, ogg, amr, webm, m4a",
			ext))
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), batchTimeout)
	defer cancel()

	transcript, err := s.asr.Transcribe(ctx, file, filename, language, batchPollInterval)
	if err != nil {
		metrics.BatchJobs.WithLabelValues("failed").Inc()
		if ctx.Err() != nil {
			writeError(w, http.StatusRequestTimeout,
				"transcription timeout. Job may still be processing.")
			return
		}
		s.logger.Error("batch transcription", "file", filename, "error", err)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	metrics.BatchJobs.WithLabelValues("completed").Inc()
	writeJSON(w, http.StatusOK, map[string]any{
		"success":    true,
		"transcript": transcript,
		"mode":       "batch",
	})
}
