package web

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/charmbracelet/log"

	"scriv.town/asr"
)

type fakeSummarizer struct {
	summary string
	err     error
}

func (f *fakeSummarizer) Summarize(ctx context.Context, transcript string) (string, error) {
	return f.summary, f.err
}

func newTestServer(summarizer Summarizer) *Server {
	logger := log.New(io.Discard)
	client := asr.NewClient("test-key", logger)
	return NewServer(client, summarizer, nil, logger)
}

func TestHealth(t *testing.T) {
	server := newTestServer(nil)
	req := httptest.NewRequest("GET", "/health", nil)
	rec := httptest.NewRecorder()

	server.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var body map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if body["status"] != "healthy" {
		t.Errorf("status field = %q, want healthy", body["status"])
	}
}

func multipartUpload(t *testing.T, filename string) (*bytes.Buffer, string) {
	t.Helper()
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	part, err := writer.CreateFormFile("file", filename)
	if err != nil {
		t.Fatal(err)
	}
	part.Write([]byte("not really audio"))
	writer.WriteField("language_code", "en-US")
	writer.Close()
	return body, writer.FormDataContentType()
}

func TestTranscribeBatchRejectsUnsupportedFormat(t *testing.T) {
	server := newTestServer(nil)
	body, contentType := multipartUpload(t, "notes.txt")

	req := httptest.NewRequest("POST", "/transcribe-batch", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()

	server.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "unsupported file format") {
		t.Errorf("body = %s, want unsupported format error", rec.Body.String())
	}
}

func TestTranscribeBatchRequiresFile(t *testing.T) {
	server := newTestServer(nil)
	req := httptest.NewRequest("POST", "/transcribe-batch", strings.NewReader(""))
	rec := httptest.NewRecorder()

	server.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestSummarizeValidation(t *testing.T) {
	server := newTestServer(&fakeSummarizer{summary: "short"})

	for _, body := range []string{"", "{}", `{"transcript":""}`, "not json"} {
		req := httptest.NewRequest("POST", "/summarize", strings.NewReader(body))
		rec := httptest.NewRecorder()
		server.Router().ServeHTTP(rec, req)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("body %q: status = %d, want 400", body, rec.Code)
		}
	}
}

func TestSummarize(t *testing.T) {
	server := newTestServer(&fakeSummarizer{summary: "the gist of it"})

	req := httptest.NewRequest("POST", "/summarize",
		strings.NewReader(`{"transcript":"a long meeting"}`))
	rec := httptest.NewRecorder()
	server.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200, body %s", rec.Code, rec.Body.String())
	}
	var body map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if body["summary"] != "the gist of it" {
		t.Errorf("summary = %q", body["summary"])
	}
}

func TestSummarizeUnconfigured(t *testing.T) {
	server := newTestServer(nil)

	req := httptest.NewRequest("POST", "/summarize",
		strings.NewReader(`{"transcript":"hello"}`))
	rec := httptest.NewRecorder()
	server.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", rec.Code)
	}
}

func TestJobStatusUnknownJob(t *testing.T) {
	server := newTestServer(nil)

	req := httptest.NewRequest("GET", "/transcribe-job/transcribe-nope", nil)
	rec := httptest.NewRecorder()
	server.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}

func TestListJobsEmpty(t *testing.T) {
	server := newTestServer(nil)

	req := httptest.NewRequest("GET", "/transcribe-jobs", nil)
	rec := httptest.NewRecorder()
	server.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var body struct {
		Count int              `json:"count"`
		Jobs  []map[string]any `json:"jobs"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if body.Count != 0 || len(body.Jobs) != 0 {
		t.Errorf("count = %d, jobs = %v, want empty", body.Count, body.Jobs)
	}
}
