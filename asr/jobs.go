package asr

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"time"
)

// Batch job statuses reported by the recognition service.
const (
	JobStatusRunning  = "running"
	JobStatusDone     = "done"
	JobStatusRejected = "rejected"
	JobStatusDeleted  = "deleted"
	JobStatusExpired  = "expired"
)

type JobConfig struct {
	Type                string              `json:"type"`
	TranscriptionConfig transcriptionConfig `json:"transcription_config"`
}

func NewTranscriptionJobConfig(language string) JobConfig {
	return JobConfig{
		Type:                "transcription",
		TranscriptionConfig: transcriptionConfig{Language: language},
	}
}

type JobResponse struct {
	ID string `json:"id"`
}

type JobDetails struct {
	ID            string    `json:"id"`
	CreatedAt     time.Time `json:"created_at"`
	DataName      string    `json:"data_name"`
	Duration      int       `json:"duration"`
	Status        string    `json:"status"`
	FailureReason string    `json:"failure_reason,omitempty"`
	Config        JobConfig `json:"config"`
}

// CreateJob uploads audio and starts a batch transcription job.
func (c *Client) CreateJob(
	ctx context.Context,
	audio io.Reader,
	filename string,
	config JobConfig,
) (*JobResponse, error) {
	url := fmt.Sprintf("%s/jobs", c.BaseURL)

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)

	part, err := writer.CreateFormFile("data_file", filename)
	if err != nil {
		return nil, err
	}
	if _, err := io.Copy(part, audio); err != nil {
		return nil, err
	}

	configJSON, err := json.Marshal(config)
	if err != nil {
		return nil, err
	}
	if err := writer.WriteField("config", string(configJSON)); err != nil {
		return nil, err
	}
	if err := writer.Close(); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, "POST", url, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", c.APIKey))
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUpstreamUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		respBody, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf(
			"unexpected status code: %d, response body: %s",
			resp.StatusCode,
			string(respBody),
		)
	}

	var jobResponse JobResponse
	if err := json.NewDecoder(resp.Body).Decode(&jobResponse); err != nil {
		return nil, err
	}

	return &jobResponse, nil
}

func (c *Client) GetJob(ctx context.Context, jobID string) (*JobDetails, error) {
	url := fmt.Sprintf("%s/jobs/%s", c.BaseURL, jobID)

	req, err := http.NewRequestWithContext(ctx, "GET", url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", c.APIKey))

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUpstreamUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	var wrapped struct {
		Job JobDetails `json:"job"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&wrapped); err != nil {
		return nil, err
	}

	return &wrapped.Job, nil
}

// GetTranscript fetches the plain-text transcript of a completed job.
func (c *Client) GetTranscript(ctx context.Context, jobID string) (string, error) {
	url := fmt.Sprintf("%s/jobs/%s/transcript?format=txt", c.BaseURL, jobID)

	req, err := http.NewRequestWithContext(ctx, "GET", url, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", c.APIKey))

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUpstreamUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	transcript, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}

	return string(transcript), nil
}

func (c *Client) DeleteJob(ctx context.Context, jobID string) error {
	url := fmt.Sprintf("%s/jobs/%s", c.BaseURL, jobID)

	req, err := http.NewRequestWithContext(ctx, "DELETE", url, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", c.APIKey))

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	return nil
}

func (c *Client) ListJobs(ctx context.Context) ([]JobDetails, error) {
	url := fmt.Sprintf("%s/jobs", c.BaseURL)

	req, err := http.NewRequestWithContext(ctx, "GET", url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", c.APIKey))

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUpstreamUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	var response struct {
		Jobs []JobDetails `json:"jobs"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return nil, err
	}

	return response.Jobs, nil
}

// WaitForJob polls until the job reaches a terminal status or ctx expires.
func (c *Client) WaitForJob(
	ctx context.Context,
	jobID string,
	pollInterval time.Duration,
) (*JobDetails, error) {
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
			job, err := c.GetJob(ctx, jobID)
			if err != nil {
				return nil, err
			}

			c.logger.Info("batch job", "id", jobID, "status", job.Status)
			switch job.Status {
			case JobStatusDone:
				return job, nil
			case JobStatusRejected, JobStatusDeleted, JobStatusExpired:
				return nil, fmt.Errorf("job failed with status: %s", job.Status)
			}
		}
	}
}

// Transcribe runs the whole batch flow: create the job, wait for it, fetch
// the transcript, and delete the remote job.
func (c *Client) Transcribe(
	ctx context.Context,
	audio io.Reader,
	filename string,
	language string,
	pollInterval time.Duration,
) (string, error) {
	job, err := c.CreateJob(ctx, audio, filename, NewTranscriptionJobConfig(language))
	if err != nil {
		return "", fmt.Errorf("failed to create job: %w", err)
	}

	if _, err := c.WaitForJob(ctx, job.ID, pollInterval); err != nil {
		return "", fmt.Errorf("failed while waiting for job completion: %w", err)
	}

	transcript, err := c.GetTranscript(ctx, job.ID)
	if err != nil {
		return "", fmt.Errorf("failed to get transcript: %w", err)
	}

	if err := c.DeleteJob(ctx, job.ID); err != nil {
		c.logger.Warn("failed to delete batch job", "id", job.ID, "error", err)
	}

	return transcript, nil
}
