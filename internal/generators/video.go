package generators

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"StoryLoom/server/internal/config"
)

const (
	videoPollInterval   = 2 * time.Second
	videoMaxPollTime    = 5 * time.Minute
	videoDefaultTimeout = 30 * time.Second
)

// VideoClient talks to an external text-to-video service that accepts
// a generation job and is polled until the clip is rendered.
type VideoClient struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
}

type videoJobRequest struct {
	Prompt string `json:"prompt"`
}

type videoJobResponse struct {
	JobID  string `json:"job_id"`
	Status string `json:"status"`
	URL    string `json:"url,omitempty"`
	Error  string `json:"error,omitempty"`
}

// NewVideoClient builds a client from the video config section.
func NewVideoClient(cfg config.VideoConfig) *VideoClient {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = videoDefaultTimeout
	}
	return &VideoClient{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    cfg.BaseURL,
		apiKey:     cfg.APIKey,
	}
}

// GenerateVideo submits a generation job and polls until the clip URL
// is ready.
func (c *VideoClient) GenerateVideo(ctx context.Context, prompt string) (string, error) {
	job, err := c.submit(ctx, prompt)
	if err != nil {
		return "", err
	}
	if job.URL != "" {
		return job.URL, nil
	}

	deadline := time.Now().Add(videoMaxPollTime)
	for time.Now().Before(deadline) {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(videoPollInterval):
		}

		status, err := c.poll(ctx, job.JobID)
		if err != nil {
			return "", err
		}
		switch status.Status {
		case "completed", "succeeded":
			if status.URL == "" {
				return "", fmt.Errorf("video job %s completed without a URL", job.JobID)
			}
			return status.URL, nil
		case "failed", "error":
			return "", fmt.Errorf("video job %s failed: %s", job.JobID, status.Error)
		}
	}
	return "", fmt.Errorf("video job %s timed out", job.JobID)
}

func (c *VideoClient) submit(ctx context.Context, prompt string) (*videoJobResponse, error) {
	body, err := json.Marshal(videoJobRequest{Prompt: prompt})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal video request: %w", err)
	}

	url := c.baseURL + "/v1/generations"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create video request: %w", err)
	}
	return c.do(req)
}

func (c *VideoClient) poll(ctx context.Context, jobID string) (*videoJobResponse, error) {
	url := fmt.Sprintf("%s/v1/generations/%s", c.baseURL, jobID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create poll request: %w", err)
	}
	return c.do(req)
}

func (c *VideoClient) do(req *http.Request) (*videoJobResponse, error) {
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("video request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read video response: %w", err)
	}
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusAccepted {
		return nil, fmt.Errorf("video service HTTP %d: %s", resp.StatusCode, string(respBody))
	}

	var job videoJobResponse
	if err := json.Unmarshal(respBody, &job); err != nil {
		return nil, fmt.Errorf("failed to parse video response: %w", err)
	}
	return &job, nil
}
