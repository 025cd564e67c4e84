package summarizer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Summary is the external service's condensed rendering of a tasker.
type Summary struct {
	TaskID    string `json:"task_id"`
	Text      string `json:"text"`
	Model     string `json:"model,omitempty"`
	Truncated bool   `json:"truncated,omitempty"`
}

// Client is the summarization capability. The service behind it is opaque;
// callers treat failures as advisory and never block task processing on it.
type Client interface {
	Summarize(ctx context.Context, taskID, title, description string) (*Summary, error)
}

type HTTPClient struct {
	baseURL    string
	httpClient *http.Client
}

func NewHTTPClient(baseURL string) *HTTPClient {
	return &HTTPClient{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: 15 * time.Second},
	}
}

type summarizeRequest struct {
	TaskID      string `json:"task_id"`
	Title       string `json:"title"`
	Description string `json:"description"`
}

func (c *HTTPClient) Summarize(ctx context.Context, taskID, title, description string) (*Summary, error) {
	payload, err := json.Marshal(summarizeRequest{TaskID: taskID, Title: title, Description: description})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+"/summarize", bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("summarizer POST /summarize: %d %s", resp.StatusCode, string(body))
	}

	var s Summary
	if err := json.Unmarshal(body, &s); err != nil {
		return nil, err
	}
	if s.TaskID == "" {
		s.TaskID = taskID
	}
	return &s, nil
}
