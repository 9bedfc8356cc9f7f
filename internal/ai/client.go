// Package ai talks to the external task-generation endpoint.
package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"taskpilot-backend/internal/retry"
)

// RequestError is a non-2xx response or transport failure, carrying the
// server-supplied message when one was present.
type RequestError struct {
	StatusCode int
	Message    string
}

func (e *RequestError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return fmt.Sprintf("generation request failed with status %d", e.StatusCode)
}

// FormatError is a successful response whose body did not contain the
// expected tasks list. Retrying would return the same malformed body, so the
// shape check runs outside the retry loop.
type FormatError struct{}

func (e *FormatError) Error() string { return "generation response missing tasks list" }

type Client struct {
	BaseURL    string
	HTTPClient *http.Client
	Exec       *retry.Executor
}

func NewClient(baseURL string, exec *retry.Executor) *Client {
	return &Client{
		BaseURL:    baseURL,
		HTTPClient: &http.Client{Timeout: 30 * time.Second},
		Exec:       exec,
	}
}

// GenerateTasks asks the endpoint to turn a goal prompt into task strings.
// The HTTP call is retried through the executor; a malformed 2xx body is not.
func (c *Client) GenerateTasks(ctx context.Context, prompt string) ([]string, error) {
	reqBody, err := json.Marshal(map[string]string{"prompt": prompt})
	if err != nil {
		return nil, err
	}

	var raw []byte
	err = c.Exec.Do(ctx, func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost,
			c.BaseURL+"/generate-tasks", bytes.NewReader(reqBody))
		if err != nil {
			return err
		}
		req.Header.Set("Content-Type", "application/json")

		res, err := c.HTTPClient.Do(req)
		if err != nil {
			return err
		}
		defer res.Body.Close()

		body, err := io.ReadAll(res.Body)
		if err != nil {
			return err
		}

		if res.StatusCode < 200 || res.StatusCode >= 300 {
			return &RequestError{StatusCode: res.StatusCode, Message: serverMessage(body)}
		}

		raw = body
		return nil
	})
	if err != nil {
		return nil, err
	}

	var parsed struct {
		Tasks []string `json:"tasks"`
	}
	if err := json.Unmarshal(raw, &parsed); err != nil || parsed.Tasks == nil {
		return nil, &FormatError{}
	}
	return parsed.Tasks, nil
}

func serverMessage(body []byte) string {
	var payload struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return ""
	}
	if payload.Error != "" {
		return payload.Error
	}
	return payload.Message
}
