// Package client implements the candidate-side transport for the assessment
// API: a typed HTTP client covering the question, autosave, execute and
// submit endpoints, and a websocket reporter that streams proctor events.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/hirecraft/assess-go/internal/dto"
)

const (
	// CandidateTokenHeader carries the opaque candidate identity on every
	// request; the server uses it to partition drafts and submissions.
	CandidateTokenHeader = "X-Candidate-Token"

	defaultHTTPTimeout = 30 * time.Second
)

// APIError is a non-2xx response decoded from the server's envelope.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error: status %d: %s", e.StatusCode, e.Message)
}

// Config groups Client construction options.
type Config struct {
	// BaseURL is the API root, e.g. "http://localhost:8080".
	BaseURL string
	// CandidateToken identifies the candidate on every request.
	CandidateToken string
	// HTTPClient overrides the default client. Useful for tests.
	HTTPClient *http.Client
	Logger     zerolog.Logger
}

// Client is a typed HTTP client for the assessment API. It satisfies the
// session runtime's backend contract.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
	logger     zerolog.Logger
}

// New builds a Client from the given config.
func New(cfg Config) *Client {
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultHTTPTimeout}
	}

	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		token:      cfg.CandidateToken,
		httpClient: httpClient,
		logger:     cfg.Logger.With().Str("component", "api_client").Logger(),
	}
}

// FetchQuestion retrieves the candidate-safe view of a question. Hidden test
// cases are stripped server side and never reach the client.
func (c *Client) FetchQuestion(ctx context.Context, questionID uint) (dto.QuestionResponse, error) {
	var question dto.QuestionResponse
	err := c.do(ctx, http.MethodGet, fmt.Sprintf("/api/questions/%d", questionID), nil, &question)
	return question, err
}

// SaveDraft persists the candidate's work in progress.
func (c *Client) SaveDraft(ctx context.Context, questionID uint, req dto.AutosaveRequest) error {
	return c.do(ctx, http.MethodPost, fmt.Sprintf("/api/questions/%d/autosave", questionID), req, nil)
}

// Execute runs the code against the question's visible test cases and waits
// for the verdict.
func (c *Client) Execute(ctx context.Context, questionID uint, req dto.ExecuteRequest) (dto.ExecutionResult, error) {
	var result dto.ExecutionResult
	err := c.do(ctx, http.MethodPost, fmt.Sprintf("/api/questions/%d/execute", questionID), req, &result)
	return result, err
}

// Submit records the candidate's final answer.
func (c *Client) Submit(ctx context.Context, questionID uint, req dto.SubmitRequest) error {
	return c.do(ctx, http.MethodPost, fmt.Sprintf("/api/questions/%d/submit", questionID), req, nil)
}

// do issues one request and decodes the server's response envelope. On a
// non-2xx status the envelope's message is surfaced as an *APIError.
func (c *Client) do(ctx context.Context, method, path string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request body: %w", err)
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set(CandidateTokenHeader, c.token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response body: %w", err)
	}

	var envelope struct {
		Success bool            `json:"success"`
		Message string          `json:"message"`
		Data    json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(payload, &envelope); err != nil {
		if resp.StatusCode >= http.StatusBadRequest {
			return &APIError{StatusCode: resp.StatusCode, Message: http.StatusText(resp.StatusCode)}
		}
		return fmt.Errorf("decode response envelope: %w", err)
	}

	if resp.StatusCode >= http.StatusBadRequest || !envelope.Success {
		c.logger.Debug().Int("status", resp.StatusCode).Str("path", path).Str("message", envelope.Message).Msg("request rejected")
		return &APIError{StatusCode: resp.StatusCode, Message: envelope.Message}
	}

	if out != nil && len(envelope.Data) > 0 {
		if err := json.Unmarshal(envelope.Data, out); err != nil {
			return fmt.Errorf("decode response data: %w", err)
		}
	}
	return nil
}
