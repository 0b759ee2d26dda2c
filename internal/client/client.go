// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package client implements the HTTP client for the halcyon chat server.
//
// The server exposes a streaming turn-submission endpoint, an attach
// variant for resuming an in-flight generation, a synchronous fallback
// endpoint, and small side channels for run-state queries and
// cancellation notices.
package client

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

// Configuration constants for the halcyon API.
const (
	// DefaultBaseURL is the base URL of a locally running server.
	DefaultBaseURL = "http://localhost:8080"

	// DefaultTimeout is the default timeout for synchronous requests.
	DefaultTimeout = 60 * time.Second

	// DefaultMaxRetries is the retry budget for transient errors on the
	// synchronous path. The streaming path never retries; a dropped
	// stream is the fallback invoker's problem.
	DefaultMaxRetries = 3

	// retryBaseDelay is the base delay for exponential backoff.
	retryBaseDelay = 500 * time.Millisecond

	// retryMaxDelay is the maximum delay for exponential backoff.
	retryMaxDelay = 10 * time.Second

	// MaxResponseSize caps synchronous response bodies.
	// SECURITY: Response size limit prevents memory exhaustion.
	MaxResponseSize = 10 * 1024 * 1024 // 10MB
)

var (
	// PERFORMANCE: Connection pooling reduces TCP handshake overhead.
	// Shared HTTP client for all synchronous requests.
	sharedHTTPClient = &http.Client{
		Transport: &http.Transport{
			MaxIdleConns:        100,
			MaxIdleConnsPerHost: 10,
			IdleConnTimeout:     90 * time.Second,
			TLSHandshakeTimeout: 10 * time.Second,
			TLSClientConfig: &tls.Config{
				MinVersion: tls.VersionTLS12,
			},
		},
		Timeout: DefaultTimeout,
	}

	// sharedStreamingClient has no timeout; stream lifetime is
	// controlled via context.
	sharedStreamingClient = &http.Client{
		Transport: &http.Transport{
			MaxIdleConns:        100,
			MaxIdleConnsPerHost: 10,
			IdleConnTimeout:     90 * time.Second,
			TLSHandshakeTimeout: 10 * time.Second,
			TLSClientConfig: &tls.Config{
				MinVersion: tls.VersionTLS12,
			},
		},
	}
)

// Error variables for common server errors.
var (
	// ErrNoStream indicates the response carried no streamable body.
	ErrNoStream = errors.New("response has no streamable body")

	// ErrSessionNotFound indicates the session id is unknown to the server.
	ErrSessionNotFound = errors.New("session not found")

	// ErrRateLimited indicates too many requests were made.
	ErrRateLimited = errors.New("rate limited")
)

// ServerError represents a structured error response from the server.
type ServerError struct {
	Code    string
	Message string
	Status  int
}

// Error implements the error interface.
func (e *ServerError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("server error [%s] (HTTP %d): %s", e.Code, e.Status, e.Message)
	}
	return fmt.Sprintf("server error (HTTP %d): %s", e.Status, e.Message)
}

// apiErrorResponse is the server's error envelope.
type apiErrorResponse struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// =============================================================================
// REQUEST / RESPONSE TYPES
// =============================================================================

// TurnRequest is the turn-submission body. SessionID is empty until the
// server has assigned one. The attach decision selects the endpoint and
// is never forwarded in the body.
type TurnRequest struct {
	SessionID string `json:"sessionId,omitempty"`
	Message   string `json:"message"`
}

// TurnResponse is the synchronous endpoint's answer, shaped like the
// streaming `final` payload so the fallback path can synthesize an
// identical terminal event.
type TurnResponse struct {
	Content     string `json:"content"`
	HTML        string `json:"html"`
	ContentHTML string `json:"contentHtml"`
	ModelUsed   string `json:"modelUsed"`
	SessionID   string `json:"sessionId"`
	Turn        int    `json:"turn"`
}

// Markup returns the richer server-rendered form, preferring `html`.
func (r *TurnResponse) Markup() string {
	if r.HTML != "" {
		return r.HTML
	}
	return r.ContentHTML
}

// runStateResponse is the run-state query answer.
type runStateResponse struct {
	Running bool `json:"running"`
}

// HistoryTurn is one persisted turn as returned by the history endpoint.
type HistoryTurn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
	HTML    string `json:"html"`
	Model   string `json:"modelUsed"`
	Turn    int    `json:"turn"`
}

// =============================================================================
// CLIENT
// =============================================================================

// Client is a client for the halcyon chat server.
type Client struct {
	baseURL    string
	maxRetries int
	userAgent  string

	// pollLimiter paces run-state queries so attach polling can never
	// hammer the server.
	pollLimiter *rate.Limiter
}

// New creates a client for the given base URL.
func New(baseURL string) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		baseURL:     strings.TrimSuffix(baseURL, "/"),
		maxRetries:  DefaultMaxRetries,
		userAgent:   "halcyon-tui/0.2.0",
		pollLimiter: rate.NewLimiter(rate.Every(time.Second), 2),
	}
}

// WithMaxRetries sets the retry budget for the synchronous path.
func (c *Client) WithMaxRetries(n int) *Client {
	c.maxRetries = n
	return c
}

// BaseURL returns the configured server base URL.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// setHeaders sets the common headers for API requests.
func (c *Client) setHeaders(req *http.Request) {
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", c.userAgent)
}

// logRequest logs an API request without exposing the body.
func (c *Client) logRequest(req *http.Request) {
	log.Printf("API Request: %s %s", req.Method, req.URL.Path)
}

// logResponse logs an API response with duration.
func (c *Client) logResponse(resp *http.Response, duration time.Duration) {
	log.Printf("API Response: %d %s (%v)", resp.StatusCode, resp.Status, duration)
}

// =============================================================================
// STREAMING
// =============================================================================

// OpenStream submits a turn and returns the raw event-stream body.
//
// When attach is true the resume endpoint is targeted instead: the
// server replays the running generation's remaining events rather than
// starting a new one. Callers own the returned body and must close it.
func (c *Client) OpenStream(ctx context.Context, turn TurnRequest, attach bool) (io.ReadCloser, error) {
	endpoint := c.baseURL + "/api/chat/stream"
	if attach {
		endpoint = c.baseURL + "/api/chat/attach"
	}

	bodyBytes, err := json.Marshal(turn)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(bodyBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	c.setHeaders(req)
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")

	c.logRequest(req)
	resp, err := sharedStreamingClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, MaxResponseSize))
		resp.Body.Close()
		return nil, c.handleErrorResponse(resp.StatusCode, body)
	}

	if !strings.Contains(resp.Header.Get("Content-Type"), "text/event-stream") {
		resp.Body.Close()
		return nil, ErrNoStream
	}

	return resp.Body, nil
}

// =============================================================================
// SYNCHRONOUS FALLBACK
// =============================================================================

// Send submits a turn as a single blocking request. Transient errors
// are retried with exponential backoff.
func (c *Client) Send(ctx context.Context, turn TurnRequest) (*TurnResponse, error) {
	var lastErr error

	for attempt := 0; attempt < c.maxRetries; attempt++ {
		if attempt > 0 {
			delay := calculateBackoff(attempt)
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(delay):
			}
		}

		resp, err := c.doSend(ctx, turn)
		if err != nil {
			if isRetryable(err) {
				lastErr = err
				continue
			}
			return nil, err
		}
		return resp, nil
	}

	if lastErr != nil {
		return nil, fmt.Errorf("max retries exceeded: %w", lastErr)
	}
	return nil, errors.New("max retries exceeded")
}

// doSend performs one synchronous turn submission.
func (c *Client) doSend(ctx context.Context, turn TurnRequest) (*TurnResponse, error) {
	bodyBytes, err := json.Marshal(turn)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/chat", bytes.NewReader(bodyBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	c.setHeaders(req)

	c.logRequest(req)
	start := time.Now()
	resp, err := sharedHTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	c.logResponse(resp, time.Since(start))

	body, err := readResponse(resp)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode != http.StatusOK {
		return nil, c.handleErrorResponse(resp.StatusCode, body)
	}

	var turnResp TurnResponse
	if err := json.Unmarshal(body, &turnResp); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}
	return &turnResp, nil
}

// =============================================================================
// SIDE CHANNELS
// =============================================================================

// RunState reports whether the server holds an active generation for
// the session. Polls are paced by the client's rate limiter.
func (c *Client) RunState(ctx context.Context, sessionID string) (bool, error) {
	if err := c.pollLimiter.Wait(ctx); err != nil {
		return false, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		c.baseURL+"/api/sessions/"+sessionID+"/run", nil)
	if err != nil {
		return false, fmt.Errorf("failed to create request: %w", err)
	}
	c.setHeaders(req)

	resp, err := sharedHTTPClient.Do(req)
	if err != nil {
		return false, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := readResponse(resp)
	if err != nil {
		return false, err
	}
	if resp.StatusCode != http.StatusOK {
		return false, c.handleErrorResponse(resp.StatusCode, body)
	}

	var state runStateResponse
	if err := json.Unmarshal(body, &state); err != nil {
		return false, fmt.Errorf("failed to parse run state: %w", err)
	}
	return state.Running, nil
}

// CancelRun sends a cancellation notice for the session's active run.
// The notice is best-effort; callers ignore the error for rendering
// purposes since cancellation is client-authoritative.
func (c *Client) CancelRun(ctx context.Context, sessionID string) error {
	payload, err := json.Marshal(map[string]string{"sessionId": sessionID})
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/api/chat/cancel", bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	c.setHeaders(req)

	resp, err := sharedHTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, MaxResponseSize))

	if resp.StatusCode >= 400 {
		return &ServerError{Status: resp.StatusCode, Message: "cancel rejected"}
	}
	return nil
}

// History fetches the persisted turn history for a session.
func (c *Client) History(ctx context.Context, sessionID string) ([]HistoryTurn, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		c.baseURL+"/api/sessions/"+sessionID+"/history", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	c.setHeaders(req)

	resp, err := sharedHTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := readResponse(resp)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, c.handleErrorResponse(resp.StatusCode, body)
	}

	var payload struct {
		Turns []HistoryTurn `json:"turns"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("failed to parse history: %w", err)
	}
	return payload.Turns, nil
}

// DeleteSession removes a session on the server.
func (c *Client) DeleteSession(ctx context.Context, sessionID string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete,
		c.baseURL+"/api/sessions/"+sessionID, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	c.setHeaders(req)

	resp, err := sharedHTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := readResponse(resp)
	if err != nil {
		return err
	}
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusNoContent {
		return c.handleErrorResponse(resp.StatusCode, body)
	}
	return nil
}

// =============================================================================
// HELPERS
// =============================================================================

// readResponse reads a body with a size limit.
// SECURITY: Response size limit prevents memory exhaustion.
func readResponse(resp *http.Response) ([]byte, error) {
	limited := io.LimitReader(resp.Body, MaxResponseSize)
	body, err := io.ReadAll(limited)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if int64(len(body)) == MaxResponseSize {
		return nil, fmt.Errorf("response exceeded maximum size of %d bytes", MaxResponseSize)
	}
	return body, nil
}

// handleErrorResponse converts HTTP error responses to Go errors.
func (c *Client) handleErrorResponse(statusCode int, body []byte) error {
	var apiErr apiErrorResponse
	if err := json.Unmarshal(body, &apiErr); err == nil && apiErr.Error.Message != "" {
		srvErr := &ServerError{
			Code:    apiErr.Error.Code,
			Message: apiErr.Error.Message,
			Status:  statusCode,
		}
		switch statusCode {
		case http.StatusNotFound:
			return fmt.Errorf("%w: %s", ErrSessionNotFound, srvErr.Message)
		case http.StatusTooManyRequests:
			return fmt.Errorf("%w: %s", ErrRateLimited, srvErr.Message)
		default:
			return srvErr
		}
	}

	switch statusCode {
	case http.StatusNotFound:
		return ErrSessionNotFound
	case http.StatusTooManyRequests:
		return ErrRateLimited
	default:
		return &ServerError{
			Message: strings.TrimSpace(string(body)),
			Status:  statusCode,
		}
	}
}

// isRetryable determines if a synchronous-path error should retry.
func isRetryable(err error) bool {
	if errors.Is(err, ErrRateLimited) {
		return true
	}
	var srvErr *ServerError
	if errors.As(err, &srvErr) {
		return srvErr.Status >= 500 && srvErr.Status < 600
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	return false
}

// calculateBackoff returns the delay before the next retry.
func calculateBackoff(attempt int) time.Duration {
	// Exponential backoff: 500ms, 1000ms, 2000ms, ...
	delay := retryBaseDelay * time.Duration(1<<uint(attempt))
	if delay > retryMaxDelay {
		delay = retryMaxDelay
	}
	return delay
}
