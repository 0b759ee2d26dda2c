// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package client

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestOpenStream(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/chat/stream" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if got := r.Header.Get("Accept"); got != "text/event-stream" {
			t.Errorf("Accept = %q", got)
		}
		var req TurnRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode body: %v", err)
		}
		if req.Message != "hi" || req.SessionID != "s1" {
			t.Errorf("request: %+v", req)
		}
		w.Header().Set("Content-Type", "text/event-stream")
		io.WriteString(w, "event: final\ndata: {}\n\n")
	}))
	defer server.Close()

	c := New(server.URL)
	body, err := c.OpenStream(context.Background(), TurnRequest{SessionID: "s1", Message: "hi"}, false)
	if err != nil {
		t.Fatalf("OpenStream: %v", err)
	}
	defer body.Close()

	raw, _ := io.ReadAll(body)
	if !strings.Contains(string(raw), "event: final") {
		t.Errorf("body = %q", raw)
	}
}

func TestOpenStream_AttachEndpoint(t *testing.T) {
	var path string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		w.Header().Set("Content-Type", "text/event-stream")
	}))
	defer server.Close()

	c := New(server.URL)
	body, err := c.OpenStream(context.Background(), TurnRequest{SessionID: "s1"}, true)
	if err != nil {
		t.Fatalf("OpenStream: %v", err)
	}
	body.Close()
	if path != "/api/chat/attach" {
		t.Errorf("attach must target the resume endpoint, got %s", path)
	}
}

func TestOpenStream_WrongContentType(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{}`))
	}))
	defer server.Close()

	c := New(server.URL)
	if _, err := c.OpenStream(context.Background(), TurnRequest{Message: "q"}, false); !errors.Is(err, ErrNoStream) {
		t.Errorf("expected ErrNoStream, got %v", err)
	}
}

func TestOpenStream_ErrorStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte(`{"error":{"code":"rate_limit","message":"slow down"}}`))
	}))
	defer server.Close()

	c := New(server.URL)
	_, err := c.OpenStream(context.Background(), TurnRequest{Message: "q"}, false)
	if !errors.Is(err, ErrRateLimited) {
		t.Errorf("expected ErrRateLimited, got %v", err)
	}
}

func TestSend(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/chat" {
			t.Errorf("path = %s", r.URL.Path)
		}
		json.NewEncoder(w).Encode(TurnResponse{
			Content:   "answer",
			HTML:      "<p>answer</p>",
			ModelUsed: "halcyon-large",
			SessionID: "s1",
			Turn:      3,
		})
	}))
	defer server.Close()

	c := New(server.URL)
	resp, err := c.Send(context.Background(), TurnRequest{Message: "q"})
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if resp.Content != "answer" || resp.Turn != 3 {
		t.Errorf("response: %+v", resp)
	}
	if resp.Markup() != "<p>answer</p>" {
		t.Errorf("Markup() = %q", resp.Markup())
	}
}

func TestTurnResponse_MarkupFallback(t *testing.T) {
	r := &TurnResponse{ContentHTML: "<p>alt</p>"}
	if r.Markup() != "<p>alt</p>" {
		t.Errorf("expected contentHtml fallback")
	}
	r.HTML = "<p>primary</p>"
	if r.Markup() != "<p>primary</p>" {
		t.Errorf("expected html to win")
	}
}

func TestSend_RetriesTransientErrors(t *testing.T) {
	var calls int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls < 3 {
			http.Error(w, "unavailable", http.StatusServiceUnavailable)
			return
		}
		json.NewEncoder(w).Encode(TurnResponse{Content: "finally"})
	}))
	defer server.Close()

	c := New(server.URL)
	resp, err := c.Send(context.Background(), TurnRequest{Message: "q"})
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if calls != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}
	if resp.Content != "finally" {
		t.Errorf("content = %q", resp.Content)
	}
}

func TestSend_NoRetryOnClientError(t *testing.T) {
	var calls int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		http.Error(w, "bad request", http.StatusBadRequest)
	}))
	defer server.Close()

	c := New(server.URL)
	if _, err := c.Send(context.Background(), TurnRequest{Message: "q"}); err == nil {
		t.Fatal("expected an error")
	}
	if calls != 1 {
		t.Errorf("a 4xx must not retry, calls = %d", calls)
	}
}

func TestSend_RetryBudgetExhausted(t *testing.T) {
	var calls int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		http.Error(w, "down", http.StatusInternalServerError)
	}))
	defer server.Close()

	c := New(server.URL).WithMaxRetries(2)
	_, err := c.Send(context.Background(), TurnRequest{Message: "q"})
	if err == nil {
		t.Fatal("expected an error")
	}
	if !strings.Contains(err.Error(), "max retries exceeded") {
		t.Errorf("err = %v", err)
	}
	if calls != 2 {
		t.Errorf("calls = %d, want 2", calls)
	}
}

func TestErrorMapping(t *testing.T) {
	cases := []struct {
		status int
		body   string
		want   error
	}{
		{http.StatusNotFound, `{"error":{"code":"nf","message":"no such session"}}`, ErrSessionNotFound},
		{http.StatusNotFound, "plain text", ErrSessionNotFound},
		{http.StatusTooManyRequests, `{"error":{"code":"rl","message":"busy"}}`, ErrRateLimited},
		{http.StatusTooManyRequests, "", ErrRateLimited},
	}

	for _, c := range cases {
		client := New("http://unused")
		err := client.handleErrorResponse(c.status, []byte(c.body))
		if !errors.Is(err, c.want) {
			t.Errorf("status %d body %q: got %v, want %v", c.status, c.body, err, c.want)
		}
	}
}

func TestErrorMapping_StructuredServerError(t *testing.T) {
	c := New("http://unused")
	err := c.handleErrorResponse(http.StatusInternalServerError,
		[]byte(`{"error":{"code":"internal","message":"backend exploded"}}`))

	var srvErr *ServerError
	if !errors.As(err, &srvErr) {
		t.Fatalf("expected *ServerError, got %T", err)
	}
	if srvErr.Code != "internal" || srvErr.Status != http.StatusInternalServerError {
		t.Errorf("server error: %+v", srvErr)
	}
	if !strings.Contains(srvErr.Error(), "backend exploded") {
		t.Errorf("message lost: %v", srvErr)
	}
}

func TestRunState(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/sessions/s1/run" {
			t.Errorf("path = %s", r.URL.Path)
		}
		w.Write([]byte(`{"running":true}`))
	}))
	defer server.Close()

	c := New(server.URL)
	running, err := c.RunState(context.Background(), "s1")
	if err != nil {
		t.Fatalf("RunState: %v", err)
	}
	if !running {
		t.Error("expected running=true")
	}
}

func TestCancelRun(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/chat/cancel" {
			t.Errorf("path = %s", r.URL.Path)
		}
		var payload map[string]string
		json.NewDecoder(r.Body).Decode(&payload)
		if payload["sessionId"] != "s1" {
			t.Errorf("payload: %v", payload)
		}
		w.WriteHeader(http.StatusAccepted)
	}))
	defer server.Close()

	c := New(server.URL)
	if err := c.CancelRun(context.Background(), "s1"); err != nil {
		t.Errorf("CancelRun: %v", err)
	}
}

func TestCancelRun_Rejected(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
	}))
	defer server.Close()

	c := New(server.URL)
	if err := c.CancelRun(context.Background(), "s1"); err == nil {
		t.Error("expected an error on rejection")
	}
}

func TestHistory(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/sessions/s1/history" {
			t.Errorf("path = %s", r.URL.Path)
		}
		w.Write([]byte(`{"turns":[
			{"role":"user","content":"q","turn":1},
			{"role":"assistant","content":"a","html":"<p>a</p>","modelUsed":"halcyon-large","turn":1}
		]}`))
	}))
	defer server.Close()

	c := New(server.URL)
	turns, err := c.History(context.Background(), "s1")
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(turns) != 2 {
		t.Fatalf("len = %d", len(turns))
	}
	if turns[1].Model != "halcyon-large" || turns[1].HTML != "<p>a</p>" {
		t.Errorf("turn: %+v", turns[1])
	}
}

func TestDeleteSession(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodDelete || r.URL.Path != "/api/sessions/s1" {
			t.Errorf("%s %s", r.Method, r.URL.Path)
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	c := New(server.URL)
	if err := c.DeleteSession(context.Background(), "s1"); err != nil {
		t.Errorf("DeleteSession: %v", err)
	}
}

func TestNew_NormalizesBaseURL(t *testing.T) {
	c := New("http://example.com/")
	if c.BaseURL() != "http://example.com" {
		t.Errorf("BaseURL = %q", c.BaseURL())
	}
	if New("").BaseURL() != DefaultBaseURL {
		t.Errorf("empty base URL must default")
	}
}

func TestCalculateBackoff(t *testing.T) {
	if d := calculateBackoff(1); d != time.Second {
		t.Errorf("attempt 1 = %v", d)
	}
	if d := calculateBackoff(2); d != 2*time.Second {
		t.Errorf("attempt 2 = %v", d)
	}
	if d := calculateBackoff(20); d != retryMaxDelay {
		t.Errorf("backoff must cap at %v, got %v", retryMaxDelay, d)
	}
}

func TestIsRetryable(t *testing.T) {
	if !isRetryable(ErrRateLimited) {
		t.Error("rate limiting is retryable")
	}
	if !isRetryable(&ServerError{Status: 503}) {
		t.Error("5xx is retryable")
	}
	if isRetryable(&ServerError{Status: 400}) {
		t.Error("4xx is not retryable")
	}
	if isRetryable(context.Canceled) {
		t.Error("cancellation is not retryable")
	}
}
