package model

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/appforge-ai/appforge/internal/config"
)

func retryConfig() config.ModelConfig {
	return config.ModelConfig{MaxRetries: 2, BaseBackoff: time.Millisecond}
}

func TestRetrySucceedsAfterTransient(t *testing.T) {
	mock := &MockClient{
		Errs:      []error{Transient(errors.New("rate limited")), nil},
		Responses: []string{"", "generated text"},
	}
	c := NewRetryClient(mock, retryConfig())

	text, err := c.Generate(context.Background(), Request{Prompt: "hi"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if text != "generated text" {
		t.Fatalf("expected generated text, got %q", text)
	}
	if mock.CallCount() != 2 {
		t.Fatalf("expected 2 calls, got %d", mock.CallCount())
	}
}

func TestRetryGivesUpAfterMaxAttempts(t *testing.T) {
	mock := &MockClient{Fn: func(Request) (string, error) {
		return "", Transient(errors.New("503"))
	}}
	c := NewRetryClient(mock, retryConfig())

	_, err := c.Generate(context.Background(), Request{Prompt: "hi"})
	if err == nil {
		t.Fatal("expected error")
	}
	// initial attempt + 2 retries
	if mock.CallCount() != 3 {
		t.Fatalf("expected 3 calls, got %d", mock.CallCount())
	}
}

func TestPermanentErrorNotRetried(t *testing.T) {
	mock := &MockClient{Fn: func(Request) (string, error) {
		return "", errors.New("400 bad request")
	}}
	c := NewRetryClient(mock, retryConfig())

	_, err := c.Generate(context.Background(), Request{Prompt: "hi"})
	if err == nil {
		t.Fatal("expected error")
	}
	if mock.CallCount() != 1 {
		t.Fatalf("expected 1 call for permanent error, got %d", mock.CallCount())
	}
}

func TestRetryRespectsContextCancellation(t *testing.T) {
	mock := &MockClient{Fn: func(Request) (string, error) {
		return "", Transient(errors.New("flaky"))
	}}
	c := NewRetryClient(mock, config.ModelConfig{MaxRetries: 5, BaseBackoff: time.Hour})

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	_, err := c.Generate(ctx, Request{Prompt: "hi"})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestClassifyStatus(t *testing.T) {
	if !IsTransient(classifyStatus(429, "slow down")) {
		t.Error("expected 429 to be transient")
	}
	if !IsTransient(classifyStatus(503, "unavailable")) {
		t.Error("expected 503 to be transient")
	}
	if IsTransient(classifyStatus(400, "bad request")) {
		t.Error("expected 400 to be permanent")
	}
	if IsTransient(classifyStatus(401, "unauthorized")) {
		t.Error("expected 401 to be permanent")
	}
}

func TestHTTPClientGenerate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/generate" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			t.Errorf("unexpected auth header %q", got)
		}
		w.Write([]byte(`{"text":"hello from model"}`))
	}))
	defer srv.Close()

	c := NewHTTPClient(config.ModelConfig{BaseURL: srv.URL, APIKey: "test-key", Model: "m"})
	text, err := c.Generate(context.Background(), Request{Prompt: "hi"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if text != "hello from model" {
		t.Fatalf("got %q", text)
	}
}

func TestHTTPClientServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := NewHTTPClient(config.ModelConfig{BaseURL: srv.URL})
	_, err := c.Generate(context.Background(), Request{Prompt: "hi"})
	if err == nil {
		t.Fatal("expected error")
	}
	if !IsTransient(err) {
		t.Fatalf("expected transient error, got %v", err)
	}
}
