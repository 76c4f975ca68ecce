package model

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/appforge-ai/appforge/internal/config"
)

// RetryClient wraps a Client with bounded retry on transient failures
// using exponential backoff. Non-transient failures propagate immediately.
type RetryClient struct {
	underlying  Client
	maxRetries  int
	baseBackoff time.Duration
}

func NewRetryClient(underlying Client, cfg config.ModelConfig) *RetryClient {
	maxRetries := cfg.MaxRetries
	if maxRetries <= 0 {
		maxRetries = 3
	}
	baseBackoff := cfg.BaseBackoff
	if baseBackoff <= 0 {
		baseBackoff = time.Second
	}
	return &RetryClient{
		underlying:  underlying,
		maxRetries:  maxRetries,
		baseBackoff: baseBackoff,
	}
}

func (c *RetryClient) Generate(ctx context.Context, req Request) (string, error) {
	var lastErr error
	backoff := c.baseBackoff

	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			slog.Debug("retrying model call", "attempt", attempt, "backoff", backoff)
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(backoff):
			}
			backoff *= 2
		}

		text, err := c.underlying.Generate(ctx, req)
		if err == nil {
			return text, nil
		}
		if !IsTransient(err) {
			return "", err
		}
		lastErr = err
		slog.Warn("transient model failure", "attempt", attempt, "error", err)
	}

	return "", fmt.Errorf("model call failed after %d retries: %w", c.maxRetries, lastErr)
}
