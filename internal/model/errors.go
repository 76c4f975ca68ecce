package model

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
)

// transientError marks a failure worth retrying (rate limits, server
// errors, network hiccups). Anything not wrapped propagates immediately.
type transientError struct {
	err error
}

func (e *transientError) Error() string { return e.err.Error() }
func (e *transientError) Unwrap() error { return e.err }

// Transient wraps err so IsTransient reports true for it.
func Transient(err error) error {
	if err == nil {
		return nil
	}
	return &transientError{err: err}
}

// IsTransient reports whether err is safe to retry.
func IsTransient(err error) bool {
	var te *transientError
	return errors.As(err, &te)
}

// classify inspects transport-level failures. Timeouts and connection
// problems are transient; a cancelled context is not.
func classify(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) {
		return err
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return Transient(err)
	}
	msg := strings.ToLower(err.Error())
	for _, s := range []string{"connection refused", "connection reset", "broken pipe", "timeout", "deadline exceeded", "no such host"} {
		if strings.Contains(msg, s) {
			return Transient(err)
		}
	}
	return err
}

// classifyStatus maps provider HTTP status codes onto the retry taxonomy.
// 429 and 5xx are transient; 4xx (bad request, auth, content policy) are
// permanent and propagate without retry.
func classifyStatus(code int, body string) error {
	err := fmt.Errorf("provider returned %d: %s", code, truncate(body, 200))
	if code == 429 || code >= 500 {
		return Transient(err)
	}
	return err
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
